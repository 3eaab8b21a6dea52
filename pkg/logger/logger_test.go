package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuccessLogsAtInfo(t *testing.T) {
	log := New()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	log.Success("%s matched in %dms", "home", 12)
	assert.Contains(t, buf.String(), "home matched in 12ms")
	assert.Contains(t, buf.String(), "INFO")
}

func TestSetDebug(t *testing.T) {
	log := New()
	wasDebug := log.IsDebugEnabled()
	t.Cleanup(func() { log.SetDebug(wasDebug) })

	log.SetDebug(true)
	assert.True(t, log.IsDebugEnabled())
	log.SetDebug(false)
	assert.False(t, log.IsDebugEnabled())
}
