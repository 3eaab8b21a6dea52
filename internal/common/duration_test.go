package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDurationConcise(t *testing.T) {
	assert.Equal(t, "7d", FormatDurationConcise(7*24*time.Hour))
	assert.Equal(t, "36h", FormatDurationConcise(36*time.Hour))
	assert.Equal(t, "90m", FormatDurationConcise(90*time.Minute))
	assert.Equal(t, "45s", FormatDurationConcise(45*time.Second))
	assert.Equal(t, "1.5s", FormatDurationConcise(1500*time.Millisecond))
	assert.Equal(t, "0s", FormatDurationConcise(0))
}

func TestGetLocalIPs(t *testing.T) {
	ips := GetLocalIPs()
	assert.GreaterOrEqual(t, len(ips), 2)
	assert.Equal(t, []string{"localhost", "127.0.0.1"}, ips[:2])
}
