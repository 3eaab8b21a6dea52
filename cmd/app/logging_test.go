package main

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/babelcloud/gbox/packages/visual-test/config"
	"github.com/babelcloud/gbox/packages/visual-test/pkg/logger"
)

func TestConfigureLogging(t *testing.T) {
	log := logger.New()
	wasDebug := log.IsDebugEnabled()
	t.Cleanup(func() { log.SetDebug(wasDebug) })

	// DEBUG=true from the environment survives a config without debug
	log.SetDebug(true)
	configureLogging(log, &config.Config{})
	assert.True(t, log.IsDebugEnabled())

	log.SetDebug(false)
	configureLogging(log, &config.Config{})
	assert.False(t, log.IsDebugEnabled())

	configureLogging(log, &config.Config{Logging: config.LoggingConfig{Debug: true}})
	assert.True(t, log.IsDebugEnabled())
}

func TestLogDriverBannerKeepsPercentSigns(t *testing.T) {
	log := logger.New()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	logDriverBanner(log, &config.Config{Browser: config.BrowserConfig{Driver: "chrome%d"}})
	assert.Contains(t, buf.String(), "chrome%d")
	assert.NotContains(t, buf.String(), "%!d")
}
