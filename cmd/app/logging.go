package main

import (
	"github.com/babelcloud/gbox/packages/visual-test/config"
	"github.com/babelcloud/gbox/packages/visual-test/pkg/format"
	"github.com/babelcloud/gbox/packages/visual-test/pkg/logger"
)

// configureLogging turns on debug output when the config asks for it. It
// never lowers the level, so DEBUG=true keeps working on its own.
func configureLogging(log *logger.Logger, cfg *config.Config) {
	if cfg.Logging.Debug {
		log.SetDebug(true)
	}
}

// logDriverBanner announces the browser driver in use
func logDriverBanner(log *logger.Logger, cfg *config.Config) {
	log.Info("%s", format.FormatDriver(cfg.Browser.Driver))
}
