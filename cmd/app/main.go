package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	restful "github.com/emicklei/go-restful/v3"

	"github.com/babelcloud/gbox/packages/visual-test/config"
	"github.com/babelcloud/gbox/packages/visual-test/internal/artifact"
	browserApi "github.com/babelcloud/gbox/packages/visual-test/internal/browser/api"
	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver"
	_ "github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver/impl/chromedp"
	_ "github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver/impl/playwright"
	browserService "github.com/babelcloud/gbox/packages/visual-test/internal/browser/service"
	captureApi "github.com/babelcloud/gbox/packages/visual-test/internal/capture/api"
	captureService "github.com/babelcloud/gbox/packages/visual-test/internal/capture/service"
	"github.com/babelcloud/gbox/packages/visual-test/internal/common"
	"github.com/babelcloud/gbox/packages/visual-test/internal/cron"
	miscApi "github.com/babelcloud/gbox/packages/visual-test/internal/misc/api"
	miscService "github.com/babelcloud/gbox/packages/visual-test/internal/misc/service"
	"github.com/babelcloud/gbox/packages/visual-test/pkg/format"
	"github.com/babelcloud/gbox/packages/visual-test/pkg/logger"
)

func main() {
	log := logger.New()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic recovered: %v", r)
			os.Exit(1)
		}
	}()

	// Initialize configuration
	cfg := config.GetInstance()
	configureLogging(log, cfg)
	log.Info("Baselines: %s (OS tag %q, grouped: %v)", cfg.Images.Directory, cfg.OS, cfg.GroupByOS)
	log.Info("Match threshold: %v, allowed failures: %d, include AA: %v",
		cfg.Match.Threshold, cfg.Match.AllowedFailures, cfg.Match.IncludeAA)

	// Initialize services
	launcher, err := driver.New(cfg.Browser.Driver)
	if err != nil {
		log.Fatal("Failed to initialize browser driver: %v (available: %s)", err, strings.Join(driver.Drivers(), ", "))
	}

	browserSvc := browserService.NewBrowserService(launcher, browserService.Options{
		Launch: driver.LaunchOptions{
			Headless:  true,
			NoSandbox: cfg.Browser.NoSandbox,
			Flags:     cfg.ChromeFlags(),
			Port:      cfg.Browser.Port,
			Viewport:  driver.Viewport{Width: cfg.Window.Width, Height: cfg.Window.Height},
		},
		ConsoleLogging: cfg.Logging.Debug,
	})
	defer func() {
		if err := browserSvc.Close(); err != nil {
			log.Error("Failed to close browser: %v", err)
		}
	}()

	store := artifact.New(cfg)
	captureSvc := captureService.NewCaptureService(browserSvc, store, cfg)
	miscSvc := miscService.New(cfg.OS, cfg.Browser.Driver)

	// Initialize cron manager
	log.Info("Artifact max age: %s", common.FormatDurationConcise(cfg.Reclaim.MaxAge))
	cronManager := cron.NewManager(log, store, cfg.Reclaim)
	if err := cronManager.Start(); err != nil {
		log.Fatal("Failed to start cron manager: %v", err)
	}
	defer cronManager.Stop()

	// Initialize API handlers
	captureHandler := captureApi.NewCaptureHandler(captureSvc, store)
	browserHandler := browserApi.NewHandler(browserSvc, cfg.Browser.Driver)
	miscHandler := miscApi.NewMiscHandler(miscSvc)

	// Create REST API container
	container := restful.NewContainer()

	// Create WebService
	ws := new(restful.WebService)
	ws.Path("/visual-test").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	// Register routes
	captureApi.RegisterRoutes(ws, captureHandler)
	browserApi.RegisterBrowserRoutes(ws, browserHandler)
	miscApi.RegisterRoutes(ws, miscHandler)

	container.Add(ws)

	// Log API endpoints
	endpoints := make([]format.APIEndpoint, 0, len(ws.Routes()))
	for _, route := range ws.Routes() {
		endpoints = append(endpoints, format.APIEndpoint{
			Method:      route.Method,
			Path:        route.Path,
			Description: route.Doc,
		})
	}
	format.LogAPIEndpoints(log, endpoints)

	// Add CORS filter
	cors := restful.CrossOriginResourceSharing{
		AllowedHeaders: []string{"Content-Type", "Accept"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedDomains: []string{"*"},
		Container:      container,
	}
	container.Filter(cors.Filter)
	container.Filter(container.OPTIONSFilter)

	// Add request logging filter
	container.Filter(func(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
		url := req.Request.URL.Path
		if req.Request.URL.RawQuery != "" {
			url += "?" + req.Request.URL.RawQuery
		}
		log.Info("%s %s %s", req.Request.Method, url, req.Request.Proto)

		if log.IsDebugEnabled() && len(req.Request.Header) > 0 {
			headers := make([]string, 0, len(req.Request.Header))
			for name, values := range req.Request.Header {
				headers = append(headers, fmt.Sprintf("%s: %s", name, values[0]))
			}
			log.Debug("Headers: %s", strings.Join(headers, ", "))
		}

		chain.ProcessFilter(req, resp)

		log.Debug("Response status: %d", resp.StatusCode())
	})

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logDriverBanner(log, cfg)
	log.Info("Starting server on %s", addr)

	log.Info("Accessible URLs:")
	for _, ip := range common.GetLocalIPs() {
		log.Info("  http://%s:%d/visual-test", ip, cfg.Server.Port)
	}

	// Create a channel to receive OS signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{
		Addr:    addr,
		Handler: container,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	log.Info("Shutting down server...")

	// Captures in flight run to completion, bounded by the shutdown timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited properly")
}
