package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/babelcloud/gbox/packages/visual-test/config"
	"github.com/babelcloud/gbox/packages/visual-test/internal/artifact"
	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver"
	browserservice "github.com/babelcloud/gbox/packages/visual-test/internal/browser/service"
	"github.com/babelcloud/gbox/packages/visual-test/pkg/logger"
)

var (
	// ErrReadinessTimeout is returned when the readiness sentinel never appears
	ErrReadinessTimeout = errors.New("timed out waiting for page readiness")
	// ErrNavigationFailed is returned when navigation fails under AbortOnNavigationError
	ErrNavigationFailed = errors.New("navigation failed")
	// ErrCaptureFailed wraps screenshot errors raised by the browser
	ErrCaptureFailed = errors.New("screenshot failed")
)

const defaultReadyTimeout = 30 * time.Second

// Step is one state of a capture
type Step string

const (
	StepOpened    Step = "OPENED"
	StepNavigated Step = "NAVIGATED"
	StepSignaled  Step = "SIGNALED"
	StepCaptured  Step = "CAPTURED"
	StepClosed    Step = "CLOSED"
)

// NavigationPolicy decides what happens when the page fails to load
type NavigationPolicy int

const (
	// ContinueOnNavigationError logs the failure and still waits for the
	// readiness signal; the screenshot then shows whatever rendered.
	ContinueOnNavigationError NavigationPolicy = iota
	// AbortOnNavigationError fails the capture immediately
	AbortOnNavigationError
)

// Sessions hands out isolated pages on the shared browser
type Sessions interface {
	OpenPage(ctx context.Context, opts driver.PageOptions) (*browserservice.ManagedPage, error)
	ClosePage(pageID string) error
}

// CaptureRequest is one screenshot job
type CaptureRequest struct {
	URL      string
	Asset    artifact.Asset
	Selector string
	FullPage bool
	Delay    time.Duration
	Viewport driver.Viewport
}

// EngineResult is the outcome of a capture
type EngineResult struct {
	NewBaseline bool
	// ChromeError marks failures of the browser itself (launch, readiness, screenshot)
	ChromeError bool
	// Err is set when no usable temp image was produced
	Err error
	// NavigationErr records a navigation failure that was tolerated
	NavigationErr error
	Steps         []Step
}

// EngineOptions configure an Engine
type EngineOptions struct {
	ReadySelector     string
	ReadyTimeout      time.Duration
	NavigationTimeout time.Duration
	ForceRebuild      bool
	Navigation        NavigationPolicy
	ImageLogging      bool
}

// EngineOptionsFromConfig derives engine options from the resolved config
func EngineOptionsFromConfig(cfg *config.Config) EngineOptions {
	return EngineOptions{
		ReadySelector:     config.ReadySelector,
		ReadyTimeout:      cfg.Browser.ReadyTimeout,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		ForceRebuild:      cfg.ForceRebuild,
		Navigation:        ContinueOnNavigationError,
		ImageLogging:      cfg.Logging.Image,
	}
}

// Engine runs the per-request capture sequence
// OPENED → NAVIGATED → SIGNALED → CAPTURED → CLOSED.
type Engine struct {
	sessions Sessions
	store    *artifact.Store
	opts     EngineOptions
	logger   *logger.Logger
}

// NewEngine creates an Engine
func NewEngine(sessions Sessions, store *artifact.Store, opts EngineOptions) *Engine {
	if opts.ReadySelector == "" {
		opts.ReadySelector = config.ReadySelector
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaultReadyTimeout
	}
	return &Engine{sessions: sessions, store: store, opts: opts, logger: logger.New()}
}

func (e *Engine) imageLog(format string, args ...interface{}) {
	if e.opts.ImageLogging {
		e.logger.Info(format, args...)
	}
}

// Capture photographs req.URL into the temp image of req.Asset, and into
// the baseline too when none exists or a rebuild is forced.
func (e *Engine) Capture(ctx context.Context, req CaptureRequest) *EngineResult {
	result := &EngineResult{}

	page, err := e.sessions.OpenPage(ctx, driver.PageOptions{Viewport: req.Viewport})
	if err != nil {
		e.logger.Error("Error when launching browser: %v", err)
		result.ChromeError = true
		result.Err = err
		return result
	}
	result.Steps = append(result.Steps, StepOpened)

	defer func() {
		if err := e.sessions.ClosePage(page.ID); err != nil {
			e.logger.Error("Error closing page %s: %v", page.ID, err)
		}
		result.Steps = append(result.Steps, StepClosed)
	}()

	if err := e.navigate(ctx, page, req.URL); err != nil {
		switch e.opts.Navigation {
		case AbortOnNavigationError:
			result.ChromeError = true
			result.Err = fmt.Errorf("%w: %w", ErrNavigationFailed, err)
			return result
		default:
			e.logger.Error("Error opening page %s, continuing: %v", req.URL, err)
			result.NavigationErr = err
		}
	}
	result.Steps = append(result.Steps, StepNavigated)

	if err := e.waitReady(ctx, page); err != nil {
		e.logger.Error("Page %s never signaled readiness: %v", req.URL, err)
		result.ChromeError = true
		result.Err = err
		return result
	}
	result.Steps = append(result.Steps, StepSignaled)

	if err := sleep(ctx, req.Delay); err != nil {
		result.Err = err
		return result
	}

	data, err := page.Instance.Screenshot(ctx, driver.ScreenshotOptions{Selector: req.Selector, FullPage: req.FullPage})
	if err != nil {
		e.logger.Error("Error taking screenshot of %s: %v", req.URL, err)
		result.ChromeError = true
		result.Err = fmt.Errorf("%w: %w", ErrCaptureFailed, err)
		return result
	}

	result.NewBaseline = e.opts.ForceRebuild || !e.store.Exists(req.Asset.Baseline)
	if result.NewBaseline {
		e.imageLog("Making base screenshot %s", req.Asset.Name)
		if err := e.store.Write(req.Asset.Baseline, data); err != nil {
			result.Err = err
			return result
		}
	}
	e.imageLog("Making comparison screenshot %s", req.Asset.Name)
	if err := e.store.Write(req.Asset.Temp, data); err != nil {
		result.Err = err
		return result
	}
	result.Steps = append(result.Steps, StepCaptured)
	return result
}

func (e *Engine) navigate(ctx context.Context, page *browserservice.ManagedPage, url string) error {
	if e.opts.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.NavigationTimeout)
		defer cancel()
	}
	return page.Instance.Navigate(ctx, url)
}

func (e *Engine) waitReady(ctx context.Context, page *browserservice.ManagedPage) error {
	readyCtx, cancel := context.WithTimeout(ctx, e.opts.ReadyTimeout)
	defer cancel()

	err := page.Instance.WaitForSelector(readyCtx, e.opts.ReadySelector)
	if err == nil {
		return nil
	}
	if errors.Is(err, driver.ErrTimeout) || errors.Is(readyCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %v: %w", ErrReadinessTimeout, e.opts.ReadyTimeout, err)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
