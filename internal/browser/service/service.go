package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver"
	"github.com/babelcloud/gbox/packages/visual-test/pkg/logger"
)

var (
	// ErrLaunchFailed wraps any error raised while starting the browser
	ErrLaunchFailed = errors.New("failed to launch browser")
	// ErrPageNotFound is returned for unknown page ids
	ErrPageNotFound = errors.New("page not found")
	// ErrServiceClosed is returned once Close has been called
	ErrServiceClosed = errors.New("browser service closed")
)

// launchTimeout bounds a single browser start, independently of the caller
// that happened to trigger it.
const launchTimeout = 60 * time.Second

// State is the lifecycle state of the shared browser
type State int32

const (
	StateUninitialized State = iota
	StateLaunching
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLaunching:
		return "launching"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Options configure a BrowserService
type Options struct {
	Launch driver.LaunchOptions
	// ConsoleLogging forwards page console output to the debug log
	ConsoleLogging bool
}

// BrowserService owns the one browser process shared by all captures. The
// browser is launched lazily on first use; concurrent first callers share a
// single launch. Every capture gets its own isolated page.
type BrowserService struct {
	launcher driver.Launcher
	opts     Options
	logger   *logger.Logger
	group    singleflight.Group
	launches atomic.Int64

	mu      sync.RWMutex // protects browser, state, pageMap and closed
	browser driver.Browser
	state   State
	pageMap map[string]*ManagedPage
	closed  bool
}

// NewBrowserService creates a BrowserService. No browser is started until
// the first page is requested.
func NewBrowserService(launcher driver.Launcher, opts Options) *BrowserService {
	return &BrowserService{
		launcher: launcher,
		opts:     opts,
		logger:   logger.New(),
		pageMap:  make(map[string]*ManagedPage),
	}
}

// State returns the current lifecycle state
func (s *BrowserService) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LaunchCount returns how many times the launcher has been invoked
func (s *BrowserService) LaunchCount() int64 {
	return s.launches.Load()
}

// Browser returns the shared browser, launching it if needed.
func (s *BrowserService) Browser(ctx context.Context) (driver.Browser, error) {
	// --- Check cache first (Read Lock) ---
	s.mu.RLock()
	b, closed := s.browser, s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrServiceClosed
	}
	if b != nil && b.Connected() {
		return b, nil
	}

	// The launch runs detached from ctx so one caller giving up does not
	// fail the others waiting on the same launch.
	ch := s.group.DoChan("browser", func() (interface{}, error) {
		return s.launch(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(driver.Browser), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *BrowserService) launch(ctx context.Context) (driver.Browser, error) {
	s.mu.Lock()
	// Double-check after winning the flight
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServiceClosed
	}
	if s.browser != nil && s.browser.Connected() {
		b := s.browser
		s.mu.Unlock()
		return b, nil
	}
	if s.browser != nil {
		s.logger.Warn("Browser disconnected, dropping %d tracked pages before relaunch", len(s.pageMap))
		s.browser = nil
		s.pageMap = make(map[string]*ManagedPage)
	}
	s.state = StateLaunching
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, launchTimeout)
	defer cancel()

	s.launches.Add(1)
	s.logger.Info("Launching browser (headless: %v, no-sandbox: %v)", s.opts.Launch.Headless, s.opts.Launch.NoSandbox)
	started := time.Now()
	b, err := s.launcher.Launch(ctx, s.opts.Launch)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateUninitialized
		s.logger.Error("Browser launch failed: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}
	if s.closed {
		// Close raced with the launch
		s.state = StateUninitialized
		_ = b.Close()
		return nil, ErrServiceClosed
	}
	s.browser = b
	s.state = StateReady
	s.logger.Info("Browser ready in %v", time.Since(started).Round(time.Millisecond))
	return b, nil
}

// Close closes all open pages and the browser. It is called once at server
// shutdown; later calls are no-ops.
func (s *BrowserService) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pages := make([]*ManagedPage, 0, len(s.pageMap))
	for _, mp := range s.pageMap {
		pages = append(pages, mp)
	}
	b := s.browser
	s.pageMap = make(map[string]*ManagedPage)
	s.browser = nil
	s.state = StateUninitialized
	s.mu.Unlock() // Release the lock BEFORE closing pages and browser

	var closeErrors []error
	for _, mp := range pages {
		if err := mp.Instance.Close(); err != nil {
			closeErrors = append(closeErrors, fmt.Errorf("failed closing page %s: %w", mp.ID, err))
		}
	}
	if b != nil {
		s.logger.Info("Closing browser during service shutdown")
		if err := b.Close(); err != nil {
			closeErrors = append(closeErrors, fmt.Errorf("failed closing browser: %w", err))
		}
	}
	return errors.Join(closeErrors...)
}
