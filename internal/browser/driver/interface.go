package driver

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Viewport is a window size in CSS pixels
type Viewport struct {
	Width  int
	Height int
}

// LaunchOptions configure a browser process
type LaunchOptions struct {
	Headless  bool
	NoSandbox bool
	// Flags are passed to the browser command line as given
	Flags []string
	// Port is the remote debugging port, 0 lets the browser choose
	Port     int
	Viewport Viewport
}

// PageOptions configure a new isolated page
type PageOptions struct {
	Viewport Viewport
}

// ScreenshotOptions select what a screenshot covers. A non-empty Selector
// captures that element only; FullPage is ignored in that case.
type ScreenshotOptions struct {
	Selector string
	FullPage bool
}

// Launcher starts a browser
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is a running browser process
type Browser interface {
	// NewPage opens a page that shares no cookies or storage with other pages
	NewPage(ctx context.Context, opts PageOptions) (Page, error)
	// Connected reports whether the browser process is still usable
	Connected() bool
	Close() error
}

// Page is a single browser tab
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitForSelector blocks until an element matching selector is attached
	// to the DOM. It fails with an error wrapping ErrTimeout when ctx expires.
	WaitForSelector(ctx context.Context, selector string) error
	// Screenshot returns PNG bytes
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	// OnConsole registers a handler for console messages of the page
	OnConsole(handler func(msg string))
	Close() error
}

// Factory creates a launcher
type Factory func() Launcher

var (
	mu              sync.RWMutex
	implementations = make(map[string]Factory)
)

// Register registers a browser driver implementation
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	implementations[name] = factory
}

// New creates a launcher for the named driver
func New(name string) (Launcher, error) {
	mu.RLock()
	factory, ok := implementations[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, name)
	}
	return factory(), nil
}

// Drivers lists the registered driver names
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(implementations))
	for name := range implementations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
