// Package drivertest provides an in-memory browser driver for tests.
package drivertest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver"
)

// PageBehavior controls how pages of a fake browser respond
type PageBehavior struct {
	Screenshot    []byte
	NavigateErr   error
	ScreenshotErr error
	CloseErr      error
	// NeverReady makes WaitForSelector block until its ctx expires
	NeverReady bool
	// Console messages are emitted on Navigate
	Console []string
}

// Launcher is a fake driver.Launcher
type Launcher struct {
	// Delay is slept inside Launch, to widen race windows in tests
	Delay time.Duration

	mu       sync.Mutex
	err      error
	behavior PageBehavior
	launches atomic.Int64
	browsers []*Browser
	lastOpts driver.LaunchOptions
}

// NewLauncher returns a launcher whose pages capture png
func NewLauncher(png []byte) *Launcher {
	return &Launcher{behavior: PageBehavior{Screenshot: png}}
}

// SetLaunchError makes subsequent launches fail with err, nil restores success
func (l *Launcher) SetLaunchError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// SetBehavior changes the behavior of pages opened from now on
func (l *Launcher) SetBehavior(b PageBehavior) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.behavior = b
}

// SetScreenshot changes the bytes captured by pages opened from now on
func (l *Launcher) SetScreenshot(png []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.behavior.Screenshot = png
}

// Launches returns how many times Launch was called
func (l *Launcher) Launches() int {
	return int(l.launches.Load())
}

// LastOptions returns the options of the latest launch
func (l *Launcher) LastOptions() driver.LaunchOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastOpts
}

// Browsers returns every browser launched so far
func (l *Launcher) Browsers() []*Browser {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Browser(nil), l.browsers...)
}

// Launch implements driver.Launcher
func (l *Launcher) Launch(ctx context.Context, opts driver.LaunchOptions) (driver.Browser, error) {
	l.launches.Add(1)
	if l.Delay > 0 {
		select {
		case <-time.After(l.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastOpts = opts
	if l.err != nil {
		return nil, l.err
	}
	b := &Browser{launcher: l}
	b.connected.Store(true)
	l.browsers = append(l.browsers, b)
	return b, nil
}

func (l *Launcher) currentBehavior() PageBehavior {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.behavior
}

// Browser is a fake driver.Browser
type Browser struct {
	launcher  *Launcher
	connected atomic.Bool

	mu    sync.Mutex
	pages []*Page
}

// NewPage implements driver.Browser
func (b *Browser) NewPage(ctx context.Context, opts driver.PageOptions) (driver.Page, error) {
	if !b.connected.Load() {
		return nil, driver.ErrClosed
	}
	p := &Page{behavior: b.launcher.currentBehavior(), Options: opts}
	b.mu.Lock()
	b.pages = append(b.pages, p)
	b.mu.Unlock()
	return p, nil
}

// Pages returns every page opened on this browser
func (b *Browser) Pages() []*Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Page(nil), b.pages...)
}

// Connected implements driver.Browser
func (b *Browser) Connected() bool { return b.connected.Load() }

// Disconnect simulates a crashed browser
func (b *Browser) Disconnect() { b.connected.Store(false) }

// Close implements driver.Browser
func (b *Browser) Close() error {
	b.connected.Store(false)
	return nil
}

// Page is a fake driver.Page that records every call
type Page struct {
	Options  driver.PageOptions
	behavior PageBehavior

	mu       sync.Mutex
	calls    []string
	shots    []driver.ScreenshotOptions
	handlers []func(string)
	closed   bool
}

func (p *Page) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

// Calls returns the recorded calls in order, e.g. "navigate http://x"
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Screenshots returns the options of every screenshot taken
func (p *Page) Screenshots() []driver.ScreenshotOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]driver.ScreenshotOptions(nil), p.shots...)
}

// Closed reports whether Close was called
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Navigate implements driver.Page
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.record("navigate " + url)
	p.mu.Lock()
	handlers := slices.Clone(p.handlers)
	p.mu.Unlock()
	for _, msg := range p.behavior.Console {
		for _, h := range handlers {
			h(msg)
		}
	}
	return p.behavior.NavigateErr
}

// WaitForSelector implements driver.Page
func (p *Page) WaitForSelector(ctx context.Context, selector string) error {
	p.record("wait " + selector)
	if p.behavior.NeverReady {
		<-ctx.Done()
		return fmt.Errorf("waiting for %s: %w", selector, driver.ErrTimeout)
	}
	return nil
}

// Screenshot implements driver.Page
func (p *Page) Screenshot(ctx context.Context, opts driver.ScreenshotOptions) ([]byte, error) {
	p.record("screenshot")
	p.mu.Lock()
	p.shots = append(p.shots, opts)
	p.mu.Unlock()
	if p.behavior.ScreenshotErr != nil {
		return nil, p.behavior.ScreenshotErr
	}
	return append([]byte(nil), p.behavior.Screenshot...), nil
}

// OnConsole implements driver.Page
func (p *Page) OnConsole(handler func(msg string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, handler)
}

// Close implements driver.Page
func (p *Page) Close() error {
	p.record("close")
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.behavior.CloseErr
}

var (
	_ driver.Launcher = (*Launcher)(nil)
	_ driver.Browser  = (*Browser)(nil)
	_ driver.Page     = (*Page)(nil)
)
