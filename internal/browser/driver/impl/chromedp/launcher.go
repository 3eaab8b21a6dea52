// Package chromedp drives Chrome over the DevTools protocol with chromedp.
package chromedp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"

	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver"
)

// Name is the registry key of this driver
const Name = "chromedp"

func init() {
	driver.Register(Name, func() driver.Launcher { return &Launcher{} })
}

// Launcher starts a local Chrome through an exec allocator
type Launcher struct{}

// allocatorOptions turns launch options into exec allocator options.
// Flags of the form --name=value or --name become chromedp.Flag entries.
func allocatorOptions(opts driver.LaunchOptions) []chromedp.ExecAllocatorOption {
	allocOpts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	if !opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.Viewport.Width, opts.Viewport.Height))
	}
	if opts.Port > 0 {
		allocOpts = append(allocOpts, chromedp.Flag("remote-debugging-port", opts.Port))
	}
	for _, flag := range opts.Flags {
		name, value, hasValue := strings.Cut(strings.TrimLeft(flag, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			allocOpts = append(allocOpts, chromedp.Flag(name, value))
		} else {
			allocOpts = append(allocOpts, chromedp.Flag(name, true))
		}
	}
	return allocOpts
}

// Launch implements driver.Launcher. The browser outlives ctx; it is bound
// to its own background context and stopped by Close.
func (l *Launcher) Launch(ctx context.Context, opts driver.LaunchOptions) (driver.Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("could not start chrome: %w", err)
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("could not start chrome: %w", ctx.Err())
	}

	return &Browser{
		ctx:           browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// Browser is a Chrome process owned by an exec allocator
type Browser struct {
	ctx           context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	once          sync.Once
}

// NewPage opens a new tab in a fresh browser context so it shares no
// storage with other tabs.
func (b *Browser) NewPage(ctx context.Context, opts driver.PageOptions) (driver.Page, error) {
	if !b.Connected() {
		return nil, driver.ErrClosed
	}
	tabCtx, cancel := chromedp.NewContext(b.ctx, chromedp.WithNewBrowserContext())
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create tab: %w", err)
	}
	page := &Page{ctx: tabCtx, cancel: cancel, viewport: opts.Viewport}
	page.listen()
	return page, nil
}

// Connected implements driver.Browser
func (b *Browser) Connected() bool {
	return b.ctx.Err() == nil
}

// Close stops Chrome
func (b *Browser) Close() error {
	var err error
	b.once.Do(func() {
		err = chromedp.Cancel(b.ctx)
		b.browserCancel()
		b.allocCancel()
	})
	return err
}
