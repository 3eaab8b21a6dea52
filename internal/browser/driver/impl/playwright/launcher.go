// Package playwright drives Chromium through playwright-go.
package playwright

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver"
)

// Name is the registry key of this driver
const Name = "playwright"

func init() {
	driver.Register(Name, func() driver.Launcher { return &Launcher{} })
}

// Launcher starts the playwright driver and a Chromium instance
type Launcher struct{}

// Launch implements driver.Launcher
func (l *Launcher) Launch(ctx context.Context, opts driver.LaunchOptions) (driver.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	args := append([]string(nil), opts.Flags...)
	if opts.Port > 0 {
		args = append(args, driver.RemoteDebuggingFlag(opts.Port))
	}
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless:        playwright.Bool(opts.Headless),
		Args:            args,
		ChromiumSandbox: playwright.Bool(!opts.NoSandbox),
	}
	if deadline, ok := ctx.Deadline(); ok {
		launchOpts.Timeout = playwright.Float(millis(time.Until(deadline)))
	}

	instance, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("could not launch chromium: %w", err)
	}
	return &Browser{pw: pw, instance: instance}, nil
}

// Browser wraps a playwright browser
type Browser struct {
	pw       *playwright.Playwright
	instance playwright.Browser
	once     sync.Once
}

// NewPage opens the page in its own browser context so pages never share state.
func (b *Browser) NewPage(ctx context.Context, opts driver.PageOptions) (driver.Page, error) {
	if !b.instance.IsConnected() {
		return nil, driver.ErrClosed
	}
	contextOpts := playwright.BrowserNewContextOptions{}
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		contextOpts.Viewport = &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height}
	}
	bc, err := b.instance.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := bc.NewPage()
	if err != nil {
		_ = bc.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return &Page{context: bc, page: page}, nil
}

// Connected implements driver.Browser
func (b *Browser) Connected() bool {
	return b.instance.IsConnected()
}

// Close shuts down the browser and the playwright driver process
func (b *Browser) Close() error {
	var err error
	b.once.Do(func() {
		err = errors.Join(b.instance.Close(), b.pw.Stop())
	})
	return err
}

func millis(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return float64(d.Milliseconds())
}
