package playwright

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver"
)

// Page wraps a playwright page and the context that isolates it
type Page struct {
	context playwright.BrowserContext
	page    playwright.Page
}

// timeout converts the deadline of ctx into playwright's millisecond timeout.
// Zero means no limit.
func timeout(ctx context.Context) *float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return playwright.Float(0)
	}
	// playwright treats 0 as unlimited, keep an expired deadline expired
	return playwright.Float(max(millis(time.Until(deadline)), 1))
}

// Navigate implements driver.Page
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{Timeout: timeout(ctx)})
	if err != nil {
		return fmt.Errorf("failed to navigate page to %s: %w", url, wrapTimeout(err))
	}
	return nil
}

// WaitForSelector implements driver.Page
func (p *Page) WaitForSelector(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", driver.ErrTimeout, err)
	}
	err := p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: timeout(ctx),
	})
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", selector, wrapTimeout(err))
	}
	return nil
}

// Screenshot implements driver.Page
func (p *Page) Screenshot(ctx context.Context, opts driver.ScreenshotOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		data []byte
		err  error
	)
	if opts.Selector != "" {
		data, err = p.page.Locator(opts.Selector).First().Screenshot(playwright.LocatorScreenshotOptions{
			Type:    playwright.ScreenshotTypePng,
			Timeout: timeout(ctx),
		})
	} else {
		data, err = p.page.Screenshot(playwright.PageScreenshotOptions{
			Type:     playwright.ScreenshotTypePng,
			FullPage: playwright.Bool(opts.FullPage),
			Timeout:  timeout(ctx),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", wrapTimeout(err))
	}
	return data, nil
}

// OnConsole implements driver.Page
func (p *Page) OnConsole(handler func(msg string)) {
	p.page.OnConsole(func(msg playwright.ConsoleMessage) {
		handler(msg.Type() + ": " + msg.Text())
	})
}

// Close closes the page together with its browser context
func (p *Page) Close() error {
	return errors.Join(p.page.Close(), p.context.Close())
}

func wrapTimeout(err error) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", driver.ErrTimeout, err)
	}
	return err
}
