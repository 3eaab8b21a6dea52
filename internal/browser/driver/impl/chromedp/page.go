package chromedp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver"
)

// Page is one chromedp tab
type Page struct {
	ctx      context.Context
	cancel   context.CancelFunc
	viewport driver.Viewport

	mu       sync.RWMutex
	handlers []func(string)
}

// tab binds the cancellation of a call ctx to the tab context
func (p *Page) tab(ctx context.Context) (context.Context, context.CancelFunc) {
	tabCtx, cancel := context.WithCancel(p.ctx)
	stop := context.AfterFunc(ctx, cancel)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		tabCtx, cancelDeadline = context.WithDeadline(tabCtx, deadline)
		return tabCtx, func() { stop(); cancelDeadline(); cancel() }
	}
	return tabCtx, func() { stop(); cancel() }
}

func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	tabCtx, cancel := p.tab(ctx)
	defer cancel()
	err := chromedp.Run(tabCtx, actions...)
	if err != nil && errors.Is(tabCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", driver.ErrTimeout, err)
	}
	return err
}

// Navigate implements driver.Page
func (p *Page) Navigate(ctx context.Context, url string) error {
	actions := []chromedp.Action{}
	if p.viewport.Width > 0 && p.viewport.Height > 0 {
		actions = append(actions, chromedp.EmulateViewport(int64(p.viewport.Width), int64(p.viewport.Height)))
	}
	actions = append(actions, chromedp.Navigate(url))
	if err := p.run(ctx, actions...); err != nil {
		return fmt.Errorf("failed to navigate page to %s: %w", url, err)
	}
	return nil
}

// WaitForSelector implements driver.Page
func (p *Page) WaitForSelector(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("waiting for %s: %w", selector, err)
	}
	return nil
}

// Screenshot implements driver.Page
func (p *Page) Screenshot(ctx context.Context, opts driver.ScreenshotOptions) ([]byte, error) {
	var buf []byte
	var action chromedp.Action
	switch {
	case opts.Selector != "":
		action = chromedp.Screenshot(opts.Selector, &buf, chromedp.ByQuery)
	case opts.FullPage:
		// quality 100 keeps the capture in PNG
		action = chromedp.FullScreenshot(&buf, 100)
	default:
		action = chromedp.CaptureScreenshot(&buf)
	}
	if err := p.run(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return buf, nil
}

// OnConsole implements driver.Page
func (p *Page) OnConsole(handler func(msg string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, handler)
}

func (p *Page) listen() {
	chromedp.ListenTarget(p.ctx, func(ev any) {
		e, ok := ev.(*runtime.EventConsoleAPICalled)
		if !ok {
			return
		}
		parts := make([]string, 0, len(e.Args))
		for _, arg := range e.Args {
			switch {
			case len(arg.Value) > 0:
				parts = append(parts, strings.Trim(string(arg.Value), `"`))
			case arg.Description != "":
				parts = append(parts, arg.Description)
			}
		}
		msg := string(e.Type) + ": " + strings.Join(parts, " ")

		p.mu.RLock()
		defer p.mu.RUnlock()
		for _, h := range p.handlers {
			h(msg)
		}
	})
}

// Close closes the tab
func (p *Page) Close() error {
	err := chromedp.Cancel(p.ctx)
	p.cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
