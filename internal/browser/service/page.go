package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver"
)

// ManagedPage is a page handed out by the service
type ManagedPage struct {
	ID        string
	Instance  driver.Page
	CreatedAt time.Time
}

// OpenPage opens a new isolated page on the shared browser, launching the
// browser first if necessary.
func (s *BrowserService) OpenPage(ctx context.Context, opts driver.PageOptions) (*ManagedPage, error) {
	b, err := s.Browser(ctx)
	if err != nil {
		return nil, err
	}

	instance, err := b.NewPage(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	mp := &ManagedPage{
		ID:        uuid.New().String(),
		Instance:  instance,
		CreatedAt: time.Now(),
	}
	if s.opts.ConsoleLogging {
		pageID := mp.ID
		instance.OnConsole(func(msg string) {
			s.logger.Debug("[console %s] %s", pageID[:8], msg)
		})
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = instance.Close()
		return nil, ErrServiceClosed
	}
	s.pageMap[mp.ID] = mp
	s.mu.Unlock()

	return mp, nil
}

// findManagedPage locates a ManagedPage by its ID
func (s *BrowserService) findManagedPage(pageID string) (*ManagedPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mp, exists := s.pageMap[pageID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
	}
	return mp, nil
}

// ClosePage closes a page and forgets it. The browser stays up.
func (s *BrowserService) ClosePage(pageID string) error {
	mp, err := s.findManagedPage(pageID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.pageMap, pageID)
	s.mu.Unlock()

	if err := mp.Instance.Close(); err != nil {
		return fmt.Errorf("failed to close page %s: %w", pageID, err)
	}
	return nil
}

// PageCount returns the number of open pages
func (s *BrowserService) PageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pageMap)
}
