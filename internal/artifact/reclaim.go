package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	model "github.com/babelcloud/gbox/packages/visual-test/pkg/visual"
)

// Reclaim removes temp and diff images older than maxAge together with the
// directories that become empty. Baselines are never touched.
func (s *Store) Reclaim(ctx context.Context, maxAge time.Duration) (*model.ReclaimResult, error) {
	cutoff := time.Now().Add(-maxAge)
	result := &model.ReclaimResult{}

	for _, root := range []string{s.tmpDir, s.diffDir} {
		if err := s.reclaimDir(ctx, root, cutoff, result); err != nil {
			return result, err
		}
	}
	log.Info("Reclaimed %d artifacts", len(result.Removed))
	return result, nil
}

func (s *Store) reclaimDir(ctx context.Context, root string, cutoff time.Time, result *model.ReclaimResult) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}
	emptyDirs := make(map[string]bool)

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Error accessing path %s: %v", path, err))
			return nil
		}
		if info.IsDir() || !info.ModTime().Before(cutoff) {
			return nil
		}

		stat := statOf(path, info)
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Error removing %s: %v", path, err))
			return nil
		}
		result.Removed = append(result.Removed, stat)
		emptyDirs[filepath.Dir(path)] = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("error walking directory: %w", err)
	}

	// parents are marked while iterating so nested empty dirs collapse upwards
	for len(emptyDirs) > 0 {
		for dir := range emptyDirs {
			delete(emptyDirs, dir)
			if dir == root || !isWithin(root, dir) {
				continue
			}
			entries, err := os.ReadDir(dir)
			if err != nil || len(entries) > 0 {
				continue
			}
			if err := os.Remove(dir); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("Error removing empty directory %s: %v", dir, err))
				continue
			}
			emptyDirs[filepath.Dir(dir)] = true
		}
	}
	return nil
}

func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
