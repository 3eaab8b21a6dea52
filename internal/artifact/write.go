package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Exists reports whether a regular file exists at path
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Read returns the content of an artifact
func (s *Store) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("error reading file %s: %w", path, err)
	}
	return data, nil
}

// Write stores data at path atomically: the bytes go to a temporary file in
// the same directory which is then renamed over the destination. Missing
// parent directories are created.
func (s *Store) Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".visual-test-*")
	if err != nil {
		return fmt.Errorf("error creating file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("error writing file content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("error closing file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		cleanup()
		return fmt.Errorf("error setting file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("error moving file into place: %w", err)
	}
	return nil
}

// Remove deletes an artifact; a missing file is not an error
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error removing %s: %w", path, err)
	}
	return nil
}

// Promote accepts the current temp image of an already resolved file name
// as its new baseline and drops any stale diff.
func (s *Store) Promote(fileName string) (Asset, error) {
	asset, err := s.ResolveFile(fileName)
	if err != nil {
		return Asset{}, err
	}

	unlock := s.Lock(asset.Name)
	defer unlock()

	data, err := s.Read(asset.Temp)
	if err != nil {
		return Asset{}, err
	}
	if err := s.Write(asset.Baseline, data); err != nil {
		return Asset{}, err
	}
	if err := s.Remove(asset.Diff); err != nil {
		log.Warn("Failed to remove stale diff %s: %v", asset.Diff, err)
	}
	log.Info("Promoted %s to baseline %s", asset.Temp, asset.Baseline)
	return asset, nil
}
