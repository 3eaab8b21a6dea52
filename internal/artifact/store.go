package artifact

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/babelcloud/gbox/packages/visual-test/config"
	"github.com/babelcloud/gbox/packages/visual-test/pkg/logger"
)

var log = logger.New()

var (
	// ErrInvalidName is returned for capture names that cannot be mapped to a file
	ErrInvalidName = errors.New("invalid capture name")
	// ErrNotFound is returned when an artifact does not exist
	ErrNotFound = errors.New("artifact not found")
	// ErrUnknownKind is returned for an unknown artifact kind
	ErrUnknownKind = errors.New("unknown artifact kind")
)

// Kind selects one of the three image directories
type Kind string

const (
	KindBaseline Kind = "baseline"
	KindTemp     Kind = "tmp"
	KindDiff     Kind = "diff"
)

// ParseKind validates a kind coming from a URL
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindBaseline, KindTemp, KindDiff:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownKind, s)
}

// Asset holds the three file paths derived from a logical capture name
type Asset struct {
	// Name is the resolved file stem, including the OS prefix when grouping is on
	Name     string
	Baseline string
	Temp     string
	Diff     string
}

// Path returns the path for the given kind
func (a Asset) Path(kind Kind) string {
	switch kind {
	case KindBaseline:
		return a.Baseline
	case KindTemp:
		return a.Temp
	default:
		return a.Diff
	}
}

// Store maps capture names to baseline/temp/diff files on disk
type Store struct {
	baselineDir string
	tmpDir      string
	diffDir     string
	groupByOS   bool
	osTag       string

	mu    sync.Mutex
	locks map[string]*nameLock
}

// New creates a Store from the resolved configuration
func New(cfg *config.Config) *Store {
	return &Store{
		baselineDir: cfg.Images.Directory,
		tmpDir:      cfg.Images.TmpDirectory,
		diffDir:     cfg.Images.DiffDirectory,
		groupByOS:   cfg.GroupByOS,
		osTag:       cfg.OS,
		locks:       make(map[string]*nameLock),
	}
}

// Dir returns the directory for the given kind
func (s *Store) Dir(kind Kind) string {
	switch kind {
	case KindBaseline:
		return s.baselineDir
	case KindTemp:
		return s.tmpDir
	default:
		return s.diffDir
	}
}

// FileName resolves the file stem for a logical name: the OS tag is
// prefixed to the last path element only, so "forms/login" becomes
// "forms/mac-login" and sub directories are kept.
func (s *Store) FileName(name string) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	if !s.groupByOS || s.osTag == "" {
		return clean, nil
	}
	dir, base := path.Split(clean)
	return dir + s.osTag + "-" + base, nil
}

// Resolve returns the asset paths for a logical capture name
func (s *Store) Resolve(name string) (Asset, error) {
	fileName, err := s.FileName(name)
	if err != nil {
		return Asset{}, err
	}
	return s.assetFor(fileName), nil
}

// ResolveFile returns the asset paths for an already resolved file stem
// (e.g. "mac-login"), without applying the OS prefix again.
func (s *Store) ResolveFile(fileName string) (Asset, error) {
	clean, err := cleanName(fileName)
	if err != nil {
		return Asset{}, err
	}
	return s.assetFor(clean), nil
}

func (s *Store) assetFor(fileName string) Asset {
	rel := filepath.FromSlash(fileName) + ".png"
	return Asset{
		Name:     fileName,
		Baseline: filepath.Join(s.baselineDir, rel),
		Temp:     filepath.Join(s.tmpDir, rel),
		Diff:     filepath.Join(s.diffDir, rel),
	}
}

// cleanName normalises a capture name to a slash separated relative stem
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSuffix(name, ".png")
	if name == "" {
		return "", fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q must be relative", ErrInvalidName, name)
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q escapes the image directory", ErrInvalidName, name)
	}
	if strings.HasSuffix(name, "/") {
		return "", fmt.Errorf("%w: %q has no file name", ErrInvalidName, name)
	}
	return clean, nil
}
