package service

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"time"

	"github.com/babelcloud/gbox/packages/visual-test/config"
	"github.com/babelcloud/gbox/packages/visual-test/internal/artifact"
	"github.com/babelcloud/gbox/packages/visual-test/internal/browser/driver"
	"github.com/babelcloud/gbox/packages/visual-test/internal/compare"
	"github.com/babelcloud/gbox/packages/visual-test/pkg/format"
	"github.com/babelcloud/gbox/packages/visual-test/pkg/logger"
	model "github.com/babelcloud/gbox/packages/visual-test/pkg/visual"
)

// CaptureService ties the engine, the comparator and the artifact store
// together behind a single call per capture request.
type CaptureService struct {
	engine *Engine
	store  *artifact.Store
	match  config.MatchConfig
	window config.WindowConfig
	logger *logger.Logger
}

// NewCaptureService creates a CaptureService from the resolved config
func NewCaptureService(sessions Sessions, store *artifact.Store, cfg *config.Config) *CaptureService {
	return &CaptureService{
		engine: NewEngine(sessions, store, EngineOptionsFromConfig(cfg)),
		store:  store,
		match:  cfg.Match,
		window: cfg.Window,
		logger: logger.New(),
	}
}

// WithEngine replaces the engine, e.g. to change its navigation policy
func (s *CaptureService) WithEngine(engine *Engine) *CaptureService {
	s.engine = engine
	return s
}

// MakeScreenshot captures params.URL, compares it to the baseline of
// params.Name and reports the outcome. Expected failures (browser errors,
// unreadable images, visual differences) come back as an ERROR result,
// never as a Go error. A started capture runs to completion even if ctx
// is cancelled.
func (s *CaptureService) MakeScreenshot(ctx context.Context, params *model.CaptureParams) *model.ComparisonResult {
	ctx = context.WithoutCancel(ctx)

	if err := params.Validate(); err != nil {
		return errorResult(err.Error())
	}
	asset, err := s.store.Resolve(params.Name)
	if err != nil {
		return errorResult(err.Error())
	}

	unlock := s.store.Lock(asset.Name)
	defer unlock()

	started := time.Now()
	engineResult := s.engine.Capture(ctx, CaptureRequest{
		URL:      params.URL,
		Asset:    asset,
		Selector: params.Selector,
		FullPage: params.IsFullPage(),
		Delay:    time.Duration(params.Delay()) * time.Millisecond,
		Viewport: s.viewport(params),
	})

	result := &model.ComparisonResult{NewBaseline: engineResult.NewBaseline}
	if engineResult.Err != nil {
		result.Status = model.StatusError
		result.ChromeError = engineResult.ChromeError
		result.Error = engineResult.Err.Error()
		s.logResult(asset, result, started)
		return result
	}

	cmp, err := s.Compare(asset)
	if err != nil {
		// stale diffs from earlier runs would not describe this failure
		s.removeDiff(asset)
		result.Status = model.StatusError
		result.TmpPath = asset.Temp
		result.Error = fmt.Sprintf("%v - img: %s", err, asset.Temp)
		s.logResult(asset, result, started)
		return result
	}

	result.DiffPixelCount = cmp.DiffPixels
	if compare.Passes(cmp.DiffPixels, s.match.AllowedFailures) {
		s.removeDiff(asset)
		result.Status = model.StatusSuccess
		s.logResult(asset, result, started)
		return result
	}

	result.Status = model.StatusError
	result.TmpPath = asset.Temp
	if err := s.writeDiff(asset, cmp); err != nil {
		result.Error = fmt.Sprintf("%d pixels differ - img: %s (diff not written: %v)", cmp.DiffPixels, asset.Temp, err)
		s.logResult(asset, result, started)
		return result
	}
	result.DiffPath = asset.Diff
	result.FullDiffPath = absPath(asset.Diff)
	result.Error = fmt.Sprintf("%d pixels differ - diff: %s, img: %s", cmp.DiffPixels, asset.Diff, asset.Temp)
	s.logResult(asset, result, started)
	return result
}

// Compare runs the comparator over the baseline and temp images of asset
func (s *CaptureService) Compare(asset artifact.Asset) (*compare.Result, error) {
	baseline, err := s.decode(asset.Baseline)
	if err != nil {
		return nil, err
	}
	candidate, err := s.decode(asset.Temp)
	if err != nil {
		return nil, err
	}
	return compare.Compare(baseline, candidate, compare.DefaultOptions(s.match.Threshold, s.match.IncludeAA))
}

// Approve promotes the temp image of a logical name to its baseline
func (s *CaptureService) Approve(params *model.ApproveParams) (*model.ApproveResult, error) {
	asset, err := s.store.Resolve(params.Name)
	if err != nil {
		return nil, err
	}
	promoted, err := s.store.Promote(asset.Name)
	if err != nil {
		return nil, err
	}
	return &model.ApproveResult{Name: promoted.Name, Baseline: promoted.Baseline}, nil
}

func (s *CaptureService) decode(path string) (image.Image, error) {
	data, err := s.store.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	img, err := compare.DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

func (s *CaptureService) writeDiff(asset artifact.Asset, cmp *compare.Result) error {
	data, err := compare.EncodePNG(cmp.Diff)
	if err != nil {
		return err
	}
	return s.store.Write(asset.Diff, data)
}

func (s *CaptureService) removeDiff(asset artifact.Asset) {
	if err := s.store.Remove(asset.Diff); err != nil {
		s.logger.Warn("Failed to remove stale diff %s: %v", asset.Diff, err)
	}
}

// viewport uses the requested window size, falling back to the configured one per axis
func (s *CaptureService) viewport(params *model.CaptureParams) driver.Viewport {
	width, height := params.Viewport()
	if width <= 0 {
		width = s.window.Width
	}
	if height <= 0 {
		height = s.window.Height
	}
	return driver.Viewport{Width: width, Height: height}
}

func (s *CaptureService) logResult(asset artifact.Asset, result *model.ComparisonResult, started time.Time) {
	elapsed := time.Since(started).Round(time.Millisecond)
	if result.Passed() {
		s.logger.Success("%s %s (new baseline: %v) in %v", format.FormatStatus(string(result.Status)), asset.Name, result.NewBaseline, elapsed)
		return
	}
	s.logger.Warn("%s %s in %v: %s", format.FormatStatus(string(result.Status)), asset.Name, elapsed, result.Error)
}

func errorResult(msg string) *model.ComparisonResult {
	return &model.ComparisonResult{Status: model.StatusError, Error: msg}
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
