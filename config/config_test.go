package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/gbox/packages/visual-test/config"
)

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"CI", "FORCE_BUILD_VISUAL_TEST_IMAGES", "PORT", "VISUAL_TEST_MATCH_THRESHOLD"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())

	cfg, err := config.Load(config.WithGOOS("darwin"))
	require.NoError(t, err)

	assert.Equal(t, "visual-test-output/baseline", cfg.Images.Directory)
	assert.Equal(t, "visual-test-output/diff", cfg.Images.DiffDirectory)
	assert.Equal(t, "visual-test-output/tmp", cfg.Images.TmpDirectory)
	assert.InDelta(t, 0.3, cfg.Match.Threshold, 1e-9)
	assert.Equal(t, 0, cfg.Match.AllowedFailures)
	assert.True(t, cfg.Match.IncludeAA)
	assert.True(t, cfg.GroupByOS)
	assert.Equal(t, "mac", cfg.OS)
	assert.Equal(t, 1024, cfg.Window.Width)
	assert.Equal(t, 768, cfg.Window.Height)
	assert.False(t, cfg.ForceRebuild)
	assert.False(t, cfg.Browser.NoSandbox)
	assert.Equal(t, "playwright", cfg.Browser.Driver)
	assert.Equal(t, 30*time.Second, cfg.Browser.ReadyTimeout)
}

func TestLoadEnvironmentWins(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())
	t.Setenv("CI", "1")
	t.Setenv("FORCE_BUILD_VISUAL_TEST_IMAGES", "yes")
	t.Setenv("VISUAL_TEST_MATCH_THRESHOLD", "0.5")

	cfg, err := config.Load(config.WithOverrides(map[string]interface{}{
		"match.threshold":    0.1,
		"browser.no_sandbox": false,
		"window.width":       800,
	}))
	require.NoError(t, err)

	assert.True(t, cfg.Browser.NoSandbox, "CI forces sandboxing flags")
	assert.True(t, cfg.ForceRebuild)
	assert.InDelta(t, 0.5, cfg.Match.Threshold, 1e-9)
	assert.Equal(t, 800, cfg.Window.Width, "overrides replace defaults")
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "visual-test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
match:
  allowed_failures: 30
group_by_os: false
browser:
  driver: chromedp
  flags: ["--disable-gpu", ""]
`), 0o644))

	cfg, err := config.Load(config.WithConfigFile(path))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Match.AllowedFailures)
	assert.False(t, cfg.GroupByOS)
	assert.Equal(t, "chromedp", cfg.Browser.Driver)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())

	_, err := config.Load(config.WithOverrides(map[string]interface{}{"match.threshold": 1.5}))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = config.Load(config.WithOverrides(map[string]interface{}{"window.height": 0}))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestValidateRejectsOverlappingImageDirectories(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())

	for name, overrides := range map[string]map[string]interface{}{
		"tmp equals baseline":  {"images.tmp_directory": "visual-test-output/baseline"},
		"diff equals baseline": {"images.diff_directory": "visual-test-output/baseline/"},
		"tmp inside baseline":  {"images.tmp_directory": "visual-test-output/baseline/tmp"},
		"baseline inside diff": {"images.directory": "visual-test-output/diff/base"},
		"tmp equals diff":      {"images.tmp_directory": "./visual-test-output/diff"},
	} {
		_, err := config.Load(config.WithOverrides(overrides))
		assert.ErrorIs(t, err, config.ErrInvalidConfig, name)
		assert.ErrorContains(t, err, "overlaps", name)
	}

	// siblings sharing a name prefix are fine
	cfg, err := config.Load(config.WithOverrides(map[string]interface{}{
		"images.directory":     "out/base",
		"images.tmp_directory": "out/baseline-tmp",
	}))
	require.NoError(t, err)
	assert.Equal(t, "out/baseline-tmp", cfg.Images.TmpDirectory)
}

func TestDetectOS(t *testing.T) {
	assert.Equal(t, "win", config.DetectOS("windows"))
	assert.Equal(t, "mac", config.DetectOS("darwin"))
	assert.Equal(t, "linux", config.DetectOS("linux"))
}

func TestChromeFlags(t *testing.T) {
	cfg := &config.Config{Browser: config.BrowserConfig{
		Flags: []string{"--disable-gpu", "", "  ", "--enable-logging", "--disable-gpu"},
	}}
	assert.Equal(t, []string{"--disable-gpu", "--enable-logging", "--start-maximized"}, cfg.ChromeFlags())
}
