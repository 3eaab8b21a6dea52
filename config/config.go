package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Names of the markers shared by the capture engine and the client helper.
const (
	ReadySelector    = "#visual-test-has-loaded"
	ReadyElementID   = "visual-test-has-loaded"
	CaptureModeClass = "visual-test-capture-mode"
	PageLoadedEvent  = "pageLoaded"
)

// Config is the resolved visual-test configuration. It is built once per
// process and must not be mutated afterwards.
type Config struct {
	Server       ServerConfig  `yaml:"server"`
	Images       ImagesConfig  `yaml:"images"`
	Match        MatchConfig   `yaml:"match"`
	GroupByOS    bool          `yaml:"group_by_os"`
	OS           string        `yaml:"os"`
	Window       WindowConfig  `yaml:"window"`
	ForceRebuild bool          `yaml:"force_rebuild"`
	Browser      BrowserConfig `yaml:"browser"`
	Logging      LoggingConfig `yaml:"logging"`
	Reclaim      ReclaimConfig `yaml:"reclaim"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port int `yaml:"port"`
}

// ImagesConfig holds the artifact directories
type ImagesConfig struct {
	Directory     string `yaml:"directory"`
	DiffDirectory string `yaml:"diff_directory"`
	TmpDirectory  string `yaml:"tmp_directory"`
}

// MatchConfig holds the comparator settings
type MatchConfig struct {
	// Threshold is the per-pixel color distance tolerance, 0..1
	Threshold float64 `yaml:"threshold"`
	// AllowedFailures is the number of differing pixels still considered a pass
	AllowedFailures int `yaml:"allowed_failures"`
	// IncludeAA counts anti-aliased pixels as differences when true
	IncludeAA bool `yaml:"include_aa"`
}

// WindowConfig is the default viewport
type WindowConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// BrowserConfig holds browser launch settings
type BrowserConfig struct {
	Driver            string        `yaml:"driver"`
	Port              int           `yaml:"port"`
	NoSandbox         bool          `yaml:"no_sandbox"`
	Flags             []string      `yaml:"flags"`
	ReadyTimeout      time.Duration `yaml:"ready_timeout"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
}

// LoggingConfig toggles the optional log streams
type LoggingConfig struct {
	Image bool `yaml:"image"`
	Debug bool `yaml:"debug"`
}

// ReclaimConfig controls scheduled cleanup of temp and diff images
type ReclaimConfig struct {
	Schedule string        `yaml:"schedule"`
	MaxAge   time.Duration `yaml:"max_age"`
}

// Option customises Load
type Option func(*loader)

type loader struct {
	configFile string
	overrides  map[string]interface{}
	goos       string
}

// WithConfigFile reads the given yaml file instead of searching the default paths
func WithConfigFile(path string) Option {
	return func(l *loader) { l.configFile = path }
}

// WithOverrides replaces built-in defaults, the way application options do.
// Config files and environment variables still take precedence.
func WithOverrides(values map[string]interface{}) Option {
	return func(l *loader) {
		for k, val := range values {
			l.overrides[k] = val
		}
	}
}

// WithGOOS pins the operating system used for the OS tag
func WithGOOS(goos string) Option {
	return func(l *loader) { l.goos = goos }
}

var (
	instance    *Config
	instanceErr error
	instanceMu  sync.Mutex
)

// GetInstance returns the process-wide configuration, loading it on first use.
func GetInstance() *Config {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil && instanceErr == nil {
		instance, instanceErr = Load()
	}
	if instanceErr != nil {
		panic(fmt.Sprintf("Fatal error loading configuration: %s", instanceErr))
	}
	return instance
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 7357)
	v.SetDefault("images.directory", "visual-test-output/baseline")
	v.SetDefault("images.diff_directory", "visual-test-output/diff")
	v.SetDefault("images.tmp_directory", "visual-test-output/tmp")
	v.SetDefault("match.threshold", 0.3)
	v.SetDefault("match.allowed_failures", 0)
	v.SetDefault("match.include_aa", true)
	v.SetDefault("group_by_os", true)
	v.SetDefault("window.width", 1024)
	v.SetDefault("window.height", 768)
	v.SetDefault("browser.driver", "playwright")
	v.SetDefault("browser.port", 0)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.flags", []string{})
	v.SetDefault("browser.ready_timeout", 30*time.Second)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("logging.image", false)
	v.SetDefault("logging.debug", false)
	v.SetDefault("reclaim.schedule", "0 3 * * *")
	v.SetDefault("reclaim.max_age", 7*24*time.Hour)
}

// Load resolves defaults, overrides, the optional config file and the
// environment into a new Config. The environment always wins.
func Load(opts ...Option) (*Config, error) {
	l := &loader{overrides: make(map[string]interface{}), goos: runtime.GOOS}
	for _, opt := range opts {
		opt(l)
	}

	v := viper.New()
	setDefaults(v)
	for key, val := range l.overrides {
		v.SetDefault(key, val)
	}

	// Environment variables
	v.SetEnvPrefix("VISUAL_TEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("server.port", "VISUAL_TEST_SERVER_PORT", "PORT")
	_ = v.BindEnv("ci", "CI")
	_ = v.BindEnv("force_rebuild", "FORCE_BUILD_VISUAL_TEST_IMAGES")

	// Config file
	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	} else {
		v.SetConfigName("visual-test")
		v.SetConfigType("yaml")
		for _, path := range []string{".", "$HOME/.visual-test", "/etc/visual-test"} {
			v.AddConfigPath(os.ExpandEnv(path))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found; use defaults
		}
	}

	cfg := &Config{
		Server: ServerConfig{Port: v.GetInt("server.port")},
		Images: ImagesConfig{
			Directory:     v.GetString("images.directory"),
			DiffDirectory: v.GetString("images.diff_directory"),
			TmpDirectory:  v.GetString("images.tmp_directory"),
		},
		Match: MatchConfig{
			Threshold:       v.GetFloat64("match.threshold"),
			AllowedFailures: v.GetInt("match.allowed_failures"),
			IncludeAA:       v.GetBool("match.include_aa"),
		},
		GroupByOS: v.GetBool("group_by_os"),
		OS:        DetectOS(l.goos),
		Window: WindowConfig{
			Width:  v.GetInt("window.width"),
			Height: v.GetInt("window.height"),
		},
		// Any non-empty value counts, like a truthy env var.
		ForceRebuild: v.GetString("force_rebuild") != "" && v.GetString("force_rebuild") != "false",
		Browser: BrowserConfig{
			Driver:            v.GetString("browser.driver"),
			Port:              v.GetInt("browser.port"),
			NoSandbox:         v.GetBool("browser.no_sandbox"),
			Flags:             v.GetStringSlice("browser.flags"),
			ReadyTimeout:      v.GetDuration("browser.ready_timeout"),
			NavigationTimeout: v.GetDuration("browser.navigation_timeout"),
		},
		Logging: LoggingConfig{
			Image: v.GetBool("logging.image"),
			Debug: v.GetBool("logging.debug"),
		},
		Reclaim: ReclaimConfig{
			Schedule: v.GetString("reclaim.schedule"),
			MaxAge:   v.GetDuration("reclaim.max_age"),
		},
	}
	if v.GetString("ci") != "" {
		cfg.Browser.NoSandbox = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid visual-test configuration")

// Validate checks the ranges of the resolved values
func (c *Config) Validate() error {
	switch {
	case c.Match.Threshold < 0 || c.Match.Threshold > 1:
		return fmt.Errorf("%w: match threshold %v is outside [0,1]", ErrInvalidConfig, c.Match.Threshold)
	case c.Match.AllowedFailures < 0:
		return fmt.Errorf("%w: allowed failures must not be negative", ErrInvalidConfig)
	case c.Window.Width <= 0 || c.Window.Height <= 0:
		return fmt.Errorf("%w: window size %dx%d", ErrInvalidConfig, c.Window.Width, c.Window.Height)
	case c.Images.Directory == "" || c.Images.DiffDirectory == "" || c.Images.TmpDirectory == "":
		return fmt.Errorf("%w: image directories must be set", ErrInvalidConfig)
	case c.Browser.ReadyTimeout <= 0:
		return fmt.Errorf("%w: ready timeout must be positive", ErrInvalidConfig)
	}
	return c.validateDirectories()
}

// validateDirectories rejects image directories that are equal or nested.
// Temp writes would otherwise replace baselines and reclaim would delete them.
func (c *Config) validateDirectories() error {
	dirs := []struct {
		key  string
		path string
	}{
		{"images.directory", c.Images.Directory},
		{"images.diff_directory", c.Images.DiffDirectory},
		{"images.tmp_directory", c.Images.TmpDirectory},
	}
	for i := range dirs {
		for j := i + 1; j < len(dirs); j++ {
			if overlaps(dirs[i].path, dirs[j].path) {
				return fmt.Errorf("%w: %s %q overlaps %s %q", ErrInvalidConfig,
					dirs[i].key, dirs[i].path, dirs[j].key, dirs[j].path)
			}
		}
	}
	return nil
}

func overlaps(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		absA, absB = filepath.Clean(a), filepath.Clean(b)
	}
	return absA == absB || within(absA, absB) || within(absB, absA)
}

// within reports whether child is below parent
func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// DetectOS maps a GOOS value to the tag used to group baselines
func DetectOS(goos string) string {
	switch goos {
	case "windows":
		return "win"
	case "darwin":
		return "mac"
	default:
		return strings.ToLower(goos)
	}
}

// ChromeFlags returns the browser launch flags: non-empty entries only,
// always including --enable-logging and --start-maximized once.
func (c *Config) ChromeFlags() []string {
	flags := make([]string, 0, len(c.Browser.Flags)+2)
	seen := make(map[string]bool)
	for _, flag := range c.Browser.Flags {
		flag = strings.TrimSpace(flag)
		if flag == "" || seen[flag] {
			continue
		}
		seen[flag] = true
		flags = append(flags, flag)
	}
	for _, required := range []string{"--enable-logging", "--start-maximized"} {
		if !seen[required] {
			flags = append(flags, required)
		}
	}
	return flags
}
