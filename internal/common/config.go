package common

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Source  SourceConfig  `toml:"source" validate:"required"`
	Browser BrowserConfig `toml:"browser"`
	Scroll  ScrollConfig  `toml:"scroll"`
	Filter  FilterConfig  `toml:"filter"`
	Workers WorkersConfig `toml:"workers"`
	Storage StorageConfig `toml:"storage"`
	Vision  VisionConfig  `toml:"vision"`
	Logging LoggingConfig `toml:"logging"`
}

// SourceConfig identifies the feed to archive and how posts are discovered.
type SourceConfig struct {
	URL string `toml:"url" validate:"required,url"`
	// Mode selects the discovery strategy: "network" (intercept API
	// responses), "dom" (read rendered elements), or "auto" (network plus
	// DOM polling on each tick).
	Mode string `toml:"mode" validate:"oneof=auto dom network"`
	// PostSelector overrides the default post container selector for the
	// DOM strategy.
	PostSelector string `toml:"post_selector"`
	// APIPathMarkers are URL substrings that qualify a network response
	// for inspection.
	APIPathMarkers []string `toml:"api_path_markers"`
	// EndOfFeedMarkers are page text fragments that signal the feed has
	// no further content.
	EndOfFeedMarkers []string `toml:"end_of_feed_markers"`
	// StartDate/EndDate bound the archive window (inclusive, RFC3339 or
	// YYYY-MM-DD).
	StartDate string `toml:"start_date"`
	EndDate   string `toml:"end_date"`
	// Keywords restrict accepted posts to captions containing at least one
	// entry (case insensitive). Empty accepts everything.
	Keywords []string `toml:"keywords"`
	// AuthStateFile points at a TOML file holding session cookies to
	// replay before navigation.
	AuthStateFile string `toml:"auth_state_file"`
}

// BrowserConfig controls the chromedp session.
type BrowserConfig struct {
	Headless        bool          `toml:"headless"`
	UserAgent       string        `toml:"user_agent"`
	NavigateTimeout time.Duration `toml:"navigate_timeout"`
	NoSandbox       bool          `toml:"no_sandbox"`
	DisableGPU      bool          `toml:"disable_gpu"`
}

// ScrollConfig paces the infinite-scroll loop.
type ScrollConfig struct {
	MaxStableTicks  int           `toml:"max_stable_ticks" validate:"min=1"`
	SettleDelay     time.Duration `toml:"settle_delay"`
	QuiesceTimeout  time.Duration `toml:"quiesce_timeout"`
	MaxTicks        int           `toml:"max_ticks"` // 0 = unbounded
	OldPostStreak   int           `toml:"old_post_streak" validate:"min=1"`
	FirstTickWarmup time.Duration `toml:"first_tick_warmup"`
}

// FilterConfig tunes the filter/dedup stage.
type FilterConfig struct {
	// DisableResume skips loading the persisted latest-published checkpoint.
	DisableResume bool `toml:"disable_resume"`
}

// WorkersConfig sizes the ingest pool.
type WorkersConfig struct {
	Count           int           `toml:"count" validate:"min=1"`
	DownloadTimeout time.Duration `toml:"download_timeout"`
	DownloadRate    float64       `toml:"download_rate"` // requests/sec for media fetches
	MaxMediaSize    int64         `toml:"max_media_size"`
}

// StorageConfig locates the datastore and media directory.
type StorageConfig struct {
	Path     string `toml:"path" validate:"required"`
	MediaDir string `toml:"media_dir"`
}

// VisionConfig enables optional image inference.
type VisionConfig struct {
	Enabled   bool   `toml:"enabled"`
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
	Timeout   string `toml:"timeout"`
}

// LoggingConfig controls arbor output.
type LoggingConfig struct {
	Level  string   `toml:"level"`
	Output []string `toml:"output"`
}

// NewDefaultConfig creates a configuration with default values. Technical
// parameters live here; only user-facing settings belong in the TOML file.
func NewDefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Mode:         "auto",
			PostSelector: "article",
			APIPathMarkers: []string{
				"/api/v1/feed", "/graphql/query", "/api/graphql", "timeline",
			},
			EndOfFeedMarkers: []string{
				"You're all caught up", "No more posts", "End of results",
			},
		},
		Browser: BrowserConfig{
			Headless:        true,
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			NavigateTimeout: 60 * time.Second,
			NoSandbox:       true,
			DisableGPU:      true,
		},
		Scroll: ScrollConfig{
			MaxStableTicks:  3,
			SettleDelay:     2 * time.Second,
			QuiesceTimeout:  5 * time.Second,
			OldPostStreak:   3,
			FirstTickWarmup: 3 * time.Second,
		},
		Workers: WorkersConfig{
			Count:           3,
			DownloadTimeout: 30 * time.Second,
			DownloadRate:    2,
			MaxMediaSize:    10 * 1024 * 1024,
		},
		Storage: StorageConfig{
			Path:     "./data/feedvault",
			MediaDir: "./data/media",
		},
		Vision: VisionConfig{
			Model:     "claude-haiku-3-5-20241022",
			MaxTokens: 1024,
			Timeout:   "2m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadConfig reads a TOML config file over the defaults and validates the
// result. An empty path returns validated defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			first := errs[0]
			return fmt.Errorf("invalid configuration: field %s failed %q", first.Namespace(), first.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ParseDateBounds resolves the configured start/end strings into instants.
// Both are optional; an empty string leaves that bound open.
func (c *Config) ParseDateBounds() (start, end time.Time, err error) {
	start, err = parseBound(c.Source.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start_date %q: %w", c.Source.StartDate, err)
	}
	end, err = parseBound(c.Source.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end_date %q: %w", c.Source.EndDate, err)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date %s is before start_date %s", c.Source.EndDate, c.Source.StartDate)
	}
	return start, end, nil
}

func parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Vision.APIKey == "" {
		cfg.Vision.APIKey = key
	}
	if level := os.Getenv("FEEDVAULT_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
	if path := os.Getenv("FEEDVAULT_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}
}
