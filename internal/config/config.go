package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"icsanon/internal/output"
)

const (
	DefaultOutput          = "./output.ics"
	DefaultReplacementText = "Unavailable"
	DefaultTimeout         = 10 * time.Second
	DefaultRetries         = 3
	DefaultBackoff         = 0.5
	DefaultLogFormat       = "text"
)

// ErrNoSource is returned by Validate when no feed URL is configured.
var ErrNoSource = errors.New("source URL is required")

// PublishConfig enables uploading the result to a WebDAV server.
type PublishConfig struct {
	URL      string `yaml:"url" json:"url"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// BasicAuthConfig guards the HTTP server. Empty username or password
// disables auth.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Source is the ICS feed to anonymize.
	Source string `yaml:"source" json:"source"`

	// Output is the path the anonymized calendar is written to.
	Output string `yaml:"output" json:"output"`

	// Summary and Description replace every event's text.
	Summary     string `yaml:"summary" json:"summary"`
	Description string `yaml:"description" json:"description"`

	// HTTP fetch behavior. Retries counts retries after the first attempt;
	// Backoff is the base delay in seconds, doubled on each retry.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	Retries int           `yaml:"retries" json:"retries"`
	Backoff float64       `yaml:"backoff" json:"backoff"`

	// KeepLocation keeps LOCATION instead of clearing it.
	KeepLocation bool `yaml:"keep_location" json:"keep_location"`

	// MergeStays replaces all events with merged all-day busy blocks.
	MergeStays bool `yaml:"merge_stays" json:"merge_stays"`

	// RecurrenceAwarePrune keeps old recurring events whose rule is still
	// producing occurrences.
	RecurrenceAwarePrune bool `yaml:"recurrence_aware_prune" json:"recurrence_aware_prune"`

	// Verbosity mirrors the -v counter: 0 warn, 1 info, 2+ debug.
	// LogLevel, when set, takes precedence.
	Verbosity int    `yaml:"verbosity" json:"verbosity"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `yaml:"log_format" json:"log_format"`

	// CacheDir enables ETag / Last-Modified revalidation when non-empty.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Schedule is a standard 5-field cron expression. Empty runs once.
	Schedule string `yaml:"schedule" json:"schedule"`

	// MetricsFile, if set, receives Prometheus text metrics after each run.
	MetricsFile string `yaml:"metrics_file" json:"metrics_file"`

	// Publish, if non-nil with a URL, uploads the output after writing it.
	Publish *PublishConfig `yaml:"publish,omitempty" json:"publish,omitempty"`

	// Listen is the HTTP bind address (e.g. ":8080") used in watch mode to
	// serve the latest output. Empty disables the server.
	Listen    string           `yaml:"listen" json:"listen"`
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Output:      DefaultOutput,
		Summary:     DefaultReplacementText,
		Description: DefaultReplacementText,
		Timeout:     DefaultTimeout,
		Retries:     DefaultRetries,
		Backoff:     DefaultBackoff,
		LogFormat:   DefaultLogFormat,
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled config files still behave.
func (c *Config) Normalize() {
	c.Source = strings.TrimSpace(c.Source)
	if c.Output == "" {
		c.Output = DefaultOutput
	}
	if c.Summary == "" {
		c.Summary = DefaultReplacementText
	}
	if c.Description == "" {
		c.Description = DefaultReplacementText
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retries < 0 {
		c.Retries = DefaultRetries
	}
	if c.Backoff < 0 {
		c.Backoff = DefaultBackoff
	}
	if c.Verbosity < 0 {
		c.Verbosity = 0
	}
	switch strings.ToLower(c.LogFormat) {
	case "json":
		c.LogFormat = "json"
	default:
		c.LogFormat = DefaultLogFormat
	}
	if c.Publish != nil && strings.TrimSpace(c.Publish.URL) == "" {
		c.Publish = nil
	}
	c.Listen = strings.TrimSpace(c.Listen)
}

// Validate reports configuration that cannot run. ErrNoSource is returned
// unwrapped so callers can pick a distinct exit status.
func (c *Config) Validate() error {
	if c.Source == "" {
		return ErrNoSource
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
		}
	}
	if c.Listen != "" && c.Schedule == "" {
		return errors.New("listen requires a schedule")
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML over the defaults
//   - normalize
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg to path as YAML, atomically and with 0600 permissions
// since it may hold publish credentials.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return output.WriteAtomic(path, data, 0o600)
}

// Save is a convenience method on Config that delegates to Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
