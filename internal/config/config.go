package config

import (
	"strings"
	"time"

	"github.com/IshaanNene/ReviewGoat/internal/extract"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Scrape defaults applied by Normalize.
const (
	DefaultMaxPages      = 20
	DefaultWait          = 1 * time.Second
	DefaultChangeTimeout = 8 * time.Second
	DefaultPollInterval  = 300 * time.Millisecond
)

// Config is the root configuration for ReviewGoat.
type Config struct {
	Scrape  ScrapeConfig  `mapstructure:"scrape"  yaml:"scrape"`
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Export  ExportConfig  `mapstructure:"export"  yaml:"export"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// ScrapeConfig describes one scrape run. Field selectors are evaluated
// relative to a single item container; ItemSelector and NextSelector are
// document-scoped.
type ScrapeConfig struct {
	URL             string                 `mapstructure:"url"               yaml:"url"`
	Preset          string                 `mapstructure:"preset"            yaml:"preset"`
	ItemSelector    string                 `mapstructure:"item_selector"     yaml:"item_selector"`
	Fields          extract.FieldSelectors `mapstructure:"fields"            yaml:"fields"`
	NextSelector    string                 `mapstructure:"next_selector"     yaml:"next_selector"`
	MaxPages        int                    `mapstructure:"max_pages"         yaml:"max_pages"`
	Wait            time.Duration          `mapstructure:"wait"              yaml:"wait"`
	ChangeTimeout   time.Duration          `mapstructure:"change_timeout"    yaml:"change_timeout"`
	PollInterval    time.Duration          `mapstructure:"poll_interval"     yaml:"poll_interval"`
	OnlyCurrentPage bool                   `mapstructure:"only_current_page" yaml:"only_current_page"`
}

// Normalize trims every selector and replaces non-positive limits with
// their defaults.
func (s *ScrapeConfig) Normalize() {
	s.URL = strings.TrimSpace(s.URL)
	s.Preset = strings.ToLower(strings.TrimSpace(s.Preset))
	s.ItemSelector = strings.TrimSpace(s.ItemSelector)
	s.NextSelector = strings.TrimSpace(s.NextSelector)
	s.Fields = s.Fields.Trimmed()

	if s.MaxPages <= 0 {
		s.MaxPages = DefaultMaxPages
	}
	if s.Wait <= 0 {
		s.Wait = DefaultWait
	}
	if s.ChangeTimeout <= 0 {
		s.ChangeTimeout = DefaultChangeTimeout
	}
	if s.PollInterval <= 0 {
		s.PollInterval = DefaultPollInterval
	}
}

// FetcherConfig controls the page drivers.
type FetcherConfig struct {
	Type            string        `mapstructure:"type"              yaml:"type"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"        yaml:"rate_limit"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`
	Headless        bool          `mapstructure:"headless"          yaml:"headless"`
	Stealth         bool          `mapstructure:"stealth"           yaml:"stealth"`
	ControlURL      string        `mapstructure:"control_url"       yaml:"control_url"`
}

// ExportConfig controls where a finished run is delivered.
type ExportConfig struct {
	OutputDir      string      `mapstructure:"output_dir"      yaml:"output_dir"`
	FilenamePrefix string      `mapstructure:"filename_prefix" yaml:"filename_prefix"`
	Fallback       string      `mapstructure:"fallback"        yaml:"fallback"`
	JSONLPath      string      `mapstructure:"jsonl_path"      yaml:"jsonl_path"`
	Mongo          MongoConfig `mapstructure:"mongo"           yaml:"mongo"`
}

// MongoConfig configures the optional MongoDB record sink.
type MongoConfig struct {
	URI        string        `mapstructure:"uri"        yaml:"uri"`
	Database   string        `mapstructure:"database"   yaml:"database"`
	Collection string        `mapstructure:"collection" yaml:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"    yaml:"timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Scrape: ScrapeConfig{
			MaxPages:      DefaultMaxPages,
			Wait:          DefaultWait,
			ChangeTimeout: DefaultChangeTimeout,
			PollInterval:  DefaultPollInterval,
		},
		Fetcher: FetcherConfig{
			Type:            "http",
			RequestTimeout:  30 * time.Second,
			RateLimit:       1,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			MaxRedirects:    10,
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    10,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			Headless: false,
			Stealth:  true,
		},
		Export: ExportConfig{
			OutputDir:      ".",
			FilenamePrefix: "reviews",
			Fallback:       "stdout",
			Mongo: MongoConfig{
				Database:   "reviewgoat",
				Collection: "reviews",
				Timeout:    10 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
