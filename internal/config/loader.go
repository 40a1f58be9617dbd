package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. REVIEWGOAT_SCRAPE_MAX_PAGES.
const EnvPrefix = "REVIEWGOAT"

// Load reads configuration from file, environment, and defaults.
// Priority (highest to lowest): env vars > config file > defaults. CLI flags
// are applied on top by the caller.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("reviewgoat")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".reviewgoat"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper. Every key must be
// registered for AutomaticEnv to reach it during Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("scrape.url", cfg.Scrape.URL)
	v.SetDefault("scrape.preset", cfg.Scrape.Preset)
	v.SetDefault("scrape.item_selector", cfg.Scrape.ItemSelector)
	v.SetDefault("scrape.fields.user", cfg.Scrape.Fields.User)
	v.SetDefault("scrape.fields.date", cfg.Scrape.Fields.Date)
	v.SetDefault("scrape.fields.rating", cfg.Scrape.Fields.Rating)
	v.SetDefault("scrape.fields.title", cfg.Scrape.Fields.Title)
	v.SetDefault("scrape.fields.content", cfg.Scrape.Fields.Content)
	v.SetDefault("scrape.next_selector", cfg.Scrape.NextSelector)
	v.SetDefault("scrape.max_pages", cfg.Scrape.MaxPages)
	v.SetDefault("scrape.wait", cfg.Scrape.Wait)
	v.SetDefault("scrape.change_timeout", cfg.Scrape.ChangeTimeout)
	v.SetDefault("scrape.poll_interval", cfg.Scrape.PollInterval)
	v.SetDefault("scrape.only_current_page", cfg.Scrape.OnlyCurrentPage)

	v.SetDefault("fetcher.type", cfg.Fetcher.Type)
	v.SetDefault("fetcher.request_timeout", cfg.Fetcher.RequestTimeout)
	v.SetDefault("fetcher.rate_limit", cfg.Fetcher.RateLimit)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.tls_insecure", cfg.Fetcher.TLSInsecure)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.user_agents", cfg.Fetcher.UserAgents)
	v.SetDefault("fetcher.headless", cfg.Fetcher.Headless)
	v.SetDefault("fetcher.stealth", cfg.Fetcher.Stealth)
	v.SetDefault("fetcher.control_url", cfg.Fetcher.ControlURL)

	v.SetDefault("export.output_dir", cfg.Export.OutputDir)
	v.SetDefault("export.filename_prefix", cfg.Export.FilenamePrefix)
	v.SetDefault("export.fallback", cfg.Export.Fallback)
	v.SetDefault("export.jsonl_path", cfg.Export.JSONLPath)
	v.SetDefault("export.mongo.uri", cfg.Export.Mongo.URI)
	v.SetDefault("export.mongo.database", cfg.Export.Mongo.Database)
	v.SetDefault("export.mongo.collection", cfg.Export.Mongo.Collection)
	v.SetDefault("export.mongo.timeout", cfg.Export.Mongo.Timeout)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
