package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values. Selectors are not
// compiled here; a bad selector degrades to "no match" at run time.
func Validate(cfg *Config) error {
	if cfg.Scrape.MaxPages < 1 {
		return fmt.Errorf("scrape.max_pages must be >= 1, got %d", cfg.Scrape.MaxPages)
	}
	if cfg.Scrape.Wait < 0 {
		return fmt.Errorf("scrape.wait must be >= 0")
	}
	if cfg.Scrape.ChangeTimeout <= 0 {
		return fmt.Errorf("scrape.change_timeout must be > 0")
	}
	if cfg.Scrape.PollInterval <= 0 {
		return fmt.Errorf("scrape.poll_interval must be > 0")
	}
	if cfg.Scrape.PollInterval > cfg.Scrape.ChangeTimeout {
		return fmt.Errorf("scrape.poll_interval (%s) must not exceed scrape.change_timeout (%s)",
			cfg.Scrape.PollInterval, cfg.Scrape.ChangeTimeout)
	}
	if cfg.Scrape.Preset != "" && cfg.Scrape.Preset != "none" {
		if _, ok := Presets[cfg.Scrape.Preset]; !ok {
			return fmt.Errorf("scrape.preset %q is not a known preset", cfg.Scrape.Preset)
		}
	}

	if cfg.Fetcher.Type != "http" && cfg.Fetcher.Type != "browser" {
		return fmt.Errorf("fetcher.type must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}
	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}
	if cfg.Fetcher.RateLimit < 0 {
		return fmt.Errorf("fetcher.rate_limit must be >= 0, got %g", cfg.Fetcher.RateLimit)
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	if cfg.Export.Fallback != "stdout" && cfg.Export.Fallback != "none" {
		return fmt.Errorf("export.fallback must be 'stdout' or 'none', got %q", cfg.Export.Fallback)
	}
	if cfg.Export.Mongo.URI != "" {
		if cfg.Export.Mongo.Database == "" || cfg.Export.Mongo.Collection == "" {
			return fmt.Errorf("export.mongo.database and export.mongo.collection are required with export.mongo.uri")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks if a URL string is valid for scraping.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
