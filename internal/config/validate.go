package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Crawl.Concurrency < 1 {
		return fmt.Errorf("crawl.concurrency must be >= 1, got %d", cfg.Crawl.Concurrency)
	}
	if cfg.Crawl.Concurrency > 64 {
		return fmt.Errorf("crawl.concurrency must be <= 64, got %d", cfg.Crawl.Concurrency)
	}
	if cfg.Crawl.MaxPages < 0 {
		return fmt.Errorf("crawl.max_pages must be >= 0, got %d", cfg.Crawl.MaxPages)
	}
	if cfg.Crawl.MaxItems < 0 {
		return fmt.Errorf("crawl.max_items must be >= 0, got %d", cfg.Crawl.MaxItems)
	}
	if cfg.Crawl.RequestTimeout <= 0 {
		return fmt.Errorf("crawl.request_timeout must be > 0")
	}
	if cfg.Crawl.SelectorTimeout <= 0 {
		return fmt.Errorf("crawl.selector_timeout must be > 0")
	}
	if cfg.Crawl.DownloadDelay < 0 {
		return fmt.Errorf("crawl.download_delay must be >= 0")
	}
	if cfg.Crawl.MaxDelay > 0 && cfg.Crawl.MaxDelay < cfg.Crawl.DownloadDelay {
		return fmt.Errorf("crawl.max_delay must be >= crawl.download_delay")
	}
	if err := ValidateURL(cfg.Crawl.BaseURL); err != nil {
		return fmt.Errorf("invalid crawl.base_url: %w", err)
	}

	if cfg.Fetcher.RetryAttempts < 0 {
		return fmt.Errorf("fetcher.retry_attempts must be >= 0, got %d", cfg.Fetcher.RetryAttempts)
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}

	for i, p := range cfg.Identity.Providers {
		if !p.Enabled {
			continue
		}
		if p.Name == "" {
			return fmt.Errorf("identity.providers[%d]: name is required", i)
		}
		if len(p.Endpoints) == 0 {
			return fmt.Errorf("identity.providers[%d] (%s): at least one endpoint required", i, p.Name)
		}
		for _, ep := range p.Endpoints {
			if strings.TrimSpace(ep) == "" {
				return fmt.Errorf("identity.providers[%d] (%s): empty endpoint", i, p.Name)
			}
		}
	}

	switch cfg.Storage.Type {
	case "csv":
	case "mongo", "multi":
		if cfg.Storage.MongoURI == "" {
			return fmt.Errorf("storage.mongo_uri is required for storage.type %q", cfg.Storage.Type)
		}
	default:
		return fmt.Errorf("storage.type %q is not supported (valid: csv, mongo, multi)", cfg.Storage.Type)
	}

	switch strings.ToLower(cfg.Storage.Encoding) {
	case "", "utf-8", "utf8", "latin-1", "latin1", "iso-8859-1", "windows-1252", "cp1252":
	default:
		return fmt.Errorf("storage.encoding %q is not supported", cfg.Storage.Encoding)
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

	return nil
}

// ValidateURL checks if a URL string is valid for crawling.
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
