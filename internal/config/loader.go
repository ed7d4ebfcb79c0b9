package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults from struct
	setDefaults(v, cfg)

	// Environment variable support
	v.SetEnvPrefix("MARTSTALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search default locations
		v.SetConfigName("martstalk")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".martstalk"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("crawl.base_url", cfg.Crawl.BaseURL)
	v.SetDefault("crawl.concurrency", cfg.Crawl.Concurrency)
	v.SetDefault("crawl.max_pages", cfg.Crawl.MaxPages)
	v.SetDefault("crawl.max_items", cfg.Crawl.MaxItems)
	v.SetDefault("crawl.request_timeout", cfg.Crawl.RequestTimeout)
	v.SetDefault("crawl.selector_timeout", cfg.Crawl.SelectorTimeout)
	v.SetDefault("crawl.download_delay", cfg.Crawl.DownloadDelay)
	v.SetDefault("crawl.max_delay", cfg.Crawl.MaxDelay)
	v.SetDefault("crawl.diagnostics_dir", cfg.Crawl.DiagnosticsDir)

	v.SetDefault("fetcher.headless", cfg.Fetcher.Headless)
	v.SetDefault("fetcher.retry_attempts", cfg.Fetcher.RetryAttempts)
	v.SetDefault("fetcher.retry_status_codes", cfg.Fetcher.RetryStatusCodes)
	v.SetDefault("fetcher.retry_delay", cfg.Fetcher.RetryDelay)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)

	v.SetDefault("identity.user_agents", cfg.Identity.UserAgents)
	v.SetDefault("identity.locale", cfg.Identity.Locale)
	v.SetDefault("identity.timezone", cfg.Identity.Timezone)
	v.SetDefault("identity.disable_geolocation", cfg.Identity.DisableGeolocation)
	v.SetDefault("identity.viewport_width", cfg.Identity.ViewportWidth)
	v.SetDefault("identity.viewport_height", cfg.Identity.ViewportHeight)

	v.SetDefault("images.enabled", cfg.Images.Enabled)
	v.SetDefault("images.dir", cfg.Images.Dir)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.include_header", cfg.Storage.IncludeHeader)
	v.SetDefault("storage.encoding", cfg.Storage.Encoding)
	v.SetDefault("storage.mongo_database", cfg.Storage.MongoDatabase)
	v.SetDefault("storage.mongo_collection", cfg.Storage.MongoCollection)
	v.SetDefault("storage.persist_seen_ids", cfg.Storage.PersistSeenIDs)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)
}
