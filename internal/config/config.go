package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for martstalk.
type Config struct {
	Crawl    CrawlConfig    `mapstructure:"crawl"    yaml:"crawl"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"  yaml:"fetcher"`
	Identity IdentityConfig `mapstructure:"identity" yaml:"identity"`
	Images   ImagesConfig   `mapstructure:"images"   yaml:"images"`
	Storage  StorageConfig  `mapstructure:"storage"  yaml:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
}

// CrawlConfig controls the crawl controller.
type CrawlConfig struct {
	BaseURL         string        `mapstructure:"base_url"         yaml:"base_url"`
	Concurrency     int           `mapstructure:"concurrency"      yaml:"concurrency"`
	MaxPages        int           `mapstructure:"max_pages"        yaml:"max_pages"`  // 0 = unlimited
	MaxItems        int           `mapstructure:"max_items"        yaml:"max_items"`  // 0 = unlimited
	RequestTimeout  time.Duration `mapstructure:"request_timeout"  yaml:"request_timeout"`
	SelectorTimeout time.Duration `mapstructure:"selector_timeout" yaml:"selector_timeout"`
	DownloadDelay   time.Duration `mapstructure:"download_delay"   yaml:"download_delay"` // throttle floor
	MaxDelay        time.Duration `mapstructure:"max_delay"        yaml:"max_delay"`
	DiagnosticsDir  string        `mapstructure:"diagnostics_dir"  yaml:"diagnostics_dir"`
}

// FetcherConfig controls page rendering and the image HTTP client.
type FetcherConfig struct {
	Headless         bool          `mapstructure:"headless"           yaml:"headless"`
	RetryAttempts    int           `mapstructure:"retry_attempts"     yaml:"retry_attempts"`
	RetryStatusCodes []int         `mapstructure:"retry_status_codes" yaml:"retry_status_codes"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"        yaml:"retry_delay"`
	MaxBodySize      int64         `mapstructure:"max_body_size"      yaml:"max_body_size"`
	TLSInsecure      bool          `mapstructure:"tls_insecure"       yaml:"tls_insecure"`
}

// IdentityConfig controls proxy providers and browser fingerprints.
type IdentityConfig struct {
	Providers          []ProviderConfig `mapstructure:"providers"           yaml:"providers"`
	UserAgents         []string         `mapstructure:"user_agents"          yaml:"user_agents"`
	Locale             string           `mapstructure:"locale"               yaml:"locale"`
	Timezone           string           `mapstructure:"timezone"             yaml:"timezone"`
	DisableGeolocation bool             `mapstructure:"disable_geolocation"  yaml:"disable_geolocation"`
	ViewportWidth      int              `mapstructure:"viewport_width"       yaml:"viewport_width"`
	ViewportHeight     int              `mapstructure:"viewport_height"      yaml:"viewport_height"`
}

// ProviderConfig describes one proxy provider and its endpoints.
type ProviderConfig struct {
	Name      string            `mapstructure:"name"      yaml:"name"`
	Enabled   bool              `mapstructure:"enabled"   yaml:"enabled"`
	Endpoints []string          `mapstructure:"endpoints" yaml:"endpoints"`
	Username  string            `mapstructure:"username"  yaml:"username"`
	Password  string            `mapstructure:"password"  yaml:"password"`
	Headers   map[string]string `mapstructure:"headers"   yaml:"headers"`
}

// ImagesConfig controls image downloading.
type ImagesConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir"     yaml:"dir"`
}

// StorageConfig controls record export.
type StorageConfig struct {
	Type            string   `mapstructure:"type"             yaml:"type"` // csv, mongo, multi
	OutputPath      string   `mapstructure:"output_path"      yaml:"output_path"`
	Columns         []string `mapstructure:"columns"          yaml:"columns"`
	IncludeHeader   bool     `mapstructure:"include_header"   yaml:"include_header"`
	Encoding        string   `mapstructure:"encoding"         yaml:"encoding"` // utf-8, latin-1, windows-1252
	MongoURI        string   `mapstructure:"mongo_uri"        yaml:"mongo_uri"`
	MongoDatabase   string   `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string   `mapstructure:"mongo_collection" yaml:"mongo_collection"`
	PersistSeenIDs  bool     `mapstructure:"persist_seen_ids" yaml:"persist_seen_ids"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Crawl: CrawlConfig{
			BaseURL:         "https://www.amazon.com",
			Concurrency:     4,
			MaxPages:        0,
			MaxItems:        0,
			RequestTimeout:  60 * time.Second,
			SelectorTimeout: 10 * time.Second,
			DownloadDelay:   2 * time.Second,
			MaxDelay:        30 * time.Second,
			DiagnosticsDir:  "./output/diagnostics",
		},
		Fetcher: FetcherConfig{
			Headless:         true,
			RetryAttempts:    5,
			RetryStatusCodes: []int{500, 502, 503, 504, 522, 524, 408, 429, 403, 407},
			RetryDelay:       2 * time.Second,
			MaxBodySize:      20 * 1024 * 1024, // 20MB
		},
		Identity: IdentityConfig{
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			Locale:             "en-US",
			Timezone:           "America/New_York",
			DisableGeolocation: true,
			ViewportWidth:      1920,
			ViewportHeight:     1080,
		},
		Images: ImagesConfig{
			Enabled: true,
			Dir:     "./output/images",
		},
		Storage: StorageConfig{
			Type:            "csv",
			OutputPath:      "./output/products.csv",
			IncludeHeader:   true,
			Encoding:        "utf-8",
			MongoDatabase:   "martstalk",
			MongoCollection: "products",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}
