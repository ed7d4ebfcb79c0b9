package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/martstalk/internal/config"
	"github.com/IshaanNene/martstalk/internal/crawl"
	"github.com/IshaanNene/martstalk/internal/fetcher"
	"github.com/IshaanNene/martstalk/internal/identity"
	"github.com/IshaanNene/martstalk/internal/media"
	"github.com/IshaanNene/martstalk/internal/pipeline"
	"github.com/IshaanNene/martstalk/internal/storage"
)

var (
	cfgFile     string
	verbose     bool
	outputPath  string
	storageType string
	encoding    string
	maxPages    int
	maxItems    int
	concurrent  int
	delay       string
	imagesDir   string
	noImages    bool
	headful     bool
	baseURL     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "martstalk",
		Short: "MartStalk — keyword-driven product crawler",
		Long: `MartStalk crawls marketplace search results for a keyword and exports
every discovered product with its color variations and images.

Features:
  • Real-browser fetching with fingerprint spoofing
  • Per-page proxy identities with upstream provider auth
  • Color variation discovery from embedded page data
  • Concurrent image download and local storage
  • CSV and MongoDB export, cross-run deduplication
  • Adaptive politeness delay with page/item budgets`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(crawlCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// crawlCmd creates the "crawl" subcommand.
func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [keyword]",
		Short: "Crawl search results for a keyword",
		Long:  "Crawl search result pages for the given keyword, visit every product, and export the records.",
		Args:  cobra.ExactArgs(1),
		RunE:  runCrawl,
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output CSV path")
	cmd.Flags().StringVarP(&storageType, "storage", "s", "", "storage backend: csv, mongo, multi")
	cmd.Flags().StringVar(&encoding, "encoding", "", "CSV byte encoding: utf-8, latin-1, windows-1252")
	cmd.Flags().IntVarP(&maxPages, "max-pages", "p", 0, "maximum listing pages to crawl (0 = unlimited)")
	cmd.Flags().IntVarP(&maxItems, "max-items", "m", 0, "maximum records to export (0 = unlimited)")
	cmd.Flags().IntVarP(&concurrent, "concurrency", "n", 0, "number of concurrent workers")
	cmd.Flags().StringVar(&delay, "delay", "", "politeness delay between requests")
	cmd.Flags().StringVar(&imagesDir, "images-dir", "", "directory for downloaded images")
	cmd.Flags().BoolVar(&noImages, "no-images", false, "skip image downloads")
	cmd.Flags().BoolVar(&headful, "headful", false, "run the browser with a visible window")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "marketplace base URL")

	return cmd
}

// runCrawl executes the crawl command.
func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	applyCLIOverrides(cfg)

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg)
	keyword := args[0]

	logger.Info("starting crawl",
		"keyword", keyword,
		"max_pages", cfg.Crawl.MaxPages,
		"max_items", cfg.Crawl.MaxItems,
		"concurrency", cfg.Crawl.Concurrency,
		"storage", cfg.Storage.Type,
		"output", cfg.Storage.OutputPath,
	)

	pool, err := identity.NewPool(cfg.Identity, logger)
	if err != nil {
		return fmt.Errorf("create identity pool: %w", err)
	}

	browser, err := fetcher.NewBrowserFetcher(cfg, logger)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer browser.Close()

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer store.Close()

	state := crawl.NewState(cfg.Crawl.MaxPages, cfg.Crawl.MaxItems)
	if cfg.Storage.PersistSeenIDs {
		if err := preloadSeenIDs(store, state, logger); err != nil {
			logger.Warn("could not preload seen ids", "error", err)
		}
	}

	pipe := pipeline.New(logger)
	pipe.Use(pipeline.NewDedupStage(state, logger))
	if cfg.Images.Enabled {
		imageStore, err := media.NewImageStore(cfg.Images.Dir, fetcher.NewClient(&cfg.Fetcher, logger), logger)
		if err != nil {
			return fmt.Errorf("create image store: %w", err)
		}
		pipe.Use(pipeline.NewImageStage(imageStore, logger))
	}
	pipe.Use(pipeline.NewExportStage(store, logger))

	ctrl, err := crawl.New(cfg, logger, browser, pool, pipe, state)
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, finishing in-flight work...", "signal", sig)
		ctrl.Stop()
		sig = <-sigCh
		logger.Info("received second signal, aborting", "signal", sig)
		cancel()
	}()

	start := time.Now()
	if err := ctrl.Run(ctx, keyword); err != nil {
		return fmt.Errorf("crawl: %w", err)
	}

	elapsed := time.Since(start)
	stats := ctrl.Stats().Snapshot()

	logger.Info("crawl finished",
		"elapsed", elapsed,
		"listings", stats["listings_fetched"],
		"details", stats["details_fetched"],
		"records", stats["records_emitted"],
		"blocked", stats["pages_blocked"],
		"failed", stats["fetches_failed"],
	)

	fmt.Printf("\nCrawl complete in %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("   Pages:    %v listings, %v product pages\n", stats["listings_fetched"], stats["details_fetched"])
	fmt.Printf("   Records:  %v exported, %v dropped\n", stats["records_emitted"], stats["records_dropped"])
	fmt.Printf("   Trouble:  %v blocked, %v failed\n", stats["pages_blocked"], stats["fetches_failed"])
	fmt.Printf("   Output:   %s\n", cfg.Storage.OutputPath)

	return nil
}

// preloadSeenIDs seeds the dedup set from a backend that remembers
// previous runs.
func preloadSeenIDs(store storage.Storage, state *crawl.State, logger *slog.Logger) error {
	loader, ok := store.(interface {
		LoadSeenIDs(ctx context.Context) ([]string, error)
	})
	if !ok {
		logger.Debug("storage backend has no seen-id history", "backend", store.Name())
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ids, err := loader.LoadSeenIDs(ctx)
	if err != nil {
		return err
	}
	state.PreloadSeen(ids)
	logger.Info("seen ids preloaded", "count", len(ids))
	return nil
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("MartStalk %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Crawl:\n")
			fmt.Printf("  Base URL:          %s\n", cfg.Crawl.BaseURL)
			fmt.Printf("  Concurrency:       %d\n", cfg.Crawl.Concurrency)
			fmt.Printf("  Max Pages:         %d\n", cfg.Crawl.MaxPages)
			fmt.Printf("  Max Items:         %d\n", cfg.Crawl.MaxItems)
			fmt.Printf("  Request Timeout:   %s\n", cfg.Crawl.RequestTimeout)
			fmt.Printf("  Download Delay:    %s\n", cfg.Crawl.DownloadDelay)
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  Headless:          %v\n", cfg.Fetcher.Headless)
			fmt.Printf("  Retry Attempts:    %d\n", cfg.Fetcher.RetryAttempts)
			fmt.Printf("  Max Body Size:     %d bytes\n", cfg.Fetcher.MaxBodySize)
			fmt.Printf("\nIdentity:\n")
			fmt.Printf("  Providers:         %d configured\n", len(cfg.Identity.Providers))
			fmt.Printf("  User Agents:       %d configured\n", len(cfg.Identity.UserAgents))
			fmt.Printf("  Locale:            %s\n", cfg.Identity.Locale)
			fmt.Printf("  Timezone:          %s\n", cfg.Identity.Timezone)
			fmt.Printf("\nImages:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Images.Enabled)
			fmt.Printf("  Directory:         %s\n", cfg.Images.Dir)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:              %s\n", cfg.Storage.Type)
			fmt.Printf("  Output Path:       %s\n", cfg.Storage.OutputPath)
			fmt.Printf("  Encoding:          %s\n", cfg.Storage.Encoding)
			fmt.Printf("  Persist Seen IDs:  %v\n", cfg.Storage.PersistSeenIDs)
			return nil
		},
	}
	return cmd
}

// setupLogger creates a structured logger from the logging config.
func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	out := os.Stderr
	if cfg.Logging.Output == "stdout" {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Logging.Format) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	if outputPath != "" {
		cfg.Storage.OutputPath = outputPath
	}
	if storageType != "" {
		cfg.Storage.Type = strings.ToLower(storageType)
	}
	if encoding != "" {
		cfg.Storage.Encoding = strings.ToLower(encoding)
	}
	if maxPages > 0 {
		cfg.Crawl.MaxPages = maxPages
	}
	if maxItems > 0 {
		cfg.Crawl.MaxItems = maxItems
	}
	if concurrent > 0 {
		cfg.Crawl.Concurrency = concurrent
	}
	if delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			cfg.Crawl.DownloadDelay = d
		}
	}
	if imagesDir != "" {
		cfg.Images.Dir = imagesDir
	}
	if noImages {
		cfg.Images.Enabled = false
	}
	if headful {
		cfg.Fetcher.Headless = false
	}
	if baseURL != "" {
		cfg.Crawl.BaseURL = baseURL
	}
}
