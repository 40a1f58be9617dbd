package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/ReviewGoat/internal/config"
)

var (
	cfgFile  string
	verbose  bool
	logLevel string
	logFmt   string
)

// scrapeFlags are the per-run overrides shared by run, preview and pick.
type scrapeFlags struct {
	preset       string
	item         string
	user         string
	date         string
	rating       string
	title        string
	content      string
	next         string
	maxPages     int
	wait         string
	onlyCurrent  bool
	driver       string
	headless     bool
	controlURL   string
	rateLimit    float64
	userAgent    string
	outputDir    string
	prefix       string
	noFallback   bool
	jsonlPath    string
	mongoURI     string
	metricsPort  int
	changeWindow string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "reviewgoat",
		Short: "ReviewGoat — paginated review scraper with CSV export",
		Long: `ReviewGoat walks the review pages of a product or company listing,
extracts one record per review card and exports the deduplicated result
as a BOM-prefixed CSV file.

Features:
  • Built-in presets for Trustpilot and Amazon review pages
  • Click-to-pick selector synthesis in a live browser tab
  • Change detection after each page turn (no blind sleeps)
  • Star rating parsing from classes, alt text, attributes and image names
  • CSV export with stdout fallback, plus JSONL and MongoDB record sinks
  • Prometheus metrics endpoint`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFmt, "log-format", "", "log format: text, json")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(previewCmd())
	rootCmd.AddCommand(pickCmd())
	rootCmd.AddCommand(presetsCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ReviewGoat %s\n", config.Version)
		},
	}
}

// presetsCmd lists the built-in site presets.
func presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List built-in site presets",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range config.PresetNames() {
				p := config.Presets[name]
				fmt.Printf("%s (%s)\n", p.Name, strings.Join(p.Hosts, ", "))
				fmt.Printf("  item:    %s\n", p.ItemSelector)
				fmt.Printf("  user:    %s\n", p.Fields.User)
				fmt.Printf("  date:    %s\n", p.Fields.Date)
				fmt.Printf("  rating:  %s\n", p.Fields.Rating)
				fmt.Printf("  title:   %s\n", p.Fields.Title)
				fmt.Printf("  content: %s\n", p.Fields.Content)
				fmt.Printf("  next:    %s\n", p.NextSelector)
			}
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
			fmt.Printf("Scrape:\n")
			fmt.Printf("  URL:               %s\n", cfg.Scrape.URL)
			fmt.Printf("  Preset:            %s\n", orDash(cfg.Scrape.Preset))
			fmt.Printf("  Item Selector:     %s\n", orDash(cfg.Scrape.ItemSelector))
			fmt.Printf("  Next Selector:     %s\n", orDash(cfg.Scrape.NextSelector))
			fmt.Printf("  Max Pages:         %d\n", cfg.Scrape.MaxPages)
			fmt.Printf("  Wait:              %s\n", cfg.Scrape.Wait)
			fmt.Printf("  Change Timeout:    %s\n", cfg.Scrape.ChangeTimeout)
			fmt.Printf("\nFetcher:\n")
			fmt.Printf("  Type:              %s\n", cfg.Fetcher.Type)
			fmt.Printf("  Request Timeout:   %s\n", cfg.Fetcher.RequestTimeout)
			fmt.Printf("  Rate Limit:        %.2f req/s\n", cfg.Fetcher.RateLimit)
			fmt.Printf("  Headless:          %v\n", cfg.Fetcher.Headless)
			fmt.Printf("  Stealth:           %v\n", cfg.Fetcher.Stealth)
			fmt.Printf("  User Agents:       %d configured\n", len(cfg.Fetcher.UserAgents))
			fmt.Printf("\nExport:\n")
			fmt.Printf("  Output Dir:        %s\n", cfg.Export.OutputDir)
			fmt.Printf("  Filename Prefix:   %s\n", cfg.Export.FilenamePrefix)
			fmt.Printf("  Fallback:          %s\n", cfg.Export.Fallback)
			fmt.Printf("  JSONL Sink:        %s\n", orDash(cfg.Export.JSONLPath))
			fmt.Printf("  MongoDB Sink:      %v\n", cfg.Export.Mongo.URI != "")
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// registerScrapeFlags binds the shared per-run flags.
func registerScrapeFlags(cmd *cobra.Command, f *scrapeFlags) {
	fs := cmd.Flags()
	fs.StringVar(&f.preset, "preset", "", "site preset: "+strings.Join(config.PresetNames(), ", ")+", none (default: detect from URL)")
	fs.StringVar(&f.item, "item", "", "review container selector")
	fs.StringVar(&f.user, "user", "", "username selector, relative to the container")
	fs.StringVar(&f.date, "date", "", "date selector, relative to the container")
	fs.StringVar(&f.rating, "rating", "", "rating selector, relative to the container")
	fs.StringVar(&f.title, "title", "", "title selector, relative to the container")
	fs.StringVar(&f.content, "content", "", "content selector, relative to the container")
	fs.StringVar(&f.next, "next", "", "next page control selector")
	fs.IntVarP(&f.maxPages, "max-pages", "m", 0, "maximum pages to visit (default from config)")
	fs.StringVar(&f.wait, "wait", "", "base delay after a page turn; the actual delay is random in [wait, 2*wait]")
	fs.StringVar(&f.changeWindow, "change-timeout", "", "how long to wait for new content after a page turn")
	fs.BoolVar(&f.onlyCurrent, "only-current-page", false, "scrape the loaded page only")
	fs.StringVar(&f.driver, "driver", "", "page driver: http, browser")
	fs.BoolVar(&f.headless, "headless", false, "run the browser without a window")
	fs.StringVar(&f.controlURL, "control-url", "", "DevTools URL of an already running browser")
	fs.Float64Var(&f.rateLimit, "rate-limit", -1, "max HTTP requests per second (0 = unlimited)")
	fs.StringVar(&f.userAgent, "user-agent", "", "custom User-Agent string")
	fs.StringVarP(&f.outputDir, "output", "o", "", "directory for the CSV export")
	fs.StringVar(&f.prefix, "prefix", "", "CSV file name prefix")
	fs.BoolVar(&f.noFallback, "no-fallback", false, "fail instead of writing the CSV to stdout when the file cannot be written")
	fs.StringVar(&f.jsonlPath, "jsonl", "", "also append records to this JSONL file")
	fs.StringVar(&f.mongoURI, "mongo-uri", "", "also insert records into MongoDB at this URI")
	fs.IntVar(&f.metricsPort, "metrics-port", 0, "serve Prometheus metrics on this port")
}

// loadConfig loads the config file and applies CLI overrides. url, when
// set, replaces the configured scrape URL.
func loadConfig(cmd *cobra.Command, f *scrapeFlags, url string) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if url != "" {
		cfg.Scrape.URL = url
	}
	if err := applyCLIOverrides(cmd, cfg, f); err != nil {
		return nil, err
	}
	if err := cfg.Scrape.Prepare(); err != nil {
		return nil, fmt.Errorf("prepare scrape: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config, f *scrapeFlags) error {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Scrape.Preset, f.preset)
	set(&cfg.Scrape.ItemSelector, f.item)
	set(&cfg.Scrape.Fields.User, f.user)
	set(&cfg.Scrape.Fields.Date, f.date)
	set(&cfg.Scrape.Fields.Rating, f.rating)
	set(&cfg.Scrape.Fields.Title, f.title)
	set(&cfg.Scrape.Fields.Content, f.content)
	set(&cfg.Scrape.NextSelector, f.next)
	set(&cfg.Fetcher.Type, strings.ToLower(f.driver))
	set(&cfg.Fetcher.ControlURL, f.controlURL)
	set(&cfg.Export.OutputDir, f.outputDir)
	set(&cfg.Export.FilenamePrefix, f.prefix)
	set(&cfg.Export.JSONLPath, f.jsonlPath)
	set(&cfg.Export.Mongo.URI, f.mongoURI)

	if f.maxPages > 0 {
		cfg.Scrape.MaxPages = f.maxPages
	}
	if f.wait != "" {
		d, err := time.ParseDuration(f.wait)
		if err != nil {
			return fmt.Errorf("invalid --wait: %w", err)
		}
		cfg.Scrape.Wait = d
	}
	if f.changeWindow != "" {
		d, err := time.ParseDuration(f.changeWindow)
		if err != nil {
			return fmt.Errorf("invalid --change-timeout: %w", err)
		}
		cfg.Scrape.ChangeTimeout = d
	}
	if f.onlyCurrent {
		cfg.Scrape.OnlyCurrentPage = true
	}
	if cmd.Flags().Changed("headless") {
		cfg.Fetcher.Headless = f.headless
	}
	if f.rateLimit >= 0 {
		cfg.Fetcher.RateLimit = f.rateLimit
	}
	if f.userAgent != "" {
		cfg.Fetcher.UserAgents = []string{f.userAgent}
	}
	if f.noFallback {
		cfg.Export.Fallback = "none"
	}
	if f.metricsPort > 0 {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Port = f.metricsPort
	}
	return nil
}

// setupLogger creates a structured logger from the logging config and the
// global flags. The returned closer releases a log file, if any.
func setupLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	levelName := cfg.Level
	if logLevel != "" {
		levelName = logLevel
	}
	level := parseLevel(levelName)
	if verbose {
		level = slog.LevelDebug
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = io.NopCloser(nil)
	)
	switch cfg.Output {
	case "", "stderr":
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	}

	opts := &slog.HandlerOptions{Level: level}
	format := cfg.Format
	if logFmt != "" {
		format = logFmt
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), closer, nil
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
