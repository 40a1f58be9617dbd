package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/ReviewGoat/internal/config"
	"github.com/IshaanNene/ReviewGoat/internal/engine"
	"github.com/IshaanNene/ReviewGoat/internal/extract"
	"github.com/IshaanNene/ReviewGoat/internal/fetcher"
	"github.com/IshaanNene/ReviewGoat/internal/observability"
	"github.com/IshaanNene/ReviewGoat/internal/storage"
)

var (
	runFlags     scrapeFlags
	previewFlags scrapeFlags
	previewLimit int
	noProgress   bool
)

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [url]",
		Short: "Scrape every review page and export a CSV",
		Long: `Load the review listing at url (or scrape.url from the config), extract
every review card, follow the next control until the last page and export
the deduplicated records as a CSV file.

Selectors come from, in order of precedence: flags, the config file, then
the site preset detected from the URL.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runScrape,
	}
	registerScrapeFlags(cmd, &runFlags)
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	return cmd
}

// previewCmd creates the "preview" subcommand.
func previewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview [url]",
		Short: "Show the first records of the loaded page without exporting",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPreview,
	}
	registerScrapeFlags(cmd, &previewFlags)
	cmd.Flags().IntVarP(&previewLimit, "limit", "n", 5, "number of records to show")
	return cmd
}

// session is everything a command needs to talk to one page.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	driver  fetcher.Driver
	closers []func() error
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("close failed", "error", err)
		}
	}
}

// openSession loads the configuration, sets up logging and opens the
// target page in the configured driver.
func openSession(ctx context.Context, cmd *cobra.Command, f *scrapeFlags, args []string) (*session, error) {
	var url string
	if len(args) > 0 {
		url = args[0]
	}
	cfg, err := loadConfig(cmd, f, url)
	if err != nil {
		return nil, err
	}
	if cfg.Scrape.URL == "" {
		return nil, errors.New("no URL given: pass one as an argument or set scrape.url")
	}
	if err := config.ValidateURL(cfg.Scrape.URL); err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", cfg.Scrape.URL, err)
	}

	logger, logCloser, err := setupLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	s := &session{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(logger),
		closers: []func() error{logCloser.Close},
	}

	if cfg.Metrics.Enabled {
		if err := s.metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}

	driver, err := newDriver(ctx, cfg, logger, s.metrics)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create %s driver: %w", cfg.Fetcher.Type, err)
	}
	s.driver = driver
	s.closers = append(s.closers, driver.Close)

	logger.Info("opening page", "url", cfg.Scrape.URL, "driver", driver.Type())
	if err := driver.Open(ctx, cfg.Scrape.URL); err != nil {
		s.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	return s, nil
}

func newDriver(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (fetcher.Driver, error) {
	if cfg.Fetcher.Type == "browser" {
		return fetcher.NewBrowserPage(ctx, &cfg.Fetcher, logger)
	}
	return fetcher.NewHTTPPage(&cfg.Fetcher, logger, fetcher.WithHTTPMetrics(metrics))
}

// newExporter builds the CSV exporter with its fallback and record sinks.
func newExporter(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*storage.Exporter, error) {
	opts := []storage.ExporterOption{
		storage.WithFilenamePrefix(cfg.Export.FilenamePrefix),
		storage.WithExportMetrics(metrics),
	}
	if cfg.Export.Fallback == "stdout" {
		opts = append(opts, storage.WithFallback(storage.NewWriterTransport("stdout", os.Stdout)))
	}

	var sinks []storage.Sink
	if cfg.Export.JSONLPath != "" {
		sink, err := storage.NewJSONLSink(cfg.Export.JSONLPath, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	if m := cfg.Export.Mongo; m.URI != "" {
		sink, err := storage.NewMongoSink(ctx, m.URI, m.Database, m.Collection, m.Timeout, logger)
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	if len(sinks) > 0 {
		opts = append(opts, storage.WithSinks(sinks...))
	}

	return storage.NewExporter(storage.NewFileTransport(cfg.Export.OutputDir, logger), logger, opts...), nil
}

// runScrape executes the run command.
func runScrape(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cmd, &runFlags, args)
	if err != nil {
		return err
	}
	defer s.Close()
	cfg, logger := s.cfg, s.logger

	exp, err := newExporter(ctx, cfg, logger, s.metrics)
	if err != nil {
		return fmt.Errorf("create exporter: %w", err)
	}
	s.closers = append(s.closers, exp.Close)

	bar := newProgressBar(cfg.Scrape, noProgress)
	orch := engine.NewOrchestrator(s.driver, exp, logger,
		engine.WithMetrics(s.metrics),
		engine.WithProgress(func(p engine.Progress) { updateProgress(bar, p) }),
	)

	logger.Info("starting scrape",
		"url", cfg.Scrape.URL,
		"preset", cfg.Scrape.Preset,
		"item", cfg.Scrape.ItemSelector,
		"next", cfg.Scrape.NextSelector,
		"max_pages", cfg.Scrape.MaxPages,
	)

	start := time.Now()
	res, err := orch.Run(ctx, cfg.Scrape, cfg.Scrape.OnlyCurrentPage)
	_ = bar.Finish()
	if res == nil {
		return fmt.Errorf("scrape: %w", err)
	}

	elapsed := time.Since(start)
	d := exp.LastDelivery()
	logger.Info("scrape complete",
		"elapsed", elapsed,
		"pages", res.Pages,
		"records", res.Total,
		"stop_reason", res.StopReason,
	)

	fmt.Fprintf(os.Stderr, "\n✅ %s\n", res.Status)
	fmt.Fprintf(os.Stderr, "   Pages:     %d\n", res.Pages)
	fmt.Fprintf(os.Stderr, "   Records:   %d unique\n", res.Total)
	fmt.Fprintf(os.Stderr, "   Stopped:   %s\n", res.StopReason)
	fmt.Fprintf(os.Stderr, "   Elapsed:   %s\n", elapsed.Round(time.Millisecond))
	if d.Location != "" {
		fmt.Fprintf(os.Stderr, "   Output:    %s (%s)\n", d.Location, d.Transport)
	}
	if res.Total == 0 {
		fmt.Fprintln(os.Stderr, "\n💡 No reviews were found. Check the item selector with:")
		fmt.Fprintln(os.Stderr, "     reviewgoat preview <url> --item '<selector>'")
		fmt.Fprintln(os.Stderr, "     reviewgoat pick <url>")
	}
	return err
}

// runPreview executes the preview command.
func runPreview(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cmd, &previewFlags, args)
	if err != nil {
		return err
	}
	defer s.Close()

	orch := engine.NewOrchestrator(s.driver, nil, s.logger)
	records, err := orch.PreviewExtract(ctx, s.cfg.Scrape, previewLimit)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	if len(records) == 0 {
		fmt.Printf("No reviews matched %q on %s\n", s.cfg.Scrape.ItemSelector, s.cfg.Scrape.URL)
		return nil
	}

	for i, r := range records {
		fmt.Printf("#%d  %s  %s  %s\n", i+1, orDash(r.Username), orDash(r.Date), extract.RenderStars(r.Rating))
		if r.Title != "" {
			fmt.Printf("    %s\n", r.Title)
		}
		if r.Content != "" {
			fmt.Printf("    %s\n", truncate(r.Content, 160))
		}
		fmt.Println()
	}
	return nil
}

func newProgressBar(cfg config.ScrapeConfig, disabled bool) *progressbar.ProgressBar {
	total := cfg.MaxPages
	if cfg.OnlyCurrentPage {
		total = 1
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetVisibility(!disabled),
		progressbar.OptionSetDescription("starting"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
}

func updateProgress(bar *progressbar.ProgressBar, p engine.Progress) {
	switch p.State {
	case engine.StateScrapingPage:
		_ = bar.Set(p.Page)
		bar.Describe(fmt.Sprintf("page %d · %d reviews", p.Page, p.Total))
	case engine.StateAwaitingNavigation:
		bar.Describe(fmt.Sprintf("page %d · %d reviews · next in %s", p.Page, p.Total, p.Delay.Round(time.Millisecond)))
	case engine.StateExporting:
		bar.Describe(fmt.Sprintf("exporting %d reviews", p.Total))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
