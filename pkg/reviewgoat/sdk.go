// Package reviewgoat provides a public SDK for embedding ReviewGoat as a
// library.
//
// Example usage:
//
//	s := reviewgoat.New(
//	    reviewgoat.WithPreset("trustpilot"),
//	    reviewgoat.WithMaxPages(5),
//	    reviewgoat.WithOutputDir("./output"),
//	)
//
//	res, err := s.Scrape(ctx, "https://www.trustpilot.com/review/example.com")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Status, s.LastOutput())
package reviewgoat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/IshaanNene/ReviewGoat/internal/config"
	"github.com/IshaanNene/ReviewGoat/internal/engine"
	"github.com/IshaanNene/ReviewGoat/internal/extract"
	"github.com/IshaanNene/ReviewGoat/internal/fetcher"
	"github.com/IshaanNene/ReviewGoat/internal/storage"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// Record is one extracted review.
type Record = types.Record

// Result summarizes a finished scrape and carries its records.
type Result = engine.Result

// Fields are the per-record selectors, relative to one review container.
type Fields = extract.FieldSelectors

// Scraper is the high-level API for using ReviewGoat as a library.
type Scraper struct {
	cfg        *config.Config
	logger     *slog.Logger
	lastOutput string
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithPreset selects a built-in site preset; "none" disables detection.
func WithPreset(name string) Option {
	return func(s *Scraper) { s.cfg.Scrape.Preset = name }
}

// WithItemSelector sets the review container selector.
func WithItemSelector(sel string) Option {
	return func(s *Scraper) { s.cfg.Scrape.ItemSelector = sel }
}

// WithFields sets the per-record selectors.
func WithFields(f Fields) Option {
	return func(s *Scraper) { s.cfg.Scrape.Fields = f }
}

// WithNextSelector sets the next page control selector.
func WithNextSelector(sel string) Option {
	return func(s *Scraper) { s.cfg.Scrape.NextSelector = sel }
}

// WithMaxPages caps the number of pages visited.
func WithMaxPages(n int) Option {
	return func(s *Scraper) { s.cfg.Scrape.MaxPages = n }
}

// WithWait sets the base delay after each page turn.
func WithWait(d time.Duration) Option {
	return func(s *Scraper) { s.cfg.Scrape.Wait = d }
}

// WithChangeTimeout sets how long to wait for new content after a page turn.
func WithChangeTimeout(d time.Duration) Option {
	return func(s *Scraper) { s.cfg.Scrape.ChangeTimeout = d }
}

// WithBrowser drives a real browser instead of plain HTTP.
func WithBrowser(headless bool) Option {
	return func(s *Scraper) {
		s.cfg.Fetcher.Type = "browser"
		s.cfg.Fetcher.Headless = headless
	}
}

// WithUserAgent sets a custom User-Agent.
func WithUserAgent(ua string) Option {
	return func(s *Scraper) { s.cfg.Fetcher.UserAgents = []string{ua} }
}

// WithRateLimit caps HTTP requests per second; 0 means unlimited.
func WithRateLimit(rps float64) Option {
	return func(s *Scraper) { s.cfg.Fetcher.RateLimit = rps }
}

// WithOutputDir sets the directory the CSV is written to.
func WithOutputDir(dir string) Option {
	return func(s *Scraper) { s.cfg.Export.OutputDir = dir }
}

// WithJSONL additionally appends records to a JSONL file.
func WithJSONL(path string) Option {
	return func(s *Scraper) { s.cfg.Export.JSONLPath = path }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scraper) { s.logger = l }
}

// New creates a Scraper with default configuration plus opts.
func New(opts ...Option) *Scraper {
	s := &Scraper{
		cfg:    config.DefaultConfig(),
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
	s.cfg.Export.Fallback = "none"
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape walks every page starting at url and exports a CSV.
func (s *Scraper) Scrape(ctx context.Context, url string) (*Result, error) {
	cfg, driver, err := s.open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer driver.Close()

	var sinkOpts []storage.ExporterOption
	if cfg.Export.JSONLPath != "" {
		sink, err := storage.NewJSONLSink(cfg.Export.JSONLPath, s.logger)
		if err != nil {
			return nil, err
		}
		sinkOpts = append(sinkOpts, storage.WithSinks(sink))
	}
	exp := storage.NewExporter(storage.NewFileTransport(cfg.Export.OutputDir, s.logger), s.logger,
		append(sinkOpts, storage.WithFilenamePrefix(cfg.Export.FilenamePrefix))...)
	defer exp.Close()

	res, err := engine.NewOrchestrator(driver, exp, s.logger).Run(ctx, cfg.Scrape, cfg.Scrape.OnlyCurrentPage)
	s.lastOutput = exp.LastDelivery().Location
	return res, err
}

// Preview extracts up to limit records from the first page only.
func (s *Scraper) Preview(ctx context.Context, url string, limit int) ([]Record, error) {
	cfg, driver, err := s.open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer driver.Close()
	return engine.NewOrchestrator(driver, nil, s.logger).PreviewExtract(ctx, cfg.Scrape, limit)
}

// LastOutput returns where the last Scrape wrote its CSV.
func (s *Scraper) LastOutput() string {
	return s.lastOutput
}

func (s *Scraper) open(ctx context.Context, url string) (*config.Config, fetcher.Driver, error) {
	if err := config.ValidateURL(url); err != nil {
		return nil, nil, err
	}
	cfg := *s.cfg
	cfg.Scrape.URL = url
	if err := cfg.Scrape.Prepare(); err != nil {
		return nil, nil, err
	}
	if err := config.Validate(&cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	var (
		driver fetcher.Driver
		err    error
	)
	if cfg.Fetcher.Type == "browser" {
		driver, err = fetcher.NewBrowserPage(ctx, &cfg.Fetcher, s.logger)
	} else {
		driver, err = fetcher.NewHTTPPage(&cfg.Fetcher, s.logger)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := driver.Open(ctx, url); err != nil {
		driver.Close()
		return nil, nil, err
	}
	return &cfg, driver, nil
}

// EncodeCSV renders records as the BOM-prefixed CSV payload Scrape writes.
func EncodeCSV(records []Record) []byte {
	return storage.EncodeTable(records)
}

// RenderStars renders a rating string as a five-star bar.
func RenderStars(rating string) string {
	return extract.RenderStars(rating)
}
