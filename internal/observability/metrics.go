package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters for scrape runs.
type Metrics struct {
	// Run metrics
	RunsStarted   atomic.Int64
	RunsCompleted atomic.Int64
	RunsCancelled atomic.Int64

	// Page metrics
	PagesScraped       atomic.Int64
	NavigationStalls   atomic.Int64
	NavigationFailures atomic.Int64

	// Record metrics
	RecordsExtracted  atomic.Int64
	RecordsAdded      atomic.Int64
	RecordsDuplicated atomic.Int64
	RecordsExported   atomic.Int64

	// Export metrics
	ExportFallbacks atomic.Int64
	ExportFailures  atomic.Int64

	// Fetch metrics
	RequestsTotal   atomic.Int64
	RequestsFailed  atomic.Int64
	BytesDownloaded atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

type metricLine struct {
	name  string
	help  string
	value int64
}

func (m *Metrics) lines() []metricLine {
	return []metricLine{
		{"reviewgoat_runs_started_total", "Total scrape runs started", m.RunsStarted.Load()},
		{"reviewgoat_runs_completed_total", "Total scrape runs exported", m.RunsCompleted.Load()},
		{"reviewgoat_runs_cancelled_total", "Total scrape runs cut short by cancellation", m.RunsCancelled.Load()},
		{"reviewgoat_pages_scraped_total", "Total pages scraped", m.PagesScraped.Load()},
		{"reviewgoat_navigation_stalls_total", "Total page turns with no content change", m.NavigationStalls.Load()},
		{"reviewgoat_navigation_failures_total", "Total page turns that could not be triggered", m.NavigationFailures.Load()},
		{"reviewgoat_records_extracted_total", "Total records extracted", m.RecordsExtracted.Load()},
		{"reviewgoat_records_added_total", "Total records added to the run cache", m.RecordsAdded.Load()},
		{"reviewgoat_records_duplicated_total", "Total records dropped as duplicates", m.RecordsDuplicated.Load()},
		{"reviewgoat_records_exported_total", "Total records exported", m.RecordsExported.Load()},
		{"reviewgoat_export_fallbacks_total", "Total exports delivered by the fallback transport", m.ExportFallbacks.Load()},
		{"reviewgoat_export_failures_total", "Total exports that failed on every transport", m.ExportFailures.Load()},
		{"reviewgoat_requests_total", "Total page requests made", m.RequestsTotal.Load()},
		{"reviewgoat_requests_failed_total", "Total failed page requests", m.RequestsFailed.Load()},
		{"reviewgoat_bytes_downloaded_total", "Total bytes downloaded", m.BytesDownloaded.Load()},
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	for _, metric := range m.lines() {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// Handler returns a mux serving metrics at path plus a /health probe.
func (m *Metrics) Handler(path string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	return mux
}

// StartServer serves metrics on port until ctx is done.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(path),
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	return nil
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"runs_started":        m.RunsStarted.Load(),
		"runs_completed":      m.RunsCompleted.Load(),
		"runs_cancelled":      m.RunsCancelled.Load(),
		"pages_scraped":       m.PagesScraped.Load(),
		"navigation_stalls":   m.NavigationStalls.Load(),
		"navigation_failures": m.NavigationFailures.Load(),
		"records_extracted":   m.RecordsExtracted.Load(),
		"records_added":       m.RecordsAdded.Load(),
		"records_duplicated":  m.RecordsDuplicated.Load(),
		"records_exported":    m.RecordsExported.Load(),
		"export_fallbacks":    m.ExportFallbacks.Load(),
		"export_failures":     m.ExportFailures.Load(),
		"requests_total":      m.RequestsTotal.Load(),
		"requests_failed":     m.RequestsFailed.Load(),
		"bytes_downloaded":    m.BytesDownloaded.Load(),
	}
}
