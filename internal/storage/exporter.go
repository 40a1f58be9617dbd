package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IshaanNene/ReviewGoat/internal/engine"
	"github.com/IshaanNene/ReviewGoat/internal/observability"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// Delivery describes where the last export went.
type Delivery struct {
	Transport string
	Location  string
	Records   int
	Fallback  bool
}

// Exporter implements engine.Exporter. It renders the table payload,
// delivers it through the primary transport, falls back to the secondary
// one on failure and then hands the records to any sinks.
type Exporter struct {
	primary  Transport
	fallback Transport
	sinks    *MultiSink
	prefix   string
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	last Delivery
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithFallback sets the transport used when the primary one fails.
func WithFallback(t Transport) ExporterOption {
	return func(e *Exporter) { e.fallback = t }
}

// WithSinks adds record sinks written after the payload is delivered.
func WithSinks(sinks ...Sink) ExporterOption {
	return func(e *Exporter) { e.sinks = NewMultiSink(sinks, e.logger) }
}

// WithFilenamePrefix sets the export file name prefix.
func WithFilenamePrefix(prefix string) ExporterOption {
	return func(e *Exporter) { e.prefix = prefix }
}

// WithExportMetrics records export counters into m.
func WithExportMetrics(m *observability.Metrics) ExporterOption {
	return func(e *Exporter) { e.metrics = m }
}

// NewExporter creates an exporter delivering through primary.
func NewExporter(primary Transport, logger *slog.Logger, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		primary: primary,
		prefix:  "reviews",
		logger:  logger.With("component", "exporter"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ engine.Exporter = (*Exporter)(nil)

// FileName returns the export file name for time t: <prefix>_<unix-ms>.csv.
func (e *Exporter) FileName(t time.Time) string {
	return fmt.Sprintf("%s_%d.csv", e.prefix, t.UnixMilli())
}

// Export delivers the records. Only a failure of every transport is
// returned as a delivery error; sink failures are returned after a
// successful delivery.
func (e *Exporter) Export(ctx context.Context, records []types.Record, summary engine.Summary) error {
	payload := EncodeTable(records)
	name := e.FileName(e.now())

	d := Delivery{Records: len(records)}
	loc, err := e.primary.Deliver(ctx, name, payload)
	if err == nil {
		d.Transport, d.Location = e.primary.Name(), loc
	} else {
		primaryErr := &types.ExportTransportError{Transport: e.primary.Name(), Err: err}
		if e.fallback == nil {
			e.recordFailure()
			return primaryErr
		}
		e.logger.Warn("primary export transport failed, using fallback",
			"transport", e.primary.Name(), "fallback", e.fallback.Name(), "error", err)

		loc, err = e.fallback.Deliver(ctx, name, payload)
		if err != nil {
			e.recordFailure()
			return errors.Join(primaryErr, &types.ExportTransportError{Transport: e.fallback.Name(), Err: err})
		}
		d.Transport, d.Location, d.Fallback = e.fallback.Name(), loc, true
		if e.metrics != nil {
			e.metrics.ExportFallbacks.Add(1)
		}
	}

	e.mu.Lock()
	e.last = d
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.RecordsExported.Add(int64(len(records)))
	}
	e.logger.Info("export delivered",
		"transport", d.Transport,
		"location", d.Location,
		"records", len(records),
		"pages", summary.Pages,
		"stop_reason", summary.StopReason,
	)

	if e.sinks != nil && e.sinks.Len() > 0 && len(records) > 0 {
		if err := e.sinks.Store(ctx, records); err != nil {
			return fmt.Errorf("record sinks: %w", err)
		}
	}
	return nil
}

// LastDelivery returns the most recent successful delivery.
func (e *Exporter) LastDelivery() Delivery {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Close closes every sink.
func (e *Exporter) Close() error {
	if e.sinks == nil {
		return nil
	}
	return e.sinks.Close()
}

func (e *Exporter) recordFailure() {
	if e.metrics != nil {
		e.metrics.ExportFailures.Add(1)
	}
}
