package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// Sink receives the records of a finished run in addition to the table
// payload.
type Sink interface {
	// Store persists a batch of records.
	Store(ctx context.Context, records []types.Record) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the sink identifier.
	Name() string
}

// --- Multi-Sink Fan-Out ---

// MultiSink writes records to several sinks. A failing sink does not stop
// the others.
type MultiSink struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewMultiSink creates a sink that fans out to sinks.
func NewMultiSink(sinks []Sink, logger *slog.Logger) *MultiSink {
	return &MultiSink{
		sinks:  sinks,
		logger: logger.With("component", "multi_sink"),
	}
}

func (s *MultiSink) Name() string { return "multi" }

// Len returns the number of wrapped sinks.
func (s *MultiSink) Len() int { return len(s.sinks) }

func (s *MultiSink) Store(ctx context.Context, records []types.Record) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Store(ctx, records); err != nil {
			s.logger.Error("sink store failed", "sink", sink.Name(), "error", err)
			errs = append(errs, &types.StorageError{Backend: sink.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}

func (s *MultiSink) Close() error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, &types.StorageError{Backend: sink.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}
