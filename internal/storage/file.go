package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// --- JSONL Sink ---

// JSONLSink appends records as newline-delimited JSON (one object per line).
type JSONLSink struct {
	path   string
	file   *os.File
	enc    *json.Encoder
	mu     sync.Mutex
	count  int
	now    func() time.Time
	logger *slog.Logger
}

type jsonlEntry struct {
	types.Record
	ExportedAt time.Time `json:"_exported_at"`
}

// NewJSONLSink opens outputPath for appending, creating parent dirs.
func NewJSONLSink(outputPath string, logger *slog.Logger) (*JSONLSink, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}

	return &JSONLSink{
		path:   outputPath,
		file:   f,
		enc:    json.NewEncoder(f),
		now:    time.Now,
		logger: logger.With("component", "jsonl_sink"),
	}, nil
}

func (s *JSONLSink) Name() string { return "jsonl" }

func (s *JSONLSink) Store(_ context.Context, records []types.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now().UTC()
	for _, r := range records {
		if err := s.enc.Encode(jsonlEntry{Record: r, ExportedAt: at}); err != nil {
			return fmt.Errorf("encode JSONL: %w", err)
		}
		s.count++
	}
	return nil
}

func (s *JSONLSink) Close() error {
	s.logger.Info("JSONL written", "path", s.path, "records", s.count)
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
