package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Transport delivers a finished payload under a file name and reports
// where it went.
type Transport interface {
	Deliver(ctx context.Context, name string, payload []byte) (location string, err error)
	Name() string
}

// FileTransport writes payloads into a directory. Files are written to a
// temporary name and renamed so a partial write never leaves a truncated
// export behind.
type FileTransport struct {
	dir    string
	logger *slog.Logger
}

// NewFileTransport creates a transport writing into dir.
func NewFileTransport(dir string, logger *slog.Logger) *FileTransport {
	return &FileTransport{
		dir:    dir,
		logger: logger.With("component", "file_transport"),
	}
}

func (t *FileTransport) Name() string { return "file" }

func (t *FileTransport) Deliver(ctx context.Context, name string, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(t.dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", tmp.Name(), err)
	}

	path := filepath.Join(t.dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename to %s: %w", path, err)
	}
	t.logger.Debug("payload written", "path", path, "bytes", len(payload))
	return path, nil
}

// WriterTransport streams payloads to an io.Writer, typically stdout.
type WriterTransport struct {
	name string
	mu   sync.Mutex
	w    io.Writer
}

// NewWriterTransport creates a transport writing to w. name labels the
// transport in logs and errors.
func NewWriterTransport(name string, w io.Writer) *WriterTransport {
	return &WriterTransport{name: name, w: w}
}

func (t *WriterTransport) Name() string { return t.name }

func (t *WriterTransport) Deliver(ctx context.Context, _ string, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.w.Write(payload); err != nil {
		return "", err
	}
	return t.name, nil
}
