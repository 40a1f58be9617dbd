package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/IshaanNene/ReviewGoat/internal/engine"
	"github.com/IshaanNene/ReviewGoat/internal/observability"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var sampleRecords = []types.Record{
	{Username: "Ann", Date: "2025-01-02", Rating: "4", Title: `Great, "really"`, Content: "Fast, cheap,\nand friendly"},
	{Username: "", Date: "", Rating: "", Title: "", Content: ""},
	{Username: "李雷", Date: "Jan 3", Rating: "2.5", Title: `""`, Content: `a "quoted" word, then more`},
}

func TestEncodeTableFormat(t *testing.T) {
	got := string(EncodeTable(sampleRecords[:1]))
	want := BOM +
		`"username","date","rating","title","content"` + "\n" +
		`"Ann","2025-01-02","4","Great, ""really""","Fast, cheap,` + "\n" + `and friendly"`
	if got != want {
		t.Errorf("payload mismatch:\n got %q\nwant %q", got, want)
	}

	empty := string(EncodeTable(nil))
	if empty != BOM+`"username","date","rating","title","content"` {
		t.Errorf("empty payload should be header only, got %q", empty)
	}
}

func TestTableRoundTrip(t *testing.T) {
	got, err := DecodeTable(EncodeTable(sampleRecords))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(sampleRecords, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeTableRejectsForeignHeader(t *testing.T) {
	if _, err := DecodeTable([]byte(`"a","b","c","d","e"`)); err == nil {
		t.Error("expected error for wrong header")
	}
	if _, err := DecodeTable([]byte(`"username","date"`)); err == nil {
		t.Error("expected error for short header")
	}
}

type failingTransport struct{ name string }

func (f failingTransport) Name() string { return f.name }

func (f failingTransport) Deliver(context.Context, string, []byte) (string, error) {
	return "", errors.New("download blocked")
}

type memorySink struct {
	records []types.Record
	err     error
	closed  bool
}

func (m *memorySink) Name() string { return "memory" }

func (m *memorySink) Store(_ context.Context, records []types.Record) error {
	m.records = append(m.records, records...)
	return m.err
}

func (m *memorySink) Close() error {
	m.closed = true
	return nil
}

func fixedNow() time.Time { return time.UnixMilli(1700000000123) }

func TestExporterWritesFile(t *testing.T) {
	dir := t.TempDir()
	sink := &memorySink{}
	exp := NewExporter(NewFileTransport(dir, testLogger()), testLogger(), WithSinks(sink))
	exp.now = fixedNow

	summary := engine.Summary{Pages: 2, Total: 3, StopReason: engine.StopNoNext}
	if err := exp.Export(context.Background(), sampleRecords, summary); err != nil {
		t.Fatalf("export: %v", err)
	}

	path := filepath.Join(dir, "reviews_1700000000123.csv")
	d := exp.LastDelivery()
	if d.Location != path || d.Transport != "file" || d.Fallback || d.Records != 3 {
		t.Errorf("unexpected delivery %+v", d)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !bytes.Equal(data, EncodeTable(sampleRecords)) {
		t.Error("file content differs from encoded table")
	}
	if len(sink.records) != 3 {
		t.Errorf("sink got %d records, want 3", len(sink.records))
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the export file in %s, found %d entries", dir, len(entries))
	}

	if err := exp.Close(); err != nil || !sink.closed {
		t.Errorf("close: err=%v closed=%v", err, sink.closed)
	}
}

func TestExporterFallsBack(t *testing.T) {
	var out bytes.Buffer
	metrics := observability.NewMetrics(testLogger())
	exp := NewExporter(failingTransport{name: "file"}, testLogger(),
		WithFallback(NewWriterTransport("stdout", &out)),
		WithExportMetrics(metrics))

	if err := exp.Export(context.Background(), sampleRecords, engine.Summary{}); err != nil {
		t.Fatalf("export should succeed through the fallback: %v", err)
	}
	if !bytes.Equal(out.Bytes(), EncodeTable(sampleRecords)) {
		t.Error("fallback did not receive the payload")
	}
	if d := exp.LastDelivery(); !d.Fallback || d.Transport != "stdout" {
		t.Errorf("unexpected delivery %+v", d)
	}
	if metrics.ExportFallbacks.Load() != 1 || metrics.RecordsExported.Load() != 3 {
		t.Errorf("metrics not recorded: %v", metrics.Snapshot())
	}
}

func TestExporterAllTransportsFail(t *testing.T) {
	exp := NewExporter(failingTransport{name: "file"}, testLogger(),
		WithFallback(failingTransport{name: "stdout"}))

	err := exp.Export(context.Background(), sampleRecords, engine.Summary{})
	var transportErr *types.ExportTransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected ExportTransportError, got %v", err)
	}
	if !strings.Contains(err.Error(), "file") || !strings.Contains(err.Error(), "stdout") {
		t.Errorf("error should name both transports: %v", err)
	}

	noFallback := NewExporter(failingTransport{name: "file"}, testLogger())
	if err := noFallback.Export(context.Background(), nil, engine.Summary{}); !errors.As(err, &transportErr) {
		t.Errorf("expected ExportTransportError without fallback, got %v", err)
	}
}

func TestExporterReportsSinkFailure(t *testing.T) {
	var out bytes.Buffer
	sink := &memorySink{err: errors.New("quota exceeded")}
	exp := NewExporter(NewWriterTransport("stdout", &out), testLogger(), WithSinks(sink))

	err := exp.Export(context.Background(), sampleRecords, engine.Summary{})
	var storageErr *types.StorageError
	if !errors.As(err, &storageErr) || storageErr.Backend != "memory" {
		t.Fatalf("expected StorageError from memory sink, got %v", err)
	}
	if out.Len() == 0 {
		t.Error("payload should be delivered before sinks run")
	}
}

func TestJSONLSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reviews.jsonl")
	sink, err := NewJSONLSink(path, testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sink.now = fixedNow

	if err := sink.Store(context.Background(), sampleRecords); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f.Close()

	var got []types.Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var entry jsonlEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			t.Fatalf("line %d: %v", len(got)+1, err)
		}
		if !entry.ExportedAt.Equal(fixedNow()) {
			t.Errorf("exported_at = %s", entry.ExportedAt)
		}
		got = append(got, entry.Record)
	}
	if diff := cmp.Diff(sampleRecords, got); diff != "" {
		t.Errorf("JSONL mismatch (-want +got):\n%s", diff)
	}
}

func TestMongoDocuments(t *testing.T) {
	docs := mongoDocuments(sampleRecords, fixedNow())
	if len(docs) != len(sampleRecords) {
		t.Fatalf("expected %d docs, got %d", len(sampleRecords), len(docs))
	}
	first := docs[0].(mongoRecord)
	if first.Batch != "1700000000123" || first.Username != "Ann" {
		t.Errorf("unexpected document %+v", first)
	}
}

func TestMongoSinkIntegration(t *testing.T) {
	uri := os.Getenv("REVIEWGOAT_TEST_MONGO_URI")
	if testing.Short() || uri == "" {
		t.Skip("set REVIEWGOAT_TEST_MONGO_URI to run against MongoDB")
	}

	sink, err := NewMongoSink(context.Background(), uri, "reviewgoat_test", "reviews", 5*time.Second, testLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer sink.Close()

	if err := sink.Store(context.Background(), sampleRecords); err != nil {
		t.Fatalf("store: %v", err)
	}
}
