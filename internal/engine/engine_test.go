package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/IshaanNene/ReviewGoat/internal/config"
	"github.com/IshaanNene/ReviewGoat/internal/dom"
	"github.com/IshaanNene/ReviewGoat/internal/extract"
	"github.com/IshaanNene/ReviewGoat/internal/observability"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// reviewPage renders one listing page. nextAttrs is appended to the next
// link; an empty string with hasNext=false omits the link.
func reviewPage(ids []string, hasNext bool, nextAttrs string) string {
	var b strings.Builder
	b.WriteString("<html><body><main>")
	for _, id := range ids {
		fmt.Fprintf(&b, `<article class="review" data-review-id="%s">`+
			`<span class="user">user-%s</span><h2>Title %s</h2><p>Body %s</p></article>`, id, id, id, id)
	}
	if hasNext {
		fmt.Fprintf(&b, `<a class="next" href="#"%s>Next</a>`, nextAttrs)
	}
	b.WriteString("</main></body></html>")
	return b.String()
}

// fakePage serves a fixed sequence of pages. ClickNext advances to the
// following page unless stall is set.
type fakePage struct {
	mu       sync.Mutex
	pages    []string
	idx      int
	stall    bool
	clickErr error
	clicks   int
}

func (p *fakePage) Snapshot(context.Context) (dom.Tree, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	url := fmt.Sprintf("https://example.com/reviews?page=%d", p.idx+1)
	return dom.NewDocumentFromString(p.pages[p.idx], url)
}

func (p *fakePage) ClickNext(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks++
	if p.clickErr != nil {
		return p.clickErr
	}
	if !p.stall && p.idx < len(p.pages)-1 {
		p.idx++
	}
	return nil
}

type recordingExporter struct {
	calls   int
	records []types.Record
	summary Summary
	err     error
}

func (e *recordingExporter) Export(_ context.Context, records []types.Record, summary Summary) error {
	e.calls++
	e.records = records
	e.summary = summary
	return e.err
}

func testScrapeConfig() config.ScrapeConfig {
	return config.ScrapeConfig{
		ItemSelector: "article.review",
		Fields: extract.FieldSelectors{
			User:    "span.user",
			Title:   "h2",
			Content: "p",
		},
		NextSelector:  "a.next",
		MaxPages:      20,
		Wait:          0,
		ChangeTimeout: 60 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
	}
}

func TestRunPaginatesUntilNoNext(t *testing.T) {
	page := &fakePage{pages: []string{
		reviewPage([]string{"a1", "a2"}, true, ""),
		reviewPage([]string{"b1", "b2"}, true, ""),
		reviewPage([]string{"c1", "c2"}, false, ""),
	}}
	exp := &recordingExporter{}
	metrics := observability.NewMetrics(testLogger())
	var progress []Progress

	o := NewOrchestrator(page, exp, testLogger(),
		WithMetrics(metrics),
		WithProgress(func(p Progress) { progress = append(progress, p) }))

	res, err := o.Run(context.Background(), testScrapeConfig(), false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Pages != 3 || res.Total != 6 {
		t.Fatalf("expected 3 pages / 6 records, got %d / %d", res.Pages, res.Total)
	}
	if res.StopReason != StopNoNext {
		t.Errorf("stop reason = %s, want %s", res.StopReason, StopNoNext)
	}

	var titles []string
	for _, r := range res.Records {
		titles = append(titles, r.Title)
	}
	want := []string{"Title a1", "Title a2", "Title b1", "Title b2", "Title c1", "Title c2"}
	if diff := cmp.Diff(want, titles); diff != "" {
		t.Errorf("record order mismatch (-want +got):\n%s", diff)
	}

	if exp.calls != 1 || len(exp.records) != 6 || exp.summary.Pages != 3 {
		t.Errorf("exporter got calls=%d records=%d summary=%+v", exp.calls, len(exp.records), exp.summary)
	}
	if got := metrics.PagesScraped.Load(); got != 3 {
		t.Errorf("pages scraped metric = %d, want 3", got)
	}
	if len(progress) == 0 || progress[len(progress)-1].State != StateDone {
		t.Errorf("expected a final done notification, got %+v", progress)
	}
	if o.GetState() != StateIdle {
		t.Errorf("state after run = %s, want idle", o.GetState())
	}
}

func TestRunStopsOnStall(t *testing.T) {
	page := &fakePage{
		pages: []string{
			reviewPage([]string{"a1", "a2"}, true, ""),
			reviewPage([]string{"b1", "b2"}, false, ""),
		},
		stall: true,
	}
	exp := &recordingExporter{}

	res, err := NewOrchestrator(page, exp, testLogger()).Run(context.Background(), testScrapeConfig(), false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.StopReason != StopNavigationStall {
		t.Errorf("stop reason = %s, want %s", res.StopReason, StopNavigationStall)
	}
	if res.Pages != 1 || res.Total != 2 {
		t.Errorf("expected page counter 1 and 2 records, got %d / %d", res.Pages, res.Total)
	}
	if page.clicks != 1 {
		t.Errorf("expected a single click attempt, got %d", page.clicks)
	}
	if len(exp.records) != 2 {
		t.Errorf("collected records must still be exported, got %d", len(exp.records))
	}
}

func TestRunStopReasons(t *testing.T) {
	tests := []struct {
		name      string
		pages     []string
		maxPages  int
		clickErr  error
		only      bool
		wantStop  StopReason
		wantPages int
		wantTotal int
	}{
		{
			name:      "single page mode",
			pages:     []string{reviewPage([]string{"a1", "a2"}, true, ""), reviewPage([]string{"b1"}, false, "")},
			only:      true,
			wantStop:  StopSinglePage,
			wantPages: 1,
			wantTotal: 2,
		},
		{
			name:      "aria disabled next",
			pages:     []string{reviewPage([]string{"a1"}, true, ` aria-disabled="true"`)},
			wantStop:  StopNextDisabled,
			wantPages: 1,
			wantTotal: 1,
		},
		{
			name:      "tabindex disabled next",
			pages:     []string{reviewPage([]string{"a1"}, true, ` tabindex="-1"`)},
			wantStop:  StopNextDisabled,
			wantPages: 1,
			wantTotal: 1,
		},
		{
			name: "max pages",
			pages: []string{
				reviewPage([]string{"a1", "a2"}, true, ""),
				reviewPage([]string{"b1", "b2"}, true, ""),
				reviewPage([]string{"c1", "c2"}, false, ""),
			},
			maxPages:  2,
			wantStop:  StopMaxPages,
			wantPages: 2,
			wantTotal: 4,
		},
		{
			name: "page with nothing new",
			pages: []string{
				reviewPage([]string{"a1", "a2"}, true, ""),
				reviewPage([]string{"a1", "a2"}, true, ""),
			},
			wantStop:  StopEmptyPage,
			wantPages: 2,
			wantTotal: 2,
		},
		{
			name:      "click failure",
			pages:     []string{reviewPage([]string{"a1"}, true, "")},
			clickErr:  errors.New("element detached"),
			wantStop:  StopNavigationFailed,
			wantPages: 1,
			wantTotal: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &fakePage{pages: tt.pages, clickErr: tt.clickErr}
			cfg := testScrapeConfig()
			if tt.maxPages > 0 {
				cfg.MaxPages = tt.maxPages
			}

			res, err := NewOrchestrator(page, nil, testLogger()).Run(context.Background(), cfg, tt.only)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if res.StopReason != tt.wantStop || res.Pages != tt.wantPages || res.Total != tt.wantTotal {
				t.Errorf("got stop=%s pages=%d total=%d, want stop=%s pages=%d total=%d",
					res.StopReason, res.Pages, res.Total, tt.wantStop, tt.wantPages, tt.wantTotal)
			}
		})
	}
}

func TestRunCancelledStillExports(t *testing.T) {
	page := &fakePage{pages: []string{
		reviewPage([]string{"a1", "a2"}, true, ""),
		reviewPage([]string{"b1"}, false, ""),
	}}
	exp := &recordingExporter{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewOrchestrator(page, exp, testLogger()).Run(ctx, testScrapeConfig(), false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.StopReason != StopCancelled {
		t.Errorf("stop reason = %s, want %s", res.StopReason, StopCancelled)
	}
	if exp.calls != 1 || len(exp.records) != 2 {
		t.Errorf("cancelled run should export partial results, got calls=%d records=%d", exp.calls, len(exp.records))
	}
}

func TestRunExportError(t *testing.T) {
	page := &fakePage{pages: []string{reviewPage([]string{"a1"}, false, "")}}
	exp := &recordingExporter{err: errors.New("disk full")}

	res, err := NewOrchestrator(page, exp, testLogger()).Run(context.Background(), testScrapeConfig(), false)
	if err == nil {
		t.Fatal("expected export error")
	}
	if res == nil || res.Total != 1 {
		t.Errorf("result should still carry collected records, got %+v", res)
	}
}

// blockingPage blocks the first snapshot until release is closed.
type blockingPage struct {
	*fakePage
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *blockingPage) Snapshot(ctx context.Context) (dom.Tree, error) {
	p.once.Do(func() {
		close(p.entered)
		<-p.release
	})
	return p.fakePage.Snapshot(ctx)
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	page := &blockingPage{
		fakePage: &fakePage{pages: []string{reviewPage([]string{"a1"}, false, "")}},
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	o := NewOrchestrator(page, nil, testLogger())

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), testScrapeConfig(), false)
		done <- err
	}()

	<-page.entered
	if _, err := o.Run(context.Background(), testScrapeConfig(), false); !errors.Is(err, types.ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}
	close(page.release)

	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := o.Run(context.Background(), testScrapeConfig(), true); err != nil {
		t.Errorf("run after completion should succeed: %v", err)
	}
}

func TestPreviewExtract(t *testing.T) {
	page := &fakePage{pages: []string{reviewPage([]string{"a1", "a2", "a3"}, true, "")}}
	exp := &recordingExporter{}
	o := NewOrchestrator(page, exp, testLogger())

	got, err := o.PreviewExtract(context.Background(), testScrapeConfig(), 2)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	want := []types.Record{
		{Username: "user-a1", Title: "Title a1", Content: "Body a1"},
		{Username: "user-a2", Title: "Title a2", Content: "Body a2"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("preview mismatch (-want +got):\n%s", diff)
	}
	if exp.calls != 0 || page.clicks != 0 {
		t.Error("preview must not export or paginate")
	}
}

func TestRandomWaitBounds(t *testing.T) {
	o := NewOrchestrator(&fakePage{}, nil, testLogger(), WithRand(rand.New(rand.NewSource(1))))
	lo, hi := 100*time.Millisecond, 200*time.Millisecond

	for i := 0; i < 1000; i++ {
		d := o.randomWait(lo, hi)
		if d < lo || d > hi {
			t.Fatalf("randomWait = %s, outside [%s, %s]", d, lo, hi)
		}
	}
	if d := o.randomWait(0, 0); d != 0 {
		t.Errorf("randomWait(0, 0) = %s", d)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateIdle:               "idle",
		StateInit:               "init",
		StateScrapingPage:       "scraping_page",
		StateAwaitingNavigation: "awaiting_navigation",
		StateExporting:          "exporting",
		StateDone:               "done",
		State(42):               "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
