// Package engine runs multi-page review scrapes: it extracts records page
// by page, follows the next control, confirms the content changed and
// deduplicates everything into a per-run cache.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/html"

	"github.com/IshaanNene/ReviewGoat/internal/config"
	"github.com/IshaanNene/ReviewGoat/internal/dom"
	"github.com/IshaanNene/ReviewGoat/internal/extract"
	"github.com/IshaanNene/ReviewGoat/internal/observability"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// State is the orchestrator's position in a run.
type State int32

const (
	StateIdle               State = 0
	StateInit               State = 1
	StateScrapingPage       State = 2
	StateAwaitingNavigation State = 3
	StateExporting          State = 4
	StateDone               State = 5
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInit:
		return "init"
	case StateScrapingPage:
		return "scraping_page"
	case StateAwaitingNavigation:
		return "awaiting_navigation"
	case StateExporting:
		return "exporting"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// StopReason records why a run stopped paginating.
type StopReason string

const (
	StopSinglePage       StopReason = "single_page"
	StopNoNext           StopReason = "no_next"
	StopNextDisabled     StopReason = "next_disabled"
	StopMaxPages         StopReason = "max_pages"
	StopNavigationStall  StopReason = "navigation_stalled"
	StopEmptyPage        StopReason = "empty_page"
	StopNavigationFailed StopReason = "navigation_failed"
	StopCancelled        StopReason = "cancelled"
)

// Page is a document the orchestrator can read and paginate.
type Page interface {
	// Snapshot returns the current content as a fresh Tree.
	Snapshot(ctx context.Context) (dom.Tree, error)
	// ClickNext activates the first element matching the next-control
	// selector. It may return before the new content is visible.
	ClickNext(ctx context.Context, selector string) error
}

// Summary describes a finished run.
type Summary struct {
	Pages      int
	Total      int
	StopReason StopReason
	Status     string
}

// Result is a finished run: its summary plus the exported records in
// scrape order.
type Result struct {
	Summary
	Records []types.Record
}

// Exporter receives the records of a finished run.
type Exporter interface {
	Export(ctx context.Context, records []types.Record, summary Summary) error
}

// Progress is a run notification.
type Progress struct {
	State   State
	Page    int
	Total   int
	Delay   time.Duration
	Message string
}

// ProgressFunc receives progress notifications. It is called on the run's
// goroutine and must not block.
type ProgressFunc func(Progress)

// RunState is owned by a single Run call.
type RunState struct {
	PageIndex int
	Total     int
	Cache     *DedupCache
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithMetrics records run counters into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRand overrides the source of randomized navigation delays.
func WithRand(r *rand.Rand) Option {
	return func(o *Orchestrator) { o.rng = r }
}

// Orchestrator drives scrape, navigate, wait and re-scrape over one Page.
// One Run may be in flight at a time.
type Orchestrator struct {
	page      Page
	exporter  Exporter
	extractor *extract.Extractor
	logger    *slog.Logger
	metrics   *observability.Metrics
	progress  ProgressFunc
	rng       *rand.Rand

	state   atomic.Int32
	running atomic.Bool
}

// NewOrchestrator creates an orchestrator for page. exporter may be nil,
// in which case results are only returned from Run.
func NewOrchestrator(page Page, exporter Exporter, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		page:      page,
		exporter:  exporter,
		extractor: extract.NewExtractor(logger),
		logger:    logger.With("component", "orchestrator"),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GetState returns the current state.
func (o *Orchestrator) GetState() State {
	return State(o.state.Load())
}

// Run scrapes the current page and, unless onlyCurrentPage is set, keeps
// following the next control until pagination ends, stalls or hits
// cfg.MaxPages. Whatever was collected is exported. Stalls, empty pages
// and cancellation end the run early but are not errors; only a failed
// first snapshot or a failed export is.
func (o *Orchestrator) Run(ctx context.Context, cfg config.ScrapeConfig, onlyCurrentPage bool) (*Result, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, types.ErrRunInProgress
	}
	defer o.running.Store(false)
	defer o.setState(StateIdle)

	if cfg.MaxPages <= 0 {
		cfg.MaxPages = config.DefaultMaxPages
	}
	waitOpts := WaitOptions{Timeout: cfg.ChangeTimeout, Interval: cfg.PollInterval}
	if waitOpts.Timeout <= 0 {
		waitOpts.Timeout = DefaultWaitOptions().Timeout
	}

	o.setState(StateInit)
	if o.metrics != nil {
		o.metrics.RunsStarted.Add(1)
	}
	rs := &RunState{PageIndex: 1, Cache: NewDedupCache(64)}

	o.setState(StateScrapingPage)
	tree, err := o.page.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot first page: %w", err)
	}
	o.scrape(tree, cfg, rs)
	o.notify(Progress{State: StateScrapingPage, Page: rs.PageIndex, Total: rs.Total,
		Message: fmt.Sprintf("page %d, %d reviews", rs.PageIndex, rs.Total)})

	reason := StopSinglePage
	if !onlyCurrentPage {
		reason = o.paginate(ctx, tree, cfg, waitOpts, rs)
	}

	return o.export(ctx, rs, reason)
}

// paginate loops over the remaining pages and returns why it stopped.
func (o *Orchestrator) paginate(ctx context.Context, tree dom.Tree, cfg config.ScrapeConfig, waitOpts WaitOptions, rs *RunState) StopReason {
	for rs.PageIndex < cfg.MaxPages {
		if ctx.Err() != nil {
			return StopCancelled
		}

		next := o.findNext(tree, cfg.NextSelector)
		if next == nil {
			return StopNoNext
		}
		if nextDisabled(tree, next) {
			return StopNextDisabled
		}

		baseline := ComputeSignature(tree, cfg.ItemSelector, cfg.Fields.Title)
		if err := o.page.ClickNext(ctx, cfg.NextSelector); err != nil {
			if ctx.Err() != nil {
				return StopCancelled
			}
			o.logger.Warn("next navigation failed", "page", rs.PageIndex, "error", err)
			if o.metrics != nil {
				o.metrics.NavigationFailures.Add(1)
			}
			return StopNavigationFailed
		}

		delay := o.randomWait(cfg.Wait, 2*cfg.Wait)
		o.notify(Progress{State: StateAwaitingNavigation, Page: rs.PageIndex, Total: rs.Total, Delay: delay,
			Message: fmt.Sprintf("page %d, %d reviews, waiting %s", rs.PageIndex, rs.Total, delay)})
		if err := sleepCtx(ctx, delay); err != nil {
			return StopCancelled
		}

		o.setState(StateAwaitingNavigation)
		changed, err := WaitForChange(ctx, o.signature(cfg), baseline, waitOpts)
		if err != nil {
			return StopCancelled
		}
		if !changed {
			o.logger.Info("no content change after navigation", "page", rs.PageIndex, "timeout", waitOpts.Timeout)
			if o.metrics != nil {
				o.metrics.NavigationStalls.Add(1)
			}
			return StopNavigationStall
		}
		rs.PageIndex++

		o.setState(StateScrapingPage)
		tree, err = o.page.Snapshot(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return StopCancelled
			}
			o.logger.Warn("snapshot after navigation failed", "page", rs.PageIndex, "error", err)
			return StopNavigationFailed
		}
		added := o.scrape(tree, cfg, rs)
		o.notify(Progress{State: StateScrapingPage, Page: rs.PageIndex, Total: rs.Total,
			Message: fmt.Sprintf("page %d, %d reviews", rs.PageIndex, rs.Total)})
		if added == 0 {
			return StopEmptyPage
		}
	}
	return StopMaxPages
}

// scrape extracts tree's records into the run cache and returns how many
// were new.
func (o *Orchestrator) scrape(tree dom.Tree, cfg config.ScrapeConfig, rs *RunState) int {
	containers := o.containers(tree, cfg.ItemSelector)
	records := o.extractor.ExtractAll(tree, containers, cfg.Fields)
	added := rs.Cache.AppendDedup(records, KeysOf(tree, containers))
	rs.Total = rs.Cache.Len()

	if o.metrics != nil {
		o.metrics.PagesScraped.Add(1)
		o.metrics.RecordsExtracted.Add(int64(len(records)))
		o.metrics.RecordsAdded.Add(int64(added))
		o.metrics.RecordsDuplicated.Add(int64(len(records) - added))
	}
	o.logger.Debug("page scraped", "page", rs.PageIndex, "found", len(records), "added", added, "total", rs.Total)
	return added
}

func (o *Orchestrator) export(ctx context.Context, rs *RunState, reason StopReason) (*Result, error) {
	o.setState(StateExporting)
	res := &Result{
		Summary: Summary{
			Pages:      rs.PageIndex,
			Total:      rs.Total,
			StopReason: reason,
			Status:     statusMessage(reason, rs.PageIndex, rs.Total),
		},
		Records: rs.Cache.Records(),
	}
	o.notify(Progress{State: StateExporting, Page: rs.PageIndex, Total: rs.Total, Message: res.Status})
	o.logger.Info("scrape finished", "pages", res.Pages, "total", res.Total, "stop_reason", reason)

	if reason == StopCancelled && o.metrics != nil {
		o.metrics.RunsCancelled.Add(1)
	}

	if o.exporter != nil {
		// A cancelled run still exports what it collected.
		exportCtx := ctx
		if ctx.Err() != nil {
			exportCtx = context.WithoutCancel(ctx)
		}
		if err := o.exporter.Export(exportCtx, res.Records, res.Summary); err != nil {
			return res, fmt.Errorf("export: %w", err)
		}
	}
	if o.metrics != nil {
		o.metrics.RunsCompleted.Add(1)
	}

	o.setState(StateDone)
	o.notify(Progress{State: StateDone, Page: res.Pages, Total: res.Total, Message: res.Status})
	return res, nil
}

// PreviewExtract extracts up to limit records from the current page
// without touching any run cache or paginating. limit <= 0 means all.
func (o *Orchestrator) PreviewExtract(ctx context.Context, cfg config.ScrapeConfig, limit int) ([]types.Record, error) {
	tree, err := o.page.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	containers := o.containers(tree, cfg.ItemSelector)
	if limit > 0 && len(containers) > limit {
		containers = containers[:limit]
	}
	return o.extractor.ExtractAll(tree, containers, cfg.Fields), nil
}

func (o *Orchestrator) signature(cfg config.ScrapeConfig) SignatureFunc {
	return func(ctx context.Context) (Fingerprint, error) {
		tree, err := o.page.Snapshot(ctx)
		if err != nil {
			return Fingerprint{}, err
		}
		return ComputeSignature(tree, cfg.ItemSelector, cfg.Fields.Title), nil
	}
}

func (o *Orchestrator) containers(tree dom.Tree, itemSelector string) []*html.Node {
	nodes, err := tree.QueryAll(itemSelector, nil)
	if err != nil {
		var selErr *types.SelectorError
		if errors.As(err, &selErr) {
			o.logger.Warn("item selector failed", "selector", itemSelector, "error", err)
		}
		return nil
	}
	return nodes
}

func (o *Orchestrator) findNext(tree dom.Tree, selector string) *html.Node {
	if strings.TrimSpace(selector) == "" {
		return nil
	}
	n, err := tree.QueryOne(selector, nil)
	if err != nil {
		o.logger.Warn("next selector failed", "selector", selector, "error", err)
		return nil
	}
	return n
}

// nextDisabled reports a next control marked unreachable.
func nextDisabled(tree dom.Tree, n *html.Node) bool {
	if strings.EqualFold(strings.TrimSpace(tree.Attr(n, "aria-disabled")), "true") {
		return true
	}
	if strings.TrimSpace(tree.Attr(n, "tabindex")) == "-1" {
		return true
	}
	return dom.HasAttr(n, "disabled")
}

// randomWait returns a duration drawn uniformly from [lo, hi].
func (o *Orchestrator) randomWait(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return max(lo, 0)
	}
	return lo + time.Duration(o.rng.Int63n(int64(hi-lo)+1))
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

func (o *Orchestrator) notify(p Progress) {
	if o.progress != nil {
		o.progress(p)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func statusMessage(reason StopReason, page, total int) string {
	switch reason {
	case StopNavigationStall:
		return fmt.Sprintf("no page change detected, stopped at page %d with %d reviews", page, total)
	case StopEmptyPage:
		return fmt.Sprintf("page %d added no new reviews, stopped with %d reviews", page, total)
	case StopNavigationFailed:
		return fmt.Sprintf("could not open the next page, stopped at page %d with %d reviews", page, total)
	case StopCancelled:
		return fmt.Sprintf("cancelled at page %d with %d reviews", page, total)
	default:
		return fmt.Sprintf("done: %d pages, %d reviews", page, total)
	}
}
