package picker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/IshaanNene/ReviewGoat/internal/dom"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

const containerSel = `article[data-service-review-card-paper="true"]`

const pageHTML = `<html><body><main>
<article class="card" data-service-review-card-paper="true">
  <span class="name">Ann</span>
  <div><p class="body">Good</p></div>
</article>
<article class="card" data-service-review-card-paper="true">
  <span class="name">Bob</span>
  <div><p class="body">Bad</p></div>
</article>
<a id="next" href="?page=2">Next</a>
</main></body></html>`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mustDoc(t *testing.T) *dom.Document {
	t.Helper()
	return parse(t, pageHTML)
}

func parse(t *testing.T, body string) *dom.Document {
	t.Helper()
	doc, err := dom.NewDocumentFromString(body, "https://example.com/reviews")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func mustQuery(t *testing.T, doc *dom.Document, sel string) *html.Node {
	t.Helper()
	nodes, err := doc.QueryAll(sel, nil)
	if err != nil || len(nodes) == 0 {
		t.Fatalf("query %q: %v (%d nodes)", sel, err, len(nodes))
	}
	return nodes[len(nodes)-1]
}

func TestResolve(t *testing.T) {
	doc := mustDoc(t)
	p := NewPicker(testLogger(), "", containerSel)

	tests := []struct {
		name      string
		target    string
		mode      Mode
		wantSel   string
		wantScope string
		wantMode  Mode
	}{
		{"relative field", "span.name", ModeRelative, "span.name", containerSel, ModeRelative},
		{"nested relative field", "p.body", ModeRelative, "p.body", containerSel, ModeRelative},
		{"absolute control", "a#next", ModeAbsolute, "#next", "", ModeAbsolute},
		{"relative outside container", "a#next", ModeRelative, "#next", "", ModeAbsolute},
		{"collection", "article.card", ModeCollection, containerSel, "", ModeCollection},
		{"collection without look-alikes", "a#next", ModeCollection, "#next", "", ModeAbsolute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Resolve(doc, mustQuery(t, doc, tt.target), tt.mode)
			if res.Selector != tt.wantSel || res.Scope != tt.wantScope || res.Mode != tt.wantMode {
				t.Errorf("got %+v, want selector %q scope %q mode %s", res, tt.wantSel, tt.wantScope, tt.wantMode)
			}
		})
	}
}

func TestResolveAbsoluteListsCandidates(t *testing.T) {
	doc := mustDoc(t)
	p := NewPicker(testLogger())

	res := p.Resolve(doc, mustQuery(t, doc, "a#next"), ModeAbsolute)
	if len(res.Candidates) == 0 {
		t.Fatal("expected candidates for an absolute pick")
	}
	if !res.Candidates[0].Unique() || res.Candidates[0].Selector != "#next" {
		t.Errorf("best candidate = %+v", res.Candidates[0])
	}
}

func TestPickResolvesFirstDecisiveEvent(t *testing.T) {
	doc := mustDoc(t)
	p := NewPicker(testLogger(), containerSel)

	events := make(chan Event, 3)
	events <- Event{Kind: EventPicked}
	events <- Event{Kind: EventPicked, Tree: doc, Node: mustQuery(t, doc, "span.name")}
	events <- Event{Kind: EventCancelled}

	res, err := p.Pick(context.Background(), events, ModeRelative)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if res.Selector != "span.name" {
		t.Errorf("selector = %q", res.Selector)
	}
	if len(events) != 1 {
		t.Errorf("pick should stop after the first decisive event, %d left", len(events))
	}
}

func TestPickCancellation(t *testing.T) {
	p := NewPicker(testLogger())

	t.Run("cancel event", func(t *testing.T) {
		events := make(chan Event, 1)
		events <- Event{Kind: EventCancelled}
		if _, err := p.Pick(context.Background(), events, ModeAbsolute); !errors.Is(err, types.ErrPickCancelled) {
			t.Errorf("expected ErrPickCancelled, got %v", err)
		}
	})

	t.Run("closed source", func(t *testing.T) {
		events := make(chan Event)
		close(events)
		if _, err := p.Pick(context.Background(), events, ModeAbsolute); !errors.Is(err, types.ErrPickCancelled) {
			t.Errorf("expected ErrPickCancelled, got %v", err)
		}
	})

	t.Run("context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Pick(ctx, make(chan Event), ModeAbsolute)
		if !errors.Is(err, types.ErrPickCancelled) {
			t.Errorf("expected ErrPickCancelled, got %v", err)
		}
	})
}

func TestTakeMarked(t *testing.T) {
	doc := parse(t, strings.Replace(pageHTML, `<span class="name">Bob`, `<span class="name" `+MarkerAttr+`="1">Bob`, 1))

	n := TakeMarked(doc.Root())
	if n == nil || doc.Text(n) != "Bob" {
		t.Fatalf("marked node = %v", n)
	}
	if dom.HasAttr(n, MarkerAttr) {
		t.Error("marker should be stripped")
	}
	if again := TakeMarked(doc.Root()); again != nil {
		t.Error("second take should find nothing")
	}
}
