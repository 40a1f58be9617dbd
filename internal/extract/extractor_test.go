package extract

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"

	"github.com/IshaanNene/ReviewGoat/internal/dom"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const reviewsHTML = `<html><body>
<div id="reviews">
  <article class="card">
    <span class="name">Ann Lee</span>
    <time>Jan 2, 2025</time>
    <div data-service-review-rating="4"><img src="/img/stars-4.svg" alt="Rated 4 out of 5 stars"></div>
    <h2>Great   service</h2>
    <p>Fast, "friendly" and cheap.</p>
  </article>
  <article class="card">
    <span class="name">Bob</span>
    <time>Jan 3, 2025</time>
    <h2>Meh</h2>
    <p>It was fine.</p>
  </article>
</div>
</body></html>`

func mustDoc(t *testing.T, body string) *dom.Document {
	t.Helper()
	doc, err := dom.NewDocumentFromString(body, "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

var cardFields = FieldSelectors{
	User:    "span.name",
	Date:    "time",
	Rating:  "div[data-service-review-rating] img",
	Title:   "h2",
	Content: "p",
}

func TestExtractAll(t *testing.T) {
	doc := mustDoc(t, reviewsHTML)
	containers, err := doc.QueryAll("article.card", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	got := NewExtractor(testLogger()).ExtractAll(doc, containers, cardFields)
	want := []types.Record{
		{Username: "Ann Lee", Date: "Jan 2, 2025", Rating: "4", Title: "Great service", Content: `Fast, "friendly" and cheap.`},
		{Username: "Bob", Date: "Jan 3, 2025", Rating: "", Title: "Meh", Content: "It was fine."},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractInvalidSelectorYieldsEmpty(t *testing.T) {
	doc := mustDoc(t, reviewsHTML)
	containers, _ := doc.QueryAll("article.card", nil)

	fields := cardFields
	fields.User = "span["
	rec := NewExtractor(testLogger()).Extract(doc, containers[0], fields)
	if rec.Username != "" {
		t.Errorf("expected empty username for invalid selector, got %q", rec.Username)
	}
	if rec.Title != "Great service" {
		t.Errorf("other fields should still extract, got title %q", rec.Title)
	}
}

// scopedFailTree rejects every scoped query so extraction has to fall back
// to the document-wide lookup.
type scopedFailTree struct{ *dom.Document }

func (s scopedFailTree) QueryOne(sel string, scope *html.Node) (*html.Node, error) {
	if scope != nil {
		return nil, &types.SelectorError{Selector: sel, Err: errors.New("not scopable")}
	}
	return s.Document.QueryOne(sel, nil)
}

func TestExtractFallsBackToDocument(t *testing.T) {
	doc := mustDoc(t, reviewsHTML)
	containers, _ := doc.QueryAll("article.card", nil)

	rec := NewExtractor(testLogger()).Extract(scopedFailTree{doc}, containers[1], FieldSelectors{Title: "#reviews h2"})
	if rec.Title != "Great service" {
		t.Errorf("expected document-wide fallback match, got %q", rec.Title)
	}
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		name string
		html string
		sel  string
		want string
	}{
		{"star class", `<i class="a-icon a-icon-star a-star-4"></i>`, "i", "4"},
		{"half star class", `<i class="a-icon a-star-4-5"></i>`, "i", "4.5"},
		{"icon alt text", `<i class="a-icon"><span class="a-icon-alt">3.0 out of 5 stars</span></i>`, "i", "3.0"},
		{"rated alt", `<img alt="Rated 2.5 out of 5 stars">`, "img", "2.5"},
		{"nested img alt", `<div class="stars"><img alt="Rated 1 out of 5 stars"></div>`, "div", "1"},
		{"ancestor attribute", `<div data-service-review-rating="5"><span><b>x</b></span></div>`, "b", "5"},
		{"own attribute", `<span data-rating="3">***</span>`, "span", "3"},
		{"src fragment", `<img src="https://cdn.example.com/stars-3.5.svg">`, "img", "3.5"},
		{"text fallback", `<span class="score">  Excellent  </span>`, "span", "Excellent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDoc(t, "<html><body>"+tt.html+"</body></html>")
			el, err := doc.QueryOne(tt.sel, nil)
			if err != nil || el == nil {
				t.Fatalf("query %q failed: %v", tt.sel, err)
			}
			if got := ParseRating(doc, el); got != tt.want {
				t.Errorf("ParseRating = %q, want %q", got, tt.want)
			}
		})
	}

	if got := ParseRating(mustDoc(t, "<p></p>"), nil); got != "" {
		t.Errorf("missing element should yield empty rating, got %q", got)
	}
}

func TestRenderStars(t *testing.T) {
	tests := []struct {
		rating string
		want   string
	}{
		{"", "-"},
		{"4", "★★★★☆ (4)"},
		{"3.5", "★★★½☆ (3.5)"},
		{"5.0", "★★★★★ (5.0)"},
		{"great", "great"},
		{"7", "★★★★★ (7)"},
	}
	for _, tt := range tests {
		if got := RenderStars(tt.rating); got != tt.want {
			t.Errorf("RenderStars(%q) = %q, want %q", tt.rating, got, tt.want)
		}
	}
}
