package dom

import (
	"errors"
	"testing"

	"github.com/IshaanNene/ReviewGoat/internal/types"
)

const testHTML = `<!DOCTYPE html>
<html>
<body>
  <ul id="reviews">
    <li class="review" data-review-id="r1">
      <h2>  First
         title </h2>
      <p>Body one</p>
    </li>
    <li class="review" data-review-id="r2">
      <h2>Second title</h2>
      <p>Body two</p>
    </li>
  </ul>
  <a class="next" href="/page/2" aria-disabled="false">Next</a>
</body>
</html>`

func mustDoc(t *testing.T, body, pageURL string) *Document {
	t.Helper()
	doc, err := NewDocumentFromString(body, pageURL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestDocumentQueryAll(t *testing.T) {
	doc := mustDoc(t, testHTML, "https://example.com/reviews?page=1")

	items, err := doc.QueryAll("li.review", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	title, err := doc.QueryOne("h2", items[1])
	if err != nil {
		t.Fatalf("scoped query: %v", err)
	}
	if got := doc.Text(title); got != "Second title" {
		t.Errorf("expected 'Second title', got %q", got)
	}
}

func TestDocumentTextCollapsesWhitespace(t *testing.T) {
	doc := mustDoc(t, testHTML, "")
	h2, _ := doc.QueryOne("h2", nil)
	if got := doc.Text(h2); got != "First title" {
		t.Errorf("expected 'First title', got %q", got)
	}
	if got := doc.Text(nil); got != "" {
		t.Errorf("expected empty text for nil node, got %q", got)
	}
}

func TestDocumentInvalidSelector(t *testing.T) {
	doc := mustDoc(t, testHTML, "")

	for _, sel := range []string{"li[", "", "::::"} {
		_, err := doc.QueryAll(sel, nil)
		var selErr *types.SelectorError
		if !errors.As(err, &selErr) {
			t.Errorf("selector %q: expected SelectorError, got %v", sel, err)
		}
	}
}

func TestDocumentXPath(t *testing.T) {
	doc := mustDoc(t, testHTML, "")

	nodes, err := doc.QueryAll("xpath://li[@data-review-id='r2']/p", nil)
	if err != nil {
		t.Fatalf("xpath: %v", err)
	}
	if len(nodes) != 1 || doc.Text(nodes[0]) != "Body two" {
		t.Fatalf("unexpected xpath result: %d nodes", len(nodes))
	}

	if _, err := doc.QueryAll("xpath://li[", nil); err == nil {
		t.Error("expected error for malformed xpath")
	}
}

func TestDocumentLocation(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/reviews?page=2", "/reviews?page=2"},
		{"https://example.com/reviews", "/reviews"},
		{"", ""},
	}
	for _, tt := range tests {
		doc := mustDoc(t, testHTML, tt.url)
		if got := doc.Location(); got != tt.want {
			t.Errorf("Location(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestNodeHelpers(t *testing.T) {
	doc := mustDoc(t, testHTML, "")
	items, _ := doc.QueryAll("li", nil)

	pos, count := SameTagPosition(items[1])
	if pos != 2 || count != 2 {
		t.Errorf("expected position 2 of 2, got %d of %d", pos, count)
	}

	p, _ := doc.QueryOne("p", items[0])
	closest, err := Closest(p, "li[data-review-id]")
	if err != nil {
		t.Fatalf("closest: %v", err)
	}
	if closest != items[0] {
		t.Error("closest should return the enclosing li")
	}
	if !Contains(items[0], p) || Contains(items[1], p) {
		t.Error("Contains gave wrong answer")
	}

	if got := Classes(items[0]); len(got) != 1 || got[0] != "review" {
		t.Errorf("unexpected classes %v", got)
	}

	next, _ := doc.QueryOne("a.next", nil)
	RemoveAttr(next, "aria-disabled")
	if HasAttr(next, "aria-disabled") {
		t.Error("attribute should be removed")
	}
	if Parent(doc.Root()) != nil {
		t.Error("document root has no element parent")
	}
}
