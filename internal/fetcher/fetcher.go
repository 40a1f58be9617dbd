// Package fetcher provides the page drivers a scrape runs against: a plain
// HTTP driver that follows next links and a browser driver that clicks
// them in a live page.
package fetcher

import (
	"context"
	"io"

	"github.com/IshaanNene/ReviewGoat/internal/dom"
	"github.com/IshaanNene/ReviewGoat/internal/engine"
)

// Driver is a page the orchestrator can scrape, plus lifecycle control.
type Driver interface {
	engine.Page

	// Open loads rawURL as the current page.
	Open(ctx context.Context, rawURL string) error

	io.Closer

	// Type returns the driver type identifier.
	Type() string
}

var (
	_ Driver = (*HTTPPage)(nil)
	_ Driver = (*BrowserPage)(nil)
)

// nextTarget returns the link element for a next control: the control
// itself, its closest anchor ancestor, or its first anchor descendant.
func nextTarget(doc *dom.Document, selector string) (href string, found bool) {
	n, err := doc.QueryOne(selector, nil)
	if err != nil || n == nil {
		return "", false
	}
	if a, err := dom.Closest(n, "a[href]"); err == nil && a != nil {
		return doc.Attr(a, "href"), true
	}
	if a, err := doc.QueryOne("a[href]", n); err == nil && a != nil {
		return doc.Attr(a, "href"), true
	}
	return "", true
}
