package dom

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// Document is a Tree backed by a parsed HTML snapshot.
type Document struct {
	doc *goquery.Document
	url *url.URL
}

// NewDocument parses HTML from r. pageURL may be empty.
func NewDocument(r io.Reader, pageURL string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return newDocument(doc, pageURL)
}

// NewDocumentFromString parses an HTML string.
func NewDocumentFromString(body, pageURL string) (*Document, error) {
	return NewDocument(strings.NewReader(body), pageURL)
}

// NewDocumentFromNode wraps an already parsed tree.
func NewDocumentFromNode(root *html.Node, pageURL string) (*Document, error) {
	return newDocument(goquery.NewDocumentFromNode(root), pageURL)
}

func newDocument(doc *goquery.Document, pageURL string) (*Document, error) {
	d := &Document{doc: doc}
	if pageURL != "" {
		u, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("invalid page URL %q: %w", pageURL, err)
		}
		d.url = u
	}
	return d, nil
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.doc.Nodes[0]
}

// URL returns the page URL, or nil when the snapshot has none.
func (d *Document) URL() *url.URL {
	return d.url
}

// Selection exposes the underlying goquery document.
func (d *Document) Selection() *goquery.Document {
	return d.doc
}

// Location implements Tree.
func (d *Document) Location() string {
	if d.url == nil {
		return ""
	}
	loc := d.url.EscapedPath()
	if d.url.RawQuery != "" {
		loc += "?" + d.url.RawQuery
	}
	return loc
}

// QueryAll implements Tree. CSS selectors are compiled with cascadia; a
// selector prefixed with "xpath:" is evaluated with htmlquery.
func (d *Document) QueryAll(selector string, scope *html.Node) ([]*html.Node, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, &types.SelectorError{Selector: selector, Err: types.ErrEmptySelector}
	}
	if scope == nil {
		scope = d.Root()
	}

	if expr, ok := strings.CutPrefix(selector, XPathPrefix); ok {
		nodes, err := htmlquery.QueryAll(scope, strings.TrimSpace(expr))
		if err != nil {
			return nil, &types.SelectorError{Selector: selector, Err: err}
		}
		out := nodes[:0]
		for _, n := range nodes {
			if IsElement(n) && n != scope {
				out = append(out, n)
			}
		}
		return out, nil
	}

	group, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, &types.SelectorError{Selector: selector, Err: err}
	}
	return cascadia.QueryAll(scope, group), nil
}

// QueryOne implements Tree.
func (d *Document) QueryOne(selector string, scope *html.Node) (*html.Node, error) {
	nodes, err := d.QueryAll(selector, scope)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// Text implements Tree. Whitespace runs are collapsed to a single space,
// which approximates rendered text for markup-indented sources.
func (d *Document) Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	return CollapseSpace(goquery.NewDocumentFromNode(n).Text())
}

// Attr implements Tree.
func (d *Document) Attr(n *html.Node, name string) string {
	v, _ := AttrValue(n, name)
	return v
}

// HTML renders the snapshot back to markup.
func (d *Document) HTML() (string, error) {
	return goquery.OuterHtml(d.doc.Selection)
}

// CollapseSpace trims s and collapses inner whitespace runs.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
