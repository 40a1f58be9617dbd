// Package dom provides the queryable-tree capability the scrape core runs
// against. A Tree is a read-only snapshot; element handles are *html.Node
// values borrowed from it.
package dom

import (
	"golang.org/x/net/html"
)

// XPathPrefix marks a selector that is evaluated as XPath instead of CSS.
const XPathPrefix = "xpath:"

// Tree is the capability injected into the selector synthesizer, the record
// extractor and the orchestrator.
type Tree interface {
	// QueryOne returns the first element matching selector below scope, or
	// nil. A nil scope means the whole document.
	QueryOne(selector string, scope *html.Node) (*html.Node, error)

	// QueryAll returns every element matching selector below scope in
	// document order.
	QueryAll(selector string, scope *html.Node) ([]*html.Node, error)

	// Text returns the trimmed visible text of n.
	Text(n *html.Node) string

	// Attr returns the value of attribute name on n, or "".
	Attr(n *html.Node, name string) string

	// Location returns the page path plus query string.
	Location() string
}
