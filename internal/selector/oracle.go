package selector

import (
	"golang.org/x/net/html"

	"github.com/IshaanNene/ReviewGoat/internal/dom"
)

// IsUnique reports whether selector matches exactly one element below
// scope (the whole document when scope is nil). Invalid selectors are
// never unique.
func IsUnique(tree dom.Tree, selector string, scope *html.Node) bool {
	return MatchCount(tree, selector, scope) == 1
}

// MatchCount returns how many elements selector matches below scope, or 0
// when the selector cannot be evaluated.
func MatchCount(tree dom.Tree, selector string, scope *html.Node) int {
	nodes, ok := queryAll(tree, selector, scope)
	if !ok {
		return 0
	}
	return len(nodes)
}

// resolvesTo reports whether the first match of selector below scope is want.
func resolvesTo(tree dom.Tree, selector string, scope, want *html.Node) bool {
	nodes, ok := queryAll(tree, selector, scope)
	return ok && len(nodes) > 0 && nodes[0] == want
}

// resolvesOnlyTo reports whether selector matches want and nothing else.
func resolvesOnlyTo(tree dom.Tree, selector string, scope, want *html.Node) bool {
	nodes, ok := queryAll(tree, selector, scope)
	return ok && len(nodes) == 1 && nodes[0] == want
}

// queryAll runs the query and folds both errors and panics from the tree
// implementation into ok=false.
func queryAll(tree dom.Tree, selector string, scope *html.Node) (nodes []*html.Node, ok bool) {
	defer func() {
		if recover() != nil {
			nodes, ok = nil, false
		}
	}()
	nodes, err := tree.QueryAll(selector, scope)
	if err != nil {
		return nil, false
	}
	return nodes, true
}
