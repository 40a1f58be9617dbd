// Package selector builds CSS selectors that identify a picked element,
// either document-wide or relative to an enclosing item container.
package selector

import (
	"log/slog"
	"strings"

	"golang.org/x/net/html"

	"github.com/IshaanNene/ReviewGoat/internal/dom"
)

const (
	// absolutePathDepth caps how many levels an absolute path may span.
	absolutePathDepth = 5
	// relativePathDepth caps how many levels a relative path may span.
	relativePathDepth = 8
)

// Specificity classifies how a candidate identifies its element.
type Specificity int

const (
	SpecPath     Specificity = 10
	SpecClass    Specificity = 20
	SpecStable   Specificity = 40
	SpecData     Specificity = 50
	SpecIdentity Specificity = 100
	SpecHook     Specificity = 110
)

// String returns the human-readable specificity class.
func (s Specificity) String() string {
	switch s {
	case SpecHook:
		return "hook"
	case SpecIdentity:
		return "identity"
	case SpecData:
		return "data"
	case SpecStable:
		return "stable"
	case SpecClass:
		return "class"
	case SpecPath:
		return "path"
	default:
		return "unknown"
	}
}

// Candidate is a generated selector with its specificity class.
type Candidate struct {
	Selector    string      `json:"selector"`
	Specificity Specificity `json:"specificity"`
	MatchCount  int         `json:"match_count"`
}

// Unique reports whether the candidate matched exactly one element.
func (c Candidate) Unique() bool { return c.MatchCount == 1 }

// Synthesizer produces selectors for elements of a Tree.
type Synthesizer struct {
	logger *slog.Logger
}

// NewSynthesizer creates a new selector synthesizer.
func NewSynthesizer(logger *slog.Logger) *Synthesizer {
	return &Synthesizer{
		logger: logger.With("component", "selector"),
	}
}

// Absolute returns a selector identifying n document-wide. When nothing
// validates it returns the best-effort structural path, which may match
// more than one element. It never fails.
func (s *Synthesizer) Absolute(tree dom.Tree, n *html.Node) string {
	if !dom.IsElement(n) {
		return ""
	}
	for _, c := range semanticCandidates(n) {
		if IsUnique(tree, c.Selector, nil) {
			s.logger.Debug("absolute selector", "selector", c.Selector, "class", c.Specificity)
			return c.Selector
		}
	}

	var parts []string
	cur := n
	for depth := 0; depth < absolutePathDepth && cur != nil; depth++ {
		parts = append([]string{pathPiece(cur)}, parts...)
		sel := strings.Join(parts, " > ")
		if IsUnique(tree, sel, nil) {
			s.logger.Debug("absolute path selector", "selector", sel, "depth", depth+1)
			return sel
		}
		cur = dom.Parent(cur)
	}
	sel := strings.Join(parts, " > ")
	s.logger.Debug("absolute selector not unique", "selector", sel)
	return sel
}

// Relative returns a selector identifying n when evaluated below scope.
// It returns "" when n is scope itself. When no candidate validates, the
// accumulated path is returned unvalidated.
func (s *Synthesizer) Relative(tree dom.Tree, n, scope *html.Node) string {
	if !dom.IsElement(n) || n == scope {
		return ""
	}

	if sel := hookSelector(n); sel != "" && resolvesTo(tree, sel, scope, n) {
		return sel
	}
	if sel := simpleSelector(n); sel != "" && resolvesTo(tree, sel, scope, n) {
		return sel
	}

	var parts []string
	cur := n
	for depth := 0; depth < relativePathDepth && cur != nil && cur != scope; depth++ {
		parts = append([]string{pathPiece(cur)}, parts...)
		sel := strings.Join(parts, " > ")
		if resolvesOnlyTo(tree, sel, scope, n) {
			return sel
		}
		cur = dom.Parent(cur)
	}
	sel := strings.Join(parts, " > ")
	s.logger.Debug("relative selector not validated", "selector", sel)
	return sel
}

// Candidates lists every semantic selector for n plus its shortest path,
// annotated with match counts. Unique candidates sort first, then by
// specificity.
func (s *Synthesizer) Candidates(tree dom.Tree, n *html.Node) []Candidate {
	if !dom.IsElement(n) {
		return nil
	}
	candidates := semanticCandidates(n)
	if path := s.Absolute(tree, n); path != "" && !containsSelector(candidates, path) {
		candidates = append(candidates, Candidate{Selector: path, Specificity: SpecPath})
	}
	for i := range candidates {
		candidates[i].MatchCount = MatchCount(tree, candidates[i].Selector, nil)
	}
	sortCandidates(candidates)
	return candidates
}

// semanticCandidates returns the non-structural selectors for n in
// priority order.
func semanticCandidates(n *html.Node) []Candidate {
	var out []Candidate
	add := func(sel string, spec Specificity) {
		if sel != "" {
			out = append(out, Candidate{Selector: sel, Specificity: spec})
		}
	}
	add(hookSelector(n), SpecHook)
	add(idSelector(n), SpecIdentity)
	add(dataSelector(n), SpecData)
	add(stableSelector(n), SpecStable)
	add(classSelector(n), SpecClass)
	return out
}

func containsSelector(candidates []Candidate, sel string) bool {
	for _, c := range candidates {
		if c.Selector == sel {
			return true
		}
	}
	return false
}

// sortCandidates orders unique candidates first, then by specificity
// descending. The sort is stable so equal candidates keep priority order.
func sortCandidates(candidates []Candidate) {
	for i := 1; i < len(candidates); i++ {
		key := candidates[i]
		j := i - 1
		for j >= 0 && less(key, candidates[j]) {
			candidates[j+1] = candidates[j]
			j--
		}
		candidates[j+1] = key
	}
}

func less(a, b Candidate) bool {
	if a.Unique() != b.Unique() {
		return a.Unique()
	}
	return a.Specificity > b.Specificity
}
