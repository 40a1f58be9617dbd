// Package picker turns a single user click on a live page into a selector.
//
// A pick session is one-shot: it resolves with the first picked element or
// fails with types.ErrPickCancelled when the user aborts, the event source
// closes or the context ends.
package picker

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/net/html"

	"github.com/IshaanNene/ReviewGoat/internal/dom"
	"github.com/IshaanNene/ReviewGoat/internal/selector"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// MarkerAttr tags the picked element in a page snapshot.
const MarkerAttr = "data-reviewgoat-picked"

// EventKind distinguishes pick events.
type EventKind int

const (
	EventPicked EventKind = iota
	EventCancelled
)

// Event is emitted by a page driver while a pick session is active.
type Event struct {
	Kind EventKind
	Tree dom.Tree
	Node *html.Node
}

// Mode selects how the picked element is described.
type Mode int

const (
	// ModeAbsolute yields a document-wide selector. Used for the next
	// control.
	ModeAbsolute Mode = iota
	// ModeRelative yields a selector scoped to the enclosing review
	// container. Used for record fields.
	ModeRelative
	// ModeCollection yields a selector matching the picked element and its
	// look-alikes. Used for the item container.
	ModeCollection
)

func (m Mode) String() string {
	switch m {
	case ModeRelative:
		return "relative"
	case ModeCollection:
		return "collection"
	default:
		return "absolute"
	}
}

// Result is the outcome of a pick.
type Result struct {
	Selector string `json:"selector"`
	// Scope is the container selector a relative Selector is evaluated
	// under; empty for absolute results.
	Scope      string               `json:"scope,omitempty"`
	Mode       Mode                 `json:"-"`
	Candidates []selector.Candidate `json:"candidates,omitempty"`
}

// Picker resolves pick events into selectors.
type Picker struct {
	synth      *selector.Synthesizer
	containers []string
	logger     *slog.Logger
}

// NewPicker creates a picker. containers are tried in order to find the
// review container enclosing a relatively picked element.
func NewPicker(logger *slog.Logger, containers ...string) *Picker {
	var kept []string
	for _, c := range containers {
		if c != "" {
			kept = append(kept, c)
		}
	}
	return &Picker{
		synth:      selector.NewSynthesizer(logger),
		containers: kept,
		logger:     logger.With("component", "picker"),
	}
}

// Pick waits for the first decisive event and resolves it.
func (p *Picker) Pick(ctx context.Context, events <-chan Event, mode Mode) (Result, error) {
	for {
		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("%w: %v", types.ErrPickCancelled, ctx.Err())
		case ev, ok := <-events:
			if !ok {
				return Result{}, types.ErrPickCancelled
			}
			switch ev.Kind {
			case EventCancelled:
				p.logger.Info("pick cancelled")
				return Result{}, types.ErrPickCancelled
			case EventPicked:
				if ev.Tree == nil || ev.Node == nil {
					p.logger.Warn("pick event without element, ignoring")
					continue
				}
				return p.Resolve(ev.Tree, ev.Node, mode), nil
			}
		}
	}
}

// Resolve describes n. A relative pick outside any known container falls
// back to an absolute selector.
func (p *Picker) Resolve(tree dom.Tree, n *html.Node, mode Mode) Result {
	if mode == ModeRelative {
		if scope, scopeSel := p.container(n); scope != nil {
			if sel := p.synth.Relative(tree, n, scope); sel != "" {
				p.logger.Info("picked relative selector", "selector", sel, "scope", scopeSel)
				return Result{Selector: sel, Scope: scopeSel, Mode: ModeRelative}
			}
		}
		p.logger.Debug("no enclosing container, using absolute selector")
	}

	cands := p.synth.Candidates(tree, n)
	if mode == ModeCollection {
		// Candidates are ordered unique first, so the first shared one is
		// the most specific selector that also matches look-alikes.
		for _, c := range cands {
			if c.MatchCount > 1 {
				p.logger.Info("picked collection selector", "selector", c.Selector, "matches", c.MatchCount)
				return Result{Selector: c.Selector, Mode: ModeCollection, Candidates: cands}
			}
		}
		p.logger.Debug("no shared candidate, using absolute selector")
	}

	sel := p.synth.Absolute(tree, n)
	p.logger.Info("picked absolute selector", "selector", sel, "candidates", len(cands))
	return Result{Selector: sel, Mode: ModeAbsolute, Candidates: cands}
}

func (p *Picker) container(n *html.Node) (*html.Node, string) {
	for _, sel := range p.containers {
		c, err := dom.Closest(n, sel)
		if err != nil {
			p.logger.Warn("invalid container selector", "selector", sel, "error", err)
			continue
		}
		if c != nil && c != n {
			return c, sel
		}
	}
	return nil, ""
}

// TakeMarked finds the element carrying MarkerAttr in root, strips the
// marker and returns it. Nil when nothing is marked.
func TakeMarked(root *html.Node) *html.Node {
	var found *html.Node
	dom.Walk(root, func(n *html.Node) bool {
		if dom.HasAttr(n, MarkerAttr) {
			found = n
			return false
		}
		return true
	})
	if found != nil {
		dom.RemoveAttr(found, MarkerAttr)
	}
	return found
}
