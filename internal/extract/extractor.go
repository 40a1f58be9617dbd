// Package extract turns review item containers into records.
package extract

import (
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/net/html"

	"github.com/IshaanNene/ReviewGoat/internal/dom"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// FieldSelectors holds the per-field selectors, evaluated relative to one
// item container.
type FieldSelectors struct {
	User    string `mapstructure:"user" json:"user" yaml:"user"`
	Date    string `mapstructure:"date" json:"date" yaml:"date"`
	Rating  string `mapstructure:"rating" json:"rating" yaml:"rating"`
	Title   string `mapstructure:"title" json:"title" yaml:"title"`
	Content string `mapstructure:"content" json:"content" yaml:"content"`
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (f FieldSelectors) Trimmed() FieldSelectors {
	return FieldSelectors{
		User:    strings.TrimSpace(f.User),
		Date:    strings.TrimSpace(f.Date),
		Rating:  strings.TrimSpace(f.Rating),
		Title:   strings.TrimSpace(f.Title),
		Content: strings.TrimSpace(f.Content),
	}
}

// Extractor reads records out of item containers.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates a new record extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{
		logger: logger.With("component", "extractor"),
	}
}

// ExtractAll extracts one record per container, in container order.
func (e *Extractor) ExtractAll(tree dom.Tree, containers []*html.Node, fields FieldSelectors) []types.Record {
	records := make([]types.Record, 0, len(containers))
	for _, c := range containers {
		records = append(records, e.Extract(tree, c, fields))
	}
	return records
}

// Extract builds the record for a single container.
func (e *Extractor) Extract(tree dom.Tree, container *html.Node, fields FieldSelectors) types.Record {
	return types.Record{
		Username: e.text(tree, container, fields.User),
		Date:     e.text(tree, container, fields.Date),
		Rating:   ParseRating(tree, e.resolve(tree, container, fields.Rating)),
		Title:    e.text(tree, container, fields.Title),
		Content:  e.text(tree, container, fields.Content),
	}
}

func (e *Extractor) text(tree dom.Tree, container *html.Node, sel string) string {
	n := e.resolve(tree, container, sel)
	if n == nil {
		return ""
	}
	return tree.Text(n)
}

// resolve queries sel inside container. When the scoped query fails, for
// example because sel only makes sense document-wide, it retries against
// the whole document. Errors never escape; they mean "no match".
func (e *Extractor) resolve(tree dom.Tree, container *html.Node, sel string) *html.Node {
	if sel == "" || container == nil {
		return nil
	}
	n, err := queryOne(tree, sel, container)
	if err == nil {
		return n
	}
	e.logger.Debug("scoped query failed, retrying document-wide", "selector", sel, "error", err)
	n, err = queryOne(tree, sel, nil)
	if err != nil {
		return nil
	}
	return n
}

var errQueryPanic = errors.New("query panicked")

func queryOne(tree dom.Tree, sel string, scope *html.Node) (n *html.Node, err error) {
	defer func() {
		if recover() != nil {
			n, err = nil, errQueryPanic
		}
	}()
	return tree.QueryOne(sel, scope)
}
