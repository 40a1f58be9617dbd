package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/IshaanNene/ReviewGoat/internal/dom"
)

// fingerprintTitleRunes caps the first-title prefix kept in a Fingerprint.
const fingerprintTitleRunes = 80

// Fingerprint is a cheap summary of the visible page content, compared
// before and after a navigation.
type Fingerprint struct {
	Location   string
	Count      int
	FirstTitle string
}

// String renders the fingerprint as location|count|title.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%s|%d|%s", f.Location, f.Count, f.FirstTitle)
}

// ComputeSignature fingerprints tree using the item container selector and
// the title selector relative to the first container. An empty title
// selector falls back to DefaultTitleSelector. Query errors count as no match.
func ComputeSignature(tree dom.Tree, itemSelector, titleSelector string) Fingerprint {
	fp := Fingerprint{Location: tree.Location()}

	items, err := tree.QueryAll(itemSelector, nil)
	if err != nil || len(items) == 0 {
		return fp
	}
	fp.Count = len(items)

	if titleSelector == "" {
		titleSelector = DefaultTitleSelector
	}
	fp.FirstTitle = truncateRunes(textOf(tree, titleSelector, items[0]), fingerprintTitleRunes)
	return fp
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// WaitOptions bounds a WaitForChange call.
type WaitOptions struct {
	Timeout  time.Duration
	Interval time.Duration
}

// DefaultWaitOptions returns the per-page-turn change detection bounds.
func DefaultWaitOptions() WaitOptions {
	return WaitOptions{
		Timeout:  8 * time.Second,
		Interval: 300 * time.Millisecond,
	}
}

// SignatureFunc recomputes the current fingerprint.
type SignatureFunc func(ctx context.Context) (Fingerprint, error)

// WaitForChange polls sig until it differs from baseline. Each iteration
// suspends for opts.Interval before sampling. It returns false once
// opts.Timeout has elapsed without a change, and ctx.Err() if the context
// ends first. Sampling errors count as "no change".
func WaitForChange(ctx context.Context, sig SignatureFunc, baseline Fingerprint, opts WaitOptions) (bool, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultWaitOptions().Interval
	}
	start := time.Now()
	for time.Since(start) < opts.Timeout {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(opts.Interval):
		}

		fp, err := sig(ctx)
		if err != nil {
			continue
		}
		if fp != baseline {
			return true, nil
		}
	}
	return false, nil
}
