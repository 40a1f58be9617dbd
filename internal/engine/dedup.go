package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/IshaanNene/ReviewGoat/internal/dom"
	"github.com/IshaanNene/ReviewGoat/internal/types"
)

// IdentityAttrs are checked in order for a stable per-review identifier.
var IdentityAttrs = []string{"data-review-id", "data-service-review-card-paper-id", "id"}

const (
	// DefaultTitleSelector finds a review title inside a container.
	DefaultTitleSelector = `h2, h5, [data-hook="review-title"]`
	// DefaultContentSelector finds a review body inside a container.
	DefaultContentSelector = `p, [data-hook="review-body"]`
)

// KeyOf derives the dedup key of an item container: the first identity
// attribute present, else the lowercased visible title and content.
// Distinct reviews with identical title and content collide.
func KeyOf(tree dom.Tree, container *html.Node) types.DedupKey {
	for _, name := range IdentityAttrs {
		if v := strings.TrimSpace(tree.Attr(container, name)); v != "" {
			return types.IdentityKey(v)
		}
	}
	return types.ContentKey(
		textOf(tree, DefaultTitleSelector, container),
		textOf(tree, DefaultContentSelector, container),
	)
}

// KeysOf returns KeyOf for every container.
func KeysOf(tree dom.Tree, containers []*html.Node) []types.DedupKey {
	keys := make([]types.DedupKey, len(containers))
	for i, c := range containers {
		keys[i] = KeyOf(tree, c)
	}
	return keys
}

// DedupCache is an append-only record store keyed by DedupKey. Entries keep
// scrape order.
type DedupCache struct {
	mu      sync.RWMutex
	seen    map[string]struct{}
	entries []types.CacheEntry
}

// NewDedupCache creates an empty cache with the given estimated capacity.
func NewDedupCache(estimatedCapacity int) *DedupCache {
	return &DedupCache{
		seen:    make(map[string]struct{}, estimatedCapacity),
		entries: make([]types.CacheEntry, 0, estimatedCapacity),
	}
}

// AppendDedup appends each record whose key is not yet present and returns
// how many were added. records and keys are paired by index; extra
// elements of the longer slice are ignored.
func (d *DedupCache) AppendDedup(records []types.Record, keys []types.DedupKey) int {
	n := min(len(records), len(keys))

	d.mu.Lock()
	defer d.mu.Unlock()

	added := 0
	for i := 0; i < n; i++ {
		h := hashKey(keys[i])
		if _, ok := d.seen[h]; ok {
			continue
		}
		d.seen[h] = struct{}{}
		d.entries = append(d.entries, types.CacheEntry{Record: records[i], Key: keys[i]})
		added++
	}
	return added
}

// Has reports whether key is already cached.
func (d *DedupCache) Has(key types.DedupKey) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.seen[hashKey(key)]
	return ok
}

// Len returns the number of cached records.
func (d *DedupCache) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Entries returns a copy of the cached entries in insertion order.
func (d *DedupCache) Entries() []types.CacheEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]types.CacheEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Records returns the cached records with keys stripped, in insertion order.
func (d *DedupCache) Records() []types.Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]types.Record, len(d.entries))
	for i, e := range d.entries {
		out[i] = e.Record
	}
	return out
}

// Reset clears the cache.
func (d *DedupCache) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]struct{})
	d.entries = nil
}

// hashKey compacts a key; content keys can be long.
func hashKey(k types.DedupKey) string {
	h := sha256.Sum256([]byte(k))
	return hex.EncodeToString(h[:16])
}

func textOf(tree dom.Tree, selector string, scope *html.Node) string {
	n, err := tree.QueryOne(selector, scope)
	if err != nil || n == nil {
		return ""
	}
	return tree.Text(n)
}
