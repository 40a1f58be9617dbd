package types

import "strings"

// Record is one extracted review.
type Record struct {
	Username string `json:"username" bson:"username"`
	Date     string `json:"date"     bson:"date"`
	Rating   string `json:"rating"   bson:"rating"`
	Title    string `json:"title"    bson:"title"`
	Content  string `json:"content"  bson:"content"`
}

// Columns is the fixed export column order.
var Columns = []string{"username", "date", "rating", "title", "content"}

// Values returns the record fields in Columns order.
func (r Record) Values() []string {
	return []string{r.Username, r.Date, r.Rating, r.Title, r.Content}
}

// RecordFromValues builds a record from fields in Columns order.
// Missing trailing values are left empty.
func RecordFromValues(vals []string) Record {
	get := func(i int) string {
		if i < len(vals) {
			return vals[i]
		}
		return ""
	}
	return Record{
		Username: get(0),
		Date:     get(1),
		Rating:   get(2),
		Title:    get(3),
		Content:  get(4),
	}
}

// DedupKey identifies a record within one run. It is either
// "id:<stable-id>" or "tc:<lowercased title||content>".
type DedupKey string

const (
	idKeyPrefix = "id:"
	tcKeyPrefix = "tc:"
)

// IdentityKey builds a key from a stable identity attribute value.
func IdentityKey(id string) DedupKey {
	return DedupKey(idKeyPrefix + id)
}

// ContentKey builds a key from the visible title and content text.
func ContentKey(title, content string) DedupKey {
	return DedupKey(tcKeyPrefix + strings.ToLower(title+"||"+content))
}

// IsIdentity reports whether the key came from an identity attribute.
func (k DedupKey) IsIdentity() bool {
	return strings.HasPrefix(string(k), idKeyPrefix)
}

// CacheEntry is a record plus its dedup key, as held by the run cache.
type CacheEntry struct {
	Record Record
	Key    DedupKey
}
