// Package rank orders scored products and memoizes score breakdowns per
// (product fingerprint, query) pair so identical candidates are never
// rescored for the same search.
package rank

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/stylescout/stylescout-backend/internal/extractor"
	"github.com/stylescout/stylescout-backend/internal/scoring"
)

// MaxResults caps a ranked result list.
const MaxResults = 10

// DefaultCacheSize bounds the score cache. The reference implementation grew
// without bound across a browsing session; the LRU cap is a deliberate
// hardening.
const DefaultCacheSize = 2048

// Scored pairs a product record with its score for ranking.
type Scored struct {
	// ID is the stable handle the rendering layer uses to locate the
	// original element.
	ID     string
	Record extractor.ProductRecord
	Score  scoring.Breakdown
	// Order is the detection order, used to break score ties.
	Order int
}

// Fingerprint derives the cache key for a product under the current query:
// a stable hash of the image URL, the first 100 characters of the text, and
// the query string.
func Fingerprint(imageURL, textContent, queryKey string) string {
	if len(textContent) > 100 {
		textContent = textContent[:100]
	}
	h := sha256.New()
	h.Write([]byte(imageURL))
	h.Write([]byte{'|'})
	h.Write([]byte(textContent))
	h.Write([]byte{'|'})
	h.Write([]byte(queryKey))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Cache is a bounded LRU of score breakdowns keyed by fingerprint.
type Cache struct {
	lru *lru.Cache[string, scoring.Breakdown]
}

// NewCache returns a cache holding at most size entries. Size values below 1
// fall back to DefaultCacheSize.
func NewCache(size int) *Cache {
	if size < 1 {
		size = DefaultCacheSize
	}
	// lru.New only errors on a non-positive size, which is guarded above.
	c, _ := lru.New[string, scoring.Breakdown](size)
	return &Cache{lru: c}
}

// Get returns the cached breakdown for fingerprint, if any.
func (c *Cache) Get(fingerprint string) (scoring.Breakdown, bool) {
	return c.lru.Get(fingerprint)
}

// Put stores a breakdown under fingerprint, evicting the least recently
// used entry when full.
func (c *Cache) Put(fingerprint string, b scoring.Breakdown) {
	c.lru.Add(fingerprint, b)
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Rank filters out results below threshold, sorts the rest by final score
// descending with detection order breaking ties, and truncates to max.
// Batching upstream must not affect the output order, so the sort depends
// only on (score, detection order).
func Rank(results []Scored, threshold float64, max int) []Scored {
	if max <= 0 {
		max = MaxResults
	}

	kept := make([]Scored, 0, len(results))
	for _, r := range results {
		if r.Score.Final >= threshold {
			kept = append(kept, r)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score.Final != kept[j].Score.Final {
			return kept[i].Score.Final > kept[j].Score.Final
		}
		return kept[i].Order < kept[j].Order
	})

	if len(kept) > max {
		kept = kept[:max]
	}
	return kept
}
