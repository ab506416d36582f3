// Package search provides a simple, deterministic, concurrency-safe in-memory
// index over product titles. It is intentionally small and dependency-free:
//
//   - No logging in the library (callers decide how/what to log)
//   - Unicode-aware tokenization with optional stop-word removal
//   - Deterministic scoring and sorting (stable order for ties)
//   - Snapshot-on-rebuild: reads never block while the catalog is reindexed
//
// Scoring uses Jaccard similarity between the query token set and each
// title's token set, score = |Q ∩ T| / |Q ∪ T|, with a substring bonus so an
// exact fragment of a title always outranks loose token overlap.
package search

import (
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Entry is one indexed product.
type Entry struct {
	ID    string
	Title string
}

// Result is a ranked product with its similarity score.
type Result struct {
	ID    string
	Title string
	Score float64
}

// Index is the minimal interface the HTTP layer consumes.
type Index interface {
	TopK(query string, k int) []Result
}

// Option configures a ProductIndex.
type Option func(*config)

type config struct {
	stopwords map[string]struct{}
}

// WithStopwords removes the given words from both titles and queries before
// matching.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

type doc struct {
	id     string
	title  string
	lower  string
	tokens map[string]struct{}
}

// ProductIndex is a rebuildable title index. The document slice is replaced
// wholesale under the lock on Rebuild, so TopK works on a consistent
// snapshot.
type ProductIndex struct {
	cfg  config
	mu   sync.RWMutex
	docs []doc
}

// NewProductIndex builds an index over the given entries.
func NewProductIndex(entries []Entry, opts ...Option) *ProductIndex {
	idx := &ProductIndex{}
	for _, o := range opts {
		o(&idx.cfg)
	}
	idx.Rebuild(entries)
	return idx
}

// Rebuild replaces the indexed catalog. Call it after product churn; the
// swap is atomic with respect to concurrent TopK calls.
func (i *ProductIndex) Rebuild(entries []Entry) {
	docs := make([]doc, 0, len(entries))
	for _, e := range entries {
		title := strings.TrimSpace(e.Title)
		if e.ID == "" || title == "" {
			continue
		}
		docs = append(docs, doc{
			id:     e.ID,
			title:  title,
			lower:  strings.ToLower(title),
			tokens: tokenize(title, i.cfg.stopwords),
		})
	}

	i.mu.Lock()
	i.docs = docs
	i.mu.Unlock()
}

// TopK returns up to k products ranked by similarity to query, best first.
// Zero-score entries are dropped; ties break on title then ID so the order
// is stable across calls.
func (i *ProductIndex) TopK(query string, k int) []Result {
	if k <= 0 {
		return nil
	}
	qTokens := tokenize(query, i.cfg.stopwords)
	qLower := strings.ToLower(strings.TrimSpace(query))
	if len(qTokens) == 0 && qLower == "" {
		return nil
	}

	i.mu.RLock()
	docs := i.docs
	i.mu.RUnlock()

	out := make([]Result, 0, len(docs))
	for _, d := range docs {
		score := jaccard(qTokens, d.tokens)
		if qLower != "" && strings.Contains(d.lower, qLower) {
			// substring hit dominates token overlap
			score += 1.0
		}
		if score <= 0 {
			continue
		}
		out = append(out, Result{ID: d.id, Title: d.title, Score: score})
	}

	sort.Slice(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		if out[a].Title != out[b].Title {
			return out[a].Title < out[b].Title
		}
		return out[a].ID < out[b].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// tokenize lowercases s and splits it on any non-letter/non-digit rune,
// dropping stopwords.
func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		if _, skip := stop[f]; skip {
			continue
		}
		out[f] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
