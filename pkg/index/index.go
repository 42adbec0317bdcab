// Package index provides the nearest-neighbor primitives behind KNN graph
// building and semantic search.
//
// Two implementations are available:
//
//   - Flat: an exact O(n) scan. Acceptable for small corpora only; the
//     engine uses it below a configurable corpus-size threshold.
//   - HNSW: a Hierarchical Navigable Small World graph (Malkov & Yashunin,
//     IEEE TPAMI 2018) with sub-linear query time, used at scale.
//
// Both operate on cosine similarity. Filtered search takes an eligibility
// predicate so visibility scoping is applied inside the query, never after
// results leave the engine.
package index

import (
	"sync"

	"github.com/skillmesh/skillgraph/pkg/types"
	"github.com/skillmesh/skillgraph/pkg/vector"
)

// Hit is one nearest-neighbor result.
type Hit struct {
	ID         string
	Similarity float64
}

// Index is a mutable vector index over artifact embeddings.
type Index interface {
	// Add inserts or replaces the vector for an id.
	Add(id string, vec []float32) error

	// Remove drops an id from the index. Unknown ids are a no-op.
	Remove(id string)

	// Len returns the number of live vectors.
	Len() int

	// Search returns up to k hits most similar to vec, best first,
	// restricted to ids for which eligible returns true. A nil predicate
	// admits everything.
	Search(vec []float32, k int, eligible func(id string) bool) []Hit
}

// Flat is an exact scan index. Every query touches every vector, so it is
// O(n) per search; the engine only uses it for small corpora.
type Flat struct {
	mu      sync.RWMutex
	vectors map[string][]float32
	dims    int
}

// NewFlat creates an empty exact-scan index.
func NewFlat() *Flat {
	return &Flat{vectors: make(map[string][]float32)}
}

// Add implements Index.
func (f *Flat) Add(id string, vec []float32) error {
	if len(vec) == 0 {
		return types.ErrEmptyVector
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dims == 0 {
		f.dims = len(vec)
	} else if f.dims != len(vec) {
		return types.ErrDimensionDrift
	}
	f.vectors[id] = vec
	return nil
}

// Remove implements Index.
func (f *Flat) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.vectors, id)
}

// Len implements Index.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Search implements Index.
func (f *Flat) Search(vec []float32, k int, eligible func(id string) bool) []Hit {
	if k <= 0 || len(vec) == 0 {
		return nil
	}

	f.mu.RLock()
	scored := make([]vector.Scored[string], 0, len(f.vectors))
	for id, v := range f.vectors {
		if eligible != nil && !eligible(id) {
			continue
		}
		scored = append(scored, vector.Scored[string]{
			Item:  id,
			Score: vector.Similarity(vec, v),
		})
	}
	f.mu.RUnlock()

	top := vector.TopK(scored, k)
	if len(top) == 0 {
		return nil
	}
	hits := make([]Hit, len(top))
	for i, s := range top {
		hits[i] = Hit{ID: s.Item, Similarity: s.Score}
	}
	return hits
}
