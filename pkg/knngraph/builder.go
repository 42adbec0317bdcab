// Package knngraph derives the symmetric, thresholded nearest-neighbor edge
// set over an embedding space. The builder fans the per-node KNN queries out
// on a worker pool and collapses mirrored discoveries onto canonical
// unordered edge keys.
package knngraph

import (
	"context"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/skillmesh/skillgraph/pkg/index"
	"github.com/skillmesh/skillgraph/pkg/types"
)

const (
	// DefaultK is the number of nearest neighbors queried per node.
	DefaultK = 10
	// DefaultMinSimilarity is the floor below which candidate edges are
	// discarded.
	DefaultMinSimilarity = 0.3
)

// Node is one graph-eligible artifact with its embedding vector.
type Node struct {
	ID     string
	Vector []float32
}

// Builder computes deduplicated KNN edge sets. Safe for concurrent use; the
// worker pool is shared across builds.
type Builder struct {
	k      int
	minSim float64
	pool   *ants.Pool
}

// Option configures a Builder.
type Option func(*Builder)

// WithK overrides the per-node neighbor count.
func WithK(k int) Option {
	return func(b *Builder) {
		if k > 0 {
			b.k = k
		}
	}
}

// WithMinSimilarity overrides the edge similarity threshold.
func WithMinSimilarity(min float64) Option {
	return func(b *Builder) {
		if min >= 0 {
			b.minSim = min
		}
	}
}

// NewBuilder creates a Builder with a worker pool of the given size.
// size <= 0 uses the number of CPUs.
func NewBuilder(size int, opts ...Option) (*Builder, error) {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}
	b := &Builder{k: DefaultK, minSim: DefaultMinSimilarity, pool: pool}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Release frees the worker pool.
func (b *Builder) Release() {
	b.pool.Release()
}

// K returns the configured neighbor count.
func (b *Builder) K() int { return b.k }

// MinSimilarity returns the configured edge threshold.
func (b *Builder) MinSimilarity() float64 { return b.minSim }

// Build queries the K nearest other nodes for every node and returns the
// deduplicated edge set as canonical-pair keys to similarity weights. The
// index may hold more vectors than nodes; neighbors are restricted to the
// node set itself, so visibility scoping decided by the caller carries into
// the edge set.
//
// Build honors ctx between node scans; a cancelled build returns ctx.Err().
func (b *Builder) Build(ctx context.Context, nodes []Node, idx index.Index) (map[types.EdgeKey]float64, error) {
	members := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		members[n.ID] = struct{}{}
	}

	var (
		mu    sync.Mutex
		edges = make(map[types.EdgeKey]float64)
		wg    sync.WaitGroup
	)

	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			break
		}

		n := n
		wg.Add(1)
		err := b.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}

			// k+1 covers the node finding itself as its own nearest
			// neighbor.
			hits := idx.Search(n.Vector, b.k+1, func(id string) bool {
				_, ok := members[id]
				return ok
			})

			kept := 0
			mu.Lock()
			for _, hit := range hits {
				if hit.ID == n.ID {
					continue
				}
				if kept == b.k {
					break
				}
				kept++
				if hit.Similarity < b.minSim {
					continue
				}
				key := types.NewEdgeKey(n.ID, hit.ID)
				if existing, ok := edges[key]; !ok || hit.Similarity > existing {
					edges[key] = hit.Similarity
				}
			}
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			return nil, err
		}
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return edges, nil
}
