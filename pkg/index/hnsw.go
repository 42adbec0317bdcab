package index

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"

	"github.com/skillmesh/skillgraph/pkg/types"
	"github.com/skillmesh/skillgraph/pkg/vector"
)

// HNSW parameters. Defaults follow the ranges recommended in the original
// paper for high-recall text-embedding workloads.
const (
	DefaultM              = 16
	DefaultEFConstruction = 200
	DefaultEFSearch       = 64

	// filterOverfetch widens the layer-0 beam when a predicate is active,
	// compensating for candidates the filter will discard.
	filterOverfetch = 4
)

// hnswNode holds one vector and its per-layer neighbor lists.
// Neighbors[0] is the base layer. Vectors are stored unit-normalized so the
// similarity computation reduces to a dot product.
type hnswNode struct {
	id        string
	vec       []float32
	neighbors [][]uint32
	deleted   bool
}

// HNSW is a Hierarchical Navigable Small World index. It provides
// approximate nearest-neighbor search with sub-linear query time.
//
// Deletions are soft: the node stays in the graph as a routing point but is
// excluded from results. A corpus that churns heavily should be rebuilt
// periodically; the engine rebuilds per-org indexes on invalidation anyway.
type HNSW struct {
	mu sync.RWMutex

	m              int
	mMax0          int
	efConstruction int
	efSearch       int
	levelMult      float64

	nodes    []*hnswNode
	byID     map[string]uint32
	entry    uint32
	maxLevel int
	dims     int
	live     int

	rng *rand.Rand
}

// NewHNSW creates an empty HNSW index with default parameters.
func NewHNSW() *HNSW {
	return NewHNSWWithParams(DefaultM, DefaultEFConstruction, DefaultEFSearch)
}

// NewHNSWWithParams creates an empty HNSW index. m is the max connections
// per node per layer, efConstruction the construction beam width, efSearch
// the query beam width floor.
func NewHNSWWithParams(m, efConstruction, efSearch int) *HNSW {
	if m <= 0 {
		m = DefaultM
	}
	if efConstruction < m {
		efConstruction = DefaultEFConstruction
	}
	if efSearch <= 0 {
		efSearch = DefaultEFSearch
	}
	return &HNSW{
		m:              m,
		mMax0:          2 * m,
		efConstruction: efConstruction,
		efSearch:       efSearch,
		levelMult:      1.0 / math.Log(float64(m)),
		byID:           make(map[string]uint32),
		maxLevel:       -1,
		rng:            rand.New(rand.NewSource(1)),
	}
}

// Len implements Index.
func (h *HNSW) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.live
}

// Add implements Index. Re-adding an existing id replaces its vector by
// soft-deleting the old node and inserting a fresh one.
func (h *HNSW) Add(id string, vec []float32) error {
	if len(vec) == 0 {
		return types.ErrEmptyVector
	}
	normalized := vector.Normalize(vec)
	if normalized == nil {
		return types.ErrEmptyVector
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.dims == 0 {
		h.dims = len(vec)
	} else if h.dims != len(vec) {
		return types.ErrDimensionDrift
	}

	if old, ok := h.byID[id]; ok {
		if !h.nodes[old].deleted {
			h.nodes[old].deleted = true
			h.live--
		}
	}

	level := h.randomLevel()
	node := &hnswNode{
		id:        id,
		vec:       normalized,
		neighbors: make([][]uint32, level+1),
	}
	idx := uint32(len(h.nodes))
	h.nodes = append(h.nodes, node)
	h.byID[id] = idx
	h.live++

	if h.maxLevel < 0 {
		h.entry = idx
		h.maxLevel = level
		return nil
	}

	// Greedy descent through layers above the insertion level.
	ep := h.entry
	for l := h.maxLevel; l > level; l-- {
		ep = h.greedyClosest(normalized, ep, l)
	}

	// Beam search and bidirectional linking from the insertion level down.
	eps := []uint32{ep}
	for l := min(level, h.maxLevel); l >= 0; l-- {
		candidates := h.searchLayer(normalized, eps, h.efConstruction, l)
		maxConn := h.m
		if l == 0 {
			maxConn = h.mMax0
		}
		neighbors := h.selectClosest(normalized, candidates, h.m)
		node.neighbors[l] = neighbors

		for _, n := range neighbors {
			h.link(n, idx, l, maxConn)
		}
		eps = candidates
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entry = idx
	}
	return nil
}

// Remove implements Index.
func (h *HNSW) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if idx, ok := h.byID[id]; ok && !h.nodes[idx].deleted {
		h.nodes[idx].deleted = true
		h.live--
		delete(h.byID, id)
	}
}

// Search implements Index.
func (h *HNSW) Search(vec []float32, k int, eligible func(id string) bool) []Hit {
	if k <= 0 || len(vec) == 0 {
		return nil
	}
	q := vector.Normalize(vec)
	if q == nil {
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.maxLevel < 0 || h.live == 0 {
		return nil
	}

	ef := h.efSearch
	if ef < k+40 {
		ef = k + 40
	}
	if eligible != nil {
		ef *= filterOverfetch
	}

	ep := h.entry
	for l := h.maxLevel; l > 0; l-- {
		ep = h.greedyClosest(q, ep, l)
	}
	candidates := h.searchLayer(q, []uint32{ep}, ef, 0)

	scored := make([]vector.Scored[string], 0, len(candidates))
	for _, c := range candidates {
		n := h.nodes[c]
		if n.deleted {
			continue
		}
		if eligible != nil && !eligible(n.id) {
			continue
		}
		scored = append(scored, vector.Scored[string]{
			Item:  n.id,
			Score: clamp01(dot(q, n.vec)),
		})
	}

	top := vector.TopK(scored, k)
	hits := make([]Hit, len(top))
	for i, s := range top {
		hits[i] = Hit{ID: s.Item, Similarity: s.Score}
	}
	return hits
}

// randomLevel draws an insertion level from the exponential distribution
// that gives the hierarchy its logarithmic height.
func (h *HNSW) randomLevel() int {
	return int(math.Floor(-math.Log(h.rng.Float64()+1e-12) * h.levelMult))
}

// greedyClosest walks layer l from ep to the locally closest node to q.
func (h *HNSW) greedyClosest(q []float32, ep uint32, l int) uint32 {
	best := ep
	bestDist := h.distance(q, ep)
	for {
		improved := false
		for _, n := range h.neighborsAt(best, l) {
			if d := h.distance(q, n); d < bestDist {
				best, bestDist = n, d
				improved = true
			}
		}
		if !improved {
			return best
		}
	}
}

// searchLayer is the beam search from the paper: expand the closest
// unexplored candidate until the beam of ef results stops improving.
// Returns the ef closest node indexes found, unordered.
func (h *HNSW) searchLayer(q []float32, eps []uint32, ef int, l int) []uint32 {
	visited := make(map[uint32]struct{}, ef*4)
	candidates := &nearestQueue{}
	results := &furthestQueue{}
	heap.Init(candidates)
	heap.Init(results)

	for _, ep := range eps {
		if _, seen := visited[ep]; seen {
			continue
		}
		visited[ep] = struct{}{}
		d := h.distance(q, ep)
		heap.Push(candidates, queued{idx: ep, dist: d})
		heap.Push(results, queued{idx: ep, dist: d})
	}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(queued)
		if results.Len() >= ef && c.dist > (*results)[0].dist {
			break
		}
		for _, n := range h.neighborsAt(c.idx, l) {
			if _, seen := visited[n]; seen {
				continue
			}
			visited[n] = struct{}{}
			d := h.distance(q, n)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(candidates, queued{idx: n, dist: d})
				heap.Push(results, queued{idx: n, dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]uint32, results.Len())
	for i := range out {
		out[i] = (*results)[i].idx
	}
	return out
}

// selectClosest keeps the m candidates closest to q.
func (h *HNSW) selectClosest(q []float32, candidates []uint32, m int) []uint32 {
	scored := make([]vector.Scored[uint32], len(candidates))
	for i, c := range candidates {
		scored[i] = vector.Scored[uint32]{Item: c, Score: -h.distance(q, c)}
	}
	top := vector.TopK(scored, m)
	out := make([]uint32, len(top))
	for i, s := range top {
		out[i] = s.Item
	}
	return out
}

// link adds target to node's layer-l neighbor list, shrinking the list back
// to maxConn by keeping the closest connections.
func (h *HNSW) link(node, target uint32, l, maxConn int) {
	n := h.nodes[node]
	if l >= len(n.neighbors) {
		return
	}
	n.neighbors[l] = append(n.neighbors[l], target)
	if len(n.neighbors[l]) > maxConn {
		n.neighbors[l] = h.selectClosest(n.vec, n.neighbors[l], maxConn)
	}
}

func (h *HNSW) neighborsAt(idx uint32, l int) []uint32 {
	n := h.nodes[idx]
	if l >= len(n.neighbors) {
		return nil
	}
	return n.neighbors[l]
}

// distance is cosine distance over unit vectors: 1 - dot.
func (h *HNSW) distance(q []float32, idx uint32) float64 {
	return 1 - dot(q, h.nodes[idx].vec)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// queued is a node index with its distance to the query.
type queued struct {
	idx  uint32
	dist float64
}

// nearestQueue pops the smallest distance first.
type nearestQueue []queued

func (q nearestQueue) Len() int           { return len(q) }
func (q nearestQueue) Less(i, j int) bool { return q[i].dist < q[j].dist }
func (q nearestQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *nearestQueue) Push(x any)        { *q = append(*q, x.(queued)) }
func (q *nearestQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// furthestQueue pops the largest distance first, bounding the result beam.
type furthestQueue []queued

func (q furthestQueue) Len() int           { return len(q) }
func (q furthestQueue) Less(i, j int) bool { return q[i].dist > q[j].dist }
func (q furthestQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *furthestQueue) Push(x any)        { *q = append(*q, x.(queued)) }
func (q *furthestQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}
