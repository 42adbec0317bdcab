package types

// EdgeKey is the canonical identity of an undirected similarity edge.
// A is always the lexicographically smaller artifact ID, so an edge
// discovered from either endpoint's KNN scan collapses to the same key.
type EdgeKey struct {
	A string
	B string
}

// NewEdgeKey returns the canonical key for the unordered pair {a, b}.
func NewEdgeKey(a, b string) EdgeKey {
	if b < a {
		a, b = b, a
	}
	return EdgeKey{A: a, B: b}
}

// Edge is a derived, ephemeral similarity edge between two artifacts.
// Edges are recomputed from the embedding space at query time and never
// persisted. Similarity is 1 - cosine distance, in [0, 1] for the
// non-negative embedding spaces this engine serves.
type Edge struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Similarity float64 `json:"similarity"`
}

// Key returns the canonical key for this edge.
func (e Edge) Key() EdgeKey {
	return NewEdgeKey(e.Source, e.Target)
}

// EdgesFromSet flattens a deduplicated edge-weight map into a slice with
// canonical source/target ordering.
func EdgesFromSet(set map[EdgeKey]float64) []Edge {
	edges := make([]Edge, 0, len(set))
	for k, w := range set {
		edges = append(edges, Edge{Source: k.A, Target: k.B, Similarity: w})
	}
	return edges
}
