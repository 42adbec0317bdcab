// Package community implements modularity-optimizing community detection
// over weighted similarity graphs using the Louvain method (Blondel et al.,
// 2008).
//
// Detection is a pure function over an in-memory graph: no storage, no
// goroutines, no ambient state. Callers build a Graph from a deduplicated
// edge set and receive a dense integer partition plus the partition's global
// modularity score.
package community

import "sort"

// DefaultResolution is the resolution parameter of the modularity gain
// formula. Values above 1 bias toward more, smaller communities.
const DefaultResolution = 1.0

// Graph is an undirected weighted graph keyed by artifact id externally and
// by dense node index internally.
type Graph struct {
	ids   []string
	index map[string]int
	adj   []map[int]float64
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{index: make(map[string]int)}
}

// node returns the index for id, adding the node when unseen.
func (g *Graph) node(id string) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	i := len(g.ids)
	g.ids = append(g.ids, id)
	g.index[id] = i
	g.adj = append(g.adj, make(map[int]float64))
	return i
}

// AddEdge adds an undirected weighted edge. Parallel edges accumulate
// weight; self-loops are ignored, a similarity graph never produces them.
func (g *Graph) AddEdge(a, b string, weight float64) {
	if a == b || weight <= 0 {
		return
	}
	i, j := g.node(a), g.node(b)
	g.adj[i][j] += weight
	g.adj[j][i] += weight
}

// Order returns the number of nodes.
func (g *Graph) Order() int {
	return len(g.ids)
}

// Size returns the number of undirected edges.
func (g *Graph) Size() int {
	total := 0
	for _, neighbors := range g.adj {
		total += len(neighbors)
	}
	return total / 2
}

// Partition maps each artifact id to a community id. Community ids are
// renumbered densely from 0.
type Partition map[string]int

// CommunityCount returns the number of distinct communities.
func (p Partition) CommunityCount() int {
	seen := make(map[int]struct{}, len(p))
	for _, c := range p {
		seen[c] = struct{}{}
	}
	return len(seen)
}

// Louvain computes a modularity-optimized partition of g. It returns the
// partition and its global modularity in [-1, 1].
//
// The method alternates a local-moving phase (each node greedily joins the
// neighbor community with the highest modularity gain) with an aggregation
// phase (communities collapse into super-nodes) until no pass improves
// modularity. Sweeps visit nodes in index order and candidate communities in
// ascending id, and an equal-gain move keeps the current community, so
// identical input graphs always yield identical partitions even though the
// algorithm family does not guarantee it.
func Louvain(g *Graph, resolution float64) (Partition, float64) {
	if resolution <= 0 {
		resolution = DefaultResolution
	}

	n := g.Order()
	partition := make(Partition, n)
	if n == 0 {
		return partition, 0
	}

	// Working copy at the current aggregation level.
	w := &level{
		adj:  make([]map[int]float64, n),
		self: make([]float64, n),
	}
	for i, neighbors := range g.adj {
		w.adj[i] = make(map[int]float64, len(neighbors))
		for j, wt := range neighbors {
			w.adj[i][j] = wt
		}
	}

	// membership[i] is the current-level community of original node i.
	membership := make([]int, n)
	for i := range membership {
		membership[i] = i
	}

	for {
		moved := w.localMove(resolution)
		if !moved {
			break
		}

		comm, renumbered := w.communities()
		for i := range membership {
			membership[i] = renumbered[comm[membership[i]]]
		}
		w = w.aggregate(comm, renumbered)

		if len(w.adj) == len(comm) {
			// No community merged anything; a further pass cannot help.
			break
		}
	}

	// Final single-node-per-community state: membership already maps each
	// original node to its dense community id.
	for i, id := range g.ids {
		partition[id] = membership[i]
	}
	return partition, Modularity(g, partition, resolution)
}

// Modularity computes the resolution-scaled modularity of a partition over
// g: sum over communities of in/2m - resolution*(tot/2m)^2.
func Modularity(g *Graph, p Partition, resolution float64) float64 {
	if resolution <= 0 {
		resolution = DefaultResolution
	}

	var m2 float64
	degree := make([]float64, g.Order())
	for i, neighbors := range g.adj {
		for _, wt := range neighbors {
			degree[i] += wt
			m2 += wt
		}
	}
	if m2 == 0 {
		return 0
	}

	in := make(map[int]float64)
	tot := make(map[int]float64)
	for i, neighbors := range g.adj {
		ci, ok := p[g.ids[i]]
		if !ok {
			continue
		}
		tot[ci] += degree[i]
		for j, wt := range neighbors {
			if cj, ok := p[g.ids[j]]; ok && ci == cj {
				in[ci] += wt
			}
		}
	}

	var q float64
	for _, inWeight := range in {
		q += inWeight / m2
	}
	for _, totWeight := range tot {
		frac := totWeight / m2
		q -= resolution * frac * frac
	}
	return q
}

// level is the graph state at one aggregation level. Self-loop weights
// carry the intra-community weight of collapsed communities.
type level struct {
	adj  []map[int]float64
	self []float64
	comm []int
}

// localMove runs the greedy node-moving phase until no single move improves
// modularity. Returns whether any node changed community.
func (l *level) localMove(resolution float64) bool {
	n := len(l.adj)
	l.comm = make([]int, n)
	degree := make([]float64, n)
	sumTot := make([]float64, n)
	var m2 float64

	// Sorted adjacency fixes the accumulation and candidate order, so
	// equal-gain ties resolve the same way on every run over the same graph.
	nbrs := make([][]int, n)
	for i := range l.adj {
		l.comm[i] = i
		ns := make([]int, 0, len(l.adj[i]))
		for j := range l.adj[i] {
			ns = append(ns, j)
		}
		sort.Ints(ns)
		nbrs[i] = ns

		degree[i] = 2 * l.self[i]
		for _, j := range ns {
			degree[i] += l.adj[i][j]
		}
		sumTot[i] = degree[i]
		m2 += degree[i]
	}
	if m2 == 0 {
		return false
	}

	anyMoved := false
	for {
		improvedPass := false
		for i := 0; i < n; i++ {
			current := l.comm[i]

			// Weight from i to each neighboring community.
			neighWeight := make(map[int]float64)
			candidates := make([]int, 0, len(nbrs[i]))
			for _, j := range nbrs[i] {
				c := l.comm[j]
				if _, ok := neighWeight[c]; !ok {
					candidates = append(candidates, c)
				}
				neighWeight[c] += l.adj[i][j]
			}
			sort.Ints(candidates)

			// Remove i from its community.
			sumTot[current] -= degree[i]

			// Ascending order with strict improvement takes the lowest
			// community id among equal gains; a tie with the current
			// community keeps the node where it is.
			best := current
			bestGain := neighWeight[current] - resolution*sumTot[current]*degree[i]/m2
			for _, c := range candidates {
				if c == current {
					continue
				}
				gain := neighWeight[c] - resolution*sumTot[c]*degree[i]/m2
				if gain > bestGain {
					best, bestGain = c, gain
				}
			}

			sumTot[best] += degree[i]
			if best != current {
				l.comm[i] = best
				improvedPass = true
				anyMoved = true
			}
		}
		if !improvedPass {
			return anyMoved
		}
	}
}

// communities returns the community of each node and a dense renumbering of
// the community ids in use.
func (l *level) communities() ([]int, map[int]int) {
	renumbered := make(map[int]int)
	for _, c := range l.comm {
		if _, ok := renumbered[c]; !ok {
			renumbered[c] = len(renumbered)
		}
	}
	return l.comm, renumbered
}

// aggregate collapses each community into one super-node. Intra-community
// weight becomes the super-node's self-loop; inter-community weights sum.
func (l *level) aggregate(comm []int, renumbered map[int]int) *level {
	k := len(renumbered)
	next := &level{
		adj:  make([]map[int]float64, k),
		self: make([]float64, k),
	}
	for i := range next.adj {
		next.adj[i] = make(map[int]float64)
	}

	for i, neighbors := range l.adj {
		ci := renumbered[comm[i]]
		next.self[ci] += l.self[i]
		js := make([]int, 0, len(neighbors))
		for j := range neighbors {
			js = append(js, j)
		}
		sort.Ints(js)
		for _, j := range js {
			wt := neighbors[j]
			cj := renumbered[comm[j]]
			if ci == cj {
				// Each undirected intra edge is visited from both ends;
				// halving keeps the self-loop weight equal to the
				// one-sided intra weight.
				next.self[ci] += wt / 2
			} else {
				next.adj[ci][cj] += wt
			}
		}
	}
	return next
}
