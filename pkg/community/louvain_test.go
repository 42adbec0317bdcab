package community

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphBasics(t *testing.T) {
	g := NewGraph()
	g.AddEdge("a", "b", 0.8)
	g.AddEdge("b", "a", 0.2) // accumulates onto the same undirected edge
	g.AddEdge("b", "c", 0.5)
	g.AddEdge("c", "c", 1.0) // self-loop ignored
	g.AddEdge("a", "d", 0)   // zero weight ignored

	assert.Equal(t, 3, g.Order())
	assert.Equal(t, 2, g.Size())
}

func TestLouvainEmptyGraph(t *testing.T) {
	p, q := Louvain(NewGraph(), DefaultResolution)
	assert.Empty(t, p)
	assert.Zero(t, q)
}

func TestLouvainSinglePair(t *testing.T) {
	g := NewGraph()
	g.AddEdge("a", "b", 0.9)

	p, _ := Louvain(g, DefaultResolution)
	require.Len(t, p, 2)
	assert.Equal(t, p["a"], p["b"], "a connected pair forms one community")
}

// TestLouvainTwoClusters is the canonical well-separated case: two dense
// clusters joined by a single weak bridge must split into exactly two
// communities with healthy modularity.
func TestLouvainTwoClusters(t *testing.T) {
	g := NewGraph()

	left := []string{"l0", "l1", "l2", "l3", "l4"}
	right := []string{"r0", "r1", "r2", "r3", "r4"}
	for i := 0; i < len(left); i++ {
		for j := i + 1; j < len(left); j++ {
			g.AddEdge(left[i], left[j], 0.8)
			g.AddEdge(right[i], right[j], 0.8)
		}
	}
	g.AddEdge("l0", "r0", 0.1)

	p, q := Louvain(g, DefaultResolution)

	assert.Equal(t, 2, p.CommunityCount())
	assert.Greater(t, q, 0.3)

	for _, id := range left[1:] {
		assert.Equal(t, p["l0"], p[id])
	}
	for _, id := range right[1:] {
		assert.Equal(t, p["r0"], p[id])
	}
	assert.NotEqual(t, p["l0"], p["r0"])
}

func TestLouvainDenseCommunityIDs(t *testing.T) {
	g := NewGraph()
	for c := 0; c < 4; c++ {
		a := fmt.Sprintf("c%d-a", c)
		b := fmt.Sprintf("c%d-b", c)
		x := fmt.Sprintf("c%d-x", c)
		g.AddEdge(a, b, 0.9)
		g.AddEdge(b, x, 0.9)
		g.AddEdge(a, x, 0.9)
	}

	p, _ := Louvain(g, DefaultResolution)
	count := p.CommunityCount()
	assert.Equal(t, 4, count)
	for _, c := range p {
		assert.GreaterOrEqual(t, c, 0)
		assert.Less(t, c, count, "community ids must be dense from 0")
	}
}

// Higher resolution biases toward more, smaller communities.
func TestLouvainResolutionBias(t *testing.T) {
	g := NewGraph()
	// A ring of small triads, loosely chained together.
	for c := 0; c < 6; c++ {
		a := fmt.Sprintf("t%d-a", c)
		b := fmt.Sprintf("t%d-b", c)
		x := fmt.Sprintf("t%d-x", c)
		g.AddEdge(a, b, 1.0)
		g.AddEdge(b, x, 1.0)
		g.AddEdge(a, x, 1.0)
		next := fmt.Sprintf("t%d-a", (c+1)%6)
		g.AddEdge(x, next, 0.4)
	}

	pLow, _ := Louvain(g, 0.5)
	pHigh, _ := Louvain(g, 2.0)
	assert.LessOrEqual(t, pLow.CommunityCount(), pHigh.CommunityCount())
}

func TestModularityKnownValue(t *testing.T) {
	// Two disconnected unit-weight edges: Q = 2*(1/2 - (1/2)^2) = 0.5.
	g := NewGraph()
	g.AddEdge("a", "b", 1.0)
	g.AddEdge("c", "d", 1.0)

	p := Partition{"a": 0, "b": 0, "c": 1, "d": 1}
	assert.InDelta(t, 0.5, Modularity(g, p, DefaultResolution), 1e-9)

	// Everything in one community over a disconnected graph: Q = 0.
	all := Partition{"a": 0, "b": 0, "c": 0, "d": 0}
	assert.InDelta(t, 0.0, Modularity(g, all, DefaultResolution), 1e-9)
}

// TestLouvainHubSatelliteClusters models what a truncated nearest-neighbor
// graph looks like at scale: within each cluster a dense hub core plus
// satellites adjacent to every hub but not to each other. Satellites share
// all their neighbors without sharing an edge, and each cluster must still
// coalesce into a single community instead of fracturing along the hub
// boundary.
func TestLouvainHubSatelliteClusters(t *testing.T) {
	g := NewGraph()
	for _, side := range []string{"l", "r"} {
		for i := 0; i < 10; i++ {
			for j := i + 1; j < 10; j++ {
				g.AddEdge(fmt.Sprintf("%s-hub%02d", side, i), fmt.Sprintf("%s-hub%02d", side, j), 1.0)
			}
		}
		for s := 0; s < 15; s++ {
			for i := 0; i < 10; i++ {
				g.AddEdge(fmt.Sprintf("%s-sat%02d", side, s), fmt.Sprintf("%s-hub%02d", side, i), 1.0)
			}
		}
	}

	p, q := Louvain(g, DefaultResolution)

	assert.Equal(t, 2, p.CommunityCount())
	assert.Greater(t, q, 0.3)
	for _, side := range []string{"l", "r"} {
		want := p[side+"-hub00"]
		for i := 1; i < 10; i++ {
			assert.Equal(t, want, p[fmt.Sprintf("%s-hub%02d", side, i)])
		}
		for s := 0; s < 15; s++ {
			assert.Equal(t, want, p[fmt.Sprintf("%s-sat%02d", side, s)])
		}
	}
	assert.NotEqual(t, p["l-hub00"], p["r-hub00"])
}

// Every node on a uniform cycle sees two equal-gain moves, so any run-to-run
// wobble in tie-breaking would shuffle the partition. Identical graphs must
// produce identical assignments, not just identical counts.
func TestLouvainDeterministicUnderTies(t *testing.T) {
	build := func() *Graph {
		g := NewGraph()
		for i := 0; i < 12; i++ {
			g.AddEdge(fmt.Sprintf("n%02d", i), fmt.Sprintf("n%02d", (i+1)%12), 1.0)
		}
		return g
	}

	first, q1 := Louvain(build(), DefaultResolution)
	for run := 0; run < 5; run++ {
		p, q := Louvain(build(), DefaultResolution)
		require.InDelta(t, q1, q, 1e-12)
		require.Equal(t, first, p)
	}
}

func TestLouvainStableOnRepeatedRuns(t *testing.T) {
	build := func() *Graph {
		g := NewGraph()
		for i := 0; i < 4; i++ {
			for j := i + 1; j < 4; j++ {
				g.AddEdge(fmt.Sprintf("a%d", i), fmt.Sprintf("a%d", j), 0.7)
				g.AddEdge(fmt.Sprintf("b%d", i), fmt.Sprintf("b%d", j), 0.7)
			}
		}
		g.AddEdge("a0", "b0", 0.15)
		return g
	}

	p1, q1 := Louvain(build(), DefaultResolution)
	p2, q2 := Louvain(build(), DefaultResolution)
	assert.InDelta(t, q1, q2, 1e-9)
	assert.Equal(t, p1.CommunityCount(), p2.CommunityCount())
}
