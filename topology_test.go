package skillgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmesh/skillgraph/pkg/store"
	"github.com/skillmesh/skillgraph/pkg/types"
	"github.com/skillmesh/skillgraph/pkg/visibility"
)

func TestTopologyBeforeDetection(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	e := newTestEngine(t, st)

	seedTwoClusters(t, e, st, "org1", 6)

	topo, err := e.GetTopology(ctx, "org1", "")
	require.NoError(t, err)
	require.Len(t, topo.Nodes, 6)
	for _, n := range topo.Nodes {
		assert.Nil(t, n.CommunityID, "no detection run yet")
	}
	assert.NotEmpty(t, topo.Edges, "edges are recomputed live, not read from persisted state")
	assert.Empty(t, topo.Communities)
	assert.Zero(t, topo.Stats.CommunityCount)
}

func TestTopologyAfterDetection(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	e := newTestEngine(t, st)

	seedTwoClusters(t, e, st, "org1", 20)
	result, err := e.DetectCommunities(ctx, "org1")
	require.NoError(t, err)

	topo, err := e.GetTopology(ctx, "org1", "")
	require.NoError(t, err)
	require.Len(t, topo.Nodes, 20)
	for _, n := range topo.Nodes {
		require.NotNil(t, n.CommunityID)
		assert.NotEmpty(t, n.CommunityLabel)
	}

	require.Len(t, topo.Communities, 2)
	assert.GreaterOrEqual(t, topo.Communities[0].MemberCount, topo.Communities[1].MemberCount,
		"summaries sorted by member count descending")
	assert.Equal(t, 2, topo.Stats.CommunityCount)
	assert.InDelta(t, result.Modularity, topo.Stats.Modularity, 1e-12)

	// Label is the highest-usage member's name. Usage counts were seeded
	// as the artifact index, so the top member of each community names it.
	for _, c := range topo.Communities {
		assert.Contains(t, c.Label, "Skill art-")
	}
}

func TestTopologyUnassignedArtifactHasNilCommunity(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	e := newTestEngine(t, st)

	seedTwoClusters(t, e, st, "org1", 10)
	_, err := e.DetectCommunities(ctx, "org1")
	require.NoError(t, err)

	// A new artifact published after the run has no assignment yet.
	seedArtifact(t, st, "late-1", "org1", "author", visibility.Tenant, types.StatusPublished, 0)
	seedEmbedding(t, e, "late-1", spreadVec(0, 60))

	topo, err := e.GetTopology(ctx, "org1", "")
	require.NoError(t, err)
	require.Len(t, topo.Nodes, 11)
	var late *types.TopologyNode
	for i := range topo.Nodes {
		if topo.Nodes[i].ID == "late-1" {
			late = &topo.Nodes[i]
		}
	}
	require.NotNil(t, late)
	assert.Nil(t, late.CommunityID)
	assert.Empty(t, late.CommunityLabel)
}

func TestTopologyPrincipalFlags(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	e := newTestEngine(t, st)

	seedArtifact(t, st, "mine", "org1", "alice", visibility.Tenant, types.StatusPublished, 0)
	seedArtifact(t, st, "theirs", "org1", "bob", visibility.Tenant, types.StatusPublished, 0)
	seedEmbedding(t, e, "mine", clusterVec(0, 0))
	seedEmbedding(t, e, "theirs", clusterVec(1, 0))
	require.NoError(t, st.RecordUsage(ctx, "org1", "alice", "theirs"))

	topo, err := e.GetTopology(ctx, "org1", "alice")
	require.NoError(t, err)
	require.Len(t, topo.Nodes, 2)

	byID := map[string]types.TopologyNode{}
	for _, n := range topo.Nodes {
		byID[n.ID] = n
	}
	assert.True(t, byID["mine"].Authored)
	assert.False(t, byID["mine"].Used)
	assert.False(t, byID["theirs"].Authored)
	assert.True(t, byID["theirs"].Used)
}

func TestTopologyVisibilityIsolation(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	e := newTestEngine(t, st)

	seedArtifact(t, st, "pub", "org1", "alice", visibility.Tenant, types.StatusPublished, 0)
	seedArtifact(t, st, "alice-private", "org1", "alice", visibility.Private, types.StatusPublished, 0)
	seedArtifact(t, st, "bob-personal", "org1", "bob", visibility.Personal, types.StatusPublished, 0)
	seedEmbedding(t, e, "pub", clusterVec(0, 0))
	seedEmbedding(t, e, "alice-private", clusterVec(0, 1))
	seedEmbedding(t, e, "bob-personal", clusterVec(0, 2))

	anon, err := e.GetTopology(ctx, "org1", "")
	require.NoError(t, err)
	require.Len(t, anon.Nodes, 1)
	assert.Equal(t, "pub", anon.Nodes[0].ID)
	for _, edge := range anon.Edges {
		assert.NotContains(t, []string{"alice-private", "bob-personal"}, edge.Source)
		assert.NotContains(t, []string{"alice-private", "bob-personal"}, edge.Target)
	}

	alice, err := e.GetTopology(ctx, "org1", "alice")
	require.NoError(t, err)
	ids := map[string]bool{}
	var sawPrivateEdge bool
	for _, n := range alice.Nodes {
		ids[n.ID] = true
	}
	for _, edge := range alice.Edges {
		if edge.Source == "alice-private" || edge.Target == "alice-private" {
			sawPrivateEdge = true
		}
		assert.NotEqual(t, "bob-personal", edge.Source)
		assert.NotEqual(t, "bob-personal", edge.Target)
	}
	assert.True(t, ids["alice-private"], "author sees own private artifact")
	assert.False(t, ids["bob-personal"], "another author's personal artifact stays hidden")
	assert.True(t, sawPrivateEdge, "own private artifact participates in the principal's edge set")
}
