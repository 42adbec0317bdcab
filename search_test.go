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

func seedNamedArtifact(t *testing.T, e *Engine, st store.Store, id, name, summary string, vec []float32) {
	t.Helper()
	require.NoError(t, st.PutArtifact(context.Background(), &types.Artifact{
		ID:         id,
		OrgID:      "org1",
		AuthorID:   "author",
		Name:       name,
		Summary:    summary,
		Visibility: visibility.Tenant,
		Status:     types.StatusPublished,
	}))
	if vec != nil {
		seedEmbedding(t, e, id, vec)
	}
}

func TestSearchHybridFusion(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	e := newTestEngine(t, st)

	// "both" matches lexically and sits next to the query vector; it must
	// outrank single-list candidates.
	seedNamedArtifact(t, e, st, "both", "Kubernetes Deployment", "deploying to kubernetes", unit([]float32{1, 0.05, 0, 0}))
	seedNamedArtifact(t, e, st, "lex-only", "Kubernetes Basics", "kubernetes notes", unit([]float32{0, 0, 1, 0}))
	seedNamedArtifact(t, e, st, "sem-only", "Container Orchestration", "workload scheduling", unit([]float32{1, 0.1, 0, 0}))

	results, err := e.Search(ctx, "org1", "kubernetes", unit([]float32{1, 0, 0, 0}), "", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "both", results[0].ID)

	byID := map[string]types.SearchResult{}
	for _, r := range results {
		byID[r.ID] = r
	}
	both := byID["both"]
	require.NotNil(t, both.FtRank)
	require.NotNil(t, both.SmRank)
	assert.InDelta(t, 1.0/(60+float64(*both.FtRank))+1.0/(60+float64(*both.SmRank)), both.RRFScore, 1e-12)

	lex := byID["lex-only"]
	require.NotNil(t, lex.FtRank)
	assert.Nil(t, lex.SmRank)
	assert.InDelta(t, 1.0/(60+float64(*lex.FtRank)), lex.RRFScore, 1e-12)
}

func TestSearchSemanticOnlyResults(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	e := newTestEngine(t, st)

	// Five artifacts near the query vector, none matching the query text.
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		seedNamedArtifact(t, e, st, id, "Topic "+id, "notes about "+id, clusterVec(0, i))
	}

	results, err := e.Search(ctx, "org1", "zzzzz", unit([]float32{1, 0, 0, 0}), "", 10)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for _, r := range results {
		assert.Nil(t, r.FtRank, "no lexical match for %s", r.ID)
		require.NotNil(t, r.SmRank)
		assert.InDelta(t, 1.0/(60+float64(*r.SmRank)), r.RRFScore, 1e-12)
	}
}

func TestSearchLexicalOnlyDegradedMode(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	e := newTestEngine(t, st)

	seedNamedArtifact(t, e, st, "a1", "Terraform Modules", "infrastructure as code", nil)

	results, err := e.Search(ctx, "org1", "terraform", nil, "", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a1", results[0].ID)
	require.NotNil(t, results[0].FtRank)
	assert.Nil(t, results[0].SmRank)
}

func TestSearchVisibilityIsolation(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	e := newTestEngine(t, st)

	require.NoError(t, st.PutArtifact(ctx, &types.Artifact{
		ID: "pub", OrgID: "org1", AuthorID: "alice", Name: "Shared Helm Guide",
		Visibility: visibility.Tenant, Status: types.StatusPublished,
	}))
	require.NoError(t, st.PutArtifact(ctx, &types.Artifact{
		ID: "secret", OrgID: "org1", AuthorID: "alice", Name: "Secret Helm Guide",
		Visibility: visibility.Private, Status: types.StatusPublished,
	}))
	seedEmbedding(t, e, "pub", unit([]float32{1, 0, 0, 0}))
	seedEmbedding(t, e, "secret", unit([]float32{1, 0.01, 0, 0}))

	anon, err := e.Search(ctx, "org1", "helm", unit([]float32{1, 0, 0, 0}), "", 10)
	require.NoError(t, err)
	for _, r := range anon {
		assert.NotEqual(t, "secret", r.ID)
		assert.NotContains(t, []string{string(visibility.Personal), string(visibility.Private)}, r.Visibility)
	}

	bob, err := e.Search(ctx, "org1", "helm", unit([]float32{1, 0, 0, 0}), "bob", 10)
	require.NoError(t, err)
	for _, r := range bob {
		assert.NotEqual(t, "secret", r.ID, "another principal never sees alice's private artifact")
	}

	alice, err := e.Search(ctx, "org1", "helm", unit([]float32{1, 0, 0, 0}), "alice", 10)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, r := range alice {
		ids[r.ID] = true
	}
	assert.True(t, ids["secret"], "author finds own private artifact")
}

func TestSearchLimitAndTieBreaks(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	e := newTestEngine(t, st)

	// Same lexical relevance; usage count breaks the fused-score tie.
	require.NoError(t, st.PutArtifact(ctx, &types.Artifact{
		ID: "low", OrgID: "org1", AuthorID: "a", Name: "Ansible Guide",
		Visibility: visibility.Tenant, Status: types.StatusPublished, UsageCount: 1,
	}))
	require.NoError(t, st.PutArtifact(ctx, &types.Artifact{
		ID: "high", OrgID: "org1", AuthorID: "a", Name: "Ansible Handbook",
		Visibility: visibility.Tenant, Status: types.StatusPublished, UsageCount: 50,
	}))

	results, err := e.Search(ctx, "org1", "ansible", nil, "", 1)
	require.NoError(t, err)
	require.Len(t, results, 1, "limit applies after fusion")
	assert.Equal(t, "high", results[0].ID)

	// Default limit kicks in for limit <= 0.
	all, err := e.Search(ctx, "org1", "ansible", nil, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
