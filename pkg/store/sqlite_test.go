package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmesh/skillgraph/pkg/types"
	"github.com/skillmesh/skillgraph/pkg/visibility"
)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "skillgraph.db"))
	require.NoError(t, err)
	return s
}

func TestSQLiteStoreContract(t *testing.T) {
	runStoreContract(t, newSQLiteStore)
}

func TestSQLiteStoreInMemory(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.Ping(context.Background()))
}

func TestSQLiteVectorRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	defer s.Close()

	vector := []float32{0.1, -2.5, 3.14159, 0, 1e-7}
	require.NoError(t, s.UpsertEmbedding(ctx, testEmbedding("a1", vector)))

	emb, err := s.GetEmbedding(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, emb)
	assert.Equal(t, vector, emb.Vector, "float32 blob encoding is exact")
}

func TestSQLiteReplaceFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	defer s.Close()

	now := time.Now().UTC()
	require.NoError(t, s.ReplaceAssignments(ctx, "org1", []types.CommunityAssignment{
		{OrgID: "org1", ArtifactID: "a1", CommunityID: 0, Modularity: 0.4, DetectedAt: now, RunID: "old"},
	}))

	// A duplicate artifact id violates the (org_id, artifact_id) primary key
	// mid-insert; the transaction must roll back in full.
	err := s.ReplaceAssignments(ctx, "org1", []types.CommunityAssignment{
		{OrgID: "org1", ArtifactID: "a2", CommunityID: 0, Modularity: 0.9, DetectedAt: now, RunID: "new"},
		{OrgID: "org1", ArtifactID: "a2", CommunityID: 1, Modularity: 0.9, DetectedAt: now, RunID: "new"},
	})
	require.Error(t, err)

	rows, err := s.ListAssignments(ctx, "org1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "old", rows["a1"].RunID, "failed swap left the old partition intact")
}

func TestSQLiteLexicalRanking(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	defer s.Close()

	seed := func(id, name, summary string) {
		a := testArtifact(id, "org1", "alice", visibility.Tenant, types.StatusPublished)
		a.Name = name
		a.Summary = summary
		require.NoError(t, s.PutArtifact(ctx, a))
	}
	seed("a1", "Docker Compose", "orchestrate containers with docker compose files")
	seed("a2", "Intro to Containers", "docker appears once here")
	seed("a3", "Unrelated", "nothing relevant")

	ids, err := s.SearchLexical(ctx, "org1", "docker compose", visibility.AnonymousFilter(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, ids)
	assert.Equal(t, "a1", ids[0], "artifact matching both terms in the name ranks first")
	assert.NotContains(t, ids, "a3")
}

func TestSQLiteLexicalSyntaxIsNeutralized(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	defer s.Close()

	a := testArtifact("a1", "org1", "alice", visibility.Tenant, types.StatusPublished)
	a.Name = "Quotes and stars"
	require.NoError(t, s.PutArtifact(ctx, a))

	// FTS operators in user input must not produce query errors.
	for _, q := range []string{`"quotes`, `stars*`, `NEAR(x y)`, `a AND`} {
		_, err := s.SearchLexical(ctx, "org1", q, visibility.AnonymousFilter(), 10)
		assert.NoError(t, err, "query %q", q)
	}
}

func TestSQLiteFTSStaysInSyncOnUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	defer s.Close()

	a := testArtifact("a1", "org1", "alice", visibility.Tenant, types.StatusPublished)
	a.Name = "Original Topic"
	require.NoError(t, s.PutArtifact(ctx, a))

	a.Name = "Renamed Subject"
	require.NoError(t, s.PutArtifact(ctx, a))

	stale, err := s.SearchLexical(ctx, "org1", "original topic", visibility.AnonymousFilter(), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	fresh, err := s.SearchLexical(ctx, "org1", "renamed", visibility.AnonymousFilter(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, fresh)

	require.NoError(t, s.DeleteArtifact(ctx, "org1", "a1"))
	gone, err := s.SearchLexical(ctx, "org1", "renamed", visibility.AnonymousFilter(), 10)
	require.NoError(t, err)
	assert.Empty(t, gone)
}
