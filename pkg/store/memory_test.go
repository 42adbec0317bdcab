package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmesh/skillgraph/pkg/types"
	"github.com/skillmesh/skillgraph/pkg/visibility"
)

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestMemoryStoreReplaceFailureLeavesOldRows(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	now := time.Now().UTC()
	require.NoError(t, s.ReplaceAssignments(ctx, "org1", []types.CommunityAssignment{
		{OrgID: "org1", ArtifactID: "a1", CommunityID: 0, Modularity: 0.4, DetectedAt: now, RunID: "r1"},
	}))

	injected := errors.New("backend down")
	s.FailNextReplace(injected)
	err := s.ReplaceAssignments(ctx, "org1", []types.CommunityAssignment{
		{OrgID: "org1", ArtifactID: "a2", CommunityID: 0, Modularity: 0.9, DetectedAt: now, RunID: "r2"},
	})
	assert.ErrorIs(t, err, injected)

	rows, err := s.ListAssignments(ctx, "org1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "r1", rows["a1"].RunID, "failed swap left the old partition intact")
}

func TestMemoryStoreCopiesOnReadAndWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	emb := testEmbedding("a1", []float32{1, 2, 3})
	require.NoError(t, s.UpsertEmbedding(ctx, emb))
	emb.Vector[0] = 99

	got, err := s.GetEmbedding(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, float32(1), got.Vector[0], "store is isolated from caller mutation")

	got.Vector[1] = 99
	again, err := s.GetEmbedding(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, float32(2), again.Vector[1], "reads return copies")
}

func TestMemoryStoreClosed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Close())

	_, err := s.ListEligible(ctx, "org1", visibility.AnonymousFilter())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.PutArtifact(ctx, testArtifact("a1", "org1", "alice", visibility.Tenant, types.StatusPublished)), ErrClosed)
	assert.ErrorIs(t, s.Ping(ctx), ErrClosed)
}
