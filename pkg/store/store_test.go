package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmesh/skillgraph/pkg/types"
	"github.com/skillmesh/skillgraph/pkg/visibility"
)

func testArtifact(id, orgID, authorID string, level visibility.Level, status types.Status) *types.Artifact {
	return &types.Artifact{
		ID:         id,
		OrgID:      orgID,
		AuthorID:   authorID,
		Name:       "Skill " + id,
		Summary:    "summary for " + id,
		Visibility: level,
		Status:     status,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
}

func testEmbedding(artifactID string, vector []float32) *types.Embedding {
	return &types.Embedding{
		ArtifactID:   artifactID,
		Vector:       vector,
		ModelName:    "test-embedder",
		ModelVersion: "v1",
		InputHash:    types.InputHashOf("content of " + artifactID),
	}
}

// runStoreContract exercises the behavior every Store driver must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("visibility filtering on reads", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.PutArtifact(ctx, testArtifact("a1", "org1", "alice", visibility.GlobalApproved, types.StatusPublished)))
		require.NoError(t, s.PutArtifact(ctx, testArtifact("a2", "org1", "alice", visibility.Tenant, types.StatusPublished)))
		require.NoError(t, s.PutArtifact(ctx, testArtifact("a3", "org1", "alice", visibility.Private, types.StatusPublished)))
		require.NoError(t, s.PutArtifact(ctx, testArtifact("a4", "org1", "bob", visibility.Personal, types.StatusPublished)))
		require.NoError(t, s.PutArtifact(ctx, testArtifact("a5", "org1", "alice", visibility.Tenant, types.StatusDraft)))
		require.NoError(t, s.PutArtifact(ctx, testArtifact("b1", "org2", "alice", visibility.Tenant, types.StatusPublished)))

		anon, err := s.ListEligible(ctx, "org1", visibility.AnonymousFilter())
		require.NoError(t, err)
		assert.Equal(t, []string{"a1", "a2"}, artifactIDs(anon), "anonymous sees org-browsable published only")

		alice, err := s.ListEligible(ctx, "org1", visibility.PrincipalFilter("alice"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a1", "a2", "a3"}, artifactIDs(alice), "author sees own private, not bob's personal")

		bob, err := s.ListEligible(ctx, "org1", visibility.PrincipalFilter("bob"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a1", "a2", "a4"}, artifactIDs(bob))
	})

	t.Run("artifact crud and cascade", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.PutArtifact(ctx, testArtifact("a1", "org1", "alice", visibility.Tenant, types.StatusPublished)))
		require.NoError(t, s.UpsertEmbedding(ctx, testEmbedding("a1", []float32{1, 0})))
		require.NoError(t, s.ReplaceAssignments(ctx, "org1", []types.CommunityAssignment{
			{OrgID: "org1", ArtifactID: "a1", CommunityID: 0, Modularity: 0.4, DetectedAt: time.Now().UTC()},
		}))

		got, err := s.GetArtifacts(ctx, "org1", []string{"a1", "missing"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Skill a1", got["a1"].Name)

		require.NoError(t, s.DeleteArtifact(ctx, "org1", "a1"))

		emb, err := s.GetEmbedding(ctx, "a1")
		require.NoError(t, err)
		assert.Nil(t, emb, "embedding cascades with the artifact")

		rows, err := s.ListAssignments(ctx, "org1")
		require.NoError(t, err)
		assert.Empty(t, rows, "assignment cascades with the artifact")

		assert.ErrorIs(t, s.DeleteArtifact(ctx, "org1", "a1"), ErrNotFound)
	})

	t.Run("embedding upsert overwrites wholesale", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.UpsertEmbedding(ctx, testEmbedding("a1", []float32{1, 0, 0})))
		updated := testEmbedding("a1", []float32{0, 1, 0})
		updated.ModelVersion = "v2"
		require.NoError(t, s.UpsertEmbedding(ctx, updated))

		emb, err := s.GetEmbedding(ctx, "a1")
		require.NoError(t, err)
		require.NotNil(t, emb)
		assert.Equal(t, []float32{0, 1, 0}, emb.Vector)
		assert.Equal(t, "v2", emb.ModelVersion)

		missing, err := s.GetEmbedding(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)

		assert.ErrorIs(t, s.UpsertEmbedding(ctx, &types.Embedding{ArtifactID: "a1"}), types.ErrEmptyVector)
	})

	t.Run("list embeddings honors filter", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.PutArtifact(ctx, testArtifact("a1", "org1", "alice", visibility.Tenant, types.StatusPublished)))
		require.NoError(t, s.PutArtifact(ctx, testArtifact("a2", "org1", "alice", visibility.Private, types.StatusPublished)))
		require.NoError(t, s.PutArtifact(ctx, testArtifact("a3", "org1", "alice", visibility.Tenant, types.StatusDraft)))
		for _, id := range []string{"a1", "a2", "a3"} {
			require.NoError(t, s.UpsertEmbedding(ctx, testEmbedding(id, []float32{1, 2})))
		}

		anon, err := s.ListEmbeddings(ctx, "org1", visibility.AnonymousFilter())
		require.NoError(t, err)
		assert.Equal(t, []string{"a1"}, embeddingIDs(anon))

		alice, err := s.ListEmbeddings(ctx, "org1", visibility.PrincipalFilter("alice"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a1", "a2"}, embeddingIDs(alice))
	})

	t.Run("assignments replace all", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		now := time.Now().UTC()
		require.NoError(t, s.ReplaceAssignments(ctx, "org1", []types.CommunityAssignment{
			{OrgID: "org1", ArtifactID: "a1", CommunityID: 0, Modularity: 0.5, DetectedAt: now, RunID: "r1"},
			{OrgID: "org1", ArtifactID: "a2", CommunityID: 1, Modularity: 0.5, DetectedAt: now, RunID: "r1"},
		}))
		require.NoError(t, s.ReplaceAssignments(ctx, "org2", []types.CommunityAssignment{
			{OrgID: "org2", ArtifactID: "b1", CommunityID: 0, Modularity: 0.1, DetectedAt: now, RunID: "r2"},
		}))

		require.NoError(t, s.ReplaceAssignments(ctx, "org1", []types.CommunityAssignment{
			{OrgID: "org1", ArtifactID: "a2", CommunityID: 0, Modularity: 0.7, DetectedAt: now, RunID: "r3"},
		}))

		rows, err := s.ListAssignments(ctx, "org1")
		require.NoError(t, err)
		require.Len(t, rows, 1, "old rows are gone after the swap")
		assert.Equal(t, 0, rows["a2"].CommunityID)
		assert.Equal(t, "r3", rows["a2"].RunID)

		other, err := s.ListAssignments(ctx, "org2")
		require.NoError(t, err)
		assert.Len(t, other, 1, "other orgs are untouched")
	})

	t.Run("usage events", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		require.NoError(t, s.RecordUsage(ctx, "org1", "alice", "a1"))
		require.NoError(t, s.RecordUsage(ctx, "org1", "alice", "a1"))
		require.NoError(t, s.RecordUsage(ctx, "org1", "alice", "a2"))
		require.NoError(t, s.RecordUsage(ctx, "org1", "bob", "a3"))

		used, err := s.UsedArtifactIDs(ctx, "org1", "alice")
		require.NoError(t, err)
		assert.Len(t, used, 2)
		assert.Contains(t, used, "a1")
		assert.Contains(t, used, "a2")

		none, err := s.UsedArtifactIDs(ctx, "org1", "carol")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("lexical search", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		seed := func(id, name, summary string, level visibility.Level, usage int) {
			a := testArtifact(id, "org1", "alice", level, types.StatusPublished)
			a.Name = name
			a.Summary = summary
			a.UsageCount = usage
			require.NoError(t, s.PutArtifact(ctx, a))
		}
		seed("a1", "Kubernetes Deployment", "deploy workloads to kubernetes clusters", visibility.Tenant, 5)
		seed("a2", "Terraform Basics", "provision infrastructure, including kubernetes", visibility.Tenant, 50)
		seed("a3", "Secret Kubernetes Tricks", "private notes", visibility.Private, 100)
		seed("a4", "Cooking", "pasta recipes", visibility.Tenant, 0)

		ids, err := s.SearchLexical(ctx, "org1", "kubernetes", visibility.AnonymousFilter(), 10)
		require.NoError(t, err)
		require.NotEmpty(t, ids)
		assert.NotContains(t, ids, "a3", "private artifacts are filtered for anonymous callers")
		assert.NotContains(t, ids, "a4")
		assert.Contains(t, ids, "a1")
		assert.Contains(t, ids, "a2")

		withPrincipal, err := s.SearchLexical(ctx, "org1", "kubernetes", visibility.PrincipalFilter("alice"), 10)
		require.NoError(t, err)
		assert.Contains(t, withPrincipal, "a3", "author sees own private artifact")

		limited, err := s.SearchLexical(ctx, "org1", "kubernetes", visibility.PrincipalFilter("alice"), 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		empty, err := s.SearchLexical(ctx, "org1", "   ", visibility.AnonymousFilter(), 10)
		require.NoError(t, err)
		assert.Empty(t, empty)

		_, err = s.SearchLexical(ctx, "org1", "kubernetes", visibility.AnonymousFilter(), 0)
		assert.ErrorIs(t, err, types.ErrInvalidLimit)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()
		assert.NoError(t, s.Ping(ctx))
	})
}

func artifactIDs(artifacts []*types.Artifact) []string {
	out := make([]string, len(artifacts))
	for i, a := range artifacts {
		out[i] = a.ID
	}
	return out
}

func embeddingIDs(embeddings []*types.Embedding) []string {
	out := make([]string, len(embeddings))
	for i, e := range embeddings {
		out[i] = e.ArtifactID
	}
	return out
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"kubernetes", "101"}, tokenize("Kubernetes 101!"))
	assert.Empty(t, tokenize("a ~ !"))
	assert.Equal(t, []string{"ci", "cd"}, tokenize("CI/CD"))
}
