package types

import (
	"testing"

	"github.com/skillmesh/skillgraph/pkg/visibility"
	"github.com/stretchr/testify/assert"
)

func validArtifact() *Artifact {
	return &Artifact{
		ID:         "art-1",
		OrgID:      "org-1",
		AuthorID:   "alice",
		Name:       "Incident triage",
		Visibility: visibility.Tenant,
		Status:     StatusPublished,
	}
}

func TestArtifactValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Artifact)
		wantErr error
	}{
		{"valid", func(a *Artifact) {}, nil},
		{"missing id", func(a *Artifact) { a.ID = "" }, ErrEmptyID},
		{"missing org", func(a *Artifact) { a.OrgID = "" }, ErrEmptyOrgID},
		{"missing author", func(a *Artifact) { a.AuthorID = "" }, ErrEmptyAuthorID},
		{"missing name", func(a *Artifact) { a.Name = "" }, ErrEmptyName},
		{"bad visibility", func(a *Artifact) { a.Visibility = "org_wide" }, ErrInvalidLevel},
		{"bad status", func(a *Artifact) { a.Status = "archived" }, ErrInvalidStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validArtifact()
			tt.mutate(a)
			err := a.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestArtifactEligible(t *testing.T) {
	a := validArtifact()
	assert.True(t, a.Eligible(visibility.AnonymousFilter()))

	a.Status = StatusDraft
	assert.False(t, a.Eligible(visibility.AnonymousFilter()), "drafts never eligible")

	a.Status = StatusPublished
	a.Visibility = visibility.Private
	assert.False(t, a.Eligible(visibility.AnonymousFilter()))
	assert.True(t, a.Eligible(visibility.PrincipalFilter("alice")))
	assert.False(t, a.Eligible(visibility.PrincipalFilter("bob")))
}

func TestEmbeddingValidate(t *testing.T) {
	e := &Embedding{ArtifactID: "art-1", Vector: []float32{0.1, 0.2}}
	assert.NoError(t, e.Validate())

	assert.ErrorIs(t, (&Embedding{Vector: []float32{1}}).Validate(), ErrEmptyID)
	assert.ErrorIs(t, (&Embedding{ArtifactID: "a"}).Validate(), ErrEmptyVector)
}

func TestInputHashOf(t *testing.T) {
	h1 := InputHashOf("kubernetes runbooks")
	h2 := InputHashOf("kubernetes runbooks")
	h3 := InputHashOf("kubernetes runbook")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}

func TestEdgeKeyCanonical(t *testing.T) {
	assert.Equal(t, NewEdgeKey("a", "b"), NewEdgeKey("b", "a"))
	assert.Equal(t, "a", NewEdgeKey("b", "a").A)

	e1 := Edge{Source: "x", Target: "y", Similarity: 0.5}
	e2 := Edge{Source: "y", Target: "x", Similarity: 0.5}
	assert.Equal(t, e1.Key(), e2.Key())
}

func TestEdgesFromSet(t *testing.T) {
	set := map[EdgeKey]float64{
		NewEdgeKey("b", "a"): 0.7,
		NewEdgeKey("a", "c"): 0.4,
	}
	edges := EdgesFromSet(set)
	assert.Len(t, edges, 2)
	for _, e := range edges {
		assert.Less(t, e.Source, e.Target, "source must be the smaller id")
	}
}
