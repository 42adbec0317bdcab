package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findFused(t *testing.T, fused []Fused, id string) Fused {
	t.Helper()
	for _, f := range fused {
		if f.ID == id {
			return f
		}
	}
	t.Fatalf("id %s not in fused results", id)
	return Fused{}
}

func TestFuseRRFBothLists(t *testing.T) {
	lexical := []string{"a", "b", "c"}
	semantic := []string{"b", "a", "d"}

	fused := FuseRRF(lexical, semantic)
	require.Len(t, fused, 4)

	a := findFused(t, fused, "a")
	require.NotNil(t, a.FtRank)
	require.NotNil(t, a.SmRank)
	assert.Equal(t, 1, *a.FtRank)
	assert.Equal(t, 2, *a.SmRank)
	assert.InDelta(t, 1.0/61+1.0/62, a.Score, 1e-12)

	b := findFused(t, fused, "b")
	assert.InDelta(t, 1.0/62+1.0/61, b.Score, 1e-12)
}

func TestFuseRRFSingleListPresence(t *testing.T) {
	fused := FuseRRF([]string{"lex-only"}, []string{"sem-only"})
	require.Len(t, fused, 2)

	lex := findFused(t, fused, "lex-only")
	require.NotNil(t, lex.FtRank)
	assert.Nil(t, lex.SmRank)
	assert.InDelta(t, 1.0/61, lex.Score, 1e-12)

	sem := findFused(t, fused, "sem-only")
	assert.Nil(t, sem.FtRank)
	require.NotNil(t, sem.SmRank)
	assert.Equal(t, 1, *sem.SmRank)
	assert.InDelta(t, 1.0/61, sem.Score, 1e-12)
}

func TestFuseRRFOrdering(t *testing.T) {
	// An artifact in both lists outranks one that tops a single list.
	fused := FuseRRF([]string{"solo", "both"}, []string{"both"})
	require.Len(t, fused, 2)
	assert.Equal(t, "both", fused[0].ID)
	assert.Equal(t, "solo", fused[1].ID)
}

func TestFuseRRFEmptyInputs(t *testing.T) {
	assert.Empty(t, FuseRRF(nil, nil))

	fused := FuseRRF(nil, []string{"a", "b"})
	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].ID)
	for _, f := range fused {
		assert.Nil(t, f.FtRank)
	}
}

func TestFuseRRFDeterministicTies(t *testing.T) {
	// Same rank in opposite lists: equal scores, broken by id.
	f1 := FuseRRF([]string{"x"}, []string{"y"})
	f2 := FuseRRF([]string{"x"}, []string{"y"})
	assert.Equal(t, f1, f2)
	assert.Equal(t, "x", f1[0].ID)
}
