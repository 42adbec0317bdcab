// Package search implements the rank-fusion stage of hybrid search.
// Lexical and semantic candidate lists are combined with Reciprocal Rank
// Fusion; the engine decorates the fused ordering with artifact display
// fields and tie-breaks.
package search

import "sort"

const (
	// RankConstant is the fixed RRF smoothing constant: each list
	// contributes 1/(RankConstant + rank) for a 1-based rank.
	RankConstant = 60

	// CandidateLimit is how many candidates each side (lexical, semantic)
	// contributes before fusion.
	CandidateLimit = 20

	// DefaultLimit is the default number of fused results returned.
	DefaultLimit = 10
)

// Fused is one artifact's combined ranking. FtRank and SmRank are 1-based
// positions within the lexical and semantic lists, nil when the artifact
// was absent from that list; the missing term contributes 0 to the score.
type Fused struct {
	ID     string
	FtRank *int
	SmRank *int
	Score  float64
}

// FuseRRF combines a lexical and a semantic ranked id list into one fused
// ranking, best first. An artifact present in only one list still
// qualifies. Ties are broken by id so the fusion itself is deterministic;
// callers may re-sort with richer tie-breaks.
func FuseRRF(lexical, semantic []string) []Fused {
	fused := make(map[string]*Fused, len(lexical)+len(semantic))

	for i, id := range lexical {
		rank := i + 1
		f := &Fused{ID: id, FtRank: &rank}
		f.Score = 1.0 / float64(RankConstant+rank)
		fused[id] = f
	}
	for i, id := range semantic {
		rank := i + 1
		f, ok := fused[id]
		if !ok {
			f = &Fused{ID: id}
			fused[id] = f
		}
		r := rank
		f.SmRank = &r
		f.Score += 1.0 / float64(RankConstant+rank)
	}

	out := make([]Fused, 0, len(fused))
	for _, f := range fused {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}
