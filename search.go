package skillgraph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/skillmesh/skillgraph/pkg/search"
	"github.com/skillmesh/skillgraph/pkg/types"
)

// Search implements Searcher.
//
// Both candidate lists are computed under the same visibility filter, then
// fused with Reciprocal Rank Fusion. A nil queryEmbedding is the documented
// degraded mode: lexical-only ranking, not an error.
func (e *Engine) Search(ctx context.Context, orgID, query string, queryEmbedding []float32, principalID string, limit int) ([]types.SearchResult, error) {
	if orgID == "" {
		return nil, types.ErrEmptyOrgID
	}
	if strings.TrimSpace(query) == "" && len(queryEmbedding) == 0 {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = search.DefaultLimit
	}
	if e.store == nil {
		return []types.SearchResult{}, nil
	}
	filter := filterFor(principalID)

	var lexical []string
	if strings.TrimSpace(query) != "" {
		var err error
		lexical, err = e.store.SearchLexical(ctx, orgID, query, filter, search.CandidateLimit)
		if err != nil {
			return nil, fmt.Errorf("lexical search failed: %w", err)
		}
	}

	var semantic []string
	if len(queryEmbedding) > 0 {
		idx, _, err := e.indexFor(ctx, orgID, filter)
		if err != nil {
			return nil, err
		}
		// The index holds only filter-eligible vectors, so no predicate is
		// needed here. Zero-similarity hits carry no semantic signal and
		// are dropped rather than ranked.
		for _, hit := range idx.Search(queryEmbedding, search.CandidateLimit, nil) {
			if hit.Similarity <= 0 {
				continue
			}
			semantic = append(semantic, hit.ID)
		}
	}

	fused := search.FuseRRF(lexical, semantic)
	if len(fused) == 0 {
		return []types.SearchResult{}, nil
	}

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ID
	}
	artifacts, err := e.store.GetArtifacts(ctx, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load search results: %w", err)
	}

	results := make([]types.SearchResult, 0, len(fused))
	for _, f := range fused {
		a, ok := artifacts[f.ID]
		if !ok {
			// Candidate vanished between ranking and hydration.
			continue
		}
		results = append(results, types.SearchResult{
			ID:         a.ID,
			Name:       a.Name,
			Summary:    a.Summary,
			AuthorID:   a.AuthorID,
			Visibility: string(a.Visibility),
			UsageCount: a.UsageCount,
			AvgRating:  a.AvgRating,
			FtRank:     f.FtRank,
			SmRank:     f.SmRank,
			RRFScore:   f.Score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RRFScore != results[j].RRFScore {
			return results[i].RRFScore > results[j].RRFScore
		}
		if results[i].UsageCount != results[j].UsageCount {
			return results[i].UsageCount > results[j].UsageCount
		}
		if results[i].AvgRating != results[j].AvgRating {
			return results[i].AvgRating > results[j].AvgRating
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
