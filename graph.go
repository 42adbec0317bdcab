package skillgraph

import (
	"context"
	"fmt"
	"time"

	"github.com/skillmesh/skillgraph/pkg/index"
	"github.com/skillmesh/skillgraph/pkg/knngraph"
	"github.com/skillmesh/skillgraph/pkg/types"
	"github.com/skillmesh/skillgraph/pkg/visibility"
)

// indexFor returns the vector index and node set for one (org, filter-class),
// building and caching it when absent or stale. The index only ever holds
// vectors of artifacts eligible under the filter, so downstream queries
// cannot widen visibility.
func (e *Engine) indexFor(ctx context.Context, orgID string, f visibility.Filter) (index.Index, []knngraph.Node, error) {
	key := cacheKey{orgID: orgID, principalID: f.PrincipalID}

	e.cacheMu.RLock()
	cached, ok := e.indexes[key]
	e.cacheMu.RUnlock()
	if ok && time.Since(cached.builtAt) < e.config.IndexTTL {
		return cached.idx, cached.nodes, nil
	}

	embeddings, err := e.store.ListEmbeddings(ctx, orgID, f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list embeddings: %w", err)
	}

	var idx index.Index
	if e.config.ANN && len(embeddings) > e.config.ANNThreshold {
		idx = index.NewHNSW()
	} else {
		idx = index.NewFlat()
	}

	nodes := make([]knngraph.Node, 0, len(embeddings))
	for _, emb := range embeddings {
		if err := idx.Add(emb.ArtifactID, emb.Vector); err != nil {
			// Dimension drift from a model change: leave the offending
			// vector out rather than failing the whole read path.
			e.logger.Warn("skipping embedding during index build",
				"artifact_id", emb.ArtifactID, "error", err)
			continue
		}
		nodes = append(nodes, knngraph.Node{ID: emb.ArtifactID, Vector: emb.Vector})
	}

	e.cacheMu.Lock()
	e.indexes[key] = &cachedIndex{idx: idx, nodes: nodes, builtAt: time.Now()}
	e.cacheMu.Unlock()
	return idx, nodes, nil
}

// buildEdges computes the deduplicated thresholded KNN edge set for one
// (org, filter-class).
func (e *Engine) buildEdges(ctx context.Context, orgID string, f visibility.Filter) (map[types.EdgeKey]float64, []knngraph.Node, error) {
	idx, nodes, err := e.indexFor(ctx, orgID, f)
	if err != nil {
		return nil, nil, err
	}
	edges, err := e.builder.Build(ctx, nodes, idx)
	if err != nil {
		return nil, nil, err
	}
	return edges, nodes, nil
}
