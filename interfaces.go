package skillgraph

import (
	"context"

	"github.com/skillmesh/skillgraph/pkg/types"
)

// This file defines focused interfaces that follow the Interface Segregation
// Principle. The main SkillGraph interface is composed from these smaller
// interfaces; consumers should depend on the smallest interface that meets
// their needs.

// EmbeddingManager provides the embedding write surface used by the
// ingestion pipeline.
type EmbeddingManager interface {
	// UpsertEmbedding stores the vector for an artifact, overwriting any
	// existing one. Embeddings are only ever replaced wholesale.
	UpsertEmbedding(ctx context.Context, artifactID string, vec []float32, modelName, modelVersion, inputHash string) error

	// DeleteEmbedding removes an artifact's embedding.
	DeleteEmbedding(ctx context.Context, artifactID string) error
}

// CommunityDetector runs modularity-based community detection for one org.
type CommunityDetector interface {
	// DetectCommunities rebuilds the org's similarity graph, partitions it,
	// and atomically replaces the persisted assignments. Insufficient data
	// yields a result with Skipped set, not an error.
	DetectCommunities(ctx context.Context, orgID string) (*types.DetectionResult, error)
}

// TopologyExporter produces the per-org visualization snapshot.
type TopologyExporter interface {
	// GetTopology returns every artifact visible to the principal with its
	// current community assignment, live-recomputed similarity edges, and
	// community summaries.
	GetTopology(ctx context.Context, orgID, principalID string) (*types.Topology, error)
}

// Searcher serves hybrid lexical+semantic search.
type Searcher interface {
	// Search fuses lexical and semantic candidate lists with Reciprocal
	// Rank Fusion. A nil queryEmbedding degrades to lexical-only ranking.
	Search(ctx context.Context, orgID, query string, queryEmbedding []float32, principalID string, limit int) ([]types.SearchResult, error)
}

// SkillGraph is the full engine surface.
type SkillGraph interface {
	EmbeddingManager
	CommunityDetector
	TopologyExporter
	Searcher

	// Close releases engine resources.
	Close() error
}
