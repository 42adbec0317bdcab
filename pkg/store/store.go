// Package store defines the persistence boundary of the engine and its
// drivers.
//
// This file defines focused interfaces that follow the Interface Segregation
// Principle. The full Store interface is composed from these smaller
// interfaces; consumers should depend on the smallest interface that meets
// their needs.
//
// Every query method takes an explicit org ID and, where artifact rows are
// involved, a visibility.Filter. Drivers must apply both inside the query;
// widening the filter downstream is forbidden.
package store

import (
	"context"
	"errors"

	"github.com/skillmesh/skillgraph/pkg/types"
	"github.com/skillmesh/skillgraph/pkg/visibility"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
)

// ArtifactReader provides read access to the artifact read model owned by
// the content-management collaborator.
type ArtifactReader interface {
	// ListEligible returns the published artifacts of an org visible under
	// the filter.
	ListEligible(ctx context.Context, orgID string, f visibility.Filter) ([]*types.Artifact, error)

	// GetArtifacts returns the subset of ids that exist in the org, keyed
	// by artifact id. Missing ids are simply absent from the result.
	GetArtifacts(ctx context.Context, orgID string, ids []string) (map[string]*types.Artifact, error)

	// UsedArtifactIDs returns the ids of artifacts the principal has a
	// recorded usage event against.
	UsedArtifactIDs(ctx context.Context, orgID, principalID string) (map[string]struct{}, error)
}

// ArtifactWriter mirrors the collaborator's write surface. The engine never
// calls it; the HTTP layer, CLI seeding, and tests do.
type ArtifactWriter interface {
	// PutArtifact creates or replaces an artifact row.
	PutArtifact(ctx context.Context, artifact *types.Artifact) error

	// DeleteArtifact removes an artifact and cascades to its embedding and
	// community assignment.
	DeleteArtifact(ctx context.Context, orgID, artifactID string) error

	// RecordUsage records that a principal used an artifact.
	RecordUsage(ctx context.Context, orgID, principalID, artifactID string) error
}

// EmbeddingStore holds one versioned vector per artifact.
type EmbeddingStore interface {
	// UpsertEmbedding writes the embedding, overwriting any existing row
	// for the artifact. Embeddings are only ever replaced wholesale.
	UpsertEmbedding(ctx context.Context, emb *types.Embedding) error

	// GetEmbedding returns the embedding for an artifact, or (nil, nil)
	// when none exists.
	GetEmbedding(ctx context.Context, artifactID string) (*types.Embedding, error)

	// DeleteEmbedding removes an artifact's embedding. Unknown ids are a
	// no-op.
	DeleteEmbedding(ctx context.Context, artifactID string) error

	// ListEmbeddings returns embeddings of the org's published artifacts
	// visible under the filter.
	ListEmbeddings(ctx context.Context, orgID string, f visibility.Filter) ([]*types.Embedding, error)
}

// AssignmentStore persists community assignments.
type AssignmentStore interface {
	// ReplaceAssignments atomically swaps the org's entire assignment set:
	// inside one transaction it deletes every existing row for the org and
	// bulk-inserts the new ones. Readers observe either the complete old
	// partition or the complete new one, never a mixture. On failure
	// nothing changes.
	ReplaceAssignments(ctx context.Context, orgID string, assignments []types.CommunityAssignment) error

	// ListAssignments returns the org's current assignments keyed by
	// artifact id.
	ListAssignments(ctx context.Context, orgID string) (map[string]*types.CommunityAssignment, error)
}

// LexicalSearcher ranks artifacts by text relevance.
type LexicalSearcher interface {
	// SearchLexical returns up to limit artifact ids ordered by descending
	// text relevance to the query, restricted to published artifacts
	// visible under the filter. Queries too short or malformed to form a
	// valid ranked query fall back to substring matching.
	SearchLexical(ctx context.Context, orgID, query string, f visibility.Filter, limit int) ([]string, error)
}

// Store composes the full persistence surface.
type Store interface {
	ArtifactReader
	ArtifactWriter
	EmbeddingStore
	AssignmentStore
	LexicalSearcher

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the driver's resources.
	Close() error
}
