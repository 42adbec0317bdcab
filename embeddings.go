package skillgraph

import (
	"context"
	"fmt"

	"github.com/skillmesh/skillgraph/pkg/types"
)

// UpsertEmbedding implements EmbeddingManager. The vector replaces any
// existing embedding for the artifact; partial updates never happen.
func (e *Engine) UpsertEmbedding(ctx context.Context, artifactID string, vec []float32, modelName, modelVersion, inputHash string) error {
	if e.store == nil {
		return ErrNoStore
	}
	emb := &types.Embedding{
		ArtifactID:   artifactID,
		Vector:       vec,
		ModelName:    modelName,
		ModelVersion: modelVersion,
		InputHash:    inputHash,
	}
	if err := emb.Validate(); err != nil {
		return err
	}
	if err := e.store.UpsertEmbedding(ctx, emb); err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	e.invalidateIndexes()
	e.logger.Debug("embedding upserted",
		"artifact_id", artifactID, "dims", len(vec),
		"model", modelName, "model_version", modelVersion)
	return nil
}

// DeleteEmbedding implements EmbeddingManager.
func (e *Engine) DeleteEmbedding(ctx context.Context, artifactID string) error {
	if e.store == nil {
		return ErrNoStore
	}
	if err := e.store.DeleteEmbedding(ctx, artifactID); err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	e.invalidateIndexes()
	return nil
}
