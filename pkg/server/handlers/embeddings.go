package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillmesh/skillgraph"
	"github.com/skillmesh/skillgraph/pkg/server/dto"
	"github.com/skillmesh/skillgraph/pkg/types"
)

// EmbeddingsHandler serves the embedding write surface for the ingestion
// pipeline.
type EmbeddingsHandler struct {
	engine skillgraph.EmbeddingManager
}

// NewEmbeddingsHandler creates a new embeddings handler
func NewEmbeddingsHandler(engine skillgraph.EmbeddingManager) *EmbeddingsHandler {
	return &EmbeddingsHandler{engine: engine}
}

// Upsert handles POST /api/v1/embeddings
func (h *EmbeddingsHandler) Upsert(c *gin.Context) {
	var req dto.UpsertEmbeddingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body", Message: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	err := h.engine.UpsertEmbedding(c.Request.Context(), req.ArtifactID, req.Vector,
		req.ModelName, req.ModelVersion, req.InputHash)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, types.ErrEmptyVector) || errors.Is(err, types.ErrEmptyID) {
			status = http.StatusBadRequest
		}
		c.JSON(status, dto.ErrorResponse{Error: "failed to upsert embedding", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"artifact_id": req.ArtifactID, "dims": len(req.Vector)})
}

// Delete handles DELETE /api/v1/embeddings/:artifact_id
func (h *EmbeddingsHandler) Delete(c *gin.Context) {
	artifactID := c.Param("artifact_id")
	if artifactID == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: dto.ErrEmptyArtifactID.Error()})
		return
	}
	if err := h.engine.DeleteEmbedding(c.Request.Context(), artifactID); err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to delete embedding", Message: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
