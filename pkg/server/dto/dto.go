// Package dto defines the request and response shapes of the HTTP API.
package dto

import (
	"errors"
	"strings"
)

// MaxVectorDims bounds accepted embedding sizes; anything larger is almost
// certainly a client bug.
const MaxVectorDims = 8192

var (
	ErrEmptyArtifactID = errors.New("artifact_id cannot be empty")
	ErrEmptyVector     = errors.New("vector cannot be empty")
	ErrVectorTooLarge  = errors.New("vector exceeds maximum dimensionality")
	ErrEmptyOrgID      = errors.New("org_id cannot be empty")
	ErrEmptyQuery      = errors.New("query cannot be empty")
)

// UpsertEmbeddingRequest is the ingestion pipeline's push of one artifact
// vector.
type UpsertEmbeddingRequest struct {
	ArtifactID   string    `json:"artifact_id" binding:"required"`
	Vector       []float32 `json:"vector" binding:"required"`
	ModelName    string    `json:"model_name"`
	ModelVersion string    `json:"model_version"`
	InputHash    string    `json:"input_hash"`
}

// Validate performs validation on UpsertEmbeddingRequest
func (r *UpsertEmbeddingRequest) Validate() error {
	if strings.TrimSpace(r.ArtifactID) == "" {
		return ErrEmptyArtifactID
	}
	if len(r.Vector) == 0 {
		return ErrEmptyVector
	}
	if len(r.Vector) > MaxVectorDims {
		return ErrVectorTooLarge
	}
	return nil
}

// SearchRequest is a hybrid search call. QueryEmbedding is optional; without
// it the engine serves lexical-only ranking.
type SearchRequest struct {
	OrgID          string    `json:"org_id" binding:"required"`
	Query          string    `json:"query"`
	QueryEmbedding []float32 `json:"query_embedding,omitempty"`
	PrincipalID    string    `json:"principal_id,omitempty"`
	Limit          int       `json:"limit,omitempty"`
}

// Validate performs validation on SearchRequest
func (r *SearchRequest) Validate() error {
	if strings.TrimSpace(r.OrgID) == "" {
		return ErrEmptyOrgID
	}
	if strings.TrimSpace(r.Query) == "" && len(r.QueryEmbedding) == 0 {
		return ErrEmptyQuery
	}
	if len(r.QueryEmbedding) > MaxVectorDims {
		return ErrVectorTooLarge
	}
	return nil
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
