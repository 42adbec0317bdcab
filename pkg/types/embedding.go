package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Embedding is the versioned semantic vector for a published artifact.
// At most one embedding exists per artifact; re-embedding replaces the row
// wholesale. Partial updates never happen.
type Embedding struct {
	ArtifactID   string    `json:"artifact_id"`
	Vector       []float32 `json:"vector"`
	ModelName    string    `json:"model_name"`
	ModelVersion string    `json:"model_version"`

	// InputHash is the SHA-256 of the text that was embedded. The ingestion
	// pipeline compares it against fresh content to decide when to
	// re-embed; this engine only stores it.
	InputHash string `json:"input_hash"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the Embedding has all required fields set.
func (e *Embedding) Validate() error {
	if e.ArtifactID == "" {
		return ErrEmptyID
	}
	if len(e.Vector) == 0 {
		return ErrEmptyVector
	}
	return nil
}

// InputHashOf computes the canonical content-input hash for embedded text.
func InputHashOf(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
