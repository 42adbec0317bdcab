package types

import (
	"errors"
	"time"

	"github.com/skillmesh/skillgraph/pkg/visibility"
)

// Validation errors
var (
	ErrEmptyID         = errors.New("id cannot be empty")
	ErrEmptyOrgID      = errors.New("org_id cannot be empty")
	ErrEmptyAuthorID   = errors.New("author_id cannot be empty")
	ErrEmptyName       = errors.New("name cannot be empty")
	ErrInvalidLevel    = errors.New("invalid visibility level")
	ErrInvalidStatus   = errors.New("invalid lifecycle status")
	ErrEmptyVector     = errors.New("vector cannot be empty")
	ErrInvalidLimit    = errors.New("limit must be positive")
	ErrDimensionDrift  = errors.New("vector dimensionality does not match the index")
	ErrArtifactMissing = errors.New("artifact not found")
)

// Status is the lifecycle state of an artifact. Only published artifacts
// participate in the similarity graph and search.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Valid reports whether s is a defined status.
func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

// Artifact is the catalog item being embedded, clustered, and searched.
// Owned by the content-management collaborator; the engine reads it only.
type Artifact struct {
	ID         string           `json:"id" mapstructure:"id"`
	OrgID      string           `json:"org_id" mapstructure:"org_id"`
	AuthorID   string           `json:"author_id" mapstructure:"author_id"`
	Name       string           `json:"name" mapstructure:"name"`
	Summary    string           `json:"summary,omitempty" mapstructure:"summary"`
	Visibility visibility.Level `json:"visibility" mapstructure:"visibility"`
	Status     Status           `json:"status" mapstructure:"status"`

	// Denormalized aggregates maintained by the collaborator, used as
	// ranking tie-breaks.
	UsageCount int     `json:"usage_count" mapstructure:"usage_count"`
	AvgRating  float64 `json:"avg_rating" mapstructure:"avg_rating"`

	CreatedAt time.Time `json:"created_at" mapstructure:"created_at"`
	UpdatedAt time.Time `json:"updated_at" mapstructure:"updated_at"`
}

// Validate checks that the Artifact has all required fields set.
func (a *Artifact) Validate() error {
	if a.ID == "" {
		return ErrEmptyID
	}
	if a.OrgID == "" {
		return ErrEmptyOrgID
	}
	if a.AuthorID == "" {
		return ErrEmptyAuthorID
	}
	if a.Name == "" {
		return ErrEmptyName
	}
	if !a.Visibility.Valid() {
		return ErrInvalidLevel
	}
	if !a.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// Eligible reports whether the artifact participates in graph building and
// search under the given filter: published and visible.
func (a *Artifact) Eligible(f visibility.Filter) bool {
	return a.Status == StatusPublished && f.Allows(a.Visibility, a.AuthorID)
}
