package types

import "time"

// SkipReason names an insufficient-data outcome of a detection run. It is an
// explicit result, distinct from an error: callers can tell "nothing to
// compute yet" apart from "something failed".
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipTooFewArtifacts SkipReason = "too_few_artifacts"
	SkipNoEdges         SkipReason = "no_edges_above_threshold"
	SkipGraphTooSmall   SkipReason = "graph_too_small"
)

// CommunityAssignment pairs an artifact with the integer community it
// belongs to after a detection run. Exactly one row exists per
// (org, artifact); the detector replaces all rows for an org atomically.
type CommunityAssignment struct {
	OrgID       string    `json:"org_id"`
	ArtifactID  string    `json:"artifact_id"`
	CommunityID int       `json:"community_id"`
	Modularity  float64   `json:"modularity"`
	DetectedAt  time.Time `json:"detected_at"`
	RunID       string    `json:"run_id"`
}

// DetectionResult summarizes one community detection run for an org.
type DetectionResult struct {
	OrgID          string        `json:"org_id"`
	RunID          string        `json:"run_id,omitempty"`
	NodeCount      int           `json:"node_count"`
	EdgeCount      int           `json:"edge_count"`
	CommunityCount int           `json:"community_count"`
	Modularity     float64       `json:"modularity"`
	Skipped        SkipReason    `json:"skipped,omitempty"`
	LowQuality     bool          `json:"low_quality,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// TopologyNode is one artifact in the exported per-org topology, decorated
// with its current community assignment (nil when detection has not covered
// it) and two principal-relative flags.
type TopologyNode struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Summary        string  `json:"summary,omitempty"`
	AuthorID       string  `json:"author_id"`
	Visibility     string  `json:"visibility"`
	UsageCount     int     `json:"usage_count"`
	AvgRating      float64 `json:"avg_rating"`
	CommunityID    *int    `json:"community_id"`
	CommunityLabel string  `json:"community_label,omitempty"`
	Authored       bool    `json:"authored"`
	Used           bool    `json:"used"`
}

// CommunitySummary is the in-memory rollup of one community in a topology.
type CommunitySummary struct {
	CommunityID int    `json:"community_id"`
	Label       string `json:"label"`
	MemberCount int    `json:"member_count"`
}

// TopologyStats carries counts for the exported view.
type TopologyStats struct {
	NodeCount      int     `json:"node_count"`
	EdgeCount      int     `json:"edge_count"`
	CommunityCount int     `json:"community_count"`
	Modularity     float64 `json:"modularity"`
}

// Topology is the full per-org node/edge/community snapshot produced for
// visualization consumers. Edges reflect the current embedding space even
// when community detection is stale.
type Topology struct {
	OrgID       string             `json:"org_id"`
	Nodes       []TopologyNode     `json:"nodes"`
	Edges       []Edge             `json:"edges"`
	Communities []CommunitySummary `json:"communities"`
	Stats       TopologyStats      `json:"stats"`
}

// SearchResult is one fused hybrid search hit. FtRank and SmRank are the
// 1-based positions within the lexical and semantic candidate lists, nil
// when the artifact was absent from that list.
type SearchResult struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Summary    string  `json:"summary,omitempty"`
	AuthorID   string  `json:"author_id"`
	Visibility string  `json:"visibility"`
	UsageCount int     `json:"usage_count"`
	AvgRating  float64 `json:"avg_rating"`
	FtRank     *int    `json:"ft_rank"`
	SmRank     *int    `json:"sm_rank"`
	RRFScore   float64 `json:"rrf_score"`
}
