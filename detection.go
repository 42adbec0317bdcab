package skillgraph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/skillmesh/skillgraph/pkg/community"
	"github.com/skillmesh/skillgraph/pkg/types"
	"github.com/skillmesh/skillgraph/pkg/visibility"
)

// DetectCommunities implements CommunityDetector.
//
// The run is serialized per org: concurrent calls for the same org queue
// behind one another instead of racing on the replace-all transaction.
// The eligible set is the org-browsable published corpus; personal and
// private artifacts never influence the shared partition.
func (e *Engine) DetectCommunities(ctx context.Context, orgID string) (*types.DetectionResult, error) {
	if orgID == "" {
		return nil, types.ErrEmptyOrgID
	}
	if e.store == nil {
		return nil, ErrNoStore
	}

	mu := e.lockOrg(orgID)
	defer mu.Unlock()

	start := time.Now()
	result := &types.DetectionResult{
		OrgID: orgID,
		RunID: uuid.New().String(),
	}
	filter := visibility.AnonymousFilter()

	artifacts, err := e.store.ListEligible(ctx, orgID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible artifacts: %w", err)
	}
	if len(artifacts) < e.config.MinArtifacts {
		return e.finishSkipped(result, types.SkipTooFewArtifacts, len(artifacts), 0, start)
	}

	edges, nodes, err := e.buildEdges(ctx, orgID, filter)
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return e.finishSkipped(result, types.SkipNoEdges, len(nodes), 0, start)
	}

	// Insert edges in canonical key order so node indices, and with them
	// the partitioner's tie-breaking, never depend on map iteration.
	keys := make([]types.EdgeKey, 0, len(edges))
	for key := range edges {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].A != keys[j].A {
			return keys[i].A < keys[j].A
		}
		return keys[i].B < keys[j].B
	})
	graph := community.NewGraph()
	for _, key := range keys {
		graph.AddEdge(key.A, key.B, edges[key])
	}
	if graph.Order() < e.config.MinGraphSize {
		return e.finishSkipped(result, types.SkipGraphTooSmall, graph.Order(), len(edges), start)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	partition, modularity := community.Louvain(graph, e.config.Resolution)

	result.NodeCount = graph.Order()
	result.EdgeCount = len(edges)
	result.CommunityCount = partition.CommunityCount()
	result.Modularity = modularity
	result.LowQuality = result.CommunityCount <= 1 || modularity < e.config.LowQualityModularity
	if result.LowQuality {
		// Degenerate partitions are persisted anyway; the diagnostic lets
		// operators spot orgs whose embedding space has no cluster structure.
		e.logger.Warn("low quality partition",
			"org_id", orgID, "run_id", result.RunID,
			"communities", result.CommunityCount, "modularity", modularity)
	}

	now := time.Now().UTC()
	assignments := make([]types.CommunityAssignment, 0, len(partition))
	for artifactID, communityID := range partition {
		assignments = append(assignments, types.CommunityAssignment{
			OrgID:       orgID,
			ArtifactID:  artifactID,
			CommunityID: communityID,
			Modularity:  modularity,
			DetectedAt:  now,
			RunID:       result.RunID,
		})
	}

	e.logger.Info("Persisting community assignments",
		"org_id", orgID, "run_id", result.RunID, "count", len(assignments))
	if err := e.store.ReplaceAssignments(ctx, orgID, assignments); err != nil {
		return nil, fmt.Errorf("failed to replace assignments: %w", err)
	}

	result.Duration = time.Since(start)
	e.logger.Info("detection run complete",
		"org_id", orgID, "run_id", result.RunID,
		"nodes", result.NodeCount, "edges", result.EdgeCount,
		"communities", result.CommunityCount, "modularity", modularity,
		"duration", result.Duration)
	e.recordRun(result)
	return result, nil
}

// finishSkipped completes an insufficient-data run. The previously persisted
// partition is left untouched.
func (e *Engine) finishSkipped(result *types.DetectionResult, reason types.SkipReason, nodes, edges int, start time.Time) (*types.DetectionResult, error) {
	result.Skipped = reason
	result.NodeCount = nodes
	result.EdgeCount = edges
	result.Duration = time.Since(start)
	e.logger.Info("detection run skipped",
		"org_id", result.OrgID, "run_id", result.RunID,
		"reason", string(reason), "nodes", nodes)
	e.recordRun(result)
	return result, nil
}

func (e *Engine) recordRun(result *types.DetectionResult) {
	if err := e.runs.Record(*result); err != nil {
		e.logger.Warn("failed to record detection run", "error", err)
	}
}
