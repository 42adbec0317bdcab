package skillgraph

import (
	"context"
	"fmt"
	"sort"

	"github.com/skillmesh/skillgraph/pkg/types"
)

// GetTopology implements TopologyExporter.
//
// Nodes cover every published artifact visible to the principal, not only
// those with a community assignment; an artifact detection has not covered
// yet carries a nil community id. Edges are recomputed live from the current
// embedding space, so the topology stays truthful even when the persisted
// partition is stale.
func (e *Engine) GetTopology(ctx context.Context, orgID, principalID string) (*types.Topology, error) {
	if orgID == "" {
		return nil, types.ErrEmptyOrgID
	}
	topology := &types.Topology{OrgID: orgID}
	if e.store == nil {
		return topology, nil
	}
	filter := filterFor(principalID)

	artifacts, err := e.store.ListEligible(ctx, orgID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible artifacts: %w", err)
	}
	assignments, err := e.store.ListAssignments(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	used := map[string]struct{}{}
	if principalID != "" {
		used, err = e.store.UsedArtifactIDs(ctx, orgID, principalID)
		if err != nil {
			return nil, fmt.Errorf("failed to list usage events: %w", err)
		}
	}

	edgeSet, _, err := e.buildEdges(ctx, orgID, filter)
	if err != nil {
		return nil, err
	}

	labels := communityLabels(artifacts, assignments)

	nodes := make([]types.TopologyNode, 0, len(artifacts))
	members := make(map[int]int)
	var modularity float64
	for _, a := range artifacts {
		node := types.TopologyNode{
			ID:         a.ID,
			Name:       a.Name,
			Summary:    a.Summary,
			AuthorID:   a.AuthorID,
			Visibility: string(a.Visibility),
			UsageCount: a.UsageCount,
			AvgRating:  a.AvgRating,
			Authored:   principalID != "" && a.AuthorID == principalID,
		}
		_, node.Used = used[a.ID]
		if row, ok := assignments[a.ID]; ok {
			id := row.CommunityID
			node.CommunityID = &id
			node.CommunityLabel = labels[id]
			members[id]++
			modularity = row.Modularity
		}
		nodes = append(nodes, node)
	}

	communities := make([]types.CommunitySummary, 0, len(members))
	for id, count := range members {
		communities = append(communities, types.CommunitySummary{
			CommunityID: id,
			Label:       labels[id],
			MemberCount: count,
		})
	}
	sort.Slice(communities, func(i, j int) bool {
		if communities[i].MemberCount != communities[j].MemberCount {
			return communities[i].MemberCount > communities[j].MemberCount
		}
		return communities[i].CommunityID < communities[j].CommunityID
	})

	edges := types.EdgesFromSet(edgeSet)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})

	topology.Nodes = nodes
	topology.Edges = edges
	topology.Communities = communities
	topology.Stats = types.TopologyStats{
		NodeCount:      len(nodes),
		EdgeCount:      len(edges),
		CommunityCount: len(communities),
		Modularity:     modularity,
	}
	return topology, nil
}

// communityLabels derives a display label per community: the name of the
// member with the highest usage count, ties broken by artifact id, falling
// back to "Community <id>" when no visible member names it.
func communityLabels(artifacts []*types.Artifact, assignments map[string]*types.CommunityAssignment) map[int]string {
	type best struct {
		name  string
		usage int
		id    string
	}
	byCommunity := make(map[int]best)
	for _, a := range artifacts {
		row, ok := assignments[a.ID]
		if !ok {
			continue
		}
		cur, seen := byCommunity[row.CommunityID]
		if !seen || a.UsageCount > cur.usage || (a.UsageCount == cur.usage && a.ID < cur.id) {
			byCommunity[row.CommunityID] = best{name: a.Name, usage: a.UsageCount, id: a.ID}
		}
	}

	labels := make(map[int]string, len(byCommunity))
	for _, row := range assignments {
		if _, ok := labels[row.CommunityID]; ok {
			continue
		}
		if b, ok := byCommunity[row.CommunityID]; ok {
			labels[row.CommunityID] = b.name
		} else {
			labels[row.CommunityID] = fmt.Sprintf("Community %d", row.CommunityID)
		}
	}
	return labels
}
