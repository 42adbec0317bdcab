package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/skillmesh/skillgraph/pkg/types"
	"github.com/skillmesh/skillgraph/pkg/visibility"
)

// MemoryStore is a map-backed Store. It backs tests and small single-node
// deployments, and fills the unconfigured-dependency slot: an engine wired
// to a fresh MemoryStore returns empty results everywhere without erroring.
type MemoryStore struct {
	mu          sync.RWMutex
	artifacts   map[string]*types.Artifact            // artifact id -> artifact
	embeddings  map[string]*types.Embedding           // artifact id -> embedding
	assignments map[string]map[string]*types.CommunityAssignment // org -> artifact id -> row
	usage       map[string]map[string]map[string]struct{}        // org -> principal -> artifact ids
	closed      bool

	// replaceErr, when set, fails the next ReplaceAssignments before any
	// mutation. Tests use it to verify the all-or-nothing guarantee.
	replaceErr error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artifacts:   make(map[string]*types.Artifact),
		embeddings:  make(map[string]*types.Embedding),
		assignments: make(map[string]map[string]*types.CommunityAssignment),
		usage:       make(map[string]map[string]map[string]struct{}),
	}
}

// FailNextReplace arms a one-shot failure for ReplaceAssignments.
func (m *MemoryStore) FailNextReplace(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceErr = err
}

// PutArtifact implements ArtifactWriter.
func (m *MemoryStore) PutArtifact(ctx context.Context, artifact *types.Artifact) error {
	if err := artifact.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	copied := *artifact
	m.artifacts[artifact.ID] = &copied
	return nil
}

// DeleteArtifact implements ArtifactWriter. Deleting an artifact cascades
// to its embedding and community assignment.
func (m *MemoryStore) DeleteArtifact(ctx context.Context, orgID, artifactID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	a, ok := m.artifacts[artifactID]
	if !ok || a.OrgID != orgID {
		return ErrNotFound
	}
	delete(m.artifacts, artifactID)
	delete(m.embeddings, artifactID)
	if rows, ok := m.assignments[orgID]; ok {
		delete(rows, artifactID)
	}
	return nil
}

// RecordUsage implements ArtifactWriter.
func (m *MemoryStore) RecordUsage(ctx context.Context, orgID, principalID, artifactID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.usage[orgID] == nil {
		m.usage[orgID] = make(map[string]map[string]struct{})
	}
	if m.usage[orgID][principalID] == nil {
		m.usage[orgID][principalID] = make(map[string]struct{})
	}
	m.usage[orgID][principalID][artifactID] = struct{}{}
	return nil
}

// ListEligible implements ArtifactReader.
func (m *MemoryStore) ListEligible(ctx context.Context, orgID string, f visibility.Filter) ([]*types.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []*types.Artifact
	for _, a := range m.artifacts {
		if a.OrgID == orgID && a.Eligible(f) {
			copied := *a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetArtifacts implements ArtifactReader.
func (m *MemoryStore) GetArtifacts(ctx context.Context, orgID string, ids []string) (map[string]*types.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make(map[string]*types.Artifact, len(ids))
	for _, id := range ids {
		if a, ok := m.artifacts[id]; ok && a.OrgID == orgID {
			copied := *a
			out[id] = &copied
		}
	}
	return out, nil
}

// UsedArtifactIDs implements ArtifactReader.
func (m *MemoryStore) UsedArtifactIDs(ctx context.Context, orgID, principalID string) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make(map[string]struct{})
	for id := range m.usage[orgID][principalID] {
		out[id] = struct{}{}
	}
	return out, nil
}

// UpsertEmbedding implements EmbeddingStore.
func (m *MemoryStore) UpsertEmbedding(ctx context.Context, emb *types.Embedding) error {
	if err := emb.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	copied := *emb
	copied.Vector = append([]float32(nil), emb.Vector...)
	now := time.Now().UTC()
	if existing, ok := m.embeddings[emb.ArtifactID]; ok {
		copied.CreatedAt = existing.CreatedAt
	} else if copied.CreatedAt.IsZero() {
		copied.CreatedAt = now
	}
	copied.UpdatedAt = now
	m.embeddings[emb.ArtifactID] = &copied
	return nil
}

// GetEmbedding implements EmbeddingStore.
func (m *MemoryStore) GetEmbedding(ctx context.Context, artifactID string) (*types.Embedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	emb, ok := m.embeddings[artifactID]
	if !ok {
		return nil, nil
	}
	copied := *emb
	copied.Vector = append([]float32(nil), emb.Vector...)
	return &copied, nil
}

// DeleteEmbedding implements EmbeddingStore.
func (m *MemoryStore) DeleteEmbedding(ctx context.Context, artifactID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.embeddings, artifactID)
	return nil
}

// ListEmbeddings implements EmbeddingStore.
func (m *MemoryStore) ListEmbeddings(ctx context.Context, orgID string, f visibility.Filter) ([]*types.Embedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []*types.Embedding
	for id, emb := range m.embeddings {
		a, ok := m.artifacts[id]
		if !ok || a.OrgID != orgID || !a.Eligible(f) {
			continue
		}
		copied := *emb
		copied.Vector = append([]float32(nil), emb.Vector...)
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArtifactID < out[j].ArtifactID })
	return out, nil
}

// ReplaceAssignments implements AssignmentStore. The whole swap happens
// under one lock acquisition, giving readers the same fully-old-or-fully-new
// view a database transaction would.
func (m *MemoryStore) ReplaceAssignments(ctx context.Context, orgID string, assignments []types.CommunityAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.replaceErr != nil {
		err := m.replaceErr
		m.replaceErr = nil
		return err
	}
	rows := make(map[string]*types.CommunityAssignment, len(assignments))
	for i := range assignments {
		a := assignments[i]
		a.OrgID = orgID
		rows[a.ArtifactID] = &a
	}
	m.assignments[orgID] = rows
	return nil
}

// ListAssignments implements AssignmentStore.
func (m *MemoryStore) ListAssignments(ctx context.Context, orgID string) (map[string]*types.CommunityAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make(map[string]*types.CommunityAssignment)
	for id, row := range m.assignments[orgID] {
		copied := *row
		out[id] = &copied
	}
	return out, nil
}

// SearchLexical implements LexicalSearcher with token-overlap scoring:
// tokens matched in the name weigh double those matched in the summary,
// usage count breaks ties. Single-character and non-token queries use
// substring matching.
func (m *MemoryStore) SearchLexical(ctx context.Context, orgID, query string, f visibility.Filter, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		return nil, types.ErrInvalidLimit
	}

	tokens := tokenize(query)
	type scored struct {
		id    string
		score float64
		usage int
	}
	var hits []scored

	for _, a := range m.artifacts {
		if a.OrgID != orgID || !a.Eligible(f) {
			continue
		}
		var score float64
		if len(tokens) == 0 {
			if q := strings.ToLower(strings.TrimSpace(query)); q != "" &&
				(strings.Contains(strings.ToLower(a.Name), q) || strings.Contains(strings.ToLower(a.Summary), q)) {
				score = 1
			}
		} else {
			name := strings.ToLower(a.Name)
			summary := strings.ToLower(a.Summary)
			for _, tok := range tokens {
				if strings.Contains(name, tok) {
					score += 2
				}
				if strings.Contains(summary, tok) {
					score++
				}
			}
		}
		if score > 0 {
			hits = append(hits, scored{id: a.ID, score: score, usage: a.UsageCount})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if hits[i].usage != hits[j].usage {
			return hits[i].usage > hits[j].usage
		}
		return hits[i].id < hits[j].id
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.id
	}
	return out, nil
}

// Ping implements Store.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// tokenize lowercases and splits a query into word tokens of length >= 2.
func tokenize(q string) []string {
	fields := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	var tokens []string
	for _, f := range fields {
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

var _ Store = (*MemoryStore)(nil)
