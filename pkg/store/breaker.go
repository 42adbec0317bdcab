package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/skillmesh/skillgraph/pkg/types"
	"github.com/skillmesh/skillgraph/pkg/visibility"
)

// BreakerSettings tunes the circuit breaker wrapping a Store.
type BreakerSettings struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	ReadyToTripRatio float64
}

// DefaultBreakerSettings returns settings suitable for a remote store: trip
// after 3+ requests with a 60% failure ratio, retry half-open after 30s.
func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{
		Name:             name,
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		ReadyToTripRatio: 0.6,
	}
}

// BreakerStore wraps a Store with a circuit breaker so a failing backend
// sheds load fast instead of stacking timeouts. Once the breaker opens,
// calls fail immediately with gobreaker.ErrOpenState until the timeout
// elapses.
type BreakerStore struct {
	inner  Store
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// NewBreakerStore wraps inner with a circuit breaker.
func NewBreakerStore(inner Store, settings BreakerSettings, logger *slog.Logger) *BreakerStore {
	if logger == nil {
		logger = slog.Default()
	}
	st := gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= settings.ReadyToTripRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("store circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerStore{
		inner:  inner,
		cb:     gobreaker.NewCircuitBreaker(st),
		logger: logger,
	}
}

func execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	result, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

func (b *BreakerStore) do(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// PutArtifact implements ArtifactWriter.
func (b *BreakerStore) PutArtifact(ctx context.Context, artifact *types.Artifact) error {
	return b.do(func() error { return b.inner.PutArtifact(ctx, artifact) })
}

// DeleteArtifact implements ArtifactWriter.
func (b *BreakerStore) DeleteArtifact(ctx context.Context, orgID, artifactID string) error {
	return b.do(func() error { return b.inner.DeleteArtifact(ctx, orgID, artifactID) })
}

// RecordUsage implements ArtifactWriter.
func (b *BreakerStore) RecordUsage(ctx context.Context, orgID, principalID, artifactID string) error {
	return b.do(func() error { return b.inner.RecordUsage(ctx, orgID, principalID, artifactID) })
}

// ListEligible implements ArtifactReader.
func (b *BreakerStore) ListEligible(ctx context.Context, orgID string, f visibility.Filter) ([]*types.Artifact, error) {
	return execute(b.cb, func() ([]*types.Artifact, error) {
		return b.inner.ListEligible(ctx, orgID, f)
	})
}

// GetArtifacts implements ArtifactReader.
func (b *BreakerStore) GetArtifacts(ctx context.Context, orgID string, ids []string) (map[string]*types.Artifact, error) {
	return execute(b.cb, func() (map[string]*types.Artifact, error) {
		return b.inner.GetArtifacts(ctx, orgID, ids)
	})
}

// UsedArtifactIDs implements ArtifactReader.
func (b *BreakerStore) UsedArtifactIDs(ctx context.Context, orgID, principalID string) (map[string]struct{}, error) {
	return execute(b.cb, func() (map[string]struct{}, error) {
		return b.inner.UsedArtifactIDs(ctx, orgID, principalID)
	})
}

// UpsertEmbedding implements EmbeddingStore.
func (b *BreakerStore) UpsertEmbedding(ctx context.Context, emb *types.Embedding) error {
	return b.do(func() error { return b.inner.UpsertEmbedding(ctx, emb) })
}

// GetEmbedding implements EmbeddingStore.
func (b *BreakerStore) GetEmbedding(ctx context.Context, artifactID string) (*types.Embedding, error) {
	return execute(b.cb, func() (*types.Embedding, error) {
		return b.inner.GetEmbedding(ctx, artifactID)
	})
}

// DeleteEmbedding implements EmbeddingStore.
func (b *BreakerStore) DeleteEmbedding(ctx context.Context, artifactID string) error {
	return b.do(func() error { return b.inner.DeleteEmbedding(ctx, artifactID) })
}

// ListEmbeddings implements EmbeddingStore.
func (b *BreakerStore) ListEmbeddings(ctx context.Context, orgID string, f visibility.Filter) ([]*types.Embedding, error) {
	return execute(b.cb, func() ([]*types.Embedding, error) {
		return b.inner.ListEmbeddings(ctx, orgID, f)
	})
}

// ReplaceAssignments implements AssignmentStore.
func (b *BreakerStore) ReplaceAssignments(ctx context.Context, orgID string, assignments []types.CommunityAssignment) error {
	return b.do(func() error { return b.inner.ReplaceAssignments(ctx, orgID, assignments) })
}

// ListAssignments implements AssignmentStore.
func (b *BreakerStore) ListAssignments(ctx context.Context, orgID string) (map[string]*types.CommunityAssignment, error) {
	return execute(b.cb, func() (map[string]*types.CommunityAssignment, error) {
		return b.inner.ListAssignments(ctx, orgID)
	})
}

// SearchLexical implements LexicalSearcher.
func (b *BreakerStore) SearchLexical(ctx context.Context, orgID, query string, f visibility.Filter, limit int) ([]string, error) {
	return execute(b.cb, func() ([]string, error) {
		return b.inner.SearchLexical(ctx, orgID, query, f, limit)
	})
}

// Ping implements Store. Ping bypasses the breaker so health checks can
// observe recovery while the breaker is open.
func (b *BreakerStore) Ping(ctx context.Context) error {
	return b.inner.Ping(ctx)
}

// Close implements Store.
func (b *BreakerStore) Close() error {
	return b.inner.Close()
}

var _ Store = (*BreakerStore)(nil)
