package skillgraph

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skillmesh/skillgraph/pkg/config"
	"github.com/skillmesh/skillgraph/pkg/index"
	"github.com/skillmesh/skillgraph/pkg/knngraph"
	"github.com/skillmesh/skillgraph/pkg/store"
	"github.com/skillmesh/skillgraph/pkg/telemetry"
	"github.com/skillmesh/skillgraph/pkg/visibility"
)

var (
	// ErrNoStore is returned by write operations when no store is configured.
	// Read operations degrade to empty results instead.
	ErrNoStore = errors.New("no store configured")
	// ErrEmptyQuery is returned by Search when neither query text nor a
	// query embedding is supplied.
	ErrEmptyQuery = errors.New("query cannot be empty")
)

// Config holds the engine tunables: graph construction, community detection,
// and indexing.
type Config struct {
	// KNN is the number of nearest neighbors considered per artifact.
	KNN int
	// MinSimilarity is the edge admission threshold in [0, 1].
	MinSimilarity float64
	// Resolution is the Louvain resolution parameter. Higher values bias
	// toward more, smaller communities.
	Resolution float64
	// MinArtifacts is the smallest eligible set worth building a graph for.
	MinArtifacts int
	// MinGraphSize is the smallest connected node count worth clustering.
	MinGraphSize int
	// LowQualityModularity flags detection runs below this modularity.
	LowQualityModularity float64
	// Workers bounds the concurrency of the KNN fan-out pool.
	Workers int
	// ANN enables the approximate index above ANNThreshold vectors.
	ANN bool
	// ANNThreshold is the corpus size at which the approximate index
	// replaces the exact scan.
	ANNThreshold int
	// IndexTTL bounds how long a cached per-org index may serve reads
	// before being rebuilt. Embedding writes invalidate eagerly; the TTL
	// covers artifact-row changes made directly against the store.
	IndexTTL time.Duration
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() *Config {
	return &Config{
		KNN:                  knngraph.DefaultK,
		MinSimilarity:        knngraph.DefaultMinSimilarity,
		Resolution:           1.0,
		MinArtifacts:         5,
		MinGraphSize:         3,
		LowQualityModularity: 0.1,
		Workers:              8,
		ANN:                  true,
		ANNThreshold:         2000,
		IndexTTL:             30 * time.Second,
	}
}

// ConfigFrom maps the file/env configuration onto an engine Config.
func ConfigFrom(cfg config.EngineConfig) *Config {
	out := DefaultConfig()
	if cfg.KNN > 0 {
		out.KNN = cfg.KNN
	}
	if cfg.MinSimilarity > 0 {
		out.MinSimilarity = cfg.MinSimilarity
	}
	if cfg.Resolution > 0 {
		out.Resolution = cfg.Resolution
	}
	if cfg.MinArtifacts > 0 {
		out.MinArtifacts = cfg.MinArtifacts
	}
	if cfg.MinGraphSize > 0 {
		out.MinGraphSize = cfg.MinGraphSize
	}
	if cfg.LowQualityModularity > 0 {
		out.LowQualityModularity = cfg.LowQualityModularity
	}
	if cfg.Workers > 0 {
		out.Workers = cfg.Workers
	}
	out.ANN = cfg.ANN
	if cfg.ANNThreshold > 0 {
		out.ANNThreshold = cfg.ANNThreshold
	}
	return out
}

// Engine is the main implementation of the SkillGraph interface.
type Engine struct {
	store   store.Store
	config  *Config
	logger  *slog.Logger
	runs    *telemetry.RunRecorder
	builder *knngraph.Builder

	// detectLocks serializes community detection per org. Different orgs
	// never contend.
	detectLocks sync.Map // orgID -> *sync.Mutex

	cacheMu sync.RWMutex
	indexes map[cacheKey]*cachedIndex
}

// cacheKey identifies one (org, filter-class) index.
type cacheKey struct {
	orgID       string
	principalID string
}

type cachedIndex struct {
	idx     index.Index
	nodes   []knngraph.Node
	builtAt time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRunRecorder attaches a telemetry recorder for detection runs.
func WithRunRecorder(r *telemetry.RunRecorder) Option {
	return func(e *Engine) {
		e.runs = r
	}
}

// New creates an engine over the given store. A nil store is allowed: read
// operations return empty results and write operations return ErrNoStore.
func New(st store.Store, cfg *Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	builder, err := knngraph.NewBuilder(cfg.Workers,
		knngraph.WithK(cfg.KNN),
		knngraph.WithMinSimilarity(cfg.MinSimilarity),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create knn builder: %w", err)
	}

	e := &Engine{
		store:   st,
		config:  cfg,
		logger:  slog.Default(),
		builder: builder,
		indexes: make(map[cacheKey]*cachedIndex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Store returns the underlying store, or nil when unconfigured.
func (e *Engine) Store() store.Store {
	return e.store
}

// Close releases the engine's worker pool and flushes telemetry. The store
// is owned by the caller and is not closed.
func (e *Engine) Close() error {
	e.builder.Release()
	return e.runs.Flush()
}

// filterFor maps an optional principal to the visibility filter applied on
// every read path.
func filterFor(principalID string) visibility.Filter {
	if principalID == "" {
		return visibility.AnonymousFilter()
	}
	return visibility.PrincipalFilter(principalID)
}

// lockOrg acquires the per-org detection mutex.
func (e *Engine) lockOrg(orgID string) *sync.Mutex {
	v, _ := e.detectLocks.LoadOrStore(orgID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu
}

// invalidateIndexes drops every cached index. Called on embedding writes;
// the next read rebuilds from the store.
func (e *Engine) invalidateIndexes() {
	e.cacheMu.Lock()
	e.indexes = make(map[cacheKey]*cachedIndex)
	e.cacheMu.Unlock()
}

var _ SkillGraph = (*Engine)(nil)
