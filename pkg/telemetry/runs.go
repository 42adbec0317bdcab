package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/skillmesh/skillgraph/pkg/types"
)

// RunRecord is one community detection run flattened for Parquet storage.
type RunRecord struct {
	RunID          string    `parquet:"run_id"`
	OrgID          string    `parquet:"org_id"`
	Timestamp      time.Time `parquet:"timestamp"`
	NodeCount      int       `parquet:"node_count"`
	EdgeCount      int       `parquet:"edge_count"`
	CommunityCount int       `parquet:"community_count"`
	Modularity     float64   `parquet:"modularity"`
	Skipped        string    `parquet:"skipped"`
	LowQuality     bool      `parquet:"low_quality"`
	DurationMS     int64     `parquet:"duration_ms"`
}

// RunRecorder accumulates detection run records and writes them to Parquet
// files in batches. A nil *RunRecorder is a no-op, so callers never need to
// guard their Record calls.
type RunRecorder struct {
	outputDir string
	mu        sync.Mutex
	buffer    []RunRecord
	batchSize int
}

// NewRunRecorder creates a recorder writing under outputDir.
func NewRunRecorder(outputDir string) (*RunRecorder, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}
	return &RunRecorder{
		outputDir: outputDir,
		batchSize: 32,
		buffer:    make([]RunRecord, 0, 32),
	}, nil
}

// Record buffers one detection result.
func (r *RunRecorder) Record(result types.DetectionResult) error {
	if r == nil {
		return nil
	}
	record := RunRecord{
		RunID:          result.RunID,
		OrgID:          result.OrgID,
		Timestamp:      time.Now().UTC(),
		NodeCount:      result.NodeCount,
		EdgeCount:      result.EdgeCount,
		CommunityCount: result.CommunityCount,
		Modularity:     result.Modularity,
		Skipped:        string(result.Skipped),
		LowQuality:     result.LowQuality,
		DurationMS:     result.Duration.Milliseconds(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = append(r.buffer, record)
	if len(r.buffer) >= r.batchSize {
		return r.flush()
	}
	return nil
}

// Flush writes any buffered records out immediately.
func (r *RunRecorder) Flush() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flush()
}

// Close flushes remaining records.
func (r *RunRecorder) Close() error {
	return r.Flush()
}

// flush writes the buffer to a new file. Caller must hold the lock.
func (r *RunRecorder) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}
	filename := fmt.Sprintf("detection_runs_%s_%d.parquet", time.Now().Format("20060102_150405"), time.Now().UnixNano())
	path := filepath.Join(r.outputDir, filename)

	if err := parquet.WriteFile(path, r.buffer); err != nil {
		return fmt.Errorf("failed to write detection run parquet file: %w", err)
	}
	r.buffer = r.buffer[:0]
	return nil
}
