package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/skillmesh/skillgraph/pkg/types"
	"github.com/skillmesh/skillgraph/pkg/visibility"
)

// SQLiteStore is the primary Store driver: a single transactional database
// holding the artifact read model, embeddings (vectors as float32 blobs),
// community assignments, and usage events, with an FTS5 index providing
// bm25-ranked lexical search.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS artifacts (
	id          TEXT PRIMARY KEY,
	org_id      TEXT NOT NULL,
	author_id   TEXT NOT NULL,
	name        TEXT NOT NULL,
	summary     TEXT NOT NULL DEFAULT '',
	visibility  TEXT NOT NULL,
	status      TEXT NOT NULL,
	usage_count INTEGER NOT NULL DEFAULT 0,
	avg_rating  REAL NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_org_status ON artifacts(org_id, status);

CREATE TABLE IF NOT EXISTS embeddings (
	artifact_id   TEXT PRIMARY KEY,
	vector        BLOB NOT NULL,
	model_name    TEXT NOT NULL,
	model_version TEXT NOT NULL,
	input_hash    TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS community_assignments (
	org_id       TEXT NOT NULL,
	artifact_id  TEXT NOT NULL,
	community_id INTEGER NOT NULL,
	modularity   REAL NOT NULL,
	detected_at  TIMESTAMP NOT NULL,
	run_id       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (org_id, artifact_id)
);

CREATE TABLE IF NOT EXISTS usage_events (
	org_id       TEXT NOT NULL,
	principal_id TEXT NOT NULL,
	artifact_id  TEXT NOT NULL,
	used_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_principal ON usage_events(org_id, principal_id);

CREATE VIRTUAL TABLE IF NOT EXISTS artifacts_fts USING fts5(
	name, summary, content='artifacts', content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS artifacts_fts_insert AFTER INSERT ON artifacts BEGIN
	INSERT INTO artifacts_fts(rowid, name, summary) VALUES (new.rowid, new.name, new.summary);
END;
CREATE TRIGGER IF NOT EXISTS artifacts_fts_delete AFTER DELETE ON artifacts BEGIN
	INSERT INTO artifacts_fts(artifacts_fts, rowid, name, summary) VALUES ('delete', old.rowid, old.name, old.summary);
END;
CREATE TRIGGER IF NOT EXISTS artifacts_fts_update AFTER UPDATE ON artifacts BEGIN
	INSERT INTO artifacts_fts(artifacts_fts, rowid, name, summary) VALUES ('delete', old.rowid, old.name, old.summary);
	INSERT INTO artifacts_fts(rowid, name, summary) VALUES (new.rowid, new.name, new.summary);
END;
`

// NewSQLiteStore opens (and migrates) a SQLite store at path. Use
// ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		// Every pool connection gets its own in-memory database; pin to one.
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// visibilityClause renders the filter as SQL against an aliased artifacts
// table and returns the clause plus its bind arguments.
func visibilityClause(f visibility.Filter) (string, []any) {
	if f.Anonymous() {
		return "a.visibility IN (?, ?)", []any{
			string(visibility.GlobalApproved), string(visibility.Tenant),
		}
	}
	return "(a.visibility IN (?, ?) OR (a.author_id = ? AND a.visibility IN (?, ?)))", []any{
		string(visibility.GlobalApproved), string(visibility.Tenant),
		f.PrincipalID,
		string(visibility.Personal), string(visibility.Private),
	}
}

// PutArtifact implements ArtifactWriter.
func (s *SQLiteStore) PutArtifact(ctx context.Context, artifact *types.Artifact) error {
	if err := artifact.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	createdAt := artifact.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, org_id, author_id, name, summary, visibility, status, usage_count, avg_rating, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			org_id = excluded.org_id,
			author_id = excluded.author_id,
			name = excluded.name,
			summary = excluded.summary,
			visibility = excluded.visibility,
			status = excluded.status,
			usage_count = excluded.usage_count,
			avg_rating = excluded.avg_rating,
			updated_at = excluded.updated_at`,
		artifact.ID, artifact.OrgID, artifact.AuthorID, artifact.Name, artifact.Summary,
		string(artifact.Visibility), string(artifact.Status),
		artifact.UsageCount, artifact.AvgRating, createdAt, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert artifact: %w", err)
	}
	return nil
}

// DeleteArtifact implements ArtifactWriter: one transaction removes the
// artifact and cascades to its embedding and community assignment.
func (s *SQLiteStore) DeleteArtifact(ctx context.Context, orgID, artifactID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ? AND org_id = ?`, artifactID, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE artifact_id = ?`, artifactID); err != nil {
		return fmt.Errorf("failed to cascade embedding delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM community_assignments WHERE org_id = ? AND artifact_id = ?`, orgID, artifactID); err != nil {
		return fmt.Errorf("failed to cascade assignment delete: %w", err)
	}
	return tx.Commit()
}

// RecordUsage implements ArtifactWriter.
func (s *SQLiteStore) RecordUsage(ctx context.Context, orgID, principalID, artifactID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_events (org_id, principal_id, artifact_id, used_at) VALUES (?, ?, ?, ?)`,
		orgID, principalID, artifactID, time.Now().UTC(),
	)
	return err
}

func scanArtifact(rows *sql.Rows) (*types.Artifact, error) {
	var a types.Artifact
	var vis, status string
	if err := rows.Scan(&a.ID, &a.OrgID, &a.AuthorID, &a.Name, &a.Summary,
		&vis, &status, &a.UsageCount, &a.AvgRating, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Visibility = visibility.Level(vis)
	a.Status = types.Status(status)
	return &a, nil
}

const artifactColumns = `a.id, a.org_id, a.author_id, a.name, a.summary, a.visibility, a.status, a.usage_count, a.avg_rating, a.created_at, a.updated_at`

// ListEligible implements ArtifactReader.
func (s *SQLiteStore) ListEligible(ctx context.Context, orgID string, f visibility.Filter) ([]*types.Artifact, error) {
	clause, clauseArgs := visibilityClause(f)
	args := append([]any{orgID, string(types.StatusPublished)}, clauseArgs...)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM artifacts a WHERE a.org_id = ? AND a.status = ? AND %s ORDER BY a.id`,
		artifactColumns, clause), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible artifacts: %w", err)
	}
	defer rows.Close()

	var out []*types.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetArtifacts implements ArtifactReader.
func (s *SQLiteStore) GetArtifacts(ctx context.Context, orgID string, ids []string) (map[string]*types.Artifact, error) {
	out := make(map[string]*types.Artifact, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, 0, len(ids)+1)
	args = append(args, orgID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM artifacts a WHERE a.org_id = ? AND a.id IN (%s)`,
		artifactColumns, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get artifacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

// UsedArtifactIDs implements ArtifactReader.
func (s *SQLiteStore) UsedArtifactIDs(ctx context.Context, orgID, principalID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT artifact_id FROM usage_events WHERE org_id = ? AND principal_id = ?`,
		orgID, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage events: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// UpsertEmbedding implements EmbeddingStore.
func (s *SQLiteStore) UpsertEmbedding(ctx context.Context, emb *types.Embedding) error {
	if err := emb.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (artifact_id, vector, model_name, model_version, input_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(artifact_id) DO UPDATE SET
			vector = excluded.vector,
			model_name = excluded.model_name,
			model_version = excluded.model_version,
			input_hash = excluded.input_hash,
			updated_at = excluded.updated_at`,
		emb.ArtifactID, encodeVector(emb.Vector), emb.ModelName, emb.ModelVersion,
		emb.InputHash, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

// GetEmbedding implements EmbeddingStore.
func (s *SQLiteStore) GetEmbedding(ctx context.Context, artifactID string) (*types.Embedding, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT artifact_id, vector, model_name, model_version, input_hash, created_at, updated_at
		FROM embeddings WHERE artifact_id = ?`, artifactID)

	var emb types.Embedding
	var blob []byte
	err := row.Scan(&emb.ArtifactID, &blob, &emb.ModelName, &emb.ModelVersion,
		&emb.InputHash, &emb.CreatedAt, &emb.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	emb.Vector = decodeVector(blob)
	return &emb, nil
}

// DeleteEmbedding implements EmbeddingStore.
func (s *SQLiteStore) DeleteEmbedding(ctx context.Context, artifactID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE artifact_id = ?`, artifactID)
	return err
}

// ListEmbeddings implements EmbeddingStore.
func (s *SQLiteStore) ListEmbeddings(ctx context.Context, orgID string, f visibility.Filter) ([]*types.Embedding, error) {
	clause, clauseArgs := visibilityClause(f)
	args := append([]any{orgID, string(types.StatusPublished)}, clauseArgs...)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT e.artifact_id, e.vector, e.model_name, e.model_version, e.input_hash, e.created_at, e.updated_at
		FROM embeddings e
		JOIN artifacts a ON a.id = e.artifact_id
		WHERE a.org_id = ? AND a.status = ? AND %s
		ORDER BY e.artifact_id`, clause), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	defer rows.Close()

	var out []*types.Embedding
	for rows.Next() {
		var emb types.Embedding
		var blob []byte
		if err := rows.Scan(&emb.ArtifactID, &blob, &emb.ModelName, &emb.ModelVersion,
			&emb.InputHash, &emb.CreatedAt, &emb.UpdatedAt); err != nil {
			return nil, err
		}
		emb.Vector = decodeVector(blob)
		out = append(out, &emb)
	}
	return out, rows.Err()
}

// ReplaceAssignments implements AssignmentStore: delete-all plus bulk insert
// inside one transaction. A failure anywhere rolls the whole swap back.
func (s *SQLiteStore) ReplaceAssignments(ctx context.Context, orgID string, assignments []types.CommunityAssignment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM community_assignments WHERE org_id = ?`, orgID); err != nil {
		return fmt.Errorf("failed to clear previous assignments: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO community_assignments (org_id, artifact_id, community_id, modularity, detected_at, run_id)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range assignments {
		if _, err := stmt.ExecContext(ctx, orgID, a.ArtifactID, a.CommunityID, a.Modularity, a.DetectedAt, a.RunID); err != nil {
			return fmt.Errorf("failed to insert assignment for %s: %w", a.ArtifactID, err)
		}
	}
	return tx.Commit()
}

// ListAssignments implements AssignmentStore.
func (s *SQLiteStore) ListAssignments(ctx context.Context, orgID string) (map[string]*types.CommunityAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT org_id, artifact_id, community_id, modularity, detected_at, run_id
		FROM community_assignments WHERE org_id = ?`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*types.CommunityAssignment)
	for rows.Next() {
		var a types.CommunityAssignment
		if err := rows.Scan(&a.OrgID, &a.ArtifactID, &a.CommunityID, &a.Modularity, &a.DetectedAt, &a.RunID); err != nil {
			return nil, err
		}
		out[a.ArtifactID] = &a
	}
	return out, rows.Err()
}

// SearchLexical implements LexicalSearcher with bm25-ranked FTS5 matching.
// Queries that yield no usable tokens fall back to substring matching
// ordered by usage count.
func (s *SQLiteStore) SearchLexical(ctx context.Context, orgID, query string, f visibility.Filter, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, types.ErrInvalidLimit
	}
	clause, clauseArgs := visibilityClause(f)

	tokens := tokenize(query)
	var (
		sqlText string
		args    []any
	)
	if len(tokens) == 0 {
		trimmed := strings.TrimSpace(query)
		if trimmed == "" {
			return nil, nil
		}
		sqlText = fmt.Sprintf(`
			SELECT a.id FROM artifacts a
			WHERE a.org_id = ? AND a.status = ? AND %s
			  AND (a.name LIKE ? ESCAPE '\' OR a.summary LIKE ? ESCAPE '\')
			ORDER BY a.usage_count DESC, a.avg_rating DESC, a.id
			LIMIT ?`, clause)
		pattern := "%" + escapeLike(trimmed) + "%"
		args = append(append([]any{orgID, string(types.StatusPublished)}, clauseArgs...), pattern, pattern, limit)
	} else {
		// Tokens are quoted so user input can never inject FTS syntax.
		quoted := make([]string, len(tokens))
		for i, tok := range tokens {
			quoted[i] = `"` + tok + `"`
		}
		match := strings.Join(quoted, " OR ")
		sqlText = fmt.Sprintf(`
			SELECT a.id FROM artifacts_fts fts
			JOIN artifacts a ON a.rowid = fts.rowid
			WHERE artifacts_fts MATCH ? AND a.org_id = ? AND a.status = ? AND %s
			ORDER BY bm25(artifacts_fts, 2.0, 1.0), a.usage_count DESC, a.id
			LIMIT ?`, clause)
		args = append(append([]any{match, orgID, string(types.StatusPublished)}, clauseArgs...), limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// encodeVector packs float32s as little-endian bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector. Truncated blobs decode to
// the whole multiple of 4 bytes.
func decodeVector(b []byte) []float32 {
	n := len(b) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

var _ Store = (*SQLiteStore)(nil)
