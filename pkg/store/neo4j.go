package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/skillmesh/skillgraph/pkg/types"
	"github.com/skillmesh/skillgraph/pkg/visibility"
)

// Neo4jStore is a graph-database Store driver. Artifacts are (:Artifact)
// nodes, embeddings hang off them as (:Embedding) nodes, community
// assignments are (:Community) membership rows, and usage events are
// (:Principal)-[:USED]->(:Artifact) relationships. Lexical search uses the
// artifact_text fulltext index.
type Neo4jStore struct {
	client   neo4j.DriverWithContext
	database string
}

// NewNeo4jStore creates a Neo4j-backed store and ensures its indexes exist.
func NewNeo4jStore(ctx context.Context, uri, username, password, database string) (*Neo4jStore, error) {
	client, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	s := &Neo4jStore{client: client, database: database}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Neo4jStore) ensureIndexes(ctx context.Context) error {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT artifact_id IF NOT EXISTS FOR (a:Artifact) REQUIRE a.id IS UNIQUE`,
		`CREATE CONSTRAINT embedding_artifact IF NOT EXISTS FOR (e:Embedding) REQUIRE e.artifact_id IS UNIQUE`,
		`CREATE INDEX artifact_org IF NOT EXISTS FOR (a:Artifact) ON (a.org_id, a.status)`,
		`CREATE FULLTEXT INDEX artifact_text IF NOT EXISTS FOR (a:Artifact) ON EACH [a.name, a.summary]`,
	}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, stmt := range statements {
			if _, err := tx.Run(ctx, stmt, nil); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to ensure neo4j indexes: %w", err)
	}
	return nil
}

// visibilityPredicate renders the filter as a Cypher predicate over an
// artifact variable a, binding the principal into params.
func visibilityPredicate(f visibility.Filter, params map[string]any) string {
	if f.Anonymous() {
		return `a.visibility IN ['global_approved', 'tenant']`
	}
	params["principal"] = f.PrincipalID
	return `(a.visibility IN ['global_approved', 'tenant'] OR (a.author_id = $principal AND a.visibility IN ['personal', 'private']))`
}

// PutArtifact implements ArtifactWriter.
func (s *Neo4jStore) PutArtifact(ctx context.Context, artifact *types.Artifact) error {
	if err := artifact.Validate(); err != nil {
		return err
	}
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	now := time.Now().UTC()
	createdAt := artifact.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MERGE (a:Artifact {id: $id})
			ON CREATE SET a.created_at = $created_at
			SET a.org_id = $org_id,
			    a.author_id = $author_id,
			    a.name = $name,
			    a.summary = $summary,
			    a.visibility = $visibility,
			    a.status = $status,
			    a.usage_count = $usage_count,
			    a.avg_rating = $avg_rating,
			    a.updated_at = $updated_at
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"id":          artifact.ID,
			"org_id":      artifact.OrgID,
			"author_id":   artifact.AuthorID,
			"name":        artifact.Name,
			"summary":     artifact.Summary,
			"visibility":  string(artifact.Visibility),
			"status":      string(artifact.Status),
			"usage_count": artifact.UsageCount,
			"avg_rating":  artifact.AvgRating,
			"created_at":  createdAt,
			"updated_at":  now,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert artifact: %w", err)
	}
	return nil
}

// DeleteArtifact implements ArtifactWriter: one write transaction detaches
// the artifact and removes its embedding and assignment nodes.
func (s *Neo4jStore) DeleteArtifact(ctx context.Context, orgID, artifactID string) error {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (a:Artifact {id: $id, org_id: $org_id})
			OPTIONAL MATCH (e:Embedding {artifact_id: $id})
			OPTIONAL MATCH (c:Assignment {artifact_id: $id, org_id: $org_id})
			DETACH DELETE a, e, c
			RETURN count(a) AS deleted
		`
		res, err := tx.Run(ctx, query, map[string]any{"id": artifactID, "org_id": orgID})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		deleted, _ := record.Get("deleted")
		return deleted, nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	if n, ok := result.(int64); ok && n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordUsage implements ArtifactWriter.
func (s *Neo4jStore) RecordUsage(ctx context.Context, orgID, principalID, artifactID string) error {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MERGE (p:Principal {id: $principal, org_id: $org_id})
			MERGE (a:Artifact {id: $artifact})
			MERGE (p)-[u:USED]->(a)
			ON CREATE SET u.first_used_at = $now
			SET u.last_used_at = $now
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"principal": principalID,
			"org_id":    orgID,
			"artifact":  artifactID,
			"now":       time.Now().UTC(),
		})
		return nil, err
	})
	return err
}

func artifactFromNode(node dbtype.Node) *types.Artifact {
	props := node.Props
	a := &types.Artifact{
		ID:         asString(props["id"]),
		OrgID:      asString(props["org_id"]),
		AuthorID:   asString(props["author_id"]),
		Name:       asString(props["name"]),
		Summary:    asString(props["summary"]),
		Visibility: visibility.Level(asString(props["visibility"])),
		Status:     types.Status(asString(props["status"])),
	}
	if v, ok := props["usage_count"].(int64); ok {
		a.UsageCount = int(v)
	}
	if v, ok := props["avg_rating"].(float64); ok {
		a.AvgRating = v
	}
	if v, ok := props["created_at"].(time.Time); ok {
		a.CreatedAt = v
	}
	if v, ok := props["updated_at"].(time.Time); ok {
		a.UpdatedAt = v
	}
	return a
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// collectArtifacts runs a read query whose rows bind an artifact node to "a".
func (s *Neo4jStore) collectArtifacts(ctx context.Context, query string, params map[string]any) ([]*types.Artifact, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}

	records := result.([]*db.Record)
	out := make([]*types.Artifact, 0, len(records))
	for _, record := range records {
		value, found := record.Get("a")
		if !found {
			continue
		}
		node, ok := value.(dbtype.Node)
		if !ok {
			return nil, fmt.Errorf("unexpected type for artifact: got %T, expected dbtype.Node", value)
		}
		out = append(out, artifactFromNode(node))
	}
	return out, nil
}

// ListEligible implements ArtifactReader.
func (s *Neo4jStore) ListEligible(ctx context.Context, orgID string, f visibility.Filter) ([]*types.Artifact, error) {
	params := map[string]any{"org_id": orgID}
	query := fmt.Sprintf(`
		MATCH (a:Artifact {org_id: $org_id, status: 'published'})
		WHERE %s
		RETURN a
		ORDER BY a.id
	`, visibilityPredicate(f, params))
	artifacts, err := s.collectArtifacts(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible artifacts: %w", err)
	}
	return artifacts, nil
}

// GetArtifacts implements ArtifactReader.
func (s *Neo4jStore) GetArtifacts(ctx context.Context, orgID string, ids []string) (map[string]*types.Artifact, error) {
	out := make(map[string]*types.Artifact, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	artifacts, err := s.collectArtifacts(ctx, `
		MATCH (a:Artifact {org_id: $org_id})
		WHERE a.id IN $ids
		RETURN a
	`, map[string]any{"org_id": orgID, "ids": ids})
	if err != nil {
		return nil, fmt.Errorf("failed to get artifacts: %w", err)
	}
	for _, a := range artifacts {
		out[a.ID] = a
	}
	return out, nil
}

// UsedArtifactIDs implements ArtifactReader.
func (s *Neo4jStore) UsedArtifactIDs(ctx context.Context, orgID, principalID string) (map[string]struct{}, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (p:Principal {id: $principal, org_id: $org_id})-[:USED]->(a:Artifact)
			RETURN a.id AS id
		`, map[string]any{"principal": principalID, "org_id": orgID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list usage events: %w", err)
	}

	out := make(map[string]struct{})
	for _, record := range result.([]*db.Record) {
		if id, found := record.Get("id"); found {
			out[asString(id)] = struct{}{}
		}
	}
	return out, nil
}

// UpsertEmbedding implements EmbeddingStore.
func (s *Neo4jStore) UpsertEmbedding(ctx context.Context, emb *types.Embedding) error {
	if err := emb.Validate(); err != nil {
		return err
	}
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	vector := make([]float64, len(emb.Vector))
	for i, v := range emb.Vector {
		vector[i] = float64(v)
	}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MERGE (e:Embedding {artifact_id: $artifact_id})
			ON CREATE SET e.created_at = $now
			SET e.vector = $vector,
			    e.model_name = $model_name,
			    e.model_version = $model_version,
			    e.input_hash = $input_hash,
			    e.updated_at = $now
			WITH e
			OPTIONAL MATCH (a:Artifact {id: $artifact_id})
			FOREACH (x IN CASE WHEN a IS NULL THEN [] ELSE [1] END |
				MERGE (a)-[:EMBEDDED_AS]->(e))
		`
		_, err := tx.Run(ctx, query, map[string]any{
			"artifact_id":   emb.ArtifactID,
			"vector":        vector,
			"model_name":    emb.ModelName,
			"model_version": emb.ModelVersion,
			"input_hash":    emb.InputHash,
			"now":           time.Now().UTC(),
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

func embeddingFromNode(node dbtype.Node) *types.Embedding {
	props := node.Props
	emb := &types.Embedding{
		ArtifactID:   asString(props["artifact_id"]),
		ModelName:    asString(props["model_name"]),
		ModelVersion: asString(props["model_version"]),
		InputHash:    asString(props["input_hash"]),
	}
	if raw, ok := props["vector"].([]any); ok {
		emb.Vector = make([]float32, len(raw))
		for i, v := range raw {
			if f, ok := v.(float64); ok {
				emb.Vector[i] = float32(f)
			}
		}
	}
	if v, ok := props["created_at"].(time.Time); ok {
		emb.CreatedAt = v
	}
	if v, ok := props["updated_at"].(time.Time); ok {
		emb.UpdatedAt = v
	}
	return emb
}

// GetEmbedding implements EmbeddingStore.
func (s *Neo4jStore) GetEmbedding(ctx context.Context, artifactID string) (*types.Embedding, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (e:Embedding {artifact_id: $artifact_id})
			RETURN e
			LIMIT 1
		`, map[string]any{"artifact_id": artifactID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}

	records := result.([]*db.Record)
	if len(records) == 0 {
		return nil, nil
	}
	value, found := records[0].Get("e")
	if !found {
		return nil, nil
	}
	node, ok := value.(dbtype.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected type for embedding: got %T, expected dbtype.Node", value)
	}
	return embeddingFromNode(node), nil
}

// DeleteEmbedding implements EmbeddingStore.
func (s *Neo4jStore) DeleteEmbedding(ctx context.Context, artifactID string) error {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (e:Embedding {artifact_id: $artifact_id})
			DETACH DELETE e
		`, map[string]any{"artifact_id": artifactID})
		return nil, err
	})
	return err
}

// ListEmbeddings implements EmbeddingStore.
func (s *Neo4jStore) ListEmbeddings(ctx context.Context, orgID string, f visibility.Filter) ([]*types.Embedding, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	params := map[string]any{"org_id": orgID}
	query := fmt.Sprintf(`
		MATCH (a:Artifact {org_id: $org_id, status: 'published'})-[:EMBEDDED_AS]->(e:Embedding)
		WHERE %s
		RETURN e
		ORDER BY e.artifact_id
	`, visibilityPredicate(f, params))

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}

	records := result.([]*db.Record)
	out := make([]*types.Embedding, 0, len(records))
	for _, record := range records {
		value, found := record.Get("e")
		if !found {
			continue
		}
		node, ok := value.(dbtype.Node)
		if !ok {
			return nil, fmt.Errorf("unexpected type for embedding: got %T, expected dbtype.Node", value)
		}
		out = append(out, embeddingFromNode(node))
	}
	return out, nil
}

// ReplaceAssignments implements AssignmentStore: one write transaction
// deletes the org's assignment nodes and recreates them from the new set.
func (s *Neo4jStore) ReplaceAssignments(ctx context.Context, orgID string, assignments []types.CommunityAssignment) error {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	rows := make([]map[string]any, len(assignments))
	for i, a := range assignments {
		rows[i] = map[string]any{
			"artifact_id":  a.ArtifactID,
			"community_id": a.CommunityID,
			"modularity":   a.Modularity,
			"detected_at":  a.DetectedAt,
			"run_id":       a.RunID,
		}
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MATCH (c:Assignment {org_id: $org_id})
			DETACH DELETE c
		`, map[string]any{"org_id": orgID}); err != nil {
			return nil, err
		}
		_, err := tx.Run(ctx, `
			UNWIND $rows AS row
			CREATE (c:Assignment {
				org_id: $org_id,
				artifact_id: row.artifact_id,
				community_id: row.community_id,
				modularity: row.modularity,
				detected_at: row.detected_at,
				run_id: row.run_id
			})
		`, map[string]any{"org_id": orgID, "rows": rows})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to replace assignments: %w", err)
	}
	return nil
}

// ListAssignments implements AssignmentStore.
func (s *Neo4jStore) ListAssignments(ctx context.Context, orgID string) (map[string]*types.CommunityAssignment, error) {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (c:Assignment {org_id: $org_id})
			RETURN c
		`, map[string]any{"org_id": orgID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	out := make(map[string]*types.CommunityAssignment)
	for _, record := range result.([]*db.Record) {
		value, found := record.Get("c")
		if !found {
			continue
		}
		node, ok := value.(dbtype.Node)
		if !ok {
			return nil, fmt.Errorf("unexpected type for assignment: got %T, expected dbtype.Node", value)
		}
		props := node.Props
		a := &types.CommunityAssignment{
			OrgID:      asString(props["org_id"]),
			ArtifactID: asString(props["artifact_id"]),
			RunID:      asString(props["run_id"]),
		}
		if v, ok := props["community_id"].(int64); ok {
			a.CommunityID = int(v)
		}
		if v, ok := props["modularity"].(float64); ok {
			a.Modularity = v
		}
		if v, ok := props["detected_at"].(time.Time); ok {
			a.DetectedAt = v
		}
		out[a.ArtifactID] = a
	}
	return out, nil
}

// luceneEscape neutralizes Lucene query syntax in user input.
func luceneEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '+', '-', '&', '|', '!', '(', ')', '{', '}', '[', ']', '^', '"', '~', '*', '?', ':', '\\', '/':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SearchLexical implements LexicalSearcher against the artifact_text
// fulltext index. Queries with no usable tokens fall back to substring
// matching ordered by usage count.
func (s *Neo4jStore) SearchLexical(ctx context.Context, orgID, query string, f visibility.Filter, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, types.ErrInvalidLimit
	}
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	params := map[string]any{"org_id": orgID, "limit": limit}
	predicate := visibilityPredicate(f, params)

	tokens := tokenize(query)
	var cypher string
	if len(tokens) == 0 {
		trimmed := strings.TrimSpace(query)
		if trimmed == "" {
			return nil, nil
		}
		params["needle"] = strings.ToLower(trimmed)
		cypher = fmt.Sprintf(`
			MATCH (a:Artifact {org_id: $org_id, status: 'published'})
			WHERE %s AND (toLower(a.name) CONTAINS $needle OR toLower(a.summary) CONTAINS $needle)
			RETURN a.id AS id
			ORDER BY a.usage_count DESC, a.avg_rating DESC, a.id
			LIMIT $limit
		`, predicate)
	} else {
		escaped := make([]string, len(tokens))
		for i, tok := range tokens {
			escaped[i] = luceneEscape(tok)
		}
		params["query"] = strings.Join(escaped, " OR ")
		cypher = fmt.Sprintf(`
			CALL db.index.fulltext.queryNodes('artifact_text', $query) YIELD node AS a, score
			WHERE a.org_id = $org_id AND a.status = 'published' AND %s
			RETURN a.id AS id
			ORDER BY score DESC, a.usage_count DESC, a.id
			LIMIT $limit
		`, predicate)
	}

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	var out []string
	for _, record := range result.([]*db.Record) {
		if id, found := record.Get("id"); found {
			out = append(out, asString(id))
		}
	}
	return out, nil
}

// Ping implements Store.
func (s *Neo4jStore) Ping(ctx context.Context) error {
	return s.client.VerifyConnectivity(ctx)
}

// Close implements Store.
func (s *Neo4jStore) Close() error {
	return s.client.Close(context.Background())
}

var _ Store = (*Neo4jStore)(nil)
