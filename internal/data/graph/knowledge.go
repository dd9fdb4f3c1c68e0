package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/solvegraph/solvegraph-backend/internal/domain/analysis"
	"github.com/solvegraph/solvegraph-backend/internal/platform/logger"
	"github.com/solvegraph/solvegraph-backend/internal/platform/neo4jdb"
)

// SubmissionEmbeddings carries one vector per node the upsert touches.
// All three are required: writing nodes without embeddings would corrupt
// similarity search, so callers fail the whole job instead.
type SubmissionEmbeddings struct {
	Problem  []float32
	Approach []float32
	Concept  []float32
}

// KnowledgeStore owns every write to the knowledge subgraph
// (User/Problem/Approach/Concept and their edges).
type KnowledgeStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewKnowledgeStore(client *neo4jdb.Client, baseLog *logger.Logger) *KnowledgeStore {
	return &KnowledgeStore{client: client, log: baseLog.With("store", "KnowledgeGraph")}
}

// EnsureSchema creates the uniqueness constraints and vector indexes the
// store relies on. Best-effort: failures are logged and the caller proceeds,
// matching the MERGE-based writes which stay correct without them.
func (s *KnowledgeStore) EnsureSchema(ctx context.Context, dimensions int) {
	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	stmts := []string{
		`CREATE CONSTRAINT user_user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.userId IS UNIQUE`,
		`CREATE CONSTRAINT problem_url_unique IF NOT EXISTS FOR (p:Problem) REQUIRE p.url IS UNIQUE`,
		`CREATE CONSTRAINT approach_name_unique IF NOT EXISTS FOR (a:Approach) REQUIRE a.name IS UNIQUE`,
		`CREATE CONSTRAINT concept_name_unique IF NOT EXISTS FOR (c:Concept) REQUIRE c.name IS UNIQUE`,
		fmt.Sprintf(`CREATE VECTOR INDEX problemEmbeddings IF NOT EXISTS FOR (p:Problem) ON (p.embedding)
OPTIONS {indexConfig: {%s: %d, %s: 'cosine'}}`, "`vector.dimensions`", dimensions, "`vector.similarity_function`"),
		fmt.Sprintf(`CREATE VECTOR INDEX approachEmbeddings IF NOT EXISTS FOR (a:Approach) ON (a.embedding)
OPTIONS {indexConfig: {%s: %d, %s: 'cosine'}}`, "`vector.dimensions`", dimensions, "`vector.similarity_function`"),
		fmt.Sprintf(`CREATE VECTOR INDEX conceptEmbeddings IF NOT EXISTS FOR (c:Concept) ON (c.embedding)
OPTIONS {indexConfig: {%s: %d, %s: 'cosine'}}`, "`vector.dimensions`", dimensions, "`vector.similarity_function`"),
	}
	for _, q := range stmts {
		if res, err := session.Run(ctx, q, nil); err != nil {
			s.log.Warn("Knowledge graph schema init failed (continuing)", "error", err)
		} else {
			_, _ = res.Consume(ctx)
		}
	}
}

// UpsertSubmission merges the four node types by natural key and the three
// relationship types between them in one write transaction. Redelivering the
// same payload is a no-op beyond refreshing node attributes and embeddings.
func (s *KnowledgeStore) UpsertSubmission(ctx context.Context, payload analysis.GraphPayload, emb SubmissionEmbeddings) error {
	if len(emb.Problem) == 0 || len(emb.Approach) == 0 || len(emb.Concept) == 0 {
		return fmt.Errorf("knowledge graph: refusing to write nodes without embeddings")
	}

	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (u:User {userId: $userId})
MERGE (p:Problem {url: $url})
  ON CREATE SET p.name = $name
SET p.name = $name, p.embedding = $problemEmbedding
MERGE (a:Approach {name: $approachName})
SET a.embedding = $approachEmbedding
MERGE (c:Concept {name: $domain})
SET c.embedding = $conceptEmbedding
MERGE (u)-[:SUBMITTED]->(p)
MERGE (p)-[:SOLVED_WITH]->(a)
MERGE (a)-[:BELONGS_TO]->(c)
`, map[string]any{
			"userId":            payload.UserID,
			"url":               payload.Problem.URL,
			"name":              payload.Problem.Name,
			"approachName":      payload.Problem.ApproachName,
			"domain":            payload.Problem.Domain,
			"problemEmbedding":  vectorParam(emb.Problem),
			"approachEmbedding": vectorParam(emb.Approach),
			"conceptEmbedding":  vectorParam(emb.Concept),
		})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("knowledge graph: upsert submission: %w", err)
	}

	s.log.Info("Knowledge graph updated", "user_id", payload.UserID, "problem", payload.Problem.Name)
	return nil
}

// ContextHit is one similarity-search result, grouped later by Type.
type ContextHit struct {
	Type string
	Name string
}

// SearchContext runs the three per-type similarity queries, each scoped to
// nodes reachable from the requesting user's SUBMITTED chain. The ownership
// filter is a security invariant: results must never cross users.
func (s *KnowledgeStore) SearchContext(ctx context.Context, userID string, embedding []float32) ([]ContextHit, error) {
	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
CALL db.index.vector.queryNodes('problemEmbeddings', 10, $embedding) YIELD node AS p, score
WHERE EXISTS((:User {userId: $userId})-[:SUBMITTED]->(p))
WITH p, score LIMIT 5
RETURN "Problem" AS type, p.name AS name
UNION
CALL db.index.vector.queryNodes('approachEmbeddings', 10, $embedding) YIELD node AS a, score
WHERE EXISTS((:User {userId: $userId})-[:SUBMITTED]->(:Problem)-[:SOLVED_WITH]->(a))
WITH a, score LIMIT 5
RETURN "Approach" AS type, a.name AS name
UNION
CALL db.index.vector.queryNodes('conceptEmbeddings', 10, $embedding) YIELD node AS c, score
WHERE EXISTS((:User {userId: $userId})-[:SUBMITTED]->(:Problem)-[:SOLVED_WITH]->(:Approach)-[:BELONGS_TO]->(c))
WITH c, score LIMIT 5
RETURN "Concept" AS type, c.name AS name
`, map[string]any{
			"embedding": vectorParam(embedding),
			"userId":    userID,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge graph: context search: %w", err)
	}

	recs := records.([]*neo4j.Record)
	hits := make([]ContextHit, 0, len(recs))
	for _, rec := range recs {
		typ, _ := rec.Get("type")
		name, _ := rec.Get("name")
		typStr, _ := typ.(string)
		nameStr, _ := name.(string)
		if typStr == "" || nameStr == "" {
			continue
		}
		hits = append(hits, ContextHit{Type: typStr, Name: nameStr})
	}
	return hits, nil
}

// vectorParam converts to float64 because the bolt protocol has no float32
// list type.
func vectorParam(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
