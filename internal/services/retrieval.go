package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/solvegraph/solvegraph-backend/internal/clients/hf"
	"github.com/solvegraph/solvegraph-backend/internal/data/graph"
	"github.com/solvegraph/solvegraph-backend/internal/platform/logger"
)

// NoContextSentinel is returned when similarity search finds nothing in the
// user's subgraph.
const NoContextSentinel = "No specific information found for this user in the knowledge graph."

const perTypeCap = 5

// ContextRetriever renders the RAG context block for one user query.
type ContextRetriever interface {
	Retrieve(ctx context.Context, userID, query string) (string, error)
}

type contextSearcher interface {
	SearchContext(ctx context.Context, userID string, embedding []float32) ([]graph.ContextHit, error)
}

type retrievalService struct {
	log      *logger.Logger
	embedder hf.Embedder
	graph    contextSearcher
}

func NewRetrievalService(baseLog *logger.Logger, embedder hf.Embedder, store contextSearcher) ContextRetriever {
	return &retrievalService{
		log:      baseLog.With("service", "RetrievalService"),
		embedder: embedder,
		graph:    store,
	}
}

// Retrieve embeds the query once, runs the per-type ownership-scoped
// similarity searches, and renders the grouped context block.
func (s *retrievalService) Retrieve(ctx context.Context, userID, query string) (string, error) {
	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return "", fmt.Errorf("retrieve context: %w", err)
	}

	hits, err := s.graph.SearchContext(ctx, userID, embedding)
	if err != nil {
		return "", fmt.Errorf("retrieve context: %w", err)
	}
	if len(hits) == 0 {
		return NoContextSentinel, nil
	}

	return RenderContext(hits), nil
}

// RenderContext groups hits by type (dropping duplicate names, capping each
// type's contribution) into the "Relevant {Type}s:" blocks fed to the model.
func RenderContext(hits []graph.ContextHit) string {
	typeOrder := make([]string, 0, 3)
	seen := map[string]map[string]bool{}
	grouped := map[string][]string{}

	for _, hit := range hits {
		if _, ok := seen[hit.Type]; !ok {
			typeOrder = append(typeOrder, hit.Type)
			seen[hit.Type] = map[string]bool{}
		}
		if seen[hit.Type][hit.Name] || len(grouped[hit.Type]) >= perTypeCap {
			continue
		}
		seen[hit.Type][hit.Name] = true
		grouped[hit.Type] = append(grouped[hit.Type], hit.Name)
	}

	blocks := make([]string, 0, len(typeOrder))
	for _, typ := range typeOrder {
		names := grouped[typ]
		if len(names) == 0 {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("Relevant %ss:\n- %s", typ, strings.Join(names, "\n- ")))
	}
	if len(blocks) == 0 {
		return NoContextSentinel
	}
	return strings.Join(blocks, "\n\n")
}
