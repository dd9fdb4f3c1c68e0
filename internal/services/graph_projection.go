package services

import (
	"context"
	"fmt"

	"github.com/solvegraph/solvegraph-backend/internal/clients/hf"
	"github.com/solvegraph/solvegraph-backend/internal/data/graph"
	"github.com/solvegraph/solvegraph-backend/internal/domain/analysis"
	"github.com/solvegraph/solvegraph-backend/internal/platform/apierr"
	"github.com/solvegraph/solvegraph-backend/internal/platform/logger"
)

// GraphProjector applies one verified, validated fan-out job to the
// knowledge graph: embed the three node texts, then one MERGE transaction.
// An embedding failure fails the whole job; the queue's redelivery is the
// retry mechanism at this layer.
type GraphProjector interface {
	Apply(ctx context.Context, payload analysis.GraphPayload) error
}

type submissionWriter interface {
	UpsertSubmission(ctx context.Context, payload analysis.GraphPayload, emb graph.SubmissionEmbeddings) error
}

type graphProjector struct {
	log      *logger.Logger
	embedder hf.Embedder
	graph    submissionWriter
}

func NewGraphProjector(baseLog *logger.Logger, embedder hf.Embedder, store submissionWriter) GraphProjector {
	return &graphProjector{
		log:      baseLog.With("service", "GraphProjector"),
		embedder: embedder,
		graph:    store,
	}
}

func (p *graphProjector) Apply(ctx context.Context, payload analysis.GraphPayload) error {
	vectors, err := p.embedder.Embed(ctx, []string{
		payload.Problem.Name,
		payload.Problem.ApproachName,
		payload.Problem.Domain,
	})
	if err != nil {
		return fmt.Errorf("graph projection: embed: %w", err)
	}

	err = p.graph.UpsertSubmission(ctx, payload, graph.SubmissionEmbeddings{
		Problem:  vectors[0],
		Approach: vectors[1],
		Concept:  vectors[2],
	})
	if err != nil {
		return apierr.StoreWrite(err)
	}
	return nil
}
