package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/solvegraph/solvegraph-backend/internal/clients/gemini"
	"github.com/solvegraph/solvegraph-backend/internal/clients/queue"
	"github.com/solvegraph/solvegraph-backend/internal/domain/analysis"
	"github.com/solvegraph/solvegraph-backend/internal/platform/apierr"
	"github.com/solvegraph/solvegraph-backend/internal/platform/logger"
)

// GraphConsumerPath is the queue destination for graph fan-out jobs.
const GraphConsumerPath = "/api/queue/graph-writer"

const analysisPromptTemplate = `
You are an expert algorithm tutor. For every problem return ONE JSON object.

Field rules
-----------
- name         - human-readable title (e.g. "Two Sum")
- approachName - A short, descriptive name for this specific solution. (e.g. "Brute Force", "Hash Map O(n)", "Two Pointers")
- pseudoCode   - 3-10 ultra-concise English lines (first = signature)
- time         - ONE Big-O term (e.g. "O(n)")
- space        - ONE Big-O term (e.g. "O(1)")
- tags         - ARRAY [Data Structure, keyAlgorithm] (e.g. ["Graph", "Dijkstra"], ["Array", "Two Pointers"], ["Tree", "Binary Search"])
- difficulty   - "Easy" | "Medium" | "Hard"

Problem URL: %s

Solution code:
%s
`

// analysisSchema constrains the model to the exact Result shape.
var analysisSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"name":         map[string]any{"type": "STRING"},
		"approachName": map[string]any{"type": "STRING"},
		"pseudoCode":   map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}},
		"time":         map[string]any{"type": "STRING"},
		"space":        map[string]any{"type": "STRING"},
		"tags":         map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}},
		"difficulty":   map[string]any{"type": "STRING"},
	},
	"required": []string{"name", "approachName", "pseudoCode", "time", "space", "tags", "difficulty"},
}

// retryDelays is the fixed backoff schedule for transient model failures.
// Exhausting it surfaces a terminal failure; permanent errors never retry.
var retryDelays = []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, 1000 * time.Millisecond}

type AnalyzeRequest struct {
	Link  string
	Code  string
	Notes string
}

// AnalysisService runs the analyze flow: one generative call, the idempotent
// relational write, then the graph fan-out publish.
type AnalysisService interface {
	Analyze(ctx context.Context, userID string, details analysis.UserDetails, req AnalyzeRequest) (analysis.Result, error)
}

type analysisService struct {
	log       *logger.Logger
	model     gemini.Client
	records   RecordWriter
	publisher queue.Publisher
	delays    []time.Duration
}

func NewAnalysisService(baseLog *logger.Logger, model gemini.Client, records RecordWriter, publisher queue.Publisher) AnalysisService {
	return &analysisService{
		log:       baseLog.With("service", "AnalysisService"),
		model:     model,
		records:   records,
		publisher: publisher,
		delays:    retryDelays,
	}
}

func (s *analysisService) Analyze(ctx context.Context, userID string, details analysis.UserDetails, req AnalyzeRequest) (analysis.Result, error) {
	result, err := s.generateAnalysis(ctx, req.Link, req.Code)
	if err != nil {
		return analysis.Result{}, err
	}
	if err := result.Validate(); err != nil {
		// The model broke its output contract; retrying the same input
		// would not help.
		return analysis.Result{}, apierr.Permanent(err)
	}

	payload := analysis.RecordPayload{
		UserID:       userID,
		UserDetails:  details,
		Link:         req.Link,
		Notes:        req.Notes,
		AnalysisData: result,
	}
	if err := s.records.Apply(ctx, payload); err != nil {
		return analysis.Result{}, apierr.StoreWrite(fmt.Errorf("persist analysis: %w", err))
	}

	// The relational record is durable now. A publish failure must not roll
	// it back, and is logged apart from write failures so the two drift
	// modes stay distinguishable.
	graphJob := analysis.GraphPayload{
		UserID: userID,
		Problem: analysis.GraphProblem{
			URL:          strings.TrimSpace(req.Link),
			Name:         strings.TrimSpace(result.Name),
			Domain:       HumanizeIdentifier(result.Domain()),
			ApproachName: HumanizeIdentifier(result.ApproachName),
		},
	}
	if err := s.publisher.Publish(ctx, GraphConsumerPath, graphJob); err != nil {
		s.log.Error("Graph fan-out publish failed; analysis record is already durable",
			"user_id", userID, "url", req.Link, "error", err)
	}

	return result, nil
}

func (s *analysisService) generateAnalysis(ctx context.Context, link, code string) (analysis.Result, error) {
	prompt := fmt.Sprintf(analysisPromptTemplate, link, code)

	var result analysis.Result
	var err error
	for attempt := 0; ; attempt++ {
		err = s.model.GenerateJSON(ctx, prompt, analysisSchema, &result)
		if err == nil {
			return result, nil
		}
		if !apierr.IsTransient(err) || attempt == len(s.delays) {
			return analysis.Result{}, err
		}
		s.log.Warn("Transient model failure, retrying analysis",
			"attempt", attempt+1, "delay", s.delays[attempt].String(), "error", err)
		select {
		case <-time.After(s.delays[attempt]):
		case <-ctx.Done():
			return analysis.Result{}, ctx.Err()
		}
	}
}

// HumanizeIdentifier converts machine-cased identifiers ("two_pointers",
// "twoPointers") into word-separated title form ("Two Pointers"). Strings
// that already contain spaces are only trimmed.
func HumanizeIdentifier(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsRune(s, ' ') {
		return s
	}

	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)

	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]) {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}

	words := strings.Fields(b.String())
	for i, w := range words {
		wr := []rune(w)
		wr[0] = unicode.ToUpper(wr[0])
		words[i] = string(wr)
	}
	return strings.Join(words, " ")
}
