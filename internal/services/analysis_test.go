package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/solvegraph/solvegraph-backend/internal/clients/gemini"
	"github.com/solvegraph/solvegraph-backend/internal/domain/analysis"
	"github.com/solvegraph/solvegraph-backend/internal/platform/apierr"
	"github.com/solvegraph/solvegraph-backend/internal/platform/logger"
)

type scriptedModel struct {
	jsonErrs []error
	jsonOut  analysis.Result
	calls    int

	textReply string
	textErr   error

	chatReply   string
	chatErr     error
	lastHistory []gemini.Turn
	lastPrompt  string
}

func (m *scriptedModel) GenerateJSON(_ context.Context, _ string, _ map[string]any, out any) error {
	m.calls++
	if m.calls <= len(m.jsonErrs) {
		return m.jsonErrs[m.calls-1]
	}
	*(out.(*analysis.Result)) = m.jsonOut
	return nil
}

func (m *scriptedModel) GenerateText(context.Context, string) (string, error) {
	return m.textReply, m.textErr
}

func (m *scriptedModel) GenerateChat(_ context.Context, history []gemini.Turn, prompt string) (string, error) {
	m.lastHistory = history
	m.lastPrompt = prompt
	return m.chatReply, m.chatErr
}

type capturingRecords struct {
	payloads []analysis.RecordPayload
	err      error
}

func (r *capturingRecords) Apply(_ context.Context, p analysis.RecordPayload) error {
	if r.err != nil {
		return r.err
	}
	r.payloads = append(r.payloads, p)
	return nil
}

type capturingPublisher struct {
	paths  []string
	bodies []any
	err    error
}

func (p *capturingPublisher) Publish(_ context.Context, path string, body any) error {
	if p.err != nil {
		return p.err
	}
	p.paths = append(p.paths, path)
	p.bodies = append(p.bodies, body)
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func validModelResult() analysis.Result {
	return analysis.Result{
		Name:         "Two Sum",
		ApproachName: "hash_map",
		PseudoCode:   []string{"def twoSum(nums, target)", "build value->index map", "return pair"},
		Time:         "O(n)",
		Space:        "O(n)",
		Tags:         []string{"Array", "hashMap"},
		Difficulty:   analysis.DifficultyEasy,
	}
}

func newTestAnalysisService(model gemini.Client, records RecordWriter, publisher *capturingPublisher, log *logger.Logger) *analysisService {
	return &analysisService{
		log:       log,
		model:     model,
		records:   records,
		publisher: publisher,
		delays:    []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
	}
}

func TestAnalyzeRetriesTransientModelFailures(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{
		jsonErrs: []error{
			apierr.Transient(fmt.Errorf("model overloaded")),
			apierr.Transient(fmt.Errorf("503")),
		},
		jsonOut: validModelResult(),
	}
	records := &capturingRecords{}
	publisher := &capturingPublisher{}
	svc := newTestAnalysisService(model, records, publisher, testLogger(t))

	result, err := svc.Analyze(context.Background(), "user-1", analysis.UserDetails{}, AnalyzeRequest{
		Link: "https://leetcode.com/problems/two-sum", Code: "code",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if model.calls != 3 {
		t.Fatalf("model calls: want=3 got=%d", model.calls)
	}
	if result.Name != "Two Sum" {
		t.Fatalf("result name: want=%q got=%q", "Two Sum", result.Name)
	}
	if len(records.payloads) != 1 {
		t.Fatalf("record writes: want=1 got=%d", len(records.payloads))
	}
}

func TestAnalyzeGivesUpAfterRetryBudget(t *testing.T) {
	t.Parallel()

	transient := apierr.Transient(fmt.Errorf("model overloaded"))
	model := &scriptedModel{jsonErrs: []error{transient, transient, transient, transient}}
	records := &capturingRecords{}
	svc := newTestAnalysisService(model, records, &capturingPublisher{}, testLogger(t))

	_, err := svc.Analyze(context.Background(), "user-1", analysis.UserDetails{}, AnalyzeRequest{
		Link: "https://leetcode.com/problems/two-sum", Code: "code",
	})
	if err == nil {
		t.Fatalf("Analyze: expected error after exhausting retries")
	}
	// One initial attempt plus one retry per delay slot.
	if model.calls != 4 {
		t.Fatalf("model calls: want=4 got=%d", model.calls)
	}
	if len(records.payloads) != 0 {
		t.Fatalf("record writes after failure: want=0 got=%d", len(records.payloads))
	}
}

func TestAnalyzePermanentModelFailureDoesNotRetry(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{jsonErrs: []error{apierr.Permanent(fmt.Errorf("bad request"))}}
	records := &capturingRecords{}
	svc := newTestAnalysisService(model, records, &capturingPublisher{}, testLogger(t))

	_, err := svc.Analyze(context.Background(), "user-1", analysis.UserDetails{}, AnalyzeRequest{
		Link: "https://leetcode.com/problems/two-sum", Code: "code",
	})
	if err == nil {
		t.Fatalf("Analyze: expected error")
	}
	if model.calls != 1 {
		t.Fatalf("model calls: want=1 got=%d", model.calls)
	}
}

func TestAnalyzeRejectsContractBreakingModelOutput(t *testing.T) {
	t.Parallel()

	broken := validModelResult()
	broken.Tags = []string{"Array"}
	model := &scriptedModel{jsonOut: broken}
	records := &capturingRecords{}
	svc := newTestAnalysisService(model, records, &capturingPublisher{}, testLogger(t))

	_, err := svc.Analyze(context.Background(), "user-1", analysis.UserDetails{}, AnalyzeRequest{
		Link: "https://leetcode.com/problems/two-sum", Code: "code",
	})
	if err == nil {
		t.Fatalf("Analyze: expected validation error")
	}
	if apierr.IsTransient(err) {
		t.Fatalf("contract breach classified transient; retrying the same input cannot help")
	}
	if len(records.payloads) != 0 {
		t.Fatalf("record writes after invalid output: want=0 got=%d", len(records.payloads))
	}
}

func TestAnalyzePublishesNormalizedGraphJob(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{jsonOut: validModelResult()}
	publisher := &capturingPublisher{}
	svc := newTestAnalysisService(model, &capturingRecords{}, publisher, testLogger(t))

	_, err := svc.Analyze(context.Background(), "user-1", analysis.UserDetails{}, AnalyzeRequest{
		Link: "  https://leetcode.com/problems/two-sum  ", Code: "code",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(publisher.paths) != 1 || publisher.paths[0] != GraphConsumerPath {
		t.Fatalf("publish path: want=%q got=%v", GraphConsumerPath, publisher.paths)
	}
	job := publisher.bodies[0].(analysis.GraphPayload)
	if job.Problem.URL != "https://leetcode.com/problems/two-sum" {
		t.Fatalf("job url not trimmed: %q", job.Problem.URL)
	}
	if job.Problem.ApproachName != "Hash Map" {
		t.Fatalf("approach name: want=%q got=%q", "Hash Map", job.Problem.ApproachName)
	}
	if job.Problem.Domain != "Array" {
		t.Fatalf("domain: want=%q got=%q", "Array", job.Problem.Domain)
	}
}

func TestAnalyzeSucceedsWhenPublishFails(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{jsonOut: validModelResult()}
	records := &capturingRecords{}
	publisher := &capturingPublisher{err: fmt.Errorf("queue unreachable")}
	svc := newTestAnalysisService(model, records, publisher, testLogger(t))

	_, err := svc.Analyze(context.Background(), "user-1", analysis.UserDetails{}, AnalyzeRequest{
		Link: "https://leetcode.com/problems/two-sum", Code: "code",
	})
	if err != nil {
		t.Fatalf("Analyze after publish failure: %v", err)
	}
	if len(records.payloads) != 1 {
		t.Fatalf("record writes: want=1 got=%d", len(records.payloads))
	}
}

func TestHumanizeIdentifier(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"two_pointers", "Two Pointers"},
		{"twoPointers", "Two Pointers"},
		{"sliding-window", "Sliding Window"},
		{"Hash Map O(n)", "Hash Map O(n)"},
		{"  Dijkstra  ", "Dijkstra"},
		{"dp", "Dp"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := HumanizeIdentifier(tc.in); got != tc.want {
			t.Fatalf("HumanizeIdentifier(%q): want=%q got=%q", tc.in, tc.want, got)
		}
	}
}
