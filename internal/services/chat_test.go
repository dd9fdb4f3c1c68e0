package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/solvegraph/solvegraph-backend/internal/data/graph"
	"github.com/solvegraph/solvegraph-backend/internal/domain/chat"
)

type fakeConversationCache struct {
	mu     sync.Mutex
	turns  []chat.Turn
	getErr error

	backfilled [][]chat.Turn
	appended   chan []chat.Turn
	deleted    []string
}

func newFakeConversationCache() *fakeConversationCache {
	return &fakeConversationCache{appended: make(chan []chat.Turn, 4)}
}

func (c *fakeConversationCache) Get(_ context.Context, _, _ string) ([]chat.Turn, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	return c.turns, len(c.turns) > 0, nil
}

func (c *fakeConversationCache) Backfill(_ context.Context, _, _ string, turns []chat.Turn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backfilled = append(c.backfilled, turns)
	return nil
}

func (c *fakeConversationCache) Append(_ context.Context, _, _ string, turns ...chat.Turn) error {
	c.appended <- turns
	return nil
}

func (c *fakeConversationCache) Delete(_ context.Context, userID, chatID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, userID+"|"+chatID)
	return nil
}

type fakeChatStore struct {
	mu           sync.Mutex
	historyMsgs  []chat.Message
	historyErr   error
	historyCalls int

	appended chan graph.AppendTurnInput

	sessions     []chat.Session
	deleteResult bool
	deleteErr    error
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{appended: make(chan graph.AppendTurnInput, 4)}
}

func (s *fakeChatStore) History(_ context.Context, _, _ string, _ int) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyCalls++
	return s.historyMsgs, s.historyErr
}

func (s *fakeChatStore) AppendTurn(_ context.Context, in graph.AppendTurnInput) error {
	s.appended <- in
	return nil
}

func (s *fakeChatStore) ListSessions(_ context.Context, _ string) ([]chat.Session, error) {
	return s.sessions, nil
}

func (s *fakeChatStore) SessionMessages(_ context.Context, _, _ string) ([]chat.Message, error) {
	return s.historyMsgs, nil
}

func (s *fakeChatStore) DeleteSession(_ context.Context, _, _ string) (bool, error) {
	return s.deleteResult, s.deleteErr
}

type staticRetriever struct {
	context string
	err     error
}

func (r *staticRetriever) Retrieve(context.Context, string, string) (string, error) {
	return r.context, r.err
}

func awaitAppend[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func TestRespondNewSessionMintsIDTitleAndPersists(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{chatReply: "You solved it with a hash map.", textReply: `"Two Sum Recap"`}
	cache := newFakeConversationCache()
	store := newFakeChatStore()
	svc := NewChatService(testLogger(t), model, cache, store, &staticRetriever{context: "Relevant Problems:\n- Two Sum"}, 20)

	result, err := svc.Respond(context.Background(), "user-1", "how did I solve two sum?", "")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if result.Reply != "You solved it with a hash map." {
		t.Fatalf("reply: got=%q", result.Reply)
	}
	if _, err := uuid.Parse(result.ChatID); err != nil {
		t.Fatalf("new session chat id is not a uuid: %q", result.ChatID)
	}
	if result.Title != "Two Sum Recap" {
		t.Fatalf("title: want=%q got=%q", "Two Sum Recap", result.Title)
	}

	turns := awaitAppend(t, cache.appended, "cache append")
	if len(turns) != 2 || turns[0].Role != chat.RoleUser || turns[1].Role != chat.RoleAssistant {
		t.Fatalf("cached turns: want [user, assistant] got %+v", turns)
	}

	in := awaitAppend(t, store.appended, "durable append")
	if !in.NewSession || in.Title != "Two Sum Recap" || in.ChatID != result.ChatID {
		t.Fatalf("durable append input: %+v", in)
	}
	if in.Message != "how did I solve two sum?" || in.Reply != result.Reply {
		t.Fatalf("durable append turn content: %+v", in)
	}

	// The retrieved context and the question both reach the model prompt.
	if !strings.Contains(model.lastPrompt, "Relevant Problems:\n- Two Sum") ||
		!strings.Contains(model.lastPrompt, "how did I solve two sum?") {
		t.Fatalf("augmented prompt missing parts: %q", model.lastPrompt)
	}
}

func TestRespondExistingSessionFeedsCachedHistoryToModel(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{chatReply: "reply"}
	cache := newFakeConversationCache()
	cache.turns = []chat.Turn{
		{Role: chat.RoleUser, Text: "first question"},
		{Role: chat.RoleAssistant, Text: "first answer"},
	}
	store := newFakeChatStore()
	svc := NewChatService(testLogger(t), model, cache, store, &staticRetriever{context: NoContextSentinel}, 20)

	result, err := svc.Respond(context.Background(), "user-1", "follow-up", "chat-1")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if result.Title != "" {
		t.Fatalf("existing session produced a title: %q", result.Title)
	}
	if result.ChatID != "chat-1" {
		t.Fatalf("chat id: want=%q got=%q", "chat-1", result.ChatID)
	}
	if store.historyCalls != 0 {
		t.Fatalf("durable history read on cache hit: calls=%d", store.historyCalls)
	}
	if len(model.lastHistory) != 2 {
		t.Fatalf("model history: want=2 got=%d", len(model.lastHistory))
	}
	if model.lastHistory[0].Role != "user" || model.lastHistory[1].Role != "model" {
		t.Fatalf("model roles: %+v", model.lastHistory)
	}

	awaitAppend(t, cache.appended, "cache append")
	in := awaitAppend(t, store.appended, "durable append")
	if in.NewSession {
		t.Fatalf("existing session flagged as new")
	}
}

func TestRespondCacheMissFallsBackToDurableHistory(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{chatReply: "reply"}
	cache := newFakeConversationCache()
	store := newFakeChatStore()
	store.historyMsgs = []chat.Message{
		{Role: chat.RoleUser, Text: "older question"},
		{Role: chat.RoleAssistant, Text: "older answer"},
	}
	svc := NewChatService(testLogger(t), model, cache, store, &staticRetriever{context: NoContextSentinel}, 20)

	if _, err := svc.Respond(context.Background(), "user-1", "follow-up", "chat-1"); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if store.historyCalls != 1 {
		t.Fatalf("durable history calls: want=1 got=%d", store.historyCalls)
	}
	if len(model.lastHistory) != 2 {
		t.Fatalf("model history from durable store: want=2 got=%d", len(model.lastHistory))
	}

	awaitAppend(t, cache.appended, "cache append")
	cache.mu.Lock()
	backfills := len(cache.backfilled)
	cache.mu.Unlock()
	if backfills != 1 {
		t.Fatalf("cache backfills: want=1 got=%d", backfills)
	}
}

func TestRespondHistoryFailureDegradesToEmptyTranscript(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{chatReply: "reply"}
	cache := newFakeConversationCache()
	cache.getErr = fmt.Errorf("redis down")
	store := newFakeChatStore()
	store.historyErr = fmt.Errorf("neo4j down")
	svc := NewChatService(testLogger(t), model, cache, store, &staticRetriever{context: NoContextSentinel}, 20)

	if _, err := svc.Respond(context.Background(), "user-1", "question", "chat-1"); err != nil {
		t.Fatalf("Respond with degraded history: %v", err)
	}
	if len(model.lastHistory) != 0 {
		t.Fatalf("model history: want empty got %+v", model.lastHistory)
	}
}

func TestRespondRetrievalFailureFailsTheTurn(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{chatReply: "reply"}
	cache := newFakeConversationCache()
	store := newFakeChatStore()
	svc := NewChatService(testLogger(t), model, cache, store, &staticRetriever{err: fmt.Errorf("embed failed")}, 20)

	if _, err := svc.Respond(context.Background(), "user-1", "question", "chat-1"); err == nil {
		t.Fatalf("Respond: expected retrieval failure to fail the turn")
	}
}

func TestRespondModelFailurePersistsNothing(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{chatErr: fmt.Errorf("model down")}
	cache := newFakeConversationCache()
	store := newFakeChatStore()
	svc := NewChatService(testLogger(t), model, cache, store, &staticRetriever{context: NoContextSentinel}, 20)

	if _, err := svc.Respond(context.Background(), "user-1", "question", ""); err == nil {
		t.Fatalf("Respond: expected model failure")
	}

	select {
	case turns := <-cache.appended:
		t.Fatalf("cache write after failed turn: %+v", turns)
	case in := <-store.appended:
		t.Fatalf("durable write after failed turn: %+v", in)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRespondTitleFailureUsesFallback(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{chatReply: "reply", textErr: fmt.Errorf("model down")}
	cache := newFakeConversationCache()
	store := newFakeChatStore()
	svc := NewChatService(testLogger(t), model, cache, store, &staticRetriever{context: NoContextSentinel}, 20)

	result, err := svc.Respond(context.Background(), "user-1", "question", "")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if result.Title != "New Chat" {
		t.Fatalf("fallback title: want=%q got=%q", "New Chat", result.Title)
	}
	awaitAppend(t, cache.appended, "cache append")
	awaitAppend(t, store.appended, "durable append")
}

func TestDeleteSessionDropsCacheEntry(t *testing.T) {
	t.Parallel()

	cache := newFakeConversationCache()
	store := newFakeChatStore()
	store.deleteResult = true
	svc := NewChatService(testLogger(t), &scriptedModel{}, cache, store, &staticRetriever{}, 20)

	deleted, err := svc.DeleteSession(context.Background(), "user-1", "chat-1")
	if err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if !deleted {
		t.Fatalf("DeleteSession: want deleted=true")
	}
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if len(cache.deleted) != 1 || cache.deleted[0] != "user-1|chat-1" {
		t.Fatalf("cache deletions: %v", cache.deleted)
	}
}

func TestDeleteSessionUnknownChatLeavesCacheAlone(t *testing.T) {
	t.Parallel()

	cache := newFakeConversationCache()
	store := newFakeChatStore()
	svc := NewChatService(testLogger(t), &scriptedModel{}, cache, store, &staticRetriever{}, 20)

	deleted, err := svc.DeleteSession(context.Background(), "user-1", "missing")
	if err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if deleted {
		t.Fatalf("DeleteSession: want deleted=false for unknown chat")
	}
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if len(cache.deleted) != 0 {
		t.Fatalf("cache deletions for unknown chat: %v", cache.deleted)
	}
}
