package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/solvegraph/solvegraph-backend/internal/clients/gemini"
	redisclients "github.com/solvegraph/solvegraph-backend/internal/clients/redis"
	"github.com/solvegraph/solvegraph-backend/internal/data/graph"
	"github.com/solvegraph/solvegraph-backend/internal/domain/chat"
	"github.com/solvegraph/solvegraph-backend/internal/platform/logger"
)

const augmentedPromptTemplate = "You are a helpful assistant for a computer science student. " +
	"Your knowledge is augmented by the following information retrieved from the user's personal knowledge graph. " +
	"Use this context to answer their question accurately. If the context doesn't contain the answer, " +
	"state that you couldn't find relevant information from their history. " +
	"CONTEXT FROM USER'S HISTORY:\n---\n%s\n---\nUSER'S CURRENT QUESTION:\n%s"

const titlePromptTemplate = `Generate a concise, 5-word title for the following user query. Respond with only the title and nothing else: "%s"`

const fallbackTitle = "New Chat"

const persistTimeout = 30 * time.Second

type ChatResult struct {
	Reply  string `json:"reply"`
	ChatID string `json:"chatId"`
	Title  string `json:"title,omitempty"`
}

// ChatService orchestrates one chat turn: cached history and retrieved
// context are read concurrently, one generative call produces the reply,
// then the new turn is persisted to cache and durable storage.
type ChatService interface {
	Respond(ctx context.Context, userID, message, chatID string) (ChatResult, error)
	ListSessions(ctx context.Context, userID string) ([]chat.Session, error)
	SessionMessages(ctx context.Context, userID, chatID string) ([]chat.Message, error)
	DeleteSession(ctx context.Context, userID, chatID string) (bool, error)
}

type chatDurableStore interface {
	History(ctx context.Context, userID, chatID string, limit int) ([]chat.Message, error)
	AppendTurn(ctx context.Context, in graph.AppendTurnInput) error
	ListSessions(ctx context.Context, userID string) ([]chat.Session, error)
	SessionMessages(ctx context.Context, userID, chatID string) ([]chat.Message, error)
	DeleteSession(ctx context.Context, userID, chatID string) (bool, error)
}

type chatService struct {
	log          *logger.Logger
	model        gemini.Client
	cache        redisclients.ConversationCache
	store        chatDurableStore
	retriever    ContextRetriever
	historyLimit int
}

func NewChatService(baseLog *logger.Logger, model gemini.Client, cache redisclients.ConversationCache, store chatDurableStore, retriever ContextRetriever, historyLimit int) ChatService {
	return &chatService{
		log:          baseLog.With("service", "ChatService"),
		model:        model,
		cache:        cache,
		store:        store,
		retriever:    retriever,
		historyLimit: historyLimit,
	}
}

func (s *chatService) Respond(ctx context.Context, userID, message, chatID string) (ChatResult, error) {
	newSession := strings.TrimSpace(chatID) == ""
	if newSession {
		chatID = uuid.NewString()
	}

	// History and retrieval have no ordering dependency; overlap them.
	var history []chat.Turn
	var retrievedContext string
	g, gctx := errgroup.WithContext(ctx)
	if !newSession {
		g.Go(func() error {
			history = s.loadHistory(gctx, userID, chatID)
			return nil
		})
	}
	g.Go(func() error {
		var err error
		retrievedContext, err = s.retriever.Retrieve(gctx, userID, message)
		return err
	})
	if err := g.Wait(); err != nil {
		return ChatResult{}, fmt.Errorf("chat turn: %w", err)
	}

	prompt := fmt.Sprintf(augmentedPromptTemplate, retrievedContext, message)
	reply, err := s.model.GenerateChat(ctx, toModelTurns(history), prompt)
	if err != nil {
		return ChatResult{}, fmt.Errorf("chat turn: %w", err)
	}

	title := ""
	if newSession {
		title = s.generateTitle(ctx, message)
	}

	// Best-effort persistence after the reply is ready: the caller gets the
	// response without waiting on the writes, and a crash in between loses
	// the turn from durable history only. Accepted trade-off.
	go s.persistTurn(userID, chatID, newSession, title, message, reply)

	return ChatResult{Reply: reply, ChatID: chatID, Title: title}, nil
}

// loadHistory reads the cached turns, falling back to the durable store and
// backfilling the cache on a miss. History failures degrade to an empty
// transcript rather than failing the turn.
func (s *chatService) loadHistory(ctx context.Context, userID, chatID string) []chat.Turn {
	turns, ok, err := s.cache.Get(ctx, userID, chatID)
	if err != nil {
		s.log.Warn("Chat history cache read failed", "user_id", userID, "chat_id", chatID, "error", err)
	}
	if ok {
		return turns
	}

	messages, err := s.store.History(ctx, userID, chatID, s.historyLimit)
	if err != nil {
		s.log.Warn("Durable chat history read failed", "user_id", userID, "chat_id", chatID, "error", err)
		return nil
	}
	turns = make([]chat.Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, chat.Turn{Role: m.Role, Text: m.Text})
	}

	if len(turns) > 0 {
		if err := s.cache.Backfill(ctx, userID, chatID, turns); err != nil {
			s.log.Warn("Chat history backfill failed", "user_id", userID, "chat_id", chatID, "error", err)
		}
	}
	return turns
}

func (s *chatService) generateTitle(ctx context.Context, message string) string {
	title, err := s.model.GenerateText(ctx, fmt.Sprintf(titlePromptTemplate, message))
	if err != nil {
		s.log.Warn("Title generation failed, using fallback", "error", err)
		return fallbackTitle
	}
	title = strings.ReplaceAll(strings.TrimSpace(title), `"`, "")
	if title == "" {
		return fallbackTitle
	}
	return title
}

func (s *chatService) persistTurn(userID, chatID string, newSession bool, title, message, reply string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.cache.Append(ctx, userID, chatID,
		chat.Turn{Role: chat.RoleUser, Text: message},
		chat.Turn{Role: chat.RoleAssistant, Text: reply},
	); err != nil {
		s.log.Error("Background cache persistence failed", "user_id", userID, "chat_id", chatID, "error", err)
	}

	if err := s.store.AppendTurn(ctx, graph.AppendTurnInput{
		UserID:     userID,
		ChatID:     chatID,
		NewSession: newSession,
		Title:      title,
		Message:    message,
		Reply:      reply,
	}); err != nil {
		s.log.Error("Background durable persistence failed", "user_id", userID, "chat_id", chatID, "error", err)
	}
}

func (s *chatService) ListSessions(ctx context.Context, userID string) ([]chat.Session, error) {
	return s.store.ListSessions(ctx, userID)
}

func (s *chatService) SessionMessages(ctx context.Context, userID, chatID string) ([]chat.Message, error) {
	return s.store.SessionMessages(ctx, userID, chatID)
}

// DeleteSession removes the durable session and drops its cache entry.
func (s *chatService) DeleteSession(ctx context.Context, userID, chatID string) (bool, error) {
	deleted, err := s.store.DeleteSession(ctx, userID, chatID)
	if err != nil || !deleted {
		return deleted, err
	}
	if err := s.cache.Delete(ctx, userID, chatID); err != nil {
		s.log.Warn("Cache entry removal after session delete failed", "user_id", userID, "chat_id", chatID, "error", err)
	}
	return true, nil
}

func toModelTurns(history []chat.Turn) []gemini.Turn {
	out := make([]gemini.Turn, 0, len(history))
	for _, t := range history {
		role := "user"
		if t.Role == chat.RoleAssistant {
			role = "model"
		}
		out = append(out, gemini.Turn{Role: role, Text: t.Text})
	}
	return out
}
