package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/solvegraph/solvegraph-backend/internal/domain/chat"
	"github.com/solvegraph/solvegraph-backend/internal/platform/logger"
)

func TestHistoryKeyIsUserScoped(t *testing.T) {
	t.Parallel()

	key, err := historyKey("user-1", "chat-1")
	if err != nil {
		t.Fatalf("historyKey: %v", err)
	}
	if key != "user:user-1:chat:chat-1:history" {
		t.Fatalf("key: want=%q got=%q", "user:user-1:chat:chat-1:history", key)
	}
}

func TestHistoryKeyRejectsMissingComponents(t *testing.T) {
	t.Parallel()

	// A key without the user component would let one user read another's
	// history, so it must fail instead of degrading to a chat-only key.
	if _, err := historyKey("", "chat-1"); err == nil {
		t.Fatalf("historyKey accepted an empty userID")
	}
	if _, err := historyKey("   ", "chat-1"); err == nil {
		t.Fatalf("historyKey accepted a blank userID")
	}
	if _, err := historyKey("user-1", ""); err == nil {
		t.Fatalf("historyKey accepted an empty chatID")
	}
}

// Integration coverage against a live server, enabled by REDIS_ADDR.
func TestConversationCacheRoundTrip(t *testing.T) {
	if os.Getenv("REDIS_ADDR") == "" {
		t.Skip("REDIS_ADDR not set; skipping redis integration test")
	}
	t.Setenv("CHAT_HISTORY_LENGTH", "4")

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Sync()

	cache, err := NewConversationCache(log)
	if err != nil {
		t.Fatalf("NewConversationCache: %v", err)
	}

	ctx := context.Background()
	userID := "it-user-" + uuid.NewString()
	chatID := "it-chat-" + uuid.NewString()
	t.Cleanup(func() { _ = cache.Delete(ctx, userID, chatID) })

	if _, found, err := cache.Get(ctx, userID, chatID); err != nil || found {
		t.Fatalf("fresh key: found=%v err=%v", found, err)
	}

	for i := 0; i < 3; i++ {
		if err := cache.Append(ctx, userID, chatID,
			chat.Turn{Role: chat.RoleUser, Text: "question"},
			chat.Turn{Role: chat.RoleAssistant, Text: "answer"},
		); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	turns, found, err := cache.Get(ctx, userID, chatID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatalf("get: key missing after appends")
	}
	// Six turns were pushed against a retention bound of four.
	if len(turns) != 4 {
		t.Fatalf("retained turns: want=4 got=%d", len(turns))
	}

	if err := cache.Delete(ctx, userID, chatID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, err := cache.Get(ctx, userID, chatID); err != nil || found {
		t.Fatalf("after delete: found=%v err=%v", found, err)
	}
}
