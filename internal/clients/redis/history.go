package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/solvegraph/solvegraph-backend/internal/domain/chat"
	"github.com/solvegraph/solvegraph-backend/internal/platform/envutil"
	"github.com/solvegraph/solvegraph-backend/internal/platform/logger"
)

// ConversationCache holds the last N turns of each chat session under a
// sliding TTL. Durable truth lives in the graph store; the cache is a
// read-through bound on it.
type ConversationCache interface {
	// Get returns the cached turns and whether the key was present.
	Get(ctx context.Context, userID, chatID string) ([]chat.Turn, bool, error)

	// Backfill seeds the cache from durable history after a miss.
	Backfill(ctx context.Context, userID, chatID string, turns []chat.Turn) error

	// Append pushes new turns, trims to the retention bound and refreshes
	// the expiration.
	Append(ctx context.Context, userID, chatID string, turns ...chat.Turn) error

	Delete(ctx context.Context, userID, chatID string) error
}

type conversationCache struct {
	log        *logger.Logger
	rdb        *goredis.Client
	maxTurns   int64
	expiration time.Duration
}

func NewConversationCache(log *logger.Logger) (ConversationCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &conversationCache{
		log:        log.With("client", "ConversationCache"),
		rdb:        rdb,
		maxTurns:   int64(envutil.Int("CHAT_HISTORY_LENGTH", 20)),
		expiration: envutil.Seconds("CHAT_CACHE_TTL_SECONDS", 3600),
	}, nil
}

// historyKey namespaces every cache entry by the owning user. A key built
// from chatId alone would let one user read another's history, so an empty
// userID is rejected outright instead of silently widening the namespace.
func historyKey(userID, chatID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("conversation cache: userID is required in the cache key")
	}
	if strings.TrimSpace(chatID) == "" {
		return "", fmt.Errorf("conversation cache: chatID is required in the cache key")
	}
	return fmt.Sprintf("user:%s:chat:%s:history", userID, chatID), nil
}

func (c *conversationCache) Get(ctx context.Context, userID, chatID string) ([]chat.Turn, bool, error) {
	key, err := historyKey(userID, chatID)
	if err != nil {
		return nil, false, err
	}

	items, err := c.rdb.LRange(ctx, key, 0, c.maxTurns-1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("conversation cache: lrange: %w", err)
	}
	if len(items) == 0 {
		return nil, false, nil
	}

	turns := make([]chat.Turn, 0, len(items))
	for _, item := range items {
		var t chat.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			c.log.Warn("Dropping undecodable cached turn", "user_id", userID, "chat_id", chatID, "error", err)
			continue
		}
		turns = append(turns, t)
	}
	return turns, true, nil
}

func (c *conversationCache) Backfill(ctx context.Context, userID, chatID string, turns []chat.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	key, err := historyKey(userID, chatID)
	if err != nil {
		return err
	}

	pipe := c.rdb.Pipeline()
	for _, t := range turns {
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("conversation cache: marshal turn: %w", err)
		}
		pipe.RPush(ctx, key, raw)
	}
	pipe.Expire(ctx, key, c.expiration)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conversation cache: backfill: %w", err)
	}
	return nil
}

func (c *conversationCache) Append(ctx context.Context, userID, chatID string, turns ...chat.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	key, err := historyKey(userID, chatID)
	if err != nil {
		return err
	}

	pipe := c.rdb.Pipeline()
	for _, t := range turns {
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("conversation cache: marshal turn: %w", err)
		}
		pipe.RPush(ctx, key, raw)
	}
	pipe.LTrim(ctx, key, -c.maxTurns, -1)
	pipe.Expire(ctx, key, c.expiration)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conversation cache: append: %w", err)
	}
	return nil
}

func (c *conversationCache) Delete(ctx context.Context, userID, chatID string) error {
	key, err := historyKey(userID, chatID)
	if err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("conversation cache: del: %w", err)
	}
	return nil
}
