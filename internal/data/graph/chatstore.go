package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/solvegraph/solvegraph-backend/internal/domain/chat"
	"github.com/solvegraph/solvegraph-backend/internal/platform/logger"
	"github.com/solvegraph/solvegraph-backend/internal/platform/neo4jdb"
)

// ChatStore is the durable side of conversation history. Messages are
// append-only; every query is scoped through the owning user's STARTED edge.
type ChatStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewChatStore(client *neo4jdb.Client, baseLog *logger.Logger) *ChatStore {
	return &ChatStore{client: client, log: baseLog.With("store", "ChatGraph")}
}

// History returns up to limit messages of one session in timestamp order,
// for cache backfill after a miss.
func (s *ChatStore) History(ctx context.Context, userID, chatID string, limit int) ([]chat.Message, error) {
	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, fmt.Sprintf(`
MATCH (:User {userId: $userId})-[:STARTED]->(:ChatSession {id: $chatId})-[:HAS_MESSAGE]->(m:Message)
RETURN m.role AS role, m.text AS text, m.timestamp AS timestamp
ORDER BY m.timestamp ASC LIMIT %d`, limit), map[string]any{
			"userId": userID,
			"chatId": chatID,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("chat graph: load history: %w", err)
	}

	return collectMessages(records.([]*neo4j.Record)), nil
}

// AppendTurnInput is one user+assistant exchange to persist. Title is only
// consulted when NewSession is set.
type AppendTurnInput struct {
	UserID     string
	ChatID     string
	NewSession bool
	Title      string
	Message    string
	Reply      string
}

// AppendTurn writes the two messages of one exchange, creating the session
// node (owned by the user) on the first turn.
func (s *ChatStore) AppendTurn(ctx context.Context, in AppendTurnInput) error {
	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	var query string
	params := map[string]any{
		"userId":      in.UserID,
		"chatId":      in.ChatID,
		"userMessage": in.Message,
		"aiReply":     in.Reply,
	}
	if in.NewSession {
		query = `
MERGE (u:User {userId: $userId})
CREATE (cs:ChatSession {id: $chatId, title: $title, createdAt: timestamp()})
MERGE (u)-[:STARTED]->(cs)
CREATE (user_msg:Message {role: 'user', text: $userMessage, timestamp: timestamp()})
CREATE (cs)-[:HAS_MESSAGE]->(user_msg)
CREATE (ai_reply:Message {role: 'assistant', text: $aiReply, timestamp: timestamp() + 1})
CREATE (cs)-[:HAS_MESSAGE]->(ai_reply)`
		params["title"] = in.Title
	} else {
		query = `
MATCH (:User {userId: $userId})-[:STARTED]->(cs:ChatSession {id: $chatId})
CREATE (user_msg:Message {role: 'user', text: $userMessage, timestamp: timestamp()})
CREATE (cs)-[:HAS_MESSAGE]->(user_msg)
CREATE (ai_reply:Message {role: 'assistant', text: $aiReply, timestamp: timestamp() + 1})
CREATE (cs)-[:HAS_MESSAGE]->(ai_reply)`
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("chat graph: append turn: %w", err)
	}
	return nil
}

// ListSessions returns the session headers for the sidebar, newest first.
func (s *ChatStore) ListSessions(ctx context.Context, userID string) ([]chat.Session, error) {
	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (:User {userId: $userId})-[:STARTED]->(cs:ChatSession)
RETURN cs.id AS id, cs.title AS title, cs.createdAt AS updatedAt
ORDER BY cs.createdAt DESC`, map[string]any{"userId": userID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("chat graph: list sessions: %w", err)
	}

	recs := records.([]*neo4j.Record)
	sessions := make([]chat.Session, 0, len(recs))
	for _, rec := range recs {
		id, _ := rec.Get("id")
		title, _ := rec.Get("title")
		updatedAt, _ := rec.Get("updatedAt")
		idStr, _ := id.(string)
		if idStr == "" {
			continue
		}
		titleStr, _ := title.(string)
		sessions = append(sessions, chat.Session{
			ID:        idStr,
			Title:     titleStr,
			UpdatedAt: asInt64(updatedAt),
		})
	}
	return sessions, nil
}

// SessionMessages returns the full ordered transcript of one owned session.
func (s *ChatStore) SessionMessages(ctx context.Context, userID, chatID string) ([]chat.Message, error) {
	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (:User {userId: $userId})-[:STARTED]->(:ChatSession {id: $chatId})-[:HAS_MESSAGE]->(m:Message)
RETURN m.role AS role, m.text AS text, m.timestamp AS timestamp
ORDER BY m.timestamp ASC`, map[string]any{
			"userId": userID,
			"chatId": chatID,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("chat graph: session messages: %w", err)
	}

	return collectMessages(records.([]*neo4j.Record)), nil
}

// DeleteSession detaches and deletes one owned session. Returns false when
// nothing matched, either unknown id or a session owned by someone else.
func (s *ChatStore) DeleteSession(ctx context.Context, userID, chatID string) (bool, error) {
	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	deleted, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (:User {userId: $userId})-[:STARTED]->(cs:ChatSession {id: $chatId})
OPTIONAL MATCH (cs)-[:HAS_MESSAGE]->(m:Message)
DETACH DELETE cs, m`, map[string]any{
			"userId": userID,
			"chatId": chatID,
		})
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return summary.Counters().NodesDeleted() > 0, nil
	})
	if err != nil {
		return false, fmt.Errorf("chat graph: delete session: %w", err)
	}
	return deleted.(bool), nil
}

func collectMessages(recs []*neo4j.Record) []chat.Message {
	messages := make([]chat.Message, 0, len(recs))
	for _, rec := range recs {
		role, _ := rec.Get("role")
		text, _ := rec.Get("text")
		ts, _ := rec.Get("timestamp")
		roleStr, _ := role.(string)
		textStr, _ := text.(string)
		if roleStr == "" {
			continue
		}
		messages = append(messages, chat.Message{
			Role:        roleStr,
			Text:        textStr,
			TimestampMS: asInt64(ts),
		})
	}
	return messages
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		return int64(t)
	default:
		return 0
	}
}
