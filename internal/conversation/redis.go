package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists sessions as JSON values with a TTL, so multiple API
// replicas share conversation state.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(conversationID string) string {
	return "conversation:" + conversationID
}

func (s *RedisStore) Get(ctx context.Context, conversationID string) (*Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(conversationID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", conversationID, err)
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", conversationID, err)
	}
	return &session, nil
}

func (s *RedisStore) Save(ctx context.Context, session *Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ConversationID, err)
	}
	if err := s.client.Set(ctx, sessionKey(session.ConversationID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", session.ConversationID, err)
	}
	return nil
}
