package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/campus-assistant/backend/internal/model/chat"
)

const defaultKeyPrefix = "chatbot"

// RedisStore keeps each session as a JSON string and each log as a list.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps client. A zero ttl disables expiry.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) sessionKey(token string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, token)
}

func (s *RedisStore) messagesKey(token string) string {
	return fmt.Sprintf("%s:messages:%s", s.prefix, token)
}

// GetSession implements Store.
func (s *RedisStore) GetSession(ctx context.Context, token string) (*chat.Session, error) {
	val, err := s.client.Get(ctx, s.sessionKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session from redis: %w", err)
	}

	var session chat.Session
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// CreateSession implements Store.
func (s *RedisStore) CreateSession(ctx context.Context, session *chat.Session) error {
	val, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.sessionKey(session.SessionToken), val, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create session in redis: %w", err)
	}
	if !created {
		return ErrAlreadyExists
	}
	return nil
}

// UpdateSession implements Store.
func (s *RedisStore) UpdateSession(ctx context.Context, session *chat.Session) error {
	val, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	updated, err := s.client.SetXX(ctx, s.sessionKey(session.SessionToken), val, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("update session in redis: %w", err)
	}
	if !updated {
		return ErrNotFound
	}
	return nil
}

// AppendMessage implements Store.
func (s *RedisStore) AppendMessage(ctx context.Context, message *chat.Message) error {
	val, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	key := s.messagesKey(message.SessionToken)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, val)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append message in redis: %w", err)
	}
	return nil
}

// ListMessages implements Store.
func (s *RedisStore) ListMessages(ctx context.Context, token string) ([]chat.Message, error) {
	vals, err := s.client.LRange(ctx, s.messagesKey(token), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list messages from redis: %w", err)
	}

	messages := make([]chat.Message, 0, len(vals))
	for _, val := range vals {
		var m chat.Message
		if err := json.Unmarshal([]byte(val), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
