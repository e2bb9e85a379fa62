package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPattern  = "terminal:session:%s"
	sessionScanPattern = "terminal:session:*"
	sessionScanBatch   = 100
)

// RedisStorage persists terminal sessions in Redis as JSON blobs.
type RedisStorage struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisStorage initializes a Redis-backed Storage implementation.
func NewRedisStorage(client *redis.Client, log *slog.Logger) Storage {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStorage{
		client: client,
		log:    log,
	}
}

// Get returns the stored session or ErrSessionNotFound when absent.
func (s *RedisStorage) Get(ctx context.Context, terminalID string) (*Session, error) {
	key := redisSessionKey(terminalID)

	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}

		s.log.Error("failed to get session from redis", "terminal_id", terminalID, "error", err)
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		s.log.Error("failed to decode session", "terminal_id", terminalID, "error", err)
		return nil, err
	}

	return &sess, nil
}

// Set saves the session. Keys carry no TTL: the snapshot holds the cash
// reserve, which must outlive any idle window; idle sessions are reset by
// the sweeper, not expired away.
func (s *RedisStorage) Set(ctx context.Context, terminalID string, sess *Session) error {
	sess.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(sess)
	if err != nil {
		s.log.Error("failed to encode session", "terminal_id", terminalID, "error", err)
		return err
	}

	key := redisSessionKey(terminalID)
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		s.log.Error("failed to save session in redis", "terminal_id", terminalID, "error", err)
		return err
	}

	return nil
}

// Delete removes the stored session for the given terminal.
func (s *RedisStorage) Delete(ctx context.Context, terminalID string) error {
	key := redisSessionKey(terminalID)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.log.Error("failed to delete session", "terminal_id", terminalID, "error", err)
		return err
	}

	return nil
}

// All retrieves every stored session by scanning Redis keys.
func (s *RedisStorage) All(ctx context.Context) ([]*Session, error) {
	var (
		cursor uint64
		result []*Session
	)

	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, sessionScanPattern, sessionScanBatch).Result()
		if err != nil {
			s.log.Error("failed to scan sessions", "error", err)
			return nil, err
		}

		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}

				s.log.Error("failed to fetch session", "key", key, "error", err)
				return nil, err
			}

			var sess Session
			if err := json.Unmarshal([]byte(data), &sess); err != nil {
				s.log.Error("failed to decode session", "key", key, "error", err)
				continue
			}

			copied := sess
			result = append(result, &copied)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return result, nil
}

func redisSessionKey(terminalID string) string {
	return fmt.Sprintf(sessionKeyPattern, terminalID)
}
