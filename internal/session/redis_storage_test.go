package session

import (
	"context"
	"io"
	"log/slog"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/cashpoint-io/atmd/internal/atm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return client, func() {
		_ = client.Close()
		mr.Close()
	}
}

func TestRedisStorage_SetAndGet(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	storage := NewRedisStorage(client, testLogger())
	ctx := context.Background()

	sess := &Session{
		TerminalID: "lobby-1",
		Machine: atm.Machine{
			CashInside: 10,
			Phase:      atm.Authenticating(1234),
			Register:   []atm.Key{atm.KeyOne, atm.KeyTwo},
		},
	}

	err := storage.Set(ctx, sess.TerminalID, sess)
	assert.NoError(t, err)
	assert.False(t, sess.UpdatedAt.IsZero())

	result, err := storage.Get(ctx, sess.TerminalID)
	assert.NoError(t, err)
	if assert.NotNil(t, result) {
		assert.Equal(t, sess.TerminalID, result.TerminalID)
		assert.True(t, result.Machine.Equal(sess.Machine), "got %+v", result.Machine)
	}
}

func TestRedisStorage_GetNotFound(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	storage := NewRedisStorage(client, testLogger())

	sess, err := storage.Get(context.Background(), "missing")
	assert.Nil(t, sess)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStorage_Delete(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	storage := NewRedisStorage(client, testLogger())
	ctx := context.Background()

	sess := &Session{TerminalID: "lobby-2", Machine: atm.New(50)}

	assert.NoError(t, storage.Set(ctx, sess.TerminalID, sess))
	assert.NoError(t, storage.Delete(ctx, sess.TerminalID))

	result, err := storage.Get(ctx, sess.TerminalID)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStorage_All(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	storage := NewRedisStorage(client, testLogger())
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		assert.NoError(t, storage.Set(ctx, id, &Session{TerminalID: id, Machine: atm.New(10)}))
	}

	sessions, err := storage.All(ctx)
	assert.NoError(t, err)
	assert.Len(t, sessions, 3)
}
