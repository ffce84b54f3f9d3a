package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, "test", time.Hour), mr
}

func TestBeginCompleteReplay(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	_, replay, err := s.Begin(ctx, "u1", "k1")
	require.NoError(t, err)
	require.False(t, replay)

	_, _, err = s.Begin(ctx, "u1", "k1")
	require.ErrorIs(t, err, ErrInProgress)

	require.NoError(t, s.Complete(ctx, "u1", "k1", Record{Status: 201, Body: []byte(`{"success":true}`)}))

	rec, replay, err := s.Begin(ctx, "u1", "k1")
	require.NoError(t, err)
	require.True(t, replay)
	require.Equal(t, 201, rec.Status)
	require.JSONEq(t, `{"success":true}`, string(rec.Body))

	// keys are scoped per user
	_, replay, err = s.Begin(ctx, "u2", "k1")
	require.NoError(t, err)
	require.False(t, replay)
}

func TestReleaseAllowsRetry(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)

	_, _, err := s.Begin(ctx, "u1", "k1")
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "u1", "k1"))

	_, replay, err := s.Begin(ctx, "u1", "k1")
	require.NoError(t, err)
	require.False(t, replay)
	require.Equal(t, time.Hour, mr.TTL("test:u1:k1"))
}
