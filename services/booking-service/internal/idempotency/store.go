// Package idempotency remembers the response to a keyed request so a retry
// replays it instead of booking twice.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 24 * time.Hour

// ErrInProgress is returned while the first request with a key is running.
var ErrInProgress = errors.New("request with this idempotency key is in progress")

// Record is a finished response.
type Record struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type entry struct {
	Pending bool `json:"pending,omitempty"`
	Record
}

type Store struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewStore(rdb redis.Cmdable, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "wellbook:idem"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *Store) key(scope, key string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, scope, key)
}

// Begin claims key for scope. When an earlier request already finished, its
// record is returned with replay set.
func (s *Store) Begin(ctx context.Context, scope, key string) (rec Record, replay bool, err error) {
	pending, _ := json.Marshal(entry{Pending: true})
	ok, err := s.rdb.SetNX(ctx, s.key(scope, key), pending, s.ttl).Result()
	if err != nil {
		return Record{}, false, err
	}
	if ok {
		return Record{}, false, nil
	}

	raw, err := s.rdb.Get(ctx, s.key(scope, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls
		return s.Begin(ctx, scope, key)
	}
	if err != nil {
		return Record{}, false, err
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Record{}, false, fmt.Errorf("decode idempotency record: %w", err)
	}
	if e.Pending {
		return Record{}, false, ErrInProgress
	}
	return e.Record, true, nil
}

// Complete stores the final response for key.
func (s *Store) Complete(ctx context.Context, scope, key string, rec Record) error {
	raw, err := json.Marshal(entry{Record: rec})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(scope, key), raw, s.ttl).Err()
}

// Release drops a claim so the client may retry with the same key.
func (s *Store) Release(ctx context.Context, scope, key string) error {
	return s.rdb.Del(ctx, s.key(scope, key)).Err()
}
