// Package snapshot keeps a Redis copy of each appointment and reconciles it
// with the database by last-writer-wins on UpdatedAt.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/model"
)

type Side int

const (
	None Side = iota
	Cache
	Store
)

// Reconcile returns the newer of the two copies and which side is stale.
// Equal timestamps keep the store copy and report nothing stale.
func Reconcile(local, remote model.Appointment) (model.Appointment, Side) {
	switch {
	case local.UpdatedAt.After(remote.UpdatedAt):
		return local, Store
	case remote.UpdatedAt.After(local.UpdatedAt):
		return remote, Cache
	default:
		return remote, None
	}
}

// putScript only overwrites a snapshot older than the incoming one.
var putScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'ts')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'ts', ARGV[1], 'v', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

type RedisCache struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisCache(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "wellbook:appt"
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(id string) string {
	return c.prefix + ":" + id
}

// Put stores appt unless a newer snapshot is already cached. It reports
// whether the write happened.
func (c *RedisCache) Put(ctx context.Context, appt model.Appointment) (bool, error) {
	raw, err := json.Marshal(appt)
	if err != nil {
		return false, err
	}
	n, err := putScript.Run(ctx, c.rdb, []string{c.key(appt.ID)},
		appt.UpdatedAt.UnixMicro(), string(raw), c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("snapshot put: %w", err)
	}
	return n == 1, nil
}

func (c *RedisCache) Get(ctx context.Context, id string) (model.Appointment, bool, error) {
	raw, err := c.rdb.HGet(ctx, c.key(id), "v").Result()
	if errors.Is(err, redis.Nil) {
		return model.Appointment{}, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, fmt.Errorf("snapshot get: %w", err)
	}
	var appt model.Appointment
	if err := json.Unmarshal([]byte(raw), &appt); err != nil {
		return model.Appointment{}, false, fmt.Errorf("snapshot decode: %w", err)
	}
	return appt, true, nil
}

type Applier interface {
	ApplySnapshot(ctx context.Context, appt model.Appointment) (bool, error)
}

// Reconciler resolves reads against both copies and re-syncs the loser in
// the background.
type Reconciler struct {
	cache   *RedisCache
	store   Applier
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewReconciler(cache *RedisCache, store Applier, logger *slog.Logger) *Reconciler {
	return &Reconciler{cache: cache, store: store, logger: logger, timeout: 5 * time.Second}
}

func (r *Reconciler) Put(ctx context.Context, appt model.Appointment) error {
	_, err := r.cache.Put(ctx, appt)
	return err
}

// Resolve returns the newer of remote and its cached snapshot. Cache errors
// degrade to remote.
func (r *Reconciler) Resolve(ctx context.Context, remote model.Appointment) model.Appointment {
	local, ok, err := r.cache.Get(ctx, remote.ID)
	if err != nil {
		r.logger.Warn("snapshot read failed", "appointment_id", remote.ID, "err", err)
		return remote
	}
	if !ok || local.UserID != remote.UserID {
		r.resync(ctx, Cache, remote)
		return remote
	}

	winner, stale := Reconcile(local, remote)
	if stale != None {
		r.resync(ctx, stale, winner)
	}
	return winner
}

func (r *Reconciler) resync(ctx context.Context, side Side, winner model.Appointment) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()

		var err error
		switch side {
		case Cache:
			_, err = r.cache.Put(ctx, winner)
		case Store:
			_, err = r.store.ApplySnapshot(ctx, winner)
		}
		if err != nil {
			r.logger.Warn("snapshot resync failed", "appointment_id", winner.ID, "side", side, "err", err)
		}
	}()
}

// Wait blocks until background re-syncs finish.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}
