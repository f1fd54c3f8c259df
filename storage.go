package lkcosmetics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/persist"
	"github.com/redis/go-redis/v9"
)

// OpenStore builds the persist.Store selected by cfg.Backend. For the redis
// backend an existing client may be passed; when client is nil one is dialed
// from cfg.RedisAddr and the returned close func releases it. The close func is
// never nil.
func OpenStore(cfg StorageConfig, client redis.UniversalClient) (persist.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case "", StorageMemory:
		return persist.NewMemoryStore(), noop, nil
	case StorageFile:
		if cfg.FilePath == "" {
			return nil, noop, errors.New("file storage requires a path")
		}
		return persist.NewFileStore(cfg.FilePath), noop, nil
	case StorageRedis:
		closer := noop
		if client == nil {
			if cfg.RedisAddr == "" {
				return nil, noop, errors.New("redis storage requires an address or client")
			}
			owned := redis.NewClient(&redis.Options{
				Addr: cfg.RedisAddr,
				DB:   cfg.RedisDB,
			})
			client = owned
			closer = owned.Close
		}
		return persist.NewRedisStore(client, cfg.RedisKey, cfg.RedisTTL), closer, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// displayCache applies the session's storage policy on top of a persist.Store:
// writes and removals never fail the caller, and anything unreadable loads as
// "no cached user".
type displayCache struct {
	store   persist.Store
	logger  *slog.Logger
	metrics *Metrics
	emit    func(ctx context.Context, ev SessionEvent)
}

func (d *displayCache) save(ctx context.Context, u *User) {
	if u == nil {
		return
	}
	if err := d.store.Save(ctx, u.record()); err != nil {
		d.failed(ctx, "save", err)
	}
}

func (d *displayCache) load(ctx context.Context) *User {
	rec, err := d.store.Load(ctx)
	switch {
	case err == nil:
		return userFromRecord(rec)
	case errors.Is(err, persist.ErrNotFound):
		return nil
	case errors.Is(err, persist.ErrCorrupt):
		d.failed(ctx, "load", err)
		d.remove(ctx)
		return nil
	default:
		d.failed(ctx, "load", err)
		return nil
	}
}

func (d *displayCache) remove(ctx context.Context) {
	if err := d.store.Remove(ctx); err != nil {
		d.failed(ctx, "remove", err)
	}
}

func (d *displayCache) failed(ctx context.Context, op string, err error) {
	d.metrics.Inc(MetricStorageFailure)
	d.logger.WarnContext(ctx, "display cache operation failed",
		slog.String("component", "storage"),
		slog.String("op", op),
		slog.Any("error", err),
	)
	if d.emit != nil {
		d.emit(ctx, SessionEvent{
			Type:     EventStorageFailure,
			Success:  false,
			Error:    err.Error(),
			Metadata: map[string]string{"op": op},
		})
	}
}
