package main

import (
	"context"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	lkcosmetics "github.com/lk-cosmetics/lkCosmeticsSystemFrontend"
)

// redisMini selects an embedded miniredis for the display cache.
const redisMini = "mini"

type clientHandle struct {
	client *lkcosmetics.Client
	// redis is nil unless a display cache address was given.
	redis   redis.UniversalClient
	cleanup func()
}

// openClient builds a Client from the loaded configuration. redisAddr, when
// set, switches the display cache to Redis; "mini" starts an embedded server.
func (o *globalOptions) openClient(redisAddr string) (*clientHandle, error) {
	cfg := o.cfg
	cleanups := []func(){}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	b := lkcosmetics.New().
		WithLogger(o.logger).
		WithEventSink(lkcosmetics.NewSlogSink(o.logger)).
		WithNavigator(lkcosmetics.NavigatorFunc(func(ctx context.Context, path string) {
			o.logger.InfoContext(ctx, "session ended, operator must sign in again", "route", path)
		}))

	var rdb redis.UniversalClient
	switch redisAddr {
	case "":
	case redisMini:
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start miniredis: %w", err)
		}
		cleanups = append(cleanups, mr.Close)
		o.logger.Info("using miniredis for the display cache", "addr", mr.Addr())
		redisAddr = mr.Addr()
		fallthrough
	default:
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{redisAddr}})
		cleanups = append(cleanups, func() { _ = rdb.Close() })
		cfg.Storage.Backend = lkcosmetics.StorageRedis
		cfg.Storage.RedisAddr = redisAddr
		b = b.WithRedis(rdb)
	}

	client, err := b.WithConfig(cfg).Build()
	if err != nil {
		cleanup()
		return nil, err
	}

	return &clientHandle{
		client: client,
		redis:  rdb,
		cleanup: func() {
			_ = client.Close()
			cleanup()
		},
	}, nil
}
