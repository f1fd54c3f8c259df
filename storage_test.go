package lkcosmetics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/persist"
	"github.com/redis/go-redis/v9"
)

func TestOpenStoreBackends(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name string
		cfg  StorageConfig
		want any
	}{
		{name: "memory", cfg: StorageConfig{Backend: StorageMemory}, want: &persist.MemoryStore{}},
		{name: "empty backend", cfg: StorageConfig{}, want: &persist.MemoryStore{}},
		{name: "file", cfg: StorageConfig{Backend: StorageFile, FilePath: filepath.Join(t.TempDir(), "u.json")}, want: &persist.FileStore{}},
		{name: "redis dialed", cfg: StorageConfig{Backend: StorageRedis, RedisAddr: mr.Addr(), RedisKey: "lkc:test"}, want: &persist.RedisStore{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, closeFn, err := OpenStore(tt.cfg, nil)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer closeFn()

			switch tt.want.(type) {
			case *persist.MemoryStore:
				if _, ok := store.(*persist.MemoryStore); !ok {
					t.Fatalf("expected memory store, got %T", store)
				}
			case *persist.FileStore:
				if _, ok := store.(*persist.FileStore); !ok {
					t.Fatalf("expected file store, got %T", store)
				}
			case *persist.RedisStore:
				if _, ok := store.(*persist.RedisStore); !ok {
					t.Fatalf("expected redis store, got %T", store)
				}
			}

			ctx := context.Background()
			if err := store.Save(ctx, persist.Record{ID: 1, Matricule: "EMP-1"}); err != nil {
				t.Fatalf("save: %v", err)
			}
			rec, err := store.Load(ctx)
			if err != nil || rec.Matricule != "EMP-1" {
				t.Fatalf("load: %+v %v", rec, err)
			}
		})
	}
}

func TestOpenStoreErrors(t *testing.T) {
	if _, _, err := OpenStore(StorageConfig{Backend: "sqlite"}, nil); err == nil {
		t.Fatal("expected unknown backend error")
	}
	if _, _, err := OpenStore(StorageConfig{Backend: StorageRedis}, nil); err == nil {
		t.Fatal("expected missing address error")
	}
	if _, _, err := OpenStore(StorageConfig{Backend: StorageFile}, nil); err == nil {
		t.Fatal("expected missing path error")
	}
}

func TestRedisBackedSessionSurvivesRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	_, srv := newFakeBackend(t)
	redisCfg := func(cfg *Config, b *Builder) {
		cfg.Storage = StorageConfig{Backend: StorageRedis, RedisAddr: mr.Addr(), RedisKey: "lkc:session", RedisTTL: time.Hour}
		b.WithRedis(rdb).WithStore(nil)
	}

	first := buildClient(t, srv.URL+"/api/v1", nil, nil, redisCfg)
	if _, err := first.Login(context.Background(), Credentials{Matricule: testMatricule, Password: testPassword}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !mr.Exists("lkc:session") {
		t.Fatal("expected the display record in redis")
	}
	if ttl := mr.TTL("lkc:session"); ttl != time.Hour {
		t.Fatalf("expected one hour TTL, got %s", ttl)
	}

	second := buildClient(t, srv.URL+"/api/v1", nil, nil, func(cfg *Config, b *Builder) {
		redisCfg(cfg, b)
		b.WithCookieJar(first.jar)
	})
	if u := second.State().User; u == nil || u.Matricule != testMatricule {
		t.Fatalf("expected cached user from redis, got %+v", u)
	}
	if err := second.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !second.IsAuthenticated() {
		t.Fatal("expected restored session")
	}

	second.Logout(context.Background())
	if mr.Exists("lkc:session") {
		t.Fatal("logout must remove the redis record")
	}
}

func TestStorageFailureDoesNotFailLogin(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	_, srv := newFakeBackend(t)
	c := buildClient(t, srv.URL+"/api/v1", persist.NewRedisStore(rdb, "", 0), nil, nil)
	mr.Close()

	if _, err := c.Login(context.Background(), Credentials{Matricule: testMatricule, Password: testPassword}); err != nil {
		t.Fatalf("login must succeed when persistence is down: %v", err)
	}
	if !c.IsAuthenticated() {
		t.Fatal("expected authenticated session")
	}
	if c.MetricsSnapshot().Counters[MetricStorageFailure] == 0 {
		t.Fatal("expected storage failure to be counted")
	}
}
