package test

import (
	"context"
	"io"
	"log/slog"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	lkcosmetics "github.com/lk-cosmetics/lkCosmeticsSystemFrontend"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/internal/fakebackend"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/persist"
)

const (
	operatorMatricule = "EMP-001"
	operatorPassword  = "correct-horse"
)

func startBackend(t *testing.T, opts ...fakebackend.Option) (*fakebackend.Server, string) {
	t.Helper()

	backend := fakebackend.New(opts...)
	backend.AddAccount(fakebackend.Account{
		ID:          42,
		Matricule:   operatorMatricule,
		Password:    operatorPassword,
		Email:       "amina@lk-cosmetics.test",
		FullName:    "Amina Ben Ali",
		Role:        "Admin",
		Permissions: []string{"notifications.view"},
	})
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	return backend, srv.URL + fakebackend.DefaultPrefix
}

type clientOptions struct {
	store persist.Store
	jar   *cookiejar.Jar
}

func newClient(t *testing.T, baseURL string, o clientOptions) *lkcosmetics.Client {
	t.Helper()

	cfg := lkcosmetics.DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.API.Timeout = 5 * time.Second
	cfg.Refresh.Timeout = 5 * time.Second
	cfg.Metrics.Enabled = true

	b := lkcosmetics.New().
		WithConfig(cfg).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if o.store != nil {
		b = b.WithStore(o.store)
	}
	if o.jar != nil {
		b = b.WithCookieJar(o.jar)
	}

	client, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func signIn(t *testing.T, client *lkcosmetics.Client) *lkcosmetics.User {
	t.Helper()
	u, err := client.Login(context.Background(), lkcosmetics.Credentials{
		Matricule: operatorMatricule,
		Password:  operatorPassword,
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return u
}

func newJar(t *testing.T) *cookiejar.Jar {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return jar
}
