package lkcosmetics

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/internal/fakebackend"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/persist"
)

const (
	testMatricule = "EMP-001"
	testPassword  = "correct-horse"
)

type testEnv struct {
	backend *fakebackend.Server
	server  *httptest.Server
	store   *persist.MemoryStore
	nav     *recordingNavigator
	client  *Client
}

type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNavigator) Navigate(_ context.Context, path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *recordingNavigator) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.API.Timeout = 5 * time.Second
	cfg.Refresh.Timeout = 5 * time.Second
	cfg.Refresh.LogoutTimeout = 2 * time.Second
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Permission.RoleGrants = map[string][]string{
		"SuperAdmin": {"*"},
		"Admin":      {"users.view", "users.create"},
	}
	return cfg
}

func newFakeBackend(t *testing.T, opts ...fakebackend.Option) (*fakebackend.Server, *httptest.Server) {
	t.Helper()
	backend := fakebackend.New(opts...)
	backend.AddAccount(fakebackend.Account{
		ID:          42,
		Matricule:   testMatricule,
		Password:    testPassword,
		Email:       "amina@lk-cosmetics.test",
		FullName:    "Amina Ben Ali",
		Role:        "Admin",
		Permissions: []string{"notifications.view"},
	})
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	return backend, srv
}

// newTestEnv builds a Client against a fresh fake backend. mutate may adjust
// the config and builder before Build.
func newTestEnv(t *testing.T, mutate func(*Config, *Builder)) *testEnv {
	t.Helper()
	backend, srv := newFakeBackend(t)
	env := &testEnv{
		backend: backend,
		server:  srv,
		store:   persist.NewMemoryStore(),
		nav:     &recordingNavigator{},
	}
	env.client = buildClient(t, srv.URL+fakebackend.DefaultPrefix, env.store, env.nav, mutate)
	return env
}

func buildClient(t *testing.T, baseURL string, store persist.Store, nav Navigator, mutate func(*Config, *Builder)) *Client {
	t.Helper()
	cfg := testConfig(baseURL)
	b := New().WithStore(store).WithNavigator(nav).WithLogger(quietLogger())
	if mutate != nil {
		mutate(&cfg, b)
	}
	c, err := b.WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (e *testEnv) login(t *testing.T) *User {
	t.Helper()
	u, err := e.client.Login(context.Background(), Credentials{Matricule: testMatricule, Password: testPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return u
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
