package lkcosmetics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/persist"
)

func TestMutatingRequestCarriesAntiForgeryHeader(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)

	var created struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	err := env.client.JSON(context.Background(), http.MethodPost, "/companies/", map[string]string{"name": "Maison Rose"}, &created)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Name != "Maison Rose" {
		t.Fatalf("unexpected response %+v", created)
	}
	if env.backend.Stats().CSRFRejected != 0 {
		t.Fatal("backend rejected the anti-forgery header")
	}
}

func TestJSONReturnsAPIErrorWithFieldErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)

	err := env.client.JSON(context.Background(), http.MethodPost, "/companies/", map[string]string{}, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Payload.Kind != PayloadFieldErrors {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if got := apiErr.Payload.Message(); got != "name: This field is required." {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestDoResolvesRelativeURL(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)

	req, err := http.NewRequest(http.MethodGet, "/users/me/", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := env.client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if req.URL.IsAbs() {
		t.Fatal("Do must not modify the caller's request")
	}
}

func TestCurrentUser(t *testing.T) {
	env := newTestEnv(t, nil)

	if _, err := env.client.CurrentUser(context.Background()); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired without a session, got %v", err)
	}

	env.login(t)
	u, err := env.client.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if u.ID != 42 || u.FirstName != "Amina" || u.Roles[0] != "Admin" {
		t.Fatalf("unexpected profile %+v", u)
	}
}

func TestFetchCSRFToken(t *testing.T) {
	env := newTestEnv(t, nil)

	tok, err := env.client.FetchCSRFToken(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if tok == "" || env.client.csrfCookie() != tok {
		t.Fatal("expected the cookie value to be returned")
	}
}

func TestFetchCSRFTokenWithoutCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c := buildClient(t, srv.URL, persist.NewMemoryStore(), nil, nil)
	if _, err := c.FetchCSRFToken(context.Background()); err == nil {
		t.Fatal("expected an error when the cookie is not set")
	}
	if c.MetricsSnapshot().Counters[MetricCSRFFailure] != 1 {
		t.Fatal("expected csrf failure to be counted")
	}
}

func TestPing(t *testing.T) {
	env := newTestEnv(t, nil)

	res := env.client.Ping(context.Background())
	if !res.Success || res.Status != http.StatusOK {
		t.Fatalf("unexpected ping result %+v", res)
	}
	if res.Message != "Backend is reachable (Status: 200)" {
		t.Fatalf("unexpected message %q", res.Message)
	}

	env.server.Close()
	res = env.client.Ping(context.Background())
	if res.Success || !strings.HasPrefix(res.Message, "Cannot connect to backend: ") {
		t.Fatalf("unexpected ping result %+v", res)
	}
}
