package fakebackend

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server, *http.Client) {
	t.Helper()
	backend := New(opts...)
	backend.AddAccount(Account{ID: 7, Matricule: "EMP-7", Password: "secret", FullName: "Amina Ben Ali", Role: "Admin"})
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return backend, srv, &http.Client{Jar: jar}
}

func csrfToken(t *testing.T, client *http.Client, base string) string {
	t.Helper()
	resp, err := client.Get(base + "/api/v1/csrf/")
	if err != nil {
		t.Fatalf("csrf: %v", err)
	}
	resp.Body.Close()
	u, _ := url.Parse(base + "/api/v1/")
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == CSRFCookie {
			return c.Value
		}
	}
	t.Fatal("csrf cookie not set")
	return ""
}

func post(t *testing.T, client *http.Client, target, csrf, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if csrf != "" {
		req.Header.Set(CSRFHeader, csrf)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", target, err)
	}
	return resp
}

func TestLoginRefreshLogoutCycle(t *testing.T) {
	backend, srv, client := newTestServer(t)
	csrf := csrfToken(t, client, srv.URL)

	resp := post(t, client, srv.URL+"/api/v1/auth/login/", csrf, `{"matricule":"EMP-7","password":"secret"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", resp.StatusCode)
	}
	var login struct {
		Access string `json:"access"`
		User   struct {
			ID   int64  `json:"id"`
			Role string `json:"role"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	resp.Body.Close()
	if login.Access == "" || login.User.ID != 7 || login.User.Role != "Admin" {
		t.Fatalf("unexpected login payload: %+v", login)
	}
	if backend.ActiveRefreshTokens() != 1 {
		t.Fatal("expected a refresh token to be issued")
	}

	resp = post(t, client, srv.URL+"/api/v1/auth/refresh/", csrf, `{}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = post(t, client, srv.URL+"/api/v1/auth/logout/", csrf, `{}`)
	resp.Body.Close()
	if backend.ActiveRefreshTokens() != 0 {
		t.Fatal("logout must revoke the refresh token")
	}

	resp = post(t, client, srv.URL+"/api/v1/auth/refresh/", csrf, `{}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: status %d", resp.StatusCode)
	}

	st := backend.Stats()
	if st.Logins != 1 || st.Refreshes != 2 || st.Logouts != 1 || st.CSRF != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestMutatingRequestsRequireCSRF(t *testing.T) {
	backend, srv, client := newTestServer(t)
	_ = csrfToken(t, client, srv.URL)

	resp := post(t, client, srv.URL+"/api/v1/auth/login/", "", `{"matricule":"EMP-7","password":"secret"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without header, got %d", resp.StatusCode)
	}
	if backend.Stats().CSRFRejected != 1 {
		t.Fatal("expected rejection to be counted")
	}
}

func TestLoginValidation(t *testing.T) {
	_, srv, client := newTestServer(t, WithoutCSRF())

	resp := post(t, client, srv.URL+"/api/v1/auth/login/", "", `{"matricule":"","password":""}`)
	var fields map[string][]string
	_ = json.NewDecoder(resp.Body).Decode(&fields)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest || len(fields["matricule"]) == 0 || len(fields["password"]) == 0 {
		t.Fatalf("expected field errors, got %d %v", resp.StatusCode, fields)
	}

	resp = post(t, client, srv.URL+"/api/v1/auth/login/", "", `{"matricule":"EMP-7","password":"wrong"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", resp.StatusCode)
	}
}

func TestExpireAccessTokens(t *testing.T) {
	backend, srv, client := newTestServer(t)

	tok, ok := backend.IssueAccess("EMP-7")
	if !ok {
		t.Fatal("issue access failed")
	}
	get := func() int {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/users/me/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("profile: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if got := get(); got != http.StatusOK {
		t.Fatalf("fresh token: status %d", got)
	}
	backend.ExpireAccessTokens()
	if got := get(); got != http.StatusUnauthorized {
		t.Fatalf("expired token: status %d", got)
	}
	if backend.Stats().Unauthorized != 1 {
		t.Fatal("expected one unauthorized response")
	}
}

func TestAccessTokenExpiresWithClock(t *testing.T) {
	var offset atomic.Int64
	start := time.Now()
	clock := func() time.Time { return start.Add(time.Duration(offset.Load())) }
	backend, srv, client := newTestServer(t, WithClock(clock), WithAccessTTL(time.Minute))

	tok, _ := backend.IssueAccess("EMP-7")
	offset.Store(int64(2 * time.Minute))

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/companies/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("companies: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected expired token to be rejected, got %d", resp.StatusCode)
	}
}

func TestHoldRefreshes(t *testing.T) {
	backend, srv, client := newTestServer(t, WithoutCSRF())
	release := backend.HoldRefreshes()

	done := make(chan int, 1)
	go func() {
		resp, err := client.Post(srv.URL+"/api/v1/auth/refresh/", "application/json", strings.NewReader(`{}`))
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()

	select {
	case <-done:
		t.Fatal("refresh returned while held")
	case <-time.After(50 * time.Millisecond):
	}
	release()
	if status := <-done; status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a cookie, got %d", status)
	}
}
