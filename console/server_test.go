package console

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lkcosmetics "github.com/lk-cosmetics/lkCosmeticsSystemFrontend"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/internal/fakebackend"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/internal/rate"
)

type consoleEnv struct {
	backend *fakebackend.Server
	client  *lkcosmetics.Client
	handler *Server
	// visitor is the browser's copy of the visitor cookie.
	visitor *http.Cookie
}

func newConsoleEnv(t *testing.T) *consoleEnv {
	t.Helper()

	backend := fakebackend.New()
	backend.AddAccount(fakebackend.Account{
		ID: 1, Matricule: "EMP-001", Password: "correct-horse",
		FullName: "Amina Ben Ali", Role: "Admin",
	})
	backend.AddAccount(fakebackend.Account{
		ID: 2, Matricule: "SA-001", Password: "root-horse",
		FullName: "Karim Haddad", Role: "SuperAdmin",
	})
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	cfg := lkcosmetics.DefaultConfig()
	cfg.API.BaseURL = srv.URL + fakebackend.DefaultPrefix
	cfg.Routes.InitWait = time.Second

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := lkcosmetics.New().WithConfig(cfg).WithLogger(logger).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "lkconsole_logins_total 0\n")
	})
	h, err := New(client, Options{Logger: logger, Metrics: metrics})
	require.NoError(t, err)

	return &consoleEnv{backend: backend, client: client, handler: h}
}

func (e *consoleEnv) do(method, target string, form url.Values, header http.Header) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return e.serve(req)
}

// serve sends req as the signed-in browser would and keeps any visitor cookie
// the console sets.
func (e *consoleEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	if e.visitor != nil {
		req.AddCookie(e.visitor)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name != VisitorCookie {
			continue
		}
		if c.MaxAge < 0 {
			e.visitor = nil
		} else {
			e.visitor = c
		}
	}
	return rec
}

// anonymous sends req from a browser that never signed in.
func (e *consoleEnv) anonymous(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *consoleEnv) login(t *testing.T, matricule, password string) {
	t.Helper()
	rec := e.do(http.MethodPost, "/login", url.Values{"matricule": {matricule}, "password": {password}}, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	require.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestHealthz(t *testing.T) {
	env := newConsoleEnv(t)

	rec := env.do(http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["authenticated"])
}

func TestMetricsMounted(t *testing.T) {
	env := newConsoleEnv(t)

	rec := env.do(http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lkconsole_logins_total")
}

func TestDashboardRedirectsWhenSignedOut(t *testing.T) {
	env := newConsoleEnv(t)

	rec := env.do(http.MethodGet, "/dashboard/users", nil, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.False(t, env.client.IsAuthenticated())
}

func TestLoginFailureRendersMessage(t *testing.T) {
	env := newConsoleEnv(t)

	rec := env.do(http.MethodPost, "/login", url.Values{"matricule": {"EMP-001"}, "password": {"wrong"}}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "No active account found with the given credentials")
	assert.Contains(t, rec.Body.String(), `value="EMP-001"`)

	// The last error survives until the next attempt.
	rec = env.do(http.MethodGet, "/login", nil, nil)
	assert.Contains(t, rec.Body.String(), "No active account found")
}

func TestLoginThenDashboard(t *testing.T) {
	env := newConsoleEnv(t)
	env.login(t, "EMP-001", "correct-horse")

	rec := env.do(http.MethodGet, "/dashboard", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Welcome back, Amina Ben Ali.")
	assert.NotContains(t, body, `href="/dashboard/companies"`)

	rec = env.do(http.MethodGet, "/login", nil, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestSettingsListsEffectivePermissions(t *testing.T) {
	env := newConsoleEnv(t)
	env.login(t, "SA-001", "root-horse")

	rec := env.do(http.MethodGet, "/dashboard/settings", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Signed in as SA-001.")
	assert.Contains(t, rec.Body.String(), "<li>*</li>")
}

func TestSuperAdminPagesDenyAdmin(t *testing.T) {
	env := newConsoleEnv(t)
	env.login(t, "EMP-001", "correct-horse")

	for _, path := range []string{"/dashboard/companies", "/dashboard/add-company", "/dashboard/brands", "/dashboard/sales-channels"} {
		rec := env.do(http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "Access Denied", path)
		assert.Contains(t, rec.Body.String(), "You need SuperAdmin role to access this page.", path)
	}
}

func TestSuperAdminListsAndCreatesCompanies(t *testing.T) {
	env := newConsoleEnv(t)
	env.login(t, "SA-001", "root-horse")

	rec := env.do(http.MethodGet, "/dashboard/companies", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "LK Cosmetics")
	assert.Contains(t, rec.Body.String(), `href="/dashboard/companies"`)

	rec = env.do(http.MethodPost, "/dashboard/add-company", url.Values{"name": {"Glow Lab"}}, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard/companies", rec.Header().Get("Location"))

	rec = env.do(http.MethodPost, "/dashboard/add-company", url.Values{"name": {""}}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "name: This field is required.")
	assert.Zero(t, env.backend.Stats().CSRFRejected)
}

func TestCompaniesSurviveAccessExpiry(t *testing.T) {
	env := newConsoleEnv(t)
	env.login(t, "SA-001", "root-horse")
	env.backend.ExpireAccessTokens()

	rec := env.do(http.MethodGet, "/dashboard/companies", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), env.backend.Stats().Refreshes)
}

func TestCompaniesRedirectAfterRefreshRejected(t *testing.T) {
	env := newConsoleEnv(t)
	env.login(t, "SA-001", "root-horse")
	env.backend.ExpireAccessTokens()
	env.backend.RevokeRefreshTokens()

	rec := env.do(http.MethodGet, "/dashboard/companies", nil, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.False(t, env.client.IsAuthenticated())
}

func TestLogout(t *testing.T) {
	env := newConsoleEnv(t)
	env.login(t, "EMP-001", "correct-horse")

	bound := env.visitor
	require.NotNil(t, bound)

	rec := env.do(http.MethodPost, "/logout", nil, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.False(t, env.client.IsAuthenticated())
	assert.Nil(t, env.visitor, "logout must clear the visitor cookie")

	// A stale copy of the cookie no longer opens the console.
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(bound)
	assert.Equal(t, http.StatusSeeOther, env.anonymous(req).Code)

	rec = env.do(http.MethodGet, "/dashboard", nil, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestAPIProxy(t *testing.T) {
	env := newConsoleEnv(t)

	rec := env.do(http.MethodGet, "/api/companies/", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	env.login(t, "SA-001", "root-horse")

	header := http.Header{"Authorization": {"Bearer browser-token"}, "Cookie": {"session=console"}}
	rec = env.do(http.MethodGet, "/api/companies/", nil, header)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var companies []Company
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &companies))
	require.Len(t, companies, 1)
	assert.Equal(t, "LK Cosmetics", companies[0].Name)
	assert.Empty(t, rec.Header().Values("Set-Cookie"))
}

func TestAPIProxyReplaysBodyAfterRefresh(t *testing.T) {
	env := newConsoleEnv(t)
	env.login(t, "SA-001", "root-horse")
	env.backend.ExpireAccessTokens()

	req := httptest.NewRequest(http.MethodPost, "/api/companies/", strings.NewReader(`{"name":"Glow Lab"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := env.serve(req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Glow Lab")
	assert.Equal(t, int64(1), env.backend.Stats().Refreshes)
}

func TestAPIProxySessionExpired(t *testing.T) {
	env := newConsoleEnv(t)
	env.login(t, "SA-001", "root-horse")
	env.backend.ExpireAccessTokens()
	env.backend.RevokeRefreshTokens()

	rec := env.do(http.MethodGet, "/api/companies/", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Session expired")
}

func TestRootRedirectsHome(t *testing.T) {
	env := newConsoleEnv(t)

	rec := env.do(http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestNewRejectsNilClient(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)
}

func TestSignInThrottle(t *testing.T) {
	env := newConsoleEnv(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	limiter, err := rate.New(rdb, rate.Config{MaxAttempts: 2, Cooldown: time.Minute, PerIP: true})
	require.NoError(t, err)

	h, err := New(env.client, Options{SignInLimiter: limiter})
	require.NoError(t, err)
	env.handler = h

	bad := url.Values{"matricule": {"EMP-001"}, "password": {"wrong"}}
	for i := 0; i < 2; i++ {
		rec := env.do(http.MethodPost, "/login", bad, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	good := url.Values{"matricule": {"EMP-001"}, "password": {"correct-horse"}}
	rec := env.do(http.MethodPost, "/login", good, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too many sign-in attempts.")
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.False(t, env.client.IsAuthenticated())
	assert.EqualValues(t, 2, env.backend.Stats().Logins, "throttled attempt must not reach the backend")

	mr.FastForward(2 * time.Minute)

	rec = env.do(http.MethodPost, "/login", good, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	n, err := limiter.Attempts(context.Background(), "EMP-001")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVisitorCookieAttributes(t *testing.T) {
	env := newConsoleEnv(t)
	env.login(t, "EMP-001", "correct-horse")

	require.NotNil(t, env.visitor)
	assert.True(t, env.visitor.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, env.visitor.SameSite)
	assert.Equal(t, "/", env.visitor.Path)
	assert.NotEmpty(t, env.visitor.Value)

	first := env.visitor.Value
	env.login(t, "EMP-001", "correct-horse")
	assert.NotEqual(t, first, env.visitor.Value, "each sign-in issues a new cookie")
}

func TestOtherBrowserIsNotSignedIn(t *testing.T) {
	env := newConsoleEnv(t)
	env.login(t, "SA-001", "root-horse")

	rec := env.anonymous(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = env.anonymous(httptest.NewRequest(http.MethodGet, "/dashboard/companies", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = env.anonymous(httptest.NewRequest(http.MethodGet, "/api/companies/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = env.anonymous(httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Karim Haddad")

	rec = env.anonymous(httptest.NewRequest(http.MethodPost, "/logout", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, env.client.IsAuthenticated(), "only the bound browser may sign out")

	rec = env.do(http.MethodGet, "/dashboard", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCrossSiteRequestsRejected(t *testing.T) {
	env := newConsoleEnv(t)
	env.login(t, "SA-001", "root-horse")
	before := env.backend.Stats().Resources

	forge := func(method, target, body, contentType string, header http.Header) *http.Request {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
		for k, vs := range header {
			req.Header[k] = vs
		}
		return req
	}
	evil := http.Header{"Origin": {"https://evil.example"}}
	form := url.Values{"name": {"Forged Co"}}.Encode()
	const formType = "application/x-www-form-urlencoded"

	// Without the cookie, as the request arrives from another site.
	rec := env.anonymous(forge(http.MethodPost, "/dashboard/add-company", form, formType, evil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Even a browser that would attach the cookie is stopped by its fetch metadata.
	rec = env.serve(forge(http.MethodPost, "/dashboard/add-company", form, formType,
		http.Header{"Origin": {"https://evil.example"}, "Sec-Fetch-Site": {"cross-site"}}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.serve(forge(http.MethodPost, "/api/companies/", `{"name":"Forged Co"}`, "application/json", evil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.serve(forge(http.MethodPost, "/logout", "", formType, evil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.True(t, env.client.IsAuthenticated())

	assert.Equal(t, before, env.backend.Stats().Resources, "forged requests must not reach the backend")

	// Same-origin submissions still go through.
	rec = env.serve(forge(http.MethodPost, "/dashboard/add-company", url.Values{"name": {"Glow Lab"}}.Encode(), formType,
		http.Header{"Origin": {"http://example.com"}, "Sec-Fetch-Site": {"same-origin"}}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard/companies", rec.Header().Get("Location"))
}

func TestTrustedOriginsAreValidated(t *testing.T) {
	env := newConsoleEnv(t)

	_, err := New(env.client, Options{TrustedOrigins: []string{"not an origin"}})
	assert.Error(t, err)

	h, err := New(env.client, Options{TrustedOrigins: []string{"https://console.lk-cosmetics.test"}})
	require.NoError(t, err)
	env.handler = h

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(url.Values{"matricule": {"EMP-001"}, "password": {"correct-horse"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", "https://console.lk-cosmetics.test")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	rec := env.serve(req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.NotNil(t, env.visitor)
}

func TestAPIProxyRejectsOversizedBody(t *testing.T) {
	env := newConsoleEnv(t)
	env.login(t, "SA-001", "root-horse")
	before := env.backend.Stats()

	big := `{"name":"` + strings.Repeat("x", maxProxyBody) + `"}`

	req := httptest.NewRequest(http.MethodPost, "/api/companies/", strings.NewReader(big))
	req.Header.Set("Content-Type", "application/json")
	rec := env.serve(req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "Request body too large.")

	// Unknown length, as with a chunked upload.
	req = httptest.NewRequest(http.MethodPost, "/api/companies/", io.NopCloser(strings.NewReader(big)))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	rec = env.serve(req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	after := env.backend.Stats()
	assert.Equal(t, before.Resources, after.Resources, "an oversized body must never reach the backend")
	assert.Equal(t, before.Unauthorized, after.Unauthorized)
}
