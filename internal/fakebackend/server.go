package fakebackend

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	RefreshCookie = "refresh_token"
	CSRFCookie    = "csrftoken"
	CSRFHeader    = "X-CSRFToken"
	DefaultPrefix = "/api/v1"
)

// Account is a backend user.
type Account struct {
	ID          int64
	Matricule   string
	Password    string
	Email       string
	FullName    string
	Role        string
	Permissions []string
}

// Stats counts requests per endpoint.
type Stats struct {
	Logins        int64
	Refreshes     int64
	Logouts       int64
	CSRF          int64
	Profile       int64
	Resources     int64
	Unauthorized  int64
	CSRFRejected  int64
	MaxConcurrent int64
}

// Option configures a Server.
type Option func(*Server)

// WithPrefix mounts the API under prefix. Defaults to DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Server) { s.prefix = strings.TrimRight(prefix, "/") }
}

// WithAccessTTL sets the access token lifetime. Defaults to 5 minutes.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Server) { s.accessTTL = ttl }
}

// WithClock replaces time.Now for token issue and validation.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithoutCSRF disables anti-forgery checks on mutating endpoints.
func WithoutCSRF() Option {
	return func(s *Server) { s.requireCSRF = false }
}

// Server is an http.Handler emulating the backend.
type Server struct {
	prefix      string
	accessTTL   time.Duration
	now         func() time.Time
	requireCSRF bool
	signer      *signer
	mux         *http.ServeMux

	mu          sync.Mutex
	accounts    map[string]Account
	refreshes   map[string]string
	generation  uint64
	refreshGate chan struct{}
	refreshFail bool

	logins, refreshCalls, logouts, csrfCalls   atomic.Int64
	profiles, resources, unauthorized, csrfBad atomic.Int64
	inflight, maxInflight                      atomic.Int64
}

// New returns a Server with no accounts.
func New(opts ...Option) *Server {
	s := &Server{
		prefix:      DefaultPrefix,
		accessTTL:   5 * time.Minute,
		now:         time.Now,
		requireCSRF: true,
		accounts:    make(map[string]Account),
		refreshes:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.signer = newSigner(s.accessTTL, s.now)

	mux := http.NewServeMux()
	if s.prefix != "" {
		mux.HandleFunc("GET "+s.prefix, s.handleRoot)
	}
	mux.HandleFunc("GET "+s.prefix+"/{$}", s.handleRoot)
	mux.HandleFunc("GET "+s.prefix+"/csrf/", s.handleCSRF)
	mux.HandleFunc("POST "+s.prefix+"/auth/login/", s.handleLogin)
	mux.HandleFunc("POST "+s.prefix+"/auth/refresh/", s.handleRefresh)
	mux.HandleFunc("POST "+s.prefix+"/auth/logout/", s.handleLogout)
	mux.HandleFunc("GET "+s.prefix+"/users/me/", s.authed(s.handleProfile))
	mux.HandleFunc("GET "+s.prefix+"/companies/", s.authed(s.handleListCompanies))
	mux.HandleFunc("POST "+s.prefix+"/companies/", s.authed(s.handleCreateCompany))
	s.mux = mux
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Prefix returns the API mount point.
func (s *Server) Prefix() string {
	return s.prefix
}

// AddAccount registers or replaces an account.
func (s *Server) AddAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.Matricule] = a
}

// ExpireAccessTokens makes every access token issued so far invalid, as if
// they had all reached their expiry.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// RevokeRefreshTokens invalidates every refresh cookie.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes = make(map[string]string)
}

// FailRefresh makes every refresh request fail with 401 while on is true.
func (s *Server) FailRefresh(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshFail = on
}

// HoldRefreshes blocks refresh requests until the returned func is called.
func (s *Server) HoldRefreshes() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.refreshGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.refreshGate == gate {
				s.refreshGate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// IssueAccess signs a valid access token for matricule, bypassing login.
func (s *Server) IssueAccess(matricule string) (string, bool) {
	s.mu.Lock()
	acct, ok := s.accounts[matricule]
	gen := s.generation
	s.mu.Unlock()
	if !ok {
		return "", false
	}
	tok, err := s.signer.issue(acct, gen)
	return tok, err == nil
}

// Stats returns request counters.
func (s *Server) Stats() Stats {
	return Stats{
		Logins:        s.logins.Load(),
		Refreshes:     s.refreshCalls.Load(),
		Logouts:       s.logouts.Load(),
		CSRF:          s.csrfCalls.Load(),
		Profile:       s.profiles.Load(),
		Resources:     s.resources.Load(),
		Unauthorized:  s.unauthorized.Load(),
		CSRFRejected:  s.csrfBad.Load(),
		MaxConcurrent: s.maxInflight.Load(),
	}
}

// ActiveRefreshTokens returns how many refresh cookies are currently valid.
func (s *Server) ActiveRefreshTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refreshes)
}

/*
====================================
HANDLERS
====================================
*/

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCSRF(w http.ResponseWriter, r *http.Request) {
	s.csrfCalls.Add(1)
	value := ""
	if c, err := r.Cookie(CSRFCookie); err == nil && c.Value != "" {
		value = c.Value
	} else {
		value = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    value,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"detail": "CSRF cookie set"})
}

type userPayload struct {
	ID          int64    `json:"id"`
	Matricule   string   `json:"matricule"`
	Email       string   `json:"email"`
	FullName    string   `json:"full_name"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

func payloadFor(a Account) userPayload {
	return userPayload{
		ID:          a.ID,
		Matricule:   a.Matricule,
		Email:       a.Email,
		FullName:    a.FullName,
		Role:        a.Role,
		Permissions: a.Permissions,
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.logins.Add(1)
	if !s.checkCSRF(w, r) {
		return
	}

	var body struct {
		Matricule string `json:"matricule"`
		Password  string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Malformed request body."})
		return
	}
	fields := map[string][]string{}
	if body.Matricule == "" {
		fields["matricule"] = []string{"This field is required."}
	}
	if body.Password == "" {
		fields["password"] = []string{"This field is required."}
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, fields)
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[body.Matricule]
	gen := s.generation
	s.mu.Unlock()
	if !ok || acct.Password != body.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "No active account found with the given credentials",
		})
		return
	}

	access, err := s.signer.issue(acct, gen)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	refresh := uuid.NewString()
	s.mu.Lock()
	s.refreshes[refresh] = acct.Matricule
	s.mu.Unlock()

	s.setRefreshCookie(w, r, refresh, false)
	writeJSON(w, http.StatusOK, map[string]any{
		"access": access,
		"user":   payloadFor(acct),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		peak := s.maxInflight.Load()
		if n <= peak || s.maxInflight.CompareAndSwap(peak, n) {
			break
		}
	}

	s.mu.Lock()
	gate := s.refreshGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	if !s.checkCSRF(w, r) {
		return
	}

	cookie, err := r.Cookie(RefreshCookie)
	s.mu.Lock()
	fail := s.refreshFail
	matricule := ""
	if err == nil {
		matricule = s.refreshes[cookie.Value]
	}
	acct, ok := s.accounts[matricule]
	gen := s.generation
	s.mu.Unlock()

	if fail || matricule == "" || !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}

	access, err := s.signer.issue(acct, gen)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.logouts.Add(1)
	if !s.checkCSRF(w, r) {
		return
	}
	if c, err := r.Cookie(RefreshCookie); err == nil {
		s.mu.Lock()
		delete(s.refreshes, c.Value)
		s.mu.Unlock()
	}
	s.setRefreshCookie(w, r, "", true)
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Successfully logged out."})
}

func (s *Server) handleProfile(w http.ResponseWriter, _ *http.Request, acct Account) {
	s.profiles.Add(1)
	writeJSON(w, http.StatusOK, payloadFor(acct))
}

func (s *Server) handleListCompanies(w http.ResponseWriter, _ *http.Request, _ Account) {
	s.resources.Add(1)
	writeJSON(w, http.StatusOK, []map[string]any{
		{"id": 1, "name": "LK Cosmetics"},
	})
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request, _ Account) {
	s.resources.Add(1)
	if !s.checkCSRF(w, r) {
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"Invalid JSON."}})
		return
	}
	name, _ := body["name"].(string)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"name": {"This field is required."}})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": 2, "name": name})
}

/*
====================================
HELPERS
====================================
*/

func (s *Server) authed(next func(http.ResponseWriter, *http.Request, Account)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r.Header.Get("Authorization"))
		claims, err := s.signer.parse(tok)

		s.mu.Lock()
		gen := s.generation
		var acct Account
		ok := false
		if err == nil {
			acct, ok = s.accounts[claims.Subject]
		}
		s.mu.Unlock()

		if err != nil || !ok || claims.Generation != gen || strconv.FormatInt(acct.ID, 10) != claims.UserID {
			s.unauthorized.Add(1)
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}
		next(w, r, acct)
	}
}

func (s *Server) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	if !s.requireCSRF {
		return true
	}
	c, err := r.Cookie(CSRFCookie)
	if err != nil || c.Value == "" || r.Header.Get(CSRFHeader) != c.Value {
		s.csrfBad.Add(1)
		writeJSON(w, http.StatusForbidden, map[string]string{
			"detail": "CSRF Failed: CSRF token missing or incorrect.",
		})
		return false
	}
	return true
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, r *http.Request, value string, clear bool) {
	c := &http.Cookie{
		Name:     RefreshCookie,
		Value:    value,
		Path:     s.prefix + "/auth/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	if clear {
		c.MaxAge = -1
	} else {
		c.MaxAge = int((7 * 24 * time.Hour).Seconds())
	}
	http.SetCookie(w, c)
}

func bearerToken(h string) string {
	const pfx = "Bearer "
	if len(h) >= len(pfx) && h[:len(pfx)] == pfx {
		return h[len(pfx):]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
