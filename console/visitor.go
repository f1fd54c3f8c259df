package console

import (
	"crypto/rand"
	"crypto/subtle"
	"net/http"
)

// VisitorCookie binds the console's single backend session to the browser
// that signed in. It is issued by a successful sign-in and cleared by logout.
const VisitorCookie = "lkconsole_visitor"

// bindVisitor issues a fresh visitor cookie and forgets any earlier one.
func (s *Server) bindVisitor(w http.ResponseWriter, r *http.Request) {
	value := rand.Text()

	s.visitorMu.Lock()
	s.visitor = value
	s.visitorMu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     VisitorCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) unbindVisitor(w http.ResponseWriter, r *http.Request) {
	s.visitorMu.Lock()
	s.visitor = ""
	s.visitorMu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     VisitorCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

// isVisitor reports whether r carries the cookie of the bound browser.
func (s *Server) isVisitor(r *http.Request) bool {
	c, err := r.Cookie(VisitorCookie)
	if err != nil || c.Value == "" {
		return false
	}
	s.visitorMu.Lock()
	want := s.visitor
	s.visitorMu.Unlock()
	return want != "" && subtle.ConstantTimeCompare([]byte(c.Value), []byte(want)) == 1
}

// requireVisitor sends any other browser to the login route, or answers 401
// when api is set.
func (s *Server) requireVisitor(api bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.isVisitor(r) {
				next.ServeHTTP(w, r)
				return
			}
			if api {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
				return
			}
			http.Redirect(w, r, s.routes.LoginPath, http.StatusSeeOther)
		})
	}
}

// crossOrigin rejects state-changing requests that a browser marks as coming
// from another site.
func (s *Server) crossOrigin(trusted []string) (*http.CrossOriginProtection, error) {
	cop := http.NewCrossOriginProtection()
	for _, origin := range trusted {
		if err := cop.AddTrustedOrigin(origin); err != nil {
			return nil, err
		}
	}
	cop.SetDenyHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "cross-origin request rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"origin", r.Header.Get("Origin"),
			"sec_fetch_site", r.Header.Get("Sec-Fetch-Site"),
		)
		http.Error(w, "cross-origin request rejected", http.StatusForbidden)
	}))
	return cop, nil
}
