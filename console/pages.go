package console

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	lkcosmetics "github.com/lk-cosmetics/lkCosmeticsSystemFrontend"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/internal/rate"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/middleware"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/permission"
)

// Company is the backend's company resource as the console lists it.
type Company struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type view struct {
	Title       string
	User        *lkcosmetics.User
	SuperAdmin  bool
	Message     string
	Error       string
	Action      string
	Matricule   string
	Permissions []string
	Companies   []Company
	Name        string
	FieldErrors []string
	Outcome     string
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, v view) {
	if v.User == nil {
		v.User = s.client.User()
	}
	if s.client.IsAuthenticated() && s.isVisitor(r) {
		v.SuperAdmin = permission.HasRole(v.User, RoleSuperAdmin)
	} else {
		v.User = nil
	}

	var buf bytes.Buffer
	if err := s.pages[page].ExecuteTemplate(&buf, "layout", v); err != nil {
		s.logger.ErrorContext(r.Context(), "console template failed", "page", page, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Render implements middleware.Renderer with the console layout.
func (s *Server) Render(w http.ResponseWriter, r *http.Request, status int, d middleware.Decision) {
	title := "Loading"
	if d.Outcome == middleware.Deny {
		title = "Access Denied"
	}
	s.render(w, r, status, "panel", view{Title: title, Message: d.Message, Outcome: d.Outcome.String()})
}

/*
====================================
LOGIN / LOGOUT
====================================
*/

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if s.client.IsAuthenticated() && s.isVisitor(r) {
		http.Redirect(w, r, s.routes.HomePath, http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login", view{
		Title:  "Sign in",
		Action: s.routes.LoginPath,
		Error:  s.client.State().LastError,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	creds := lkcosmetics.Credentials{
		Matricule: strings.TrimSpace(r.PostFormValue("matricule")),
		Password:  r.PostFormValue("password"),
	}

	ip := clientIP(r)
	if s.throttled(w, r, creds.Matricule, ip) {
		return
	}

	ctx := lkcosmetics.WithCurrentPath(r.Context(), s.routes.LoginPath)
	if _, err := s.client.Login(ctx, creds); err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, lkcosmetics.ErrServerUnreachable) {
			status = http.StatusBadGateway
		}
		if errors.Is(err, lkcosmetics.ErrInvalidCredentials) {
			s.recordFailure(r, creds.Matricule, ip)
		}
		s.render(w, r, status, "login", view{
			Title:     "Sign in",
			Action:    s.routes.LoginPath,
			Matricule: creds.Matricule,
			Error:     err.Error(),
		})
		return
	}

	if s.limit != nil {
		if err := s.limit.Reset(r.Context(), creds.Matricule); err != nil {
			s.logger.WarnContext(r.Context(), "sign-in limiter reset failed", "error", err)
		}
	}
	s.bindVisitor(w, r)
	http.Redirect(w, r, s.routes.HomePath, http.StatusSeeOther)
}

const msgTooManyAttempts = "Too many sign-in attempts. Please try again later."

// throttled renders 429 when the sign-in budget is spent. Limiter errors let
// the attempt through.
func (s *Server) throttled(w http.ResponseWriter, r *http.Request, matricule, ip string) bool {
	if s.limit == nil || matricule == "" {
		return false
	}
	err := s.limit.Check(r.Context(), matricule, ip)
	switch {
	case err == nil:
		return false
	case errors.Is(err, rate.ErrRateLimited):
		retry := s.limit.RetryAfter(r.Context(), matricule)
		w.Header().Set("Retry-After", strconv.Itoa(int(retry.Round(time.Second).Seconds())))
		s.render(w, r, http.StatusTooManyRequests, "login", view{
			Title:     "Sign in",
			Action:    s.routes.LoginPath,
			Matricule: matricule,
			Error:     msgTooManyAttempts,
		})
		return true
	default:
		s.logger.WarnContext(r.Context(), "sign-in limiter unavailable", "error", err)
		return false
	}
}

func (s *Server) recordFailure(r *http.Request, matricule, ip string) {
	if s.limit == nil || matricule == "" {
		return
	}
	if err := s.limit.Fail(r.Context(), matricule, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
		s.logger.WarnContext(r.Context(), "sign-in limiter unavailable", "error", err)
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.client.Logout(r.Context())
	s.unbindVisitor(w, r)
	http.Redirect(w, r, s.routes.LoginPath, http.StatusSeeOther)
}

/*
====================================
DASHBOARD
====================================
*/

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	s.render(w, r, http.StatusOK, "page", view{
		Title:   "Dashboard",
		User:    user,
		Message: "Welcome back, " + user.DisplayName() + ".",
	})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	perms := s.client.Authorizer().Effective(user)
	sort.Strings(perms)
	s.render(w, r, http.StatusOK, "page", view{
		Title:       "Settings",
		User:        user,
		Message:     "Signed in as " + user.Matricule + ".",
		Permissions: perms,
	})
}

func (s *Server) staticPage(title, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := middleware.UserFromContext(r.Context())
		s.render(w, r, http.StatusOK, "page", view{Title: title, User: user, Message: message})
	}
}

/*
====================================
COMPANIES
====================================
*/

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	ctx := lkcosmetics.WithCurrentPath(r.Context(), r.URL.Path)

	var companies []Company
	v := view{Title: "Companies", User: user}
	status := http.StatusOK
	if err := s.client.JSON(ctx, http.MethodGet, "/companies/", nil, &companies); err != nil {
		if s.sessionLost(w, r, err) {
			return
		}
		status = http.StatusBadGateway
		v.Error = err.Error()
	}
	v.Companies = companies
	s.render(w, r, status, "companies", v)
}

func (s *Server) handleAddCompanyForm(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	s.render(w, r, http.StatusOK, "add_company", view{Title: "Add company", User: user})
}

func (s *Server) handleAddCompany(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	user, _ := middleware.UserFromContext(r.Context())
	ctx := lkcosmetics.WithCurrentPath(r.Context(), r.URL.Path)
	name := strings.TrimSpace(r.PostFormValue("name"))

	var created Company
	err := s.client.JSON(ctx, http.MethodPost, "/companies/", map[string]string{"name": name}, &created)
	if err == nil {
		http.Redirect(w, r, "/dashboard/companies", http.StatusSeeOther)
		return
	}
	if s.sessionLost(w, r, err) {
		return
	}

	v := view{Title: "Add company", User: user, Name: name}
	status := http.StatusBadGateway
	var apiErr *lkcosmetics.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.Status
		if apiErr.Payload.Kind == lkcosmetics.PayloadFieldErrors {
			v.FieldErrors = flattenFields(apiErr.Payload.Fields)
		} else {
			v.Error = apiErr.Payload.Message()
		}
	} else {
		v.Error = err.Error()
	}
	s.render(w, r, status, "add_company", v)
}

// sessionLost redirects to the login route when err means the refresh
// credential was rejected.
func (s *Server) sessionLost(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, lkcosmetics.ErrSessionExpired) {
		return false
	}
	http.Redirect(w, r, s.routes.LoginPath, http.StatusSeeOther)
	return true
}

func flattenFields(fields map[string][]string) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+": "+strings.Join(fields[k], " "))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
