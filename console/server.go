package console

import (
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	lkcosmetics "github.com/lk-cosmetics/lkCosmeticsSystemFrontend"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/internal/rate"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/middleware"
)

// RoleSuperAdmin gates the company, brand and sales channel pages.
const RoleSuperAdmin = "SuperAdmin"

//go:embed templates/*.html
var templateFS embed.FS

var contentTemplates = []string{"login", "page", "companies", "add_company", "panel"}

// Options configures a Server.
type Options struct {
	Logger *slog.Logger
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
	// APIPrefix is the proxied path prefix. Defaults to "/api".
	APIPrefix string
	// SignInLimiter throttles failed sign-ins when non-nil.
	SignInLimiter *rate.Limiter
	// TrustedOrigins may send state-changing requests besides the console's
	// own origin, e.g. "https://console.example.com" behind a proxy.
	TrustedOrigins []string
}

// Server is the console's http.Handler.
type Server struct {
	client *lkcosmetics.Client
	routes lkcosmetics.RoutesConfig
	logger *slog.Logger
	prefix string
	limit  *rate.Limiter
	pages  map[string]*template.Template
	cop    *http.CrossOriginProtection
	router chi.Router

	visitorMu sync.Mutex
	visitor   string
}

// New builds the console router for client.
func New(client *lkcosmetics.Client, opts Options) (*Server, error) {
	if client == nil {
		return nil, fmt.Errorf("console: nil client")
	}

	s := &Server{
		client: client,
		routes: client.Config().Routes,
		logger: opts.Logger,
		prefix: strings.TrimSuffix(opts.APIPrefix, "/"),
		limit:  opts.SignInLimiter,
		pages:  make(map[string]*template.Template, len(contentTemplates)),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.prefix == "" {
		s.prefix = "/api"
	}

	for _, name := range contentTemplates {
		tpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("console: parse %s: %w", name, err)
		}
		s.pages[name] = tpl
	}

	cop, err := s.crossOrigin(opts.TrustedOrigins)
	if err != nil {
		return nil, fmt.Errorf("console: trusted origin: %w", err)
	}
	s.cop = cop

	s.router = s.buildRouter(opts.Metrics)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter(metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.logRequests)
	r.Use(chimw.Recoverer)
	r.Use(s.cop.Handler)

	r.Get("/healthz", s.handleHealth)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, s.routes.HomePath, http.StatusSeeOther)
	})
	r.Get(s.routes.LoginPath, s.handleLoginForm)
	r.Post(s.routes.LoginPath, s.handleLogin)
	r.With(s.requireVisitor(false)).Post("/logout", s.handleLogout)

	authOpts := middleware.OptionsFromConfig(s.routes)
	authOpts.Renderer = s

	r.Group(func(r chi.Router) {
		r.Use(s.requireVisitor(false))
		r.Use(middleware.RequireAuth(s.client, authOpts))
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/dashboard/users", s.staticPage("Users", "Operators of the console."))
		r.Get("/dashboard/add-user", s.staticPage("Add user", "Create a new operator account."))
		r.Get("/dashboard/notifications", s.staticPage("Notifications", ""))
		r.Get("/dashboard/settings", s.handleSettings)
	})

	r.Group(func(r chi.Router) {
		req := middleware.Roles(s.routes, false)
		req.Role = RoleSuperAdmin
		req.Renderer = s
		r.Use(s.requireVisitor(false))
		r.Use(middleware.RequireRole(s.client, req))
		r.Get("/dashboard/companies", s.handleCompanies)
		r.Get("/dashboard/add-company", s.handleAddCompanyForm)
		r.Post("/dashboard/add-company", s.handleAddCompany)
		r.Get("/dashboard/brands", s.staticPage("Brands", ""))
		r.Get("/dashboard/sales-channels", s.staticPage("Sales channels", ""))
	})

	r.Route(s.prefix, func(r chi.Router) {
		r.Use(s.requireVisitor(true))
		r.Use(s.requireAPISession)
		r.Handle("/*", s.newProxy())
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.DebugContext(r.Context(), "console request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := s.client.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"initialized":   state.Initialized,
		"authenticated": state.IsAuthenticated,
	})
}
