package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	lkcosmetics "github.com/lk-cosmetics/lkCosmeticsSystemFrontend"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/permission"
)

// Session is the part of *lkcosmetics.Client the guards depend on.
type Session interface {
	State() lkcosmetics.State
	Initialize(ctx context.Context) error
}

// Outcome is the result of evaluating a route requirement.
type Outcome uint8

const (
	// Allow serves the protected handler.
	Allow Outcome = iota
	// Loading means the session has not finished initializing.
	Loading
	// RedirectLogin sends a signed-out operator to the login route.
	RedirectLogin
	// Deny renders the Access Denied panel inline.
	Deny
	// RedirectFallback sends an under-privileged operator elsewhere.
	RedirectFallback
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Loading:
		return "loading"
	case RedirectLogin:
		return "redirect_login"
	case Deny:
		return "deny"
	case RedirectFallback:
		return "redirect_fallback"
	default:
		return "unknown"
	}
}

// Decision is what a guard will do with a request.
type Decision struct {
	Outcome  Outcome
	Location string
	Message  string
}

// Requirement is the normalized form every guard evaluates.
type Requirement struct {
	LoginPath        string
	FallbackPath     string
	ShowAccessDenied bool

	// Role, when set, must be held exactly.
	Role string
	// Roles is checked only when non-empty.
	Roles      []string
	RequireAll bool

	Permissions    []string
	PermissionMode permission.Mode
	// Authorizer expands role grants; nil checks explicit permissions only.
	Authorizer *permission.Authorizer
}

// AuthOptions configures every guard.
type AuthOptions struct {
	LoginPath string
	// InitWait bounds how long a request waits for session initialization.
	InitWait time.Duration
	Renderer Renderer
}

// RoleRequirement configures RequireRole.
type RoleRequirement struct {
	AuthOptions
	Role             string
	Roles            []string
	RequireAll       bool
	ShowAccessDenied bool
	FallbackPath     string
}

// PermissionRequirement configures RequirePermission.
type PermissionRequirement struct {
	AuthOptions
	Permissions      []string
	Mode             permission.Mode
	Authorizer       *permission.Authorizer
	ShowAccessDenied bool
	FallbackPath     string
}

// OptionsFromConfig builds AuthOptions from the route configuration.
func OptionsFromConfig(cfg lkcosmetics.RoutesConfig) AuthOptions {
	return AuthOptions{
		LoginPath: cfg.LoginPath,
		InitWait:  cfg.InitWait,
	}
}

// Roles builds a RoleRequirement for the route configuration.
func Roles(cfg lkcosmetics.RoutesConfig, requireAll bool, roles ...string) RoleRequirement {
	return RoleRequirement{
		AuthOptions:      OptionsFromConfig(cfg),
		Roles:            roles,
		RequireAll:       requireAll,
		ShowAccessDenied: cfg.ShowAccessDenied,
		FallbackPath:     cfg.FallbackPath,
	}
}

const (
	defaultLoginPath    = "/login"
	defaultFallbackPath = "/dashboard"
)

// Decide evaluates state against req. It performs no I/O.
func Decide(state lkcosmetics.State, req Requirement) Decision {
	if !state.Initialized {
		return Decision{Outcome: Loading}
	}

	if !state.IsAuthenticated {
		return Decision{Outcome: RedirectLogin, Location: orDefault(req.LoginPath, defaultLoginPath)}
	}

	if msg, ok := satisfied(state.User, req); !ok {
		if req.ShowAccessDenied {
			return Decision{Outcome: Deny, Message: msg}
		}
		return Decision{Outcome: RedirectFallback, Location: orDefault(req.FallbackPath, defaultFallbackPath)}
	}

	return Decision{Outcome: Allow}
}

func satisfied(user *lkcosmetics.User, req Requirement) (string, bool) {
	if req.Role != "" && !permission.HasRole(user, req.Role) {
		return "You need " + req.Role + " role to access this page.", false
	}

	if len(req.Roles) > 0 {
		mode := permission.MatchAny
		if req.RequireAll {
			mode = permission.MatchAll
		}
		if !permission.CheckRoles(user, req.Roles, mode) {
			return "You need " + quantifier(mode) + " these roles to access this page: " + strings.Join(req.Roles, ", "), false
		}
	}

	if len(req.Permissions) > 0 {
		var ok bool
		if req.Authorizer != nil {
			ok = req.Authorizer.CheckPermissions(user, req.Permissions, req.PermissionMode)
		} else {
			ok = permission.CheckPermissions(user, req.Permissions, req.PermissionMode)
		}
		if !ok {
			if len(req.Permissions) == 1 {
				return "You need the " + req.Permissions[0] + " permission to access this page.", false
			}
			return "You need " + quantifier(req.PermissionMode) + " these permissions to access this page: " + strings.Join(req.Permissions, ", "), false
		}
	}

	return "", true
}

func quantifier(mode permission.Mode) string {
	if mode == permission.MatchAll {
		return "all of"
	}
	return "one of"
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// RequireAuth admits any authenticated operator.
func RequireAuth(session Session, opts AuthOptions) func(http.Handler) http.Handler {
	return guard(session, opts, Requirement{LoginPath: opts.LoginPath})
}

// RequireRole admits operators holding the configured role(s).
func RequireRole(session Session, req RoleRequirement) func(http.Handler) http.Handler {
	return guard(session, req.AuthOptions, Requirement{
		LoginPath:        req.LoginPath,
		FallbackPath:     req.FallbackPath,
		ShowAccessDenied: req.ShowAccessDenied,
		Role:             req.Role,
		Roles:            req.Roles,
		RequireAll:       req.RequireAll,
	})
}

// RequirePermission admits operators holding the configured permission(s).
func RequirePermission(session Session, req PermissionRequirement) func(http.Handler) http.Handler {
	return guard(session, req.AuthOptions, Requirement{
		LoginPath:        req.LoginPath,
		FallbackPath:     req.FallbackPath,
		ShowAccessDenied: req.ShowAccessDenied,
		Permissions:      req.Permissions,
		PermissionMode:   req.Mode,
		Authorizer:       req.Authorizer,
	})
}

func guard(session Session, opts AuthOptions, req Requirement) func(http.Handler) http.Handler {
	renderer := opts.Renderer
	if renderer == nil {
		renderer = DefaultRenderer{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := lkcosmetics.WithCurrentPath(r.Context(), r.URL.Path)

			state := session.State()
			if !state.Initialized {
				state = awaitInitialize(ctx, session, opts.InitWait)
			}

			d := Decide(state, req)
			switch d.Outcome {
			case Allow:
				ctx = context.WithValue(ctx, userContextKey{}, state.User)
				next.ServeHTTP(w, r.WithContext(ctx))
			case Loading:
				w.Header().Set("Retry-After", "1")
				renderer.Render(w, r, http.StatusServiceUnavailable, d)
			case Deny:
				renderer.Render(w, r, http.StatusForbidden, d)
			default:
				http.Redirect(w, r, d.Location, http.StatusSeeOther)
			}
		})
	}
}

// awaitInitialize waits up to wait for Initialize and returns the state it
// left behind. A zero wait only takes a snapshot.
func awaitInitialize(ctx context.Context, session Session, wait time.Duration) lkcosmetics.State {
	if wait <= 0 {
		return session.State()
	}

	ictx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	// Errors surface through state: a failed restore leaves the session
	// initialized and signed out.
	_ = session.Initialize(ictx)
	return session.State()
}

type userContextKey struct{}

// UserFromContext returns the operator admitted by a guard.
func UserFromContext(ctx context.Context) (*lkcosmetics.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(*lkcosmetics.User)
	return u, ok && u != nil
}
