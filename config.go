package lkcosmetics

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the complete client configuration. Obtain one from DefaultConfig,
// DevelopmentConfig, ProductionConfig or LoadConfigFile and adjust fields before
// passing it to Builder.WithConfig.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Storage    StorageConfig    `yaml:"storage"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Routes     RoutesConfig     `yaml:"routes"`
	Permission PermissionConfig `yaml:"permission"`
	Events     EventsConfig     `yaml:"events"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig locates the backend and its authentication endpoints. Paths are
// relative to BaseURL.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	LoginPath      string        `yaml:"login_path"`
	RefreshPath    string        `yaml:"refresh_path"`
	LogoutPath     string        `yaml:"logout_path"`
	CSRFPath       string        `yaml:"csrf_path"`
	ProfilePath    string        `yaml:"profile_path"`
	CSRFCookieName string        `yaml:"csrf_cookie_name"`
	CSRFHeaderName string        `yaml:"csrf_header_name"`
	UserAgent      string        `yaml:"user_agent"`
	RequireHTTPS   bool          `yaml:"require_https"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

// StorageConfig selects where the display record is persisted.
type StorageConfig struct {
	Backend   string        `yaml:"backend"`
	FilePath  string        `yaml:"file_path"`
	RedisAddr string        `yaml:"redis_addr"`
	RedisDB   int           `yaml:"redis_db"`
	RedisKey  string        `yaml:"redis_key"`
	RedisTTL  time.Duration `yaml:"redis_ttl"`
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig tunes token renewal.
type RefreshConfig struct {
	// Timeout bounds one refresh exchange.
	Timeout time.Duration `yaml:"timeout"`
	// ProactiveWindow refreshes before sending a request whose token expires
	// within the window. Zero disables proactive refresh.
	ProactiveWindow time.Duration `yaml:"proactive_window"`
	// LogoutTimeout bounds the background logout notification.
	LogoutTimeout time.Duration `yaml:"logout_timeout"`
	// HydrateProfile loads the full profile after a session is restored.
	HydrateProfile bool `yaml:"hydrate_profile"`
}

/*
====================================
ROUTES CONFIG
====================================
*/

// RoutesConfig configures console navigation and guard behavior.
type RoutesConfig struct {
	LoginPath        string        `yaml:"login_path"`
	HomePath         string        `yaml:"home_path"`
	FallbackPath     string        `yaml:"fallback_path"`
	ShowAccessDenied bool          `yaml:"show_access_denied"`
	InitWait         time.Duration `yaml:"init_wait"`
}

/*
====================================
PERMISSION CONFIG
====================================
*/

// PermissionConfig lists the permissions each role grants. "*" grants all.
type PermissionConfig struct {
	RoleGrants map[string][]string `yaml:"role_grants"`
}

/*
====================================
EVENTS / METRICS CONFIG
====================================
*/

// EventsConfig controls the async session event dispatcher.
type EventsConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
	// Critical event types are queued even when DropIfFull is set.
	Critical []string `yaml:"critical"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig targets a backend on localhost:8000 with in-memory storage.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000/api/v1",
			Timeout:        10 * time.Second,
			LoginPath:      "/auth/login/",
			RefreshPath:    "/auth/refresh/",
			LogoutPath:     "/auth/logout/",
			CSRFPath:       "/csrf/",
			ProfilePath:    "/users/me/",
			CSRFCookieName: "csrftoken",
			CSRFHeaderName: "X-CSRFToken",
			UserAgent:      "lkconsole",
		},
		Storage: StorageConfig{
			Backend:  StorageMemory,
			FilePath: "user_display.json",
			RedisKey: "lkc:user_display",
		},
		Refresh: RefreshConfig{
			Timeout:       10 * time.Second,
			LogoutTimeout: 5 * time.Second,
		},
		Routes: RoutesConfig{
			LoginPath:        "/login",
			HomePath:         "/dashboard",
			FallbackPath:     "/dashboard",
			ShowAccessDenied: true,
			InitWait:         3 * time.Second,
		},
		Permission: PermissionConfig{
			RoleGrants: map[string][]string{
				"SuperAdmin": {"*"},
			},
		},
		Events: EventsConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
			Critical:   []string{EventLogin, EventLogout, EventSessionExpired},
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DevelopmentConfig is DefaultConfig with file storage, events, metrics and
// profile hydration turned on.
func DevelopmentConfig() Config {
	cfg := DefaultConfig()
	cfg.Storage.Backend = StorageFile
	cfg.Events.Enabled = true
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Refresh.HydrateProfile = true
	return cfg
}

// ProductionConfig requires HTTPS and enables proactive refresh, metrics and
// events. BaseURL must still be set by the caller.
func ProductionConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.API.RequireHTTPS = true
	cfg.Storage.Backend = StorageFile
	cfg.Refresh.ProactiveWindow = 30 * time.Second
	cfg.Refresh.HydrateProfile = true
	cfg.Events.Enabled = true
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Events.Critical = append([]string(nil), cfg.Events.Critical...)
	if cfg.Permission.RoleGrants != nil {
		out.Permission.RoleGrants = make(map[string][]string, len(cfg.Permission.RoleGrants))
		for role, perms := range cfg.Permission.RoleGrants {
			out.Permission.RoleGrants[role] = append([]string(nil), perms...)
		}
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	// API
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Host == "" {
		return errors.New("API BaseURL must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("API BaseURL scheme must be http or https")
	}
	if c.API.RequireHTTPS && u.Scheme != "https" {
		return errors.New("API RequireHTTPS set but BaseURL is not https")
	}
	if c.API.Timeout <= 0 {
		return errors.New("API Timeout must be > 0")
	}
	for name, p := range map[string]string{
		"LoginPath":   c.API.LoginPath,
		"RefreshPath": c.API.RefreshPath,
		"LogoutPath":  c.API.LogoutPath,
		"CSRFPath":    c.API.CSRFPath,
		"ProfilePath": c.API.ProfilePath,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("API %s must start with /", name)
		}
	}
	if c.API.CSRFCookieName == "" || c.API.CSRFHeaderName == "" {
		return errors.New("API CSRF cookie and header names must be set")
	}

	// Storage
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageFile:
		if c.Storage.FilePath == "" {
			return errors.New("Storage FilePath required for file backend")
		}
	case StorageRedis:
		if c.Storage.RedisAddr == "" {
			return errors.New("Storage RedisAddr required for redis backend")
		}
		if c.Storage.RedisTTL < 0 {
			return errors.New("Storage RedisTTL must be >= 0")
		}
	default:
		return fmt.Errorf("Storage Backend %q is not one of memory, file, redis", c.Storage.Backend)
	}

	// Refresh
	if c.Refresh.Timeout <= 0 {
		return errors.New("Refresh Timeout must be > 0")
	}
	if c.Refresh.ProactiveWindow < 0 {
		return errors.New("Refresh ProactiveWindow must be >= 0")
	}
	if c.Refresh.LogoutTimeout <= 0 {
		return errors.New("Refresh LogoutTimeout must be > 0")
	}

	// Routes
	if !strings.HasPrefix(c.Routes.LoginPath, "/") {
		return errors.New("Routes LoginPath must start with /")
	}
	if !strings.HasPrefix(c.Routes.FallbackPath, "/") {
		return errors.New("Routes FallbackPath must start with /")
	}
	if c.Routes.FallbackPath == c.Routes.LoginPath {
		return errors.New("Routes FallbackPath must differ from LoginPath")
	}
	if c.Routes.InitWait <= 0 {
		return errors.New("Routes InitWait must be > 0")
	}

	// Permission
	for role := range c.Permission.RoleGrants {
		if strings.TrimSpace(role) == "" {
			return errors.New("Permission RoleGrants contains an empty role")
		}
	}

	// Events
	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0 when enabled")
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a non-fatal configuration concern.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of Lint.
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that are valid but questionable.
func (c Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if u, err := url.Parse(c.API.BaseURL); err == nil && u.Scheme == "http" {
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			add("insecure_base_url", "BaseURL uses plain http to a non-loopback host")
		}
	}
	if c.Refresh.ProactiveWindow > 0 && c.Refresh.ProactiveWindow >= c.API.Timeout*6 {
		add("proactive_window_large", "ProactiveWindow is large enough to refresh on nearly every request")
	}
	if c.Refresh.Timeout > c.API.Timeout {
		add("refresh_timeout_exceeds_request", "Refresh Timeout exceeds API Timeout; requests may time out while waiting for a refresh")
	}
	if c.Storage.Backend == StorageMemory {
		add("storage_ephemeral", "memory storage cannot restore a session after restart")
	}
	if c.Storage.Backend == StorageRedis && c.Storage.RedisTTL == 0 {
		add("redis_no_ttl", "redis display record never expires")
	}
	if !c.Events.Enabled {
		add("events_disabled", "session events are not recorded")
	}
	if len(c.Permission.RoleGrants) == 0 {
		add("no_role_grants", "no role grants configured; permission checks use explicit permissions only")
	}
	return ws
}
