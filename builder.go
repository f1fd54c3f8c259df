package lkcosmetics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/internal/events"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/permission"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/persist"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/refresh"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/token"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/transport"
	"github.com/redis/go-redis/v9"
)

// Builder collects the Client's collaborators. Configure it once, call Build,
// and discard it.
type Builder struct {
	config Config

	base      http.RoundTripper
	jar       http.CookieJar
	store     persist.Store
	redis     redis.UniversalClient
	logger    *slog.Logger
	eventSink   EventSink
	eventRoutes map[string]EventSink
	navigator   Navigator

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithTransport sets the RoundTripper requests are finally sent through.
// Defaults to http.DefaultTransport.
func (b *Builder) WithTransport(rt http.RoundTripper) *Builder {
	b.base = rt
	return b
}

// WithCookieJar sets the jar holding the refresh and anti-forgery cookies.
// Defaults to a fresh in-memory jar.
func (b *Builder) WithCookieJar(jar http.CookieJar) *Builder {
	b.jar = jar
	return b
}

// WithStore sets the display-record store directly, overriding
// Config.Storage.
func (b *Builder) WithStore(store persist.Store) *Builder {
	b.store = store
	return b
}

// WithRedis supplies the client used by the redis storage backend. The Client
// does not close it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithEventSink sets where session events go. Events are only dispatched when
// Config.Events.Enabled is set; with no sink they are logged.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	return b
}

// WithEventRoute sends events of eventType to sink instead of the default
// sink, e.g. logins and logouts to an audit file.
func (b *Builder) WithEventRoute(eventType string, sink EventSink) *Builder {
	if b.eventRoutes == nil {
		b.eventRoutes = make(map[string]EventSink)
	}
	b.eventRoutes[eventType] = sink
	return b
}

// WithNavigator sets the callback used to send the operator to the login route
// after the session expires.
func (b *Builder) WithNavigator(n Navigator) *Builder {
	b.navigator = n
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the refresh latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and assembles the Client. The persisted
// display record, if any, is loaded so State().User is available before
// Initialize; the session is not considered authenticated until Initialize
// or Login succeeds.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL, err := url.Parse(strings.TrimRight(cfg.API.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- AUTHORIZATION --------
	authz, err := permission.NewAuthorizer(cfg.Permission.RoleGrants)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	// -------- STORAGE --------
	closeStore := func() error { return nil }
	store := b.store
	if store == nil {
		store, closeStore, err = OpenStore(cfg.Storage, b.redis)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	jar := b.jar
	if jar == nil {
		jar, err = cookiejar.New(nil)
		if err != nil {
			_ = closeStore()
			return nil, err
		}
	}

	base := b.base
	if base == nil {
		base = http.DefaultTransport
	}

	sink := b.eventSink
	if sink == nil {
		sink = events.NewSlogSink(logger)
	}

	c := &Client{
		cfg:        cfg,
		baseURL:    baseURL,
		logger:     logger,
		tokens:     token.NewStore(),
		jar:        jar,
		authz:      authz,
		navigator:  b.navigator,
		metrics:    NewMetrics(cfg.Metrics),
		closeStore: closeStore,
		now:        timeNow,
	}
	c.events = events.NewDispatcher(events.Config{
		Enabled:    cfg.Events.Enabled,
		BufferSize: cfg.Events.BufferSize,
		DropIfFull: cfg.Events.DropIfFull,
		Critical:   cfg.Events.Critical,
		Routes:     b.eventRoutes,
	}, sink)
	c.display = &displayCache{
		store:   store,
		logger:  logger,
		metrics: c.metrics,
		emit:    c.emit,
	}

	// -------- REFRESH COORDINATOR --------
	c.refresher, err = refresh.New(refresh.Config{
		Exchange:   c.exchangeRefresh,
		Current:    c.tokens.Get,
		OnSuccess:  c.commitRefresh,
		OnFailure:  c.expireSession,
		OnQueued:   func() { c.metrics.Inc(MetricRefreshQueued) },
		OnShortcut: func() { c.metrics.Inc(MetricRefreshShortcut) },
		OnSettled:  c.refreshSettled,
		Timeout:    cfg.Refresh.Timeout,
	})
	if err != nil {
		c.events.Close()
		_ = closeStore()
		return nil, err
	}

	// -------- HTTP PIPELINE --------
	headers := map[string]string{"Accept": "application/json"}
	if cfg.API.UserAgent != "" {
		headers["User-Agent"] = cfg.API.UserAgent
	}
	c.pipeline = transport.New(
		transport.WithBase(base),
		transport.WithTransformers(
			c.proactiveRefresh(),
			transport.Bearer(c.tokens),
			transport.AntiForgery(jar, cfg.API.CSRFCookieName, cfg.API.CSRFHeaderName),
			transport.RequestID(),
			transport.StaticHeaders(headers),
		),
		transport.WithUnauthorizedHandler(transport.HandlerFunc(c.handleUnauthorized)),
		transport.WithObserver(pipelineObserver{metrics: c.metrics}),
	)
	c.http = &http.Client{
		Transport: c.pipeline,
		Jar:       jar,
		Timeout:   cfg.API.Timeout,
	}

	// -------- OPTIMISTIC DISPLAY --------
	loadCtx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout)
	cached := c.display.load(loadCtx)
	cancel()
	c.state.update(func(s *State) {
		s.User = cached
	})

	b.built = true
	return c, nil
}
