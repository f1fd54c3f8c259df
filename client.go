package lkcosmetics

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/internal/events"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/permission"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/refresh"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/token"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/transport"
	"golang.org/x/sync/singleflight"
)

var timeNow = time.Now

// Client owns one console session: the in-memory access token, the cookie
// jar holding the refresh credential, the cached display record and the
// observable session State. Build one with New().Build(). All methods are safe
// for concurrent use.
type Client struct {
	cfg     Config
	baseURL *url.URL
	logger  *slog.Logger
	now     func() time.Time

	tokens    *token.Store
	display   *displayCache
	jar       http.CookieJar
	http      *http.Client
	pipeline  *transport.Pipeline
	refresher *refresh.Coordinator
	authz     *permission.Authorizer
	navigator Navigator

	state        stateStore
	initGroup    singleflight.Group
	csrfReady    atomic.Bool
	refreshEpoch atomic.Uint64

	metrics *Metrics
	events  *events.Dispatcher

	lifecycle  sync.Mutex
	closed     bool
	background sync.WaitGroup
	closeStore func() error
}

// Config returns a copy of the active configuration.
func (c *Client) Config() Config {
	return cloneConfig(c.cfg)
}

// State returns a snapshot of the session.
func (c *Client) State() State {
	return c.state.get()
}

// Subscribe registers fn to receive every state change. Callbacks run
// synchronously on the goroutine that caused the change, after internal locks
// are released, in registration order. The returned func unsubscribes.
func (c *Client) Subscribe(fn func(State)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	return c.state.subscribe(fn)
}

// IsAuthenticated reports whether the session is signed in.
func (c *Client) IsAuthenticated() bool {
	return c.state.get().IsAuthenticated
}

// User returns the signed-in user, or nil.
func (c *Client) User() *User {
	return c.state.get().User
}

// HTTPClient returns the client every backend call goes through. Requests sent
// with it carry the bearer and anti-forgery headers and are retried once
// after a successful refresh.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Transport returns the request pipeline, for callers that build their own
// http.Client around it.
func (c *Client) Transport() http.RoundTripper {
	return c.pipeline
}

// BaseURL returns the backend API root.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Authorizer returns the role grant evaluator built from
// Config.Permission.RoleGrants.
func (c *Client) Authorizer() *permission.Authorizer {
	return c.authz
}

/*
====================================
AUTHORIZATION
====================================
*/

// HasRole reports whether the signed-in user holds role.
func (c *Client) HasRole(role string) bool {
	return permission.HasRole(c.User(), role)
}

// HasAnyRole reports whether the signed-in user holds one of roles.
func (c *Client) HasAnyRole(roles []string) bool {
	return permission.HasAnyRole(c.User(), roles)
}

// HasAllRoles reports whether the signed-in user holds every role.
func (c *Client) HasAllRoles(roles []string) bool {
	return permission.HasAllRoles(c.User(), roles)
}

// HasPermission reports whether the signed-in user holds perm explicitly or
// through a role grant.
func (c *Client) HasPermission(perm string) bool {
	return c.authz.HasPermission(c.User(), perm)
}

// HasAnyPermission reports whether the signed-in user holds one of perms.
func (c *Client) HasAnyPermission(perms []string) bool {
	return c.authz.HasAnyPermission(c.User(), perms)
}

// HasAllPermissions reports whether the signed-in user holds every perm.
func (c *Client) HasAllPermissions(perms []string) bool {
	return c.authz.HasAllPermissions(c.User(), perms)
}

/*
====================================
OBSERVABILITY
====================================
*/

// MetricsSnapshot returns the current counters. All zero when metrics are
// disabled.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// EventsDropped returns how many session events were dropped because the
// dispatcher buffer was full.
func (c *Client) EventsDropped() uint64 {
	return c.events.Dropped()
}

// EventsDroppedByType breaks EventsDropped down by event type.
func (c *Client) EventsDroppedByType() map[string]uint64 {
	return c.events.DroppedByType()
}

// RefreshStats exposes the refresh coordinator counters.
func (c *Client) RefreshStats() refresh.Stats {
	return c.refresher.Stats()
}

func (c *Client) emit(ctx context.Context, ev SessionEvent) {
	if c.events == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.now()
	}
	c.events.Emit(ctx, ev)
}

func (c *Client) emitUser(ctx context.Context, typ string, u *User, err error) {
	id, matricule, role := userEventFields(u)
	ev := SessionEvent{
		Type:      typ,
		UserID:    id,
		Matricule: matricule,
		Role:      role,
		Success:   err == nil,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	c.emit(ctx, ev)
}

type pipelineObserver struct {
	metrics *Metrics
}

func (o pipelineObserver) Unauthorized(*http.Request) {
	o.metrics.Inc(MetricUnauthorized)
}

func (o pipelineObserver) Retried(*http.Request, int) {
	o.metrics.Inc(MetricRequestRetried)
}

/*
====================================
LIFECYCLE
====================================
*/

// Close waits for background logout notifications, flushes pending events
// and releases a Redis connection the Client opened itself. The session state
// is left as is. Close is idempotent.
func (c *Client) Close() error {
	c.lifecycle.Lock()
	if c.closed {
		c.lifecycle.Unlock()
		return nil
	}
	c.closed = true
	c.lifecycle.Unlock()

	c.background.Wait()
	c.events.Close()
	if c.closeStore != nil {
		return c.closeStore()
	}
	return nil
}

func (c *Client) isClosed() bool {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	return c.closed
}

// goBackground runs fn unless the Client is closed. Close waits for it.
func (c *Client) goBackground(fn func()) bool {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.closed {
		return false
	}
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		fn()
	}()
	return true
}
