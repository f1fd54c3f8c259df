package lkcosmetics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/token"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/transport"
)

type loginResponse struct {
	Access string    `json:"access"`
	User   *wireUser `json:"user"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

// Login exchanges credentials for a session. On success the access token is
// held in memory only, the display record is persisted and the session is
// authenticated. On failure the session is signed out, State.LastError carries
// an operator-facing message and the returned *LoginError matches one of
// ErrServerUnreachable, ErrInvalidCredentials or ErrLoginFailed. Login never
// retries.
func (c *Client) Login(ctx context.Context, creds Credentials) (*User, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}

	c.state.update(func(s *State) {
		s.IsLoading = true
		s.LastError = ""
	})

	c.ensureCSRF(ctx)

	var out loginResponse
	err := c.JSON(transport.WithSkipRefresh(ctx), http.MethodPost, c.cfg.API.LoginPath, creds, &out)
	if err == nil && (out.Access == "" || out.User == nil) {
		err = ErrMalformedResponse
	}
	if err != nil {
		lerr := c.loginError(err)
		c.state.advance(func(s *State) {
			c.tokens.Clear()
			s.IsLoading = false
			s.IsAuthenticated = false
			s.Initialized = true
			s.User = nil
			s.LastError = lerr.Message
		})
		c.metrics.Inc(MetricLoginFailure)
		c.logger.WarnContext(ctx, "login failed",
			slog.String("component", "session"),
			slog.String("matricule", creds.Matricule),
			slog.Int("status", lerr.Status),
			slog.Any("error", err),
		)
		c.emit(ctx, SessionEvent{
			Type:      EventLogin,
			Matricule: creds.Matricule,
			Success:   false,
			Error:     lerr.Message,
		})
		return nil, lerr
	}

	user := out.User.user()
	c.display.save(ctx, user)
	c.state.advance(func(s *State) {
		c.tokens.Set(out.Access)
		s.IsLoading = false
		s.IsAuthenticated = true
		s.Initialized = true
		s.User = user
		s.LastError = ""
	})

	c.metrics.Inc(MetricLoginSuccess)
	c.logger.InfoContext(ctx, "login succeeded",
		slog.String("component", "session"),
		slog.String("matricule", user.Matricule),
		slog.String("role", user.Role),
	)
	c.emitUser(ctx, EventLogin, user, nil)
	return user.clone(), nil
}

// loginError maps a login failure to the message shown on the login form.
func (c *Client) loginError(err error) *LoginError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		kind := ErrLoginFailed
		switch apiErr.Status {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			kind = ErrInvalidCredentials
		}
		msg := msgLoginFailed
		if apiErr.Payload.Kind == PayloadDetail || apiErr.Payload.Kind == PayloadMessage {
			if apiErr.Payload.Text != "" {
				msg = apiErr.Payload.Text
			}
		}
		return &LoginError{
			Message: msg,
			Status:  apiErr.Status,
			Payload: apiErr.Payload,
			kind:    kind,
			cause:   err,
		}
	case errors.Is(err, ErrMalformedResponse):
		return &LoginError{Message: msgUnexpectedResponse, kind: ErrLoginFailed, cause: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &LoginError{Message: msgNetworkError, kind: ErrLoginFailed, cause: err}
	case errors.Is(err, ErrServerUnreachable):
		return &LoginError{
			Message: msgCannotConnect + c.origin(),
			kind:    ErrServerUnreachable,
			cause:   err,
		}
	default:
		return &LoginError{Message: msgNetworkError, kind: ErrLoginFailed, cause: err}
	}
}

func (c *Client) origin() string {
	return c.baseURL.Scheme + "://" + c.baseURL.Host
}

// Logout signs the session out locally at once: the access token, the cached
// display record and the session state are cleared before Logout returns.
// The backend is told to drop the refresh cookie in the background; a failure
// there is logged and never surfaced.
func (c *Client) Logout(ctx context.Context) {
	var prev *User
	c.state.advance(func(s *State) {
		prev = s.User
		c.tokens.Clear()
		*s = State{Initialized: true}
	})
	c.display.remove(ctx)

	c.metrics.Inc(MetricLogout)
	c.logger.InfoContext(ctx, "logged out", slog.String("component", "session"))
	c.emitUser(ctx, EventLogout, prev, nil)

	c.notifyLogout(ctx)
}

func (c *Client) notifyLogout(ctx context.Context) {
	detached := context.WithoutCancel(ctx)
	c.goBackground(func() {
		nctx, cancel := context.WithTimeout(detached, c.cfg.Refresh.LogoutTimeout)
		defer cancel()

		err := c.JSON(transport.WithSkipRefresh(nctx), http.MethodPost, c.cfg.API.LogoutPath, struct{}{}, nil)
		if err == nil {
			return
		}
		c.metrics.Inc(MetricLogoutNotifyFailure)
		c.logger.WarnContext(nctx, "logout notification failed",
			slog.String("component", "session"),
			slog.Any("error", err),
		)
		c.emit(nctx, SessionEvent{
			Type:    EventLogoutNotifyFail,
			Success: false,
			Error:   err.Error(),
		})
	})
}

// Initialize restores the session at startup. It fetches the anti-forgery
// cookie once and, when a display record is cached but no access token is
// held, performs exactly one refresh. Success marks the session authenticated;
// failure signs out. Concurrent callers share one run, and a caller whose ctx
// ends stops waiting without cancelling it. Calling Initialize again after it
// settled is harmless. A Login or Logout that lands while the restore is in
// flight wins: the restore returns an error matching ErrSessionSuperseded and
// leaves the newer session alone.
func (c *Client) Initialize(ctx context.Context) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	detached := context.WithoutCancel(ctx)
	ch := c.initGroup.DoChan("initialize", func() (any, error) {
		return nil, c.initialize(detached)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) initialize(ctx context.Context) error {
	c.metrics.Inc(MetricInitialize)
	c.ensureCSRF(ctx)

	epoch := c.state.currentEpoch()
	cached := c.display.load(ctx)
	if cached == nil || c.tokens.Has() {
		c.state.updateIf(epoch, func(s *State) {
			s.Initialized = true
			if cached == nil && !c.tokens.Has() {
				s.IsAuthenticated = false
				s.User = nil
			}
		})
		c.emit(ctx, SessionEvent{Type: EventInitialize, Success: true})
		return nil
	}

	if !c.state.updateIf(epoch, func(s *State) {
		s.IsLoading = true
		s.User = cached
	}) {
		return c.restoreSuperseded(ctx, cached)
	}

	if _, err := c.refresher.Refresh(withEpoch(ctx, epoch), ""); err != nil {
		c.logger.InfoContext(ctx, "session restore failed",
			slog.String("component", "session"),
			slog.Any("error", err),
		)
		// expireSession normally ran already. When the failure came from an
		// exchange started under another epoch it did not, so clear here.
		if c.state.advanceIf(epoch, func(s *State) {
			c.tokens.Clear()
			*s = State{Initialized: true}
		}) {
			c.display.remove(ctx)
		}
		c.emitUser(ctx, EventInitialize, cached, err)
		return err
	}

	user := cached
	hydrated := false
	if c.cfg.Refresh.HydrateProfile {
		if fresh, err := c.CurrentUser(ctx); err == nil {
			user = fresh
			hydrated = true
		} else {
			c.logger.WarnContext(ctx, "profile hydration failed",
				slog.String("component", "session"),
				slog.Any("error", err),
			)
		}
	}

	if !c.state.updateIf(epoch, func(s *State) {
		s.IsLoading = false
		s.IsAuthenticated = true
		s.Initialized = true
		s.User = user
	}) {
		return c.restoreSuperseded(ctx, cached)
	}
	if hydrated {
		c.display.save(ctx, user)
	}
	c.metrics.Inc(MetricSessionRestored)
	c.emitUser(ctx, EventSessionRestored, user, nil)
	return nil
}

// restoreSuperseded reports a restore abandoned because Login or Logout ran
// while it was in progress. The newer session's state is left untouched.
func (c *Client) restoreSuperseded(ctx context.Context, cached *User) error {
	err := fmt.Errorf("%w: %w", ErrSessionExpired, ErrSessionSuperseded)
	c.logger.InfoContext(ctx, "session restore superseded",
		slog.String("component", "session"),
	)
	c.emitUser(ctx, EventInitialize, cached, err)
	return err
}

// ClearError resets State.LastError and nothing else.
func (c *Client) ClearError() {
	c.state.update(func(s *State) {
		s.LastError = ""
	})
}

// RefreshToken forces a refresh exchange (or joins the one in flight) and
// returns the new access token. On failure the session is torn down and the
// error matches ErrSessionExpired.
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	if c.isClosed() {
		return "", ErrClientClosed
	}
	return c.refresher.Refresh(c.pinEpoch(ctx), c.tokens.Get())
}

// exchangeRefresh runs inside the coordinator. The refresh cookie travels in
// the jar; the request is exempt from refresh-on-401.
func (c *Client) exchangeRefresh(ctx context.Context) (string, error) {
	epoch, ok := epochFrom(ctx)
	if !ok {
		epoch = c.state.currentEpoch()
	}
	c.refreshEpoch.Store(epoch)

	var out refreshResponse
	err := c.JSON(transport.WithSkipRefresh(ctx), http.MethodPost, c.cfg.API.RefreshPath, struct{}{}, &out)
	if err != nil {
		return "", err
	}
	if out.Access == "" {
		return "", fmt.Errorf("refresh: %w", ErrMalformedResponse)
	}
	return out.Access, nil
}

// expireSession tears the session down after the refresh credential was
// rejected. It runs before any request waiting on the refresh is released.
func (c *Client) expireSession(ctx context.Context, err error) {
	var prev *User
	if !c.state.advanceIf(c.refreshEpoch.Load(), func(s *State) {
		prev = s.User
		c.tokens.Clear()
		*s = State{Initialized: true}
	}) {
		c.logger.InfoContext(ctx, "stale refresh failure ignored",
			slog.String("component", "refresh"),
			slog.Any("error", err),
		)
		return
	}
	c.display.remove(ctx)

	c.metrics.Inc(MetricSessionExpired)
	c.logger.WarnContext(ctx, "session expired",
		slog.String("component", "refresh"),
		slog.Any("error", err),
	)
	c.emitUser(ctx, EventSessionExpired, prev, err)

	login := c.cfg.Routes.LoginPath
	if c.navigator != nil && CurrentPath(ctx) != login {
		c.navigator.Navigate(ctx, login)
	}
}

// handleUnauthorized is the pipeline's 401 hook. A request whose token was
// cleared by Logout or an expiry while it was in flight belongs to an ended
// session and may not start an exchange.
func (c *Client) handleUnauthorized(ctx context.Context, stale string) (string, error) {
	ctx = c.pinEpoch(ctx)
	if stale != "" && !c.tokens.Has() {
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, ErrSessionSuperseded)
	}
	return c.refresher.Refresh(ctx, stale)
}

// commitRefresh stores a refreshed token unless the session it was fetched
// for has ended.
func (c *Client) commitRefresh(tok string) error {
	if !c.state.within(c.refreshEpoch.Load(), func() { c.tokens.Set(tok) }) {
		c.logger.Info("refreshed token discarded",
			slog.String("component", "refresh"),
			slog.String("reason", "session ended during exchange"),
		)
		return ErrSessionSuperseded
	}
	return nil
}

type epochKey struct{}

// withEpoch pins the refresh exchange led by ctx to a session epoch.
func withEpoch(ctx context.Context, epoch uint64) context.Context {
	return context.WithValue(ctx, epochKey{}, epoch)
}

// pinEpoch pins ctx to the current epoch unless it is pinned already.
func (c *Client) pinEpoch(ctx context.Context) context.Context {
	if _, ok := epochFrom(ctx); ok {
		return ctx
	}
	return withEpoch(ctx, c.state.currentEpoch())
}

func epochFrom(ctx context.Context) (uint64, bool) {
	e, ok := ctx.Value(epochKey{}).(uint64)
	return e, ok
}

func (c *Client) refreshSettled(err error, took time.Duration) {
	c.metrics.Observe(MetricRefreshLatency, took)
	if err != nil {
		c.metrics.Inc(MetricRefreshFailure)
	} else {
		c.metrics.Inc(MetricRefreshSuccess)
	}
	c.emit(context.Background(), SessionEvent{
		Type:     EventRefresh,
		Success:  err == nil,
		Error:    errString(err),
		Metadata: map[string]string{"took": took.String()},
	})
}

// proactiveRefresh renews the token before sending a request when it expires
// within Config.Refresh.ProactiveWindow. Disabled when the window is zero.
func (c *Client) proactiveRefresh() transport.RequestTransformer {
	window := c.cfg.Refresh.ProactiveWindow
	if window <= 0 {
		return nil
	}
	return transport.TransformerFunc(func(req *http.Request) error {
		ctx := req.Context()
		if transport.SkipRefresh(ctx) || transport.Retried(ctx) {
			return nil
		}
		tok := c.tokens.Get()
		if tok == "" || !token.ExpiresWithin(tok, window, c.now()) {
			return nil
		}
		c.metrics.Inc(MetricProactiveRefresh)
		_, err := c.refresher.Refresh(c.pinEpoch(ctx), tok)
		return err
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
