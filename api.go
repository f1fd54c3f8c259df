package lkcosmetics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/transport"
)

const maxResponseBody = 1 << 20

// NewRequest builds a request for path relative to the API root. An absolute
// URL is used as is.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	return http.NewRequestWithContext(ctx, method, target, body)
}

func (c *Client) resolve(path string) (string, error) {
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path, nil
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u, err := url.Parse(c.baseURL.String() + path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}
	return u.String(), nil
}

// Do sends req through the session pipeline. Relative request URLs are
// resolved against the API root. Failures without a response wrap
// ErrServerUnreachable; a rejected refresh wraps ErrSessionExpired.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.URL != nil && !req.URL.IsAbs() {
		target, err := c.resolve(req.URL.String())
		if err != nil {
			return nil, err
		}
		u, err := url.Parse(target)
		if err != nil {
			return nil, err
		}
		req = req.Clone(req.Context())
		req.URL = u
		req.Host = ""
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(req.Context(), err)
	}
	return resp, nil
}

func classifyTransportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrSessionExpired),
		errors.Is(err, transport.ErrBodyNotReplayable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		ctx.Err() != nil:
		return err
	default:
		return fmt.Errorf("%w: %w", ErrServerUnreachable, err)
	}
}

// JSON sends in (when non-nil) as a JSON body and decodes the response into
// out (when non-nil). Responses with status >= 400 return *APIError.
func (c *Client) JSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.NewRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return classifyTransportError(ctx, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{
			Status:  resp.StatusCode,
			Method:  method,
			Path:    path,
			Payload: NormalizeErrorPayload(data),
		}
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%s %s: empty body: %w", method, path, ErrMalformedResponse)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, ErrMalformedResponse, err)
	}
	return nil
}

/*
====================================
ANTI-FORGERY
====================================
*/

// FetchCSRFToken asks the backend to set the anti-forgery cookie and returns
// its value. Mutating requests copy the cookie into the anti-forgery header
// automatically.
func (c *Client) FetchCSRFToken(ctx context.Context) (string, error) {
	if err := c.JSON(transport.WithSkipRefresh(ctx), http.MethodGet, c.cfg.API.CSRFPath, nil, nil); err != nil {
		c.metrics.Inc(MetricCSRFFailure)
		return "", fmt.Errorf("csrf: %w", err)
	}
	tok := c.csrfCookie()
	if tok == "" {
		c.metrics.Inc(MetricCSRFFailure)
		return "", fmt.Errorf("csrf: backend did not set %s cookie", c.cfg.API.CSRFCookieName)
	}
	c.csrfReady.Store(true)
	return tok, nil
}

func (c *Client) csrfCookie() string {
	for _, ck := range c.jar.Cookies(c.baseURL) {
		if ck.Name == c.cfg.API.CSRFCookieName {
			return ck.Value
		}
	}
	return ""
}

// ensureCSRF fetches the anti-forgery cookie until one fetch succeeds.
// Failures are logged; mutating requests then go out without the header.
func (c *Client) ensureCSRF(ctx context.Context) {
	if c.csrfReady.Load() {
		return
	}
	if _, err := c.FetchCSRFToken(ctx); err != nil {
		c.logger.WarnContext(ctx, "anti-forgery bootstrap failed",
			slog.String("component", "csrf"),
			slog.Any("error", err),
		)
	}
}

/*
====================================
PROFILE / CONNECTIVITY
====================================
*/

// CurrentUser fetches the signed-in user's profile. It does not change the
// session state.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var wu wireUser
	if err := c.JSON(ctx, http.MethodGet, c.cfg.API.ProfilePath, nil, &wu); err != nil {
		return nil, err
	}
	if wu.ID == 0 && wu.Matricule == "" {
		return nil, fmt.Errorf("profile: %w", ErrMalformedResponse)
	}
	return wu.user(), nil
}

// PingResult reports backend reachability.
type PingResult struct {
	Success bool
	Status  int
	Message string
	URL     string
}

// Ping sends an unauthenticated GET to the API root. Any HTTP response counts
// as reachable.
func (c *Client) Ping(ctx context.Context) PingResult {
	target := c.baseURL.String()
	res := PingResult{URL: target}

	req, err := http.NewRequestWithContext(transport.WithSkipRefresh(ctx), http.MethodGet, target, nil)
	if err != nil {
		res.Message = "Cannot connect to backend: " + err.Error()
		return res
	}
	resp, err := c.http.Do(req)
	if err != nil {
		res.Message = "Cannot connect to backend: " + err.Error()
		return res
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
	resp.Body.Close()

	res.Success = true
	res.Status = resp.StatusCode
	res.Message = fmt.Sprintf("Backend is reachable (Status: %d)", resp.StatusCode)
	return res
}
