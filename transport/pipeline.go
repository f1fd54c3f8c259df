package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// UnauthorizedHandler supplies a replacement token after a 401. stale is the
// token the rejected request carried.
type UnauthorizedHandler interface {
	HandleUnauthorized(ctx context.Context, stale string) (string, error)
}

// HandlerFunc adapts a function to UnauthorizedHandler.
type HandlerFunc func(ctx context.Context, stale string) (string, error)

func (f HandlerFunc) HandleUnauthorized(ctx context.Context, stale string) (string, error) {
	return f(ctx, stale)
}

// Observer receives pipeline events. All methods must be safe for concurrent use.
type Observer interface {
	Unauthorized(req *http.Request)
	Retried(req *http.Request, status int)
}

// ErrBodyNotReplayable is returned when a request that must be retried has a body
// that cannot be read again.
var ErrBodyNotReplayable = errors.New("request body cannot be replayed")

// Pipeline is an http.RoundTripper that applies transformers and retries once on 401.
type Pipeline struct {
	base         http.RoundTripper
	transformers []RequestTransformer
	handler      UnauthorizedHandler
	observer     Observer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBase sets the underlying RoundTripper. Defaults to http.DefaultTransport.
func WithBase(rt http.RoundTripper) Option {
	return func(p *Pipeline) {
		if rt != nil {
			p.base = rt
		}
	}
}

// WithTransformers appends transformers in order.
func WithTransformers(ts ...RequestTransformer) Option {
	return func(p *Pipeline) {
		for _, t := range ts {
			if t != nil {
				p.transformers = append(p.transformers, t)
			}
		}
	}
}

// WithUnauthorizedHandler sets the single 401 handler. Without one, 401 responses
// pass through unchanged.
func WithUnauthorizedHandler(h UnauthorizedHandler) Option {
	return func(p *Pipeline) { p.handler = h }
}

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// New builds a Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{base: http.DefaultTransport}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RoundTrip implements http.RoundTripper.
func (p *Pipeline) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, cell := withTokenCell(req.Context())
	req = req.WithContext(ctx)

	if err := ensureReplayable(req); err != nil {
		return nil, err
	}

	out, err := p.prepare(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || p.handler == nil {
		return resp, nil
	}
	if Retried(ctx) || SkipRefresh(ctx) {
		return resp, nil
	}
	if p.observer != nil {
		p.observer.Unauthorized(req)
	}

	stale := cell.token
	if _, err := p.handler.HandleUnauthorized(ctx, stale); err != nil {
		drain(resp)
		return nil, err
	}

	retry, err := rewind(req.WithContext(withRetried(ctx)))
	if err != nil {
		drain(resp)
		return nil, err
	}
	drain(resp)

	out, err = p.prepare(retry)
	if err != nil {
		return nil, err
	}
	resp, err = p.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if p.observer != nil {
		p.observer.Retried(req, resp.StatusCode)
	}
	return resp, nil
}

func (p *Pipeline) prepare(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	for _, t := range p.transformers {
		if err := t.Transform(out); err != nil {
			return nil, fmt.Errorf("transform request: %w", err)
		}
	}
	return out, nil
}

// ensureReplayable makes sure req.GetBody is set when req has a body, buffering
// the body once if needed. req must be a shallow copy owned by the pipeline.
func ensureReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("buffer request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}

func rewind(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, ErrBodyNotReplayable
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBodyNotReplayable, err)
	}
	req.Body = body
	return req, nil
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
