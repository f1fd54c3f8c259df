package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"

	lkcosmetics "github.com/lk-cosmetics/lkCosmeticsSystemFrontend"
	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/middleware"
)

// sessionTransport sends proxied requests through Client.Do so the cookie
// jar, bearer token and refresh-on-401 all apply.
type sessionTransport struct {
	client *lkcosmetics.Client
}

// maxProxyBody bounds request bodies buffered for a replay after refresh.
const maxProxyBody = 8 << 20

// errBodyTooLarge rejects a body that cannot be buffered whole. It is never
// forwarded cut short.
var errBodyTooLarge = errors.New("console: request body too large")

func (t sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.RequestURI = ""
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		if req.ContentLength > maxProxyBody {
			_ = req.Body.Close()
			return nil, errBodyTooLarge
		}
		body, err := io.ReadAll(io.LimitReader(req.Body, maxProxyBody+1))
		_ = req.Body.Close()
		if err != nil {
			return nil, err
		}
		if len(body) > maxProxyBody {
			return nil, errBodyTooLarge
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		req.ContentLength = int64(len(body))
	}
	return t.client.Do(req)
}

func (s *Server) newProxy() *httputil.ReverseProxy {
	target := s.client.BaseURL()

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			path := strings.TrimPrefix(pr.In.URL.Path, s.prefix)
			if path == "" {
				path = "/"
			}
			pr.Out.URL.Path = path
			pr.Out.URL.RawPath = ""
			pr.SetURL(target)
			pr.Out.Host = ""

			// The browser's credentials are for the console, not the backend.
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("Cookie")

			ctx := lkcosmetics.WithCurrentPath(pr.Out.Context(), pr.In.URL.Path)
			pr.Out = pr.Out.WithContext(ctx)
		},
		Transport: sessionTransport{client: s.client},
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Del("Set-Cookie")
			return nil
		},
		ErrorHandler: s.proxyError,
	}
}

func (s *Server) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, lkcosmetics.ErrSessionExpired):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Session expired. Please sign in again."})
	case errors.Is(err, errBodyTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"detail": "Request body too large."})
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		s.logger.WarnContext(r.Context(), "console proxy failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"detail": "Backend unavailable."})
	}
}

// requireAPISession answers API calls with JSON instead of redirecting.
func (s *Server) requireAPISession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := s.client.State()
		if !state.Initialized && s.routes.InitWait > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), s.routes.InitWait)
			_ = s.client.Initialize(ctx)
			cancel()
			state = s.client.State()
		}

		switch middleware.Decide(state, middleware.Requirement{}).Outcome {
		case middleware.Allow:
			next.ServeHTTP(w, r)
		case middleware.Loading:
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "Session is initializing."})
		default:
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
		}
	})
}
