package transport

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/google/uuid"
)

// RequestTransformer adjusts an outgoing request before it is sent. The request is
// already a private clone; transformers may mutate headers freely.
type RequestTransformer interface {
	Transform(req *http.Request) error
}

// TransformerFunc adapts a function to RequestTransformer.
type TransformerFunc func(req *http.Request) error

func (f TransformerFunc) Transform(req *http.Request) error {
	return f(req)
}

// TokenSource returns the current access token, or "" when none is held.
type TokenSource interface {
	Get() string
}

// Bearer attaches "Authorization: Bearer <token>" when the source holds a token.
// Requests without a token are sent without the header.
func Bearer(src TokenSource) RequestTransformer {
	return TransformerFunc(func(req *http.Request) error {
		tok := ""
		if src != nil {
			tok = src.Get()
		}
		recordToken(req.Context(), tok)
		if tok == "" {
			req.Header.Del("Authorization")
			return nil
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		return nil
	})
}

// IsMutating reports whether method changes server state and therefore needs the
// anti-forgery header.
func IsMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// CookieReader is the read side of an http.CookieJar.
type CookieReader interface {
	Cookies(u *url.URL) []*http.Cookie
}

var _ CookieReader = (*cookiejar.Jar)(nil)

// AntiForgery copies the anti-forgery cookie into headerName on mutating requests.
// The cookie is looked up for the request URL. When the cookie is absent the
// header is omitted.
func AntiForgery(jar CookieReader, cookieName, headerName string) RequestTransformer {
	return TransformerFunc(func(req *http.Request) error {
		if jar == nil || !IsMutating(req.Method) {
			return nil
		}
		for _, c := range jar.Cookies(req.URL) {
			if c.Name == cookieName && c.Value != "" {
				req.Header.Set(headerName, c.Value)
				return nil
			}
		}
		return nil
	})
}

// RequestIDHeader is the header set by RequestID.
const RequestIDHeader = "X-Request-ID"

// RequestID sets a random X-Request-ID when the request has none.
func RequestID() RequestTransformer {
	return TransformerFunc(func(req *http.Request) error {
		if req.Header.Get(RequestIDHeader) == "" {
			req.Header.Set(RequestIDHeader, uuid.NewString())
		}
		return nil
	})
}

// StaticHeaders sets fixed headers on every request when they are not already set.
func StaticHeaders(headers map[string]string) RequestTransformer {
	return TransformerFunc(func(req *http.Request) error {
		for k, v := range headers {
			if req.Header.Get(k) == "" {
				req.Header.Set(k, v)
			}
		}
		return nil
	})
}
