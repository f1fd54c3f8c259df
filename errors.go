package lkcosmetics

import (
	"errors"

	"github.com/lk-cosmetics/lkCosmeticsSystemFrontend/refresh"
)

var (
	// ErrServerUnreachable reports that no response was received from the backend.
	ErrServerUnreachable = errors.New("server unreachable")
	// ErrInvalidCredentials reports a login rejected by the backend (400/401/403).
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginFailed reports any other login failure.
	ErrLoginFailed = errors.New("login failed")
	// ErrSessionExpired reports that the refresh credential was rejected and the
	// session has been torn down.
	ErrSessionExpired = refresh.ErrSessionExpired
	// ErrSessionSuperseded reports refresh or restore work dropped because Login
	// or Logout started a newer session while it ran. It is always wrapped in
	// ErrSessionExpired.
	ErrSessionSuperseded = refresh.ErrSuperseded
	// ErrNotAuthenticated reports an operation that needs a signed-in user.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrMalformedResponse reports a backend response that could not be decoded.
	ErrMalformedResponse = errors.New("malformed backend response")
	// ErrClientClosed reports use of a closed Client.
	ErrClientClosed = errors.New("client closed")
	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("invalid configuration")
)

const (
	msgCannotConnect      = "Cannot connect to server. Please check if the backend is running on "
	msgLoginFailed        = "Login failed. Please check your credentials."
	msgNetworkError       = "Network error. Please try again."
	msgUnexpectedResponse = "Unexpected response from server. Please try again."
)

// LoginError is returned by Login. Message is safe to show to the operator; the
// underlying cause is reachable through errors.Is and errors.As.
type LoginError struct {
	Message string
	Status  int
	Payload ErrorPayload

	kind  error
	cause error
}

func (e *LoginError) Error() string {
	return e.Message
}

func (e *LoginError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.kind != nil {
		out = append(out, e.kind)
	}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}
