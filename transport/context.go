package transport

import "context"

type skipRefreshKey struct{}
type retriedKey struct{}
type tokenUsedKey struct{}

// WithSkipRefresh marks requests made with ctx as exempt from refresh-on-401.
// Login, refresh and logout calls use it so that a rejected credential is
// reported to the caller instead of triggering another refresh.
func WithSkipRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipRefreshKey{}, true)
}

// SkipRefresh reports whether ctx carries the WithSkipRefresh mark.
func SkipRefresh(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(skipRefreshKey{}).(bool)
	return v
}

func withRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

// Retried reports whether the request carrying ctx is the single replay of a
// request that received 401.
func Retried(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

// tokenCell records which token a transformer attached so the pipeline can tell
// the refresh coordinator which token was rejected.
type tokenCell struct {
	token string
}

func withTokenCell(ctx context.Context) (context.Context, *tokenCell) {
	cell := &tokenCell{}
	return context.WithValue(ctx, tokenUsedKey{}, cell), cell
}

func recordToken(ctx context.Context, tok string) {
	if cell, ok := ctx.Value(tokenUsedKey{}).(*tokenCell); ok {
		cell.token = tok
	}
}
