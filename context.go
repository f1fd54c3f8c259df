package lkcosmetics

import "context"

type currentPathContextKey struct{}

// WithCurrentPath records the console route being served. After a failed
// refresh the Client skips navigation when the operator is already on the
// login route.
func WithCurrentPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, currentPathContextKey{}, path)
}

// CurrentPath returns the route recorded by WithCurrentPath, or "".
func CurrentPath(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	path, _ := ctx.Value(currentPathContextKey{}).(string)
	return path
}
