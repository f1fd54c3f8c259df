// Package middleware turns the console session into net/http route guards.
//
// # Guards
//
//   - [RequireAuth] lets any authenticated operator through.
//   - [RequireRole] additionally checks a single role or a role list.
//   - [RequirePermission] checks permission names through an optional
//     [permission.Authorizer] so role grants count.
//
// Every guard first waits, bounded by InitWait, for the session to finish
// its startup restore. The outcome is then computed by [Decide] and rendered:
// a loading panel while the session is still initializing, a 303 redirect to
// the login route when signed out, and an Access Denied panel or a redirect
// to the fallback route when the requirement is not met.
//
// # Architecture boundaries
//
// This package translates session state into HTTP responses. The session
// itself (tokens, refresh, persistence) lives in the root package and the
// role and permission rules live in package permission.
//
// # What this package must NOT do
//
//   - Read or write tokens or cookies.
//   - Trigger a refresh directly (Initialize is the only session call).
//   - Remember the requested path across the login redirect.
package middleware
