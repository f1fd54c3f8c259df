// Package console serves the administrative console in front of a
// [lkcosmetics.Client].
//
// # Routes
//
//   - GET and POST /login, POST /logout.
//   - /dashboard and /dashboard/{users,add-user,notifications,settings} for any
//     authenticated operator.
//   - /dashboard/{companies,add-company,brands,sales-channels} for SuperAdmin.
//   - /api/* forwards to the backend with the session's bearer token, cookies
//     and CSRF header. Bodies over 8 MiB are answered with 413.
//   - /healthz, and /metrics when a metrics handler is supplied.
//
// # Browser binding
//
// The console holds one backend session. A successful sign-in binds it to the
// signing browser with the HttpOnly, SameSite=Strict [VisitorCookie]; pages,
// /api/* and POST /logout require that cookie, and logout clears it.
// State-changing requests that a browser marks as cross-origin are rejected
// with 403 unless the origin is listed in Options.TrustedOrigins.
//
// # Architecture boundaries
//
// Pages are guarded by package middleware. Every backend call goes through the
// Client so refresh-on-401 and CSRF apply uniformly.
//
// # What this package must NOT do
//
//   - Hold tokens or forward the browser's own cookies to the backend.
//   - Decide authorization outside package middleware and package permission.
package console
