// Package lkcosmetics is the authentication and session core of the LK Cosmetics
// administration console.
//
// A [Client] talks to the LK Cosmetics REST backend on behalf of one operator. It
// keeps the short-lived access token in process memory, lets the backend-managed
// refresh credential live only in the HTTP cookie jar, and persists nothing but
// non-sensitive display fields. Requests that fail with 401 are refreshed through a
// single-flight coordinator and replayed once.
//
// Construct a Client with [New], configure it with the Builder methods, then call
// [Client.Initialize] once at startup (guards call it as well; concurrent calls
// share one run).
//
// # Architecture boundaries
//
// The root package owns session state and orchestration. Token storage (token),
// display persistence (persist), the HTTP pipeline (transport), refresh
// serialization (refresh) and authorization checks (permission) live in
// sub-packages that never import this one. Route guards (middleware) and the
// console server (console) sit on top.
//
// # What this package must NOT do
//
//   - Persist or log the access token or the refresh credential.
//   - Retry a request more than once after a 401.
//   - Run more than one refresh exchange at a time.
package lkcosmetics
