// Package refresh coordinates access-token renewal so that at most one refresh
// exchange is in flight at any time.
//
// # State machine
//
// A [Coordinator] is either Idle or Refreshing. The first caller that finds it Idle
// moves it to Refreshing and performs the exchange; callers that arrive while an
// exchange is in flight join a FIFO queue. When the exchange settles every queued
// caller is released in arrival order with the same outcome, and the coordinator
// returns to Idle.
//
// # Architecture boundaries
//
// The coordinator knows nothing about HTTP. The exchange, the token sink and the
// teardown hook are injected through [Config], which keeps the package testable
// with plain functions.
//
// # What this package must NOT do
//
//   - Store tokens itself (the OnSuccess hook owns that).
//   - Retry a failed exchange; failure is terminal for the session.
//   - Import the root package or transport.
package refresh
