// Package internal holds code that is private to this module.
//
// # Sub-packages
//
//   - events: asynchronous session event dispatch (Dispatcher + Sink implementations)
//   - fakebackend: in-process stand-in for the LK Cosmetics REST API used by tests and demos
//   - rate: Redis-backed sign-in throttle for the console
//
// # What this package must NOT do
//
//   - Export types that appear in the public client API.
//   - Be imported by any package outside this module.
package internal
