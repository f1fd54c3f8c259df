// Package events implements async delivery of session lifecycle events.
//
// # Components
//
//   - [Sink] is the consumer interface (channel, JSON writer, slog, no-op, fan-out).
//   - [Dispatcher] is a buffered async relay with drop-if-full or block-if-full
//     semantics.
//   - [Event] is the record: timestamp, type, user, outcome, metadata.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery. It does NOT decide which events to
// emit; the session controller does.
//
// # What this package must NOT do
//
//   - Carry tokens, passwords, or cookies in events.
//   - Import the root package or any sibling internal package.
package events
