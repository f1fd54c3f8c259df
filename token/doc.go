// Package token holds the short-lived access token for the lifetime of the process.
//
// The access token is a bearer JWT issued by the backend at login or refresh. It is
// kept in memory only: [Store] has no serialization path and its formatting methods
// redact the value, so it cannot reach logs or durable storage by accident.
//
// # Architecture boundaries
//
// This package stores and inspects tokens. It does not obtain them (the session
// controller does) and it does not verify signatures; [Peek] decodes claims without
// verification purely to read the expiry for optional proactive refresh.
//
// # What this package must NOT do
//
//   - Write tokens to disk, Redis, environment variables, or logs.
//   - Import the root package, persist, or transport.
package token
