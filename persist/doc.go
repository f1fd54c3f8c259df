// Package persist keeps the non-sensitive user display record across process
// restarts.
//
// A persisted [Record] tells the next process that a session probably exists, so
// initialization knows to attempt a silent refresh. It carries display fields only.
// The record type has no token field, so neither the access token nor the refresh
// credential can be written through this package.
//
// # Stores
//
//   - [MemoryStore] for tests and ephemeral consoles.
//   - [FileStore] writes a single JSON document with 0600 permissions.
//   - [RedisStore] keeps the record under a prefixed key in Redis.
//
// # What this package must NOT do
//
//   - Persist access tokens, refresh credentials, or passwords.
//   - Decide session state; callers interpret a missing record as "no session".
package persist
