// Package rate throttles console sign-in attempts with Redis counters.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys live
// under a configurable prefix (default "lkc:signin"):
//   - <prefix>:m:<matricule>: failed attempts per matricule
//   - <prefix>:ip:<ip>      : failed attempts per client IP
//
// # What this package must NOT do
//
//   - Talk to the backend or know about sessions.
//   - Be imported outside this module.
package rate
