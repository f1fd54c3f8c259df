// Package fakebackend emulates the LK Cosmetics REST backend for tests, the
// stress tool and the local demo.
//
// It implements the session endpoints the console depends on: login with an
// HttpOnly refresh cookie, cookie-based refresh, logout, the anti-forgery
// cookie bootstrap, the profile endpoint and a small authenticated resource.
// Access tokens are HS256 JWTs signed with a per-server random key.
//
// Knobs let tests expire every access token at once, revoke refresh cookies,
// hold refresh requests on a gate and count every call.
//
// # What this package must NOT do
//
//   - Serve production traffic. Passwords are compared in plain text.
package fakebackend
