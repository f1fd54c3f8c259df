// Package transport provides the authenticated HTTP round-trip pipeline used by the
// console client.
//
// A [Pipeline] is an [http.RoundTripper] built from an ordered list of
// [RequestTransformer]s and a single [UnauthorizedHandler]. Every outgoing request
// passes through each transformer in order; every 401 response is offered to the
// handler at most once per request.
//
// # Retry contract
//
//   - Non-401 responses and transport errors are returned unchanged.
//   - A 401 on a request already marked as retried is returned unchanged.
//   - A 401 on a request marked with [WithSkipRefresh] is returned unchanged.
//   - Otherwise the handler is asked for a new token and the request is replayed
//     exactly once with the retried mark set.
//
// # What this package must NOT do
//
//   - Read or write the refresh credential; it lives in the cookie jar.
//   - Log request bodies or Authorization headers.
package transport
