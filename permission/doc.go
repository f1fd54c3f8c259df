// Package permission evaluates role and permission requirements against the
// signed-in user.
//
// # Checks
//
// [HasRole], [HasAnyRole], [HasAllRoles] and their permission counterparts are pure
// functions over a [Subject]. A nil subject (no signed-in user) fails every check.
// For a present subject an empty requirement list makes the "any" form false and
// the "all" form vacuously true.
//
// # Role grants
//
// The backend sends a single role and, sometimes, an explicit permission list. An
// [Authorizer] widens the explicit list with the permissions each role grants,
// using a [Registry] of permission bits and a [RoleManager] of per-role [Mask64]
// values. The wildcard grant "*" sets the root bit, which satisfies every check.
//
// # What this package must NOT do
//
//   - Perform I/O or read session state; callers pass the subject in.
//   - Import the root package, transport, or middleware.
package permission
