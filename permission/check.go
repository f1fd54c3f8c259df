package permission

import "slices"

// Subject exposes the role and permission names of a signed-in user. Both
// methods must be safe on a nil receiver and return nil there, so a typed nil
// subject reads as a signed-out one.
type Subject interface {
	RoleNames() []string
	PermissionNames() []string
}

// Mode selects how a list of requirements is combined.
type Mode uint8

const (
	// MatchAny is satisfied when at least one requirement holds.
	MatchAny Mode = iota
	// MatchAll is satisfied when every requirement holds.
	MatchAll
)

func (m Mode) String() string {
	if m == MatchAll {
		return "all"
	}
	return "any"
}

// ParseMode maps "all" to MatchAll and anything else to MatchAny.
func ParseMode(s string) Mode {
	if s == "all" {
		return MatchAll
	}
	return MatchAny
}

func roles(s Subject) []string {
	if s == nil {
		return nil
	}
	return s.RoleNames()
}

func permissions(s Subject) []string {
	if s == nil {
		return nil
	}
	return s.PermissionNames()
}

// HasRole reports whether s holds role.
func HasRole(s Subject, role string) bool {
	return slices.Contains(roles(s), role)
}

// HasAnyRole reports whether s holds at least one of want.
func HasAnyRole(s Subject, want []string) bool {
	return matchRoles(s, want, MatchAny)
}

// HasAllRoles reports whether s holds every role in want.
func HasAllRoles(s Subject, want []string) bool {
	return matchRoles(s, want, MatchAll)
}

// HasPermission reports whether s holds perm.
func HasPermission(s Subject, perm string) bool {
	return slices.Contains(permissions(s), perm)
}

// HasAnyPermission reports whether s holds at least one of want.
func HasAnyPermission(s Subject, want []string) bool {
	return matchPermissions(s, want, MatchAny)
}

// HasAllPermissions reports whether s holds every permission in want.
func HasAllPermissions(s Subject, want []string) bool {
	return matchPermissions(s, want, MatchAll)
}

// CheckRoles applies HasAnyRole or HasAllRoles depending on mode.
func CheckRoles(s Subject, want []string, mode Mode) bool {
	return matchRoles(s, want, mode)
}

// CheckPermissions applies HasAnyPermission or HasAllPermissions depending on mode.
func CheckPermissions(s Subject, want []string, mode Mode) bool {
	return matchPermissions(s, want, mode)
}

// An absent subject holds nothing, so MatchAll over an empty list is still true.
func matchRoles(s Subject, want []string, mode Mode) bool {
	held := roles(s)
	return fold(want, mode, func(r string) bool { return slices.Contains(held, r) })
}

func matchPermissions(s Subject, want []string, mode Mode) bool {
	held := permissions(s)
	return fold(want, mode, func(p string) bool { return slices.Contains(held, p) })
}

func fold(want []string, mode Mode, has func(string) bool) bool {
	if mode == MatchAll {
		for _, w := range want {
			if !has(w) {
				return false
			}
		}
		return true
	}
	for _, w := range want {
		if has(w) {
			return true
		}
	}
	return false
}
