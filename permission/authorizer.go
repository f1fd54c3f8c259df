package permission

import (
	"fmt"
	"slices"
	"sort"
)

// Authorizer evaluates permissions as the union of a subject's explicit
// permissions and the grants of each role it holds. Role checks are unchanged.
type Authorizer struct {
	registry *Registry
	roles    *RoleManager
}

// NewAuthorizer builds an Authorizer from role grants, e.g.
//
//	{"SuperAdmin": {"*"}, "Admin": {"users.view", "users.create"}}
//
// Every non-wildcard permission named in grants is registered.
func NewAuthorizer(grants map[string][]string) (*Authorizer, error) {
	registry := NewRegistry()

	roleNames := make([]string, 0, len(grants))
	for role := range grants {
		roleNames = append(roleNames, role)
	}
	sort.Strings(roleNames)

	for _, role := range roleNames {
		for _, perm := range grants[role] {
			if perm == Wildcard {
				continue
			}
			if _, err := registry.Ensure(perm); err != nil {
				return nil, fmt.Errorf("role %s: %w", role, err)
			}
		}
	}
	registry.Freeze()

	manager := NewRoleManager(registry)
	for _, role := range roleNames {
		if err := manager.RegisterRole(role, grants[role]); err != nil {
			return nil, fmt.Errorf("role %s: %w", role, err)
		}
	}
	manager.Freeze()

	return &Authorizer{registry: registry, roles: manager}, nil
}

// Grants returns the mask of every role s holds.
func (a *Authorizer) Grants(s Subject) Mask64 {
	var mask Mask64
	if a == nil {
		return mask
	}
	for _, role := range roles(s) {
		if m, ok := a.roles.GetMask(role); ok {
			mask.Union(m)
		}
	}
	return mask
}

func (a *Authorizer) granted(mask Mask64, perm string) bool {
	if a == nil {
		return false
	}
	if bit, ok := a.registry.Bit(perm); ok {
		return mask.Has(bit, true)
	}
	return mask.Has(rootBit64, true)
}

// HasPermission reports whether s holds perm explicitly or through a role grant.
func (a *Authorizer) HasPermission(s Subject, perm string) bool {
	if slices.Contains(permissions(s), perm) {
		return true
	}
	return a.granted(a.Grants(s), perm)
}

// HasAnyPermission reports whether s holds at least one of want.
func (a *Authorizer) HasAnyPermission(s Subject, want []string) bool {
	return a.CheckPermissions(s, want, MatchAny)
}

// HasAllPermissions reports whether s holds every permission in want.
func (a *Authorizer) HasAllPermissions(s Subject, want []string) bool {
	return a.CheckPermissions(s, want, MatchAll)
}

// CheckPermissions combines want according to mode.
func (a *Authorizer) CheckPermissions(s Subject, want []string, mode Mode) bool {
	explicit := permissions(s)
	mask := a.Grants(s)
	return fold(want, mode, func(p string) bool {
		return slices.Contains(explicit, p) || a.granted(mask, p)
	})
}

// Effective lists the permissions s holds, explicit first, then role grants in
// registry order. A wildcard grant appears as Wildcard.
func (a *Authorizer) Effective(s Subject) []string {
	if s == nil {
		return nil
	}
	out := append([]string(nil), s.PermissionNames()...)
	if a == nil {
		return out
	}
	for _, name := range a.registry.Names(a.Grants(s)) {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}
