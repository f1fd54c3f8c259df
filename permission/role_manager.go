package permission

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrRoleManagerFrozen = errors.New("role manager frozen")
	ErrEmptyRole         = errors.New("role name empty")
	ErrDuplicateRole     = errors.New("role already registered")
)

// RoleManager holds the permission mask granted by each role.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]Mask64
	frozen bool
}

// NewRoleManager returns a RoleManager resolving names through registry.
func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[string]Mask64),
	}
}

// RegisterRole records the permissions granted by roleName. Every permission must
// already be registered; Wildcard sets the root bit.
func (rm *RoleManager) RegisterRole(roleName string, permissionNames []string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return ErrRoleManagerFrozen
	}
	if roleName == "" {
		return ErrEmptyRole
	}
	if _, exists := rm.roles[roleName]; exists {
		return ErrDuplicateRole
	}

	var mask Mask64
	for _, perm := range permissionNames {
		if perm == Wildcard {
			mask.Set(rootBit64)
			continue
		}
		bit, ok := rm.registry.Bit(perm)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPermission, perm)
		}
		mask.Set(bit)
	}

	rm.roles[roleName] = mask
	return nil
}

// GetMask returns the mask granted by roleName.
func (rm *RoleManager) GetMask(roleName string) (Mask64, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	mask, ok := rm.roles[roleName]
	return mask, ok
}

/*
====================================
FREEZE
*/

func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

// Count returns the number of registered roles.
func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}
