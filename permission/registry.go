package permission

import (
	"errors"
	"sync"
)

// MaxPermissions is the number of assignable bits when the root bit is reserved.
const MaxPermissions = rootBit64

var (
	ErrRegistryFrozen    = errors.New("registry frozen")
	ErrEmptyPermission   = errors.New("permission name cannot be empty")
	ErrDuplicate         = errors.New("permission already registered")
	ErrPermissionLimit   = errors.New("permission limit exceeded (root bit reserved)")
	ErrUnknownPermission = errors.New("permission not registered")
)

// Wildcard is the grant that maps to the root bit.
const Wildcard = "*"

// Registry maps permission names to bit positions within a Mask64. Bit 63 is
// reserved for the wildcard grant.
type Registry struct {
	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		nameToBit: make(map[string]int),
		bitToName: make(map[int]string),
	}
}

// Register assigns the next available bit to name and returns it. Registering an
// existing name returns ErrDuplicate. Must be called before Freeze.
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, ErrRegistryFrozen
	}
	if name == "" || name == Wildcard {
		return -1, ErrEmptyPermission
	}
	if _, exists := r.nameToBit[name]; exists {
		return -1, ErrDuplicate
	}

	next := len(r.nameToBit)
	if next >= MaxPermissions {
		return -1, ErrPermissionLimit
	}

	r.nameToBit[name] = next
	r.bitToName[next] = name
	return next, nil
}

// Ensure registers name when it is not yet known and returns its bit.
func (r *Registry) Ensure(name string) (int, error) {
	if bit, ok := r.Bit(name); ok {
		return bit, nil
	}
	return r.Register(name)
}

// Bit returns the bit index for name, or false if not registered.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Name returns the permission name for bit, or false if unassigned.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Names expands mask into permission names in bit order. The root bit expands
// to Wildcard.
func (r *Registry) Names(mask Mask64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for bit := 0; bit < MaxPermissions; bit++ {
		if mask&(1<<bit) == 0 {
			continue
		}
		if name, ok := r.bitToName[bit]; ok {
			out = append(out, name)
		}
	}
	if mask&(1<<rootBit64) != 0 {
		out = append(out, Wildcard)
	}
	return out
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered permissions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}
