package hooks

import (
	"fmt"
	"sync"

	"git.home.luguber.info/inful/contentmigrator/internal/content"
)

// ErrRegistryFrozen is returned when registering after Freeze.
var ErrRegistryFrozen = fmt.Errorf("hook registry is frozen")

// AllTypes scopes a registration to every content type.
const AllTypes content.Type = ""

type registration struct {
	point       Point
	contentType content.Type
	hook        any
}

// Registry resolves, per extension point and content type, the ordered list of
// hooks to run. It is populated while a plan is built and frozen before the run
// starts; after Freeze it is read-only.
type Registry struct {
	mu      sync.RWMutex
	entries []registration
	frozen  bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register adds h at point for contentType (AllTypes for every type).
func Register[T any](r *Registry, point Point, contentType content.Type, h Hook[T]) error {
	if h == nil {
		return fmt.Errorf("nil hook for %s", point)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrRegistryFrozen
	}
	r.entries = append(r.entries, registration{point: point, contentType: contentType, hook: h})
	return nil
}

// MustRegister is Register that panics on error, for static wiring.
func MustRegister[T any](r *Registry, point Point, contentType content.Type, h Hook[T]) {
	if err := Register(r, point, contentType, h); err != nil {
		panic(err)
	}
}

// Resolve returns, in registration order, the hooks of type Hook[T]
// registered at point for contentType or for AllTypes. Registrations with a
// different context type are ignored.
func Resolve[T any](r *Registry, point Point, contentType content.Type) []Hook[T] {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Hook[T]
	for _, e := range r.entries {
		if e.point != point {
			continue
		}
		if e.contentType != AllTypes && e.contentType != contentType {
			continue
		}
		if h, ok := e.hook.(Hook[T]); ok {
			out = append(out, h)
		}
	}
	return out
}

// Build resolves hooks and wraps them in a Pipeline.
func Build[T any](r *Registry, point Point, contentType content.Type, opts ...Option) *Pipeline[T] {
	return New(point, Resolve[T](r, point, contentType), opts...)
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Count returns the number of registrations at point (any type).
func (r *Registry) Count(point Point) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if e.point == point {
			n++
		}
	}
	return n
}
