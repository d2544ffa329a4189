package migration

import (
	"sync"
	"time"

	"git.home.luguber.info/inful/contentmigrator/internal/manifest"
)

// RunState is the run-scoped context shared by every hook of one migration.
// It replaces process-wide flags: two runs never share a RunState.
type RunState struct {
	ID          string
	Source      Source
	Destination Destination
	Manifest    *manifest.Manifest
	Started     time.Time

	mu           sync.RWMutex
	capabilities map[string]bool
	errs         []error
}

// NewRunState creates the state for one run.
func NewRunState(id string, src Source, dst Destination, m *manifest.Manifest) *RunState {
	return &RunState{
		ID:           id,
		Source:       src,
		Destination:  dst,
		Manifest:     m,
		Started:      time.Now(),
		capabilities: make(map[string]bool),
	}
}

// SetCapability records the outcome of a capability check.
func (s *RunState) SetCapability(name string, available bool) {
	s.mu.Lock()
	s.capabilities[name] = available
	s.mu.Unlock()
}

// Capability returns a recorded capability and whether it was checked.
func (s *RunState) Capability(name string) (available, checked bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	available, checked = s.capabilities[name]
	return available, checked
}

// WithError records a hook failure raised against the run state.
func (s *RunState) WithError(err error) *RunState {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
	return s
}

// Errors returns failures recorded by initialize hooks.
func (s *RunState) Errors() []error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]error(nil), s.errs...)
}
