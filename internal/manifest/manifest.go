// Package manifest implements the migration ledger: one entry per content item
// with its status, mapped location, destination ID and error history, plus
// run-level errors. The manifest is shared by every worker of a run; each entry
// carries its own lock and the index lock is held only for lookup and insert.
package manifest

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/contentmigrator/internal/content"
)

// ErrAlreadyClaimed is returned when an entry is claimed twice in one run.
var ErrAlreadyClaimed = errors.New("manifest entry already visited in this run")

// Key identifies an entry.
type Key struct {
	ContentType content.Type
	SourceID    string
}

func (k Key) String() string { return string(k.ContentType) + "/" + k.SourceID }

// ResumePolicy controls how entries from earlier runs are treated.
type ResumePolicy struct {
	// ForceRemigrate reprocesses entries that were already migrated.
	ForceRemigrate bool
	// RetryCancelled reprocesses entries a previous run left cancelled.
	RetryCancelled bool
}

// Decision is the outcome of a claim.
type Decision int

const (
	// DecisionProcess means the caller owns the entry and must bring it to a
	// terminal status.
	DecisionProcess Decision = iota
	// DecisionAlreadyMigrated means a prior run migrated the item.
	DecisionAlreadyMigrated
	// DecisionHold means a cancelled entry is left alone because the policy
	// does not retry cancelled items.
	DecisionHold
)

func (d Decision) String() string {
	switch d {
	case DecisionProcess:
		return "process"
	case DecisionAlreadyMigrated:
		return "already-migrated"
	case DecisionHold:
		return "hold"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Manifest is the ledger for a migration.
type Manifest struct {
	id        string
	createdAt time.Time

	mu      sync.RWMutex
	index   map[Key]*Entry
	order   []*Entry
	errors  []ErrorRecord
	runID   string
	updated time.Time
}

// New returns an empty manifest with a fresh ID.
func New() *Manifest {
	now := time.Now().UTC()
	return &Manifest{
		id:        uuid.NewString(),
		createdAt: now,
		updated:   now,
		index:     make(map[Key]*Entry),
	}
}

// ID returns the manifest identifier.
func (m *Manifest) ID() string { return m.id }

// CreatedAt returns when the manifest was first created.
func (m *Manifest) CreatedAt() time.Time { return m.createdAt }

// UpdatedAt returns when a run last started against the manifest.
func (m *Manifest) UpdatedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updated
}

// BeginRun starts a new visit generation. Entries claimed under an earlier
// run ID can be claimed again.
func (m *Manifest) BeginRun(runID string) {
	m.mu.Lock()
	m.runID = runID
	m.updated = time.Now().UTC()
	m.mu.Unlock()
}

// RunID returns the ID passed to the most recent BeginRun.
func (m *Manifest) RunID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runID
}

// GetOrCreate returns the entry for (ct, ref.ID), creating a Pending entry on
// first observation. created reports whether a new entry was inserted.
func (m *Manifest) GetOrCreate(ct content.Type, ref content.Reference) (entry *Entry, created bool) {
	key := Key{ContentType: ct, SourceID: ref.ID}

	m.mu.RLock()
	e, ok := m.index[key]
	m.mu.RUnlock()
	if ok {
		return e, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.index[key]; ok {
		return e, false
	}
	e = newEntry(ct, ref)
	m.index[key] = e
	m.order = append(m.order, e)
	return e, true
}

// Entry looks up an existing entry.
func (m *Manifest) Entry(ct content.Type, sourceID string) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.index[Key{ContentType: ct, SourceID: sourceID}]
	return e, ok
}

// Claim registers the current run's visit of an item and tells the caller
// what to do with it. A second claim of the same entry in the same run fails
// with ErrAlreadyClaimed.
func (m *Manifest) Claim(ct content.Type, ref content.Reference, policy ResumePolicy) (*Entry, Decision, error) {
	e, _ := m.GetOrCreate(ct, ref)
	run := m.RunID()

	e.mu.Lock()
	defer e.mu.Unlock()
	if run != "" && e.visitedRun == run {
		return e, DecisionProcess, fmt.Errorf("%w: %s/%s", ErrAlreadyClaimed, ct, ref.ID)
	}
	e.visitedRun = run

	switch e.status {
	case StatusMigrated:
		if !policy.ForceRemigrate {
			return e, DecisionAlreadyMigrated, nil
		}
	case StatusCancelled:
		if !policy.RetryCancelled {
			return e, DecisionHold, nil
		}
	}
	e.restart(ref)
	return e, DecisionProcess, nil
}

// Entries returns entries of ct in insertion order; an empty ct returns all.
func (m *Manifest) Entries(ct content.Type) []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Entry, 0, len(m.order))
	for _, e := range m.order {
		if ct == "" || e.contentType == ct {
			out = append(out, e)
		}
	}
	return out
}

// Snapshots returns per-entry snapshots in insertion order.
func (m *Manifest) Snapshots(ct content.Type) []EntrySnapshot {
	entries := m.Entries(ct)
	out := make([]EntrySnapshot, len(entries))
	for i, e := range entries {
		out[i] = e.Snapshot()
	}
	return out
}

// ContentTypes returns the distinct content types in first-seen order.
func (m *Manifest) ContentTypes() []content.Type {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[content.Type]bool)
	var out []content.Type
	for _, e := range m.order {
		if !seen[e.contentType] {
			seen[e.contentType] = true
			out = append(out, e.contentType)
		}
	}
	return out
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// AddError records a failure not attributable to a single item.
func (m *Manifest) AddError(records ...ErrorRecord) {
	if len(records) == 0 {
		return
	}
	m.mu.Lock()
	m.errors = append(m.errors, records...)
	m.mu.Unlock()
}

// Errors returns a copy of the run-level errors.
func (m *Manifest) Errors() []ErrorRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ErrorRecord(nil), m.errors...)
}

// CountByStatus returns the status distribution for ct (all types when empty).
func (m *Manifest) CountByStatus(ct content.Type) map[Status]int {
	counts := make(map[Status]int, len(AllStatuses))
	for _, e := range m.Entries(ct) {
		counts[e.Status()]++
	}
	return counts
}

// Summary is a per-type status distribution, sorted by content type order of
// first appearance.
type Summary struct {
	ContentType content.Type
	Counts      map[Status]int
	Total       int
}

// Summarize reports the status distribution per content type.
func (m *Manifest) Summarize() []Summary {
	types := m.ContentTypes()
	out := make([]Summary, 0, len(types))
	for _, ct := range types {
		counts := m.CountByStatus(ct)
		total := 0
		for _, n := range counts {
			total += n
		}
		out = append(out, Summary{ContentType: ct, Counts: counts, Total: total})
	}
	return out
}

// MigratedIDs returns the sorted source IDs of migrated entries of ct.
func (m *Manifest) MigratedIDs(ct content.Type) []string {
	var ids []string
	for _, e := range m.Entries(ct) {
		s := e.Snapshot()
		if s.Status == StatusMigrated {
			ids = append(ids, s.Source.ID)
		}
	}
	sort.Strings(ids)
	return ids
}
