package manifest

import (
	"errors"
	"fmt"
	"sync"

	"git.home.luguber.info/inful/contentmigrator/internal/content"
)

var (
	// ErrInvalidTransition is returned when a terminal status is set on an
	// entry that already left Pending in the current run.
	ErrInvalidTransition = errors.New("invalid manifest status transition")
	// ErrMappedLocationSet is returned when the mapped location is assigned twice.
	ErrMappedLocationSet = errors.New("mapped location already set")
)

// Entry is the ledger record for one content item. All access goes through
// its own lock, so entries never contend with each other.
type Entry struct {
	mu            sync.RWMutex
	contentType   content.Type
	source        content.Reference
	status        Status
	mapped        content.Location
	mappedSet     bool
	destinationID string
	errors        []ErrorRecord
	visitedRun    string
}

// EntrySnapshot is an immutable copy of an entry.
type EntrySnapshot struct {
	ContentType    content.Type      `json:"content_type"`
	Source         content.Reference `json:"source"`
	Status         Status            `json:"status"`
	MappedLocation *content.Location `json:"mapped_location,omitempty"`
	DestinationID  string            `json:"destination_id,omitempty"`
	Errors         []ErrorRecord     `json:"errors,omitempty"`
}

func newEntry(ct content.Type, ref content.Reference) *Entry {
	return &Entry{contentType: ct, source: ref, status: StatusPending}
}

func (e *Entry) ContentType() content.Type { return e.contentType }

// Source returns the item's source reference.
func (e *Entry) Source() content.Reference {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.source
}

// Status returns the current status.
func (e *Entry) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// MappedLocation returns the destination location and whether it is set.
func (e *Entry) MappedLocation() (content.Location, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mapped, e.mappedSet
}

// SetMappedLocation records the destination location. It can be set once per
// visit; a second call fails with ErrMappedLocationSet.
func (e *Entry) SetMappedLocation(loc content.Location) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mappedSet {
		return fmt.Errorf("%w: %s", ErrMappedLocationSet, e.source.ID)
	}
	if e.status != StatusPending {
		return fmt.Errorf("%w: mapping %s entry %s", ErrInvalidTransition, e.status, e.source.ID)
	}
	e.mapped = loc
	e.mappedSet = true
	return nil
}

// MarkMigrated records a successful publish.
func (e *Entry) MarkMigrated(destinationID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.leavePending(StatusMigrated); err != nil {
		return err
	}
	e.destinationID = destinationID
	return nil
}

// MarkSkipped records that a filter removed the item.
func (e *Entry) MarkSkipped() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leavePending(StatusSkipped)
}

// MarkFailed records a failure together with its error records.
func (e *Entry) MarkFailed(records ...ErrorRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.leavePending(StatusFailed); err != nil {
		return err
	}
	e.errors = append(e.errors, records...)
	return nil
}

// MarkCancelled records that the run was cancelled before the item finished.
func (e *Entry) MarkCancelled(records ...ErrorRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.leavePending(StatusCancelled); err != nil {
		return err
	}
	e.errors = append(e.errors, records...)
	return nil
}

// AppendErrors adds records without changing the status.
func (e *Entry) AppendErrors(records ...ErrorRecord) {
	if len(records) == 0 {
		return
	}
	e.mu.Lock()
	e.errors = append(e.errors, records...)
	e.mu.Unlock()
}

// Snapshot returns a consistent copy of the entry.
func (e *Entry) Snapshot() EntrySnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

func (e *Entry) snapshotLocked() EntrySnapshot {
	s := EntrySnapshot{
		ContentType:   e.contentType,
		Source:        e.source,
		Status:        e.status,
		DestinationID: e.destinationID,
	}
	if e.mappedSet {
		loc := e.mapped
		s.MappedLocation = &loc
	}
	if len(e.errors) > 0 {
		s.Errors = append([]ErrorRecord(nil), e.errors...)
	}
	return s
}

func (e *Entry) leavePending(to Status) error {
	if e.status != StatusPending {
		return fmt.Errorf("%w: %s -> %s for %s/%s", ErrInvalidTransition, e.status, to, e.contentType, e.source.ID)
	}
	e.status = to
	return nil
}

// restart prepares an entry from a previous run for a fresh visit. Errors and
// the mapped location belong to the earlier attempt; the destination ID is
// kept so a forced re-migration can target the existing object.
func (e *Entry) restart(source content.Reference) {
	e.source = source
	e.status = StatusPending
	e.mapped = content.Location{}
	e.mappedSet = false
	e.errors = nil
}
