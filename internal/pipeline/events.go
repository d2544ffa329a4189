package pipeline

import (
	"time"

	"git.home.luguber.info/inful/contentmigrator/internal/content"
	"git.home.luguber.info/inful/contentmigrator/internal/manifest"
	"git.home.luguber.info/inful/contentmigrator/internal/migration"
)

// Event is a lifecycle event published on the Bus.
type Event interface {
	Name() string
	GetRunID() string
}

// Event names used by the runner.
const (
	EventRunStarted      = "RunStarted"
	EventActionStarted   = "ActionStarted"
	EventBatchCompleted  = "BatchCompleted"
	EventActionCompleted = "ActionCompleted"
	EventRunCompleted    = "RunCompleted"
)

// RunStarted is published before initialization.
type RunStarted struct {
	RunID        string         `json:"run_id"`
	ManifestID   string         `json:"manifest_id"`
	ContentTypes []content.Type `json:"content_types"`
	At           time.Time      `json:"at"`
}

func (RunStarted) Name() string       { return EventRunStarted }
func (e RunStarted) GetRunID() string { return e.RunID }

// ActionStarted is published when a content type's action begins.
type ActionStarted struct {
	RunID       string       `json:"run_id"`
	ContentType content.Type `json:"content_type"`
	At          time.Time    `json:"at"`
}

func (ActionStarted) Name() string       { return EventActionStarted }
func (e ActionStarted) GetRunID() string { return e.RunID }

// BatchCompleted is published after a batch and its hooks finish.
type BatchCompleted struct {
	RunID       string                  `json:"run_id"`
	ContentType content.Type            `json:"content_type"`
	Batch       int                     `json:"batch"`
	Counts      map[manifest.Status]int `json:"counts"`
	Errors      []string                `json:"errors,omitempty"`
	DurationMS  int64                   `json:"duration_ms"`
}

func (BatchCompleted) Name() string       { return EventBatchCompleted }
func (e BatchCompleted) GetRunID() string { return e.RunID }

// ActionCompleted is published once the action-completed hooks have run.
type ActionCompleted struct {
	RunID           string                  `json:"run_id"`
	ContentType     content.Type            `json:"content_type"`
	Status          migration.ActionStatus  `json:"status"`
	Counts          map[manifest.Status]int `json:"counts"`
	AlreadyMigrated int                     `json:"already_migrated"`
	Errors          []string                `json:"errors,omitempty"`
	DurationMS      int64                   `json:"duration_ms"`
}

func (ActionCompleted) Name() string       { return EventActionCompleted }
func (e ActionCompleted) GetRunID() string { return e.RunID }

// RunCompleted is published last.
type RunCompleted struct {
	RunID      string    `json:"run_id"`
	Status     RunStatus `json:"status"`
	ExitCode   int       `json:"exit_code"`
	Errors     []string  `json:"errors,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

func (RunCompleted) Name() string       { return EventRunCompleted }
func (e RunCompleted) GetRunID() string { return e.RunID }

func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}

func newBatchCompleted(runID string, b migration.BatchResult) BatchCompleted {
	return BatchCompleted{
		RunID:       runID,
		ContentType: b.Type,
		Batch:       b.Index,
		Counts:      b.Counts(),
		Errors:      errorStrings(b.Errors),
		DurationMS:  b.Duration.Milliseconds(),
	}
}

func newActionCompleted(runID string, r migration.ActionResult) ActionCompleted {
	return ActionCompleted{
		RunID:           runID,
		ContentType:     r.Type,
		Status:          r.Status,
		Counts:          r.Counts,
		AlreadyMigrated: r.AlreadyMigrated,
		Errors:          errorStrings(r.Errors),
		DurationMS:      r.Duration.Milliseconds(),
	}
}
