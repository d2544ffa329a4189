package migration

import (
	"time"

	"git.home.luguber.info/inful/contentmigrator/internal/content"
	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
	"git.home.luguber.info/inful/contentmigrator/internal/manifest"
	"git.home.luguber.info/inful/contentmigrator/internal/metrics"
)

// ItemResult is the outcome of one item's visit.
type ItemResult struct {
	Source        content.Reference
	Status        manifest.Status
	Location      content.Location
	DestinationID string
	Errors        []error
	Duration      time.Duration
}

// BatchResult aggregates the items of one batch plus failures of the batch's
// bulk hooks.
type BatchResult struct {
	Type     content.Type
	Index    int
	Items    []ItemResult
	Errors   []error
	Duration time.Duration
}

// Counts returns the status distribution of the batch.
func (b BatchResult) Counts() map[manifest.Status]int {
	out := make(map[manifest.Status]int)
	for _, it := range b.Items {
		out[it.Status]++
	}
	return out
}

// Published returns the items that were migrated.
func (b BatchResult) Published() []ItemResult {
	var out []ItemResult
	for _, it := range b.Items {
		if it.Status == manifest.StatusMigrated {
			out = append(out, it)
		}
	}
	return out
}

// ActionStatus is the terminal state of a Content Action.
type ActionStatus string

const (
	ActionSuccess   ActionStatus = "success"
	ActionFailed    ActionStatus = "failed"
	ActionCancelled ActionStatus = "cancelled"
)

// MetricLabel maps the status onto the metrics result label.
func (s ActionStatus) MetricLabel() metrics.ResultLabel {
	switch s {
	case ActionFailed:
		return metrics.ResultFailed
	case ActionCancelled:
		return metrics.ResultCanceled
	default:
		return metrics.ResultSuccess
	}
}

// ActionResult is the outcome of one content type's action.
type ActionResult struct {
	Type   content.Type
	Status ActionStatus
	Counts map[manifest.Status]int

	// AlreadyMigrated counts items left untouched because a prior run migrated them.
	AlreadyMigrated int
	// Held counts cancelled entries left alone because cancelled items are not retried.
	Held int

	Batches  []BatchResult
	Errors   []error
	Started  time.Time
	Duration time.Duration
}

// Succeeded reports whether the action succeeded.
func (r ActionResult) Succeeded() bool { return r.Status == ActionSuccess }

// Fail marks the result failed and attaches err when non-nil.
func (r ActionResult) Fail(err error) ActionResult {
	if r.Status != ActionCancelled {
		r.Status = ActionFailed
	}
	if err != nil {
		r = r.withError(err)
	}
	return r
}

// ItemErrors returns every item-level error of the action.
func (r ActionResult) ItemErrors() []error {
	var out []error
	for _, b := range r.Batches {
		for _, it := range b.Items {
			out = append(out, it.Errors...)
		}
	}
	return out
}

func (r ActionResult) withError(err error) ActionResult {
	r.Errors = append(append([]error(nil), r.Errors...), err)
	return r
}

// CancelledResult reports an action that never started because the run was
// cancelled.
func CancelledResult(ct content.Type) ActionResult {
	return ActionResult{
		Type:    ct,
		Status:  ActionCancelled,
		Counts:  map[manifest.Status]int{},
		Started: time.Now(),
	}
}

// exceeds reports whether any of errs reaches the action-fatal severity.
func exceeds(threshold merrors.ErrorSeverity, errs []error) bool {
	for _, err := range errs {
		for _, e := range merrors.Flatten(err) {
			if merrors.SeverityOf(e).AtLeast(threshold) {
				return true
			}
		}
	}
	return false
}
