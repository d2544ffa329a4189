package pipeline

import (
	"time"

	"git.home.luguber.info/inful/contentmigrator/internal/content"
	"git.home.luguber.info/inful/contentmigrator/internal/metrics"
	"git.home.luguber.info/inful/contentmigrator/internal/migration"
)

// RunStatus is the overall outcome of a run.
type RunStatus string

const (
	RunSuccess   RunStatus = "success"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Exit codes returned by RunResult.ExitCode.
const (
	ExitSuccess   = 0
	ExitFailed    = 1
	ExitCancelled = 130
)

// RunResult aggregates the results of every action executed in a run.
type RunResult struct {
	RunID      string
	ManifestID string
	Status     RunStatus
	Actions    []migration.ActionResult
	// Errors holds run-level and action-level errors. Item errors live in the
	// manifest and are reachable through AllErrors.
	Errors   []error
	Started  time.Time
	Duration time.Duration
}

// ExitCode maps the run status onto a process exit status.
func (r RunResult) ExitCode() int {
	switch r.Status {
	case RunSuccess:
		return ExitSuccess
	case RunCancelled:
		return ExitCancelled
	default:
		return ExitFailed
	}
}

// Succeeded reports whether the run succeeded.
func (r RunResult) Succeeded() bool { return r.Status == RunSuccess }

// Action returns the result of ct's action.
func (r RunResult) Action(ct content.Type) (migration.ActionResult, bool) {
	for _, a := range r.Actions {
		if a.Type == ct {
			return a, true
		}
	}
	return migration.ActionResult{}, false
}

// FailedActions returns the content types whose action failed.
func (r RunResult) FailedActions() []content.Type {
	var out []content.Type
	for _, a := range r.Actions {
		if a.Status == migration.ActionFailed {
			out = append(out, a.Type)
		}
	}
	return out
}

// AllErrors returns run, action and item errors.
func (r RunResult) AllErrors() []error {
	out := append([]error(nil), r.Errors...)
	for _, a := range r.Actions {
		out = append(out, a.ItemErrors()...)
	}
	return out
}

func (s RunStatus) metricLabel() metrics.ResultLabel {
	switch s {
	case RunFailed:
		return metrics.ResultFailed
	case RunCancelled:
		return metrics.ResultCanceled
	default:
		return metrics.ResultSuccess
	}
}

// RunCompletion is the context of migration-completed hooks.
type RunCompletion struct {
	Run    *migration.RunState
	Result RunResult
}
