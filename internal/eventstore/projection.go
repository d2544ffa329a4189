// Package eventstore persists migration run lifecycle events and rebuilds
// read models (run history) from them.
package eventstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

const runStatusRunning = "running"

// Event type names written by the pipeline bus.
const (
	TypeRunStarted      = "RunStarted"
	TypeActionStarted   = "ActionStarted"
	TypeBatchCompleted  = "BatchCompleted"
	TypeActionCompleted = "ActionCompleted"
	TypeRunCompleted    = "RunCompleted"
)

// ActionSummary is the outcome of one content type within a run.
type ActionSummary struct {
	ContentType     string         `json:"content_type"`
	Status          string         `json:"status"`
	Counts          map[string]int `json:"counts,omitempty"`
	AlreadyMigrated int            `json:"already_migrated"`
	Batches         int            `json:"batches"`
	Errors          []string       `json:"errors,omitempty"`
}

// RunSummary is a read model of a completed or in-progress run.
type RunSummary struct {
	RunID        string           `json:"run_id"`
	ManifestID   string           `json:"manifest_id,omitempty"`
	Status       string           `json:"status"`
	ExitCode     int              `json:"exit_code"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	Duration     time.Duration    `json:"duration,omitempty"`
	ContentTypes []string         `json:"content_types,omitempty"`
	Actions      []*ActionSummary `json:"actions,omitempty"`
	Errors       []string         `json:"errors,omitempty"`
}

func (s *RunSummary) action(ct string) *ActionSummary {
	for _, a := range s.Actions {
		if a.ContentType == ct {
			return a
		}
	}
	a := &ActionSummary{ContentType: ct, Status: runStatusRunning}
	s.Actions = append(s.Actions, a)
	return a
}

func (s *RunSummary) clone() *RunSummary {
	cp := *s
	cp.Actions = make([]*ActionSummary, len(s.Actions))
	for i, a := range s.Actions {
		ac := *a
		cp.Actions[i] = &ac
	}
	return &cp
}

// RunHistoryProjection maintains an in-memory view of run history,
// reconstructed from events stored in the event store.
type RunHistoryProjection struct {
	mu       sync.RWMutex
	store    Store
	runs     map[string]*RunSummary
	history  []*RunSummary // completed runs, newest first
	maxSize  int
	lastSync time.Time
}

// NewRunHistoryProjection creates a projection backed by store.
func NewRunHistoryProjection(store Store, maxHistorySize int) *RunHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	return &RunHistoryProjection{
		store:   store,
		runs:    make(map[string]*RunSummary),
		history: make([]*RunSummary, 0, maxHistorySize),
		maxSize: maxHistorySize,
	}
}

// Rebuild reconstructs the projection from all stored events.
func (p *RunHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.runs = make(map[string]*RunSummary)
	p.history = make([]*RunSummary, 0, p.maxSize)
	for _, event := range events {
		p.applyEventLocked(event)
	}

	sort.SliceStable(p.history, func(i, j int) bool {
		return p.history[i].StartedAt.After(p.history[j].StartedAt)
	})
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	p.pruneRunsLocked()

	p.lastSync = time.Now()
	return nil
}

// Apply processes a single event.
func (p *RunHistoryProjection) Apply(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyEventLocked(event)
}

func (p *RunHistoryProjection) applyEventLocked(event Event) {
	runID := event.RunID()
	if runID == "" {
		return
	}

	summary, exists := p.runs[runID]
	if !exists {
		summary = &RunSummary{RunID: runID, Status: runStatusRunning, StartedAt: event.Timestamp()}
		p.runs[runID] = summary
	}

	switch event.Type() {
	case TypeRunStarted:
		summary.StartedAt = event.Timestamp()
		var payload struct {
			ManifestID   string   `json:"manifest_id"`
			ContentTypes []string `json:"content_types"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			summary.ManifestID = payload.ManifestID
			summary.ContentTypes = payload.ContentTypes
		}

	case TypeActionStarted:
		var payload struct {
			ContentType string `json:"content_type"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			summary.action(payload.ContentType)
		}

	case TypeBatchCompleted:
		var payload struct {
			ContentType string `json:"content_type"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			summary.action(payload.ContentType).Batches++
		}

	case TypeActionCompleted:
		var payload ActionSummary
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			a := summary.action(payload.ContentType)
			a.Status = payload.Status
			a.Counts = payload.Counts
			a.AlreadyMigrated = payload.AlreadyMigrated
			a.Errors = payload.Errors
		}

	case TypeRunCompleted:
		now := event.Timestamp()
		summary.CompletedAt = &now
		summary.Duration = now.Sub(summary.StartedAt)
		var payload struct {
			Status   string   `json:"status"`
			ExitCode int      `json:"exit_code"`
			Errors   []string `json:"errors"`
		}
		if err := json.Unmarshal(event.Payload(), &payload); err == nil {
			summary.Status = payload.Status
			summary.ExitCode = payload.ExitCode
			summary.Errors = payload.Errors
		}
		p.addToHistoryLocked(summary)
	}
}

func (p *RunHistoryProjection) addToHistoryLocked(summary *RunSummary) {
	for _, h := range p.history {
		if h.RunID == summary.RunID {
			return
		}
	}
	p.history = append([]*RunSummary{summary}, p.history...)
	if len(p.history) > p.maxSize {
		p.history = p.history[:p.maxSize]
	}
	p.pruneRunsLocked()
}

// pruneRunsLocked drops completed runs that fell out of the bounded history.
func (p *RunHistoryProjection) pruneRunsLocked() {
	keep := make(map[string]struct{}, len(p.history))
	for _, h := range p.history {
		keep[h.RunID] = struct{}{}
	}
	for id, summary := range p.runs {
		if summary.Status == runStatusRunning {
			continue
		}
		if _, ok := keep[id]; !ok {
			delete(p.runs, id)
		}
	}
}

// GetHistory returns completed runs, newest first.
func (p *RunHistoryProjection) GetHistory() []*RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*RunSummary, len(p.history))
	for i, h := range p.history {
		out[i] = h.clone()
	}
	return out
}

// GetRun returns the summary of one run.
func (p *RunHistoryProjection) GetRun(runID string) (*RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	summary, ok := p.runs[runID]
	if !ok {
		return nil, false
	}
	return summary.clone(), true
}

// GetActiveRun returns a run that has started but not completed, if any.
func (p *RunHistoryProjection) GetActiveRun() *RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, summary := range p.runs {
		if summary.Status == runStatusRunning {
			return summary.clone()
		}
	}
	return nil
}

// GetLastCompletedRun returns the most recent completed run.
func (p *RunHistoryProjection) GetLastCompletedRun() *RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.history) == 0 {
		return nil
	}
	return p.history[0].clone()
}

// LastSyncTime returns when the projection was last rebuilt.
func (p *RunHistoryProjection) LastSyncTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}
