// Package notify publishes batch and action completion notifications so
// external systems can follow a migration while it runs.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
	"git.home.luguber.info/inful/contentmigrator/internal/hooks"
	"git.home.luguber.info/inful/contentmigrator/internal/migration"
	"git.home.luguber.info/inful/contentmigrator/internal/pipeline"
)

// Sink is the transport notifications are sent through.
type Sink interface {
	Publish(ctx context.Context, subject string, data []byte) error
	PutStatus(ctx context.Context, key string, data []byte) error
}

// BatchMessage is published after every batch.
type BatchMessage struct {
	RunID       string         `json:"run_id"`
	ContentType string         `json:"content_type"`
	Batch       int            `json:"batch"`
	Counts      map[string]int `json:"counts"`
	Errors      []string       `json:"errors,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
	Timestamp   time.Time      `json:"timestamp"`
}

// ActionMessage is published after every action and stored as the latest
// status of its content type.
type ActionMessage struct {
	RunID           string         `json:"run_id"`
	ContentType     string         `json:"content_type"`
	Status          string         `json:"status"`
	Counts          map[string]int `json:"counts"`
	AlreadyMigrated int            `json:"already_migrated"`
	Held            int            `json:"held"`
	Errors          []string       `json:"errors,omitempty"`
	DurationMS      int64          `json:"duration_ms"`
	Timestamp       time.Time      `json:"timestamp"`
}

// RunMessage is published when a run starts and when it completes.
type RunMessage struct {
	RunID        string    `json:"run_id"`
	Event        string    `json:"event"`
	ContentTypes []string  `json:"content_types,omitempty"`
	Status       string    `json:"status,omitempty"`
	ExitCode     int       `json:"exit_code"`
	Errors       []string  `json:"errors,omitempty"`
	DurationMS   int64     `json:"duration_ms,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Notifier turns completion contexts into messages on subject.<kind>.
type Notifier struct {
	sink    Sink
	subject string
	timeout time.Duration
}

// New creates a notifier publishing below subject.
func New(sink Sink, subject string) *Notifier {
	return &Notifier{sink: sink, subject: subject, timeout: 5 * time.Second}
}

// BatchHook returns the batch-completed hook.
func (n *Notifier) BatchHook() hooks.Hook[migration.BatchCompletion] {
	return hooks.Observe(func(ctx context.Context, in migration.BatchCompletion) error {
		res := in.Result
		msg := BatchMessage{
			RunID:       in.Run.ID,
			ContentType: string(res.Type),
			Batch:       res.Index,
			Counts:      statusCounts(res.Counts()),
			Errors:      errorStrings(res.Errors),
			DurationMS:  res.Duration.Milliseconds(),
			Timestamp:   time.Now().UTC(),
		}
		_, err := n.send(ctx, n.subject+".batch", msg)
		return err
	})
}

// ActionHook returns the action-completed hook. Besides publishing, it
// records the message as the content type's latest status.
func (n *Notifier) ActionHook() hooks.Hook[migration.ActionCompletion] {
	return hooks.Observe(func(ctx context.Context, in migration.ActionCompletion) error {
		res := in.Result
		msg := ActionMessage{
			RunID:           in.Run.ID,
			ContentType:     string(res.Type),
			Status:          string(res.Status),
			Counts:          statusCounts(res.Counts),
			AlreadyMigrated: res.AlreadyMigrated,
			Held:            res.Held,
			Errors:          errorStrings(res.Errors),
			DurationMS:      res.Duration.Milliseconds(),
			Timestamp:       time.Now().UTC(),
		}
		data, err := n.send(ctx, n.subject+".action", msg)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()
		if err := n.sink.PutStatus(ctx, string(res.Type), data); err != nil {
			return merrors.Wrap(err, merrors.CategoryNotification, merrors.SeverityWarning, "failed to store action status")
		}
		return nil
	})
}

// Register adds both hooks to r for every content type.
func (n *Notifier) Register(r *hooks.Registry) error {
	if err := hooks.Register(r, hooks.PointBatchCompleted, hooks.AllTypes, n.BatchHook()); err != nil {
		return err
	}
	return hooks.Register(r, hooks.PointActionCompleted, hooks.AllTypes, n.ActionHook())
}

// RunHandler returns a bus handler publishing run start and completion on
// subject.run. Other events are ignored.
func (n *Notifier) RunHandler() pipeline.Handler {
	return func(ctx context.Context, e pipeline.Event) error {
		msg := RunMessage{RunID: e.GetRunID(), Event: e.Name(), Timestamp: time.Now().UTC()}
		switch ev := e.(type) {
		case pipeline.RunStarted:
			msg.ContentTypes = stringList(ev.ContentTypes)
		case pipeline.RunCompleted:
			msg.Status = string(ev.Status)
			msg.ExitCode = ev.ExitCode
			msg.Errors = ev.Errors
			msg.DurationMS = ev.DurationMS
		default:
			return nil
		}
		_, err := n.send(ctx, n.subject+".run", msg)
		return err
	}
}

// Subscribe attaches the run handler to b.
func (n *Notifier) Subscribe(b *pipeline.Bus) {
	b.Subscribe(pipeline.EventRunStarted, n.RunHandler())
	b.Subscribe(pipeline.EventRunCompleted, n.RunHandler())
}

func (n *Notifier) send(ctx context.Context, subject string, msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, merrors.Wrap(err, merrors.CategoryNotification, merrors.SeverityWarning, "failed to marshal notification")
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.sink.Publish(ctx, subject, data); err != nil {
		return nil, merrors.Wrap(err, merrors.CategoryNotification, merrors.SeverityWarning,
			fmt.Sprintf("failed to publish to %s", subject))
	}
	return data, nil
}

func stringList[K ~string](in []K) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func statusCounts[K ~string](in map[K]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}

func errorStrings(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}
