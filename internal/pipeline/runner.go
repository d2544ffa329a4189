// Package pipeline drives a migration: it validates and freezes the plan,
// runs the initialize hooks, executes one Content Action per content type in
// plan order and assembles the run result.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/contentmigrator/internal/config"
	"git.home.luguber.info/inful/contentmigrator/internal/content"
	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
	"git.home.luguber.info/inful/contentmigrator/internal/hooks"
	"git.home.luguber.info/inful/contentmigrator/internal/logfields"
	"git.home.luguber.info/inful/contentmigrator/internal/manifest"
	"git.home.luguber.info/inful/contentmigrator/internal/metrics"
	"git.home.luguber.info/inful/contentmigrator/internal/migration"
)

// Runner executes the actions of a Plan sequentially.
type Runner struct {
	plan     *Plan
	store    manifest.Store
	bus      *Bus
	recorder metrics.Recorder
	logger   *slog.Logger
	runID    string
}

// RunnerOption configures runner behavior.
type RunnerOption func(*Runner)

// WithStore checkpoints the manifest after every action and at the end of the run.
func WithStore(s manifest.Store) RunnerOption {
	return func(r *Runner) { r.store = s }
}

// WithBus publishes lifecycle events.
func WithBus(b *Bus) RunnerOption {
	return func(r *Runner) { r.bus = b }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec metrics.Recorder) RunnerOption {
	return func(r *Runner) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRunID fixes the run ID instead of generating one.
func WithRunID(id string) RunnerOption {
	return func(r *Runner) { r.runID = id }
}

// NewRunner creates a runner for plan.
func NewRunner(plan *Plan, opts ...RunnerOption) *Runner {
	r := &Runner{
		plan:     plan,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunMigration executes plan against m. It is the single entry point of the
// migration core.
func RunMigration(ctx context.Context, plan *Plan, m *manifest.Manifest, opts ...RunnerOption) RunResult {
	return NewRunner(plan, opts...).Run(ctx, m)
}

// Run executes every action of the plan against m and returns the aggregate
// result. Actions run strictly one after another.
func (r *Runner) Run(ctx context.Context, m *manifest.Manifest) RunResult {
	runID := r.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := r.logger.With(logfields.RunID(runID))
	m.BeginRun(runID)
	run := migration.NewRunState(runID, r.plan.source, r.plan.destination, m)
	res := RunResult{RunID: runID, ManifestID: m.ID(), Status: RunSuccess, Started: run.Started}
	types := r.plan.ContentTypes()

	logger.Info("Migration started",
		slog.String("manifest_id", m.ID()),
		slog.Any("content_types", types))
	r.publish(ctx, logger, RunStarted{RunID: runID, ManifestID: m.ID(), ContentTypes: types, At: time.Now()})

	if err := r.initialize(ctx, run); err != nil {
		res.Errors = append(res.Errors, err)
		if merrors.IsCategory(err, merrors.CategoryCanceled) {
			res.Status = RunCancelled
			for _, ct := range types {
				res.Actions = append(res.Actions, migration.CancelledResult(ct))
			}
		} else {
			res.Status = RunFailed
			m.AddError(manifest.RecordsFromError(err)...)
			logger.Error("Migration initialization failed", logfields.Error(err))
		}
		return r.finish(ctx, logger, run, res)
	}

	cancelled := false
	for i, ct := range types {
		if ctx.Err() != nil {
			cancelled = true
			for _, rest := range types[i:] {
				res.Actions = append(res.Actions, migration.CancelledResult(rest))
			}
			break
		}

		result := r.runAction(ctx, logger, run, ct)
		res.Actions = append(res.Actions, result)
		res.Errors = append(res.Errors, result.Errors...)
		if result.Status == migration.ActionCancelled {
			cancelled = true
		}

		if err := r.checkpoint(ctx, m); err != nil {
			res.Errors = append(res.Errors, err)
			logger.Error("Manifest checkpoint failed", logfields.ContentType(string(ct)), logfields.Error(err))
		}

		if result.Status == migration.ActionFailed && r.plan.failurePolicy == config.FailurePolicyHalt {
			logger.Warn("Halting migration after failed action", logfields.ContentType(string(ct)))
			break
		}
	}

	// a cancel arriving after the last action finished does not change the outcome
	switch {
	case cancelled:
		res.Status = RunCancelled
	case len(res.FailedActions()) > 0:
		res.Status = RunFailed
	}
	return r.finish(ctx, logger, run, res)
}

// initialize runs the initialize-migration chain once. Any failure is fatal
// to the run.
func (r *Runner) initialize(ctx context.Context, run *migration.RunState) error {
	pipe := hooks.Build[*migration.RunState](r.plan.registry, hooks.PointInitializeMigration, hooks.AllTypes, hooks.WithLogger(r.logger))
	if _, err := pipe.Execute(ctx, run); err != nil {
		if merrors.IsCategory(err, merrors.CategoryCanceled) {
			return err
		}
		return merrors.InitializationFailed(err)
	}
	return nil
}

func (r *Runner) runAction(ctx context.Context, logger *slog.Logger, run *migration.RunState, ct content.Type) migration.ActionResult {
	r.publish(ctx, logger, ActionStarted{RunID: run.ID, ContentType: ct, At: time.Now()})

	action := migration.NewAction(r.plan.actionConfig(ct), r.plan.registry, r.plan.source, r.plan.destination, run.Manifest,
		migration.WithRetryPolicy(r.plan.retry),
		migration.WithRecorder(r.recorder),
		migration.WithLogger(logger),
		migration.WithBatchListener(func(ctx context.Context, b migration.BatchResult) {
			r.publish(ctx, logger, newBatchCompleted(run.ID, b))
		}))
	result := action.Execute(ctx, run)

	completed := hooks.Build[migration.ActionCompletion](r.plan.registry, hooks.PointActionCompleted, ct, hooks.WithLogger(logger))
	amended, err := completed.Execute(ctx, migration.ActionCompletion{Run: run, Result: result})
	if err != nil && !merrors.IsCategory(err, merrors.CategoryCanceled) {
		run.Manifest.AddError(manifest.RecordsFromError(err)...)
	}
	result = amended.Result

	r.publish(ctx, logger, newActionCompleted(run.ID, result))
	return result
}

// finish runs the migration-completed chain, saves the manifest and records
// run metrics.
func (r *Runner) finish(ctx context.Context, logger *slog.Logger, run *migration.RunState, res RunResult) RunResult {
	// completion notifications are delivered even when the run was cancelled
	notifyCtx := context.WithoutCancel(ctx)

	completed := hooks.Build[RunCompletion](r.plan.registry, hooks.PointMigrationCompleted, hooks.AllTypes, hooks.WithLogger(logger))
	res.Duration = time.Since(res.Started)
	if _, err := completed.Execute(notifyCtx, RunCompletion{Run: run, Result: res}); err != nil {
		res.Errors = append(res.Errors, err)
		run.Manifest.AddError(manifest.RecordsFromError(err)...)
	}

	if err := r.checkpoint(notifyCtx, run.Manifest); err != nil {
		res.Errors = append(res.Errors, err)
		if res.Status == RunSuccess {
			res.Status = RunFailed
		}
		logger.Error("Final manifest save failed", logfields.Error(err))
	}

	res.Duration = time.Since(res.Started)
	r.recorder.ObserveRunDuration(res.Duration)
	r.recorder.IncRunOutcome(res.Status.metricLabel())

	r.publish(notifyCtx, logger, RunCompleted{
		RunID:      res.RunID,
		Status:     res.Status,
		ExitCode:   res.ExitCode(),
		Errors:     errorStrings(res.Errors),
		DurationMS: res.Duration.Milliseconds(),
	})
	logger.Info("Migration finished",
		logfields.Status(string(res.Status)),
		slog.Int("actions", len(res.Actions)),
		slog.Int("errors", len(res.Errors)),
		logfields.DurationMS(float64(res.Duration.Milliseconds())))
	return res
}

func (r *Runner) checkpoint(ctx context.Context, m *manifest.Manifest) error {
	if r.store == nil {
		return nil
	}
	return r.store.Save(ctx, m)
}

func (r *Runner) publish(ctx context.Context, logger *slog.Logger, e Event) {
	if err := r.bus.Publish(ctx, e); err != nil {
		logger.Warn("Event delivery failed", slog.String("event", e.Name()), logfields.Error(err))
	}
}
