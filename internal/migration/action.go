package migration

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/contentmigrator/internal/content"
	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
	"git.home.luguber.info/inful/contentmigrator/internal/hooks"
	"git.home.luguber.info/inful/contentmigrator/internal/logfields"
	"git.home.luguber.info/inful/contentmigrator/internal/manifest"
	"git.home.luguber.info/inful/contentmigrator/internal/metrics"
	"git.home.luguber.info/inful/contentmigrator/internal/retry"
)

// ActionConfig holds the run configuration an action needs.
type ActionConfig struct {
	Type          content.Type
	BatchSize     int
	Parallelism   int
	PageSize      int
	Resume        manifest.ResumePolicy
	FatalSeverity merrors.ErrorSeverity
}

func (c ActionConfig) withDefaults() ActionConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 1
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.FatalSeverity == "" {
		c.FatalSeverity = merrors.SeverityFatal
	}
	return c
}

// Action migrates every item of one content type.
type Action struct {
	cfg      ActionConfig
	registry *hooks.Registry
	source   Source
	dest     Destination
	manifest *manifest.Manifest
	retry    retry.Policy
	recorder metrics.Recorder
	logger   *slog.Logger
	onBatch  func(context.Context, BatchResult)
}

// ActionOption configures an Action.
type ActionOption func(*Action)

// WithRetryPolicy sets the policy for enumeration and publish retries.
func WithRetryPolicy(p retry.Policy) ActionOption {
	return func(a *Action) { a.retry = p }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) ActionOption {
	return func(a *Action) {
		if r != nil {
			a.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ActionOption {
	return func(a *Action) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithBatchListener registers fn to observe every completed batch.
func WithBatchListener(fn func(context.Context, BatchResult)) ActionOption {
	return func(a *Action) { a.onBatch = fn }
}

// NewAction creates the action for cfg.Type.
func NewAction(cfg ActionConfig, registry *hooks.Registry, src Source, dst Destination, m *manifest.Manifest, opts ...ActionOption) *Action {
	a := &Action{
		cfg:      cfg.withDefaults(),
		registry: registry,
		source:   src,
		dest:     dst,
		manifest: m,
		retry:    retry.DefaultPolicy(),
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logfields.ContentType(string(cfg.Type)))
	return a
}

// Type returns the content type the action migrates.
func (a *Action) Type() content.Type { return a.cfg.Type }

// Execute runs the action to completion. It never panics on hook failures and
// always returns a result; every visited item ends in a terminal status.
func (a *Action) Execute(ctx context.Context, run *RunState) ActionResult {
	ct := a.cfg.Type
	res := ActionResult{Type: ct, Status: ActionSuccess, Counts: map[manifest.Status]int{}, Started: time.Now()}
	fatal := false

	defer func() {
		res.Duration = time.Since(res.Started)
		a.recorder.ObserveActionDuration(string(ct), res.Duration)
		a.recorder.IncActionResult(string(ct), res.Status.MetricLabel())
	}()

	a.logger.Info("Action started", logfields.RunID(run.ID))

	items, err := a.enumerate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			res.Status = ActionCancelled
			res.Errors = append(res.Errors, merrors.Canceled(ctx.Err()))
			return res
		}
		res.Errors = append(res.Errors, err)
		res.Status = ActionFailed
		a.manifest.AddError(manifest.RecordsFromError(err)...)
		a.logger.Error("Enumeration failed", logfields.Error(err))
		return res
	}
	a.logger.Info("Items enumerated", logfields.Count(len(items)))

	kept, skipped, err := a.filter(ctx, run, items)
	if err != nil {
		if ctx.Err() != nil {
			a.cancelAll(ctx, items, &res)
			res.Status = ActionCancelled
			return res
		}
		res.Errors = append(res.Errors, err)
		res.Status = ActionFailed
		a.manifest.AddError(manifest.RecordsFromError(err)...)
		a.logger.Error("Filtering failed", logfields.Error(err))
		return res
	}

	for _, it := range skipped {
		entry, decision, err := a.manifest.Claim(ct, it.Reference, a.cfg.Resume)
		if err != nil {
			res.Errors = append(res.Errors, merrors.InternalError("claim skipped item", err))
			fatal = true
			continue
		}
		if decision != manifest.DecisionProcess {
			a.countUntouched(decision, &res)
			continue
		}
		a.transition(entry, entry.MarkSkipped())
		res.Counts[manifest.StatusSkipped]++
		a.recorder.IncItemResult(string(ct), string(manifest.StatusSkipped))
	}

	var work []workItem
	for _, it := range kept {
		entry, decision, err := a.manifest.Claim(ct, it.Reference, a.cfg.Resume)
		if err != nil {
			res.Errors = append(res.Errors, merrors.InternalError("claim item", err))
			fatal = true
			continue
		}
		if decision != manifest.DecisionProcess {
			a.countUntouched(decision, &res)
			continue
		}
		work = append(work, workItem{item: it, entry: entry, previousID: entry.Snapshot().DestinationID})
	}

	for start, index := 0, 0; start < len(work); start, index = start+a.cfg.BatchSize, index+1 {
		end := min(start+a.cfg.BatchSize, len(work))
		if ctx.Err() != nil {
			for _, w := range work[start:] {
				a.cancelItem(ctx, w.entry)
				res.Counts[manifest.StatusCancelled]++
			}
			break
		}
		batch := a.processBatch(ctx, run, index, work[start:end])
		res.Batches = append(res.Batches, batch)
		if a.onBatch != nil {
			a.onBatch(ctx, batch)
		}
		for status, n := range batch.Counts() {
			res.Counts[status] += n
		}
		res.Errors = append(res.Errors, batch.Errors...)
	}

	switch {
	case ctx.Err() != nil:
		res.Status = ActionCancelled
	case fatal, exceeds(a.cfg.FatalSeverity, res.Errors), exceeds(a.cfg.FatalSeverity, res.ItemErrors()):
		res.Status = ActionFailed
	}

	a.logger.Info("Action finished",
		logfields.Status(string(res.Status)),
		slog.Int("migrated", res.Counts[manifest.StatusMigrated]),
		slog.Int("failed", res.Counts[manifest.StatusFailed]),
		slog.Int("skipped", res.Counts[manifest.StatusSkipped]),
		slog.Int("cancelled", res.Counts[manifest.StatusCancelled]),
		slog.Int("already_migrated", res.AlreadyMigrated))
	return res
}

// enumerate pages through the source, retrying retryable failures.
// Duplicate IDs keep their first occurrence.
func (a *Action) enumerate(ctx context.Context) ([]content.Item, error) {
	var (
		items []content.Item
		seen  = make(map[string]bool)
		page  = Page{Size: a.cfg.PageSize}
	)
	for {
		var got ItemPage
		err := a.retry.Do(ctx, func(ctx context.Context) error {
			var err error
			got, err = a.source.ListItems(ctx, a.cfg.Type, page)
			return err
		}, func(attempt int, err error) {
			a.logger.Warn("Retrying enumeration", logfields.Attempt(attempt), logfields.Error(err))
		})
		if err != nil {
			return nil, merrors.EnumerationFailed(string(a.cfg.Type), err)
		}
		for _, it := range got.Items {
			if it.Reference.ID == "" || seen[it.Reference.ID] {
				continue
			}
			seen[it.Reference.ID] = true
			items = append(items, it)
		}
		if !got.HasMore {
			return items, nil
		}
		page.Token = got.Next
	}
}

// filter runs the filter chain once over the whole collection. The chain's
// output is intersected with its input so filters can only remove items.
func (a *Action) filter(ctx context.Context, run *RunState, items []content.Item) (kept, skipped []content.Item, err error) {
	pipe := hooks.Build[FilterSet](a.registry, hooks.PointFilter, a.cfg.Type, hooks.WithLogger(a.logger))
	out, err := pipe.Execute(ctx, FilterSet{Type: a.cfg.Type, Run: run, Items: items})
	if err != nil {
		if merrors.IsCategory(err, merrors.CategoryCanceled) {
			return nil, nil, err
		}
		return nil, nil, merrors.FilterFailed(string(a.cfg.Type), err)
	}

	survivors := make(map[string]bool, len(out.Items))
	for _, it := range out.Items {
		survivors[it.Reference.ID] = true
	}
	for _, it := range items {
		if survivors[it.Reference.ID] {
			kept = append(kept, it)
		} else {
			skipped = append(skipped, it)
		}
	}
	return kept, skipped, nil
}

// cancelAll claims and cancels items that were enumerated but never reached
// the batch stage.
func (a *Action) cancelAll(ctx context.Context, items []content.Item, res *ActionResult) {
	for _, it := range items {
		entry, decision, err := a.manifest.Claim(a.cfg.Type, it.Reference, a.cfg.Resume)
		if err != nil {
			continue
		}
		if decision != manifest.DecisionProcess {
			a.countUntouched(decision, res)
			continue
		}
		a.cancelItem(ctx, entry)
		res.Counts[manifest.StatusCancelled]++
	}
}

func (a *Action) cancelItem(ctx context.Context, entry *manifest.Entry) {
	a.transition(entry, entry.MarkCancelled(manifest.RecordFromError(merrors.Canceled(context.Cause(ctx)))))
	a.recorder.IncItemResult(string(a.cfg.Type), string(manifest.StatusCancelled))
}

func (a *Action) countUntouched(d manifest.Decision, res *ActionResult) {
	switch d {
	case manifest.DecisionAlreadyMigrated:
		res.AlreadyMigrated++
	case manifest.DecisionHold:
		res.Held++
	}
}

// transition logs manifest transition errors. They indicate a bookkeeping bug
// rather than an item failure.
func (a *Action) transition(entry *manifest.Entry, err error) {
	if err != nil {
		a.logger.Error("Manifest transition rejected",
			logfields.SourceID(entry.Source().ID),
			logfields.Error(err))
	}
}
