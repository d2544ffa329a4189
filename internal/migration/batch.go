package migration

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/contentmigrator/internal/content"
	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
	"git.home.luguber.info/inful/contentmigrator/internal/hooks"
	"git.home.luguber.info/inful/contentmigrator/internal/logfields"
	"git.home.luguber.info/inful/contentmigrator/internal/manifest"
)

type workItem struct {
	item       content.Item
	entry      *manifest.Entry
	previousID string
}

// itemChains are the per-item pipelines of one batch, resolved once.
type itemChains struct {
	mapping   *hooks.Pipeline[MigrationItem]
	transform *hooks.Pipeline[TransformItem]
}

// processBatch runs the items of one batch with bounded parallelism, then the
// batch's post-publish, bulk post-publish and batch-completed chains. All items
// are terminal in the manifest before any of those chains runs.
func (a *Action) processBatch(ctx context.Context, run *RunState, index int, work []workItem) BatchResult {
	ct := a.cfg.Type
	started := time.Now()
	logger := a.logger.With(logfields.Batch(index))
	logger.Debug("Batch started", logfields.Count(len(work)))

	chains := itemChains{
		mapping:   hooks.Build[MigrationItem](a.registry, hooks.PointMapping, ct, hooks.WithLogger(logger)),
		transform: hooks.Build[TransformItem](a.registry, hooks.PointTransform, ct, hooks.WithLogger(logger)),
	}

	results := make([]ItemResult, len(work))
	var g errgroup.Group
	g.SetLimit(a.cfg.Parallelism)
	for i := range work {
		w := work[i]
		g.Go(func() error {
			results[i] = a.processItem(ctx, run, chains, w)
			return nil
		})
	}
	_ = g.Wait()

	batch := BatchResult{Type: ct, Index: index, Items: results}
	a.postPublish(ctx, run, logger, work, &batch)

	batch.Duration = time.Since(started)
	a.recorder.ObserveBatchDuration(string(ct), batch.Duration)

	completion := hooks.Build[BatchCompletion](a.registry, hooks.PointBatchCompleted, ct, hooks.WithLogger(logger))
	if _, err := completion.Execute(ctx, BatchCompletion{Run: run, Result: batch}); err != nil {
		batch.Errors = append(batch.Errors, err)
		a.manifest.AddError(manifest.RecordsFromError(err)...)
	}

	logger.Debug("Batch finished", logfields.DurationMS(float64(batch.Duration.Milliseconds())))
	return batch
}

// postPublish runs per-item hooks for every migrated item and the bulk hooks
// once for the batch. Per-item failures are appended to the entry without
// changing its status.
func (a *Action) postPublish(ctx context.Context, run *RunState, logger *slog.Logger, work []workItem, batch *BatchResult) {
	ct := a.cfg.Type
	perItem := hooks.Build[PublishedItem](a.registry, hooks.PointPostPublish, ct, hooks.WithLogger(logger))
	bulk := hooks.Build[PublishedBatch](a.registry, hooks.PointBulkPostPublish, ct, hooks.WithLogger(logger))

	published := PublishedBatch{Type: ct, Run: run, Batch: batch.Index}
	for i := range batch.Items {
		r := &batch.Items[i]
		if r.Status != manifest.StatusMigrated {
			continue
		}
		p := PublishedItem{Type: ct, Run: run, Source: r.Source, Location: r.Location, DestinationID: r.DestinationID}
		published.Items = append(published.Items, p)
		if perItem.Len() == 0 {
			continue
		}
		if _, err := perItem.Execute(ctx, p); err != nil {
			r.Errors = append(r.Errors, err)
			work[i].entry.AppendErrors(manifest.RecordsFromError(err)...)
		}
	}

	if bulk.Len() == 0 || len(published.Items) == 0 {
		return
	}
	if _, err := bulk.Execute(ctx, published); err != nil {
		batch.Errors = append(batch.Errors, err)
		a.manifest.AddError(manifest.RecordsFromError(err)...)
	}
}

// processItem maps, transforms and publishes one item and records its
// terminal status.
func (a *Action) processItem(ctx context.Context, run *RunState, chains itemChains, w workItem) ItemResult {
	ct := a.cfg.Type
	started := time.Now()
	res := ItemResult{Source: w.item.Reference}
	logger := a.logger.With(logfields.SourceID(w.item.Reference.ID))

	finish := func(status manifest.Status, errs ...error) ItemResult {
		records := make([]manifest.ErrorRecord, 0, len(errs))
		for _, err := range errs {
			records = append(records, manifest.RecordsFromError(err)...)
		}
		var err error
		switch status {
		case manifest.StatusMigrated:
			err = w.entry.MarkMigrated(res.DestinationID)
		case manifest.StatusCancelled:
			err = w.entry.MarkCancelled(records...)
		default:
			err = w.entry.MarkFailed(records...)
		}
		a.transition(w.entry, err)
		res.Status = status
		res.Errors = errs
		res.Duration = time.Since(started)
		a.recorder.IncItemResult(string(ct), string(status))
		if status == manifest.StatusFailed {
			logger.Warn("Item failed", logfields.Error(errs[0]))
		}
		return res
	}
	cancelled := func(err error) bool {
		return ctx.Err() != nil || merrors.IsCategory(err, merrors.CategoryCanceled)
	}

	if err := ctx.Err(); err != nil {
		return finish(manifest.StatusCancelled, merrors.Canceled(err))
	}

	a.recorder.AddInFlight(string(ct), 1)
	defer a.recorder.AddInFlight(string(ct), -1)

	mapped, err := chains.mapping.Execute(ctx, MigrationItem{
		Type:        ct,
		Run:         run,
		Source:      w.item,
		Destination: w.item.Reference.Location,
	})
	if err != nil {
		if cancelled(err) {
			return finish(manifest.StatusCancelled, merrors.Canceled(ctx.Err()))
		}
		return finish(manifest.StatusFailed, merrors.MappingFailed(w.item.Reference.ID, err))
	}
	if err := w.entry.SetMappedLocation(mapped.Destination); err != nil {
		return finish(manifest.StatusFailed, merrors.MappingFailed(w.item.Reference.ID, err))
	}
	res.Location = mapped.Destination

	transformed, err := chains.transform.Execute(ctx, TransformItem{
		Type:        ct,
		Run:         run,
		Item:        w.item.Clone(),
		Destination: mapped.Destination,
	})
	if err != nil {
		if cancelled(err) {
			return finish(manifest.StatusCancelled, merrors.Canceled(ctx.Err()))
		}
		return finish(manifest.StatusFailed, merrors.TransformFailed(w.item.Reference.ID, err))
	}

	req := PublishRequest{
		Type:                  ct,
		Item:                  transformed.Item,
		Location:              mapped.Destination,
		PreviousDestinationID: w.previousID,
	}
	result, err := a.publish(ctx, logger, req)
	if err != nil {
		if cancelled(err) {
			return finish(manifest.StatusCancelled, merrors.Canceled(ctx.Err()))
		}
		return finish(manifest.StatusFailed, err)
	}
	if !result.Success {
		errs := make([]error, 0, len(result.Errors))
		for _, e := range result.Errors {
			if _, classified := merrors.As(e); !classified {
				e = merrors.PublishFailed(w.item.Reference.ID, e)
			}
			errs = append(errs, e)
		}
		if len(errs) == 0 {
			errs = []error{merrors.PublishRejected(w.item.Reference.ID, "destination rejected item")}
		}
		return finish(manifest.StatusFailed, errs...)
	}
	res.DestinationID = result.DestinationID
	return finish(manifest.StatusMigrated)
}

func (a *Action) publish(ctx context.Context, logger *slog.Logger, req PublishRequest) (PublishResult, error) {
	ct := string(a.cfg.Type)
	var result PublishResult
	started := time.Now()
	err := a.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = a.dest.Publish(ctx, req)
		return err
	}, func(attempt int, err error) {
		a.recorder.IncPublishRetry(ct)
		logger.Warn("Retrying publish", logfields.Attempt(attempt), logfields.Error(err))
	})
	a.recorder.ObservePublishDuration(ct, time.Since(started), err == nil && result.Success)
	if err != nil {
		if _, classified := merrors.As(err); !classified {
			err = merrors.PublishFailed(req.Item.Reference.ID, err)
		}
		return PublishResult{}, err
	}
	return result, nil
}
