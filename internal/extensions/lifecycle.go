package extensions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
	"git.home.luguber.info/inful/contentmigrator/internal/hooks"
	"git.home.luguber.info/inful/contentmigrator/internal/logfields"
	"git.home.luguber.info/inful/contentmigrator/internal/manifest"
	"git.home.luguber.info/inful/contentmigrator/internal/migration"
)

// ErrCapabilityMissing is returned when a required destination capability is
// unavailable.
var ErrCapabilityMissing = errors.New("destination capability missing")

// Preflight verifies both endpoints before any action starts. Endpoints that
// do not implement migration.Preflighter are skipped.
func Preflight() hooks.Hook[*migration.RunState] {
	return hooks.Observe(func(ctx context.Context, run *migration.RunState) error {
		var errs []error
		if p, ok := run.Source.(migration.Preflighter); ok {
			if err := p.Preflight(ctx); err != nil {
				errs = append(errs, fmt.Errorf("source preflight: %w", err))
			}
		}
		if p, ok := run.Destination.(migration.Preflighter); ok {
			if err := p.Preflight(ctx); err != nil {
				errs = append(errs, fmt.Errorf("destination preflight: %w", err))
			}
		}
		return errors.Join(errs...)
	})
}

// CheckCapability asks the destination whether it supports name and records
// the answer on the run state. It never fails the run; a destination that
// cannot report capabilities is recorded as lacking the capability.
func CheckCapability(name string) hooks.Hook[*migration.RunState] {
	return hooks.Observe(func(ctx context.Context, run *migration.RunState) error {
		checker, ok := run.Destination.(migration.CapabilityChecker)
		if !ok {
			run.SetCapability(name, false)
			return nil
		}
		available, err := checker.HasCapability(ctx, name)
		if err != nil {
			return merrors.InitializationFailed(fmt.Errorf("capability %q: %w", name, err))
		}
		run.SetCapability(name, available)
		slog.DebugContext(ctx, "Destination capability checked",
			logfields.RunID(run.ID), slog.String("capability", name), slog.Bool("available", available))
		return nil
	})
}

// VerifyCapability fails the action when a capability recorded by
// CheckCapability is unavailable. Unchecked capabilities are left alone.
func VerifyCapability(name string) hooks.Hook[migration.ActionCompletion] {
	return hooks.HookFunc[migration.ActionCompletion](func(_ context.Context, in migration.ActionCompletion) (*migration.ActionCompletion, error) {
		available, checked := in.Run.Capability(name)
		if !checked || available {
			return nil, nil
		}
		in.Result = in.Result.Fail(fmt.Errorf("%w: %s", ErrCapabilityMissing, name))
		return &in, nil
	})
}

// LogBatch logs a summary line for every completed batch.
func LogBatch(logger *slog.Logger) hooks.Hook[migration.BatchCompletion] {
	if logger == nil {
		logger = slog.Default()
	}
	return hooks.Observe(func(ctx context.Context, in migration.BatchCompletion) error {
		counts := in.Result.Counts()
		logger.InfoContext(ctx, "Batch completed",
			logfields.RunID(in.Run.ID),
			logfields.ContentType(string(in.Result.Type)),
			logfields.Batch(in.Result.Index),
			slog.Int("migrated", counts[manifest.StatusMigrated]),
			slog.Int("failed", counts[manifest.StatusFailed]),
			slog.Int("cancelled", counts[manifest.StatusCancelled]),
			logfields.DurationMS(float64(in.Result.Duration.Milliseconds())))
		return nil
	})
}
