// Package hooks implements the generic chain-of-responsibility engine that runs
// every extension point of a migration (filters, mappings, transformers,
// post-publish and completion notifications).
//
// A hook receives the current context value and returns either nil (leave the
// context unchanged), a replacement value, or an error. The engine threads the
// value through the registered hooks in order, recovers panics, observes
// cancellation between hooks and aggregates failures according to a policy.
package hooks

import (
	"context"
)

// Point names an extension point.
type Point string

const (
	PointInitializeMigration Point = "initialize-migration"
	PointFilter              Point = "filter"
	PointMapping             Point = "mapping"
	PointTransform           Point = "transform"
	PointPostPublish         Point = "post-publish"
	PointBulkPostPublish     Point = "bulk-post-publish"
	PointBatchCompleted      Point = "batch-completed"
	PointActionCompleted     Point = "action-completed"
	PointMigrationCompleted  Point = "migration-completed"
)

// Hook is a unit of behaviour registered at an extension point.
// Returning (nil, nil) forwards the input unchanged.
type Hook[T any] interface {
	Execute(ctx context.Context, in T) (*T, error)
}

// HookFunc adapts a function to the Hook interface.
type HookFunc[T any] func(ctx context.Context, in T) (*T, error)

// Execute implements Hook.
func (f HookFunc[T]) Execute(ctx context.Context, in T) (*T, error) { return f(ctx, in) }

// Sync adapts a plain synchronous computation into a Hook. The result always
// replaces the input.
func Sync[T any](fn func(T) (T, error)) Hook[T] {
	return HookFunc[T](func(_ context.Context, in T) (*T, error) {
		out, err := fn(in)
		if err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// Observe adapts a side-effect-only function; the context is never changed.
func Observe[T any](fn func(ctx context.Context, in T) error) Hook[T] {
	return HookFunc[T](func(ctx context.Context, in T) (*T, error) {
		return nil, fn(ctx, in)
	})
}

// ErrorRecorder is implemented by context types able to carry failures. The
// engine calls WithError for every hook failure, and for the cancellation
// that ends a chain early, and continues with the result.
type ErrorRecorder[T any] interface {
	WithError(err error) T
}

// FailurePolicy decides what the engine does after a hook fails.
type FailurePolicy int

const (
	// StopOnFailure ends the chain at the first failing hook.
	StopOnFailure FailurePolicy = iota
	// ContinueOnFailure runs the remaining hooks and aggregates failures.
	ContinueOnFailure
)

func (p FailurePolicy) String() string {
	if p == ContinueOnFailure {
		return "continue"
	}
	return "stop"
}

// DefaultPolicy returns the failure policy used for an extension point:
// data-shaping chains stop, completion and notification chains continue.
func DefaultPolicy(point Point) FailurePolicy {
	switch point {
	case PointPostPublish, PointBulkPostPublish, PointBatchCompleted, PointActionCompleted, PointMigrationCompleted:
		return ContinueOnFailure
	default:
		return StopOnFailure
	}
}
