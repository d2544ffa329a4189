package hooks

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
	"git.home.luguber.info/inful/contentmigrator/internal/logfields"
)

// Pipeline executes an ordered list of hooks for one extension point.
// A Pipeline is immutable and safe for concurrent use.
type Pipeline[T any] struct {
	point  Point
	hooks  []Hook[T]
	policy FailurePolicy
	logger *slog.Logger
}

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	policy *FailurePolicy
	logger *slog.Logger
}

// WithPolicy overrides the point's default failure policy.
func WithPolicy(p FailurePolicy) Option {
	return func(o *options) { o.policy = &p }
}

// WithLogger sets the logger used for hook failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a pipeline for point running hooks in the given order.
func New[T any](point Point, hooks []Hook[T], opts ...Option) *Pipeline[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	p := &Pipeline[T]{
		point:  point,
		hooks:  append([]Hook[T](nil), hooks...),
		policy: DefaultPolicy(point),
		logger: slog.Default(),
	}
	if o.policy != nil {
		p.policy = *o.policy
	}
	if o.logger != nil {
		p.logger = o.logger
	}
	return p
}

// Point returns the extension point this pipeline serves.
func (p *Pipeline[T]) Point() Point { return p.point }

// Len returns the number of hooks.
func (p *Pipeline[T]) Len() int { return len(p.hooks) }

// Execute threads in through every hook. The returned value is the last
// successfully produced context (with failures recorded on it when T
// implements ErrorRecorder). The error joins every hook failure; when ctx is
// cancelled between hooks it also carries a canceled MigrationError, which is
// recorded on the context as well.
func (p *Pipeline[T]) Execute(ctx context.Context, in T) (T, error) {
	cur := in
	var errs []error
	for i, h := range p.hooks {
		if err := ctx.Err(); err != nil {
			cancelErr := merrors.Canceled(err).WithContext("point", string(p.point))
			errs = append(errs, cancelErr)
			if rec, ok := any(cur).(ErrorRecorder[T]); ok {
				cur = rec.WithError(cancelErr)
			}
			return cur, stdErrors.Join(errs...)
		}

		out, err := p.invoke(ctx, i, h, cur)
		if err != nil {
			p.logger.Warn("Hook failed",
				logfields.HookPoint(string(p.point)),
				slog.Int("hook", i),
				logfields.Error(err))
			errs = append(errs, err)
			if rec, ok := any(cur).(ErrorRecorder[T]); ok {
				cur = rec.WithError(err)
			}
			if p.policy == StopOnFailure {
				return cur, stdErrors.Join(errs...)
			}
			continue
		}
		if out != nil {
			cur = *out
		}
	}
	return cur, stdErrors.Join(errs...)
}

// invoke calls one hook, converting panics into hook failures.
func (p *Pipeline[T]) invoke(ctx context.Context, index int, h Hook[T], in T) (out *T, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Hook panicked",
				logfields.HookPoint(string(p.point)),
				slog.Int("hook", index),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			out = nil
			err = merrors.HookPanicked(string(p.point), index, fmt.Sprint(r))
		}
	}()

	out, err = h.Execute(ctx, in)
	if err != nil {
		if _, classified := merrors.As(err); !classified {
			err = merrors.HookFailed(string(p.point), index, err)
		}
		return nil, err
	}
	return out, nil
}
