package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
)

type tally struct {
	Values []string
	Errs   []error
}

func (t tally) WithError(err error) tally {
	t.Errs = append(append([]error(nil), t.Errs...), err)
	return t
}

func appendHook(v string) Hook[tally] {
	return Sync(func(in tally) (tally, error) {
		in.Values = append(append([]string(nil), in.Values...), v)
		return in, nil
	})
}

func failHook(msg string) Hook[tally] {
	return HookFunc[tally](func(context.Context, tally) (*tally, error) {
		return nil, errors.New(msg)
	})
}

func TestPipelineThreadsReplacements(t *testing.T) {
	unchanged := HookFunc[tally](func(context.Context, tally) (*tally, error) { return nil, nil })
	p := New(PointTransform, []Hook[tally]{appendHook("a"), unchanged, appendHook("b")})

	out, err := p.Execute(context.Background(), tally{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Values)
}

func TestPipelineEmptyReturnsInput(t *testing.T) {
	p := New[tally](PointFilter, nil)
	in := tally{Values: []string{"x"}}
	out, err := p.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestPipelineStopOnFailure(t *testing.T) {
	p := New(PointMapping, []Hook[tally]{appendHook("a"), failHook("boom"), appendHook("never")})
	require.Equal(t, StopOnFailure, DefaultPolicy(PointMapping))

	out, err := p.Execute(context.Background(), tally{})
	require.Error(t, err)
	assert.True(t, merrors.IsCategory(err, merrors.CategoryHook))
	assert.Equal(t, []string{"a"}, out.Values)
	assert.Len(t, out.Errs, 1)
}

func TestPipelineContinueOnFailureAggregates(t *testing.T) {
	p := New(PointPostPublish, []Hook[tally]{failHook("one"), appendHook("a"), failHook("two")})

	out, err := p.Execute(context.Background(), tally{})
	require.Error(t, err)
	assert.Len(t, merrors.Flatten(err), 2)
	assert.Equal(t, []string{"a"}, out.Values)
	assert.Len(t, out.Errs, 2)
}

func TestPipelineRecoversPanics(t *testing.T) {
	panicky := HookFunc[tally](func(context.Context, tally) (*tally, error) { panic("kaboom") })
	p := New(PointBatchCompleted, []Hook[tally]{panicky, appendHook("after")})

	out, err := p.Execute(context.Background(), tally{})
	require.Error(t, err)
	me, ok := merrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "hook panicked", me.Message)
	assert.Equal(t, []string{"after"}, out.Values)
}

func TestPipelineObservesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	first := HookFunc[tally](func(context.Context, tally) (*tally, error) {
		calls++
		cancel()
		return nil, nil
	})
	second := HookFunc[tally](func(context.Context, tally) (*tally, error) {
		calls++
		return nil, nil
	})

	out, err := New(PointTransform, []Hook[tally]{first, second}).Execute(ctx, tally{})
	require.Error(t, err)
	assert.True(t, merrors.IsCategory(err, merrors.CategoryCanceled))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	require.Len(t, out.Errs, 1)
	assert.True(t, merrors.IsCategory(out.Errs[0], merrors.CategoryCanceled))
}

func TestPipelinePolicyOverride(t *testing.T) {
	p := New(PointFilter, []Hook[tally]{failHook("x"), appendHook("a")}, WithPolicy(ContinueOnFailure))
	out, err := p.Execute(context.Background(), tally{})
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, out.Values)
}

func TestClassifiedErrorsPassThrough(t *testing.T) {
	classified := HookFunc[tally](func(context.Context, tally) (*tally, error) {
		return nil, merrors.TransformFailed("42", errors.New("bad xml"))
	})
	_, err := New(PointTransform, []Hook[tally]{classified}).Execute(context.Background(), tally{})
	assert.True(t, merrors.IsCategory(err, merrors.CategoryTransform))
}
