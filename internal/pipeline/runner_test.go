package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentmigrator/internal/config"
	"git.home.luguber.info/inful/contentmigrator/internal/content"
	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
	"git.home.luguber.info/inful/contentmigrator/internal/eventstore"
	"git.home.luguber.info/inful/contentmigrator/internal/hooks"
	"git.home.luguber.info/inful/contentmigrator/internal/manifest"
	"git.home.luguber.info/inful/contentmigrator/internal/migration"
	"git.home.luguber.info/inful/contentmigrator/internal/retry"
	"git.home.luguber.info/inful/contentmigrator/internal/testendpoint"
)

var noRetry = retry.Policy{Mode: config.RetryBackoffFixed, Initial: time.Millisecond, Max: time.Millisecond}

func seeded() *testendpoint.Endpoint {
	ep := testendpoint.New()
	ep.Add(content.TypeGroup, testendpoint.Items("g", 2)...)
	ep.Add(content.TypeUser, testendpoint.Items("u", 3)...)
	ep.Add(content.TypeProject, testendpoint.Items("p", 4)...)
	ep.Add(content.TypeWorkbook, testendpoint.Items("w", 5, "projects")...)
	return ep
}

func builder(ep *testendpoint.Endpoint) *PlanBuilder {
	return NewPlanBuilder().
		WithEndpoints(ep, ep).
		WithContentTypes(content.TypeGroup, content.TypeUser, content.TypeProject, content.TypeWorkbook).
		WithBatching(2, 2).
		WithRetryPolicy(noRetry)
}

type actionOrder struct {
	mu     sync.Mutex
	events []string
}

func (o *actionOrder) add(s string) {
	o.mu.Lock()
	o.events = append(o.events, s)
	o.mu.Unlock()
}

func TestRunExecutesActionsInPlanOrder(t *testing.T) {
	ep := seeded()
	b := builder(ep)
	order := &actionOrder{}
	require.NoError(t, hooks.Register(b.Registry(), hooks.PointActionCompleted, hooks.AllTypes,
		hooks.Observe(func(_ context.Context, c migration.ActionCompletion) error {
			order.add("done:" + string(c.Result.Type))
			return nil
		})))
	require.NoError(t, hooks.Register(b.Registry(), hooks.PointFilter, hooks.AllTypes,
		hooks.Observe(func(_ context.Context, s migration.FilterSet) error {
			order.add("start:" + string(s.Type))
			return nil
		})))
	plan, err := b.Build()
	require.NoError(t, err)

	res := RunMigration(context.Background(), plan, manifest.New())

	require.Equal(t, RunSuccess, res.Status, res.Errors)
	assert.Equal(t, 0, res.ExitCode())
	assert.Equal(t, []string{
		"start:groups", "done:groups",
		"start:users", "done:users",
		"start:projects", "done:projects",
		"start:workbooks", "done:workbooks",
	}, order.events)
	assert.Len(t, res.Actions, 4)
}

func TestPlanBuilderValidates(t *testing.T) {
	ep := seeded()
	_, err := builder(ep).WithContentTypes(content.TypeWorkbook, content.TypeProject).Build()
	assert.True(t, merrors.IsCategory(err, merrors.CategoryValidation))

	_, err = NewPlanBuilder().Build()
	assert.Error(t, err)

	_, err = builder(ep).WithBatching(0, 1).Build()
	assert.Error(t, err)

	_, err = builder(ep).WithFailurePolicy("sometimes").Build()
	assert.Error(t, err)

	b := builder(ep)
	plan, err := b.Build()
	require.NoError(t, err)
	assert.True(t, plan.Registry().Frozen())
	assert.ErrorIs(t, hooks.Register(b.Registry(), hooks.PointFilter, hooks.AllTypes,
		hooks.Observe(func(context.Context, migration.FilterSet) error { return nil })), hooks.ErrRegistryFrozen)
}

func TestHaltPolicyStopsAfterFailedAction(t *testing.T) {
	ep := seeded()
	ep.FailList(content.TypeUser, errors.New("403"))
	plan, err := builder(ep).Build()
	require.NoError(t, err)

	res := RunMigration(context.Background(), plan, manifest.New())

	assert.Equal(t, RunFailed, res.Status)
	assert.Equal(t, 1, res.ExitCode())
	require.Len(t, res.Actions, 2)
	assert.Equal(t, []content.Type{content.TypeUser}, res.FailedActions())
	assert.Empty(t, ep.PublishedIDs(content.TypeProject))
}

func TestContinuePolicyRunsRemainingActions(t *testing.T) {
	ep := seeded()
	ep.FailList(content.TypeUser, errors.New("403"))
	plan, err := builder(ep).WithFailurePolicy(config.FailurePolicyContinue).Build()
	require.NoError(t, err)

	m := manifest.New()
	res := RunMigration(context.Background(), plan, m)

	assert.Equal(t, RunFailed, res.Status)
	assert.Len(t, res.Actions, 4)
	assert.Len(t, ep.PublishedIDs(content.TypeWorkbook), 5)
	assert.NotEmpty(t, m.Errors())
}

func TestIdempotentResume(t *testing.T) {
	ep := seeded()
	ep.RejectPublish("p-2", "quota")
	store := manifest.NewFileStore(filepath.Join(t.TempDir(), "manifest.json"))
	plan, err := builder(ep).Build()
	require.NoError(t, err)

	first := RunMigration(context.Background(), plan, manifest.New(), WithStore(store))
	require.Equal(t, RunSuccess, first.Status)
	published := len(ep.Calls())

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	before := loaded.CountByStatus("")
	migratedBefore := loaded.MigratedIDs(content.TypeProject)

	second := RunMigration(context.Background(), plan, loaded, WithStore(store))
	require.Equal(t, RunSuccess, second.Status)

	var republished []string
	for _, c := range ep.Calls()[published:] {
		if len(c) > 8 && c[:8] == "publish:" {
			republished = append(republished, c)
		}
	}
	assert.Equal(t, []string{"publish:projects/p-2"}, republished)
	after := loaded.CountByStatus("")
	assert.Equal(t, before[manifest.StatusMigrated], after[manifest.StatusMigrated])
	assert.Equal(t, migratedBefore, loaded.MigratedIDs(content.TypeProject))

	action, ok := second.Action(content.TypeProject)
	require.True(t, ok)
	assert.Equal(t, 3, action.AlreadyMigrated)
}

func TestInitializationFailureIsFatal(t *testing.T) {
	ep := seeded()
	b := builder(ep)
	require.NoError(t, hooks.Register(b.Registry(), hooks.PointInitializeMigration, hooks.AllTypes,
		hooks.Observe(func(_ context.Context, run *migration.RunState) error {
			return errors.New("destination unreachable")
		})))
	var completed RunResult
	require.NoError(t, hooks.Register(b.Registry(), hooks.PointMigrationCompleted, hooks.AllTypes,
		hooks.Observe(func(_ context.Context, c RunCompletion) error {
			completed = c.Result
			return nil
		})))
	plan, err := b.Build()
	require.NoError(t, err)

	m := manifest.New()
	res := RunMigration(context.Background(), plan, m)

	assert.Equal(t, RunFailed, res.Status)
	assert.Empty(t, res.Actions)
	assert.Empty(t, ep.Calls())
	require.Len(t, m.Errors(), 1)
	assert.Equal(t, string(merrors.CategoryInitialize), m.Errors()[0].Category)
	assert.Equal(t, RunFailed, completed.Status)
}

func TestActionCompletedHookCanAmendResult(t *testing.T) {
	ep := seeded()
	b := builder(ep)
	require.NoError(t, hooks.Register(b.Registry(), hooks.PointActionCompleted, content.TypeUser,
		hooks.Sync(func(c migration.ActionCompletion) (migration.ActionCompletion, error) {
			c.Result = c.Result.Fail(errors.New("capability missing"))
			return c, nil
		})))
	plan, err := b.Build()
	require.NoError(t, err)

	res := RunMigration(context.Background(), plan, manifest.New())

	assert.Equal(t, RunFailed, res.Status)
	assert.Len(t, res.Actions, 2)
	assert.Equal(t, []content.Type{content.TypeUser}, res.FailedActions())
}

func TestCancelAfterLastActionKeepsOutcome(t *testing.T) {
	ep := seeded()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := builder(ep)
	require.NoError(t, hooks.Register(b.Registry(), hooks.PointActionCompleted, content.TypeWorkbook,
		hooks.Observe(func(context.Context, migration.ActionCompletion) error {
			cancel()
			return nil
		})))
	plan, err := b.Build()
	require.NoError(t, err)

	res := RunMigration(ctx, plan, manifest.New())

	require.Error(t, ctx.Err())
	assert.Equal(t, RunSuccess, res.Status)
	assert.Equal(t, 0, res.ExitCode())
	require.Len(t, res.Actions, 4)
	for _, a := range res.Actions {
		assert.Equal(t, migration.ActionSuccess, a.Status, a.Type)
	}
}

func TestCancellationStopsRun(t *testing.T) {
	ep := seeded()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ep.OnPublish(func(_ context.Context, req migration.PublishRequest) {
		if req.Item.Reference.ID == "p-1" {
			cancel()
		}
	})
	plan, err := builder(ep).WithBatching(2, 1).Build()
	require.NoError(t, err)

	m := manifest.New()
	res := RunMigration(ctx, plan, m)

	assert.Equal(t, RunCancelled, res.Status)
	assert.Equal(t, 130, res.ExitCode())
	require.Len(t, res.Actions, 4)
	assert.Equal(t, migration.ActionCancelled, res.Actions[2].Status)
	assert.Equal(t, migration.ActionCancelled, res.Actions[3].Status)
	assert.Empty(t, ep.PublishedIDs(content.TypeWorkbook))
	assert.Zero(t, m.CountByStatus("")[manifest.StatusPending])
	assert.NotZero(t, m.CountByStatus(content.TypeProject)[manifest.StatusCancelled])
}

func TestEventsArePersisted(t *testing.T) {
	ep := seeded()
	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	dlq := NewDeadLetterQueue()
	bus := NewBus(WithEventStore(store), WithDeadLetterQueue(dlq))
	bus.Subscribe(EventBatchCompleted, func(context.Context, Event) error { return errors.New("subscriber down") })
	seen := 0
	bus.Subscribe("*", func(context.Context, Event) error { seen++; return nil })

	plan, err := builder(ep).WithContentTypes(content.TypeUser).Build()
	require.NoError(t, err)
	res := RunMigration(context.Background(), plan, manifest.New(), WithBus(bus), WithRunID("run-42"))
	require.Equal(t, RunSuccess, res.Status)

	events, err := store.GetByRunID(context.Background(), "run-42")
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e.Type())
	}
	assert.Equal(t, []string{EventRunStarted, EventActionStarted, EventBatchCompleted, EventBatchCompleted, EventActionCompleted, EventRunCompleted}, types)
	assert.Equal(t, len(events), seen)
	assert.Len(t, dlq.ForRun("run-42"), 2)

	projection := eventstore.NewRunHistoryProjection(store, 5)
	require.NoError(t, projection.Rebuild(context.Background()))
	last := projection.GetLastCompletedRun()
	require.NotNil(t, last)
	assert.Equal(t, "success", last.Status)
	assert.Equal(t, 3, last.Actions[0].Counts["migrated"])
}
