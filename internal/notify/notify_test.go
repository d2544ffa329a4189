package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentmigrator/internal/content"
	merrors "git.home.luguber.info/inful/contentmigrator/internal/errors"
	"git.home.luguber.info/inful/contentmigrator/internal/hooks"
	"git.home.luguber.info/inful/contentmigrator/internal/manifest"
	"git.home.luguber.info/inful/contentmigrator/internal/migration"
	"git.home.luguber.info/inful/contentmigrator/internal/pipeline"
)

type fakeSink struct {
	mu        sync.Mutex
	published map[string][][]byte
	status    map[string][]byte
	failPub   error
}

func newFakeSink() *fakeSink {
	return &fakeSink{published: map[string][][]byte{}, status: map[string][]byte{}}
}

func (f *fakeSink) Publish(_ context.Context, subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPub != nil {
		return f.failPub
	}
	f.published[subject] = append(f.published[subject], data)
	return nil
}

func (f *fakeSink) PutStatus(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[key] = data
	return nil
}

func TestBatchHookPublishes(t *testing.T) {
	sink := newFakeSink()
	n := New(sink, "cm.events")
	run := migration.NewRunState("run-1", nil, nil, manifest.New())

	in := migration.BatchCompletion{Run: run, Result: migration.BatchResult{
		Type:  content.TypeProject,
		Index: 2,
		Items: []migration.ItemResult{
			{Status: manifest.StatusMigrated},
			{Status: manifest.StatusFailed},
		},
		Errors:   []error{errors.New("bulk tag failed")},
		Duration: 150 * time.Millisecond,
	}}
	_, err := n.BatchHook().Execute(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, sink.published["cm.events.batch"], 1)
	var msg BatchMessage
	require.NoError(t, json.Unmarshal(sink.published["cm.events.batch"][0], &msg))
	assert.Equal(t, "run-1", msg.RunID)
	assert.Equal(t, "projects", msg.ContentType)
	assert.Equal(t, 2, msg.Batch)
	assert.Equal(t, map[string]int{"migrated": 1, "failed": 1}, msg.Counts)
	assert.Equal(t, []string{"bulk tag failed"}, msg.Errors)
	assert.Equal(t, int64(150), msg.DurationMS)
}

func TestActionHookStoresStatus(t *testing.T) {
	sink := newFakeSink()
	n := New(sink, "cm.events")
	run := migration.NewRunState("run-1", nil, nil, manifest.New())

	in := migration.ActionCompletion{Run: run, Result: migration.ActionResult{
		Type:            content.TypeUser,
		Status:          migration.ActionSuccess,
		Counts:          map[manifest.Status]int{manifest.StatusMigrated: 3},
		AlreadyMigrated: 1,
	}}
	out, err := n.ActionHook().Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, out)

	require.Len(t, sink.published["cm.events.action"], 1)
	var msg ActionMessage
	require.NoError(t, json.Unmarshal(sink.status["users"], &msg))
	assert.Equal(t, "success", msg.Status)
	assert.Equal(t, 3, msg.Counts["migrated"])
	assert.Equal(t, 1, msg.AlreadyMigrated)
}

func TestPublishFailureIsNotificationError(t *testing.T) {
	sink := newFakeSink()
	sink.failPub = errors.New("no responders")
	n := New(sink, "cm.events")
	run := migration.NewRunState("run-1", nil, nil, manifest.New())

	_, err := n.ActionHook().Execute(context.Background(), migration.ActionCompletion{Run: run})
	require.Error(t, err)
	assert.True(t, merrors.IsCategory(err, merrors.CategoryNotification))
	assert.Empty(t, sink.status)
}

func TestRegister(t *testing.T) {
	r := hooks.NewRegistry()
	require.NoError(t, New(newFakeSink(), "cm").Register(r))
	assert.Len(t, hooks.Resolve[migration.BatchCompletion](r, hooks.PointBatchCompleted, content.TypeGroup), 1)
	assert.Len(t, hooks.Resolve[migration.ActionCompletion](r, hooks.PointActionCompleted, content.TypeGroup), 1)
}

func TestStreamName(t *testing.T) {
	assert.Equal(t, "CONTENTMIGRATOR_EVENTS", streamName("contentmigrator.events"))
}

func TestRunHandlerPublishesRunLifecycle(t *testing.T) {
	sink := newFakeSink()
	bus := pipeline.NewBus()
	New(sink, "cm.events").Subscribe(bus)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, pipeline.RunStarted{RunID: "run-7", ContentTypes: []content.Type{content.TypeUser, content.TypeProject}}))
	require.NoError(t, bus.Publish(ctx, pipeline.ActionStarted{RunID: "run-7", ContentType: content.TypeUser}))
	require.NoError(t, bus.Publish(ctx, pipeline.RunCompleted{RunID: "run-7", Status: pipeline.RunFailed, ExitCode: 1, Errors: []string{"boom"}, DurationMS: 42}))

	msgs := sink.published["cm.events.run"]
	require.Len(t, msgs, 2)

	var started, done RunMessage
	require.NoError(t, json.Unmarshal(msgs[0], &started))
	require.NoError(t, json.Unmarshal(msgs[1], &done))
	assert.Equal(t, pipeline.EventRunStarted, started.Event)
	assert.Equal(t, []string{"users", "projects"}, started.ContentTypes)
	assert.Equal(t, pipeline.EventRunCompleted, done.Event)
	assert.Equal(t, "run-7", done.RunID)
	assert.Equal(t, string(pipeline.RunFailed), done.Status)
	assert.Equal(t, 1, done.ExitCode)
	assert.Equal(t, []string{"boom"}, done.Errors)
	assert.Equal(t, int64(42), done.DurationMS)
}

func TestRunHandlerFailuresReachDeadLetterQueue(t *testing.T) {
	sink := newFakeSink()
	sink.failPub = errors.New("no responders")
	dlq := pipeline.NewDeadLetterQueue()
	bus := pipeline.NewBus(pipeline.WithDeadLetterQueue(dlq))
	New(sink, "cm.events").Subscribe(bus)

	err := bus.Publish(context.Background(), pipeline.RunCompleted{RunID: "run-8", Status: pipeline.RunSuccess})

	require.Error(t, err)
	assert.True(t, merrors.IsCategory(err, merrors.CategoryNotification))
	failed := dlq.ForRun("run-8")
	require.Len(t, failed, 1)
	assert.Equal(t, pipeline.EventRunCompleted, failed[0].Event.Name())
}
