package eventstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendAll(t *testing.T, s Store, runID string, events ...[2]string) {
	t.Helper()
	for _, e := range events {
		require.NoError(t, s.Append(context.Background(), runID, e[0], []byte(e[1]), nil))
	}
}

func TestRunHistoryProjectionRebuild(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	appendAll(t, store, "run-1",
		[2]string{TypeRunStarted, `{"run_id":"run-1","manifest_id":"m-1","content_types":["users","projects"]}`},
		[2]string{TypeActionStarted, `{"content_type":"users"}`},
		[2]string{TypeBatchCompleted, `{"content_type":"users","batch":0}`},
		[2]string{TypeBatchCompleted, `{"content_type":"users","batch":1}`},
		[2]string{TypeActionCompleted, `{"content_type":"users","status":"success","counts":{"migrated":4,"skipped":1}}`},
		[2]string{TypeActionStarted, `{"content_type":"projects"}`},
		[2]string{TypeActionCompleted, `{"content_type":"projects","status":"failed","errors":["listing failed"]}`},
		[2]string{TypeRunCompleted, `{"status":"failed","exit_code":1,"errors":["listing failed"]}`},
	)
	appendAll(t, store, "run-2",
		[2]string{TypeRunStarted, `{"run_id":"run-2","manifest_id":"m-1"}`},
	)

	p := NewRunHistoryProjection(store, 10)
	require.NoError(t, p.Rebuild(context.Background()))

	history := p.GetHistory()
	require.Len(t, history, 1)
	run := history[0]
	assert.Equal(t, "run-1", run.RunID)
	assert.Equal(t, "failed", run.Status)
	assert.Equal(t, 1, run.ExitCode)
	assert.Equal(t, []string{"users", "projects"}, run.ContentTypes)
	require.Len(t, run.Actions, 2)
	assert.Equal(t, 2, run.Actions[0].Batches)
	assert.Equal(t, 4, run.Actions[0].Counts["migrated"])
	assert.Equal(t, "failed", run.Actions[1].Status)
	require.NotNil(t, run.CompletedAt)

	active := p.GetActiveRun()
	require.NotNil(t, active)
	assert.Equal(t, "run-2", active.RunID)

	last := p.GetLastCompletedRun()
	require.NotNil(t, last)
	assert.Equal(t, "run-1", last.RunID)

	_, ok := p.GetRun("missing")
	assert.False(t, ok)
	assert.False(t, p.LastSyncTime().IsZero())
}

func TestRunHistoryProjectionBoundsHistory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	p := NewRunHistoryProjection(store, 2)
	for _, id := range []string{"a", "b", "c"} {
		p.Apply(&BaseEvent{EventRunID: id, EventType: TypeRunStarted, EventPayload: []byte(`{}`)})
		p.Apply(&BaseEvent{EventRunID: id, EventType: TypeRunCompleted, EventPayload: []byte(`{"status":"success"}`)})
	}

	history := p.GetHistory()
	require.Len(t, history, 2)
	assert.Equal(t, "c", history[0].RunID)
	_, ok := p.GetRun("a")
	assert.False(t, ok)
}
