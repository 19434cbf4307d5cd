package memory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clockwork/pkg/chat"
)

func newTestStore(t *testing.T, reserved ...string) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), reserved, WithClock(func() time.Time {
		return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	}))
	require.NoError(t, err)
	return store
}

func TestSaveAndTranscriptRoundTrip(t *testing.T) {
	store := newTestStore(t)

	transcript := []chat.Message{
		chat.NewMessage("implementation_engineer", "split the data 80/20"),
		chat.NewMessage("code_runner", "exit status: 0"),
	}
	require.NoError(t, store.Save(1, 2, 1, transcript, "data split complete", "Split the dataset"))

	got, ok, err := store.Transcript(1, 2, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, transcript, got)

	_, ok, err = store.Transcript(1, 2, 9)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveReplacesExistingRecord(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(1, 2, 1, nil, "first attempt", "task"))
	require.NoError(t, store.Save(1, 2, 1, nil, "second attempt", "task"))

	out, err := store.AssembleContext(1, 3, 1)
	require.NoError(t, err)
	assert.Contains(t, out, "second attempt")
	assert.NotContains(t, out, "first attempt")
}

func TestSummariesFileShape(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(2, 3, 4, nil, "summary text", "task text"))

	data, err := os.ReadFile(filepath.Join(store.Dir(), "structured_summaries.json"))
	require.NoError(t, err)

	var doc map[string]map[string]map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	record := doc["stage2"]["subtask3"]["iteration4"]
	require.NotNil(t, record)
	assert.Equal(t, float64(4), record["iteration"])
	assert.Equal(t, "summary text", record["summary"])
	assert.Equal(t, "task text", record["task_description"])
	assert.Equal(t, "2026-03-14T09:26:53Z", record["timestamp"])
}

func TestMaxIterationFromKeysNotInsertionOrder(t *testing.T) {
	store := newTestStore(t)

	n, err := store.MaxIteration(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "never-run subtask must report zero")

	// Out-of-order writes: the maximum key wins regardless of save order.
	require.NoError(t, store.Save(1, 2, 3, nil, "third", "task"))
	require.NoError(t, store.Save(1, 2, 1, nil, "first", "task"))

	n, err = store.MaxIteration(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStateDefaultsWhenMissing(t *testing.T) {
	store := newTestStore(t)

	state, err := store.State()
	require.NoError(t, err)
	assert.Equal(t, 0, state.CurrentStage)
	assert.Empty(t, state.StagesCompleted)
	assert.NotNil(t, state.Iterations)
}

func TestUpdatePositionLastWriteWins(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpdatePosition(2, 3, 2))
	require.NoError(t, store.UpdatePosition(2, 3, 1)) // rollback is allowed

	state, err := store.State()
	require.NoError(t, err)
	assert.Equal(t, 2, state.CurrentStage)
	assert.Equal(t, 1, state.Iterations["stage2"]["subtask3"])
}

func TestSetStageKeepsIterationPointers(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpdatePosition(1, 2, 5))
	require.NoError(t, store.SetStage(2))

	state, err := store.State()
	require.NoError(t, err)
	assert.Equal(t, 2, state.CurrentStage)
	assert.Equal(t, 5, state.Iterations["stage1"]["subtask2"])
}

func TestMarkStageCompletedIdempotent(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.MarkStageCompleted(2))
	require.NoError(t, store.MarkStageCompleted(1))
	require.NoError(t, store.MarkStageCompleted(2))

	state, err := store.State()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, state.StagesCompleted)

	log, err := store.CheckpointLog()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, log.StagesCompleted)
}

func TestSaveCheckpointPreservesExisting(t *testing.T) {
	store := newTestStore(t)

	first, err := store.SaveCheckpoint(1, 2, 1, "Subtask Started")
	require.NoError(t, err)
	assert.Equal(t, "stage1_subtask2_iter1_20260314T092653", first)

	second, err := store.SaveCheckpoint(1, 2, 2, "Subtask Completed")
	require.NoError(t, err)

	log, err := store.CheckpointLog()
	require.NoError(t, err)
	require.Len(t, log.Checkpoints, 2)
	assert.Equal(t, "Subtask Started", log.Checkpoints[first].Label)
	assert.Equal(t, "Subtask Completed", log.Checkpoints[second].Label)
	assert.Equal(t, 1, log.Checkpoints[first].Stage)
	assert.Equal(t, 2, log.Checkpoints[second].Iteration)
}

func TestClearStageRemovesRecordsAndPointers(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(1, 2, 1, nil, "stage one work", "task"))
	require.NoError(t, store.Save(2, 2, 1, []chat.Message{chat.NewMessage("a", "x")}, "stage two work", "task"))
	require.NoError(t, store.UpdatePosition(2, 2, 1))

	require.NoError(t, store.ClearStage(2))

	n, err := store.MaxIteration(2, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, ok, err := store.Transcript(2, 2, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	state, err := store.State()
	require.NoError(t, err)
	assert.NotContains(t, state.Iterations, "stage2")

	// Other stages stay intact.
	n, err = store.MaxIteration(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
