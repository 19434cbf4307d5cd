package eventlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndReadBack(t *testing.T) {
	log, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer log.Close("")

	assert.NotEmpty(t, log.RunID())

	log.Record(EventRunStarted, 0, 0, 0, "")
	log.Record(EventPlanProduced, 1, 1, 1, "stage 1 specification")
	log.Record(EventVerdict, 1, 2, 1, "approve")

	events, err := log.Events()
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, EventRunStarted, events[0].Type)
	assert.Equal(t, EventPlanProduced, events[1].Type)
	assert.Equal(t, 1, events[1].Stage)
	assert.Equal(t, "stage 1 specification", events[1].Detail)
	assert.Equal(t, "approve", events[2].Detail)
	for _, e := range events {
		assert.Equal(t, log.RunID(), e.RunID)
		assert.False(t, e.CreatedAt.IsZero())
	}
}

func TestEventsScopedToRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	first, err := Open(path)
	require.NoError(t, err)
	first.Record(EventCheckpoint, 1, 2, 1, "Subtask Started")
	require.NoError(t, first.Close("completed"))

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close("")

	assert.NotEqual(t, first.RunID(), second.RunID())

	events, err := second.Events()
	require.NoError(t, err)
	assert.Empty(t, events, "a new run must not see the previous run's events")
}
