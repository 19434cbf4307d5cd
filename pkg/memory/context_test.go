package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleContextEmptyStore(t *testing.T) {
	store := newTestStore(t)

	out, err := store.AssembleContext(1, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, NoSummariesAvailable, out)
}

func TestAssembleContextUsesMaxIterationNotPointer(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(1, 2, 1, nil,
		"Saved plot to dataset_split_sizes.png", "Split the dataset"))
	require.NoError(t, store.Save(1, 2, 2, nil,
		"Saved corrected plot to train_split_distribution_rev.png", "Split the dataset"))

	// Pointer left pointing at the first iteration. Retrieval must ignore it.
	require.NoError(t, store.UpdatePosition(1, 2, 1))

	out, err := store.AssembleContext(1, 3, 1)
	require.NoError(t, err)

	assert.Contains(t, out, "train_split_distribution_rev.png")
	assert.NotContains(t, out, "dataset_split_sizes.png")
	assert.Contains(t, out, "LATEST ITERATION: 2")
}

func TestAssembleContextPriorStagesFinalIterationOnly(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(1, 2, 1, nil, "first pass on splits", "split data"))
	require.NoError(t, store.Save(1, 2, 2, nil, "final split layout", "split data"))
	require.NoError(t, store.Save(1, 3, 1, nil, "feature table built", "build features"))
	require.NoError(t, store.Save(2, 2, 1, nil, "baseline trained", "train baseline"))

	out, err := store.AssembleContext(3, 2, 1)
	require.NoError(t, err)

	assert.Contains(t, out, "SUMMARIES FROM PREVIOUS WORKFLOW STAGES")
	assert.Contains(t, out, "STAGE 1 SUMMARIES:")
	assert.Contains(t, out, "STAGE 2 SUMMARIES:")
	assert.Contains(t, out, "final split layout")
	assert.NotContains(t, out, "first pass on splits")
	assert.Contains(t, out, "feature table built")
	assert.Contains(t, out, "baseline trained")
	assert.Contains(t, out, "FINAL ITERATION: 2")

	// Stage 1's subtask 2 must appear before subtask 3.
	assert.Less(t,
		strings.Index(out, "final split layout"),
		strings.Index(out, "feature table built"))
}

func TestAssembleContextCurrentSubtaskHistory(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(3, 2, 1, nil, "initial model attempt", "train model"))
	require.NoError(t, store.Save(3, 2, 2, nil, "revised after critic feedback", "train model"))

	out, err := store.AssembleContext(3, 2, 3)
	require.NoError(t, err)

	assert.Contains(t, out, "PREVIOUS ITERATION SUMMARIES:")
	assert.Contains(t, out, "initial model attempt")
	assert.Contains(t, out, "revised after critic feedback")
	assert.Contains(t, out, "ITERATION: 1")
	assert.Contains(t, out, "ITERATION: 2")
}

func TestAssembleContextLaterSubtasksPreviousPass(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(2, 3, 1, nil, "evaluation from first pass", "evaluate"))
	require.NoError(t, store.Save(2, 3, 2, nil, "evaluation from second pass", "evaluate"))

	// Subtask 2, third pass: subtask 3 contributes its iteration-2 record.
	out, err := store.AssembleContext(2, 2, 3)
	require.NoError(t, err)

	assert.Contains(t, out, "evaluation from second pass")
	assert.NotContains(t, out, "evaluation from first pass")
}

func TestAssembleContextSkipsMissingKeys(t *testing.T) {
	store := newTestStore(t)

	// A gap: subtask 2 exists only at iteration 2, nothing at iteration 1.
	require.NoError(t, store.Save(3, 2, 2, nil, "second only", "task"))

	out, err := store.AssembleContext(3, 2, 3)
	require.NoError(t, err)
	assert.Contains(t, out, "second only")

	// Current iteration 1 with nothing before it in the stage: header only,
	// no previous-iteration section.
	out, err = store.AssembleContext(3, 2, 1)
	require.NoError(t, err)
	assert.NotContains(t, out, "PREVIOUS ITERATION SUMMARIES:")
}

func TestAssembleContextStripsReservedTokens(t *testing.T) {
	store := newTestStore(t, "TERMINATE_ENGINEER", "APPROVE_IMPLEMENTATION")

	require.NoError(t, store.Save(1, 2, 1, nil,
		"All done TERMINATE_ENGINEER and critic said APPROVE_IMPLEMENTATION",
		"do the work TERMINATE_ENGINEER"))

	out, err := store.AssembleContext(1, 3, 1)
	require.NoError(t, err)
	assert.NotContains(t, out, "TERMINATE_ENGINEER")
	assert.NotContains(t, out, "APPROVE_IMPLEMENTATION")
	assert.Contains(t, out, "All done")
}

func TestAssembleContextEmptyFieldFallbacks(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(1, 2, 1, nil, "", ""))

	out, err := store.AssembleContext(1, 3, 1)
	require.NoError(t, err)
	assert.Contains(t, out, "No task description available")
	assert.Contains(t, out, "No summary available")
}

func TestAssembleContextNumericSubtaskOrdering(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(1, 10, 1, nil, "tenth subtask", "t"))
	require.NoError(t, store.Save(1, 2, 1, nil, "second subtask", "t"))

	out, err := store.AssembleContext(1, 11, 1)
	require.NoError(t, err)

	// String-sorted keys would put subtask10 before subtask2.
	assert.Less(t,
		strings.Index(out, "second subtask"),
		strings.Index(out, "tenth subtask"))
}

func TestAssembleContextRecordFormat(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(1, 2, 1, nil, "the result", "the task"))

	out, err := store.AssembleContext(2, 2, 1)
	require.NoError(t, err)

	assert.Contains(t, out, "SUBTASK: subtask2")
	assert.Contains(t, out, "FINAL ITERATION: 1")
	assert.Contains(t, out, "TASK DESCRIPTION:\nthe task")
	assert.Contains(t, out, "COMPLETED TASK RESULT:\nthe result")
	assert.Contains(t, out, strings.Repeat("=", 80))
	assert.Contains(t, out, strings.Repeat("*", 60))
}
