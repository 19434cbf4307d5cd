package memory

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NoSummariesAvailable is returned by AssembleContext when the store holds
// no summary document yet.
const NoSummariesAvailable = "No previous summaries available."

// AssembleContext builds the prompt context for (currentStage,
// currentSubtask, currentIteration):
//
//  1. every stage before currentStage contributes, per subtask, only its
//     maximum-numbered iteration;
//  2. within the current stage, every subtask before currentSubtask likewise
//     contributes only its maximum iteration;
//  3. when currentIteration > 1, later subtasks of the current stage
//     contribute their record at currentIteration-1 if present, and the
//     current subtask contributes its full revision history
//     1..currentIteration-1;
//  4. keys that do not exist are skipped silently;
//  5. reserved control tokens are stripped from every included summary.
//
// "Latest" is always the maximum iteration key present in the summary
// document. Trusting the position pointer instead is exactly the stale
// retrieval bug this algorithm exists to prevent.
func (s *Store) AssembleContext(currentStage, currentSubtask, currentIteration int) (string, error) {
	summaries := summaryTree{}
	if err := s.load(summariesFile, &summaries); err != nil {
		return "", err
	}
	if len(summaries) == 0 {
		return NoSummariesAvailable, nil
	}

	var parts []string
	parts = append(parts,
		strings.Repeat("=", 80),
		"SUMMARIES FROM PREVIOUS WORKFLOW STAGES",
		strings.Repeat("=", 80),
	)

	for stage := 1; stage < currentStage; stage++ {
		stageData, ok := summaries[stageKey(stage)]
		if !ok {
			continue
		}
		parts = append(parts,
			"\n"+strings.Repeat("*", 60),
			fmt.Sprintf("STAGE %d SUMMARIES:", stage),
			strings.Repeat("*", 60)+"\n",
		)
		for _, subtask := range sortedSubtasks(stageData) {
			subtaskData := stageData[subtaskKey(subtask)]
			final := maxIteration(subtaskData)
			record, ok := subtaskData[iterationKey(final)]
			if !ok {
				continue
			}
			parts = append(parts, s.formatRecord(subtask, "FINAL ITERATION", final, record))
		}
	}

	stageData, ok := summaries[stageKey(currentStage)]
	if !ok {
		return strings.Join(parts, "\n"), nil
	}

	parts = append(parts,
		"\n"+strings.Repeat("=", 80),
		fmt.Sprintf("CURRENT STAGE %d SUMMARIES:", currentStage),
		strings.Repeat("=", 80)+"\n",
	)
	for _, subtask := range sortedSubtasks(stageData) {
		if subtask >= currentSubtask {
			continue
		}
		subtaskData := stageData[subtaskKey(subtask)]
		final := maxIteration(subtaskData)
		record, ok := subtaskData[iterationKey(final)]
		if !ok {
			continue
		}
		parts = append(parts, s.formatRecord(subtask, "LATEST ITERATION", final, record))
	}

	if currentIteration > 1 {
		parts = append(parts,
			"\n"+strings.Repeat("=", 80),
			"PREVIOUS ITERATION SUMMARIES:",
			strings.Repeat("=", 80)+"\n",
		)

		// Later subtasks carry their record from the previous pass.
		prev := currentIteration - 1
		for _, subtask := range sortedSubtasks(stageData) {
			if subtask <= currentSubtask {
				continue
			}
			record, ok := stageData[subtaskKey(subtask)][iterationKey(prev)]
			if !ok {
				continue
			}
			parts = append(parts, s.formatRecord(subtask, "ITERATION", prev, record))
		}

		// The current subtask carries its full revision history.
		subtaskData := stageData[subtaskKey(currentSubtask)]
		for i := 1; i < currentIteration; i++ {
			record, ok := subtaskData[iterationKey(i)]
			if !ok {
				continue
			}
			parts = append(parts, s.formatRecord(currentSubtask, "ITERATION", i, record))
		}
	}

	return strings.Join(parts, "\n"), nil
}

func (s *Store) formatRecord(subtask int, iterLabel string, iteration int, record SummaryRecord) string {
	task := record.TaskDescription
	if task == "" {
		task = "No task description available"
	}
	summary := record.Summary
	if summary == "" {
		summary = "No summary available"
	}
	for _, token := range s.reserved {
		if token == "" {
			continue
		}
		task = strings.ReplaceAll(task, token, "")
		summary = strings.ReplaceAll(summary, token, "")
	}
	return fmt.Sprintf(`
SUBTASK: %s
%s: %d

TASK DESCRIPTION:
%s

COMPLETED TASK RESULT:
%s
`, subtaskKey(subtask), iterLabel, iteration, task, summary)
}

// sortedSubtasks returns subtask numbers in ascending numeric order. The key
// strings do not sort correctly past nine subtasks, so parse first.
func sortedSubtasks(stageData map[string]map[string]SummaryRecord) []int {
	subtasks := make([]int, 0, len(stageData))
	for key, iterations := range stageData {
		if len(iterations) == 0 {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(key, "subtask")); err == nil {
			subtasks = append(subtasks, n)
		}
	}
	sort.Ints(subtasks)
	return subtasks
}
