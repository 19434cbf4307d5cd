// Package memory implements the structured workflow store: durable JSON
// persistence of transcripts, summaries, position, and checkpoints, plus the
// context-assembly algorithm that feeds prior results into new prompts.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"clockwork/pkg/chat"
	"clockwork/pkg/logx"
)

// Store file names. One store is a directory of JSON documents.
const (
	stateFile       = "workflow_state.json"
	checkpointsFile = "workflow_checkpoints.json"
	summariesFile   = "structured_summaries.json"
	messagesFile    = "structured_messages.json"
)

// SummaryRecord is one persisted iteration result.
type SummaryRecord struct {
	Timestamp       string `json:"timestamp"`
	Iteration       int    `json:"iteration"`
	TaskDescription string `json:"task_description"`
	Summary         string `json:"summary"`
}

// WorkflowState is the position document.
type WorkflowState struct {
	CurrentStage    int                       `json:"current_stage"`
	StagesCompleted []int                     `json:"stages_completed"`
	Iterations      map[string]map[string]int `json:"iterations"`
}

// Checkpoint records a position with a label at a point in time.
type Checkpoint struct {
	Stage     int    `json:"stage"`
	Subtask   int    `json:"subtask,omitempty"`
	Iteration int    `json:"iteration,omitempty"`
	Label     string `json:"label"`
	Timestamp string `json:"timestamp"`
}

// CheckpointLog is the append-only checkpoint document.
type CheckpointLog struct {
	StagesCompleted []int                 `json:"stages_completed"`
	Checkpoints     map[string]Checkpoint `json:"checkpoints"`
}

// summaryTree mirrors the on-disk nesting:
// {"stageN": {"subtaskM": {"iterationK": record}}}.
type summaryTree map[string]map[string]map[string]SummaryRecord

type messageTree map[string]map[string]map[string][]chat.Message

// Store persists workflow memory under a single directory. It is designed
// for one writer per run; concurrent runs must use separate directories.
type Store struct {
	dir      string
	reserved []string
	now      func() time.Time
	logger   *logx.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore opens (creating if needed) a store directory. reservedTokens are
// the control-flow markers stripped from every summary during assembly.
func NewStore(dir string, reservedTokens []string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory %s: %w", dir, err)
	}
	s := &Store{
		dir:      dir,
		reserved: append([]string(nil), reservedTokens...),
		now:      time.Now,
		logger:   logx.NewLogger("memory"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

func stageKey(n int) string     { return "stage" + strconv.Itoa(n) }
func subtaskKey(n int) string   { return "subtask" + strconv.Itoa(n) }
func iterationKey(n int) string { return "iteration" + strconv.Itoa(n) }

// Save upserts the record at (stage, subtask, iteration): summary metadata
// into the summaries document, the raw transcript into the messages
// document. Saving the same key twice replaces the record, never merges.
func (s *Store) Save(stage, subtask, iteration int, transcript []chat.Message, summary, taskDescription string) error {
	record := SummaryRecord{
		Timestamp:       s.now().Format(time.RFC3339),
		Iteration:       iteration,
		TaskDescription: taskDescription,
		Summary:         summary,
	}

	summaries := summaryTree{}
	if err := s.load(summariesFile, &summaries); err != nil {
		return err
	}
	if summaries[stageKey(stage)] == nil {
		summaries[stageKey(stage)] = map[string]map[string]SummaryRecord{}
	}
	if summaries[stageKey(stage)][subtaskKey(subtask)] == nil {
		summaries[stageKey(stage)][subtaskKey(subtask)] = map[string]SummaryRecord{}
	}
	summaries[stageKey(stage)][subtaskKey(subtask)][iterationKey(iteration)] = record
	if err := s.write(summariesFile, summaries); err != nil {
		return err
	}

	messages := messageTree{}
	if err := s.load(messagesFile, &messages); err != nil {
		return err
	}
	if messages[stageKey(stage)] == nil {
		messages[stageKey(stage)] = map[string]map[string][]chat.Message{}
	}
	if messages[stageKey(stage)][subtaskKey(subtask)] == nil {
		messages[stageKey(stage)][subtaskKey(subtask)] = map[string][]chat.Message{}
	}
	messages[stageKey(stage)][subtaskKey(subtask)][iterationKey(iteration)] = chat.CopyMessages(transcript)
	if err := s.write(messagesFile, messages); err != nil {
		return err
	}

	s.logger.Debug("saved stage=%d subtask=%d iteration=%d (%d messages)", stage, subtask, iteration, len(transcript))
	return nil
}

// Transcript returns the raw messages stored at (stage, subtask, iteration),
// or ok=false when the key has no record.
func (s *Store) Transcript(stage, subtask, iteration int) ([]chat.Message, bool, error) {
	messages := messageTree{}
	if err := s.load(messagesFile, &messages); err != nil {
		return nil, false, err
	}
	transcript, ok := messages[stageKey(stage)][subtaskKey(subtask)][iterationKey(iteration)]
	return transcript, ok, nil
}

// MaxIteration returns the maximum iteration key present for the subtask, or
// 0 when it has never run. Always computed from the summary document's own
// keys, never from the position pointer, so a stale pointer cannot surface
// an old iteration as latest.
func (s *Store) MaxIteration(stage, subtask int) (int, error) {
	summaries := summaryTree{}
	if err := s.load(summariesFile, &summaries); err != nil {
		return 0, err
	}
	return maxIteration(summaries[stageKey(stage)][subtaskKey(subtask)]), nil
}

func maxIteration(iterations map[string]SummaryRecord) int {
	maxIter := 0
	for key := range iterations {
		if n, err := strconv.Atoi(strings.TrimPrefix(key, "iteration")); err == nil && n > maxIter {
			maxIter = n
		}
	}
	return maxIter
}

// State reads the position document. A missing file yields a zero state.
func (s *Store) State() (WorkflowState, error) {
	state := WorkflowState{Iterations: map[string]map[string]int{}}
	if err := s.load(stateFile, &state); err != nil {
		return WorkflowState{}, err
	}
	if state.Iterations == nil {
		state.Iterations = map[string]map[string]int{}
	}
	return state, nil
}

// SetStage records the current stage without touching iteration pointers.
func (s *Store) SetStage(stage int) error {
	return s.UpdatePosition(stage, 0, 0)
}

// UpdatePosition records the current position. When subtask and iteration
// are both positive, the per-subtask iteration pointer is set last-write-wins;
// rolling back is allowed — the read path computes "latest" from stored keys,
// not from this pointer.
func (s *Store) UpdatePosition(stage, subtask, iteration int) error {
	state, err := s.State()
	if err != nil {
		return err
	}
	state.CurrentStage = stage
	if subtask > 0 && iteration > 0 {
		if state.Iterations[stageKey(stage)] == nil {
			state.Iterations[stageKey(stage)] = map[string]int{}
		}
		state.Iterations[stageKey(stage)][subtaskKey(subtask)] = iteration
	}
	return s.write(stateFile, state)
}

// MarkStageCompleted appends stage to the completed list in both the state
// and checkpoint documents. Idempotent.
func (s *Store) MarkStageCompleted(stage int) error {
	state, err := s.State()
	if err != nil {
		return err
	}
	state.StagesCompleted = appendUnique(state.StagesCompleted, stage)
	if err := s.write(stateFile, state); err != nil {
		return err
	}

	log, err := s.CheckpointLog()
	if err != nil {
		return err
	}
	log.StagesCompleted = appendUnique(log.StagesCompleted, stage)
	return s.write(checkpointsFile, log)
}

func appendUnique(list []int, n int) []int {
	for _, v := range list {
		if v == n {
			return list
		}
	}
	list = append(list, n)
	sort.Ints(list)
	return list
}

// CheckpointLog reads the checkpoint document.
func (s *Store) CheckpointLog() (CheckpointLog, error) {
	log := CheckpointLog{Checkpoints: map[string]Checkpoint{}}
	if err := s.load(checkpointsFile, &log); err != nil {
		return CheckpointLog{}, err
	}
	if log.Checkpoints == nil {
		log.Checkpoints = map[string]Checkpoint{}
	}
	return log, nil
}

// SaveCheckpoint appends a labeled checkpoint and returns its id. The id is
// deterministic from position and wall-clock time; existing checkpoints are
// never mutated.
func (s *Store) SaveCheckpoint(stage, subtask, iteration int, label string) (string, error) {
	log, err := s.CheckpointLog()
	if err != nil {
		return "", err
	}

	ts := s.now()
	id := fmt.Sprintf("stage%d_subtask%d_iter%d_%s", stage, subtask, iteration, ts.Format("20060102T150405"))
	log.Checkpoints[id] = Checkpoint{
		Stage:     stage,
		Subtask:   subtask,
		Iteration: iteration,
		Label:     label,
		Timestamp: ts.Format(time.RFC3339),
	}
	if err := s.write(checkpointsFile, log); err != nil {
		return "", err
	}
	s.logger.Info("checkpoint %s: %s", id, label)
	return id, nil
}

// ClearStage removes every record for the stage from the summaries and
// messages documents and resets its iteration pointers. Used by --restart.
func (s *Store) ClearStage(stage int) error {
	summaries := summaryTree{}
	if err := s.load(summariesFile, &summaries); err != nil {
		return err
	}
	delete(summaries, stageKey(stage))
	if err := s.write(summariesFile, summaries); err != nil {
		return err
	}

	messages := messageTree{}
	if err := s.load(messagesFile, &messages); err != nil {
		return err
	}
	delete(messages, stageKey(stage))
	if err := s.write(messagesFile, messages); err != nil {
		return err
	}

	state, err := s.State()
	if err != nil {
		return err
	}
	delete(state.Iterations, stageKey(stage))
	return s.write(stateFile, state)
}

// load decodes a store document into out. Missing files leave out unchanged.
func (s *Store) load(name string, out any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// write persists a document atomically: marshal to a temp file in the same
// directory, then rename over the target.
func (s *Store) write(name string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	target := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
