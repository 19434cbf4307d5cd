package society

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clockwork/pkg/chat"
	"clockwork/pkg/session"
)

const (
	engineerDone = "TERMINATE_ENGINEER"
	criticDone   = "TERMINATE_CRITIC"
	approveTok   = "APPROVE_IMPLEMENTATION"
	reviseTok    = "REVISE_IMPLEMENTATION"
)

// captureRole records the history it was invoked with and replays scripted
// replies, so tests can assert on what a controller actually fed a session.
type captureRole struct {
	name      chat.RoleID
	replies   []string
	mu        sync.Mutex
	calls     int
	histories [][]chat.Message
}

func (c *captureRole) Name() chat.RoleID { return c.name }

func (c *captureRole) Invoke(_ context.Context, history []chat.Message) (chat.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.histories = append(c.histories, chat.CopyMessages(history))
	idx := c.calls
	if idx >= len(c.replies) {
		idx = len(c.replies) - 1
	}
	c.calls++
	return chat.NewMessage(c.name, c.replies[idx]), nil
}

func (c *captureRole) lastHistory() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.histories) == 0 {
		return nil
	}
	return c.histories[len(c.histories)-1]
}

func singleRoleSession(name string, role chat.Role, stopToken string) *session.Session {
	return session.New(name, []chat.Role{role}, session.StopOnToken(stopToken), 10)
}

func societyConfig(engineer, critic chat.Role) EngineerConfig {
	return EngineerConfig{
		Name:                   "team_b",
		Engineer:               singleRoleSession("engineer", engineer, engineerDone),
		Critic:                 singleRoleSession("critic", critic, criticDone),
		ApproveToken:           approveTok,
		ReviseToken:            reviseTok,
		CriticTerminateToken:   criticDone,
		EngineerTerminateToken: engineerDone,
		OutputDir:              "results",
	}
}

func TestClassifyVerdict(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    Verdict
	}{
		{"approve alone", "solid work " + approveTok, VerdictApprove},
		{"revise alone", "fix the split " + reviseTok, VerdictRevise},
		{"both tokens never approves", approveTok + " but also " + reviseTok, VerdictUnclear},
		{"neither token", "looks interesting", VerdictUnclear},
		{"empty content", "", VerdictUnclear},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyVerdict(tc.content, approveTok, reviseTok))
		})
	}
}

func TestRunApprovalShortCircuits(t *testing.T) {
	engineer := chat.NewStubRole("engineer", "model trained, metrics saved "+engineerDone)
	critic := &captureRole{name: "critic", replies: []string{"excellent " + approveTok + " " + criticDone}}

	society, err := NewEngineerSociety(societyConfig(engineer, critic))
	require.NoError(t, err)

	artifact, err := society.Run(context.Background(), []chat.Message{chat.NewMessage("User", "train a baseline")})
	require.NoError(t, err)

	assert.Equal(t, StateApproved, artifact.State)
	assert.Equal(t, 0, artifact.Revisions)
	assert.Equal(t, 1, engineer.Calls())
	assert.Equal(t, 1, critic.calls)
	assert.Contains(t, artifact.Message.Content, "# TEAM B IMPLEMENTATION REPORT")
}

// scriptedToolUsage plays back invocation totals, one per review round.
type scriptedToolUsage struct {
	totals []int
	resets int
	reads  int
}

func (f *scriptedToolUsage) ResetCounts() { f.resets++ }

func (f *scriptedToolUsage) TotalInvocations() int {
	idx := f.reads
	if idx >= len(f.totals) {
		idx = len(f.totals) - 1
	}
	f.reads++
	return f.totals[idx]
}

func messagesContain(msgs []chat.Message, substr string) bool {
	for _, m := range msgs {
		if strings.Contains(m.Content, substr) {
			return true
		}
	}
	return false
}

func TestRunUngroundedApprovalTriggersReReview(t *testing.T) {
	engineer := chat.NewStubRole("engineer", "pipeline built, outputs saved "+engineerDone)
	critic := &captureRole{name: "critic", replies: []string{
		"all good " + approveTok + " " + criticDone,
		"checked the plots, still good " + approveTok + " " + criticDone,
	}}
	usage := &scriptedToolUsage{totals: []int{0, 2}}

	cfg := societyConfig(engineer, critic)
	cfg.CriticTools = usage
	society, err := NewEngineerSociety(cfg)
	require.NoError(t, err)

	artifact, err := society.Run(context.Background(), []chat.Message{chat.NewMessage("User", "build the pipeline")})
	require.NoError(t, err)

	assert.Equal(t, StateApproved, artifact.State)
	assert.Equal(t, 0, artifact.Revisions)
	assert.Equal(t, 2, critic.calls, "first approval had no tool calls behind it and must not be accepted")
	assert.Equal(t, 2, usage.resets, "counters reset before every review round")

	require.Len(t, critic.histories, 2)
	assert.False(t, messagesContain(critic.histories[0], "REVIEW VERIFICATION REQUIRED"))
	assert.True(t, messagesContain(critic.histories[1], "REVIEW VERIFICATION REQUIRED"))
}

func TestRunSecondUngroundedApprovalIsAccepted(t *testing.T) {
	engineer := chat.NewStubRole("engineer", "done "+engineerDone)
	critic := chat.NewStubRole("critic", "fine as is "+approveTok+" "+criticDone)
	usage := &scriptedToolUsage{totals: []int{0, 0}}

	cfg := societyConfig(engineer, critic)
	cfg.CriticTools = usage
	society, err := NewEngineerSociety(cfg)
	require.NoError(t, err)

	artifact, err := society.Run(context.Background(), []chat.Message{chat.NewMessage("User", "task")})
	require.NoError(t, err)

	// One re-review only; a repeated tool-less approval stands rather than
	// looping forever.
	assert.Equal(t, StateApproved, artifact.State)
	assert.Equal(t, 2, critic.Calls())
	assert.Equal(t, 0, artifact.Revisions)
}

func TestRunRevisionCapAborts(t *testing.T) {
	engineer := chat.NewStubRole("engineer", "attempt complete "+engineerDone)
	critic := chat.NewStubRole("critic", "not good enough "+reviseTok+" "+criticDone)

	cfg := societyConfig(engineer, critic)
	cfg.MaxRevisions = 3
	society, err := NewEngineerSociety(cfg)
	require.NoError(t, err)

	artifact, err := society.Run(context.Background(), []chat.Message{chat.NewMessage("User", "do the thing")})
	require.NoError(t, err)
	require.NotNil(t, artifact)

	assert.Equal(t, StateAborted, artifact.State)
	// Cap of 3 means the critic reviews four times: the fourth revision
	// request trips the cap before another implementation round runs.
	assert.Equal(t, 4, critic.Calls())
	assert.Equal(t, 4, engineer.Calls())
	assert.Equal(t, 4, artifact.Revisions)
	assert.NotEmpty(t, artifact.Message.Content)
}

func TestRunAmbiguousVerdictCountsAsRevision(t *testing.T) {
	engineer := chat.NewStubRole("engineer", "done "+engineerDone)
	critic := chat.NewStubRole("critic",
		approveTok+" although "+reviseTok+" "+criticDone, // ambiguous, must not approve
		"now it is fine "+approveTok+" "+criticDone,
	)

	society, err := NewEngineerSociety(societyConfig(engineer, critic))
	require.NoError(t, err)

	artifact, err := society.Run(context.Background(), []chat.Message{chat.NewMessage("User", "task")})
	require.NoError(t, err)

	assert.Equal(t, StateApproved, artifact.State)
	assert.Equal(t, 1, artifact.Revisions)
	assert.Equal(t, 2, critic.Calls())
}

func TestRunFiltersErrorMessagesFromCarryOver(t *testing.T) {
	engineer := chat.NewStubRole("engineer",
		"Traceback: NameError: name 'df' is not defined",
	)
	// Engineer session hits max turns without the terminate token; the
	// error-bearing message must still be dropped from the critic's view.
	cfg := societyConfig(engineer, nil)
	cfg.Engineer = session.New("engineer", []chat.Role{engineer}, session.StopOnToken(engineerDone), 1)
	critic := &captureRole{name: "critic", replies: []string{"fine " + approveTok + " " + criticDone}}
	cfg.Critic = singleRoleSession("critic", critic, criticDone)

	society, err := NewEngineerSociety(cfg)
	require.NoError(t, err)

	task := []chat.Message{chat.NewMessage("User", "clean run please")}
	artifact, err := society.Run(context.Background(), task)
	require.NoError(t, err)

	for _, m := range critic.lastHistory() {
		assert.NotContains(t, m.Content, "NameError")
	}
	assert.NotContains(t, artifact.Message.Content, "NameError")
}

func TestRunStripsControlTokens(t *testing.T) {
	engineer := chat.NewStubRole("engineer", "final implementation notes "+engineerDone)
	critic := chat.NewStubRole("critic", "ship it "+approveTok+" "+criticDone)

	society, err := NewEngineerSociety(societyConfig(engineer, critic))
	require.NoError(t, err)

	artifact, err := society.Run(context.Background(), []chat.Message{chat.NewMessage("User", "task")})
	require.NoError(t, err)

	for _, token := range []string{engineerDone, criticDone, approveTok, reviseTok} {
		assert.NotContains(t, artifact.Message.Content, token, "token %s must not leak", token)
		for _, m := range artifact.History {
			assert.NotContains(t, m.Content, token, "token %s leaked into history", token)
		}
	}
}

func TestRunConsolidatorProducesSummary(t *testing.T) {
	engineer := chat.NewStubRole("engineer", "trained the model "+engineerDone)
	critic := chat.NewStubRole("critic", "approved "+approveTok+" "+criticDone)
	consolidator := &captureRole{name: "consolidator", replies: []string{"Summary: baseline AUC 0.91."}}

	cfg := societyConfig(engineer, critic)
	cfg.Consolidator = consolidator
	cfg.OriginalTask = "Train a baseline classifier on the split data."
	society, err := NewEngineerSociety(cfg)
	require.NoError(t, err)

	artifact, err := society.Run(context.Background(), []chat.Message{chat.NewMessage("User", cfg.OriginalTask)})
	require.NoError(t, err)

	require.Equal(t, 1, consolidator.calls)
	input := consolidator.lastHistory()
	require.Len(t, input, 1)
	assert.Contains(t, input[0].Content, "# Original Task:")
	assert.Contains(t, input[0].Content, cfg.OriginalTask)
	assert.Contains(t, input[0].Content, "==== ITERATION 1 ====")
	assert.Contains(t, input[0].Content, "# Engineer Implementation and Critic Feedback:")

	assert.True(t, strings.HasPrefix(artifact.Message.Content, "Summary: baseline AUC 0.91."))
	assert.Contains(t, artifact.Message.Content, "(Note: This is a summary")
}

func TestNewEngineerSocietyValidation(t *testing.T) {
	engineer := chat.NewStubRole("engineer", "x")
	critic := chat.NewStubRole("critic", "x")

	_, err := NewEngineerSociety(EngineerConfig{})
	assert.Error(t, err)

	cfg := societyConfig(engineer, critic)
	cfg.ApproveToken = ""
	_, err = NewEngineerSociety(cfg)
	assert.Error(t, err)

	cfg = societyConfig(engineer, critic)
	cfg.Consolidator = chat.NewStubRole("consolidator", "x")
	_, err = NewEngineerSociety(cfg)
	assert.Error(t, err, "consolidator without original task must fail")

	cfg = societyConfig(engineer, critic)
	cfg.NumLastMessages = 200
	s, err := NewEngineerSociety(cfg)
	require.NoError(t, err)
	assert.Equal(t, MaxNumLastMessages, s.cfg.NumLastMessages)
}

func TestPlanningRunStripsTerminateToken(t *testing.T) {
	lead := chat.NewStubRole("principal_scientist", "  Stage plan: split the dataset. PLANNING_COMPLETE  ")

	team, err := NewPlanningTeam(PlanningConfig{
		Session:        session.New("planning", []chat.Role{lead}, session.StopOnToken("PLANNING_COMPLETE"), 5),
		TerminateToken: "PLANNING_COMPLETE",
	})
	require.NoError(t, err)

	result, err := team.Run(context.Background(), []chat.Message{chat.NewMessage("User", "plan stage 1")})
	require.NoError(t, err)

	assert.Equal(t, "Stage plan: split the dataset.", result.Message.Content)
	assert.False(t, result.WorkflowComplete)
	assert.False(t, result.HitMaxTurns)
}

func TestPlanningRunDetectsWorkflowDone(t *testing.T) {
	lead := chat.NewStubRole("principal_scientist", "All targets met. ENTIRE_TASK_DONE PLANNING_COMPLETE")

	team, err := NewPlanningTeam(PlanningConfig{
		Session:           session.New("planning", []chat.Role{lead}, session.StopOnAnyToken("PLANNING_COMPLETE", "ENTIRE_TASK_DONE"), 5),
		TerminateToken:    "PLANNING_COMPLETE",
		WorkflowDoneToken: "ENTIRE_TASK_DONE",
	})
	require.NoError(t, err)

	result, err := team.Run(context.Background(), []chat.Message{chat.NewMessage("User", "plan next stage")})
	require.NoError(t, err)

	assert.True(t, result.WorkflowComplete)
	// The done marker stays in the content; only the terminate token goes.
	assert.Contains(t, result.Message.Content, "ENTIRE_TASK_DONE")
	assert.NotContains(t, result.Message.Content, "PLANNING_COMPLETE")
}

func TestPlanningRunInjectsTargetCriteria(t *testing.T) {
	lead := &captureRole{name: "principal_scientist", replies: []string{"plan PLANNING_COMPLETE"}}

	team, err := NewPlanningTeam(PlanningConfig{
		Session:           session.New("planning", []chat.Role{lead}, session.StopOnToken("PLANNING_COMPLETE"), 5),
		TerminateToken:    "PLANNING_COMPLETE",
		WorkflowDoneToken: "ENTIRE_TASK_DONE",
		TargetCriteria:    "AUC above 0.90 on the held-out set",
	})
	require.NoError(t, err)

	_, err = team.Run(context.Background(), []chat.Message{chat.NewMessage("User", "plan stage 2")})
	require.NoError(t, err)

	seed := lead.lastHistory()
	require.NotEmpty(t, seed)
	var found bool
	for _, m := range seed {
		if strings.Contains(m.Content, "AUC above 0.90") {
			found = true
			assert.Contains(t, m.Content, "ENTIRE_TASK_DONE")
		}
	}
	assert.True(t, found, "target criteria block missing from planning seed")
}

func TestPlanningRunReportsMaxTurns(t *testing.T) {
	lead := chat.NewStubRole("principal_scientist", "still thinking")

	team, err := NewPlanningTeam(PlanningConfig{
		Session:        session.New("planning", []chat.Role{lead}, session.StopOnToken("PLANNING_COMPLETE"), 2),
		TerminateToken: "PLANNING_COMPLETE",
	})
	require.NoError(t, err)

	result, err := team.Run(context.Background(), []chat.Message{chat.NewMessage("User", "plan")})
	require.NoError(t, err)
	assert.True(t, result.HitMaxTurns)
	assert.Equal(t, "still thinking", result.Message.Content)
}
