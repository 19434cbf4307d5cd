package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
agents:
  principal_scientist:
    role: Principal Scientist
    prompt: Lead the planning round.
    termination_token: TERMINATE_TEAM_A
  ml_expert:
    role: ML Expert
    prompt: Advise on models.
  bioinformatics_expert:
    role: Bioinformatics Expert
    prompt: Advise on data.
  implementation_engineer:
    role: Implementation Engineer
    prompt: Implement the plan.
    termination_token: TERMINATE_ENGINEER
  data_science_critic:
    role: Data Science Critic
    prompt: Review the implementation.
    termination_token: TERMINATE_CRITIC
    approval_token: APPROVE_IMPLEMENTATION
    revision_token: REVISE_IMPLEMENTATION
stages:
  - name: Data Preparation
    task: Split and inspect the dataset.
    subtasks:
      - Split the data into train and test sets.
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	w := cfg.Workflow
	assert.Equal(t, DefaultMaxIterations, w.MaxIterations)
	assert.Equal(t, DefaultPlanningMaxTurns, w.PlanningMaxTurns)
	assert.Equal(t, DefaultEngineerMaxTurns, w.EngineerMaxTurns)
	assert.Equal(t, DefaultCriticMaxTurns, w.CriticMaxTurns)
	assert.Equal(t, DefaultNumLastMessages, w.NumLastMessages)
	assert.Equal(t, DefaultMaxRevisions, w.MaxRevisions)
	assert.Equal(t, DefaultTurnPause, w.TurnPause.Std())
	assert.Equal(t, DefaultScriptTimeout, w.ScriptTimeout.Std())
	assert.Equal(t, DefaultWorkingDir, w.WorkingDir)
	assert.Equal(t, DefaultMemoryDir, w.MemoryDir)
	assert.Equal(t, DefaultNotebookPath, w.NotebookPath)
	assert.Equal(t, DefaultWorkflowDoneToken, w.WorkflowDoneToken)

	assert.Equal(t, []string{"principal_scientist", "ml_expert", "bioinformatics_expert"}, w.PlanningAgents)
	assert.Equal(t, "implementation_engineer", w.EngineerAgent)
	assert.Equal(t, "data_science_critic", w.CriticAgent)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + `
llm:
  provider: ollama
  host: http://gpu-box:11434
workflow:
  max_iterations: 5
  turn_pause: 500ms
  script_timeout: 10m
`))
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "http://gpu-box:11434", cfg.LLM.Host)
	assert.Equal(t, 5, cfg.Workflow.MaxIterations)
	assert.Equal(t, 500*time.Millisecond, cfg.Workflow.TurnPause.Std())
	assert.Equal(t, 10*time.Minute, cfg.Workflow.ScriptTimeout.Std())
}

func TestParseRejectsUnknownProvider(t *testing.T) {
	_, err := Parse([]byte(minimalYAML + `
llm:
  provider: bedrock
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown llm provider")
}

func TestParseRejectsUndefinedTeamAgent(t *testing.T) {
	_, err := Parse([]byte(minimalYAML + `
workflow:
  engineer_agent: nonexistent_engineer
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonexistent_engineer")
}

func TestParseRejectsEmptyAgents(t *testing.T) {
	_, err := Parse([]byte("stages: []\n"))
	assert.Error(t, err)
}

func TestParseRejectsStageWithoutTask(t *testing.T) {
	_, err := Parse([]byte(minimalYAML + `
  - name: Broken Stage
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no task")
}

func TestAgentToken(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	token, err := cfg.AgentToken("implementation_engineer")
	require.NoError(t, err)
	assert.Equal(t, "TERMINATE_ENGINEER", token)

	_, err = cfg.AgentToken("ml_expert")
	assert.Error(t, err, "agent without a termination token")

	_, err = cfg.AgentToken("no_such_agent")
	assert.Error(t, err)
}

func TestReservedTokens(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	tokens := cfg.ReservedTokens()
	assert.ElementsMatch(t, []string{
		"TERMINATE_TEAM_A",
		"TERMINATE_ENGINEER",
		"TERMINATE_CRITIC",
		"APPROVE_IMPLEMENTATION",
		"REVISE_IMPLEMENTATION",
		"ENTIRE_TASK_DONE",
	}, tokens)
}

func TestAPIKeyResolvesEnv(t *testing.T) {
	t.Setenv("TEST_WORKFLOW_KEY", "sk-test-123")

	llm := LLMConfig{APIKeyEnv: "TEST_WORKFLOW_KEY"}
	assert.Equal(t, "sk-test-123", llm.APIKey())
	assert.Empty(t, LLMConfig{}.APIKey())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Stages, 1)
	assert.Equal(t, "Data Preparation", cfg.Stages[0].Name)
	assert.Equal(t, []string{"Split the data into train and test sets."}, cfg.Stages[0].Subtasks)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
