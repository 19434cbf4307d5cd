// Package config loads the workflow configuration: agent definitions with
// their control tokens, runtime limits, and LLM backend selection.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the YAML omits a value.
const (
	DefaultMaxIterations    = 25
	DefaultPlanningMaxTurns = 15
	DefaultEngineerMaxTurns = 75
	DefaultCriticMaxTurns   = 20
	DefaultNumLastMessages  = 25
	DefaultMaxRevisions     = 3
	DefaultTurnPause        = 2 * time.Second
	DefaultScriptTimeout    = 60 * time.Minute
	DefaultWorkingDir       = "workdir"
	DefaultMemoryDir        = "memory"
	DefaultNotebookPath     = "lab_notebook.md"

	// DefaultWorkflowDoneToken marks the entire workflow as finished.
	DefaultWorkflowDoneToken = "ENTIRE_TASK_DONE"
)

// Duration is a time.Duration that unmarshals from YAML strings like "90s"
// or "60m". Plain integers are taken as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AgentConfig defines one conversational role.
type AgentConfig struct {
	Role             string   `yaml:"role"`
	Prompt           string   `yaml:"prompt"`
	Model            string   `yaml:"model,omitempty"`
	Tools            []string `yaml:"tools,omitempty"`
	TerminationToken string   `yaml:"termination_token,omitempty"`
	ApprovalToken    string   `yaml:"approval_token,omitempty"`
	RevisionToken    string   `yaml:"revision_token,omitempty"`
}

// LLMConfig selects and parameterizes the completion backend.
type LLMConfig struct {
	// Provider is one of "anthropic", "openai", "ollama".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model,omitempty"`
	// APIKeyEnv names the environment variable holding the key.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	// BaseURL points at an OpenAI-compatible endpoint when set.
	BaseURL string `yaml:"base_url,omitempty"`
	// Host is the Ollama server address.
	Host string `yaml:"host,omitempty"`
}

// APIKey resolves the configured key from the environment.
func (c LLMConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// WorkflowConfig holds runtime limits and paths.
type WorkflowConfig struct {
	MaxIterations    int      `yaml:"max_iterations"`
	WorkingDir       string   `yaml:"working_dir"`
	MemoryDir        string   `yaml:"memory_dir"`
	NotebookPath     string   `yaml:"notebook_path"`
	PlanningMaxTurns int      `yaml:"planning_max_turns"`
	EngineerMaxTurns int      `yaml:"engineer_max_turns"`
	CriticMaxTurns   int      `yaml:"critic_max_turns"`
	NumLastMessages  int      `yaml:"num_last_messages"`
	MaxRevisions     int      `yaml:"max_revisions"`
	TurnPause        Duration `yaml:"turn_pause"`
	ScriptTimeout    Duration `yaml:"script_timeout"`
	// TargetCriteria is the completion-criteria text injected ahead of
	// every planning round.
	TargetCriteria string `yaml:"target_criteria"`
	// WorkflowDoneToken is the workflow-complete marker.
	WorkflowDoneToken string `yaml:"workflow_done_token"`
	// MetricsAddr enables the Prometheus endpoint when set (e.g. ":9090").
	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	// PlanningAgents are the planning team members in rotation order; the
	// first one is the lead whose termination token ends planning rounds.
	PlanningAgents []string `yaml:"planning_agents"`
	// EngineerAgent and CriticAgent name the iteration-loop roles.
	EngineerAgent string `yaml:"engineer_agent"`
	CriticAgent   string `yaml:"critic_agent"`
	// ConsolidatorAgent, when set, summarizes each iteration run into the
	// final artifact instead of the raw trailing-message report.
	ConsolidatorAgent string `yaml:"consolidator_agent,omitempty"`
}

// StageConfig describes one workflow stage: a planning task followed by
// implementation subtasks. Stage numbers are positional, starting at 1.
type StageConfig struct {
	Name string `yaml:"name"`
	// Task is the stage-level objective handed to the planning team.
	Task string `yaml:"task"`
	// Subtasks are the implementation steps run through the engineer/critic
	// loop, in order. Subtask numbering starts at 2; number 1 is reserved
	// for the stage specification the planning team produces.
	Subtasks []string `yaml:"subtasks"`
}

// TaskConfig describes the overall project given to the planning team.
type TaskConfig struct {
	Title       string            `yaml:"title"`
	Description string            `yaml:"description"`
	DataFiles   []string          `yaml:"data_files,omitempty"`
	Extra       map[string]string `yaml:"extra,omitempty"`
}

// Config is the full configuration document.
type Config struct {
	Agents   map[string]AgentConfig `yaml:"agents"`
	LLM      LLMConfig              `yaml:"llm"`
	Workflow WorkflowConfig         `yaml:"workflow"`
	Task     TaskConfig             `yaml:"task"`
	Stages   []StageConfig          `yaml:"stages"`
}

// Load reads, parses, and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML configuration document and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	w := &c.Workflow
	if w.MaxIterations <= 0 {
		w.MaxIterations = DefaultMaxIterations
	}
	if w.WorkingDir == "" {
		w.WorkingDir = DefaultWorkingDir
	}
	if w.MemoryDir == "" {
		w.MemoryDir = DefaultMemoryDir
	}
	if w.NotebookPath == "" {
		w.NotebookPath = DefaultNotebookPath
	}
	if w.PlanningMaxTurns <= 0 {
		w.PlanningMaxTurns = DefaultPlanningMaxTurns
	}
	if w.EngineerMaxTurns <= 0 {
		w.EngineerMaxTurns = DefaultEngineerMaxTurns
	}
	if w.CriticMaxTurns <= 0 {
		w.CriticMaxTurns = DefaultCriticMaxTurns
	}
	if w.NumLastMessages <= 0 {
		w.NumLastMessages = DefaultNumLastMessages
	}
	if w.MaxRevisions <= 0 {
		w.MaxRevisions = DefaultMaxRevisions
	}
	if w.TurnPause <= 0 {
		w.TurnPause = Duration(DefaultTurnPause)
	}
	if w.ScriptTimeout <= 0 {
		w.ScriptTimeout = Duration(DefaultScriptTimeout)
	}
	if w.WorkflowDoneToken == "" {
		w.WorkflowDoneToken = DefaultWorkflowDoneToken
	}
	if len(w.PlanningAgents) == 0 {
		w.PlanningAgents = []string{"principal_scientist", "ml_expert", "bioinformatics_expert"}
	}
	if w.EngineerAgent == "" {
		w.EngineerAgent = "implementation_engineer"
	}
	if w.CriticAgent == "" {
		w.CriticAgent = "data_science_critic"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "anthropic"
	}
}

func (c *Config) validate() error {
	if len(c.Agents) == 0 {
		return fmt.Errorf("config: no agents defined")
	}
	switch c.LLM.Provider {
	case "anthropic", "openai", "ollama":
	default:
		return fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}
	team := append([]string{c.Workflow.EngineerAgent, c.Workflow.CriticAgent}, c.Workflow.PlanningAgents...)
	if c.Workflow.ConsolidatorAgent != "" {
		team = append(team, c.Workflow.ConsolidatorAgent)
	}
	for _, name := range team {
		if _, ok := c.Agents[name]; !ok {
			return fmt.Errorf("config: team references undefined agent %q", name)
		}
	}
	for i, stage := range c.Stages {
		if stage.Name == "" {
			return fmt.Errorf("config: stage %d has no name", i+1)
		}
		if stage.Task == "" {
			return fmt.Errorf("config: stage %q has no task", stage.Name)
		}
	}
	return nil
}

// Agent returns the named agent definition.
func (c *Config) Agent(name string) (AgentConfig, error) {
	agent, ok := c.Agents[name]
	if !ok {
		return AgentConfig{}, fmt.Errorf("config: agent %q not defined", name)
	}
	return agent, nil
}

// AgentToken returns the named agent's termination token.
func (c *Config) AgentToken(name string) (string, error) {
	agent, err := c.Agent(name)
	if err != nil {
		return "", err
	}
	if agent.TerminationToken == "" {
		return "", fmt.Errorf("config: agent %q has no termination token", name)
	}
	return agent.TerminationToken, nil
}

// ReservedTokens collects every control token across all agents plus the
// workflow-done marker. The memory store strips these from assembled context.
func (c *Config) ReservedTokens() []string {
	var tokens []string
	for _, agent := range c.Agents {
		for _, t := range []string{agent.TerminationToken, agent.ApprovalToken, agent.RevisionToken} {
			if t != "" {
				tokens = append(tokens, t)
			}
		}
	}
	if c.Workflow.WorkflowDoneToken != "" {
		tokens = append(tokens, c.Workflow.WorkflowDoneToken)
	}
	return tokens
}
