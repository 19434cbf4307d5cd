// Package workflow wires configuration into a runnable pipeline: stage
// drivers that alternate planning rounds and engineer/critic iteration
// loops, persisting every result through the memory store.
package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"clockwork/pkg/chat"
	"clockwork/pkg/config"
	"clockwork/pkg/eventlog"
	execpkg "clockwork/pkg/exec"
	"clockwork/pkg/llm"
	"clockwork/pkg/logx"
	"clockwork/pkg/memory"
	"clockwork/pkg/metrics"
	"clockwork/pkg/notebook"
	"clockwork/pkg/session"
	"clockwork/pkg/society"
	"clockwork/pkg/tools"
	"clockwork/pkg/utils"
)

const notebookHeader = `# Lab Notebook

A chronological record of plans, decisions, observations, and results for
this workflow run. Entries are appended by the planning team, the
implementation engineer, and the critic.
`

// Pipeline holds every wired component for one workflow run.
type Pipeline struct {
	cfg        *config.Config
	workingDir string

	store     *memory.Store
	notebook  *notebook.Notebook
	registry  *tools.Registry
	client    llm.Client
	events    *eventlog.Log
	recorder  *metrics.PrometheusRecorder
	observer  session.Observer
	estimator func([]chat.Message) int

	roles    map[string]chat.Role
	planning *society.PlanningTeam

	engineerToken string
	criticToken   string
	approveToken  string
	reviseToken   string

	logger *logx.Logger
}

// Build wires a pipeline from cfg. The working directory, memory store, lab
// notebook, and event log are created under the configured working dir.
func Build(cfg *config.Config) (*Pipeline, error) {
	w := cfg.Workflow

	workingDir, err := filepath.Abs(w.WorkingDir)
	if err != nil {
		return nil, fmt.Errorf("resolve working dir: %w", err)
	}
	if err := os.MkdirAll(workingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create working dir: %w", err)
	}

	store, err := memory.NewStore(filepath.Join(workingDir, w.MemoryDir), cfg.ReservedTokens())
	if err != nil {
		return nil, err
	}

	nb := notebook.New(filepath.Join(workingDir, w.NotebookPath), notebookHeader)
	if err := nb.Initialize(); err != nil {
		return nil, err
	}

	events, err := eventlog.Open(filepath.Join(workingDir, "events.db"))
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:        cfg,
		workingDir: workingDir,
		store:      store,
		notebook:   nb,
		events:     events,
		observer:   session.NopObserver{},
		roles:      map[string]chat.Role{},
		logger:     logx.NewLogger("workflow"),
	}

	if w.MetricsAddr != "" {
		p.recorder = metrics.NewPrometheusRecorder()
		p.observer = p.recorder
		metrics.Serve(w.MetricsAddr)
	}

	// Accurate token counts when the tiktoken vocabulary loads; sessions
	// keep their words-times-three heuristic otherwise.
	if est, err := tokenEstimator(); err == nil {
		p.estimator = est
	} else {
		p.logger.Warn("tokenizer unavailable, falling back to heuristic token estimates: %v", err)
	}

	p.client = buildClient(cfg.LLM)
	if err := p.buildTools(); err != nil {
		return nil, err
	}
	if err := p.buildRoles(); err != nil {
		return nil, err
	}
	if err := p.buildPlanning(); err != nil {
		return nil, err
	}
	return p, nil
}

// tokenEstimator builds a transcript sizer backed by the tiktoken codec.
func tokenEstimator() (func([]chat.Message) int, error) {
	counter, err := utils.NewTokenCounter()
	if err != nil {
		return nil, err
	}
	return func(msgs []chat.Message) int {
		total := 0
		for _, m := range msgs {
			total += counter.CountTokens(m.Content)
		}
		return total
	}, nil
}

// WorkingDir returns the resolved working directory.
func (p *Pipeline) WorkingDir() string {
	return p.workingDir
}

// Store returns the memory store backing this pipeline.
func (p *Pipeline) Store() *memory.Store {
	return p.store
}

// Close releases the event log, marking the run with status.
func (p *Pipeline) Close(status string) error {
	return p.events.Close(status)
}

func buildClient(cfg config.LLMConfig) llm.Client {
	var client llm.Client
	switch cfg.Provider {
	case "openai":
		if cfg.BaseURL != "" {
			client = llm.NewOpenAICompatibleClient(cfg.APIKey(), cfg.Model, cfg.BaseURL)
		} else {
			client = llm.NewOpenAIClient(cfg.APIKey(), cfg.Model)
		}
	case "ollama":
		client = llm.NewOllamaClient(cfg.Host, cfg.Model)
	default:
		client = llm.NewAnthropicClient(cfg.APIKey(), cfg.Model)
	}
	return llm.NewRetryableClient(client, llm.DefaultRetryConfig)
}

func (p *Pipeline) buildTools() error {
	registry := tools.NewRegistry()

	executor := execpkg.NewLocalExec()
	all := []tools.Tool{
		tools.NewCalculatorTool(),
		tools.NewSearchDirectoryTool(),
		tools.NewReadFileTool(),
		tools.NewWriteFileTool(),
		tools.NewReadNotebookTool(p.notebook),
		tools.NewWriteNotebookTool(p.notebook),
		tools.NewRunScriptTool(executor, p.workingDir, p.cfg.Workflow.ScriptTimeout.Std()),
	}

	// Plot analysis needs a vision-capable backend; only the Anthropic
	// client provides one.
	if p.cfg.LLM.Provider == "anthropic" {
		analyzer := llm.NewAnthropicClient(p.cfg.LLM.APIKey(), p.cfg.LLM.Model)
		all = append(all, tools.NewAnalyzePlotTool(analyzer))
	}
	if key := os.Getenv("PERPLEXITY_API_KEY"); key != "" {
		all = append(all, tools.NewWebQueryTool(key, tools.DefaultWebQueryBaseURL, ""))
	}

	for _, tool := range all {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	p.registry = registry
	return nil
}

func (p *Pipeline) buildRoles() error {
	w := p.cfg.Workflow
	names := append([]string{w.EngineerAgent, w.CriticAgent}, w.PlanningAgents...)
	if w.ConsolidatorAgent != "" {
		names = append(names, w.ConsolidatorAgent)
	}

	today := time.Now().Format("2006-01-02")
	for _, name := range names {
		if _, ok := p.roles[name]; ok {
			continue
		}
		agent, err := p.cfg.Agent(name)
		if err != nil {
			return err
		}
		systemPrompt := fmt.Sprintf("CONTEXT: Today's date is %s.\n\n%s", today, agent.Prompt)
		view := p.registry.NewView(agent.Tools)
		if len(agent.Tools) == 0 {
			view = p.registry.NewView(allToolNames(p.registry))
		}
		p.roles[name] = chat.NewLLMRole(name, systemPrompt, p.client, chat.WithTools(view))
	}

	// The code runner executes the implementer's fenced code blocks through
	// the registry, so runs show up in the invocation counters.
	p.roles["code_runner"] = chat.NewCodeRunnerRole("code_runner", func(ctx context.Context, script string) string {
		return p.registry.Call(ctx, tools.ToolRunScript, map[string]any{"script": script})
	})
	return nil
}

func allToolNames(r *tools.Registry) []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}

func (p *Pipeline) buildPlanning() error {
	w := p.cfg.Workflow
	leadToken, err := p.cfg.AgentToken(w.PlanningAgents[0])
	if err != nil {
		return err
	}

	planningRoles := make([]chat.Role, len(w.PlanningAgents))
	for i, name := range w.PlanningAgents {
		planningRoles[i] = p.roles[name]
	}
	planningSession := session.New("planning", planningRoles,
		session.StopOnAnyToken(leadToken, w.WorkflowDoneToken),
		w.PlanningMaxTurns,
		session.WithTurnPause(w.TurnPause.Std()),
		session.WithObserver(p.observer),
		session.WithTokenEstimator(p.estimator),
	)

	team, err := society.NewPlanningTeam(society.PlanningConfig{
		Name:              "team_a_planning",
		Session:           planningSession,
		TerminateToken:    leadToken,
		WorkflowDoneToken: w.WorkflowDoneToken,
		TargetCriteria:    w.TargetCriteria,
	})
	if err != nil {
		return err
	}
	p.planning = team

	if p.engineerToken, err = p.cfg.AgentToken(w.EngineerAgent); err != nil {
		return err
	}
	if p.criticToken, err = p.cfg.AgentToken(w.CriticAgent); err != nil {
		return err
	}
	critic, err := p.cfg.Agent(w.CriticAgent)
	if err != nil {
		return err
	}
	if critic.ApprovalToken == "" || critic.RevisionToken == "" {
		return fmt.Errorf("config: critic agent %q needs approval_token and revision_token", w.CriticAgent)
	}
	p.approveToken = critic.ApprovalToken
	p.reviseToken = critic.RevisionToken
	return nil
}

// newEngineerSociety builds an iteration controller writing outputs under
// the stage's own directory.
func (p *Pipeline) newEngineerSociety(stage int, originalTask string) (*society.EngineerSociety, error) {
	w := p.cfg.Workflow
	outputDir := filepath.Join(p.workingDir, fmt.Sprintf("stage%d_outputs", stage))
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create stage output dir: %w", err)
	}

	engineerSession := session.New("engineer",
		[]chat.Role{p.roles[w.EngineerAgent], p.roles["code_runner"]},
		session.StopOnToken(p.engineerToken),
		w.EngineerMaxTurns,
		session.WithTurnPause(w.TurnPause.Std()),
		session.WithObserver(p.observer),
		session.WithTokenEstimator(p.estimator),
	)
	criticSession := session.New("critic",
		[]chat.Role{p.roles[w.CriticAgent]},
		session.StopOnToken(p.criticToken),
		w.CriticMaxTurns,
		session.WithTurnPause(w.TurnPause.Std()),
		session.WithObserver(p.observer),
		session.WithTokenEstimator(p.estimator),
	)

	cfg := society.EngineerConfig{
		Name:                   "team_b_engineering",
		Engineer:               engineerSession,
		Critic:                 criticSession,
		ApproveToken:           p.approveToken,
		ReviseToken:            p.reviseToken,
		CriticTerminateToken:   p.criticToken,
		EngineerTerminateToken: p.engineerToken,
		MaxRevisions:           w.MaxRevisions,
		NumLastMessages:        w.NumLastMessages,
		OutputDir:              outputDir,
		CriticTools:            p.registry,
	}
	if w.ConsolidatorAgent != "" {
		cfg.Consolidator = p.roles[w.ConsolidatorAgent]
		cfg.OriginalTask = originalTask
	}
	return society.NewEngineerSociety(cfg)
}
