package society

import (
	"context"
	"fmt"
	"strings"

	"clockwork/pkg/chat"
	"clockwork/pkg/logx"
	"clockwork/pkg/prompt"
	"clockwork/pkg/session"
)

// PlanResult is the outcome of a planning round.
type PlanResult struct {
	// Message is the lead role's final message, terminate token stripped.
	Message chat.Message
	// WorkflowComplete is set when the workflow-done marker appeared in the
	// final message, telling the outer driver to stop.
	WorkflowComplete bool
	// HitMaxTurns is set when the round ran out of turns before the lead
	// role terminated.
	HitMaxTurns bool
}

// PlanningConfig wires a planning controller.
type PlanningConfig struct {
	Name string

	// Session holds the planning roles in rotation order.
	Session *session.Session

	// TerminateToken ends a planning round; it is stripped from the result.
	TerminateToken string
	// WorkflowDoneToken marks the entire workflow as finished. Detected,
	// surfaced as a flag, and left in the content.
	WorkflowDoneToken string

	// TargetCriteria is the project completion-criteria text injected ahead
	// of every planning task.
	TargetCriteria string
}

// PlanningTeam runs a single bounded round-robin planning session and
// returns its final message. No critic loop, no revisions.
type PlanningTeam struct {
	cfg    PlanningConfig
	logger *logx.Logger
}

// NewPlanningTeam validates cfg and creates the controller.
func NewPlanningTeam(cfg PlanningConfig) (*PlanningTeam, error) {
	if cfg.Session == nil {
		return nil, fmt.Errorf("planning session is required")
	}
	if cfg.TerminateToken == "" {
		return nil, fmt.Errorf("terminate token is required")
	}
	if cfg.Name == "" {
		cfg.Name = "planning_team"
	}
	return &PlanningTeam{cfg: cfg, logger: logx.NewLogger(cfg.Name)}, nil
}

// Run injects the completion-criteria reminder, runs the session, and
// returns the final message with the terminate token stripped.
func (t *PlanningTeam) Run(ctx context.Context, task []chat.Message) (*PlanResult, error) {
	seed := chat.CopyMessages(task)
	if t.cfg.TargetCriteria != "" {
		seed = append(seed, prompt.PerformanceTargets(t.cfg.TargetCriteria, t.cfg.WorkflowDoneToken))
	}

	result, err := t.cfg.Session.Run(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.cfg.Name, err)
	}
	final, ok := result.LastMessage()
	if !ok {
		return nil, fmt.Errorf("%s: session produced no messages", t.cfg.Name)
	}

	done := t.cfg.WorkflowDoneToken != "" && final.Contains(t.cfg.WorkflowDoneToken)
	if done {
		t.logger.Info("workflow-complete marker detected")
	}
	final = final.StripTokens(t.cfg.TerminateToken)
	final.Content = strings.TrimSpace(final.Content)

	return &PlanResult{
		Message:          final,
		WorkflowComplete: done,
		HitMaxTurns:      result.State == session.HitMaxTurns,
	}, nil
}
