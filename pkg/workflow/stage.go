package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clockwork/pkg/chat"
	"clockwork/pkg/config"
	"clockwork/pkg/eventlog"
	"clockwork/pkg/notebook"
	"clockwork/pkg/prompt"
	"clockwork/pkg/session"
	"clockwork/pkg/society"
)

// specSubtask is the reserved subtask slot for the planning team's stage
// specification; implementation subtasks start after it.
const specSubtask = 1

// roleRetries is how many times a stage driver retries a session after a
// role backend failure before aborting the stage.
const roleRetries = 3

// retryRoleFailure runs fn, retrying with a brief backoff when the failure
// is a role invocation error. Other errors, including cancellation, are
// returned immediately.
func (p *Pipeline) retryRoleFailure(ctx context.Context, stage, subtask, iteration int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= roleRetries; attempt++ {
		if attempt > 0 {
			p.logger.Warn("retrying after role failure (attempt %d/%d): %v", attempt, roleRetries, lastErr)
			p.events.Record(eventlog.EventStageRetry, stage, subtask, iteration, lastErr.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		var roleErr *session.RoleInvocationError
		if !errors.As(err, &roleErr) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("stage %d subtask %d iteration %d: retries exhausted: %w", stage, subtask, iteration, lastErr)
}

// checkpoint persists a named checkpoint and mirrors it into the event log.
func (p *Pipeline) checkpoint(stage, subtask, iteration int, name string) error {
	id, err := p.store.SaveCheckpoint(stage, subtask, iteration, name)
	if err != nil {
		return err
	}
	p.events.Record(eventlog.EventCheckpoint, stage, subtask, iteration, id)
	return nil
}

// runStage drives one stage: a planning round producing the stage
// specification, then each implementation subtask through the
// engineer/critic loop. budget is decremented per implementation subtask and
// stops the stage early, unmarked, when spent. Returns workflowDone when the
// planning team declared the entire workflow finished.
func (p *Pipeline) runStage(ctx context.Context, stageNum int, stage config.StageConfig, resume bool, budget *int) (workflowDone bool, err error) {
	p.logger.Info("stage %d (%s) starting", stageNum, stage.Name)
	if err := p.store.SetStage(stageNum); err != nil {
		return false, err
	}
	if err := p.checkpoint(stageNum, 0, 0, fmt.Sprintf("%s Start", stage.Name)); err != nil {
		return false, err
	}

	plan, err := p.runPlanning(ctx, stageNum, stage)
	if err != nil {
		return false, err
	}
	if plan.WorkflowComplete {
		p.logger.Info("workflow-complete marker detected during stage %d planning", stageNum)
		if _, err := p.notebook.Append(
			"PROJECT COMPLETED: All requirements have been satisfied. The planning lead has verified completion.",
			notebook.EntryCompletion, p.cfg.Workflow.PlanningAgents[0],
		); err != nil {
			return false, err
		}
		return true, nil
	}

	for i, subtaskTask := range stage.Subtasks {
		subtaskNum := specSubtask + 1 + i

		maxIter, err := p.store.MaxIteration(stageNum, subtaskNum)
		if err != nil {
			return false, err
		}
		if resume && maxIter > 0 {
			p.logger.Info("resume: skipping stage %d subtask %d (iteration %d already saved)", stageNum, subtaskNum, maxIter)
			continue
		}
		iteration := maxIter + 1

		if err := p.runSubtask(ctx, stageNum, subtaskNum, iteration, plan.Message.Content, subtaskTask); err != nil {
			return false, err
		}

		*budget--
		if *budget <= 0 && i < len(stage.Subtasks)-1 {
			p.logger.Warn("iteration budget spent during stage %d, leaving it incomplete", stageNum)
			return false, nil
		}
	}

	if err := p.store.MarkStageCompleted(stageNum); err != nil {
		return false, err
	}
	if err := p.checkpoint(stageNum, 0, 0, fmt.Sprintf("%s Completed", stage.Name)); err != nil {
		return false, err
	}
	p.logger.Info("stage %d (%s) completed", stageNum, stage.Name)
	return false, nil
}

// runPlanning executes the planning round for a stage and persists the
// produced specification at the reserved subtask slot.
func (p *Pipeline) runPlanning(ctx context.Context, stageNum int, stage config.StageConfig) (*society.PlanResult, error) {
	task, err := p.planningPrompt(stageNum, stage)
	if err != nil {
		return nil, err
	}

	var plan *society.PlanResult
	err = p.retryRoleFailure(ctx, stageNum, specSubtask, 1, func() error {
		var runErr error
		plan, runErr = p.planning.Run(ctx, []chat.Message{chat.NewMessage(prompt.SourceUser, task)})
		return runErr
	})
	if err != nil {
		return nil, err
	}

	if _, err := p.notebook.Append(plan.Message.Content, notebook.EntryPlan, p.cfg.Workflow.PlanningAgents[0]); err != nil {
		return nil, err
	}
	p.events.Record(eventlog.EventPlanProduced, stageNum, specSubtask, 1, stage.Name)

	if plan.WorkflowComplete {
		return plan, nil
	}

	iteration, err := p.store.MaxIteration(stageNum, specSubtask)
	if err != nil {
		return nil, err
	}
	iteration++
	if err := p.store.Save(stageNum, specSubtask, iteration,
		[]chat.Message{plan.Message}, plan.Message.Content, stage.Task); err != nil {
		return nil, err
	}
	if err := p.store.UpdatePosition(stageNum, specSubtask, iteration); err != nil {
		return nil, err
	}
	if err := p.checkpoint(stageNum, specSubtask, iteration,
		fmt.Sprintf("%s Specification Completed", stage.Name)); err != nil {
		return nil, err
	}
	return plan, nil
}

// planningPrompt assembles the planning team's input: the overall task, the
// lab notebook, and the context of everything the store already holds.
func (p *Pipeline) planningPrompt(stageNum int, stage config.StageConfig) (string, error) {
	notebookContent, err := p.notebook.Read()
	if err != nil {
		return "", err
	}
	storedContext, err := p.store.AssembleContext(stageNum, specSubtask, 1)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "OVERALL PROJECT: %s\n\n%s\n\n", p.cfg.Task.Title, p.cfg.Task.Description)
	if len(p.cfg.Task.DataFiles) > 0 {
		fmt.Fprintf(&sb, "DATA FILES: %s\n\n", strings.Join(p.cfg.Task.DataFiles, ", "))
	}
	sb.WriteString("# LAB NOTEBOOK CONTENT\n")
	sb.WriteString(notebookContent)
	sb.WriteString("\n\n# CONTEXT FROM PREVIOUS WORK\n")
	sb.WriteString(storedContext)
	sb.WriteString("\n\n# YOUR CURRENT TASK\n")
	fmt.Fprintf(&sb, "Stage %d: %s\n\n%s\n", stageNum, stage.Name, stage.Task)
	sb.WriteString("\nDiscuss and produce a detailed specification for the implementation team.\n")
	return sb.String(), nil
}

// runSubtask pushes one implementation subtask through the engineer/critic
// loop and persists the artifact.
func (p *Pipeline) runSubtask(ctx context.Context, stageNum, subtaskNum, iteration int, spec, subtaskTask string) error {
	p.logger.Info("stage %d subtask %d iteration %d starting", stageNum, subtaskNum, iteration)

	storedContext, err := p.store.AssembleContext(stageNum, subtaskNum, iteration)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString("# STAGE SPECIFICATION\n")
	sb.WriteString(spec)
	sb.WriteString("\n\n# CONTEXT FROM PREVIOUS WORK\n")
	sb.WriteString(storedContext)
	sb.WriteString("\n\n# YOUR CURRENT TASK\n")
	sb.WriteString(subtaskTask)
	task := []chat.Message{chat.NewMessage(prompt.SourceUser, sb.String())}

	engineers, err := p.newEngineerSociety(stageNum, sb.String())
	if err != nil {
		return err
	}

	var artifact *society.Artifact
	err = p.retryRoleFailure(ctx, stageNum, subtaskNum, iteration, func() error {
		var runErr error
		artifact, runErr = engineers.Run(ctx, task)
		return runErr
	})
	if err != nil {
		return err
	}

	if p.recorder != nil {
		p.recorder.RecordVerdict(strings.ToLower(string(artifact.State)))
	}
	p.events.Record(eventlog.EventVerdict, stageNum, subtaskNum, iteration,
		fmt.Sprintf("state=%s revisions=%d", artifact.State, artifact.Revisions))

	if err := p.store.Save(stageNum, subtaskNum, iteration,
		artifact.History, artifact.Message.Content, subtaskTask); err != nil {
		return err
	}
	if err := p.store.UpdatePosition(stageNum, subtaskNum, iteration); err != nil {
		return err
	}
	if err := p.checkpoint(stageNum, subtaskNum, iteration,
		fmt.Sprintf("Subtask %d Implementation (Iteration %d)", subtaskNum, iteration)); err != nil {
		return err
	}
	p.events.Record(eventlog.EventIterationSaved, stageNum, subtaskNum, iteration, "")
	if p.recorder != nil {
		p.recorder.RecordIteration()
	}

	if _, err := p.notebook.Append(
		fmt.Sprintf("Completed stage %d subtask %d iteration %d (%s after %d revision(s)).",
			stageNum, subtaskNum, iteration, artifact.State, artifact.Revisions),
		notebook.EntryOutput, "team_b_engineering",
	); err != nil {
		return err
	}

	p.logger.Info("stage %d subtask %d iteration %d saved (%s)", stageNum, subtaskNum, iteration, artifact.State)
	return nil
}
