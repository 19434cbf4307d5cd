package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"clockwork/pkg/eventlog"
)

// Options controls how a pipeline run starts.
type Options struct {
	// Restart clears the selected stage's stored state and re-runs it from
	// the first subtask.
	Restart bool
	// Resume re-derives position from the store and continues, skipping
	// subtasks that already have saved iterations.
	Resume bool
	// Stage selects a single stage (1-based) to run. Zero runs all stages
	// starting from the first incomplete one.
	Stage int
}

// Validate rejects contradictory option combinations.
func (o Options) Validate() error {
	if o.Restart && o.Resume {
		return fmt.Errorf("--restart and --resume are mutually exclusive")
	}
	if o.Restart && o.Stage == 0 {
		return fmt.Errorf("--restart requires --stage")
	}
	return nil
}

// Run executes the workflow: each configured stage in order, stopping early
// when the planning team declares the entire workflow done. On failure the
// store keeps its last successfully written state.
func (p *Pipeline) Run(ctx context.Context, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if len(p.cfg.Stages) == 0 {
		return fmt.Errorf("no stages configured")
	}

	first := 1
	if opts.Restart {
		p.logger.Info("restart: clearing stored state for stage %d", opts.Stage)
		if err := p.store.ClearStage(opts.Stage); err != nil {
			return err
		}
	}
	if opts.Resume {
		state, err := p.store.State()
		if err != nil {
			return err
		}
		if state.CurrentStage > 0 {
			first = state.CurrentStage
		}
		p.logger.Info("resume: continuing from stage %d", first)
	}
	if opts.Stage > 0 {
		if opts.Stage > len(p.cfg.Stages) {
			return fmt.Errorf("stage %d out of range (have %d stages)", opts.Stage, len(p.cfg.Stages))
		}
		first = opts.Stage
	}

	p.events.Record(eventlog.EventRunStarted, first, 0, 0, "")

	last := len(p.cfg.Stages)
	if opts.Stage > 0 {
		last = opts.Stage
	}

	// Budget on implementation iterations across the whole run, so a
	// workflow that never converges still terminates.
	remaining := p.cfg.Workflow.MaxIterations

	status := "completed"
	for stageNum := first; stageNum <= last; stageNum++ {
		done, err := p.runStage(ctx, stageNum, p.cfg.Stages[stageNum-1], opts.Resume && stageNum == first, &remaining)
		p.cleanupTempFiles()
		if err != nil {
			p.events.Record(eventlog.EventRunFinished, stageNum, 0, 0, err.Error())
			return err
		}
		if done {
			p.logger.Info("workflow complete")
			break
		}
		if remaining <= 0 {
			p.logger.Warn("iteration budget (%d) spent, stopping before the remaining stages", p.cfg.Workflow.MaxIterations)
			status = "iteration budget spent"
			break
		}
	}

	p.events.Record(eventlog.EventRunFinished, 0, 0, 0, status)
	return nil
}

// cleanupTempFiles removes scratch files the code runner leaves in the
// working directory.
func (p *Pipeline) cleanupTempFiles() {
	patterns := []string{"tmp_code_*", "*.pyc", "__pycache__"}
	removed := 0
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(p.workingDir, pattern))
		if err != nil {
			continue
		}
		for _, path := range matches {
			if err := os.RemoveAll(path); err != nil {
				p.logger.Warn("cleanup %s: %v", path, err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		p.logger.Debug("removed %d temporary file(s)", removed)
	}
}
