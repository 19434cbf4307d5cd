// Command clockwork runs the multi-agent research workflow: planning rounds
// alternating with engineer/critic implementation loops, persisted through a
// structured memory store.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"clockwork/pkg/config"
	"clockwork/pkg/logx"
	"clockwork/pkg/workflow"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to workflow configuration")
		restart    = flag.Bool("restart", false, "Clear stored state for the selected stage and re-run it")
		resume     = flag.Bool("resume", false, "Re-derive position from the store and continue")
		stage      = flag.Int("stage", 0, "Run a single stage (1-based); 0 runs all stages")
	)
	flag.Parse()

	logger := logx.NewLogger("clockwork")

	if *restart && *resume {
		fmt.Fprintln(os.Stderr, "error: --restart and --resume are mutually exclusive")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}

	pipeline, err := workflow.Build(cfg)
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}

	opts := workflow.Options{Restart: *restart, Resume: *resume, Stage: *stage}
	if !opts.Restart && !opts.Resume {
		opts.Resume = promptResume(pipeline)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	status := "completed"
	if err := pipeline.Run(ctx, opts); err != nil {
		status = "failed"
		logger.Error("workflow failed: %v", err)
	}
	if err := pipeline.Close(status); err != nil {
		logger.Warn("close event log: %v", err)
	}
	if status != "completed" {
		os.Exit(1)
	}
	logger.Info("workflow finished")
}

// promptResume offers to continue a previous run when stored state exists
// and stdin is a terminal. Non-interactive runs start fresh.
func promptResume(pipeline *workflow.Pipeline) bool {
	state, err := pipeline.Store().State()
	if err != nil || state.CurrentStage == 0 {
		return false
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}

	fmt.Printf("Found previous run state (stage %d, %d stage(s) completed).\n",
		state.CurrentStage, len(state.StagesCompleted))
	fmt.Print("Resume from stored position? [Y/n] ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "" || answer == "y" || answer == "yes"
}
