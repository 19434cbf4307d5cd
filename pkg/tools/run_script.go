package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	execpkg "clockwork/pkg/exec"
)

// ToolRunScript is the code-runner tool name.
const ToolRunScript = "run_script"

// RunScriptTool executes a Python script through an Executor. The executor's
// wall-clock timeout is independent of the session; a timeout comes back as
// ordinary result text so the implementer role can react to it.
type RunScriptTool struct {
	executor    execpkg.Executor
	workDir     string
	interpreter string
	timeout     time.Duration
}

// NewRunScriptTool creates a run_script tool rooted at workDir.
func NewRunScriptTool(executor execpkg.Executor, workDir string, timeout time.Duration) *RunScriptTool {
	if timeout <= 0 {
		timeout = execpkg.DefaultTimeout
	}
	return &RunScriptTool{
		executor:    executor,
		workDir:     workDir,
		interpreter: "python3",
		timeout:     timeout,
	}
}

// Definition implements Tool.
func (t *RunScriptTool) Definition() Definition {
	return Definition{
		Name:        ToolRunScript,
		Description: "Execute a Python script in the task working directory and return stdout, stderr, and the exit status",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]*Property{
				"script": {Type: "string", Description: "Python source to execute"},
			},
			Required: []string{"script"},
		},
	}
}

// Exec implements Tool.
func (t *RunScriptTool) Exec(ctx context.Context, args map[string]any) string {
	script, ok := StringArg(args, "script")
	if !ok {
		return Errorf("script is required")
	}

	scriptPath := filepath.Join(t.workDir, fmt.Sprintf("tmp_code_%d.py", time.Now().UnixNano()))
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		return Errorf("failed to write script: %v", err)
	}
	defer os.Remove(scriptPath)

	result, err := t.executor.Run(ctx, []string{t.interpreter, scriptPath}, execpkg.Opts{
		WorkDir: t.workDir,
		Timeout: t.timeout,
	})
	if err != nil {
		return Errorf("failed to start script: %v", err)
	}

	var sb strings.Builder
	if result.TimedOut {
		fmt.Fprintf(&sb, "Execution timed out after %s. Partial output below.\n", t.timeout)
	}
	fmt.Fprintf(&sb, "exit status: %d\n", result.ExitCode)
	if result.Stdout != "" {
		sb.WriteString("stdout:\n" + result.Stdout + "\n")
	}
	if result.Stderr != "" {
		sb.WriteString("stderr:\n" + result.Stderr + "\n")
	}
	return sb.String()
}
