package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const defaultExecTimeout = 60 * time.Second

// ExecTool runs a shell command with the workspace as its working directory.
// When restriction is on, absolute paths in the command are not policed; the
// working directory plus the timeout is the sandbox.
type ExecTool struct {
	workspace string
	timeout   time.Duration
}

func NewExecTool(workspace string) *ExecTool {
	return &ExecTool{workspace: workspace, timeout: defaultExecTimeout}
}

func (t *ExecTool) Name() string { return "exec" }

func (t *ExecTool) Description() string {
	return "Run a shell command in the workspace directory and return its output."
}

func (t *ExecTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "Shell command to run",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ExecTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	command, ok := args["command"].(string)
	if !ok || strings.TrimSpace(command) == "" {
		return ErrorResult("command is required")
	}

	execCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", command)
	cmd.Dir = t.workspace

	output, err := cmd.CombinedOutput()
	text := truncateObservation(strings.TrimRight(string(output), "\n"))

	if execCtx.Err() == context.DeadlineExceeded {
		return ErrorResult(fmt.Sprintf("command timed out after %s\n%s", t.timeout, text)).WithError(execCtx.Err())
	}
	if err != nil {
		if text == "" {
			text = err.Error()
		}
		return ErrorResult(fmt.Sprintf("command failed: %v\n%s", err, text)).WithError(err)
	}
	if text == "" {
		return Result("(no output)")
	}
	return Result(text)
}
