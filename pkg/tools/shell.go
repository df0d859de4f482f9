package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cliagent/pkg/provider"
	"cliagent/pkg/shellexec"
)

// --- Run Shell Command Tool ---

// RunShellCommandTool executes a command through the session executor with
// the full timeout/interactivity/truncation policy set.
type RunShellCommandTool struct {
	Exec *shellexec.Executor
}

type runShellCommandArgs struct {
	Command          string `json:"command"`
	EstimatedTimeout int    `json:"estimated_timeout"`
}

func (t *RunShellCommandTool) Name() string { return "run_shell_command" }

func (t *RunShellCommandTool) Description() string {
	return "Execute a shell command on the user's machine and return its exit code, stdout and stderr. " +
		"Interactive programs are attached to the terminal; everything else is captured with a timeout."
}

func (t *RunShellCommandTool) Parameters() provider.Schema {
	return provider.Schema{
		Type: "object",
		Properties: map[string]*provider.Schema{
			"command": {Type: "string", Description: "The shell command to execute"},
			"estimated_timeout": {
				Type:        "integer",
				Description: "Estimated run time in seconds; used to bound the timeout",
			},
		},
		Required: []string{"command"},
	}
}

func (t *RunShellCommandTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a runShellCommandArgs
	if err := decodeArgs(t.Name(), args, &a); err != nil {
		return "", err
	}
	if a.Command == "" {
		return "", &ArgumentError{Tool: t.Name(), Err: fmt.Errorf("'command' is required")}
	}

	slog.Info("Executing shell command", "command", a.Command, "estimatedTimeout", a.EstimatedTimeout)
	res := t.Exec.Run(ctx, a.Command, shellexec.RunOptions{
		Kind:             shellexec.KindTool,
		EstimatedTimeout: a.EstimatedTimeout,
	})
	return res.Format(), nil
}

// --- Run Cmd Tool ---

// RunCmdTool is the lightweight command variant: captured output returned as
// a JSON object, no interactivity handling.
type RunCmdTool struct {
	Exec *shellexec.Executor
}

type runCmdArgs struct {
	Cmd string `json:"cmd"`
}

func (t *RunCmdTool) Name() string { return "run_cmd" }

func (t *RunCmdTool) Description() string {
	return "Execute a shell command locally (e.g. pwd, ls, cat) and return stdout/stderr/exit code."
}

func (t *RunCmdTool) Parameters() provider.Schema {
	return provider.Schema{
		Type: "object",
		Properties: map[string]*provider.Schema{
			"cmd": {Type: "string", Description: "Command to execute"},
		},
		Required: []string{"cmd"},
	}
}

func (t *RunCmdTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a runCmdArgs
	if err := decodeArgs(t.Name(), args, &a); err != nil {
		return "", err
	}
	if a.Cmd == "" {
		return "", &ArgumentError{Tool: t.Name(), Err: fmt.Errorf("'cmd' is required")}
	}

	res := t.Exec.Run(ctx, a.Cmd, shellexec.RunOptions{Kind: shellexec.KindTool})
	payload := map[string]any{
		"cmd":       a.Cmd,
		"exit_code": res.ExitCode,
		"stdout":    res.Stdout,
		"stderr":    res.Stderr,
	}
	if res.Err != "" {
		payload["error"] = res.Err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(data), nil
}
