// Package shellexec runs single shell commands with timeout, interactivity
// and output-size policies. Process isolation is limited to timeout and I/O
// capture; command syntax is delegated entirely to the host shell.
package shellexec

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// MaxOutputSize is the character budget for captured stdout/stderr before
// truncation.
const MaxOutputSize = 2000

// Result is the outcome of one command execution. Failures (launch errors,
// timeout expiry) are carried in-band and never escape as Go errors.
type Result struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	Truncated bool
	TimedOut  bool
	// Err is a human-readable failure description for launch errors and
	// timeouts; empty when the command ran to completion.
	Err string
}

// Format renders the result the way tool output is fed back to the model.
func (r Result) Format() string {
	if r.Err != "" {
		return "Error: " + r.Err
	}
	return fmt.Sprintf("Exit code: %d\nSTDOUT:\n%s\nSTDERR:\n%s", r.ExitCode, r.Stdout, r.Stderr)
}

// RunOptions carries per-call execution hints.
type RunOptions struct {
	// Kind selects the timeout defaults (interactive shell attempt vs
	// model-invoked tool call).
	Kind Kind
	// EstimatedTimeout is the model's per-call estimate in seconds; zero
	// means no estimate.
	EstimatedTimeout int
}

// Executor runs shell commands from an active working directory. The
// working directory is owned by the executor and mutated only through Chdir,
// so sessions stay independent of process-wide state.
type Executor struct {
	mu      sync.Mutex
	workDir string
	initial string

	// lookupEnv and persisted feed timeout resolution; both may be nil.
	lookupEnv func(string) (string, bool)
	persisted func(Kind) (time.Duration, bool)

	stdin  *os.File
	stdout *os.File
	stderr *os.File
}

// New creates an executor rooted at dir (the process working directory when
// empty). persisted reports a configured timeout for a kind, if any.
func New(dir string, persisted func(Kind) (time.Duration, bool)) *Executor {
	if dir == "" {
		dir, _ = os.Getwd()
	}
	return &Executor{
		workDir:   dir,
		initial:   dir,
		lookupEnv: os.LookupEnv,
		persisted: persisted,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}
}

// WorkDir returns the active working directory.
func (e *Executor) WorkDir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workDir
}

// InitialDir returns the directory the executor started in.
func (e *Executor) InitialDir() string { return e.initial }

// Chdir changes the active working directory. An empty path goes home.
// Errors mirror the shell's own cd diagnostics.
func (e *Executor) Chdir(path string) error {
	if path == "" || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cd: %w", err)
		}
		path = home
	} else if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cd: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.workDir, path)
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("cd: %s: No such file or directory", path)
	}
	if err != nil {
		return fmt.Errorf("cd: %s: %v", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cd: %s: Not a directory", path)
	}
	e.workDir = path
	return nil
}

// Run executes one shell command string, applying the interactivity,
// privilege-escalation and timeout policies in that order.
func (e *Executor) Run(ctx context.Context, command string, opts RunOptions) Result {
	command = strings.TrimSpace(command)
	if command == "" {
		return Result{Err: "Command not specified", ExitCode: -1}
	}

	if rule, ok := MatchInteractive(command); ok {
		slog.Debug("Detected interactive command, attaching to TTY", "rule", rule, "command", command)
		return e.runInteractive(ctx, command)
	}

	timeout, hasTimeout := e.ResolveTimeout(opts.Kind, opts.EstimatedTimeout)

	if rest, ok := strings.CutPrefix(command, "sudo "); ok {
		return e.runSudo(ctx, rest, timeout, hasTimeout)
	}

	return e.runCaptured(ctx, command, timeout, hasTimeout)
}

// runSudo implements the two-phase elevation flow: refresh the cached
// credential interactively, then re-issue the command non-interactively so
// its output can be captured.
func (e *Executor) runSudo(ctx context.Context, rest string, timeout time.Duration, hasTimeout bool) Result {
	refresh := e.runInteractive(ctx, "sudo -v")
	if refresh.Err != "" {
		return refresh
	}
	return e.runCaptured(ctx, strings.TrimSpace("sudo -n "+rest), timeout, hasTimeout)
}

// runInteractive attaches the child to the controlling terminal: no output
// capture, no timeout, lifetime tied to the child's own.
func (e *Executor) runInteractive(ctx context.Context, command string) Result {
	cmd := exec.CommandContext(ctx, shellPath(), "-c", command)
	cmd.Dir = e.WorkDir()
	cmd.Stdin = e.stdin
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return Result{ExitCode: exitErr.ExitCode()}
		}
		return Result{ExitCode: -1, Err: fmt.Sprintf("Error executing command: %v", err)}
	}
	return Result{ExitCode: 0}
}

// runCaptured runs the command with stdout/stderr captured, bounded by the
// resolved timeout. The child is placed in its own process group and the
// whole group is killed on expiry so no orphans survive the wait.
func (e *Executor) runCaptured(ctx context.Context, command string, timeout time.Duration, hasTimeout bool) Result {
	runCtx := ctx
	var cancel context.CancelFunc
	if hasTimeout {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, shellPath(), "-c", command)
	cmd.Dir = e.WorkDir()
	setProcessGroup(cmd)
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if hasTimeout && runCtx.Err() == context.DeadlineExceeded {
		return Result{
			ExitCode: -1,
			TimedOut: true,
			Err:      fmt.Sprintf("Command timed out after %d seconds", int(timeout.Seconds())),
		}
	}

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	res.Stdout, res.Truncated = truncate(res.Stdout)
	var stderrTruncated bool
	res.Stderr, stderrTruncated = truncate(res.Stderr)
	res.Truncated = res.Truncated || stderrTruncated

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			return res
		}
		return Result{ExitCode: -1, Err: fmt.Sprintf("Error executing command: %v", err)}
	}
	return res
}

// truncate cuts output at the character budget, keeping the prefix, and
// appends a trailer describing what was cut.
func truncate(output string) (string, bool) {
	if len(output) <= MaxOutputSize {
		return output, false
	}
	kept := output[:MaxOutputSize]
	remaining := len(output) - MaxOutputSize
	linesTotal := strings.Count(output, "\n")
	linesShown := strings.Count(kept, "\n")
	trailer := fmt.Sprintf(
		"\n\n[OUTPUT TRUNCATED: showing first %d characters of %d total. Remaining: %d chars, approximately %d more lines. Use filtering commands like 'head', 'tail', 'grep' to see specific parts.]",
		MaxOutputSize, len(output), remaining, linesTotal-linesShown,
	)
	return kept + trailer, true
}

func shellPath() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}
