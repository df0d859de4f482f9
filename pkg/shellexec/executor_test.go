package shellexec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T, env map[string]string, persisted func(Kind) (time.Duration, bool)) *Executor {
	t.Helper()
	e := New(t.TempDir(), persisted)
	e.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return e
}

func TestRunCapturesOutputAndExitCode(t *testing.T) {
	e := newTestExecutor(t, nil, nil)

	res := e.Run(context.Background(), "echo hello; echo oops >&2", RunOptions{Kind: KindShell})
	require.Empty(t, res.Err)
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, "hello\n", res.Stdout)
	require.Equal(t, "oops\n", res.Stderr)
	require.False(t, res.Truncated)

	res = e.Run(context.Background(), "exit 3", RunOptions{Kind: KindShell})
	require.Equal(t, 3, res.ExitCode)
}

func TestRunEmptyCommand(t *testing.T) {
	e := newTestExecutor(t, nil, nil)
	res := e.Run(context.Background(), "   ", RunOptions{})
	require.Equal(t, -1, res.ExitCode)
	require.Contains(t, res.Err, "not specified")
}

func TestRunTimeoutKillsCommand(t *testing.T) {
	env := map[string]string{EnvToolTimeout: "1"}
	e := newTestExecutor(t, env, nil)

	start := time.Now()
	res := e.Run(context.Background(), "sleep 30", RunOptions{Kind: KindTool})
	require.Less(t, time.Since(start), 10*time.Second)
	require.True(t, res.TimedOut)
	require.Equal(t, -1, res.ExitCode)
	require.Contains(t, res.Err, "timed out after 1 seconds")
}

func TestRunRespectsWorkDir(t *testing.T) {
	e := newTestExecutor(t, nil, nil)
	res := e.Run(context.Background(), "pwd", RunOptions{Kind: KindShell})
	require.Equal(t, 0, res.ExitCode)
	require.Equal(t, e.WorkDir(), strings.TrimSpace(res.Stdout))
}

func TestTruncate(t *testing.T) {
	short, truncated := truncate("hello\n")
	require.False(t, truncated)
	require.Equal(t, "hello\n", short)

	var b strings.Builder
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	long := b.String()
	require.Greater(t, len(long), MaxOutputSize)

	out, truncated := truncate(long)
	require.True(t, truncated)
	require.True(t, strings.HasPrefix(out, long[:MaxOutputSize]))
	require.Contains(t, out, "[OUTPUT TRUNCATED: showing first 2000 characters")
	require.Contains(t, out, fmt.Sprintf("of %d total", len(long)))
	require.Contains(t, out, "'head', 'tail', 'grep'")
}

func TestResolveTimeoutPrecedence(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		e := newTestExecutor(t, nil, nil)
		d, ok := e.ResolveTimeout(KindShell, 0)
		require.True(t, ok)
		require.Equal(t, DefaultShellTimeout, d)

		d, ok = e.ResolveTimeout(KindTool, 0)
		require.True(t, ok)
		require.Equal(t, DefaultToolTimeout, d)
	})

	t.Run("persisted setting overrides default", func(t *testing.T) {
		persisted := func(k Kind) (time.Duration, bool) {
			if k == KindTool {
				return 45 * time.Second, true
			}
			return 0, false
		}
		e := newTestExecutor(t, nil, persisted)
		d, ok := e.ResolveTimeout(KindTool, 0)
		require.True(t, ok)
		require.Equal(t, 45*time.Second, d)

		d, ok = e.ResolveTimeout(KindShell, 0)
		require.True(t, ok)
		require.Equal(t, DefaultShellTimeout, d)
	})

	t.Run("environment overrides persisted setting", func(t *testing.T) {
		persisted := func(Kind) (time.Duration, bool) { return 45 * time.Second, true }
		env := map[string]string{EnvToolTimeout: "90"}
		e := newTestExecutor(t, env, persisted)
		d, ok := e.ResolveTimeout(KindTool, 0)
		require.True(t, ok)
		require.Equal(t, 90*time.Second, d)
	})

	t.Run("zero disables the timeout", func(t *testing.T) {
		env := map[string]string{EnvShellTimeout: "0"}
		e := newTestExecutor(t, env, nil)
		_, ok := e.ResolveTimeout(KindShell, 120)
		require.False(t, ok)
	})

	t.Run("invalid environment value is ignored", func(t *testing.T) {
		env := map[string]string{EnvShellTimeout: "soon"}
		e := newTestExecutor(t, env, nil)
		d, ok := e.ResolveTimeout(KindShell, 0)
		require.True(t, ok)
		require.Equal(t, DefaultShellTimeout, d)
	})

	t.Run("estimate clamped to floor and bound", func(t *testing.T) {
		e := newTestExecutor(t, nil, nil)

		d, ok := e.ResolveTimeout(KindTool, 2)
		require.True(t, ok)
		require.Equal(t, MinEstimatedTimeout, d)

		d, ok = e.ResolveTimeout(KindTool, 10)
		require.True(t, ok)
		require.Equal(t, 10*time.Second, d)

		d, ok = e.ResolveTimeout(KindTool, 600)
		require.True(t, ok)
		require.Equal(t, DefaultToolTimeout, d)
	})
}

func TestMatchInteractive(t *testing.T) {
	cases := []struct {
		command string
		rule    string
	}{
		{"vim notes.txt", "fullscreen-program"},
		{"htop", "fullscreen-program"},
		{"ssh host uptime", "fullscreen-program"},
		{"git log | less", "pager-pipe"},
		{"dmesg | less -R", "pager-pipe"},
		{"sudo visudo", "elevated-fullscreen"},
		{"ls -la", ""},
		{"sudo apt-get update", ""},
		{"grep less README.md", ""},
		{"", ""},
	}
	for _, tc := range cases {
		rule, ok := MatchInteractive(tc.command)
		if tc.rule == "" {
			require.False(t, ok, "command %q should not be interactive", tc.command)
		} else {
			require.True(t, ok, "command %q should be interactive", tc.command)
			require.Equal(t, tc.rule, rule, "command %q", tc.command)
		}
	}
}

func TestSudoTwoPhase(t *testing.T) {
	// A recording shell stands in for $SHELL: every -c invocation appends
	// its command string to a log.
	dir := t.TempDir()
	logPath := filepath.Join(dir, "calls.log")
	script := fmt.Sprintf("#!/bin/sh\necho \"$2\" >> %q\n", logPath)
	shellPath := filepath.Join(dir, "recording-shell")
	require.NoError(t, os.WriteFile(shellPath, []byte(script), 0o755))
	t.Setenv("SHELL", shellPath)

	e := newTestExecutor(t, nil, nil)
	res := e.Run(context.Background(), "sudo apt-get update", RunOptions{Kind: KindTool})
	require.Empty(t, res.Err)
	require.Equal(t, 0, res.ExitCode)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	calls := strings.Split(strings.TrimSpace(string(data)), "\n")

	// Exactly one interactive credential refresh, then exactly one captured
	// re-issue of the original command with the non-interactive flag.
	require.Equal(t, []string{"sudo -v", "sudo -n apt-get update"}, calls)
}

func TestChdir(t *testing.T) {
	e := newTestExecutor(t, nil, nil)
	root := e.WorkDir()

	res := e.Run(context.Background(), "mkdir -p sub/dir; touch sub/file", RunOptions{})
	require.Equal(t, 0, res.ExitCode)

	require.NoError(t, e.Chdir("sub/dir"))
	require.True(t, strings.HasSuffix(e.WorkDir(), "/sub/dir"))

	err := e.Chdir("missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "No such file or directory")

	require.NoError(t, e.Chdir(root))
	err = e.Chdir("sub/file")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Not a directory")

	require.Equal(t, root, e.InitialDir())
}
