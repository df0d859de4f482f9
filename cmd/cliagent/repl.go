package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"cliagent/pkg/agent"
	"cliagent/pkg/config"
	"cliagent/pkg/route"
	"cliagent/pkg/shellexec"
	"cliagent/pkg/ui"
)

// repl is the interactive interface. In shell mode every line is routed:
// shell-looking input runs directly, natural language goes to the model. In
// chat mode everything goes to the model.
type repl struct {
	loop      *agent.Loop
	exec      *shellexec.Executor
	out       *ui.Renderer
	store     *config.Store
	stdin     *bufio.Reader
	shellMode bool
	showUsage bool
}

func (r *repl) run(ctx context.Context) error {
	if r.shellMode {
		r.out.Status("Shell mode. Type a command or describe what you want; 'exit' to quit.")
	} else {
		r.out.Status("Chat mode. Ask anything; 'exit' to quit.")
	}

	// Ctrl-C at the prompt starts a fresh line instead of leaving; during a
	// request it cancels just that request (per-request context below).
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	go func() {
		for range interrupts {
			fmt.Println()
		}
	}()

	defer func() {
		if r.store.GetBool(config.KeyPreserveInitialLocation, true) {
			if err := r.exec.Chdir(r.exec.InitialDir()); err != nil {
				slog.Debug("Failed to restore initial directory", "error", err)
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Print(r.prompt())

		line, err := r.stdin.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println()
				return nil
			}
			return err
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		switch builtin, arg := route.ParseBuiltin(input); builtin {
		case route.BuiltinExit:
			return nil
		case route.BuiltinPwd:
			r.out.Plain(r.exec.WorkDir())
			continue
		case route.BuiltinClear:
			fmt.Print("\033[H\033[2J")
			continue
		case route.BuiltinCd:
			if err := r.exec.Chdir(arg); err != nil {
				r.out.Error("%v", err)
			}
			continue
		}

		reqCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		if r.shellMode {
			r.handleShellInput(reqCtx, input)
		} else {
			r.forwardToModel(reqCtx, input)
		}
		stop()
	}
}

func (r *repl) prompt() string {
	indicator := r.store.GetString(config.KeyPromptIndicator, "⭐")
	return ui.ShellPrompt(r.exec.WorkDir(), indicator, r.shellMode, r.out.IsTTY())
}

// handleShellInput routes one shell-mode line: heuristics first, then a
// direct execution attempt whose failure shape decides whether the model
// gets a chance.
func (r *repl) handleShellInput(ctx context.Context, input string) {
	decision := route.Decide(input)
	if decision.Target == route.TargetModel {
		slog.Debug("Routing input to model", "rule", decision.Rule, "input", input)
		r.forwardToModel(ctx, input)
		return
	}

	res := r.exec.Run(ctx, input, shellexec.RunOptions{Kind: shellexec.KindShell})
	if res.Err != "" {
		r.out.Error("%s", res.Err)
		return
	}
	if res.ExitCode == 0 {
		r.printOutput(res)
		return
	}

	if route.ShouldRetryWithModel(res.ExitCode, res.Stderr) {
		slog.Debug("Command failed like a non-command, rerouting to model",
			"input", input, "exitCode", res.ExitCode)
		r.forwardToModel(ctx, input)
		return
	}

	// A real command that really failed belongs to the user.
	r.printOutput(res)
	r.out.Error("Command failed with exit code %d", res.ExitCode)
}

func (r *repl) printOutput(res shellexec.Result) {
	if res.Stdout != "" {
		fmt.Print(res.Stdout)
		if !strings.HasSuffix(res.Stdout, "\n") {
			fmt.Println()
		}
	}
	if res.Stderr != "" {
		fmt.Print(res.Stderr)
		if !strings.HasSuffix(res.Stderr, "\n") {
			fmt.Println()
		}
	}
}

func (r *repl) forwardToModel(ctx context.Context, input string) {
	res := r.loop.Process(ctx, input)
	if res.Text != "" {
		r.out.Markdown(res.Text)
	}
	for _, line := range res.AddLines {
		fmt.Println(line)
	}
	if r.showUsage {
		r.out.Usage(res.Usage.PromptTokens, res.Usage.CompletionTokens, res.Usage.TotalTokens)
	}
}
