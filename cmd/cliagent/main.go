// Command cliagent is a terminal assistant: it routes natural-language
// requests to a tool-calling model loop and shell-looking input straight to
// the shell.
//
// Usage:
//
//	export OPENAI_API_KEY="..."      # or GEMINI_API_KEY / a local LM Studio
//	cliagent "find the largest files in my home directory"
//	cliagent --shell                 # interactive shell mode
//	cliagent --reset                 # truncate the session history
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"cliagent/pkg/agent"
	"cliagent/pkg/config"
	"cliagent/pkg/history"
	"cliagent/pkg/provider"
	"cliagent/pkg/provider/gemini"
	"cliagent/pkg/provider/openaicompat"
	"cliagent/pkg/shellexec"
	"cliagent/pkg/tools"
	"cliagent/pkg/ui"
)

const (
	exitOK        = 0
	exitFatal     = 1
	exitInterrupt = 130
)

type options struct {
	providerName   string
	model          string
	session        string
	shellMode      bool
	reset          bool
	trace          bool
	nonInteractive bool
	showUsage      bool
}

func main() {
	os.Exit(run(context.Background()))
}

func run(ctx context.Context) int {
	opts := &options{}

	root := &cobra.Command{
		Use:           "cliagent [request...]",
		Short:         "Terminal assistant with LLM-driven command execution",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), opts, args)
		},
	}
	root.Flags().StringVarP(&opts.providerName, "provider", "p", "", "LLM provider: openai, gemini or lmstudio")
	root.Flags().StringVarP(&opts.model, "model", "m", "", "model name (provider default when empty)")
	root.Flags().StringVarP(&opts.session, "session", "s", "default", "session name")
	root.Flags().BoolVar(&opts.shellMode, "shell", false, "run the interactive shell interface")
	root.Flags().BoolVar(&opts.reset, "reset", false, "truncate the session history and exit")
	root.Flags().BoolVar(&opts.trace, "trace", false, "enable trace logging, including HTTP dumps")
	root.Flags().BoolVar(&opts.nonInteractive, "non-interactive", false, "never prompt; decline iteration-cap extensions")
	root.Flags().BoolVar(&opts.showUsage, "usage", false, "print token usage after each request")

	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return exitInterrupt
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitFatal
	}
	return exitOK
}

func runAgent(ctx context.Context, opts *options, args []string) error {
	store, err := config.NewStore("")
	if err != nil {
		return err
	}
	if err := store.Init(); err != nil {
		return err
	}

	configDir, err := config.Dir()
	if err != nil {
		return err
	}
	if err := setupLogging(configDir, opts.trace); err != nil {
		return err
	}

	hist, err := history.New(filepath.Join(configDir, "sessions"), opts.session)
	if err != nil {
		return err
	}

	out := ui.New(os.Stdout)

	if opts.reset {
		if err := hist.Reset(); err != nil {
			return err
		}
		out.Plain("✅ reset")
		if len(args) == 0 {
			return nil
		}
	}

	providerName := opts.providerName
	if providerName == "" {
		providerName = store.GetString(config.KeyDefaultProvider, provider.NameOpenAI)
	}
	model := opts.model
	if model == "" {
		model = store.GetString(config.KeyDefaultModel, "")
	}
	if model == "" {
		model = provider.DefaultModel(providerName)
	}
	if model == "" {
		return fmt.Errorf("unknown provider %q (expected openai, gemini or lmstudio)", providerName)
	}

	backend, closeBackend, err := newProvider(ctx, providerName)
	if err != nil {
		return err
	}
	defer closeBackend()

	exec := shellexec.New("", func(kind shellexec.Kind) (time.Duration, bool) {
		key := config.KeyShellTimeout
		if kind == shellexec.KindTool {
			key = config.KeyToolTimeout
		}
		return store.Timeout(key)
	})

	interactive := !opts.nonInteractive && isatty.IsTerminal(os.Stdin.Fd())
	stdin := bufio.NewReader(os.Stdin)

	registry := newRegistry(exec, store, interactive, stdin, out)

	loop := &agent.Loop{
		Provider:            backend,
		Model:               model,
		Registry:            registry,
		History:             hist,
		Exec:                exec,
		MaxIterations:       store.GetInt(config.KeyMaxIterations, agent.DefaultMaxIterations),
		MaxToolCallsPerStep: agent.DefaultMaxToolCallsPerStep,
		RequestTimeout:      requestTimeout(),
		FollowCwd:           true,
		OnStatus:            out.Status,
	}
	loop.SystemPrompt = agent.SystemPrompt(store, loop.MaxIterations)
	if interactive {
		loop.Confirm = confirmOnStdin(stdin, out)
	}

	past, err := hist.LoadChat()
	if err != nil {
		slog.Warn("Failed to load chat history", "error", err)
	} else if len(past) > 0 {
		loop.SeedHistory(append([]provider.Message{{
			Role:    provider.RoleSystem,
			Content: loop.SystemPrompt + "\n\n" + agent.SystemContext(exec.WorkDir()),
		}}, past...))
	}

	slog.Info("Session ready", "provider", providerName, "model", model, "session", opts.session)

	if len(args) > 0 {
		// One-shot mode: an interrupt cancels the request and exits 130.
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
		return runOnce(ctx, loop, out, opts, strings.Join(args, " "))
	}

	shellMode := opts.shellMode || store.GetString(config.KeyDefaultMode, "chat") == "shell"
	out.Status(provider.DisplayName(providerName, model))
	repl := &repl{
		loop:      loop,
		exec:      exec,
		out:       out,
		store:     store,
		stdin:     stdin,
		shellMode: shellMode,
		showUsage: opts.showUsage,
	}
	return repl.run(ctx)
}

// runOnce processes a single request given on the command line.
func runOnce(ctx context.Context, loop *agent.Loop, out *ui.Renderer, opts *options, request string) error {
	res := loop.Process(ctx, request)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if res.Text != "" {
		out.Markdown(res.Text)
	}
	for _, line := range res.AddLines {
		fmt.Println(line)
	}
	if opts.showUsage {
		out.Usage(res.Usage.PromptTokens, res.Usage.CompletionTokens, res.Usage.TotalTokens)
	}
	return nil
}

func newRegistry(exec *shellexec.Executor, store *config.Store, interactive bool, stdin *bufio.Reader, out *ui.Renderer) *tools.Registry {
	ask := &tools.AskUserTool{}
	if interactive {
		ask.Prompt = func(question string) (string, error) {
			out.Plain(question)
			fmt.Print("> ")
			line, err := stdin.ReadString('\n')
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(line), nil
		}
	}

	registry := tools.NewRegistry()
	registry.Register(&tools.RunShellCommandTool{Exec: exec})
	registry.Register(&tools.RunCmdTool{Exec: exec})
	registry.Register(&tools.ReadFileTool{})
	registry.Register(&tools.WriteFileTool{})
	registry.Register(ask)
	registry.Register(&tools.GetAgentConfigurationTool{Store: store})
	registry.Register(&tools.UpdateAgentConfigurationTool{Store: store})
	registry.Register(&tools.ShowConfigTool{Store: store})
	registry.Register(&tools.SetConfigValueTool{Store: store})
	return registry
}

func newProvider(ctx context.Context, name string) (provider.Provider, func(), error) {
	noop := func() {}
	switch name {
	case provider.NameOpenAI:
		p, err := openaicompat.NewOpenAI(os.Getenv("OPENAI_API_KEY"))
		return p, noop, err
	case provider.NameGemini:
		p, err := gemini.New(ctx, os.Getenv("GEMINI_API_KEY"))
		if err != nil {
			return nil, noop, err
		}
		return p, p.Close, nil
	case provider.NameLMStudio:
		return openaicompat.NewLMStudio(os.Getenv("LMSTUDIO_BASE_URL"), os.Getenv("LMSTUDIO_API_KEY")), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown provider %q (expected openai, gemini or lmstudio)", name)
}

// confirmOnStdin asks the iteration-cap question; empty input counts as yes,
// end-of-input as no.
func confirmOnStdin(stdin *bufio.Reader, out *ui.Renderer) func(prompt string) bool {
	return func(prompt string) bool {
		for {
			fmt.Print(prompt)
			line, err := stdin.ReadString('\n')
			if err != nil {
				return false
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "", "y", "yes":
				return true
			case "n", "no":
				out.Plain("Clarify the task.")
				return false
			}
			out.Plain("Please respond with 'Y' to continue or 'N' to clarify the task.")
		}
	}
}

func requestTimeout() time.Duration {
	if raw := os.Getenv(agent.EnvRequestTimeout); raw != "" {
		var secs int
		if _, err := fmt.Sscanf(raw, "%d", &secs); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return agent.DefaultRequestTimeout
}

func setupLogging(configDir string, trace bool) error {
	logPath := filepath.Join(configDir, "agent.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	logLevel := slog.LevelInfo
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "TRACE":
		logLevel = gemini.LevelTrace
	case "DEBUG":
		logLevel = slog.LevelDebug
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	}
	if trace || os.Getenv("CLI_AGENT_TRACE") == "1" || strings.EqualFold(os.Getenv("CLI_AGENT_TRACE"), "true") {
		logLevel = gemini.LevelTrace
	}

	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
	slog.Info("Logging initialized", "level", logLevel)
	return nil
}
