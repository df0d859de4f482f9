// Package agent implements the orchestration loop: the multi-turn
// conversation state machine that alternates between querying a model and
// executing the tool calls it requests until the model produces a plain
// answer or the iteration cap stops it.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cliagent/pkg/history"
	"cliagent/pkg/provider"
	"cliagent/pkg/shellexec"
	"cliagent/pkg/tools"
)

// State of the loop for one user request.
type State int

const (
	StateIdle State = iota
	StateAwaitingModelResponse
	StateExecutingTools
	StateIterationLimitReached
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingModelResponse:
		return "AwaitingModelResponse"
	case StateExecutingTools:
		return "ExecutingTools"
	case StateIterationLimitReached:
		return "IterationLimitReached"
	case StateFinalized:
		return "Finalized"
	}
	return "Unknown"
}

// Loop defaults.
const (
	DefaultMaxIterations       = 10
	DefaultMaxToolCallsPerStep = 5
	DefaultRequestTimeout      = 120 * time.Second

	// History trim bounds: beyond maxHistoryMessages the conversation is
	// cut down to the system messages plus the most recent tail.
	maxHistoryMessages = 4000
	historyTrimKeep    = 2
)

// EnvRequestTimeout overrides the per-model-call timeout, in seconds.
const EnvRequestTimeout = "CLI_AGENT_LLM_TIMEOUT"

// Result is the outcome of processing one user request.
type Result struct {
	// Text is the assistant's final answer with shell-integration lines
	// removed.
	Text string
	// AddLines are the `ADD <fragment>` lines for the shell-integration
	// layer, in emission order.
	AddLines []string
	Usage    provider.Usage
	State    State
}

// Loop drives one session's conversation. One Loop processes one request at
// a time; no two model calls for the same session are ever in flight
// concurrently.
type Loop struct {
	Provider provider.Provider
	Model    string
	Registry *tools.Registry

	// History persists turns; nil disables persistence.
	History *history.Store
	// Exec supplies the active working directory for the system context
	// and the follow-cwd ADD line; nil disables both.
	Exec *shellexec.Executor

	// Confirm is asked whether to continue past the iteration cap. A nil
	// Confirm always declines, which is the non-interactive behavior.
	Confirm func(prompt string) bool
	// OnStatus receives short progress lines for the user; nil discards.
	OnStatus func(line string)

	MaxIterations       int
	MaxToolCallsPerStep int
	RequestTimeout      time.Duration
	// FollowCwd emits an ADD cd line when the session's working directory
	// moved away from where it started.
	FollowCwd bool

	// SystemPrompt seeds the conversation on the first request.
	SystemPrompt string

	messages []provider.Message
	state    State
}

// State returns the loop's current state.
func (l *Loop) State() State { return l.state }

// Messages returns the conversation as accumulated so far.
func (l *Loop) Messages() []provider.Message { return l.messages }

// SeedHistory pre-loads previously persisted messages; call before the
// first Process.
func (l *Loop) SeedHistory(msgs []provider.Message) {
	l.messages = append(l.messages, msgs...)
}

func (l *Loop) maxIterations() int {
	if l.MaxIterations > 0 {
		return l.MaxIterations
	}
	return DefaultMaxIterations
}

func (l *Loop) maxToolCalls() int {
	if l.MaxToolCallsPerStep > 0 {
		return l.MaxToolCallsPerStep
	}
	return DefaultMaxToolCallsPerStep
}

func (l *Loop) status(line string) {
	if l.OnStatus != nil {
		l.OnStatus(line)
	}
}

// Process runs the loop for one user request and returns the final
// response. Provider failures abort only this request; the conversation
// never ends up with a dangling assistant turn or half-written tool-result
// pairs.
func (l *Loop) Process(ctx context.Context, userInput string) Result {
	l.seedSystemMessage()

	l.appendMessage(provider.Message{Role: provider.RoleUser, Content: userInput})
	if l.History != nil {
		if err := l.History.AppendNLCommand(userInput); err != nil {
			slog.Warn("Failed to record command history", "error", err)
		}
	}
	l.trimHistory()

	var usage provider.Usage
	limit := l.maxIterations()

	for iteration := 1; ; iteration++ {
		if iteration > limit {
			l.state = StateIterationLimitReached
			prompt := fmt.Sprintf("Reached the iteration limit (%d). Do you want to continue? (Y/n)", limit)
			if l.Confirm != nil && l.Confirm(prompt+" ") {
				limit += l.maxIterations()
				slog.Info("Iteration limit extended", "newLimit", limit)
			} else {
				l.appendMessage(provider.Message{Role: provider.RoleAssistant, Content: prompt})
				l.state = StateFinalized
				return Result{Text: prompt, Usage: usage, State: l.state}
			}
		}

		l.state = StateAwaitingModelResponse
		slog.Debug("Calling model", "provider", l.Provider.Name(), "model", l.Model,
			"iteration", iteration, "limit", limit, "messages", len(l.messages))

		resp, err := l.send(ctx)
		if err != nil {
			l.state = StateFinalized
			errText := fmt.Sprintf("Error in iteration %d: %v", iteration, err)
			slog.Error("Model call failed", "iteration", iteration, "error", err)
			return Result{Text: errText, Usage: usage, State: l.state}
		}
		usage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			l.appendMessage(resp.AssistantMessage())
			l.state = StateFinalized
			human, addLines := splitAddLines(resp.Text)
			addLines = l.followCwd(addLines)
			return Result{Text: human, AddLines: addLines, Usage: usage, State: l.state}
		}

		l.state = StateExecutingTools
		calls := resp.ToolCalls
		if len(calls) > l.maxToolCalls() {
			slog.Warn("Truncating tool calls", "requested", len(calls), "cap", l.maxToolCalls())
			l.status(fmt.Sprintf("Truncated tool calls to %d.", l.maxToolCalls()))
			calls = calls[:l.maxToolCalls()]
			resp.ToolCalls = calls
		}

		l.appendMessage(resp.AssistantMessage())
		for _, call := range calls {
			l.status(fmt.Sprintf("→ %s", summarize(call)))
			result := l.Registry.Dispatch(ctx, call)
			l.appendMessage(provider.Message{
				Role:       provider.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}
}

func (l *Loop) send(ctx context.Context) (*provider.Response, error) {
	timeout := l.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := l.Provider.Send(callCtx, l.messages, l.Registry.Definitions(), l.Model)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("model request timed out after %s", timeout)
		}
		return nil, err
	}
	return resp, nil
}

// seedSystemMessage lazily installs the system message on the session's
// first request.
func (l *Loop) seedSystemMessage() {
	if len(l.messages) > 0 {
		return
	}
	prompt := l.SystemPrompt
	if prompt == "" {
		prompt = SystemPrompt(nil, l.maxIterations())
	}
	workDir := ""
	if l.Exec != nil {
		workDir = l.Exec.WorkDir()
	}
	l.messages = append(l.messages, provider.Message{
		Role:    provider.RoleSystem,
		Content: prompt + "\n\n" + SystemContext(workDir),
	})
}

func (l *Loop) appendMessage(msg provider.Message) {
	l.messages = append(l.messages, msg)
	if l.History != nil {
		if err := l.History.AppendChat(msg); err != nil {
			slog.Warn("Failed to persist chat message", "error", err)
		}
	}
}

// trimHistory keeps the conversation bounded: past the threshold only the
// system messages and the most recent tail survive.
func (l *Loop) trimHistory() {
	if len(l.messages) <= maxHistoryMessages {
		return
	}
	var trimmed []provider.Message
	for _, m := range l.messages {
		if m.Role == provider.RoleSystem {
			trimmed = append(trimmed, m)
		}
	}
	trimmed = append(trimmed, l.messages[len(l.messages)-historyTrimKeep:]...)
	slog.Info("Trimmed conversation history", "before", len(l.messages), "after", len(trimmed))
	l.messages = trimmed
}

func (l *Loop) followCwd(addLines []string) []string {
	if !l.FollowCwd || l.Exec == nil {
		return addLines
	}
	active, initial := l.Exec.WorkDir(), l.Exec.InitialDir()
	if active == "" || initial == "" || active == initial {
		return addLines
	}
	for _, line := range addLines {
		if strings.HasPrefix(strings.TrimSpace(line), "ADD cd ") {
			return addLines
		}
	}
	return append(addLines, "ADD cd "+shellQuote(active))
}

// splitAddLines separates shell-integration directives from the text shown
// to the user.
func splitAddLines(text string) (human string, addLines []string) {
	var humanLines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "ADD ") {
			addLines = append(addLines, strings.TrimSpace(line))
		} else {
			humanLines = append(humanLines, line)
		}
	}
	return strings.TrimRight(strings.Join(humanLines, "\n"), "\n"), addLines
}

// shellQuote single-quotes a string for safe use in a shell fragment.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`&|;<>()*?[]#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func summarize(call provider.ToolCall) string {
	args := call.Arguments
	if len(args) > 120 {
		args = args[:120] + "..."
	}
	return call.Name + "(" + args + ")"
}
