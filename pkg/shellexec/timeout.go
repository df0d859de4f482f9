package shellexec

import (
	"log/slog"
	"strconv"
	"time"
)

// Kind selects which timeout policy applies to a run.
type Kind int

const (
	// KindShell is a command typed at the prompt and routed to the shell.
	KindShell Kind = iota
	// KindTool is a command issued by the model through a tool call.
	KindTool
)

// Built-in timeout defaults, overridable by settings or environment.
const (
	DefaultShellTimeout = 300 * time.Second
	DefaultToolTimeout  = 30 * time.Second

	// MinEstimatedTimeout is the floor applied to model-supplied estimates
	// so an overly optimistic model cannot starve a command.
	MinEstimatedTimeout = 5 * time.Second
)

// Environment variables that override the persisted timeout settings. Values
// are whole seconds; 0 disables the timeout entirely.
const (
	EnvShellTimeout = "CLI_AGENT_SHELL_TIMEOUT"
	EnvToolTimeout  = "CLI_AGENT_TOOL_TIMEOUT"
)

// ResolveTimeout computes the effective timeout for a run. The configured
// bound comes from, in order: environment override, persisted setting,
// built-in default. A model estimate, when present, is clamped to
// [MinEstimatedTimeout, bound]. The second return is false when the timeout
// is disabled (configured as zero).
func (e *Executor) ResolveTimeout(kind Kind, estimatedSeconds int) (time.Duration, bool) {
	bound, enabled := e.configuredTimeout(kind)
	if !enabled {
		return 0, false
	}
	if estimatedSeconds <= 0 {
		return bound, true
	}
	est := time.Duration(estimatedSeconds) * time.Second
	if est < MinEstimatedTimeout {
		est = MinEstimatedTimeout
	}
	if est > bound {
		est = bound
	}
	return est, true
}

func (e *Executor) configuredTimeout(kind Kind) (time.Duration, bool) {
	envVar := EnvShellTimeout
	fallback := DefaultShellTimeout
	if kind == KindTool {
		envVar = EnvToolTimeout
		fallback = DefaultToolTimeout
	}

	if e.lookupEnv != nil {
		if raw, ok := e.lookupEnv(envVar); ok {
			secs, err := strconv.Atoi(raw)
			if err != nil || secs < 0 {
				slog.Warn("Ignoring invalid timeout override", "var", envVar, "value", raw)
			} else if secs == 0 {
				return 0, false
			} else {
				return time.Duration(secs) * time.Second, true
			}
		}
	}

	if e.persisted != nil {
		if d, ok := e.persisted(kind); ok {
			if d == 0 {
				return 0, false
			}
			return d, true
		}
	}

	return fallback, true
}
