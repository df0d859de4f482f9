// Package route decides whether a line typed at the prompt is a shell
// command or a natural-language request for the model. Classification is a
// best-effort heuristic: shell-looking lines run first and only failures
// that look like the line was never a command get rerouted to the model.
package route

import (
	"strings"
	"unicode"
)

// Target is the destination chosen for an input line.
type Target int

const (
	// TargetShell runs the line directly in the shell.
	TargetShell Target = iota
	// TargetModel forwards the line to the agent.
	TargetModel
)

// Decision is the outcome of classifying one input line.
type Decision struct {
	Target Target
	// Rule names the heuristic that fired; empty for the shell default.
	Rule string
}

// rule is one named classification signal. Rules run in order; the first
// match routes to the model and later rules never see the line.
type rule struct {
	name  string
	match func(input string) bool
}

var rules = []rule{
	{
		// A shell would choke on unbalanced quoting, but prose uses
		// apostrophes and asides freely.
		name:  "unbalanced-quoting",
		match: hasUnbalancedQuoting,
	},
	{
		// Shell syntax is ASCII; any non-Latin script means prose.
		name:  "non-latin-script",
		match: hasNonLatinScript,
	},
	{
		name: "sentence-shape",
		match: func(input string) bool {
			if len(strings.Fields(input)) < 5 {
				return false
			}
			return strings.HasSuffix(input, ".") || strings.HasSuffix(input, "!") || strings.HasSuffix(input, "?")
		},
	},
	{
		name: "instruction-verb",
		match: func(input string) bool {
			fields := strings.Fields(input)
			if len(fields) < 2 {
				return false
			}
			if !instructionVerbs[strings.ToLower(fields[0])] {
				return false
			}
			if strings.ContainsAny(input, "|&;<>$(){}*?[]~`") {
				return false
			}
			return !hasPathToken(fields)
		},
	},
}

// hasPathToken reports whether any word looks like a filesystem path, which
// reads as a command argument rather than prose.
func hasPathToken(fields []string) bool {
	for _, f := range fields {
		if strings.HasPrefix(f, "/") || strings.HasPrefix(f, "./") || strings.HasPrefix(f, "../") {
			return true
		}
	}
	return false
}

// instructionVerbs are leading words that read as a request to the
// assistant rather than a program name.
var instructionVerbs = map[string]bool{
	"show": true, "list": true, "find": true, "create": true, "make": true,
	"delete": true, "remove": true, "explain": true, "tell": true,
	"what": true, "whats": true, "what's": true, "how": true, "why": true,
	"where": true, "which": true, "who": true, "when": true,
	"can": true, "could": true, "would": true, "should": true,
	"please": true, "help": true, "give": true, "get": true,
	"check": true, "search": true, "summarize": true, "describe": true,
	"write": true, "fix": true, "install": true, "update": true,
	"do": true, "run": true, "open": true, "count": true, "compare": true,
	"is": true, "are": true, "does": true, "i": true,
}

// Decide classifies one input line.
func Decide(input string) Decision {
	input = strings.TrimSpace(input)
	for _, r := range rules {
		if r.match(input) {
			return Decision{Target: TargetModel, Rule: r.name}
		}
	}
	return Decision{Target: TargetShell}
}

func hasUnbalancedQuoting(input string) bool {
	var single, double int
	var parens int
	escaped := false
	for _, r := range input {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '\'':
			if double%2 == 0 {
				single++
			}
		case '"':
			if single%2 == 0 {
				double++
			}
		case '(':
			parens++
		case ')':
			parens--
		}
	}
	return single%2 != 0 || double%2 != 0 || parens != 0
}

func hasNonLatinScript(input string) bool {
	for _, r := range input {
		if r <= unicode.MaxASCII {
			continue
		}
		if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
			return true
		}
	}
	return false
}

// failureMarkers are stderr fragments that mean the line was probably never
// a valid command. Any other failure belongs to the user.
var failureMarkers = []string{
	"command not found",
	"not found",
	"syntax error",
	"not recognized",
	"Unknown command",
}

// ShouldRetryWithModel reports whether a failed shell execution should be
// rerouted to the model instead of surfaced as a command error.
func ShouldRetryWithModel(exitCode int, stderr string) bool {
	if exitCode == 0 {
		return false
	}
	if exitCode == 127 {
		return true
	}
	lower := strings.ToLower(stderr)
	for _, marker := range failureMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// Builtin identifies an input handled by the interface itself instead of
// either route.
type Builtin int

const (
	BuiltinNone Builtin = iota
	BuiltinCd
	BuiltinPwd
	BuiltinClear
	BuiltinExit
)

// ParseBuiltin recognizes the interface builtins. The returned argument is
// the cd target, empty for a bare cd.
func ParseBuiltin(input string) (Builtin, string) {
	input = strings.TrimSpace(input)
	switch {
	case input == "exit" || input == "quit" || input == "logout":
		return BuiltinExit, ""
	case input == "clear":
		return BuiltinClear, ""
	case input == "pwd":
		return BuiltinPwd, ""
	case input == "cd":
		return BuiltinCd, ""
	case strings.HasPrefix(input, "cd "):
		return BuiltinCd, strings.TrimSpace(strings.TrimPrefix(input, "cd "))
	}
	return BuiltinNone, ""
}
