package agent

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"runtime"
	"strings"

	"cliagent/pkg/config"
)

const systemPromptTemplate = `You are a terminal agent with cross-platform command-line access (Windows PowerShell/CMD, Linux/Unix shells).

SECURITY RULES:
	•	NEVER install software without explicit user permission.
	•	NEVER execute commands like apt, yum, brew, pip, npm, cargo install unless explicitly allowed.
	•	Check tool availability by trying to run the tool with --version or --help first.
    •	On Windows, use PowerShell commands where possible; on Unix/Linux, use standard shell commands.
	•	If a required tool is missing, clearly state which tool is needed and ask: "To proceed, I need to install [tool]. May I do so?"

EXECUTION STRATEGY:
	1.	Identify necessary commands to fulfill user requests.
	2.	Verify tool availability first.
	3.	Request explicit permission if installation is required.
	4.	Execute commands only after confirming tools are available.
	5.	Carefully analyze command results:
	    •	If successful and enough to fulfill the request, shape the response and continue with no extra functions calls.
		•	If unsuccessful or unclear, adjust and retry (max number of iterations is %[1]d).
        •	If no solution is found after %[1]d attempts, explain the issue and suggest alternatives.
	6.	Execute multiple commands sequentially if required, but strategically.

COMMAND ERROR HANDLING:
	•	When user input was attempted as a shell command but failed, help diagnose the issue.
	•	For "command not found" errors, suggest correct spelling, alternatives, or installation.
	•	For permission/syntax errors, provide specific fix suggestions.
	•	Distinguish between typos and legitimate natural language questions.
	•	If user provides context about a failed command, focus on solving that specific issue.

SHELL MODE BEHAVIOR:
	•	In shell mode, respond as concisely as possible while being helpful.
	•	Don't add conversational fluff - be direct and task-focused.
	•	When executing commands successfully, present output cleanly without extra commentary.
	•	When helping with errors, be specific and actionable.

COMPLETION RULES:
	•	ALWAYS present command outputs verbatim immediately after execution - do not process or analyze the output.
	•	Include ALL output lines, regardless of length - never summarize or truncate.
	•	After showing complete output, you may add brief commentary if needed.
	•	If output is very long (>100 lines), show it all but suggest filtering options.
	•	After 2-3 unsuccessful attempts, explain the issue clearly and propose alternatives.
	•	Respond concisely, informatively, and in the user's prompt language.
	•	Maintain original output formatting unless explicitly instructed otherwise.
    •	Result should be visually separated from rest of the response, such as comments, recommendations etc.
`

// Environment variables that supply a custom system prompt.
const (
	EnvSystemPromptFile = "CLI_AGENT_SYSTEM_PROMPT_FILE"
	EnvSystemPrompt     = "CLI_AGENT_SYSTEM_PROMPT"
)

// SystemPrompt builds the system message text. A custom prompt from the
// environment or settings is appended to the built-in one as an extra
// instruction block; the iteration cap placeholder is substituted in both.
func SystemPrompt(store *config.Store, maxIterations int) string {
	base := fmt.Sprintf(systemPromptTemplate, maxIterations)
	if custom := customPrompt(store); custom != "" {
		custom = strings.ReplaceAll(custom, "{MAX_AGENT_ITERATIONS}", fmt.Sprint(maxIterations))
		return base + "\n\nCUSTOM INSTRUCTIONS:\n" + custom
	}
	return base
}

func customPrompt(store *config.Store) string {
	if path := os.Getenv(EnvSystemPromptFile); path != "" {
		if data, err := os.ReadFile(path); err == nil && strings.TrimSpace(string(data)) != "" {
			return strings.TrimSpace(string(data))
		}
	}
	if text := strings.TrimSpace(os.Getenv(EnvSystemPrompt)); text != "" {
		return text
	}
	if store != nil {
		if path := store.GetString(config.KeySystemPromptFile, ""); path != "" {
			if data, err := os.ReadFile(path); err == nil && strings.TrimSpace(string(data)) != "" {
				return strings.TrimSpace(string(data))
			}
		}
		if text := strings.TrimSpace(store.GetString(config.KeySystemPromptText, "")); text != "" {
			return text
		}
	}
	return ""
}

// SystemContext describes the host environment so the model can pick the
// right commands: OS, shell, working directory, and which package managers
// and developer tools are actually installed.
func SystemContext(workDir string) string {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	shellName := shell[strings.LastIndex(shell, "/")+1:]

	username := os.Getenv("USER")
	if username == "" {
		if u, err := user.Current(); err == nil {
			username = u.Username
		} else {
			username = "user"
		}
	}
	hostname, _ := os.Hostname()
	hostname, _, _ = strings.Cut(hostname, ".")

	parts := []string{
		fmt.Sprintf("Operating System: %s (%s)", runtime.GOOS, runtime.GOARCH),
		fmt.Sprintf("Shell: %s (%s)", shellName, shell),
		fmt.Sprintf("Current Directory: %s", workDir),
		fmt.Sprintf("User: %s@%s", username, hostname),
	}

	if managers := available("brew", "port", "apt", "yum", "dnf", "pacman"); len(managers) > 0 {
		parts = append(parts, "Package Managers: "+strings.Join(managers, ", "))
	}
	if devTools := available("git", "python", "python3", "node", "npm", "docker", "uv", "pip"); len(devTools) > 0 {
		parts = append(parts, "Available Tools: "+strings.Join(devTools, ", "))
	}

	switch runtime.GOOS {
	case "darwin":
		parts = append(parts, "Note: macOS uses BSD-style commands (use stat -f, du without GNU options)")
	case "linux":
		parts = append(parts, "Note: Linux uses GNU-style commands (stat -c, du with GNU options)")
	}

	return "SYSTEM CONTEXT:\n" + strings.Join(parts, "\n")
}

func available(names ...string) []string {
	var found []string
	for _, name := range names {
		if _, err := exec.LookPath(name); err == nil {
			found = append(found, name)
		}
	}
	return found
}
