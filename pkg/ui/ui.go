// Package ui renders assistant output for the terminal: markdown via
// glamour when stdout is a TTY, plain text otherwise, plus the shell-mode
// prompt and a few shared styles.
package ui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	usageStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
)

// Renderer writes assistant and status output to one stream.
type Renderer struct {
	out      io.Writer
	tty      bool
	markdown *glamour.TermRenderer
}

// New creates a renderer for out. Markdown rendering and styling are
// enabled only when out is a terminal.
func New(out *os.File) *Renderer {
	r := &Renderer{out: out, tty: isatty.IsTerminal(out.Fd())}
	if r.tty {
		// The auto style queries the terminal; "dark" keeps output clean
		// when stdin is shared with the line editor.
		r.markdown, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(100),
		)
	}
	return r
}

// Markdown renders assistant text. Falls back to plain text off-TTY or when
// rendering fails.
func (r *Renderer) Markdown(text string) {
	if r.markdown != nil {
		if rendered, err := r.markdown.Render(text); err == nil {
			fmt.Fprint(r.out, rendered)
			return
		}
	}
	fmt.Fprintln(r.out, text)
}

// Plain writes text verbatim with a trailing newline.
func (r *Renderer) Plain(text string) {
	fmt.Fprintln(r.out, text)
}

// Error writes an error line.
func (r *Renderer) Error(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if r.tty {
		msg = errorStyle.Render(msg)
	}
	fmt.Fprintln(r.out, msg)
}

// Status writes a dim progress line.
func (r *Renderer) Status(line string) {
	if r.tty {
		line = statusStyle.Render(line)
	}
	fmt.Fprintln(r.out, line)
}

// Usage writes the token usage summary for one request.
func (r *Renderer) Usage(prompt, completion, total int) {
	line := fmt.Sprintf("[tokens: %d prompt + %d completion = %d total]", prompt, completion, total)
	if r.tty {
		line = usageStyle.Render(line)
	}
	fmt.Fprintln(r.out, line)
}

// IsTTY reports whether the output stream is a terminal.
func (r *Renderer) IsTTY() bool { return r.tty }

// ShellPrompt builds the shell-mode prompt line: the agent indicator when
// agent mode is on, then user@host:path$ with the home directory shortened
// to ~.
func ShellPrompt(workDir, indicator string, agentMode, color bool) string {
	user := os.Getenv("USER")
	if user == "" {
		user = "user"
	}
	host, _ := os.Hostname()
	host, _, _ = strings.Cut(host, ".")

	path := workDir
	if home, err := os.UserHomeDir(); err == nil {
		if workDir == home {
			path = "~"
		} else if rel, err := filepath.Rel(home, workDir); err == nil && !strings.HasPrefix(rel, "..") {
			path = "~/" + rel
		}
	}

	prefix := ""
	if agentMode && indicator != "" {
		prefix = indicator + " "
	}
	if color {
		return fmt.Sprintf("%s%s:%s$ ", prefix, promptStyle.Render(user+"@"+host), path)
	}
	return fmt.Sprintf("%s%s@%s:%s$ ", prefix, user, host, path)
}
