// Package history persists per-session conversation logs under the
// configuration directory. Each session owns two files: chat.jsonl with one
// simplified message per line, and nl_history.txt with the raw
// natural-language commands for prompt recall.
//
// The canonical chat line format is `role<TAB>"json-escaped content"`. Older
// sessions stored whole JSON message objects per line; those are normalized
// on load and the file is rewritten only when the content actually changed.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cliagent/pkg/provider"
)

// Store is one session's history on disk.
type Store struct {
	sessionDir string
	chatPath   string
	nlPath     string
}

// New opens (creating if needed) the history store for a session.
func New(baseDir, session string) (*Store, error) {
	sessionDir := filepath.Join(baseDir, session)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	s := &Store{
		sessionDir: sessionDir,
		chatPath:   filepath.Join(sessionDir, "chat.jsonl"),
		nlPath:     filepath.Join(sessionDir, "nl_history.txt"),
	}
	for _, p := range []string{s.chatPath, s.nlPath} {
		f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("creating history file: %w", err)
		}
		f.Close()
	}
	return s, nil
}

// Dir returns the session directory.
func (s *Store) Dir() string { return s.sessionDir }

// Reset truncates both logs without deleting the session directory, so the
// session identity survives.
func (s *Store) Reset() error {
	for _, p := range []string{s.chatPath, s.nlPath} {
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			return fmt.Errorf("resetting history: %w", err)
		}
	}
	return nil
}

// AppendChat records a message as its simplified history lines. Tool-result
// messages are dropped; assistant tool calls are kept as name(args)
// summaries so replayed history stays compact.
func (s *Store) AppendChat(msg provider.Message) error {
	lines := messageToLines(msg)
	if len(lines) == 0 {
		return nil
	}
	return s.appendLines(s.chatPath, lines)
}

// AppendNLCommand records one natural-language input for prompt recall.
func (s *Store) AppendNLCommand(command string) error {
	command = strings.Trim(command, "\n")
	if command == "" {
		return nil
	}
	return s.appendLines(s.nlPath, []string{command})
}

// LoadNLCommands returns the recorded natural-language inputs in order.
func (s *Store) LoadNLCommands() ([]string, error) {
	data, err := os.ReadFile(s.nlPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var commands []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			commands = append(commands, line)
		}
	}
	return commands, nil
}

// LoadChat reads the chat log as simplified role/content messages,
// migrating legacy JSON-object lines to the canonical tab format. The file
// is rewritten only when migration actually changed something, so repeated
// loads are idempotent.
func (s *Store) LoadChat() ([]provider.Message, error) {
	f, err := os.Open(s.chatPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var messages []provider.Message
	var rawLines, canonicalLines []string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		rawLines = append(rawLines, line)

		if strings.HasPrefix(line, "{") {
			legacy, ok := parseLegacyLine(line)
			if !ok {
				canonicalLines = append(canonicalLines, line)
				continue
			}
			canonicalLines = append(canonicalLines, messageToLines(legacy)...)
			messages = append(messages, simplify(legacy)...)
			continue
		}

		if strings.Contains(line, "\t") {
			messages = append(messages, tabLineToMessages(line)...)
		}
		canonicalLines = append(canonicalLines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(canonicalLines) > 0 && !equalLines(canonicalLines, rawLines) {
		rewritten := strings.Join(canonicalLines, "\n") + "\n"
		if err := os.WriteFile(s.chatPath, []byte(rewritten), 0o644); err != nil {
			return nil, fmt.Errorf("rewriting migrated history: %w", err)
		}
	}

	return messages, nil
}

func (s *Store) appendLines(path string, lines []string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening history file: %w", err)
	}
	defer f.Close()
	for _, line := range lines {
		if _, err := fmt.Fprintln(f, line); err != nil {
			return fmt.Errorf("appending history line: %w", err)
		}
	}
	return nil
}

// messageToLines renders a message as canonical history lines.
func messageToLines(msg provider.Message) []string {
	switch msg.Role {
	case provider.RoleAssistant:
		var lines []string
		for _, call := range msg.ToolCalls {
			lines = append(lines, "tool\t"+escape(summarizeCall(call)))
		}
		if msg.Content != "" {
			lines = append(lines, "assistant\t"+escape(msg.Content))
		}
		return lines
	case provider.RoleTool:
		// Tool outputs are not persisted; the call summary already is.
		return nil
	case provider.RoleUser, provider.RoleDeveloper, provider.RoleSystem:
		return []string{string(msg.Role) + "\t" + escape(msg.Content)}
	}
	return nil
}

// simplify flattens a message into plain role/content entries the way they
// re-enter a future conversation.
func simplify(msg provider.Message) []provider.Message {
	switch msg.Role {
	case provider.RoleAssistant:
		var out []provider.Message
		for _, call := range msg.ToolCalls {
			out = append(out, provider.Message{
				Role:    provider.RoleAssistant,
				Content: "Tool: " + summarizeCall(call),
			})
		}
		if msg.Content != "" {
			out = append(out, provider.Message{Role: provider.RoleAssistant, Content: msg.Content})
		}
		return out
	case provider.RoleTool:
		return nil
	case provider.RoleUser, provider.RoleDeveloper, provider.RoleSystem:
		return []provider.Message{{Role: msg.Role, Content: msg.Content}}
	}
	return nil
}

func summarizeCall(call provider.ToolCall) string {
	name := call.Name
	if name == "" {
		name = "unknown"
	}
	if call.Arguments == "" {
		return name
	}
	return name + "(" + call.Arguments + ")"
}

func tabLineToMessages(line string) []provider.Message {
	role, raw, _ := strings.Cut(line, "\t")
	content := unescape(raw)

	switch role {
	case "tool":
		return []provider.Message{{Role: provider.RoleAssistant, Content: "Tool: " + content}}
	case "user", "assistant", "developer", "system":
		return []provider.Message{{Role: provider.Role(role), Content: content}}
	}
	return nil
}

// legacyLine is the old one-JSON-object-per-line format.
type legacyLine struct {
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	ToolCalls []struct {
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`
}

func parseLegacyLine(line string) (provider.Message, bool) {
	var legacy legacyLine
	if err := json.Unmarshal([]byte(line), &legacy); err != nil || legacy.Role == "" {
		return provider.Message{}, false
	}
	msg := provider.Message{
		Role:    provider.Role(legacy.Role),
		Content: legacyContent(legacy.Content),
	}
	for _, call := range legacy.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, provider.ToolCall{
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return msg, true
}

func legacyContent(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func escape(text string) string {
	data, err := json.Marshal(text)
	if err != nil {
		return `"` + text + `"`
	}
	return string(data)
}

func unescape(text string) string {
	var s string
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return text
	}
	return s
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
