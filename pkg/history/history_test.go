package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cliagent/pkg/provider"
)

func TestAppendAndLoadChat(t *testing.T) {
	s, err := New(t.TempDir(), "default")
	require.NoError(t, err)

	require.NoError(t, s.AppendChat(provider.Message{Role: provider.RoleUser, Content: "list files"}))
	require.NoError(t, s.AppendChat(provider.Message{
		Role: provider.RoleAssistant,
		ToolCalls: []provider.ToolCall{
			{ID: "call-1", Name: "run_shell_command", Arguments: `{"command":"ls"}`},
		},
	}))
	require.NoError(t, s.AppendChat(provider.Message{
		Role: provider.RoleTool, ToolCallID: "call-1", Content: "a.txt\nb.txt",
	}))
	require.NoError(t, s.AppendChat(provider.Message{Role: provider.RoleAssistant, Content: "Two files here."}))

	msgs, err := s.LoadChat()
	require.NoError(t, err)
	require.Len(t, msgs, 3) // tool output is not persisted
	require.Equal(t, provider.RoleUser, msgs[0].Role)
	require.Equal(t, "list files", msgs[0].Content)
	require.Equal(t, `Tool: run_shell_command({"command":"ls"})`, msgs[1].Content)
	require.Equal(t, "Two files here.", msgs[2].Content)
}

func TestNLCommandLog(t *testing.T) {
	s, err := New(t.TempDir(), "default")
	require.NoError(t, err)

	require.NoError(t, s.AppendNLCommand("show me the biggest files"))
	require.NoError(t, s.AppendNLCommand(""))
	require.NoError(t, s.AppendNLCommand("clean up /tmp\n"))

	commands, err := s.LoadNLCommands()
	require.NoError(t, err)
	require.Equal(t, []string{"show me the biggest files", "clean up /tmp"}, commands)
}

func TestReset(t *testing.T) {
	s, err := New(t.TempDir(), "default")
	require.NoError(t, err)
	require.NoError(t, s.AppendChat(provider.Message{Role: provider.RoleUser, Content: "hello"}))
	require.NoError(t, s.AppendNLCommand("hello"))

	require.NoError(t, s.Reset())

	for _, p := range []string{filepath.Join(s.Dir(), "chat.jsonl"), filepath.Join(s.Dir(), "nl_history.txt")} {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		require.Empty(t, data)
	}
	msgs, err := s.LoadChat()
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestLegacyJSONLinesAreMigrated(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "old")
	require.NoError(t, err)

	legacy := `{"role": "user", "content": "what is here"}
{"role": "assistant", "content": "Let me check.", "tool_calls": [{"function": {"name": "run_cmd", "arguments": "{\"cmd\":\"ls\"}"}}]}
{"role": "tool", "content": "a.txt"}
`
	chatPath := filepath.Join(dir, "old", "chat.jsonl")
	require.NoError(t, os.WriteFile(chatPath, []byte(legacy), 0o644))

	msgs, err := s.LoadChat()
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "what is here", msgs[0].Content)
	require.Equal(t, `Tool: run_cmd({"cmd":"ls"})`, msgs[1].Content)
	require.Equal(t, "Let me check.", msgs[2].Content)

	// File was rewritten to the canonical tab format.
	data, err := os.ReadFile(chatPath)
	require.NoError(t, err)
	require.Equal(t, "user\t\"what is here\"\ntool\t\"run_cmd({\\\"cmd\\\":\\\"ls\\\"})\"\nassistant\t\"Let me check.\"\n", string(data))

	// A second load of the migrated file is a no-op.
	msgs2, err := s.LoadChat()
	require.NoError(t, err)
	require.Equal(t, msgs, msgs2)
	data2, err := os.ReadFile(chatPath)
	require.NoError(t, err)
	require.Equal(t, string(data), string(data2))
}

func TestCanonicalFileIsNotRewritten(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "default")
	require.NoError(t, err)
	require.NoError(t, s.AppendChat(provider.Message{Role: provider.RoleUser, Content: "hi"}))

	chatPath := filepath.Join(dir, "default", "chat.jsonl")
	before, err := os.ReadFile(chatPath)
	require.NoError(t, err)

	_, err = s.LoadChat()
	require.NoError(t, err)

	after, err := os.ReadFile(chatPath)
	require.NoError(t, err)
	require.Equal(t, before, after)
}
