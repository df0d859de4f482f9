package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cliagent/pkg/provider"
)

// expandHome resolves a leading ~ against the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}

// --- Read File Tool ---

type ReadFileTool struct{}

type readFileArgs struct {
	Path string `json:"path"`
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read a UTF-8 text file and return its content."
}

func (t *ReadFileTool) Parameters() provider.Schema {
	return provider.Schema{
		Type: "object",
		Properties: map[string]*provider.Schema{
			"path": {Type: "string", Description: "Path to the file to read"},
		},
		Required: []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a readFileArgs
	if err := decodeArgs(t.Name(), args, &a); err != nil {
		return "", err
	}
	if a.Path == "" {
		return "", &ArgumentError{Tool: t.Name(), Err: fmt.Errorf("'path' is required")}
	}

	slog.Info("Reading file", "path", a.Path)
	data, err := os.ReadFile(expandHome(a.Path))
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

// --- Write File Tool ---

type WriteFileTool struct{}

type writeFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write text content to a file, creating parent directories if needed."
}

func (t *WriteFileTool) Parameters() provider.Schema {
	return provider.Schema{
		Type: "object",
		Properties: map[string]*provider.Schema{
			"path":    {Type: "string", Description: "Target file path"},
			"content": {Type: "string", Description: "Text content to write"},
		},
		Required: []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a writeFileArgs
	if err := decodeArgs(t.Name(), args, &a); err != nil {
		return "", err
	}
	if a.Path == "" {
		return "", &ArgumentError{Tool: t.Name(), Err: fmt.Errorf("'path' is required")}
	}

	target := expandHome(a.Path)
	slog.Info("Writing file", "path", target, "size", len(a.Content))

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directories: %w", err)
	}
	if err := os.WriteFile(target, []byte(a.Content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return fmt.Sprintf("wrote %s", target), nil
}
