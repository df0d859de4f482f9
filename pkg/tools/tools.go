// Package tools defines the callable tool catalog exposed to the model and
// the registry that dispatches tool calls. Argument payloads arrive as raw
// JSON from the model and are decoded into a typed struct per tool at the
// boundary; a payload that does not decode is an ArgumentError fed back to
// the model, never a loop failure.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cliagent/pkg/provider"
)

// Tool is one callable capability.
type Tool interface {
	Name() string
	Description() string
	Parameters() provider.Schema
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// ArgumentError marks a payload the tool could not decode or validate.
type ArgumentError struct {
	Tool string
	Err  error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// Registry manages the available tools. The catalog is assembled once at
// session construction and read-only afterwards.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates a new, empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) {
	if _, ok := r.tools[t.Name()]; !ok {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the catalog in registration order, for the provider.
func (r *Registry) Definitions() []provider.ToolDefinition {
	defs := make([]provider.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, provider.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Dispatch executes one tool call and returns the result text. Every
// failure mode (unknown tool, bad arguments, execution error) comes back as
// text so the conversation can continue.
func (r *Registry) Dispatch(ctx context.Context, call provider.ToolCall) string {
	t, ok := r.tools[call.Name]
	if !ok {
		return fmt.Sprintf("Unknown tool: %s", call.Name)
	}
	result, err := t.Execute(ctx, json.RawMessage(call.Arguments))
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return result
}

// decodeArgs parses a raw argument payload into a tool's typed argument
// struct. An empty payload decodes as an empty object.
func decodeArgs(tool string, raw json.RawMessage, v any) error {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		text = "{}"
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return &ArgumentError{Tool: tool, Err: err}
	}
	return nil
}
