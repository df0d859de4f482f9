package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"cliagent/pkg/config"
	"cliagent/pkg/provider"
)

// --- Get Agent Configuration Tool ---

type GetAgentConfigurationTool struct {
	Store *config.Store
}

func (t *GetAgentConfigurationTool) Name() string { return "get_agent_configuration" }

func (t *GetAgentConfigurationTool) Description() string {
	return "Return the agent's current persistent settings as JSON."
}

func (t *GetAgentConfigurationTool) Parameters() provider.Schema {
	return provider.Schema{Type: "object"}
}

func (t *GetAgentConfigurationTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	data, err := json.MarshalIndent(t.Store.Load(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode settings: %w", err)
	}
	return string(data), nil
}

// --- Update Agent Configuration Tool ---

type UpdateAgentConfigurationTool struct {
	Store *config.Store
}

type updateConfigArgs struct {
	Updates map[string]any `json:"updates"`
}

func (t *UpdateAgentConfigurationTool) Name() string { return "update_agent_configuration" }

func (t *UpdateAgentConfigurationTool) Description() string {
	return "Update one or more persistent agent settings. Supported keys: default_provider, " +
		"default_model, default_mode, agent_prompt_indicator, preserve_initial_location, " +
		"completion_enabled, history_length, shell_timeout, tool_timeout, max_iterations, " +
		"system_prompt_file, system_prompt_text."
}

func (t *UpdateAgentConfigurationTool) Parameters() provider.Schema {
	return provider.Schema{
		Type: "object",
		Properties: map[string]*provider.Schema{
			"updates": {
				Type:        "object",
				Description: "Partial settings object with the keys to change",
			},
		},
		Required: []string{"updates"},
	}
}

func (t *UpdateAgentConfigurationTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a updateConfigArgs
	if err := decodeArgs(t.Name(), args, &a); err != nil {
		return "", err
	}
	if len(a.Updates) == 0 {
		return "", &ArgumentError{Tool: t.Name(), Err: fmt.Errorf("'updates' must contain at least one key")}
	}

	res, err := t.Store.Update(a.Updates)
	if err != nil {
		return "", fmt.Errorf("failed to save settings: %w", err)
	}
	slog.Info("Updated agent configuration", "applied", res.Applied, "rejected", res.Rejected)

	out := map[string]any{
		"success":          len(res.Rejected) == 0,
		"applied_updates":  res.Applied,
		"rejected_updates": res.Rejected,
		"current_settings": res.Current,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(data), nil
}

// --- Show Config Tool ---

type ShowConfigTool struct {
	Store *config.Store
}

func (t *ShowConfigTool) Name() string { return "show_config" }

func (t *ShowConfigTool) Description() string {
	return "Show the configuration file location and its current values."
}

func (t *ShowConfigTool) Parameters() provider.Schema {
	return provider.Schema{Type: "object"}
}

func (t *ShowConfigTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return t.Store.Render(), nil
}

// --- Set Config Value Tool ---

type SetConfigValueTool struct {
	Store *config.Store
}

type setConfigValueArgs struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

func (t *SetConfigValueTool) Name() string { return "set_config_value" }

func (t *SetConfigValueTool) Description() string {
	return "Set a single configuration value by dotted path, e.g. provider.model."
}

func (t *SetConfigValueTool) Parameters() provider.Schema {
	return provider.Schema{
		Type: "object",
		Properties: map[string]*provider.Schema{
			"path":  {Type: "string", Description: "Dotted configuration path"},
			"value": {Type: "string", Description: "New value"},
		},
		Required: []string{"path", "value"},
	}
}

func (t *SetConfigValueTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a setConfigValueArgs
	if err := decodeArgs(t.Name(), args, &a); err != nil {
		return "", err
	}
	if a.Path == "" {
		return "", &ArgumentError{Tool: t.Name(), Err: fmt.Errorf("'path' is required")}
	}
	msg, err := t.Store.SetPath(a.Path, a.Value)
	if err != nil {
		return "", err
	}
	slog.Info("Set configuration value", "path", a.Path)
	return msg, nil
}
