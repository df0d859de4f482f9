package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"cliagent/pkg/provider"
)

// AskUserTool lets the model request clarification. In interactive sessions
// Prompt blocks on the user's answer; without one the question itself is
// returned so the surrounding interface can surface it.
type AskUserTool struct {
	Prompt func(question string) (string, error)
}

type askUserArgs struct {
	Question string `json:"question"`
}

func (t *AskUserTool) Name() string { return "ask_user" }

func (t *AskUserTool) Description() string {
	return "Request clarification from the user. Should return a question in plain text."
}

func (t *AskUserTool) Parameters() provider.Schema {
	return provider.Schema{
		Type: "object",
		Properties: map[string]*provider.Schema{
			"question": {Type: "string", Description: "Question to ask the user"},
		},
		Required: []string{"question"},
	}
}

func (t *AskUserTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a askUserArgs
	if err := decodeArgs(t.Name(), args, &a); err != nil {
		return "", err
	}
	if a.Question == "" {
		return "", &ArgumentError{Tool: t.Name(), Err: fmt.Errorf("'question' is required")}
	}
	if t.Prompt == nil {
		return a.Question, nil
	}
	answer, err := t.Prompt(a.Question)
	if err != nil {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	return answer, nil
}
