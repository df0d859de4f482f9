// Package openaicompat implements provider.Provider for OpenAI-compatible
// chat-completion backends: the OpenAI cloud API and local servers that speak
// its wire format (LM Studio).
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"cliagent/pkg/provider"
)

const defaultMaxTokens = 4096

// Client wraps one OpenAI-compatible endpoint.
type Client struct {
	name   string
	api    *openai.Client
	local  bool
	effort string
}

// NewOpenAI creates the adapter for the OpenAI cloud backend.
func NewOpenAI(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing API key in environment variable OPENAI_API_KEY")
	}
	return &Client{
		name:   provider.NameOpenAI,
		api:    openai.NewClient(apiKey),
		effort: "low",
	}, nil
}

// NewLMStudio creates the adapter for a local LM Studio server. baseURL
// defaults to the standard local endpoint; LM Studio ignores the API key but
// the client library requires one.
func NewLMStudio(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:1234/v1"
	}
	if apiKey == "" {
		apiKey = "lm-studio"
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Client{
		name:  provider.NameLMStudio,
		api:   openai.NewClientWithConfig(cfg),
		local: true,
	}
}

func (c *Client) Name() string { return c.name }

// Send submits the conversation. If the backend rejects a specific request
// parameter, that parameter is removed and the request retried exactly once;
// any other failure propagates unchanged.
func (c *Client) Send(ctx context.Context, msgs []provider.Message, tools []provider.ToolDefinition, model string) (*provider.Response, error) {
	req := c.buildRequest(msgs, tools, model)

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		param, ok := rejectedParam(err)
		if !ok {
			return nil, fmt.Errorf("chat completion failed: %w", err)
		}
		slog.Warn("Backend rejected request parameter, retrying without it", "provider", c.name, "param", param)
		dropParam(&req, param)
		resp, err = c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("chat completion failed after dropping %q: %w", param, err)
		}
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("backend returned no choices")
	}

	msg := resp.Choices[0].Message
	out := &provider.Response{
		Text:  msg.Content,
		Model: resp.Model,
		Usage: provider.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, provider.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func (c *Client) buildRequest(msgs []provider.Message, tools []provider.ToolDefinition, model string) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertMessages(msgs),
	}
	if len(tools) > 0 {
		req.Tools = convertTools(tools)
		req.ToolChoice = "auto"
	}
	if c.local {
		// Some local OpenAI-compatible servers reject max_completion_tokens.
		req.MaxTokens = defaultMaxTokens
	} else {
		req.MaxCompletionTokens = defaultMaxTokens
		req.ReasoningEffort = c.effort
	}
	return req
}

func convertMessages(msgs []provider.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, cm)
	}
	return out
}

func convertTools(tools []provider.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// droppableParams are the request fields known to vary across
// OpenAI-compatible servers. Anything else is a real error.
var droppableParams = []string{"reasoning_effort", "max_completion_tokens", "max_tokens"}

// rejectedParam inspects a structured API error for an
// unsupported-parameter rejection and returns the offending parameter name.
func rejectedParam(err error) (string, bool) {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return "", false
	}
	if apiErr.HTTPStatusCode != 400 {
		return "", false
	}
	if apiErr.Param != nil {
		for _, p := range droppableParams {
			if *apiErr.Param == p {
				return p, true
			}
		}
	}
	for _, p := range droppableParams {
		if strings.Contains(apiErr.Message, p) {
			return p, true
		}
	}
	return "", false
}

func dropParam(req *openai.ChatCompletionRequest, param string) {
	switch param {
	case "reasoning_effort":
		req.ReasoningEffort = ""
	case "max_completion_tokens":
		req.MaxCompletionTokens = 0
	case "max_tokens":
		req.MaxTokens = 0
	}
}
