package openaicompat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"cliagent/pkg/provider"
)

// fakeBackend is an OpenAI-compatible chat-completions endpoint that can
// reject a parameter on the first request.
type fakeBackend struct {
	t            *testing.T
	rejectParam  string
	requests     int
	requestBodys []map[string]any
}

func (f *fakeBackend) handler(w http.ResponseWriter, r *http.Request) {
	f.requests++
	body, err := io.ReadAll(r.Body)
	require.NoError(f.t, err)
	var decoded map[string]any
	require.NoError(f.t, json.Unmarshal(body, &decoded))
	f.requestBodys = append(f.requestBodys, decoded)

	if f.rejectParam != "" {
		if _, present := decoded[f.rejectParam]; present {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{
					"message": "Unsupported parameter: '" + f.rejectParam + "'.",
					"type":    "invalid_request_error",
					"param":   f.rejectParam,
				},
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":    "chatcmpl-1",
		"model": "test-model",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]any{"role": "assistant", "content": "hello"}, "finish_reason": "stop"},
		},
		"usage": map[string]any{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
	})
}

func newTestClient(t *testing.T, backend *fakeBackend, local bool) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(backend.handler))
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL
	c := &Client{
		name:  provider.NameOpenAI,
		api:   openai.NewClientWithConfig(cfg),
		local: local,
	}
	if !local {
		c.effort = "low"
	}
	return c
}

func TestSendRetriesOnceWithoutRejectedParam(t *testing.T) {
	backend := &fakeBackend{t: t, rejectParam: "reasoning_effort"}
	client := newTestClient(t, backend, false)

	resp, err := client.Send(context.Background(),
		[]provider.Message{{Role: provider.RoleUser, Content: "hi"}}, nil, "test-model")
	require.NoError(t, err)
	require.Equal(t, "hello", resp.Text)
	require.Equal(t, 5, resp.Usage.TotalTokens)

	require.Equal(t, 2, backend.requests)
	require.Contains(t, backend.requestBodys[0], "reasoning_effort")
	require.NotContains(t, backend.requestBodys[1], "reasoning_effort")
}

func TestSendFailsAfterSecondRejection(t *testing.T) {
	// A backend that keeps rejecting even after the drop gets exactly one
	// retry, then the error surfaces.
	backend := &fakeBackend{t: t}
	client := newTestClient(t, backend, false)

	srvReject := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "Unsupported parameter: 'reasoning_effort'.",
				"type":    "invalid_request_error",
				"param":   "reasoning_effort",
			},
		})
	}
	srv := httptest.NewServer(http.HandlerFunc(srvReject))
	t.Cleanup(srv.Close)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL
	client.api = openai.NewClientWithConfig(cfg)

	_, err := client.Send(context.Background(),
		[]provider.Message{{Role: provider.RoleUser, Content: "hi"}}, nil, "test-model")
	require.Error(t, err)
	require.Contains(t, err.Error(), "after dropping")
}

func TestLocalRequestsUseMaxTokens(t *testing.T) {
	backend := &fakeBackend{t: t}
	client := newTestClient(t, backend, true)
	client.name = provider.NameLMStudio

	_, err := client.Send(context.Background(),
		[]provider.Message{{Role: provider.RoleUser, Content: "hi"}}, nil, "local-model")
	require.NoError(t, err)

	body := backend.requestBodys[0]
	require.Contains(t, body, "max_tokens")
	require.NotContains(t, body, "max_completion_tokens")
	require.NotContains(t, body, "reasoning_effort")
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestToolCallConversion(t *testing.T) {
	msgs := []provider.Message{
		{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{
			{ID: "call-1", Name: "run_shell_command", Arguments: `{"command":"ls"}`},
		}},
		{Role: provider.RoleTool, ToolCallID: "call-1", Name: "run_shell_command", Content: "ok"},
	}
	converted := convertMessages(msgs)
	require.Len(t, converted, 2)
	require.Len(t, converted[0].ToolCalls, 1)
	require.Equal(t, "call-1", converted[0].ToolCalls[0].ID)
	require.Equal(t, "run_shell_command", converted[0].ToolCalls[0].Function.Name)
	require.Equal(t, "call-1", converted[1].ToolCallID)
}

func TestRejectedParamDetection(t *testing.T) {
	param := "max_tokens"
	apiErr := &openai.APIError{HTTPStatusCode: 400, Param: &param, Message: "unsupported"}
	got, ok := rejectedParam(apiErr)
	require.True(t, ok)
	require.Equal(t, "max_tokens", got)

	// Message-only detection.
	apiErr = &openai.APIError{HTTPStatusCode: 400, Message: "reasoning_effort is not supported"}
	got, ok = rejectedParam(apiErr)
	require.True(t, ok)
	require.Equal(t, "reasoning_effort", got)

	// Auth failures are never retried.
	apiErr = &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}
	_, ok = rejectedParam(apiErr)
	require.False(t, ok)
}
