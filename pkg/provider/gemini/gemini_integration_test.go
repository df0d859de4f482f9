package gemini_test

import (
	"context"
	"os"
	"testing"
	"time"

	"cliagent/pkg/provider"
	"cliagent/pkg/provider/gemini"
)

func TestIntegration_Gemini(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping Gemini integration test: GEMINI_API_KEY not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := gemini.New(ctx, apiKey)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	t.Log("Listing models...")
	names, err := client.ListModels(ctx)
	if err != nil {
		t.Fatalf("Failed to list models: %v", err)
	}
	if len(names) == 0 {
		t.Fatal("No models found")
	}
	for _, name := range names {
		t.Logf("Found model: %s", name)
	}

	msgs := []provider.Message{
		{Role: provider.RoleUser, Content: "Hello, just verify you work."},
	}
	resp, err := client.Send(ctx, msgs, nil, provider.DefaultModel(provider.NameGemini))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if resp.Text == "" {
		t.Fatal("Expected a non-empty response")
	}
	t.Logf("Response: %s", resp.Text)
	t.Logf("Usage: %+v", resp.Usage)
}
