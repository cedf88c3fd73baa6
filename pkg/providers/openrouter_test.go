package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hollisdev/ember/pkg/config"
)

func testProvider(t *testing.T, handler http.HandlerFunc) *OpenRouterProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.Providers.OpenRouter.APIKey = "test-key"
	cfg.Providers.OpenRouter.APIBase = srv.URL

	p, err := NewOpenRouterProvider(cfg)
	if err != nil {
		t.Fatalf("NewOpenRouterProvider: %v", err)
	}
	return p
}

func TestChat_ParsesContentAndToolCalls(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}
		w.Write([]byte(`{
			"choices": [{
				"message": {
					"content": "thinking",
					"tool_calls": [{"id": "tc1", "type": "function", "function": {"name": "read_file", "arguments": "{\"path\": \"a.txt\"}"}}]
				},
				"finish_reason": "tool_calls"
			}]
		}`))
	})

	resp, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, "", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "thinking" {
		t.Errorf("Content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "read_file" {
		t.Fatalf("ToolCalls = %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].Arguments["path"] != "a.txt" {
		t.Errorf("Arguments = %v", resp.ToolCalls[0].Arguments)
	}
}

func TestChat_RateLimitIsFallbackError(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limit exceeded"}}`))
	})

	_, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, "m", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsModelFallback(err) {
		t.Errorf("429 should be a fallback error: %v", err)
	}
}

func TestChat_BadRequestIsNotFallback(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "invalid request"}}`))
	})

	_, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, "m", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if IsModelFallback(err) {
		t.Errorf("400 should not trigger model fallback: %v", err)
	}
}

func TestChat_EmptyChoices(t *testing.T) {
	p := testProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	})

	resp, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, "m", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "" || resp.FinishReason != "stop" {
		t.Errorf("unexpected response: %+v", resp)
	}
}
