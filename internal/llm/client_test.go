package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/config"
)

func newTestClient(url string) *Client {
	return NewClient(&config.Config{
		CompletionURL:         url,
		CompletionAPIKey:      "test-key",
		CompletionModel:       "test-model",
		CompletionMaxTokens:   100,
		CompletionTemperature: 0.5,
	})
}

func TestClient_Complete(t *testing.T) {
	var captured chatCompletionsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(chatCompletionsResponse{
			Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: "  Recursion is when a function calls itself.  "}}},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	history := []Turn{
		{Role: RoleUser, Text: "hello"},
		{Role: RoleAvatar, Text: "hi there"},
	}
	got, err := c.Complete(context.Background(), "be brief", history, "what is recursion")
	if err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}
	if got != "Recursion is when a function calls itself." {
		t.Errorf("unexpected reply: %q", got)
	}

	// system + 2 history turns + newest prompt, oldest first
	if len(captured.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || captured.Messages[0].Content != "be brief" {
		t.Errorf("unexpected system message: %+v", captured.Messages[0])
	}
	if captured.Messages[1].Role != "user" || captured.Messages[1].Content != "hello" {
		t.Errorf("unexpected first history message: %+v", captured.Messages[1])
	}
	if captured.Messages[2].Role != "assistant" || captured.Messages[2].Content != "hi there" {
		t.Errorf("avatar turn should map to assistant role: %+v", captured.Messages[2])
	}
	if captured.Messages[3].Role != "user" || captured.Messages[3].Content != "what is recursion" {
		t.Errorf("unexpected prompt message: %+v", captured.Messages[3])
	}

	if captured.MaxTokens != 100 {
		t.Errorf("expected max tokens 100, got %d", captured.MaxTokens)
	}
	if captured.Temperature != 0.5 {
		t.Errorf("expected temperature 0.5, got %f", captured.Temperature)
	}
}

func TestClient_Complete_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if _, err := c.Complete(context.Background(), "", nil, "hi"); err == nil {
		t.Fatal("expected error on 503 response")
	}
}

func TestClient_Complete_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatCompletionsResponse{})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if _, err := c.Complete(context.Background(), "", nil, "hi"); err == nil {
		t.Fatal("expected error on empty choices")
	}
}

func TestClient_Complete_MissingAPIKey(t *testing.T) {
	c := NewClient(&config.Config{CompletionURL: "http://localhost"})
	if _, err := c.Complete(context.Background(), "", nil, "hi"); err == nil {
		t.Fatal("expected error when api key is missing")
	}
}

func TestClient_Complete_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := newTestClient(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Complete(ctx, "", nil, "hi"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
