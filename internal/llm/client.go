package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ChristmasSun/TreeHacks2026-sub000/internal/config"
)

// Client implements Completer against an OpenAI-compatible
// chat-completions endpoint.
type Client struct {
	httpClient  *http.Client
	url         string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

// NewClient creates a completion client from service configuration.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		httpClient:  &http.Client{},
		url:         cfg.CompletionURL,
		apiKey:      cfg.CompletionAPIKey,
		model:       cfg.CompletionModel,
		maxTokens:   cfg.CompletionMaxTokens,
		temperature: cfg.CompletionTemperature,
	}
}

// Complete sends the system prompt, prior turns oldest-first, and the newest
// user text, returning the model's reply as trimmed plain text. No timeout is
// imposed here; callers needing a hard deadline pass a deadline context.
func (c *Client) Complete(ctx context.Context, system string, history []Turn, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("completion api key missing")
	}

	messages := make([]chatMessage, 0, len(history)+2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	for _, t := range history {
		role := "user"
		if t.Role == RoleAvatar {
			role = "assistant"
		}
		messages = append(messages, chatMessage{Role: role, Content: t.Text})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	reqBody, err := json.Marshal(chatCompletionsRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("completion service error: status=%d body=%s", resp.StatusCode, string(b))
	}

	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("completion response had no choices")
	}

	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}
