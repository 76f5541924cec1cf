// Package llm talks to OpenAI-compatible chat-completion backends. Every
// call is a single attempt with a hard per-backend timeout so the scan
// pipeline can bound tail latency deterministically.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const systemPrompt = "You are a helpful security agent."

// chatRequest is the chat-completions wire payload.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Completer is the single operation the pipeline needs from a backend.
type Completer interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client is one reviewer backend.
type Client struct {
	name    string
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

// NewClient creates a reviewer client. The base URL is normalized so that
// configs may carry a trailing /v1 or /chat suffix.
func NewClient(name, baseURL, model, apiKey string, timeout time.Duration) *Client {
	return &Client{
		name:    name,
		baseURL: NormalizeBaseURL(baseURL),
		model:   model,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// NormalizeBaseURL strips trailing /v1 and /chat path segments; the client
// appends the full /v1/chat/completions path itself.
func NormalizeBaseURL(base string) string {
	base = strings.TrimRight(base, "/")
	for {
		switch {
		case strings.HasSuffix(base, "/chat"):
			base = strings.TrimSuffix(base, "/chat")
		case strings.HasSuffix(base, "/v1"):
			base = strings.TrimSuffix(base, "/v1")
		default:
			return base
		}
	}
}

// Name returns the backend's display name.
func (c *Client) Name() string { return c.name }

// Complete sends one chat completion and returns the first choice's content.
// No retries: any transport, status or decode failure is returned to the
// caller, which reduces it to "no opinion".
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, c.model, prompt)
}

func (c *Client) complete(ctx context.Context, model, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.1,
		MaxTokens:   120,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := c.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}

// Ping checks backend liveness via the models listing endpoint.
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// StatusError is an HTTP-level failure from a backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.Code, truncate(e.Body, 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
