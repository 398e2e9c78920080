package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
	anthropicModel   = "claude-sonnet-4-20250514"
)

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewAnthropic returns a client for the Messages API. The API key may be
// left empty when every prompt carries its own.
func NewAnthropic(cfg Config) *AnthropicClient {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = anthropicModel
	}
	return &AnthropicClient{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   model,
		client:  &http.Client{Timeout: timeoutOrDefault(cfg.Timeout)},
	}
}

// Provider returns "anthropic".
func (a *AnthropicClient) Provider() string { return "anthropic" }

// Complete sends p as a single user turn and returns the first text block.
func (a *AnthropicClient) Complete(ctx context.Context, p Prompt) (string, error) {
	key, err := resolveKey(p.APIKey, a.apiKey)
	if err != nil {
		return "", err
	}
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4000
	}

	payload := map[string]any{
		"model":      a.model,
		"max_tokens": maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": p.User},
		},
	}
	if p.System != "" {
		payload["system"] = p.System
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal messages payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build messages request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", key)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request messages completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read messages response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("messages completion failed status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode messages response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("empty messages response")
	}
	if parsed.Content[0].Type != "text" {
		return "", fmt.Errorf("unexpected content block type %q", parsed.Content[0].Type)
	}
	return parsed.Content[0].Text, nil
}
