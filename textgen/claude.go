package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"top10-pipeline/services"
)

const claudeEndpoint = "https://api.anthropic.com/v1/messages"

// Claude calls Anthropic's messages REST API.
type Claude struct {
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
}

// NewClaude builds a Claude backend for the given model.
func NewClaude(apiKey, model string, temperature float64) *Claude {
	return &Claude{
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		httpClient:  newHTTPClient(),
	}
}

func (c *Claude) Name() string { return "claude" }

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Generate sends prompt to Claude and returns the first content block.
func (c *Claude) Generate(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("CLAUDE_API_KEY not set")
	}

	body, err := json.Marshal(claudeRequest{
		Model:       c.model,
		MaxTokens:   4096,
		Temperature: c.temperature,
		Messages:    []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", claudeEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("claude request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &services.HTTPError{
			Service:    "claude",
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter(resp),
			Body:       string(respBytes),
		}
	}

	var out claudeResponse
	if err := json.Unmarshal(respBytes, &out); err != nil {
		return "", fmt.Errorf("parse claude response: %w", err)
	}
	if len(out.Content) == 0 {
		return "", fmt.Errorf("claude returned no content")
	}
	return out.Content[0].Text, nil
}
