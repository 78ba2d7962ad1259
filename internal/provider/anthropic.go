package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/scoutd/internal/config"
	"github.com/fyrsmithlabs/scoutd/internal/reliability"
)

// anthropicClient implements Reasoner using Anthropic's messages API.
type anthropicClient struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// newAnthropicClient creates a new Anthropic reasoning client.
func newAnthropicClient(cfg config.ProviderConfig) (Reasoner, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("anthropic API key required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}

	return &anthropicClient{
		model:      model,
		apiKey:     cfg.APIKey.Value(),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		limiter:    newLimiter(),
	}, nil
}

func (a *anthropicClient) Name() string { return "anthropic" }

// anthropicRequest represents the request format for the messages API.
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
}

// anthropicMessage represents a message in the conversation.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse represents the messages API response.
type anthropicResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
}

// anthropicError represents an error response.
type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the prompt to the Anthropic API and returns the
// generated text. Failures are classified for the reliability layer:
// 429 and billing errors as quota, 5xx and transport errors as
// temporary, everything else as permanent.
func (a *anthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	req := anthropicRequest{
		Model:       a.model,
		MaxTokens:   defaultMaxTokens,
		Temperature: 0.2, // Low temperature for consistent structured output
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", reliability.Permanent(fmt.Errorf("marshaling request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", reliability.Permanent(fmt.Errorf("creating request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", a.apiKey)
	httpReq.Header.Set("Anthropic-Version", "2023-06-01")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", reliability.Temporary(fmt.Errorf("api request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", reliability.Temporary(fmt.Errorf("reading response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", reliability.Quota(fmt.Errorf("%w: rate limited (429)", reliability.ErrQuotaExceeded))
	case resp.StatusCode >= 500:
		return "", reliability.Temporary(fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body)))
	case resp.StatusCode != http.StatusOK:
		var errResp anthropicError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			if errResp.Error.Type == "billing_error" || errResp.Error.Type == "overloaded_error" {
				return "", reliability.Quota(fmt.Errorf("%w: %s", reliability.ErrQuotaExceeded, errResp.Error.Message))
			}
			return "", reliability.Permanent(fmt.Errorf("api error (%d): %s", resp.StatusCode, errResp.Error.Message))
		}
		return "", reliability.Permanent(fmt.Errorf("api error (%d): %s", resp.StatusCode, string(body)))
	}

	var claudeResp anthropicResponse
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return "", reliability.Permanent(fmt.Errorf("parsing response: %w", err))
	}
	if len(claudeResp.Content) == 0 {
		return "", reliability.Permanent(fmt.Errorf("empty response from API"))
	}

	return claudeResp.Content[0].Text, nil
}

var _ Reasoner = (*anthropicClient)(nil)
