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

// openAIClient implements Reasoner using OpenAI's chat completions API.
type openAIClient struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// newOpenAIClient creates a new OpenAI reasoning client.
func newOpenAIClient(cfg config.ProviderConfig) (Reasoner, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("openai API key required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	return &openAIClient{
		model:      model,
		apiKey:     cfg.APIKey.Value(),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		limiter:    newLimiter(),
	}, nil
}

func (o *openAIClient) Name() string { return "openai" }

// openAIRequest represents the chat completions request.
type openAIRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

// openAIMessage represents a message in the conversation.
type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIResponse represents the chat completions response.
type openAIResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// openAIError represents an error response.
type openAIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete sends the prompt to the OpenAI API and returns the generated
// text, with failures classified for the reliability layer.
func (o *openAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	req := openAIRequest{
		Model:       o.model,
		MaxTokens:   defaultMaxTokens,
		Temperature: 0.2, // Low temperature for consistent structured output
		Messages: []openAIMessage{
			{Role: "user", Content: prompt},
		},
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", reliability.Permanent(fmt.Errorf("marshaling request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", reliability.Permanent(fmt.Errorf("creating request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
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
		var errResp openAIError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			if errResp.Error.Type == "insufficient_quota" || errResp.Error.Code == "insufficient_quota" {
				return "", reliability.Quota(fmt.Errorf("%w: %s", reliability.ErrQuotaExceeded, errResp.Error.Message))
			}
			return "", reliability.Permanent(fmt.Errorf("api error (%d): %s", resp.StatusCode, errResp.Error.Message))
		}
		return "", reliability.Permanent(fmt.Errorf("api error (%d): %s", resp.StatusCode, string(body)))
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return "", reliability.Permanent(fmt.Errorf("parsing response: %w", err))
	}
	if len(openAIResp.Choices) == 0 {
		return "", reliability.Permanent(fmt.Errorf("empty response from API"))
	}

	return openAIResp.Choices[0].Message.Content, nil
}

var _ Reasoner = (*openAIClient)(nil)
