// Package inference provides clients for the upstream inference provider.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentmarket/backend/internal/application/agent"
)

// Config holds the inference client configuration
type Config struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MaxReplyTokens int
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("inference: base URL is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxReplyTokens <= 0 {
		c.MaxReplyTokens = 1024
	}
	return nil
}

// HTTPCompleter calls an OpenAI-compatible chat completion endpoint.
// It implements agent.Completer.
type HTTPCompleter struct {
	config     *Config
	httpClient *http.Client
}

var _ agent.Completer = (*HTTPCompleter)(nil)

// NewHTTPCompleter creates an inference provider client
func NewHTTPCompleter(config *Config) (*HTTPCompleter, error) {
	if config == nil {
		return nil, errors.New("inference: config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &HTTPCompleter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// Complete generates a reply for the prompt using the given model
func (c *HTTPCompleter) Complete(ctx context.Context, modelRef, systemPrompt, prompt string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: roleSystem, Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: roleUser, Content: prompt})

	reqBody := completionRequest{
		Model:     modelRef,
		Messages:  messages,
		MaxTokens: c.config.MaxReplyTokens,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("inference: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("inference: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("inference: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("inference: failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("inference: provider error: %s", errResp.Error.Message)
		}
		return "", fmt.Errorf("inference: provider returned HTTP %d", resp.StatusCode)
	}

	var completion completionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return "", fmt.Errorf("inference: failed to decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("inference: provider returned no choices")
	}

	return completion.Choices[0].Message.Content, nil
}
