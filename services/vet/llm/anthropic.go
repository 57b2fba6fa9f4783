// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/vet/pkg/logging"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      []systemBlock      `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
	Stop        []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"` // Must be "ephemeral"
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens              int `json:"input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	OutputTokens             int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicResponse struct {
	Type    string             `json:"type"`
	Content []anthropicContent `json:"content"`
	Usage   anthropicUsage     `json:"usage"`
	Error   *anthropicError    `json:"error,omitempty"`
}

// AnthropicClient talks to the Anthropic Messages API over plain HTTP.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying http.Client pools connections.
type AnthropicClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	logger     *logging.Logger
}

// NewAnthropicClient builds a client for the given model, reading the
// API key from ANTHROPIC_API_KEY or the conventional secrets path.
func NewAnthropicClient(model string, logger *logging.Logger) (*AnthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		if content, err := os.ReadFile("/run/secrets/anthropic_api_key"); err == nil {
			apiKey = strings.TrimSpace(string(content))
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is missing")
	}
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AnthropicClient{
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		apiKey:     apiKey,
		model:      model,
		logger:     logger,
	}, nil
}

// Model returns the configured model identifier.
func (a *AnthropicClient) Model() string { return a.model }

// CompleteWithUsage implements Client.
func (a *AnthropicClient) CompleteWithUsage(ctx context.Context, prompt string, params GenerationParams, cachingEnabled bool) (*Completion, error) {
	maxTokens := 4096
	if params.MaxTokens != nil {
		maxTokens = *params.MaxTokens
	}

	payload := anthropicRequest{
		Model:       a.model,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: params.Temperature,
		Stop:        params.Stop,
	}
	if cachingEnabled {
		// The prompt is sent as a cacheable system block so repeated
		// requests share the stable prefix server-side.
		payload.System = []systemBlock{{
			Type:         "text",
			Text:         prompt,
			CacheControl: &cacheControl{Type: "ephemeral"},
		}}
		payload.Messages = []anthropicMessage{{Role: "user", Content: "Proceed with the instructions above."}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicBaseURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	a.logger.Debug("sending request to Anthropic", "model", a.model, "prompt_bytes", len(prompt))

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPStatus(resp.StatusCode, string(respBody))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrBadRequest, apiResp.Error.Type, apiResp.Error.Message)
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("received empty content from Anthropic")
	}

	usage := Usage{
		InputTokens:              apiResp.Usage.InputTokens,
		CacheCreationInputTokens: apiResp.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     apiResp.Usage.CacheReadInputTokens,
		OutputTokens:             apiResp.Usage.OutputTokens,
		DurationMS:               float64(time.Since(start).Milliseconds()),
	}
	if pricing, ok := PricingFor(a.model); ok {
		usage.CostDollars = pricing.Cost(usage)
	}
	return &Completion{Text: text.String(), Usage: usage}, nil
}

// classifyHTTPStatus maps a provider HTTP failure onto the shared error
// taxonomy.
func classifyHTTPStatus(status int, body string) error {
	switch {
	case status == http.StatusBadRequest && strings.Contains(body, "prompt is too long"),
		status == http.StatusBadRequest && strings.Contains(body, "context length"),
		status == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: status %d: %s", ErrPromptTooLong, status, body)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrTransient, status, body)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrBadRequest, status, body)
	}
}

var _ Client = (*AnthropicClient)(nil)
