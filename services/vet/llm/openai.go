// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/vet/pkg/logging"
)

// OpenAIClient implements Client on any OpenAI-compatible endpoint.
//
// # Thread Safety
//
// Safe for concurrent use.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *logging.Logger
}

// NewOpenAIClient builds a client for the given model, reading the API
// key from OPENAI_API_KEY. baseURL overrides the endpoint for
// OpenAI-compatible servers; empty means api.openai.com.
func NewOpenAIClient(model, baseURL string, logger *logging.Logger) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is missing")
	}
	if model == "" {
		model = "gpt-5.1"
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}, nil
}

// Model returns the configured model identifier.
func (o *OpenAIClient) Model() string { return o.model }

// CompleteWithUsage implements Client. OpenAI caches prompt prefixes
// automatically, so cachingEnabled has no request-level effect; cache
// hits still show up in the usage.
func (o *OpenAIClient) CompleteWithUsage(ctx context.Context, prompt string, params GenerationParams, _ bool) (*Completion, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stop: params.Stop,
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}

	o.logger.Debug("sending request to OpenAI", "model", o.model, "prompt_bytes", len(prompt))

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("received empty choices from OpenAI")
	}

	usage := Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		DurationMS:   float64(time.Since(start).Milliseconds()),
	}
	if resp.Usage.PromptTokensDetails != nil {
		usage.CacheReadInputTokens = resp.Usage.PromptTokensDetails.CachedTokens
		usage.InputTokens -= usage.CacheReadInputTokens
	}
	if pricing, ok := PricingFor(o.model); ok {
		usage.CostDollars = pricing.Cost(usage)
	}
	return &Completion{Text: resp.Choices[0].Message.Content, Usage: usage}, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 400 && strings.Contains(apiErr.Message, "context length"):
			return fmt.Errorf("%w: %v", ErrPromptTooLong, err)
		case apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: %v", ErrTransient, err)
		default:
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

var _ Client = (*OpenAIClient)(nil)
