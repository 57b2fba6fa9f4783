// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the language-model client contract used by every
// pipeline stage, concrete Anthropic and OpenAI clients, JSON response
// parsing, and the dollar spend limiter.
package llm

import (
	"context"
	"errors"
)

// GenerationParams tunes a single completion request.
type GenerationParams struct {
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Usage reports token counts and cost for one completion.
type Usage struct {
	InputTokens              int
	CacheCreationInputTokens int
	CacheReadInputTokens     int
	OutputTokens             int
	CostDollars              float64
	DurationMS               float64
}

// Completion is a model response together with its usage.
type Completion struct {
	Text  string
	Usage Usage
}

// Request classification errors. Clients map provider failures onto these
// so callers can branch without knowing the provider.
var (
	// ErrPromptTooLong means the prompt exceeded the model's context
	// window. Not retryable without shrinking the prompt.
	ErrPromptTooLong = errors.New("llm: prompt exceeds context window")

	// ErrBadRequest means the request was rejected for a non-size
	// reason (auth, malformed payload). Not retryable.
	ErrBadRequest = errors.New("llm: bad request")

	// ErrTransient means a rate limit, server error, or network failure.
	// Retryable by callers that choose to; clients never retry.
	ErrTransient = errors.New("llm: transient failure")
)

// Client is the completion interface the pipeline depends on.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the pipeline calls
// them from multiple identifier goroutines.
type Client interface {
	// CompleteWithUsage sends one prompt and returns the model's text
	// with usage. cachingEnabled requests provider-side prompt caching
	// for the stable prompt prefix when the provider supports it.
	CompleteWithUsage(ctx context.Context, prompt string, params GenerationParams, cachingEnabled bool) (*Completion, error)

	// Model returns the model identifier requests are sent to.
	Model() string
}

// TokenCounter estimates the token count of text for budgeting purposes.
type TokenCounter func(text string) int

// ApproxTokenCounter estimates tokens as len/4, the usual rule of thumb
// for English text and code. Budget math only needs to be conservative,
// not exact.
func ApproxTokenCounter(text string) int {
	return len(text)/4 + 1
}

// ModelPricing is the per-million-token price sheet for one model.
type ModelPricing struct {
	InputPerMTok      float64
	OutputPerMTok     float64
	CacheWritePerMTok float64
	CacheReadPerMTok  float64
}

// Cost computes the dollar cost of the given usage under this pricing.
func (p ModelPricing) Cost(u Usage) float64 {
	const mtok = 1_000_000.0
	return float64(u.InputTokens)/mtok*p.InputPerMTok +
		float64(u.CacheCreationInputTokens)/mtok*p.CacheWritePerMTok +
		float64(u.CacheReadInputTokens)/mtok*p.CacheReadPerMTok +
		float64(u.OutputTokens)/mtok*p.OutputPerMTok
}

// pricingByModel covers the models vet is commonly configured with.
// Unknown models cost out at zero; the spend limiter then only tracks
// what providers report directly.
var pricingByModel = map[string]ModelPricing{
	"claude-sonnet-4-5":        {InputPerMTok: 3.0, OutputPerMTok: 15.0, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30},
	"claude-haiku-4-5":         {InputPerMTok: 1.0, OutputPerMTok: 5.0, CacheWritePerMTok: 1.25, CacheReadPerMTok: 0.10},
	"claude-opus-4-5":          {InputPerMTok: 5.0, OutputPerMTok: 25.0, CacheWritePerMTok: 6.25, CacheReadPerMTok: 0.50},
	"gpt-5.1":                  {InputPerMTok: 1.25, OutputPerMTok: 10.0, CacheReadPerMTok: 0.125},
	"gpt-5.1-codex":            {InputPerMTok: 1.25, OutputPerMTok: 10.0, CacheReadPerMTok: 0.125},
	"gpt-4o":                   {InputPerMTok: 2.5, OutputPerMTok: 10.0, CacheReadPerMTok: 1.25},
	"claude-3-5-sonnet-latest": {InputPerMTok: 3.0, OutputPerMTok: 15.0, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30},
}

// PricingFor returns the price sheet for model, or ok=false when the
// model is not in the table.
func PricingFor(model string) (ModelPricing, bool) {
	p, ok := pricingByModel[model]
	return p, ok
}
