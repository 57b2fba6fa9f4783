// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type issuesPayload struct {
	Issues []struct {
		IssueCode  string  `json:"issue_code"`
		Confidence float64 `json:"confidence"`
	} `json:"issues"`
}

func (p *issuesPayload) Validate() error {
	for _, i := range p.Issues {
		if i.IssueCode == "" {
			return fmt.Errorf("issue_code is required")
		}
	}
	return nil
}

func TestExtractJSONBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"fenced json", "preamble\n```json\n{\"a\": 1}\n```\ntrailing", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"no fence", `{"a": 1}`, `{"a": 1}`},
		{"first fence wins", "```json\n{\"a\": 1}\n```\n```json\n{\"b\": 2}\n```", `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSONBlock(tt.in))
		})
	}
}

func TestParseJSONResponse(t *testing.T) {
	text := "Here are the issues:\n```json\n{\"issues\": [{\"issue_code\": \"logic_error\", \"confidence\": 0.9}]}\n```"
	got, err := ParseJSONResponse[issuesPayload](text)
	require.NoError(t, err)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, "logic_error", got.Issues[0].IssueCode)
}

func TestParseJSONResponseInvalidJSON(t *testing.T) {
	_, err := ParseJSONResponse[issuesPayload]("```json\nnot json at all\n```")
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Reason, "invalid JSON")
}

func TestParseJSONResponseValidation(t *testing.T) {
	_, err := ParseJSONResponse[issuesPayload]("```json\n{\"issues\": [{\"confidence\": 0.5}]}\n```")
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Reason, "validation")
}

func TestParseJSONResponseEmpty(t *testing.T) {
	_, err := ParseJSONResponse[issuesPayload]("   ")
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestClassifyHTTPStatus(t *testing.T) {
	assert.True(t, errors.Is(classifyHTTPStatus(400, "prompt is too long: 250000 tokens"), ErrPromptTooLong))
	assert.True(t, errors.Is(classifyHTTPStatus(429, "rate limited"), ErrTransient))
	assert.True(t, errors.Is(classifyHTTPStatus(529, "overloaded"), ErrTransient))
	assert.True(t, errors.Is(classifyHTTPStatus(401, "bad key"), ErrBadRequest))
}

func TestPricingCost(t *testing.T) {
	p := ModelPricing{InputPerMTok: 3.0, OutputPerMTok: 15.0, CacheReadPerMTok: 0.3, CacheWritePerMTok: 3.75}
	cost := p.Cost(Usage{InputTokens: 1_000_000, OutputTokens: 100_000, CacheReadInputTokens: 1_000_000})
	assert.InDelta(t, 3.0+1.5+0.3, cost, 1e-9)
}
