// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dedupe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/vet/services/vet/config"
	"github.com/AleutianAI/vet/services/vet/genstream"
	"github.com/AleutianAI/vet/services/vet/identify"
	"github.com/AleutianAI/vet/services/vet/issue"
	"github.com/AleutianAI/vet/services/vet/llm"
)

type stubLLM struct {
	response string
	err      error
	calls    int
	prompts  []string
	params   []llm.GenerationParams
}

func (s *stubLLM) Model() string { return "claude-sonnet-4-5" }

func (s *stubLLM) CompleteWithUsage(_ context.Context, prompt string, params llm.GenerationParams, _ bool) (*llm.Completion, error) {
	s.calls++
	s.prompts = append(s.prompts, prompt)
	s.params = append(s.params, params)
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Completion{Text: s.response, Usage: llm.Usage{CostDollars: 0.002}}, nil
}

func rawIssue(code string, confidence float64, passes bool) *issue.RawIssue {
	iss := &issue.RawIssue{IssueCode: code, Description: "d", Severity: 3, Confidence: confidence}
	iss.SetPassesFiltration(passes)
	return iss
}

func sourceStream(items ...*issue.RawIssue) *identify.Stream {
	return genstream.FromSlice(items, issue.DebugInfo{})
}

func TestDeduplicateMerges(t *testing.T) {
	client := &stubLLM{
		response: "```json\n{\"issues\": [{\"issue_code\": \"logic_error\", \"description\": \"merged\", \"severity\": 4, \"confidence\": 0.99}]}\n```",
	}
	source := sourceStream(
		rawIssue("logic_error", 0.9, true),
		rawIssue("runtime_error_risk", 0.85, true),
		rawIssue("unused_code", 0.3, false),
	)

	s := Deduplicate(context.Background(), source, config.Default(), identify.Deps{LLM: client})
	items, debug, err := genstream.Collect(s)
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "merged", items[0].Description)
	assert.True(t, items[0].PassesFiltration())
	// Merging cannot raise confidence above the best input.
	assert.Equal(t, 0.9, items[0].Confidence)

	// The failing issue rides along untouched.
	assert.Equal(t, "unused_code", items[1].IssueCode)
	assert.False(t, items[1].PassesFiltration())

	require.Len(t, debug.Responses, 1)
	assert.Equal(t, issue.PhaseDeduplication, debug.Responses[0].Metadata.Phase)

	// Deterministic merge: temperature zero.
	require.Len(t, client.params, 1)
	require.NotNil(t, client.params[0].Temperature)
	assert.Zero(t, *client.params[0].Temperature)

	// Only passing issues are in the merge prompt.
	assert.Contains(t, client.prompts[0], "logic_error")
	assert.NotContains(t, client.prompts[0], "unused_code")
}

func TestDeduplicateSinglePassingIssueSkipsCall(t *testing.T) {
	client := &stubLLM{}
	source := sourceStream(
		rawIssue("logic_error", 0.9, true),
		rawIssue("unused_code", 0.3, false),
	)

	s := Deduplicate(context.Background(), source, config.Default(), identify.Deps{LLM: client})
	items, _, err := genstream.Collect(s)
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Zero(t, client.calls)
	assert.Equal(t, "logic_error", items[0].IssueCode)
}

func TestDeduplicateEmptySource(t *testing.T) {
	client := &stubLLM{}
	s := Deduplicate(context.Background(), sourceStream(), config.Default(), identify.Deps{LLM: client})
	items, _, err := genstream.Collect(s)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, client.calls)
}

func TestDeduplicateUnparseableResponseKeepsOriginals(t *testing.T) {
	client := &stubLLM{response: "they all look unique to me"}
	source := sourceStream(
		rawIssue("logic_error", 0.9, true),
		rawIssue("race_condition", 0.85, true),
	)

	s := Deduplicate(context.Background(), source, config.Default(), identify.Deps{LLM: client})
	items, debug, err := genstream.Collect(s)
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "logic_error", items[0].IssueCode)
	assert.Equal(t, "race_condition", items[1].IssueCode)
	require.Len(t, debug.Responses, 1)
}

func TestDeduplicateClientErrorPropagates(t *testing.T) {
	client := &stubLLM{err: llm.ErrTransient}
	source := sourceStream(
		rawIssue("logic_error", 0.9, true),
		rawIssue("race_condition", 0.85, true),
	)

	s := Deduplicate(context.Background(), source, config.Default(), identify.Deps{LLM: client})
	_, _, err := genstream.Collect(s)
	assert.ErrorIs(t, err, llm.ErrTransient)
}
