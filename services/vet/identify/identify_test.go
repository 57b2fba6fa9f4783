// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package identify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/vet/services/vet/agent"
	"github.com/AleutianAI/vet/services/vet/config"
	"github.com/AleutianAI/vet/services/vet/genstream"
	"github.com/AleutianAI/vet/services/vet/guides"
	"github.com/AleutianAI/vet/services/vet/issue"
	"github.com/AleutianAI/vet/services/vet/llm"
	"github.com/AleutianAI/vet/services/vet/repoctx"
)

type stubLLM struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
}

func (s *stubLLM) Model() string { return "claude-sonnet-4-5" }

func (s *stubLLM) CompleteWithUsage(_ context.Context, prompt string, _ llm.GenerationParams, _ bool) (*llm.Completion, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Completion{Text: s.response, Usage: llm.Usage{InputTokens: 100, OutputTokens: 50, CostDollars: 0.01}}, nil
}

type stubAgent struct {
	mu        sync.Mutex
	responses map[string]string // keyed by substring matched in prompt
	fallback  string
	err       error
	calls     int
}

func (s *stubAgent) ProcessQuery(_ context.Context, _ string, prompt string) ([]agent.Message, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	text := s.fallback
	for marker, response := range s.responses {
		if strings.Contains(prompt, marker) {
			text = response
			break
		}
	}
	return []agent.Message{
		agent.ResultMessage{Text: text, CostDollars: 0.05, NumTurns: 3},
	}, nil
}

func testInputs() Inputs {
	return Inputs{Goal: "add retry logic", Diff: "diff --git a/x b/x\n+retry\n"}
}

func testContext() repoctx.ProjectContext {
	return repoctx.NewSnapshot("/repo", map[string]string{"x": "retry\n"}, []string{"x"})
}

func issuesJSON(codes ...string) string {
	var items []string
	for _, c := range codes {
		items = append(items, fmt.Sprintf(`{"issue_code": %q, "description": "d", "severity": 3, "confidence": 0.9}`, c))
	}
	return "```json\n{\"issues\": [" + strings.Join(items, ",") + "]}\n```"
}

func drain(t *testing.T, s *Stream) ([]*issue.RawIssue, issue.DebugInfo) {
	t.Helper()
	items, final, err := genstream.Collect(s)
	require.NoError(t, err)
	return items, final
}

func TestCommitInputsValidation(t *testing.T) {
	_, err := NewCommitInputs(Inputs{Diff: "d"})
	assert.ErrorIs(t, err, ErrMissingInputs)
	_, err = NewCommitInputs(Inputs{Goal: "g"})
	assert.ErrorIs(t, err, ErrMissingInputs)
	_, err = NewCommitInputs(testInputs())
	assert.NoError(t, err)
}

func TestConversationInputsValidation(t *testing.T) {
	_, err := NewConversationInputs(Inputs{})
	assert.ErrorIs(t, err, ErrMissingInputs)
	_, err = NewConversationInputs(Inputs{ConversationHistory: "hi"})
	assert.NoError(t, err)
}

func TestIssueListValidate(t *testing.T) {
	bad := &IssueList{Issues: []*issue.RawIssue{{IssueCode: "x", Description: "d", Severity: 9, Confidence: 0.5}}}
	assert.Error(t, bad.Validate())

	good := &IssueList{Issues: []*issue.RawIssue{{IssueCode: "x", Description: "d", Severity: 3, Confidence: 0.5}}}
	assert.NoError(t, good.Validate())
}

func TestIssuesFromResponseTextsSkipsMalformed(t *testing.T) {
	got := IssuesFromResponseTexts([]string{
		issuesJSON("logic_error"),
		"no json here",
		issuesJSON("race_condition"),
	}, nil)
	require.Len(t, got, 2)
	assert.Equal(t, "logic_error", got[0].IssueCode)
	assert.Equal(t, "race_condition", got[1].IssueCode)
}

func TestSinglePromptHarness(t *testing.T) {
	client := &stubLLM{response: issuesJSON("logic_error", "unused_code")}
	h := NewSinglePromptHarness("batched_commit_check",
		[]issue.Code{issue.CodeLogicError, issue.CodeUnusedCode},
		config.Default(), Deps{LLM: client})

	items, debug := drain(t, h.IdentifyIssues(context.Background(), testInputs(), testContext()))
	require.Len(t, items, 2)
	assert.Equal(t, "logic_error", items[0].IssueCode)

	require.Len(t, debug.Responses, 1)
	assert.Equal(t, issue.PhaseIdentification, debug.Responses[0].Metadata.Phase)
	assert.Equal(t, 0.01, debug.Responses[0].Invocation.CostDollars)

	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "add retry logic")
	assert.Contains(t, client.prompts[0], "## Issue type: logic_error")
}

func TestSinglePromptHarnessAppliesGuideOverrides(t *testing.T) {
	client := &stubLLM{response: issuesJSON("logic_error")}
	h := NewSinglePromptHarness("batched_commit_check",
		[]issue.Code{issue.CodeLogicError},
		config.Default(), Deps{LLM: client, GuideOverrides: map[issue.Code]guides.Override{
			issue.CodeLogicError: {Code: issue.CodeLogicError, Suffix: "Pay extra attention to date math."},
		}})

	drain(t, h.IdentifyIssues(context.Background(), testInputs(), testContext()))
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "Pay extra attention to date math.")
}

func TestSinglePromptHarnessMissingInputs(t *testing.T) {
	h := NewSinglePromptHarness("batched_commit_check", nil, config.Default(), Deps{LLM: &stubLLM{}})

	require.ErrorIs(t, h.ValidateInputs(Inputs{}), ErrMissingInputs)

	s := h.IdentifyIssues(context.Background(), Inputs{}, testContext())
	_, _, err := genstream.Collect(s)
	assert.ErrorIs(t, err, ErrMissingInputs)
}

func TestSinglePromptHarnessMalformedResponseYieldsZeroIssues(t *testing.T) {
	client := &stubLLM{response: "the model rambled instead"}
	h := NewSinglePromptHarness("batched_commit_check", []issue.Code{issue.CodeLogicError}, config.Default(), Deps{LLM: client})

	items, debug := drain(t, h.IdentifyIssues(context.Background(), testInputs(), testContext()))
	assert.Empty(t, items)
	// The unparseable response is still recorded for debugging.
	require.Len(t, debug.Responses, 1)
}

func TestConversationHarness(t *testing.T) {
	client := &stubLLM{response: issuesJSON("misleading_behavior")}
	h := NewConversationHarness("conversation_history_issue_identifier",
		[]issue.Code{issue.CodeMisleadingBehavior}, config.Default(), Deps{LLM: client})

	assert.False(t, h.IdentifiesCodeIssues())

	in := Inputs{ConversationHistory: "user: do X\nassistant: done"}
	items, _ := drain(t, h.IdentifyIssues(context.Background(), in, testContext()))
	require.Len(t, items, 1)
	assert.Contains(t, client.prompts[0], "assistant: done")
}

func TestAgenticHarnessSingleSession(t *testing.T) {
	agentStub := &stubAgent{fallback: issuesJSON("race_condition")}
	h := NewAgenticHarness("agentic_issue_identifier",
		[]issue.Code{issue.CodeRaceCondition, issue.CodeLogicError},
		config.Default(), Deps{Agent: agentStub})

	assert.True(t, h.RequiresAgenticCollation())

	items, debug := drain(t, h.IdentifyIssues(context.Background(), testInputs(), testContext()))
	require.Len(t, items, 1)
	assert.Equal(t, 1, agentStub.calls)
	require.Len(t, debug.Responses, 1)
	assert.Equal(t, 3, debug.Responses[0].Invocation.NumTurns)
}

func TestAgenticHarnessParallelSkipsFailedSessions(t *testing.T) {
	agentStub := &stubAgent{
		responses: map[string]string{
			"race_condition": issuesJSON("race_condition"),
			"logic_error":    "garbage, unparseable",
		},
		fallback: issuesJSON("unused_code"),
	}
	cfg := config.Default()
	cfg.EnableParallelAgenticIdentification = true

	h := NewAgenticHarness("agentic_issue_identifier",
		[]issue.Code{issue.CodeRaceCondition, issue.CodeLogicError, issue.CodeUnusedCode},
		cfg, Deps{Agent: agentStub})

	items, debug := drain(t, h.IdentifyIssues(context.Background(), testInputs(), testContext()))
	assert.Equal(t, 3, agentStub.calls)
	// The unparseable session contributes zero issues but the run
	// continues.
	assert.Len(t, items, 2)
	assert.Len(t, debug.Responses, 3)

	types := map[string]bool{}
	for _, r := range debug.Responses {
		types[r.Metadata.IssueType] = true
	}
	assert.True(t, types["race_condition"])
}

func TestAgenticHarnessParallelZeroWorkersDefaultsToCodeCount(t *testing.T) {
	agentStub := &stubAgent{fallback: issuesJSON("race_condition")}
	cfg := config.Config{EnableParallelAgenticIdentification: true}

	h := NewAgenticHarness("agentic_issue_identifier",
		[]issue.Code{issue.CodeRaceCondition, issue.CodeLogicError},
		cfg, Deps{Agent: agentStub})

	// An unset worker count must not stall the pool.
	items, _ := drain(t, h.IdentifyIssues(context.Background(), testInputs(), testContext()))
	assert.Equal(t, 2, agentStub.calls)
	assert.Len(t, items, 2)
}

func TestAgenticHarnessParallelAPIErrorPropagates(t *testing.T) {
	agentStub := &stubAgent{err: &agent.APIError{Message: "quota exhausted"}}
	cfg := config.Default()
	cfg.EnableParallelAgenticIdentification = true

	h := NewAgenticHarness("agentic_issue_identifier",
		[]issue.Code{issue.CodeRaceCondition, issue.CodeLogicError}, cfg, Deps{Agent: agentStub})

	s := h.IdentifyIssues(context.Background(), testInputs(), testContext())
	_, _, err := genstream.Collect(s)
	var apiErr *agent.APIError
	require.ErrorAs(t, err, &apiErr)
}
