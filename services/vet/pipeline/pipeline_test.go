// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/vet/services/vet/agent"
	"github.com/AleutianAI/vet/services/vet/config"
	"github.com/AleutianAI/vet/services/vet/identify"
	"github.com/AleutianAI/vet/services/vet/issue"
	"github.com/AleutianAI/vet/services/vet/llm"
	"github.com/AleutianAI/vet/services/vet/repoctx"
)

// scriptedLLM returns the response whose key is a substring of the
// prompt, falling back to an empty issue list.
type scriptedLLM struct {
	mu        sync.Mutex
	responses map[string]string
	err       error
	calls     int
	prompts   []string
}

func (s *scriptedLLM) Model() string { return "claude-sonnet-4-5" }

func (s *scriptedLLM) CompleteWithUsage(_ context.Context, prompt string, _ llm.GenerationParams, _ bool) (*llm.Completion, error) {
	s.mu.Lock()
	s.calls++
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	text := "```json\n{\"issues\": []}\n```"
	for marker, response := range s.responses {
		if strings.Contains(prompt, marker) {
			text = response
			break
		}
	}
	return &llm.Completion{Text: text, Usage: llm.Usage{CostDollars: 0.01}}, nil
}

type scriptedAgent struct {
	mu       sync.Mutex
	response string
	calls    int
}

func (s *scriptedAgent) ProcessQuery(_ context.Context, _ string, _ string) ([]agent.Message, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return []agent.Message{agent.ResultMessage{Text: s.response, CostDollars: 0.05}}, nil
}

func issueJSON(code, location, codePart string) string {
	item := `{"issue_code": "` + code + `", "description": "found it", "severity": 4, "confidence": 0.95`
	if location != "" {
		item += `, "location": "` + location + `"`
	}
	if codePart != "" {
		item += `, "code_part": "` + codePart + `"`
	}
	item += "}"
	return "```json\n{\"issues\": [" + item + "]}\n```"
}

func testContext() repoctx.ProjectContext {
	return repoctx.NewSnapshot("/repo", map[string]string{
		"main.go": "package main\n\nfunc main() {\n\tdoWork()\n}\n",
	}, []string{"main.go"})
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.FilterIssuesThroughLLMEvaluator = false
	cfg.EnableCollation = false
	cfg.EnableDeduplication = false
	cfg.MaxSpendDollars = 0
	return cfg
}

func TestBuildIdentifiersMergesSinglePromptPresets(t *testing.T) {
	cfg := testConfig()
	ids, err := BuildIdentifiers(cfg, identify.Deps{LLM: &scriptedLLM{}, Agent: &scriptedAgent{}})
	require.NoError(t, err)

	// Two single-prompt presets collapse into one harness; the agentic
	// and conversation presets stand alone.
	require.Len(t, ids, 3)

	var names []string
	for _, id := range ids {
		names = append(names, id.Name())
	}
	assert.Contains(t, names, "batched_commit_check+correctness_commit_classifier")
	assert.Contains(t, names, "agentic_issue_identifier")
	assert.Contains(t, names, "conversation_history_issue_identifier")
}

func TestBuildIdentifiersUnknownName(t *testing.T) {
	cfg := testConfig()
	cfg.EnabledIssueIdentifiers = []string{"no_such_identifier"}
	_, err := BuildIdentifiers(cfg, identify.Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_identifier")

	cfg = testConfig()
	cfg.DisabledIssueIdentifiers = []string{"also_missing"}
	_, err = BuildIdentifiers(cfg, identify.Deps{})
	assert.Error(t, err)
}

func TestBuildIdentifiersDropsEmptyCodeIntersection(t *testing.T) {
	cfg := testConfig()
	// Only a conversation code enabled: every commit-facing preset loses
	// its whole code set and is dropped.
	cfg.EnabledIssueCodes = []string{"misleading_behavior"}

	ids, err := BuildIdentifiers(cfg, identify.Deps{})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "conversation_history_issue_identifier", ids[0].Name())
}

func TestBuildIdentifiersDisable(t *testing.T) {
	cfg := testConfig()
	cfg.DisabledIssueIdentifiers = []string{"agentic_issue_identifier", "conversation_history_issue_identifier"}

	ids, err := BuildIdentifiers(cfg, identify.Deps{})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "batched_commit_check+correctness_commit_classifier", ids[0].Name())
}

func TestRunSkipsIdentifiersWithMissingInputs(t *testing.T) {
	client := &scriptedLLM{responses: map[string]string{
		"## Issue type: logic_error": issueJSON("logic_error", "main.go", "doWork()"),
	}}
	agentStub := &scriptedAgent{response: issueJSON("resource_leakage", "", "")}
	in := identify.Inputs{Goal: "wire up doWork", Diff: "diff --git a/main.go b/main.go\n+doWork()\n"}

	report, err := Run(context.Background(), in, testContext(), testConfig(),
		identify.Deps{LLM: client, Agent: agentStub})
	require.NoError(t, err)

	// No conversation history, so the conversation identifier is skipped
	// and contributes nothing.
	require.Len(t, report.Results, 2)

	codes := map[issue.Code]bool{}
	for _, res := range report.Results {
		codes[res.Issue.Code] = true
		assert.True(t, res.PassesFiltration)
	}
	assert.True(t, codes[issue.CodeLogicError])
	assert.True(t, codes[issue.CodeResourceLeakage])
}

func TestRunResolvesLocations(t *testing.T) {
	client := &scriptedLLM{responses: map[string]string{
		"## Issue type: logic_error": issueJSON("logic_error", "/repo/main.go", "doWork()"),
	}}
	in := identify.Inputs{Goal: "wire up doWork", Diff: "diff --git a/main.go b/main.go\n+doWork()\n"}

	cfg := testConfig()
	cfg.DisabledIssueIdentifiers = []string{"agentic_issue_identifier", "conversation_history_issue_identifier"}

	report, err := Run(context.Background(), in, testContext(), cfg, identify.Deps{LLM: client})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	locs := report.Results[0].Issue.Locations
	require.Len(t, locs, 1)
	assert.Equal(t, "main.go", locs[0].Filename)
	assert.Equal(t, 4, locs[0].LineStart)
	assert.Equal(t, 4, locs[0].LineEnd)
}

func TestRunStampsIdentifierNames(t *testing.T) {
	client := &scriptedLLM{responses: map[string]string{
		"## Issue type: logic_error": issueJSON("logic_error", "", ""),
	}}
	in := identify.Inputs{Goal: "g", Diff: "d"}

	cfg := testConfig()
	cfg.DisabledIssueIdentifiers = []string{"agentic_issue_identifier", "conversation_history_issue_identifier"}

	report, err := Run(context.Background(), in, testContext(), cfg, identify.Deps{LLM: client})
	require.NoError(t, err)
	require.NotEmpty(t, report.Debug.Responses)
	for _, r := range report.Debug.Responses {
		assert.Equal(t, "batched_commit_check+correctness_commit_classifier", r.Metadata.IdentifierName)
	}
	assert.InDelta(t, 0.01, report.Debug.TotalCostDollars(), 1e-9)
}

func TestRunDropsUnknownCodes(t *testing.T) {
	client := &scriptedLLM{responses: map[string]string{
		"## Issue type: logic_error": issueJSON("imaginary_issue_kind", "", ""),
	}}
	in := identify.Inputs{Goal: "g", Diff: "d"}

	cfg := testConfig()
	cfg.DisabledIssueIdentifiers = []string{"agentic_issue_identifier", "conversation_history_issue_identifier"}

	report, err := Run(context.Background(), in, testContext(), cfg, identify.Deps{LLM: client})
	require.NoError(t, err)
	assert.Empty(t, report.Results)
}

func TestRunDeduplicatesAcrossIdentifiers(t *testing.T) {
	client := &scriptedLLM{responses: map[string]string{
		"## Issue type: logic_error": issueJSON("logic_error", "", ""),
		"# FINDINGS":                 issueJSON("logic_error", "", ""),
	}}
	agentStub := &scriptedAgent{response: issueJSON("logic_error", "", "")}
	in := identify.Inputs{Goal: "g", Diff: "d"}

	cfg := testConfig()
	cfg.EnableDeduplication = true
	cfg.DisabledIssueIdentifiers = []string{"conversation_history_issue_identifier"}

	report, err := Run(context.Background(), in, testContext(), cfg,
		identify.Deps{LLM: client, Agent: agentStub})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, issue.CodeLogicError, report.Results[0].Issue.Code)

	var phases []issue.Phase
	for _, r := range report.Debug.Responses {
		phases = append(phases, r.Metadata.Phase)
	}
	assert.Contains(t, phases, issue.PhaseDeduplication)
}

func TestRunSynthesizesGoalFromConversation(t *testing.T) {
	client := &scriptedLLM{responses: map[string]string{
		"# CONVERSATION":             "The user asked for retry logic on flaky network calls.",
		"## Issue type: logic_error": issueJSON("logic_error", "", ""),
	}}
	in := identify.Inputs{
		Diff:                "diff --git a/main.go b/main.go\n+retry()\n",
		ConversationHistory: "user: add retries please\nassistant: done",
	}

	cfg := testConfig()
	cfg.DisabledIssueIdentifiers = []string{"agentic_issue_identifier", "conversation_history_issue_identifier"}

	report, err := Run(context.Background(), in, testContext(), cfg, identify.Deps{LLM: client})
	require.NoError(t, err)
	// The synthesized goal unblocks the commit identifier.
	require.Len(t, report.Results, 1)
	assert.Equal(t, issue.CodeLogicError, report.Results[0].Issue.Code)
}

func TestRunLoadsCustomGuidesFromRepo(t *testing.T) {
	repo := t.TempDir()
	guidesDir := filepath.Join(repo, ".vet", "custom_guides")
	require.NoError(t, os.MkdirAll(guidesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(guidesDir, "logic_error.md"),
		[]byte("# vet_custom_guideline_suffix\nTreat every date computation as suspect.\n"), 0o644))

	client := &scriptedLLM{}
	in := identify.Inputs{Goal: "g", Diff: "d"}

	cfg := testConfig()
	cfg.CustomGuidesDir = filepath.Join(".vet", "custom_guides")
	cfg.DisabledIssueIdentifiers = []string{"agentic_issue_identifier", "conversation_history_issue_identifier"}

	pctx := repoctx.NewSnapshot(repo, map[string]string{"main.go": "package main\n"}, []string{"main.go"})
	_, err := Run(context.Background(), in, pctx, cfg, identify.Deps{LLM: client})
	require.NoError(t, err)

	var found bool
	for _, prompt := range client.prompts {
		if strings.Contains(prompt, "Treat every date computation as suspect.") {
			found = true
		}
	}
	assert.True(t, found, "custom guide suffix should reach the identification prompt")
}

func TestRunGoalSynthesisSpendLimitIsFatal(t *testing.T) {
	client := &scriptedLLM{err: &llm.DollarLimitError{
		RequestedDollars: 0.50,
		SpentDollars:     4.80,
		LimitDollars:     5.00,
	}}
	in := identify.Inputs{
		Diff:                "d",
		ConversationHistory: "user: add retries please",
	}

	_, err := Run(context.Background(), in, testContext(), testConfig(),
		identify.Deps{LLM: client, Agent: &scriptedAgent{}})
	var limitErr *llm.DollarLimitError
	require.ErrorAs(t, err, &limitErr)
}

func TestRunWithNoUsableInputs(t *testing.T) {
	client := &scriptedLLM{}

	report, err := Run(context.Background(), identify.Inputs{}, testContext(), testConfig(),
		identify.Deps{LLM: client, Agent: &scriptedAgent{}})
	require.NoError(t, err)

	// Every identifier is skipped; nothing runs and nothing is spent.
	assert.Empty(t, report.Results)
	assert.Empty(t, report.Debug.Responses)
	assert.Zero(t, client.calls)
}

func TestReportPassingResults(t *testing.T) {
	pass, err := issue.NewResolvedIssue(issue.CodeLogicError, "d", 3, 0.9, nil)
	require.NoError(t, err)
	fail, err := issue.NewResolvedIssue(issue.CodeUnusedCode, "d", 2, 0.3, nil)
	require.NoError(t, err)

	report := Report{Results: []issue.Result{
		{Issue: pass, PassesFiltration: true},
		{Issue: fail, PassesFiltration: false},
	}}
	passing := report.PassingResults()
	require.Len(t, passing, 1)
	assert.Equal(t, issue.CodeLogicError, passing[0].Issue.Code)
}

func TestResolveLocationsFallsBackToFilename(t *testing.T) {
	raw := &issue.RawIssue{
		IssueCode:   "logic_error",
		Description: "d",
		Severity:    3,
		Confidence:  0.9,
		Location:    "missing.go",
		CodePart:    "nothing to find",
	}
	results := resolveIssues([]*issue.RawIssue{raw}, testContext(), nil)
	require.Len(t, results, 1)
	locs := results[0].Issue.Locations
	require.Len(t, locs, 1)
	assert.Equal(t, "missing.go", locs[0].Filename)
	assert.Zero(t, locs[0].LineStart)
}
