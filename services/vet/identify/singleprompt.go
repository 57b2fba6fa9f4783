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

	"github.com/AleutianAI/vet/services/vet/config"
	"github.com/AleutianAI/vet/services/vet/genstream"
	"github.com/AleutianAI/vet/services/vet/guides"
	"github.com/AleutianAI/vet/services/vet/issue"
	"github.com/AleutianAI/vet/services/vet/llm"
	"github.com/AleutianAI/vet/services/vet/repoctx"
	"github.com/AleutianAI/vet/services/vet/truncate"
)

// SinglePromptHarness runs one model call over the goal, diff, and
// cached repo context, and parses the response into issues.
type SinglePromptHarness struct {
	name  string
	codes []issue.Code
	cfg   config.Config
	deps  Deps
}

// NewSinglePromptHarness builds the harness for the given identifier
// name and issue codes.
func NewSinglePromptHarness(name string, codes []issue.Code, cfg config.Config, deps Deps) *SinglePromptHarness {
	return &SinglePromptHarness{name: name, codes: codes, cfg: cfg, deps: deps.withDefaults()}
}

func (h *SinglePromptHarness) Name() string { return h.name }
func (h *SinglePromptHarness) InputKind() InputKind { return KindCommit }
func (h *SinglePromptHarness) EnabledIssueCodes() []issue.Code { return h.codes }
func (h *SinglePromptHarness) RequiresAgenticCollation() bool { return false }
func (h *SinglePromptHarness) IdentifiesCodeIssues() bool { return true }

func (h *SinglePromptHarness) ValidateInputs(in Inputs) error {
	_, err := NewCommitInputs(in)
	return err
}

// IdentifyIssues implements Identifier.
func (h *SinglePromptHarness) IdentifyIssues(ctx context.Context, in Inputs, pctx repoctx.ProjectContext) *Stream {
	return genstream.New(func(yield func(*issue.RawIssue) error) (issue.DebugInfo, error) {
		commit, err := NewCommitInputs(in)
		if err != nil {
			return issue.DebugInfo{}, err
		}

		prompt, err := h.buildPrompt(commit, pctx)
		if err != nil {
			return issue.DebugInfo{}, fmt.Errorf("%s: building prompt: %w", h.name, err)
		}

		temperature := h.cfg.Temperature
		maxTokens := h.cfg.MaxOutputTokens
		completion, err := h.deps.LLM.CompleteWithUsage(ctx, prompt, llm.GenerationParams{
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
		}, h.cfg.CacheFullPrompt)
		if err != nil {
			return issue.DebugInfo{}, fmt.Errorf("%s: %w", h.name, err)
		}

		found := IssuesFromResponseTexts([]string{completion.Text}, h.deps.Logger)
		h.deps.Logger.Debug("single prompt identification finished",
			"identifier", h.name, "issues", len(found))

		for _, iss := range found {
			if err := yield(iss); err != nil {
				return issue.DebugInfo{}, err
			}
		}

		debug := issue.DebugInfo{}.Append(issue.LLMResponse{
			Metadata:   issue.ResponseMetadata{Phase: issue.PhaseIdentification},
			RawTexts:   []string{completion.Text},
			Invocation: invocationFromCompletion(completion.Usage),
		})
		return debug, nil
	})
}

func (h *SinglePromptHarness) buildPrompt(commit CommitInputs, pctx repoctx.ProjectContext) (string, error) {
	prefix, err := pctx.CachedPromptPrefix()
	if err != nil {
		return "", err
	}

	available := availableTokens(h.cfg)
	goal, goalTruncated := truncate.ToTokenLimit(
		commit.Goal, truncate.BudgetGoal.Tokens(available), h.deps.Counter, "goal", true, h.deps.Logger)
	extra, _ := truncate.ToTokenLimit(
		commit.ExtraContext, truncate.BudgetExtraContext.Tokens(available), h.deps.Counter, "extra context", true, h.deps.Logger)

	return renderSinglePrompt(singlePromptData{
		PromptPrefix:  prefix,
		Goal:          goal,
		GoalTruncated: goalTruncated || commit.GoalTruncated,
		Diff:          commit.Diff,
		DiffTruncated: commit.DiffTruncated,
		ExtraContext:  extra,
		Guides:        guides.FormatForPromptWith(h.codes, false, h.deps.GuideOverrides),
	}), nil
}

var _ Identifier = (*SinglePromptHarness)(nil)
