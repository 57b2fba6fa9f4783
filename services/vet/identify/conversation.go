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

// ConversationHarness reviews the conversation transcript that produced
// a change, rather than the change itself. Its findings are not code
// issues; filtration applies the conversation rubric to them.
type ConversationHarness struct {
	name  string
	codes []issue.Code
	cfg   config.Config
	deps  Deps
}

// NewConversationHarness builds the harness.
func NewConversationHarness(name string, codes []issue.Code, cfg config.Config, deps Deps) *ConversationHarness {
	return &ConversationHarness{name: name, codes: codes, cfg: cfg, deps: deps.withDefaults()}
}

func (h *ConversationHarness) Name() string { return h.name }
func (h *ConversationHarness) InputKind() InputKind { return KindConversation }
func (h *ConversationHarness) EnabledIssueCodes() []issue.Code { return h.codes }
func (h *ConversationHarness) RequiresAgenticCollation() bool { return false }
func (h *ConversationHarness) IdentifiesCodeIssues() bool { return false }

func (h *ConversationHarness) ValidateInputs(in Inputs) error {
	_, err := NewConversationInputs(in)
	return err
}

// IdentifyIssues implements Identifier.
func (h *ConversationHarness) IdentifyIssues(ctx context.Context, in Inputs, pctx repoctx.ProjectContext) *Stream {
	return genstream.New(func(yield func(*issue.RawIssue) error) (issue.DebugInfo, error) {
		conv, err := NewConversationInputs(in)
		if err != nil {
			return issue.DebugInfo{}, err
		}

		repoContext, err := pctx.FormattedRepoContext()
		if err != nil {
			return issue.DebugInfo{}, fmt.Errorf("%s: rendering repo context: %w", h.name, err)
		}

		available := availableTokens(h.cfg)
		// Keep the end of the conversation; the latest turns carry the
		// claims worth checking.
		transcript, truncated := truncate.ToTokenLimit(
			conv.Conversation, truncate.BudgetConversation.Tokens(available),
			h.deps.Counter, "conversation", false, h.deps.Logger)

		prompt := renderConversationPrompt(conversationPromptData{
			RepoContext:  repoContext,
			Conversation: transcript,
			Truncated:    truncated || conv.Truncated,
			Guides:       guides.FormatForPromptWith(h.codes, false, h.deps.GuideOverrides),
		})

		temperature := h.cfg.Temperature
		maxTokens := h.cfg.MaxOutputTokens
		completion, err := h.deps.LLM.CompleteWithUsage(ctx, prompt, llm.GenerationParams{
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
		}, h.cfg.CacheFullPrompt)
		if err != nil {
			return issue.DebugInfo{}, fmt.Errorf("%s: %w", h.name, err)
		}

		for _, iss := range IssuesFromResponseTexts([]string{completion.Text}, h.deps.Logger) {
			if err := yield(iss); err != nil {
				return issue.DebugInfo{}, err
			}
		}

		return issue.DebugInfo{}.Append(issue.LLMResponse{
			Metadata:   issue.ResponseMetadata{Phase: issue.PhaseIdentification},
			RawTexts:   []string{completion.Text},
			Invocation: invocationFromCompletion(completion.Usage),
		}), nil
	})
}

var _ Identifier = (*ConversationHarness)(nil)
