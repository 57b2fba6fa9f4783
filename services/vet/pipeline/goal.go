// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/vet/services/vet/config"
	"github.com/AleutianAI/vet/services/vet/identify"
	"github.com/AleutianAI/vet/services/vet/issue"
	"github.com/AleutianAI/vet/services/vet/llm"
	"github.com/AleutianAI/vet/services/vet/truncate"
)

const goalSynthesisPrompt = `Below is a conversation between a user and an AI coding assistant.
State, in one or two sentences, what the user asked the assistant to
accomplish. Describe only the user's request; do not describe what the
assistant did. Respond with the sentences alone, no preamble.

# CONVERSATION

%s
`

// synthesizeGoal recovers the change's goal from the conversation that
// produced it, for callers that have a transcript but no commit message.
func synthesizeGoal(ctx context.Context, conversation string, cfg config.Config, deps identify.Deps) (string, issue.LLMResponse, error) {
	available := cfg.Model.ContextWindow - cfg.MaxPromptOverhead - cfg.MaxOutputTokens
	transcript, _ := truncate.ToTokenLimit(
		conversation, truncate.BudgetConversation.Tokens(available),
		deps.Counter, "conversation", false, deps.Logger)

	temperature := float32(0)
	completion, err := deps.LLM.CompleteWithUsage(ctx, fmt.Sprintf(goalSynthesisPrompt, transcript),
		llm.GenerationParams{Temperature: &temperature}, false)
	if err != nil {
		return "", issue.LLMResponse{}, fmt.Errorf("synthesizing goal: %w", err)
	}

	goal := strings.TrimSpace(completion.Text)
	if goal == "" {
		return "", issue.LLMResponse{}, fmt.Errorf("synthesizing goal: empty response")
	}

	return goal, issue.LLMResponse{
		Metadata:   issue.ResponseMetadata{Phase: issue.PhaseIdentification},
		RawTexts:   []string{completion.Text},
		Invocation: issue.InvocationInfo{
			InputTokens:              completion.Usage.InputTokens,
			CacheCreationInputTokens: completion.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     completion.Usage.CacheReadInputTokens,
			OutputTokens:             completion.Usage.OutputTokens,
			DurationMS:               completion.Usage.DurationMS,
			CostDollars:              completion.Usage.CostDollars,
		},
	}, nil
}
