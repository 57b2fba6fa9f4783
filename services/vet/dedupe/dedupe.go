// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package dedupe collapses duplicate findings reported by different
// identifiers into single issues with one deterministic model call.
package dedupe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/vet/pkg/logging"
	"github.com/AleutianAI/vet/services/vet/config"
	"github.com/AleutianAI/vet/services/vet/genstream"
	"github.com/AleutianAI/vet/services/vet/identify"
	"github.com/AleutianAI/vet/services/vet/issue"
	"github.com/AleutianAI/vet/services/vet/llm"
)

const dedupePrompt = `Several code reviewers examined the same change independently. The
findings below therefore contain duplicates: the same underlying
problem reported more than once, with different wording or under
different issue types.

# FINDINGS

%s

# INSTRUCTIONS

Merge findings that describe the same underlying problem into one,
keeping the clearest description and the most accurate issue type.
Findings about distinct problems must stay separate; when in doubt, do
not merge. Never drop a finding that has no duplicate.

Respond with a single JSON object inside a ` + "```json" + ` fence:

{"issues": [{"issue_code": "...", "description": "...", "location": "...", "code_part": "...", "severity": 1-5, "confidence": 0.0-1.0}]}
`

// Deduplicate drains source and merges duplicated passing issues.
//
// # Description
//
// Only issues that passed filtration are deduplicated; failing issues
// are re-yielded untouched after the merged ones. With at most one
// passing issue there is nothing to merge and no model call is made.
// The merge call runs at temperature zero, and a merged issue's
// confidence is capped at the highest confidence among the inputs so
// merging cannot inflate certainty. When the response cannot be parsed
// the original passing issues are kept.
func Deduplicate(ctx context.Context, source *identify.Stream, cfg config.Config, deps identify.Deps) *identify.Stream {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return genstream.New(func(yield func(*issue.RawIssue) error) (issue.DebugInfo, error) {
		items, debug, err := genstream.Collect(source)
		if err != nil {
			return issue.DebugInfo{}, err
		}

		var passing, failing []*issue.RawIssue
		for _, iss := range items {
			if iss.PassesFiltration() {
				passing = append(passing, iss)
			} else {
				failing = append(failing, iss)
			}
		}

		if len(passing) <= 1 {
			for _, iss := range items {
				if err := yield(iss); err != nil {
					return issue.DebugInfo{}, err
				}
			}
			return debug, nil
		}

		merged, response, err := mergeIssues(ctx, passing, cfg, deps)
		if err != nil {
			return issue.DebugInfo{}, err
		}

		for _, iss := range merged {
			if err := yield(iss); err != nil {
				return issue.DebugInfo{}, err
			}
		}
		for _, iss := range failing {
			if err := yield(iss); err != nil {
				return issue.DebugInfo{}, err
			}
		}
		return debug.Append(response), nil
	})
}

func mergeIssues(ctx context.Context, passing []*issue.RawIssue, cfg config.Config, deps identify.Deps) ([]*issue.RawIssue, issue.LLMResponse, error) {
	serialized, err := json.MarshalIndent(identify.IssueList{Issues: passing}, "", "  ")
	if err != nil {
		return nil, issue.LLMResponse{}, fmt.Errorf("dedupe: serializing issues: %w", err)
	}

	temperature := float32(0)
	maxTokens := cfg.MaxOutputTokens
	completion, err := deps.LLM.CompleteWithUsage(ctx, fmt.Sprintf(dedupePrompt, serialized), llm.GenerationParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}, false)
	if err != nil {
		return nil, issue.LLMResponse{}, fmt.Errorf("dedupe: %w", err)
	}

	response := issue.LLMResponse{
		Metadata:   issue.ResponseMetadata{Phase: issue.PhaseDeduplication},
		RawTexts:   []string{completion.Text},
		Invocation: issue.InvocationInfo{
			InputTokens:              completion.Usage.InputTokens,
			CacheCreationInputTokens: completion.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     completion.Usage.CacheReadInputTokens,
			OutputTokens:             completion.Usage.OutputTokens,
			DurationMS:               completion.Usage.DurationMS,
			CostDollars:              completion.Usage.CostDollars,
		},
	}

	merged := identify.IssuesFromResponseTexts([]string{completion.Text}, deps.Logger)
	if len(merged) == 0 {
		deps.Logger.Warn("deduplication response unusable, keeping original issues",
			"original_count", len(passing))
		return passing, response, nil
	}

	maxConfidence := 0.0
	for _, iss := range passing {
		if iss.Confidence > maxConfidence {
			maxConfidence = iss.Confidence
		}
	}
	for _, iss := range merged {
		if iss.Confidence > maxConfidence {
			iss.Confidence = maxConfidence
		}
		iss.SetPassesFiltration(true)
	}
	return merged, response, nil
}
