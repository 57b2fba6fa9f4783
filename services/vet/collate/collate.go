// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package collate merges fragmented issue lists from agentic
// identification into a coherent report with one agent session.
package collate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/vet/pkg/logging"
	"github.com/AleutianAI/vet/services/vet/agent"
	"github.com/AleutianAI/vet/services/vet/config"
	"github.com/AleutianAI/vet/services/vet/genstream"
	"github.com/AleutianAI/vet/services/vet/identify"
	"github.com/AleutianAI/vet/services/vet/issue"
	"github.com/AleutianAI/vet/services/vet/repoctx"
)

const collationPrompt = `You are consolidating a code-review report. Several independent
reviewers examined the same change; their findings overlap and use
inconsistent granularity.

# USER REQUEST

%s

# CHANGE UNDER REVIEW

%s

# FINDINGS TO CONSOLIDATE

%s

# INSTRUCTIONS

Merge findings that describe the same underlying problem, recategorize
findings filed under the wrong issue type, and split findings that
bundle unrelated problems. Never discard a genuine finding. Use your
read-only tools to check the code when consolidation requires judgment.

Respond with a single JSON object inside a ` + "```json" + ` fence:

{"issues": [{"issue_code": "...", "description": "...", "location": "...", "code_part": "...", "severity": 1-5, "confidence": 0.0-1.0}]}
`

// Collate drains source and replaces its issues with an agent-merged
// list. The source's debug info is preserved and the collation session
// is appended to it. A session whose response cannot be parsed falls
// back to the original issues; collation must never lose findings.
func Collate(ctx context.Context, in identify.Inputs, source *identify.Stream, pctx repoctx.ProjectContext, cfg config.Config, deps identify.Deps) *identify.Stream {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return genstream.New(func(yield func(*issue.RawIssue) error) (issue.DebugInfo, error) {
		commit, err := identify.NewCommitInputs(in)
		if err != nil {
			return issue.DebugInfo{}, err
		}

		items, debug, err := genstream.Collect(source)
		if err != nil {
			return issue.DebugInfo{}, err
		}
		if len(items) == 0 {
			return debug, nil
		}

		serialized, err := json.MarshalIndent(identify.IssueList{Issues: items}, "", "  ")
		if err != nil {
			return issue.DebugInfo{}, fmt.Errorf("collate: serializing issues: %w", err)
		}

		prompt := fmt.Sprintf(collationPrompt, commit.Goal, commit.Diff, serialized)
		transcript, err := deps.Agent.ProcessQuery(ctx, pctx.RepoPath(), prompt)
		if err != nil {
			return issue.DebugInfo{}, fmt.Errorf("collate: %w", err)
		}
		text := agent.ResponseText(transcript)

		merged := identify.IssuesFromResponseTexts([]string{text}, deps.Logger)
		if len(merged) == 0 && len(items) > 0 {
			deps.Logger.Warn("collation response unusable, keeping original issues",
				"original_count", len(items))
			merged = items
		}

		for _, iss := range merged {
			if err := yield(iss); err != nil {
				return issue.DebugInfo{}, err
			}
		}

		response := issue.LLMResponse{
			Metadata: issue.ResponseMetadata{Phase: issue.PhaseCollation},
			RawTexts: []string{text},
		}
		if result, ok := agent.FinalResult(transcript); ok {
			response.Invocation = issue.InvocationInfo{
				InputTokens:              result.InputTokens,
				CacheCreationInputTokens: result.CacheCreationInputTokens,
				CacheReadInputTokens:     result.CacheReadInputTokens,
				OutputTokens:             result.OutputTokens,
				DurationMS:               result.DurationMS,
				CostDollars:              result.CostDollars,
				NumTurns:                 result.NumTurns,
			}
		}
		return debug.Append(response), nil
	})
}
