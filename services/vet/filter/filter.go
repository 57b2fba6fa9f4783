// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package filter decides which identified issues pass filtration: a
// confidence threshold first, then an optional model-based evaluation.
// Filtration never drops issues; it only marks them.
package filter

import (
	"context"
	"fmt"

	"github.com/AleutianAI/vet/pkg/logging"
	"github.com/AleutianAI/vet/services/vet/config"
	"github.com/AleutianAI/vet/services/vet/genstream"
	"github.com/AleutianAI/vet/services/vet/identify"
	"github.com/AleutianAI/vet/services/vet/issue"
	"github.com/AleutianAI/vet/services/vet/llm"
)

// DefaultConfidenceThreshold applies when neither the model table nor
// the config overrides it.
const DefaultConfidenceThreshold = 0.8

// modelConfidenceThresholds overrides the threshold for models whose
// self-reported confidence is not calibrated the same way.
var modelConfidenceThresholds = map[string]float64{
	"gpt-5.1": 0.0,
}

// EffectiveThreshold resolves the confidence threshold for a model:
// the per-model override wins, then the config, then the default.
func EffectiveThreshold(model string, cfg config.Config) float64 {
	if t, ok := modelConfidenceThresholds[model]; ok {
		return t
	}
	return cfg.ConfidenceThresholdOrDefault(DefaultConfidenceThreshold)
}

// codeEvaluation is the rubric for issues found in code. An issue
// passes when every substantive question holds and it does not refer to
// code the change already deleted.
type codeEvaluation struct {
	IsGenuineIssue        bool `json:"is_genuine_issue"`
	IsInChangedCode       bool `json:"is_in_changed_code"`
	DescriptionIsAccurate bool `json:"description_is_accurate"`
	SeverityIsReasonable  bool `json:"severity_is_reasonable"`
	IsActionable          bool `json:"is_actionable"`
	RefersToDeletedCode   bool `json:"refers_to_deleted_code"`
}

func (e *codeEvaluation) passing() bool {
	return e.IsGenuineIssue &&
		e.IsInChangedCode &&
		e.DescriptionIsAccurate &&
		e.SeverityIsReasonable &&
		e.IsActionable &&
		!e.RefersToDeletedCode
}

// conversationEvaluation is the single-question rubric for
// conversation-history issues.
type conversationEvaluation struct {
	IsGenuineIssue bool `json:"is_genuine_issue"`
}

const codeEvaluationPrompt = `You are auditing one finding from an automated code review.

# USER REQUEST

%s

# CHANGE UNDER REVIEW

%s

# FINDING

%s

# QUESTIONS

Answer each question honestly; do not give the finding the benefit of
the doubt.

Respond with a single JSON object inside a ` + "```json" + ` fence:

{
  "is_genuine_issue": <does the finding describe a real problem?>,
  "is_in_changed_code": <is the problem in the change or code it directly affects?>,
  "description_is_accurate": <is the description technically correct?>,
  "severity_is_reasonable": <is the severity rating justified?>,
  "is_actionable": <could a developer act on this finding as written?>,
  "refers_to_deleted_code": <does the finding point at code this change removes?>
}
`

const conversationEvaluationPrompt = `You are auditing one finding from a review of an AI coding
conversation.

# FINDING

%s

# CONVERSATION

%s

Respond with a single JSON object inside a ` + "```json" + ` fence:

{"is_genuine_issue": <does the finding describe a real problem in the conversation?>}
`

// Filter re-yields every issue from source with its filtration verdict
// set exactly once.
//
// # Description
//
// Each issue first passes the confidence threshold. Survivors are then
// checked by the model evaluator when enabled: code issues get the full
// rubric, conversation issues the single-question rubric. An evaluator
// response that cannot be parsed fails open (the issue passes), and
// issues lacking the inputs their rubric needs skip evaluation and
// pass. A failed evaluator call fails the stream; only parse failures
// fail open. Evaluator calls are appended to the debug info under the
// filtration phase.
func Filter(ctx context.Context, source *identify.Stream, identifiesCodeIssues bool, in identify.Inputs, cfg config.Config, deps identify.Deps) *identify.Stream {
	deps = depsWithDefaults(deps)
	return genstream.New(func(yield func(*issue.RawIssue) error) (issue.DebugInfo, error) {
		model := ""
		if deps.LLM != nil {
			model = deps.LLM.Model()
		}
		threshold := EffectiveThreshold(model, cfg)
		var evaluations []issue.LLMResponse

		for {
			iss, ok := source.Next()
			if !ok {
				break
			}

			passes := iss.Confidence >= threshold
			if passes && cfg.FilterIssuesThroughLLMEvaluator && deps.LLM != nil {
				verdict, response, evaluated, err := evaluateIssue(ctx, iss, identifiesCodeIssues, in, cfg, deps)
				if err != nil {
					return issue.DebugInfo{}, err
				}
				if evaluated {
					passes = verdict
					evaluations = append(evaluations, response)
				}
			}

			iss.SetPassesFiltration(passes)
			if err := yield(iss); err != nil {
				return issue.DebugInfo{}, err
			}
		}

		debug, err := source.Final()
		if err != nil {
			return issue.DebugInfo{}, err
		}
		return debug.Append(evaluations...), nil
	})
}

// evaluateIssue runs the model rubric for one issue. evaluated is false
// when the rubric's inputs are missing and evaluation was skipped. A
// call failure is returned as an error, never converted into a verdict.
func evaluateIssue(ctx context.Context, iss *issue.RawIssue, identifiesCodeIssues bool, in identify.Inputs, cfg config.Config, deps identify.Deps) (verdict bool, response issue.LLMResponse, evaluated bool, err error) {
	finding := formatFinding(iss)

	var prompt string
	if identifiesCodeIssues {
		commit, err := identify.NewCommitInputs(in)
		if err != nil {
			deps.Logger.Debug("skipping issue evaluation, commit inputs missing", "issue_code", iss.IssueCode)
			return true, issue.LLMResponse{}, false, nil
		}
		prompt = fmt.Sprintf(codeEvaluationPrompt, commit.Goal, commit.Diff, finding)
	} else {
		conv, err := identify.NewConversationInputs(in)
		if err != nil {
			deps.Logger.Debug("skipping issue evaluation, conversation missing", "issue_code", iss.IssueCode)
			return true, issue.LLMResponse{}, false, nil
		}
		prompt = fmt.Sprintf(conversationEvaluationPrompt, finding, conv.Conversation)
	}

	temperature := float32(0)
	completion, err := deps.LLM.CompleteWithUsage(ctx, prompt, llm.GenerationParams{Temperature: &temperature}, false)
	if err != nil {
		return false, issue.LLMResponse{}, false, fmt.Errorf("evaluating %s issue: %w", iss.IssueCode, err)
	}

	response = issue.LLMResponse{
		Metadata: issue.ResponseMetadata{
			Phase:     issue.PhaseFiltration,
			IssueType: iss.IssueCode,
		},
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

	if identifiesCodeIssues {
		eval, err := llm.ParseJSONResponse[codeEvaluation](completion.Text)
		if err != nil {
			deps.Logger.Warn("unparseable evaluation response, passing issue through", "issue_code", iss.IssueCode)
			return true, response, true, nil
		}
		return eval.passing(), response, true, nil
	}

	eval, err := llm.ParseJSONResponse[conversationEvaluation](completion.Text)
	if err != nil {
		deps.Logger.Warn("unparseable evaluation response, passing issue through", "issue_code", iss.IssueCode)
		return true, response, true, nil
	}
	return eval.IsGenuineIssue, response, true, nil
}

func formatFinding(iss *issue.RawIssue) string {
	out := fmt.Sprintf("issue_code: %s\nseverity: %d\nconfidence: %.2f\ndescription: %s",
		iss.IssueCode, iss.Severity, iss.Confidence, iss.Description)
	if iss.Location != "" {
		out += "\nlocation: " + iss.Location
	}
	if iss.CodePart != "" {
		out += "\ncode_part:\n" + iss.CodePart
	}
	return out
}

func depsWithDefaults(d identify.Deps) identify.Deps {
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	return d
}
