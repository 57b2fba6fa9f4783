// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package identify

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/vet/pkg/logging"
	"github.com/AleutianAI/vet/services/vet/agent"
	"github.com/AleutianAI/vet/services/vet/issue"
	"github.com/AleutianAI/vet/services/vet/llm"
)

// IssueList is the JSON payload identifiers are instructed to emit.
type IssueList struct {
	Issues []*issue.RawIssue `json:"issues"`
}

// Validate implements llm.Validator: scores must be in range and every
// issue needs a code and description.
func (l *IssueList) Validate() error {
	for i, iss := range l.Issues {
		if iss == nil {
			return fmt.Errorf("issue %d is null", i)
		}
		if iss.IssueCode == "" {
			return fmt.Errorf("issue %d: issue_code is required", i)
		}
		if iss.Description == "" {
			return fmt.Errorf("issue %d: description is required", i)
		}
		if iss.Severity < 1 || iss.Severity > 5 {
			return fmt.Errorf("issue %d: severity %d out of range 1..5", i, iss.Severity)
		}
		if iss.Confidence < 0 || iss.Confidence > 1 {
			return fmt.Errorf("issue %d: confidence %g out of range 0..1", i, iss.Confidence)
		}
	}
	return nil
}

// IssuesFromResponseTexts parses each response text into issues.
// Malformed responses are logged and contribute zero issues; they never
// abort identification.
func IssuesFromResponseTexts(texts []string, logger *logging.Logger) []*issue.RawIssue {
	if logger == nil {
		logger = logging.Default()
	}
	var all []*issue.RawIssue
	for _, text := range texts {
		list, err := llm.ParseJSONResponse[IssueList](text)
		if err != nil {
			var parseErr *llm.ParseError
			if errors.As(err, &parseErr) {
				logger.Warn("skipping unparseable identification response",
					"reason", parseErr.Reason, "response_bytes", len(text))
				continue
			}
			logger.Warn("skipping identification response", "error", err)
			continue
		}
		all = append(all, list.Issues...)
	}
	return all
}

// invocationFromCompletion maps completion usage onto debug-info form.
func invocationFromCompletion(u llm.Usage) issue.InvocationInfo {
	return issue.InvocationInfo{
		InputTokens:              u.InputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens,
		OutputTokens:             u.OutputTokens,
		DurationMS:               u.DurationMS,
		CostDollars:              u.CostDollars,
	}
}

// invocationFromAgentResult maps a terminal agent result onto debug-info
// form.
func invocationFromAgentResult(r agent.ResultMessage) issue.InvocationInfo {
	return issue.InvocationInfo{
		InputTokens:              r.InputTokens,
		CacheCreationInputTokens: r.CacheCreationInputTokens,
		CacheReadInputTokens:     r.CacheReadInputTokens,
		OutputTokens:             r.OutputTokens,
		DurationMS:               r.DurationMS,
		CostDollars:              r.CostDollars,
		NumTurns:                 r.NumTurns,
	}
}
