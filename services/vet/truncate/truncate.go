// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package truncate divides a model's available context among prompt
// sections and shortens text to fit its share.
package truncate

import (
	"github.com/AleutianAI/vet/pkg/logging"
	"github.com/AleutianAI/vet/services/vet/llm"
)

// Budget is the percentage of available tokens a prompt section may use.
type Budget int

const (
	BudgetRepoContext  Budget = 50
	BudgetDiff         Budget = 30
	BudgetConversation Budget = 10
	BudgetExtraContext Budget = 6
	BudgetGoal         Budget = 4
)

// Tokens converts a budget percentage into a token count given the
// total available tokens.
func (b Budget) Tokens(totalAvailable int) int {
	return totalAvailable * int(b) / 100
}

// AvailableTokens computes the tokens left for dynamic prompt content:
// context window minus prompt overhead minus the output reservation.
func AvailableTokens(contextWindow, promptOverhead, maxOutputTokens int) int {
	return contextWindow - promptOverhead - maxOutputTokens
}

// ToTokenLimit shortens text to at most maxTokens, keeping the start
// when truncateEnd is true and the end otherwise.
//
// # Outputs
//
//   - string: the (possibly shortened) text
//   - bool: whether truncation happened
func ToTokenLimit(text string, maxTokens int, count llm.TokenCounter, label string, truncateEnd bool, logger *logging.Logger) (string, bool) {
	if text == "" {
		return text, false
	}
	if logger == nil {
		logger = logging.Default()
	}
	if maxTokens <= 0 {
		logger.Warn("token budget is zero or negative, dropping section", "section", label)
		return "", true
	}

	tokens := count(text)
	if tokens <= maxTokens {
		return text, false
	}

	logger.Warn("section exceeds token limit, truncating",
		"section", label, "tokens", tokens, "limit", maxTokens)

	if truncateEnd {
		return truncationPointFromEnd(text, maxTokens, count), true
	}
	return truncationPointFromStart(text, maxTokens, count), true
}

// truncationPointFromEnd binary-searches the longest prefix of text that
// fits within maxTokens, seeded with the chars-per-token estimate.
func truncationPointFromEnd(text string, maxTokens int, count llm.TokenCounter) string {
	charEstimate := maxTokens * 4
	if charEstimate > len(text) {
		charEstimate = len(text)
	}

	low, high := 0, charEstimate
	result := ""

	if high < len(text) && count(text[:high]) <= maxTokens {
		low = high
		high = len(text)
	}

	for low <= high {
		mid := (low + high) / 2
		candidate := text[:mid]
		if count(candidate) <= maxTokens {
			result = candidate
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return result
}

// truncationPointFromStart is the suffix-keeping variant, used for
// conversation history where the latest turns matter most.
func truncationPointFromStart(text string, maxTokens int, count llm.TokenCounter) string {
	charEstimate := maxTokens * 4
	if charEstimate > len(text) {
		charEstimate = len(text)
	}
	startEstimate := len(text) - charEstimate

	low, high := 0, startEstimate
	result := text[startEstimate:]

	if count(result) > maxTokens {
		low = startEstimate
		high = len(text)
	}

	for low <= high {
		mid := (low + high) / 2
		candidate := text[mid:]
		if count(candidate) <= maxTokens {
			result = candidate
			high = mid - 1
		} else {
			low = mid + 1
		}
	}
	return result
}
