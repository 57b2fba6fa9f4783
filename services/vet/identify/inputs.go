// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package identify defines the issue-identifier contract and the three
// harnesses that implement it: single-prompt, conversation, and agentic.
package identify

import (
	"errors"
	"fmt"
)

// ErrMissingInputs means an identifier cannot run because a required
// input is absent. The pipeline skips the identifier rather than
// failing the run.
var ErrMissingInputs = errors.New("identify: required inputs missing")

// Inputs is the loosely-typed bundle the caller assembles. Every field
// is optional; identifiers narrow it to the view they require.
type Inputs struct {
	// Goal describes what the change was supposed to accomplish.
	Goal string

	// Diff is the unified diff under review.
	Diff string

	// ConversationHistory is the formatted transcript that produced the
	// change, when one exists.
	ConversationHistory string

	// ExtraContext is caller-supplied background for the review.
	ExtraContext string

	// Truncation flags record that a field was shortened to fit its
	// token budget; prompts disclose this to the model.
	GoalTruncated         bool
	DiffTruncated         bool
	ConversationTruncated bool
	ExtraContextTruncated bool
}

// InputKind states which input view an identifier consumes.
type InputKind int

const (
	// KindCommit identifiers need a goal and a diff.
	KindCommit InputKind = iota

	// KindConversation identifiers need conversation history.
	KindConversation
)

// CommitInputs is the validated view for commit-checking identifiers.
type CommitInputs struct {
	Goal          string
	Diff          string
	ExtraContext  string
	GoalTruncated bool
	DiffTruncated bool
}

// NewCommitInputs narrows in, reporting ErrMissingInputs when the goal
// or diff is absent.
func NewCommitInputs(in Inputs) (CommitInputs, error) {
	if in.Goal == "" {
		return CommitInputs{}, fmt.Errorf("%w: goal", ErrMissingInputs)
	}
	if in.Diff == "" {
		return CommitInputs{}, fmt.Errorf("%w: diff", ErrMissingInputs)
	}
	return CommitInputs{
		Goal:          in.Goal,
		Diff:          in.Diff,
		ExtraContext:  in.ExtraContext,
		GoalTruncated: in.GoalTruncated,
		DiffTruncated: in.DiffTruncated,
	}, nil
}

// ConversationInputs is the validated view for conversation-history
// identifiers.
type ConversationInputs struct {
	Conversation string
	Truncated    bool
}

// NewConversationInputs narrows in, reporting ErrMissingInputs when no
// conversation history is present.
func NewConversationInputs(in Inputs) (ConversationInputs, error) {
	if in.ConversationHistory == "" {
		return ConversationInputs{}, fmt.Errorf("%w: conversation history", ErrMissingInputs)
	}
	return ConversationInputs{
		Conversation: in.ConversationHistory,
		Truncated:    in.ConversationTruncated,
	}, nil
}
