// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package identify

import (
	"context"

	"github.com/AleutianAI/vet/pkg/logging"
	"github.com/AleutianAI/vet/services/vet/agent"
	"github.com/AleutianAI/vet/services/vet/config"
	"github.com/AleutianAI/vet/services/vet/genstream"
	"github.com/AleutianAI/vet/services/vet/guides"
	"github.com/AleutianAI/vet/services/vet/issue"
	"github.com/AleutianAI/vet/services/vet/llm"
	"github.com/AleutianAI/vet/services/vet/repoctx"
)

// Stream is the item/summary shape every identifier produces: raw
// issues incrementally, debug info once the identifier finishes.
type Stream = genstream.Stream[*issue.RawIssue, issue.DebugInfo]

// Identifier is one issue-identification strategy bound to a set of
// issue codes.
//
// # Thread Safety
//
// Identifiers run concurrently with each other; implementations must
// not share mutable state across IdentifyIssues calls.
type Identifier interface {
	// Name is the identifier's registry name. Merged identifiers carry
	// a "+"-joined name.
	Name() string

	// InputKind states which input view the identifier needs.
	InputKind() InputKind

	// ValidateInputs reports ErrMissingInputs when in lacks the fields
	// this identifier requires.
	ValidateInputs(in Inputs) error

	// IdentifyIssues starts identification and returns its stream.
	IdentifyIssues(ctx context.Context, in Inputs, pctx repoctx.ProjectContext) *Stream

	// EnabledIssueCodes is the code set this identifier checks.
	EnabledIssueCodes() []issue.Code

	// RequiresAgenticCollation marks identifiers whose parallel
	// sub-sessions produce fragmented issue lists worth collating.
	RequiresAgenticCollation() bool

	// IdentifiesCodeIssues distinguishes code-issue identifiers from
	// conversation-history identifiers; filtration picks its rubric by
	// this.
	IdentifiesCodeIssues() bool
}

// Deps bundles the collaborators harnesses need.
type Deps struct {
	LLM     llm.Client
	Agent   agent.Client
	Counter llm.TokenCounter
	Logger  *logging.Logger

	// GuideOverrides holds the user's custom guide modifications,
	// applied when rendering guides into prompts. Nil means none.
	GuideOverrides map[issue.Code]guides.Override
}

func (d Deps) withDefaults() Deps {
	if d.Counter == nil {
		d.Counter = llm.ApproxTokenCounter
	}
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	return d
}

// availableTokens is the per-harness budget for dynamic prompt content.
func availableTokens(cfg config.Config) int {
	return cfg.Model.ContextWindow - cfg.MaxPromptOverhead - cfg.MaxOutputTokens
}
