// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package identify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/vet/services/vet/agent"
	"github.com/AleutianAI/vet/services/vet/config"
	"github.com/AleutianAI/vet/services/vet/genstream"
	"github.com/AleutianAI/vet/services/vet/guides"
	"github.com/AleutianAI/vet/services/vet/issue"
	"github.com/AleutianAI/vet/services/vet/repoctx"
)

// AgenticHarness identifies issues with a tool-using agent session that
// can explore the repository.
//
// # Description
//
// In the default mode one session covers every enabled issue code and
// is instructed to fan out internally. In parallel mode the harness
// runs one session per code with a bounded worker pool; a failed
// session contributes zero issues and is logged, except agent API
// errors, which abort the identifier because every remaining session
// would fail the same way.
type AgenticHarness struct {
	name  string
	codes []issue.Code
	cfg   config.Config
	deps  Deps
}

// NewAgenticHarness builds the harness.
func NewAgenticHarness(name string, codes []issue.Code, cfg config.Config, deps Deps) *AgenticHarness {
	return &AgenticHarness{name: name, codes: codes, cfg: cfg, deps: deps.withDefaults()}
}

func (h *AgenticHarness) Name() string { return h.name }
func (h *AgenticHarness) InputKind() InputKind { return KindCommit }
func (h *AgenticHarness) EnabledIssueCodes() []issue.Code { return h.codes }
func (h *AgenticHarness) RequiresAgenticCollation() bool { return true }
func (h *AgenticHarness) IdentifiesCodeIssues() bool { return true }

func (h *AgenticHarness) ValidateInputs(in Inputs) error {
	_, err := NewCommitInputs(in)
	return err
}

// IdentifyIssues implements Identifier.
func (h *AgenticHarness) IdentifyIssues(ctx context.Context, in Inputs, pctx repoctx.ProjectContext) *Stream {
	return genstream.New(func(yield func(*issue.RawIssue) error) (issue.DebugInfo, error) {
		commit, err := NewCommitInputs(in)
		if err != nil {
			return issue.DebugInfo{}, err
		}
		if h.cfg.EnableParallelAgenticIdentification {
			return h.identifyParallel(ctx, commit, pctx, yield)
		}
		return h.identifySingle(ctx, commit, pctx, yield)
	})
}

func (h *AgenticHarness) identifySingle(ctx context.Context, commit CommitInputs, pctx repoctx.ProjectContext, yield func(*issue.RawIssue) error) (issue.DebugInfo, error) {
	prompt := renderAgenticPrompt(agenticPromptData{
		Goal:   commit.Goal,
		Diff:   commit.Diff,
		Guides: guides.FormatForPromptWith(h.codes, true, h.deps.GuideOverrides),
		FanOut: len(h.codes) > 1,
	})

	transcript, err := h.deps.Agent.ProcessQuery(ctx, pctx.RepoPath(), prompt)
	if err != nil {
		return issue.DebugInfo{}, fmt.Errorf("%s: %w", h.name, err)
	}
	text := agent.ResponseText(transcript)
	if text == "" {
		return issue.DebugInfo{}, fmt.Errorf("%s: agent session produced no response", h.name)
	}

	for _, iss := range IssuesFromResponseTexts([]string{text}, h.deps.Logger) {
		if err := yield(iss); err != nil {
			return issue.DebugInfo{}, err
		}
	}

	response := issue.LLMResponse{
		Metadata: issue.ResponseMetadata{Phase: issue.PhaseIdentification},
		RawTexts: []string{text},
	}
	if result, ok := agent.FinalResult(transcript); ok {
		response.Invocation = invocationFromAgentResult(result)
	}
	return issue.DebugInfo{}.Append(response), nil
}

func (h *AgenticHarness) identifyParallel(ctx context.Context, commit CommitInputs, pctx repoctx.ProjectContext, yield func(*issue.RawIssue) error) (issue.DebugInfo, error) {
	var (
		mu        sync.Mutex
		responses []issue.LLMResponse
		skipped   int
	)

	workers := h.cfg.MaxIdentifyWorkers
	if workers <= 0 || workers > len(h.codes) {
		workers = len(h.codes)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, code := range h.codes {
		code := code
		g.Go(func() error {
			prompt := renderAgenticPrompt(agenticPromptData{
				Goal:   commit.Goal,
				Diff:   commit.Diff,
				Guides: guides.FormatForPromptWith([]issue.Code{code}, true, h.deps.GuideOverrides),
			})

			transcript, err := h.deps.Agent.ProcessQuery(gctx, pctx.RepoPath(), prompt)
			if err != nil {
				var apiErr *agent.APIError
				if errors.As(err, &apiErr) {
					// Fatal for the whole identifier: the remaining
					// sessions would hit the same wall.
					return fmt.Errorf("%s: %w", h.name, err)
				}
				h.deps.Logger.Warn("agent session failed, skipping issue code",
					"identifier", h.name, "issue_code", code, "error", err)
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}

			text := agent.ResponseText(transcript)
			response := issue.LLMResponse{
				Metadata: issue.ResponseMetadata{
					Phase:     issue.PhaseIdentification,
					IssueType: string(code),
				},
				RawTexts: []string{text},
			}
			if result, ok := agent.FinalResult(transcript); ok {
				response.Invocation = invocationFromAgentResult(result)
			}
			mu.Lock()
			responses = append(responses, response)
			mu.Unlock()

			for _, iss := range IssuesFromResponseTexts([]string{text}, h.deps.Logger) {
				if err := yield(iss); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return issue.DebugInfo{}, err
	}
	if skipped > 0 {
		h.deps.Logger.Warn("agentic identification skipped sessions",
			"identifier", h.name, "skipped", skipped, "total", len(h.codes))
	}
	return issue.DebugInfo{Responses: responses}, nil
}

var _ Identifier = (*AgenticHarness)(nil)
