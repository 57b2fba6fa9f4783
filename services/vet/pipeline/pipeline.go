// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline runs the full issue-identification pipeline:
// identifier selection, concurrent identification, collation,
// filtration, deduplication, and resolution into reportable issues.
package pipeline

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/AleutianAI/vet/pkg/logging"
	"github.com/AleutianAI/vet/services/vet/collate"
	"github.com/AleutianAI/vet/services/vet/config"
	"github.com/AleutianAI/vet/services/vet/dedupe"
	"github.com/AleutianAI/vet/services/vet/filter"
	"github.com/AleutianAI/vet/services/vet/genstream"
	"github.com/AleutianAI/vet/services/vet/guides"
	"github.com/AleutianAI/vet/services/vet/identify"
	"github.com/AleutianAI/vet/services/vet/issue"
	"github.com/AleutianAI/vet/services/vet/llm"
	"github.com/AleutianAI/vet/services/vet/repoctx"
)

// Report is the outcome of a pipeline run.
type Report struct {
	// Results holds every resolved issue with its filtration verdict.
	Results []issue.Result

	// Debug accumulates every model response the run produced.
	Debug issue.DebugInfo
}

// PassingResults returns only the results that passed filtration.
func (r Report) PassingResults() []issue.Result {
	var passing []issue.Result
	for _, res := range r.Results {
		if res.PassesFiltration {
			passing = append(passing, res)
		}
	}
	return passing
}

// Run executes the pipeline over one change.
//
// # Description
//
// Identifiers selected by the config run concurrently, each as a stream
// wrapped with its optional collation and filtration stages. The
// multiplexed output is deduplicated across identifiers, then resolved:
// codes validated, locations made repo-relative, line ranges recovered
// from snippets. Identifiers whose required inputs are absent are
// skipped, not failed. When a spend limit is configured every model
// call authorizes its estimated cost first, and the run aborts with a
// *llm.DollarLimitError once the budget cannot cover the next call.
//
// # Inputs
//
//   - in: the change under review; a missing goal is synthesized from
//     the conversation history when one is present
//   - pctx: shared project context; computed lazily across identifiers
func Run(ctx context.Context, in identify.Inputs, pctx repoctx.ProjectContext, cfg config.Config, deps identify.Deps) (Report, error) {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Counter == nil {
		deps.Counter = llm.ApproxTokenCounter
	}
	if cfg.MaxSpendDollars > 0 && deps.LLM != nil {
		limiter := llm.NewSpendLimiter(cfg.MaxSpendDollars, deps.Logger)
		deps.LLM = llm.NewSpendLimitedClient(deps.LLM, limiter, deps.Counter)
	}
	if deps.GuideOverrides == nil && cfg.CustomGuidesDir != "" {
		dir := cfg.CustomGuidesDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(pctx.RepoPath(), dir)
		}
		deps.GuideOverrides = guides.LoadOverrides(dir, deps.Logger)
	}

	var preDebug issue.DebugInfo
	if in.Goal == "" && in.ConversationHistory != "" && deps.LLM != nil {
		goal, response, err := synthesizeGoal(ctx, in.ConversationHistory, cfg, deps)
		var limitErr *llm.DollarLimitError
		if errors.As(err, &limitErr) {
			// The budget is already gone; every later call would fail
			// the same way.
			runFailuresTotal.Inc()
			return Report{}, err
		}
		if err != nil {
			deps.Logger.Warn("goal synthesis failed, commit identifiers will be skipped", "error", err)
		} else {
			in.Goal = goal
			in.GoalTruncated = in.ConversationTruncated
			preDebug = preDebug.Append(response)
		}
	}

	identifiers, err := BuildIdentifiers(cfg, deps)
	if err != nil {
		runFailuresTotal.Inc()
		return Report{}, err
	}

	var (
		streams []*identify.Stream
		names   []string
	)
	for _, id := range identifiers {
		if err := id.ValidateInputs(in); err != nil {
			if errors.Is(err, identify.ErrMissingInputs) {
				deps.Logger.Debug("skipping identifier, inputs missing",
					"identifier", id.Name(), "error", err)
				identifiersSkippedTotal.Inc()
				continue
			}
			runFailuresTotal.Inc()
			return Report{}, err
		}

		stream := id.IdentifyIssues(ctx, in, pctx)
		if cfg.EnableCollation && id.RequiresAgenticCollation() {
			stream = collate.Collate(ctx, in, stream, pctx, cfg, deps)
		}
		if cfg.FilterIssues {
			stream = filter.Filter(ctx, stream, id.IdentifiesCodeIssues(), in, cfg, deps)
		}
		streams = append(streams, stream)
		names = append(names, id.Name())
	}

	items, finals, err := genstream.Collect(genstream.Multiplex(streams, cfg.MaxIdentifyWorkers))
	if err != nil {
		runFailuresTotal.Inc()
		return Report{}, err
	}

	// Stamp each identifier's responses with its name exactly once, at
	// the boundary where the streams lose their identity.
	for i := range finals {
		for j := range finals[i].Responses {
			finals[i].Responses[j] = finals[i].Responses[j].WithIdentifierName(names[i])
		}
	}
	debug := issue.CombineDebugInfo(append([]issue.DebugInfo{preDebug}, finals...)...)

	if cfg.EnableDeduplication && len(items) > 1 && deps.LLM != nil {
		items, debug, err = genstream.Collect(
			dedupe.Deduplicate(ctx, genstream.FromSlice(items, debug), cfg, deps))
		if err != nil {
			runFailuresTotal.Inc()
			return Report{}, err
		}
	}

	results := resolveIssues(items, pctx, deps.Logger)
	for _, res := range results {
		issuesIdentifiedTotal.WithLabelValues(string(res.Issue.Code)).Inc()
	}
	spendDollarsTotal.Add(debug.TotalCostDollars())
	runsTotal.Inc()

	return Report{Results: results, Debug: debug}, nil
}
