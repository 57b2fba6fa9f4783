// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/vet/pkg/logging"
	"github.com/AleutianAI/vet/services/vet/agent"
	"github.com/AleutianAI/vet/services/vet/config"
	"github.com/AleutianAI/vet/services/vet/gitcli"
	"github.com/AleutianAI/vet/services/vet/identify"
	"github.com/AleutianAI/vet/services/vet/issue"
	"github.com/AleutianAI/vet/services/vet/llm"
	"github.com/AleutianAI/vet/services/vet/pipeline"
	"github.com/AleutianAI/vet/services/vet/repoctx"
	"github.com/AleutianAI/vet/services/vet/truncate"
)

func runReview(cmd *cobra.Command) int {
	logger := logging.New(logging.Config{
		Level:   parseLogLevel(logLevelFlag),
		Service: "vet",
	})
	defer logger.Close()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vet:", err)
		return exitError
	}

	absRepo, err := filepath.Abs(repoPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vet:", err)
		return exitError
	}

	ctx := cmd.Context()
	change, err := gitcli.CodeToCheck(ctx, absRepo, baseRef, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vet:", err)
		return exitError
	}

	in, err := buildInputs(change, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vet:", err)
		return exitError
	}

	deps, err := buildDeps(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vet:", err)
		return exitError
	}

	available := truncate.AvailableTokens(cfg.Model.ContextWindow, cfg.MaxPromptOverhead, cfg.MaxOutputTokens)
	pctx := repoctx.NewLazy(repoctx.Params{
		RepoPath:         absRepo,
		BaseCommit:       change.BaseCommit,
		Diff:             change.Diff,
		MaxContextTokens: truncate.BudgetRepoContext.Tokens(available),
		Counter:          deps.Counter,
		Logger:           logger,
	})

	report, err := pipeline.Run(ctx, in, pctx, cfg, deps)
	if err != nil {
		fmt.Fprintln(os.Stderr, "vet:", err)
		return exitError
	}

	if debugFile != "" {
		if err := writeDebugFile(debugFile, report.Debug); err != nil {
			logger.Warn("writing debug file failed", "path", debugFile, "error", err)
		}
	}

	shown := report.PassingResults()
	if showFiltered {
		shown = report.Results
	}
	if jsonOutput {
		renderJSON(os.Stdout, shown, report.Debug)
	} else {
		renderText(os.Stdout, shown, report.Debug)
	}

	if len(report.PassingResults()) > 0 {
		return exitIssuesFound
	}
	return exitClean
}

func buildInputs(change gitcli.Change, cfg config.Config, logger *logging.Logger) (identify.Inputs, error) {
	goal := goalFlag
	if goal == "" {
		goal = change.CommitMessage
	}

	in := identify.Inputs{Goal: goal, Diff: change.Diff}

	if conversationPath != "" {
		data, err := os.ReadFile(conversationPath)
		if err != nil {
			return identify.Inputs{}, fmt.Errorf("reading conversation: %w", err)
		}
		in.ConversationHistory = string(data)
	}
	if extraContextPath != "" {
		data, err := os.ReadFile(extraContextPath)
		if err != nil {
			return identify.Inputs{}, fmt.Errorf("reading extra context: %w", err)
		}
		in.ExtraContext = string(data)
	}

	available := truncate.AvailableTokens(cfg.Model.ContextWindow, cfg.MaxPromptOverhead, cfg.MaxOutputTokens)
	in.Diff, in.DiffTruncated = truncate.ToTokenLimit(
		in.Diff, truncate.BudgetDiff.Tokens(available), llm.ApproxTokenCounter, "diff", true, logger)
	return in, nil
}

func buildDeps(cfg config.Config, logger *logging.Logger) (identify.Deps, error) {
	var client llm.Client
	var err error
	switch cfg.Model.Provider {
	case "anthropic":
		client, err = llm.NewAnthropicClient(cfg.Model.Name, logger)
	case "openai":
		client, err = llm.NewOpenAIClient(cfg.Model.Name, cfg.Model.BaseURL, logger)
	default:
		err = fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}
	if err != nil {
		return identify.Deps{}, err
	}

	return identify.Deps{
		LLM:     client,
		Agent:   agent.NewSubprocessClient(cfg.AgentBinary, cfg.AgentMaxTurns, logger),
		Counter: llm.ApproxTokenCounter,
		Logger:  logger,
	}, nil
}

func renderText(w io.Writer, results []issue.Result, debug issue.DebugInfo) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No issues found.")
		fmt.Fprintf(w, "Model spend: $%.4f\n", debug.TotalCostDollars())
		return
	}

	sorted := make([]issue.Result, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Issue.Severity.Raw > sorted[j].Issue.Severity.Raw
	})

	for _, res := range sorted {
		marker := "!"
		if !res.PassesFiltration {
			marker = "-"
		}
		fmt.Fprintf(w, "%s [%s] severity %d/5, confidence %.0f%%\n",
			marker, res.Issue.Code, res.Issue.Severity.Raw, res.Issue.Confidence.Raw*100)
		fmt.Fprintf(w, "  %s\n", res.Issue.Description)
		for _, loc := range res.Issue.Locations {
			if loc.LineStart > 0 {
				fmt.Fprintf(w, "  at %s:%d-%d\n", loc.Filename, loc.LineStart, loc.LineEnd)
			} else if loc.Filename != "" {
				fmt.Fprintf(w, "  at %s\n", loc.Filename)
			}
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%d issue(s). Model spend: $%.4f\n", len(sorted), debug.TotalCostDollars())
}

type jsonReport struct {
	Issues           []jsonIssue `json:"issues"`
	TotalCostDollars float64     `json:"total_cost_dollars"`
}

type jsonIssue struct {
	*issue.ResolvedIssue
	PassesFiltration bool `json:"passes_filtration"`
}

func renderJSON(w io.Writer, results []issue.Result, debug issue.DebugInfo) {
	out := jsonReport{
		Issues:           make([]jsonIssue, 0, len(results)),
		TotalCostDollars: debug.TotalCostDollars(),
	}
	for _, res := range results {
		out.Issues = append(out.Issues, jsonIssue{
			ResolvedIssue:    res.Issue,
			PassesFiltration: res.PassesFiltration,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func writeDebugFile(path string, debug issue.DebugInfo) error {
	data, err := json.MarshalIndent(debug, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func parseLogLevel(s string) logging.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
