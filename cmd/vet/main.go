// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command vet reviews a code change with a multi-stage LLM pipeline and
// reports the issues it finds.
//
// Usage:
//
//	vet review --repo /path/to/repo
//	vet review --repo . --base main --json
//	vet review --repo . --conversation transcript.txt
//
// Exit codes distinguish "the review found issues" from "the review
// could not run": 0 means a clean review, 1 means issues were found,
// 2 means an operational failure.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

const (
	exitClean       = 0
	exitIssuesFound = 1
	exitError       = 2
)

// --- Global Command Variables ---
var (
	configPath       string
	repoPath         string
	baseRef          string
	goalFlag         string
	conversationPath string
	extraContextPath string
	jsonOutput       bool
	showFiltered     bool
	debugFile        string
	logLevelFlag     string

	rootCmd = &cobra.Command{
		Use:   "vet",
		Short: "LLM-based code review for git changes",
		Long: `vet runs a multi-stage review pipeline over a git change:
concurrent issue identification, collation, confidence filtration, and
cross-identifier deduplication.`,
	}

	reviewCmd = &cobra.Command{
		Use:   "review",
		Short: "Review the change between a base ref and HEAD",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runReview(cmd))
		},
	}
)

func init() {
	reviewCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	reviewCmd.Flags().StringVarP(&repoPath, "repo", "r", ".", "repository to review")
	reviewCmd.Flags().StringVarP(&baseRef, "base", "b", "", "base ref for the diff (default HEAD~1)")
	reviewCmd.Flags().StringVar(&goalFlag, "goal", "", "what the change was supposed to accomplish (default: HEAD commit message)")
	reviewCmd.Flags().StringVar(&conversationPath, "conversation", "", "file holding the AI conversation that produced the change")
	reviewCmd.Flags().StringVar(&extraContextPath, "extra-context", "", "file with additional background for the review")
	reviewCmd.Flags().BoolVar(&jsonOutput, "json", false, "emit the report as JSON")
	reviewCmd.Flags().BoolVar(&showFiltered, "show-filtered", false, "include issues that failed filtration")
	reviewCmd.Flags().StringVar(&debugFile, "debug-file", "", "write raw model responses to this file as JSON")
	reviewCmd.Flags().StringVar(&logLevelFlag, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(reviewCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitError)
	}
}
