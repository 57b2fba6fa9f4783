// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gitcli assembles the change under review by shelling out to
// git: the merge-base against a base ref, the diff from there to HEAD,
// and the commit message that can serve as the review goal.
package gitcli

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/AleutianAI/vet/pkg/logging"
)

// Change is the reviewable unit extracted from a repository.
type Change struct {
	// BaseCommit is the resolved merge-base the diff is taken from.
	BaseCommit string

	// Diff is the unified diff from BaseCommit to HEAD, with binary file
	// sections removed.
	Diff string

	// CommitMessage is HEAD's full commit message.
	CommitMessage string
}

// CodeToCheck extracts the change between baseRef and HEAD.
//
// # Description
//
// The diff is anchored at the merge-base of baseRef and HEAD rather
// than baseRef itself, so reviewing a feature branch against a moving
// main only covers the branch's own commits. Binary file sections are
// stripped from the diff; models cannot review them and they burn
// prompt budget.
func CodeToCheck(ctx context.Context, repoPath, baseRef string, logger *logging.Logger) (Change, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if baseRef == "" {
		baseRef = "HEAD~1"
	}

	base, err := runGit(ctx, repoPath, "merge-base", baseRef, "HEAD")
	if err != nil {
		return Change{}, fmt.Errorf("gitcli: resolving merge-base of %s: %w", baseRef, err)
	}
	base = strings.TrimSpace(base)

	diff, err := runGit(ctx, repoPath, "diff", base, "HEAD")
	if err != nil {
		return Change{}, fmt.Errorf("gitcli: diffing %s..HEAD: %w", base, err)
	}
	if diff == "" {
		return Change{}, fmt.Errorf("gitcli: no changes between %s and HEAD", base)
	}

	stripped, removed := StripBinarySections(diff)
	if removed > 0 {
		logger.Debug("stripped binary files from diff", "files", removed)
	}

	message, err := runGit(ctx, repoPath, "log", "-1", "--format=%B", "HEAD")
	if err != nil {
		return Change{}, fmt.Errorf("gitcli: reading HEAD commit message: %w", err)
	}

	return Change{
		BaseCommit:    base,
		Diff:          stripped,
		CommitMessage: strings.TrimSpace(message),
	}, nil
}

// StripBinarySections removes per-file diff sections that describe
// binary content, returning the cleaned diff and the number of files
// removed.
func StripBinarySections(diff string) (string, int) {
	sections := splitDiffSections(diff)
	var kept []string
	removed := 0
	for _, section := range sections {
		if isBinarySection(section) {
			removed++
			continue
		}
		kept = append(kept, section)
	}
	return strings.Join(kept, ""), removed
}

// splitDiffSections splits a unified diff on "diff --git" boundaries,
// keeping the header line with its section. Content before the first
// header is kept as its own section.
func splitDiffSections(diff string) []string {
	const marker = "diff --git "
	var sections []string
	start := 0
	lines := strings.SplitAfter(diff, "\n")
	offset := 0
	for _, line := range lines {
		if strings.HasPrefix(line, marker) && offset > start {
			sections = append(sections, diff[start:offset])
			start = offset
		}
		offset += len(line)
	}
	if start < len(diff) {
		sections = append(sections, diff[start:])
	}
	return sections
}

func isBinarySection(section string) bool {
	return strings.Contains(section, "\nBinary files ") ||
		strings.Contains(section, "\nGIT binary patch")
}

func runGit(ctx context.Context, repoPath string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", repoPath}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
