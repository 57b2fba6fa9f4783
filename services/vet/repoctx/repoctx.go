// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package repoctx builds the project context identifiers prompt against:
// the repository tree with the diff under review applied, the set of
// modified files, and a token-budgeted rendered context string.
//
// Everything expensive is computed lazily and exactly once, so harnesses
// that never touch the repo context never pay for it.
package repoctx

import (
	"fmt"
	"sort"
	"strings"
)

// ProjectContext is the read surface identifiers use.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; all identifier
// streams share one context.
type ProjectContext interface {
	// RepoPath is the absolute path of the repository root.
	RepoPath() string

	// FileContentsByPath returns the post-diff tree.
	FileContentsByPath() (map[string]string, error)

	// ModifiedFilePaths lists the repo-relative paths the diff touches.
	ModifiedFilePaths() ([]string, error)

	// FormattedRepoContext renders the tree for prompting, modified
	// files first, within the configured token budget.
	FormattedRepoContext() (string, error)

	// CachedPromptPrefix is the stable prompt prefix shared by every
	// identifier, suitable for provider-side caching.
	CachedPromptPrefix() (string, error)

	// ComputedContexts names the properties that have been computed so
	// far, for debug output.
	ComputedContexts() []string
}

// Snapshot is a fully materialized ProjectContext. Used directly in
// tests and as the backing store for LazyContext.
type Snapshot struct {
	repoPath string
	files    map[string]string
	modified []string
}

// NewSnapshot builds a snapshot context over in-memory files.
func NewSnapshot(repoPath string, files map[string]string, modified []string) *Snapshot {
	return &Snapshot{repoPath: repoPath, files: files, modified: modified}
}

func (s *Snapshot) RepoPath() string { return s.repoPath }

func (s *Snapshot) FileContentsByPath() (map[string]string, error) { return s.files, nil }

func (s *Snapshot) ModifiedFilePaths() ([]string, error) { return s.modified, nil }

func (s *Snapshot) FormattedRepoContext() (string, error) {
	return formatRepoContext(s.files, s.modified, nil, 0)
}

func (s *Snapshot) CachedPromptPrefix() (string, error) {
	ctx, err := s.FormattedRepoContext()
	if err != nil {
		return "", err
	}
	return renderPromptPrefix(s.repoPath, ctx), nil
}

func (s *Snapshot) ComputedContexts() []string {
	return []string{"file_contents_by_path", "modified_file_paths"}
}

// formatRepoContext renders files as fenced sections, modified files
// first, stopping once maxTokens is spent. count nil or maxTokens <= 0
// disables the budget.
func formatRepoContext(files map[string]string, modified []string, count func(string) int, maxTokens int) (string, error) {
	isModified := make(map[string]struct{}, len(modified))
	for _, p := range modified {
		isModified[p] = struct{}{}
	}

	var rest []string
	for p := range files {
		if _, ok := isModified[p]; !ok {
			rest = append(rest, p)
		}
	}
	sort.Strings(rest)

	ordered := make([]string, 0, len(files))
	for _, p := range modified {
		if _, ok := files[p]; ok {
			ordered = append(ordered, p)
		}
	}
	ordered = append(ordered, rest...)

	var b strings.Builder
	spent := 0
	for _, path := range ordered {
		section := fmt.Sprintf("### File: %s\n```\n%s\n```\n\n", path, files[path])
		if count != nil && maxTokens > 0 {
			cost := count(section)
			if spent+cost > maxTokens {
				break
			}
			spent += cost
		}
		b.WriteString(section)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func renderPromptPrefix(repoPath, repoContext string) string {
	var b strings.Builder
	b.WriteString("You are reviewing a change to the repository at ")
	b.WriteString(repoPath)
	b.WriteString(".\n\nRepository contents relevant to the change:\n\n")
	b.WriteString(repoContext)
	b.WriteString("\n")
	return b.String()
}

var _ ProjectContext = (*Snapshot)(nil)
