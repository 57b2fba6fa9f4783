// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package repoctx

import (
	"sync"
	"sync/atomic"

	"github.com/AleutianAI/vet/pkg/logging"
	"github.com/AleutianAI/vet/services/vet/llm"
)

// memo computes a value at most once and returns the identical result
// to every caller thereafter.
type memo[T any] struct {
	once sync.Once
	val  T
	err  error
	done atomic.Bool
}

func (m *memo[T]) get(compute func() (T, error)) (T, error) {
	m.once.Do(func() {
		m.val, m.err = compute()
		m.done.Store(true)
	})
	return m.val, m.err
}

func (m *memo[T]) computed() bool { return m.done.Load() }

// Params configures a LazyContext.
type Params struct {
	// RepoPath is the repository root.
	RepoPath string

	// BaseCommit is the tree the diff applies to. Empty means HEAD.
	BaseCommit string

	// Diff is the unified diff under review. May be empty.
	Diff string

	// MaxContextTokens bounds the rendered repo context. Zero disables
	// the budget.
	MaxContextTokens int

	// Counter estimates token counts. Defaults to the approximate
	// counter.
	Counter llm.TokenCounter

	// LoadTree overrides snapshot loading; nil uses git.
	LoadTree func() (map[string]string, error)

	Logger *logging.Logger
}

// LazyContext is a ProjectContext whose properties are computed on
// first use and memoized.
//
// # Description
//
// The chain runs original tree -> diff-applied tree -> modified files
// -> rendered repo context -> prompt prefix. Each link is computed at
// most once; a failure is memoized too, so retries do not re-run git.
//
// # Thread Safety
//
// Safe for concurrent use.
type LazyContext struct {
	params Params

	original  memo[map[string]string]
	contents  memo[map[string]string]
	modified  memo[[]string]
	rendered  memo[string]
	promptPfx memo[string]
}

// NewLazy builds a LazyContext. Nothing is computed until a property is
// first read.
func NewLazy(params Params) *LazyContext {
	if params.Counter == nil {
		params.Counter = llm.ApproxTokenCounter
	}
	if params.Logger == nil {
		params.Logger = logging.Default()
	}
	return &LazyContext{params: params}
}

func (c *LazyContext) RepoPath() string { return c.params.RepoPath }

// OriginalContentsByPath is the tree before the diff.
func (c *LazyContext) OriginalContentsByPath() (map[string]string, error) {
	return c.original.get(func() (map[string]string, error) {
		if c.params.LoadTree != nil {
			return c.params.LoadTree()
		}
		return LoadGitTree(c.params.RepoPath, c.params.BaseCommit, c.params.Logger)
	})
}

// FileContentsByPath implements ProjectContext: the tree with the diff
// applied.
func (c *LazyContext) FileContentsByPath() (map[string]string, error) {
	return c.contents.get(func() (map[string]string, error) {
		original, err := c.OriginalContentsByPath()
		if err != nil {
			return nil, err
		}
		return ApplyDiff(original, c.params.Diff)
	})
}

// ModifiedFilePaths implements ProjectContext.
func (c *LazyContext) ModifiedFilePaths() ([]string, error) {
	return c.modified.get(func() ([]string, error) {
		return ModifiedPaths(c.params.Diff)
	})
}

// FormattedRepoContext implements ProjectContext.
func (c *LazyContext) FormattedRepoContext() (string, error) {
	return c.rendered.get(func() (string, error) {
		files, err := c.FileContentsByPath()
		if err != nil {
			return "", err
		}
		modified, err := c.ModifiedFilePaths()
		if err != nil {
			return "", err
		}
		return formatRepoContext(files, modified, c.params.Counter, c.params.MaxContextTokens)
	})
}

// CachedPromptPrefix implements ProjectContext.
func (c *LazyContext) CachedPromptPrefix() (string, error) {
	return c.promptPfx.get(func() (string, error) {
		repoContext, err := c.FormattedRepoContext()
		if err != nil {
			return "", err
		}
		return renderPromptPrefix(c.params.RepoPath, repoContext), nil
	})
}

// ComputedContexts implements ProjectContext: names of the properties
// computed so far, in chain order.
func (c *LazyContext) ComputedContexts() []string {
	var names []string
	if c.original.computed() {
		names = append(names, "original_contents_by_path")
	}
	if c.contents.computed() {
		names = append(names, "file_contents_by_path")
	}
	if c.modified.computed() {
		names = append(names, "modified_file_paths")
	}
	if c.rendered.computed() {
		names = append(names, "formatted_repo_context")
	}
	if c.promptPfx.computed() {
		names = append(names, "cached_prompt_prefix")
	}
	return names
}

var _ ProjectContext = (*LazyContext)(nil)
