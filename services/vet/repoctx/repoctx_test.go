// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package repoctx

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiff = `diff --git a/main.go b/main.go
--- a/main.go
+++ b/main.go
@@ -1,3 +1,4 @@
 package main

-func run() {}
+func run() error {
+}
`

func TestApplyDiffModifiesFile(t *testing.T) {
	files := map[string]string{
		"main.go":  "package main\n\nfunc run() {}\n",
		"other.go": "package main\n",
	}
	got, err := ApplyDiff(files, sampleDiff)
	require.NoError(t, err)
	assert.Equal(t, "package main\n\nfunc run() error {\n}\n", got["main.go"])
	assert.Equal(t, "package main\n", got["other.go"])
	// Input is not mutated.
	assert.Equal(t, "package main\n\nfunc run() {}\n", files["main.go"])
}

func TestApplyDiffAddAndDelete(t *testing.T) {
	addDelete := `diff --git a/gone.go b/gone.go
--- a/gone.go
+++ /dev/null
@@ -1,1 +0,0 @@
-old content
diff --git a/new.go b/new.go
--- /dev/null
+++ b/new.go
@@ -0,0 +1,2 @@
+package main
+// fresh
`
	files := map[string]string{"gone.go": "old content\n"}
	got, err := ApplyDiff(files, addDelete)
	require.NoError(t, err)
	_, exists := got["gone.go"]
	assert.False(t, exists)
	assert.Equal(t, "package main\n// fresh\n", got["new.go"])
}

func TestApplyDiffContextMismatch(t *testing.T) {
	files := map[string]string{"main.go": "completely different\n"}
	_, err := ApplyDiff(files, sampleDiff)
	require.Error(t, err)
}

func TestApplyDiffEmptyDiff(t *testing.T) {
	files := map[string]string{"a.go": "x\n"}
	got, err := ApplyDiff(files, "")
	require.NoError(t, err)
	assert.Equal(t, files, got)
}

func TestModifiedPaths(t *testing.T) {
	paths, err := ModifiedPaths(sampleDiff)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, paths)

	paths, err = ModifiedPaths("")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestLazyContextChainComputesOnce(t *testing.T) {
	loads := 0
	ctx := NewLazy(Params{
		RepoPath: "/repo",
		Diff:     sampleDiff,
		LoadTree: func() (map[string]string, error) {
			loads++
			return map[string]string{"main.go": "package main\n\nfunc run() {}\n"}, nil
		},
	})

	assert.Empty(t, ctx.ComputedContexts())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ctx.CachedPromptPrefix()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, loads)

	first, err := ctx.FileContentsByPath()
	require.NoError(t, err)
	second, err := ctx.FileContentsByPath()
	require.NoError(t, err)
	// Identity-stable: repeated reads return the same map.
	assert.Equal(t, reflect.ValueOf(first).Pointer(), reflect.ValueOf(second).Pointer())

	assert.Equal(t, []string{
		"original_contents_by_path",
		"file_contents_by_path",
		"modified_file_paths",
		"formatted_repo_context",
		"cached_prompt_prefix",
	}, ctx.ComputedContexts())
}

func TestLazyContextMemoizesFailure(t *testing.T) {
	loads := 0
	boom := errors.New("git unavailable")
	ctx := NewLazy(Params{
		RepoPath: "/repo",
		LoadTree: func() (map[string]string, error) {
			loads++
			return nil, boom
		},
	})

	_, err := ctx.FileContentsByPath()
	assert.ErrorIs(t, err, boom)
	_, err = ctx.FileContentsByPath()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, loads)
}

func TestFormattedRepoContextModifiedFirstAndBudgeted(t *testing.T) {
	files := map[string]string{
		"a.go": "aaaa\n",
		"b.go": "bbbb\n",
		"m.go": "modified\n",
	}
	charTokens := func(s string) int { return len(s) }

	full, err := formatRepoContext(files, []string{"m.go"}, nil, 0)
	require.NoError(t, err)
	assert.Less(t, strings.Index(full, "m.go"), strings.Index(full, "a.go"))

	// A tight budget keeps only the modified file's section.
	tight, err := formatRepoContext(files, []string{"m.go"}, charTokens, 40)
	require.NoError(t, err)
	assert.Contains(t, tight, "m.go")
	assert.NotContains(t, tight, "a.go")
}
