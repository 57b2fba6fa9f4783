// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package repoctx

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AleutianAI/vet/pkg/logging"
)

// snapshotCache holds recently loaded trees keyed by "repoPath@commit".
// Loading a tree shells out once per file, so repeated runs against the
// same commit should not pay twice.
var (
	snapshotCache     *lru.Cache[string, map[string]string]
	snapshotCacheOnce sync.Once
)

func getSnapshotCache() *lru.Cache[string, map[string]string] {
	snapshotCacheOnce.Do(func() {
		snapshotCache, _ = lru.New[string, map[string]string](8)
	})
	return snapshotCache
}

// LoadGitTree reads every text file at the given commit of the
// repository. commit defaults to HEAD. Binary files are skipped.
func LoadGitTree(repoPath, commit string, logger *logging.Logger) (map[string]string, error) {
	if commit == "" {
		commit = "HEAD"
	}
	if logger == nil {
		logger = logging.Default()
	}

	key := repoPath + "@" + commit
	cache := getSnapshotCache()
	if files, ok := cache.Get(key); ok {
		logger.Debug("repo snapshot cache hit", "repo", repoPath, "commit", commit)
		return files, nil
	}

	lsTree := exec.Command("git", "-C", repoPath, "ls-tree", "-r", "--name-only", commit)
	var out bytes.Buffer
	lsTree.Stdout = &out
	if err := lsTree.Run(); err != nil {
		return nil, fmt.Errorf("repoctx: git ls-tree %s: %w", commit, err)
	}

	files := make(map[string]string)
	for _, path := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if path == "" {
			continue
		}
		show := exec.Command("git", "-C", repoPath, "show", commit+":"+path)
		var content bytes.Buffer
		show.Stdout = &content
		if err := show.Run(); err != nil {
			logger.Warn("skipping unreadable file in snapshot", "path", path, "error", err)
			continue
		}
		if bytes.ContainsRune(content.Bytes(), 0) {
			continue // binary
		}
		files[path] = content.String()
	}

	cache.Add(key, files)
	logger.Debug("loaded repo snapshot", "repo", repoPath, "commit", commit, "files", len(files))
	return files, nil
}
