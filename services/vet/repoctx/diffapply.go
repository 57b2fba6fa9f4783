// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package repoctx

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

const devNull = "/dev/null"

// ApplyDiff replays a unified diff over the given tree and returns the
// resulting tree. The input map is not mutated.
func ApplyDiff(files map[string]string, diffText string) (map[string]string, error) {
	out := make(map[string]string, len(files))
	for k, v := range files {
		out[k] = v
	}
	if strings.TrimSpace(diffText) == "" {
		return out, nil
	}

	fileDiffs, err := diff.ParseMultiFileDiff([]byte(diffText))
	if err != nil {
		return nil, fmt.Errorf("repoctx: parsing diff: %w", err)
	}

	for _, fd := range fileDiffs {
		origName := stripGitPrefix(fd.OrigName)
		newName := stripGitPrefix(fd.NewName)

		if newName == devNull {
			delete(out, origName)
			continue
		}

		var original string
		if origName != devNull {
			original = out[origName]
		}
		applied, err := applyHunks(original, fd.Hunks)
		if err != nil {
			return nil, fmt.Errorf("repoctx: applying diff to %s: %w", newName, err)
		}
		if origName != devNull && origName != newName {
			delete(out, origName)
		}
		out[newName] = applied
	}
	return out, nil
}

// ModifiedPaths lists the post-diff paths a unified diff touches, in
// diff order. Deleted files report their original path.
func ModifiedPaths(diffText string) ([]string, error) {
	if strings.TrimSpace(diffText) == "" {
		return nil, nil
	}
	fileDiffs, err := diff.ParseMultiFileDiff([]byte(diffText))
	if err != nil {
		return nil, fmt.Errorf("repoctx: parsing diff: %w", err)
	}
	paths := make([]string, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		name := stripGitPrefix(fd.NewName)
		if name == devNull {
			name = stripGitPrefix(fd.OrigName)
		}
		paths = append(paths, name)
	}
	return paths, nil
}

func stripGitPrefix(name string) string {
	if name == devNull {
		return name
	}
	if rest, ok := strings.CutPrefix(name, "a/"); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(name, "b/"); ok {
		return rest
	}
	return name
}

// applyHunks replays hunks against content. Hunk line numbers refer to
// the original file and must be consistent with it.
func applyHunks(content string, hunks []*diff.Hunk) (string, error) {
	origLines := splitLines(content)
	var result []string
	cursor := 0 // index into origLines

	for _, h := range hunks {
		start := int(h.OrigStartLine) - 1
		if h.OrigLines == 0 {
			// Pure insertion; OrigStartLine is the line after which to
			// insert.
			start = int(h.OrigStartLine)
		}
		if start < cursor || start > len(origLines) {
			return "", fmt.Errorf("hunk start %d out of range (cursor %d, file %d lines)", h.OrigStartLine, cursor, len(origLines))
		}
		result = append(result, origLines[cursor:start]...)
		cursor = start

		for _, line := range strings.Split(string(h.Body), "\n") {
			if line == "" {
				continue
			}
			marker, text := line[0], line[1:]
			switch marker {
			case ' ':
				if cursor >= len(origLines) || origLines[cursor] != text {
					return "", fmt.Errorf("context mismatch at line %d", cursor+1)
				}
				result = append(result, text)
				cursor++
			case '-':
				if cursor >= len(origLines) || origLines[cursor] != text {
					return "", fmt.Errorf("deletion mismatch at line %d", cursor+1)
				}
				cursor++
			case '+':
				result = append(result, text)
			case '\\':
				// "\ No newline at end of file"
			default:
				return "", fmt.Errorf("unexpected diff line %q", line)
			}
		}
	}

	result = append(result, origLines[cursor:]...)
	joined := strings.Join(result, "\n")
	if joined != "" {
		joined += "\n"
	}
	return joined, nil
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	trimmed := strings.TrimSuffix(content, "\n")
	return strings.Split(trimmed, "\n")
}
