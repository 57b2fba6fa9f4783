// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package issue

import (
	"sort"
	"strings"
)

// LineRange is a half-open span of line indexes within a file. Line
// indexes are zero-based.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Less orders ranges by start line, then end line.
func (r LineRange) Less(other LineRange) bool {
	if r.Start != other.Start {
		return r.Start < other.Start
	}
	return r.End < other.End
}

// LineRangesFromSnippet locates every non-overlapping occurrence of
// snippet in contents and returns one LineRange per occurrence.
//
// Occurrences that start and end on the same line collapse into a single
// range. Ranges are returned sorted by position in the file. An absent
// snippet yields an empty result.
func LineRangesFromSnippet(contents, snippet string) []LineRange {
	if snippet == "" {
		return nil
	}

	seen := make(map[LineRange]struct{})
	var ranges []LineRange

	offsetChars := 0
	offsetLines := 0
	for {
		cut := contents[offsetChars:]
		startIndex := strings.Index(cut, snippet)
		if startIndex == -1 {
			break
		}
		endIndex := startIndex + len(snippet)
		lineStart := offsetLines + strings.Count(cut[:startIndex], "\n")
		lineEnd := offsetLines + strings.Count(cut[:endIndex], "\n")
		offsetChars += endIndex
		offsetLines = lineEnd

		r := LineRange{Start: lineStart, End: lineEnd}
		if _, dup := seen[r]; !dup {
			seen[r] = struct{}{}
			ranges = append(ranges, r)
		}
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Less(ranges[j]) })
	return ranges
}
