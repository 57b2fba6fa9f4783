// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/AleutianAI/vet/pkg/logging"
	"github.com/AleutianAI/vet/services/vet/issue"
	"github.com/AleutianAI/vet/services/vet/repoctx"
)

// resolveIssues converts raw model-emitted issues into resolved results:
// validated codes, normalized scores, repo-relative locations with line
// ranges recovered from the reported snippet.
//
// Issues with an unknown code are logged and dropped; everything a model
// invents beyond the known taxonomy is noise downstream consumers cannot
// act on.
func resolveIssues(raw []*issue.RawIssue, pctx repoctx.ProjectContext, logger *logging.Logger) []issue.Result {
	if logger == nil {
		logger = logging.Default()
	}
	var files map[string]string
	if pctx != nil {
		loaded, err := pctx.FileContentsByPath()
		if err != nil {
			logger.Warn("file contents unavailable, skipping line resolution", "error", err)
		} else {
			files = loaded
		}
	}

	results := make([]issue.Result, 0, len(raw))
	for _, r := range raw {
		code := issue.Code(r.IssueCode)
		if !code.IsValid() {
			logger.Warn("dropping issue with unknown code", "issue_code", r.IssueCode)
			unknownCodesTotal.Inc()
			continue
		}

		locations := resolveLocations(r, pctx, files)
		resolved, err := issue.NewResolvedIssue(code, r.Description, r.Severity, r.Confidence, locations)
		if err != nil {
			logger.Warn("dropping unresolvable issue", "issue_code", r.IssueCode, "error", err)
			continue
		}
		results = append(results, issue.Result{
			Issue:            resolved,
			PassesFiltration: r.PassesFiltration(),
		})
	}
	return results
}

func resolveLocations(r *issue.RawIssue, pctx repoctx.ProjectContext, files map[string]string) []issue.Location {
	if r.Location == "" {
		return nil
	}

	path := r.Location
	if pctx != nil && filepath.IsAbs(path) {
		if rel, err := filepath.Rel(pctx.RepoPath(), path); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}

	contents, ok := files[path]
	if !ok || r.CodePart == "" {
		return []issue.Location{{Filename: path}}
	}

	ranges := issue.LineRangesFromSnippet(contents, r.CodePart)
	if len(ranges) == 0 {
		return []issue.Location{{Filename: path}}
	}

	locations := make([]issue.Location, 0, len(ranges))
	for _, lr := range ranges {
		locations = append(locations, issue.Location{
			LineStart: lr.Start,
			LineEnd:   lr.End,
			Filename:  path,
		})
	}
	return locations
}
