// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package guides

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/vet/pkg/logging"
	"github.com/AleutianAI/vet/services/vet/issue"
)

// Override section headers. A custom guide file is plain markdown split
// on these exact lines; everything else is section content.
const (
	overridePrefixHeader  = "# vet_custom_guideline_prefix"
	overrideSuffixHeader  = "# vet_custom_guideline_suffix"
	overrideReplaceHeader = "# vet_custom_guideline_replace"
)

// Override is a user's modification of the built-in guidance for one
// issue code, parsed from a {issue_code}.md file. Replace stands alone;
// prefix and suffix wrap the built-in text.
type Override struct {
	Code    issue.Code
	Prefix  string
	Suffix  string
	Replace string

	// Source is the file the override came from, for log messages.
	Source string
}

func (o Override) empty() bool {
	return o.Prefix == "" && o.Suffix == "" && o.Replace == ""
}

// conflicting reports replace combined with prefix or suffix. Replace
// wins; the others are dropped with a warning at load time.
func (o Override) conflicting() bool {
	return o.Replace != "" && (o.Prefix != "" || o.Suffix != "")
}

// ParseOverrideFile parses one custom guide file. The filename stem
// must be a valid issue code.
func ParseOverrideFile(path string) (Override, error) {
	stem := strings.TrimSuffix(filepath.Base(path), ".md")
	code := issue.Code(stem)
	if !code.IsValid() {
		return Override{}, fmt.Errorf("guides: %s: unknown issue code %q", filepath.Base(path), stem)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Override{}, fmt.Errorf("guides: reading %s: %w", path, err)
	}

	sections := map[string][]string{}
	current := ""
	for _, line := range strings.Split(string(data), "\n") {
		switch strings.TrimSpace(line) {
		case overridePrefixHeader:
			current = "prefix"
		case overrideSuffixHeader:
			current = "suffix"
		case overrideReplaceHeader:
			current = "replace"
		default:
			if current != "" {
				sections[current] = append(sections[current], line)
			}
		}
	}

	section := func(name string) string {
		return strings.TrimSpace(strings.Join(sections[name], "\n"))
	}
	return Override{
		Code:    code,
		Prefix:  section("prefix"),
		Suffix:  section("suffix"),
		Replace: section("replace"),
		Source:  path,
	}, nil
}

// LoadOverrides loads every {issue_code}.md file under dir.
//
// # Description
//
// A missing directory means no overrides and is not an error. Files
// whose stem is not a valid issue code, files that fail to read, and
// files with no sections are skipped with a log message; one bad file
// never blocks the rest. Overrides that combine replace with prefix or
// suffix keep only the replace text.
func LoadOverrides(dir string, logger *logging.Logger) map[issue.Code]Override {
	if logger == nil {
		logger = logging.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("custom guides directory does not exist", "dir", dir)
		} else {
			logger.Warn("cannot read custom guides directory", "dir", dir, "error", err)
		}
		return nil
	}

	overrides := map[issue.Code]Override{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		o, err := ParseOverrideFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			logger.Warn("skipping custom guide file", "file", entry.Name(), "error", err)
			continue
		}
		if o.empty() {
			logger.Debug("skipping custom guide file, no sections", "file", entry.Name())
			continue
		}
		if o.conflicting() {
			logger.Warn("custom guide combines replace with prefix/suffix, keeping replace only",
				"file", entry.Name())
			o.Prefix, o.Suffix = "", ""
		}
		overrides[o.Code] = o
	}

	if len(overrides) > 0 {
		logger.Info("loaded custom guide overrides", "count", len(overrides), "dir", dir)
	}
	return overrides
}

// withOverride merges the override into the built-in guide text. Agent
// guidance and exceptions always come from the built-in guide.
func (g Guide) withOverride(o Override) Guide {
	if o.Replace != "" {
		g.Text = o.Replace
		return g
	}
	if o.Prefix != "" {
		g.Text = o.Prefix + "\n" + g.Text
	}
	if o.Suffix != "" {
		g.Text = g.Text + "\n" + o.Suffix
	}
	return g
}
