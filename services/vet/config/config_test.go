// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/vet/services/vet/issue"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5.0, cfg.MaxSpendDollars)
	assert.True(t, cfg.FilterIssues)
	assert.True(t, cfg.EnableCollation)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_identifier_spend_dollars: 2.5
enable_collation: false
custom_guides_dir: .vet/custom_guides
disabled_issue_codes:
  - poor_docstring
model:
  provider: openai
  name: gpt-5.1
  context_window: 272000
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2.5, cfg.MaxSpendDollars)
	assert.False(t, cfg.EnableCollation)
	// Untouched keys keep their defaults.
	assert.True(t, cfg.EnableDeduplication)
	assert.Equal(t, 20_000, cfg.MaxOutputTokens)
	assert.Equal(t, "gpt-5.1", cfg.Model.Name)
	assert.Equal(t, ".vet/custom_guides", cfg.CustomGuidesDir)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEnabledCodesDefaultsToAll(t *testing.T) {
	codes, err := Default().EnabledCodes()
	require.NoError(t, err)
	assert.Len(t, codes, len(issue.AllCodes))
}

func TestEnabledCodesRespectsLists(t *testing.T) {
	cfg := Default()
	cfg.EnabledIssueCodes = []string{"logic_error", "race_condition"}
	cfg.DisabledIssueCodes = []string{"race_condition"}

	codes, err := cfg.EnabledCodes()
	require.NoError(t, err)
	assert.Equal(t, []issue.Code{issue.CodeLogicError}, codes)
}

func TestEnabledCodesRejectsUnknown(t *testing.T) {
	cfg := Default()
	cfg.EnabledIssueCodes = []string{"not_a_code"}
	_, err := cfg.EnabledCodes()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown issue code")
}

func TestValidateRejectsBadProvider(t *testing.T) {
	cfg := Default()
	cfg.Model.Provider = "mystery"
	assert.Error(t, cfg.Validate())
}

func TestConfidenceThresholdOrDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 0.8, cfg.ConfidenceThresholdOrDefault(0.8))

	cfg.FilterIssuesBelowConfidence = 0
	assert.Equal(t, 0.0, cfg.ConfidenceThresholdOrDefault(0.8))

	cfg.FilterIssuesBelowConfidence = 0.6
	assert.Equal(t, 0.6, cfg.ConfidenceThresholdOrDefault(0.8))
}
