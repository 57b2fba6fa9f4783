// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package issue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassesFiltrationDefaultsTrue(t *testing.T) {
	r := &RawIssue{IssueCode: "logic_error"}
	assert.True(t, r.PassesFiltration())
	assert.False(t, r.FiltrationDecided())
}

func TestSetPassesFiltrationOnce(t *testing.T) {
	r := &RawIssue{IssueCode: "logic_error"}
	r.SetPassesFiltration(false)
	assert.False(t, r.PassesFiltration())
	assert.True(t, r.FiltrationDecided())

	assert.Panics(t, func() { r.SetPassesFiltration(true) })
}

func TestSeverityNormalization(t *testing.T) {
	tests := []struct {
		raw  int
		want float64
	}{
		{1, 0.0},
		{2, 0.25},
		{3, 0.5},
		{4, 0.75},
		{5, 1.0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewSeverityScore(tt.raw).Normalized)
	}
}

func TestConfidenceNormalizationIsIdentity(t *testing.T) {
	s := NewConfidenceScore(0.85)
	assert.Equal(t, 0.85, s.Raw)
	assert.Equal(t, 0.85, s.Normalized)
}

func TestNewResolvedIssueRejectsUnknownCode(t *testing.T) {
	_, err := NewResolvedIssue(Code("made_up_code"), "desc", 3, 0.5, nil)
	require.Error(t, err)

	got, err := NewResolvedIssue(CodeRaceCondition, "desc", 3, 0.5, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, CodeRaceCondition, got.Code)
}

func TestCodeIsValid(t *testing.T) {
	assert.True(t, CodeLogicError.IsValid())
	assert.True(t, CodeAllCodeIssues.IsValid())
	assert.False(t, Code("nope").IsValid())
}

func TestLineRangesFromSnippet(t *testing.T) {
	contents := "alpha\nbeta\ngamma\nbeta\n"

	t.Run("single occurrence", func(t *testing.T) {
		got := LineRangesFromSnippet(contents, "gamma")
		assert.Equal(t, []LineRange{{Start: 2, End: 2}}, got)
	})

	t.Run("multiple occurrences sorted", func(t *testing.T) {
		got := LineRangesFromSnippet(contents, "beta")
		assert.Equal(t, []LineRange{{Start: 1, End: 1}, {Start: 3, End: 3}}, got)
	})

	t.Run("multiline snippet spans lines", func(t *testing.T) {
		got := LineRangesFromSnippet(contents, "beta\ngamma")
		assert.Equal(t, []LineRange{{Start: 1, End: 2}}, got)
	})

	t.Run("absent snippet yields empty", func(t *testing.T) {
		assert.Empty(t, LineRangesFromSnippet(contents, "delta"))
	})

	t.Run("same line occurrences collapse", func(t *testing.T) {
		got := LineRangesFromSnippet("x = x + x\n", "x")
		assert.Equal(t, []LineRange{{Start: 0, End: 0}}, got)
	})
}

func TestDebugInfoAppendAndCombine(t *testing.T) {
	a := DebugInfo{}.Append(LLMResponse{Metadata: ResponseMetadata{Phase: PhaseIdentification}})
	b := DebugInfo{}.Append(
		LLMResponse{Metadata: ResponseMetadata{Phase: PhaseFiltration}},
		LLMResponse{Metadata: ResponseMetadata{Phase: PhaseDeduplication}},
	)

	combined := CombineDebugInfo(a, b)
	require.Len(t, combined.Responses, 3)
	assert.Equal(t, PhaseIdentification, combined.Responses[0].Metadata.Phase)
	assert.Equal(t, PhaseDeduplication, combined.Responses[2].Metadata.Phase)
}

func TestWithIdentifierNameDoesNotOverwrite(t *testing.T) {
	r := LLMResponse{Metadata: ResponseMetadata{IdentifierName: "original"}}
	assert.Equal(t, "original", r.WithIdentifierName("other").Metadata.IdentifierName)

	untagged := LLMResponse{}
	assert.Equal(t, "other", untagged.WithIdentifierName("other").Metadata.IdentifierName)
}

func TestInvocationTotalInputTokens(t *testing.T) {
	info := InvocationInfo{InputTokens: 10, CacheCreationInputTokens: 5, CacheReadInputTokens: 20}
	assert.Equal(t, 35, info.TotalInputTokens())
}
