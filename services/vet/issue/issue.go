// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package issue

import (
	"fmt"

	"github.com/google/uuid"
)

// RawIssue is an issue exactly as a model emitted it, before any code
// validation or location resolution.
//
// # Description
//
// RawIssue is the unit that flows through collation, filtration, and
// deduplication. Its filtration verdict is a write-once cell: reading it
// before any stage has decided reports true, and deciding twice is a
// programming error.
//
// The exported fields mirror the JSON schema identifiers are instructed
// to produce.
type RawIssue struct {
	// IssueCode is the category the model assigned. Not yet validated.
	IssueCode string `json:"issue_code"`

	// Description explains the issue in prose.
	Description string `json:"description"`

	// Location is the file path the issue was found in, when the model
	// provided one. May be absolute or repo-relative.
	Location string `json:"location,omitempty"`

	// CodePart is a verbatim snippet from the affected file, used to
	// resolve line ranges.
	CodePart string `json:"code_part,omitempty"`

	// Severity is the model's 1..5 rating.
	Severity int `json:"severity"`

	// Confidence is the model's 0..1 rating.
	Confidence float64 `json:"confidence"`

	passesFiltration *bool
}

// PassesFiltration reports the filtration verdict. Issues that no stage
// has judged yet pass by default.
func (r *RawIssue) PassesFiltration() bool {
	if r.passesFiltration == nil {
		return true
	}
	return *r.passesFiltration
}

// FiltrationDecided reports whether a filtration verdict has been set.
func (r *RawIssue) FiltrationDecided() bool {
	return r.passesFiltration != nil
}

// SetPassesFiltration records the filtration verdict. Panics if a verdict
// was already recorded; the filtration stage runs at most once per issue.
func (r *RawIssue) SetPassesFiltration(v bool) {
	if r.passesFiltration != nil {
		panic("issue: passes_filtration set twice")
	}
	r.passesFiltration = &v
}

// SeverityScore pairs the model's raw 1..5 severity with its 0..1
// normalized form.
type SeverityScore struct {
	Raw        int     `json:"raw"`
	Normalized float64 `json:"normalized"`
}

// NewSeverityScore normalizes a raw 1..5 severity onto [0, 1].
func NewSeverityScore(raw int) SeverityScore {
	return SeverityScore{Raw: raw, Normalized: float64(raw-1) / 4.0}
}

// ConfidenceScore pairs the model's raw 0..1 confidence with its
// normalized form. Confidence is already on [0, 1], so both agree.
type ConfidenceScore struct {
	Raw        float64 `json:"raw"`
	Normalized float64 `json:"normalized"`
}

// NewConfidenceScore wraps a raw 0..1 confidence.
func NewConfidenceScore(raw float64) ConfidenceScore {
	return ConfidenceScore{Raw: raw, Normalized: raw}
}

// Location is a resolved position in a file.
type Location struct {
	LineStart int `json:"line_start"`
	LineEnd   int `json:"line_end"`

	// Filename is repo-relative. Empty when the issue is not tied to a
	// particular file.
	Filename string `json:"filename,omitempty"`

	// Scope is the qualified name of the enclosing function or class,
	// when known.
	Scope string `json:"scope,omitempty"`
}

// ResolvedIssue is a fully validated issue ready for reporting: known
// code, normalized scores, repo-relative locations.
type ResolvedIssue struct {
	ID          string          `json:"issue_id"`
	Code        Code            `json:"code"`
	Description string          `json:"description"`
	Severity    SeverityScore   `json:"severity_score"`
	Confidence  ConfidenceScore `json:"confidence_score"`
	Locations   []Location      `json:"location,omitempty"`
}

// NewResolvedIssue builds a ResolvedIssue with a fresh ID, rejecting
// unknown codes.
func NewResolvedIssue(code Code, description string, severity int, confidence float64, locations []Location) (*ResolvedIssue, error) {
	if !code.IsValid() {
		return nil, fmt.Errorf("issue: unknown issue code %q", code)
	}
	return &ResolvedIssue{
		ID:          uuid.NewString(),
		Code:        code,
		Description: description,
		Severity:    NewSeverityScore(severity),
		Confidence:  NewConfidenceScore(confidence),
		Locations:   locations,
	}, nil
}

// Result is the pipeline's terminal unit: a resolved issue together with
// its filtration verdict.
type Result struct {
	Issue            *ResolvedIssue
	PassesFiltration bool
}
