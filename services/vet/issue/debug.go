// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package issue

// InvocationInfo records token usage, timing, and cost for one model or
// agent invocation. Populate whichever fields are available.
type InvocationInfo struct {
	InputTokens              int     `json:"input_tokens,omitempty"`
	CacheCreationInputTokens int     `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int     `json:"cache_read_input_tokens,omitempty"`
	OutputTokens             int     `json:"output_tokens,omitempty"`
	DurationMS               float64 `json:"duration_ms,omitempty"`
	CostDollars              float64 `json:"cost,omitempty"`
	NumTurns                 int     `json:"num_turns,omitempty"`
}

// TotalInputTokens sums fresh, cache-creation, and cache-read input
// tokens.
func (i InvocationInfo) TotalInputTokens() int {
	return i.InputTokens + i.CacheCreationInputTokens + i.CacheReadInputTokens
}

// ResponseMetadata describes where in the pipeline a model response was
// produced.
type ResponseMetadata struct {
	// Phase is the pipeline stage that made the call.
	Phase Phase `json:"agentic_phase"`

	// IssueType narrows the call to a single issue code, for harnesses
	// that fan out one session per code.
	IssueType string `json:"issue_type,omitempty"`

	// IdentifierName is the identifier this response belongs to. Stamped
	// once when per-identifier streams are merged.
	IdentifierName string `json:"identifier_name,omitempty"`
}

// LLMResponse is one raw model or agent response kept for debugging.
type LLMResponse struct {
	Metadata   ResponseMetadata `json:"metadata"`
	RawTexts   []string         `json:"raw_response"`
	Invocation InvocationInfo   `json:"invocation_info"`
}

// WithIdentifierName returns a copy tagged with the given identifier
// name. Existing tags are preserved; harnesses that already know their
// name keep it.
func (r LLMResponse) WithIdentifierName(name string) LLMResponse {
	if r.Metadata.IdentifierName == "" {
		r.Metadata.IdentifierName = name
	}
	return r
}

// DebugInfo accumulates every model response a pipeline run produced.
// The zero value is ready to use.
type DebugInfo struct {
	Responses []LLMResponse `json:"llm_responses"`
}

// Append returns d with extra responses added.
func (d DebugInfo) Append(responses ...LLMResponse) DebugInfo {
	combined := make([]LLMResponse, 0, len(d.Responses)+len(responses))
	combined = append(combined, d.Responses...)
	combined = append(combined, responses...)
	return DebugInfo{Responses: combined}
}

// CombineDebugInfo concatenates several stages' debug info in order.
func CombineDebugInfo(infos ...DebugInfo) DebugInfo {
	var combined DebugInfo
	for _, info := range infos {
		combined = combined.Append(info.Responses...)
	}
	return combined
}

// TotalCostDollars sums the cost of every recorded invocation.
func (d DebugInfo) TotalCostDollars() float64 {
	total := 0.0
	for _, r := range d.Responses {
		total += r.Invocation.CostDollars
	}
	return total
}
