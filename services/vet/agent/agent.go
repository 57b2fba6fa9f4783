// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agent wraps a tool-using coding agent behind a narrow query
// interface. Agentic identifiers use it to explore the repository with
// read-only tools before reporting issues.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
)

// APIError is a failure of the agent's backing API (auth, quota,
// provider outage). Unlike ordinary session failures, it indicates every
// subsequent session would also fail, so callers propagate it instead of
// skipping the session.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("agent: API error: %s", e.Message)
}

// Message is one event in an agent session transcript.
type Message interface {
	isMessage()
}

// AssistantMessage is prose the agent produced.
type AssistantMessage struct {
	Text string
}

// ToolUseMessage records the agent invoking a tool.
type ToolUseMessage struct {
	Name  string
	Input json.RawMessage
}

// ToolResultMessage records a tool's output returned to the agent.
type ToolResultMessage struct {
	Content string
	IsError bool
}

// ResultMessage terminates a session and carries its aggregate usage.
type ResultMessage struct {
	Text    string
	IsError bool

	InputTokens              int
	CacheCreationInputTokens int
	CacheReadInputTokens     int
	OutputTokens             int
	CostDollars              float64
	DurationMS               float64
	NumTurns                 int
}

func (AssistantMessage) isMessage()  {}
func (ToolUseMessage) isMessage()    {}
func (ToolResultMessage) isMessage() {}
func (ResultMessage) isMessage()     {}

// Client runs one agent session per query.
//
// # Thread Safety
//
// Implementations must support concurrent sessions; the parallel agentic
// harness runs several at once.
type Client interface {
	// ProcessQuery runs a session to completion in workDir and returns
	// its transcript. The transcript is finite and ends with a
	// ResultMessage when the session reached a terminal state.
	ProcessQuery(ctx context.Context, workDir, prompt string) ([]Message, error)
}

// ResponseText flattens a transcript into the text an identifier parses:
// every assistant message followed by the terminal result.
func ResponseText(transcript []Message) string {
	var out string
	for _, msg := range transcript {
		switch m := msg.(type) {
		case AssistantMessage:
			if out != "" && m.Text != "" {
				out += "\n"
			}
			out += m.Text
		case ResultMessage:
			if out != "" && m.Text != "" {
				out += "\n"
			}
			out += m.Text
		}
	}
	return out
}

// FinalResult returns the terminal ResultMessage of a transcript, when
// present.
func FinalResult(transcript []Message) (ResultMessage, bool) {
	for i := len(transcript) - 1; i >= 0; i-- {
		if r, ok := transcript[i].(ResultMessage); ok {
			return r, true
		}
	}
	return ResultMessage{}, false
}
