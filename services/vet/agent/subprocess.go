// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/AleutianAI/vet/pkg/logging"
)

// readOnlyTools is the tool allowlist for review sessions. The agent
// inspects the repository; it never edits it.
var readOnlyTools = []string{"Read", "Grep", "Glob", "LS", "Task"}

// SubprocessClient runs agent sessions through a local agent CLI that
// emits newline-delimited JSON events.
//
// # Thread Safety
//
// Safe for concurrent use; each query spawns its own process.
type SubprocessClient struct {
	// Binary is the agent executable. Default: "claude".
	Binary string

	// MaxTurns bounds the session length. Zero means the CLI default.
	MaxTurns int

	Logger *logging.Logger
}

// NewSubprocessClient returns a client with defaults applied.
func NewSubprocessClient(binary string, maxTurns int, logger *logging.Logger) *SubprocessClient {
	if binary == "" {
		binary = "claude"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SubprocessClient{Binary: binary, MaxTurns: maxTurns, Logger: logger}
}

// cliEvent is the union of event shapes the agent CLI emits in
// stream-json mode. Unknown event types are skipped.
type cliEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	Message *struct {
		Content []struct {
			Type    string          `json:"type"`
			Text    string          `json:"text"`
			Name    string          `json:"name"`
			Input   json.RawMessage `json:"input"`
			Content json.RawMessage `json:"content"`
			IsError bool            `json:"is_error"`
		} `json:"content"`
	} `json:"message"`
	Result       string  `json:"result"`
	IsError      bool    `json:"is_error"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	DurationMS   float64 `json:"duration_ms"`
	NumTurns     int     `json:"num_turns"`
	Usage        *struct {
		InputTokens              int `json:"input_tokens"`
		CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
		CacheReadInputTokens     int `json:"cache_read_input_tokens"`
		OutputTokens             int `json:"output_tokens"`
	} `json:"usage"`
}

// ProcessQuery implements Client.
func (c *SubprocessClient) ProcessQuery(ctx context.Context, workDir, prompt string) ([]Message, error) {
	args := []string{
		"-p",
		"--output-format", "stream-json",
		"--verbose",
		"--allowedTools", strings.Join(readOnlyTools, " "),
	}
	if c.MaxTurns > 0 {
		args = append(args, "--max-turns", fmt.Sprintf("%d", c.MaxTurns))
	}

	cmd := exec.CommandContext(ctx, c.Binary, args...)
	cmd.Dir = workDir
	cmd.Stdin = strings.NewReader(prompt)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("agent: creating stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("agent: starting %s: %w", c.Binary, err)
	}

	var transcript []Message
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event cliEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			c.Logger.Debug("skipping unparseable agent event", "error", err)
			continue
		}
		transcript = append(transcript, eventToMessages(event)...)
	}
	scanErr := scanner.Err()

	waitErr := cmd.Wait()
	if classified := classifyAgentFailure(waitErr, stderr.String(), transcript); classified != nil {
		return transcript, classified
	}
	if scanErr != nil {
		return transcript, fmt.Errorf("agent: reading session output: %w", scanErr)
	}
	return transcript, nil
}

func eventToMessages(event cliEvent) []Message {
	switch event.Type {
	case "assistant":
		if event.Message == nil {
			return nil
		}
		var msgs []Message
		for _, block := range event.Message.Content {
			switch block.Type {
			case "text":
				msgs = append(msgs, AssistantMessage{Text: block.Text})
			case "tool_use":
				msgs = append(msgs, ToolUseMessage{Name: block.Name, Input: block.Input})
			}
		}
		return msgs
	case "user":
		if event.Message == nil {
			return nil
		}
		var msgs []Message
		for _, block := range event.Message.Content {
			if block.Type == "tool_result" {
				msgs = append(msgs, ToolResultMessage{Content: string(block.Content), IsError: block.IsError})
			}
		}
		return msgs
	case "result":
		result := ResultMessage{
			Text:        event.Result,
			IsError:     event.IsError || event.Subtype != "success",
			CostDollars: event.TotalCostUSD,
			DurationMS:  event.DurationMS,
			NumTurns:    event.NumTurns,
		}
		if event.Usage != nil {
			result.InputTokens = event.Usage.InputTokens
			result.CacheCreationInputTokens = event.Usage.CacheCreationInputTokens
			result.CacheReadInputTokens = event.Usage.CacheReadInputTokens
			result.OutputTokens = event.Usage.OutputTokens
		}
		return []Message{result}
	default:
		return nil
	}
}

// classifyAgentFailure decides whether a session failure is an API-level
// problem that should halt the run, an ordinary session failure, or no
// failure at all.
func classifyAgentFailure(waitErr error, stderr string, transcript []Message) error {
	if waitErr == nil {
		return nil
	}
	lowered := strings.ToLower(stderr)
	for _, marker := range []string{"api error", "authentication", "invalid api key", "credit balance", "overloaded"} {
		if strings.Contains(lowered, marker) {
			return &APIError{Message: strings.TrimSpace(stderr)}
		}
	}
	if result, ok := FinalResult(transcript); ok && !result.IsError {
		// The session produced a terminal result before the process
		// exited non-zero; treat the transcript as usable.
		return nil
	}
	return fmt.Errorf("agent: session failed: %w: %s", waitErr, strings.TrimSpace(stderr))
}

var _ Client = (*SubprocessClient)(nil)
