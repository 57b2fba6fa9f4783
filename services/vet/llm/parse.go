// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ParseError reports a model response that could not be interpreted as
// the expected JSON payload. Callers distinguish it from transport
// failures: a ParseError means the call succeeded but the content was
// unusable.
type ParseError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm: unparseable model response: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("llm: unparseable model response: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Validator is implemented by response schemas that carry semantic
// constraints beyond JSON shape.
type Validator interface {
	Validate() error
}

var jsonFenceRe = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// ExtractJSONBlock returns the JSON payload embedded in a model
// response: the first ```json fence when present, otherwise the text
// itself trimmed of a bare ``` fence.
func ExtractJSONBlock(text string) string {
	if m := jsonFenceRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

// ParseJSONResponse decodes a model response into T.
//
// The payload is located with ExtractJSONBlock, decoded, and validated
// when T implements Validator. All failure modes return a *ParseError so
// stages can apply their malformed-response policy uniformly.
func ParseJSONResponse[T any](text string) (T, error) {
	var out T
	payload := ExtractJSONBlock(text)
	if payload == "" {
		return out, &ParseError{Reason: "empty response", Raw: text}
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return out, &ParseError{Reason: "invalid JSON", Raw: text, Err: err}
	}
	if v, ok := any(&out).(Validator); ok {
		if err := v.Validate(); err != nil {
			return out, &ParseError{Reason: "schema validation failed", Raw: text, Err: err}
		}
	}
	return out, nil
}
