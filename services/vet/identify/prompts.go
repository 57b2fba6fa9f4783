// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package identify

import (
	"strings"
	"text/template"
)

// responseSchema is the output contract appended to every
// identification prompt.
const responseSchema = `Respond with a single JSON object inside a ` + "```json" + ` fence:

{
  "issues": [
    {
      "issue_code": "<one of the issue types listed above>",
      "description": "<what is wrong and why it matters>",
      "location": "<file path, when the issue is tied to a file>",
      "code_part": "<verbatim snippet from the file, when applicable>",
      "severity": <integer 1-5>,
      "confidence": <number 0.0-1.0>
    }
  ]
}

Report an empty issues list when you find nothing. Only report issues
you can justify from the provided material.`

var singlePromptTmpl = template.Must(template.New("single").Parse(
	`{{.PromptPrefix}}
# USER REQUEST

The change was made in response to this request{{if .GoalTruncated}} (truncated to fit){{end}}:

{{.Goal}}

# CHANGE UNDER REVIEW

Unified diff{{if .DiffTruncated}} (truncated to fit){{end}}:

{{.Diff}}
{{if .ExtraContext}}
# ADDITIONAL CONTEXT

{{.ExtraContext}}
{{end}}
# ISSUE TYPES TO CHECK

{{.Guides}}
# INSTRUCTIONS

Review the change against the issue types above. Judge only the change
and code it directly affects.

{{.Schema}}
`))

type singlePromptData struct {
	PromptPrefix  string
	Goal          string
	GoalTruncated bool
	Diff          string
	DiffTruncated bool
	ExtraContext  string
	Guides        string
	Schema        string
}

func renderSinglePrompt(data singlePromptData) string {
	data.Schema = responseSchema
	var b strings.Builder
	if err := singlePromptTmpl.Execute(&b, data); err != nil {
		panic(err)
	}
	return b.String()
}

var conversationPromptTmpl = template.Must(template.New("conversation").Parse(
	`{{.RepoContext}}
# CONVERSATION HISTORY

The following conversation produced the current state of the repository{{if .Truncated}} (earlier turns omitted to fit){{end}}:

{{.Conversation}}

# ISSUE TYPES TO CHECK

{{.Guides}}
# INSTRUCTIONS

Review the conversation against the issue types above. Cross-check any
claim the assistant made against the repository contents provided.

{{.Schema}}
`))

type conversationPromptData struct {
	RepoContext  string
	Conversation string
	Truncated    bool
	Guides       string
	Schema       string
}

func renderConversationPrompt(data conversationPromptData) string {
	data.Schema = responseSchema
	var b strings.Builder
	if err := conversationPromptTmpl.Execute(&b, data); err != nil {
		panic(err)
	}
	return b.String()
}

var agenticPromptTmpl = template.Must(template.New("agentic").Parse(
	`You are reviewing a change to this repository. Use your read-only
tools (Read, Grep, Glob, LS) to inspect any code you need.

# USER REQUEST

{{.Goal}}

# CHANGE UNDER REVIEW

{{.Diff}}

# ISSUE TYPES TO CHECK

{{.Guides}}
{{- if .FanOut}}
# HOW TO WORK

Launch one Task sub-agent per issue type above, give it the relevant
guide, and merge the sub-agents' findings into a single report.
{{- end}}

# OUTPUT

{{.Schema}}
`))

type agenticPromptData struct {
	Goal   string
	Diff   string
	Guides string
	FanOut bool
	Schema string
}

func renderAgenticPrompt(data agenticPromptData) string {
	data.Schema = responseSchema
	var b strings.Builder
	if err := agenticPromptTmpl.Execute(&b, data); err != nil {
		panic(err)
	}
	return b.String()
}
