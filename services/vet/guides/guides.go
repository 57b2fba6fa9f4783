// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package guides carries the per-issue-code guidance injected into
// identification prompts, plus its rendering.
package guides

import (
	"strings"
	"text/template"

	"github.com/AleutianAI/vet/services/vet/issue"
)

// Guide is the instruction block for one issue code.
type Guide struct {
	Code issue.Code

	// Text tells the model what to look for.
	Text string

	// AgentText adds instructions that only make sense when the model
	// can explore the repository with tools.
	AgentText string

	// Exceptions lists findings that must not be reported under this
	// code.
	Exceptions []string
}

var guidesByCode = map[issue.Code]Guide{
	issue.CodeIncorrectFunctionImplementation: {
		Text: "Find functions whose behavior does not match what their name, signature, or documentation promises. Focus on the changed code and the functions it calls.",
	},
	issue.CodeInefficientCode: {
		Text:       "Find code with avoidable asymptotic or constant-factor cost: repeated work inside loops, quadratic scans over data that is already indexed, redundant I/O.",
		Exceptions: []string{"Micro-optimizations with no measurable effect on the workload."},
	},
	issue.CodeBadNaming: {
		Text: "Find identifiers that mislead about type, units, mutability, or intent.",
	},
	issue.CodePoorDocstring: {
		Text: "Find doc comments that are wrong, vague, or contradict the implementation. Missing documentation on exported API counts when the package documents its other exports.",
	},
	issue.CodeRaceCondition: {
		Text:      "Find shared state accessed from multiple goroutines or threads without synchronization, check-then-act windows, and unsynchronized lazy initialization.",
		AgentText: "Trace which goroutines can reach the suspect state; report only paths that can actually run concurrently.",
	},
	issue.CodeHardcodedSecret: {
		Text:       "Find credentials, API keys, tokens, or private endpoints embedded in the code or config.",
		Exceptions: []string{"Obvious test fixtures and placeholder values such as \"example\" or \"changeme\"."},
	},
	issue.CodeDuplicateCode: {
		Text: "Find logic duplicated from elsewhere in the repository instead of reusing the existing implementation.",
	},
	issue.CodeUnusedCode: {
		Text: "Find newly added code that nothing reachable calls: dead branches, unexported helpers without callers, fields never read.",
	},
	issue.CodeCommitMessageMismatch: {
		Text: "Compare the stated goal of the change against the diff; report work the message claims that the diff does not do, and significant changes the message hides.",
	},
	issue.CodeIncompleteIntegration: {
		Text:      "Find new code that duplicates or bypasses existing abstractions instead of integrating with them: parallel implementations, unconnected wiring, callers left on the old path.",
		AgentText: "Search the repository for existing implementations of the same concern before reporting.",
	},
	issue.CodeDocImplementationMismatch: {
		Text: "Find README, comments, or docs that the change makes stale, and new docs that describe behavior the code does not have.",
	},
	issue.CodeUserRequestArtifacts: {
		Text: "Find remnants of the request process left in the code: instructions quoted in comments, placeholder names from the task description, TODO markers addressed to the requester.",
	},
	issue.CodePoorNaming: {
		Text: "Find names that are inconsistent with the surrounding codebase's conventions or too generic to convey intent.",
	},
	issue.CodeRepetitiveOrDuplicateCode: {
		Text: "Find near-identical blocks within the change that should share a helper.",
	},
	issue.CodeRefactoringNeeded: {
		Text:       "Find changes that leave the code in a structurally worse state: functions grown past coherence, layering violations introduced to avoid a refactor.",
		Exceptions: []string{"Pre-existing structural debt the change does not touch."},
	},
	issue.CodeTestCoverage: {
		Text: "Find changed behavior with no test exercising it, and tests the change silently weakened or deleted.",
	},
	issue.CodeResourceLeakage: {
		Text: "Find resources acquired but not released on all paths: files, locks, connections, goroutines blocked forever, contexts never cancelled.",
	},
	issue.CodeDependencyManagement: {
		Text: "Find imports of packages not declared as dependencies, unnecessary new dependencies, and version constraints the change breaks.",
	},
	issue.CodeInsecureCode: {
		Text: "Find injection risks, disabled verification (TLS, auth, input validation), unsafe deserialization, and path traversal in the changed code.",
	},
	issue.CodeCorrectnessSyntaxIssues: {
		Text: "Find code that cannot compile or parse: unbalanced constructs, references to names that do not exist, type mismatches.",
	},
	issue.CodeFailsSilently: {
		Text: "Find error paths that swallow failures: ignored error returns, empty catch blocks, fallbacks that hide the original problem.",
	},
	issue.CodeInstructionFileDisobeyed: {
		Text:      "Find violations of the repository's contribution rules (style guides, AGENTS/CONTRIBUTING files) introduced by the change.",
		AgentText: "Read the repository's instruction files first; only report rules they actually state.",
	},
	issue.CodeAbstractionViolation: {
		Text: "Find code reaching through abstraction boundaries: accessing internals of another layer, depending on implementation details rather than interfaces.",
	},
	issue.CodeLogicError: {
		Text: "Find incorrect boolean conditions, inverted comparisons, off-by-one bounds, and wrong operator choices in the changed code.",
	},
	issue.CodeRuntimeErrorRisk: {
		Text: "Find likely runtime failures: nil dereferences, out-of-range indexing, unchecked type assertions, division by zero.",
	},
	issue.CodeIncorrectAlgorithm: {
		Text: "Find algorithms that do not compute what the surrounding code needs: wrong traversal order, missing cases, incorrect termination conditions.",
	},
	issue.CodeErrorHandlingMissing: {
		Text: "Find operations that can fail whose errors the change never checks or propagates.",
	},
	issue.CodeAsyncCorrectness: {
		Text: "Find concurrency misuse: missing waits, channels never closed or closed twice, callbacks capturing loop variables incorrectly, deadlock-prone lock ordering.",
	},
	issue.CodeTypeSafetyViolation: {
		Text: "Find casts and conversions that discard safety: unchecked narrowing, interface{} round-trips that can fail at runtime, misuse of unsafe.",
	},
	issue.CodeMisleadingBehavior: {
		Text: "From the conversation history, find claims the assistant made that the code contradicts: features reported done but absent, tests reported passing that were never run.",
	},
	issue.CodeInstructionToSave: {
		Text: "From the conversation history, find durable instructions the user gave that should be recorded for future sessions but were not.",
	},
	issue.CodeMismatchedCodePatterns: {
		Text: "Find code written against the conventions the rest of the repository follows for the same concern.",
	},
	issue.CodeSuggestedImprovement: {
		Text: "Report worthwhile improvements adjacent to the change that are not defects. Use low severity.",
	},
	issue.CodeMiscellaneous: {
		Text: "Report genuine problems that fit no other code. Prefer a specific code whenever one applies.",
	},
	issue.CodeAllCodeIssues: {
		Text: "Report any genuine defect in the changed code, regardless of category.",
	},
}

// For returns the guide for a code. The second result is false for
// codes without specific guidance.
func For(code issue.Code) (Guide, bool) {
	g, ok := guidesByCode[code]
	if !ok {
		return Guide{Code: code}, false
	}
	g.Code = code
	return g, true
}

var promptTmpl = template.Must(template.New("guides").Parse(
	`{{range .}}## Issue type: {{.Code}}

{{.Text}}
{{- if .AgentText}}

{{.AgentText}}
{{- end}}
{{- if .Exceptions}}

Do not report:
{{- range .Exceptions}}
- {{.}}
{{- end}}
{{- end}}

{{end}}`))

// FormatForPrompt renders the guides for the given codes in order,
// skipping codes without guidance. forAgent includes the agent-only
// guidance.
func FormatForPrompt(codes []issue.Code, forAgent bool) string {
	return FormatForPromptWith(codes, forAgent, nil)
}

// FormatForPromptWith renders like FormatForPrompt with the user's
// overrides merged over the built-in guidance first. A replace override
// gives even a code without built-in guidance a body.
func FormatForPromptWith(codes []issue.Code, forAgent bool, overrides map[issue.Code]Override) string {
	var selected []Guide
	for _, code := range codes {
		g, ok := For(code)
		o, overridden := overrides[code]
		if !ok {
			if !overridden || o.Replace == "" {
				continue
			}
			g = Guide{Code: code}
		}
		if overridden {
			g = g.withOverride(o)
		}
		if !forAgent {
			g.AgentText = ""
		}
		selected = append(selected, g)
	}
	if len(selected) == 0 {
		return ""
	}
	var b strings.Builder
	if err := promptTmpl.Execute(&b, selected); err != nil {
		// The template is static; execution over plain structs cannot
		// fail at runtime.
		panic(err)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
