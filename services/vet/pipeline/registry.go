// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/vet/services/vet/config"
	"github.com/AleutianAI/vet/services/vet/identify"
	"github.com/AleutianAI/vet/services/vet/issue"
)

// harnessKind selects the harness implementation a preset runs on.
type harnessKind int

const (
	kindSinglePrompt harnessKind = iota
	kindConversation
	kindAgentic
)

// preset is a named identifier configuration: a harness and the issue
// codes it checks.
type preset struct {
	name  string
	kind  harnessKind
	codes []issue.Code
}

// presets is the identifier registry. Config enables and disables
// identifiers by these names.
var presets = []preset{
	{
		name: "agentic_issue_identifier",
		kind: kindAgentic,
		codes: []issue.Code{
			issue.CodeIncorrectFunctionImplementation,
			issue.CodeIncompleteIntegration,
			issue.CodeDocImplementationMismatch,
			issue.CodeUserRequestArtifacts,
			issue.CodeRefactoringNeeded,
			issue.CodeTestCoverage,
			issue.CodeResourceLeakage,
			issue.CodeDependencyManagement,
			issue.CodeInsecureCode,
			issue.CodeFailsSilently,
			issue.CodeInstructionFileDisobeyed,
			issue.CodeAbstractionViolation,
			issue.CodeMismatchedCodePatterns,
		},
	},
	{
		name: "batched_commit_check",
		kind: kindSinglePrompt,
		codes: []issue.Code{
			issue.CodeInefficientCode,
			issue.CodeBadNaming,
			issue.CodePoorDocstring,
			issue.CodeRaceCondition,
			issue.CodeHardcodedSecret,
			issue.CodeDuplicateCode,
			issue.CodeUnusedCode,
			issue.CodeCommitMessageMismatch,
			issue.CodePoorNaming,
			issue.CodeRepetitiveOrDuplicateCode,
			issue.CodeCorrectnessSyntaxIssues,
		},
	},
	{
		name: "conversation_history_issue_identifier",
		kind: kindConversation,
		codes: []issue.Code{
			issue.CodeMisleadingBehavior,
			issue.CodeInstructionToSave,
		},
	},
	{
		name: "correctness_commit_classifier",
		kind: kindSinglePrompt,
		codes: []issue.Code{
			issue.CodeLogicError,
			issue.CodeRuntimeErrorRisk,
			issue.CodeIncorrectAlgorithm,
			issue.CodeErrorHandlingMissing,
			issue.CodeAsyncCorrectness,
			issue.CodeTypeSafetyViolation,
		},
	},
}

// BuildIdentifiers resolves the config's identifier selection against
// the registry.
//
// # Description
//
// The enabled list (or the full registry when empty) minus the disabled
// list gives the selected presets; naming an unknown identifier is a
// configuration error. Each preset's codes are intersected with the
// run's enabled codes, and presets left with no codes are dropped.
// Selected presets that share a harness are merged into one identifier
// with a "+"-joined name, so a harness is invoked at most once per run.
func BuildIdentifiers(cfg config.Config, deps identify.Deps) ([]identify.Identifier, error) {
	selected, err := selectPresets(cfg)
	if err != nil {
		return nil, err
	}

	enabledCodes, err := cfg.EnabledCodes()
	if err != nil {
		return nil, err
	}
	enabled := make(map[issue.Code]struct{}, len(enabledCodes))
	for _, c := range enabledCodes {
		enabled[c] = struct{}{}
	}

	// Merge presets per harness kind, preserving registry order.
	type group struct {
		names []string
		codes []issue.Code
		seen  map[issue.Code]struct{}
	}
	groups := map[harnessKind]*group{}
	var order []harnessKind

	for _, p := range selected {
		var codes []issue.Code
		for _, c := range p.codes {
			if _, on := enabled[c]; on {
				codes = append(codes, c)
			}
		}
		if len(codes) == 0 {
			continue
		}

		g, ok := groups[p.kind]
		if !ok {
			g = &group{seen: map[issue.Code]struct{}{}}
			groups[p.kind] = g
			order = append(order, p.kind)
		}
		g.names = append(g.names, p.name)
		for _, c := range codes {
			if _, dup := g.seen[c]; dup {
				continue
			}
			g.seen[c] = struct{}{}
			g.codes = append(g.codes, c)
		}
	}

	var identifiers []identify.Identifier
	for _, kind := range order {
		g := groups[kind]
		name := strings.Join(g.names, "+")
		switch kind {
		case kindSinglePrompt:
			identifiers = append(identifiers, identify.NewSinglePromptHarness(name, g.codes, cfg, deps))
		case kindConversation:
			identifiers = append(identifiers, identify.NewConversationHarness(name, g.codes, cfg, deps))
		case kindAgentic:
			identifiers = append(identifiers, identify.NewAgenticHarness(name, g.codes, cfg, deps))
		}
	}
	return identifiers, nil
}

func selectPresets(cfg config.Config) ([]preset, error) {
	byName := make(map[string]preset, len(presets))
	for _, p := range presets {
		byName[p.name] = p
	}

	disabled := make(map[string]struct{}, len(cfg.DisabledIssueIdentifiers))
	for _, name := range cfg.DisabledIssueIdentifiers {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("pipeline: unknown issue identifier %q", name)
		}
		disabled[name] = struct{}{}
	}

	var candidates []preset
	if len(cfg.EnabledIssueIdentifiers) > 0 {
		for _, name := range cfg.EnabledIssueIdentifiers {
			p, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("pipeline: unknown issue identifier %q", name)
			}
			candidates = append(candidates, p)
		}
	} else {
		candidates = presets
	}

	var selected []preset
	for _, p := range candidates {
		if _, off := disabled[p.name]; !off {
			selected = append(selected, p)
		}
	}
	return selected, nil
}
