// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package issue defines the data model shared by every pipeline stage:
// issue codes, raw model-emitted issues, resolved issues, and the debug
// info that accumulates model responses across stages.
package issue

// Code identifies the category of a detected issue. A code can be very
// specific ("poor_docstring") or an umbrella for a whole identifier
// ("all_code_issues").
type Code string

const (
	CodeIncorrectFunctionImplementation Code = "incorrect_function_implementation"

	// Batched file checks.
	CodeInefficientCode       Code = "inefficient_code"
	CodeBadNaming             Code = "bad_naming"
	CodePoorDocstring         Code = "poor_docstring"
	CodeRaceCondition         Code = "race_condition"
	CodeHardcodedSecret       Code = "hardcoded_secret"
	CodeDuplicateCode         Code = "duplicate_code"
	CodeUnusedCode            Code = "unused_code"
	CodeCommitMessageMismatch Code = "commit_message_mismatch"

	// Batched commit checks.
	CodeIncompleteIntegration       Code = "incomplete_integration_with_existing_code"
	CodeDocImplementationMismatch   Code = "documentation_implementation_mismatch"
	CodeUserRequestArtifacts        Code = "user_request_artifacts_left_in_code"
	CodePoorNaming                  Code = "poor_naming"
	CodeRepetitiveOrDuplicateCode   Code = "repetitive_or_duplicate_code"
	CodeRefactoringNeeded           Code = "refactoring_needed"
	CodeTestCoverage                Code = "test_coverage"
	CodeResourceLeakage             Code = "resource_leakage"
	CodeDependencyManagement        Code = "dependency_management"
	CodeInsecureCode                Code = "insecure_code"
	CodeCorrectnessSyntaxIssues     Code = "correctness_syntax_issues"
	CodeFailsSilently               Code = "fails_silently"
	CodeInstructionFileDisobeyed    Code = "instruction_file_disobeyed"
	CodeAbstractionViolation        Code = "abstraction_violation"

	// Correctness commit classifier.
	CodeLogicError           Code = "logic_error"
	CodeRuntimeErrorRisk     Code = "runtime_error_risk"
	CodeIncorrectAlgorithm   Code = "incorrect_algorithm"
	CodeErrorHandlingMissing Code = "error_handling_missing"
	CodeAsyncCorrectness     Code = "async_correctness"
	CodeTypeSafetyViolation  Code = "type_safety_violation"

	// Conversation history identifier.
	CodeMisleadingBehavior Code = "misleading_behavior"
	CodeInstructionToSave  Code = "instruction_to_save"

	CodeMismatchedCodePatterns Code = "mismatched_code_patterns"

	// Flags suggested improvements rather than defects.
	CodeSuggestedImprovement Code = "suggested_improvement"

	// Catchall.
	CodeMiscellaneous Code = "miscellaneous"
	CodeAllCodeIssues Code = "all_code_issues"
)

// AllCodes lists every valid issue code in declaration order.
var AllCodes = []Code{
	CodeIncorrectFunctionImplementation,
	CodeInefficientCode,
	CodeBadNaming,
	CodePoorDocstring,
	CodeRaceCondition,
	CodeHardcodedSecret,
	CodeDuplicateCode,
	CodeUnusedCode,
	CodeCommitMessageMismatch,
	CodeIncompleteIntegration,
	CodeDocImplementationMismatch,
	CodeUserRequestArtifacts,
	CodePoorNaming,
	CodeRepetitiveOrDuplicateCode,
	CodeRefactoringNeeded,
	CodeTestCoverage,
	CodeResourceLeakage,
	CodeDependencyManagement,
	CodeInsecureCode,
	CodeCorrectnessSyntaxIssues,
	CodeFailsSilently,
	CodeInstructionFileDisobeyed,
	CodeAbstractionViolation,
	CodeLogicError,
	CodeRuntimeErrorRisk,
	CodeIncorrectAlgorithm,
	CodeErrorHandlingMissing,
	CodeAsyncCorrectness,
	CodeTypeSafetyViolation,
	CodeMisleadingBehavior,
	CodeInstructionToSave,
	CodeMismatchedCodePatterns,
	CodeSuggestedImprovement,
	CodeMiscellaneous,
	CodeAllCodeIssues,
}

var validCodes = func() map[Code]struct{} {
	m := make(map[Code]struct{}, len(AllCodes))
	for _, c := range AllCodes {
		m[c] = struct{}{}
	}
	return m
}()

// IsValid reports whether c is a known issue code.
func (c Code) IsValid() bool {
	_, ok := validCodes[c]
	return ok
}

// Phase names the pipeline stage that produced a model response.
type Phase string

const (
	PhaseIdentification Phase = "issue_identification"
	PhaseCollation      Phase = "collation"
	PhaseFiltration     Phase = "filtration"
	PhaseDeduplication  Phase = "deduplication"
)
