// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config holds the run configuration for the vet pipeline.
//
// Configuration is loaded from YAML, merged over defaults, and
// validated before a run starts. Feature toggles (collation, filtration,
// deduplication, parallel agentic identification) all live here so a
// single struct describes an entire run.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/vet/services/vet/issue"
)

// ModelConfig selects and shapes the language model used by
// single-prompt stages.
type ModelConfig struct {
	// Provider is "anthropic" or "openai".
	Provider string `yaml:"provider" validate:"oneof=anthropic openai"`

	// Name is the provider's model identifier.
	Name string `yaml:"name" validate:"required"`

	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string `yaml:"base_url"`

	// ContextWindow is the model's context length in tokens.
	ContextWindow int `yaml:"context_window" validate:"gt=0"`
}

// Config is the full run configuration.
type Config struct {
	Model ModelConfig `yaml:"model"`

	// EnabledIssueIdentifiers restricts the run to the named
	// identifiers. Empty means all known identifiers.
	EnabledIssueIdentifiers []string `yaml:"enabled_issue_identifiers"`

	// DisabledIssueIdentifiers removes identifiers from the enabled set.
	DisabledIssueIdentifiers []string `yaml:"disabled_issue_identifiers"`

	// EnabledIssueCodes restricts the run to the named issue codes.
	// Empty means all valid codes.
	EnabledIssueCodes []string `yaml:"enabled_issue_codes"`

	// DisabledIssueCodes removes codes from the enabled set.
	DisabledIssueCodes []string `yaml:"disabled_issue_codes"`

	// CustomGuidesDir is a directory of {issue_code}.md files whose
	// sections prefix, suffix, or replace the built-in identification
	// guides. A relative path resolves against the repository under
	// review. Empty disables custom guides.
	CustomGuidesDir string `yaml:"custom_guides_dir"`

	// MaxSpendDollars is the hard cap for the whole run. Zero disables
	// the limiter.
	MaxSpendDollars float64 `yaml:"max_identifier_spend_dollars" validate:"gte=0"`

	// MaxOutputTokens is reserved for each model response.
	MaxOutputTokens int `yaml:"max_output_tokens" validate:"gt=0"`

	// MaxPromptOverhead is the token allowance for fixed prompt
	// scaffolding (instructions, schemas, guides).
	MaxPromptOverhead int `yaml:"max_prompt_overhead" validate:"gte=0"`

	// Temperature for single-prompt identification calls.
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`

	// EnableParallelAgenticIdentification runs one agent session per
	// issue code instead of a single fan-out session.
	EnableParallelAgenticIdentification bool `yaml:"enable_parallel_agentic_issue_identification"`

	// MaxIdentifyWorkers bounds concurrent identifier streams and
	// concurrent agent sessions in parallel mode.
	MaxIdentifyWorkers int `yaml:"max_identify_workers" validate:"gte=1"`

	// FilterIssues toggles the filtration stage.
	FilterIssues bool `yaml:"filter_issues"`

	// FilterIssuesThroughLLMEvaluator adds the model-based evaluation
	// after the confidence threshold.
	FilterIssuesThroughLLMEvaluator bool `yaml:"filter_issues_through_llm_evaluator"`

	// FilterIssuesBelowConfidence is the confidence threshold. Negative
	// means "use the default", so explicit zero can disable filtering.
	FilterIssuesBelowConfidence float64 `yaml:"filter_issues_below_confidence" validate:"gte=-1,lte=1"`

	// EnableDeduplication toggles the deduplication stage.
	EnableDeduplication bool `yaml:"enable_deduplication"`

	// EnableCollation toggles agentic collation.
	EnableCollation bool `yaml:"enable_collation"`

	// CacheFullPrompt requests provider-side caching of the whole
	// prompt, not just the repo-context prefix.
	CacheFullPrompt bool `yaml:"cache_full_prompt"`

	// AgentBinary is the agent CLI executable for agentic identifiers.
	AgentBinary string `yaml:"agent_binary"`

	// AgentMaxTurns bounds each agent session. Zero means the CLI
	// default.
	AgentMaxTurns int `yaml:"agent_max_turns" validate:"gte=0"`
}

// Default returns the configuration used when no file or flag overrides
// anything.
func Default() Config {
	return Config{
		Model: ModelConfig{
			Provider:      "anthropic",
			Name:          "claude-sonnet-4-5",
			ContextWindow: 200_000,
		},
		MaxSpendDollars:                 5.0,
		MaxOutputTokens:                 20_000,
		MaxPromptOverhead:               4_000,
		Temperature:                     0.5,
		MaxIdentifyWorkers:              4,
		FilterIssues:                    true,
		FilterIssuesThroughLLMEvaluator: true,
		FilterIssuesBelowConfidence:     -1,
		EnableDeduplication:             true,
		EnableCollation:                 true,
	}
}

// Load reads a YAML config file over the defaults and validates the
// result. An empty path returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and the issue-code lists.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.EnabledCodes(); err != nil {
		return err
	}
	for _, name := range append(append([]string{}, c.EnabledIssueIdentifiers...), c.DisabledIssueIdentifiers...) {
		if name == "" {
			return fmt.Errorf("config: empty identifier name")
		}
	}
	return nil
}

// EnabledCodes resolves the enabled/disabled code lists to the set of
// codes this run checks. Unknown code names are a configuration error.
func (c Config) EnabledCodes() ([]issue.Code, error) {
	toCode := func(name string) (issue.Code, error) {
		code := issue.Code(name)
		if !code.IsValid() {
			return "", fmt.Errorf("config: unknown issue code %q", name)
		}
		return code, nil
	}

	disabled := make(map[issue.Code]struct{}, len(c.DisabledIssueCodes))
	for _, name := range c.DisabledIssueCodes {
		code, err := toCode(name)
		if err != nil {
			return nil, err
		}
		disabled[code] = struct{}{}
	}

	var candidates []issue.Code
	if len(c.EnabledIssueCodes) > 0 {
		for _, name := range c.EnabledIssueCodes {
			code, err := toCode(name)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, code)
		}
	} else {
		candidates = issue.AllCodes
	}

	var enabled []issue.Code
	for _, code := range candidates {
		if _, off := disabled[code]; !off {
			enabled = append(enabled, code)
		}
	}
	return enabled, nil
}

// ConfidenceThresholdOrDefault resolves the configured confidence
// threshold, falling back to def when the config leaves it unset.
func (c Config) ConfidenceThresholdOrDefault(def float64) float64 {
	if c.FilterIssuesBelowConfidence < 0 {
		return def
	}
	return c.FilterIssuesBelowConfidence
}
