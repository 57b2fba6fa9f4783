// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vet_pipeline_runs_total",
		Help: "Completed issue-identification pipeline runs.",
	})

	runFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vet_pipeline_run_failures_total",
		Help: "Pipeline runs that ended in an error.",
	})

	issuesIdentifiedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vet_issues_identified_total",
		Help: "Resolved issues produced, by issue code.",
	}, []string{"issue_code"})

	identifiersSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vet_identifiers_skipped_total",
		Help: "Identifiers skipped because required inputs were missing.",
	})

	unknownCodesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vet_unknown_issue_codes_total",
		Help: "Raw issues dropped because the model invented an issue code.",
	})

	spendDollarsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vet_llm_spend_dollars_total",
		Help: "Model spend across pipeline runs, in dollars.",
	})
)
