// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry exports run statistics as prometheus counters so
// long-lived hosts (CI runners, schedulers) can scrape batch outcomes.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/CodeScribe/services/scribe/workload"
)

// Collector owns the prometheus counters mirroring WorkloadStatistics.
type Collector struct {
	filesProcessed    prometheus.Counter
	itemsModified     prometheus.Counter
	unitErrors        prometheus.Counter
	aiCalls           prometheus.Counter
	promptTokens      prometheus.Counter
	responseTokens    prometheus.Counter
	buildRetries      prometheus.Counter
	buildFailures     prometheus.Counter
	sanitizationFixes prometheus.Counter
}

// NewCollector creates a Collector and registers its counters on reg.
// Pass prometheus.DefaultRegisterer for the process-global registry.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		filesProcessed:    counter("codescribe_files_processed_total", "Files run through the mutation pipeline."),
		itemsModified:     counter("codescribe_items_modified_total", "Work units successfully documented."),
		unitErrors:        counter("codescribe_unit_errors_total", "Non-fatal unit and file errors."),
		aiCalls:           counter("codescribe_ai_calls_total", "Gateway generate round trips."),
		promptTokens:      counter("codescribe_prompt_tokens_total", "Prompt tokens sent to the backend."),
		responseTokens:    counter("codescribe_response_tokens_total", "Response tokens received from the backend."),
		buildRetries:      counter("codescribe_build_retries_total", "AI-assisted build repair attempts."),
		buildFailures:     counter("codescribe_build_failures_total", "Files whose repair loop was exhausted."),
		sanitizationFixes: counter("codescribe_sanitization_fixes_total", "Automatic repairs applied while sanitizing."),
	}
	for _, col := range []prometheus.Collector{
		c.filesProcessed, c.itemsModified, c.unitErrors, c.aiCalls,
		c.promptTokens, c.responseTokens, c.buildRetries, c.buildFailures,
		c.sanitizationFixes,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Record adds a finished run's statistics to the counters.
func (c *Collector) Record(stats workload.Statistics) {
	c.filesProcessed.Add(float64(stats.FilesProcessed))
	c.itemsModified.Add(float64(stats.ItemsModified))
	c.unitErrors.Add(float64(stats.Errors))
	c.aiCalls.Add(float64(stats.AICalls))
	c.promptTokens.Add(float64(stats.PromptTokens))
	c.responseTokens.Add(float64(stats.ResponseTokens))
	c.buildRetries.Add(float64(stats.BuildRetries))
	c.buildFailures.Add(float64(stats.BuildFailures))
	c.sanitizationFixes.Add(float64(stats.SanitizationFixes))
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}
