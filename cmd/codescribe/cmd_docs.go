// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/CodeScribe/services/scribe/telemetry"
	"github.com/AleutianAI/CodeScribe/services/scribe/workload"
)

// runDocsCommand executes a full documentation batch: readiness gates,
// admission, per-file mutation with build verification, then a pull
// request with the surviving changes.
//
// Ctrl-C cancels between files; the file in flight finishes first so the
// repository is never left with a half-edited file.
func runDocsCommand(cmd *cobra.Command, args []string) error {
	a, closeApp, err := newApp()
	if err != nil {
		return err
	}
	defer closeApp()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := buildWorkload(args[0], a.cfg)
	a.logger.Info("starting documentation batch",
		"workload_id", w.ID,
		"repository", w.Repository,
		"model", a.gateway.Model(),
	)

	collector, err := telemetry.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	result := a.orchestrator.Run(ctx, w)
	collector.Record(result.Stats)

	printResult(result)

	if result.State != workload.StateCompleted {
		return fmt.Errorf("batch finished in state %s", result.State)
	}
	return nil
}

// printResult renders the batch outcome for a human. Color only lands on
// a real terminal; piped output stays plain.
func printResult(result *workload.Result) {
	tty := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	bold, green, red, reset := "", "", "", ""
	if tty {
		bold, green, red, reset = "\033[1m", "\033[32m", "\033[31m", "\033[0m"
	}

	stateColor := green
	if result.State != workload.StateCompleted {
		stateColor = red
	}

	fmt.Printf("\n%sBatch %s%s\n", bold, result.WorkloadID, reset)
	fmt.Printf("  State:           %s%s%s\n", stateColor, result.State, reset)
	fmt.Printf("  Files processed: %d\n", result.Stats.FilesProcessed)
	fmt.Printf("  Files modified:  %d\n", len(result.ModifiedFiles))
	fmt.Printf("  Members documented: %d\n", result.Stats.ItemsModified)
	fmt.Printf("  AI calls:        %d (%d prompt / %d response tokens)\n",
		result.Stats.AICalls, result.Stats.PromptTokens, result.Stats.ResponseTokens)
	if result.Stats.BuildFailures > 0 || result.Stats.BuildRetries > 0 {
		fmt.Printf("  Build repairs:   %d attempted, %d files unrecovered\n",
			result.Stats.BuildRetries, result.Stats.BuildFailures)
	}
	fmt.Printf("  Duration:        %s\n", result.Stats.Duration().Round(time.Millisecond))

	for _, file := range result.ModifiedFiles {
		fmt.Printf("    %s+%s %s\n", green, reset, file)
	}
	if result.Publish.PullRequestURL != "" {
		fmt.Printf("\n  Pull request: %s%s%s\n", bold, result.Publish.PullRequestURL, reset)
	}
	for _, msg := range result.Errors {
		fmt.Printf("  %serror:%s %s\n", red, reset, msg)
	}
}
