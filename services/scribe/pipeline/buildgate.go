// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/AleutianAI/CodeScribe/services/scribe/applier"
	"github.com/AleutianAI/CodeScribe/services/scribe/prompts"
	"github.com/AleutianAI/CodeScribe/services/scribe/workload"
)

// codeFenceRe matches a response wrapped in a single fenced code block,
// with an optional language tag.
var codeFenceRe = regexp.MustCompile("(?s)^\\s*```[a-zA-Z#]*\\s*\n(.*?)\n?```\\s*$")

// runBuildGate build-checks the mutated file and drives the bounded
// AI-assisted repair loop, reverting when repair is exhausted and the
// workload asks for it.
//
// This loop is the system's principal failure-recovery mechanism: it
// converts a nondeterministic generator into a bounded probability of a
// buildable file, with revert as the deterministic fallback. When revert
// is active, no branch ever contains an unbuildable file.
func (p *Pipeline) runBuildGate(ctx context.Context, repoPath, relPath string, w *workload.Workload, stats *workload.Statistics, report *FileReport, logger *slog.Logger) error {
	if p.builder == nil {
		return fmt.Errorf("build check enabled but no builder configured")
	}

	outcome, err := p.builder.Build(ctx, repoPath, w.Options.SolutionRef)
	if err != nil {
		return fmt.Errorf("build gate for %s: %w", relPath, err)
	}
	if outcome.Success {
		logger.Info("build gate passed")
		return nil
	}

	filtered := outcome.ErrorsForFile(relPath)
	absPath := filepath.Join(repoPath, filepath.FromSlash(relPath))

	for attempt := 1; attempt <= w.Options.MaxRepairAttempts; attempt++ {
		stats.BuildRetries++
		report.RepairAttempts = attempt
		logger.Warn("build failed, attempting ai repair",
			"attempt", attempt,
			"max_attempts", w.Options.MaxRepairAttempts,
			"errors", len(filtered),
		)

		content, err := os.ReadFile(absPath)
		if err != nil {
			return fmt.Errorf("read %s for repair: %w", relPath, err)
		}
		prompt, err := prompts.ForRepair(relPath, string(content), filtered)
		if err != nil {
			return err
		}

		resp, genErr := p.gateway.Generate(ctx, prompt)
		if resp != nil {
			stats.RecordAICall(resp.PromptTokens, resp.ResponseTokens)
		} else {
			stats.RecordAICall(0, 0)
		}
		if genErr != nil || resp == nil || !resp.Done {
			logger.Warn("repair generation failed", "attempt", attempt)
			continue
		}

		fixed := unwrapCodeFence(resp.Text)
		if strings.TrimSpace(fixed) == "" {
			logger.Warn("repair produced empty file, discarding", "attempt", attempt)
			continue
		}
		if err := applier.WriteFile(absPath, []byte(fixed)); err != nil {
			return fmt.Errorf("apply repair to %s: %w", relPath, err)
		}

		outcome, err = p.builder.Build(ctx, repoPath, w.Options.SolutionRef)
		if err != nil {
			return fmt.Errorf("rebuild after repair of %s: %w", relPath, err)
		}
		if outcome.Success {
			logger.Info("build repaired", "attempts", attempt)
			return nil
		}
		filtered = outcome.ErrorsForFile(relPath)
	}

	// Retries exhausted.
	stats.BuildFailures++
	report.Failed = true
	p.recordUnitError(report, stats, logger, fmt.Errorf("%w: %s after %d repair attempts", workload.ErrBuildFailure, relPath, w.Options.MaxRepairAttempts))

	if w.Options.RevertOnFailure {
		if p.git == nil {
			return fmt.Errorf("revert requested for %s but no git capability configured", relPath)
		}
		if err := p.git.RevertFile(ctx, repoPath, relPath); err != nil {
			// A file must never be left both build-broken and
			// un-reverted while this policy is active.
			return fmt.Errorf("revert %s: %w", relPath, err)
		}
		report.Reverted = true
		report.Modified = false
		logger.Warn("file reverted to last committed content")
		return nil
	}

	report.SoftWarning = true
	report.Failed = false
	logger.Warn("leaving unbuildable change in place (revert disabled)")
	return nil
}

// unwrapCodeFence strips a single enclosing fenced code block from an AI
// repair response.
func unwrapCodeFence(text string) string {
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}
