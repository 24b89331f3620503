// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs the per-file guarded mutation loop and the build
// gate with its AI-assisted repair loop.
//
// The mutation loop composes extraction, prompt building, the gateway
// call, sanitization and the crash-safe splice, iterating to a fixpoint.
// Structural analysis is recomputed from scratch after every successful
// mutation because applied edits shift line numbers; this trades CPU for
// correctness and must not be optimized into incremental offset patching.
//
// The attempted-unit set is explicit state scoped to one ProcessFile call.
// A unit's key is marked attempted before the AI call, so a hung backend
// cannot stall the run on the same unit forever.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/CodeScribe/services/scribe/analyzer"
	"github.com/AleutianAI/CodeScribe/services/scribe/applier"
	"github.com/AleutianAI/CodeScribe/services/scribe/buildcheck"
	"github.com/AleutianAI/CodeScribe/services/scribe/gateway"
	"github.com/AleutianAI/CodeScribe/services/scribe/prompts"
	"github.com/AleutianAI/CodeScribe/services/scribe/sanitize"
	"github.com/AleutianAI/CodeScribe/services/scribe/workload"
)

var tracer = otel.Tracer("codescribe.pipeline")

// Reverter is the slice of the git capability the build gate needs.
type Reverter interface {
	RevertFile(ctx context.Context, repoPath, relFile string) error
}

// FileReport is the outcome of processing one file.
type FileReport struct {
	File           string
	Modified       bool
	ItemsModified  int
	RepairAttempts int

	// Reverted means the repair loop was exhausted and the file was
	// restored to its last committed content.
	Reverted bool

	// SoftWarning means the repair loop was exhausted but revert is
	// disabled, so the unbuildable change remains in place.
	SoftWarning bool

	// Failed marks the file as failed/skipped for the batch aggregate.
	Failed bool

	Errors []string
}

// Pipeline drives the per-file mutation and build-repair loops.
type Pipeline struct {
	analyzer analyzer.Analyzer
	gateway  gateway.Gateway
	builder  buildcheck.Builder
	git      Reverter
	logger   *slog.Logger
}

// New creates a Pipeline. builder and git may be nil when build checking
// or revert are disabled for every workload this pipeline will see.
func New(a analyzer.Analyzer, gw gateway.Gateway, builder buildcheck.Builder, git Reverter, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{analyzer: a, gateway: gw, builder: builder, git: git, logger: logger}
}

// ProcessFile runs the mutation loop to a fixpoint on one file, then the
// build gate if anything changed.
//
// Description:
//
//	Unit-level failures (gateway timeout, truncated response, rejected
//	sanitization, splice failure) are recorded and skipped; they never
//	abort the file. The returned error is reserved for cancellation and
//	infrastructure failures the batch should see.
//
// Inputs:
//
//	repoPath - Absolute checkout path.
//	relPath - File path relative to repoPath, forward slashes.
//	w - The running workload (kind, visibility, options).
//	stats - Batch statistics, accumulated incrementally.
func (p *Pipeline) ProcessFile(ctx context.Context, repoPath, relPath string, w *workload.Workload, stats *workload.Statistics) (*FileReport, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.ProcessFile")
	defer span.End()
	span.SetAttributes(attribute.String("file", relPath))

	report := &FileReport{File: relPath}
	logger := p.logger.With("file", relPath)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	// A file that starts is allowed to finish. The caller observes
	// cancellation at file boundaries only; a cancel arriving mid-file
	// must not leave a mutated file that skipped its build-or-revert
	// cycle.
	fileCtx := context.WithoutCancel(ctx)

	if err := p.mutateToFixpoint(fileCtx, repoPath, relPath, w, stats, report, logger); err != nil {
		return report, err
	}

	if report.Modified && w.Options.BuildCheck && w.Options.SolutionRef != "" {
		if err := p.runBuildGate(fileCtx, repoPath, relPath, w, stats, report, logger); err != nil {
			return report, err
		}
	}

	stats.FilesProcessed++
	span.SetAttributes(
		attribute.Int("items_modified", report.ItemsModified),
		attribute.Bool("reverted", report.Reverted),
	)
	return report, nil
}

// mutateToFixpoint loops extraction -> prompt -> gateway -> sanitize ->
// apply until no unattempted qualifying unit remains.
func (p *Pipeline) mutateToFixpoint(ctx context.Context, repoPath, relPath string, w *workload.Workload, stats *workload.Statistics, report *FileReport, logger *slog.Logger) error {
	absPath := filepath.Join(repoPath, filepath.FromSlash(relPath))
	attempted := make(map[workload.UnitKey]bool)

	for {
		content, err := os.ReadFile(absPath)
		if err != nil {
			return fmt.Errorf("read %s: %w", relPath, err)
		}

		analysis, err := p.analyzer.Analyze(ctx, content, relPath)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.recordUnitError(report, stats, logger, fmt.Errorf("%w: %v", workload.ErrParseFailure, err))
			return nil
		}
		if !analysis.ParsedOK {
			if !report.Modified {
				p.recordUnitError(report, stats, logger, fmt.Errorf("%w: %s", workload.ErrParseFailure, strings.Join(analysis.ParseErrors, "; ")))
			}
			return nil
		}

		unit := nextUnit(analysis, w, attempted)
		if unit == nil {
			return nil
		}
		// Mark attempted before the AI call so a timeout cannot make the
		// loop retry the same unit forever.
		attempted[unit.Key] = true

		if p.processUnit(ctx, absPath, content, unit, w, stats, report, logger) {
			// A mutation shifted every line number below the insertion
			// point; restart with a fresh analysis.
			continue
		}
	}
}

// processUnit handles one unit end to end and reports whether the file
// was mutated.
func (p *Pipeline) processUnit(ctx context.Context, absPath string, content []byte, unit *workload.WorkUnit, w *workload.Workload, stats *workload.Statistics, report *FileReport, logger *slog.Logger) bool {
	slice, err := sourceSlice(content, unit.FirstLine, unit.LastLine)
	if err != nil {
		p.recordUnitError(report, stats, logger, fmt.Errorf("slice %s.%s: %w", unit.Key.Owner, unit.Key.Name, err))
		return false
	}

	prompt, err := prompts.ForUnit(unit.Kind, slice)
	if err != nil {
		p.recordUnitError(report, stats, logger, err)
		return false
	}

	resp, err := p.gateway.Generate(ctx, prompt)
	if resp != nil {
		stats.RecordAICall(resp.PromptTokens, resp.ResponseTokens)
	} else {
		stats.RecordAICall(0, 0)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Cooperative cancellation is observed at file boundaries by
			// the orchestrator; here it just ends the unit.
			p.recordUnitError(report, stats, logger, fmt.Errorf("%w: %s.%s", workload.ErrGatewayTimeout, unit.Key.Owner, unit.Key.Name))
			return false
		}
		p.recordUnitError(report, stats, logger, fmt.Errorf("%w: %s.%s: %v", workload.ErrGatewayTimeout, unit.Key.Owner, unit.Key.Name, err))
		return false
	}
	if resp == nil || !resp.Done {
		p.recordUnitError(report, stats, logger, fmt.Errorf("%w: %s.%s", workload.ErrGatewayIncomplete, unit.Key.Owner, unit.Key.Name))
		return false
	}

	edit := sanitize.Sanitize(resp.Text, sanitizeUnit(unit), logger)
	stats.SanitizationFixes += edit.FixCount
	if !edit.Valid {
		// Retain the raw response for diagnostics.
		logger.Warn("sanitizer rejected generated docs",
			"unit", unit.Key.Owner+"."+unit.Key.Name,
			"raw_preview", preview(resp.Text, 200),
		)
		p.recordUnitError(report, stats, logger, fmt.Errorf("%w: %s.%s", workload.ErrSanitizationRejected, unit.Key.Owner, unit.Key.Name))
		return false
	}

	if err := applier.InsertAbove(absPath, unit.FirstLine, edit.Lines); err != nil {
		p.recordUnitError(report, stats, logger, fmt.Errorf("apply edit for %s.%s: %w", unit.Key.Owner, unit.Key.Name, err))
		return false
	}

	stats.ItemsModified++
	report.ItemsModified++
	report.Modified = true
	logger.Info("unit documented",
		"unit", unit.Key.Owner+"."+unit.Key.Name,
		"kind", string(unit.Kind),
		"lines", len(edit.Lines),
		"fixes", edit.FixCount,
	)
	return true
}

// recordUnitError logs and counts a non-fatal unit or file error.
func (p *Pipeline) recordUnitError(report *FileReport, stats *workload.Statistics, logger *slog.Logger, err error) {
	logger.Warn("unit skipped", "error", err.Error())
	report.Errors = append(report.Errors, err.Error())
	stats.Errors++
}

func sanitizeUnit(unit *workload.WorkUnit) sanitize.Unit {
	names := make([]string, 0, len(unit.Params))
	for _, p := range unit.Params {
		names = append(names, p.Name)
	}
	return sanitize.Unit{
		Kind:       unit.Kind,
		ReturnType: unit.ReturnType,
		ParamNames: names,
	}
}

func sourceSlice(content []byte, firstLine, lastLine int) (string, error) {
	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	if firstLine < 1 || lastLine > len(lines) || firstLine > lastLine {
		return "", fmt.Errorf("line range %d..%d out of bounds (1..%d)", firstLine, lastLine, len(lines))
	}
	return strings.Join(lines[firstLine-1:lastLine], "\n"), nil
}

func preview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
