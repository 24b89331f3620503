// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator sequences a batch: readiness gates, checkout,
// scheduling, the per-file mutation pipeline, publish and cleanup.
//
// Execution is entirely sequential and single-threaded per batch. The AI
// backend is a single shared, often GPU-bound resource, and concurrent
// builds against one checkout would corrupt shared working-tree state.
// Cancellation is cooperative and observed only at file boundaries, so a
// stop always yields a file that finished its own build-or-revert cycle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/CodeScribe/services/scribe/gateway"
	"github.com/AleutianAI/CodeScribe/services/scribe/gitops"
	"github.com/AleutianAI/CodeScribe/services/scribe/pipeline"
	"github.com/AleutianAI/CodeScribe/services/scribe/runtime"
	"github.com/AleutianAI/CodeScribe/services/scribe/scheduler"
	"github.com/AleutianAI/CodeScribe/services/scribe/workload"
)

var tracer = otel.Tracer("codescribe.orchestrator")

// publishTimeout bounds the commit/push/PR sequence, which runs detached
// from the batch context.
const publishTimeout = 2 * time.Minute

// Config carries orchestration-level settings.
type Config struct {
	// WorkDir is where repositories are checked out.
	WorkDir string

	// HealthAttempts and HealthDelay bound the backend health poll.
	HealthAttempts int
	HealthDelay    time.Duration
}

// Orchestrator drives one workload from readiness gates to publish.
type Orchestrator struct {
	readiness runtime.Readiness
	gateway   gateway.Gateway
	git       gitops.Git
	scheduler *scheduler.Scheduler
	pipeline  *pipeline.Pipeline
	config    Config
	logger    *slog.Logger
}

// New creates an Orchestrator from its collaborators.
func New(readiness runtime.Readiness, gw gateway.Gateway, git gitops.Git, sched *scheduler.Scheduler, pipe *pipeline.Pipeline, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HealthAttempts <= 0 {
		cfg.HealthAttempts = 5
	}
	if cfg.HealthDelay <= 0 {
		cfg.HealthDelay = 3 * time.Second
	}
	return &Orchestrator{
		readiness: readiness,
		gateway:   gw,
		git:       git,
		scheduler: sched,
		pipeline:  pipe,
		config:    cfg,
		logger:    logger,
	}
}

// Run executes the workload and always returns a structured result, even
// on failure. Exceptions do not escape this boundary under normal
// operation; unexpected errors land in the result's error list with the
// partial statistics preserved.
func (o *Orchestrator) Run(ctx context.Context, w *workload.Workload) *workload.Result {
	ctx, span := tracer.Start(ctx, "Orchestrator.Run")
	defer span.End()
	span.SetAttributes(attribute.String("workload.id", w.ID))

	result := &workload.Result{
		WorkloadID: w.ID,
		Stats:      workload.Statistics{StartedAt: time.Now()},
	}

	if err := w.Transition(workload.StateRunning); err != nil {
		o.finish(w, result, workload.StateFailed, err)
		return result
	}

	// Readiness gates run once per batch and short-circuit on the first
	// failure; no mutation work starts until all pass.
	if err := o.runReadinessGates(ctx, w); err != nil {
		state := workload.StateFailed
		if errors.Is(err, context.Canceled) {
			state = workload.StateCancelled
		} else if errors.Is(err, context.DeadlineExceeded) {
			state = workload.StateTimedOut
		}
		o.finish(w, result, state, err)
		o.cleanup(result)
		return result
	}

	repoPath, err := o.git.CloneOrPull(ctx, w.Repository, o.config.WorkDir)
	if err != nil {
		o.finish(w, result, workload.StateFailed, fmt.Errorf("checkout: %w", err))
		o.cleanup(result)
		return result
	}

	admitted, err := o.scheduler.Admit(ctx, repoPath, w)
	if err != nil {
		o.finish(w, result, workload.StateFailed, fmt.Errorf("scheduling: %w", err))
		o.cleanup(result)
		return result
	}
	if len(admitted) == 0 {
		o.logger.Info("no files admitted, nothing to do")
		o.finish(w, result, workload.StateCompleted, nil)
		o.cleanup(result)
		return result
	}

	branch := BranchName(time.Now())
	if err := o.git.CreateBranch(ctx, repoPath, branch); err != nil {
		o.finish(w, result, workload.StateFailed, fmt.Errorf("create batch branch: %w", err))
		o.cleanup(result)
		return result
	}
	result.Publish.Branch = branch

	state := o.processBatch(ctx, repoPath, admitted, w, result)

	if len(result.ModifiedFiles) > 0 {
		// Publish runs on a fresh bounded context so the files that
		// completed their cycle are committed even when the batch was
		// cancelled.
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		err := o.publish(pubCtx, repoPath, branch, w, result)
		cancel()
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			if state == workload.StateCompleted {
				state = workload.StateFailed
			}
		}
	}

	o.finish(w, result, state, nil)
	o.cleanup(result)
	return result
}

// runReadinessGates executes the batch preconditions in order.
func (o *Orchestrator) runReadinessGates(ctx context.Context, w *workload.Workload) error {
	if err := o.readiness.EnsureRunning(ctx); err != nil {
		return fmt.Errorf("compute container: %w", err)
	}
	if err := runtime.PollHealth(ctx, o.gateway, o.config.HealthAttempts, o.config.HealthDelay, o.logger); err != nil {
		return err
	}
	if err := o.readiness.EnsureModelAvailable(ctx, o.gateway.Model()); err != nil {
		if errors.Is(err, workload.ErrModelUnavailable) {
			// Surfaced separately from generic gateway failures: the
			// backend is healthy but cannot serve this workload.
			return err
		}
		return fmt.Errorf("%w: %v", workload.ErrHealthCheck, err)
	}
	o.logger.Info("readiness gates passed", "model", o.gateway.Model())
	return nil
}

// processBatch drives the mutation pipeline sequentially over the
// admitted files and returns the terminal state for the workload.
//
// Statistics and the modified-file list are accumulated incrementally so
// a mid-batch cancellation still leaves a consistent, committable state.
func (o *Orchestrator) processBatch(ctx context.Context, repoPath string, admitted []string, w *workload.Workload, result *workload.Result) workload.State {
	target := w.Options.TargetFileCount
	succeeded := 0

	for i, rel := range admitted {
		// Cancellation is checked once per completed file only, never
		// mid-file.
		if err := ctx.Err(); err != nil {
			o.logger.Warn("batch cancelled", "processed", i, "admitted", len(admitted))
			if errors.Is(err, context.DeadlineExceeded) {
				return workload.StateTimedOut
			}
			return workload.StateCancelled
		}
		if target > 0 && succeeded >= target {
			o.logger.Info("target file count reached", "target", target)
			break
		}

		report, err := o.pipeline.ProcessFile(ctx, repoPath, rel, w, &result.Stats)
		if report != nil {
			result.Errors = append(result.Errors, report.Errors...)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue // loop head classifies the cancellation
			}
			// File-level terminal errors never abort the batch.
			o.logger.Error("file processing failed", "file", rel, "error", err.Error())
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rel, err))
			continue
		}
		if report.Modified && !report.Reverted {
			result.ModifiedFiles = append(result.ModifiedFiles, rel)
			if !report.Failed {
				succeeded++
			}
		}
	}
	// A cancel during the final file has no next loop head to classify it.
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return workload.StateTimedOut
		}
		return workload.StateCancelled
	}
	return workload.StateCompleted
}

// publish commits, pushes and opens a pull request for the accumulated
// files via the external git capability.
func (o *Orchestrator) publish(ctx context.Context, repoPath, branch string, w *workload.Workload, result *workload.Result) error {
	message := fmt.Sprintf("docs: add XML documentation to %d files", len(result.ModifiedFiles))
	if err := o.git.Commit(ctx, repoPath, message, result.ModifiedFiles); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if stats, err := o.git.DiffStats(ctx, repoPath, "HEAD~1"); err != nil {
		o.logger.Warn("diff stats unavailable", "error", err.Error())
	} else {
		result.Publish.AddedLines = stats
	}

	if err := o.git.Push(ctx, repoPath, branch); err != nil {
		return fmt.Errorf("push: %w", err)
	}

	url, err := o.git.CreatePullRequest(ctx, repoPath, branch,
		fmt.Sprintf("Add XML documentation (%d files)", len(result.ModifiedFiles)),
		prBody(result))
	if err != nil {
		return fmt.Errorf("create pull request: %w", err)
	}
	result.Publish.PullRequestURL = url
	o.logger.Info("pull request created", "url", url)
	return nil
}

// cleanup requests external cleanup of the compute container regardless
// of run outcome. Cleanup uses a fresh context so a cancelled batch can
// still release its resources.
func (o *Orchestrator) cleanup(result *workload.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := o.readiness.Cleanup(ctx); err != nil {
		o.logger.Warn("cleanup failed", "error", err.Error())
		result.Errors = append(result.Errors, fmt.Sprintf("cleanup: %v", err))
	}
}

func (o *Orchestrator) finish(w *workload.Workload, result *workload.Result, state workload.State, err error) {
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		o.logger.Error("workload terminated", "state", string(state), "error", err.Error())
	}
	result.Stats.FinishedAt = time.Now()
	if !w.State.Terminal() {
		if terr := w.Transition(state); terr != nil {
			result.Errors = append(result.Errors, terr.Error())
		}
	}
	result.State = w.State
}

// BranchName derives the unique batch branch name. Concurrent tool
// invocations are out of scope, but the timestamp plus uuid fragment
// keeps repeated runs from colliding.
func BranchName(now time.Time) string {
	return fmt.Sprintf("%sdocs-%s-%s",
		scheduler.BranchPrefix,
		now.Format("20060102-150405"),
		uuid.NewString()[:8],
	)
}

func prBody(result *workload.Result) string {
	var sb strings.Builder
	sb.WriteString("Automated XML documentation generated by CodeScribe.\n\n")
	sb.WriteString(fmt.Sprintf("- Files modified: %d\n", len(result.ModifiedFiles)))
	sb.WriteString(fmt.Sprintf("- Items documented: %d\n", result.Stats.ItemsModified))
	sb.WriteString(fmt.Sprintf("- AI calls: %d\n", result.Stats.AICalls))
	if result.Stats.BuildRetries > 0 {
		sb.WriteString(fmt.Sprintf("- Build repairs: %d\n", result.Stats.BuildRetries))
	}
	for _, f := range result.ModifiedFiles {
		added := ""
		if n, ok := result.Publish.AddedLines[f]; ok {
			added = fmt.Sprintf(" (+%d lines)", n)
		}
		sb.WriteString(fmt.Sprintf("  - %s%s\n", f, added))
	}
	return sb.String()
}
