// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runtime implements the pre-flight readiness gates: the compute
// container must be running, the AI backend must answer health checks,
// and the configured model must actually be present.
//
// Readiness failures are fatal to the whole batch; no mutation work starts
// until every gate has passed.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/CodeScribe/services/scribe/gateway"
	"github.com/AleutianAI/CodeScribe/services/scribe/procrun"
	"github.com/AleutianAI/CodeScribe/services/scribe/workload"
)

// Readiness is the pre-flight capability consumed by the orchestrator.
type Readiness interface {
	// EnsureRunning starts the compute container if one is configured
	// and it is not already up.
	EnsureRunning(ctx context.Context) error

	// EnsureModelAvailable verifies the named model is present on the
	// backend. A missing model returns workload.ErrModelUnavailable,
	// distinct from generic connectivity failures.
	EnsureModelAvailable(ctx context.Context, model string) error

	// Cleanup releases the compute container. Called regardless of run
	// outcome.
	Cleanup(ctx context.Context) error
}

// ModelLister is implemented by gateways that can enumerate installed
// models. Both production gateways implement it.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// ContainerRuntime manages a container-hosted AI backend through a
// container engine CLI (podman or docker).
type ContainerRuntime struct {
	runner    procrun.Runner
	engine    string
	container string
	lister    ModelLister
	logger    *slog.Logger

	// StopOnCleanup stops the container during Cleanup. Off by default:
	// a local Ollama instance is usually shared with other tools.
	StopOnCleanup bool
}

// NewContainerRuntime creates a ContainerRuntime.
//
// Inputs:
//
//	runner - Process runner for engine invocations.
//	engine - "podman" or "docker". Empty disables container management;
//	         EnsureRunning then becomes a no-op.
//	container - Container name hosting the backend.
//	lister - Model enumeration capability of the gateway.
func NewContainerRuntime(runner procrun.Runner, engine, container string, lister ModelLister, logger *slog.Logger) *ContainerRuntime {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContainerRuntime{
		runner:    runner,
		engine:    engine,
		container: container,
		lister:    lister,
		logger:    logger,
	}
}

// EnsureRunning implements Readiness.
func (r *ContainerRuntime) EnsureRunning(ctx context.Context) error {
	if r.engine == "" || r.container == "" {
		r.logger.Debug("container management disabled, skipping")
		return nil
	}

	out, err := r.runner.Run(ctx, "", r.engine, "ps", "--format", "{{.Names}}")
	if err != nil {
		return fmt.Errorf("list running containers: %w", err)
	}
	for _, name := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(name) == r.container {
			r.logger.Debug("container already running", "container", r.container)
			return nil
		}
	}

	r.logger.Info("starting compute container", "engine", r.engine, "container", r.container)
	if _, err := r.runner.Run(ctx, "", r.engine, "start", r.container); err != nil {
		return fmt.Errorf("start container %s: %w", r.container, err)
	}
	return nil
}

// EnsureModelAvailable implements Readiness.
func (r *ContainerRuntime) EnsureModelAvailable(ctx context.Context, model string) error {
	names, err := r.lister.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("enumerate models: %w", err)
	}
	for _, name := range names {
		if modelMatches(name, model) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q not in %d installed models", workload.ErrModelUnavailable, model, len(names))
}

// Cleanup implements Readiness.
func (r *ContainerRuntime) Cleanup(ctx context.Context) error {
	if !r.StopOnCleanup || r.engine == "" || r.container == "" {
		return nil
	}
	r.logger.Info("stopping compute container", "container", r.container)
	if _, err := r.runner.Run(ctx, "", r.engine, "stop", r.container); err != nil {
		return fmt.Errorf("stop container %s: %w", r.container, err)
	}
	return nil
}

// modelMatches compares model names with Ollama's implicit ":latest" tag
// normalization.
func modelMatches(installed, want string) bool {
	if installed == want {
		return true
	}
	return strings.TrimSuffix(installed, ":latest") == strings.TrimSuffix(want, ":latest")
}

// PollHealth polls the gateway's health check with bounded retry and
// delay. It returns workload.ErrHealthCheck wrapping the last failure
// once attempts are exhausted.
func PollHealth(ctx context.Context, gw gateway.Gateway, attempts int, delay time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = gw.HealthCheck(ctx)
		if lastErr == nil {
			return nil
		}
		logger.Warn("ai backend not healthy yet",
			"attempt", attempt,
			"max_attempts", attempts,
			"error", lastErr.Error(),
		)
		if attempt < attempts {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", workload.ErrHealthCheck, attempts, lastErr)
}
