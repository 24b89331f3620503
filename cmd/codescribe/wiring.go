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
	"fmt"

	"github.com/AleutianAI/CodeScribe/pkg/logging"
	"github.com/AleutianAI/CodeScribe/services/scribe/analyzer"
	"github.com/AleutianAI/CodeScribe/services/scribe/buildcheck"
	"github.com/AleutianAI/CodeScribe/services/scribe/config"
	"github.com/AleutianAI/CodeScribe/services/scribe/gateway"
	"github.com/AleutianAI/CodeScribe/services/scribe/gitops"
	"github.com/AleutianAI/CodeScribe/services/scribe/orchestrator"
	"github.com/AleutianAI/CodeScribe/services/scribe/pipeline"
	"github.com/AleutianAI/CodeScribe/services/scribe/procrun"
	"github.com/AleutianAI/CodeScribe/services/scribe/runtime"
	"github.com/AleutianAI/CodeScribe/services/scribe/scheduler"
	"github.com/AleutianAI/CodeScribe/services/scribe/workload"
)

// app bundles everything a command needs after wiring.
type app struct {
	cfg          *config.Config
	logger       *logging.Logger
	gateway      gateway.Gateway
	git          *gitops.Client
	analyzer     *analyzer.CSharpAnalyzer
	scheduler    *scheduler.Scheduler
	orchestrator *orchestrator.Orchestrator
}

// newApp loads config and wires the concrete component graph. The
// caller owns logger shutdown via close().
func newApp() (*app, func(), error) {
	cfg, err := config.Get(configPath)
	if err != nil {
		return nil, nil, err
	}

	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	} else if cfg.Log.Level != "" {
		level = parseLevel(cfg.Log.Level)
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Log.Dir,
		Service: "codescribe",
	})
	slogger := logger.Slog()

	gw, err := buildGateway(cfg)
	if err != nil {
		logger.Close()
		return nil, nil, err
	}

	runner := procrun.NewExecRunner()
	git := gitops.NewClient(runner)
	csAnalyzer := analyzer.NewCSharpAnalyzer()
	sched := scheduler.New(csAnalyzer, git, slogger)

	var builder buildcheck.Builder
	if cfg.Build.Enabled {
		builder = buildcheck.NewDotnetBuilder(runner)
	}
	pipe := pipeline.New(csAnalyzer, gw, builder, git, slogger)

	lister, ok := gw.(runtime.ModelLister)
	if !ok {
		logger.Close()
		return nil, nil, fmt.Errorf("backend %q cannot enumerate models", cfg.Backend)
	}
	containerRT := runtime.NewContainerRuntime(runner, cfg.Container.Engine, cfg.Container.Name, lister, slogger)
	containerRT.StopOnCleanup = cfg.Container.StopOnCleanup

	orch := orchestrator.New(containerRT, gw, git, sched, pipe, orchestrator.Config{
		WorkDir:        cfg.WorkDir,
		HealthAttempts: cfg.Health.Attempts,
		HealthDelay:    cfg.Health.HealthDelay(),
	}, slogger)

	a := &app{
		cfg:          cfg,
		logger:       logger,
		gateway:      gw,
		git:          git,
		analyzer:     csAnalyzer,
		scheduler:    sched,
		orchestrator: orch,
	}
	return a, func() { _ = logger.Close() }, nil
}

// buildGateway selects the gateway implementation from config. Both
// implementations satisfy gateway.Gateway and runtime.ModelLister.
func buildGateway(cfg *config.Config) (gateway.Gateway, error) {
	model := cfg.Model
	if modelOverride != "" {
		model = modelOverride
	}
	switch cfg.Backend {
	case config.BackendOllama:
		return gateway.NewOllamaGateway(cfg.BaseURL, model), nil
	case config.BackendOpenAI:
		key := cfg.APIKey()
		if key == "" && cfg.APIKeyEnv != "" {
			return nil, fmt.Errorf("api key environment variable %s is not set", cfg.APIKeyEnv)
		}
		return gateway.NewOpenAIGateway(key, cfg.BaseURL, model), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// buildWorkload assembles the workload descriptor from config and flags.
func buildWorkload(repo string, cfg *config.Config) *workload.Workload {
	names := cfg.Visibility
	if len(visibilityNames) > 0 {
		names = visibilityNames
	}

	opts := workload.Options{
		TargetFileCount:    cfg.Batch.TargetFiles,
		MaxRepairAttempts:  cfg.Batch.MaxRepairAttempts,
		RevertOnFailure:    cfg.Batch.RevertOnFailure,
		BuildCheck:         cfg.Build.Enabled,
		SolutionRef:        cfg.Build.SolutionRef,
		AdmissionThreshold: cfg.Batch.AdmissionThreshold,
	}
	if targetFiles > 0 {
		opts.TargetFileCount = targetFiles
	}
	if noBuildCheck {
		opts.BuildCheck = false
	}
	if keepOnFailure {
		opts.RevertOnFailure = false
	}

	w := workload.New(repo, workload.KindDocumentation, workload.ParseVisibility(names), opts)
	w.Scope = scopeDir
	return w
}

func parseLevel(name string) logging.Level {
	switch name {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
