// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package buildcheck invokes the build toolchain and converts its output
// into a structured BuildOutcome.
//
// Builds run against a single shared checkout, so the pipeline never
// issues them concurrently.
package buildcheck

import (
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/CodeScribe/services/scribe/procrun"
	"github.com/AleutianAI/CodeScribe/services/scribe/workload"
)

var tracer = otel.Tracer("codescribe.buildcheck")

// Builder is the build capability the pipeline's build gate invokes.
type Builder interface {
	// Build compiles the solution and returns its outcome. The error
	// return is reserved for infrastructure failures (toolchain missing,
	// cancellation); compile errors are reported in the outcome.
	Build(ctx context.Context, repoPath, solutionRef string) (*workload.BuildOutcome, error)
}

// msbuildErrorRe matches MSBuild diagnostics of the form
// "Path\To\File.cs(12,34): error CS1002: ; expected [Project.csproj]".
var msbuildErrorRe = regexp.MustCompile(`^\s*(.+?)\((\d+),\d+\):\s+error\s+([A-Z]+\d+):\s+(.*?)(?:\s+\[[^\]]+\])?\s*$`)

// DotnetBuilder implements Builder on the dotnet CLI.
type DotnetBuilder struct {
	runner procrun.Runner
}

// NewDotnetBuilder creates a DotnetBuilder using the given runner.
func NewDotnetBuilder(runner procrun.Runner) *DotnetBuilder {
	return &DotnetBuilder{runner: runner}
}

// Build implements Builder.
//
// Description:
//
//	Runs "dotnet build" quietly against solutionRef and parses every
//	error diagnostic from the output, preserving order and deduplicating
//	repeats (MSBuild reports the same error once per referencing
//	project). A non-zero exit with parseable errors is a build failure,
//	not an infrastructure error.
func (b *DotnetBuilder) Build(ctx context.Context, repoPath, solutionRef string) (*workload.BuildOutcome, error) {
	ctx, span := tracer.Start(ctx, "DotnetBuilder.Build")
	defer span.End()
	span.SetAttributes(attribute.String("build.solution", solutionRef))

	out, runErr := b.runner.Run(ctx, repoPath, "dotnet", "build", solutionRef, "-nologo", "--verbosity", "quiet")
	if runErr != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	outcome := parseBuildOutput(string(out))
	if runErr == nil {
		outcome.Success = true
		return outcome, nil
	}

	outcome.Success = false
	if len(outcome.Errors) == 0 {
		// Also scan the stderr embedded in the exec error; dotnet writes
		// some diagnostics there.
		for _, e := range parseBuildOutput(runErr.Error()).Errors {
			outcome.Errors = append(outcome.Errors, e)
		}
	}
	if len(outcome.Errors) == 0 {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) && !strings.Contains(runErr.Error(), "exit status") {
			// The toolchain itself failed to run.
			return nil, runErr
		}
		outcome.Errors = append(outcome.Errors, workload.BuildError{
			Code:    "BUILD",
			Message: strings.TrimSpace(runErr.Error()),
		})
	}
	span.SetAttributes(attribute.Int("build.error_count", len(outcome.Errors)))
	return outcome, nil
}

func parseBuildOutput(out string) *workload.BuildOutcome {
	outcome := &workload.BuildOutcome{Errors: make([]workload.BuildError, 0)}
	seen := make(map[workload.BuildError]bool)
	for _, line := range strings.Split(out, "\n") {
		m := msbuildErrorRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNum, _ := strconv.Atoi(m[2])
		e := workload.BuildError{
			File:    strings.ReplaceAll(m[1], "\\", "/"),
			Line:    lineNum,
			Code:    m[3],
			Message: m[4],
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		outcome.Errors = append(outcome.Errors, e)
	}
	return outcome
}
