// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package procrun abstracts external process execution.
//
// Direct exec.Command calls are not testable because they execute real
// processes. The git, build and container components all run their tools
// through the Runner interface so unit tests can script invocations and
// outcomes without touching the host.
package procrun

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Runner executes an external command in a working directory.
//
// Implementations must be safe for concurrent use.
type Runner interface {
	// Run executes name with args in dir and returns stdout. On a
	// non-zero exit the error includes captured stderr.
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct{}

// NewExecRunner returns a Runner that executes real processes.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return stdout.Bytes(), fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return stdout.Bytes(), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
	}
	return stdout.Bytes(), nil
}

// Call records one scripted invocation observed by a ScriptedRunner.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// Reply is one scripted response for a ScriptedRunner.
type Reply struct {
	// Match is a substring matched against "name arg1 arg2 ...". An
	// empty Match matches any invocation.
	Match  string
	Output string
	Err    error
}

// ScriptedRunner is a test Runner that matches invocations against
// scripted replies and records every call.
type ScriptedRunner struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
}

// NewScriptedRunner creates a ScriptedRunner with the given replies.
// Replies are matched in order; the first Match hit wins and stays
// available for later calls.
func NewScriptedRunner(replies ...Reply) *ScriptedRunner {
	return &ScriptedRunner{replies: replies}
}

// Run implements Runner.
func (r *ScriptedRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, Call{Dir: dir, Name: name, Args: args})
	invocation := name + " " + strings.Join(args, " ")
	for _, reply := range r.replies {
		if reply.Match == "" || strings.Contains(invocation, reply.Match) {
			return []byte(reply.Output), reply.Err
		}
	}
	return nil, nil
}

// Calls returns a copy of every recorded invocation.
func (r *ScriptedRunner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}
