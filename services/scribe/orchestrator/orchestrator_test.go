// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CodeScribe/services/scribe/analyzer"
	"github.com/AleutianAI/CodeScribe/services/scribe/gateway"
	"github.com/AleutianAI/CodeScribe/services/scribe/pipeline"
	"github.com/AleutianAI/CodeScribe/services/scribe/scheduler"
	"github.com/AleutianAI/CodeScribe/services/scribe/workload"
)

// fakeGit serves a pre-built local checkout and records every publish
// interaction.
type fakeGit struct {
	checkoutPath string

	cloneErr  error
	commitErr error
	pushErr   error

	createdBranches []string
	commitMessages  []string
	committedFiles  [][]string
	pushedBranches  []string
	prTitles        []string
	reverted        []string
}

func (g *fakeGit) CloneOrPull(ctx context.Context, repoURL, destDir string) (string, error) {
	if g.cloneErr != nil {
		return "", g.cloneErr
	}
	return g.checkoutPath, nil
}

func (g *fakeGit) ListOpenBranches(ctx context.Context, repoPath string) ([]string, error) {
	return nil, nil
}

func (g *fakeGit) CreateBranch(ctx context.Context, repoPath, name string) error {
	g.createdBranches = append(g.createdBranches, name)
	return nil
}

func (g *fakeGit) Commit(ctx context.Context, repoPath, message string, files []string) error {
	// A real git exec would fail immediately on a dead context.
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.commitErr != nil {
		return g.commitErr
	}
	g.commitMessages = append(g.commitMessages, message)
	g.committedFiles = append(g.committedFiles, files)
	return nil
}

func (g *fakeGit) Push(ctx context.Context, repoPath, branch string) error {
	if g.pushErr != nil {
		return g.pushErr
	}
	g.pushedBranches = append(g.pushedBranches, branch)
	return nil
}

func (g *fakeGit) CreatePullRequest(ctx context.Context, repoPath, branch, title, body string) (string, error) {
	g.prTitles = append(g.prTitles, title)
	return "https://github.com/acme/widgets/pull/7", nil
}

func (g *fakeGit) RevertFile(ctx context.Context, repoPath, relFile string) error {
	g.reverted = append(g.reverted, relFile)
	return nil
}

func (g *fakeGit) DiffStats(ctx context.Context, repoPath, baseRef string) (map[string]int, error) {
	return map[string]int{"src/Widget.cs": 2}, nil
}

// fakeReadiness records gate and cleanup calls.
type fakeReadiness struct {
	runningErr error
	modelErr   error

	cleanups int
}

func (r *fakeReadiness) EnsureRunning(ctx context.Context) error {
	if r.runningErr != nil {
		return r.runningErr
	}
	return ctx.Err()
}

func (r *fakeReadiness) EnsureModelAvailable(ctx context.Context, model string) error {
	return r.modelErr
}

func (r *fakeReadiness) Cleanup(ctx context.Context) error {
	r.cleanups++
	return nil
}

// cancellingAnalyzer cancels the run after a set number of analyses,
// simulating an interrupt that lands between files.
type cancellingAnalyzer struct {
	inner  analyzer.Analyzer
	cancel context.CancelFunc
	after  int
	calls  int
}

func (a *cancellingAnalyzer) Analyze(ctx context.Context, content []byte, filePath string) (*analyzer.Analysis, error) {
	res, err := a.inner.Analyze(ctx, content, filePath)
	a.calls++
	if a.calls == a.after {
		a.cancel()
	}
	return res, err
}

const undocumentedSource = `namespace Demo;

public class Widget
{
    public void Spin() { }
}
`

const documentedSource = `namespace Demo;

/// <summary>A widget.</summary>
public class Widget
{
    /// <summary>Spins.</summary>
    public void Spin() { }
}
`

func writeCheckout(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0644))
	}
	return dir
}

func newTestOrchestrator(git *fakeGit, ready *fakeReadiness, gw gateway.Gateway) *Orchestrator {
	a := analyzer.NewCSharpAnalyzer()
	sched := scheduler.New(a, git, nil)
	pipe := pipeline.New(a, gw, nil, git, nil)
	return New(ready, gw, git, sched, pipe, Config{WorkDir: "/tmp/work", HealthAttempts: 1, HealthDelay: time.Millisecond}, nil)
}

func docReply() gateway.ScriptedResponse {
	return gateway.ScriptedResponse{
		Response: &gateway.Response{Text: "/// <summary>Generated documentation.</summary>", Done: true},
	}
}

func TestRunHappyPath(t *testing.T) {
	git := &fakeGit{checkoutPath: writeCheckout(t, map[string]string{
		"src/Widget.cs": undocumentedSource,
	})}
	ready := &fakeReadiness{}
	w := workload.New("https://github.com/acme/widgets.git", workload.KindDocumentation, workload.VisibilityDefault, workload.Options{})

	o := newTestOrchestrator(git, ready, gateway.NewMock(docReply()))
	result := o.Run(context.Background(), w)

	assert.Equal(t, workload.StateCompleted, result.State)
	assert.Equal(t, []string{"src/Widget.cs"}, result.ModifiedFiles)
	assert.Equal(t, 2, result.Stats.ItemsModified)
	assert.Empty(t, result.Errors)

	require.Len(t, git.createdBranches, 1)
	branch := git.createdBranches[0]
	assert.True(t, strings.HasPrefix(branch, "codescribe/docs-"))
	assert.Equal(t, branch, result.Publish.Branch)
	assert.Equal(t, []string{branch}, git.pushedBranches)

	require.Len(t, git.commitMessages, 1)
	assert.Contains(t, git.commitMessages[0], "1 files")
	assert.Equal(t, [][]string{{"src/Widget.cs"}}, git.committedFiles)

	assert.Equal(t, "https://github.com/acme/widgets/pull/7", result.Publish.PullRequestURL)
	assert.Equal(t, map[string]int{"src/Widget.cs": 2}, result.Publish.AddedLines)
	assert.Equal(t, 1, ready.cleanups)
	assert.False(t, result.Stats.FinishedAt.IsZero())
}

func TestRunReadinessFailure(t *testing.T) {
	git := &fakeGit{checkoutPath: t.TempDir()}
	ready := &fakeReadiness{runningErr: errors.New("podman not installed")}
	w := workload.New("repo", workload.KindDocumentation, workload.VisibilityDefault, workload.Options{})

	o := newTestOrchestrator(git, ready, gateway.NewMock())
	result := o.Run(context.Background(), w)

	assert.Equal(t, workload.StateFailed, result.State)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "compute container")
	// Cleanup runs even when no work started.
	assert.Equal(t, 1, ready.cleanups)
	assert.Empty(t, git.createdBranches)
}

func TestRunModelUnavailable(t *testing.T) {
	git := &fakeGit{checkoutPath: t.TempDir()}
	ready := &fakeReadiness{modelErr: workload.ErrModelUnavailable}
	w := workload.New("repo", workload.KindDocumentation, workload.VisibilityDefault, workload.Options{})

	o := newTestOrchestrator(git, ready, gateway.NewMock())
	result := o.Run(context.Background(), w)

	assert.Equal(t, workload.StateFailed, result.State)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], workload.ErrModelUnavailable.Error())
}

func TestRunUnhealthyBackend(t *testing.T) {
	git := &fakeGit{checkoutPath: t.TempDir()}
	mock := gateway.NewMock()
	mock.Unhealthy = true
	w := workload.New("repo", workload.KindDocumentation, workload.VisibilityDefault, workload.Options{})

	o := newTestOrchestrator(git, &fakeReadiness{}, mock)
	result := o.Run(context.Background(), w)

	assert.Equal(t, workload.StateFailed, result.State)
	require.NotEmpty(t, result.Errors)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	git := &fakeGit{checkoutPath: t.TempDir()}
	ready := &fakeReadiness{}
	w := workload.New("repo", workload.KindDocumentation, workload.VisibilityDefault, workload.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(git, ready, gateway.NewMock())
	result := o.Run(ctx, w)

	assert.Equal(t, workload.StateCancelled, result.State)
	assert.Equal(t, 1, ready.cleanups)
}

func TestRunCancelledBetweenFiles(t *testing.T) {
	git := &fakeGit{checkoutPath: writeCheckout(t, map[string]string{
		"src/Alpha.cs": undocumentedSource,
		"src/Beta.cs":  strings.ReplaceAll(undocumentedSource, "Widget", "Gadget"),
	})}
	ready := &fakeReadiness{}
	w := workload.New("repo", workload.KindDocumentation, workload.VisibilityDefault, workload.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Analyses 1-2 are the admission passes for both files. Alpha is
	// then analyzed three times in the pipeline (initial, after the
	// method edit, after the class edit); cancelling after the fifth
	// analysis lets Alpha finish and stops the batch at the file
	// boundary before Beta.
	a := &cancellingAnalyzer{inner: analyzer.NewCSharpAnalyzer(), cancel: cancel, after: 5}
	gw := gateway.NewMock(docReply())
	sched := scheduler.New(a, git, nil)
	pipe := pipeline.New(a, gw, nil, git, nil)
	o := New(ready, gw, git, sched, pipe, Config{WorkDir: "/tmp/work"}, nil)
	result := o.Run(ctx, w)

	assert.Equal(t, workload.StateCancelled, result.State)
	// The completed file is still published.
	assert.Equal(t, []string{"src/Alpha.cs"}, result.ModifiedFiles)
	require.Len(t, git.commitMessages, 1)
	assert.Equal(t, 1, ready.cleanups)
}

func TestRunCancelledDuringLastFile(t *testing.T) {
	git := &fakeGit{checkoutPath: writeCheckout(t, map[string]string{
		"src/Alpha.cs": undocumentedSource,
		"src/Beta.cs":  strings.ReplaceAll(undocumentedSource, "Widget", "Gadget"),
	})}
	ready := &fakeReadiness{}
	w := workload.New("repo", workload.KindDocumentation, workload.VisibilityDefault, workload.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The sixth analysis is Beta's first pipeline pass; cancelling there
	// lands mid-file in the final admitted file, with no next loop
	// iteration left to notice it.
	a := &cancellingAnalyzer{inner: analyzer.NewCSharpAnalyzer(), cancel: cancel, after: 6}
	gw := gateway.NewMock(docReply())
	sched := scheduler.New(a, git, nil)
	pipe := pipeline.New(a, gw, nil, git, nil)
	o := New(ready, gw, git, sched, pipe, Config{WorkDir: "/tmp/work"}, nil)
	result := o.Run(ctx, w)

	assert.Equal(t, workload.StateCancelled, result.State)
	// Beta still finishes its cycle, and both files are committed on a
	// live context despite the cancelled run.
	assert.Equal(t, []string{"src/Alpha.cs", "src/Beta.cs"}, result.ModifiedFiles)
	require.Len(t, git.commitMessages, 1)
	assert.Contains(t, git.commitMessages[0], "2 files")
	assert.Equal(t, 1, ready.cleanups)
}

func TestRunNothingAdmitted(t *testing.T) {
	git := &fakeGit{checkoutPath: writeCheckout(t, map[string]string{
		"src/Widget.cs": documentedSource,
	})}
	ready := &fakeReadiness{}
	w := workload.New("repo", workload.KindDocumentation, workload.VisibilityDefault, workload.Options{})

	o := newTestOrchestrator(git, ready, gateway.NewMock())
	result := o.Run(context.Background(), w)

	assert.Equal(t, workload.StateCompleted, result.State)
	assert.Empty(t, result.ModifiedFiles)
	assert.Empty(t, result.Publish.Branch)
	assert.Empty(t, git.createdBranches)
	assert.Equal(t, 1, ready.cleanups)
}

func TestRunCheckoutFailure(t *testing.T) {
	git := &fakeGit{cloneErr: errors.New("remote not found")}
	w := workload.New("repo", workload.KindDocumentation, workload.VisibilityDefault, workload.Options{})

	o := newTestOrchestrator(git, &fakeReadiness{}, gateway.NewMock())
	result := o.Run(context.Background(), w)

	assert.Equal(t, workload.StateFailed, result.State)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "checkout")
}

func TestRunCommitFailureFailsWorkload(t *testing.T) {
	git := &fakeGit{
		checkoutPath: writeCheckout(t, map[string]string{"src/Widget.cs": undocumentedSource}),
		commitErr:    errors.New("nothing to commit"),
	}
	w := workload.New("repo", workload.KindDocumentation, workload.VisibilityDefault, workload.Options{})

	o := newTestOrchestrator(git, &fakeReadiness{}, gateway.NewMock(docReply()))
	result := o.Run(context.Background(), w)

	assert.Equal(t, workload.StateFailed, result.State)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[len(result.Errors)-1], "commit")
	// The mutation work itself still happened.
	assert.Equal(t, []string{"src/Widget.cs"}, result.ModifiedFiles)
}

func TestRunTargetFileCountStopsEarly(t *testing.T) {
	git := &fakeGit{checkoutPath: writeCheckout(t, map[string]string{
		"src/Alpha.cs": undocumentedSource,
		"src/Beta.cs":  strings.ReplaceAll(undocumentedSource, "Widget", "Gadget"),
	})}
	w := workload.New("repo", workload.KindDocumentation, workload.VisibilityDefault,
		workload.Options{TargetFileCount: 1})

	o := newTestOrchestrator(git, &fakeReadiness{}, gateway.NewMock(docReply()))
	result := o.Run(context.Background(), w)

	assert.Equal(t, workload.StateCompleted, result.State)
	assert.Equal(t, []string{"src/Alpha.cs"}, result.ModifiedFiles)
}

func TestBranchNameFormat(t *testing.T) {
	now := time.Date(2025, 6, 15, 9, 30, 45, 0, time.UTC)
	name := BranchName(now)

	assert.True(t, strings.HasPrefix(name, scheduler.BranchPrefix))
	assert.Regexp(t, regexp.MustCompile(`^codescribe/docs-20250615-093045-[0-9a-f]{8}$`), name)
	assert.NotEqual(t, name, BranchName(now), "uuid fragment keeps names unique")
}
