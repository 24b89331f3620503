// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gitops provides the version-control capability the orchestrator
// and pipeline depend on.
//
// Everything runs through the git and gh CLIs via procrun.Runner so the
// package is testable without a real repository. The working-tree
// checkout has a single writer per run, so no locking is needed here.
package gitops

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/CodeScribe/services/scribe/procrun"
)

// Git is the version-control capability surface.
type Git interface {
	// CloneOrPull ensures a checkout of repoURL exists under destDir and
	// is current, returning the checkout path.
	CloneOrPull(ctx context.Context, repoURL, destDir string) (string, error)

	// ListOpenBranches returns remote branch names, used by the
	// scheduler to detect in-flight duplicate work.
	ListOpenBranches(ctx context.Context, repoPath string) ([]string, error)

	// CreateBranch creates and checks out a new branch.
	CreateBranch(ctx context.Context, repoPath, name string) error

	// Commit stages the given files and commits them.
	Commit(ctx context.Context, repoPath, message string, files []string) error

	// Push pushes the branch to origin.
	Push(ctx context.Context, repoPath, branch string) error

	// CreatePullRequest opens a pull request for the pushed branch and
	// returns its URL.
	CreatePullRequest(ctx context.Context, repoPath, branch, title, body string) (string, error)

	// RevertFile restores relFile to its last committed content,
	// bit-for-bit.
	RevertFile(ctx context.Context, repoPath, relFile string) error

	// DiffStats returns added-line counts per modified file relative to
	// baseRef, for publish metadata.
	DiffStats(ctx context.Context, repoPath, baseRef string) (map[string]int, error)
}

// Client implements Git on the git and gh command-line tools.
type Client struct {
	runner procrun.Runner
}

// NewClient creates a Client using the given runner.
func NewClient(runner procrun.Runner) *Client {
	return &Client{runner: runner}
}

// CloneOrPull implements Git.
func (c *Client) CloneOrPull(ctx context.Context, repoURL, destDir string) (string, error) {
	checkout := filepath.Join(destDir, repoName(repoURL))
	if _, err := c.runner.Run(ctx, checkout, "git", "rev-parse", "--git-dir"); err == nil {
		if _, err := c.runner.Run(ctx, checkout, "git", "pull", "--ff-only"); err != nil {
			return "", fmt.Errorf("pull %s: %w", checkout, err)
		}
		return checkout, nil
	}
	if _, err := c.runner.Run(ctx, destDir, "git", "clone", repoURL, checkout); err != nil {
		return "", fmt.Errorf("clone %s: %w", repoURL, err)
	}
	return checkout, nil
}

// ListOpenBranches implements Git.
func (c *Client) ListOpenBranches(ctx context.Context, repoPath string) ([]string, error) {
	out, err := c.runner.Run(ctx, repoPath, "git", "branch", "-r", "--format", "%(refname:short)")
	if err != nil {
		return nil, fmt.Errorf("list remote branches: %w", err)
	}
	var branches []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "->") {
			continue
		}
		branches = append(branches, strings.TrimPrefix(line, "origin/"))
	}
	return branches, nil
}

// CreateBranch implements Git.
func (c *Client) CreateBranch(ctx context.Context, repoPath, name string) error {
	if _, err := c.runner.Run(ctx, repoPath, "git", "checkout", "-b", name); err != nil {
		return fmt.Errorf("create branch %s: %w", name, err)
	}
	return nil
}

// Commit implements Git.
func (c *Client) Commit(ctx context.Context, repoPath, message string, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("commit: no files to stage")
	}
	addArgs := append([]string{"add", "--"}, files...)
	if _, err := c.runner.Run(ctx, repoPath, "git", addArgs...); err != nil {
		return fmt.Errorf("stage files: %w", err)
	}
	if _, err := c.runner.Run(ctx, repoPath, "git", "commit", "-m", message); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Push implements Git.
func (c *Client) Push(ctx context.Context, repoPath, branch string) error {
	if _, err := c.runner.Run(ctx, repoPath, "git", "push", "-u", "origin", branch); err != nil {
		return fmt.Errorf("push %s: %w", branch, err)
	}
	return nil
}

// CreatePullRequest implements Git via the gh CLI, which prints the new
// pull request URL on stdout.
func (c *Client) CreatePullRequest(ctx context.Context, repoPath, branch, title, body string) (string, error) {
	out, err := c.runner.Run(ctx, repoPath, "gh", "pr", "create",
		"--head", branch, "--title", title, "--body", body)
	if err != nil {
		return "", fmt.Errorf("create pull request for %s: %w", branch, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// RevertFile implements Git. "git checkout HEAD -- file" restores the
// last committed content exactly, satisfying the invariant that a file is
// never left both build-broken and un-reverted.
func (c *Client) RevertFile(ctx context.Context, repoPath, relFile string) error {
	if _, err := c.runner.Run(ctx, repoPath, "git", "checkout", "HEAD", "--", relFile); err != nil {
		return fmt.Errorf("revert %s: %w", relFile, err)
	}
	return nil
}

// DiffStats implements Git by parsing the unified diff against baseRef.
func (c *Client) DiffStats(ctx context.Context, repoPath, baseRef string) (map[string]int, error) {
	out, err := c.runner.Run(ctx, repoPath, "git", "diff", baseRef)
	if err != nil {
		return nil, fmt.Errorf("diff against %s: %w", baseRef, err)
	}
	if len(strings.TrimSpace(string(out))) == 0 {
		return map[string]int{}, nil
	}

	fileDiffs, err := diff.ParseMultiFileDiff(out)
	if err != nil {
		return nil, fmt.Errorf("parse diff output: %w", err)
	}
	stats := make(map[string]int, len(fileDiffs))
	for _, fd := range fileDiffs {
		name := strings.TrimPrefix(fd.NewName, "b/")
		added := 0
		for _, hunk := range fd.Hunks {
			for _, line := range strings.Split(string(hunk.Body), "\n") {
				if strings.HasPrefix(line, "+") {
					added++
				}
			}
		}
		stats[name] = added
	}
	return stats, nil
}

func repoName(repoURL string) string {
	name := repoURL
	if idx := strings.LastIndexAny(name, "/:"); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.TrimSuffix(name, ".git")
}
