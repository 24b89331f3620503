// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gitops

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CodeScribe/services/scribe/procrun"
)

func TestCloneOrPullClonesFreshCheckout(t *testing.T) {
	runner := procrun.NewScriptedRunner(
		procrun.Reply{Match: "rev-parse", Err: errors.New("not a git repository")},
		procrun.Reply{Match: "clone"},
	)
	client := NewClient(runner)

	path, err := client.CloneOrPull(context.Background(), "https://example.com/acme/widgets.git", "/work")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/work", "widgets"), path)

	calls := runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"clone", "https://example.com/acme/widgets.git", path}, calls[1].Args)
}

func TestCloneOrPullUpdatesExistingCheckout(t *testing.T) {
	runner := procrun.NewScriptedRunner(
		procrun.Reply{Match: "rev-parse", Output: ".git"},
		procrun.Reply{Match: "pull"},
	)
	client := NewClient(runner)

	path, err := client.CloneOrPull(context.Background(), "git@example.com:acme/widgets.git", "/work")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/work", "widgets"), path)

	calls := runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"pull", "--ff-only"}, calls[1].Args)
}

func TestListOpenBranches(t *testing.T) {
	runner := procrun.NewScriptedRunner(procrun.Reply{
		Match:  "branch -r",
		Output: "origin/HEAD -> origin/main\norigin/main\norigin/codescribe/docs-20260829-120000-abcd1234\n\n",
	})
	client := NewClient(runner)

	branches, err := client.ListOpenBranches(context.Background(), "/work/widgets")
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "codescribe/docs-20260829-120000-abcd1234"}, branches)
}

func TestCommitStagesThenCommits(t *testing.T) {
	runner := procrun.NewScriptedRunner()
	client := NewClient(runner)

	err := client.Commit(context.Background(), "/work/widgets", "docs: add XML documentation to 2 files",
		[]string{"src/A.cs", "src/B.cs"})
	require.NoError(t, err)

	calls := runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"add", "--", "src/A.cs", "src/B.cs"}, calls[0].Args)
	assert.Equal(t, []string{"commit", "-m", "docs: add XML documentation to 2 files"}, calls[1].Args)
}

func TestCommitRequiresFiles(t *testing.T) {
	client := NewClient(procrun.NewScriptedRunner())
	assert.Error(t, client.Commit(context.Background(), "/work", "msg", nil))
}

func TestRevertFile(t *testing.T) {
	runner := procrun.NewScriptedRunner()
	client := NewClient(runner)

	require.NoError(t, client.RevertFile(context.Background(), "/work/widgets", "src/Broken.cs"))

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"checkout", "HEAD", "--", "src/Broken.cs"}, calls[0].Args)
}

func TestCreatePullRequestReturnsURL(t *testing.T) {
	runner := procrun.NewScriptedRunner(procrun.Reply{
		Match:  "gh pr create",
		Output: "https://example.com/acme/widgets/pull/42\n",
	})
	client := NewClient(runner)

	url, err := client.CreatePullRequest(context.Background(), "/work/widgets",
		"codescribe/docs-x", "Add XML documentation", "body")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/acme/widgets/pull/42", url)
}

func TestDiffStatsCountsAddedLinesPerFile(t *testing.T) {
	unified := `diff --git a/src/Widget.cs b/src/Widget.cs
index 1111111..2222222 100644
--- a/src/Widget.cs
+++ b/src/Widget.cs
@@ -1,3 +1,6 @@
 public class Widget
 {
+    /// <summary>Spins.</summary>
+    /// <param name="speed">Revolutions per minute.</param>
+    /// <returns>Nothing.</returns>
     public void Spin(int speed) { }
diff --git a/src/Other.cs b/src/Other.cs
index 3333333..4444444 100644
--- a/src/Other.cs
+++ b/src/Other.cs
@@ -1,2 +1,3 @@
 public class Other
 {
+    /// <summary>Another.</summary>
`
	runner := procrun.NewScriptedRunner(procrun.Reply{Match: "diff", Output: unified})
	client := NewClient(runner)

	stats, err := client.DiffStats(context.Background(), "/work/widgets", "HEAD~1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"src/Widget.cs": 3, "src/Other.cs": 1}, stats)
}

func TestDiffStatsEmptyDiff(t *testing.T) {
	runner := procrun.NewScriptedRunner(procrun.Reply{Match: "diff", Output: "\n"})
	client := NewClient(runner)

	stats, err := client.DiffStats(context.Background(), "/work/widgets", "HEAD~1")
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestRepoName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/acme/widgets.git", "widgets"},
		{"git@example.com:acme/widgets.git", "widgets"},
		{"https://example.com/acme/widgets", "widgets"},
		{"widgets", "widgets"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, repoName(tt.url))
	}
}
