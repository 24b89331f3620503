// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package applier

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Sample.cs")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestInsertAboveInheritsIndentation(t *testing.T) {
	source := "namespace Demo;\n" +
		"\n" +
		"public class Widget\n" +
		"{\n" +
		"    public void Spin() { }\n" +
		"}\n"
	path := writeTemp(t, source)

	err := InsertAbove(path, 5, []string{
		"/// <summary>Spins the widget.</summary>",
	})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)

	want := "namespace Demo;\n" +
		"\n" +
		"public class Widget\n" +
		"{\n" +
		"    /// <summary>Spins the widget.</summary>\n" +
		"    public void Spin() { }\n" +
		"}\n"
	assert.Equal(t, want, string(got))
}

func TestInsertAboveLeavesRestOfFileByteIdentical(t *testing.T) {
	source := "line one\n\tweird\t spacing  \nline three\n// trailing comment"
	path := writeTemp(t, source)

	require.NoError(t, InsertAbove(path, 3, []string{"/// <summary>X.</summary>"}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "line one\n\tweird\t spacing  \n/// <summary>X.</summary>\nline three\n// trailing comment"
	assert.Equal(t, want, string(got))
}

func TestInsertAbovePreservesCRLF(t *testing.T) {
	source := "public class A\r\n{\r\n    public int N;\r\n}\r\n"
	path := writeTemp(t, source)

	require.NoError(t, InsertAbove(path, 3, []string{"/// <summary>Count.</summary>"}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "public class A\r\n{\r\n    /// <summary>Count.</summary>\r\n    public int N;\r\n}\r\n"
	assert.Equal(t, want, string(got))
}

func TestInsertAbovePreservesMixedLineEndings(t *testing.T) {
	// Lines 1-2 end in CRLF, the rest in LF. Only the inserted block may
	// differ; every original line keeps its own terminator.
	source := "public class A\r\n{\r\n    public int N;\n}\n"
	path := writeTemp(t, source)

	require.NoError(t, InsertAbove(path, 3, []string{"/// <summary>Count.</summary>"}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "public class A\r\n{\r\n    /// <summary>Count.</summary>\n    public int N;\n}\n"
	assert.Equal(t, want, string(got))
}

func TestInsertAboveValidation(t *testing.T) {
	path := writeTemp(t, "only line\n")

	assert.Error(t, InsertAbove(path, 1, nil))
	assert.Error(t, InsertAbove(path, 0, []string{"/// x"}))
	assert.Error(t, InsertAbove(path, 99, []string{"/// x"}))
	assert.Error(t, InsertAbove(filepath.Join(t.TempDir(), "missing.cs"), 1, []string{"/// x"}))
}

func TestWriteFileRemovesBackupOnSuccess(t *testing.T) {
	path := writeTemp(t, "before")

	require.NoError(t, WriteFile(path, []byte("after")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "after", string(got))
	assert.NoFileExists(t, path+BackupSuffix)
}

func TestWriteFilePreservesPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	path := writeTemp(t, "before")
	require.NoError(t, os.Chmod(path, 0600))

	require.NoError(t, WriteFile(path, []byte("after")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestWriteFileMissingTarget(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "missing.cs"), []byte("x"))
	assert.Error(t, err)
}
