// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package applier performs crash-safe single-unit text splices.
//
// Every write follows the same sequence: create a backup copy, overwrite
// the original, delete the backup only after the write completed without
// error. A crash mid-write leaves a recoverable backup next to the file
// rather than a truncated original. On disk a file is therefore always in
// exactly one of two states: pristine, or fully rewritten with the backup
// removed.
//
// The applier performs no correctness check beyond the splice itself;
// compilation is verified separately by the build gate.
package applier

import (
	"fmt"
	"os"
	"strings"
)

// BackupSuffix is appended to the original path for the in-flight backup.
const BackupSuffix = ".scribe.bak"

// InsertAbove splices lines immediately above the 1-based lineNum of path,
// leaving every other byte of the file identical.
//
// Description:
//
//	The inserted lines inherit the indentation and line-ending style of
//	the target line. Original lines are carried over verbatim with their
//	own terminators, so a mixed-EOL file stays mixed. lineNum must
//	address an existing line; the caller derives it from a structural
//	analysis of the exact content currently on disk.
//
// Inputs:
//
//	path - Absolute path of the file to edit.
//	lineNum - 1-based line the block is inserted above.
//	lines - Validated comment lines, without indentation.
//
// Outputs:
//
//	error - Non-nil when the read, backup or write failed. The original
//	file is untouched unless the write itself failed, in which case the
//	backup remains for recovery.
func InsertAbove(path string, lineNum int, lines []string) error {
	if len(lines) == 0 {
		return fmt.Errorf("insert into %s: no lines to insert", path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	fileLines := splitKeepTerminators(string(content))
	if lineNum < 1 || lineNum > len(fileLines) {
		return fmt.Errorf("insert into %s: line %d out of range (1..%d)", path, lineNum, len(fileLines))
	}

	target := fileLines[lineNum-1]
	indent := leadingWhitespace(target)
	eol := "\n"
	if strings.HasSuffix(target, "\r\n") {
		eol = "\r\n"
	} else if !strings.HasSuffix(target, "\n") && strings.Contains(string(content), "\r\n") {
		// Terminator-less final line; fall back to the file's dominant style.
		eol = "\r\n"
	}

	var sb strings.Builder
	sb.Grow(len(content) + len(lines)*(len(indent)+len(eol)+80))
	for i, line := range fileLines {
		if i == lineNum-1 {
			for _, l := range lines {
				sb.WriteString(indent)
				sb.WriteString(l)
				sb.WriteString(eol)
			}
		}
		sb.WriteString(line)
	}

	return WriteFile(path, []byte(sb.String()))
}

// splitKeepTerminators splits content into lines, each retaining its own
// terminator. The final element has none when the file lacks a trailing
// newline.
func splitKeepTerminators(content string) []string {
	var out []string
	for {
		i := strings.IndexByte(content, '\n')
		if i < 0 {
			break
		}
		out = append(out, content[:i+1])
		content = content[i+1:]
	}
	if content != "" {
		out = append(out, content)
	}
	return out
}

// WriteFile replaces the content of path using the backup/overwrite/delete
// sequence described in the package comment.
//
// The file's permissions are preserved. The backup is only deleted after
// the overwrite succeeded; callers that crash between backup and write can
// restore by renaming path+BackupSuffix back over path.
func WriteFile(path string, content []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	original, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	backupPath := path + BackupSuffix
	if err := os.WriteFile(backupPath, original, info.Mode().Perm()); err != nil {
		return fmt.Errorf("create backup %s: %w", backupPath, err)
	}
	if err := os.WriteFile(path, content, info.Mode().Perm()); err != nil {
		// Leave the backup in place; it is the only intact copy.
		return fmt.Errorf("overwrite %s (backup retained at %s): %w", path, backupPath, err)
	}
	if err := os.Remove(backupPath); err != nil {
		return fmt.Errorf("remove backup %s: %w", backupPath, err)
	}
	return nil
}

func leadingWhitespace(line string) string {
	for i, r := range line {
		if r != ' ' && r != '\t' {
			return line[:i]
		}
	}
	return line
}
