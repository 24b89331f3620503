// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analyzer provides structural analysis of C# source files.
//
// The Analyzer interface is the pipeline's only view of source structure.
// The concrete implementation uses tree-sitter, creating a parser per call
// so a single analyzer instance is safe for concurrent use.
//
// Analysis is always recomputed from the file's current content. The
// pipeline re-analyzes after every successful mutation instead of patching
// line offsets incrementally; results must never be cached across edits.
package analyzer

import (
	"context"

	"github.com/AleutianAI/CodeScribe/services/scribe/workload"
)

// Member is one documentable class member.
type Member struct {
	Name          string
	Accessibility string
	HasDoc        bool

	// FirstLine and LastLine are 1-based, inclusive, and include any
	// attribute lists attached to the declaration.
	FirstLine int
	LastLine  int

	// ReturnType and Params are populated for methods only.
	ReturnType string
	Params     []workload.Param

	// IsConst and IsReadOnly are populated for fields only.
	IsConst    bool
	IsReadOnly bool
}

// Class is a type declaration and its members, grouped by member kind.
type Class struct {
	Name          string
	Accessibility string
	HasDoc        bool
	FirstLine     int
	LastLine      int

	Methods    []Member
	Properties []Member
	Fields     []Member
	Events     []Member
}

// Analysis is the structural view of one file at one point in time.
type Analysis struct {
	ParsedOK    bool
	ParseErrors []string
	Classes     []Class
}

// Analyzer computes the structural analysis of a source file.
type Analyzer interface {
	// Analyze parses content and extracts classes and members. A file
	// with syntax errors yields ParsedOK == false and whatever partial
	// structure could be recovered; the error return is reserved for
	// infrastructure failures (cancellation, oversized input).
	Analyze(ctx context.Context, content []byte, filePath string) (*Analysis, error)
}
