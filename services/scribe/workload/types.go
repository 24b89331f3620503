// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workload defines the data model shared by the CodeScribe pipeline:
// the Workload request descriptor and its lifecycle, the per-iteration
// WorkUnit, the sanitized GeneratedEdit, build outcomes, run statistics and
// the terminal WorkloadResult handed to the git collaborator.
//
// WorkUnit, GeneratedEdit and BuildOutcome are ephemeral. They are recomputed
// on every loop iteration and never persisted, because any applied mutation
// invalidates the line offsets they carry.
package workload

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the workload category.
type Kind string

const (
	// KindDocumentation requests XML doc-comment generation for
	// undocumented members.
	KindDocumentation Kind = "documentation"
)

// UnitKind classifies a single documentable code element.
type UnitKind string

const (
	UnitMethod   UnitKind = "method"
	UnitProperty UnitKind = "property"
	UnitField    UnitKind = "field"
	UnitEvent    UnitKind = "event"
	UnitClass    UnitKind = "class"
)

// Visibility is a bitmask of member accessibilities a workload may touch.
type Visibility uint8

const (
	VisPublic Visibility = 1 << iota
	VisInternal
	VisProtected
	VisPrivate
)

// VisibilityDefault covers the accessibilities that surface in generated
// API documentation.
const VisibilityDefault = VisPublic | VisInternal | VisProtected

// Allows reports whether the mask admits the given C# accessibility string.
//
// Compound accessibilities ("protected internal", "private protected") are
// admitted when any of their parts is admitted.
func (v Visibility) Allows(accessibility string) bool {
	switch accessibility {
	case "public":
		return v&VisPublic != 0
	case "internal":
		return v&VisInternal != 0
	case "protected":
		return v&VisProtected != 0
	case "private":
		return v&VisPrivate != 0
	case "protected internal":
		return v&(VisProtected|VisInternal) != 0
	case "private protected":
		return v&(VisPrivate|VisProtected) != 0
	default:
		return false
	}
}

// ParseVisibility builds a mask from config strings.
//
// Unknown entries are ignored. An empty list yields VisibilityDefault.
func ParseVisibility(names []string) Visibility {
	var v Visibility
	for _, name := range names {
		switch name {
		case "public":
			v |= VisPublic
		case "internal":
			v |= VisInternal
		case "protected":
			v |= VisProtected
		case "private":
			v |= VisPrivate
		}
	}
	if v == 0 {
		return VisibilityDefault
	}
	return v
}

// Options carries the per-run tunables for a workload.
type Options struct {
	// TargetFileCount stops the batch after this many successfully
	// modified files. Zero means process every admitted file.
	TargetFileCount int

	// MaxRepairAttempts bounds the AI-assisted build repair loop.
	MaxRepairAttempts int

	// RevertOnFailure restores a file to its last committed content when
	// the repair loop is exhausted. When false the broken change stays in
	// place and is reported as a soft warning.
	RevertOnFailure bool

	// BuildCheck enables the post-mutation build gate. Requires
	// SolutionRef to be set.
	BuildCheck bool

	// SolutionRef is the solution or project file passed to the build
	// toolchain, relative to the repository root.
	SolutionRef string

	// AdmissionThreshold overrides the scheduler's undocumented-ratio
	// threshold. Zero means use the scheduler default.
	AdmissionThreshold float64
}

// Workload is a request descriptor. The caller creates it; only the
// pipeline mutates State, through the fixed lifecycle enforced by
// Transition; it is destroyed once its Result is captured.
type Workload struct {
	ID         string
	Repository string
	// Scope restricts discovery to a subdirectory of the checkout.
	// Empty means the whole repository.
	Scope      string
	Kind       Kind
	Visibility Visibility
	Options    Options
	State      State
	CreatedAt  time.Time
}

// New creates a Queued workload with a fresh ID.
func New(repository string, kind Kind, vis Visibility, opts Options) *Workload {
	return &Workload{
		ID:         uuid.NewString(),
		Repository: repository,
		Kind:       kind,
		Visibility: vis,
		Options:    opts,
		State:      StateQueued,
		CreatedAt:  time.Now(),
	}
}

// UnitKey identifies a work unit within a file by owner type and member
// name. A key is attempted at most once per file-processing run.
type UnitKey struct {
	Owner string
	Name  string
}

// Param is a method parameter as reported by the analyzer.
type Param struct {
	Name string
	Type string
}

// WorkUnit is one documentable code element, scoped to a single loop
// iteration. FirstLine and LastLine are 1-based and only valid against the
// file content the unit was extracted from.
type WorkUnit struct {
	Kind          UnitKind
	Key           UnitKey
	Accessibility string
	FirstLine     int
	LastLine      int
	HasDoc        bool

	// ReturnType and Params are populated for method units only.
	ReturnType string
	Params     []Param
}

// GeneratedEdit is the sanitizer's output for one unit: the raw AI text,
// the validated comment lines derived from it, and the count of automatic
// repairs applied while sanitizing.
type GeneratedEdit struct {
	Raw      string
	Lines    []string
	Valid    bool
	FixCount int
}

// BuildError is a single diagnostic attributed by the build toolchain.
type BuildError struct {
	File    string
	Line    int
	Code    string
	Message string
}

// BuildOutcome is the result of one build invocation. Errors preserves the
// toolchain's reporting order.
type BuildOutcome struct {
	Success bool
	Errors  []BuildError
}

// ErrorsForFile returns the subset of errors attributed to relPath. When no
// error matches, the full set is returned: a regression introduced in one
// file may surface in a dependent file.
func (b *BuildOutcome) ErrorsForFile(relPath string) []BuildError {
	var matched []BuildError
	for _, e := range b.Errors {
		if sameFile(e.File, relPath) {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return b.Errors
	}
	return matched
}

func sameFile(reported, relPath string) bool {
	if reported == relPath {
		return true
	}
	// MSBuild reports absolute paths; compare by suffix with a separator
	// boundary so "Foo.cs" does not match "BarFoo.cs".
	if len(reported) > len(relPath) {
		tail := reported[len(reported)-len(relPath):]
		if tail == relPath {
			sep := reported[len(reported)-len(relPath)-1]
			return sep == '/' || sep == '\\'
		}
	}
	return false
}

// PublishInfo is the metadata produced by the external publish step.
type PublishInfo struct {
	Branch         string
	PullRequestURL string

	// AddedLines maps each modified file to the number of lines the batch
	// added, derived from the final diff.
	AddedLines map[string]int
}

// Result is the terminal record of a workload run. It is always populated,
// including on failure, so callers get a summary and error list regardless
// of outcome.
type Result struct {
	WorkloadID    string
	State         State
	Stats         Statistics
	ModifiedFiles []string
	Publish       PublishInfo
	Errors        []string
}
