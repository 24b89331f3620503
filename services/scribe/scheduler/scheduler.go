// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scheduler discovers and admits candidate files for a workload.
//
// Admission has no side effects: the scheduler returns an ordered list of
// relative paths and touches nothing on disk.
//
// Known gap: duplicate-work detection is batch-granular. Branches created
// by this tool carry no per-file manifest, so the claimed-file set cannot
// be derived precisely and the scheduler fails open (empty exclusion set)
// rather than blocking the run. See BranchPrefix.
package scheduler

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/CodeScribe/services/scribe/analyzer"
	"github.com/AleutianAI/CodeScribe/services/scribe/workload"
)

// DefaultAdmissionThreshold is the undocumented-to-documentable ratio a
// file must exceed to be admitted for documentation work. Mostly-finished
// files are not worth reprocessing. Overridable per run via
// workload.Options.AdmissionThreshold.
const DefaultAdmissionThreshold = 0.5

// BranchPrefix marks branches created by this tool, used when scanning
// open branches for in-flight duplicate work.
const BranchPrefix = "codescribe/"

// excludedDirs are build-artifact and VCS directories skipped during
// discovery.
var excludedDirs = map[string]bool{
	"bin": true, "obj": true, ".git": true, ".vs": true,
	"packages": true, "node_modules": true,
}

// generatedSuffixes are file name patterns for generated sources.
var generatedSuffixes = []string{
	".Designer.cs", ".g.cs", ".g.i.cs", ".generated.cs", ".AssemblyAttributes.cs",
}

// BranchLister is the slice of the git capability the scheduler needs.
type BranchLister interface {
	ListOpenBranches(ctx context.Context, repoPath string) ([]string, error)
}

// Scheduler admits candidate files for a workload kind.
type Scheduler struct {
	analyzer analyzer.Analyzer
	branches BranchLister
	logger   *slog.Logger
}

// New creates a Scheduler. branches may be nil, in which case duplicate
// work detection is skipped entirely.
func New(a analyzer.Analyzer, branches BranchLister, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{analyzer: a, branches: branches, logger: logger}
}

// Admit returns the ordered list of relative file paths admitted for the
// workload.
//
// Description:
//
//	Walks the workload scope under repoPath collecting candidate C#
//	files, subtracts files claimed by open in-flight work (currently
//	always empty, see the package comment), then applies the per-kind
//	admission predicate. Files whose structural analysis fails to parse
//	are skipped non-fatally.
func (s *Scheduler) Admit(ctx context.Context, repoPath string, w *workload.Workload) ([]string, error) {
	candidates, err := s.discover(repoPath, w.Scope)
	if err != nil {
		return nil, err
	}

	claimed := s.claimedFiles(ctx, repoPath)

	threshold := w.Options.AdmissionThreshold
	if threshold == 0 {
		threshold = DefaultAdmissionThreshold
	}

	admitted := make([]string, 0, len(candidates))
	for _, rel := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if claimed[rel] {
			continue
		}
		ok, err := s.admitFile(ctx, repoPath, rel, w, threshold)
		if err != nil {
			return nil, err
		}
		if ok {
			admitted = append(admitted, rel)
		}
	}

	s.logger.Info("scheduling complete",
		"candidates", len(candidates),
		"admitted", len(admitted),
		"kind", string(w.Kind),
	)
	return admitted, nil
}

// discover collects candidate files under the scope, excluding artifact
// directories and generated-file name patterns. Paths are returned sorted
// for a deterministic processing order.
func (s *Scheduler) discover(repoPath, scope string) ([]string, error) {
	root := repoPath
	if scope != "" {
		root = filepath.Join(repoPath, scope)
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if excludedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".cs") || isGenerated(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(repoPath, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// isGenerated reports whether the file name matches a generated-source
// naming pattern.
func isGenerated(name string) bool {
	for _, suffix := range generatedSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// claimedFiles derives the set of files already claimed by open, unmerged
// work of the same kind. Branch metadata is batch-granular, so the precise
// set cannot be derived; fail open with a warning rather than blocking.
func (s *Scheduler) claimedFiles(ctx context.Context, repoPath string) map[string]bool {
	if s.branches == nil {
		return nil
	}
	branches, err := s.branches.ListOpenBranches(ctx, repoPath)
	if err != nil {
		s.logger.Warn("could not list open branches, assuming none", "error", err.Error())
		return nil
	}
	inFlight := 0
	for _, b := range branches {
		if strings.HasPrefix(b, BranchPrefix) {
			inFlight++
		}
	}
	if inFlight > 0 {
		s.logger.Warn("open in-flight branches found but duplicate-work tracking is batch-granular, failing open",
			"in_flight_branches", inFlight,
		)
	}
	return nil
}

// admitFile applies the per-kind admission predicate to one file.
func (s *Scheduler) admitFile(ctx context.Context, repoPath, rel string, w *workload.Workload, threshold float64) (bool, error) {
	content, err := os.ReadFile(filepath.Join(repoPath, filepath.FromSlash(rel)))
	if err != nil {
		s.logger.Warn("skipping unreadable candidate", "file", rel, "error", err.Error())
		return false, nil
	}

	analysis, err := s.analyzer.Analyze(ctx, content, rel)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		s.logger.Warn("skipping unanalyzable candidate", "file", rel, "error", err.Error())
		return false, nil
	}
	if !analysis.ParsedOK {
		s.logger.Warn("skipping candidate with parse errors", "file", rel)
		return false, nil
	}

	switch w.Kind {
	case workload.KindDocumentation:
		documentable, undocumented := docCoverage(analysis, w.Visibility)
		if documentable == 0 {
			return false, nil
		}
		ratio := float64(undocumented) / float64(documentable)
		admit := ratio > threshold
		s.logger.Debug("admission predicate evaluated",
			"file", rel,
			"documentable", documentable,
			"undocumented", undocumented,
			"admitted", admit,
		)
		return admit, nil
	default:
		return false, nil
	}
}

// docCoverage counts qualifying members and how many of them lack docs.
func docCoverage(analysis *analyzer.Analysis, vis workload.Visibility) (documentable, undocumented int) {
	count := func(m analyzer.Member) {
		if !vis.Allows(m.Accessibility) {
			return
		}
		documentable++
		if !m.HasDoc {
			undocumented++
		}
	}
	for _, cls := range analysis.Classes {
		if vis.Allows(cls.Accessibility) {
			documentable++
			if !cls.HasDoc {
				undocumented++
			}
		}
		for _, m := range cls.Methods {
			count(m)
		}
		for _, m := range cls.Properties {
			count(m)
		}
		for _, m := range cls.Fields {
			count(m)
		}
		for _, m := range cls.Events {
			count(m)
		}
	}
	return documentable, undocumented
}
