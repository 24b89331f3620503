// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"github.com/AleutianAI/CodeScribe/services/scribe/analyzer"
	"github.com/AleutianAI/CodeScribe/services/scribe/workload"
)

// nextUnit derives the next unprocessed candidate unit from a fresh
// structural analysis.
//
// Qualifying units are filtered by the workload's visibility mask and the
// kind-specific needs-work predicate, then scanned in a fixed priority
// order: methods, then constant/readonly fields, then properties, then
// events, then the type declarations themselves, each in source order.
// The first unit whose key is unattempted this run wins. Returns nil when
// none remain.
func nextUnit(analysis *analyzer.Analysis, w *workload.Workload, attempted map[workload.UnitKey]bool) *workload.WorkUnit {
	type pass struct {
		kind   workload.UnitKind
		pick   func(cls analyzer.Class) []analyzer.Member
		accept func(m analyzer.Member) bool
	}
	passes := []pass{
		{
			kind: workload.UnitMethod,
			pick: func(cls analyzer.Class) []analyzer.Member { return cls.Methods },
		},
		{
			kind:   workload.UnitField,
			pick:   func(cls analyzer.Class) []analyzer.Member { return cls.Fields },
			accept: func(m analyzer.Member) bool { return m.IsConst || m.IsReadOnly },
		},
		{
			kind: workload.UnitProperty,
			pick: func(cls analyzer.Class) []analyzer.Member { return cls.Properties },
		},
		{
			kind: workload.UnitEvent,
			pick: func(cls analyzer.Class) []analyzer.Member { return cls.Events },
		},
	}

	for _, p := range passes {
		for _, cls := range analysis.Classes {
			for _, m := range p.pick(cls) {
				if p.accept != nil && !p.accept(m) {
					continue
				}
				if !needsWork(m.HasDoc, m.Accessibility, w) {
					continue
				}
				key := workload.UnitKey{Owner: cls.Name, Name: m.Name}
				if attempted[key] {
					continue
				}
				return &workload.WorkUnit{
					Kind:          p.kind,
					Key:           key,
					Accessibility: m.Accessibility,
					FirstLine:     m.FirstLine,
					LastLine:      m.LastLine,
					HasDoc:        m.HasDoc,
					ReturnType:    m.ReturnType,
					Params:        m.Params,
				}
			}
		}
	}

	// Type declarations last: documenting members first keeps their line
	// ranges valid longer within one analysis pass.
	for _, cls := range analysis.Classes {
		if !needsWork(cls.HasDoc, cls.Accessibility, w) {
			continue
		}
		key := workload.UnitKey{Owner: cls.Name, Name: cls.Name}
		if attempted[key] {
			continue
		}
		return &workload.WorkUnit{
			Kind:          workload.UnitClass,
			Key:           key,
			Accessibility: cls.Accessibility,
			FirstLine:     cls.FirstLine,
			LastLine:      cls.LastLine,
			HasDoc:        cls.HasDoc,
		}
	}
	return nil
}

// needsWork is the documentation-kind predicate: the unit lacks docs and
// its accessibility is admitted by the workload's visibility mask.
func needsWork(hasDoc bool, accessibility string, w *workload.Workload) bool {
	if w.Kind != workload.KindDocumentation {
		return false
	}
	return !hasDoc && w.Visibility.Allows(accessibility)
}
