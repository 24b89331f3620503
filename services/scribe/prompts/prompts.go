// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prompts builds the prompts sent to the AI gateway: one
// kind-specific template per work-unit kind plus the build-repair prompt.
package prompts

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/AleutianAI/CodeScribe/services/scribe/workload"
)

// docTemplates map unit kinds to their documentation prompt. Each template
// receives the unit's minimal source slice and emits instructions for a
// single XML doc-comment block.
var docTemplates = map[workload.UnitKind]*template.Template{
	workload.UnitMethod: tmpl("method", `You are documenting C# code. Write an XML documentation comment for the following method.
Rules:
- Every line must start with ///
- Start with a <summary> tag describing what the method does in one or two sentences.
- Add one <param> tag per parameter, matching the exact parameter names.
- Add a <returns> tag only if the method returns a value (not void/Task).
- Output only the comment lines, nothing else.

Method:
{{.Slice}}`),

	workload.UnitProperty: tmpl("property", `You are documenting C# code. Write an XML documentation comment for the following property.
Rules:
- Every line must start with ///
- Start with a <summary> tag. Add a <value> tag describing the property value if helpful.
- Output only the comment lines, nothing else.

Property:
{{.Slice}}`),

	workload.UnitField: tmpl("field", `You are documenting C# code. Write an XML documentation comment for the following field.
Rules:
- Every line must start with ///
- A single <summary> tag is usually enough.
- Output only the comment lines, nothing else.

Field:
{{.Slice}}`),

	workload.UnitEvent: tmpl("event", `You are documenting C# code. Write an XML documentation comment for the following event.
Rules:
- Every line must start with ///
- Start with a <summary> tag describing when the event is raised.
- Output only the comment lines, nothing else.

Event:
{{.Slice}}`),

	workload.UnitClass: tmpl("class", `You are documenting C# code. Write an XML documentation comment for the following type declaration.
Rules:
- Every line must start with ///
- Start with a <summary> tag describing the type's responsibility.
- Optionally add a <remarks> tag for usage notes.
- Output only the comment lines, nothing else.

Type:
{{.Slice}}`),
}

var repairTemplate = tmpl("repair", `The following C# file fails to compile. Fix the errors and return the complete corrected file.
Rules:
- Return the entire file content, not a fragment.
- Change as little as possible; keep all existing documentation comments.
- Do not add explanations. A single fenced code block is acceptable.

Errors:
{{.Errors}}

File ({{.Path}}):
{{.Content}}`)

func tmpl(name, text string) *template.Template {
	return template.Must(template.New(name).Parse(text))
}

// ForUnit builds the documentation prompt for a unit from its minimal
// source slice.
func ForUnit(kind workload.UnitKind, slice string) (string, error) {
	t, ok := docTemplates[kind]
	if !ok {
		return "", fmt.Errorf("no prompt template for unit kind %q", kind)
	}
	var sb strings.Builder
	if err := t.Execute(&sb, struct{ Slice string }{Slice: slice}); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", kind, err)
	}
	return sb.String(), nil
}

// ForRepair builds the build-repair prompt from the complete current file
// and the filtered error list.
func ForRepair(path, content string, errs []workload.BuildError) (string, error) {
	var lines []string
	for _, e := range errs {
		lines = append(lines, fmt.Sprintf("- %s(%d): %s: %s", e.File, e.Line, e.Code, e.Message))
	}
	var sb strings.Builder
	err := repairTemplate.Execute(&sb, struct {
		Path    string
		Content string
		Errors  string
	}{Path: path, Content: content, Errors: strings.Join(lines, "\n")})
	if err != nil {
		return "", fmt.Errorf("render repair prompt: %w", err)
	}
	return sb.String(), nil
}
