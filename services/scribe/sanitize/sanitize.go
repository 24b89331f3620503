// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sanitize converts free-form AI text into a validated, minimal
// XML doc-comment block.
//
// The sanitizer is a pure function over its inputs. It repairs the known
// failure modes of generative backends (literal escape sequences, code
// fences, hallucinated parameter tags, orphaned closing tags) and rejects
// anything it cannot make structurally safe. The fix count it reports is
// quality telemetry; acceptance is gated only by the explicit reject rules.
//
// Sanitizing already-sanitized output is idempotent.
package sanitize

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/AleutianAI/CodeScribe/services/scribe/workload"
)

// Unit carries the context the sanitizer needs about the target work unit.
type Unit struct {
	Kind workload.UnitKind

	// ReturnType is the method's declared return type. Only consulted for
	// method units.
	ReturnType string

	// ParamNames are the method's actual parameter names. Only consulted
	// for method units.
	ParamNames []string
}

// singleUseTags may appear at most once in a doc-comment block.
var singleUseTags = []string{"summary", "remarks", "returns", "value", "example", "inheritdoc"}

// allowedTags is the fixed allow-list used by the open/close tracker when
// stripping orphaned closing tags.
var allowedTags = map[string]bool{
	"summary": true, "remarks": true, "returns": true, "value": true,
	"example": true, "para": true, "code": true, "list": true,
	"item": true, "description": true, "term": true, "param": true,
	"typeparam": true, "exception": true,
}

// fireAndForgetReturnTypes are method return types that carry no value to
// document with a <returns> tag.
var fireAndForgetReturnTypes = map[string]bool{
	"void": true, "Task": true, "ValueTask": true,
}

var (
	docMarkerRe      = regexp.MustCompile(`(?s)^\s*<doc>\s*(.*?)\s*</doc>\s*$`)
	emptyPairRe      = regexp.MustCompile(`^///\s*<(\w+)(?:\s[^>]*)?>\s*</(\w+)>\s*$`)
	emptySelfCloseRe = regexp.MustCompile(`^///\s*<\w+\s*/>\s*$`)
	summaryOpenRe    = regexp.MustCompile(`^///\s*<summary(?:\s[^>]*)?>`)
	paramOpenRe      = regexp.MustCompile(`<param\s+name\s*=\s*"([^"]*)"\s*(/?)>`)
	tagTokenRe       = regexp.MustCompile(`<(/?)(\w+)((?:\s[^>]*?)?)(/?)>`)
)

// Sanitize converts raw AI text into a validated doc-comment block for the
// given unit.
//
// Description:
//
//	Applies the fixed sanitation sequence: unwrap the optional <doc>
//	marker, keep only recognizable comment lines, repair literal escape
//	artifacts, drop empty tags, then validate structure (summary first,
//	single-use tags once). For method units it additionally strips
//	<returns> on fire-and-forget methods, parameter tags that name no
//	actual parameter, orphaned closing tags and trailing continuation
//	markers.
//
// Inputs:
//
//	raw - The unmodified gateway response text.
//	unit - Context about the target unit.
//	logger - Destination for non-fatal quality warnings. May be nil.
//
// Outputs:
//
//	workload.GeneratedEdit - Raw text, validated lines, validity flag and
//	the number of automatic repairs applied.
func Sanitize(raw string, unit Unit, logger *slog.Logger) workload.GeneratedEdit {
	if logger == nil {
		logger = slog.Default()
	}
	edit := workload.GeneratedEdit{Raw: raw}

	text := unwrapMarker(raw)

	lines, repairs := commentLines(text)
	edit.FixCount += repairs

	lines = dropEmptyTags(lines)

	if len(lines) == 0 {
		logger.Debug("sanitizer rejected response", "reason", "no comment lines")
		return edit
	}
	if !summaryOpenRe.MatchString(lines[0]) {
		logger.Debug("sanitizer rejected response", "reason", "first line is not a summary tag")
		return edit
	}
	if tag, ok := duplicatedSingleUseTag(lines); ok {
		logger.Debug("sanitizer rejected response", "reason", "duplicated tag", "tag", tag)
		return edit
	}

	if unit.Kind == workload.UnitMethod {
		var fixes int
		lines, fixes = sanitizeMethodTags(lines, unit, logger)
		edit.FixCount += fixes
		if len(lines) == 0 {
			logger.Debug("sanitizer rejected response", "reason", "method tag surgery removed all lines")
			return edit
		}
	}

	edit.Lines = lines
	edit.Valid = true
	return edit
}

// unwrapMarker removes an enclosing <doc> tag if the whole response is
// wrapped in one.
func unwrapMarker(raw string) string {
	if m := docMarkerRe.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return raw
}

// commentLines splits text into discrete lines, strips code-fence markers,
// keeps only doc-comment lines, and repairs literal escape-sequence
// artifacts (text containing a two-character "\n" instead of a real break).
// Each repaired line counts as one fix.
func commentLines(text string) ([]string, int) {
	var out []string
	fixes := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "```") {
			continue
		}
		if !strings.HasPrefix(trimmed, "///") {
			continue
		}
		if strings.Contains(trimmed, `\n`) || strings.Contains(trimmed, `\t`) {
			out = append(out, resplitEscaped(trimmed)...)
			fixes++
			continue
		}
		out = append(out, trimmed)
	}
	return out, fixes
}

// resplitEscaped turns a line carrying literal \r\n, \n or \t sequences
// into properly indented comment lines.
func resplitEscaped(line string) []string {
	line = strings.ReplaceAll(line, `\r\n`, `\n`)
	line = strings.ReplaceAll(line, `\t`, " ")
	var out []string
	for _, part := range strings.Split(line, `\n`) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, "///") {
			part = "/// " + part
		}
		out = append(out, part)
	}
	return out
}

// dropEmptyTags removes lines that are empty-content tag pairs
// (<summary></summary>) or bare self-closing tags (<para/>).
func dropEmptyTags(lines []string) []string {
	var out []string
	for _, line := range lines {
		if m := emptyPairRe.FindStringSubmatch(line); m != nil && m[1] == m[2] {
			continue
		}
		if emptySelfCloseRe.MatchString(line) {
			continue
		}
		out = append(out, line)
	}
	return out
}

// duplicatedSingleUseTag reports the first single-occurrence tag that
// opens more than once across the block.
func duplicatedSingleUseTag(lines []string) (string, bool) {
	joined := strings.Join(lines, "\n")
	for _, tag := range singleUseTags {
		re := regexp.MustCompile(`<` + tag + `(?:\s[^>]*)?/?>`)
		if len(re.FindAllString(joined, -1)) > 1 {
			return tag, true
		}
	}
	return "", false
}

// sanitizeMethodTags applies method-specific tag surgery and returns the
// surviving lines plus the number of strips performed.
func sanitizeMethodTags(lines []string, unit Unit, logger *slog.Logger) ([]string, int) {
	fixes := 0

	if fireAndForgetReturnTypes[unit.ReturnType] {
		var removed bool
		lines, removed = removeTagBlock(lines, "returns")
		if removed {
			fixes++
		}
	}

	lines, paramFixes := removeUnknownParams(lines, unit.ParamNames)
	fixes += paramFixes

	lines, orphanFixes := removeOrphanClosers(lines)
	fixes += orphanFixes

	lines, trailFixes := trimContinuationMarkers(lines)
	fixes += trailFixes

	logMissingDocs(lines, unit, logger)
	return lines, fixes
}

// removeTagBlock removes the first <tag>...</tag> block, which may span
// multiple lines. It reports whether anything was removed.
func removeTagBlock(lines []string, tag string) ([]string, bool) {
	openRe := regexp.MustCompile(`<` + tag + `(?:\s[^>]*)?>`)
	closeToken := "</" + tag + ">"
	start := -1
	for i, line := range lines {
		if openRe.MatchString(line) {
			start = i
			break
		}
	}
	if start < 0 {
		return lines, false
	}
	end := start
	for end < len(lines) && !strings.Contains(lines[end], closeToken) {
		end++
	}
	if end >= len(lines) {
		end = len(lines) - 1
	}
	out := make([]string, 0, len(lines))
	out = append(out, lines[:start]...)
	out = append(out, lines[end+1:]...)
	return out, true
}

// removeUnknownParams strips every <param> block whose name is not an
// actual parameter of the method. Each stripped tag counts as one fix.
func removeUnknownParams(lines []string, paramNames []string) ([]string, int) {
	known := make(map[string]bool, len(paramNames))
	for _, name := range paramNames {
		known[name] = true
	}

	fixes := 0
	var out []string
	for i := 0; i < len(lines); i++ {
		m := paramOpenRe.FindStringSubmatch(lines[i])
		if m == nil || known[m[1]] {
			out = append(out, lines[i])
			continue
		}
		fixes++
		if m[2] == "/" || strings.Contains(lines[i], "</param>") {
			continue // single-line tag, drop the line
		}
		for i+1 < len(lines) && !strings.Contains(lines[i], "</param>") {
			i++
		}
	}
	return out, fixes
}

// removeOrphanClosers runs a stack-based open/close tracker over the
// allow-listed tags and strips closing tags that were never opened. A line
// left with no content after stripping is dropped entirely.
func removeOrphanClosers(lines []string) ([]string, int) {
	fixes := 0
	var stack []string
	var out []string

	for _, line := range lines {
		result := line
		for _, tok := range tagTokenRe.FindAllStringSubmatch(line, -1) {
			closing, name, selfClose := tok[1] == "/", tok[2], tok[4] == "/"
			if !allowedTags[name] || selfClose {
				continue
			}
			if !closing {
				stack = append(stack, name)
				continue
			}
			if idx := lastIndex(stack, name); idx >= 0 {
				stack = append(stack[:idx], stack[idx+1:]...)
				continue
			}
			// Orphaned closing tag: strip the token from the line.
			result = strings.Replace(result, tok[0], "", 1)
			fixes++
		}
		if strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(result), "///")) == "" && result != line {
			continue
		}
		out = append(out, result)
	}
	return out, fixes
}

func lastIndex(stack []string, name string) int {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == name {
			return i
		}
	}
	return -1
}

// trimContinuationMarkers drops trailing lines that are bare comment
// markers or ellipsis continuations.
func trimContinuationMarkers(lines []string) ([]string, int) {
	fixes := 0
	for len(lines) > 0 {
		tail := strings.TrimSpace(strings.TrimPrefix(lines[len(lines)-1], "///"))
		if tail == "" || tail == "..." || tail == "…" {
			lines = lines[:len(lines)-1]
			fixes++
			continue
		}
		break
	}
	return lines, fixes
}

// logMissingDocs reports quality gaps that are logged, never rejected: a
// real parameter without a <param> tag, or a value-returning method
// without a <returns> tag.
func logMissingDocs(lines []string, unit Unit, logger *slog.Logger) {
	joined := strings.Join(lines, "\n")
	for _, name := range unit.ParamNames {
		if !strings.Contains(joined, `<param name="`+name+`"`) {
			logger.Warn("generated docs omit a parameter", "param", name)
		}
	}
	if unit.ReturnType != "" && !fireAndForgetReturnTypes[unit.ReturnType] &&
		!strings.Contains(joined, "<returns") {
		logger.Warn("generated docs omit returns tag", "return_type", unit.ReturnType)
	}
}
