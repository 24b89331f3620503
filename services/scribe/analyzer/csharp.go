// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/csharp"

	"github.com/AleutianAI/CodeScribe/services/scribe/workload"
)

// DefaultMaxFileSize is the maximum file size the analyzer will accept (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// ErrFileTooLarge is returned when input content exceeds the size limit.
var ErrFileTooLarge = errors.New("file exceeds maximum size limit")

// ErrInvalidContent is returned when input content is not valid UTF-8.
var ErrInvalidContent = errors.New("invalid content")

// CSharpAnalyzer implements Analyzer for C# source files using tree-sitter.
//
// Thread Safety: a CSharpAnalyzer is safe for concurrent use. Each Analyze
// call creates its own tree-sitter parser instance.
type CSharpAnalyzer struct {
	maxFileSize int64
}

// CSharpOption configures a CSharpAnalyzer.
type CSharpOption func(*CSharpAnalyzer)

// WithMaxFileSize sets the maximum file size the analyzer will accept.
func WithMaxFileSize(bytes int64) CSharpOption {
	return func(a *CSharpAnalyzer) {
		if bytes > 0 {
			a.maxFileSize = bytes
		}
	}
}

// NewCSharpAnalyzer creates a CSharpAnalyzer with sensible defaults.
func NewCSharpAnalyzer(opts ...CSharpOption) *CSharpAnalyzer {
	a := &CSharpAnalyzer{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze implements Analyzer.
//
// Description:
//
//	Parses the content with tree-sitter's C# grammar and extracts every
//	class, struct and record declaration together with its methods,
//	properties, fields and events. The parser is error-tolerant: content
//	with syntax errors yields ParsedOK == false and partial structure.
//
// Inputs:
//
//	ctx - Context for cancellation. Checked before and after parsing;
//	      tree-sitter parsing itself cannot be interrupted mid-parse.
//	content - Raw C# source bytes. Must be valid UTF-8.
//	filePath - Path used for error reporting only.
//
// Outputs:
//
//	*Analysis - Extracted structure. Never nil on success.
//	error - ErrFileTooLarge, ErrInvalidContent, or a context error.
func (a *CSharpAnalyzer) Analyze(ctx context.Context, content []byte, filePath string) (*Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis canceled before start: %w", err)
	}
	if int64(len(content)) > a.maxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, filePath, len(content), a.maxFileSize)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidContent, filePath)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(csharp.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse of %s failed: %w", filePath, err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis canceled after parse: %w", err)
	}

	analysis := &Analysis{
		ParsedOK:    true,
		ParseErrors: make([]string, 0),
		Classes:     make([]Class, 0),
	}

	root := tree.RootNode()
	if root == nil {
		analysis.ParsedOK = false
		analysis.ParseErrors = append(analysis.ParseErrors, "tree-sitter returned nil root node")
		return analysis, nil
	}
	if root.HasError() {
		analysis.ParsedOK = false
		analysis.ParseErrors = append(analysis.ParseErrors, fmt.Sprintf("%s contains syntax errors", filePath))
	}

	lines := strings.Split(string(content), "\n")
	a.collectTypes(root, content, lines, analysis)
	return analysis, nil
}

// typeDeclarationKinds are the tree-sitter node types treated as classes.
var typeDeclarationKinds = map[string]bool{
	"class_declaration":  true,
	"struct_declaration": true,
	"record_declaration": true,
}

// collectTypes walks the tree recursively so declarations nested in
// namespaces (block-scoped or file-scoped) are found.
func (a *CSharpAnalyzer) collectTypes(node *sitter.Node, content []byte, lines []string, analysis *Analysis) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if typeDeclarationKinds[child.Type()] {
			if cls, ok := a.extractClass(child, content, lines); ok {
				analysis.Classes = append(analysis.Classes, cls)
			}
			// Nested types are documented like top-level ones.
			a.collectTypes(child, content, lines, analysis)
			continue
		}
		a.collectTypes(child, content, lines, analysis)
	}
}

func (a *CSharpAnalyzer) extractClass(node *sitter.Node, content []byte, lines []string) (Class, bool) {
	name := fieldText(node, "name", content)
	if name == "" {
		return Class{}, false
	}

	cls := Class{
		Name:          name,
		Accessibility: accessibilityOf(node, content, "internal"),
		HasDoc:        hasDocAbove(lines, int(node.StartPoint().Row)),
		FirstLine:     int(node.StartPoint().Row) + 1,
		LastLine:      int(node.EndPoint().Row) + 1,
	}

	body := node.ChildByFieldName("body")
	if body == nil {
		return cls, true
	}

	for i := 0; i < int(body.NamedChildCount()); i++ {
		decl := body.NamedChild(i)
		switch decl.Type() {
		case "method_declaration":
			if m, ok := a.extractMethod(decl, content, lines); ok {
				cls.Methods = append(cls.Methods, m)
			}
		case "property_declaration":
			if m, ok := a.extractNamedMember(decl, content, lines); ok {
				cls.Properties = append(cls.Properties, m)
			}
		case "field_declaration":
			cls.Fields = append(cls.Fields, a.extractDeclarators(decl, content, lines)...)
		case "event_field_declaration", "event_declaration":
			if decl.Type() == "event_declaration" {
				if m, ok := a.extractNamedMember(decl, content, lines); ok {
					cls.Events = append(cls.Events, m)
				}
			} else {
				cls.Events = append(cls.Events, a.extractDeclarators(decl, content, lines)...)
			}
		}
	}
	return cls, true
}

func (a *CSharpAnalyzer) extractMethod(node *sitter.Node, content []byte, lines []string) (Member, bool) {
	m, ok := a.extractNamedMember(node, content, lines)
	if !ok {
		return Member{}, false
	}
	m.ReturnType = fieldText(node, "type", content)
	if m.ReturnType == "" {
		m.ReturnType = firstChildText(node, "predefined_type", content)
	}
	if params := node.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			if p.Type() != "parameter" {
				continue
			}
			m.Params = append(m.Params, workload.Param{
				Name: fieldText(p, "name", content),
				Type: fieldText(p, "type", content),
			})
		}
	}
	return m, true
}

// extractNamedMember handles declarations carrying their own name field
// (methods, properties, event accessors).
func (a *CSharpAnalyzer) extractNamedMember(node *sitter.Node, content []byte, lines []string) (Member, bool) {
	name := fieldText(node, "name", content)
	if name == "" {
		return Member{}, false
	}
	return Member{
		Name:          name,
		Accessibility: accessibilityOf(node, content, "private"),
		HasDoc:        hasDocAbove(lines, int(node.StartPoint().Row)),
		FirstLine:     int(node.StartPoint().Row) + 1,
		LastLine:      int(node.EndPoint().Row) + 1,
	}, true
}

// extractDeclarators handles field and event-field declarations, which can
// declare multiple names in one statement. Each declarator becomes its own
// member sharing the declaration's line range and modifiers.
func (a *CSharpAnalyzer) extractDeclarators(node *sitter.Node, content []byte, lines []string) []Member {
	var members []Member
	accessibility := accessibilityOf(node, content, "private")
	isConst := hasModifier(node, content, "const")
	isReadOnly := hasModifier(node, content, "readonly")
	hasDoc := hasDocAbove(lines, int(node.StartPoint().Row))

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "variable_declarator" {
				name := fieldText(child, "name", content)
				if name == "" {
					name = firstChildText(child, "identifier", content)
				}
				if name != "" {
					members = append(members, Member{
						Name:          name,
						Accessibility: accessibility,
						HasDoc:        hasDoc,
						FirstLine:     int(node.StartPoint().Row) + 1,
						LastLine:      int(node.EndPoint().Row) + 1,
						IsConst:       isConst,
						IsReadOnly:    isReadOnly,
					})
				}
				continue
			}
			walk(child)
		}
	}
	walk(node)
	return members
}

// accessibilityOf joins the declaration's access modifiers, defaulting to
// the C# implicit accessibility for the declaration kind.
func accessibilityOf(node *sitter.Node, content []byte, implicit string) string {
	var parts []string
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() != "modifier" {
			continue
		}
		switch text := nodeText(child, content); text {
		case "public", "private", "protected", "internal":
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return implicit
	}
	return strings.Join(parts, " ")
}

func hasModifier(node *sitter.Node, content []byte, want string) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "modifier" && nodeText(child, content) == want {
			return true
		}
	}
	return false
}

// hasDocAbove reports whether the nearest non-blank line above the 0-based
// startRow is a doc-comment line. Attribute lines do not need skipping here
// because tree-sitter includes attribute lists in the declaration span.
func hasDocAbove(lines []string, startRow int) bool {
	for row := startRow - 1; row >= 0; row-- {
		trimmed := strings.TrimSpace(lines[row])
		if trimmed == "" {
			continue
		}
		return strings.HasPrefix(trimmed, "///")
	}
	return false
}

func nodeText(node *sitter.Node, content []byte) string {
	return string(content[node.StartByte():node.EndByte()])
}

func fieldText(node *sitter.Node, field string, content []byte) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return nodeText(child, content)
}

func firstChildText(node *sitter.Node, childType string, content []byte) string {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == childType {
			return nodeText(child, content)
		}
	}
	return ""
}
