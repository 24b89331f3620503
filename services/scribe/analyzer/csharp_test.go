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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSource = `using System;

namespace Demo
{
    /// <summary>A documented class.</summary>
    public class Calculator
    {
        public const int MaxDigits = 10;

        private readonly ILogger _logger;

        public event EventHandler ResultReady;

        /// <summary>Already documented.</summary>
        public int LastResult { get; private set; }

        public string Mode { get; set; }

        public int Add(int left, int right)
        {
            return left + right;
        }

        internal void Reset() { }

        private static string Format(double value) => value.ToString();
    }
}
`

func analyze(t *testing.T, source string) *Analysis {
	t.Helper()
	a := NewCSharpAnalyzer()
	analysis, err := a.Analyze(context.Background(), []byte(source), "Sample.cs")
	require.NoError(t, err)
	require.NotNil(t, analysis)
	return analysis
}

func TestAnalyzeExtractsClassStructure(t *testing.T) {
	analysis := analyze(t, sampleSource)

	require.True(t, analysis.ParsedOK)
	require.Len(t, analysis.Classes, 1)

	cls := analysis.Classes[0]
	assert.Equal(t, "Calculator", cls.Name)
	assert.Equal(t, "public", cls.Accessibility)
	assert.True(t, cls.HasDoc)

	assert.Len(t, cls.Methods, 3)
	assert.Len(t, cls.Properties, 2)
	assert.Len(t, cls.Fields, 2)
	assert.Len(t, cls.Events, 1)
}

func TestAnalyzeMethodDetails(t *testing.T) {
	analysis := analyze(t, sampleSource)
	cls := analysis.Classes[0]

	byName := map[string]Member{}
	for _, m := range cls.Methods {
		byName[m.Name] = m
	}

	add, ok := byName["Add"]
	require.True(t, ok)
	assert.Equal(t, "public", add.Accessibility)
	assert.Equal(t, "int", add.ReturnType)
	assert.False(t, add.HasDoc)
	require.Len(t, add.Params, 2)
	assert.Equal(t, "left", add.Params[0].Name)
	assert.Equal(t, "int", add.Params[0].Type)
	assert.Equal(t, "right", add.Params[1].Name)

	reset, ok := byName["Reset"]
	require.True(t, ok)
	assert.Equal(t, "internal", reset.Accessibility)
	assert.Equal(t, "void", reset.ReturnType)
	assert.Empty(t, reset.Params)

	format, ok := byName["Format"]
	require.True(t, ok)
	assert.Equal(t, "private", format.Accessibility)
}

func TestAnalyzeFieldModifiers(t *testing.T) {
	analysis := analyze(t, sampleSource)
	cls := analysis.Classes[0]

	byName := map[string]Member{}
	for _, m := range cls.Fields {
		byName[m.Name] = m
	}

	maxDigits, ok := byName["MaxDigits"]
	require.True(t, ok)
	assert.True(t, maxDigits.IsConst)
	assert.Equal(t, "public", maxDigits.Accessibility)

	logger, ok := byName["_logger"]
	require.True(t, ok)
	assert.True(t, logger.IsReadOnly)
	assert.Equal(t, "private", logger.Accessibility)
}

func TestAnalyzeDocDetection(t *testing.T) {
	analysis := analyze(t, sampleSource)
	cls := analysis.Classes[0]

	byName := map[string]Member{}
	for _, m := range cls.Properties {
		byName[m.Name] = m
	}
	assert.True(t, byName["LastResult"].HasDoc)
	assert.False(t, byName["Mode"].HasDoc)
}

func TestAnalyzeLineNumbersAreOneBased(t *testing.T) {
	source := "public class A\n{\n    public void M() { }\n}\n"
	analysis := analyze(t, source)

	require.Len(t, analysis.Classes, 1)
	cls := analysis.Classes[0]
	assert.Equal(t, 1, cls.FirstLine)
	require.Len(t, cls.Methods, 1)
	assert.Equal(t, 3, cls.Methods[0].FirstLine)
}

func TestAnalyzeFileScopedNamespace(t *testing.T) {
	source := "namespace Demo;\n\npublic record Point(int X, int Y);\n\npublic struct Size\n{\n    public int Width;\n}\n"
	analysis := analyze(t, source)

	names := make([]string, 0, len(analysis.Classes))
	for _, cls := range analysis.Classes {
		names = append(names, cls.Name)
	}
	assert.Contains(t, names, "Point")
	assert.Contains(t, names, "Size")
}

func TestAnalyzeSyntaxErrorsAreNonFatal(t *testing.T) {
	source := "public class Broken\n{\n    public void M( {\n}\n"
	analysis := analyze(t, source)

	assert.False(t, analysis.ParsedOK)
	assert.NotEmpty(t, analysis.ParseErrors)
}

func TestAnalyzeInputValidation(t *testing.T) {
	a := NewCSharpAnalyzer(WithMaxFileSize(16))

	_, err := a.Analyze(context.Background(), []byte("public class TooLongForLimit { }"), "Big.cs")
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = NewCSharpAnalyzer().Analyze(context.Background(), []byte{0xff, 0xfe, 0xfd}, "Bad.cs")
	assert.ErrorIs(t, err, ErrInvalidContent)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewCSharpAnalyzer().Analyze(ctx, []byte("public class A { }"), "A.cs")
	assert.ErrorIs(t, err, context.Canceled)
}
