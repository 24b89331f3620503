// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CodeScribe/services/scribe/workload"
)

func TestForUnitCoversEveryKind(t *testing.T) {
	kinds := []workload.UnitKind{
		workload.UnitMethod,
		workload.UnitProperty,
		workload.UnitField,
		workload.UnitEvent,
		workload.UnitClass,
	}
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			prompt, err := ForUnit(kind, "public void Spin(int speed) { }")
			require.NoError(t, err)
			assert.Contains(t, prompt, "public void Spin(int speed) { }")
			assert.Contains(t, prompt, "///")
		})
	}
}

func TestForUnitMethodMentionsParamRules(t *testing.T) {
	prompt, err := ForUnit(workload.UnitMethod, "int Add(int a, int b)")
	require.NoError(t, err)
	assert.Contains(t, prompt, "<param>")
	assert.Contains(t, prompt, "<returns>")
}

func TestForUnitUnknownKind(t *testing.T) {
	_, err := ForUnit(workload.UnitKind("module"), "x")
	assert.Error(t, err)
}

func TestForRepairIncludesErrorsAndContent(t *testing.T) {
	prompt, err := ForRepair("src/Widget.cs", "public class Widget { }", []workload.BuildError{
		{File: "src/Widget.cs", Line: 12, Code: "CS1570", Message: "XML comment has badly formed XML"},
		{File: "src/Widget.cs", Line: 20, Code: "CS1002", Message: "; expected"},
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "src/Widget.cs(12): CS1570: XML comment has badly formed XML")
	assert.Contains(t, prompt, "CS1002")
	assert.Contains(t, prompt, "public class Widget { }")
	assert.Contains(t, prompt, "File (src/Widget.cs):")
}
