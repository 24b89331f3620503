// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workload

import "time"

// Statistics accumulates run counters. It is accumulated incrementally, so
// a mid-batch cancellation still leaves a consistent snapshot.
//
// The pipeline is single-threaded per batch, so no synchronization is
// needed here.
type Statistics struct {
	FilesProcessed    int
	ItemsModified     int
	Errors            int
	AICalls           int
	PromptTokens      int
	ResponseTokens    int
	BuildRetries      int
	BuildFailures     int
	SanitizationFixes int

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns the wall-clock span of the run, or zero when the run
// has not finished.
func (s *Statistics) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// RecordAICall accumulates one gateway round trip.
func (s *Statistics) RecordAICall(promptTokens, responseTokens int) {
	s.AICalls++
	s.PromptTokens += promptTokens
	s.ResponseTokens += responseTokens
}
