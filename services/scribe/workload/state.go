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

import "fmt"

// State is the workload lifecycle state.
//
// The lifecycle is Queued -> Running -> {Completed, Failed, Cancelled,
// TimedOut}. Terminal states have no outgoing transitions.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
	StateTimedOut  State = "timed_out"
)

// Terminal reports whether the state has no outgoing transitions.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateTimedOut:
		return true
	}
	return false
}

// Transition moves the workload to next, enforcing the fixed lifecycle.
//
// Only the pipeline calls this. Invalid transitions return an error and
// leave the state unchanged.
func (w *Workload) Transition(next State) error {
	if w.State.Terminal() {
		return fmt.Errorf("workload %s: cannot leave terminal state %s", w.ID, w.State)
	}
	switch {
	case w.State == StateQueued && next == StateRunning:
	case w.State == StateRunning && next.Terminal():
	default:
		return fmt.Errorf("workload %s: invalid transition %s -> %s", w.ID, w.State, next)
	}
	w.State = next
	return nil
}
