// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"context"
	"errors"
	"sync"
)

// ErrMockUnhealthy is returned by an unhealthy Mock's HealthCheck.
var ErrMockUnhealthy = errors.New("mock gateway unhealthy")

// ScriptedResponse is one canned mock reply.
type ScriptedResponse struct {
	Response *Response
	Err      error
}

// Mock is a scripted Gateway for tests and offline smoke runs. Replies
// are consumed in order; once exhausted, the last reply repeats.
type Mock struct {
	mu      sync.Mutex
	replies []ScriptedResponse
	next    int
	prompts []string

	// Unhealthy makes HealthCheck fail. Defaults to healthy.
	Unhealthy bool
}

// NewMock creates a Mock with the given scripted replies.
func NewMock(replies ...ScriptedResponse) *Mock {
	return &Mock{replies: replies}
}

// Generate implements Gateway.
func (m *Mock) Generate(ctx context.Context, prompt string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)
	if len(m.replies) == 0 {
		return &Response{Text: "", Done: true}, nil
	}
	idx := m.next
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	} else {
		m.next++
	}
	reply := m.replies[idx]
	return reply.Response, reply.Err
}

// HealthCheck implements Gateway.
func (m *Mock) HealthCheck(ctx context.Context) error {
	if m.Unhealthy {
		return ErrMockUnhealthy
	}
	return nil
}

// Model implements Gateway.
func (m *Mock) Model() string {
	return "mock"
}

// Prompts returns a copy of every prompt received.
func (m *Mock) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}
