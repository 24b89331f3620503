// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway provides the AI backend abstraction used by the
// mutation pipeline.
//
// Two production backends are provided: a raw Ollama HTTP client for
// local models and an OpenAI-compatible client for anything speaking that
// API. A scripted mock supports tests and offline smoke runs. The
// pipeline treats the gateway as a single shared, often GPU-bound
// resource and never issues concurrent calls.
package gateway

import "context"

// Response is one completed generation round trip.
type Response struct {
	// Text is the raw generated output, unmodified.
	Text string

	// Done reports whether the backend finished generating. A false
	// value means the response was truncated and must not be applied.
	Done bool

	PromptTokens   int
	ResponseTokens int
}

// Gateway is the pipeline's interface to a generative AI backend.
//
// Implementations must be safe for concurrent use even though the
// pipeline itself is sequential.
type Gateway interface {
	// Generate sends a prompt and returns the backend's response.
	// Timeouts and cancellation arrive through ctx.
	Generate(ctx context.Context, prompt string) (*Response, error)

	// HealthCheck reports whether the backend is reachable and serving.
	HealthCheck(ctx context.Context) error

	// Model returns the model name this gateway targets.
	Model() string
}
