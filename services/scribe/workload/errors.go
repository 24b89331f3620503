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

import "errors"

// Error taxonomy for the pipeline.
//
// Propagation rules: unit-level errors (timeout, incomplete, sanitization
// rejected) never abort the file; file-level terminal errors (parse
// failure, exhausted build repair) never abort the batch; batch-level
// readiness failures (model unavailable, health check) abort before any
// mutation happens.
var (
	// ErrParseFailure means the structural analysis of a file did not
	// parse. The file is skipped, non-fatally.
	ErrParseFailure = errors.New("structural analysis failed to parse")

	// ErrGatewayTimeout means the AI backend did not answer in time for
	// one unit. The unit is skipped, non-fatally.
	ErrGatewayTimeout = errors.New("ai gateway timed out")

	// ErrGatewayIncomplete means the AI backend returned a truncated
	// response. The unit is skipped, non-fatally.
	ErrGatewayIncomplete = errors.New("ai gateway returned incomplete response")

	// ErrSanitizationRejected means the AI response produced no valid
	// edit. The raw response is retained for diagnostics by the caller.
	ErrSanitizationRejected = errors.New("ai response rejected by sanitizer")

	// ErrBuildFailure means the build gate failed. It drives the repair
	// loop and is terminal for the file only once retries are exhausted.
	ErrBuildFailure = errors.New("build failed")

	// ErrModelUnavailable means the configured model is not present on
	// the backend. Fatal to the whole batch.
	ErrModelUnavailable = errors.New("model not available")

	// ErrHealthCheck means the AI backend never became healthy. Fatal to
	// the whole batch.
	ErrHealthCheck = errors.New("ai backend health check failed")
)
