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
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// systemPrompt frames every request sent through the OpenAI-compatible
// backend. The Ollama backend embeds the same framing in its prompt
// templates instead, because /api/generate has no message roles.
const systemPrompt = "You are a precise C# documentation assistant. " +
	"Respond only with the requested content, no explanations."

// OpenAIGateway speaks the OpenAI chat-completion API, including
// self-hosted servers exposing a compatible endpoint.
type OpenAIGateway struct {
	client *openai.Client
	model  string
}

// NewOpenAIGateway creates a gateway for an OpenAI-compatible backend.
// baseURL may be empty for the hosted API.
func NewOpenAIGateway(apiKey, baseURL, model string) *OpenAIGateway {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIGateway{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Generate implements Gateway.
func (g *OpenAIGateway) Generate(ctx context.Context, prompt string) (*Response, error) {
	ctx, span := tracer.Start(ctx, "OpenAIGateway.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", g.model))

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	choice := resp.Choices[0]
	slog.Debug("openai completion finished",
		"model", g.model,
		"finish_reason", choice.FinishReason,
	)
	return &Response{
		Text: choice.Message.Content,
		// A length-truncated response is incomplete and must be skipped.
		Done:           choice.FinishReason != openai.FinishReasonLength,
		PromptTokens:   resp.Usage.PromptTokens,
		ResponseTokens: resp.Usage.CompletionTokens,
	}, nil
}

// HealthCheck implements Gateway by listing models.
func (g *OpenAIGateway) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai backend unreachable: %w", err)
	}
	return nil
}

// Model implements Gateway.
func (g *OpenAIGateway) Model() string {
	return g.model
}

// ListModels returns the model IDs the backend advertises.
func (g *OpenAIGateway) ListModels(ctx context.Context) ([]string, error) {
	list, err := g.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("openai list models failed: %w", err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}
