// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"

	"github.com/jeranaias/pocketchat/internal/apierr"
	"github.com/jeranaias/pocketchat/internal/client"
	"github.com/jeranaias/pocketchat/internal/model"
	"github.com/jeranaias/pocketchat/internal/sse"
	"github.com/jeranaias/pocketchat/internal/validate"
)

// CompletionsPath is the chat completions endpoint.
const CompletionsPath = "/v1/chat/completions"

// Transport is the subset of *client.Client the service needs.
type Transport interface {
	PostJSON(ctx context.Context, path string, body, out any, opts ...client.RequestOption) error
	PostStream(ctx context.Context, path string, body any, opts ...client.RequestOption) (io.ReadCloser, error)
}

// =============================================================================
// SERVICE
// =============================================================================

// Service builds completion requests and sends them over a Transport.
type Service struct {
	transport Transport
	defaults  validate.GenerationParams
	maxLength int
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithDefaults sets the sampling parameters used when a call leaves them nil.
func WithDefaults(p validate.GenerationParams) ServiceOption {
	return func(s *Service) {
		s.defaults = p
	}
}

// WithMaxMessageLength sets the rune limit for the outgoing message.
func WithMaxMessageLength(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxLength = n
		}
	}
}

// WithLogger sets the logger passed to the stream parser.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a service over t.
func NewService(t Transport, opts ...ServiceOption) *Service {
	s := &Service{
		transport: t,
		maxLength: validate.DefaultMaxMessageLength,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// SINGLE-SHOT
// =============================================================================

// SendMessage sends messages with stream=false and returns the first choice's text.
func (s *Service) SendMessage(ctx context.Context, messages []*model.Message, modelID string, opts Options) (string, error) {
	req, err := s.prepare(messages, modelID, opts, false)
	if err != nil {
		return "", err
	}

	var resp CompletionResponse
	if err := s.transport.PostJSON(ctx, CompletionsPath, req, &resp); err != nil {
		return "", wrapSendError(err)
	}
	if len(resp.Choices) == 0 {
		return "", apierr.Parse("Response contained no choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// =============================================================================
// STREAMING
// =============================================================================

// SendMessageStream sends messages with stream=true and drives the reply
// through opts.Callbacks.
//
// Failures before the stream opens are reported through OnError as well as
// returned. Cancelling ctx stops all callbacks and OnComplete is never called.
func (s *Service) SendMessageStream(ctx context.Context, messages []*model.Message, modelID string, opts StreamOptions) (sse.Result, error) {
	body, err := s.open(ctx, messages, modelID, opts.Options)
	if err != nil {
		if opts.Callbacks.OnError != nil && !apierr.IsKind(err, apierr.KindCancelled) {
			opts.Callbacks.OnError(err)
		}
		return sse.Result{}, err
	}

	return sse.Consume(ctx, sse.Stream(ctx, body, sse.WithLogger(s.logger)), opts.Callbacks)
}

// StreamMessage returns the reply as a sequence of text fragments. The
// request is sent when iteration starts. A failure ends the sequence with a
// single error.
func (s *Service) StreamMessage(ctx context.Context, messages []*model.Message, modelID string, opts Options) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		body, err := s.open(ctx, messages, modelID, opts)
		if err != nil {
			yield("", err)
			return
		}
		for text, err := range sse.Fragments(ctx, sse.Stream(ctx, body, sse.WithLogger(s.logger))) {
			if !yield(text, err) {
				return
			}
		}
	}
}

func (s *Service) open(ctx context.Context, messages []*model.Message, modelID string, opts Options) (io.ReadCloser, error) {
	req, err := s.prepare(messages, modelID, opts, true)
	if err != nil {
		return nil, err
	}
	body, err := s.transport.PostStream(ctx, CompletionsPath, req)
	if err != nil {
		return nil, wrapSendError(err)
	}
	return body, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// prepare validates the call and builds the request body. Nothing is sent.
func (s *Service) prepare(messages []*model.Message, modelID string, opts Options, stream bool) (*CompletionRequest, error) {
	if err := validate.ModelID(modelID); err != nil {
		return nil, err
	}

	wire := toWire(messages)
	if len(wire) == 0 {
		return nil, apierr.Validation("messages", "At least one message is required")
	}
	if err := validate.MessageContent(wire[len(wire)-1].Content, s.maxLength); err != nil {
		return nil, err
	}

	params := opts.params().WithDefaults(s.defaults)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	return &CompletionRequest{
		Model:       modelID,
		Messages:    wire,
		Stream:      stream,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		TopP:        params.TopP,
	}, nil
}

// wrapSendError keeps taxonomy errors and wraps anything else as unknown.
func wrapSendError(err error) error {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		return err
	}
	return apierr.Unknown("Failed to send message", err)
}
