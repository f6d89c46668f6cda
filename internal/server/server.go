// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/pocketchat/internal/chat"
	"github.com/jeranaias/pocketchat/internal/model"
	"github.com/jeranaias/pocketchat/internal/sse"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr matches the client's default base URL.
	DefaultAddr = "127.0.0.1:8080"

	// DefaultModel is listed when no models are configured.
	DefaultModel = "echo"

	// MaxRequestBodySize bounds a request body (1MB).
	MaxRequestBodySize = 1 << 20

	// MaxMessageCount is the maximum number of messages in a request.
	MaxMessageCount = 1000

	shutdownTimeout = 5 * time.Second
)

// validRoles is the set of acceptable message roles.
var validRoles = map[string]bool{
	"user":      true,
	"assistant": true,
	"system":    true,
}

// ============================================================================
// SERVER STATS
// ============================================================================

// ServerStats counts handled requests.
type ServerStats struct {
	Requests    int64     `json:"requests"`
	Completions int64     `json:"completions"`
	Streams     int64     `json:"streams"`
	Rejected    int64     `json:"rejected"`
	StartTime   time.Time `json:"start_time"`
}

type counters struct {
	requests    atomic.Int64
	completions atomic.Int64
	streams     atomic.Int64
	rejected    atomic.Int64
}

// ============================================================================
// SERVER
// ============================================================================

// Responder produces the full reply text for a request.
type Responder func(req *chat.CompletionRequest) string

// Option configures a Server.
type Option func(*Server)

// WithModels sets the listed models. Requests for other models get 404.
func WithModels(ids ...string) Option {
	return func(s *Server) {
		if len(ids) > 0 {
			s.models = ids
		}
	}
}

// WithResponder replaces the echo responder.
func WithResponder(r Responder) Option {
	return func(s *Server) {
		if r != nil {
			s.respond = r
		}
	}
}

// WithChunkDelay pauses between streamed words.
func WithChunkDelay(d time.Duration) Option {
	return func(s *Server) {
		s.chunkDelay = d
	}
}

// WithToken requires "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server is an OpenAI-compatible endpoint with canned replies.
type Server struct {
	models     []string
	respond    Responder
	chunkDelay time.Duration
	token      string
	logger     *slog.Logger

	unavailable atomic.Bool
	stats       counters
	started     time.Time

	handler http.Handler
}

// New creates a server. With no options it lists one model, "echo", and
// echoes the last user message.
func New(opts ...Option) *Server {
	s := &Server{
		models:  []string{DefaultModel},
		respond: EchoResponder,
		logger:  slog.Default(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.handler = Chain(
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger),
		s.countRequests,
		AuthMiddleware(s.token),
	)(mux)
	return s
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// SetAvailable makes the API answer 503 while false. /health still answers.
func (s *Server) SetAvailable(ok bool) {
	s.unavailable.Store(!ok)
}

// Stats returns the request counters.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		Requests:    s.stats.requests.Load(),
		Completions: s.stats.completions.Load(),
		Streams:     s.stats.streams.Load(),
		Rejected:    s.stats.rejected.Load(),
		StartTime:   s.started,
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr, "models", s.models)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.logger.Info("server shutting down", "addr", addr)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.stats.requests.Add(1)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) hasModel(id string) bool {
	for _, m := range s.models {
		if m == id {
			return true
		}
	}
	return false
}

// ============================================================================
// CHAT COMPLETIONS HANDLER
// ============================================================================

// handleChatCompletions handles POST /v1/chat/completions.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if s.unavailable.Load() {
		s.reject(w, http.StatusServiceUnavailable, "unavailable", "Server is not ready")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var req chat.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.reject(w, http.StatusRequestEntityTooLarge, "request_too_large",
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", MaxRequestBodySize))
			return
		}
		s.logger.Debug("invalid request body", "error", err)
		s.reject(w, http.StatusBadRequest, "invalid_request_error", "Invalid request format")
		return
	}

	if err := validateRequest(&req); err != nil {
		s.reject(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	if !s.hasModel(req.Model) {
		s.reject(w, http.StatusNotFound, "model_not_found",
			fmt.Sprintf("The model '%s' does not exist", req.Model))
		return
	}

	words, finish := limitWords(splitWords(s.respond(&req)), req.MaxTokens)
	if req.Stream {
		s.stats.streams.Add(1)
		s.streamCompletion(w, r, &req, words, finish)
		return
	}
	s.stats.completions.Add(1)

	content := strings.Join(words, "")
	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += len(strings.Fields(m.Content))
	}
	writeJSON(w, http.StatusOK, chat.CompletionResponse{
		ID:      generateResponseID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chat.CompletionChoice{{
			Message:      chat.WireMessage{Role: "assistant", Content: content},
			FinishReason: finish,
		}},
		Usage: &chat.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: len(words),
			TotalTokens:      promptTokens + len(words),
		},
	})
}

// streamCompletion writes words as chat.completion.chunk events.
func (s *Server) streamCompletion(w http.ResponseWriter, r *http.Request, req *chat.CompletionRequest, words []string, finish string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.reject(w, http.StatusInternalServerError, "internal_error", "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	id := generateResponseID()
	created := time.Now().Unix()
	chunk := func(delta sse.Delta, finishReason *string) sse.StreamChunk {
		return sse.StreamChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   req.Model,
			Choices: []sse.Choice{{Delta: delta, FinishReason: finishReason}},
		}
	}

	sendStreamChunk(w, flusher, chunk(sse.Delta{Role: "assistant"}, nil))
	for _, word := range words {
		if s.chunkDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.chunkDelay):
			}
		}
		if ctx.Err() != nil {
			return
		}
		sendStreamChunk(w, flusher, chunk(sse.Delta{Content: word}, nil))
	}
	sendStreamChunk(w, flusher, chunk(sse.Delta{}, &finish))

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// sendStreamChunk sends a single SSE chunk.
func sendStreamChunk(w http.ResponseWriter, flusher http.Flusher, chunk sse.StreamChunk) {
	data, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func validateRequest(req *chat.CompletionRequest) error {
	if req.Model == "" {
		return errors.New("model is required")
	}
	if len(req.Messages) == 0 {
		return errors.New("messages must not be empty")
	}
	if len(req.Messages) > MaxMessageCount {
		return fmt.Errorf("too many messages: %d (max %d)", len(req.Messages), MaxMessageCount)
	}
	for i, msg := range req.Messages {
		if !validRoles[msg.Role] {
			return fmt.Errorf("invalid role '%s' at message %d: must be one of user, assistant, system", msg.Role, i)
		}
	}
	return nil
}

// ============================================================================
// REPLIES
// ============================================================================

// EchoResponder answers with the last user message.
func EchoResponder(req *chat.CompletionRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return "You said: " + req.Messages[i].Content
		}
	}
	return "Hello!"
}

// splitWords splits text into words that keep their leading whitespace, so
// joining them restores the text.
func splitWords(text string) []string {
	var (
		words []string
		start int
	)
	inSpace := true
	for i, r := range text {
		isSpace := r == ' ' || r == '\n' || r == '\t'
		if isSpace && !inSpace {
			words = append(words, text[start:i])
			start = i
		}
		inSpace = isSpace
	}
	if start < len(text) {
		words = append(words, text[start:])
	}
	return words
}

// limitWords applies max_tokens, counting one token per word.
func limitWords(words []string, maxTokens *int) ([]string, string) {
	if maxTokens != nil && *maxTokens > 0 && len(words) > *maxTokens {
		return words[:*maxTokens], "length"
	}
	return words, "stop"
}

// ============================================================================
// MODELS / HEALTH HANDLERS
// ============================================================================

// handleModels handles GET /v1/models.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if s.unavailable.Load() {
		s.reject(w, http.StatusServiceUnavailable, "unavailable", "Server is not ready")
		return
	}
	data := make([]model.ModelInfo, 0, len(s.models))
	for _, id := range s.models {
		data = append(data, model.ModelInfo{
			ID:      id,
			Object:  "model",
			Created: s.started.Unix(),
			OwnedBy: "pocketchat",
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   data,
	})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.unavailable.Load() {
		status = "unavailable"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"stats":          s.Stats(),
	})
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Server) reject(w http.ResponseWriter, status int, code, message string) {
	s.stats.rejected.Add(1)
	writeError(w, status, code, message)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an OpenAI-style error body.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "invalid_request_error",
			"code":    code,
		},
	})
}

func generateResponseID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
