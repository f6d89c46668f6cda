// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jeranaias/pocketchat/internal/apierr"
	"github.com/jeranaias/pocketchat/internal/chat"
	"github.com/jeranaias/pocketchat/internal/model"
	"github.com/jeranaias/pocketchat/internal/sse"
	"github.com/jeranaias/pocketchat/internal/storage"
	"github.com/jeranaias/pocketchat/internal/validate"
)

// ErrBusy is returned when a send is started while another is in flight.
var ErrBusy = errors.New("a message is already being sent")

// Stream outcomes reported to the observer.
const (
	outcomeComplete  = "complete"
	outcomeError     = "error"
	outcomeCancelled = "cancelled"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Completer streams a reply for a message history.
type Completer interface {
	SendMessageStream(ctx context.Context, messages []*model.Message, modelID string, opts chat.StreamOptions) (sse.Result, error)
}

// StreamObserver receives stream statistics. *telemetry.Metrics implements it.
type StreamObserver interface {
	StreamChunk(delta string)
	FirstToken(d time.Duration)
	StreamDone(outcome string)
}

type nopObserver struct{}

func (nopObserver) StreamChunk(string)        {}
func (nopObserver) FirstToken(time.Duration) {}
func (nopObserver) StreamDone(string)         {}

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Manager owns the active conversation and its single in-flight send.
type Manager struct {
	mu sync.Mutex

	completer Completer
	repo      *storage.ChatRepository
	notify    Notifier
	observer  StreamObserver
	logger    *slog.Logger

	conv      *model.Conversation
	modelID   string
	opts      chat.Options
	maxLength int

	// In-flight send
	sending bool
	cancel  context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithRepository persists the conversation after every send.
func WithRepository(repo *storage.ChatRepository) Option {
	return func(m *Manager) {
		m.repo = repo
	}
}

// WithNotifier sets the event sink.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notify = n
		}
	}
}

// WithObserver sets the stream statistics sink.
func WithObserver(o StreamObserver) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithOptions sets the sampling options used for every send.
func WithOptions(opts chat.Options) Option {
	return func(m *Manager) {
		m.opts = opts
	}
}

// WithMaxMessageLength sets the rune limit for user input.
func WithMaxMessageLength(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxLength = n
		}
	}
}

// NewManager creates a manager with a fresh conversation.
func NewManager(c Completer, modelID string, opts ...Option) *Manager {
	m := &Manager{
		completer: c,
		notify:    func(Event) {},
		observer:  nopObserver{},
		logger:    slog.Default(),
		modelID:   modelID,
		maxLength: validate.DefaultMaxMessageLength,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.conv = model.NewConversation(modelID)
	return m
}

// =============================================================================
// SESSION STATE
// =============================================================================

// Conversation returns a snapshot of the active conversation.
func (m *Manager) Conversation() *model.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conv.Clone()
}

// Model returns the model used for new sends.
func (m *Manager) Model() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modelID
}

// SetModel changes the model for subsequent sends.
func (m *Manager) SetModel(modelID string) error {
	if err := validate.ModelID(modelID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelID = modelID
	m.conv.Model = modelID
	return nil
}

// IsSending reports whether a send is in flight.
func (m *Manager) IsSending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sending
}

// NewConversation replaces the active conversation with an empty one.
func (m *Manager) NewConversation(ctx context.Context) error {
	m.mu.Lock()
	if m.sending {
		m.mu.Unlock()
		return ErrBusy
	}
	m.conv = model.NewConversation(m.modelID)
	m.mu.Unlock()

	if m.repo != nil {
		return m.repo.SetActiveID(ctx, "")
	}
	return nil
}

// Load makes the stored conversation with the given ID active.
func (m *Manager) Load(ctx context.Context, id string) error {
	if m.repo == nil {
		return storage.ErrNotFound
	}
	conv, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.sending {
		m.mu.Unlock()
		return ErrBusy
	}
	m.conv = conv
	if conv.Model != "" {
		m.modelID = conv.Model
	}
	m.mu.Unlock()

	return m.repo.SetActiveID(ctx, id)
}

// Rename sets a custom title.
func (m *Manager) Rename(ctx context.Context, title string) error {
	m.mu.Lock()
	m.conv.Rename(title)
	snapshot := m.conv.Clone()
	m.mu.Unlock()
	return m.save(ctx, snapshot)
}

// SetSystemPrompt sets the leading system message of the conversation.
func (m *Manager) SetSystemPrompt(prompt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sending {
		return ErrBusy
	}
	return m.conv.SetSystemPrompt(prompt)
}

// =============================================================================
// SENDING
// =============================================================================

// Send appends a user message and streams the reply into the conversation.
// It blocks until the reply completes, fails or is cancelled.
func (m *Manager) Send(ctx context.Context, content string) error {
	if err := validate.MessageContent(content, m.maxLength); err != nil {
		m.report(err)
		return err
	}

	m.mu.Lock()
	if m.sending {
		m.mu.Unlock()
		return ErrBusy
	}
	if err := validate.ModelID(m.modelID); err != nil {
		m.mu.Unlock()
		m.report(err)
		return err
	}
	if _, err := m.conv.AddUserMessage(validate.Normalize(content)); err != nil {
		m.mu.Unlock()
		return err
	}
	return m.run(ctx)
}

// Regenerate drops the reply to the last user message and streams a new one.
func (m *Manager) Regenerate(ctx context.Context) error {
	m.mu.Lock()
	if m.sending {
		m.mu.Unlock()
		return ErrBusy
	}
	if _, err := m.conv.TruncateAfterLastUser(); err != nil {
		m.mu.Unlock()
		return err
	}
	return m.run(ctx)
}

// Cancel aborts the in-flight send. It reports whether there was one.
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel == nil {
		return false
	}
	m.cancel()
	return true
}

// run streams a reply to the current history. It must be called with m.mu
// held and releases it.
func (m *Manager) run(ctx context.Context) error {
	history := m.conv.RecentHistory(model.MaxHistoryMessages)
	if _, err := m.conv.BeginAssistant(); err != nil {
		m.mu.Unlock()
		return err
	}

	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.sending = true
	m.cancel = cancel
	conv := m.conv
	modelID := m.modelID
	opts := m.opts
	m.mu.Unlock()

	start := time.Now()
	first := true
	result, err := m.completer.SendMessageStream(sendCtx, history, modelID, chat.StreamOptions{
		Options: opts,
		Callbacks: sse.Callbacks{
			OnChunk: func(chunk *sse.StreamChunk) {
				m.observer.StreamChunk(sse.ExtractContent(chunk))
			},
			OnContent: func(delta, full string) {
				if first {
					first = false
					m.observer.FirstToken(time.Since(start))
				}
				m.mu.Lock()
				conv.AppendToLast(delta)
				m.mu.Unlock()
				m.notify(Event{Kind: EventToken, ConversationID: conv.ID, Delta: delta, Content: full})
			},
		},
	})

	m.mu.Lock()
	reply := m.finish(conv, result, err)
	m.sending = false
	m.cancel = nil
	snapshot := conv.Clone()
	m.mu.Unlock()

	// Persist with a fresh context so a cancelled send still saves
	if saveErr := m.save(context.WithoutCancel(ctx), snapshot); saveErr != nil {
		m.logger.Warn("failed to save conversation", "id", snapshot.ID, "error", saveErr)
	}

	if err != nil {
		m.report(err)
		return err
	}
	m.notify(Event{Kind: EventComplete, ConversationID: snapshot.ID, Message: reply})
	return nil
}

// finish applies the outcome of a stream to the streaming reply and returns
// a snapshot of it. Called with m.mu held.
func (m *Manager) finish(conv *model.Conversation, result sse.Result, err error) *model.Message {
	var msg *model.Message
	switch {
	case err == nil:
		msg = conv.FinalizeLast(result.FinishReason)
		m.observer.StreamDone(outcomeComplete)
	case apierr.IsKind(err, apierr.KindCancelled):
		if s := conv.Streaming(); s != nil && s.IsEmpty() {
			conv.FailLast("")
		} else {
			msg = conv.FinalizeLast(outcomeCancelled)
		}
		m.observer.StreamDone(outcomeCancelled)
	default:
		msg = conv.FailLast(apierr.UserMessage(err))
		m.observer.StreamDone(outcomeError)
	}
	if msg == nil {
		return nil
	}
	return msg.Clone()
}

// save persists a conversation snapshot and marks it active.
func (m *Manager) save(ctx context.Context, conv *model.Conversation) error {
	if m.repo == nil || conv.IsEmpty() {
		return nil
	}
	if err := m.repo.Save(ctx, conv); err != nil {
		return err
	}
	return m.repo.SetActiveID(ctx, conv.ID)
}
