// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"github.com/jeranaias/pocketchat/internal/apierr"
	"github.com/jeranaias/pocketchat/internal/model"
)

// EventKind identifies a notification.
type EventKind int

const (
	// EventToken carries reply text as it arrives.
	EventToken EventKind = iota

	// EventComplete is sent once when a reply finishes.
	EventComplete

	// EventError is sent once when a send fails.
	EventError
)

// String returns the event name.
func (k EventKind) String() string {
	switch k {
	case EventToken:
		return "token"
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a progress or failure notification.
type Event struct {
	Kind           EventKind
	ConversationID string

	// EventToken
	Delta   string
	Content string

	// EventComplete
	Message *model.Message

	// EventError
	Err       error
	Text      string // user-facing message
	Transient bool   // show briefly and move on
	Inline    bool   // show next to the input
	Field     string // offending field for Inline errors
}

// Notifier receives events. It is called synchronously from the sending
// goroutine and must not call back into the Manager.
type Notifier func(Event)

// report translates err into an EventError. Cancellation is not reported.
func (m *Manager) report(err error) {
	if err == nil || apierr.IsKind(err, apierr.KindCancelled) {
		return
	}

	ev := Event{
		Kind: EventError,
		Err:  err,
		Text: apierr.UserMessage(err),
	}
	if apiErr, ok := apierr.As(err); ok && apiErr.Kind == apierr.KindValidation {
		ev.Inline = true
		ev.Field = apiErr.Field
	} else {
		ev.Transient = true
	}

	m.mu.Lock()
	ev.ConversationID = m.conv.ID
	m.mu.Unlock()

	m.notify(ev)
}
