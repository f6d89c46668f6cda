// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// STREAMING: Line-buffered SSE parsing, invariant to network chunking

// =============================================================================
// PARSER CONSTANTS
// =============================================================================

const (
	// DoneMarker terminates an OpenAI-compatible stream.
	DoneMarker = "[DONE]"

	// MaxLineSize bounds a single buffered line (1MB).
	MaxLineSize = 1024 * 1024

	dataField = "data:"
)

// ErrLineTooLong is returned when a line exceeds MaxLineSize without a newline.
var ErrLineTooLong = errors.New("sse line exceeds maximum size")

// =============================================================================
// EVENTS
// =============================================================================

// EventKind classifies a parsed line.
type EventKind int

const (
	// EventChunk carries a decoded StreamChunk.
	EventChunk EventKind = iota
	// EventDone is the [DONE] terminator.
	EventDone
	// EventSkipped is a data line whose payload was not valid JSON.
	EventSkipped
)

// Event is the result of parsing one complete data line.
type Event struct {
	Kind  EventKind
	Chunk *StreamChunk

	// Raw is the payload after the data prefix, for skipped events.
	Raw string
	// Err is the decode failure, for skipped events.
	Err error
}

// =============================================================================
// PARSER
// =============================================================================

// Parser splits an SSE byte stream into events. Feeding the same bytes in any
// partition yields the same events. The zero value is ready to use.
//
// Parser is not safe for concurrent use.
type Parser struct {
	buf  []byte
	done bool
}

// NewParser creates a parser.
func NewParser() *Parser {
	return &Parser{}
}

// Done reports whether the [DONE] marker has been seen.
func (p *Parser) Done() bool {
	return p.done
}

// Feed appends data and returns the events of every complete line. The final
// incomplete line is kept for the next call. After [DONE] all input is
// discarded.
func (p *Parser) Feed(data []byte) ([]Event, error) {
	if p.done {
		return nil, nil
	}
	p.buf = append(p.buf, data...)

	var events []Event
	for !p.done {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		line := p.buf[:i]
		p.buf = p.buf[i+1:]
		if ev, ok := p.parseLine(line); ok {
			events = append(events, ev)
		}
	}

	if p.done {
		p.buf = nil
	} else if len(p.buf) > MaxLineSize {
		return events, fmt.Errorf("%w (%d bytes)", ErrLineTooLong, len(p.buf))
	}
	// Compact so a long stream does not pin its whole history
	if len(p.buf) == 0 {
		p.buf = nil
	}
	return events, nil
}

// Flush processes whatever remains in the buffer as a final line.
func (p *Parser) Flush() []Event {
	if p.done || len(p.buf) == 0 {
		p.buf = nil
		return nil
	}
	line := p.buf
	p.buf = nil
	if ev, ok := p.parseLine(line); ok {
		return []Event{ev}
	}
	return nil
}

// parseLine handles one line without its terminating newline. Lines that are
// not data lines (id, event, retry, comments, blank separators) yield nothing.
func (p *Parser) parseLine(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if !bytes.HasPrefix(line, []byte(dataField)) {
		return Event{}, false
	}

	payload := bytes.TrimSpace(line[len(dataField):])
	if len(payload) == 0 {
		return Event{}, false
	}
	if string(payload) == DoneMarker {
		p.done = true
		return Event{Kind: EventDone}, true
	}

	var chunk StreamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return Event{Kind: EventSkipped, Raw: string(payload), Err: err}, true
	}
	return Event{Kind: EventChunk, Chunk: &chunk}, true
}
