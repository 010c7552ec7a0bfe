// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"time"

	"github.com/google/uuid"
)

// StreamEventType names one kind of event a StreamRenderer can receive.
// decisionctl's events command maps each events.Kind from a session's
// Event Stream directly onto the matching On* call, one per type; a
// bufferStreamRenderer records one of these per call for test
// inspection via Events().
type StreamEventType string

const (
	StreamEventStatus   StreamEventType = "status"
	StreamEventToken    StreamEventType = "token"
	StreamEventThinking StreamEventType = "thinking"
	StreamEventDone     StreamEventType = "done"
	StreamEventError    StreamEventType = "error"
)

// String returns the event type's wire name.
func (t StreamEventType) String() string {
	return string(t)
}

// IsTerminal reports whether an event of this type ends a stream: done
// and error are terminal, everything else may be followed by more
// events.
func (t StreamEventType) IsTerminal() bool {
	return t == StreamEventDone || t == StreamEventError
}

// StreamEvent is one event a bufferStreamRenderer records for later
// inspection — the in-memory counterpart to the On* calls a
// terminalStreamRenderer renders immediately and discards.
type StreamEvent struct {
	Id        string
	CreatedAt int64
	Type      StreamEventType
	Content   string
	Message   string
	SessionID string
	Error     string
}

// CreatedAtTime returns CreatedAt as a time.Time.
func (e StreamEvent) CreatedAtTime() time.Time {
	return time.UnixMilli(e.CreatedAt)
}

// IsTerminal reports whether this event ends the stream.
func (e StreamEvent) IsTerminal() bool {
	return e.Type.IsTerminal()
}

func newEvent(t StreamEventType) StreamEvent {
	return StreamEvent{
		Id:        uuid.New().String(),
		CreatedAt: time.Now().UnixMilli(),
		Type:      t,
	}
}

// NewStatusEvent builds a status event carrying message.
func NewStatusEvent(message string) StreamEvent {
	e := newEvent(StreamEventStatus)
	e.Message = message
	return e
}

// NewTokenEvent builds a token event carrying content.
func NewTokenEvent(content string) StreamEvent {
	e := newEvent(StreamEventToken)
	e.Content = content
	return e
}

// NewThinkingEvent builds a thinking event carrying content.
func NewThinkingEvent(content string) StreamEvent {
	e := newEvent(StreamEventThinking)
	e.Content = content
	return e
}

// NewDoneEvent builds a done event carrying sessionID.
func NewDoneEvent(sessionID string) StreamEvent {
	e := newEvent(StreamEventDone)
	e.SessionID = sessionID
	return e
}

// NewErrorEvent builds an error event carrying errMsg.
func NewErrorEvent(errMsg string) StreamEvent {
	e := newEvent(StreamEventError)
	e.Error = errMsg
	return e
}

// StreamResult is the aggregated outcome of rendering one event stream:
// the reassembled answer text, any evaluation commentary, and timing
// statistics a caller can use for latency reporting. A StreamRenderer's
// Result() method returns one of these after Finalize().
type StreamResult struct {
	Id          string
	CreatedAt   int64
	CompletedAt int64

	RequestID string
	SessionID string

	Answer   string
	Thinking string
	Error    string

	TotalTokens    int
	ThinkingTokens int
	TotalEvents    int
	FirstTokenAt   int64
}

// NewStreamResult returns a StreamResult stamped with a fresh Id and
// the current time as CreatedAt.
func NewStreamResult() *StreamResult {
	return &StreamResult{
		Id:        uuid.New().String(),
		CreatedAt: time.Now().UnixMilli(),
	}
}

// NewStreamResultWithRequestID is NewStreamResult with RequestID set,
// for correlating a result back to the HTTP request that started it.
func NewStreamResultWithRequestID(requestID string) *StreamResult {
	r := NewStreamResult()
	r.RequestID = requestID
	return r
}

// HasError reports whether the stream ended in an error.
func (r StreamResult) HasError() bool {
	return r.Error != ""
}

// Duration is the time between CreatedAt and CompletedAt, or zero if
// either is unset.
func (r StreamResult) Duration() time.Duration {
	if r.CreatedAt == 0 || r.CompletedAt == 0 {
		return 0
	}
	return time.Duration(r.CompletedAt-r.CreatedAt) * time.Millisecond
}

// TimeToFirstToken is the time between CreatedAt and the first OnToken
// call, or zero if either is unset.
func (r StreamResult) TimeToFirstToken() time.Duration {
	if r.CreatedAt == 0 || r.FirstTokenAt == 0 {
		return 0
	}
	return time.Duration(r.FirstTokenAt-r.CreatedAt) * time.Millisecond
}

// TokensPerSecond is TotalTokens divided by Duration, or zero if the
// stream produced no tokens or had zero duration.
func (r StreamResult) TokensPerSecond() float64 {
	d := r.Duration()
	if r.TotalTokens == 0 || d <= 0 {
		return 0
	}
	return float64(r.TotalTokens) / d.Seconds()
}

func (r StreamResult) CreatedAtTime() time.Time   { return time.UnixMilli(r.CreatedAt) }
func (r StreamResult) CompletedAtTime() time.Time { return time.UnixMilli(r.CompletedAt) }

// FirstTokenAtTime returns FirstTokenAt as a time.Time, or the zero
// time.Time if no token arrived.
func (r StreamResult) FirstTokenAtTime() time.Time {
	if r.FirstTokenAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.FirstTokenAt)
}
