// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"errors"
)

// ErrMessageBlocked is the error a caller should surface when a
// MessageFilter's result has WasBlocked set.
var ErrMessageBlocked = errors.New("message blocked by filter")

// FilterResult is what a MessageFilter call returns: the message as
// received, the message after any transformation, and whether it was
// rejected outright.
type FilterResult struct {
	// Original is the text before filtering.
	Original string

	// Filtered is the text after filtering. Equals Original unless
	// WasModified.
	Filtered string

	// WasModified reports whether the filter changed the text.
	WasModified bool

	// WasBlocked reports whether the filter rejected the message
	// entirely. If true, Filtered must not be used.
	WasBlocked bool

	// BlockReason explains why, when WasBlocked is true.
	BlockReason string

	// Detections lists what the filter found, for audit logging.
	Detections []Detection
}

// Detection describes one item a MessageFilter found in a message.
type Detection struct {
	// Type categorizes what was found: "pii", "secret",
	// "prompt_injection".
	Type string

	// Location describes where in the message it was found.
	Location string

	// Action describes what was done: "redacted", "blocked", "flagged".
	Action string

	// Original is the detected content itself. Only populate this in a
	// debug build — it may contain sensitive data.
	Original string

	// Replacement is what the content was replaced with, if Action is
	// "redacted".
	Replacement string
}

// MessageFilter runs chat text through a content policy at the two
// points text crosses the Decision Core's trust boundary.
//
// server.Service calls FilterInput on every handleSubmitMessage
// request before the text becomes a user Exchange via
// AppendUserMessage — a block short-circuits the request with 403
// before any Agent Loop turn runs. FilterOutput and FilterContext are
// exposed for a caller building its own response-side filtering or
// retrieval-augmented context injection on top of this package; the
// open source server doesn't call them itself.
//
// The open source NopMessageFilter passes every message through
// unchanged. A deployment handling regulated data would implement this
// to redact PII, block policy violations, or flag prompt-injection
// attempts before the text reaches the model.
type MessageFilter interface {
	// FilterInput processes a user message before it becomes a user
	// Exchange. A non-nil error means the filter itself failed, not
	// that the message was blocked — check WasBlocked for that.
	FilterInput(ctx context.Context, message string) (*FilterResult, error)

	// FilterOutput processes a model response before it is returned to
	// a caller.
	FilterOutput(ctx context.Context, message string) (*FilterResult, error)

	// FilterContext processes text being injected into a session's
	// context (a system prompt addition, retrieved document) before
	// use.
	FilterContext(ctx context.Context, contextMsg string) (*FilterResult, error)
}

// NopMessageFilter is the open source default: it passes every message
// through unchanged.
type NopMessageFilter struct{}

// FilterInput returns message unchanged.
func (f *NopMessageFilter) FilterInput(ctx context.Context, message string) (*FilterResult, error) {
	return &FilterResult{Original: message, Filtered: message}, nil
}

// FilterOutput returns message unchanged.
func (f *NopMessageFilter) FilterOutput(ctx context.Context, message string) (*FilterResult, error) {
	return &FilterResult{Original: message, Filtered: message}, nil
}

// FilterContext returns contextMsg unchanged.
func (f *NopMessageFilter) FilterContext(ctx context.Context, contextMsg string) (*FilterResult, error) {
	return &FilterResult{Original: contextMsg, Filtered: contextMsg}, nil
}

var _ MessageFilter = (*NopMessageFilter)(nil)
