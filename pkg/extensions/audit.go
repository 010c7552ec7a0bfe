// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"time"
)

// AuditEvent records one security-relevant moment in a session's
// lifecycle: a login, a blocked message, a session created or
// cancelled. server.Service emits one on every handleCreateSession
// call and every handleSubmitMessage call the MessageFilter blocks.
//
// Event types in use: "auth.failed", "session.create", "chat.blocked".
type AuditEvent struct {
	// EventType categorizes the event: "category.action".
	EventType string

	// Timestamp is when the event occurred, always UTC.
	Timestamp time.Time

	// UserID identifies who performed the action; "anonymous" if the
	// request carried no validated identity.
	UserID string

	// Action describes the operation attempted: "create", "send",
	// "authenticate".
	Action string

	// ResourceType is the resource category, almost always "session".
	ResourceType string

	// ResourceID is the session id the event concerns.
	ResourceID string

	// Outcome is "success", "failure", or "blocked".
	Outcome string

	// Metadata holds event-specific detail: the blocked message's
	// BlockReason, the failed auth error text, the created session's
	// repo name.
	Metadata map[string]any
}

// AuditFilter describes criteria for AuditLogger.Query. All fields are
// optional; non-zero fields are combined with AND logic.
type AuditFilter struct {
	EventTypes   []string
	UserID       string
	StartTime    time.Time
	EndTime      time.Time
	ResourceType string
	ResourceID   string
	Outcome      string
	Limit        int
	Offset       int
}

// AuditLogger records AuditEvents for compliance and incident
// investigation. Implementations must be safe for concurrent use and
// should return quickly — server.Service calls Log synchronously from
// the request goroutine.
//
// The open source NopAuditLogger discards every event, appropriate for
// a local deployment with no audit requirement.
type AuditLogger interface {
	// Log records event, setting Timestamp if it's zero.
	Log(ctx context.Context, event AuditEvent) error

	// Query retrieves events matching filter, ordered by Timestamp
	// descending.
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)

	// Flush persists any buffered events. A no-op for synchronous
	// implementations; callers should invoke it before shutdown.
	Flush(ctx context.Context) error
}

// NopAuditLogger is the open source default: it discards every event.
type NopAuditLogger struct{}

// Log always returns nil without recording event.
func (l *NopAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	return nil
}

// Query always returns an empty slice.
func (l *NopAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

// Flush is a no-op; nothing is buffered.
func (l *NopAuditLogger) Flush(ctx context.Context) error {
	return nil
}

var _ AuditLogger = (*NopAuditLogger)(nil)
