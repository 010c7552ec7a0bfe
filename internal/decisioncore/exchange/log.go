// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package exchange implements the Exchange Log (C4): an append-only
// session transcript with O(1) append and O(n) serialization.
package exchange

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role is the speaker of one Exchange entry.
type Role int

const (
	RoleUser Role = iota
	RoleAssistant
	RoleToolResult
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	case RoleToolResult:
		return "tool_result"
	default:
		return "unknown"
	}
}

// Payload carries the role-specific content of an Exchange: free text for
// User/Assistant turns, or a tool name plus structured result/detail for
// ToolResult turns (including synthesized parse-failure observations).
type Payload struct {
	Text     string
	ToolName string
	Result   any
}

// Exchange is one entry in the session transcript.
type Exchange struct {
	ID           string
	Role         Role
	Payload      Payload
	CreatedAt    time.Time
	ActionNodeID string // optional: links to the node that produced this entry
	Superseded   bool
	Terminal     bool
}

// Log is the append-only transcript described in §4.4. All exported
// methods are safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []Exchange
}

// New creates an empty Log.
func New() *Log {
	return &Log{}
}

// Append adds e to the end of the transcript, assigning an ID and
// timestamp if unset, and returns the stored copy. Entries are never
// reordered or removed (I1); the only permitted mutation is marking the
// terminal entry superseded, via MarkLastSuperseded.
func (l *Log) Append(e Exchange) Exchange {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return e
}

// All returns a defensive copy of every entry, in append order.
func (l *Log) All() []Exchange {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Exchange, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Last returns the most recent entry, or the zero value and false if the
// log is empty.
func (l *Log) Last() (Exchange, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return Exchange{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// ForPrompt returns the entries used to render a model transcript:
// every entry except those flagged Superseded, unless replay selects
// them back in.
func (l *Log) ForPrompt(includeSuperseded bool) []Exchange {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Exchange, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Superseded && !includeSuperseded {
			continue
		}
		out = append(out, e)
	}
	return out
}

// MarkLastSuperseded flags the most recent Assistant-or-ToolResult entry
// as superseded, used when a human interrupts an in-flight trajectory.
// It is a no-op if the log is empty or the last entry is a User message.
func (l *Log) MarkLastSuperseded() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Role == RoleUser {
			return
		}
		if !l.entries[i].Superseded {
			l.entries[i].Superseded = true
			return
		}
	}
}

// PathTranscript reconstructs the ordered transcript entries produced by
// a slice of action-node IDs, in log append order (the order of nodeIDs
// itself does not affect the result). Used by the tree
// controller to rebuild a trajectory prefix from root to a selected node
// (§4.7 expansion).
func (l *Log) PathTranscript(nodeIDs []string) []Exchange {
	want := make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		want[id] = true
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Exchange, 0, len(nodeIDs))
	for _, e := range l.entries {
		if e.ActionNodeID != "" && want[e.ActionNodeID] {
			out = append(out, e)
		}
	}
	return out
}
