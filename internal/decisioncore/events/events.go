// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events implements the Event Stream (C8): a bounded, cancellable
// channel of incremental events delivered to a transport adapter.
package events

import (
	"time"

	"github.com/agentcore/decisioncore/internal/decisioncore/exchange"
	"github.com/agentcore/decisioncore/internal/decisioncore/node"
	"github.com/agentcore/decisioncore/internal/decisioncore/sessionstatus"
)

// Kind tags which payload an Event carries.
type Kind int

const (
	KindExchangeAppended Kind = iota
	KindToolInvocationStarted
	KindToolInvocationChunk
	KindToolInvocationCompleted
	KindNodeEvaluated
	KindSessionStatusChanged
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindExchangeAppended:
		return "exchange_appended"
	case KindToolInvocationStarted:
		return "tool_invocation_started"
	case KindToolInvocationChunk:
		return "tool_invocation_chunk"
	case KindToolInvocationCompleted:
		return "tool_invocation_completed"
	case KindNodeEvaluated:
		return "node_evaluated"
	case KindSessionStatusChanged:
		return "session_status_changed"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Concrete payload types. Exactly one is held by Event.Data, matching
// the payload's Kind. Consumers do a type switch over Data, following
// the teacher's LoggingHandler convention.
type (
	ExchangeAppended struct {
		Exchange exchange.Exchange
	}
	ToolInvocationStarted struct {
		NodeID string
		Tool   string
	}
	ToolInvocationChunk struct {
		NodeID string
		Text   string
	}
	ToolInvocationCompleted struct {
		NodeID      string
		Observation node.Observation
		Failed      bool
	}
	NodeEvaluated struct {
		NodeID string
		Reward float64
	}
	SessionStatusChanged struct {
		Status sessionstatus.Status
	}
	ErrorData struct {
		Kind   string
		Detail string
	}
)

// Event is one tagged-union value delivered on the Event Stream.
type Event struct {
	Kind      Kind
	SessionID string
	Timestamp time.Time
	Data      any
}

func build(sessionID string, kind Kind, data any) Event {
	return Event{Kind: kind, SessionID: sessionID, Timestamp: time.Now(), Data: data}
}

func NewExchangeAppended(sessionID string, e exchange.Exchange) Event {
	return build(sessionID, KindExchangeAppended, ExchangeAppended{Exchange: e})
}

func NewToolInvocationStarted(sessionID, nodeID, tool string) Event {
	return build(sessionID, KindToolInvocationStarted, ToolInvocationStarted{NodeID: nodeID, Tool: tool})
}

func NewToolInvocationChunk(sessionID, nodeID, text string) Event {
	return build(sessionID, KindToolInvocationChunk, ToolInvocationChunk{NodeID: nodeID, Text: text})
}

func NewToolInvocationCompleted(sessionID, nodeID string, obs node.Observation, failed bool) Event {
	return build(sessionID, KindToolInvocationCompleted, ToolInvocationCompleted{NodeID: nodeID, Observation: obs, Failed: failed})
}

func NewNodeEvaluated(sessionID, nodeID string, reward float64) Event {
	return build(sessionID, KindNodeEvaluated, NodeEvaluated{NodeID: nodeID, Reward: reward})
}

func NewSessionStatusChanged(sessionID string, status sessionstatus.Status) Event {
	return build(sessionID, KindSessionStatusChanged, SessionStatusChanged{Status: status})
}

func NewError(sessionID, kind, detail string) Event {
	return build(sessionID, KindError, ErrorData{Kind: kind, Detail: detail})
}
