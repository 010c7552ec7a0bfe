// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"context"
	"sync"
)

// Capacity is the fixed buffer size of the Event Stream channel (§4.8).
const Capacity = 32

// Stream is the bounded, cancellable channel of Event values described
// in §4.8. Exactly one goroutine (the agent loop or tree controller
// driving a session) may produce into a Stream and must call Close
// exactly once when it is done; any number of goroutines may consume
// from Events().
type Stream struct {
	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewStream creates a Stream with the fixed capacity of §4.8.
func NewStream() *Stream {
	return &Stream{
		ch:   make(chan Event, Capacity),
		done: make(chan struct{}),
	}
}

// Send delivers ev to the channel. While the channel's Capacity buffer is
// full it blocks (this is the backpressure point of §5) until there is
// room, ctx is cancelled, or the stream has been closed. It returns false in the latter two cases; per §4.8 the
// producer must then treat this as a consumer disconnect and proceed to
// cancel the session.
func (s *Stream) Send(ctx context.Context, ev Event) bool {
	select {
	case s.ch <- ev:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Events returns the receive-only channel consumers iterate until it is
// closed.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Close signals producers to stop (via done) and closes the delivery
// channel. Must be called by the single producer goroutine only, after
// its final Send has returned.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		close(s.ch)
	})
}
