// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sessionstatus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckTransition_HappyPaths(t *testing.T) {
	cases := []struct{ from, to Status }{
		{StatusIdle, StatusRunning},
		{StatusIdle, StatusCancelled},
		{StatusRunning, StatusIdle},
		{StatusRunning, StatusPaused},
		{StatusPaused, StatusRunning},
		{StatusRunning, StatusCompleted},
		{StatusRunning, StatusCancelled},
		{StatusRunning, StatusErrored},
		{StatusPaused, StatusCancelled},
		{StatusPaused, StatusErrored},
	}
	for _, c := range cases {
		assert.NoError(t, CheckTransition(c.from, c.to), "%s -> %s should be valid", c.from, c.to)
	}
}

func TestCheckTransition_RejectsSkippingRunning(t *testing.T) {
	assert.Error(t, CheckTransition(StatusIdle, StatusPaused))
	assert.Error(t, CheckTransition(StatusIdle, StatusCompleted))
}

func TestCheckTransition_TerminalStatesHaveNoOutgoingTransitions(t *testing.T) {
	for _, terminal := range []Status{StatusCompleted, StatusCancelled, StatusErrored} {
		for _, to := range AllStatuses() {
			if to == terminal {
				continue
			}
			assert.Error(t, CheckTransition(terminal, to), "%s -> %s must be rejected", terminal, to)
		}
	}
}

func TestCheckTransition_PausedCannotReturnDirectlyToIdle(t *testing.T) {
	assert.Error(t, CheckTransition(StatusPaused, StatusIdle))
}
