// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when authentication or authorization
// fails. Implementations should wrap this error with additional
// context rather than returning it bare.
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo is the identity a successful AuthProvider.Validate call
// returns. server.Service stashes it in the gin context so audit
// events and AuthzProvider checks downstream can attribute an action
// to a user.
type AuthInfo struct {
	// UserID is the unique identifier for the authenticated caller.
	// Must never be empty.
	UserID string

	// Email is the caller's email address, if the identity provider
	// supplies one.
	Email string

	// Roles are the caller's role memberships, consulted by
	// AuthzProvider implementations that do RBAC.
	Roles []string

	// Metadata holds provider-specific claims (group membership, MFA
	// status, the identity provider's own session id) that don't merit
	// a field on AuthInfo itself.
	Metadata map[string]any
}

// HasRole reports whether the user has the given role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates a bearer token and returns the caller's
// identity. Implementations must be safe for concurrent use.
//
// The open source NopAuthProvider accepts any token (including the
// empty string) and returns a fixed "local-user" identity with admin
// rights, so decisionctl works against a standalone decisioncored with
// no identity infrastructure configured. A deployment that fronts
// decisioncored with its own SSO would implement this against that
// provider's token-introspection endpoint.
type AuthProvider interface {
	// Validate checks token and returns the caller's identity, or
	// ErrUnauthorized (wrapped) if the token is missing or invalid.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// AuthzRequest describes one authorization check: can User perform
// Action against the resource named by ResourceType/ResourceID.
//
// server.Service issues these for session creation (Action "create"),
// message submission (Action "submit" / ResourceType "session" /
// ResourceID the session's id, for POST /v1/sessions/:id/messages), and
// the cancel, pause and resume routes. The snapshot and events routes
// make no authorization check.
type AuthzRequest struct {
	// User is the caller, as returned by AuthProvider.Validate.
	User *AuthInfo

	// Action is the operation being attempted: "create", "submit",
	// "cancel", "pause", "resume".
	Action string

	// ResourceType is the resource category: "session".
	ResourceType string

	// ResourceID is the specific session id, or empty for an action
	// (like "create") that isn't scoped to an existing resource.
	ResourceID string
}

// AuthzProvider decides whether an authenticated caller may perform an
// action. Implementations must be safe for concurrent use.
//
// The open source NopAuthzProvider allows everything, appropriate for
// a single-user local deployment. A multi-tenant deployment would
// implement this to confirm the caller owns (or was shared) the
// session named by ResourceID before letting it submit messages,
// cancel, pause, or resume.
type AuthzProvider interface {
	// Authorize returns nil if req.User may perform req.Action,
	// ErrUnauthorized (wrapped) otherwise.
	Authorize(ctx context.Context, req AuthzRequest) error
}

// NopAuthProvider is the open source default: every token, including
// the empty string, authenticates as a fixed local admin user.
type NopAuthProvider struct{}

// Validate always succeeds as "local-user" with the "admin" role.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Roles:  []string{"admin"},
	}, nil
}

// NopAuthzProvider is the open source default: every action is
// permitted.
type NopAuthzProvider struct{}

// Authorize always returns nil.
func (p *NopAuthzProvider) Authorize(_ context.Context, _ AuthzRequest) error {
	return nil
}

var (
	_ AuthProvider  = (*NopAuthProvider)(nil)
	_ AuthzProvider = (*NopAuthzProvider)(nil)
)
