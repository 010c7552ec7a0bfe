// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the Decision Core's open-core extension
// points: hooks a deployment can override to add authentication,
// authorization, audit logging, or message filtering around sessions
// and exchanges without touching internal/decisioncore itself.
//
// The open source build uses no-op defaults for all four hooks, so
// decisioncored runs standalone with no identity provider, no audit
// sink, and no content filter configured.
//
//   - auth.go: token validation and per-action authorization
//     (AuthProvider, AuthzProvider)
//   - audit.go: structured logging of session/exchange lifecycle
//     events (AuditLogger)
//   - filter.go: transformation or rejection of inbound chat text
//     before it reaches AppendUserMessage (MessageFilter)
//
// # Usage
//
//	opts := extensions.DefaultOptions()
//	svc, err := server.New(server.Config{Extensions: opts, ...})
//
// A caller wanting real enforcement overrides individual fields rather
// than all four:
//
//	opts := extensions.DefaultOptions().
//	    WithAuth(myTokenValidator).
//	    WithAudit(mySIEMLogger)
//
// All interface implementations must be safe for concurrent use — a
// server.Service invokes them from every request goroutine.
package extensions

// ServiceOptions groups the extension hooks server.Service accepts via
// server.Config.Extensions. A zero value is filled in with
// DefaultOptions()'s no-op implementations by server.New, so a caller
// only needs to set the fields it actually overrides.
type ServiceOptions struct {
	// AuthProvider validates the bearer token on every route.
	// Default: NopAuthProvider (accepts any token as "local-user").
	AuthProvider AuthProvider

	// AuthzProvider checks whether the authenticated caller may perform
	// a given action against a session or its resources.
	// Default: NopAuthzProvider (allows everything).
	AuthzProvider AuthzProvider

	// AuditLogger records session/exchange lifecycle events.
	// Default: NopAuditLogger (discards everything).
	AuditLogger AuditLogger

	// MessageFilter runs inbound chat text through a content policy
	// before it becomes a user Exchange.
	// Default: NopMessageFilter (passes text through unchanged).
	MessageFilter MessageFilter
}

// DefaultOptions returns the ServiceOptions a standalone decisioncored
// process runs with: no identity provider, no authorization policy, no
// audit sink, no content filter.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider:  &NopAuthProvider{},
		AuthzProvider: &NopAuthzProvider{},
		AuditLogger:   &NopAuditLogger{},
		MessageFilter: &NopMessageFilter{},
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAuthz returns a copy of opts with the given AuthzProvider.
func (opts ServiceOptions) WithAuthz(provider AuthzProvider) ServiceOptions {
	opts.AuthzProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// WithFilter returns a copy of opts with the given MessageFilter.
func (opts ServiceOptions) WithFilter(filter MessageFilter) ServiceOptions {
	opts.MessageFilter = filter
	return opts
}
