// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry implements the Tool Registry (C1): a namespaced,
// process-wide catalog mapping a tool identifier to its invocation
// schema and executor.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/agentcore/decisioncore/internal/decisioncore/tooling"
)

var (
	// ErrDuplicateTool is returned by Register when name is already present.
	ErrDuplicateTool = errors.New("duplicate tool")

	// ErrUnknownTool is returned by Lookup when name is not registered.
	ErrUnknownTool = errors.New("unknown tool")
)

// Registry is the process-wide, effectively-read-only-after-construction
// catalog of Tool Descriptors. It is constructed once per process and
// shared across every concurrent session; all its exported methods are
// safe for concurrent use.
//
// Thread Safety: Registry is fully thread-safe.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]tooling.Descriptor
	order  []string // insertion order, for List
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string]tooling.Descriptor),
	}
}

// Register inserts a Tool Descriptor. It fails with ErrDuplicateTool if
// a descriptor under the same name is already registered.
func (r *Registry) Register(d tooling.Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("%w: tool name must not be empty", ErrDuplicateTool)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[d.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, d.Name)
	}

	r.byName[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Lookup returns the descriptor registered under name, or ErrUnknownTool.
func (r *Registry) Lookup(name string) (tooling.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byName[name]
	if !ok {
		return tooling.Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return d, nil
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok
}

// List returns every registered descriptor in insertion order. This
// order is stable and is what the system-prompt renderer relies on when
// presenting tools to the model (§4.1): re-registering a tool under the
// same name does not change its position.
func (r *Registry) List() []tooling.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]tooling.Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns every registered tool name in insertion order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
