// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session implements the Session aggregate (C5): the root that
// binds an exchange log, an action-node tree, user context, and status
// together, and mediates every mutation a driver (agent loop or tree
// controller) makes against them.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agentcore/decisioncore/internal/decisioncore/exchange"
	"github.com/agentcore/decisioncore/internal/decisioncore/node"
	"github.com/agentcore/decisioncore/internal/decisioncore/sessionstatus"
	"github.com/agentcore/decisioncore/internal/decisioncore/tree"
	"github.com/google/uuid"
)

// ErrBusy is returned by AppendUserMessage when the session is Running or
// another driver is already active on it (§4.6 "Ordering and reentrancy").
var ErrBusy = errors.New("session: another driver is already active")

// ErrNotAppendable is returned by AppendUserMessage when status is a
// terminal one (neither Idle, Paused nor Running).
var ErrNotAppendable = errors.New("session: cannot append a user message in the current status")

// ErrNotQuiescent is returned by Snapshot when status is Running (I4
// requires a quiescent point).
var ErrNotQuiescent = errors.New("session: snapshot requires a quiescent status")

// UserContext is a structured description of the editor state presented
// to tools and to prompt rendering (§3).
type UserContext struct {
	WorkspaceRoot string
	OpenFiles     []string
	VisibleRanges []string
	Shell         string
}

// RepoRef names the repository a session is scoped to.
type RepoRef struct {
	Name string
	Root string
}

// ModelConfig selects the model identifiers used for "fast" and "slow"
// work (§3, §6's configuration surface).
type ModelConfig struct {
	Fast string
	Slow string
}

// Session is the aggregate root of §4.5: it owns the exchange log, the
// action-node tree, and the status DAG, and grants exclusive access to
// exactly one driver goroutine at a time (P2).
type Session struct {
	mu sync.RWMutex

	id           string
	userContext  UserContext
	repoRef      RepoRef
	projectLabels []string
	modelConfig  ModelConfig

	exchanges  *exchange.Log
	actionTree *tree.Tree
	status     sessionstatus.Status

	createdAt    time.Time
	lastActiveAt time.Time

	cancel context.CancelFunc
	ctx    context.Context

	inProgress bool
}

// New creates a Session in StatusIdle with an empty exchange log and
// action tree, following the teacher's NewSession constructor
// (services/code_buddy/agent/session.go) adapted to this aggregate's
// fields.
func New(repoRef RepoRef, userContext UserContext, projectLabels []string, modelConfig ModelConfig) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	return &Session{
		id:            uuid.NewString(),
		userContext:   userContext,
		repoRef:       repoRef,
		projectLabels: append([]string(nil), projectLabels...),
		modelConfig:   modelConfig,
		exchanges:     exchange.New(),
		actionTree:    tree.New(),
		status:        sessionstatus.StatusIdle,
		createdAt:     now,
		lastActiveAt:  now,
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (s *Session) ID() string             { return s.id }
func (s *Session) Exchanges() *exchange.Log { return s.exchanges }
func (s *Session) Tree() *tree.Tree       { return s.actionTree }

// Status returns the session's current status.
func (s *Session) Status() sessionstatus.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Context returns the cancellation context observed by the driver and
// every tool invocation it makes (§5 "Cancellation").
func (s *Session) Context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

// SessionID satisfies tooling.SessionView.
func (s *Session) SessionID() string { return s.id }

// WorkspaceRoot satisfies tooling.SessionView.
func (s *Session) WorkspaceRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userContext.WorkspaceRoot
}

// OpenFiles satisfies tooling.SessionView.
func (s *Session) OpenFiles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.userContext.OpenFiles...)
}

// ProjectLabels satisfies tooling.SessionView.
func (s *Session) ProjectLabels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.projectLabels...)
}

// ModelConfig returns the session's selected model identifiers.
func (s *Session) ModelConfig() ModelConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modelConfig
}

// TryAcquire attempts to acquire exclusive driver access (P2). Returns
// false if another driver is already active. Grounded directly on the
// teacher's Session.TryAcquire/Release pattern.
func (s *Session) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inProgress {
		return false
	}
	s.inProgress = true
	s.lastActiveAt = time.Now()
	return true
}

// Release releases exclusive driver access.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProgress = false
	s.lastActiveAt = time.Now()
}

// AppendUserMessage appends a User exchange, failing with ErrBusy while
// the session is Running or held by a driver, and with ErrNotAppendable
// if status is otherwise not Idle or Paused. Transitioning
// Paused -> Idle is NOT implied — callers must Resume explicitly before
// driving the loop. A user message appended while Paused supersedes the
// paused trajectory's tail so the model sees the interruption.
func (s *Session) AppendUserMessage(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inProgress || s.status == sessionstatus.StatusRunning {
		return "", ErrBusy
	}
	if s.status != sessionstatus.StatusIdle && s.status != sessionstatus.StatusPaused {
		return "", fmt.Errorf("%w: status is %s", ErrNotAppendable, s.status)
	}

	if s.status == sessionstatus.StatusPaused {
		s.exchanges.MarkLastSuperseded()
	}

	appended := s.exchanges.Append(exchange.Exchange{Role: exchange.RoleUser, Payload: exchange.Payload{Text: text}})
	s.lastActiveAt = time.Now()
	return appended.ID, nil
}

// Begin transitions Idle or Paused -> Running, for a driver about to
// start an iteration. It does not itself acquire exclusivity; callers
// combine Begin with TryAcquire.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := sessionstatus.CheckTransition(s.status, sessionstatus.StatusRunning); err != nil {
		return err
	}
	s.status = sessionstatus.StatusRunning
	s.lastActiveAt = time.Now()
	return nil
}

// Idle transitions Running -> Idle: the trajectory yielded with no
// further tool call (§8 scenario 1).
func (s *Session) Idle() error {
	return s.transition(sessionstatus.StatusIdle)
}

// Pause transitions Running -> Paused. Pausing is cooperative: an
// in-flight tool invocation is allowed to finish; the driver observes
// the new status at the top of its next iteration and yields (§4.5).
func (s *Session) Pause() error {
	return s.transition(sessionstatus.StatusPaused)
}

// Resume transitions Paused -> Running.
func (s *Session) Resume() error {
	return s.transition(sessionstatus.StatusRunning)
}

// Complete transitions Running -> Completed, once a non-pausing
// terminating tool has succeeded.
func (s *Session) Complete() error {
	return s.transition(sessionstatus.StatusCompleted)
}

// MarkErrored transitions the session to Errored from whatever status
// it is currently in permitted by the DAG (Running or Paused).
func (s *Session) MarkErrored() error {
	return s.transition(sessionstatus.StatusErrored)
}

// Cancel transitions the session to Cancelled and cancels the context
// observed by the driver and every in-flight tool invocation. It is
// idempotent: cancelling an already-cancelled or already-terminal
// session is a no-op, matching §5's "Cancellation is idempotent."
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return nil
	}
	if err := sessionstatus.CheckTransition(s.status, sessionstatus.StatusCancelled); err != nil {
		return err
	}
	s.status = sessionstatus.StatusCancelled
	s.lastActiveAt = time.Now()
	s.cancel()
	return nil
}

func (s *Session) transition(to sessionstatus.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := sessionstatus.CheckTransition(s.status, to); err != nil {
		return err
	}
	s.status = to
	s.lastActiveAt = time.Now()
	return nil
}

// Snapshot is the session's flattened, serializable state: its
// metadata, exchanges, and every action node with its parent id
// (§6 "Persisted state").
type Snapshot struct {
	Version       int
	SessionID     string
	Status        sessionstatus.Status
	RepoRef       RepoRef
	UserContext   UserContext
	ProjectLabels []string
	ModelConfig   ModelConfig
	Exchanges     []exchange.Exchange
	Roots         []string
	Nodes         []nodeSnapshot
	CreatedAt     time.Time
	LastActiveAt  time.Time
}

type nodeSnapshot struct {
	ID          string
	ParentID    string
	Depth       int
	ChildrenIDs []string
	ToolName    string
	Arguments   map[string]any
	ObsText     string
	ObsData     any
	ObsErrKind  string
	ObsErrDetail string
	State       int
	Terminal    bool
	Reward      float64
	RewardSet   bool
	Visits      int64
}

// SnapshotVersion is the current persisted-state schema version (§6).
// The Session Store rejects any snapshot carrying an older or newer
// version with UnsupportedSnapshot.
const SnapshotVersion = 1

// Snapshot captures the session's full state for durable persistence
// (I4, P6). It fails with ErrNotQuiescent unless status is quiescent
// (not Running).
func (s *Session) Snapshot() (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.status == sessionstatus.StatusRunning {
		return Snapshot{}, ErrNotQuiescent
	}

	roots := s.actionTree.Roots()
	rootIDs := make([]string, len(roots))
	for i, r := range roots {
		rootIDs[i] = r.ID()
	}

	all := s.actionTree.All()
	nodes := make([]nodeSnapshot, 0, len(all))
	for _, n := range all {
		snap := n.ToSnapshot()
		nodes = append(nodes, nodeSnapshot{
			ID:           snap.ID,
			ParentID:     snap.ParentID,
			Depth:        snap.Depth,
			ChildrenIDs:  snap.ChildrenIDs,
			ToolName:     snap.Action.ToolName,
			Arguments:    snap.Action.Arguments,
			ObsText:      snap.Observation.Text,
			ObsData:      snap.Observation.Data,
			ObsErrKind:   snap.Observation.ErrorKind,
			ObsErrDetail: snap.Observation.ErrorDetail,
			State:        int(snap.State),
			Terminal:     snap.Terminal,
			Reward:       snap.Reward,
			RewardSet:    snap.RewardSet,
			Visits:       snap.Visits,
		})
	}

	return Snapshot{
		Version:       SnapshotVersion,
		SessionID:     s.id,
		Status:        s.status,
		RepoRef:       s.repoRef,
		UserContext:   s.userContext,
		ProjectLabels: append([]string(nil), s.projectLabels...),
		ModelConfig:   s.modelConfig,
		Exchanges:     s.exchanges.All(),
		Roots:         rootIDs,
		Nodes:         nodes,
		CreatedAt:     s.createdAt,
		LastActiveAt:  s.lastActiveAt,
	}, nil
}

// ErrUnsupportedSnapshot is returned by Restore when the snapshot's
// version is older or newer than SnapshotVersion.
var ErrUnsupportedSnapshot = errors.New("session: unsupported snapshot version")

// Restore rebuilds a Session from a Snapshot (P6). Per I4, a restored
// session's status is always Idle or Paused; Restore rejects a snapshot
// whose recorded status is Running (it could only have been produced by
// a bug, since Snapshot itself refuses to run against a Running status).
func Restore(snap Snapshot) (*Session, error) {
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedSnapshot, snap.Version)
	}
	if snap.Status == sessionstatus.StatusRunning {
		return nil, fmt.Errorf("session: restored status must be Idle or Paused, got %s", snap.Status)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:            snap.SessionID,
		userContext:   snap.UserContext,
		repoRef:       snap.RepoRef,
		projectLabels: append([]string(nil), snap.ProjectLabels...),
		modelConfig:   snap.ModelConfig,
		exchanges:     exchange.New(),
		actionTree:    tree.New(),
		status:        snap.Status,
		createdAt:     snap.CreatedAt,
		lastActiveAt:  snap.LastActiveAt,
		ctx:           ctx,
		cancel:        cancel,
	}

	for _, e := range snap.Exchanges {
		s.exchanges.Append(e)
	}

	byID := make(map[string]*restoredNode, len(snap.Nodes))
	for _, ns := range snap.Nodes {
		byID[ns.ID] = &restoredNode{snap: ns}
	}
	// Insert roots first, then children in the order recorded, so every
	// AddChild call finds its parent already present in the tree.
	inserted := make(map[string]bool, len(snap.Nodes))
	var insertAll func(ns nodeSnapshot) error
	insertAll = func(ns nodeSnapshot) error {
		if inserted[ns.ID] {
			return nil
		}
		if ns.ParentID != "" && !inserted[ns.ParentID] {
			parent, ok := byID[ns.ParentID]
			if !ok {
				return fmt.Errorf("session: snapshot references missing parent %s", ns.ParentID)
			}
			if err := insertAll(parent.snap); err != nil {
				return err
			}
		}
		n := toNode(ns)
		var err error
		if ns.ParentID == "" {
			err = s.actionTree.AddRoot(n)
		} else {
			err = s.actionTree.AddChild(ns.ParentID, n)
		}
		if err != nil {
			return err
		}
		inserted[ns.ID] = true
		return nil
	}
	for _, ns := range snap.Nodes {
		if err := insertAll(ns); err != nil {
			return nil, err
		}
	}

	return s, nil
}

type restoredNode struct{ snap nodeSnapshot }

// toNode rebuilds a node with an empty children list: tree.AddRoot /
// tree.AddChild repopulate children_ids themselves as each node is
// reinserted, so seeding them here would double them up.
func toNode(ns nodeSnapshot) *node.Node {
	return node.FromSnapshot(node.Snapshot{
		ID:       ns.ID,
		ParentID: ns.ParentID,
		Depth:    ns.Depth,
		Action: node.Action{
			ToolName:  ns.ToolName,
			Arguments: ns.Arguments,
		},
		Observation: node.Observation{
			Text:        ns.ObsText,
			Data:        ns.ObsData,
			ErrorKind:   ns.ObsErrKind,
			ErrorDetail: ns.ObsErrDetail,
		},
		State:     node.State(ns.State),
		Terminal:  ns.Terminal,
		Reward:    ns.Reward,
		RewardSet: ns.RewardSet,
		Visits:    ns.Visits,
	})
}
