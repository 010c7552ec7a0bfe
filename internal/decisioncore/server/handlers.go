// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/agentcore/decisioncore/internal/decisioncore/session"
	"github.com/agentcore/decisioncore/pkg/extensions"
	"github.com/agentcore/decisioncore/pkg/validation"
)

// authInfoKey is the gin context key authMiddleware stores the
// validated extensions.AuthInfo under.
const authInfoKey = "decisioncore.authInfo"

// authMiddleware validates the bearer token in the Authorization header
// via the configured extensions.AuthProvider, following the teacher's
// open-core extension-point pattern: the open source default
// (NopAuthProvider) accepts every token, so this is a no-op until a
// caller supplies a real AuthProvider in Config.Extensions.
func (s *Service) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		info, err := s.ext.AuthProvider.Validate(c.Request.Context(), token)
		if err != nil {
			_ = s.ext.AuditLogger.Log(c.Request.Context(), extensions.AuditEvent{
				EventType: "auth.failed",
				Timestamp: time.Now().UTC(),
				Action:    "authenticate",
				Outcome:   "failure",
				Metadata:  map[string]any{"error": err.Error()},
			})
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(authInfoKey, info)
		c.Next()
	}
}

// authInfo returns the extensions.AuthInfo authMiddleware stashed for
// this request, or nil if none was set (should not happen once
// authMiddleware is installed, but handlers must not assume it).
func authInfo(c *gin.Context) *extensions.AuthInfo {
	if v, ok := c.Get(authInfoKey); ok {
		if info, ok := v.(*extensions.AuthInfo); ok {
			return info
		}
	}
	return nil
}

// auditUserID returns the authenticated user id stashed by
// authMiddleware, falling back to "anonymous" if none is present.
func auditUserID(c *gin.Context) string {
	if info := authInfo(c); info != nil && info.UserID != "" {
		return info.UserID
	}
	return "anonymous"
}

// authorize checks the caller's extensions.AuthzProvider before a
// session-scoped action proceeds, writing a 403 and returning false if
// it's denied. The open source NopAuthzProvider allows everything, so
// this is a no-op until a caller supplies a real AuthzProvider.
func (s *Service) authorize(c *gin.Context, action, sessionID string) bool {
	err := s.ext.AuthzProvider.Authorize(c.Request.Context(), extensions.AuthzRequest{
		User:         authInfo(c),
		Action:       action,
		ResourceType: "session",
		ResourceID:   sessionID,
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// upgrader follows the teacher's handler (services/orchestrator/handlers/
// websocket.go): CheckOrigin is left permissive since this is a local
// developer-facing API, not a public-Internet deployment.
var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

func sendJSON(ws *websocket.Conn, v any) error {
	if err := ws.WriteJSON(v); err != nil {
		slog.Warn("failed to write websocket json", "error", err)
		return err
	}
	return nil
}

// createSessionRequest is the body of POST /v1/sessions.
type createSessionRequest struct {
	RepoName      string   `json:"repo_name"`
	RepoRoot      string   `json:"repo_root"`
	WorkspaceRoot string   `json:"workspace_root"`
	OpenFiles     []string `json:"open_files"`
	VisibleRanges []string `json:"visible_ranges"`
	Shell         string   `json:"shell"`
	ProjectLabels []string `json:"project_labels"`
	ModelFast     string   `json:"model_fast"`
	ModelSlow     string   `json:"model_slow"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// handleCreateSession creates a new Session (§4.5) seeded from the
// request's repo/user-context/model fields, falling back to the
// server's configured model pair when the caller omits them.
func (s *Service) handleCreateSession(c *gin.Context) {
	if !s.authorize(c, "create", "") {
		return
	}

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateWorkspaceRoot(req.WorkspaceRoot); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateProjectLabels(req.ProjectLabels); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	modelCfg := s.cfg.Session.ToModelConfig()
	if req.ModelFast != "" {
		modelCfg.Fast = req.ModelFast
	}
	if req.ModelSlow != "" {
		modelCfg.Slow = req.ModelSlow
	}

	sess := session.New(
		session.RepoRef{Name: req.RepoName, Root: req.RepoRoot},
		session.UserContext{
			WorkspaceRoot: req.WorkspaceRoot,
			OpenFiles:     req.OpenFiles,
			VisibleRanges: req.VisibleRanges,
			Shell:         req.Shell,
		},
		req.ProjectLabels,
		modelCfg,
	)
	s.sessions.put(sess)

	_ = s.ext.AuditLogger.Log(c.Request.Context(), extensions.AuditEvent{
		EventType:    "session.create",
		Timestamp:    time.Now().UTC(),
		UserID:       auditUserID(c),
		Action:       "create",
		ResourceType: "session",
		ResourceID:   sess.ID(),
		Outcome:      "success",
		Metadata:     map[string]any{"repo_name": req.RepoName},
	})

	c.JSON(http.StatusCreated, createSessionResponse{
		SessionID: sess.ID(),
		Status:    sess.Status().String(),
	})
}

// submitMessageRequest is the body of POST /v1/sessions/:id/messages.
type submitMessageRequest struct {
	Text string `json:"text"`
}

type submitMessageResponse struct {
	ExchangeID string `json:"exchange_id"`
	Outcome    string `json:"outcome"`
	Status     string `json:"status"`
}

// handleSubmitMessage appends the caller's message to the session
// (§4.5 AppendUserMessage) and drives the Agent Loop synchronously to
// its next terminal Outcome, following the teacher's request/response
// handler shape (services/orchestrator/handlers) rather than the
// websocket streaming shape used for live event delivery.
func (s *Service) handleSubmitMessage(c *gin.Context) {
	sess, ok := s.sessions.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}
	if !s.authorize(c, "submit", sess.ID()) {
		return
	}

	var req submitMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filtered, err := s.ext.MessageFilter.FilterInput(c.Request.Context(), req.Text)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if filtered.WasBlocked {
		_ = s.ext.AuditLogger.Log(c.Request.Context(), extensions.AuditEvent{
			EventType:    "chat.blocked",
			Timestamp:    time.Now().UTC(),
			UserID:       auditUserID(c),
			Action:       "send",
			ResourceType: "message",
			ResourceID:   sess.ID(),
			Outcome:      "blocked",
			Metadata:     map[string]any{"reason": filtered.BlockReason},
		})
		c.JSON(http.StatusForbidden, gin.H{"error": filtered.BlockReason})
		return
	}

	exchangeID, err := sess.AppendUserMessage(c.Request.Context(), filtered.Filtered)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	stream, _ := s.eventStream(sess.ID())

	outcome, err := s.runLoop(c.Request.Context(), sess, stream)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, submitMessageResponse{
		ExchangeID: exchangeID,
		Outcome:    outcome.String(),
		Status:     sess.Status().String(),
	})
}

// handleStreamEvents upgrades to a websocket and forwards every Event
// the session's driver emits, following the teacher's upgrade/sendJSON
// loop (services/orchestrator/handlers/websocket.go). The session must
// already be driven by a concurrent call to handleSubmitMessage (or a
// future streaming variant) for any events to arrive; this handler is a
// pure fan-out and never itself drives the Agent Loop.
func (s *Service) handleStreamEvents(c *gin.Context) {
	if _, ok := s.sessions.get(c.Param("id")); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	stream, ok := s.eventStream(c.Param("id"))
	if !ok {
		_ = sendJSON(ws, gin.H{"error": "no active event stream for session"})
		return
	}

	for ev := range stream.Events() {
		if err := sendJSON(ws, ev); err != nil {
			return
		}
	}
}

// handleCancel requests cancellation of a running session (§5).
func (s *Service) handleCancel(c *gin.Context) {
	s.withSession(c, "cancel", func(sess *session.Session) error { return sess.Cancel() })
}

// handlePause transitions a running session to Paused (§5).
func (s *Service) handlePause(c *gin.Context) {
	s.withSession(c, "pause", func(sess *session.Session) error { return sess.Pause() })
}

// handleResume transitions a paused session back to Running (§5).
func (s *Service) handleResume(c *gin.Context) {
	s.withSession(c, "resume", func(sess *session.Session) error { return sess.Resume() })
}

// withSession looks up the path's session id, authorizes action
// against it, applies fn, and replies with the resulting status or a
// conflict if fn rejects the transition.
func (s *Service) withSession(c *gin.Context, action string, fn func(*session.Session) error) {
	sess, ok := s.sessions.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
		return
	}
	if !s.authorize(c, action, sess.ID()) {
		return
	}
	if err := fn(sess); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": sess.Status().String()})
}

// handleGetSnapshot returns the in-memory session's current Snapshot
// (§6), falling back to the durable Session Store for sessions this
// process no longer holds live (e.g. after a restart).
func (s *Service) handleGetSnapshot(c *gin.Context) {
	id := c.Param("id")
	if sess, ok := s.sessions.get(id); ok {
		snap, err := sess.Snapshot()
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, snap)
		return
	}

	snap, err := s.store.Load(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}
