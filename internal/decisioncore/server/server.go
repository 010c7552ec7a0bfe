// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server wires the Decision Core's internal packages behind the
// Transport/CLI boundary (C12): a gin HTTP/WebSocket API fronting
// session creation, message submission, event streaming, and the
// pause/resume/cancel controls of §5, plus a Prometheus /metrics route
// fed by the telemetry package. Route and lifecycle shape follow the
// teacher's orchestrator service (services/orchestrator/orchestrator.go):
// a thin cmd/ main.go constructs a Config and calls New/Run here.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/agentcore/decisioncore/internal/decisioncore/events"
	"github.com/agentcore/decisioncore/internal/decisioncore/llm"
	"github.com/agentcore/decisioncore/internal/decisioncore/loop"
	"github.com/agentcore/decisioncore/internal/decisioncore/registry"
	"github.com/agentcore/decisioncore/internal/decisioncore/session"
	"github.com/agentcore/decisioncore/internal/decisioncore/step"
	"github.com/agentcore/decisioncore/internal/decisioncore/store"
	"github.com/agentcore/decisioncore/internal/decisioncore/telemetry"
	"github.com/agentcore/decisioncore/internal/decisioncore/tooling"
	"github.com/agentcore/decisioncore/internal/decisioncore/tooling/builtin"
	"github.com/agentcore/decisioncore/internal/decisioncore/toolcall"
	"github.com/agentcore/decisioncore/pkg/config"
	"github.com/agentcore/decisioncore/pkg/extensions"
)

// toolRateLimit and toolRateBurst bound how fast a single server
// process invokes tools across all of its sessions, a coarse backstop
// against a runaway loop hammering an external tool (or, once apply_patch
// grows a real filesystem/network side effect, the underlying system).
const (
	toolRateLimit = 20 // invocations/sec
	toolRateBurst = 10
)

// Config configures the demo Decision Core server.
type Config struct {
	Addr          string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	StorePath     string
	StoreInMemory bool
	Telemetry     telemetry.Config
	Session       config.SessionConfig

	// Extensions holds the enterprise hook points (auth, authorization,
	// audit logging, message filtering). A zero value is filled in with
	// extensions.DefaultOptions()'s no-op implementations, matching the
	// open-source deployment the teacher's own ServiceOptions default to.
	Extensions extensions.ServiceOptions
}

// Service is the running HTTP/WebSocket server plus the collaborators
// every session shares: the tool registry, the parser, the model
// client, and the durable session store.
type Service struct {
	cfg    Config
	router *gin.Engine
	store  *store.Store

	sessions *sessionManager
	stepDeps step.Deps
	ext      extensions.ServiceOptions

	telemetryShutdown func(context.Context) error
}

// New constructs a Service: it opens the session store, registers the
// built-in tools, builds a model client, and sets up the gin router.
// The caller is responsible for calling Run to start serving and Close
// to release the store/telemetry on shutdown.
func New(cfg Config) (*Service, error) {
	shutdown, err := telemetry.Init(context.Background(), cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("server: init telemetry: %w", err)
	}

	reg := registry.New()
	for _, descriptor := range builtinDescriptors() {
		if err := reg.Register(descriptor); err != nil {
			_ = shutdown(context.Background())
			return nil, fmt.Errorf("server: register builtin tool: %w", err)
		}
	}

	model, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, fmt.Errorf("server: build model client: %w", err)
	}

	prompt, err := step.NewPromptBuilder()
	if err != nil {
		_ = shutdown(context.Background())
		return nil, fmt.Errorf("server: build prompt builder: %w", err)
	}

	var storeCfg store.Config
	if cfg.StoreInMemory {
		storeCfg = store.InMemoryConfig()
	} else {
		storeCfg = store.DefaultConfig(cfg.StorePath)
	}
	db, err := store.Open(storeCfg)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, fmt.Errorf("server: open session store: %w", err)
	}

	svc := &Service{
		cfg:               cfg,
		store:             db,
		sessions:          newSessionManager(),
		ext:               withExtensionDefaults(cfg.Extensions),
		telemetryShutdown: shutdown,
		stepDeps: step.Deps{
			Registry: reg,
			Parser:   toolcall.New(reg),
			Model:    model,
			Prompt:   prompt,
			Limiter:  rate.NewLimiter(rate.Limit(toolRateLimit), toolRateBurst),
		},
	}
	svc.initRouter()
	return svc, nil
}

// builtinDescriptors returns the tool catalog every session is seeded
// with, per §4.1/§4.6.
func builtinDescriptors() []tooling.Descriptor {
	return []tooling.Descriptor{
		builtin.Echo(),
		builtin.AttemptCompletion(),
		builtin.AskFollowupQuestion(),
		builtin.ApplyPatch(),
	}
}

// withExtensionDefaults fills any nil hook with the teacher's no-op
// default, so a caller that only overrides, say, AuditLogger doesn't
// also have to supply an AuthProvider.
func withExtensionDefaults(opts extensions.ServiceOptions) extensions.ServiceOptions {
	defaults := extensions.DefaultOptions()
	if opts.AuthProvider == nil {
		opts.AuthProvider = defaults.AuthProvider
	}
	if opts.AuthzProvider == nil {
		opts.AuthzProvider = defaults.AuthzProvider
	}
	if opts.AuditLogger == nil {
		opts.AuditLogger = defaults.AuditLogger
	}
	if opts.MessageFilter == nil {
		opts.MessageFilter = defaults.MessageFilter
	}
	return opts
}

func (s *Service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("decisioncore"))
	s.router.Use(s.authMiddleware())

	s.router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))
	s.router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	v1 := s.router.Group("/v1/sessions")
	v1.POST("", s.handleCreateSession)
	v1.POST("/:id/messages", s.handleSubmitMessage)
	v1.GET("/:id/events", s.handleStreamEvents)
	v1.POST("/:id/cancel", s.handleCancel)
	v1.POST("/:id/pause", s.handlePause)
	v1.POST("/:id/resume", s.handleResume)
	v1.GET("/:id/snapshot", s.handleGetSnapshot)
}

// Run starts the HTTP server and blocks until it stops or errors.
func (s *Service) Run() error {
	defer s.Close()
	slog.Info("starting decisioncore server", "addr", s.cfg.Addr)
	return s.router.Run(s.cfg.Addr)
}

// Close releases the session store and flushes telemetry. Safe to call
// after Run returns; New's own error paths call it directly.
func (s *Service) Close() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("session store close error", "error", err)
		}
	}
	if s.telemetryShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.telemetryShutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "error", err)
		}
	}
}

// sessionManager holds the in-memory Session objects a running server
// is driving. Nothing evicts entries from it: a session stays in memory
// for the life of the process, whatever Config.Session.SessionTimeoutMS
// says. The durable record lives in the Session Store.
type sessionManager struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	streams  map[string]*events.Stream
}

func newSessionManager() *sessionManager {
	return &sessionManager{
		sessions: make(map[string]*session.Session),
		streams:  make(map[string]*events.Stream),
	}
}

// put registers sess and gives it its own Event Stream (§4.8), so a
// websocket client connecting via handleStreamEvents can observe
// whatever a later handleSubmitMessage call drives onto it.
func (m *sessionManager) put(sess *session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID()] = sess
	m.streams[sess.ID()] = events.NewStream()
}

func (m *sessionManager) get(id string) (*session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

func (m *sessionManager) stream(id string) (*events.Stream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stream, ok := m.streams[id]
	return stream, ok
}

// eventStream exposes the session's shared Event Stream to handlers.
func (s *Service) eventStream(id string) (*events.Stream, bool) {
	return s.sessions.stream(id)
}

// runLoop drives sess with the Agent Loop to one terminal outcome,
// emitting a SessionStatusChanged event and persisting the resulting
// snapshot to the store.
func (s *Service) runLoop(ctx context.Context, sess *session.Session, stream *events.Stream) (step.Outcome, error) {
	deps := s.stepDeps
	deps.Stream = stream

	stepCfg := s.cfg.Session.ToStepConfig()
	outcome, err := loop.Run(ctx, sess, deps, stepCfg, sess.ModelConfig().Fast, step.NewRetryState())

	if snap, snapErr := sess.Snapshot(); snapErr == nil {
		if saveErr := s.store.Save(ctx, snap); saveErr != nil {
			slog.Warn("failed to persist session snapshot", "session_id", sess.ID(), "error", saveErr)
		}
	}
	return outcome, err
}
