// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the Configuration surface (C11):
// a session-scoped SessionConfig carrying model selection, tree-search
// budget, and retry/timeout parameters. Loading follows the teacher's
// defaults -> file -> env -> validate shape
// (services/trace/agent/mcts/config.go's LoadMCTSConfig), adapted to
// use struct-tag validation instead of a hand-rolled Validate method.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/agentcore/decisioncore/internal/decisioncore/session"
	"github.com/agentcore/decisioncore/internal/decisioncore/step"
	"github.com/agentcore/decisioncore/internal/decisioncore/tooling"
	"github.com/agentcore/decisioncore/internal/decisioncore/tree"
)

var sessionValidate = validator.New()

// ModelConfig mirrors session.ModelConfig with YAML tags so it can be
// loaded directly from a configuration file.
type ModelConfig struct {
	Fast string `json:"fast" yaml:"fast" validate:"required"`
	Slow string `json:"slow" yaml:"slow" validate:"required"`
}

// SessionConfig is the session-scoped configuration object of the
// Configuration surface: model selection plus the tree-search and
// step-retry parameters that govern one session's agent loop.
type SessionConfig struct {
	ModelConfig         ModelConfig `json:"model_config" yaml:"model_config" validate:"required"`
	BranchingCap        int         `json:"branching_cap" yaml:"branching_cap" validate:"gte=1"`
	NodeBudget          int         `json:"node_budget" yaml:"node_budget" validate:"gte=1"`
	ExplorationC        float64     `json:"exploration_c" yaml:"exploration_c" validate:"gt=0"`
	ExplorationEnabled  bool        `json:"exploration_enabled" yaml:"exploration_enabled"`
	ParseFailureRetries int         `json:"parse_failure_retries" yaml:"parse_failure_retries" validate:"gte=0"`
	PerToolTimeoutMS    int         `json:"per_tool_timeout_ms" yaml:"per_tool_timeout_ms" validate:"gte=0"`
	SessionTimeoutMS    int         `json:"session_timeout_ms" yaml:"session_timeout_ms" validate:"gte=0"`
}

// DefaultSessionConfig returns the Configuration surface's stated
// defaults (§6): branching_cap=3, node_budget=50, exploration_c=1.41,
// parse_failure_retries=3, per_tool_timeout_ms=120000,
// session_timeout_ms=1800000.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ModelConfig:         ModelConfig{Fast: "gpt-4o-mini", Slow: "gpt-4o"},
		BranchingCap:        3,
		NodeBudget:          50,
		ExplorationC:        1.41,
		ExplorationEnabled:  true,
		ParseFailureRetries: 3,
		PerToolTimeoutMS:    120000,
		SessionTimeoutMS:    1800000,
	}
}

// Load builds a SessionConfig following defaults -> file -> env ->
// validate. path may be empty, in which case the file stage is
// skipped.
func Load(path string) (SessionConfig, error) {
	cfg := DefaultSessionConfig()

	if path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	loadConfigFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid session config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(path string, cfg *SessionConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadConfigFromEnv(cfg *SessionConfig) {
	if v := os.Getenv("DECISIONCORE_MODEL_FAST"); v != "" {
		cfg.ModelConfig.Fast = v
	}
	if v := os.Getenv("DECISIONCORE_MODEL_SLOW"); v != "" {
		cfg.ModelConfig.Slow = v
	}
	if v := os.Getenv("DECISIONCORE_BRANCHING_CAP"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.BranchingCap = i
		}
	}
	if v := os.Getenv("DECISIONCORE_NODE_BUDGET"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.NodeBudget = i
		}
	}
	if v := os.Getenv("DECISIONCORE_EXPLORATION_C"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ExplorationC = f
		}
	}
	if v := os.Getenv("DECISIONCORE_EXPLORATION_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ExplorationEnabled = b
		}
	}
	if v := os.Getenv("DECISIONCORE_PARSE_FAILURE_RETRIES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.ParseFailureRetries = i
		}
	}
	if v := os.Getenv("DECISIONCORE_PER_TOOL_TIMEOUT_MS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.PerToolTimeoutMS = i
		}
	}
	if v := os.Getenv("DECISIONCORE_SESSION_TIMEOUT_MS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.SessionTimeoutMS = i
		}
	}
}

// Validate runs struct-tag validation over the configuration, per the
// Configuration surface's explicit "struct-tag validated" requirement.
// A branching_cap of 0 or a negative node_budget fails here rather than
// surfacing as a panic once a session starts consuming the tree.
func (c SessionConfig) Validate() error {
	return sessionValidate.Struct(c)
}

// ToModelConfig converts into the session package's ModelConfig.
func (c SessionConfig) ToModelConfig() session.ModelConfig {
	return session.ModelConfig{Fast: c.ModelConfig.Fast, Slow: c.ModelConfig.Slow}
}

// ToStepConfig converts into the step package's retry/timeout Config.
// The Configuration surface exposes a single parse_failure_retries
// field; it governs both the parse-failure and executor-failure
// budgets since the source defines no separate knob for the latter.
func (c SessionConfig) ToStepConfig() step.Config {
	cfg := step.Config{
		ParseFailureRetries:    c.ParseFailureRetries,
		ExecutorFailureRetries: c.ParseFailureRetries,
	}
	if c.PerToolTimeoutMS > 0 {
		cfg.PerToolTimeout = millis(c.PerToolTimeoutMS)
	} else {
		cfg.PerToolTimeout = tooling.DefaultTimeout
	}
	return cfg
}

// ToTreeConfig converts into the tree package's search-budget Config.
// SuccessThreshold is not part of the Configuration surface; this
// adapter carries tree.DefaultConfig's value for it. WallClockBudget is
// session_timeout_ms when that is positive, else tree.DefaultConfig's.
func (c SessionConfig) ToTreeConfig() tree.Config {
	defaults := tree.DefaultConfig()
	cfg := tree.Config{
		BranchingCap:     c.BranchingCap,
		NodeBudget:       c.NodeBudget,
		ExplorationC:     c.ExplorationC,
		SuccessThreshold: defaults.SuccessThreshold,
		WallClockBudget:  defaults.WallClockBudget,
	}
	if !c.ExplorationEnabled {
		cfg.ExplorationC = 0
	}
	if c.SessionTimeoutMS > 0 {
		cfg.WallClockBudget = millis(c.SessionTimeoutMS)
	}
	return cfg
}

// millis converts a millisecond count from the wire configuration
// surface into a time.Duration.
func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
