// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command decisioncored starts the Decision Core HTTP/WebSocket server.
//
// This is the main entry point for the containerized decisioncore
// service. It reads configuration from environment variables and a
// session configuration file, then starts the server.
//
// # Environment Variables
//
//   - DECISIONCORE_ADDR: HTTP listen address (default: ":8080")
//   - DECISIONCORE_CONFIG_PATH: path to a session config YAML/JSON file (optional)
//   - DECISIONCORE_STORE_PATH: BadgerDB directory for the session store (default: "./data/sessions")
//   - DECISIONCORE_STORE_IN_MEMORY: "true" to use an in-memory store instead (default: "false")
//   - DECISIONCORE_LOG_DIR: directory for JSON log files alongside stderr (optional)
//   - OPENAI_API_KEY: API key for the model client
//   - OPENAI_BASE_URL: OpenAI-compatible endpoint (optional)
//   - DECISIONCORE_ENV, OTEL_TRACES_EXPORTER, OTEL_METRICS_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT:
//     see internal/decisioncore/telemetry.DefaultConfig
//
// # Usage
//
//	# Build
//	go build -o decisioncored ./cmd/decisioncored
//
//	# Run
//	./decisioncored
package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/agentcore/decisioncore/internal/decisioncore/server"
	"github.com/agentcore/decisioncore/internal/decisioncore/telemetry"
	"github.com/agentcore/decisioncore/pkg/config"
	"github.com/agentcore/decisioncore/pkg/logging"
)

func main() {
	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		Service: "decisioncored",
		JSON:    true,
		LogDir:  os.Getenv("DECISIONCORE_LOG_DIR"),
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	sessionCfg, err := config.Load(os.Getenv("DECISIONCORE_CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load session config: %v", err)
	}

	cfg := server.Config{
		Addr:          getEnvString("DECISIONCORE_ADDR", ":8080"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		StorePath:     getEnvString("DECISIONCORE_STORE_PATH", "./data/sessions"),
		StoreInMemory: getEnvBool("DECISIONCORE_STORE_IN_MEMORY", false),
		Telemetry:     telemetry.DefaultConfig(),
		Session:       sessionCfg,
	}

	slog.Info("starting decisioncored",
		"addr", cfg.Addr,
		"store_path", cfg.StorePath,
		"store_in_memory", cfg.StoreInMemory,
		"branching_cap", cfg.Session.BranchingCap,
		"node_budget", cfg.Session.NodeBudget,
	)

	svc, err := server.New(cfg)
	if err != nil {
		log.Fatalf("failed to create decisioncore server: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("decisioncore server error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns the environment variable parsed as a bool or a
// default, following the teacher's getEnvInt precedent for typed env
// lookups (cmd/orchestrator/main.go).
func getEnvBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	default:
		return defaultValue
	}
}
