// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSessionConfig_IsValid(t *testing.T) {
	cfg := DefaultSessionConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.BranchingCap)
	assert.Equal(t, 50, cfg.NodeBudget)
	assert.InDelta(t, 1.41, cfg.ExplorationC, 0.0001)
}

func TestValidate_RejectsZeroBranchingCap(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.BranchingCap = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNegativeNodeBudget(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.NodeBudget = -1
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsMissingModelConfig(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.ModelConfig.Fast = ""
	assert.Error(t, cfg.Validate())
}

func TestLoad_NoPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionConfig(), cfg)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionConfig(), cfg)
}

func TestLoad_YAMLFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	yamlContent := "branching_cap: 5\nnode_budget: 10\nmodel_config:\n  fast: custom-fast\n  slow: custom-slow\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.BranchingCap)
	assert.Equal(t, 10, cfg.NodeBudget)
	assert.Equal(t, "custom-fast", cfg.ModelConfig.Fast)
	assert.Equal(t, "custom-slow", cfg.ModelConfig.Slow)
}

func TestLoad_FileWithInvalidConfigFailsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("branching_cap: 0\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("branching_cap: 5\n"), 0644))
	t.Setenv("DECISIONCORE_BRANCHING_CAP", "7")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.BranchingCap)
}

func TestToStepConfig_UsesParseFailureRetriesForBoth(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.ParseFailureRetries = 2
	cfg.PerToolTimeoutMS = 5000

	stepCfg := cfg.ToStepConfig()
	assert.Equal(t, 2, stepCfg.ParseFailureRetries)
	assert.Equal(t, 2, stepCfg.ExecutorFailureRetries)
	assert.Equal(t, 5*time.Second, stepCfg.PerToolTimeout)
}

func TestToTreeConfig_MapsBudgetFields(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.BranchingCap = 4
	cfg.NodeBudget = 20
	cfg.SessionTimeoutMS = 60000

	treeCfg := cfg.ToTreeConfig()
	assert.Equal(t, 4, treeCfg.BranchingCap)
	assert.Equal(t, 20, treeCfg.NodeBudget)
	assert.Equal(t, time.Minute, treeCfg.WallClockBudget)
}

func TestToTreeConfig_ExplorationDisabledZeroesConstant(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.ExplorationEnabled = false

	treeCfg := cfg.ToTreeConfig()
	assert.Equal(t, 0.0, treeCfg.ExplorationC)
}

func TestToModelConfig_CarriesFastAndSlow(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.ModelConfig.Fast = "f"
	cfg.ModelConfig.Slow = "s"

	mc := cfg.ToModelConfig()
	assert.Equal(t, "f", mc.Fast)
	assert.Equal(t, "s", mc.Slow)
}
