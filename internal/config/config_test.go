// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.API.BaseURL == "" {
		t.Error("default base URL is empty")
	}
	if cfg.API.TimeoutSecs != 60 {
		t.Errorf("default timeout = %d, want 60", cfg.API.TimeoutSecs)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("default backend = %q, want file", cfg.Storage.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[api]
base_url = "https://example.test/v1"
model = "custom-model"
timeout_secs = 30

[storage]
backend = "sqlite"

[ui]
show_reasoning = false
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.API.BaseURL != "https://example.test/v1" {
		t.Errorf("base_url = %q", cfg.API.BaseURL)
	}
	if cfg.API.Model != "custom-model" {
		t.Errorf("model = %q", cfg.API.Model)
	}
	if cfg.API.TimeoutSecs != 30 {
		t.Errorf("timeout_secs = %d", cfg.API.TimeoutSecs)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("backend = %q", cfg.Storage.Backend)
	}
	if cfg.UI.ShowReasoning {
		t.Error("show_reasoning should be false")
	}
	// Unset fields fall back to defaults.
	if cfg.UI.Theme != "auto" {
		t.Errorf("theme = %q, want default auto", cfg.UI.Theme)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.API.Model != Default().API.Model {
		t.Errorf("model = %q, want default", cfg.API.Model)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("THINKCHAT_API_KEY", "sk-env-key")
	t.Setenv("THINKCHAT_MODEL", "env-model")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.API.APIKey != "sk-env-key" {
		t.Errorf("api key = %q", cfg.API.APIKey)
	}
	if cfg.API.Model != "env-model" {
		t.Errorf("model = %q", cfg.API.Model)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "etcd"
	if err := cfg.Validate(); err == nil {
		t.Error("bad backend passed validation")
	}

	cfg = Default()
	cfg.API.TimeoutSecs = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero timeout passed validation")
	}

	cfg = Default()
	cfg.UI.Theme = "solarized"
	if err := cfg.Validate(); err == nil {
		t.Error("bad theme passed validation")
	}
}
