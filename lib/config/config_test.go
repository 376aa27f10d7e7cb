// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	cfg.ExpandPaths()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Publish.ChunkSize != 51000 {
		t.Errorf("chunk_size = %d, want 51000", cfg.Publish.ChunkSize)
	}
}

func TestLoadRequiresEnvironment(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")
	_, err := Load()
	if err == nil || !strings.HasPrefix(err.Error(), "NAPP_CONFIG environment variable not set") {
		t.Fatalf("Load = %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	path := filepath.Join(t.TempDir(), "napp.yaml")
	content := `
relays:
  - wss://one.example
  - wss://two.example
publish:
  max_retries: 3
  backoff_step: 250ms
  success_threshold: 2
fetch:
  size_cap: 1000000
paths:
  key_file: ${HOME}/keys/napp.age
  ledger: ${NAPP_TEST_LEDGER:-/var/lib/napp/ledger.db}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Relays) != 2 {
		t.Errorf("relays = %v", cfg.Relays)
	}
	if cfg.Publish.MaxRetries != 3 || cfg.Publish.BackoffStep != 250*time.Millisecond || cfg.Publish.SuccessThreshold != 2 {
		t.Errorf("publish = %+v", cfg.Publish)
	}
	if cfg.Publish.ChunkSize != 51000 {
		t.Errorf("chunk_size default lost: %d", cfg.Publish.ChunkSize)
	}
	if cfg.Fetch.SizeCap != 1000000 {
		t.Errorf("size_cap = %d", cfg.Fetch.SizeCap)
	}
	if cfg.Fetch.MaxChunks != 1<<16 {
		t.Errorf("max_chunks default lost: %d", cfg.Fetch.MaxChunks)
	}
	if cfg.Paths.KeyFile != "/home/tester/keys/napp.age" {
		t.Errorf("key_file = %q", cfg.Paths.KeyFile)
	}
	if cfg.Paths.Ledger != "/var/lib/napp/ledger.db" {
		t.Errorf("ledger = %q", cfg.Paths.Ledger)
	}
}

func TestValidateReportsEveryError(t *testing.T) {
	cfg := Default()
	cfg.Relays = nil
	cfg.Publish.ChunkSize = 60000
	cfg.Publish.SuccessThreshold = 0
	cfg.Fetch.BatchSize = 0
	cfg.Fetch.MaxChunks = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, want := range []string{"relays", "max_event_size", "success_threshold", "batch_size", "max_chunks"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidateThresholdAboveRelays(t *testing.T) {
	cfg := Default()
	cfg.Publish.SuccessThreshold = len(cfg.Relays) + 1
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("Validate = %v", err)
	}
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "napp.yaml")
	if err := os.WriteFile(path, []byte("publish:\n  chunk_size: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("LoadFile accepted a negative chunk size")
	}
}
