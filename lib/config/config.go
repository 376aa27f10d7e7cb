// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads napp's YAML configuration.
//
// Configuration comes from a single file named by the NAPP_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). There is no search path and no per-field environment
// override. Values missing from the file keep the compiled-in defaults
// from [Default]. Path fields expand ${HOME} and ${VAR:-default}
// patterns after loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/napp/lib/base93"
	"github.com/bureau-foundation/napp/lib/chunk"
)

// EnvironmentVariable names the config file for [Load].
const EnvironmentVariable = "NAPP_CONFIG"

// EventOverhead is the space reserved in every chunk event for
// everything except its encoded content: id, pubkey, signature, and
// tags with proofs for files of up to a few thousand chunks.
const EventOverhead = 2048

// Config is the complete napp configuration.
type Config struct {
	// Relays receive every published event and are queried on fetch.
	Relays []string `yaml:"relays"`

	Publish PublishConfig `yaml:"publish"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Paths   PathsConfig   `yaml:"paths"`
}

// PublishConfig tunes the upload pipeline.
type PublishConfig struct {
	// ChunkSize is the size in bytes of every chunk but the last.
	ChunkSize int `yaml:"chunk_size"`

	// MaxRetries bounds the retry rounds for one event after the
	// first send.
	MaxRetries int `yaml:"max_retries"`

	// BackoffStep is added to the shared delay each round in which a
	// relay reports a rate limit.
	BackoffStep time.Duration `yaml:"backoff_step"`

	// SuccessThreshold is the number of relays that must acknowledge
	// an event.
	SuccessThreshold int `yaml:"success_threshold"`

	// Timeout bounds each relay publish call.
	Timeout time.Duration `yaml:"timeout"`

	// MaxEventSize is the largest serialized event relays accept.
	MaxEventSize int `yaml:"max_event_size"`

	// FileConcurrency is how many files of an app upload at once.
	FileConcurrency int `yaml:"file_concurrency"`

	// Rate limits events per second sent to each relay. Zero is
	// unlimited.
	Rate float64 `yaml:"rate"`

	// AuthorRelays adds the author's advertised write relays
	// (kind 10002) to Relays.
	AuthorRelays bool `yaml:"author_relays"`
}

// FetchConfig tunes reconstruction.
type FetchConfig struct {
	// Timeout bounds each relay query.
	Timeout time.Duration `yaml:"timeout"`

	// SizeCap is the default byte cap for file fetches. Zero means
	// unbounded.
	SizeCap int64 `yaml:"size_cap"`

	// IconCap bounds icon downloads when reading app metadata.
	IconCap int64 `yaml:"icon_cap"`

	// BatchSize is the most locators requested in one query.
	BatchSize int `yaml:"batch_size"`

	// MaxChunks refuses files declaring more chunks, whatever the
	// size cap.
	MaxChunks int `yaml:"max_chunks"`
}

// PathsConfig locates local state.
type PathsConfig struct {
	// KeyFile holds the author's secret key, in hex or age-encrypted.
	KeyFile string `yaml:"key_file"`

	// Ledger is the SQLite publish ledger. Empty disables it.
	Ledger string `yaml:"ledger"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Relays: []string{
			"wss://relay.primal.net",
			"wss://nos.lol",
			"wss://relay.damus.io",
		},
		Publish: PublishConfig{
			ChunkSize:        chunk.DefaultSize,
			MaxRetries:       10,
			BackoffStep:      time.Second,
			SuccessThreshold: 1,
			Timeout:          15 * time.Second,
			MaxEventSize:     65536,
			FileConcurrency:  1,
			AuthorRelays:     true,
		},
		Fetch: FetchConfig{
			Timeout:   15 * time.Second,
			IconCap:   5_767_168,
			BatchSize: 256,
			MaxChunks: 1 << 16,
		},
		Paths: PathsConfig{
			KeyFile: "${HOME}/.config/napp/key.age",
			Ledger:  "${HOME}/.local/state/napp/ledger.db",
		},
	}
}

// Load loads the file named by NAPP_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your napp.yaml or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path over the defaults and
// validates it.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.ExpandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ExpandPaths expands variables in the path fields.
func (c *Config) ExpandPaths() {
	c.Paths.KeyFile = expandVars(c.Paths.KeyFile)
	c.Paths.Ledger = expandVars(c.Paths.Ledger)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Relays) == 0 {
		errs = append(errs, errors.New("relays: at least one relay is required"))
	}

	publish := c.Publish
	if publish.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("publish.chunk_size must be positive, got %d", publish.ChunkSize))
	} else if need := base93.MaxEncodedLen(publish.ChunkSize) + EventOverhead; need > publish.MaxEventSize {
		errs = append(errs, fmt.Errorf("publish.chunk_size %d encodes to events of up to %d bytes, over publish.max_event_size %d",
			publish.ChunkSize, need, publish.MaxEventSize))
	}
	if publish.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("publish.max_retries must not be negative, got %d", publish.MaxRetries))
	}
	if publish.BackoffStep < 0 {
		errs = append(errs, fmt.Errorf("publish.backoff_step must not be negative, got %s", publish.BackoffStep))
	}
	if publish.SuccessThreshold < 1 {
		errs = append(errs, fmt.Errorf("publish.success_threshold must be at least 1, got %d", publish.SuccessThreshold))
	} else if len(c.Relays) > 0 && publish.SuccessThreshold > len(c.Relays) {
		errs = append(errs, fmt.Errorf("publish.success_threshold %d exceeds the %d configured relays",
			publish.SuccessThreshold, len(c.Relays)))
	}
	if publish.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("publish.timeout must be positive, got %s", publish.Timeout))
	}
	if publish.FileConcurrency < 1 {
		errs = append(errs, fmt.Errorf("publish.file_concurrency must be at least 1, got %d", publish.FileConcurrency))
	}
	if publish.Rate < 0 {
		errs = append(errs, fmt.Errorf("publish.rate must not be negative, got %g", publish.Rate))
	}

	fetch := c.Fetch
	if fetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must be positive, got %s", fetch.Timeout))
	}
	if fetch.SizeCap < 0 || fetch.IconCap < 0 {
		errs = append(errs, errors.New("fetch.size_cap and fetch.icon_cap must not be negative"))
	}
	if fetch.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("fetch.batch_size must be at least 1, got %d", fetch.BatchSize))
	}
	if fetch.MaxChunks < 1 {
		errs = append(errs, fmt.Errorf("fetch.max_chunks must be at least 1, got %d", fetch.MaxChunks))
	}

	return errors.Join(errs...)
}
