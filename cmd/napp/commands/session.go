// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/napp/cmd/napp/cli"
	"github.com/bureau-foundation/napp/lib/clock"
	"github.com/bureau-foundation/napp/lib/config"
	"github.com/bureau-foundation/napp/lib/fetch"
	"github.com/bureau-foundation/napp/lib/ledger"
	"github.com/bureau-foundation/napp/lib/listing"
	"github.com/bureau-foundation/napp/lib/publish"
	"github.com/bureau-foundation/napp/lib/relay"
	"github.com/bureau-foundation/napp/lib/signer"
	"github.com/bureau-foundation/napp/lib/version"
)

// PassphraseVariable supplies the key file passphrase without a prompt.
const PassphraseVariable = "NAPP_PASSPHRASE"

var (
	// stdout receives command output. Tests replace it.
	stdout io.Writer = os.Stdout

	// newClient builds the relay transport. Tests replace it with an
	// in-memory relay set.
	newClient = func(cfg *config.Config, logger *slog.Logger) relay.Client {
		return relay.NewWebSocketClient(relay.WebSocketOptions{
			Logger:      logger,
			PublishRate: cfg.Publish.Rate,
			Verify:      signer.Verify,
			UserAgent:   version.UserAgent(),
		})
	}

	// clk is the time source for publishing.
	clk = clock.Real()
)

// Connection holds the flags shared by every command that talks to
// relays. It implements [cli.FlagBinder].
type Connection struct {
	ConfigPath string
	Relays     []string
	KeyFile    string
}

// AddFlags registers --config, --relay, and --key-file.
func (c *Connection) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.ConfigPath, "config", "", "config file (default $"+config.EnvironmentVariable+", then built-in defaults)")
	flagSet.StringSliceVarP(&c.Relays, "relay", "r", nil, "relay URL, replacing the configured relays (repeatable)")
	flagSet.StringVar(&c.KeyFile, "key-file", "", "secret key file (default from config)")
}

// loadConfig reads --config, then NAPP_CONFIG, then falls back to the
// defaults, and applies --relay and --key-file.
func (c *Connection) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case c.ConfigPath != "":
		cfg, err = config.LoadFile(c.ConfigPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
		cfg.ExpandPaths()
	}
	if err != nil {
		return nil, cli.Validation("%w", err)
	}

	if len(c.Relays) > 0 {
		relays := make([]string, 0, len(c.Relays))
		for _, raw := range c.Relays {
			normalized, ok := relay.NormalizeURL(raw)
			if !ok {
				return nil, cli.Validation("--relay %q is not a ws:// or wss:// URL", raw)
			}
			relays = append(relays, normalized)
		}
		cfg.Relays = relay.Dedupe(relays)
		cfg.Publish.SuccessThreshold = min(cfg.Publish.SuccessThreshold, len(cfg.Relays))
	}
	if c.KeyFile != "" {
		cfg.Paths.KeyFile = c.KeyFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, cli.Validation("%w", err)
	}
	return cfg, nil
}

// session is the wiring for one command invocation.
type session struct {
	config *config.Config
	client relay.Client
	logger *slog.Logger
}

func (c *Connection) open(logger *slog.Logger) (*session, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return &session{
		config: cfg,
		client: newClient(cfg, logger),
		logger: logger,
	}, nil
}

func (s *session) key() (*signer.KeySigner, error) {
	key, err := signer.LoadKeyFile(s.config.Paths.KeyFile, promptPassphrase)
	if errors.Is(err, os.ErrNotExist) {
		return nil, cli.NotFound("no key at %s (run 'napp key generate')", s.config.Paths.KeyFile)
	}
	return key, err
}

// author resolves --author, defaulting to the local key's public key.
func (s *session) author(flag string) (string, error) {
	if flag == "" {
		key, err := s.key()
		if err != nil {
			return "", fmt.Errorf("no --author given and the local key is unavailable: %w", err)
		}
		return key.PublicKey(), nil
	}
	flag = strings.ToLower(flag)
	if decoded, err := hex.DecodeString(flag); err != nil || len(decoded) != 32 {
		return "", cli.Validation("--author %q is not a 64-character hex public key", flag)
	}
	return flag, nil
}

func (s *session) fetcher() *fetch.Fetcher {
	return &fetch.Fetcher{
		Client:    s.client,
		Timeout:   s.config.Fetch.Timeout,
		ChunkSize: s.config.Publish.ChunkSize,
		BatchSize: s.config.Fetch.BatchSize,
		MaxChunks: s.config.Fetch.MaxChunks,
		IconCap:   s.config.Fetch.IconCap,
		Logger:    s.logger,
	}
}

func (s *session) publisher() *publish.Publisher {
	return &publish.Publisher{
		Client:           s.client,
		Backoff:          publish.NewBackoff(s.config.Publish.BackoffStep),
		Clock:            clk,
		MaxRetries:       s.config.Publish.MaxRetries,
		SuccessThreshold: s.config.Publish.SuccessThreshold,
		Timeout:          s.config.Publish.Timeout,
		Logger:           s.logger,
	}
}

func (s *session) reconciler(key signer.Signer, publisher listing.Publisher) *listing.Reconciler {
	return &listing.Reconciler{
		Client:    s.client,
		Publisher: publisher,
		Signer:    key,
		Clock:     clk,
		Timeout:   s.config.Fetch.Timeout,
		Logger:    s.logger,
	}
}

// openLedger opens the configured ledger, or returns nil when the
// config disables it.
func (s *session) openLedger() (*ledger.Ledger, error) {
	path := s.config.Paths.Ledger
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	return ledger.Open(ledger.Options{Path: path, Logger: s.logger})
}

// uploader wires the full publish stack for key.
func (s *session) uploader(key signer.Signer, store *ledger.Ledger) *publish.Uploader {
	publisher := s.publisher()
	var index publish.ChunkIndex = &publish.RelayIndex{
		Client:  s.client,
		Timeout: s.config.Fetch.Timeout,
		Logger:  s.logger,
	}
	if store != nil {
		index = &publish.LedgerIndex{Ledger: store, Next: index}
	}
	return &publish.Uploader{
		Signer:          key,
		Publisher:       publisher,
		Index:           index,
		Clock:           clk,
		Ledger:          store,
		Listings:        s.reconciler(key, publisher),
		ChunkSize:       s.config.Publish.ChunkSize,
		MaxEventSize:    s.config.Publish.MaxEventSize,
		FileConcurrency: s.config.Publish.FileConcurrency,
		AuthorRelays:    s.config.Publish.AuthorRelays,
		Logger:          s.logger,
	}
}

// promptPassphrase reads NAPP_PASSPHRASE, or prompts on the terminal.
func promptPassphrase() (string, error) {
	if passphrase, ok := os.LookupEnv(PassphraseVariable); ok {
		return passphrase, nil
	}
	if !cli.IsTerminal(os.Stdin) {
		return "", fmt.Errorf("%w (set %s or run from a terminal)", signer.ErrPassphraseRequired, PassphraseVariable)
	}
	return readPassword("Passphrase: ")
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

// categorize assigns an exit category to library errors.
func categorize(err error) error {
	if err == nil {
		return nil
	}
	var categorized *cli.CategoryError
	if errors.As(err, &categorized) || errors.Is(err, context.Canceled) {
		return err
	}
	switch {
	case errors.Is(err, fetch.ErrNotFound) || fetch.IsIncomplete(err, fetch.ReasonNotFound):
		return &cli.CategoryError{Category: cli.CategoryNotFound, Err: err}
	case publish.IsFatal(err) || errors.Is(err, publish.ErrIndexUnavailable) ||
		errors.Is(err, listing.ErrUnavailable) || fetch.IsIncomplete(err, fetch.ReasonMissing):
		return &cli.CategoryError{Category: cli.CategoryTransient, Err: err}
	}
	return err
}
