// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/napp/cmd/napp/cli"
	"github.com/bureau-foundation/napp/lib/signer"
)

func keyCommand() *cli.Command {
	return &cli.Command{
		Name:    "key",
		Summary: "Manage the publishing key",
		Subcommands: []*cli.Command{
			keyGenerateCommand(),
			keyShowCommand(),
		},
	}
}

type keyGenerateParams struct {
	Connection
	Plaintext  bool `flag:"plaintext" desc:"store the key unencrypted"`
	Force      bool `flag:"force" desc:"replace an existing key file"`
	WorkFactor int  `flag:"work-factor" desc:"scrypt work factor as log2(N); 0 keeps age's default"`
}

func keyGenerateCommand() *cli.Command {
	var params keyGenerateParams
	return &cli.Command{
		Name:    "generate",
		Summary: "Create a new secret key",
		Usage:   "napp key generate [flags]",
		Description: `Create a secp256k1 secret key and write it to the key file.

The key is encrypted with a passphrase (age, scrypt) unless --plaintext
is given. The passphrase is read from NAPP_PASSPHRASE or prompted for
twice on the terminal. The public key is printed on success.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("generate", &params) },
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 0 {
				return cli.Validation("key generate takes no arguments")
			}
			cfg, err := params.loadConfig()
			if err != nil {
				return err
			}
			path := cfg.Paths.KeyFile
			if _, err := os.Stat(path); err == nil && !params.Force {
				return cli.Validation("%s already exists (use --force to replace it)", path)
			}

			var options signer.KeyFileOptions
			if !params.Plaintext {
				passphrase, err := newPassphrase()
				if err != nil {
					return err
				}
				options = signer.KeyFileOptions{Passphrase: passphrase, WorkFactor: params.WorkFactor}
			}

			key, err := signer.Generate()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return fmt.Errorf("creating key directory: %w", err)
			}
			if err := signer.WriteKeyFile(path, key, options); err != nil {
				return err
			}
			logger.Info("wrote key file", "path", path, "encrypted", !params.Plaintext)
			fmt.Fprintln(stdout, key.PublicKey())
			return nil
		},
	}
}

// newPassphrase reads NAPP_PASSPHRASE or prompts twice.
func newPassphrase() (string, error) {
	if passphrase, ok := os.LookupEnv(PassphraseVariable); ok {
		if passphrase == "" {
			return "", cli.Validation("%s is empty (use --plaintext for an unencrypted key)", PassphraseVariable)
		}
		return passphrase, nil
	}
	if !cli.IsTerminal(os.Stdin) {
		return "", cli.Validation("no terminal for a passphrase prompt; set %s or use --plaintext", PassphraseVariable)
	}
	first, err := readPassword("New passphrase: ")
	if err != nil {
		return "", err
	}
	second, err := readPassword("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passphrases do not match")
	}
	if first == "" {
		return "", cli.Validation("empty passphrase (use --plaintext for an unencrypted key)")
	}
	return first, nil
}

type keyShowParams struct {
	Connection
}

func keyShowCommand() *cli.Command {
	var params keyShowParams
	return &cli.Command{
		Name:    "show",
		Summary: "Print the public key",
		Usage:   "napp key show [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("show", &params) },
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 0 {
				return cli.Validation("key show takes no arguments")
			}
			session, err := params.open(logger)
			if err != nil {
				return err
			}
			key, err := session.key()
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, key.PublicKey())
			return nil
		},
	}
}
