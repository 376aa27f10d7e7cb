// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// ErrPassphraseRequired is returned when an encrypted key file is
// loaded without a passphrase source.
var ErrPassphraseRequired = errors.New("key file is encrypted; a passphrase is required")

// Passphrase supplies the passphrase for an encrypted key file. It is
// only called when the file is encrypted.
type Passphrase func() (string, error)

// LoadKeyFile reads a secret key from path. The file holds either the
// hex secret key or an armored age file, encrypted to a passphrase,
// whose plaintext is the hex secret key.
func LoadKeyFile(path string, passphrase Passphrase) (*KeySigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if !strings.HasPrefix(text, armor.Header) {
		return FromHex(text)
	}
	if passphrase == nil {
		return nil, ErrPassphraseRequired
	}

	secret, err := passphrase()
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	identity, err := age.NewScryptIdentity(secret)
	if err != nil {
		return nil, fmt.Errorf("preparing passphrase: %w", err)
	}
	plaintext, err := age.Decrypt(armor.NewReader(bytes.NewReader(data)), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting key file %s: %w", path, err)
	}
	decrypted, err := io.ReadAll(plaintext)
	if err != nil {
		return nil, fmt.Errorf("decrypting key file %s: %w", path, err)
	}
	return FromHex(strings.TrimSpace(string(decrypted)))
}

// KeyFileOptions controls WriteKeyFile.
type KeyFileOptions struct {
	// Passphrase encrypts the file. Empty writes the hex key in the
	// clear.
	Passphrase string

	// WorkFactor overrides age's scrypt work factor (log2 of N).
	// Zero keeps age's default.
	WorkFactor int
}

// WriteKeyFile writes the signer's secret key to path with mode 0600,
// replacing the file atomically.
func WriteKeyFile(path string, key *KeySigner, options KeyFileOptions) error {
	var content bytes.Buffer
	if options.Passphrase == "" {
		content.WriteString(key.SecretHex() + "\n")
	} else {
		recipient, err := age.NewScryptRecipient(options.Passphrase)
		if err != nil {
			return fmt.Errorf("preparing passphrase: %w", err)
		}
		if options.WorkFactor > 0 {
			recipient.SetWorkFactor(options.WorkFactor)
		}
		armored := armor.NewWriter(&content)
		encrypted, err := age.Encrypt(armored, recipient)
		if err != nil {
			return fmt.Errorf("encrypting key: %w", err)
		}
		if _, err := io.WriteString(encrypted, key.SecretHex()); err != nil {
			return fmt.Errorf("encrypting key: %w", err)
		}
		if err := encrypted.Close(); err != nil {
			return fmt.Errorf("encrypting key: %w", err)
		}
		if err := armored.Close(); err != nil {
			return fmt.Errorf("armoring key: %w", err)
		}
	}

	temporary, err := os.CreateTemp(filepath.Dir(path), ".key-*")
	if err != nil {
		return fmt.Errorf("creating key file: %w", err)
	}
	temporaryPath := temporary.Name()
	defer os.Remove(temporaryPath)

	if err := temporary.Chmod(0o600); err != nil {
		temporary.Close()
		return fmt.Errorf("setting key file mode: %w", err)
	}
	if _, err := temporary.Write(content.Bytes()); err != nil {
		temporary.Close()
		return fmt.Errorf("writing key file: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		return fmt.Errorf("installing key file: %w", err)
	}
	return nil
}
