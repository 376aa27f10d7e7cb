// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package signer signs and verifies events with BIP-340 Schnorr
// signatures over secp256k1, and stores secret keys at rest encrypted
// with an age passphrase.
package signer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/bureau-foundation/napp/lib/event"
)

// Signer fills in an event's author, id, and signature.
type Signer interface {
	// PublicKey returns the hex x-only public key events are signed
	// under.
	PublicKey() string

	// Sign returns a copy of e with PubKey, ID, and Sig set. The
	// caller sets CreatedAt, Kind, Tags, and Content.
	Sign(ctx context.Context, e event.Event) (event.Event, error)
}

// KeySigner signs with an in-memory secret key.
type KeySigner struct {
	secret *btcec.PrivateKey
	public string
}

// Generate returns a signer for a new random key.
func Generate() (*KeySigner, error) {
	secret, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generating secret key: %w", err)
	}
	return newKeySigner(secret), nil
}

// FromHex returns a signer for a 32-byte hex secret key.
func FromHex(secretHex string) (*KeySigner, error) {
	decoded, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("parsing secret key: %w", err)
	}
	if len(decoded) != 32 {
		return nil, fmt.Errorf("secret key is %d bytes, want 32", len(decoded))
	}
	secret, _ := btcec.PrivKeyFromBytes(decoded)
	if secret.Key.IsZero() {
		return nil, errors.New("secret key is zero")
	}
	return newKeySigner(secret), nil
}

func newKeySigner(secret *btcec.PrivateKey) *KeySigner {
	return &KeySigner{
		secret: secret,
		public: hex.EncodeToString(schnorr.SerializePubKey(secret.PubKey())),
	}
}

// PublicKey implements Signer.
func (s *KeySigner) PublicKey() string {
	return s.public
}

// SecretHex returns the hex secret key.
func (s *KeySigner) SecretHex() string {
	return hex.EncodeToString(s.secret.Serialize())
}

// Sign implements Signer.
func (s *KeySigner) Sign(ctx context.Context, e event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	e.PubKey = s.public
	e.ID = e.ComputeID()
	id, err := hex.DecodeString(e.ID)
	if err != nil {
		return event.Event{}, fmt.Errorf("decoding event id: %w", err)
	}
	signature, err := schnorr.Sign(s.secret, id)
	if err != nil {
		return event.Event{}, fmt.Errorf("signing event %s: %w", e.ID, err)
	}
	e.Sig = hex.EncodeToString(signature.Serialize())
	return e, nil
}

// Verify checks an event's id and signature.
func Verify(e *event.Event) error {
	if err := e.CheckID(); err != nil {
		return err
	}
	publicKey, err := hex.DecodeString(e.PubKey)
	if err != nil {
		return fmt.Errorf("event %s pubkey: %w", e.ID, err)
	}
	key, err := schnorr.ParsePubKey(publicKey)
	if err != nil {
		return fmt.Errorf("event %s pubkey: %w", e.ID, err)
	}
	signatureBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return fmt.Errorf("event %s signature: %w", e.ID, err)
	}
	signature, err := schnorr.ParseSignature(signatureBytes)
	if err != nil {
		return fmt.Errorf("event %s signature: %w", e.ID, err)
	}
	id, _ := hex.DecodeString(e.ID)
	if !signature.Verify(id, key) {
		return fmt.Errorf("event %s: signature does not verify", e.ID)
	}
	return nil
}
