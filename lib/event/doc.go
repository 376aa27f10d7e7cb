// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package event defines the signed relay record, the query filter used
// to select records, and the deduplication rule that collapses
// superseded records.
//
// Events follow the NIP-01 shape: an id that is the SHA-256 of a
// canonical serialization, the author's x-only public key, a creation
// timestamp in seconds, a kind number, a list of string tags, a
// content string, and a Schnorr signature over the id. Parameterized
// replaceable events are identified by their address, the triple
// (kind, pubkey, "d" tag value); [Latest] keeps only the newest event
// per address.
package event
