// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package publish writes files and apps to relays.
//
// [Uploader] is the write path: it splits a file into chunks, builds
// the Merkle tree, skips chunks the author has already published under
// the same locator, and hands each chunk event to a [Publisher].
// [Publisher] owns the retry state machine for one event: it sends to
// every relay, drops relays that fail for good, and retries the ones
// that rate-limited after the delay held by a [Backoff]. One Backoff is
// shared by every publish of an upload so repeated rate limiting keeps
// slowing the whole upload down instead of resetting per chunk.
//
// Chunk publishes within a file are strictly sequential. Files of an
// app may upload concurrently (Uploader.FileConcurrency).
package publish
