// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package record converts between relay events and the three typed
// records napp publishes: chunk records, app manifests, and app
// listings. Each record type is validated when it is parsed from an
// event, so code holding a record never re-checks tag shapes.
//
// Wire shapes:
//
//	chunk (kind 34600):    ["d", <chunk hash>]
//	                       ["c", "<root>:<index>", "<total>", <proof hash>...]  (one or more)
//	                       ["m", <mime type>]                                    (optional)
//	                       content: Base93 chunk bytes
//
//	manifest (kind 37448): ["d", <app id>]
//	                       ["file", <root>, <filename>, <mime type>]             (repeated)
//
//	listing (kind 37348):  ["d", <app id>]
//	                       ["c", <country code>]...
//	                       ["name", <name>] ["summary", <text>] ["icon", <root>, <mime type>]
//	                       ["l", <category>]... ["t", <hashtag>]...
//	                       ["auto", <field>]                                     (per derived field)
package record
