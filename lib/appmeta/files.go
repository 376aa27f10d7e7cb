// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package appmeta

import (
	"mime"
	"path"
	"slices"
	"strings"
)

// IndexNames are the accepted entry documents, in preference order.
var IndexNames = []string{"index.html", "index.htm"}

// FaviconExtensions are the accepted favicon formats, in preference
// order.
var FaviconExtensions = []string{"ico", "svg", "webp", "png", "jpg", "jpeg", "gif"}

// FindIndex returns the app's entry document among names, which are
// slash-separated paths relative to the app root. Only the root is
// searched; matching ignores case.
func FindIndex(names []string) (string, bool) {
	for _, want := range IndexNames {
		for _, name := range names {
			if strings.EqualFold(name, want) {
				return name, true
			}
		}
	}
	return "", false
}

// FindFavicon returns the app's favicon among names: a root-level
// favicon.<ext> with the most preferred extension. Matching ignores
// case.
func FindFavicon(names []string) (string, bool) {
	best, bestRank := "", len(FaviconExtensions)
	for _, name := range names {
		if strings.Contains(name, "/") {
			continue
		}
		lower := strings.ToLower(name)
		extension, found := strings.CutPrefix(lower, "favicon.")
		if !found {
			continue
		}
		if rank := slices.Index(FaviconExtensions, extension); rank >= 0 && rank < bestRank {
			best, bestRank = name, rank
		}
	}
	return best, best != ""
}

// webTypes covers the extensions a static web app ships, so results
// do not depend on the host's mime database.
var webTypes = map[string]string{
	".html":        "text/html",
	".htm":         "text/html",
	".css":         "text/css",
	".js":          "text/javascript",
	".mjs":         "text/javascript",
	".json":        "application/json",
	".map":         "application/json",
	".webmanifest": "application/manifest+json",
	".wasm":        "application/wasm",
	".svg":         "image/svg+xml",
	".ico":         "image/vnd.microsoft.icon",
	".png":         "image/png",
	".jpg":         "image/jpeg",
	".jpeg":        "image/jpeg",
	".gif":         "image/gif",
	".webp":        "image/webp",
	".avif":        "image/avif",
	".woff":        "font/woff",
	".woff2":       "font/woff2",
	".ttf":         "font/ttf",
	".otf":         "font/otf",
	".txt":         "text/plain",
	".xml":         "application/xml",
	".pdf":         "application/pdf",
	".mp3":         "audio/mpeg",
	".ogg":         "audio/ogg",
	".wav":         "audio/wav",
	".mp4":         "video/mp4",
	".webm":        "video/webm",
}

// DefaultMimeType is used for files with no known extension.
const DefaultMimeType = "application/octet-stream"

// MimeType returns the media type for a file name, without
// parameters.
func MimeType(name string) string {
	extension := strings.ToLower(path.Ext(name))
	if mediaType, found := webTypes[extension]; found {
		return mediaType
	}
	if extension != "" {
		if mediaType := mime.TypeByExtension(extension); mediaType != "" {
			if base, _, err := mime.ParseMediaType(mediaType); err == nil {
				return base
			}
		}
	}
	return DefaultMimeType
}
