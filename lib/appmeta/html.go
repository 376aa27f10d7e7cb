// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package appmeta

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLMetadata is what an app's index.html says about it.
type HTMLMetadata struct {
	Title       string
	Description string
	Keywords    []string
}

// ParseHTML reads the first <title> and the description and keywords
// <meta> tags from r. Parsing stops at <body>. Keywords are split on
// commas, trimmed, lowercased, and deduplicated.
func ParseHTML(r io.Reader) (HTMLMetadata, error) {
	var metadata HTMLMetadata
	tokenizer := html.NewTokenizer(r)
	inTitle := false
	var title strings.Builder

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if err := tokenizer.Err(); !errors.Is(err, io.EOF) {
				return HTMLMetadata{}, fmt.Errorf("parsing html: %w", err)
			}
			metadata.Title = collapseSpace(title.String())
			return metadata, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttributes := tokenizer.TagName()
			switch atom.Lookup(name) {
			case atom.Title:
				inTitle = metadata.Title == "" && title.Len() == 0
			case atom.Meta:
				if hasAttributes {
					readMeta(tokenizer, &metadata)
				}
			case atom.Body:
				metadata.Title = collapseSpace(title.String())
				return metadata, nil
			}

		case html.TextToken:
			if inTitle {
				title.Write(tokenizer.Text())
			}

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if atom.Lookup(name) == atom.Title {
				inTitle = false
			}
		}
	}
}

func readMeta(tokenizer *html.Tokenizer, metadata *HTMLMetadata) {
	var name, content string
	for {
		key, value, more := tokenizer.TagAttr()
		switch strings.ToLower(string(key)) {
		case "name":
			name = strings.ToLower(strings.TrimSpace(string(value)))
		case "content":
			content = string(value)
		}
		if !more {
			break
		}
	}
	switch name {
	case "description":
		if metadata.Description == "" {
			metadata.Description = collapseSpace(content)
		}
	case "keywords":
		if metadata.Keywords == nil {
			metadata.Keywords = splitKeywords(content)
		}
	}
}

func splitKeywords(content string) []string {
	var keywords []string
	seen := make(map[string]bool)
	for _, keyword := range strings.Split(content, ",") {
		keyword = strings.ToLower(collapseSpace(keyword))
		if keyword == "" || seen[keyword] {
			continue
		}
		seen[keyword] = true
		keywords = append(keywords, keyword)
	}
	return keywords
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
