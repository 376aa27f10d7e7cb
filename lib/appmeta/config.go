// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package appmeta

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/tidwall/jsonc"
)

// ConfigFileName is the optional per-app configuration at the app
// root. It is read, never uploaded.
const ConfigFileName = "napp.jsonc"

// AppConfig is the content of napp.jsonc: JSON with comments and
// trailing commas. Every listing field is a pointer so that an empty
// value the publisher wrote on purpose is told apart from one left
// out.
type AppConfig struct {
	// ID overrides the app id derived from the directory name.
	ID string `json:"id,omitempty"`

	Name    *string `json:"name,omitempty"`
	Summary *string `json:"summary,omitempty"`

	// Icon is the path of the icon file within the app, overriding
	// favicon discovery.
	Icon *string `json:"icon,omitempty"`

	Categories *[]string `json:"categories,omitempty"`
	Hashtags   *[]string `json:"hashtags,omitempty"`
	Countries  *[]string `json:"countries,omitempty"`
}

// ParseConfig parses napp.jsonc content.
func ParseConfig(data []byte) (AppConfig, error) {
	var config AppConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &config); err != nil {
		return AppConfig{}, fmt.Errorf("parsing %s: %w", ConfigFileName, err)
	}
	if config.ID != "" && !IsAppID(config.ID) {
		return AppConfig{}, fmt.Errorf("%s: id %q must be 1-%d characters of [0-9a-z]", ConfigFileName, config.ID, MaxAppIDLength)
	}
	return config, nil
}

// ReadConfig reads napp.jsonc from the root of fsys. A missing file
// yields a zero AppConfig.
func ReadConfig(fsys fs.FS) (AppConfig, error) {
	data, err := fs.ReadFile(fsys, ConfigFileName)
	if errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, nil
	}
	if err != nil {
		return AppConfig{}, fmt.Errorf("reading %s: %w", ConfigFileName, err)
	}
	return ParseConfig(data)
}
