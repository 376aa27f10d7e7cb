// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func quietRoot(subcommands ...*Command) (*Command, *bytes.Buffer) {
	var help bytes.Buffer
	return &Command{
		Name:        "napp",
		Subcommands: subcommands,
		Logger:      slog.New(slog.DiscardHandler),
		Stderr:      &help,
	}, &help
}

func TestExecuteDispatchesNested(t *testing.T) {
	var called string
	var received []string
	root, _ := quietRoot(&Command{
		Name: "fetch",
		Subcommands: []*Command{
			{Name: "file", Run: func(_ context.Context, args []string, _ *slog.Logger) error {
				called = "fetch file"
				received = args
				return nil
			}},
			{Name: "app", Run: func(context.Context, []string, *slog.Logger) error {
				called = "fetch app"
				return nil
			}},
		},
	})

	if err := root.Execute(t.Context(), []string{"fetch", "file", "abc", "def"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "fetch file" {
		t.Errorf("dispatched to %q", called)
	}
	if !slices.Equal(received, []string{"abc", "def"}) {
		t.Errorf("args = %v", received)
	}
}

func TestExecuteScopesLogger(t *testing.T) {
	var logs bytes.Buffer
	root, _ := quietRoot(&Command{
		Name: "listing",
		Subcommands: []*Command{{
			Name: "show",
			Run: func(_ context.Context, _ []string, logger *slog.Logger) error {
				logger.Info("hello")
				return nil
			},
		}},
	})
	root.Logger = slog.New(slog.NewTextHandler(&logs, nil))

	if err := root.Execute(t.Context(), []string{"listing", "show"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(logs.String(), "command=listing/show") {
		t.Errorf("log output %q lacks the command path", logs.String())
	}
}

func TestExecuteUnknownCommandSuggests(t *testing.T) {
	root, _ := quietRoot(&Command{Name: "upload", Run: func(context.Context, []string, *slog.Logger) error { return nil }})

	err := root.Execute(t.Context(), []string{"uplod"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "upload"`) {
		t.Fatalf("Execute = %v, want a suggestion", err)
	}
	if code, printed := ExitCodeFor(err); code != ExitValidation || !printed {
		t.Errorf("ExitCodeFor = %d, %v", code, printed)
	}
}

type testParams struct {
	JSONOutput
	Relays  []string      `flag:"relay,r" desc:"relay"`
	Cap     ByteSize      `flag:"cap" default:"1MiB" desc:"cap"`
	Timeout time.Duration `flag:"timeout" default:"5s" desc:"timeout"`
	Retries int           `flag:"retries" default:"3" desc:"retries"`
	Output  string        `flag:"output,o" desc:"output"`
	ignored string
}

func TestFlagsFromParams(t *testing.T) {
	var params testParams
	flagSet := FlagsFromParams("test", &params)
	if params.Cap != 1<<20 || params.Timeout != 5*time.Second || params.Retries != 3 {
		t.Fatalf("defaults = %+v", params)
	}

	err := flagSet.Parse([]string{"-r", "wss://a", "--relay", "wss://b", "--cap", "64k", "--json", "-o", "out.bin", "rest"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !slices.Equal(params.Relays, []string{"wss://a", "wss://b"}) {
		t.Errorf("Relays = %v", params.Relays)
	}
	if params.Cap != 64000 {
		t.Errorf("Cap = %d, want 64000", params.Cap)
	}
	if !params.OutputJSON || params.Output != "out.bin" {
		t.Errorf("params = %+v", params)
	}
	if !slices.Equal(flagSet.Args(), []string{"rest"}) {
		t.Errorf("Args = %v", flagSet.Args())
	}
}

func TestBindFlagsRejectsBadInput(t *testing.T) {
	if err := BindFlags(testParams{}, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags accepted a non-pointer")
	}
	var bad struct {
		Count int `flag:"count" default:"many"`
	}
	if err := BindFlags(&bad, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags accepted an unparseable default")
	}
	var unsupported struct {
		Ratio float32 `flag:"ratio"`
	}
	if err := BindFlags(&unsupported, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags accepted an unsupported type")
	}
}

func TestExecuteUnknownFlagSuggests(t *testing.T) {
	var params testParams
	root, _ := quietRoot(&Command{
		Name:  "fetch",
		Flags: func() *pflag.FlagSet { return FlagsFromParams("fetch", &params) },
		Run:   func(context.Context, []string, *slog.Logger) error { return nil },
	})

	err := root.Execute(t.Context(), []string{"fetch", "--retires", "2"})
	if err == nil || !strings.Contains(err.Error(), "did you mean --retries?") {
		t.Fatalf("Execute = %v, want a flag suggestion", err)
	}
}

func TestHelp(t *testing.T) {
	root, help := quietRoot(&Command{Name: "apps", Summary: "List an author's apps"})
	if err := root.Execute(t.Context(), []string{"--help"}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Usage:\n  napp <command> [flags]", "apps", "List an author's apps"} {
		if !strings.Contains(help.String(), want) {
			t.Errorf("help lacks %q:\n%s", want, help.String())
		}
	}
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		err     error
		code    int
		printed bool
	}{
		{nil, 0, false},
		{&ExitError{Code: 5}, 5, false},
		{NotFound("no app %q", "calc"), ExitNotFound, true},
		{Transient("relays down"), ExitTransient, true},
		{errors.New("boom"), ExitFailure, true},
	}
	for _, test := range tests {
		code, printed := ExitCodeFor(test.err)
		if code != test.code || printed != test.printed {
			t.Errorf("ExitCodeFor(%v) = %d, %v; want %d, %v", test.err, code, printed, test.code, test.printed)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"fetch", "fetch", 0},
		{"fetch", "fecth", 2},
		{"upload", "uplod", 1},
		{"kitten", "sitting", 3},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
		if got := levenshtein(test.b, test.a); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.b, test.a, got, test.want)
		}
	}
}

func TestEmitJSON(t *testing.T) {
	var output JSONOutput
	var buffer bytes.Buffer
	if done, err := output.EmitJSON(&buffer, []string(nil)); done || err != nil || buffer.Len() != 0 {
		t.Errorf("EmitJSON without --json = %v, %v", done, err)
	}
	output.OutputJSON = true
	if done, err := output.EmitJSON(&buffer, []string(nil)); !done || err != nil {
		t.Fatalf("EmitJSON = %v, %v", done, err)
	}
	if strings.TrimSpace(buffer.String()) != "[]" {
		t.Errorf("nil slice encoded as %q", buffer.String())
	}
}
