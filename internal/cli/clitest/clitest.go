// © 2025 TGMF. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package clitest provides utilities for testing command-line applications.
package clitest

import (
	"bytes"
	"context"
	"errors"
	"maps"
	"strings"
	"testing"

	"github.com/tgmf/BCloyaltybot/internal/cli"
)

// AppFunc is a function that creates an app instance used in tests.
type AppFunc[App cli.App] func(t *testing.T) App

// Case defines a single test case for a command-line application.
type Case[App cli.App] struct {
	// Args are the command-line arguments passed to the application.
	Args []string
	// Env are environment variables visible to the application.
	Env map[string]string
	// WantErr is the error expected to be returned by the application.
	WantErr error
	// WantNothingPrinted asserts that nothing is written to stdout or stderr.
	WantNothingPrinted bool
	// WantInStdout is the string expected to be contained in stdout.
	WantInStdout string
	// WantInStderr is the string expected to be contained in stderr.
	WantInStderr string
	// CheckFunc is an optional function to perform additional checks after the
	// application run.
	CheckFunc func(t *testing.T, a App)
}

// Run runs the test cases against the application created by appFunc.
func Run[App cli.App](t *testing.T, appFunc AppFunc[App], cases map[string]Case[App]) {
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer

			env := maps.Clone(tc.Env)
			if env == nil {
				env = make(map[string]string)
			}

			app := appFunc(t)
			err := cli.Run(t.Context(), app, &cli.Env{
				Args:   tc.Args,
				Getenv: func(key string) string { return env[key] },
				Stdout: &stdout,
				Stderr: &stderr,
			})

			// Don't use errors.Is to compare errors, since we want to compare
			// the error message and not its chain.
			if err != nil && tc.WantErr == nil {
				t.Fatalf("want no error, got %v", err)
			}
			if err == nil && tc.WantErr != nil {
				t.Fatalf("want error %v, got nil", tc.WantErr)
			}
			if err != nil && tc.WantErr != nil {
				if !errors.Is(err, tc.WantErr) && err.Error() != tc.WantErr.Error() {
					t.Fatalf("want error %v, got %v", tc.WantErr, err)
				}
			}

			if tc.WantNothingPrinted {
				if stdout.String() != "" {
					t.Errorf("stdout should be empty, got: %q", stdout.String())
				}
				if stderr.String() != "" {
					t.Errorf("stderr should be empty, got: %q", stderr.String())
				}
			}

			if tc.WantInStdout != "" && !strings.Contains(stdout.String(), tc.WantInStdout) {
				t.Errorf("stdout should contain %q, got: %q", tc.WantInStdout, stdout.String())
			}
			if tc.WantInStderr != "" && !strings.Contains(stderr.String(), tc.WantInStderr) {
				t.Errorf("stderr should contain %q, got: %q", tc.WantInStderr, stderr.String())
			}

			if tc.CheckFunc != nil {
				tc.CheckFunc(t, app)
			}
		})
	}
}

// RunFunc is a function that runs an application.
type RunFunc func(ctx context.Context, env *cli.Env) error

// Run implements the [cli.App] interface.
func (f RunFunc) Run(ctx context.Context, env *cli.Env) error { return f(ctx, env) }
