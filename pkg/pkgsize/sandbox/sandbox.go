// Package sandbox provides isolated environments for installing a package
// with a real package manager.
//
// An Environment is acquired with WithEnvironment, which builds a fresh
// handle from a Factory, checks Supports before acquiring anything and
// tears the handle down on every exit path. Handles are never shared
// between analyses.
package sandbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/logging"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

var logger = logging.Get("sandbox")

// Process is the outcome of a spawned command.
type Process struct {
	ExitCode int
	Output   string
}

// Success reports a zero exit code.
func (p *Process) Success() bool {
	return p != nil && p.ExitCode == 0
}

// Environment is an isolated execution context with its own file tree.
// Paths are relative to the environment root.
type Environment interface {
	// Supports reports whether the environment can run on this host.
	Supports() bool
	Init(ctx context.Context) error
	Teardown(ctx context.Context) error

	// Mount writes files into the environment, creating parent
	// directories.
	Mount(ctx context.Context, files map[string]string) error
	Spawn(ctx context.Context, command string, args ...string) (*Process, error)
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, contents string) error
}

// Factory returns a new, uninitialized Environment for one analysis.
type Factory func() Environment

// Local is the Factory for LocalEnvironment.
func Local() Environment {
	return NewLocal()
}

// WithEnvironment builds an environment with newEnv, initializes it, runs
// fn, and tears it down whether fn succeeds, fails or panics. Unsupported
// environments fail with types.ErrSandboxUnsupported before anything is
// acquired.
func WithEnvironment(ctx context.Context, newEnv Factory, fn func(Environment) error) (err error) {
	if newEnv == nil {
		return types.ErrSandboxUnsupported
	}
	env := newEnv()
	if env == nil || !env.Supports() {
		return types.ErrSandboxUnsupported
	}
	if err := env.Init(ctx); err != nil {
		return fmt.Errorf("initializing sandbox: %w", err)
	}

	defer func() {
		// Teardown must run even when the caller's context is done.
		if tdErr := env.Teardown(context.WithoutCancel(ctx)); tdErr != nil {
			logger.Warn("sandbox teardown failed", "error", tdErr)
			err = errors.Join(err, fmt.Errorf("tearing down sandbox: %w", tdErr))
		}
	}()

	return fn(env)
}
