package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPackageNotFound indicates the manifest fetch returned not found.
	ErrPackageNotFound = errors.New("package not found")

	// ErrRegistryUnreachable indicates a transport-level failure talking to the registry.
	ErrRegistryUnreachable = errors.New("registry unreachable")

	// ErrEntryPointUnresolved indicates no usable entry file was found by any strategy.
	ErrEntryPointUnresolved = errors.New("entry point unresolved")

	// ErrSandboxUnsupported indicates the sandbox strategy was requested but the
	// environment cannot provide isolation.
	ErrSandboxUnsupported = errors.New("sandbox environment not supported")

	// ErrInvalidSpec indicates a package spec string could not be parsed.
	ErrInvalidSpec = errors.New("invalid package spec")
)

// BundleError carries the bundler engine's diagnostics.
type BundleError struct {
	Messages []string
}

func (e *BundleError) Error() string {
	if len(e.Messages) == 0 {
		return "bundle failed"
	}
	return "bundle failed: " + strings.Join(e.Messages, "; ")
}

// AnalysisError ties a fatal failure to the analysis request that produced it.
type AnalysisError struct {
	Name    string
	Version string
	Err     error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s: %v", FormatSpec(e.Name, e.Version), e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// WrapAnalysis wraps err with the package name and version. A nil err stays nil.
func WrapAnalysis(name, version string, err error) error {
	if err == nil {
		return nil
	}
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return err
	}
	return &AnalysisError{Name: name, Version: version, Err: err}
}
