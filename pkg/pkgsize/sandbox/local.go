package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
	"golang.org/x/sys/unix"
)

// ErrNotInitialized is returned by operations on an environment that has
// not been initialized or was torn down.
var ErrNotInitialized = errors.New("sandbox not initialized")

// LocalEnvironment runs commands in a throwaway directory on the host.
// Isolation is process level, not a VM: each handle owns its own root,
// commands see a scrubbed environment whose HOME and npm cache live inside
// that root, and Install passes --ignore-scripts so no package code runs.
//
// A handle serves one analysis. Build one per analysis with Local.
type LocalEnvironment struct {
	// lookPath and tempDir are swapped in tests.
	lookPath func(string) (string, error)
	tempDir  string

	root string
}

var _ Environment = (*LocalEnvironment)(nil)

// NewLocal returns a LocalEnvironment using npm.
func NewLocal() *LocalEnvironment {
	return &LocalEnvironment{lookPath: exec.LookPath}
}

// Supports reports whether the isolation above can be provided: the
// installer binary is on PATH and the temp directory the root is created
// in is a writable directory.
func (e *LocalEnvironment) Supports() bool {
	look := e.lookPath
	if look == nil {
		look = exec.LookPath
	}
	if _, err := look(Installer); err != nil {
		return false
	}
	return unix.Access(e.parent(), unix.W_OK|unix.X_OK) == nil
}

// parent is the directory roots are created in.
func (e *LocalEnvironment) parent() string {
	if e.tempDir != "" {
		return e.tempDir
	}
	return os.TempDir()
}

// Root is the environment directory, empty before Init.
func (e *LocalEnvironment) Root() string {
	return e.root
}

// Init creates the environment directory.
func (e *LocalEnvironment) Init(context.Context) error {
	if e.root != "" {
		return nil
	}
	dir, err := os.MkdirTemp(e.parent(), "pkgsize-sandbox-*")
	if err != nil {
		return err
	}
	e.root = dir
	logger.Debug("sandbox created", "root", dir)
	return nil
}

// Teardown removes the environment directory.
func (e *LocalEnvironment) Teardown(context.Context) error {
	if e.root == "" {
		return nil
	}
	root := e.root
	e.root = ""
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("removing %q: %w", root, err)
	}
	logger.Debug("sandbox removed", "root", root)
	return nil
}

// path maps an environment path to the host, refusing paths that escape
// the root.
func (e *LocalEnvironment) path(p string) (string, error) {
	if e.root == "" {
		return "", ErrNotInitialized
	}
	clean := filepath.Clean(filepath.Join(e.root, filepath.FromSlash(p)))
	if clean != e.root && !strings.HasPrefix(clean, e.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the sandbox", p)
	}
	return clean, nil
}

// Mount implements Environment.
func (e *LocalEnvironment) Mount(ctx context.Context, files map[string]string) error {
	for p, contents := range files {
		if err := e.WriteFile(ctx, p, contents); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile implements Environment.
func (e *LocalEnvironment) WriteFile(_ context.Context, p, contents string) error {
	host, err := e.path(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(host), 0o755); err != nil {
		return err
	}
	return os.WriteFile(host, []byte(contents), 0o644)
}

// ReadFile implements Environment.
func (e *LocalEnvironment) ReadFile(_ context.Context, p string) (string, error) {
	host, err := e.path(p)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(host)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Spawn runs command in the environment root and waits for it. A non-zero
// exit is reported through Process, not as an error.
func (e *LocalEnvironment) Spawn(ctx context.Context, command string, args ...string) (*Process, error) {
	if e.root == "" {
		return nil, ErrNotInitialized
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, command, args...) //nolint:gosec // command comes from the analyzer, not user input
	cmd.Dir = e.root
	cmd.Env = e.env()
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return &Process{ExitCode: 0, Output: out.String()}, nil
	case errors.As(err, &exitErr):
		return &Process{ExitCode: exitErr.ExitCode(), Output: out.String()}, nil
	default:
		return nil, fmt.Errorf("running %s: %w", command, err)
	}
}

// env keeps only what the installer needs and points its home and cache
// inside the sandbox.
func (e *LocalEnvironment) env() []string {
	env := []string{
		"HOME=" + e.root,
		"npm_config_cache=" + filepath.Join(e.root, ".npm"),
		"npm_config_update_notifier=false",
		"npm_config_fund=false",
		"npm_config_audit=false",
	}
	for _, key := range []string{"PATH", "TMPDIR", "HTTPS_PROXY", "HTTP_PROXY", "NO_PROXY", "npm_config_registry"} {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}
	return env
}

// Usage sums the size of regular files under p.
func (e *LocalEnvironment) Usage(p string) (int64, error) {
	host, err := e.path(p)
	if err != nil {
		return 0, err
	}

	var total atomic.Int64
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, host, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total.Add(info.Size())
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total.Load(), nil
}
