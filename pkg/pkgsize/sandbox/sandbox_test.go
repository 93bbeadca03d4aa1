package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

// fakeEnv is an in-memory Environment with scripted command results.
type fakeEnv struct {
	supported bool
	initErr   error

	inits     int
	teardowns int
	files     map[string]string
	spawned   []string
	spawn     func(command string, args []string) (*Process, error)
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{supported: true, files: map[string]string{}}
}

func (f *fakeEnv) Supports() bool { return f.supported }

func (f *fakeEnv) factory() Environment { return f }

func (f *fakeEnv) Init(context.Context) error {
	f.inits++
	return f.initErr
}

func (f *fakeEnv) Teardown(context.Context) error {
	f.teardowns++
	return nil
}

func (f *fakeEnv) Mount(ctx context.Context, files map[string]string) error {
	for p, c := range files {
		_ = f.WriteFile(ctx, p, c)
	}
	return nil
}

func (f *fakeEnv) Spawn(_ context.Context, command string, args ...string) (*Process, error) {
	f.spawned = append(f.spawned, command+" "+strings.Join(args, " "))
	if f.spawn == nil {
		return &Process{}, nil
	}
	return f.spawn(command, args)
}

func (f *fakeEnv) ReadFile(_ context.Context, p string) (string, error) {
	c, ok := f.files[p]
	if !ok {
		return "", os.ErrNotExist
	}
	return c, nil
}

func (f *fakeEnv) WriteFile(_ context.Context, p, contents string) error {
	f.files[p] = contents
	return nil
}

func TestWithEnvironmentUnsupported(t *testing.T) {
	env := newFakeEnv()
	env.supported = false

	called := false
	err := WithEnvironment(context.Background(), env.factory, func(Environment) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, types.ErrSandboxUnsupported)
	assert.False(t, called)
	assert.Zero(t, env.inits, "nothing is acquired when unsupported")
	assert.Zero(t, env.teardowns)
}

func TestWithEnvironmentTearsDownOnEveryPath(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		env := newFakeEnv()
		require.NoError(t, WithEnvironment(context.Background(), env.factory, func(Environment) error { return nil }))
		assert.Equal(t, 1, env.teardowns)
	})

	t.Run("error", func(t *testing.T) {
		env := newFakeEnv()
		boom := errors.New("boom")
		err := WithEnvironment(context.Background(), env.factory, func(Environment) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, env.teardowns)
	})

	t.Run("panic", func(t *testing.T) {
		env := newFakeEnv()
		assert.Panics(t, func() {
			_ = WithEnvironment(context.Background(), env.factory, func(Environment) error { panic("analysis blew up") })
		})
		assert.Equal(t, 1, env.teardowns)
	})

	t.Run("canceled context", func(t *testing.T) {
		env := newFakeEnv()
		ctx, cancel := context.WithCancel(context.Background())
		_ = WithEnvironment(ctx, env.factory, func(Environment) error {
			cancel()
			return ctx.Err()
		})
		assert.Equal(t, 1, env.teardowns)
	})
}

func TestWithEnvironmentInitFailure(t *testing.T) {
	env := newFakeEnv()
	env.initErr = errors.New("no space")

	err := WithEnvironment(context.Background(), env.factory, func(Environment) error { return nil })
	assert.ErrorContains(t, err, "no space")
	assert.Zero(t, env.teardowns)
}

func TestInstall(t *testing.T) {
	env := newFakeEnv()
	env.spawn = func(command string, args []string) (*Process, error) {
		switch args[0] {
		case "install":
			env.files["node_modules/left-pad/package.json"] = `{"name":"left-pad","version":"1.3.0","main":"index.js","dependencies":{"a":"1"}}`
			return &Process{}, nil
		case "pack":
			return &Process{Output: "npm notice\n" + `[{"name":"left-pad","version":"1.3.0","size":2100,"unpackedSize":5000,"entryCount":4}]`}, nil
		}
		return &Process{ExitCode: 1}, nil
	}

	inst, err := Install(context.Background(), env, "left-pad", "1.3.0")
	require.NoError(t, err)

	assert.Contains(t, env.files["package.json"], `"left-pad": "1.3.0"`)
	assert.Equal(t, "npm install --ignore-scripts --no-audit --no-fund", env.spawned[0])
	assert.Equal(t, "1.3.0", inst.Descriptor.Version)
	assert.Len(t, inst.Descriptor.Dependencies, 1)
	assert.Equal(t, int64(2100), inst.PackedSize)
	assert.Equal(t, int64(5000), inst.UnpackedSize)
	assert.Equal(t, 4, inst.FileCount)
}

func TestInstallFailure(t *testing.T) {
	env := newFakeEnv()
	env.spawn = func(string, []string) (*Process, error) {
		return &Process{ExitCode: 1, Output: "npm ERR! 404 Not Found\nnpm ERR! missing"}, nil
	}

	_, err := Install(context.Background(), env, "nope", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with code 1")
	assert.Contains(t, err.Error(), "npm ERR! missing")
	assert.Contains(t, env.files["package.json"], `"nope": "latest"`)
}

func TestLocalEnvironmentFiles(t *testing.T) {
	env := NewLocal()
	ctx := context.Background()

	_, err := env.ReadFile(ctx, "x")
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, env.Init(ctx))
	root := env.Root()
	require.DirExists(t, root)

	require.NoError(t, env.Mount(ctx, map[string]string{
		"package.json":     "{}",
		"lib/deep/a.js":    "12345",
		"lib/deep/b.js":    "678",
		"node_modules/x/y": "",
	}))

	got, err := env.ReadFile(ctx, "lib/deep/a.js")
	require.NoError(t, err)
	assert.Equal(t, "12345", got)

	n, err := env.Usage("lib")
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	assert.Error(t, env.WriteFile(ctx, "../escape.txt", "x"))
	_, err = os.Stat(filepath.Join(filepath.Dir(root), "escape.txt"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, env.Teardown(ctx))
	assert.NoDirExists(t, root)
	assert.Empty(t, env.Root())
	require.NoError(t, env.Teardown(ctx), "teardown is idempotent")
}

func TestLocalEnvironmentSpawn(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	env := NewLocal()
	ctx := context.Background()
	require.NoError(t, env.Init(ctx))
	defer func() { _ = env.Teardown(ctx) }()

	proc, err := env.Spawn(ctx, "/bin/sh", "-c", `echo "$HOME"; exit 3`)
	require.NoError(t, err)
	assert.Equal(t, 3, proc.ExitCode)
	assert.False(t, proc.Success())
	assert.Equal(t, env.Root(), strings.TrimSpace(proc.Output))

	_, err = env.Spawn(ctx, "/definitely/not/a/binary")
	assert.Error(t, err)
}

func TestLocalEnvironmentSupports(t *testing.T) {
	env := &LocalEnvironment{lookPath: func(string) (string, error) { return "", errors.New("not found") }}
	assert.False(t, env.Supports())

	env.lookPath = foundInstaller
	assert.True(t, env.Supports())

	env.tempDir = filepath.Join(t.TempDir(), "missing")
	assert.False(t, env.Supports(), "no directory to create the root in")
}

func foundInstaller(name string) (string, error) { return "/usr/bin/" + name, nil }

func TestWithEnvironmentNilFactory(t *testing.T) {
	err := WithEnvironment(context.Background(), nil, func(Environment) error { return nil })
	assert.ErrorIs(t, err, types.ErrSandboxUnsupported)

	err = WithEnvironment(context.Background(), func() Environment { return nil }, func(Environment) error { return nil })
	assert.ErrorIs(t, err, types.ErrSandboxUnsupported)
}

// Two overlapping analyses on one factory each get their own root, and
// the first to finish does not tear down the second.
func TestWithEnvironmentConcurrentHandles(t *testing.T) {
	parent := t.TempDir()
	newEnv := func() Environment {
		return &LocalEnvironment{lookPath: foundInstaller, tempDir: parent}
	}
	ctx := context.Background()

	var (
		wg           sync.WaitGroup
		rootA, rootB string
		readBack     string
		errA, errB   error
		readErr      error
	)
	bWrote := make(chan struct{})
	markWritten := sync.OnceFunc(func() { close(bWrote) })
	aDone := make(chan struct{})

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(aDone)
		errA = WithEnvironment(ctx, newEnv, func(env Environment) error {
			rootA = env.(*LocalEnvironment).Root()
			<-bWrote
			return env.WriteFile(ctx, "a.txt", "a")
		})
	}()
	go func() {
		defer wg.Done()
		defer markWritten()
		errB = WithEnvironment(ctx, newEnv, func(env Environment) error {
			rootB = env.(*LocalEnvironment).Root()
			if err := env.WriteFile(ctx, "b.txt", "b"); err != nil {
				return err
			}
			markWritten()
			<-aDone
			readBack, readErr = env.ReadFile(ctx, "b.txt")
			return readErr
		})
	}()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	require.NoError(t, readErr)
	assert.Equal(t, "b", readBack)
	assert.NotEmpty(t, rootA)
	assert.NotEqual(t, rootA, rootB)
	assert.NoDirExists(t, rootA)
	assert.NoDirExists(t, rootB)

	left, err := os.ReadDir(parent)
	require.NoError(t, err)
	assert.Empty(t, left, "every root is removed")
}
