package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

// Installer is the package manager run inside an environment.
const Installer = "npm"

// manifestName names the throwaway project the package is installed into.
const manifestName = "pkgsize-sandbox"

// Installation is a package installed into an environment.
type Installation struct {
	Descriptor types.PackageDescriptor

	// PackedSize and UnpackedSize come from the installer's dry-run pack
	// report, or from walking the installed directory when the report is
	// unavailable. They describe the published tarball, not a bundle.
	PackedSize   int64
	UnpackedSize int64
	FileCount    int
}

// Usager is implemented by environments that can measure disk usage.
type Usager interface {
	Usage(path string) (int64, error)
}

// packReport is one element of `npm pack --dry-run --json`.
type packReport struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	Size         int64  `json:"size"`
	UnpackedSize int64  `json:"unpackedSize"`
	EntryCount   int    `json:"entryCount"`
}

// Install installs name@version into env without running lifecycle scripts
// and reads back the installed manifest.
func Install(ctx context.Context, env Environment, name, version string) (*Installation, error) {
	if version == "" {
		version = "latest"
	}

	manifest, err := json.MarshalIndent(map[string]any{
		"name":         manifestName,
		"private":      true,
		"dependencies": map[string]string{name: version},
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := env.Mount(ctx, map[string]string{"package.json": string(manifest)}); err != nil {
		return nil, fmt.Errorf("mounting manifest: %w", err)
	}

	logger.Info("installing", "package", name, "version", version)
	proc, err := env.Spawn(ctx, Installer, "install", "--ignore-scripts", "--no-audit", "--no-fund")
	if err != nil {
		return nil, err
	}
	if !proc.Success() {
		return nil, fmt.Errorf("%s install exited with code %d: %s", Installer, proc.ExitCode, lastLine(proc.Output))
	}

	dir := path.Join("node_modules", name)
	raw, err := env.ReadFile(ctx, path.Join(dir, "package.json"))
	if err != nil {
		return nil, fmt.Errorf("reading installed manifest: %w", err)
	}
	var desc types.PackageDescriptor
	if err := json.Unmarshal([]byte(raw), &desc); err != nil {
		return nil, fmt.Errorf("parsing installed manifest: %w", err)
	}
	if desc.Name == "" {
		desc.Name = name
	}

	inst := &Installation{Descriptor: desc}
	if report, ok := pack(ctx, env, dir); ok {
		inst.PackedSize = report.Size
		inst.UnpackedSize = report.UnpackedSize
		inst.FileCount = report.EntryCount
		return inst, nil
	}

	if u, ok := env.(Usager); ok {
		if n, err := u.Usage(dir); err == nil {
			inst.UnpackedSize = n
		}
	}
	return inst, nil
}

func pack(ctx context.Context, env Environment, dir string) (packReport, bool) {
	proc, err := env.Spawn(ctx, Installer, "pack", "./"+dir, "--dry-run", "--json", "--ignore-scripts")
	if err != nil || !proc.Success() {
		logger.Debug("pack report unavailable", "dir", dir, "error", err)
		return packReport{}, false
	}

	var reports []packReport
	if err := json.Unmarshal([]byte(jsonPayload(proc.Output)), &reports); err != nil || len(reports) == 0 {
		logger.Debug("pack report unparseable", "dir", dir, "error", err)
		return packReport{}, false
	}
	return reports[0], true
}

// jsonPayload drops anything the installer printed before the JSON array.
func jsonPayload(out string) string {
	if i := strings.Index(out, "["); i >= 0 {
		return out[i:]
	}
	return out
}

func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	return lines[len(lines)-1]
}
