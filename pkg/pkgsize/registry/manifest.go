package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

// GetPackageInfo fetches the manifest of name@version and its file listing.
// An empty version means the provider's latest.
//
// A missing manifest yields types.ErrPackageNotFound; transport failures
// and server errors yield types.ErrRegistryUnreachable.
func (c *Client) GetPackageInfo(ctx context.Context, name, version string) (*types.PackageDescriptor, error) {
	spec := types.FormatSpec(name, version)
	log := logger.With("package", spec, "provider", c.provider.ID)

	body, err := c.fetch(ctx, c.provider.url(spec, "package.json"))
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrPackageNotFound, spec)
		}
		var se *StatusError
		if errors.As(err, &se) {
			return nil, fmt.Errorf("%w: %v", types.ErrRegistryUnreachable, se)
		}
		return nil, err
	}

	var desc types.PackageDescriptor
	if err := json.Unmarshal([]byte(body), &desc); err != nil {
		return nil, fmt.Errorf("parsing manifest of %s: %w", spec, err)
	}
	if desc.Name == "" {
		desc.Name = name
	}
	if desc.Version == "" {
		desc.Version = version
	}

	// Pin file requests to the version the manifest reports so that a
	// "latest" lookup cannot mix files from two releases.
	pinned := types.FormatSpec(desc.Name, desc.Version)

	files, err := c.listFiles(ctx, pinned)
	if err != nil {
		log.Debug("listing unavailable, probing", "error", err)
		files = c.probeFiles(ctx, pinned)
	}
	desc.Files = files

	log.Debug("package info fetched", "version", desc.Version, "files", len(files))
	return &desc, nil
}

// listFiles fetches and flattens the directory tree. It fails for providers
// without a listing endpoint.
func (c *Client) listFiles(ctx context.Context, spec string) ([]types.FileEntry, error) {
	if !c.provider.Listing {
		return nil, fmt.Errorf("provider %s has no listing endpoint", c.provider.ID)
	}

	resp, err := c.do(ctx, http.MethodGet, c.provider.url(spec, "?meta"))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var root MetaNode
	if err := json.NewDecoder(resp.Body).Decode(&root); err != nil {
		return nil, fmt.Errorf("parsing listing of %s: %w", spec, err)
	}
	return Flatten(root), nil
}
