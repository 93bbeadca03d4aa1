package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownProvider is returned for a provider id with no URL convention.
var ErrUnknownProvider = errors.New("unknown registry provider")

// Provider ids.
const (
	Unpkg    = "unpkg"
	JSDelivr = "jsdelivr"
	Skypack  = "skypack"
	ESM      = "esm"
)

// DefaultProvider is used when no provider is configured.
const DefaultProvider = Unpkg

// Provider is a CDN that serves published package files at
// base/<name>[@version]/<path>.
type Provider struct {
	ID   string
	Base string

	// Listing is true when the provider answers base/<spec>/?meta with a
	// directory tree.
	Listing bool
}

var providers = map[string]Provider{
	Unpkg:    {ID: Unpkg, Base: "https://unpkg.com", Listing: true},
	JSDelivr: {ID: JSDelivr, Base: "https://cdn.jsdelivr.net/npm"},
	Skypack:  {ID: Skypack, Base: "https://cdn.skypack.dev"},
	ESM:      {ID: ESM, Base: "https://esm.sh"},
}

// LookupProvider returns the provider registered under id.
func LookupProvider(id string) (Provider, error) {
	if id == "" {
		id = DefaultProvider
	}
	p, ok := providers[strings.ToLower(id)]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %q (available: %s)", ErrUnknownProvider, id, strings.Join(Providers(), ", "))
	}
	return p, nil
}

// Providers returns the known provider ids, sorted.
func Providers() []string {
	ids := make([]string, 0, len(providers))
	for id := range providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// url builds base/<spec>/<path>. An empty path yields base/<spec>/.
func (p Provider) url(spec, path string) string {
	return strings.TrimSuffix(p.Base, "/") + "/" + spec + "/" + strings.TrimPrefix(path, "/")
}
