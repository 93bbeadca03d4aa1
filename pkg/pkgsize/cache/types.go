package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
)

// SchemaVersion is incremented when the cached value format changes. Keys
// from older schemas are never read.
const SchemaVersion = 1

// KeySeparator separates key fields.
const KeySeparator = '\x00'

// Kind is the type of a cached value.
type Kind string

// Cached value kinds.
const (
	KindStats   Kind = "stats"
	KindExports Kind = "exports"
)

// schemaPrefix is "v<schema>".
func schemaPrefix() string {
	return "v" + strconv.Itoa(SchemaVersion)
}

// MakeKey creates a cache key.
// Format: v<schema>\x00<kind>\x00<name>@<version>\x00<options digest>
func MakeKey(kind Kind, name, ver, digest string) []byte {
	sep := string(KeySeparator)
	return []byte(schemaPrefix() + sep + string(kind) + sep + name + "@" + ver + sep + digest)
}

// ParseKey extracts the fields of a key made by MakeKey.
func ParseKey(key []byte) (kind Kind, spec, digest string, ok bool) {
	parts := bytes.Split(key, []byte{KeySeparator})
	if len(parts) != 4 || string(parts[0]) != schemaPrefix() {
		return "", "", "", false
	}
	return Kind(parts[1]), string(parts[2]), string(parts[3]), true
}

// MakeKeyPrefix returns the prefix of all keys of kind in the current
// schema. An empty kind matches every kind.
func MakeKeyPrefix(kind Kind) []byte {
	sep := string(KeySeparator)
	if kind == "" {
		return []byte(schemaPrefix() + sep)
	}
	return []byte(schemaPrefix() + sep + string(kind) + sep)
}

// Digest hashes the analysis options that change a result, so that results
// computed with different options never share a key.
func Digest(fields ...string) string {
	h := sha256.New()
	for _, f := range fields {
		h.Write([]byte(f))
		h.Write([]byte{KeySeparator})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Cacheable reports whether v names exactly one published version. Tags
// like "latest", ranges and partial versions resolve differently over time
// and are never cached.
func Cacheable(v string) bool {
	if v == "" || strings.HasPrefix(v, "v") {
		return false
	}
	parsed, err := version.NewSemver(v)
	if err != nil {
		return false
	}
	// NewSemver pads "1.2" to "1.2.0"; only a fully spelled version
	// round-trips.
	return parsed.String() == v
}
