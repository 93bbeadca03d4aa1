package types

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// namePattern accepts plain and scoped npm package names.
var namePattern = regexp.MustCompile(`^(@[a-z0-9][a-z0-9._~-]*/)?[a-z0-9._~-][a-z0-9._~-]*$`)

// ParseSpec splits "name" or "name@version" into its parts.
// Scoped names keep their leading "@". An empty version means latest.
func ParseSpec(spec string) (name, version string, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", "", fmt.Errorf("%w: empty string", ErrInvalidSpec)
	}

	at := strings.LastIndex(spec, "@")
	if at > 0 {
		name, version = spec[:at], spec[at+1:]
		if version == "" {
			return "", "", fmt.Errorf("%w: %q has an empty version", ErrInvalidSpec, spec)
		}
	} else {
		name = spec
	}

	if !namePattern.MatchString(strings.ToLower(name)) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidSpec, spec)
	}
	return name, version, nil
}

// FormatSpec joins a name and optional version into a spec string.
func FormatSpec(name, version string) string {
	if version == "" {
		return name
	}
	return name + "@" + version
}

// FormatSize renders a byte count with binary (IEC) units.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// ParseSize parses a human-readable size such as "10K" or "1.5MiB".
// Plain numbers are bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("invalid size: empty string")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("invalid size %q: cannot be negative", s)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}

	// humanize treats "K" as 1000; single letter suffixes mean IEC units here.
	upper := strings.ToUpper(s)
	if last := upper[len(upper)-1]; strings.ContainsRune("KMGT", rune(last)) {
		s += "iB"
	}
	n, err := humanize.ParseBigBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n.Int64(), nil
}
