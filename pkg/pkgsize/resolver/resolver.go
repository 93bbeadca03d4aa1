// Package resolver maps import specifiers to paths inside a virtual file set
// using the conventions a bundler applies on a real node_modules tree.
//
// Resolution is a pure lookup: it never fetches, never mutates the set and
// reports unresolved specifiers as a plain false rather than an error. The
// bundler decides what an unresolved import means.
package resolver

import "strings"

// Lookup is the read side of a file set.
type Lookup interface {
	Has(path string) bool
}

// relativeSuffixes are probed, in order, after joining a relative specifier
// with the importer's directory.
var relativeSuffixes = []string{"", ".js", ".mjs", ".ts", "/index.js", "/index.mjs", "/index.ts"}

// bareSuffixes are probed, in order, under node_modules/<specifier>.
var bareSuffixes = []string{"", "/index.js", "/index.mjs", "/dist/index.js", "/lib/index.js"}

// RelativeSuffixes returns a copy of the relative probe order.
func RelativeSuffixes() []string {
	return append([]string(nil), relativeSuffixes...)
}

// IsRelative reports whether a specifier is relative to its importer.
func IsRelative(specifier string) bool {
	return specifier == "." || specifier == ".." ||
		strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../")
}

// Resolve returns the canonical path a specifier refers to, or false when no
// candidate exists in files.
func Resolve(specifier, importer string, files Lookup) (string, bool) {
	if specifier == "" {
		return "", false
	}

	if IsRelative(specifier) {
		base := Join(Dir(importer), specifier)
		return probe(base, relativeSuffixes, files)
	}

	// Anything else starting with "." is neither relative nor a package name.
	if strings.HasPrefix(specifier, ".") {
		return "", false
	}

	return probe(Normalize("node_modules/"+specifier), bareSuffixes, files)
}

func probe(base string, suffixes []string, files Lookup) (string, bool) {
	for _, suffix := range suffixes {
		candidate := base + suffix
		if base == "" {
			// The package root itself only has directory-style candidates.
			if !strings.HasPrefix(suffix, "/") {
				continue
			}
			candidate = suffix[1:]
		}
		if files.Has(candidate) {
			return candidate, true
		}
	}
	return "", false
}
