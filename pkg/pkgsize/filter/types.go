// Package filter provides filtering, sorting, and limiting of export size
// lists. It supports glob patterns on export paths, a minimum size, and
// configurable sorting and limits.
package filter

import (
	"errors"
	"fmt"
	"strings"
)

// SortField specifies the field to sort exports by.
type SortField int

const (
	// SortSize sorts by minified size.
	SortSize SortField = iota
	// SortGzip sorts by compressed size.
	SortGzip
	// SortPath sorts by path alphabetically.
	SortPath
	// SortName sorts by export name alphabetically.
	SortName
)

// Sort field string constants.
const (
	sortFieldSize = "size"
	sortFieldGzip = "gzip"
	sortFieldPath = "path"
	sortFieldName = "name"
)

// String returns the string representation of the sort field.
func (s SortField) String() string {
	switch s {
	case SortSize:
		return sortFieldSize
	case SortGzip:
		return sortFieldGzip
	case SortPath:
		return sortFieldPath
	case SortName:
		return sortFieldName
	default:
		return sortFieldSize
	}
}

// ErrInvalidSortField indicates that the sort field string could not be parsed.
var ErrInvalidSortField = errors.New("invalid sort field")

// ErrInvalidPattern indicates a glob pattern that does not compile.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// ParseSortField parses a string into a SortField.
// Valid values are "size", "gzip", "path" and "name" (case-insensitive).
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case sortFieldSize, "":
		return SortSize, nil
	case sortFieldGzip:
		return SortGzip, nil
	case sortFieldPath:
		return SortPath, nil
	case sortFieldName:
		return SortName, nil
	default:
		return SortSize, fmt.Errorf("%w: %q", ErrInvalidSortField, s)
	}
}

// Ascending reports whether the field sorts ascending by default. Sizes
// list largest first; names list alphabetically.
func (s SortField) Ascending() bool {
	return s == SortPath || s == SortName
}
