package resolver

import "strings"

// Normalize cleans a slash separated path. Empty and "." segments are
// dropped, ".." pops the previous segment and popping past the root is a
// no-op. The result has no leading or trailing slash; the root is "".
func Normalize(p string) string {
	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))

	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}

	return strings.Join(out, "/")
}

// Join concatenates path elements with "/" and normalizes the result.
func Join(elem ...string) string {
	return Normalize(strings.Join(elem, "/"))
}

// Dir returns everything but the last element of a path. The directory of a
// root-level file is "".
func Dir(p string) string {
	p = Normalize(p)
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}
