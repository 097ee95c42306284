// Package uri resolves and compares the mixed path-or-URL references used by
// XBRL documents. Schemas and linkbases reference each other with relative
// hrefs, absolute URLs, or filesystem paths, and the same resource must be
// recognized regardless of which form a document used.
package uri

import (
	"regexp"
	"strings"
)

// Kind discriminates between filesystem and HTTP(S) locations.
type Kind int

const (
	// Local is a filesystem path.
	Local Kind = iota
	// Remote is an HTTP or HTTPS URL.
	Remote
)

// Location is a path-or-URL classified exactly once at the boundary, so the
// rest of the resolution logic never re-detects "does this start with http".
type Location struct {
	Kind  Kind
	Value string
}

// Classify wraps a raw reference in a Location.
func Classify(ref string) Location {
	if HasScheme(ref) {
		return Location{Kind: Remote, Value: ref}
	}
	return Location{Kind: Local, Value: ref}
}

// IsRemote reports whether the location is an HTTP(S) URL.
func (l Location) IsRemote() bool { return l.Kind == Remote }

func (l Location) String() string { return l.Value }

var schemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// HasScheme reports whether ref carries a URI scheme prefix.
func HasScheme(ref string) bool {
	return schemeRe.MatchString(ref)
}

// Resolve combines a base location (file or directory, path or URL) with a
// relative reference into an absolute location. If ref is already absolute it
// is returned unchanged.
//
// The base is treated as a file only when its last segment carries an
// extension; otherwise it is a directory. `..` segments are collapsed by
// removing each `..` together with the segment immediately preceding it,
// scanning left to right, once per occurrence.
func Resolve(base, ref string) string {
	if HasScheme(ref) {
		return ref
	}

	// Strip one leading "/" or "./" from the reference.
	ref = strings.TrimPrefix(ref, "/")
	ref = strings.TrimPrefix(ref, "./")

	// Normalize separators so Windows-style paths resolve like URLs.
	base = strings.ReplaceAll(base, "\\", "/")
	ref = strings.ReplaceAll(ref, "\\", "/")

	// Drop the file name if the base points at a file.
	segs := strings.Split(base, "/")
	if strings.Contains(segs[len(segs)-1], ".") {
		base = strings.Join(segs[:len(segs)-1], "/")
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	return collapseDotDot(base + ref)
}

func collapseDotDot(loc string) string {
	parts := strings.Split(loc, "/")
	for n := strings.Count(loc, "/.."); n > 0; n-- {
		for i := 0; i < len(parts)-1; i++ {
			if parts[i+1] == ".." {
				parts = append(parts[:i], parts[i+2:]...)
				break
			}
		}
	}
	return strings.Join(parts, "/")
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize strips the scheme and every non-alphanumeric character from a
// location, lowercased, for logical equality comparison.
func Normalize(loc string) string {
	if i := strings.Index(loc, "://"); i >= 0 {
		loc = loc[i+3:]
	}
	return nonAlnumRe.ReplaceAllString(strings.ToLower(loc), "")
}

// Equal reports whether two locations denote the same resource, ignoring the
// scheme (http vs https), separator style, and punctuation.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
