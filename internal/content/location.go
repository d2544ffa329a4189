package content

import (
	"strings"
)

// Separator joins location segments in text form. A separator or backslash
// inside a segment is escaped with a backslash.
const Separator = "/"

const escape = `\`

// Location is a hierarchical, path-like position of an item
// (for example a project path followed by the item name).
type Location struct {
	segments []string
}

// NewLocation builds a location from segments, dropping empty ones.
func NewLocation(segments ...string) Location {
	out := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return Location{}
	}
	return Location{segments: out}
}

// ParseLocation parses the text form "a/b/c". `\/` keeps a separator
// inside a segment.
func ParseLocation(s string) Location {
	var (
		segments []string
		cur      strings.Builder
	)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == escape[0] && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
		case c == Separator[0]:
			segments = append(segments, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	segments = append(segments, cur.String())
	return NewLocation(segments...)
}

// Segments returns a copy of the path segments.
func (l Location) Segments() []string { return append([]string(nil), l.segments...) }

// IsZero reports whether the location has no segments.
func (l Location) IsZero() bool { return len(l.segments) == 0 }

// Name is the last segment.
func (l Location) Name() string {
	if l.IsZero() {
		return ""
	}
	return l.segments[len(l.segments)-1]
}

// Parent drops the last segment.
func (l Location) Parent() Location {
	if len(l.segments) <= 1 {
		return Location{}
	}
	return NewLocation(l.segments[:len(l.segments)-1]...)
}

// Append returns a new location with extra segments.
func (l Location) Append(segments ...string) Location {
	return NewLocation(append(l.Segments(), segments...)...)
}

// HasPrefix reports whether prefix is an ancestor of (or equal to) l.
func (l Location) HasPrefix(prefix Location) bool {
	if len(prefix.segments) > len(l.segments) {
		return false
	}
	for i, s := range prefix.segments {
		if l.segments[i] != s {
			return false
		}
	}
	return true
}

// ReplacePrefix swaps the from prefix for to. ok is false when from is not a prefix.
func (l Location) ReplacePrefix(from, to Location) (Location, bool) {
	if !l.HasPrefix(from) {
		return l, false
	}
	rest := l.segments[len(from.segments):]
	return to.Append(rest...), true
}

// Equal compares segment by segment.
func (l Location) Equal(other Location) bool {
	if len(l.segments) != len(other.segments) {
		return false
	}
	for i := range l.segments {
		if l.segments[i] != other.segments[i] {
			return false
		}
	}
	return true
}

func (l Location) String() string { return strings.Join(l.segments, Separator) }

var segmentEscaper = strings.NewReplacer(escape, escape+escape, Separator, escape+Separator)

// Text is the escaped form accepted by ParseLocation.
func (l Location) Text() string {
	escaped := make([]string, len(l.segments))
	for i, s := range l.segments {
		escaped[i] = segmentEscaper.Replace(s)
	}
	return strings.Join(escaped, Separator)
}

// MarshalText implements encoding.TextMarshaler.
func (l Location) MarshalText() ([]byte, error) { return []byte(l.Text()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Location) UnmarshalText(b []byte) error {
	*l = ParseLocation(string(b))
	return nil
}
