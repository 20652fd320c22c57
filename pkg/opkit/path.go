package opkit

import (
	"fmt"
	"strings"
)

// Path is an ordered sequence of opaque, hashable segments identifying an
// operation in a Client registry. Segments are typically strings, integers,
// or uuid.UUIDs; any comparable type works.
type Path []any

// NewPath builds a Path from its segments.
func NewPath(segments ...any) Path {
	p := make(Path, len(segments))
	copy(p, segments)
	return p
}

// Append returns a new Path with segment appended, leaving the receiver
// untouched.
func (p Path) Append(segment any) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = segment
	return out
}

// Equal reports whether p and other name the same sequence of segments.
// Segments are compared with ==; a segment whose dynamic type is not
// comparable (a slice or map, say) will panic, matching the spec's
// requirement that Path segments be "opaque hashable segments".
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// IsPrefix reports whether p is a prefix of other (every segment of p
// appears, in order, as the leading segments of other). A Path is always a
// prefix of itself.
func (p Path) IsPrefix(other Path) bool {
	if len(p) > len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// key returns a deterministic string encoding suitable for use as a map
// key. Distinct segment types that stringify the same way (int64(1) vs
// "1") are kept apart by prefixing each segment with its dynamic type.
func (p Path) key() string {
	var b strings.Builder
	for i, seg := range p {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		fmt.Fprintf(&b, "%T:%v", seg, seg)
	}
	return b.String()
}

// String renders the path for logging.
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		parts[i] = fmt.Sprintf("%v", seg)
	}
	return "/" + strings.Join(parts, "/")
}
