// Package version models the numeric versions declared by service adapters and
// the running platform, and the closeness metric used to rank competing
// adapters against the running version.
//
// Versions are plain dot-separated sequences of non-negative integers
// ("1.12.2", "1.8"). Comparison zero-pads the shorter sequence, so "1.8" and
// "1.8.0" are equal.
package version

import (
	"strconv"
	"strings"
)

// Version is an immutable sequence of numeric components.
type Version struct {
	parts []uint64
	raw   string
}

// Parse splits raw on "." and parses every component as a base-10 integer.
//
//	v, err := version.Parse("1.12.2")
func Parse(raw string) (Version, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Version{}, &MalformedError{Raw: raw, Reason: "empty version"}
	}

	fields := strings.Split(trimmed, ".")
	parts := make([]uint64, 0, len(fields))
	for i, field := range fields {
		if field == "" {
			return Version{}, &MalformedError{Raw: raw, Reason: "empty component at position " + strconv.Itoa(i)}
		}
		n, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return Version{}, &MalformedError{Raw: raw, Reason: "non-numeric component " + strconv.Quote(field)}
		}
		parts = append(parts, n)
	}
	return Version{parts: parts, raw: trimmed}, nil
}

// MustParse is like Parse but panics on malformed input. Intended for
// literals in tests and package-level declarations.
func MustParse(raw string) Version {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseAll parses every entry of raws, failing on the first malformed one.
func ParseAll(raws []string) ([]Version, error) {
	out := make([]Version, 0, len(raws))
	for _, raw := range raws {
		v, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// IsZero reports whether v was never parsed.
func (v Version) IsZero() bool { return len(v.parts) == 0 }

// Len returns the number of declared components.
func (v Version) Len() int { return len(v.parts) }

// Component returns the i-th component, or 0 past the declared length.
func (v Version) Component(i int) uint64 {
	if i < 0 || i >= len(v.parts) {
		return 0
	}
	return v.parts[i]
}

// String returns the version as it was declared (trimmed).
func (v Version) String() string {
	if v.raw != "" {
		return v.raw
	}
	s := make([]string, len(v.parts))
	for i, p := range v.parts {
		s[i] = strconv.FormatUint(p, 10)
	}
	return strings.Join(s, ".")
}

// Equal reports whether a and b compare equal after zero-padding.
func (v Version) Equal(o Version) bool { return Compare(v, o) == 0 }

// Compare compares a and b, returning:
//
//	-1 if a < b
//	 0 if a == b
//	 1 if a > b
func Compare(a, b Version) int {
	n := max(len(a.parts), len(b.parts))
	for i := 0; i < n; i++ {
		x, y := a.Component(i), b.Component(i)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

// ── Closeness ─────────────────────────────────────────────────────────────────

// Distance is the per-component absolute difference between two versions.
// Distances compare lexicographically, so any gap in a more significant
// component outweighs every gap in the less significant ones.
type Distance []uint64

// Compare orders two distances; a negative result means d is nearer.
func (d Distance) Compare(o Distance) int {
	n := max(len(d), len(o))
	for i := 0; i < n; i++ {
		var x, y uint64
		if i < len(d) {
			x = d[i]
		}
		if i < len(o) {
			y = o[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

// IsZero reports whether the distance is exact (all components equal).
func (d Distance) IsZero() bool {
	for _, p := range d {
		if p != 0 {
			return false
		}
	}
	return true
}

// DistanceTo returns the distance between reference and candidate. The
// metric is symmetric.
func DistanceTo(reference, candidate Version) Distance {
	n := max(len(reference.parts), len(candidate.parts))
	d := make(Distance, n)
	for i := 0; i < n; i++ {
		x, y := reference.Component(i), candidate.Component(i)
		if x > y {
			d[i] = x - y
		} else {
			d[i] = y - x
		}
	}
	return d
}

// Closer compares how near a and b are to reference. It returns a negative
// number when a is strictly closer, a positive number when b is strictly
// closer, and 0 when both sit at the same distance.
func Closer(reference, a, b Version) int {
	return DistanceTo(reference, a).Compare(DistanceTo(reference, b))
}

// Best returns the entry of candidates closest to reference.
//
// Equidistant entries resolve to the greater version: with reference 1.1,
// Best picks 1.2 over 1.0. The boolean is false for an empty slice.
func Best(reference Version, candidates []Version) (Version, bool) {
	var best Version
	found := false
	for _, candidate := range candidates {
		if !found {
			best, found = candidate, true
			continue
		}
		c := Closer(reference, candidate, best)
		if c < 0 || (c == 0 && Compare(candidate, best) > 0) {
			best = candidate
		}
	}
	return best, found
}
