// version.go
//
// Ordering of engine revision strings such as "2020.3.34f1".
// A revision is reduced to (major, minor, patch, build, buildType); only the
// numeric triple takes part in equality and ordering. Partial comparisons
// against a major-only or major+minor bound compare just that prefix, which
// is how the archive format gates its layout changes.

package unitypack

import (
	"cmp"
	"fmt"
	"regexp"
	"strconv"
)

var (
	versionDigits    = regexp.MustCompile(`\d+`)
	versionNonDigits = regexp.MustCompile(`\D+`)
)

// Version is a parsed engine revision.
//
// The zero triple (0.0.0) is a "stripped" revision: the build pipeline
// removed the real value. Callers must treat a stripped revision as
// always-compatible and never range-check it numerically.
type Version struct {
	Major int
	Minor int
	Patch int

	// Build and BuildType are informational ("f" and 1 in "2020.3.34f1").
	Build     int
	BuildType string

	// Full is the string the value was parsed from.
	Full string
}

// ParseVersion parses a revision string.
//
// The first three runs of decimal digits become major, minor and patch; a
// fourth run, if present, is the build number. The third run of non-digit
// characters, if present, is the build type. Anything with fewer than
// three numeric components is rejected with ErrMalformedVersion.
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return Version{}, fmt.Errorf("%w: version cannot be empty", ErrMalformedVersion)
	}

	nums := versionDigits.FindAllString(s, -1)
	if len(nums) < 3 {
		return Version{}, fmt.Errorf("%w: failed to parse %q", ErrMalformedVersion, s)
	}
	parts := make([]int, len(nums))
	for i, n := range nums {
		v, err := strconv.Atoi(n)
		if err != nil {
			return Version{}, fmt.Errorf("%w: failed to parse %q: %v", ErrMalformedVersion, s, err)
		}
		parts[i] = v
	}

	v := Version{Major: parts[0], Minor: parts[1], Patch: parts[2], Full: s}
	if len(parts) == 4 {
		v.Build = parts[3]
	}
	if seps := versionNonDigits.FindAllString(s, -1); len(seps) > 2 {
		v.BuildType = seps[2]
	}
	return v, nil
}

// NewVersion builds a release revision "major.minor.patchf1". A stripped
// triple gets neither build nor build type.
func NewVersion(major, minor, patch int) Version {
	v := Version{Major: major, Minor: minor, Patch: patch}
	v.Full = fmt.Sprintf("%d.%d.%d", major, minor, patch)
	if !v.IsStripped() {
		v.Build = 1
		v.BuildType = "f"
		v.Full += fmt.Sprintf("%s%d", v.BuildType, v.Build)
	}
	return v
}

// IsStripped reports whether the numeric triple is 0.0.0.
func (v Version) IsStripped() bool { return v.Major == 0 && v.Minor == 0 && v.Patch == 0 }

func (v Version) String() string {
	if v.Full != "" {
		return v.Full
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Equal reports whether v and o have the same numeric triple.
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

// Compare orders v against o by (major, minor, patch).
func (v Version) Compare(o Version) int { return v.CompareTriple(o.Major, o.Minor, o.Patch) }

// CompareMajor compares only the major component.
func (v Version) CompareMajor(major int) int { return cmp.Compare(v.Major, major) }

// CompareMinor compares the (major, minor) prefix.
func (v Version) CompareMinor(major, minor int) int {
	if c := cmp.Compare(v.Major, major); c != 0 {
		return c
	}
	return cmp.Compare(v.Minor, minor)
}

// CompareTriple compares the full (major, minor, patch) triple.
func (v Version) CompareTriple(major, minor, patch int) int {
	if c := v.CompareMinor(major, minor); c != 0 {
		return c
	}
	return cmp.Compare(v.Patch, patch)
}

// Bound is one end of a version range at a chosen granularity.
type Bound struct {
	parts               int
	major, minor, patch int
}

// Major returns a bound that compares the major component only.
func Major(major int) Bound { return Bound{parts: 1, major: major} }

// MajorMinor returns a bound that compares (major, minor).
func MajorMinor(major, minor int) Bound { return Bound{parts: 2, major: major, minor: minor} }

// Triple returns a bound that compares (major, minor, patch).
func Triple(major, minor, patch int) Bound {
	return Bound{parts: 3, major: major, minor: minor, patch: patch}
}

// Exactly returns a full-granularity bound at v.
func Exactly(v Version) Bound { return Triple(v.Major, v.Minor, v.Patch) }

func (b Bound) String() string {
	switch b.parts {
	case 1:
		return strconv.Itoa(b.major)
	case 2:
		return fmt.Sprintf("%d.%d", b.major, b.minor)
	default:
		return fmt.Sprintf("%d.%d.%d", b.major, b.minor, b.patch)
	}
}

// CompareBound compares v against b at b's granularity.
func (v Version) CompareBound(b Bound) int {
	switch b.parts {
	case 1:
		return v.CompareMajor(b.major)
	case 2:
		return v.CompareMinor(b.major, b.minor)
	default:
		return v.CompareTriple(b.major, b.minor, b.patch)
	}
}

// AtLeast reports v >= b.
func (v Version) AtLeast(b Bound) bool { return v.CompareBound(b) >= 0 }

// Before reports v < b.
func (v Version) Before(b Bound) bool { return v.CompareBound(b) < 0 }

// InRange reports whether v lies in the half-open range [lo, hi).
func (v Version) InRange(lo, hi Bound) bool { return v.AtLeast(lo) && v.Before(hi) }
