// Package version provides packed protocol version encoding, parsing and comparison.
//
// Versions travel on the wire packed into one 32-bit word:
//
//	bits[31:22] major | bits[21:12] minor | bits[11:0] patch
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the stream metadata version implemented by this library.
const Current = "1.0.0"

// Field limits of the packed encoding.
const (
	MaxMajor = 0x3FF
	MaxMinor = 0x3FF
	MaxPatch = 0xFFF
)

// Version is a "major.minor.patch" protocol version.
type Version struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// New returns the version major.minor.patch, truncating fields to their packed width.
func New(major, minor, patch uint32) Version {
	return Version{Major: major & MaxMajor, Minor: minor & MaxMinor, Patch: patch & MaxPatch}
}

// Decode unpacks a version word.
func Decode(encoded uint32) Version {
	return Version{
		Major: encoded >> 22,
		Minor: (encoded >> 12) & MaxMinor,
		Patch: encoded & MaxPatch,
	}
}

// Encoded returns the packed wire representation.
func (v Version) Encoded() uint32 {
	return (v.Major&MaxMajor)<<22 | (v.Minor&MaxMinor)<<12 | v.Patch&MaxPatch
}

// Parse parses a "major.minor.patch" version string.
func Parse(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor.patch", s)
	}

	limits := [3]uint64{MaxMajor, MaxMinor, MaxPatch}
	var fields [3]uint32
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil || part == "" {
			return Version{}, fmt.Errorf("invalid version %q: bad component %q", s, part)
		}
		if n > limits[i] {
			return Version{}, fmt.Errorf("invalid version %q: component %d exceeds %d", s, n, limits[i])
		}
		fields[i] = uint32(n)
	}

	return Version{Major: fields[0], Minor: fields[1], Patch: fields[2]}, nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compatible returns true if the other version has the same major version.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// Less reports whether v precedes other.
func (v Version) Less(other Version) bool {
	return v.Encoded() < other.Encoded()
}
