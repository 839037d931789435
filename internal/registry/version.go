package registry

import (
	"fmt"

	"github.com/modlink/registry-engine/internal/validation"
)

// Version is a major.minor.patch triple. Pre-release and build metadata are not tracked.
type Version struct {
	Major uint16 `json:"major"`
	Minor uint16 `json:"minor"`
	Patch uint16 `json:"patch"`
}

// ParseVersion accepts "1.2.3" or "v1.2.3".
func ParseVersion(s string) (Version, error) {
	major, minor, patch, err := validation.ParseVersionTriple(s)
	if err != nil {
		return Version{}, newError(CodeValueOutOfRange, "%v", err)
	}
	return Version{Major: major, Minor: minor, Patch: patch}, nil
}

func (v Version) IsZero() bool { return v == Version{} }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmp16(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmp16(v.Minor, o.Minor)
	default:
		return cmp16(v.Patch, o.Patch)
	}
}

func cmp16(a, b uint16) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func requireNonZeroVersion(v Version) error {
	if v.IsZero() {
		return newError(CodeValueOutOfRange, "version 0.0.0 is not allowed")
	}
	return nil
}
