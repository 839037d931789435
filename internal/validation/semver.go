// semver.go parses release version strings into the numeric triple stored on
// modules and version snapshots.
package validation

import (
	"fmt"
	"math"

	"github.com/hashicorp/go-version"
)

// ParseVersionTriple parses a plain release version ("1.2.3", "v1.2", "4") into
// its major, minor and patch components. Missing components are zero.
// Pre-release and build metadata are rejected, as are components above 65535.
func ParseVersionTriple(s string) (major, minor, patch uint16, err error) {
	v, err := version.NewVersion(s)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid semantic version: %w", err)
	}
	if v.Prerelease() != "" || v.Metadata() != "" {
		return 0, 0, 0, fmt.Errorf("invalid semantic version %q: pre-release and build metadata are not supported", s)
	}

	segs := v.Segments64()
	if len(segs) > 3 {
		return 0, 0, 0, fmt.Errorf("invalid semantic version %q: expected at most three components", s)
	}
	var out [3]uint16
	for i, seg := range segs {
		if seg < 0 || seg > math.MaxUint16 {
			return 0, 0, 0, fmt.Errorf("invalid semantic version %q: component %d out of range", s, seg)
		}
		out[i] = uint16(seg)
	}
	return out[0], out[1], out[2], nil
}
