// Package versioning negotiates the API version between adapters and the
// server. A client names the version it was built against through a request
// header or the path prefix; requests outside the supported window are
// rejected before they reach a handler, and every response carries the
// version the server actually speaks.
package versioning

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a semantic API version without prerelease tags. The API has
// never shipped a prerelease line, so none are representable.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare orders two versions. Negative means v predates other, zero means
// equal, positive means v is newer.
func (v Version) Compare(other Version) int {
	if d := v.Major - other.Major; d != 0 {
		return d
	}
	if d := v.Minor - other.Minor; d != 0 {
		return d
	}
	return v.Patch - other.Patch
}

// AtLeast reports whether v is min or newer.
func (v Version) AtLeast(min Version) bool {
	return v.Compare(min) >= 0
}

// IsZero reports whether v is the zero value, used as "no version named".
func (v Version) IsZero() bool {
	return v == Version{}
}

// Release history.
var (
	// V1_0_0 shipped the unified ingest endpoint, conversation and message
	// queries, read state, and categorization.
	V1_0_0 = Version{Major: 1}
	// V1_1_0 added the analytics dashboard, weekly reports, and the audit
	// history surface.
	V1_1_0 = Version{Major: 1, Minor: 1}
	// V1_2_0 added the websocket event stream and runtime feature flags.
	V1_2_0 = Version{Major: 1, Minor: 2}
)

// releases in ship order; capability listings walk this.
var releases = []Version{V1_0_0, V1_1_0, V1_2_0}

var surfacesAdded = map[Version][]string{
	V1_0_0: {"unified-ingest", "conversation-resolution", "read-state", "categories"},
	V1_1_0: {"analytics-dashboard", "weekly-reports", "history"},
	V1_2_0: {"event-stream", "feature-flags"},
}

var (
	// Current is the version this build serves.
	Current = V1_2_0
	// MinimumSupported is the oldest version adapters may still request.
	MinimumSupported = V1_0_0
)

// Supported reports whether adapters built against v can talk to this
// server: no older than the support floor, no newer major than we serve.
func Supported(v Version) bool {
	return v.AtLeast(MinimumSupported) && v.Major <= Current.Major
}

// SupportedRange renders the accepted version window for response headers.
func SupportedRange() string {
	return MinimumSupported.String() + " - " + Current.String()
}

// Capabilities lists the API surfaces available to a client speaking v, in
// release order.
func Capabilities(v Version) []string {
	var caps []string
	for _, release := range releases {
		if !v.AtLeast(release) {
			break
		}
		caps = append(caps, surfacesAdded[release]...)
	}
	return caps
}

// Parse reads a dotted version string: "1", "1.2" and "1.2.0" are all
// accepted, with omitted positions taken as zero. A bare major naming the
// current line resolves to the current release rather than major.0.0, since
// a path prefix like /api/v1 names the line, not its first release.
func Parse(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) > 3 {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}

	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version %q", s)
		}
		nums[i] = n
	}

	v := Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}
	if len(parts) == 1 && v.Major == Current.Major {
		return Current, nil
	}
	return v, nil
}
