// Package semver wraps github.com/Masterminds/semver to provide the
// Version and Requirement types described in spec.md §3 ("Version",
// "Requirement"). Ordering, pre-release handling, and the "v"-prefix
// normalization all defer to the Masterminds library; this package only
// adds the requirement sum type and the tag-form bookkeeping the spec
// requires (identity 1.2 / "v"-prefix collapsing).
package semver

import (
	"fmt"
	"strings"

	mmsemver "github.com/Masterminds/semver"
)

// Version is a parsed semantic version. Two tags that differ only by a
// leading "v" compare equal and share one Version value; the original tag
// form is kept only for diagnostics.
type Version struct {
	sv      *mmsemver.Version
	rawTag  string
	isVTag  bool
}

// Parse parses a git-tag-shaped string into a Version. Tags are accepted
// with or without a leading "v"; both forms produce the same ordering key.
func Parse(tag string) (Version, error) {
	trimmed := strings.TrimPrefix(tag, "v")
	sv, err := mmsemver.NewVersion(trimmed)
	if err != nil {
		return Version{}, fmt.Errorf("version: %q is not a valid semantic version: %w", tag, err)
	}
	return Version{sv: sv, rawTag: tag, isVTag: strings.HasPrefix(tag, "v")}, nil
}

// String renders the canonical (non-"v"-prefixed) form used as the pin-file
// and store key.
func (v Version) String() string {
	if v.sv == nil {
		return ""
	}
	return v.sv.String()
}

// Tag renders the original tag spelling, for diagnostics only.
func (v Version) Tag() string {
	if v.rawTag == "" {
		return v.String()
	}
	return v.rawTag
}

// IsPrerelease reports whether this version carries pre-release identifiers.
func (v Version) IsPrerelease() bool {
	return v.sv != nil && v.sv.Prerelease() != ""
}

// Less orders a below b using semver precedence, with pre-releases ordered
// below the release they precede (Masterminds/semver default behavior).
func (v Version) Less(o Version) bool {
	if v.sv == nil || o.sv == nil {
		return false
	}
	return v.sv.LessThan(o.sv)
}

// Equal reports whether two versions are the same point release,
// independent of "v"-prefix spelling.
func (v Version) Equal(o Version) bool {
	if v.sv == nil || o.sv == nil {
		return v.sv == o.sv
	}
	return v.sv.Equal(o.sv)
}

func (v Version) raw() *mmsemver.Version { return v.sv }

// ByVersionDescending sorts Versions newest-first, matching the container's
// "versions are iterated newest-first" tie-break rule (spec §4.3).
type ByVersionDescending []Version

func (s ByVersionDescending) Len() int      { return len(s) }
func (s ByVersionDescending) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s ByVersionDescending) Less(i, j int) bool {
	return s[j].Less(s[i])
}
