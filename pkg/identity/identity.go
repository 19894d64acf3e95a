// Package identity canonicalizes a dependency location — a URL, an SSH
// remote, a registry id, or a local filesystem path — into a stable
// PackageIdentity, the sole deduplication key used across every other
// store in the workspace (spec.md §4.1). It plays the role golang-dep's
// ProjectIdentifier (types.go) plays for the "dep" tool, generalized to
// the location forms spec.md enumerates.
package identity

import (
	"path/filepath"
	"strings"
)

// Kind discriminates the two identity classes named in spec.md §4.1: a
// plain basename-keyed local path, or a network-derived stem (which also
// covers registry-scoped ids, which keep their dotted form).
type Kind uint8

const (
	Network Kind = iota
	Local
)

// Identity is the canonical, case-insensitive deduplication key for a
// dependency location.
type Identity struct {
	Kind Kind
	// Stem is the canonical lowercased key itself: for Network identities,
	// the last path component after scheme/host/suffix stripping; for
	// Local identities, the lowercased basename of the absolute path.
	Stem string
	// NearestRoot is populated only for Local identities and records the
	// absolute path that produced this identity, used to break basename
	// collisions in favor of the nearest root per spec.md's invariant
	// "two distinct paths with the same basename produce the same
	// identity and the workspace resolves the conflict by nearest-root
	// preference".
	NearestRoot string
}

// String renders the identity's canonical form, suitable as a map key.
func (id Identity) String() string {
	return id.Stem
}

// Equal compares identities case-insensitively on their canonical form,
// per spec.md §4.1 rule 4.
func (id Identity) Equal(o Identity) bool {
	return id.Kind == o.Kind && strings.EqualFold(id.Stem, o.Stem)
}

// Of derives the canonical Identity for a location string, applying the
// ordered rules of spec.md §4.1.
func Of(location string) Identity {
	if filepath.IsAbs(location) {
		return Identity{
			Kind:        Local,
			Stem:        strings.ToLower(filepath.Base(filepath.Clean(location))),
			NearestRoot: location,
		}
	}

	canon := canonicalizeNetworkLocation(location)
	return Identity{Kind: Network, Stem: canon}
}

// canonicalizeNetworkLocation implements spec.md §4.1 rules 2-3:
//   - strip "git@host:path" to "host/path"
//   - strip trailing ".git"
//   - strip "http(s)://"
//   - drop fragment and query
//   - lowercase host
//   - collapse "//" to "/"
//   - the remaining last path component becomes the stem; registry-scoped
//     ids ("scope.name") keep their dotted form.
func canonicalizeNetworkLocation(loc string) string {
	s := loc

	// git@host:path -> host/path
	if i := strings.Index(s, "@"); i >= 0 && strings.Contains(s[i:], ":") && !strings.Contains(s, "://") {
		rest := s[i+1:]
		if j := strings.Index(rest, ":"); j >= 0 {
			s = rest[:j] + "/" + rest[j+1:]
		}
	}

	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "ssh://")

	// drop fragment and query
	if i := strings.IndexAny(s, "#?"); i >= 0 {
		s = s[:i]
	}

	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, ".git")

	for strings.Contains(s, "//") {
		s = strings.ReplaceAll(s, "//", "/")
	}

	// Lowercase the host portion (first path segment), matching
	// spec.md's "lowercase host"; the returned stem is lowercased in full
	// below as well.
	parts := strings.SplitN(s, "/", 2)
	parts[0] = strings.ToLower(parts[0])
	s = strings.Join(parts, "/")

	// Registry-scoped ids of the form "scope.name" have no slash at all;
	// their dotted form is already the stem.
	if !strings.Contains(s, "/") {
		return strings.ToLower(s)
	}

	segs := strings.Split(s, "/")
	stem := segs[len(segs)-1]
	return strings.ToLower(stem)
}
