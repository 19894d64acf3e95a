// Package container implements the ContainerProvider component of
// spec.md §4.3: given an identity, produce the set of available versions
// and, for any of them, the dependencies declared by that version's
// manifest. It generalizes golang-dep's PackageContainer hierarchy
// (source.go, vcs_source.go, maybe_source.go) into the tagged-sum shape
// spec.md §9 asks for ("Represent as a tagged sum Container =
// SourceControl | Local | Registry with a shared operation table").
package container

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/manifest"
	"github.com/depforge/workspace/pkg/semver"
)

// UpdateStrategy controls how aggressively a Container refreshes its view
// of upstream state before answering, per spec.md §4.3.
type UpdateStrategy uint8

const (
	Never UpdateStrategy = iota
	Always
	IfNeeded
)

// Container is the shared operation table every variant implements. The
// variant-specific payload (git remote, local path, registry index) lives
// behind the interface rather than in a type hierarchy, per the
// "Deep inheritance" re-architecture note in spec.md §9.
type Container interface {
	// AvailableVersionsDescending returns the container's versions, newest
	// first (spec.md §4.3 tie-break).
	AvailableVersionsDescending(ctx context.Context) ([]semver.Version, error)
	// Dependencies returns the manifest-declared dependencies at the given
	// version or revision, restricted to the product filter.
	Dependencies(ctx context.Context, at VersionOrRevision, filter manifest.ProductFilter) ([]manifest.PackageDependency, error)
	// Manifest returns the full manifest at a version/revision, used by
	// the resolver to check tools-version compatibility and by
	// downstream components needing the whole target/product graph.
	Manifest(ctx context.Context, at VersionOrRevision) (*manifest.Manifest, error)
}

// VersionOrRevision names either a resolved semver Version, a branch name,
// or a raw revision identifier — whichever a Container was asked to
// resolve dependencies at.
type VersionOrRevision struct {
	Version  semver.Version
	Branch   string
	Revision string
}

func AtVersion(v semver.Version) VersionOrRevision { return VersionOrRevision{Version: v} }
func AtBranch(b string) VersionOrRevision          { return VersionOrRevision{Branch: b} }
func AtRevision(r string) VersionOrRevision         { return VersionOrRevision{Revision: r} }

// BranchNotFoundError is returned by a SourceControlContainer when a
// declared branch requirement names a branch the remote doesn't have; it
// carries a Levenshtein-ranked suggestion per spec.md §4.3.
type BranchNotFoundError struct {
	Branch     string
	Suggestion string
}

func (e *BranchNotFoundError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("branch %q not found; did you mean %q?", e.Branch, e.Suggestion)
	}
	return fmt.Sprintf("branch %q not found", e.Branch)
}

// RevisionNotFoundError mirrors BranchNotFoundError for the revision case.
type RevisionNotFoundError struct {
	Revision string
}

func (e *RevisionNotFoundError) Error() string {
	return fmt.Sprintf("revision %q not found", e.Revision)
}

// UnsupportedToolsVersionError is returned when a candidate version's
// manifest declares a tools-version the caller cannot satisfy.
type UnsupportedToolsVersionError struct {
	Version  string
	Found    manifest.ToolsVersion
	Required manifest.ToolsVersion
}

func (e *UnsupportedToolsVersionError) Error() string {
	return fmt.Sprintf("%s requires tools-version %s, have %s", e.Version, e.Found, e.Required)
}

// suggestBranch runs a Levenshtein scan over available branch names and
// returns the closest match, used to populate BranchNotFoundError.
func suggestBranch(want string, available []string) string {
	best := ""
	bestDist := -1
	for _, cand := range available {
		d := levenshtein(want, cand)
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = cand
		}
	}
	// Only suggest if it's a plausible typo, not a wildly different name.
	if bestDist >= 0 && bestDist <= (len(want)/2+2) {
		return best
	}
	return ""
}

func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	d := make([][]int, la+1)
	for i := range d {
		d[i] = make([]int, lb+1)
		d[i][0] = i
	}
	for j := 0; j <= lb; j++ {
		d[0][j] = j
	}
	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			min := d[i-1][j] + 1
			if v := d[i][j-1] + 1; v < min {
				min = v
			}
			if v := d[i-1][j-1] + cost; v < min {
				min = v
			}
			d[i][j] = min
		}
	}
	return d[la][lb]
}

// sortVersionsDescending applies spec.md §4.3's tie-breaks: newest first;
// pre-release versions dropped unless explicitly requested; "v"-prefixed
// and bare tags for the same version collapse to one entry (handled
// already by semver.Version.Equal/identity, so this just dedups and
// sorts).
func sortVersionsDescending(versions []semver.Version, allowPrerelease bool) []semver.Version {
	seen := make(map[string]bool, len(versions))
	out := make([]semver.Version, 0, len(versions))
	for _, v := range versions {
		if v.IsPrerelease() && !allowPrerelease {
			continue
		}
		key := v.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	sort.Sort(semver.ByVersionDescending(out))
	return out
}

// identityError wraps an error with the identity it concerns, mirroring
// golang-dep's habit (vcs_repo.go, errors.go) of attaching the acting
// project to low-level failures with github.com/pkg/errors.
func identityError(id identity.Identity, err error) error {
	return errors.Wrapf(err, "container for %s", id)
}

// Provider is the ContainerProvider component of spec.md §4.3: given an
// identity and its declared location, produce (and cache) the Container
// backing it. golang-dep's SourceManager plays the analogous role of
// memoizing one gps.ProjectAnalyzer per import path across a solve.
type Provider struct {
	loader        ManifestLoader
	requiredTools manifest.ToolsVersion

	mu         sync.Mutex
	byIdentity map[string]Container
	newRepo    func(remote, local string) (SCMRepo, error)
	localRoot  string
}

// NewProvider builds a Provider. newRepo is normally NewGitSCMRepo;
// accepting it as a parameter keeps Provider testable without a real
// git binary, per spec.md §9's capability-injection redesign note.
func NewProvider(loader ManifestLoader, requiredTools manifest.ToolsVersion, newRepo func(remote, local string) (SCMRepo, error), localRoot string) *Provider {
	return &Provider{
		loader:        loader,
		requiredTools: requiredTools,
		byIdentity:    make(map[string]Container),
		newRepo:       newRepo,
		localRoot:     localRoot,
	}
}

// ContainerFor returns the memoized Container for id, constructing a
// LocalContainer (for Local identities) or a SourceControlContainer (for
// every other identity) on first use. Registry-backed identities are
// expected to be pre-seeded via Seed, since they need a RegistryIndex
// this Provider doesn't own.
func (p *Provider) ContainerFor(id identity.Identity, location string) (Container, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := id.String()
	if c, ok := p.byIdentity[key]; ok {
		return c, nil
	}

	if id.Kind == identity.Local {
		c := NewLocalContainer(id, location, p.loader)
		p.byIdentity[key] = c
		return c, nil
	}

	repo, err := p.newRepo(location, filepath.Join(p.localRoot, key))
	if err != nil {
		return nil, identityError(id, err)
	}
	c := NewSourceControlContainer(id, repo, p.loader, p.requiredTools)
	p.byIdentity[key] = c
	return c, nil
}

// Seed installs a pre-built Container for an identity, used for registry-
// backed or otherwise specially-constructed containers the Provider
// can't build on its own.
func (p *Provider) Seed(id identity.Identity, c Container) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byIdentity[id.String()] = c
}
