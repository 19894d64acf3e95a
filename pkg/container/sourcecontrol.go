package container

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/depforge/workspace/internal/fsutil"
	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/manifest"
	"github.com/depforge/workspace/pkg/semver"
)

// ManifestLoader loads the manifest found in a working tree checked out at
// root. It is the out-of-scope "manifest parser" collaborator named in
// spec.md §1, injected by parameter per the capability-interface design
// note in §9 rather than called through a global.
type ManifestLoader func(root string) (*manifest.Manifest, error)

// SourceControlContainer is the git/svn/hg/bzr-backed Container variant of
// spec.md §4.3. Versions are tags parseable as semver, filtered by
// manifest tools-version compatibility; it caches per-version
// tools-version validity the way spec.md requires ("cached in a map keyed
// by version string; the cache is consulted before invoking the manifest
// loader").
type SourceControlContainer struct {
	id       identity.Identity
	repo     SCMRepo
	loadMnf  ManifestLoader
	required manifest.ToolsVersion

	mu            sync.Mutex
	toolsVersionOK map[string]bool
	fetched        bool
}

// NewSourceControlContainer constructs a container bound to one identity's
// SCM repo. requiredTools is the caller's own tools-version ceiling, used
// to reject incompatible candidate versions (spec.md's
// unsupportedToolsVersion error).
func NewSourceControlContainer(id identity.Identity, repo SCMRepo, loadMnf ManifestLoader, requiredTools manifest.ToolsVersion) *SourceControlContainer {
	return &SourceControlContainer{
		id:             id,
		repo:           repo,
		loadMnf:        loadMnf,
		required:       requiredTools,
		toolsVersionOK: make(map[string]bool),
	}
}

func (c *SourceControlContainer) ensureFetched(strategy UpdateStrategy, wantRevision string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch strategy {
	case Never:
		if c.fetched {
			return nil
		}
		// Never still requires an existing local clone; Get() is a no-op
		// if one already exists for most VCS backends, matching
		// golang-dep's vcs_repo.go Get()/Update() split.
		err := c.repo.Get()
		c.fetched = true
		return identityError(c.id, err)
	case Always:
		if err := c.repo.Get(); err != nil {
			return identityError(c.id, err)
		}
		c.fetched = true
		return identityError(c.id, c.repo.Update())
	case IfNeeded:
		if wantRevision == "" {
			return nil
		}
		if _, err := c.repo.CurrentRevision(); err == nil {
			// IfNeeded does not check whether wantRevision is already
			// present in the clone: whenever a revision is named, it
			// fetches unconditionally below.
		}
		if err := c.repo.Update(); err != nil {
			return identityError(c.id, err)
		}
		c.fetched = true
		return nil
	}
	return nil
}

func (c *SourceControlContainer) AvailableVersionsDescending(ctx context.Context) ([]semver.Version, error) {
	if err := c.ensureFetched(Never, ""); err != nil {
		return nil, err
	}

	tags, err := c.repo.Tags()
	if err != nil {
		return nil, identityError(c.id, err)
	}

	versions := make([]semver.Version, 0, len(tags))
	allowPre := false
	for _, tag := range tags {
		v, err := semver.Parse(tag)
		if err != nil {
			continue // non-semver tags are simply not versions
		}
		versions = append(versions, v)
	}
	return sortVersionsDescending(versions, allowPre), nil
}

// toolsVersionCompatible consults (and populates) the per-version cache
// before invoking the manifest loader, per spec.md §4.3.
func (c *SourceControlContainer) toolsVersionCompatible(ctx context.Context, at VersionOrRevision) (*manifest.Manifest, error) {
	key := versionKey(at)

	c.mu.Lock()
	ok, cached := c.toolsVersionOK[key]
	c.mu.Unlock()
	if cached && !ok {
		return nil, &UnsupportedToolsVersionError{Version: key, Required: c.required}
	}

	if err := c.checkout(at); err != nil {
		return nil, err
	}
	m, err := c.loadMnf(c.repo.LocalPath())
	if err != nil {
		return nil, errors.Wrapf(err, "loading manifest for %s@%s", c.id, key)
	}

	// An unset (zero-value) required ceiling means "no ceiling enforced",
	// matching a caller that hasn't opted into the check.
	incompatible := (c.required != manifest.ToolsVersion{}) && c.required.Less(m.ToolsVersion)

	c.mu.Lock()
	c.toolsVersionOK[key] = !incompatible
	c.mu.Unlock()

	if incompatible {
		return nil, &UnsupportedToolsVersionError{Version: key, Found: m.ToolsVersion, Required: c.required}
	}
	return m, nil
}

func (c *SourceControlContainer) checkout(at VersionOrRevision) error {
	switch {
	case at.Revision != "":
		return identityError(c.id, c.repo.CheckoutRevision(at.Revision))
	case at.Branch != "":
		_, err := c.repo.RevisionForBranch(at.Branch)
		return identityError(c.id, err)
	default:
		return identityError(c.id, c.repo.CheckoutRevision(at.Version.Tag()))
	}
}

func (c *SourceControlContainer) Dependencies(ctx context.Context, at VersionOrRevision, filter manifest.ProductFilter) ([]manifest.PackageDependency, error) {
	m, err := c.toolsVersionCompatible(ctx, at)
	if err != nil {
		return nil, err
	}
	return narrowByTargetBasedResolution(m, filter), nil
}

func (c *SourceControlContainer) Manifest(ctx context.Context, at VersionOrRevision) (*manifest.Manifest, error) {
	return c.toolsVersionCompatible(ctx, at)
}

// CheckoutInto materializes this container's working tree, checked out at
// the given version/branch/revision, into dest. Used by the Reconciler
// (spec.md §4.6 steps 1-2) to populate <sandbox>/.build/checkouts/<id>.
func (c *SourceControlContainer) CheckoutInto(ctx context.Context, at VersionOrRevision, dest string) error {
	if err := c.ensureFetched(IfNeeded, versionKey(at)); err != nil {
		return err
	}
	if err := c.checkout(at); err != nil {
		return err
	}
	if c.repo.LocalPath() == dest {
		return nil
	}
	return identityError(c.id, fsutil.CopyTree(c.repo.LocalPath(), dest))
}

func versionKey(at VersionOrRevision) string {
	switch {
	case at.Revision != "":
		return "rev:" + at.Revision
	case at.Branch != "":
		return "branch:" + at.Branch
	default:
		return at.Version.String()
	}
}

// narrowByTargetBasedResolution applies spec.md §4.2's refinement: when
// the manifest's tools-version is new enough, restrict each dependency's
// product filter to exactly the products actually referenced by at least
// one target, intersected with the filter the caller asked for.
func narrowByTargetBasedResolution(m *manifest.Manifest, callerFilter manifest.ProductFilter) []manifest.PackageDependency {
	if !m.UsesTargetBasedResolution() {
		out := make([]manifest.PackageDependency, len(m.Dependencies))
		copy(out, m.Dependencies)
		return out
	}

	referenced := make(map[string]struct{})
	for _, t := range m.Targets {
		for _, dep := range t.Dependencies {
			referenced[dep] = struct{}{}
		}
	}

	out := make([]manifest.PackageDependency, 0, len(m.Dependencies))
	for _, dep := range m.Dependencies {
		narrowed := manifest.SpecificFilter()
		for p := range referenced {
			if dep.ProductFilter.Contains(p) && callerFilter.Contains(p) {
				narrowed.Products[p] = struct{}{}
			}
		}
		dep.ProductFilter = narrowed
		out = append(out, dep)
	}
	return out
}
