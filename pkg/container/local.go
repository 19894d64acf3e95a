package container

import (
	"context"

	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/manifest"
	"github.com/depforge/workspace/pkg/semver"
)

// LocalContainer is the filesystem-path Container variant: it exposes
// exactly one "version" (unversioned), and reads dependencies straight
// from the on-disk manifest, per spec.md §4.3.
type LocalContainer struct {
	id      identity.Identity
	root    string
	loadMnf ManifestLoader
}

func NewLocalContainer(id identity.Identity, root string, loadMnf ManifestLoader) *LocalContainer {
	return &LocalContainer{id: id, root: root, loadMnf: loadMnf}
}

func (c *LocalContainer) AvailableVersionsDescending(ctx context.Context) ([]semver.Version, error) {
	return nil, nil // unversioned: no enumerable versions
}

func (c *LocalContainer) Manifest(ctx context.Context, at VersionOrRevision) (*manifest.Manifest, error) {
	m, err := c.loadMnf(c.root)
	if err != nil {
		return nil, identityError(c.id, err)
	}
	return m, nil
}

func (c *LocalContainer) Dependencies(ctx context.Context, at VersionOrRevision, filter manifest.ProductFilter) ([]manifest.PackageDependency, error) {
	m, err := c.Manifest(ctx, at)
	if err != nil {
		return nil, err
	}
	return narrowByTargetBasedResolution(m, filter), nil
}
