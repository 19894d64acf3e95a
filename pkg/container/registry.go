package container

import (
	"context"

	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/manifest"
	"github.com/depforge/workspace/pkg/semver"
)

// RegistryIndex is the out-of-scope registry collaborator: given an
// identity, list its published versions, and fetch the manifest for one
// of them. Like ManifestLoader and SCMRepo, it's injected rather than
// constructed internally, per spec.md §9's capability-interface note.
type RegistryIndex interface {
	Versions(ctx context.Context, id identity.Identity) ([]string, error)
	Manifest(ctx context.Context, id identity.Identity, version string) (*manifest.Manifest, error)
}

// RegistryContainer is the registry-backed Container variant of
// spec.md §4.3: versions are enumerated via the registry index rather
// than VCS tags.
type RegistryContainer struct {
	id    identity.Identity
	index RegistryIndex
}

func NewRegistryContainer(id identity.Identity, index RegistryIndex) *RegistryContainer {
	return &RegistryContainer{id: id, index: index}
}

func (c *RegistryContainer) AvailableVersionsDescending(ctx context.Context) ([]semver.Version, error) {
	raw, err := c.index.Versions(ctx, c.id)
	if err != nil {
		return nil, identityError(c.id, err)
	}
	versions := make([]semver.Version, 0, len(raw))
	for _, tag := range raw {
		v, err := semver.Parse(tag)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	return sortVersionsDescending(versions, false), nil
}

func (c *RegistryContainer) Manifest(ctx context.Context, at VersionOrRevision) (*manifest.Manifest, error) {
	m, err := c.index.Manifest(ctx, c.id, at.Version.String())
	if err != nil {
		return nil, identityError(c.id, err)
	}
	return m, nil
}

func (c *RegistryContainer) Dependencies(ctx context.Context, at VersionOrRevision, filter manifest.ProductFilter) ([]manifest.PackageDependency, error) {
	m, err := c.Manifest(ctx, at)
	if err != nil {
		return nil, err
	}
	return narrowByTargetBasedResolution(m, filter), nil
}
