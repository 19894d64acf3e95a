// Package constraint implements the ConstraintStore spec.md §4.2 describes:
// "Given the set of root manifests and an optional user-supplied override
// list, emit a flat constraint list... Overrides from the root input
// supersede the requirement for matching identity. Mirrors... are applied
// before constraint emission; the original identity is retained only for
// diagnostics." It plays the role golang-dep's gps.SolveParameters /
// RootManifest assembly plays feeding into gps.Solve, generalized to this
// spec's target-based product filtering.
package constraint

import (
	"github.com/depforge/workspace/pkg/config"
	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/manifest"
	"github.com/depforge/workspace/pkg/semver"
)

// Constraint is one flattened dependency edge a Resolver consumes: an
// identity, the requirement narrowing it, the accumulated product filter
// a consumer needs from it, and (when a mirror applied) the original
// identity for diagnostics.
type Constraint struct {
	Identity         identity.Identity
	Location         string
	Requirement      semver.Requirement
	ProductFilter    manifest.ProductFilter
	OriginalIdentity identity.Identity
	Mirrored         bool
	Source           identity.Identity // the manifest identity that declared this edge
}

// Store accumulates constraints across one or more root manifests,
// flattening and merging duplicate edges the way gps.solver.getDependenciesOf
// unions ProductFilters for the same identity seen from two root manifests.
type Store struct {
	cfg   config.Config
	byKey map[string]*Constraint
	order []string
}

// New builds an empty Store against the given invocation config (for its
// Overrides and Mirrors).
func New(cfg config.Config) *Store {
	return &Store{cfg: cfg, byKey: make(map[string]*Constraint)}
}

// AddRoot flattens one root manifest's direct dependencies into the
// store, applying mirrors and overrides per spec.md §4.2.
func (s *Store) AddRoot(m *manifest.Manifest) {
	for _, dep := range m.Dependencies {
		s.add(dep, m.Identity)
	}
}

// AddTransitive flattens one non-root manifest's dependencies into the
// store, narrowing by the product filter the spec.md §4.2 target-based
// resolution algorithm already computed for that manifest's consumed
// targets (the caller — normally the Resolver — supplies narrowedFilter;
// passing manifest.EverythingFilter() reproduces pre-5.2 behavior).
func (s *Store) AddTransitive(m *manifest.Manifest, narrowedFilter manifest.ProductFilter) {
	for _, dep := range m.Dependencies {
		d := dep
		d.ProductFilter = d.ProductFilter.Intersect(narrowedFilter)
		s.add(d, m.Identity)
	}
}

func (s *Store) add(dep manifest.PackageDependency, source identity.Identity) {
	originalID := dep.Identity
	id, mirrored := s.cfg.ResolveMirror(dep.Location)
	if !mirrored {
		id = originalID
	}

	req := dep.Requirement
	loc := dep.Location
	if ov, ok := s.cfg.Overrides[id.String()]; ok {
		req = ov.Requirement
		loc = ov.Location
	}

	key := id.String()
	if existing, ok := s.byKey[key]; ok {
		existing.ProductFilter = existing.ProductFilter.Intersect(dep.ProductFilter)
		return
	}

	s.byKey[key] = &Constraint{
		Identity:         id,
		Location:         loc,
		Requirement:      req,
		ProductFilter:    dep.ProductFilter,
		OriginalIdentity: originalID,
		Mirrored:         mirrored,
		Source:           source,
	}
	s.order = append(s.order, key)
}

// All returns the flattened constraint list, in first-seen order (stable
// across runs for a fixed manifest ordering, matching the deterministic
// iteration gps's solver relies on for reproducible solves).
func (s *Store) All() []Constraint {
	out := make([]Constraint, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, *s.byKey[k])
	}
	return out
}

// Get looks up the flattened constraint for one identity, if emitted.
func (s *Store) Get(id identity.Identity) (Constraint, bool) {
	c, ok := s.byKey[id.String()]
	if !ok {
		return Constraint{}, false
	}
	return *c, true
}
