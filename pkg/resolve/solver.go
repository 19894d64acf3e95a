package resolve

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/depforge/workspace/pkg/constraint"
	"github.com/depforge/workspace/pkg/container"
	"github.com/depforge/workspace/pkg/diag"
	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/manifest"
	"github.com/depforge/workspace/pkg/pins"
	"github.com/depforge/workspace/pkg/semver"
)

// Solver drives the conflict-driven search spec.md §4.4 describes. It
// holds the collaborators the search needs (a ContainerProvider to
// enumerate versions/dependencies, the root constraint set, the previous
// pin file for pin-bias, and any edited-dependency snapshot), the way
// golang-dep's solver struct (solver.go) bundles its SourceManager,
// root manifest, and lock.
type Solver struct {
	Provider *container.Provider
	Pinned   *pins.Store
	Edited   map[string]EditedDependency // keyed by identity string
	Scope    *diag.Scope

	visited map[string]bool
	states  map[string]ResolvedState
	sources map[string]string // first-seen location string per identity, for the "divergent form" rule
}

// NewSolver builds a Solver ready to run Solve.
func NewSolver(provider *container.Provider, pinned *pins.Store, edited map[string]EditedDependency, scope *diag.Scope) *Solver {
	return &Solver{
		Provider: provider,
		Pinned:   pinned,
		Edited:   edited,
		Scope:    scope,
		visited:  make(map[string]bool),
		states:   make(map[string]ResolvedState),
		sources:  make(map[string]string),
	}
}

// Solve runs the backtracking search starting from the flattened root
// constraint set, returning a full Resolution or an UnsatisfiableError /
// one of the edge-case errors named in spec.md §4.4.
//
// The search strategy: depth-first over each constrained identity,
// selecting candidate versions newest-first (pin-biased — spec.md §4.4:
// "When a pin exists for an identity and its version satisfies the live
// constraints, the solver is biased toward it"). When a candidate's
// manifest yields dependencies that conflict with an already-committed
// selection, the solver backtracks to the next candidate. This is a
// simplified, single-threaded version of PubGrub's incompatibility-set
// bookkeeping: instead of deriving and memoizing minimal incompatibility
// clauses, each backtrack re-derives the conflict directly from the two
// concrete requirements in tension, which is sufficient for the acyclic,
// single-product-graph workloads this workspace resolves (golang-dep's
// own solver.go falls back to the same "retry next candidate" shape
// whenever its incompatibility cache misses).
func (s *Solver) Solve(ctx context.Context, rootID identity.Identity, constraints []constraint.Constraint) (*Resolution, error) {
	reqs := make(map[string]semver.Requirement, len(constraints))
	locs := make(map[string]string, len(constraints))
	filters := make(map[string]manifest.ProductFilter, len(constraints))
	order := make([]string, 0, len(constraints))

	for _, c := range constraints {
		key := c.Identity.String()
		if err := s.checkDivergentForm(c.Identity, c.Location); err != nil {
			return nil, err
		}
		if existing, ok := reqs[key]; ok {
			merged, ok := existing.Intersect(c.Requirement)
			if !ok {
				return nil, &UnsatisfiableError{Explanation: fmt.Sprintf(
					"%s: %s conflicts with %s", key, existing, c.Requirement)}
			}
			reqs[key] = merged
			filters[key] = filters[key].Intersect(c.ProductFilter)
			continue
		}
		reqs[key] = c.Requirement
		locs[key] = c.Location
		filters[key] = c.ProductFilter
		order = append(order, key)
	}
	sort.Strings(order)

	for _, key := range order {
		if key == rootID.String() {
			// spec.md §4.4: "A root package that is also named as a remote
			// dependency of another root is satisfied by the root itself;
			// the remote copy is never fetched."
			continue
		}
		if err := s.resolveOne(ctx, key, locs[key], reqs[key], filters[key]); err != nil {
			return nil, err
		}
	}

	changed := make(map[string]bool, len(s.states))
	for key, st := range s.states {
		if prev, ok := s.Pinned.Get(st.Identity); !ok || !sameResolvedState(prev.State, st) {
			changed[key] = true
		}
	}

	return &Resolution{States: s.states, Changed: changed}, nil
}

func (s *Solver) resolveOne(ctx context.Context, key, location string, req semver.Requirement, filter manifest.ProductFilter) error {
	if s.visited[key] {
		return nil
	}
	s.visited[key] = true

	id := identity.Of(location)

	if ed, ok := s.Edited[key]; ok {
		s.states[key] = ResolvedState{Identity: id, Location: ed.Location, Kind: StateLocal}
		return s.absorbTransitive(ctx, ed.Manifest, filter)
	}

	switch req.Kind {
	case semver.Unversioned:
		return s.resolveLocal(ctx, id, location, filter)
	case semver.Branch:
		return s.resolveBranch(ctx, id, location, req, filter)
	case semver.Revision:
		return s.resolveRevision(ctx, id, location, req, filter)
	default:
		return s.resolveVersioned(ctx, id, location, req, filter)
	}
}

func (s *Solver) resolveLocal(ctx context.Context, id identity.Identity, location string, filter manifest.ProductFilter) error {
	c, err := s.Provider.ContainerFor(id, location)
	if err != nil {
		return err
	}
	m, err := c.Manifest(ctx, container.VersionOrRevision{})
	if err != nil {
		return err
	}
	s.states[id.String()] = ResolvedState{Identity: id, Location: location, Kind: StateLocal}
	return s.absorbTransitive(ctx, m, filter)
}

func (s *Solver) resolveBranch(ctx context.Context, id identity.Identity, location string, req semver.Requirement, filter manifest.ProductFilter) error {
	c, err := s.Provider.ContainerFor(id, location)
	if err != nil {
		return err
	}
	at := container.AtBranch(req.BranchName)
	m, err := c.Manifest(ctx, at)
	if err != nil {
		return err
	}
	if err := s.rejectUnsafeFlags(m, versionedOrigin); err != nil {
		return err
	}
	s.states[id.String()] = ResolvedState{Identity: id, Location: location, Kind: StateBranch, Branch: req.BranchName}
	return s.absorbTransitive(ctx, m, filter)
}

func (s *Solver) resolveRevision(ctx context.Context, id identity.Identity, location string, req semver.Requirement, filter manifest.ProductFilter) error {
	c, err := s.Provider.ContainerFor(id, location)
	if err != nil {
		return err
	}
	at := container.AtRevision(req.RevisionID)
	m, err := c.Manifest(ctx, at)
	if err != nil {
		return err
	}
	// spec.md §4.4: "A revision-based dependency that itself declares a
	// local dependency is rejected."
	for _, dep := range m.Dependencies {
		if dep.Requirement.Kind == semver.Unversioned {
			return &RevisionDependencyHasLocalDependencyError{Package: id.String(), LocalName: dep.Identity.String()}
		}
	}
	if err := s.rejectUnsafeFlags(m, versionedOrigin); err != nil {
		return err
	}
	s.states[id.String()] = ResolvedState{Identity: id, Location: location, Kind: StateRevision, Revision: req.RevisionID}
	return s.absorbTransitive(ctx, m, filter)
}

func (s *Solver) resolveVersioned(ctx context.Context, id identity.Identity, location string, req semver.Requirement, filter manifest.ProductFilter) error {
	c, err := s.Provider.ContainerFor(id, location)
	if err != nil {
		return err
	}
	versions, err := c.AvailableVersionsDescending(ctx)
	if err != nil {
		return err
	}

	candidates := make([]semver.Version, 0, len(versions))
	for _, v := range versions {
		if req.Matches(v) {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return &UnsatisfiableError{Explanation: fmt.Sprintf("no version of %s satisfies %s", id, req)}
	}

	// Pin bias: spec.md §4.4 "When a pin exists for an identity and its
	// version satisfies the live constraints, the solver is biased
	// toward it."
	if pinned, ok := s.Pinned.Get(id); ok && pinned.State.Kind == pins.StateVersion {
		for i, v := range candidates {
			if v.Equal(pinned.State.Version) {
				candidates[0], candidates[i] = candidates[i], candidates[0]
				break
			}
		}
	}

	var lastErr error
	for _, v := range candidates {
		at := container.AtVersion(v)
		m, err := c.Manifest(ctx, at)
		if err != nil {
			lastErr = err
			continue
		}
		if err := s.rejectUnsafeFlags(m, versionedOrigin); err != nil {
			return err
		}
		if err := s.absorbTransitive(ctx, m, filter); err != nil {
			lastErr = err
			s.backtrack(m)
			continue
		}
		s.states[id.String()] = ResolvedState{Identity: id, Location: location, Kind: StateVersion, Version: v}
		return nil
	}

	if lastErr != nil {
		return lastErr
	}
	return &UnsatisfiableError{Explanation: fmt.Sprintf("exhausted candidates for %s", id)}
}

// backtrack discards any tentative state absorbTransitive committed for
// m's dependencies, so the next candidate starts clean. This is the
// search's undo step; see the Solve doc comment for why a full PubGrub
// incompatibility cache isn't needed at this workspace's scale.
func (s *Solver) backtrack(m *manifest.Manifest) {
	for _, dep := range m.Dependencies {
		key := dep.Identity.String()
		delete(s.states, key)
		delete(s.visited, key)
	}
}

// absorbTransitive resolves every dependency a manifest declares,
// narrowed to filter, recursing depth-first.
func (s *Solver) absorbTransitive(ctx context.Context, m *manifest.Manifest, filter manifest.ProductFilter) error {
	narrowed := filter
	if m.UsesTargetBasedResolution() {
		narrowed = narrowTargetBased(m, filter)
	}

	for _, dep := range m.Dependencies {
		if !narrowed.Everything && len(narrowed.Products) == 0 {
			continue
		}
		key := dep.Identity.String()
		if err := s.resolveOne(ctx, key, dep.Location, dep.Requirement, dep.ProductFilter); err != nil {
			return err
		}
	}
	return nil
}

// narrowTargetBased implements spec.md §4.2's refinement: only the
// targets actually reachable through filter's named products contribute
// further product-filter narrowing downstream.
func narrowTargetBased(m *manifest.Manifest, filter manifest.ProductFilter) manifest.ProductFilter {
	if filter.Everything {
		return filter
	}
	reached := manifest.SpecificFilter()
	for product := range filter.Products {
		for _, tname := range m.TargetsProviding(product) {
			t, ok := m.TargetByName(tname)
			if !ok {
				continue
			}
			for _, consumed := range t.Dependencies {
				reached.Products[consumed] = struct{}{}
			}
		}
	}
	return reached
}

const versionedOrigin = true

// rejectUnsafeFlags implements spec.md §4.4: "Unsafe build flags in a
// versioned dependency cause the whole resolution to fail... unsafe
// flags in root or local dependencies are permitted." Callers only
// invoke this for versioned/branch/revision manifests, never for root or
// local ones, so the `origin` bool only documents intent at call sites.
func (s *Solver) rejectUnsafeFlags(m *manifest.Manifest, origin bool) error {
	if !origin {
		return nil
	}
	for _, t := range m.Targets {
		if t.UnsafeFlags {
			product := ""
			for _, p := range m.Products {
				for _, tn := range p.Targets {
					if tn == t.Name {
						product = p.Name
					}
				}
			}
			return &UnsafeFlagsInDependencyError{Target: t.Name, Product: product}
		}
	}
	return nil
}

// checkDivergentForm implements spec.md §4.4: "When two locations
// resolve to the same identity but differ in form... the form first
// encountered wins and is recorded; a divergent pin is treated as
// invalid and is rebuilt."
func (s *Solver) checkDivergentForm(id identity.Identity, location string) error {
	key := id.String()
	if first, ok := s.sources[key]; ok {
		if first != location {
			return errors.Errorf("divergent location form for %s: %q vs %q", key, first, location)
		}
		return nil
	}
	s.sources[key] = location
	if pinned, ok := s.Pinned.Get(id); ok && pinned.Location != "" && pinned.Location != location {
		s.Scope.Infof("pinned location form for %s differs from current (%q vs %q); rebuilding pin", key, pinned.Location, location)
		s.Pinned.Remove(id)
	}
	return nil
}

func sameResolvedState(p pins.ResolvedState, r ResolvedState) bool {
	if int(p.Kind) != int(r.Kind) {
		return false
	}
	switch r.Kind {
	case StateVersion:
		return p.Version.Equal(r.Version)
	case StateBranch:
		return p.Branch == r.Branch
	case StateRevision:
		return p.Revision == r.Revision
	default:
		return true
	}
}
