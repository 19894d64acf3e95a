package resolve

import (
	"context"
	"testing"

	"github.com/depforge/workspace/pkg/constraint"
	"github.com/depforge/workspace/pkg/container"
	"github.com/depforge/workspace/pkg/diag"
	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/manifest"
	"github.com/depforge/workspace/pkg/pins"
	"github.com/depforge/workspace/pkg/semver"
)

type fakeContainer struct {
	versions  []semver.Version
	manifests map[string]*manifest.Manifest // keyed by version string
}

func (f *fakeContainer) AvailableVersionsDescending(ctx context.Context) ([]semver.Version, error) {
	return f.versions, nil
}

func (f *fakeContainer) Manifest(ctx context.Context, at container.VersionOrRevision) (*manifest.Manifest, error) {
	return f.manifests[at.Version.String()], nil
}

func (f *fakeContainer) Dependencies(ctx context.Context, at container.VersionOrRevision, filter manifest.ProductFilter) ([]manifest.PackageDependency, error) {
	m := f.manifests[at.Version.String()]
	if m == nil {
		return nil, nil
	}
	return m.Dependencies, nil
}

func v(s string) semver.Version {
	ver, err := semver.Parse(s)
	if err != nil {
		panic(err)
	}
	return ver
}

func newTestSolver(containers map[string]*fakeContainer, pinned *pins.Store) *Solver {
	provider := container.NewProvider(nil, manifest.ToolsVersion{}, nil, "")
	for loc, c := range containers {
		provider.Seed(identity.Of(loc), c)
	}
	scope := diag.NewRoot(&diag.CollectingSink{})
	return NewSolver(provider, pinned, map[string]EditedDependency{}, scope)
}

func TestSolveSimpleVersionedDependency(t *testing.T) {
	leaf := &fakeContainer{
		versions: []semver.Version{v("2.0.0"), v("1.0.0")},
		manifests: map[string]*manifest.Manifest{
			"2.0.0": {Identity: identity.Of("github.com/foo/leaf")},
			"1.0.0": {Identity: identity.Of("github.com/foo/leaf")},
		},
	}
	pinned := pins.New()
	s := newTestSolver(map[string]*fakeContainer{"github.com/foo/leaf": leaf}, pinned)

	req, _ := semver.ParseRange(">=1.0.0")
	cs := []constraint.Constraint{{
		Identity:      identity.Of("github.com/foo/leaf"),
		Location:      "github.com/foo/leaf",
		Requirement:   req,
		ProductFilter: manifest.EverythingFilter(),
	}}

	res, err := s.Solve(context.Background(), identity.Of("root"), cs)
	if err != nil {
		t.Fatal(err)
	}
	st, ok := res.States[identity.Of("github.com/foo/leaf").String()]
	if !ok {
		t.Fatal("expected leaf to be resolved")
	}
	if st.Version.String() != "2.0.0" {
		t.Errorf("expected newest-first tie-break to pick 2.0.0, got %s", st.Version)
	}
}

func TestSolvePinBias(t *testing.T) {
	leaf := &fakeContainer{
		versions: []semver.Version{v("2.0.0"), v("1.5.0")},
		manifests: map[string]*manifest.Manifest{
			"2.0.0": {Identity: identity.Of("github.com/foo/leaf")},
			"1.5.0": {Identity: identity.Of("github.com/foo/leaf")},
		},
	}
	pinned := pins.New()
	pinned.Set(pins.Pin{
		Identity: identity.Of("github.com/foo/leaf"),
		Location: "github.com/foo/leaf",
		State:    pins.ResolvedState{Kind: pins.StateVersion, Version: v("1.5.0")},
	})
	s := newTestSolver(map[string]*fakeContainer{"github.com/foo/leaf": leaf}, pinned)

	req, _ := semver.ParseRange(">=1.0.0")
	cs := []constraint.Constraint{{
		Identity:      identity.Of("github.com/foo/leaf"),
		Location:      "github.com/foo/leaf",
		Requirement:   req,
		ProductFilter: manifest.EverythingFilter(),
	}}

	res, err := s.Solve(context.Background(), identity.Of("root"), cs)
	if err != nil {
		t.Fatal(err)
	}
	st := res.States[identity.Of("github.com/foo/leaf").String()]
	if st.Version.String() != "1.5.0" {
		t.Errorf("expected pin-biased 1.5.0, got %s", st.Version)
	}
	if res.Changed[identity.Of("github.com/foo/leaf").String()] {
		t.Error("expected no change recorded since resolved state matches pin")
	}
}

func TestPrecomputeNotRequiredWhenPinsSatisfyConstraints(t *testing.T) {
	pinned := pins.New()
	pinned.Set(pins.Pin{
		Identity: identity.Of("github.com/foo/leaf"),
		Location: "github.com/foo/leaf",
		State:    pins.ResolvedState{Kind: pins.StateVersion, Version: v("1.5.0")},
	})
	req, _ := semver.ParseRange(">=1.0.0")
	cs := []constraint.Constraint{{
		Identity:    identity.Of("github.com/foo/leaf"),
		Requirement: req,
	}}
	p := Precompute(cs, pinned)
	if p.Reason != NotRequired {
		t.Errorf("expected NotRequired, got %v", p.Reason)
	}
}

func TestPrecomputeNewPackages(t *testing.T) {
	pinned := pins.New()
	req, _ := semver.ParseRange(">=1.0.0")
	cs := []constraint.Constraint{{
		Identity:    identity.Of("github.com/foo/leaf"),
		Requirement: req,
	}}
	p := Precompute(cs, pinned)
	if p.Reason != NewPackages {
		t.Errorf("expected NewPackages, got %v", p.Reason)
	}
}

func TestRevisionDependencyWithLocalDependencyRejected(t *testing.T) {
	local := manifest.PackageDependency{
		Identity:    identity.Of("/local/lib"),
		Requirement: semver.NewUnversioned(),
	}
	leaf := &fakeContainer{
		manifests: map[string]*manifest.Manifest{
			"": {Identity: identity.Of("github.com/foo/leaf"), Dependencies: []manifest.PackageDependency{local}},
		},
	}
	pinned := pins.New()
	s := newTestSolver(map[string]*fakeContainer{"github.com/foo/leaf": leaf}, pinned)

	cs := []constraint.Constraint{{
		Identity:      identity.Of("github.com/foo/leaf"),
		Location:      "github.com/foo/leaf",
		Requirement:   semver.NewRevision("deadbeef"),
		ProductFilter: manifest.EverythingFilter(),
	}}

	_, err := s.Solve(context.Background(), identity.Of("root"), cs)
	if err == nil {
		t.Fatal("expected RevisionDependencyHasLocalDependencyError")
	}
	if _, ok := err.(*RevisionDependencyHasLocalDependencyError); !ok {
		t.Errorf("got %T, want *RevisionDependencyHasLocalDependencyError", err)
	}
}

func TestCheckDivergentFormAcceptsRepeatedIdenticalLocation(t *testing.T) {
	s := newTestSolver(nil, pins.New())
	id := identity.Of("github.com/foo/leaf")

	if err := s.checkDivergentForm(id, "https://github.com/foo/leaf"); err != nil {
		t.Fatalf("first sighting: unexpected error: %v", err)
	}
	if err := s.checkDivergentForm(id, "https://github.com/foo/leaf"); err != nil {
		t.Errorf("repeat of the same location form should not be flagged as divergent: %v", err)
	}
}

func TestCheckDivergentFormRejectsSecondLocationForm(t *testing.T) {
	s := newTestSolver(nil, pins.New())
	id := identity.Of("github.com/foo/leaf")

	if err := s.checkDivergentForm(id, "https://github.com/foo/leaf"); err != nil {
		t.Fatalf("first sighting: unexpected error: %v", err)
	}
	err := s.checkDivergentForm(id, "git@github.com:foo/leaf.git")
	if err == nil {
		t.Fatal("expected an error for a second, differently-formed location resolving to the same identity")
	}
}
