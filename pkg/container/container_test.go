package container

import (
	"context"
	"testing"

	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/manifest"
)

type fakeSCMRepo struct {
	tags     []string
	branches []string
	checkout string
}

func (f *fakeSCMRepo) Get() error                     { return nil }
func (f *fakeSCMRepo) Update() error                  { return nil }
func (f *fakeSCMRepo) Tags() ([]string, error)        { return f.tags, nil }
func (f *fakeSCMRepo) Branches() ([]string, error)    { return f.branches, nil }
func (f *fakeSCMRepo) CheckoutRevision(rev string) error {
	f.checkout = rev
	return nil
}
func (f *fakeSCMRepo) CurrentRevision() (string, error) { return "deadbeef", nil }
func (f *fakeSCMRepo) RevisionForBranch(branch string) (string, error) {
	for _, b := range f.branches {
		if b == branch {
			return "branchrev", nil
		}
	}
	return "", &BranchNotFoundError{Branch: branch, Suggestion: suggestBranch(branch, f.branches)}
}
func (f *fakeSCMRepo) LocalPath() string { return "/fake/local" }

func fakeLoader(m *manifest.Manifest) ManifestLoader {
	return func(root string) (*manifest.Manifest, error) { return m, nil }
}

func TestSourceControlContainerVersionOrdering(t *testing.T) {
	repo := &fakeSCMRepo{tags: []string{"v1.0.0", "2.0.0", "v1.5.0", "not-a-version"}}
	m := &manifest.Manifest{}
	c := NewSourceControlContainer(identity.Of("github.com/foo/bar"), repo, fakeLoader(m), manifest.ToolsVersion{})

	versions, err := c.AvailableVersionsDescending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2.0.0", "1.5.0", "1.0.0"}
	if len(versions) != len(want) {
		t.Fatalf("got %d versions, want %d", len(versions), len(want))
	}
	for i, w := range want {
		if versions[i].String() != w {
			t.Errorf("position %d = %s, want %s", i, versions[i].String(), w)
		}
	}
}

func TestBranchNotFoundSuggestion(t *testing.T) {
	repo := &fakeSCMRepo{branches: []string{"main", "develop"}}
	_, err := repo.RevisionForBranch("mian")
	var bnf *BranchNotFoundError
	if err == nil {
		t.Fatal("expected error")
	}
	if be, ok := err.(*BranchNotFoundError); ok {
		bnf = be
	} else {
		t.Fatalf("wrong error type: %T", err)
	}
	if bnf.Suggestion != "main" {
		t.Errorf("suggestion = %q, want main", bnf.Suggestion)
	}
}

func TestTargetBasedResolutionNarrowsFilter(t *testing.T) {
	m := &manifest.Manifest{
		ToolsVersion: manifest.ToolsVersion{Major: 5, Minor: 2},
		Dependencies: []manifest.PackageDependency{
			{Location: "github.com/apple/swift-syntax", ProductFilter: manifest.EverythingFilter()},
		},
		Targets: []manifest.Target{
			{Name: "FooMacros", Kind: manifest.Macro, Dependencies: []string{"SwiftSyntax"}},
		},
	}
	out := narrowByTargetBasedResolution(m, manifest.EverythingFilter())
	if len(out) != 1 {
		t.Fatalf("expected 1 dependency")
	}
	if !out[0].ProductFilter.Contains("SwiftSyntax") {
		t.Error("expected narrowed filter to retain referenced product")
	}
	if out[0].ProductFilter.Everything {
		t.Error("5.2 manifest should narrow away from Everything")
	}
}

func TestLocalContainerUnversioned(t *testing.T) {
	m := &manifest.Manifest{}
	c := NewLocalContainer(identity.Of("/abs/path"), "/abs/path", fakeLoader(m))
	versions, err := c.AvailableVersionsDescending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 0 {
		t.Errorf("expected no enumerable versions for a local container")
	}
}
