package graph

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/docker/libtrust"

	"github.com/depforge/workspace/internal/fsutil"
	"github.com/depforge/workspace/pkg/container"
	"github.com/depforge/workspace/pkg/diag"
	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/manifest"
	"github.com/depforge/workspace/pkg/prebuilts"
	"github.com/depforge/workspace/pkg/resolve"
	"github.com/depforge/workspace/pkg/sandbox"
	"github.com/depforge/workspace/pkg/semver"
)

type notFoundClient struct{}

func (notFoundClient) Do(r *http.Request) (*http.Response, error) {
	rec := httptest.NewRecorder()
	rec.Code = http.StatusNotFound
	return rec.Result(), nil
}

func fakeEligibleManager(eligible map[string]bool) *prebuilts.Manager {
	return prebuilts.NewManager(prebuilts.EligibleSet(eligible), notFoundClient{}, sandbox.New("/tmp/graph-test-sandbox"), "/tmp/graph-test-cache", "", diag.NewRoot(&diag.CollectingSink{}))
}

type fakeContainer struct {
	versions  []semver.Version
	manifests map[string]*manifest.Manifest
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

func dirFor(id identity.Identity, st resolve.ResolvedState) string {
	return "/sandbox/checkouts/" + id.String()
}

func newTestBuilder(containers map[string]*fakeContainer) (*Builder, *container.Provider) {
	provider := container.NewProvider(nil, manifest.ToolsVersion{}, nil, "")
	for loc, c := range containers {
		provider.Seed(identity.Of(loc), c)
	}
	return NewBuilder(provider, nil, nil, "6.0", "", dirFor), provider
}

func TestBuildFoldsRootAndDependencies(t *testing.T) {
	leafID := identity.Of("github.com/foo/leaf")
	leaf := &fakeContainer{
		versions: []semver.Version{v("1.0.0")},
		manifests: map[string]*manifest.Manifest{
			"1.0.0": {
				Identity: leafID,
				Products: []manifest.Product{{Name: "Leaf", Targets: []string{"Leaf"}}},
				Targets:  []manifest.Target{{Name: "Leaf", Kind: manifest.Library}},
			},
		},
	}
	b, _ := newTestBuilder(map[string]*fakeContainer{"github.com/foo/leaf": leaf})

	rootID := identity.Of("github.com/foo/root")
	root := &manifest.Manifest{
		Identity: rootID,
		Dependencies: []manifest.PackageDependency{
			{Identity: leafID, Location: "github.com/foo/leaf", Requirement: semver.NewExact(v("1.0.0"))},
		},
		Products: []manifest.Product{{Name: "Root", Targets: []string{"RootLib"}}},
		Targets: []manifest.Target{
			{Name: "RootLib", Kind: manifest.Library, Dependencies: []string{"Leaf"}},
		},
	}

	res := &resolve.Resolution{
		States: map[string]resolve.ResolvedState{
			leafID.String(): {Identity: leafID, Location: "github.com/foo/leaf", Kind: resolve.StateVersion, Version: v("1.0.0")},
		},
	}

	g, err := b.Build(context.Background(), root, res)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Packages) != 2 {
		t.Fatalf("expected 2 folded packages, got %d", len(g.Packages))
	}
	if _, ok := g.Packages[leafID.String()].Modules["Leaf"]; !ok {
		t.Error("expected leaf's Leaf target to be folded")
	}
}

func TestDetectCyclesRejectsProductCycle(t *testing.T) {
	aID := identity.Of("github.com/foo/a")
	bID := identity.Of("github.com/foo/b")

	aManifest := &manifest.Manifest{
		Identity:     aID,
		Dependencies: []manifest.PackageDependency{{Identity: bID, Location: "github.com/foo/b"}},
		Products:     []manifest.Product{{Name: "A", Targets: []string{"A"}}},
		Targets:      []manifest.Target{{Name: "A", Kind: manifest.Library, Dependencies: []string{"B"}}},
	}
	bManifest := &manifest.Manifest{
		Identity:     bID,
		Dependencies: []manifest.PackageDependency{{Identity: aID, Location: "github.com/foo/a"}},
		Products:     []manifest.Product{{Name: "B", Targets: []string{"B"}}},
		Targets:      []manifest.Target{{Name: "B", Kind: manifest.Library, Dependencies: []string{"A"}}},
	}

	aContainer := &fakeContainer{versions: []semver.Version{v("1.0.0")}, manifests: map[string]*manifest.Manifest{"1.0.0": aManifest}}
	bContainer := &fakeContainer{versions: []semver.Version{v("1.0.0")}, manifests: map[string]*manifest.Manifest{"1.0.0": bManifest}}
	b, _ := newTestBuilder(map[string]*fakeContainer{"github.com/foo/a": aContainer, "github.com/foo/b": bContainer})

	rootID := identity.Of("github.com/foo/root")
	root := &manifest.Manifest{Identity: rootID, Dependencies: []manifest.PackageDependency{{Identity: aID, Location: "github.com/foo/a"}}}

	res := &resolve.Resolution{
		States: map[string]resolve.ResolvedState{
			aID.String(): {Identity: aID, Location: "github.com/foo/a", Kind: resolve.StateVersion, Version: v("1.0.0")},
			bID.String(): {Identity: bID, Location: "github.com/foo/b", Kind: resolve.StateVersion, Version: v("1.0.0")},
		},
	}

	_, err := b.Build(context.Background(), root, res)
	if err == nil {
		t.Fatal("expected a cyclic dependency error")
	}
	if _, ok := err.(*CyclicDependencyError); !ok {
		t.Errorf("expected CyclicDependencyError, got %T: %v", err, err)
	}
}

func TestFindLeakageDisablesPrebuiltsWorkspaceWide(t *testing.T) {
	libID := identity.Of("github.com/apple/swift-syntax")
	libManifest := &manifest.Manifest{
		Identity: libID,
		Products: []manifest.Product{{Name: "SwiftSyntax", Targets: []string{"SwiftSyntax"}}},
		Targets:  []manifest.Target{{Name: "SwiftSyntax", Kind: manifest.Library}},
	}
	libContainer := &fakeContainer{versions: []semver.Version{v("600.0.1")}, manifests: map[string]*manifest.Manifest{"600.0.1": libManifest}}

	provider := container.NewProvider(nil, manifest.ToolsVersion{}, nil, "")
	provider.Seed(libID, libContainer)
	eligible := map[string]bool{libID.String(): true}
	b := NewBuilder(provider, fakeEligibleManager(eligible), nil, "6.0", "", dirFor)

	rootID := identity.Of("github.com/foo/root")
	root := &manifest.Manifest{
		Identity:     rootID,
		Dependencies: []manifest.PackageDependency{{Identity: libID, Location: "github.com/apple/swift-syntax"}},
		Products:     []manifest.Product{{Name: "Root", Targets: []string{"RootLib"}}},
		Targets: []manifest.Target{
			{Name: "RootLib", Kind: manifest.Library, Dependencies: []string{"SwiftSyntax"}},
		},
	}
	res := &resolve.Resolution{States: map[string]resolve.ResolvedState{
		libID.String(): {Identity: libID, Location: "github.com/apple/swift-syntax", Kind: resolve.StateVersion, Version: v("600.0.1")},
	}}

	g, err := b.Build(context.Background(), root, res)
	if err != nil {
		t.Fatal(err)
	}
	if !g.PrebuiltsDisabled {
		t.Error("expected a non-test/non-macro root target reaching an eligible library to disable prebuilts")
	}
	if leaks := g.FindLeakage(); len(leaks) != 1 {
		t.Errorf("expected one leakage witness, got %d", len(leaks))
	}
}

func TestFindLeakageMacroRootTargetDoesNotDisable(t *testing.T) {
	libID := identity.Of("github.com/apple/swift-syntax")
	libManifest := &manifest.Manifest{
		Identity: libID,
		Products: []manifest.Product{{Name: "SwiftSyntax", Targets: []string{"SwiftSyntax"}}},
		Targets:  []manifest.Target{{Name: "SwiftSyntax", Kind: manifest.Library}},
	}
	libContainer := &fakeContainer{versions: []semver.Version{v("600.0.1")}, manifests: map[string]*manifest.Manifest{"600.0.1": libManifest}}

	provider := container.NewProvider(nil, manifest.ToolsVersion{}, nil, "")
	provider.Seed(libID, libContainer)
	eligible := map[string]bool{libID.String(): true}
	b := NewBuilder(provider, fakeEligibleManager(eligible), nil, "6.0", "", dirFor)

	rootID := identity.Of("github.com/foo/root")
	root := &manifest.Manifest{
		Identity:     rootID,
		Dependencies: []manifest.PackageDependency{{Identity: libID, Location: "github.com/apple/swift-syntax"}},
		Products:     []manifest.Product{{Name: "RootMacro", Targets: []string{"RootMacro"}}},
		Targets: []manifest.Target{
			{Name: "RootMacro", Kind: manifest.Macro, Dependencies: []string{"SwiftSyntax"}},
		},
	}
	res := &resolve.Resolution{States: map[string]resolve.ResolvedState{
		libID.String(): {Identity: libID, Location: "github.com/apple/swift-syntax", Kind: resolve.StateVersion, Version: v("600.0.1")},
	}}

	g, err := b.Build(context.Background(), root, res)
	if err != nil {
		t.Fatal(err)
	}
	if g.PrebuiltsDisabled {
		t.Error("a macro root target reaching the eligible library alone should not disable prebuilts")
	}
}

// buildTestZip produces the bytes of a single-entry zip archive, used to
// stand in for a downloaded prebuilt archive.
func buildTestZip(t *testing.T, name, contents string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte(contents)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// signEnvelope wraps body in a libtrust JSON signature envelope the same
// way distribution/distribution's schema1.Sign does, so
// verifySignedEnvelope accepts it (TrustDir "" skips chain verification,
// leaving only the self-consistency check that Verify performs).
func signEnvelope(t *testing.T, body []byte) []byte {
	t.Helper()
	pk, err := libtrust.GenerateECP256PrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	js, err := libtrust.NewJSONSignature(body)
	if err != nil {
		t.Fatal(err)
	}
	if err := js.Sign(pk); err != nil {
		t.Fatal(err)
	}
	pretty, err := js.PrettySignature("signatures")
	if err != nil {
		t.Fatal(err)
	}
	return pretty
}

func httpOK(body []byte) *http.Response {
	rec := httptest.NewRecorder()
	rec.Code = http.StatusOK
	rec.Body = bytes.NewBuffer(body)
	return rec.Result()
}

func httpNotFoundResp() *http.Response {
	rec := httptest.NewRecorder()
	rec.Code = http.StatusNotFound
	return rec.Result()
}

// TestApplyPrebuiltsInjectsOnlyReachableRootMacroTargets exercises the
// actual injection-application path of applyPrebuilts (not just the
// leakage predicate): a root macro target that transitively depends on a
// fetched, verified, extracted prebuilt library must receive the staged
// Injection on its own Module, per spec.md §4.7 step 9 and the §8
// scenario-1 worked example — and a root library target that never
// reaches the eligible dependency must not.
func TestApplyPrebuiltsInjectsOnlyReachableRootMacroTargets(t *testing.T) {
	libID := identity.Of("github.com/apple/swift-syntax")
	libManifest := &manifest.Manifest{
		Identity: libID,
		Products: []manifest.Product{{Name: "SwiftSyntax", Targets: []string{"SwiftSyntax"}}},
		Targets:  []manifest.Target{{Name: "SwiftSyntax", Kind: manifest.Library}},
	}
	libContainer := &fakeContainer{versions: []semver.Version{v("600.0.1")}, manifests: map[string]*manifest.Manifest{"600.0.1": libManifest}}

	provider := container.NewProvider(nil, manifest.ToolsVersion{}, nil, "")
	provider.Seed(libID, libContainer)
	eligible := map[string]bool{libID.String(): true}

	archive := buildTestZip(t, "lib/libSwiftSyntax.a", "stub-archive-contents")
	checksum, err := fsutil.SHA256Reader(bytes.NewReader(archive))
	if err != nil {
		t.Fatal(err)
	}

	manifestJSON := []byte(`{"libraries":[{"name":"SwiftSyntax","cModules":["Sources/CShim"],"artifacts":{"macos_universal":{"checksum":"` + checksum + `"}}}]}`)
	signed := signEnvelope(t, manifestJSON)

	client := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		switch {
		case strings.HasSuffix(r.URL.Path, "-manifest.json"):
			return httpOK(signed), nil
		case strings.HasSuffix(r.URL.Path, ".zip"):
			return httpOK(archive), nil
		default:
			return httpNotFoundResp(), nil
		}
	})

	mgr := prebuilts.NewManager(prebuilts.EligibleSet(eligible), client, sandbox.New(t.TempDir()), t.TempDir(), "", diag.NewRoot(&diag.CollectingSink{}))
	b := NewBuilder(provider, mgr, nil, "6.0", prebuilts.Platform("macos_universal"), dirFor)

	rootID := identity.Of("github.com/foo/root")
	root := &manifest.Manifest{
		Identity:     rootID,
		Dependencies: []manifest.PackageDependency{{Identity: libID, Location: "github.com/apple/swift-syntax"}},
		Products: []manifest.Product{
			{Name: "RootLib", Targets: []string{"RootLib"}},
			{Name: "RootMacros", Targets: []string{"RootMacros"}},
		},
		Targets: []manifest.Target{
			{Name: "RootLib", Kind: manifest.Library},
			{Name: "RootMacros", Kind: manifest.Macro, Dependencies: []string{"SwiftSyntax"}},
		},
	}
	res := &resolve.Resolution{States: map[string]resolve.ResolvedState{
		libID.String(): {Identity: libID, Location: "github.com/apple/swift-syntax", Kind: resolve.StateVersion, Version: v("600.0.1")},
	}}

	g, err := b.Build(context.Background(), root, res)
	if err != nil {
		t.Fatal(err)
	}
	if g.PrebuiltsDisabled {
		t.Fatal("expected prebuilts to remain enabled: only the macro target reaches the eligible library")
	}

	rootPkg := g.Packages[rootID.String()]
	macro, ok := rootPkg.Modules["RootMacros"]
	if !ok {
		t.Fatal("expected RootMacros module to exist")
	}
	if macro.Prebuilt == nil {
		t.Fatal("expected RootMacros to receive the staged prebuilt injection")
	}
	if len(macro.Prebuilt.OtherLDFlags) != 1 {
		t.Errorf("expected one ld flag staged on RootMacros, got %v", macro.Prebuilt.OtherLDFlags)
	}

	lib, ok := rootPkg.Modules["RootLib"]
	if !ok {
		t.Fatal("expected RootLib module to exist")
	}
	if lib.Prebuilt != nil {
		t.Error("expected RootLib, which never reaches the eligible library, to receive no injection")
	}

	libPkg := g.Packages[libID.String()]
	if libPkg.Modules["SwiftSyntax"].Prebuilt != nil {
		t.Error("expected the eligible dependency's own module to never be the injection target")
	}
}
