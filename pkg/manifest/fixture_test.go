package manifest

import (
	"strings"
	"testing"
)

const fooManifest = `{
  "name": "Foo",
  "toolsVersion": "5.2",
  "dependencies": [
    {"location": "github.com/apple/swift-syntax", "version": "600.0.1", "products": ["SwiftSyntax"]}
  ],
  "products": [
    {"name": "Foo", "targets": ["Foo"]},
    {"name": "FooClient", "targets": ["FooClient"]}
  ],
  "targets": [
    {"name": "FooMacros", "kind": "macro", "dependencies": ["SwiftSyntax"]},
    {"name": "Foo", "kind": "library", "dependencies": ["FooMacros"]},
    {"name": "FooClient", "kind": "executable", "dependencies": ["Foo"]},
    {"name": "FooTests", "kind": "test", "dependencies": ["FooMacros"]}
  ]
}`

func TestDecodeManifest(t *testing.T) {
	m, err := Decode(strings.NewReader(fooManifest), "github.com/example/foo")
	if err != nil {
		t.Fatal(err)
	}
	if m.DisplayName != "Foo" {
		t.Errorf("displayName = %q", m.DisplayName)
	}
	if !m.UsesTargetBasedResolution() {
		t.Error("toolsVersion 5.2 should enable target-based resolution")
	}
	if len(m.Dependencies) != 1 {
		t.Fatalf("expected 1 dependency, got %d", len(m.Dependencies))
	}
	dep := m.Dependencies[0]
	if !dep.ProductFilter.Contains("SwiftSyntax") {
		t.Error("expected product filter to contain SwiftSyntax")
	}
	if dep.ProductFilter.Contains("Other") {
		t.Error("specific filter should not contain unrelated product")
	}

	tgt, ok := m.TargetByName("FooMacros")
	if !ok || tgt.Kind != Macro {
		t.Errorf("expected FooMacros to be a macro target, got %+v ok=%v", tgt, ok)
	}
}

func TestConflictingConstraintsRejected(t *testing.T) {
	bad := `{
	  "name": "Bad",
	  "dependencies": [{"location": "x", "version": "1.0.0", "branch": "main"}]
	}`
	if _, err := Decode(strings.NewReader(bad), "x"); err == nil {
		t.Fatal("expected error for multiple constraint kinds")
	}
}
