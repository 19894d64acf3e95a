// Package manifest defines the in-memory manifest data model spec.md §3
// describes. Parsing an on-disk manifest file into this shape is an
// out-of-scope external collaborator (spec.md §1); this package only
// carries the data model and the pure helpers (target-based dependency
// resolution filtering, tools-version comparison) that operate on it,
// plus a JSON decoder used by this repo's own test fixtures — mirroring
// the shape golang-dep's manifest.go carries for Gopkg.toml, generalized
// to spec.md's richer target/product model.
package manifest

import (
	"fmt"

	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/semver"
)

// TargetKind enumerates the kinds spec.md §3 names for a target.
type TargetKind uint8

const (
	Library TargetKind = iota
	Executable
	Test
	Macro
	Plugin
	Binary
)

func (k TargetKind) String() string {
	switch k {
	case Library:
		return "library"
	case Executable:
		return "executable"
	case Test:
		return "test"
	case Macro:
		return "macro"
	case Plugin:
		return "plugin"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// ProductFilter guides which transitive manifests contribute constraints,
// per spec.md §3. It is either "everything" (zero value) or a specific
// named set of products.
type ProductFilter struct {
	Everything bool
	Products   map[string]struct{}
}

// EverythingFilter returns the unrestricted filter.
func EverythingFilter() ProductFilter { return ProductFilter{Everything: true} }

// SpecificFilter returns a filter restricted to the named products.
func SpecificFilter(products ...string) ProductFilter {
	set := make(map[string]struct{}, len(products))
	for _, p := range products {
		set[p] = struct{}{}
	}
	return ProductFilter{Products: set}
}

// Intersect combines two filters the way two targets' product requirements
// on the same dependency combine: the union of named products, unless
// either side is unrestricted, in which case the result is unrestricted.
func (f ProductFilter) Intersect(o ProductFilter) ProductFilter {
	if f.Everything || o.Everything {
		return EverythingFilter()
	}
	out := SpecificFilter()
	for p := range f.Products {
		out.Products[p] = struct{}{}
	}
	for p := range o.Products {
		out.Products[p] = struct{}{}
	}
	return out
}

func (f ProductFilter) Contains(product string) bool {
	if f.Everything {
		return true
	}
	_, ok := f.Products[product]
	return ok
}

// PackageDependency is one manifest-declared dependency edge.
type PackageDependency struct {
	Identity      identity.Identity
	Location      string
	Requirement   semver.Requirement
	ProductFilter ProductFilter
}

// BinarySource is populated on a Binary-kind target, per spec.md §3:
// either a local path, or a remote URL with a declared checksum.
type BinarySource struct {
	LocalPath string
	URL       string
	Checksum  string // sha256 hex, per spec.md §6
}

// Target declares a kind, its source-level dependencies (by product name,
// resolved later against the owning manifest's PackageDependency list),
// and binary-target source info when Kind == Binary.
type Target struct {
	Name         string
	Kind         TargetKind
	Dependencies []string // product names this target consumes
	Binary       *BinarySource
	UnsafeFlags  bool
}

// Product groups targets under a name a consuming manifest can depend on.
type Product struct {
	Name    string
	Targets []string
}

// ToolsVersion is the manifest-declared minimum tool version, compared
// against the constant below to decide whether target-based dependency
// resolution (spec.md §4.2) applies.
type ToolsVersion struct {
	Major, Minor int
}

func (t ToolsVersion) Less(o ToolsVersion) bool {
	if t.Major != o.Major {
		return t.Major < o.Major
	}
	return t.Minor < o.Minor
}

func (t ToolsVersion) String() string { return fmt.Sprintf("%d.%d", t.Major, t.Minor) }

// TargetBasedResolutionFloor is the tools-version threshold named in
// spec.md §4.2 ("When toolsVersion ≥ 5.2").
var TargetBasedResolutionFloor = ToolsVersion{Major: 5, Minor: 2}

// Manifest is the fully-parsed, in-memory manifest spec.md §3 describes.
type Manifest struct {
	DisplayName  string
	Identity     identity.Identity
	Location     string
	ToolsVersion ToolsVersion
	Dependencies []PackageDependency
	Products     []Product
	Targets      []Target
	Platforms    []string
}

// TargetsProviding returns the names of targets backing a product.
func (m *Manifest) TargetsProviding(product string) []string {
	for _, p := range m.Products {
		if p.Name == product {
			return p.Targets
		}
	}
	return nil
}

// TargetByName looks up a target by name.
func (m *Manifest) TargetByName(name string) (Target, bool) {
	for _, t := range m.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}

// UsesTargetBasedResolution reports whether this manifest's declared
// tools-version is new enough to apply the product-filter narrowing of
// spec.md §4.2.
func (m *Manifest) UsesTargetBasedResolution() bool {
	return !m.ToolsVersion.Less(TargetBasedResolutionFloor)
}
