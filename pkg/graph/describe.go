package graph

import (
	"encoding/json"
	"sort"
)

// Leak names one witnessed leakage path: a root target that reaches a
// prebuilt-eligible library target through the product dependency graph.
type Leak struct {
	RootIdentity string
	RootTarget   string
	LibPackage   string
	LibTarget    string
}

// FindLeakage reports the leakage witnesses recorded for this graph.
// Build() already runs the underlying walk and disables prebuilts
// workspace-wide the moment one witness is found (spec.md §4.9 folds the
// check into the same pass that applies overlays, since computing it as
// a separate pre-check from pkg/prebuilts would require prebuilts to
// import graph, which already imports prebuilts for Injection/Manager —
// an import cycle). This method exposes the recorded witness for
// diagnostics and the read-only inspection commands.
func (g *ModuleGraph) FindLeakage() []Leak {
	if !g.PrebuiltsDisabled || len(g.LeakagePath) < 3 {
		return nil
	}
	return []Leak{{
		RootIdentity: g.LeakagePath[0],
		LibPackage:   g.LeakagePath[1],
		LibTarget:    g.LeakagePath[2],
	}}
}

// Description is the read-only projection of a ModuleGraph returned by
// Describe/DescribeJSON, supplementing the distilled spec with the
// inspection surface the original tool exposed as
// `swift package show-dependencies`.
type Description struct {
	Root              string               `json:"root"`
	PrebuiltsDisabled bool                 `json:"prebuiltsDisabled"`
	Packages          []PackageDescription `json:"packages"`
}

type PackageDescription struct {
	Identity string              `json:"identity"`
	Resolved string              `json:"resolved"`
	Products []string            `json:"products"`
	Targets  []TargetDescription `json:"targets"`
}

type TargetDescription struct {
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	HasPrebuilt    bool   `json:"hasPrebuilt"`
	ArtifactBound  bool   `json:"artifactBound,omitempty"`
}

// Describe builds a deterministic, read-only snapshot of the graph
// suitable for display — identities and target names sorted so two runs
// over the same resolution produce byte-identical output.
func (g *ModuleGraph) Describe() Description {
	desc := Description{Root: g.Root.String(), PrebuiltsDisabled: g.PrebuiltsDisabled}

	keys := make([]string, 0, len(g.Packages))
	for k := range g.Packages {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		pkg := g.Packages[k]
		pd := PackageDescription{Identity: k, Resolved: resolvedLabel(pkg)}

		products := make([]string, 0, len(pkg.Products))
		for name := range pkg.Products {
			products = append(products, name)
		}
		sort.Strings(products)
		pd.Products = products

		targetNames := make([]string, 0, len(pkg.Modules))
		for name := range pkg.Modules {
			targetNames = append(targetNames, name)
		}
		sort.Strings(targetNames)
		for _, name := range targetNames {
			mod := pkg.Modules[name]
			pd.Targets = append(pd.Targets, TargetDescription{
				Name:          name,
				Kind:          mod.Target.Kind.String(),
				HasPrebuilt:   mod.Prebuilt != nil,
				ArtifactBound: mod.ArtifactPath != "",
			})
		}

		desc.Packages = append(desc.Packages, pd)
	}
	return desc
}

func resolvedLabel(pkg *ResolvedPackage) string {
	switch pkg.State.Kind {
	case resolveStateVersion:
		return pkg.State.Version.String()
	default:
		if pkg.State.Branch != "" {
			return pkg.State.Branch
		}
		if pkg.State.Revision != "" {
			return pkg.State.Revision
		}
		return "local"
	}
}

// DescribeJSON renders Describe's snapshot as indented JSON.
func (g *ModuleGraph) DescribeJSON() ([]byte, error) {
	return json.MarshalIndent(g.Describe(), "", "  ")
}
