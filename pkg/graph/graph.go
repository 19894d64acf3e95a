// Package graph implements the ModuleGraphBuilder of spec.md §4.9: the
// fold pass that turns a Resolution plus each resolved package's
// manifest into a read-only, cross-linked module graph, the sole place
// that materializes prebuilt and binary-artifact build-setting overlays
// onto targets. Grounded on golang-dep's `internal/gps.SolveLock` →
// package-tree fold (digraph.go's product/package linking) generalized
// to spec.md's target/product model.
package graph

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/depforge/workspace/pkg/artifacts"
	"github.com/depforge/workspace/pkg/container"
	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/manifest"
	"github.com/depforge/workspace/pkg/prebuilts"
	"github.com/depforge/workspace/pkg/resolve"
)

// CyclicDependencyError is the hard error spec.md §4.9 names for a
// product-level cycle.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return "cyclic dependency detected: " + joinArrow(e.Cycle)
}

func joinArrow(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += " -> "
		}
		out += id
	}
	return out
}

// Module is a target folded with its injected build-setting overlay.
// Overlay fields are nil/empty unless this target received a prebuilt or
// binary-artifact injection.
type Module struct {
	Target        manifest.Target
	Prebuilt      *prebuilts.Injection
	ArtifactPath  string // set for Binary-kind targets once bound
}

// ResolvedPackage is one folded node of the module graph, per spec.md
// §4.9's fold pass.
type ResolvedPackage struct {
	Identity  identity.Identity
	Manifest  *manifest.Manifest
	State     resolve.ResolvedState
	Directory string
	Modules   map[string]*Module // keyed by target name
	Products  map[string]manifest.Product
}

// ModuleGraph is the finished, read-only module graph.
type ModuleGraph struct {
	Root     identity.Identity
	Packages map[string]*ResolvedPackage // keyed by identity string

	// PrebuiltsDisabled records whether the leakage rule (spec.md §4.1 bullet
	// on prebuilt eligibility) globally disabled prebuilt injection for this
	// graph, and why, for diagnostics/Describe output.
	PrebuiltsDisabled bool
	LeakagePath       []string
}

// Builder runs the fold pass.
type Builder struct {
	Provider     *container.Provider
	Prebuilts    *prebuilts.Manager
	Artifacts    *artifacts.Manager
	SwiftVersion string
	Platform     prebuilts.Platform
	directory    func(id identity.Identity, st resolve.ResolvedState) string
}

// NewBuilder constructs a Builder. directory resolves a package's
// on-disk root given its identity and resolved state — ordinarily
// sandbox.CheckoutPath/EditPath/the local manifest's own Location,
// injected so this package has no direct sandbox dependency.
func NewBuilder(p *container.Provider, pm *prebuilts.Manager, am *artifacts.Manager, swiftVersion string, platform prebuilts.Platform, directory func(identity.Identity, resolve.ResolvedState) string) *Builder {
	return &Builder{Provider: p, Prebuilts: pm, Artifacts: am, SwiftVersion: swiftVersion, Platform: platform, directory: directory}
}

func (b *Builder) swiftVersion() string         { return b.SwiftVersion }
func (b *Builder) platform() prebuilts.Platform { return b.Platform }

func (b *Builder) isEligible(pkgKey string) bool {
	if b.Prebuilts == nil {
		return false
	}
	return b.Prebuilts.Eligible[pkgKey]
}

// Build runs the full fold-and-link pass described in spec.md §4.9,
// given the resolver's output and the root package's own manifest
// (which is not itself a resolved dependency, so it is supplied
// directly rather than looked up through the Provider).
func (b *Builder) Build(ctx context.Context, root *manifest.Manifest, res *resolve.Resolution) (*ModuleGraph, error) {
	g := &ModuleGraph{Root: root.Identity, Packages: make(map[string]*ResolvedPackage)}

	rootPkg, err := b.foldRoot(root)
	if err != nil {
		return nil, err
	}
	g.Packages[root.Identity.String()] = rootPkg

	for key, st := range res.States {
		pkg, err := b.foldDependency(ctx, st)
		if err != nil {
			return nil, err
		}
		g.Packages[key] = pkg
	}

	if err := b.detectCycles(g); err != nil {
		return nil, err
	}

	leaky, path := findLeakage(g, b.isEligible)
	g.PrebuiltsDisabled = leaky
	g.LeakagePath = path

	if err := b.applyOverlays(ctx, g); err != nil {
		return nil, err
	}

	return g, nil
}

func (b *Builder) foldRoot(m *manifest.Manifest) (*ResolvedPackage, error) {
	return b.fold(m, resolve.ResolvedState{Identity: m.Identity, Kind: resolve.StateLocal}, b.directory(m.Identity, resolve.ResolvedState{Identity: m.Identity, Kind: resolve.StateLocal}))
}

func (b *Builder) foldDependency(ctx context.Context, st resolve.ResolvedState) (*ResolvedPackage, error) {
	c, err := b.Provider.ContainerFor(st.Identity, st.Location)
	if err != nil {
		return nil, errors.Wrapf(err, "graph: locating container for %s", st.Identity)
	}
	at := atFor(st)
	m, err := c.Manifest(ctx, at)
	if err != nil {
		return nil, errors.Wrapf(err, "graph: loading manifest for %s", st.Identity)
	}
	dir := b.directory(st.Identity, st)
	return b.fold(m, st, dir)
}

func atFor(st resolve.ResolvedState) container.VersionOrRevision {
	switch st.Kind {
	case resolve.StateVersion:
		return container.AtVersion(st.Version)
	case resolve.StateBranch:
		return container.AtBranch(st.Branch)
	case resolve.StateRevision:
		return container.AtRevision(st.Revision)
	default:
		return container.VersionOrRevision{}
	}
}

func (b *Builder) fold(m *manifest.Manifest, st resolve.ResolvedState, dir string) (*ResolvedPackage, error) {
	pkg := &ResolvedPackage{
		Identity:  m.Identity,
		Manifest:  m,
		State:     st,
		Directory: dir,
		Modules:   make(map[string]*Module, len(m.Targets)),
		Products:  make(map[string]manifest.Product, len(m.Products)),
	}
	for _, t := range m.Targets {
		pkg.Modules[t.Name] = &Module{Target: t}
	}
	for _, p := range m.Products {
		for _, tn := range p.Targets {
			if _, ok := pkg.Modules[tn]; !ok {
				return nil, errors.Errorf("graph: product %s in %s references unknown target %s", p.Name, m.Identity, tn)
			}
		}
		pkg.Products[p.Name] = p
	}
	return pkg, nil
}

// detectCycles rejects dependency cycles among the folded packages. It
// walks package-level edges (each package manifest's declared
// dependencies), not product or target edges, so a cycle between two
// packages is rejected even when no chain of product dependencies closes it.
func (b *Builder) detectCycles(g *ModuleGraph) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int)
	var stack []string

	var visit func(key string) error
	visit = func(key string) error {
		switch state[key] {
		case done:
			return nil
		case visiting:
			return &CyclicDependencyError{Cycle: append(append([]string{}, stack...), key)}
		}
		state[key] = visiting
		stack = append(stack, key)

		pkg := g.Packages[key]
		if pkg != nil {
			for _, dep := range pkg.Manifest.Dependencies {
				depKey := dep.Identity.String()
				if _, ok := g.Packages[depKey]; ok {
					if err := visit(depKey); err != nil {
						return err
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[key] = done
		return nil
	}

	keys := make([]string, 0, len(g.Packages))
	for k := range g.Packages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := visit(k); err != nil {
			return err
		}
	}
	return nil
}
