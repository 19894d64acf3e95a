package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/depforge/workspace/internal/fsutil"
	"github.com/depforge/workspace/pkg/constraint"
	"github.com/depforge/workspace/pkg/container"
	"github.com/depforge/workspace/pkg/graph"
	"github.com/depforge/workspace/pkg/managed"
	"github.com/depforge/workspace/pkg/manifest"
	"github.com/depforge/workspace/pkg/pins"
	"github.com/depforge/workspace/pkg/resolve"
)

// loadRootManifest reads the root manifest out of the working directory,
// using the same fixture decoder every container's ManifestLoader uses.
func (c *Context) loadRootManifest() (*manifest.Manifest, error) {
	f, err := os.Open(filepath.Join(c.WorkingDir, manifestFileName))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return manifest.Decode(f, c.WorkingDir)
}

func (c *Context) loadPins() (*pins.Store, error) {
	f, err := os.Open(c.Sandbox.PinsFile())
	if err != nil {
		if os.IsNotExist(err) {
			return pins.New(), nil
		}
		return nil, err
	}
	defer f.Close()
	return pins.Decode(f)
}

func (c *Context) savePins(store *pins.Store) error {
	var buf bytes.Buffer
	if err := store.Encode(&buf); err != nil {
		return err
	}
	return fsutil.AtomicWriteFile(c.Sandbox.PinsFile(), buf.Bytes(), 0o644)
}

// resolutionOutcome bundles what every entrypoint (checkPackageGraph,
// update) needs out of one pass through precompute/solve/reconcile/fold.
type resolutionOutcome struct {
	Precomputation resolve.Precomputation
	Resolution     *resolve.Resolution
	ModuleGraph    *graph.ModuleGraph
}

// runResolution implements the shared pipeline spec.md §4.4-§4.9 chains
// together: build root-level constraints, short-circuit through
// Precompute, solve only when required (or when force is set), reconcile
// the managed store against the result, and fold the module graph.
//
// Two separate constraint sets are built deliberately: Solver.Solve only
// ever takes the root-level flattened list and discovers transitive
// constraints itself during the search (absorbTransitive in solver.go),
// while Precompute needs the fuller root-plus-pinned-transitive view to
// decide whether a solve is required at all without paying for one.
func (c *Context) runResolution(ctx context.Context, root *manifest.Manifest, force bool) (*resolutionOutcome, error) {
	pinned, err := c.loadPins()
	if err != nil {
		return nil, err
	}

	rootStore := constraint.New(c.Config)
	rootStore.AddRoot(root)

	precomputeStore := constraint.New(c.Config)
	precomputeStore.AddRoot(root)
	for _, p := range pinned.All() {
		cont, err := c.Provider.ContainerFor(p.Identity, p.Location)
		if err != nil {
			continue
		}
		m, err := cont.Manifest(ctx, pinAt(p))
		if err != nil {
			continue
		}
		precomputeStore.AddTransitive(m, manifest.EverythingFilter())
	}

	pc := resolve.Precompute(precomputeStore.All(), pinned)

	var res *resolve.Resolution
	if force || pc.Reason != resolve.NotRequired {
		managedStore, err := managed.Load(c.Sandbox)
		if err != nil {
			return nil, err
		}
		edited := c.editedDependencies(managedStore)

		solver := resolve.NewSolver(c.Provider, pinned, edited, c.Scope.Child("resolve"))
		res, err = solver.Solve(ctx, root.Identity, rootStore.All())
		if err != nil {
			return nil, err
		}

		for _, st := range res.States {
			pinned.Set(pins.Pin{Identity: st.Identity, Location: st.Location, State: toPinsState(st)})
		}
		if force {
			// spec.md §3 Invariants: "stray pins are dropped by update" — any
			// previously-pinned identity the fresh solve no longer resolved
			// is dropped rather than left stale in the pin file.
			for _, p := range pinned.All() {
				if _, live := res.States[p.Identity.String()]; !live {
					pinned.Remove(p.Identity)
				}
			}
		}
		if err := c.savePins(pinned); err != nil {
			return nil, err
		}

		reconciler := managed.NewReconciler(c.Sandbox, c.Provider, c.Scope.Child("managed"))
		if errs := reconciler.Reconcile(ctx, managedStore, res); len(errs) > 0 {
			return nil, errs[0]
		}
		if err := managedStore.Save(c.Sandbox); err != nil {
			return nil, err
		}
	} else {
		res = resolutionFromPins(pinned)
	}

	mg, err := c.GraphBuilder.Build(ctx, root, res)
	if err != nil {
		return nil, err
	}

	return &resolutionOutcome{Precomputation: pc, Resolution: res, ModuleGraph: mg}, nil
}

// pinAt converts a persisted pin's state into the VersionOrRevision a
// Container.Manifest call needs.
func pinAt(p pins.Pin) container.VersionOrRevision {
	switch p.State.Kind {
	case pins.StateVersion:
		return container.AtVersion(p.State.Version)
	case pins.StateBranch:
		return container.AtBranch(p.State.Branch)
	case pins.StateRevision:
		return container.AtRevision(p.State.Revision)
	default:
		return container.VersionOrRevision{}
	}
}

func toPinsState(st resolve.ResolvedState) pins.ResolvedState {
	out := pins.ResolvedState{Revision: st.Revision}
	switch st.Kind {
	case resolve.StateVersion:
		out.Kind = pins.StateVersion
		out.Version = st.Version
	case resolve.StateBranch:
		out.Kind = pins.StateBranch
		out.Branch = st.Branch
	case resolve.StateRevision:
		out.Kind = pins.StateRevision
	default:
		out.Kind = pins.StateLocal
	}
	return out
}

// resolutionFromPins reconstructs a Resolution from the persisted pin set
// when Precompute determined a fresh solve was not required — the
// resolved state is exactly what's already pinned.
func resolutionFromPins(pinned *pins.Store) *resolve.Resolution {
	res := &resolve.Resolution{States: make(map[string]resolve.ResolvedState), Changed: make(map[string]bool)}
	for _, p := range pinned.All() {
		res.States[p.Identity.String()] = pinsStateToResolved(p)
	}
	return res
}

func pinsStateToResolved(p pins.Pin) resolve.ResolvedState {
	out := resolve.ResolvedState{Identity: p.Identity, Location: p.Location, Revision: p.State.Revision}
	switch p.State.Kind {
	case pins.StateVersion:
		out.Kind = resolve.StateVersion
		out.Version = p.State.Version
	case pins.StateBranch:
		out.Kind = resolve.StateBranch
		out.Branch = p.State.Branch
	case pins.StateRevision:
		out.Kind = resolve.StateRevision
	default:
		out.Kind = resolve.StateLocal
	}
	return out
}

// editedDependencies loads the frozen manifest for every entry currently
// in the Edited lifecycle state, per spec.md §4.4's note that "their
// manifests are still loaded to contribute transitive constraints, but
// their state is frozen."
func (c *Context) editedDependencies(store *managed.Store) map[string]resolve.EditedDependency {
	out := make(map[string]resolve.EditedDependency)
	for key, entry := range store.Entries {
		if entry.Lifecycle != managed.Edited {
			continue
		}
		editRoot := c.Sandbox.EditPath(entry.Identity)
		f, err := os.Open(filepath.Join(editRoot, manifestFileName))
		if err != nil {
			c.Scope.Warningf("edited dependency %s: %v", key, err)
			continue
		}
		m, err := manifest.Decode(f, editRoot)
		f.Close()
		if err != nil {
			c.Scope.Warningf("edited dependency %s: %v", key, err)
			continue
		}
		out[key] = resolve.EditedDependency{Identity: entry.Identity, Location: entry.Location, Manifest: m}
	}
	return out
}
