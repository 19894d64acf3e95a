package main

import (
	"flag"

	"github.com/depforge/workspace/pkg/managed"
	"github.com/depforge/workspace/pkg/resolve"
	"github.com/depforge/workspace/pkg/sandbox"
)

// resetCommand implements the `reset` operation of spec.md §2. Per
// spec.md §4.5, "reset deletes pins"; this repo supplements that with
// the analogous managed-state wipe (removing every non-edited checkout,
// reusing the Reconciler's step-3 removal logic against an empty
// resolution) so a subsequent `check` starts from a clean slate. Edited
// dependencies are never touched by reset, matching the Invariant that
// they are "immune to resolver-driven mutation."
type resetCommand struct{}

func (c *resetCommand) Name() string      { return "reset" }
func (c *resetCommand) Args() string      { return "" }
func (c *resetCommand) Hidden() bool      { return false }
func (c *resetCommand) ShortHelp() string { return "delete pins and managed checkouts" }
func (c *resetCommand) LongHelp() string {
	return "reset deletes the pin file's contents and removes every non-edited managed checkout, leaving edited dependencies untouched."
}

func (c *resetCommand) Register(fs *flag.FlagSet) {}

func (c *resetCommand) Run(ctx *Context, args []string) error {
	lock, err := sandbox.Acquire(ctx.Sandbox)
	if err != nil {
		return err
	}
	defer lock.Release()

	pinned, err := ctx.loadPins()
	if err != nil {
		return err
	}
	pinned.Reset()
	if err := ctx.savePins(pinned); err != nil {
		return err
	}

	store, err := managed.Load(ctx.Sandbox)
	if err != nil {
		return err
	}
	reconciler := managed.NewReconciler(ctx.Sandbox, ctx.Provider, ctx.Scope.Child("managed"))
	empty := &resolve.Resolution{States: make(map[string]resolve.ResolvedState)}
	if errs := reconciler.Reconcile(ctx.rootContext(), store, empty); len(errs) > 0 {
		return errs[0]
	}

	ctx.Out.Println("pins and managed checkouts reset")
	return nil
}
