package main

import (
	"flag"

	"github.com/depforge/workspace/pkg/managed"
	"github.com/depforge/workspace/pkg/sandbox"
)

// cleanCommand implements the `clean` operation of spec.md §2, per the
// SPEC_FULL.md supplement grounded on golang-dep's prune.go: sweep the
// checkouts directory for entries belonging to no known managed
// dependency (e.g. left behind by a crashed prior run), without
// otherwise touching the current resolution or pins.
type cleanCommand struct{}

func (c *cleanCommand) Name() string      { return "clean" }
func (c *cleanCommand) Args() string      { return "" }
func (c *cleanCommand) Hidden() bool      { return false }
func (c *cleanCommand) ShortHelp() string { return "sweep stray checkouts not in the managed state" }
func (c *cleanCommand) LongHelp() string {
	return "clean removes any directory under .build/checkouts that doesn't belong to a currently-managed dependency, without altering pins or the resolution."
}

func (c *cleanCommand) Register(fs *flag.FlagSet) {}

func (c *cleanCommand) Run(ctx *Context, args []string) error {
	lock, err := sandbox.Acquire(ctx.Sandbox)
	if err != nil {
		return err
	}
	defer lock.Release()

	store, err := managed.Load(ctx.Sandbox)
	if err != nil {
		return err
	}

	reconciler := managed.NewReconciler(ctx.Sandbox, ctx.Provider, ctx.Scope.Child("managed"))
	if err := reconciler.Clean(store); err != nil {
		return err
	}

	ctx.Out.Println("stray checkouts swept")
	return nil
}
