package main

import (
	"flag"
	"fmt"

	"github.com/depforge/workspace/pkg/sandbox"
)

// updateCommand implements the `update` operation of spec.md §2: force a
// fresh solve regardless of Precompute's answer. Stray pins (identities
// the fresh solve no longer resolves) are dropped by runResolution itself
// when force is set, per the Invariant in spec.md §3 ("stray pins are
// dropped by update").
type updateCommand struct{}

func (c *updateCommand) Name() string      { return "update" }
func (c *updateCommand) Args() string      { return "" }
func (c *updateCommand) Hidden() bool      { return false }
func (c *updateCommand) ShortHelp() string { return "force re-resolution of the dependency graph" }
func (c *updateCommand) LongHelp() string {
	return "update re-runs the resolver even if the current pins already satisfy every constraint, picking up new upstream versions and branch moves, drops stray pins, and reconciles managed checkouts to match."
}

func (c *updateCommand) Register(fs *flag.FlagSet) {}

func (c *updateCommand) Run(ctx *Context, args []string) error {
	lock, err := sandbox.Acquire(ctx.Sandbox)
	if err != nil {
		return err
	}
	defer lock.Release()

	root, err := ctx.loadRootManifest()
	if err != nil {
		return fmt.Errorf("loading root manifest: %w", err)
	}

	outcome, err := ctx.runResolution(ctx.rootContext(), root, true)
	if err != nil {
		return err
	}

	ctx.Out.Printf("updated to %d resolved package(s)\n", len(outcome.Resolution.States))
	return nil
}
