package main

import (
	"flag"
	"fmt"

	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/managed"
	"github.com/depforge/workspace/pkg/sandbox"
)

// editCommand implements the `edit` operation of spec.md §2: transition
// one managed dependency into the Edited lifecycle state (spec.md §3), a
// writable sibling checkout the resolver treats thereafter as a frozen,
// pre-resolved unversioned node (spec.md §4.4).
type editCommand struct{}

func (c *editCommand) Name() string      { return "edit" }
func (c *editCommand) Args() string      { return "<package>" }
func (c *editCommand) Hidden() bool      { return false }
func (c *editCommand) ShortHelp() string { return "open a managed dependency for local editing" }
func (c *editCommand) LongHelp() string {
	return "edit opens a writable sibling checkout for the named managed dependency under .build/edits, freezing its resolved state until unedit is run."
}

func (c *editCommand) Register(fs *flag.FlagSet) {}

func (c *editCommand) Run(ctx *Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("edit: expected exactly one package argument")
	}

	lock, err := sandbox.Acquire(ctx.Sandbox)
	if err != nil {
		return err
	}
	defer lock.Release()

	store, err := managed.Load(ctx.Sandbox)
	if err != nil {
		return err
	}

	id := identity.Of(args[0])
	if err := store.Edit(ctx.Sandbox, id); err != nil {
		return err
	}
	if err := store.Save(ctx.Sandbox); err != nil {
		return err
	}

	ctx.Out.Printf("%s is now editable at %s\n", id, ctx.Sandbox.EditPath(id))
	return nil
}
