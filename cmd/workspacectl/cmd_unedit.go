package main

import (
	"flag"
	"fmt"

	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/managed"
	"github.com/depforge/workspace/pkg/sandbox"
)

// uneditCommand implements the `unedit` operation of spec.md §2: end a
// managed dependency's Edited lifecycle state, discarding the writable
// sibling checkout and restoring the version/branch/revision state it
// was opened from.
type uneditCommand struct {
	force bool
}

func (c *uneditCommand) Name() string      { return "unedit" }
func (c *uneditCommand) Args() string      { return "<package>" }
func (c *uneditCommand) Hidden() bool      { return false }
func (c *uneditCommand) ShortHelp() string { return "end local editing of a managed dependency" }
func (c *uneditCommand) LongHelp() string {
	return "unedit discards the writable sibling checkout for the named managed dependency and restores its previously-resolved state, refusing if the edit working copy has uncommitted changes unless -force is given."
}

func (c *uneditCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&c.force, "force", false, "discard uncommitted changes in the edit working copy")
}

func (c *uneditCommand) Run(ctx *Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("unedit: expected exactly one package argument")
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
	if err := store.Unedit(ctx.Sandbox, id, c.force); err != nil {
		return err
	}
	if err := store.Save(ctx.Sandbox); err != nil {
		return err
	}

	ctx.Out.Printf("%s restored to its previously-resolved state\n", id)
	return nil
}
