package managed

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"github.com/depforge/workspace/internal/fsutil"
	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/resolve"
	"github.com/depforge/workspace/pkg/sandbox"
)

// AlreadyInEditModeError is the dependencyAlreadyInEditMode state error of
// spec.md §7.
type AlreadyInEditModeError struct{ Identity string }

func (e *AlreadyInEditModeError) Error() string {
	return fmt.Sprintf("%s: dependency is already in edit mode", e.Identity)
}

// LocalDependencyCannotBeEditedError is the localDependencyCannotBeEdited
// state error of spec.md §7: a dependency already resolved as an
// unversioned local package has no remote checkout to open a writable
// sibling against.
type LocalDependencyCannotBeEditedError struct{ Identity string }

func (e *LocalDependencyCannotBeEditedError) Error() string {
	return fmt.Sprintf("%s: local dependencies cannot be edited", e.Identity)
}

// UncommittedChangesInEditError is the uncommittedChangesInEdit state
// error of spec.md §7, returned by Unedit unless force is set.
type UncommittedChangesInEditError struct{ Identity string }

func (e *UncommittedChangesInEditError) Error() string {
	return fmt.Sprintf("%s: edit working copy has uncommitted changes (use force to discard)", e.Identity)
}

// Edit transitions a managed dependency into the Edited lifecycle state
// of spec.md §3: a writable sibling checkout under
// <sandbox>/.build/edits/<identity> that the resolver from then on
// treats as a pre-resolved, frozen unversioned node (spec.md §4.4).
func (s *Store) Edit(sb *sandbox.Sandbox, id identity.Identity) error {
	key := id.String()
	entry, ok := s.Entries[key]
	if !ok {
		return errors.Errorf("managed: %s is not a managed dependency", key)
	}
	if entry.Lifecycle == Edited {
		return &AlreadyInEditModeError{Identity: key}
	}
	if entry.State.Kind == resolve.StateLocal {
		return &LocalDependencyCannotBeEditedError{Identity: key}
	}

	editPath := sb.EditPath(id)
	if err := fsutil.CopyTree(sb.CheckoutPath(id), editPath); err != nil {
		return errors.Wrapf(err, "managed: opening edit sibling for %s", key)
	}

	based := entry.State
	entry.BasedOn = &based
	entry.Lifecycle = Edited
	s.Entries[key] = entry
	return nil
}

// Unedit ends edit mode, discarding the writable sibling checkout and
// restoring the Checked state recorded in BasedOn, per spec.md §3's
// lifecycle note ("unedit (restores previous version state)"). Refuses
// when the edit working copy has uncommitted changes unless force is
// set, matching spec.md §7's recoverable uncommittedChangesInEdit state
// error.
func (s *Store) Unedit(sb *sandbox.Sandbox, id identity.Identity, force bool) error {
	key := id.String()
	entry, ok := s.Entries[key]
	if !ok {
		return errors.Errorf("managed: %s is not a managed dependency", key)
	}
	if entry.Lifecycle != Edited {
		return errors.Errorf("managed: %s is not in edit mode", key)
	}

	editPath := sb.EditPath(id)
	if !force {
		dirty, err := hasUncommittedChanges(editPath)
		if err != nil {
			return err
		}
		if dirty {
			return &UncommittedChangesInEditError{Identity: key}
		}
	}

	if err := fsutil.RemoveAll(editPath); err != nil {
		return errors.Wrapf(err, "managed: removing edit directory for %s", key)
	}

	restored := entry
	if entry.BasedOn != nil {
		restored.State = *entry.BasedOn
	}
	restored.Lifecycle = Checked
	restored.BasedOn = nil
	s.Entries[key] = restored
	return nil
}

// hasUncommittedChanges shells out to `git status --porcelain` the way
// golang-dep's cmd/dep status checks check for vendor drift; a working
// tree that git can't assess (not a repo, git missing) is conservatively
// treated as clean rather than blocking unedit outright.
func hasUncommittedChanges(path string) (bool, error) {
	if !fsutil.Exists(path) {
		return false, nil
	}
	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = path
	out, err := cmd.Output()
	if err != nil {
		return false, nil
	}
	return strings.TrimSpace(string(out)) != "", nil
}
