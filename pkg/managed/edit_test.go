package managed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/resolve"
	"github.com/depforge/workspace/pkg/sandbox"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestEditOpensWritableSibling(t *testing.T) {
	dir := t.TempDir()
	sb := sandbox.New(dir)
	id := identity.Of("github.com/foo/bar")
	writeFile(t, filepath.Join(sb.CheckoutPath(id), "workspace.json"), "{}")

	s := New()
	s.Entries[id.String()] = Entry{
		Identity: id,
		State:    resolve.ResolvedState{Identity: id, Kind: resolve.StateBranch, Branch: "main", Revision: "abc123"},
		Lifecycle: Checked,
	}

	if err := s.Edit(sb, id); err != nil {
		t.Fatal(err)
	}

	entry := s.Entries[id.String()]
	if entry.Lifecycle != Edited {
		t.Errorf("lifecycle = %v, want Edited", entry.Lifecycle)
	}
	if entry.BasedOn == nil || entry.BasedOn.Branch != "main" {
		t.Fatalf("expected BasedOn to record the prior branch state, got %+v", entry.BasedOn)
	}
	if _, err := os.Stat(filepath.Join(sb.EditPath(id), "workspace.json")); err != nil {
		t.Errorf("expected edit sibling to contain a copy of the checkout: %v", err)
	}
}

func TestEditRejectsAlreadyEdited(t *testing.T) {
	dir := t.TempDir()
	sb := sandbox.New(dir)
	id := identity.Of("github.com/foo/bar")

	s := New()
	s.Entries[id.String()] = Entry{Identity: id, Lifecycle: Edited, State: resolve.ResolvedState{Kind: resolve.StateBranch, Branch: "main"}}

	err := s.Edit(sb, id)
	if _, ok := err.(*AlreadyInEditModeError); !ok {
		t.Fatalf("expected AlreadyInEditModeError, got %v", err)
	}
}

func TestEditRejectsLocalDependency(t *testing.T) {
	dir := t.TempDir()
	sb := sandbox.New(dir)
	id := identity.Of("github.com/foo/bar")

	s := New()
	s.Entries[id.String()] = Entry{Identity: id, Lifecycle: Checked, State: resolve.ResolvedState{Kind: resolve.StateLocal}}

	err := s.Edit(sb, id)
	if _, ok := err.(*LocalDependencyCannotBeEditedError); !ok {
		t.Fatalf("expected LocalDependencyCannotBeEditedError, got %v", err)
	}
}

func TestUneditRestoresPriorState(t *testing.T) {
	dir := t.TempDir()
	sb := sandbox.New(dir)
	id := identity.Of("github.com/foo/bar")
	writeFile(t, filepath.Join(sb.EditPath(id), "workspace.json"), "{}")

	based := resolve.ResolvedState{Identity: id, Kind: resolve.StateBranch, Branch: "main", Revision: "abc123"}
	s := New()
	s.Entries[id.String()] = Entry{
		Identity:  id,
		Lifecycle: Edited,
		State:     resolve.ResolvedState{Identity: id, Kind: resolve.StateLocal},
		BasedOn:   &based,
	}

	if err := s.Unedit(sb, id, true); err != nil {
		t.Fatal(err)
	}

	entry := s.Entries[id.String()]
	if entry.Lifecycle != Checked {
		t.Errorf("lifecycle = %v, want Checked", entry.Lifecycle)
	}
	if entry.State.Branch != "main" {
		t.Errorf("state branch = %q, want main", entry.State.Branch)
	}
	if entry.BasedOn != nil {
		t.Error("expected BasedOn to be cleared after unedit")
	}
	if _, err := os.Stat(sb.EditPath(id)); !os.IsNotExist(err) {
		t.Error("expected edit directory to be removed")
	}
}

func TestUneditRejectsNotEdited(t *testing.T) {
	dir := t.TempDir()
	sb := sandbox.New(dir)
	id := identity.Of("github.com/foo/bar")

	s := New()
	s.Entries[id.String()] = Entry{Identity: id, Lifecycle: Checked, State: resolve.ResolvedState{Kind: resolve.StateLocal}}

	if err := s.Unedit(sb, id, true); err == nil {
		t.Fatal("expected an error when unediting a non-edited dependency")
	}
}
