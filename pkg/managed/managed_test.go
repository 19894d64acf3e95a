package managed

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/depforge/workspace/pkg/container"
	"github.com/depforge/workspace/pkg/diag"
	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/manifest"
	"github.com/depforge/workspace/pkg/resolve"
	"github.com/depforge/workspace/pkg/sandbox"
	"github.com/depforge/workspace/pkg/semver"
)

func mustVersion(t *testing.T, s string) semver.Version {
	t.Helper()
	v, err := semver.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestStoreRoundTrip(t *testing.T) {
	s := New()
	id := identity.Of("github.com/foo/bar")
	s.Entries[id.String()] = Entry{
		Identity: id,
		Location: "github.com/foo/bar",
		State:    resolve.ResolvedState{Identity: id, Kind: resolve.StateVersion, Version: mustVersion(t, "1.2.3")},
		Lifecycle: Checked,
	}

	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		t.Fatal(err)
	}

	got, err := Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	e, ok := got.Entries[id.String()]
	if !ok {
		t.Fatal("expected entry to round-trip")
	}
	if e.State.Version.String() != "1.2.3" {
		t.Errorf("got version %s, want 1.2.3", e.State.Version)
	}
}

func TestReconcileAddsNewIdentity(t *testing.T) {
	dir := t.TempDir()
	sb := sandbox.New(dir)
	provider := container.NewProvider(nil, manifest.ToolsVersion{}, nil, "")
	scope := diag.NewRoot(&diag.CollectingSink{})
	r := NewReconciler(sb, provider, scope)

	store := New()
	id := identity.Of("github.com/foo/bar")
	res := &resolve.Resolution{
		States: map[string]resolve.ResolvedState{
			id.String(): {Identity: id, Location: "github.com/foo/bar", Kind: resolve.StateLocal},
		},
		Changed: map[string]bool{id.String(): true},
	}

	errs := r.Reconcile(context.Background(), store, res)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if _, ok := store.Entries[id.String()]; !ok {
		t.Error("expected new identity to be added to the store")
	}
}

func TestReconcileRemovesDroppedUnlessEdited(t *testing.T) {
	dir := t.TempDir()
	sb := sandbox.New(dir)
	provider := container.NewProvider(nil, manifest.ToolsVersion{}, nil, "")
	scope := diag.NewRoot(&diag.CollectingSink{})
	r := NewReconciler(sb, provider, scope)

	store := New()
	keptID := identity.Of("github.com/foo/edited")
	droppedID := identity.Of("github.com/foo/dropped")
	store.Entries[keptID.String()] = Entry{Identity: keptID, Lifecycle: Edited, State: resolve.ResolvedState{Kind: resolve.StateLocal}}
	store.Entries[droppedID.String()] = Entry{Identity: droppedID, Lifecycle: Checked, State: resolve.ResolvedState{Kind: resolve.StateLocal}}
	if err := os.MkdirAll(sb.EditPath(keptID), 0o755); err != nil {
		t.Fatal(err)
	}

	res := &resolve.Resolution{States: map[string]resolve.ResolvedState{}}
	errs := r.Reconcile(context.Background(), store, res)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if _, ok := store.Entries[droppedID.String()]; ok {
		t.Error("expected dropped identity to be removed")
	}
	if _, ok := store.Entries[keptID.String()]; !ok {
		t.Error("expected edited identity to be retained despite being dropped from resolution")
	}
}
