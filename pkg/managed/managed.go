// Package managed implements the ManagedDependencyStore and Reconciler of
// spec.md §4.6: the JSON document mirroring the in-memory managed-
// dependency map, and the 4-step reconciliation algorithm that brings the
// managed checkouts in sync with a fresh Resolution. It plays the role
// golang-dep's `internal/dep` package plays in reconciling `Gopkg.lock`
// against the filesystem vendor tree (ensure.go's vendor pruning/rewrite
// pass), generalized to this spec's edit/unedit lifecycle.
package managed

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/depforge/workspace/internal/fsutil"
	"github.com/depforge/workspace/pkg/container"
	"github.com/depforge/workspace/pkg/diag"
	"github.com/depforge/workspace/pkg/identity"
	"github.com/depforge/workspace/pkg/resolve"
	"github.com/depforge/workspace/pkg/sandbox"
	"github.com/depforge/workspace/pkg/semver"
)

// EntryState discriminates a managed dependency's lifecycle state, per
// spec.md §2's edit/unedit/update/reset operations.
type EntryState uint8

const (
	Checked EntryState = iota
	Edited
)

// Entry is one managed dependency's persisted record.
type Entry struct {
	Identity identity.Identity
	Location string
	State    resolve.ResolvedState
	Lifecycle EntryState
	// BasedOn records the Checked-state resolve.ResolvedState an edit was
	// started from, so unedit (or a missing-edit-directory recovery) can
	// restore it, per spec.md §4.6 step 4.
	BasedOn *resolve.ResolvedState
}

// Store is the JSON-backed ManagedDependencyStore.
type Store struct {
	Entries map[string]Entry // keyed by identity string
}

// New returns an empty store.
func New() *Store {
	return &Store{Entries: make(map[string]Entry)}
}

type wireFile struct {
	Entries []wireEntry `json:"entries"`
}

type wireEntry struct {
	Identity  string `json:"identity"`
	Location  string `json:"location"`
	Lifecycle string `json:"lifecycle"`
	StateKind string `json:"stateKind"`
	Version   string `json:"version,omitempty"`
	Branch    string `json:"branch,omitempty"`
	Revision  string `json:"revision,omitempty"`
	BasedOn   *wireEntry `json:"basedOn,omitempty"`
}

// Decode reads a managed-state JSON document.
func Decode(r io.Reader) (*Store, error) {
	var wf wireFile
	if err := json.NewDecoder(r).Decode(&wf); err != nil {
		return nil, errors.Wrap(err, "managed: decode")
	}
	s := New()
	for _, we := range wf.Entries {
		e, err := fromWire(we)
		if err != nil {
			return nil, err
		}
		s.Entries[e.Identity.String()] = e
	}
	return s, nil
}

func fromWire(we wireEntry) (Entry, error) {
	e := Entry{
		Identity: identity.Of(we.Location),
		Location: we.Location,
		State:    stateFromWire(we),
	}
	if we.Lifecycle == "edited" {
		e.Lifecycle = Edited
	}
	if we.BasedOn != nil {
		base := stateFromWire(*we.BasedOn)
		e.BasedOn = &base
	}
	return e, nil
}

func stateFromWire(we wireEntry) resolve.ResolvedState {
	st := resolve.ResolvedState{Identity: identity.Of(we.Location), Location: we.Location}
	switch we.StateKind {
	case "branch":
		st.Kind = resolve.StateBranch
		st.Branch = we.Branch
		st.Revision = we.Revision
	case "revision":
		st.Kind = resolve.StateRevision
		st.Revision = we.Revision
	case "local":
		st.Kind = resolve.StateLocal
	default:
		st.Kind = resolve.StateVersion
		if v, err := semver.Parse(we.Version); err == nil {
			st.Version = v
		}
	}
	return st
}

// Encode writes the store as canonical-ish JSON (field order fixed by the
// struct; the store itself doesn't need the pin file's sorted-key
// guarantee since it isn't hand-edited, but entries are still emitted in
// a stable, sorted order for diffability).
func (s *Store) Encode(w io.Writer) error {
	wf := wireFile{}
	for _, key := range sortedKeys(s.Entries) {
		wf.Entries = append(wf.Entries, toWire(s.Entries[key]))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(wf)
}

func toWire(e Entry) wireEntry {
	we := wireEntry{
		Identity: e.Identity.String(),
		Location: e.Location,
	}
	if e.Lifecycle == Edited {
		we.Lifecycle = "edited"
	} else {
		we.Lifecycle = "checked"
	}
	applyStateToWire(&we, e.State)
	if e.BasedOn != nil {
		base := wireEntry{}
		applyStateToWire(&base, *e.BasedOn)
		we.BasedOn = &base
	}
	return we
}

func applyStateToWire(we *wireEntry, st resolve.ResolvedState) {
	switch st.Kind {
	case resolve.StateBranch:
		we.StateKind = "branch"
		we.Branch = st.Branch
		we.Revision = st.Revision
	case resolve.StateRevision:
		we.StateKind = "revision"
		we.Revision = st.Revision
	case resolve.StateLocal:
		we.StateKind = "local"
	default:
		we.StateKind = "version"
		we.Version = st.Version.String()
	}
}

func sortedKeys(m map[string]Entry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- persistence --------------------------------------------------

// Load reads the managed-state file from a sandbox, returning an empty
// Store if it doesn't exist yet.
func Load(s *sandbox.Sandbox) (*Store, error) {
	data, err := os.ReadFile(s.ManagedStateFile())
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, errors.Wrap(err, "managed: reading state file")
	}
	return Decode(bytes.NewReader(data))
}

// Save persists the store to the sandbox's managed-state file, atomically,
// per spec.md §4.6 ("persisted after every successful or partially-
// successful reconciliation").
func (s *Store) Save(sb *sandbox.Sandbox) error {
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return errors.Wrap(err, "managed: encode")
	}
	return fsutil.AtomicWriteFile(sb.ManagedStateFile(), buf.Bytes(), 0o644)
}

// Reconciler enacts the delta between a Resolution and the managed store,
// per spec.md §4.6's four-step algorithm.
type Reconciler struct {
	Sandbox  *sandbox.Sandbox
	Provider *container.Provider
	Scope    *diag.Scope
}

// NewReconciler builds a Reconciler.
func NewReconciler(sb *sandbox.Sandbox, provider *container.Provider, scope *diag.Scope) *Reconciler {
	return &Reconciler{Sandbox: sb, Provider: provider, Scope: scope}
}

// Reconcile runs the four-step algorithm of spec.md §4.6 against a fresh
// Resolution, mutating store in place and persisting it before returning
// (successfully or not — step is explicit about "persisted after every
// successful or partially-successful reconciliation").
func (r *Reconciler) Reconcile(ctx context.Context, store *Store, res *resolve.Resolution) []error {
	var errs []error

	// Step 1 & 2: new or changed identities are (re-)fetched and checked out.
	for key, st := range res.States {
		existing, had := store.Entries[key]
		if had && existing.Lifecycle == Edited {
			continue // step 4 handles edited entries separately
		}
		if had && sameState(existing.State, st) {
			continue
		}
		if err := r.checkout(ctx, st); err != nil {
			errs = append(errs, err)
			continue
		}
		store.Entries[key] = Entry{Identity: st.Identity, Location: st.Location, State: st, Lifecycle: Checked}
	}

	// Step 3: entries present in the store but absent from the resolution
	// are removed, unless edited (retained, with a stray-pin warning).
	for key, entry := range store.Entries {
		if _, ok := res.States[key]; ok {
			continue
		}
		if entry.Lifecycle == Edited {
			r.Scope.Warningf("managed dependency %s is edited but no longer resolved; retaining stray checkout", key)
			continue
		}
		if err := fsutil.RemoveAll(r.Sandbox.CheckoutPath(entry.Identity)); err != nil {
			errs = append(errs, errors.Wrapf(err, "removing stale checkout for %s", key))
			continue
		}
		delete(store.Entries, key)
	}

	// Step 4: edited entries are served from the edits/ directory; a
	// missing edit directory recovers from BasedOn.
	for key, entry := range store.Entries {
		if entry.Lifecycle != Edited {
			continue
		}
		editPath := r.Sandbox.EditPath(entry.Identity)
		if fsutil.Exists(editPath) {
			continue
		}
		r.Scope.Warningf("edit directory missing for %s; falling back to previous checkout", key)
		if entry.BasedOn == nil {
			errs = append(errs, errors.Errorf("managed: %s is edited with no recorded prior state to restore", key))
			continue
		}
		if err := r.checkout(ctx, *entry.BasedOn); err != nil {
			errs = append(errs, err)
			continue
		}
		restored := entry
		restored.Lifecycle = Checked
		restored.State = *entry.BasedOn
		restored.BasedOn = nil
		store.Entries[key] = restored
	}

	if err := store.Save(r.Sandbox); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func (r *Reconciler) checkout(ctx context.Context, st resolve.ResolvedState) error {
	if st.Kind == resolve.StateLocal {
		return nil // local packages are used in place, no checkout needed
	}
	c, err := r.Provider.ContainerFor(st.Identity, st.Location)
	if err != nil {
		return err
	}
	scc, ok := c.(interface {
		CheckoutInto(ctx context.Context, at container.VersionOrRevision, dest string) error
	})
	if !ok {
		return nil // e.g. RegistryContainer: checkout handled by its own collaborator
	}
	dest := r.Sandbox.CheckoutPath(st.Identity)
	var at container.VersionOrRevision
	switch st.Kind {
	case resolve.StateVersion:
		at = container.AtVersion(st.Version)
	case resolve.StateBranch:
		at = container.AtBranch(st.Branch)
	case resolve.StateRevision:
		at = container.AtRevision(st.Revision)
	}
	return scc.CheckoutInto(ctx, at, dest)
}

func sameState(a, b resolve.ResolvedState) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch b.Kind {
	case resolve.StateVersion:
		return a.Version.Equal(b.Version)
	case resolve.StateBranch:
		return a.Branch == b.Branch
	case resolve.StateRevision:
		return a.Revision == b.Revision
	default:
		return true
	}
}

// Clean sweeps the checkouts directory for stray directories that belong
// to no managed entry, per the SPEC_FULL.md-supplemented `clean`
// operation (spec.md §2 names `clean` but doesn't specify a sweep
// algorithm; this fills that gap using the same directory listing
// approach internal/fsutil already provides for pruning).
func (r *Reconciler) Clean(store *Store) error {
	if !fsutil.Exists(r.Sandbox.CheckoutsDir()) {
		return nil
	}
	dirs, err := fsutil.ListImmediateDirs(r.Sandbox.CheckoutsDir())
	if err != nil {
		return errors.Wrap(err, "managed: listing checkouts for clean")
	}
	known := make(map[string]bool, len(store.Entries))
	for _, e := range store.Entries {
		known[e.Identity.String()] = true
	}
	for _, d := range dirs {
		if known[d] {
			continue
		}
		if err := fsutil.RemoveAll(filepath.Join(r.Sandbox.CheckoutsDir(), d)); err != nil {
			return errors.Wrapf(err, "managed: cleaning stray checkout %s", d)
		}
	}
	return nil
}
