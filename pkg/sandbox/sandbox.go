// Package sandbox defines the on-disk layout spec.md §6 specifies and the
// cross-process advisory lock that makes the sandbox directory tree
// exclusive to the currently-executing workspace operation (spec.md §5,
// "Shared-resource policy"). It plays the role golang-dep's Context
// (context.go) plays for locating GOPATH/vendor/Gopkg.* paths, generalized
// to the sandbox tree this spec names.
package sandbox

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	flock "github.com/theckman/go-flock"

	"github.com/depforge/workspace/pkg/identity"
)

// Sandbox resolves every path named in spec.md §6's layout diagram,
// rooted at one directory.
type Sandbox struct {
	Root string
}

func New(root string) *Sandbox { return &Sandbox{Root: root} }

func (s *Sandbox) buildDir() string       { return filepath.Join(s.Root, ".build") }
func (s *Sandbox) CheckoutsDir() string   { return filepath.Join(s.buildDir(), "checkouts") }
func (s *Sandbox) EditsDir() string       { return filepath.Join(s.buildDir(), "edits") }
func (s *Sandbox) ArtifactsDir() string   { return filepath.Join(s.buildDir(), "artifacts") }
func (s *Sandbox) PrebuiltsDir() string   { return filepath.Join(s.buildDir(), "prebuilts") }
func (s *Sandbox) PinsFile() string       { return filepath.Join(s.Root, "Package.resolved") }
func (s *Sandbox) ManagedStateFile() string {
	return filepath.Join(s.Root, ".workspace-state.json")
}

// CheckoutPath returns the directory a managed dependency's working tree
// is materialized at: <sandbox>/.build/checkouts/<identity>.
func (s *Sandbox) CheckoutPath(id identity.Identity) string {
	return filepath.Join(s.CheckoutsDir(), id.String())
}

// EditPath returns the directory an edited dependency's writable sibling
// checkout lives at: <sandbox>/.build/edits/<identity>.
func (s *Sandbox) EditPath(id identity.Identity) string {
	return filepath.Join(s.EditsDir(), id.String())
}

// ArtifactPath returns the cache path for a binary target's downloaded
// archive: <sandbox>/.build/artifacts/<identity>/<target>.<ext>.
func (s *Sandbox) ArtifactPath(id identity.Identity, target, ext string) string {
	return filepath.Join(s.ArtifactsDir(), id.String(), target+"."+ext)
}

// PrebuiltPath returns the extraction directory for one prebuilt library
// variant: <sandbox>/.build/prebuilts/<identity>/<version>/<swiftVersion>-<library>[-<platform>]/.
func (s *Sandbox) PrebuiltPath(id identity.Identity, version, swiftVersion, library, platform string) string {
	name := swiftVersion + "-" + library
	if platform != "" {
		name += "-" + platform
	}
	return filepath.Join(s.PrebuiltsDir(), id.String(), version, name)
}

// Lock is the sandbox-wide advisory file lock of spec.md §5: "The sandbox
// directory tree is owned exclusively by the currently-executing
// workspace operation (enforced by a sandbox-wide file lock)." Backed by
// github.com/theckman/go-flock, exactly as golang-dep vendors it for the
// same purpose (a single `dep` invocation holding exclusive access to a
// project's vendor tree).
type Lock struct {
	fl *flock.Flock
}

// Acquire tries once, without blocking, to take the sandbox-wide lock;
// it returns an error right away if another process holds it.
func Acquire(s *Sandbox) (*Lock, error) {
	if err := os.MkdirAll(s.buildDir(), 0o755); err != nil {
		return nil, errors.Wrap(err, "sandbox: preparing .build directory")
	}
	path := filepath.Join(s.buildDir(), ".workspace.lock")
	fl := flock.NewFlock(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "sandbox: acquiring workspace lock")
	}
	if !locked {
		return nil, errors.Errorf("sandbox: workspace at %s is locked by another process", s.Root)
	}
	return &Lock{fl: fl}, nil
}

// Release gives up the lock. Safe to call once; subsequent calls are
// no-ops.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
