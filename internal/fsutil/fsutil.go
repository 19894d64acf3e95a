// Package fsutil implements the small set of filesystem primitives every
// persistent store in this repo needs: atomic temp-file-then-rename
// writes (spec.md §5, "atomically written via temp-file + rename") and
// recursive directory copies (used by edit-mode sibling checkouts and
// reconciliation). It mirrors golang-dep's internal/fs package
// (fs.go, rename_go17.go) and leans on github.com/termie/go-shutil for
// the copytree the teacher's internal/fs.CopyDir reimplements by hand.
package fsutil

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	shutil "github.com/termie/go-shutil"
)

// AtomicWriteFile writes data to path by first writing to a sibling temp
// file in the same directory (so the final rename is same-filesystem and
// therefore atomic on POSIX and best-effort atomic on Windows), then
// renaming over the destination. This is the "stage-and-rename sequence"
// named in spec.md §4.5 for the pin file and §4.6 for the managed-state
// file.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := ioutil.TempFile(dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return fmt.Errorf("fsutil: create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("fsutil: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsutil: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fsutil: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("fsutil: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("fsutil: rename into place: %w", err)
	}
	return nil
}

// CopyTree recursively copies src to dst, used for the "edit" mode's
// writable sibling checkout (spec.md §3's ManagedDependency edited state)
// and for promoting a reconciled checkout into its final sandbox
// location. symlinks are followed rather than preserved, matching the
// teacher's use of go-shutil for the same purpose in its vendor-pruning
// path (internal/fs, termie/go-shutil vendored dependency).
func CopyTree(src, dst string) error {
	opts := &shutil.CopyTreeOptions{
		Symlinks:               false,
		IgnoreDanglingSymlinks: true,
		CopyFunction:           shutil.Copy,
	}
	if err := shutil.CopyTree(src, dst, opts); err != nil {
		return fmt.Errorf("fsutil: copy %s -> %s: %w", src, dst, err)
	}
	return nil
}

// Exists reports whether path exists on disk, collapsing the stat error
// the way golang-dep's internal/fs helpers do throughout reconciliation.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// EnsureDir creates path (and parents) if missing.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("fsutil: mkdir %s: %w", path, err)
	}
	return nil
}

// RemoveAll removes path and everything under it, used by the Reconciler
// when an identity drops out of the resolution (spec.md §4.6 step 3).
func RemoveAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("fsutil: remove %s: %w", path, err)
	}
	return nil
}
