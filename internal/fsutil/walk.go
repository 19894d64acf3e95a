package fsutil

import (
	"fmt"

	"github.com/karrick/godirwalk"
)

// ListImmediateDirs returns the names of root's immediate subdirectories,
// used by the Reconciler to discover stray checkout/artifact entries that
// belong to no known identity (spec.md's "dep prune"-style sweep,
// documented in SPEC_FULL.md's supplemented-features section 5).
// godirwalk is used instead of filepath.Walk because, unlike the
// teacher's original filepath.Walk-based traversal, it avoids a stat
// syscall per entry on platforms that support the cheaper Dirent.Type(),
// and is the library golang-dep's own import scanners (internal/fs-
// adjacent code) switched to for the same reason.
func ListImmediateDirs(root string) ([]string, error) {
	entries, err := godirwalk.ReadDirents(root, nil)
	if err != nil {
		return nil, fmt.Errorf("fsutil: list %s: %w", root, err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs, nil
}

// WalkFiles walks root, invoking fn for every entry that is not a
// directory (regular files, symlinks and other non-directory entries).
func WalkFiles(root string, fn func(path string) error) error {
	return godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			return fn(path)
		},
		Unsorted: true,
	})
}
