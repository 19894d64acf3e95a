package identity

import (
	"github.com/armon/go-radix"
)

// Table interns Identity values and resolves the "nearest-root preference"
// invariant for Local identities: when two distinct absolute paths produce
// the same basename, the path closest to (an ancestor of, or equal to) a
// previously-registered root wins the collision, and the other is recorded
// as an alias pointing at the same Identity.
//
// A radix tree keyed by absolute path gives O(path length) longest-prefix
// lookup, which is exactly what "nearest root" means: the already-known
// root with the longest matching path prefix.
type Table struct {
	roots *radix.Tree
	byKey map[string]Identity
}

// NewTable constructs an empty intern table.
func NewTable() *Table {
	return &Table{
		roots: radix.New(),
		byKey: make(map[string]Identity),
	}
}

// Intern registers location's derived Identity and returns the identity
// that should be used going forward for this location. For local paths,
// if an ancestor path was already registered as a root, that ancestor's
// identity is returned instead of minting a new one — this is the
// "nearest-root preference" conflict resolution named in spec.md §4.1.
func (t *Table) Intern(location string) Identity {
	id := Of(location)
	if id.Kind != Local {
		if existing, ok := t.byKey[id.Stem]; ok {
			return existing
		}
		t.byKey[id.Stem] = id
		return id
	}

	if prefix, _, ok := t.roots.LongestPrefix(id.NearestRoot); ok && isAncestor(prefix, id.NearestRoot) {
		return t.byKey[prefix]
	}

	t.roots.Insert(id.NearestRoot, id)
	t.byKey[id.NearestRoot] = id
	// Also key by basename so a second, unrelated path with the same
	// basename collides the way spec.md describes, when no ancestor
	// relationship exists but the stems still match.
	if _, exists := t.byKey[id.Stem]; !exists {
		t.byKey[id.Stem] = id
	}
	return id
}

func isAncestor(prefix, path string) bool {
	if prefix == path {
		return true
	}
	return len(path) > len(prefix) && path[len(prefix)] == '/' && path[:len(prefix)] == prefix
}
