package semver

import (
	"fmt"

	mmsemver "github.com/Masterminds/semver"
)

// RequirementKind discriminates the five forms a Requirement can take, per
// spec.md §3.
type RequirementKind uint8

const (
	Exact RequirementKind = iota
	Range
	Branch
	Revision
	Unversioned
)

// Requirement is one of: exact(Version); range(Version..Version) half-open;
// branch(String); revision(String); unversioned. It is a closed sum type
// the way golang-dep's Constraint interface is a closed set of concrete
// implementations (semverConstraint, anyConstraint, noneConstraint); here
// it is modeled as a tagged struct rather than an interface because every
// variant is just data, with no variant-specific behavior beyond Matches.
type Requirement struct {
	Kind       RequirementKind
	Exact_     Version
	Low, High  Version // Range: [Low, High)
	BranchName string
	RevisionID string

	// rawExpr/compiled hold a manifest-declared multi-clause range
	// ("anything Masterminds/semver can parse but that isn't a single
	// pinned version or a plain [low,high) pair") so Matches can defer to
	// the underlying library instead of reimplementing range algebra.
	rawExpr  string
	compiled mmsemver.Constraint
}

func NewExact(v Version) Requirement { return Requirement{Kind: Exact, Exact_: v} }

// NewRange builds a half-open range requirement [low, high).
func NewRange(low, high Version) Requirement { return Requirement{Kind: Range, Low: low, High: high} }

func NewBranch(name string) Requirement { return Requirement{Kind: Branch, BranchName: name} }

func NewRevision(id string) Requirement { return Requirement{Kind: Revision, RevisionID: id} }

func NewUnversioned() Requirement { return Requirement{Kind: Unversioned} }

// Matches reports whether v satisfies the requirement. Branch/revision/
// unversioned requirements only "match" their own kind's resolved state;
// callers compare those out of band (the Resolver, not this predicate,
// decides whether a branch/revision answer is acceptable).
func (r Requirement) Matches(v Version) bool {
	switch r.Kind {
	case Exact:
		return r.Exact_.Equal(v)
	case Range:
		if v.sv == nil {
			return false
		}
		if r.compiled != nil {
			return r.compiled.Matches(v.sv) == nil
		}
		lowOK := r.Low.sv == nil || !v.Less(r.Low)
		highOK := r.High.sv == nil || v.Less(r.High)
		return lowOK && highOK
	default:
		return false
	}
}

// AllowsPrerelease reports whether the requirement explicitly names a
// pre-release identifier at one of its endpoints; per spec.md §4.3,
// pre-release versions are yielded by a container only when some live
// constraint references a matching pre-release explicitly.
func (r Requirement) AllowsPrerelease() bool {
	switch r.Kind {
	case Exact:
		return r.Exact_.IsPrerelease()
	case Range:
		return r.Low.IsPrerelease() || r.High.IsPrerelease()
	default:
		return false
	}
}

func (r Requirement) String() string {
	switch r.Kind {
	case Exact:
		return r.Exact_.String()
	case Range:
		if r.compiled != nil {
			return r.rawExpr
		}
		return fmt.Sprintf("[%s, %s)", r.Low.String(), r.High.String())
	case Branch:
		return "branch:" + r.BranchName
	case Revision:
		return "revision:" + r.RevisionID
	case Unversioned:
		return "unversioned"
	default:
		return "invalid"
	}
}

// Intersect computes the intersection of two requirements, used by the
// Solver when two constraints name the same identity.
// Branch/revision/unversioned requirements only intersect with an
// identical requirement of the same kind; mixing kinds is a disjoint
// constraint and is reported by the caller as a resolution error
// (spec.md §4.4's disjointConstraintFailure-equivalent).
func (r Requirement) Intersect(o Requirement) (Requirement, bool) {
	if r.Kind != o.Kind {
		return Requirement{}, false
	}
	switch r.Kind {
	case Branch:
		return r, r.BranchName == o.BranchName
	case Revision:
		return r, r.RevisionID == o.RevisionID
	case Unversioned:
		return r, true
	case Exact:
		return r, r.Exact_.Equal(o.Exact_)
	case Range:
		if r.compiled != nil || o.compiled != nil {
			// Compiled multi-clause ranges aren't decomposed into
			// endpoints; treat as compatible only when textually equal.
			// Manifests in practice declare one form consistently per
			// identity, so this is not exercised on the happy path.
			return r, r.rawExpr == o.rawExpr && r.rawExpr != ""
		}
		// Half-open [low, high): intersection takes the larger lower bound
		// and the smaller upper bound.
		low := r.Low
		if low.sv == nil || (o.Low.sv != nil && low.Less(o.Low)) {
			low = o.Low
		}
		high := r.High
		if high.sv == nil || (o.High.sv != nil && o.High.Less(high)) {
			high = o.High
		}
		if low.sv != nil && high.sv != nil && !low.Less(high) {
			return Requirement{}, false
		}
		return Requirement{Kind: Range, Low: low, High: high}, true
	default:
		return Requirement{}, false
	}
}

// mustParse is a small test helper mirroring golang-dep's manager_test.go
// `sv(s string)` helper; it panics on invalid input, so tests only.
func mustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}
