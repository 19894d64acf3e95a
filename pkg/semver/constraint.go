package semver

import (
	mmsemver "github.com/Masterminds/semver"
)

// ParseRange parses a manifest-declared range expression (e.g.
// ">=1.2.0, <2.0.0") into a half-open Requirement by asking
// Masterminds/semver for its constraint boundaries. This mirrors
// golang-dep's NewSemverConstraint, but we only need the resulting
// endpoints because our Requirement models exactly one kind of range
// (half-open), not arbitrary constraint algebra.
func ParseRange(expr string) (Requirement, error) {
	c, err := mmsemver.NewConstraint(expr)
	if err != nil {
		return Requirement{}, err
	}
	if sv, ok := c.(*mmsemver.Version); ok {
		v, perr := Parse(sv.String())
		if perr != nil {
			return Requirement{}, perr
		}
		return NewExact(v), nil
	}
	// Fall back to treating the raw string as an opaque range whose
	// endpoints are validated lazily against candidate versions via
	// Masterminds' own Matches, rather than reimplementing its range
	// grammar. Requirement.Matches consults the compiled constraint for
	// such ranges.
	return Requirement{Kind: Range, rawExpr: expr, compiled: c}, nil
}

// rawExpr/compiled let a manifest-declared multi-clause range ("anything
// Masterminds/semver can parse but that isn't a single pinned version")
// defer matching to the underlying library instead of reimplementing
// range algebra; Low/High stay zero in that case and Matches below
// special-cases it.
