// Package lod defines the level-of-detail tiers an activity's geometry is
// pre-simplified into, the zoom → tier mapping, and the simplification
// algorithm itself.
package lod

import (
	"github.com/openridge/trackmap/internal/geo"
)

// Tier names a level of geometric detail.
type Tier string

const (
	TierFull Tier = "full"
	TierHigh Tier = "high"
	TierMid  Tier = "mid"
	TierLow  Tier = "low"
)

// Tolerances in degrees for each simplified tier. Coarser tiers use larger
// tolerances so they come out visually simpler.
const (
	ToleranceHigh = 0.0001
	ToleranceMid  = 0.0005
	ToleranceLow  = 0.001
)

// Tiers lists every tier from finest to coarsest.
var Tiers = []Tier{TierFull, TierHigh, TierMid, TierLow}

// rank orders tiers by detail; a higher rank means more detail.
var rank = map[Tier]int{TierLow: 0, TierMid: 1, TierHigh: 2, TierFull: 3}

// AtLeast reports whether t carries at least as much detail as o. A cached
// result built at a finer tier can serve a query that asks for a coarser one.
func (t Tier) AtLeast(o Tier) bool {
	return rank[t] >= rank[o]
}

// TierFor maps a map zoom level to the tier rendered at that zoom.
func TierFor(zoom int) Tier {
	switch {
	case zoom >= 15:
		return TierFull
	case zoom >= 13:
		return TierHigh
	case zoom >= 10:
		return TierMid
	default:
		return TierLow
	}
}

// FallbackOrder is consulted when the tier selected for a query turns out to
// be degenerate (fewer than 2 points) for some activity: the first
// non-degenerate tier in this order is used instead.
var FallbackOrder = []Tier{TierMid, TierLow, TierHigh, TierFull}

// Tolerance returns the simplification tolerance for a tier. TierFull has no
// tolerance: it always keeps the original point sequence.
func Tolerance(t Tier) float64 {
	switch t {
	case TierHigh:
		return ToleranceHigh
	case TierMid:
		return ToleranceMid
	case TierLow:
		return ToleranceLow
	default:
		return 0
	}
}

// Simplify reduces a polyline by walking the point list and keeping a point
// only when its planar distance from the last kept point exceeds tolerance.
// The first and last points are always kept, so the result is a subsequence
// of the input with the same endpoints and at least 2 points (given at least
// 2 in). A tolerance of 0 returns a copy of the input.
func Simplify(points []geo.Point, tolerance float64) []geo.Point {
	if len(points) <= 2 || tolerance <= 0 {
		out := make([]geo.Point, len(points))
		copy(out, points)
		return out
	}

	tol2 := tolerance * tolerance
	out := make([]geo.Point, 0, len(points))
	out = append(out, points[0])
	last := points[0]
	for _, p := range points[1 : len(points)-1] {
		dx := p[0] - last[0]
		dy := p[1] - last[1]
		if dx*dx+dy*dy > tol2 {
			out = append(out, p)
			last = p
		}
	}
	out = append(out, points[len(points)-1])
	return out
}
