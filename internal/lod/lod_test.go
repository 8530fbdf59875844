package lod

import (
	"testing"

	"github.com/openridge/trackmap/internal/geo"
)

func TestTierFor(t *testing.T) {
	cases := []struct {
		zoom int
		want Tier
	}{
		{18, TierFull},
		{15, TierFull},
		{14, TierHigh},
		{13, TierHigh},
		{12, TierMid},
		{10, TierMid},
		{9, TierLow},
		{0, TierLow},
	}
	for _, tc := range cases {
		if got := TierFor(tc.zoom); got != tc.want {
			t.Errorf("TierFor(%d) = %s, want %s", tc.zoom, got, tc.want)
		}
	}
}

func TestTierAtLeast(t *testing.T) {
	if !TierFull.AtLeast(TierLow) {
		t.Errorf("full should satisfy a low query")
	}
	if !TierMid.AtLeast(TierMid) {
		t.Errorf("a tier should satisfy itself")
	}
	if TierLow.AtLeast(TierHigh) {
		t.Errorf("low must not satisfy a high query")
	}
}

func TestSimplifyKeepsEndpoints(t *testing.T) {
	pts := []geo.Point{{0, 0}, {0.0001, 0.0001}, {0.0002, 0.0002}, {1, 1}}
	got := Simplify(pts, 0.01)
	if len(got) != 2 {
		t.Fatalf("expected only endpoints to survive, got %d points", len(got))
	}
	if got[0] != pts[0] || got[1] != pts[len(pts)-1] {
		t.Errorf("endpoints not preserved: %v", got)
	}
}

func TestSimplifyMonotonePointCounts(t *testing.T) {
	// A long diagonal with small jitter; coarser tolerances must never keep
	// more points than finer ones.
	var pts []geo.Point
	for i := 0; i < 200; i++ {
		pts = append(pts, geo.Point{float64(i) * 0.0002, float64(i) * 0.0002})
	}
	high := Simplify(pts, ToleranceHigh)
	mid := Simplify(pts, ToleranceMid)
	low := Simplify(pts, ToleranceLow)
	if len(high) > len(pts) || len(mid) > len(high) || len(low) > len(mid) {
		t.Fatalf("point counts not monotone: full=%d high=%d mid=%d low=%d",
			len(pts), len(high), len(mid), len(low))
	}
	for name, s := range map[string][]geo.Point{"high": high, "mid": mid, "low": low} {
		if len(s) < 2 {
			t.Errorf("%s collapsed below 2 points", name)
		}
	}
}

func TestSimplifyDegenerateInput(t *testing.T) {
	// Duplicate points collapse to the two endpoints, not an error.
	pts := []geo.Point{{1, 1}, {1, 1}, {1, 1}, {1, 1}}
	got := Simplify(pts, ToleranceLow)
	if len(got) != 2 {
		t.Fatalf("expected 2-point degenerate line, got %d", len(got))
	}
}

func TestSimplifyZeroToleranceCopies(t *testing.T) {
	pts := []geo.Point{{0, 0}, {1, 0}, {2, 0}}
	got := Simplify(pts, 0)
	if len(got) != len(pts) {
		t.Fatalf("zero tolerance should keep all points, got %d", len(got))
	}
	got[0] = geo.Point{9, 9}
	if pts[0] == got[0] {
		t.Errorf("Simplify must not alias its input")
	}
}
