package engine

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/openridge/trackmap/internal/geo"
	"github.com/openridge/trackmap/internal/lod"
	"github.com/openridge/trackmap/internal/track"
)

func mustBuild(t *testing.T, id int64, coords []geo.Point) *track.Activity {
	t.Helper()
	a, err := track.Build(id, coords, track.Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func diagonal(t *testing.T, id int64) *track.Activity {
	return mustBuild(t, id, []geo.Point{
		{0, 0}, {0.25, 0.25}, {0.5, 0.5}, {0.75, 0.75}, {1, 1},
	})
}

func TestQueryViewportHit(t *testing.T) {
	e := New()
	e.Strict = true
	e.Add(diagonal(t, 1))

	fs := e.QueryViewport(geo.BBox{0, 0, 1, 1}, 16)
	if len(fs.Features) != 1 {
		t.Fatalf("got %d features, want 1", len(fs.Features))
	}
	f := fs.Features[0]
	if f.Properties.ID != 1 {
		t.Errorf("id = %d, want 1", f.Properties.ID)
	}
	if f.Properties.Tier != string(lod.TierFull) {
		t.Errorf("tier = %s, want full at zoom 16", f.Properties.Tier)
	}
	if len(f.Geometry.Coordinates) != 5 {
		t.Errorf("full geometry has %d points, want 5", len(f.Geometry.Coordinates))
	}
}

func TestQueryViewportMiss(t *testing.T) {
	e := New()
	e.Add(diagonal(t, 1))
	fs := e.QueryViewport(geo.BBox{2, 2, 3, 3}, 16)
	if len(fs.Features) != 0 {
		t.Fatalf("disjoint viewport returned %d features", len(fs.Features))
	}
}

// TestQueryViewportCompleteness: every activity whose bbox intersects the
// viewport must appear in the result, at any zoom.
func TestQueryViewportCompleteness(t *testing.T) {
	e := New()
	activities := []*track.Activity{
		diagonal(t, 1),
		mustBuild(t, 2, []geo.Point{{0.9, 0.9}, {2, 2}}),
		mustBuild(t, 3, []geo.Point{{5, 5}, {6, 6}}),
	}
	e.BulkLoad(activities)

	viewport := geo.BBox{0.5, 0.5, 1.5, 1.5}
	for _, zoom := range []int{3, 11, 14, 16} {
		fs := e.QueryViewport(viewport, zoom)
		seen := map[int64]bool{}
		for _, f := range fs.Features {
			seen[f.Properties.ID] = true
		}
		for _, a := range activities {
			want := a.BBox.Intersects(viewport)
			if seen[a.ID] != want {
				t.Errorf("zoom %d: activity %d present=%v, want %v", zoom, a.ID, seen[a.ID], want)
			}
		}
	}
}

func TestQueryViewportTierSelection(t *testing.T) {
	e := New()
	e.Add(diagonal(t, 1))
	for zoom, want := range map[int]lod.Tier{
		16: lod.TierFull, 13: lod.TierHigh, 11: lod.TierMid, 5: lod.TierLow,
	} {
		fs := e.QueryViewport(geo.BBox{0, 0, 1, 1}, zoom)
		if len(fs.Features) != 1 {
			t.Fatalf("zoom %d: got %d features", zoom, len(fs.Features))
		}
		if got := fs.Features[0].Properties.Tier; got != string(want) {
			t.Errorf("zoom %d: tier = %s, want %s", zoom, got, want)
		}
	}
}

func TestQueryByIDs(t *testing.T) {
	e := New()
	e.Add(diagonal(t, 1))
	e.Add(mustBuild(t, 2, []geo.Point{{0.2, 0.2}, {0.8, 0.8}}))
	e.Add(mustBuild(t, 3, []geo.Point{{5, 5}, {6, 6}}))

	viewport := geo.BBox{0, 0, 1, 1}
	fs := e.QueryByIDs([]int64{2, 3, 999}, viewport, 16)
	if len(fs.Features) != 1 {
		t.Fatalf("got %d features, want 1", len(fs.Features))
	}
	if fs.Features[0].Properties.ID != 2 {
		t.Errorf("id = %d, want 2 (3 is outside the viewport, 999 unknown)",
			fs.Features[0].Properties.ID)
	}
}

func TestQueryPolygonContained(t *testing.T) {
	e := New()
	// Triangle-shaped track whose bbox sits fully inside the lasso square.
	e.Add(mustBuild(t, 1, []geo.Point{{0.5, 0.5}, {1, 1.5}, {1.5, 0.5}, {0.5, 0.5}}))

	ring := []geo.Point{{0, 0}, {0, 2}, {2, 2}, {2, 0}, {0, 0}}
	got := e.QueryPolygon(ring)
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("QueryPolygon = %+v, want activity 1", got)
	}
}

func TestQueryPolygonEdgeCrossing(t *testing.T) {
	e := New()
	// Track passes straight through the lasso but every vertex, every bbox
	// corner, and the bbox center are outside it; only the segment test can
	// catch it.
	e.Add(mustBuild(t, 1, []geo.Point{{-5, 1}, {5, 1}, {5, 9}}))
	// Thin track far away.
	e.Add(mustBuild(t, 2, []geo.Point{{10, 10}, {11, 11}}))

	ring := []geo.Point{{-1, 0}, {1, 0}, {1, 2}, {-1, 2}}
	got := e.QueryPolygon(ring)
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("QueryPolygon = %+v, want only activity 1", got)
	}
}

func TestQueryPolygonDisjoint(t *testing.T) {
	e := New()
	e.Add(mustBuild(t, 1, []geo.Point{{5, 5}, {6, 6}}))
	got := e.QueryPolygon([]geo.Point{{0, 0}, {1, 0}, {1, 1}, {0, 1}})
	if len(got) != 0 {
		t.Fatalf("QueryPolygon = %+v, want empty", got)
	}
}

func TestQueryPolygonDegenerateRing(t *testing.T) {
	e := New()
	e.Add(diagonal(t, 1))
	if got := e.QueryPolygon([]geo.Point{{0, 0}, {1, 1}}); len(got) != 0 {
		t.Errorf("two-vertex ring should select nothing, got %+v", got)
	}
}

func TestDesyncSkippedWhenNotStrict(t *testing.T) {
	e := New()
	a := diagonal(t, 1)
	// Simulate a desync: id 2 in the index only.
	e.Add(a)
	e.index.Insert(2, geo.BBox{0, 0, 1, 1})

	fs := e.QueryViewport(geo.BBox{0, 0, 1, 1}, 16)
	if len(fs.Features) != 1 || fs.Features[0].Properties.ID != 1 {
		t.Fatalf("desynced id should be skipped, got %+v", fs.Features)
	}
}

func TestDesyncPanicsWhenStrict(t *testing.T) {
	e := New()
	e.Strict = true
	e.index.Insert(2, geo.BBox{0, 0, 1, 1})
	defer func() {
		if recover() == nil {
			t.Errorf("strict engine should panic on index/store desync")
		}
	}()
	e.QueryViewport(geo.BBox{0, 0, 1, 1}, 16)
}

func TestFeatureSetSerializesEmptyArray(t *testing.T) {
	b, err := json.Marshal(NewFeatureSet())
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"FeatureCollection","features":[]}`
	if diff := cmp.Diff(want, string(b)); diff != "" {
		t.Errorf("FeatureSet JSON mismatch (-want +got):\n%s", diff)
	}
}
