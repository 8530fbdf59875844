// Package engine executes the three query shapes the map needs — viewport
// window, id-filtered viewport, and polygon lasso — against the activity
// store and the spatial index. Queries are pure reads over the current
// store+index state; inserts go through Add/BulkLoad so the two structures
// stay in lockstep.
package engine

import (
	"sort"

	"github.com/openridge/trackmap/internal/geo"
	"github.com/openridge/trackmap/internal/lod"
	"github.com/openridge/trackmap/internal/monitoring"
	"github.com/openridge/trackmap/internal/rindex"
	"github.com/openridge/trackmap/internal/track"
)

// Engine owns an activity store and the matching spatial index.
type Engine struct {
	store *track.Store
	index *rindex.Index

	// Strict makes an id present in the index but missing from the store a
	// fatal invariant violation instead of a logged skip. Enabled in tests
	// and debug builds; production keeps the map alive and skips.
	Strict bool
}

// New returns an engine over empty store and index.
func New() *Engine {
	return &Engine{store: track.NewStore(), index: rindex.New()}
}

// Store exposes the engine's activity store for read-side collaborators
// (polygon queries over uploaded data, stats).
func (e *Engine) Store() *track.Store { return e.store }

// Add registers one activity in both the store and the index.
func (e *Engine) Add(a *track.Activity) {
	e.store.Insert(a)
	e.index.Insert(a.ID, a.BBox)
}

// BulkLoad registers a batch of activities, bulk-loading the index. Used
// once at session start.
func (e *Engine) BulkLoad(activities []*track.Activity) {
	entries := make([]rindex.Entry, 0, len(activities))
	for _, a := range activities {
		e.store.Insert(a)
		entries = append(entries, rindex.Entry{ID: a.ID, BBox: a.BBox})
	}
	e.index.BulkLoad(entries)
}

// Len returns the number of registered activities.
func (e *Engine) Len() int { return e.store.Len() }

// lookup resolves an id from the index against the store, handling the
// desync case per the error policy.
func (e *Engine) lookup(id int64) (*track.Activity, bool) {
	a, ok := e.store.Get(id)
	if !ok {
		if e.Strict {
			panic("engine: index/store desync: id in index but not in store")
		}
		monitoring.Logf("engine: skipping id %d: in index but not in store", id)
		return nil, false
	}
	return a, true
}

// SearchViewport returns the candidate ids for a viewport, sorted. The
// candidate set may be looser than the exact predicate; FeatureAt re-checks.
func (e *Engine) SearchViewport(bbox geo.BBox) []int64 {
	ids := e.index.Search(bbox)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FeatureAt resolves one candidate id into a feature at zoom's tier. It
// returns false when the candidate is filtered out: a desynced id, a bbox
// that does not actually intersect the viewport, or no usable geometry.
func (e *Engine) FeatureAt(id int64, bbox geo.BBox, zoom int) (Feature, bool) {
	a, ok := e.lookup(id)
	if !ok {
		return Feature{}, false
	}
	if !a.BBox.Intersects(bbox) {
		return Feature{}, false
	}
	return featureFor(a, lod.TierFor(zoom))
}

// StreamViewport runs a viewport query and hands each feature to emit as it
// is produced. Returning false from emit stops the scan early (used for
// cooperative cancellation).
func (e *Engine) StreamViewport(bbox geo.BBox, zoom int, emit func(Feature) bool) {
	for _, id := range e.SearchViewport(bbox) {
		f, ok := e.FeatureAt(id, bbox, zoom)
		if !ok {
			continue
		}
		if !emit(f) {
			return
		}
	}
}

// QueryViewport returns every activity whose bbox intersects the viewport,
// at the LOD tier for the given zoom.
func (e *Engine) QueryViewport(bbox geo.BBox, zoom int) FeatureSet {
	fs := NewFeatureSet()
	e.StreamViewport(bbox, zoom, func(f Feature) bool {
		fs.Features = append(fs.Features, f)
		return true
	})
	return fs
}

// QueryByIDs is the id-filtered variant of QueryViewport: it iterates the
// given ids directly instead of consulting the index, but still filters
// against the viewport bbox. Used when the user has toggled a subset of
// lasso results and then pans the map.
func (e *Engine) QueryByIDs(ids []int64, bbox geo.BBox, zoom int) FeatureSet {
	fs := NewFeatureSet()
	tier := lod.TierFor(zoom)
	for _, id := range ids {
		a, ok := e.store.Get(id)
		if !ok {
			// An unknown id in a user-supplied filter is not a desync.
			continue
		}
		if !a.BBox.Intersects(bbox) {
			continue
		}
		if f, ok := featureFor(a, tier); ok {
			fs.Features = append(fs.Features, f)
		}
	}
	return fs
}

// QueryPolygon returns a summary of every activity intersecting the lasso
// ring. The index pre-filters by the ring's bbox; candidates then go through
// the true intersection tests, cheapest first. The ordering is purely a
// performance matter — any single passing test is sufficient and the final
// answer does not depend on the order.
func (e *Engine) QueryPolygon(ring []geo.Point) []Summary {
	out := []Summary{}
	if len(ring) < 3 {
		return out
	}
	ringBBox := geo.BBoxOf(ring)
	ids := e.index.Search(ringBBox)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		a, ok := e.lookup(id)
		if !ok {
			continue
		}
		if activityIntersectsRing(a, ring) {
			out = append(out, summaryFor(a))
		}
	}
	return out
}

// activityIntersectsRing applies the ordered intersection tests:
//  1. bbox center inside the ring
//  2. any bbox corner inside the ring
//  3. any full-resolution vertex inside the ring
//  4. any full-resolution segment crossing any ring edge
//
// Segment tests run against the full tier only: coarser tiers can cut a
// corner that a lasso edge would clip.
func activityIntersectsRing(a *track.Activity, ring []geo.Point) bool {
	if geo.PointInRing(a.BBox.Center(), ring) {
		return true
	}
	for _, c := range a.BBox.Corners() {
		if geo.PointInRing(c, ring) {
			return true
		}
	}
	full := a.Geometries[lod.TierFull]
	for _, p := range full {
		if geo.PointInRing(p, ring) {
			return true
		}
	}
	for i := 1; i < len(full); i++ {
		for j := 0; j < len(ring); j++ {
			k := (j + 1) % len(ring)
			if geo.SegmentsIntersect(full[i-1], full[i], ring[j], ring[k]) {
				return true
			}
		}
	}
	return false
}
