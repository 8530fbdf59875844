// Package rindex is the spatial index over activity bounding boxes: an
// R-tree holding (id, bbox) pairs only, never geometry. It is kept in
// lockstep with the activity store — every id present in one must be present
// in the other.
package rindex

import (
	"sync"

	"github.com/tidwall/rtree"

	"github.com/openridge/trackmap/internal/geo"
)

// Entry is one indexed activity.
type Entry struct {
	ID   int64
	BBox geo.BBox
}

// Index is an R-tree over activity bounding boxes. Search is inclusive:
// a stored bbox that merely touches the query bbox is returned.
type Index struct {
	mu   sync.RWMutex
	tree rtree.RTree
}

// New returns an empty index.
func New() *Index {
	return &Index{}
}

// Insert adds one (id, bbox) pair. Used for one-off additions (uploads);
// amortized O(log n), no rebalancing guarantees.
func (ix *Index) Insert(id int64, b geo.BBox) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.tree.Insert(
		[2]float64{b.MinLon(), b.MinLat()},
		[2]float64{b.MaxLon(), b.MaxLat()},
		id,
	)
}

// BulkLoad inserts a batch of entries. Used once at session start; kept as
// a separate entry point from Insert so the two call sites keep their
// meaning even though the underlying tree loads them the same way.
func (ix *Index) BulkLoad(entries []Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, e := range entries {
		ix.tree.Insert(
			[2]float64{e.BBox.MinLon(), e.BBox.MinLat()},
			[2]float64{e.BBox.MaxLon(), e.BBox.MaxLat()},
			e.ID,
		)
	}
}

// Search returns the id of every entry whose bbox intersects the query bbox.
func (ix *Index) Search(b geo.BBox) []int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var ids []int64
	ix.tree.Search(
		[2]float64{b.MinLon(), b.MinLat()},
		[2]float64{b.MaxLon(), b.MaxLat()},
		func(min, max [2]float64, data interface{}) bool {
			if id, ok := data.(int64); ok {
				ids = append(ids, id)
			}
			return true
		},
	)
	return ids
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.tree.Len()
}
