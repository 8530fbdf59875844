// Package track holds the activity data model: one GPS track with its
// pre-built level-of-detail geometries, bounding box, and metadata, plus the
// in-memory store the query engine reads from.
package track

import (
	"strings"
	"sync"
	"time"

	"github.com/openridge/trackmap/internal/geo"
	"github.com/openridge/trackmap/internal/lod"
)

// UploadIDBase is the first id of the reserved space for locally uploaded
// activities. Bulk-imported activities are numbered from 1, so the two
// ranges never collide without any coordination. 1<<40 is still exact in
// float64, which matters because ids travel through GeoJSON properties.
const UploadIDBase int64 = 1 << 40

// Metadata describes an activity. It is derived once when the activity is
// built and never recomputed.
type Metadata struct {
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Duration     float64   `json:"duration"` // seconds
	Distance     float64   `json:"distance"` // meters
	ActivityType string    `json:"activity_type"`
	ActivityRaw  string    `json:"activity_raw"`
	SourceFile   string    `json:"source_file"`
}

// Activity is one GPS track. Immutable once built; replaced, never mutated.
type Activity struct {
	ID         int64
	BBox       geo.BBox
	Geometries map[lod.Tier][]geo.Point
	Metadata   Metadata
}

// Geometry returns the polyline for the requested tier, falling back through
// lod.FallbackOrder when the requested tier has fewer than 2 points. The
// second return is the tier actually used.
func (a *Activity) Geometry(t lod.Tier) ([]geo.Point, lod.Tier) {
	if g := a.Geometries[t]; len(g) >= 2 {
		return g, t
	}
	for _, fb := range lod.FallbackOrder {
		if g := a.Geometries[fb]; len(g) >= 2 {
			return g, fb
		}
	}
	return nil, t
}

// NormalizeActivityType maps a raw activity label from a source file onto
// one of the canonical types: run, bike, walk, hike, other.
func NormalizeActivityType(raw string) string {
	if raw == "" {
		return "other"
	}
	t := strings.ToLower(raw)
	switch {
	case strings.Contains(t, "run") || strings.Contains(t, "jog"):
		return "run"
	case strings.Contains(t, "bike") || strings.Contains(t, "biking") ||
		strings.Contains(t, "cycl") || strings.Contains(t, "ride"):
		return "bike"
	case strings.Contains(t, "walk"):
		return "walk"
	case strings.Contains(t, "hike"):
		return "hike"
	default:
		return "other"
	}
}

// Store maps activity id → Activity. It is append-only: entries are never
// mutated in place, and re-inserting an existing id is undefined behaviour
// (documented, not guarded — it does not happen in normal operation).
type Store struct {
	mu         sync.RWMutex
	activities map[int64]*Activity
}

// NewStore returns an empty activity store.
func NewStore() *Store {
	return &Store{activities: make(map[int64]*Activity)}
}

// Insert adds an activity to the store.
func (s *Store) Insert(a *Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities[a.ID] = a
}

// Get returns the activity for id, or false if it is not present.
func (s *Store) Get(id int64) (*Activity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activities[id]
	return a, ok
}

// Len returns the number of stored activities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.activities)
}

// IDs returns every stored activity id, in no particular order.
func (s *Store) IDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.activities))
	for id := range s.activities {
		ids = append(ids, id)
	}
	return ids
}

// IDAllocator hands out ids for locally uploaded activities from the
// reserved high id space. It is owned by whoever accepts uploads; there is
// deliberately no package-level instance.
type IDAllocator struct {
	mu   sync.Mutex
	next int64
}

// NewUploadIDAllocator returns an allocator starting at UploadIDBase.
func NewUploadIDAllocator() *IDAllocator {
	return &IDAllocator{next: UploadIDBase}
}

// Next returns the next unused upload id.
func (g *IDAllocator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next
	g.next++
	return id
}
