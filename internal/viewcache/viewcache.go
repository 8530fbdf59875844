// Package viewcache remembers recent viewport query results so that small
// pans and zooms inside an already-fetched region are served instantly
// instead of re-running the query. Entries are fetched with a margin around
// the requested viewport, so the common case — dragging the map a little —
// lands inside a cached region.
//
// The cache is fully disposable: losing it costs a re-query, never
// correctness.
package viewcache

import (
	"math"
	"sync"
	"time"

	"github.com/openridge/trackmap/internal/engine"
	"github.com/openridge/trackmap/internal/geo"
	"github.com/openridge/trackmap/internal/lod"
)

// DefaultCapacity is the number of entries kept; eviction is LRU.
const DefaultCapacity = 3

// DefaultStaleCenterFraction is how far (as a fraction of the viewport span)
// the center may drift from the cached query's center before the entry is
// treated as stale and refreshed in the background.
const DefaultStaleCenterFraction = 0.20

// MarginFor returns the prefetch margin factor for a tier. Higher zooms use
// larger margins: users pan more within a small area at high zoom, so a
// bigger relative margin keeps them inside the fetched region longer.
func MarginFor(t lod.Tier) float64 {
	switch t {
	case lod.TierFull:
		return 4
	case lod.TierHigh:
		return 2
	case lod.TierMid:
		return 1
	default:
		return 0.25
	}
}

type entry struct {
	tier        lod.Tier
	viewport    geo.BBox // the viewport the query was issued for
	fetchedBBox geo.BBox // viewport expanded by the prefetch margin
	result      engine.FeatureSet
	insertedAt  time.Time
	lastUsed    time.Time
}

// Resolution is the cache's answer for a viewport query.
type Resolution struct {
	// Cached is the result to serve immediately, nil on a miss.
	Cached *engine.FeatureSet
	// ShouldFetch is set when a fresh query must (also) run: on a miss, or
	// when the cached entry is stale and served only as a stopgap.
	ShouldFetch bool
	// FetchBBox is the margin-expanded region the fresh query should cover.
	// Only meaningful when ShouldFetch is set.
	FetchBBox geo.BBox
}

// Cache is a small LRU of viewport query results.
type Cache struct {
	mu                  sync.Mutex
	capacity            int
	staleCenterFraction float64
	entries             []*entry

	// now is swappable for tests.
	now func() time.Time
}

// New returns a cache holding at most capacity entries; capacity <= 0 uses
// DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity:            capacity,
		staleCenterFraction: DefaultStaleCenterFraction,
		now:                 time.Now,
	}
}

// SetStaleCenterFraction overrides the center-drift staleness threshold.
func (c *Cache) SetStaleCenterFraction(f float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f > 0 {
		c.staleCenterFraction = f
	}
}

// Resolve decides how to answer a query for viewport at zoom. A cache entry
// covers the query iff its tier has at least as much detail as the query's
// and its fetched region contains the whole viewport. A covering entry whose
// query center has drifted more than the stale fraction of the current span
// is served immediately but also refreshed in the background
// (serve-then-refresh: the map corrects itself shortly after). When several
// entries cover the query, a clean one is preferred over a stale one.
func (c *Cache) Resolve(viewport geo.BBox, zoom int) Resolution {
	c.mu.Lock()
	defer c.mu.Unlock()

	tier := lod.TierFor(zoom)
	var stale *entry
	for _, e := range c.entries {
		if !e.tier.AtLeast(tier) || !e.fetchedBBox.Contains(viewport) {
			continue
		}
		if c.isStale(e, viewport, tier) {
			if stale == nil {
				stale = e
			}
			continue
		}
		// A clean covering entry beats any stale one: no refresh needed.
		e.lastUsed = c.now()
		res := e.result
		return Resolution{Cached: &res}
	}
	if stale != nil {
		stale.lastUsed = c.now()
		res := stale.result
		return Resolution{
			Cached:      &res,
			ShouldFetch: true,
			FetchBBox:   viewport.Expand(MarginFor(tier)),
		}
	}

	return Resolution{
		ShouldFetch: true,
		FetchBBox:   viewport.Expand(MarginFor(tier)),
	}
}

// isStale reports whether a covering entry should be background-refreshed:
// the tier changed, or the center moved more than the stale fraction of the
// current span in either axis.
func (c *Cache) isStale(e *entry, viewport geo.BBox, tier lod.Tier) bool {
	if e.tier != tier {
		return true
	}
	ec := e.viewport.Center()
	vc := viewport.Center()
	return math.Abs(vc.Lon()-ec.Lon()) > c.staleCenterFraction*viewport.SpanLon() ||
		math.Abs(vc.Lat()-ec.Lat()) > c.staleCenterFraction*viewport.SpanLat()
}

// Store records the result of a fresh query for viewport at zoom, fetched
// over fetchedBBox. When the cache is full the least-recently-used entry is
// evicted.
func (c *Cache) Store(viewport, fetchedBBox geo.BBox, zoom int, result engine.FeatureSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e := &entry{
		tier:        lod.TierFor(zoom),
		viewport:    viewport,
		fetchedBBox: fetchedBBox,
		result:      result,
		insertedAt:  now,
		lastUsed:    now,
	}

	if len(c.entries) < c.capacity {
		c.entries = append(c.entries, e)
		return
	}
	lru := 0
	for i, cand := range c.entries {
		if cand.lastUsed.Before(c.entries[lru].lastUsed) {
			lru = i
		}
	}
	c.entries[lru] = e
}

// Clear drops every entry. Called when the underlying dataset changes (a
// new activity was registered) so cached results can never hide it.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
