package track

import (
	"errors"

	"github.com/golang/geo/s2"

	"github.com/openridge/trackmap/internal/geo"
	"github.com/openridge/trackmap/internal/lod"
)

const earthRadiusMeters = 6371000.0

// ErrTooFewPoints is returned by Build for tracks with fewer than 2 points.
// Such tracks never enter the store or the index.
var ErrTooFewPoints = errors.New("track: need at least 2 points")

// Build constructs an Activity from a raw [lon,lat] coordinate sequence:
// the bounding box from the full-resolution points, one simplified polyline
// per LOD tier, and derived metadata. Distance is filled in from the track
// itself when the source metadata did not carry one; duration likewise from
// the start/end timestamps. The activity type is normalized from the raw
// label.
func Build(id int64, coords []geo.Point, meta Metadata) (*Activity, error) {
	if len(coords) < 2 {
		return nil, ErrTooFewPoints
	}

	full := make([]geo.Point, len(coords))
	copy(full, coords)

	geoms := map[lod.Tier][]geo.Point{
		lod.TierFull: full,
		lod.TierHigh: lod.Simplify(coords, lod.ToleranceHigh),
		lod.TierMid:  lod.Simplify(coords, lod.ToleranceMid),
		lod.TierLow:  lod.Simplify(coords, lod.ToleranceLow),
	}

	if meta.Distance == 0 {
		meta.Distance = pathDistance(coords)
	}
	if meta.Duration == 0 && !meta.StartTime.IsZero() && !meta.EndTime.IsZero() {
		meta.Duration = meta.EndTime.Sub(meta.StartTime).Seconds()
	}
	meta.ActivityType = NormalizeActivityType(meta.ActivityRaw)

	return &Activity{
		ID:         id,
		BBox:       geo.BBoxOf(coords),
		Geometries: geoms,
		Metadata:   meta,
	}, nil
}

// pathDistance sums great-circle segment lengths over the track, in meters.
func pathDistance(coords []geo.Point) float64 {
	var total float64
	for i := 1; i < len(coords); i++ {
		p1 := s2.LatLngFromDegrees(coords[i-1].Lat(), coords[i-1].Lon())
		p2 := s2.LatLngFromDegrees(coords[i].Lat(), coords[i].Lon())
		total += p1.Distance(p2).Radians() * earthRadiusMeters
	}
	return total
}
