// Package geo provides the planar geometry primitives the query engine is
// built on: axis-aligned bounding boxes in degree space, point-in-polygon
// tests, and segment intersection tests.
//
// Everything here treats coordinates as planar [longitude, latitude] pairs.
// That is an approximation of the sphere, but at the zoom levels the map
// targets the error is far below one pixel, and it keeps every predicate a
// handful of multiplications.
package geo

// Point is a [longitude, latitude] pair in degrees.
type Point [2]float64

// Lon returns the longitude component.
func (p Point) Lon() float64 { return p[0] }

// Lat returns the latitude component.
func (p Point) Lat() float64 { return p[1] }

// BBox is an axis-aligned bounding rectangle [minLon, minLat, maxLon, maxLat].
type BBox [4]float64

// MinLon returns the western edge.
func (b BBox) MinLon() float64 { return b[0] }

// MinLat returns the southern edge.
func (b BBox) MinLat() float64 { return b[1] }

// MaxLon returns the eastern edge.
func (b BBox) MaxLon() float64 { return b[2] }

// MaxLat returns the northern edge.
func (b BBox) MaxLat() float64 { return b[3] }

// Center returns the midpoint of the box.
func (b BBox) Center() Point {
	return Point{(b[0] + b[2]) / 2, (b[1] + b[3]) / 2}
}

// SpanLon returns the width of the box in degrees.
func (b BBox) SpanLon() float64 { return b[2] - b[0] }

// SpanLat returns the height of the box in degrees.
func (b BBox) SpanLat() float64 { return b[3] - b[1] }

// Intersects reports whether two boxes overlap. Boundaries are inclusive:
// boxes that merely touch along an edge or corner count as intersecting.
// Two boxes intersect unless one lies entirely to the left, right, above,
// or below the other.
func (b BBox) Intersects(o BBox) bool {
	return !(o[2] < b[0] || o[0] > b[2] || o[3] < b[1] || o[1] > b[3])
}

// Contains reports whether o lies entirely inside b (inclusive).
func (b BBox) Contains(o BBox) bool {
	return o[0] >= b[0] && o[1] >= b[1] && o[2] <= b[2] && o[3] <= b[3]
}

// ContainsPoint reports whether p lies inside b (inclusive).
func (b BBox) ContainsPoint(p Point) bool {
	return p[0] >= b[0] && p[0] <= b[2] && p[1] >= b[1] && p[1] <= b[3]
}

// Corners returns the four corners of the box.
func (b BBox) Corners() [4]Point {
	return [4]Point{
		{b[0], b[1]},
		{b[0], b[3]},
		{b[2], b[3]},
		{b[2], b[1]},
	}
}

// Expand grows the box by factor times its own span on each side. A factor
// of 0.25 on a 1°×1° box yields a 1.5°×1.5° box around the same center.
func (b BBox) Expand(factor float64) BBox {
	dLon := b.SpanLon() * factor
	dLat := b.SpanLat() * factor
	return BBox{b[0] - dLon, b[1] - dLat, b[2] + dLon, b[3] + dLat}
}

// BBoxOf computes the bounding box of a coordinate sequence. It returns the
// zero box for an empty sequence.
func BBoxOf(points []Point) BBox {
	if len(points) == 0 {
		return BBox{}
	}
	b := BBox{points[0][0], points[0][1], points[0][0], points[0][1]}
	for _, p := range points[1:] {
		if p[0] < b[0] {
			b[0] = p[0]
		}
		if p[0] > b[2] {
			b[2] = p[0]
		}
		if p[1] < b[1] {
			b[1] = p[1]
		}
		if p[1] > b[3] {
			b[3] = p[1]
		}
	}
	return b
}

// PointInRing reports whether p lies inside the closed ring using the
// even-odd ray-casting rule. The ring wraps implicitly from the last vertex
// back to the first; a trailing duplicate of the first vertex is harmless.
// Rings with fewer than 3 vertices contain nothing.
func PointInRing(p Point, ring []Point) bool {
	if len(ring) < 3 {
		return false
	}
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		pi, pj := ring[i], ring[j]
		if (pi[1] > p[1]) != (pj[1] > p[1]) &&
			p[0] < (pj[0]-pi[0])*(p[1]-pi[1])/(pj[1]-pi[1])+pi[0] {
			inside = !inside
		}
		j = i
	}
	return inside
}

// orientation classifies the turn a→b→c: 0 for colinear, 1 for clockwise,
// 2 for counter-clockwise.
func orientation(a, b, c Point) int {
	v := (b[1]-a[1])*(c[0]-b[0]) - (b[0]-a[0])*(c[1]-b[1])
	switch {
	case v == 0:
		return 0
	case v > 0:
		return 1
	default:
		return 2
	}
}

// onSegment reports whether c, known to be colinear with segment a-b, lies
// within its extent.
func onSegment(a, b, c Point) bool {
	return c[0] >= min(a[0], b[0]) && c[0] <= max(a[0], b[0]) &&
		c[1] >= min(a[1], b[1]) && c[1] <= max(a[1], b[1])
}

// SegmentsIntersect reports whether segments p1-p2 and q1-q2 intersect.
// Proper crossings, shared endpoints, and colinear overlap all count as
// intersecting.
func SegmentsIntersect(p1, p2, q1, q2 Point) bool {
	o1 := orientation(p1, p2, q1)
	o2 := orientation(p1, p2, q2)
	o3 := orientation(q1, q2, p1)
	o4 := orientation(q1, q2, p2)

	if o1 != o2 && o3 != o4 {
		return true
	}

	// Colinear cases: an endpoint of one segment lying on the other.
	if o1 == 0 && onSegment(p1, p2, q1) {
		return true
	}
	if o2 == 0 && onSegment(p1, p2, q2) {
		return true
	}
	if o3 == 0 && onSegment(q1, q2, p1) {
		return true
	}
	if o4 == 0 && onSegment(q1, q2, p2) {
		return true
	}
	return false
}
