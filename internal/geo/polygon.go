package geo

import "math"

// Polygon is a simple closed ring of planar points. The closing vertex may be
// repeated or omitted; both forms are handled.
type Polygon []Point

// Contains reports whether the point lies inside the polygon using the
// even-odd ray casting rule. Points exactly on an edge may land on either
// side; callers that care use ContainsWithBuffer.
func (pg Polygon) Contains(p Point) bool {
	n := len(pg)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		pi, pj := pg[i], pg[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) {
			xCross := pi.X + (p.Y-pi.Y)/(pj.Y-pi.Y)*(pj.X-pi.X)
			if p.X < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// BoundaryDistance returns the distance from the point to the nearest polygon
// edge. The point may be inside or outside the ring.
func (pg Polygon) BoundaryDistance(p Point) float64 {
	n := len(pg)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return math.Hypot(p.X-pg[0].X, p.Y-pg[0].Y)
	}
	best := math.Inf(1)
	j := n - 1
	for i := 0; i < n; i++ {
		if d := segmentDistance(p, pg[j], pg[i]); d < best {
			best = d
		}
		j = i
	}
	return best
}

// ContainsWithBuffer reports whether the point lies inside the polygon shrunk
// inward by buffer meters. A zero buffer degrades to plain containment.
func (pg Polygon) ContainsWithBuffer(p Point, buffer float64) bool {
	if !pg.Contains(p) {
		return false
	}
	if buffer <= 0 {
		return true
	}
	return pg.BoundaryDistance(p) >= buffer
}

// segmentDistance returns the distance from p to the segment a-b.
func segmentDistance(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	len2 := dx*dx + dy*dy
	if len2 == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / len2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}
