package detect

import (
	"math"

	"github.com/grove-data/canopy.report/internal/geo"
)

// gapSearchRadiusMultiplier bounds the neighborhood scanned for gap pairs,
// expressed as a multiple of the gap threshold. Pairs further apart than this
// have intermediate trees between them and are covered by shorter pairs.
const gapSearchRadiusMultiplier = 3.0

// Gap is a pair of mutually-nearby trees whose separation significantly
// exceeds the expected planting interval, implying absent trees between them.
type Gap struct {
	I, J int     // indices into the filtered, projected set
	Dist float64 // separation in meters
}

// FindGaps enumerates tree pairs whose separation exceeds threshold meters.
// Only pairs within gapSearchRadiusMultiplier × threshold of each other are
// considered, via the index's neighborhood enumeration. A pair whose
// connecting segment passes within clearance of a third tree brackets
// existing trees rather than a plantable gap and is dropped.
func FindGaps(ix *Index, threshold, clearance float64) []Gap {
	var gaps []Gap
	for _, pr := range ix.PairsWithin(threshold * gapSearchRadiusMultiplier) {
		if pr.Dist <= threshold {
			continue
		}
		if clearance > 0 && segmentBlocked(ix, pr.I, pr.J, clearance) {
			continue
		}
		gaps = append(gaps, Gap{I: pr.I, J: pr.J, Dist: pr.Dist})
	}
	return gaps
}

// segmentBlocked reports whether a tree other than the endpoints lies within
// clearance of the open segment between points i and j.
func segmentBlocked(ix *Index, i, j int, clearance float64) bool {
	a, b := ix.Point(i), ix.Point(j)
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return false
	}
	ux, uy := dx/length, dy/length
	mx, my := (a.X+b.X)/2, (a.Y+b.Y)/2
	for _, k := range ix.Radius(mx, my, length/2+clearance) {
		if k == i || k == j {
			continue
		}
		p := ix.Point(k)
		rx, ry := p.X-a.X, p.Y-a.Y
		t := rx*ux + ry*uy
		if t <= 0 || t >= length {
			continue
		}
		if math.Abs(ry*ux-rx*uy) < clearance {
			return true
		}
	}
	return false
}

// GenerateCandidates interpolates candidate positions inside each gap. A gap
// wide enough for n trees yields n evenly spaced candidates along the
// segment. When a row model is available and the gap runs along the row axis,
// the row spacing refines the tree count estimate; otherwise the isotropic
// spacing is used.
//
// Candidates generated by overlapping gaps are deduplicated within
// CandidateDedupRadius, keeping the earliest.
func GenerateCandidates(points []geo.Point, gaps []Gap, model SpacingModel) []Candidate {
	var candidates []Candidate
	for _, g := range gaps {
		a, b := points[g.I], points[g.J]

		spacing, ok := interpolationSpacing(a, b, model)
		if !ok {
			continue
		}
		n := int(math.Round(g.Dist/spacing)) - 1
		if n < 1 {
			continue // gap rounds to fewer than one missing tree
		}

		for i := 1; i <= n; i++ {
			f := float64(i) / float64(n+1)
			candidates = append(candidates, Candidate{
				X:    a.X + f*(b.X-a.X),
				Y:    a.Y + f*(b.Y-a.Y),
				GapA: g.I,
				GapB: g.J,
			})
		}
	}
	return dedupeCandidates(candidates, CandidateDedupRadius)
}

// interpolationSpacing picks the planting interval appropriate for the gap's
// direction: row spacing for along-row gaps, column spacing for cross-row
// gaps. When a row model exists, gaps skewed away from both planting axes are
// artifacts of the pair enumeration (e.g. knight's-move pairs in a regular
// grid), not plantable gaps, and generate nothing. Without a row model the
// isotropic spacing applies to every gap.
func interpolationSpacing(a, b geo.Point, model SpacingModel) (float64, bool) {
	if !model.RowAligned {
		return model.Spacing, true
	}
	bearing := foldBearing(math.Atan2(b.Y-a.Y, b.X-a.X))
	dev := angularDeviation(bearing, model.RowAngle)
	perp := angularDeviation(bearing, foldBearing(model.RowAngle+math.Pi/2))
	switch {
	case dev < math.Pi/8 && model.RowSpacing > 0:
		return model.RowSpacing, true
	case perp < math.Pi/8 && model.ColSpacing > 0:
		return model.ColSpacing, true
	default:
		return 0, false
	}
}

// angularDeviation returns the smallest angle between two axial bearings in
// [0, π), accounting for the wrap at π.
func angularDeviation(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > math.Pi/2 {
		d = math.Pi - d
	}
	return d
}

// dedupeCandidates removes candidates within minDist of an earlier one.
func dedupeCandidates(cands []Candidate, minDist float64) []Candidate {
	if len(cands) < 2 {
		return cands
	}
	min2 := minDist * minDist
	kept := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		dup := false
		for _, k := range kept {
			dx, dy := c.X-k.X, c.Y-k.Y
			if dx*dx+dy*dy < min2 {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, c)
		}
	}
	return kept
}
