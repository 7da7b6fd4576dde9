package detect

import (
	"math"
	"sort"

	"github.com/grove-data/canopy.report/internal/geo"
)

// ValidateCandidates rejects candidates that violate geometric constraints
// and deduplicates the survivors greedily in descending score order. A
// candidate is rejected when any of the following holds:
//
//   - score below MinCandidateScore
//   - outside the boundary shrunk inward by BoundaryBufferRatio × spacing
//   - closer than MinSeparationRatio × spacing to an existing tree
//   - closer than MinSeparationRatio × spacing to an already-accepted candidate
//
// The returned slice is sorted by descending score with a deterministic
// position tie-break, ready for the final count limit.
func ValidateCandidates(cands []Candidate, ix *Index, boundary geo.Polygon, model SpacingModel, params Params) []Candidate {
	minSep := params.MinSeparationRatio * model.Spacing
	buffer := params.BoundaryBufferRatio * model.Spacing

	sorted := make([]Candidate, len(cands))
	copy(sorted, cands)
	sort.Slice(sorted, func(a, b int) bool {
		if sorted[a].Score != sorted[b].Score {
			return sorted[a].Score > sorted[b].Score
		}
		if sorted[a].X != sorted[b].X {
			return sorted[a].X < sorted[b].X
		}
		return sorted[a].Y < sorted[b].Y
	})

	accepted := make([]Candidate, 0, len(sorted))
	for _, c := range sorted {
		if c.Score < params.MinCandidateScore {
			continue
		}
		if !boundary.ContainsWithBuffer(geo.Point{X: c.X, Y: c.Y}, buffer) {
			continue
		}
		if _, d := ix.Nearest(c.X, c.Y, -1); d < minSep {
			continue
		}
		if tooCloseToAccepted(c, accepted, minSep) {
			continue
		}
		accepted = append(accepted, c)
	}
	return accepted
}

func tooCloseToAccepted(c Candidate, accepted []Candidate, minSep float64) bool {
	min2 := minSep * minSep
	for _, a := range accepted {
		dx, dy := c.X-a.X, c.Y-a.Y
		if dx*dx+dy*dy < min2 {
			return true
		}
	}
	return false
}

// resultSeparationOK reports whether every pair in the accepted set keeps the
// minimum separation. Used by tests to assert the separation invariant.
func resultSeparationOK(accepted []Candidate, minSep float64) bool {
	for i := range accepted {
		for j := i + 1; j < len(accepted); j++ {
			dx, dy := accepted[i].X-accepted[j].X, accepted[i].Y-accepted[j].Y
			if math.Sqrt(dx*dx+dy*dy) < minSep {
				return false
			}
		}
	}
	return true
}
