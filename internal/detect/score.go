package detect

import (
	"math"

	"github.com/grove-data/canopy.report/internal/geo"
)

// rowAlignmentFalloff is the angular deviation at which the row-alignment
// sub-score reaches zero.
const rowAlignmentFalloff = math.Pi / 4

// densityTargetNeighbors is the neighbor count at which the local-density
// sub-score saturates.
const densityTargetNeighbors = 4

// Scorer assigns composite scores to candidates. The score is a weighted sum
// of four normalized terms and is used only for ranking and thresholding,
// never as a probability.
type Scorer struct {
	ix       *Index
	boundary geo.Polygon
	model    SpacingModel
	params   Params
}

// NewScorer builds a scorer over the filtered tree index, the projected
// orchard boundary, and the spacing model of the current run.
func NewScorer(ix *Index, boundary geo.Polygon, model SpacingModel, params Params) *Scorer {
	return &Scorer{ix: ix, boundary: boundary, model: model, params: params}
}

// Score computes the candidate's composite score in [0, 1].
func (s *Scorer) Score(c Candidate) float64 {
	score := s.params.WeightSpacing*s.spacingFit(c) +
		s.params.WeightDensity*s.localDensity(c) +
		s.params.WeightBoundary*s.boundaryDistance(c) +
		s.rowAlignmentTerm(c)
	return math.Min(1, score)
}

// ScoreAll scores every candidate in place.
func (s *Scorer) ScoreAll(cands []Candidate) {
	for i := range cands {
		cands[i].Score = s.Score(cands[i])
	}
}

// spacingFit approaches 1 as the candidate's distance to its nearest existing
// tree approaches the expected spacing, from either side.
func (s *Scorer) spacingFit(c Candidate) float64 {
	_, d := s.ix.Nearest(c.X, c.Y, -1)
	if d <= 0 || math.IsInf(d, 1) {
		return 0
	}
	return math.Min(d/s.model.Spacing, s.model.Spacing/d)
}

// localDensity rewards candidates with evidence of a genuine gap: enough
// surrounding trees inside the neighborhood window, saturating at
// densityTargetNeighbors. Fewer than two neighbors means the candidate sits
// in open ground, not a gap.
func (s *Scorer) localDensity(c Candidate) float64 {
	window := s.params.DensityRadiusRatio * s.model.Spacing
	neighbors := s.ix.Radius(c.X, c.Y, window)
	if len(neighbors) < 2 {
		return 0
	}
	return math.Min(1, float64(len(neighbors))/densityTargetNeighbors)
}

// boundaryDistance rewards positions away from the orchard edge, where gaps
// are more likely genuine than edge effects. Full credit beyond
// BoundaryBufferRatio × spacing, linear falloff inside it.
func (s *Scorer) boundaryDistance(c Candidate) float64 {
	full := s.params.BoundaryBufferRatio * s.model.Spacing
	if full <= 0 {
		return 1
	}
	d := s.boundary.BoundaryDistance(geo.Point{X: c.X, Y: c.Y})
	if d >= full {
		return 1
	}
	if d <= 0 {
		return 0
	}
	return d / full
}

// rowAlignmentTerm returns the weighted row-alignment contribution. Without a
// row model the term is a fixed neutral half-credit so isotropic orchards are
// not penalized.
func (s *Scorer) rowAlignmentTerm(c Candidate) float64 {
	if !s.model.RowAligned {
		return 0.5 * s.params.WeightRowAlignment
	}

	nearest, _ := s.ix.Nearest(c.X, c.Y, -1)
	if nearest < 0 {
		return 0.5 * s.params.WeightRowAlignment
	}
	p := s.ix.Point(nearest)
	bearing := foldBearing(math.Atan2(c.Y-p.Y, c.X-p.X))

	rowDev := angularDeviation(bearing, s.model.RowAngle)
	colDev := angularDeviation(bearing, foldBearing(s.model.RowAngle+math.Pi/2))
	dev := math.Min(rowDev, colDev)

	alignment := math.Max(0, 1-dev/rowAlignmentFalloff)
	return s.params.WeightRowAlignment * alignment
}
