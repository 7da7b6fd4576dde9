package detect

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// rowBearingBins is the histogram resolution for row-orientation detection:
// 36 bins over [0, π), i.e. 5° per bin.
const rowBearingBins = 36

// rowBearingNeighbors is how many nearest neighbors contribute bearings per
// tree during orientation detection.
const rowBearingNeighbors = 4

// rowSpacingNeighbors is how many nearest neighbors contribute axis-aligned
// offsets per tree when estimating row and column spacing.
const rowSpacingNeighbors = 8

// EstimateSpacing returns the orchard's expected planting interval: the
// median nearest-neighbor distance over the indexed set. The median, not the
// mean, so residual outliers cannot drag the estimate.
func EstimateSpacing(ix *Index) (float64, error) {
	n := ix.Len()
	if n < 2 {
		return 0, fmt.Errorf("%w: need at least 2 points for spacing estimation, have %d", ErrInsufficientData, n)
	}
	dists := make([]float64, n)
	for i := 0; i < n; i++ {
		dists[i] = ix.NearestNeighborDistance(i)
	}
	sort.Float64s(dists)
	spacing := stat.Quantile(0.5, stat.Empirical, dists, nil)
	if spacing <= 0 || math.IsInf(spacing, 1) {
		return 0, fmt.Errorf("%w: degenerate point set, median spacing %v", ErrInsufficientData, spacing)
	}
	return spacing, nil
}

// EstimateSpacingModel computes the scalar spacing and, when enabled and
// confident, the row-aligned refinement. The computation is deterministic:
// every point contributes, no sampling.
func EstimateSpacingModel(ix *Index, params Params) (SpacingModel, error) {
	spacing, err := EstimateSpacing(ix)
	if err != nil {
		return SpacingModel{}, err
	}
	model := SpacingModel{Spacing: spacing}

	if !params.UseRowDetection || ix.Len() < MinRowDetectionTrees {
		return model, nil
	}

	angle, confidence := detectRowOrientation(ix)
	model.Confidence = confidence
	if confidence < params.RowConfidenceThreshold {
		return model, nil
	}

	rowSpacing, colSpacing := estimateRowColSpacing(ix, angle, spacing)
	model.RowAligned = true
	model.RowAngle = angle
	model.RowSpacing = rowSpacing
	model.ColSpacing = colSpacing
	return model, nil
}

// detectRowOrientation finds the dominant planting axis by histogramming the
// bearings from each tree to its nearest neighbors. Bearings are folded into
// [0, π) since a row has no direction. Confidence is the peak bin's share of
// all bearings scaled so a uniform distribution scores near zero.
func detectRowOrientation(ix *Index) (angle, confidence float64) {
	var hist [rowBearingBins]int
	total := 0

	for i := 0; i < ix.Len(); i++ {
		p := ix.Point(i)
		for _, nb := range ix.KNearest(p.X, p.Y, rowBearingNeighbors, i) {
			q := ix.Point(nb.Idx)
			b := foldBearing(math.Atan2(q.Y-p.Y, q.X-p.X))
			bin := int(b / math.Pi * rowBearingBins)
			if bin >= rowBearingBins {
				bin = rowBearingBins - 1
			}
			hist[bin]++
			total++
		}
	}
	if total == 0 {
		return 0, 0
	}

	peak := 0
	for b := 1; b < rowBearingBins; b++ {
		if hist[b] > hist[peak] {
			peak = b
		}
	}

	binWidth := math.Pi / rowBearingBins
	angle = (float64(peak) + 0.5) * binWidth
	confidence = math.Min(1, float64(hist[peak])/float64(total)*2)
	return angle, confidence
}

// estimateRowColSpacing measures the planting interval along and across the
// detected axis. Each neighbor offset is rotated into the row frame; offsets
// dominated by one axis (2:1 or better) vote for that axis' spacing. Axes
// with no votes fall back to the isotropic spacing.
func estimateRowColSpacing(ix *Index, angle, fallback float64) (rowSpacing, colSpacing float64) {
	cosA, sinA := math.Cos(angle), math.Sin(angle)

	var rowDists, colDists []float64
	for i := 0; i < ix.Len(); i++ {
		p := ix.Point(i)
		for _, nb := range ix.KNearest(p.X, p.Y, rowSpacingNeighbors, i) {
			q := ix.Point(nb.Idx)
			// Rotate the offset by -angle to align rows with the x axis.
			ox, oy := q.X-p.X, q.Y-p.Y
			dx := ox*cosA + oy*sinA
			dy := -ox*sinA + oy*cosA

			adx, ady := math.Abs(dx), math.Abs(dy)
			switch {
			case adx > 2*ady:
				rowDists = append(rowDists, adx)
			case ady > 2*adx:
				colDists = append(colDists, ady)
			}
		}
	}

	rowSpacing = medianOr(rowDists, fallback)
	colSpacing = medianOr(colDists, rowSpacing)
	return rowSpacing, colSpacing
}

func medianOr(vals []float64, fallback float64) float64 {
	if len(vals) == 0 {
		return fallback
	}
	sort.Float64s(vals)
	return stat.Quantile(0.5, stat.Empirical, vals, nil)
}

// foldBearing normalizes an angle into [0, π).
func foldBearing(a float64) float64 {
	a = math.Mod(a, math.Pi)
	if a < 0 {
		a += math.Pi
	}
	return a
}
