package detect

import (
	"fmt"
	"math"

	"github.com/grove-data/canopy.report/internal/geo"
	"github.com/grove-data/canopy.report/internal/monitoring"
)

// Detector runs the detection pipeline with a fixed configuration. It is
// stateless between runs: each invocation owns its spatial index and
// candidate set, so detectors are safe for concurrent use.
type Detector struct {
	params Params
}

// NewDetector validates the configuration and returns a Detector.
func NewDetector(params Params) (*Detector, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Detector{params: params}, nil
}

// Params returns the detector's configuration snapshot.
func (d *Detector) Params() Params { return d.params }

// Detect infers up to missingCount missing-tree locations from the surveyed
// observations and the orchard boundary. The result is deterministic for
// identical inputs and configuration. Any stage failure aborts the run;
// partial results are never returned.
func (d *Detector) Detect(obs []TreeObservation, boundary []geo.LatLon, missingCount int) (*Result, error) {
	return d.DetectWithStats(obs, boundary, missingCount, nil)
}

// DetectWithStats runs detection with the health filter's floors pinned to
// survey-level statistics. A nil stats falls back to statistics computed from
// the observations themselves.
func (d *Detector) DetectWithStats(obs []TreeObservation, boundary []geo.LatLon, missingCount int, stats *SurveyStatistics) (*Result, error) {
	if missingCount <= 0 {
		// Nothing to look for; skip the pipeline entirely.
		return &Result{Locations: []geo.LatLon{}}, nil
	}
	if len(boundary) < 3 {
		return nil, fmt.Errorf("%w: boundary has %d vertices, need at least 3", ErrInsufficientData, len(boundary))
	}

	var (
		healthy []TreeObservation
		err     error
	)
	if stats != nil {
		healthy, err = FilterHealthyWithStats(obs, *stats, d.params.SigmaMultiplier)
	} else {
		healthy, err = FilterHealthy(obs, d.params.SigmaMultiplier)
	}
	if err != nil {
		return nil, err
	}
	if len(healthy) < MinHealthyTrees {
		return nil, fmt.Errorf("%w: %d healthy trees after filtering, need at least %d",
			ErrInsufficientData, len(healthy), MinHealthyTrees)
	}
	monitoring.Logf("detect: %d/%d trees healthy after %.1fσ filter", len(healthy), len(obs), d.params.SigmaMultiplier)

	projector, err := geo.NewProjector(geo.LatLon{Lat: healthy[0].Lat, Lon: healthy[0].Lon})
	if err != nil {
		return nil, err
	}
	points := make([]geo.Point, len(healthy))
	for i, o := range healthy {
		if points[i], err = projector.ToPlanar(geo.LatLon{Lat: o.Lat, Lon: o.Lon}); err != nil {
			return nil, err
		}
	}
	ring, err := projector.ProjectRing(boundary)
	if err != nil {
		return nil, err
	}

	ix := NewIndex(points, 0)

	model, err := EstimateSpacingModel(ix, d.params)
	if err != nil {
		return nil, err
	}
	if model.RowAligned {
		monitoring.Logf("detect: spacing %.2fm, row pattern at %.1f° (confidence %.2f, row %.2fm col %.2fm)",
			model.Spacing, model.RowAngle*180/math.Pi, model.Confidence, model.RowSpacing, model.ColSpacing)
	} else {
		monitoring.Logf("detect: spacing %.2fm, isotropic (row confidence %.2f)", model.Spacing, model.Confidence)
	}

	threshold := d.params.GapThresholdMultiplier * model.Spacing
	gaps := FindGaps(ix, threshold, d.params.MinSeparationRatio*model.Spacing)
	candidates := GenerateCandidates(points, gaps, model)
	monitoring.Logf("detect: %d gaps over %.2fm produced %d candidates", len(gaps), threshold, len(candidates))

	scorer := NewScorer(ix, ring, model, d.params)
	scorer.ScoreAll(candidates)

	valid := ValidateCandidates(candidates, ix, ring, model, d.params)
	monitoring.Logf("detect: %d candidates valid, limiting to %d", len(valid), missingCount)

	limited := valid
	if len(limited) > missingCount {
		limited = limited[:missingCount]
	}

	locations := make([]geo.LatLon, len(limited))
	for i, c := range limited {
		locations[i] = projector.ToGeographic(geo.Point{X: c.X, Y: c.Y})
	}

	return &Result{
		Locations:        locations,
		ExpectedSpacingM: model.Spacing,
		HealthyTreeCount: len(healthy),
		CandidateCount:   len(valid),
		RowAligned:       model.RowAligned,
	}, nil
}
