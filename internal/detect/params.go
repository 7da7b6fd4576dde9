package detect

import (
	"fmt"
	"math"
)

// Default tuning values. These match the provider's documented survey
// characteristics and are overridable per run through the tuning config.
const (
	DefaultSigmaMultiplier        = 2.0
	DefaultGapThresholdMultiplier = 1.5
	DefaultRowConfidenceThreshold = 0.3
	DefaultMinCandidateScore      = 0.3
	DefaultMinSeparationRatio     = 0.5
	DefaultBoundaryBufferRatio    = 0.3
	DefaultDensityRadiusRatio     = 2.0

	DefaultWeightSpacing      = 0.3
	DefaultWeightDensity      = 0.3
	DefaultWeightBoundary     = 0.2
	DefaultWeightRowAlignment = 0.2

	// MinHealthyTrees is the smallest post-filter set spacing analysis can
	// work with.
	MinHealthyTrees = 3

	// MinRowDetectionTrees is the smallest set row-orientation detection is
	// attempted on; below this the bearing histogram is too sparse.
	MinRowDetectionTrees = 20

	// CandidateDedupRadius collapses interpolated candidates generated by
	// overlapping gaps, meters.
	CandidateDedupRadius = 1.0
)

// Params is the immutable per-run configuration for the pipeline. Values are
// snapshotted at invocation start, so concurrent runs may use different
// configurations safely.
type Params struct {
	// SigmaMultiplier is the number of standard deviations below the mean at
	// which a tree's canopy area or health index marks it unhealthy.
	SigmaMultiplier float64

	// GapThresholdMultiplier scales expected spacing into the minimum pair
	// separation that counts as a gap.
	GapThresholdMultiplier float64

	// UseRowDetection enables row/column pattern detection.
	UseRowDetection        bool
	RowConfidenceThreshold float64

	// MinCandidateScore rejects candidates scoring below it.
	MinCandidateScore float64

	// MinSeparationRatio scales expected spacing into the minimum distance a
	// candidate keeps from existing trees and other accepted candidates.
	MinSeparationRatio float64

	// BoundaryBufferRatio scales expected spacing into the inward boundary
	// buffer used by validation and boundary scoring.
	BoundaryBufferRatio float64

	// DensityRadiusRatio scales expected spacing into the neighborhood window
	// for the local-density score term.
	DensityRadiusRatio float64

	// Score weights. Must sum to 1.
	WeightSpacing      float64
	WeightDensity      float64
	WeightBoundary     float64
	WeightRowAlignment float64
}

// DefaultParams returns the default pipeline configuration.
func DefaultParams() Params {
	return Params{
		SigmaMultiplier:        DefaultSigmaMultiplier,
		GapThresholdMultiplier: DefaultGapThresholdMultiplier,
		UseRowDetection:        true,
		RowConfidenceThreshold: DefaultRowConfidenceThreshold,
		MinCandidateScore:      DefaultMinCandidateScore,
		MinSeparationRatio:     DefaultMinSeparationRatio,
		BoundaryBufferRatio:    DefaultBoundaryBufferRatio,
		DensityRadiusRatio:     DefaultDensityRadiusRatio,
		WeightSpacing:          DefaultWeightSpacing,
		WeightDensity:          DefaultWeightDensity,
		WeightBoundary:         DefaultWeightBoundary,
		WeightRowAlignment:     DefaultWeightRowAlignment,
	}
}

// Validate checks the configuration. Violations are fatal for the run.
func (p Params) Validate() error {
	if p.SigmaMultiplier <= 0 {
		return fmt.Errorf("%w: sigma_multiplier must be positive, got %v", ErrConfig, p.SigmaMultiplier)
	}
	if p.GapThresholdMultiplier <= 1 {
		return fmt.Errorf("%w: gap_threshold_multiplier must exceed 1, got %v", ErrConfig, p.GapThresholdMultiplier)
	}
	if p.RowConfidenceThreshold < 0 || p.RowConfidenceThreshold > 1 {
		return fmt.Errorf("%w: row_confidence_threshold must be in [0,1], got %v", ErrConfig, p.RowConfidenceThreshold)
	}
	if p.MinCandidateScore < 0 || p.MinCandidateScore > 1 {
		return fmt.Errorf("%w: min_candidate_score must be in [0,1], got %v", ErrConfig, p.MinCandidateScore)
	}
	if p.MinSeparationRatio <= 0 {
		return fmt.Errorf("%w: min_separation_ratio must be positive, got %v", ErrConfig, p.MinSeparationRatio)
	}
	if p.BoundaryBufferRatio < 0 {
		return fmt.Errorf("%w: boundary_buffer_ratio must be non-negative, got %v", ErrConfig, p.BoundaryBufferRatio)
	}
	if p.DensityRadiusRatio <= 0 {
		return fmt.Errorf("%w: density_radius_ratio must be positive, got %v", ErrConfig, p.DensityRadiusRatio)
	}
	for _, w := range []float64{p.WeightSpacing, p.WeightDensity, p.WeightBoundary, p.WeightRowAlignment} {
		if w < 0 {
			return fmt.Errorf("%w: score weights must be non-negative", ErrConfig)
		}
	}
	sum := p.WeightSpacing + p.WeightDensity + p.WeightBoundary + p.WeightRowAlignment
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("%w: score weights sum to %v, want 1", ErrConfig, sum)
	}
	return nil
}
