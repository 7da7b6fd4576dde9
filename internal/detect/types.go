// Package detect implements the missing-tree detection pipeline: statistical
// health filtering, planar spatial indexing, spacing and row-orientation
// estimation, gap detection, candidate scoring, and validation.
package detect

import "github.com/grove-data/canopy.report/internal/geo"

// TreeObservation is a single surveyed tree. Immutable once fetched; one
// pipeline invocation owns its slice exclusively.
type TreeObservation struct {
	ID          int64   `json:"id"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lng"`
	CanopyArea  float64 `json:"area"` // canopy area in m²
	HealthIndex float64 `json:"ndre"` // normalized vegetation-health signal
}

// SpacingModel describes the orchard's characteristic planting interval.
// Spacing is always set; the row fields are meaningful only when RowAligned
// is true, otherwise later stages treat the orchard as isotropic.
type SpacingModel struct {
	Spacing    float64 // median nearest-neighbor distance, meters
	RowAligned bool
	RowAngle   float64 // dominant planting axis, radians in [0, π)
	RowSpacing float64 // spacing along the row axis
	ColSpacing float64 // spacing across rows
	Confidence float64 // bearing-histogram concentration, 0..1
}

// Candidate is a generated, not-yet-accepted estimate of a missing tree's
// planar position. Candidates are transient within one pipeline run.
type Candidate struct {
	X, Y  float64
	Score float64
	// GapA and GapB identify the tree pair (indices into the filtered,
	// projected set) whose gap produced this candidate.
	GapA, GapB int
}

// Result is the outcome of one detection run.
type Result struct {
	Locations        []geo.LatLon `json:"locations"`
	ExpectedSpacingM float64      `json:"expected_spacing_m"`
	HealthyTreeCount int          `json:"healthy_tree_count"`
	CandidateCount   int          `json:"candidate_count"` // validated candidates before the count limit
	RowAligned       bool         `json:"row_aligned"`
}
