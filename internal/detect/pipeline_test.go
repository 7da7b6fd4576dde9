package detect

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/grove-data/canopy.report/internal/geo"
)

const (
	fixtureLat  = -32.328
	fixtureLon  = 18.826
	fixtureStep = 0.0001 // roughly 11m of latitude, 9.4m of longitude
)

// orchardGrid builds a rows x cols survey grid in geographic coordinates,
// omitting the given (row, col) positions. Canopy and health values are
// uniform unless the caller tweaks them afterwards.
func orchardGrid(rows, cols int, holes map[[2]int]bool) []TreeObservation {
	var obs []TreeObservation
	id := int64(0)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			id++
			if holes[[2]int{r, c}] {
				continue
			}
			obs = append(obs, TreeObservation{
				ID:          id,
				Lat:         fixtureLat + float64(r)*fixtureStep,
				Lon:         fixtureLon + float64(c)*fixtureStep,
				CanopyArea:  20.0,
				HealthIndex: 0.55,
			})
		}
	}
	return obs
}

func orchardBoundary() []geo.LatLon {
	return []geo.LatLon{
		{Lat: -32.3285, Lon: 18.8255},
		{Lat: -32.3285, Lon: 18.8270},
		{Lat: -32.3275, Lon: 18.8270},
		{Lat: -32.3275, Lon: 18.8255},
	}
}

func gridPosition(r, c int) geo.LatLon {
	return geo.LatLon{
		Lat: fixtureLat + float64(r)*fixtureStep,
		Lon: fixtureLon + float64(c)*fixtureStep,
	}
}

// withinDegrees reports whether two geographic positions agree within tol
// degrees on both axes.
func withinDegrees(a, b geo.LatLon, tol float64) bool {
	return math.Abs(a.Lat-b.Lat) <= tol && math.Abs(a.Lon-b.Lon) <= tol
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(DefaultParams())
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	return d
}

func TestDetectFindsMissingTreeInGrid(t *testing.T) {
	d := newTestDetector(t)
	obs := orchardGrid(5, 5, map[[2]int]bool{{2, 2}: true})

	res, err := d.Detect(obs, orchardBoundary(), 1)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(res.Locations) != 1 {
		t.Fatalf("got %d locations, want 1: %+v", len(res.Locations), res.Locations)
	}
	// Within ~2m of the empty grid position.
	if want := gridPosition(2, 2); !withinDegrees(res.Locations[0], want, 2e-5) {
		t.Errorf("location %+v too far from hole at %+v", res.Locations[0], want)
	}
	if res.HealthyTreeCount != 24 {
		t.Errorf("healthy count %d, want 24", res.HealthyTreeCount)
	}
	if !res.RowAligned {
		t.Error("grid orchard not reported as row aligned")
	}
	if res.ExpectedSpacingM < 8 || res.ExpectedSpacingM > 12 {
		t.Errorf("expected spacing %v out of plausible range", res.ExpectedSpacingM)
	}
}

func TestDetectCompleteGridYieldsNothing(t *testing.T) {
	d := newTestDetector(t)
	obs := orchardGrid(5, 5, nil)

	// Even with a claimed missing count, an intact grid offers no valid
	// positions.
	res, err := d.Detect(obs, orchardBoundary(), 2)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(res.Locations) != 0 {
		t.Errorf("got %d locations in a complete grid: %+v", len(res.Locations), res.Locations)
	}
}

func TestDetectMultipleMissingTrees(t *testing.T) {
	d := newTestDetector(t)
	holes := map[[2]int]bool{{1, 1}: true, {3, 3}: true}
	obs := orchardGrid(5, 5, holes)

	res, err := d.Detect(obs, orchardBoundary(), 2)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(res.Locations) != 2 {
		t.Fatalf("got %d locations, want 2: %+v", len(res.Locations), res.Locations)
	}
	for pos := range holes {
		want := gridPosition(pos[0], pos[1])
		found := false
		for _, loc := range res.Locations {
			if withinDegrees(loc, want, 2e-5) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("no location near hole at %+v: %+v", want, res.Locations)
		}
	}
}

func TestDetectRespectsMissingCountLimit(t *testing.T) {
	d := newTestDetector(t)
	obs := orchardGrid(5, 5, map[[2]int]bool{{1, 1}: true, {3, 3}: true})

	res, err := d.Detect(obs, orchardBoundary(), 1)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(res.Locations) != 1 {
		t.Fatalf("got %d locations, want 1", len(res.Locations))
	}
	if res.CandidateCount != 2 {
		t.Errorf("candidate count %d, want 2 before the limit", res.CandidateCount)
	}
}

func TestDetectZeroMissingCountShortCircuits(t *testing.T) {
	d := newTestDetector(t)
	obs := orchardGrid(5, 5, map[[2]int]bool{{2, 2}: true})

	res, err := d.Detect(obs, orchardBoundary(), 0)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(res.Locations) != 0 {
		t.Errorf("got %d locations with zero missing count", len(res.Locations))
	}
}

func TestDetectTreatsUnhealthyTreeAsMissing(t *testing.T) {
	// The tree at the center exists but is dying: tiny canopy, low health
	// index. The sigma filter removes it and detection reports the position.
	d := newTestDetector(t)
	obs := orchardGrid(5, 5, nil)
	for i := range obs {
		if obs[i].ID == 13 { // row 2, col 2
			obs[i].CanopyArea = 0.5
			obs[i].HealthIndex = 0.1
		}
	}

	res, err := d.Detect(obs, orchardBoundary(), 1)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if res.HealthyTreeCount != 24 {
		t.Fatalf("healthy count %d, want 24 after filtering", res.HealthyTreeCount)
	}
	if len(res.Locations) != 1 {
		t.Fatalf("got %d locations, want 1", len(res.Locations))
	}
	if want := gridPosition(2, 2); !withinDegrees(res.Locations[0], want, 2e-5) {
		t.Errorf("location %+v too far from the dying tree at %+v", res.Locations[0], want)
	}
}

func TestDetectWithStatsPinsFilterFloors(t *testing.T) {
	// A complete grid with one mildly undersized tree. Survey-level
	// statistics with a wide spread keep the tree and report the grid as
	// intact; statistics computed from the observations alone exclude it
	// and detection flags its position instead.
	d := newTestDetector(t)
	obs := orchardGrid(5, 5, nil)
	for i := range obs {
		if obs[i].ID == 13 { // row 2, col 2
			obs[i].CanopyArea = 15.0
		}
	}

	stats := &SurveyStatistics{
		MeanCanopyArea:   20.0,
		StddevCanopyArea: 5.0,
		MeanHealthIndex:  0.55,
		StddevHealth:     0.05,
	}
	pinned, err := d.DetectWithStats(obs, orchardBoundary(), 1, stats)
	if err != nil {
		t.Fatalf("DetectWithStats: %v", err)
	}
	if pinned.HealthyTreeCount != 25 {
		t.Errorf("healthy count %d with survey statistics, want 25", pinned.HealthyTreeCount)
	}
	if len(pinned.Locations) != 0 {
		t.Errorf("got %d locations with survey statistics: %+v", len(pinned.Locations), pinned.Locations)
	}

	local, err := d.Detect(obs, orchardBoundary(), 1)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if local.HealthyTreeCount != 24 {
		t.Errorf("healthy count %d with local statistics, want 24", local.HealthyTreeCount)
	}
	if len(local.Locations) != 1 {
		t.Fatalf("got %d locations with local statistics, want 1", len(local.Locations))
	}
}

func TestDetectInsufficientData(t *testing.T) {
	d := newTestDetector(t)

	cases := []struct {
		name     string
		obs      []TreeObservation
		boundary []geo.LatLon
	}{
		{"no observations", nil, orchardBoundary()},
		{"two trees", orchardGrid(1, 2, nil), orchardBoundary()},
		{"degenerate boundary", orchardGrid(5, 5, nil), orchardBoundary()[:2]},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Detect(tc.obs, tc.boundary, 1)
			if !errors.Is(err, ErrInsufficientData) {
				t.Errorf("got %v, want ErrInsufficientData", err)
			}
		})
	}
}

func TestDetectResultSeparation(t *testing.T) {
	d := newTestDetector(t)
	obs := orchardGrid(5, 5, map[[2]int]bool{{1, 1}: true, {1, 3}: true, {3, 2}: true})

	res, err := d.Detect(obs, orchardBoundary(), 3)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	minSepDeg := 0.5 * res.ExpectedSpacingM / 111320 // conservative lower bound
	for i := range res.Locations {
		for j := i + 1; j < len(res.Locations); j++ {
			dLat := res.Locations[i].Lat - res.Locations[j].Lat
			dLon := res.Locations[i].Lon - res.Locations[j].Lon
			if math.Hypot(dLat, dLon) < minSepDeg {
				t.Errorf("locations %d and %d closer than minimum separation", i, j)
			}
		}
	}
}

func TestDetectLocationsInsideBoundary(t *testing.T) {
	d := newTestDetector(t)
	obs := orchardGrid(5, 5, map[[2]int]bool{{2, 2}: true})
	boundary := orchardBoundary()

	res, err := d.Detect(obs, boundary, 1)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	for _, loc := range res.Locations {
		if loc.Lat < -32.3285 || loc.Lat > -32.3275 || loc.Lon < 18.8255 || loc.Lon > 18.8270 {
			t.Errorf("location %+v outside the orchard boundary", loc)
		}
	}
}

func TestDetectDeterministic(t *testing.T) {
	d := newTestDetector(t)
	obs := orchardGrid(5, 5, map[[2]int]bool{{1, 1}: true, {3, 3}: true})

	a, err := d.Detect(obs, orchardBoundary(), 2)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	b, err := d.Detect(obs, orchardBoundary(), 2)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("runs differ (-first +second):\n%s", diff)
	}
}

func TestNewDetectorRejectsBadParams(t *testing.T) {
	params := DefaultParams()
	params.SigmaMultiplier = -1
	if _, err := NewDetector(params); !errors.Is(err, ErrConfig) {
		t.Errorf("got %v, want ErrConfig", err)
	}

	params = DefaultParams()
	params.WeightSpacing = 0.9 // weights no longer sum to 1
	if _, err := NewDetector(params); !errors.Is(err, ErrConfig) {
		t.Errorf("got %v, want ErrConfig", err)
	}
}
