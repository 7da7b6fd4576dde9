package detect

import (
	"math"
	"testing"

	"github.com/grove-data/canopy.report/internal/geo"
)

func TestFindGapsInBrokenLine(t *testing.T) {
	// Trees along a line with a 20m hole between indices 1 and 2. Longer
	// bracketing pairs are dropped because intermediate trees sit on their
	// segments.
	pts := []geo.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 30, Y: 0}, {X: 40, Y: 0}}
	ix := NewIndex(pts, 0)

	gaps := FindGaps(ix, 15, 5)
	if len(gaps) != 1 {
		t.Fatalf("got %d gaps, want 1: %+v", len(gaps), gaps)
	}
	g := gaps[0]
	if g.I != 1 || g.J != 2 || math.Abs(g.Dist-20) > 1e-9 {
		t.Errorf("got gap %+v, want pair (1,2) at 20m", g)
	}
}

func TestFindGapsNoGapsInTightLine(t *testing.T) {
	pts := []geo.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 20, Y: 0}}
	ix := NewIndex(pts, 0)

	if gaps := FindGaps(ix, 15, 5); len(gaps) != 0 {
		t.Errorf("got %d gaps, want none: %+v", len(gaps), gaps)
	}
}

func TestFindGapsZeroClearanceKeepsBracketingPairs(t *testing.T) {
	pts := []geo.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 30, Y: 0}, {X: 40, Y: 0}}
	ix := NewIndex(pts, 0)

	gaps := FindGaps(ix, 15, 0)
	if len(gaps) != 4 {
		t.Errorf("got %d gaps, want 4 (clearance disabled)", len(gaps))
	}
}

func TestGenerateCandidatesInterpolation(t *testing.T) {
	model := SpacingModel{Spacing: 10}
	cases := []struct {
		name string
		a, b geo.Point
		want []geo.Point
	}{
		{
			name: "single missing tree",
			a:    geo.Point{X: 0, Y: 0}, b: geo.Point{X: 20, Y: 0},
			want: []geo.Point{{X: 10, Y: 0}},
		},
		{
			name: "two missing trees",
			a:    geo.Point{X: 0, Y: 0}, b: geo.Point{X: 30, Y: 0},
			want: []geo.Point{{X: 10, Y: 0}, {X: 20, Y: 0}},
		},
		{
			name: "four missing trees",
			a:    geo.Point{X: 0, Y: 0}, b: geo.Point{X: 50, Y: 0},
			want: []geo.Point{{X: 10, Y: 0}, {X: 20, Y: 0}, {X: 30, Y: 0}, {X: 40, Y: 0}},
		},
		{
			name: "diagonal gap",
			a:    geo.Point{X: 0, Y: 0}, b: geo.Point{X: 20, Y: 20},
			want: []geo.Point{{X: 20.0 / 3, Y: 20.0 / 3}, {X: 40.0 / 3, Y: 40.0 / 3}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pts := []geo.Point{tc.a, tc.b}
			dist := math.Hypot(tc.b.X-tc.a.X, tc.b.Y-tc.a.Y)
			got := GenerateCandidates(pts, []Gap{{I: 0, J: 1, Dist: dist}}, model)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d candidates, want %d", len(got), len(tc.want))
			}
			for i, w := range tc.want {
				if math.Abs(got[i].X-w.X) > 1e-9 || math.Abs(got[i].Y-w.Y) > 1e-9 {
					t.Errorf("candidate %d at (%v, %v), want (%v, %v)", i, got[i].X, got[i].Y, w.X, w.Y)
				}
			}
		})
	}
}

func TestGenerateCandidatesGapTooNarrow(t *testing.T) {
	// 14m rounds to a single interval, so no tree fits inside.
	pts := []geo.Point{{X: 0, Y: 0}, {X: 14, Y: 0}}
	got := GenerateCandidates(pts, []Gap{{I: 0, J: 1, Dist: 14}}, SpacingModel{Spacing: 10})
	if len(got) != 0 {
		t.Errorf("got %d candidates, want none", len(got))
	}
}

func TestGenerateCandidatesUsesRowSpacingAlongRows(t *testing.T) {
	model := SpacingModel{
		Spacing:    10,
		RowAligned: true,
		RowAngle:   0,
		RowSpacing: 5,
		ColSpacing: 10,
	}
	pts := []geo.Point{{X: 0, Y: 0}, {X: 20, Y: 0}}

	got := GenerateCandidates(pts, []Gap{{I: 0, J: 1, Dist: 20}}, model)
	if len(got) != 3 {
		t.Fatalf("got %d candidates, want 3 with 5m row spacing", len(got))
	}
}

func TestGenerateCandidatesSkipsSkewedGapsWhenRowAligned(t *testing.T) {
	// A gap running well off both planting axes is a pairing artifact, not a
	// plantable position.
	model := SpacingModel{
		Spacing:    10,
		RowAligned: true,
		RowAngle:   0,
		RowSpacing: 10,
		ColSpacing: 10,
	}
	pts := []geo.Point{{X: 0, Y: 0}, {X: 20, Y: 10}}
	dist := math.Hypot(20, 10)

	got := GenerateCandidates(pts, []Gap{{I: 0, J: 1, Dist: dist}}, model)
	if len(got) != 0 {
		t.Errorf("got %d candidates from a skewed gap, want none", len(got))
	}
}

func TestGenerateCandidatesDeduplicatesOverlappingGaps(t *testing.T) {
	// Both vertical and horizontal pairs interpolate the same hole center.
	pts := []geo.Point{
		{X: 0, Y: 10}, {X: 20, Y: 10}, // horizontal pair
		{X: 10, Y: 0}, {X: 10, Y: 20}, // vertical pair
	}
	gaps := []Gap{
		{I: 0, J: 1, Dist: 20},
		{I: 2, J: 3, Dist: 20},
	}

	got := GenerateCandidates(pts, gaps, SpacingModel{Spacing: 10})
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1 after dedup", len(got))
	}
	if math.Abs(got[0].X-10) > 1e-9 || math.Abs(got[0].Y-10) > 1e-9 {
		t.Errorf("candidate at (%v, %v), want (10, 10)", got[0].X, got[0].Y)
	}
}

func TestAngularDeviation(t *testing.T) {
	cases := []struct {
		a, b, want float64
	}{
		{0, 0, 0},
		{0, math.Pi / 4, math.Pi / 4},
		{0.1, math.Pi - 0.1, 0.2}, // wraps at pi
		{math.Pi / 2, 0, math.Pi / 2},
	}
	for _, tc := range cases {
		if got := angularDeviation(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("angularDeviation(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
