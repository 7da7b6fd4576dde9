package geo

import (
	"errors"
	"math"
	"testing"
)

// planarDistance approximates the ground error of a round trip in meters by
// projecting both coordinates through the same frame.
func planarDistance(t *testing.T, p *Projector, a, b LatLon) float64 {
	t.Helper()
	pa, err := p.ToPlanar(a)
	if err != nil {
		t.Fatalf("ToPlanar(%v): %v", a, err)
	}
	pb, err := p.ToPlanar(b)
	if err != nil {
		t.Fatalf("ToPlanar(%v): %v", b, err)
	}
	return math.Hypot(pa.X-pb.X, pa.Y-pb.Y)
}

func TestProjectorRoundTrip(t *testing.T) {
	// Mix of hemispheres, including points a couple of degrees off the
	// central meridian of their zone.
	coords := []LatLon{
		{Lat: -32.328023, Lon: 18.826754}, // Western Cape orchard country
		{Lat: -32.327970, Lon: 18.826769},
		{Lat: 38.5025, Lon: -122.2654}, // Napa
		{Lat: 45.0001, Lon: 7.99},
		{Lat: -41.28, Lon: 174.77},
		{Lat: 0.0005, Lon: 36.1},
	}

	for _, c := range coords {
		p, err := NewProjector(c)
		if err != nil {
			t.Fatalf("NewProjector(%v): %v", c, err)
		}
		pl, err := p.ToPlanar(c)
		if err != nil {
			t.Fatalf("ToPlanar(%v): %v", c, err)
		}
		back := p.ToGeographic(pl)
		if d := planarDistance(t, p, c, back); d > 0.01 {
			t.Errorf("round trip error for %v: %.6f m", c, d)
		}
	}
}

func TestProjectorLocalDistances(t *testing.T) {
	// Two points ~100m apart along a meridian should project ~100m apart.
	a := LatLon{Lat: -32.3280, Lon: 18.8267}
	b := LatLon{Lat: a.Lat + 100.0/111320.0, Lon: a.Lon}

	p, err := NewProjector(a)
	if err != nil {
		t.Fatal(err)
	}
	d := planarDistance(t, p, a, b)
	if math.Abs(d-100) > 0.5 {
		t.Errorf("planar distance = %.3f m, want ≈100 m", d)
	}
}

func TestUTMZone(t *testing.T) {
	cases := []struct {
		lon  float64
		zone int
	}{
		{-177, 1},
		{18.8267, 34},
		{-122.2654, 10},
		{174.77, 60},
		{0, 31},
	}
	for _, c := range cases {
		if got := UTMZone(c.lon); got != c.zone {
			t.Errorf("UTMZone(%v) = %d, want %d", c.lon, got, c.zone)
		}
	}
}

func TestProjectorHemisphere(t *testing.T) {
	south, err := NewProjector(LatLon{Lat: -32.3, Lon: 18.8})
	if err != nil {
		t.Fatal(err)
	}
	if south.Northern() {
		t.Error("expected southern frame for negative latitude")
	}
	pl, err := south.ToPlanar(LatLon{Lat: -32.3, Lon: 18.8})
	if err != nil {
		t.Fatal(err)
	}
	if pl.Y < 0 || pl.Y > falseNorthingS {
		t.Errorf("southern northing out of range: %v", pl.Y)
	}

	north, err := NewProjector(LatLon{Lat: 38.5, Lon: -122.3})
	if err != nil {
		t.Fatal(err)
	}
	if !north.Northern() {
		t.Error("expected northern frame for positive latitude")
	}
}

func TestProjectorInvalidAnchor(t *testing.T) {
	cases := []LatLon{
		{Lat: 89, Lon: 10},
		{Lat: -85, Lon: 10},
		{Lat: math.NaN(), Lon: 10},
		{Lat: 10, Lon: 200},
	}
	for _, c := range cases {
		if _, err := NewProjector(c); !errors.Is(err, ErrProjection) {
			t.Errorf("NewProjector(%v): expected ErrProjection, got %v", c, err)
		}
	}
}

func TestProjectRing(t *testing.T) {
	ring := []LatLon{
		{Lat: -32.3280, Lon: 18.8260},
		{Lat: -32.3280, Lon: 18.8280},
		{Lat: -32.3260, Lon: 18.8280},
		{Lat: -32.3260, Lon: 18.8260},
	}
	p, err := NewProjector(ring[0])
	if err != nil {
		t.Fatal(err)
	}
	pg, err := p.ProjectRing(ring)
	if err != nil {
		t.Fatal(err)
	}
	if len(pg) != len(ring) {
		t.Fatalf("projected ring has %d vertices, want %d", len(pg), len(ring))
	}
	// Interior point must be inside the projected ring.
	center, err := p.ToPlanar(LatLon{Lat: -32.3270, Lon: 18.8270})
	if err != nil {
		t.Fatal(err)
	}
	if !pg.Contains(center) {
		t.Error("expected ring to contain its center")
	}
}
