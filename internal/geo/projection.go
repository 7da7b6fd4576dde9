// Package geo converts WGS84 geographic coordinates to a locally accurate
// planar frame (meters) and back, and provides planar polygon operations for
// orchard boundaries.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// ErrProjection indicates that a coordinate reference frame could not be
// resolved for the requested location.
var ErrProjection = errors.New("projection frame cannot be resolved")

// WGS84 ellipsoid constants.
const (
	semiMajorAxis = 6378137.0
	flattening    = 1.0 / 298.257223563

	scaleFactor    = 0.9996
	falseEasting   = 500000.0
	falseNorthingS = 10000000.0

	// UTM is defined between 84°N and 80°S.
	maxLatitude = 84.0
	minLatitude = -80.0
)

// LatLon is a geographic coordinate in degrees (WGS84).
type LatLon struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Point is a planar coordinate in meters within a Projector's frame.
type Point struct {
	X, Y float64
}

// Projector maps geographic coordinates into a single UTM zone chosen once per
// orchard. All points of one detection run must go through the same Projector
// so that planar distances are comparable.
type Projector struct {
	zone     int
	northern bool
	lon0     float64 // central meridian, radians

	// Krüger series terms derived from the third flattening.
	a     [3]float64 // forward
	b     [3]float64 // inverse
	d     [3]float64 // rectifying → geographic latitude
	radiA float64    // rectifying radius scaled by k0
	e2n   float64    // 2*sqrt(n)/(1+n), used for the conformal latitude
}

// UTMZone returns the UTM zone number (1-60) covering the given longitude.
func UTMZone(lon float64) int {
	zone := int(math.Floor((lon+180)/6)) + 1
	if zone < 1 {
		zone = 1
	}
	if zone > 60 {
		zone = 60
	}
	return zone
}

// NewProjector resolves the UTM frame containing the anchor coordinate,
// typically the first tree of the orchard. The same frame is reused for every
// point of the run so the projection stays locally distance-preserving.
func NewProjector(anchor LatLon) (*Projector, error) {
	if math.IsNaN(anchor.Lat) || math.IsNaN(anchor.Lon) {
		return nil, fmt.Errorf("%w: anchor coordinate is NaN", ErrProjection)
	}
	if anchor.Lat > maxLatitude || anchor.Lat < minLatitude {
		return nil, fmt.Errorf("%w: latitude %.4f outside UTM range [%v, %v]",
			ErrProjection, anchor.Lat, minLatitude, maxLatitude)
	}
	if anchor.Lon < -180 || anchor.Lon > 180 {
		return nil, fmt.Errorf("%w: longitude %.4f outside [-180, 180]", ErrProjection, anchor.Lon)
	}

	zone := UTMZone(anchor.Lon)
	p := &Projector{
		zone:     zone,
		northern: anchor.Lat >= 0,
		lon0:     degToRad(float64((zone-1)*6 - 180 + 3)),
	}

	n := flattening / (2 - flattening)
	n2, n3 := n*n, n*n*n

	p.radiA = scaleFactor * semiMajorAxis / (1 + n) * (1 + n2/4 + n2*n2/64)
	p.e2n = 2 * math.Sqrt(n) / (1 + n)

	p.a[0] = n/2 - 2*n2/3 + 5*n3/16
	p.a[1] = 13*n2/48 - 3*n3/5
	p.a[2] = 61 * n3 / 240

	p.b[0] = n/2 - 2*n2/3 + 37*n3/96
	p.b[1] = n2/48 + n3/15
	p.b[2] = 17 * n3 / 480

	p.d[0] = 2*n - 2*n2/3 - 2*n3
	p.d[1] = 7*n2/3 - 8*n3/5
	p.d[2] = 56 * n3 / 15

	return p, nil
}

// Zone returns the resolved UTM zone number.
func (p *Projector) Zone() int { return p.zone }

// Northern reports whether the frame uses the northern-hemisphere false northing.
func (p *Projector) Northern() bool { return p.northern }

// ToPlanar projects a geographic coordinate into the planar frame (meters).
func (p *Projector) ToPlanar(g LatLon) (Point, error) {
	if g.Lat > maxLatitude || g.Lat < minLatitude {
		return Point{}, fmt.Errorf("%w: latitude %.4f outside UTM range", ErrProjection, g.Lat)
	}

	phi := degToRad(g.Lat)
	lam := degToRad(g.Lon) - p.lon0

	// Conformal latitude via the Gauss-Schreiber transform.
	sinPhi := math.Sin(phi)
	t := math.Sinh(math.Atanh(sinPhi) - p.e2n*math.Atanh(p.e2n*sinPhi))

	xiP := math.Atan2(t, math.Cos(lam))
	etaP := math.Atanh(math.Sin(lam) / math.Sqrt(1+t*t))

	xi, eta := xiP, etaP
	for j := 0; j < 3; j++ {
		k := float64(2 * (j + 1))
		xi += p.a[j] * math.Sin(k*xiP) * math.Cosh(k*etaP)
		eta += p.a[j] * math.Cos(k*xiP) * math.Sinh(k*etaP)
	}

	x := falseEasting + p.radiA*eta
	y := p.radiA * xi
	if !p.northern {
		y += falseNorthingS
	}
	return Point{X: x, Y: y}, nil
}

// ToGeographic maps a planar point back to latitude/longitude degrees.
// For any point produced by ToPlanar the round trip is accurate to well under
// a centimeter.
func (p *Projector) ToGeographic(pt Point) LatLon {
	y := pt.Y
	if !p.northern {
		y -= falseNorthingS
	}
	xi := y / p.radiA
	eta := (pt.X - falseEasting) / p.radiA

	xiP, etaP := xi, eta
	for j := 0; j < 3; j++ {
		k := float64(2 * (j + 1))
		xiP -= p.b[j] * math.Sin(k*xi) * math.Cosh(k*eta)
		etaP -= p.b[j] * math.Cos(k*xi) * math.Sinh(k*eta)
	}

	chi := math.Asin(math.Sin(xiP) / math.Cosh(etaP))
	phi := chi
	for j := 0; j < 3; j++ {
		k := float64(2 * (j + 1))
		phi += p.d[j] * math.Sin(k*chi)
	}

	lam := math.Atan2(math.Sinh(etaP), math.Cos(xiP))
	return LatLon{Lat: radToDeg(phi), Lon: radToDeg(p.lon0 + lam)}
}

// ProjectRing projects a closed sequence of geographic vertices into the
// planar frame, preserving order.
func (p *Projector) ProjectRing(ring []LatLon) (Polygon, error) {
	out := make(Polygon, len(ring))
	for i, g := range ring {
		pt, err := p.ToPlanar(g)
		if err != nil {
			return nil, fmt.Errorf("ring vertex %d: %w", i, err)
		}
		out[i] = pt
	}
	return out, nil
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }
func radToDeg(r float64) float64 { return r * 180 / math.Pi }
