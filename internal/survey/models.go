// Package survey fetches orchard survey data from the upstream farming API:
// survey lookup per orchard, survey-level statistics, and per-tree records.
package survey

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grove-data/canopy.report/internal/detect"
	"github.com/grove-data/canopy.report/internal/geo"
)

// Survey is one aerial survey of an orchard. Polygon holds the orchard
// boundary as space-separated "lon,lat" pairs, the provider's wire format.
type Survey struct {
	ID        int64   `json:"id"`
	OrchardID int64   `json:"orchard_id"`
	Date      string  `json:"date"`
	Hectares  float64 `json:"hectares"`
	Polygon   string  `json:"polygon"`
}

// TreeRecord is one surveyed tree as reported by the provider.
type TreeRecord struct {
	ID       int64    `json:"id"`
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Area     float64  `json:"area"`
	NDRE     float64  `json:"ndre"`
	NDVI     *float64 `json:"ndvi,omitempty"`
	Volume   *float64 `json:"volume,omitempty"`
	SurveyID int64    `json:"survey_id"`
}

// Observation converts the provider record into the detection pipeline's
// input type.
func (r TreeRecord) Observation() detect.TreeObservation {
	return detect.TreeObservation{
		ID:          r.ID,
		Lat:         r.Lat,
		Lon:         r.Lng,
		CanopyArea:  r.Area,
		HealthIndex: r.NDRE,
	}
}

// Observations converts a record slice wholesale.
func Observations(records []TreeRecord) []detect.TreeObservation {
	obs := make([]detect.TreeObservation, len(records))
	for i, r := range records {
		obs[i] = r.Observation()
	}
	return obs
}

// Stats carries the provider's survey-level summary, including the
// missing-tree count that bounds each detection run.
type Stats struct {
	SurveyID         int64   `json:"survey_id"`
	TreeCount        int     `json:"tree_count"`
	MissingTreeCount int     `json:"missing_tree_count"`
	AverageAreaM2    float64 `json:"average_area_m2"`
	StddevAreaM2     float64 `json:"stddev_area_m2"`
	AverageNDRE      float64 `json:"average_ndre"`
	StddevNDRE       float64 `json:"stddev_ndre"`
}

// SurveyStatistics maps the provider summary onto the health filter's
// statistics input.
func (s Stats) SurveyStatistics() detect.SurveyStatistics {
	return detect.SurveyStatistics{
		MeanCanopyArea:   s.AverageAreaM2,
		StddevCanopyArea: s.StddevAreaM2,
		MeanHealthIndex:  s.AverageNDRE,
		StddevHealth:     s.StddevNDRE,
	}
}

// ParsePolygon decodes the provider's boundary string, space-separated
// "lon,lat" pairs, into geographic vertices.
func ParsePolygon(polygon string) ([]geo.LatLon, error) {
	fields := strings.Fields(polygon)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty polygon string")
	}
	ring := make([]geo.LatLon, 0, len(fields))
	for _, pair := range fields {
		lonStr, latStr, ok := strings.Cut(pair, ",")
		if !ok {
			return nil, fmt.Errorf("malformed polygon pair %q", pair)
		}
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			return nil, fmt.Errorf("polygon longitude %q: %w", lonStr, err)
		}
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return nil, fmt.Errorf("polygon latitude %q: %w", latStr, err)
		}
		ring = append(ring, geo.LatLon{Lat: lat, Lon: lon})
	}
	return ring, nil
}
