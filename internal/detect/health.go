package detect

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// SurveyStatistics carries the provider's survey-level canopy and health
// statistics. When present they take precedence over locally computed ones so
// the filter matches the survey's own quality flags.
type SurveyStatistics struct {
	MeanCanopyArea   float64
	StddevCanopyArea float64
	MeanHealthIndex  float64
	StddevHealth     float64
}

// FilterHealthy removes statistical outliers from the observation set: trees
// whose canopy area or health index falls more than sigma standard deviations
// BELOW the respective mean. A dying tree's abnormal size would otherwise
// corrupt the spacing statistics. Trees above the mean are never excluded.
//
// The statistics are recomputed and the filter reapplied until the set is
// stable, so the result is a fixed point: re-running FilterHealthy on its
// own output changes nothing. Callers holding survey-level statistics should
// prefer FilterHealthyWithStats, which pins the floors to those instead.
//
// A zero standard deviation on either signal disables that signal's
// exclusion, so degenerate (uniform) datasets pass through untouched.
func FilterHealthy(obs []TreeObservation, sigma float64) ([]TreeObservation, error) {
	if len(obs) == 0 {
		return nil, fmt.Errorf("%w: no observations", ErrInsufficientData)
	}

	healthy := obs
	for {
		filtered, err := FilterHealthyWithStats(healthy, LocalStatistics(healthy), sigma)
		if err != nil {
			return nil, err
		}
		if len(filtered) == len(healthy) {
			return filtered, nil
		}
		healthy = filtered
	}
}

// LocalStatistics computes canopy and health statistics over the observation
// set itself, for callers without a survey-level summary.
func LocalStatistics(obs []TreeObservation) SurveyStatistics {
	areas := make([]float64, len(obs))
	health := make([]float64, len(obs))
	for i, o := range obs {
		areas[i] = o.CanopyArea
		health[i] = o.HealthIndex
	}

	meanArea, stdArea := stat.MeanStdDev(areas, nil)
	meanHealth, stdHealth := stat.MeanStdDev(health, nil)

	return SurveyStatistics{
		MeanCanopyArea:   meanArea,
		StddevCanopyArea: stdArea,
		MeanHealthIndex:  meanHealth,
		StddevHealth:     stdHealth,
	}
}

// FilterHealthyWithStats applies the sigma filter against externally supplied
// survey statistics. Using fixed statistics makes the filter idempotent:
// re-running it on its own output changes nothing.
func FilterHealthyWithStats(obs []TreeObservation, stats SurveyStatistics, sigma float64) ([]TreeObservation, error) {
	if len(obs) == 0 {
		return nil, fmt.Errorf("%w: no observations", ErrInsufficientData)
	}

	areaFloor := stats.MeanCanopyArea - sigma*stats.StddevCanopyArea
	healthFloor := stats.MeanHealthIndex - sigma*stats.StddevHealth

	healthy := make([]TreeObservation, 0, len(obs))
	for _, o := range obs {
		if stats.StddevCanopyArea > 0 && o.CanopyArea < areaFloor {
			continue
		}
		if stats.StddevHealth > 0 && o.HealthIndex < healthFloor {
			continue
		}
		healthy = append(healthy, o)
	}

	if len(healthy) == 0 {
		return nil, fmt.Errorf("%w: all %d observations filtered as unhealthy", ErrInsufficientData, len(obs))
	}
	return healthy, nil
}
