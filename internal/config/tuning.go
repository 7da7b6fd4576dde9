// Package config loads the service's tuning configuration: detection
// parameters plus provider connection settings. Fields are pointers so a
// partial JSON file overrides only what it names; the Get* methods supply
// defaults for the rest.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/grove-data/canopy.report/internal/detect"
	"github.com/grove-data/canopy.report/internal/survey"
)

// TuningConfig is the root configuration. The schema matches the
// /api/config endpoint so the same JSON describes startup state and the
// running service.
type TuningConfig struct {
	// Detection params
	SigmaMultiplier        *float64 `json:"sigma_multiplier,omitempty"`
	GapThresholdMultiplier *float64 `json:"gap_threshold_multiplier,omitempty"`
	UseRowDetection        *bool    `json:"use_row_detection,omitempty"`
	RowConfidenceThreshold *float64 `json:"row_confidence_threshold,omitempty"`
	MinCandidateScore      *float64 `json:"min_candidate_score,omitempty"`
	MinSeparationRatio     *float64 `json:"min_separation_ratio,omitempty"`
	BoundaryBufferRatio    *float64 `json:"boundary_buffer_ratio,omitempty"`
	DensityRadiusRatio     *float64 `json:"density_radius_ratio,omitempty"`

	// Score weights; must sum to 1 when overridden.
	WeightSpacing      *float64 `json:"weight_spacing,omitempty"`
	WeightDensity      *float64 `json:"weight_density,omitempty"`
	WeightBoundary     *float64 `json:"weight_boundary,omitempty"`
	WeightRowAlignment *float64 `json:"weight_row_alignment,omitempty"`

	// Provider params
	ProviderBaseURL  *string `json:"provider_base_url,omitempty"`
	ProviderTimeout  *string `json:"provider_timeout,omitempty"` // duration string like "30s"
	RetryMaxAttempts *int    `json:"retry_max_attempts,omitempty"`
	RetryMinWait     *string `json:"retry_min_wait,omitempty"`
	RetryMaxWait     *string `json:"retry_max_wait,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with every field unset, so the
// Get* methods fall back to defaults throughout.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Fields omitted from
// the file retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration. Detection values are validated through
// the pipeline's own parameter validation; provider durations must parse.
func (c *TuningConfig) Validate() error {
	if err := c.ToParams().Validate(); err != nil {
		return err
	}

	for name, v := range map[string]*string{
		"provider_timeout": c.ProviderTimeout,
		"retry_min_wait":   c.RetryMinWait,
		"retry_max_wait":   c.RetryMaxWait,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, *v, err)
			}
		}
	}

	if c.RetryMaxAttempts != nil && *c.RetryMaxAttempts < 1 {
		return fmt.Errorf("retry_max_attempts must be at least 1, got %d", *c.RetryMaxAttempts)
	}
	return nil
}

// ToParams snapshots the detection values into an immutable parameter set for
// one pipeline run.
func (c *TuningConfig) ToParams() detect.Params {
	p := detect.DefaultParams()
	if c.SigmaMultiplier != nil {
		p.SigmaMultiplier = *c.SigmaMultiplier
	}
	if c.GapThresholdMultiplier != nil {
		p.GapThresholdMultiplier = *c.GapThresholdMultiplier
	}
	if c.UseRowDetection != nil {
		p.UseRowDetection = *c.UseRowDetection
	}
	if c.RowConfidenceThreshold != nil {
		p.RowConfidenceThreshold = *c.RowConfidenceThreshold
	}
	if c.MinCandidateScore != nil {
		p.MinCandidateScore = *c.MinCandidateScore
	}
	if c.MinSeparationRatio != nil {
		p.MinSeparationRatio = *c.MinSeparationRatio
	}
	if c.BoundaryBufferRatio != nil {
		p.BoundaryBufferRatio = *c.BoundaryBufferRatio
	}
	if c.DensityRadiusRatio != nil {
		p.DensityRadiusRatio = *c.DensityRadiusRatio
	}
	if c.WeightSpacing != nil {
		p.WeightSpacing = *c.WeightSpacing
	}
	if c.WeightDensity != nil {
		p.WeightDensity = *c.WeightDensity
	}
	if c.WeightBoundary != nil {
		p.WeightBoundary = *c.WeightBoundary
	}
	if c.WeightRowAlignment != nil {
		p.WeightRowAlignment = *c.WeightRowAlignment
	}
	return p
}

// GetProviderBaseURL returns the provider base URL, or the production
// endpoint when unset.
func (c *TuningConfig) GetProviderBaseURL() string {
	if c.ProviderBaseURL == nil || *c.ProviderBaseURL == "" {
		return "https://api.aerobotics.com"
	}
	return *c.ProviderBaseURL
}

// GetProviderTimeout parses and returns the provider request timeout.
func (c *TuningConfig) GetProviderTimeout() time.Duration {
	if c.ProviderTimeout == nil || *c.ProviderTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(*c.ProviderTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetRetryMaxAttempts returns the provider retry attempt limit.
func (c *TuningConfig) GetRetryMaxAttempts() int {
	if c.RetryMaxAttempts == nil {
		return survey.DefaultMaxAttempts
	}
	return *c.RetryMaxAttempts
}

// GetRetryMinWait returns the initial retry backoff interval.
func (c *TuningConfig) GetRetryMinWait() time.Duration {
	if c.RetryMinWait == nil || *c.RetryMinWait == "" {
		return survey.DefaultMinWait
	}
	d, err := time.ParseDuration(*c.RetryMinWait)
	if err != nil {
		return survey.DefaultMinWait
	}
	return d
}

// GetRetryMaxWait returns the retry backoff ceiling.
func (c *TuningConfig) GetRetryMaxWait() time.Duration {
	if c.RetryMaxWait == nil || *c.RetryMaxWait == "" {
		return survey.DefaultMaxWait
	}
	d, err := time.ParseDuration(*c.RetryMaxWait)
	if err != nil {
		return survey.DefaultMaxWait
	}
	return d
}
