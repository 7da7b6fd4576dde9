// Package api exposes the detection service over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/grove-data/canopy.report/internal/config"
	"github.com/grove-data/canopy.report/internal/detect"
	"github.com/grove-data/canopy.report/internal/geo"
	"github.com/grove-data/canopy.report/internal/httputil"
	"github.com/grove-data/canopy.report/internal/monitoring"
	"github.com/grove-data/canopy.report/internal/store"
	"github.com/grove-data/canopy.report/internal/survey"
	"github.com/grove-data/canopy.report/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// SurveyProvider supplies orchard survey data. Implemented by survey.Client;
// tests substitute stubs.
type SurveyProvider interface {
	SurveyByOrchard(ctx context.Context, orchardID int64) (survey.Survey, error)
	SurveyStats(ctx context.Context, surveyID int64) (survey.Stats, error)
	Trees(ctx context.Context, surveyID int64) ([]survey.TreeRecord, error)
}

// Server handles the service's HTTP API. The run store is optional; without
// it runs are simply not recorded.
type Server struct {
	provider SurveyProvider
	runs     *store.Store
	cfg      *config.TuningConfig
}

// NewServer creates a Server. runs may be nil.
func NewServer(provider SurveyProvider, runs *store.Store, cfg *config.TuningConfig) *Server {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &Server{provider: provider, runs: runs, cfg: cfg}
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/orchards/{id}/missing-trees", s.handleMissingTrees)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/runs", s.handleRuns)
	return mux
}

// MissingTreesResponse is the detection endpoint's payload.
type MissingTreesResponse struct {
	OrchardID        int64        `json:"orchard_id"`
	SurveyID         int64        `json:"survey_id"`
	Locations        []geo.LatLon `json:"locations"`
	MissingTreeCount int          `json:"missing_tree_count"`
	DetectedCount    int          `json:"detected_count"`
}

func (s *Server) handleMissingTrees(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	orchardID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "invalid orchard id")
		return
	}

	ctx := r.Context()
	start := time.Now()

	sv, err := s.provider.SurveyByOrchard(ctx, orchardID)
	if err != nil {
		s.writeProviderError(w, err)
		return
	}
	stats, err := s.provider.SurveyStats(ctx, sv.ID)
	if err != nil {
		s.writeProviderError(w, err)
		return
	}
	trees, err := s.provider.Trees(ctx, sv.ID)
	if err != nil {
		s.writeProviderError(w, err)
		return
	}

	resp := MissingTreesResponse{
		OrchardID:        orchardID,
		SurveyID:         sv.ID,
		Locations:        []geo.LatLon{},
		MissingTreeCount: stats.MissingTreeCount,
	}
	if len(trees) == 0 {
		httputil.WriteJSONOK(w, resp)
		return
	}

	boundary, err := survey.ParsePolygon(sv.Polygon)
	if err != nil {
		httputil.UnprocessableEntity(w, "orchard boundary unusable: "+err.Error())
		return
	}

	detector, err := detect.NewDetector(s.cfg.ToParams())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	// The survey's own statistics pin the health filter's floors, so the
	// exclusions match the provider's quality flags for the whole survey.
	svStats := stats.SurveyStatistics()
	result, err := detector.DetectWithStats(survey.Observations(trees), boundary, stats.MissingTreeCount, &svStats)
	if err != nil {
		switch {
		case errors.Is(err, detect.ErrInsufficientData):
			httputil.UnprocessableEntity(w, err.Error())
		default:
			httputil.InternalServerError(w, err.Error())
		}
		return
	}

	resp.Locations = result.Locations
	resp.DetectedCount = len(result.Locations)

	s.recordRun(orchardID, sv.ID, stats.MissingTreeCount, result, time.Since(start))
	httputil.WriteJSONOK(w, resp)
}

// recordRun persists the run when a store is configured. Failures are logged,
// never surfaced: auditing must not break detection responses.
func (s *Server) recordRun(orchardID, surveyID int64, missingCount int, result *detect.Result, elapsed time.Duration) {
	if s.runs == nil {
		return
	}
	run := &store.Run{
		OrchardID:        orchardID,
		SurveyID:         surveyID,
		MissingTreeCount: missingCount,
		DetectedCount:    len(result.Locations),
		HealthyTreeCount: result.HealthyTreeCount,
		ExpectedSpacingM: result.ExpectedSpacingM,
		RowAligned:       result.RowAligned,
		DurationMs:       elapsed.Milliseconds(),
		Locations:        result.Locations,
	}
	if err := s.runs.RecordRun(run); err != nil {
		monitoring.Logf("api: recording run for orchard %d failed: %v", orchardID, err)
	}
}

func (s *Server) writeProviderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, survey.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httputil.WriteJSONError(w, http.StatusGatewayTimeout, err.Error())
	default:
		httputil.InternalServerError(w, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "ok", "version": version.Version})
}

// configResponse mirrors the tuning file schema with every default resolved.
type configResponse struct {
	SigmaMultiplier        float64 `json:"sigma_multiplier"`
	GapThresholdMultiplier float64 `json:"gap_threshold_multiplier"`
	UseRowDetection        bool    `json:"use_row_detection"`
	RowConfidenceThreshold float64 `json:"row_confidence_threshold"`
	MinCandidateScore      float64 `json:"min_candidate_score"`
	MinSeparationRatio     float64 `json:"min_separation_ratio"`
	BoundaryBufferRatio    float64 `json:"boundary_buffer_ratio"`
	DensityRadiusRatio     float64 `json:"density_radius_ratio"`
	WeightSpacing          float64 `json:"weight_spacing"`
	WeightDensity          float64 `json:"weight_density"`
	WeightBoundary         float64 `json:"weight_boundary"`
	WeightRowAlignment     float64 `json:"weight_row_alignment"`
	ProviderBaseURL        string  `json:"provider_base_url"`
	ProviderTimeout        string  `json:"provider_timeout"`
	RetryMaxAttempts       int     `json:"retry_max_attempts"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	p := s.cfg.ToParams()
	httputil.WriteJSONOK(w, configResponse{
		SigmaMultiplier:        p.SigmaMultiplier,
		GapThresholdMultiplier: p.GapThresholdMultiplier,
		UseRowDetection:        p.UseRowDetection,
		RowConfidenceThreshold: p.RowConfidenceThreshold,
		MinCandidateScore:      p.MinCandidateScore,
		MinSeparationRatio:     p.MinSeparationRatio,
		BoundaryBufferRatio:    p.BoundaryBufferRatio,
		DensityRadiusRatio:     p.DensityRadiusRatio,
		WeightSpacing:          p.WeightSpacing,
		WeightDensity:          p.WeightDensity,
		WeightBoundary:         p.WeightBoundary,
		WeightRowAlignment:     p.WeightRowAlignment,
		ProviderBaseURL:        s.cfg.GetProviderBaseURL(),
		ProviderTimeout:        s.cfg.GetProviderTimeout().String(),
		RetryMaxAttempts:       s.cfg.GetRetryMaxAttempts(),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.runs == nil {
		httputil.WriteJSONOK(w, []store.Run{})
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	var (
		runs []store.Run
		err  error
	)
	if o := r.URL.Query().Get("orchard_id"); o != "" {
		orchardID, perr := strconv.ParseInt(o, 10, 64)
		if perr != nil {
			httputil.BadRequest(w, "invalid 'orchard_id' parameter")
			return
		}
		runs, err = s.runs.RunsByOrchard(orchardID, limit)
	} else {
		runs, err = s.runs.RecentRuns(limit)
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}
