// Package monitor serves debugging visualisations of detection runs. The
// endpoints are unauthenticated and intended for local inspection only.
package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/grove-data/canopy.report/internal/api"
	"github.com/grove-data/canopy.report/internal/config"
	"github.com/grove-data/canopy.report/internal/detect"
	"github.com/grove-data/canopy.report/internal/geo"
	"github.com/grove-data/canopy.report/internal/httputil"
	"github.com/grove-data/canopy.report/internal/survey"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// PlotServer renders orchard scatter plots from live provider data.
type PlotServer struct {
	provider api.SurveyProvider
	cfg      *config.TuningConfig
}

// NewPlotServer creates a PlotServer sharing the API's provider and tuning.
func NewPlotServer(provider api.SurveyProvider, cfg *config.TuningConfig) *PlotServer {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &PlotServer{provider: provider, cfg: cfg}
}

// Register attaches the debug routes to mux.
func (ps *PlotServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("/debug/orchards/{id}/plot", ps.handleOrchardPlot)
}

// Scene holds one orchard's geometry in the planar frame, shifted so the
// minimum corner sits at the origin.
type Scene struct {
	Trees    []geo.Point
	Boundary []geo.Point
	Detected []geo.Point
	Spacing  float64
	Note     string
}

// handleOrchardPlot renders an HTML scatter of surveyed trees, the orchard
// boundary vertices, and detected missing-tree locations using go-echarts.
// Detection runs with the server's tuning; an orchard too sparse to analyse
// still plots its trees, with the failure noted in the subtitle.
func (ps *PlotServer) handleOrchardPlot(w http.ResponseWriter, r *http.Request) {
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
	sv, err := ps.provider.SurveyByOrchard(ctx, orchardID)
	if err != nil {
		ps.writeProviderError(w, err)
		return
	}
	stats, err := ps.provider.SurveyStats(ctx, sv.ID)
	if err != nil {
		ps.writeProviderError(w, err)
		return
	}
	trees, err := ps.provider.Trees(ctx, sv.ID)
	if err != nil {
		ps.writeProviderError(w, err)
		return
	}
	if len(trees) == 0 {
		httputil.NotFound(w, fmt.Sprintf("survey %d has no trees", sv.ID))
		return
	}

	boundary, err := survey.ParsePolygon(sv.Polygon)
	if err != nil {
		httputil.UnprocessableEntity(w, "orchard boundary unusable: "+err.Error())
		return
	}

	svStats := stats.SurveyStatistics()
	scene, err := BuildScene(trees, boundary, stats.MissingTreeCount, &svStats, ps.cfg.ToParams())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	subtitle := fmt.Sprintf("survey=%d trees=%d detected=%d spacing=%.1fm",
		sv.ID, len(scene.Trees), len(scene.Detected), scene.Spacing)
	if scene.Note != "" {
		subtitle += " " + scene.Note
	}

	pad := scenePad(scene)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Orchard Detection", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Orchard %d", orchardID), Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad * 0.05, Max: pad, Name: "East (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad * 0.05, Max: pad, Name: "North (m)", NameLocation: "middle", NameGap: 30}),
	)

	scatter.AddSeries("trees", scatterData(scene.Trees),
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#35b779"}))
	scatter.AddSeries("boundary", scatterData(scene.Boundary),
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 9}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#31688e"}))
	scatter.AddSeries("detected", scatterData(scene.Detected),
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#e4452c"}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// BuildScene projects the orchard into meters and runs detection with the
// given tuning. stats may be nil for offline snapshots without a survey
// summary. All three point sets share the projector anchored at the first
// tree so they overlay correctly.
func BuildScene(trees []survey.TreeRecord, boundary []geo.LatLon, missingCount int, stats *detect.SurveyStatistics, params detect.Params) (*Scene, error) {
	if len(trees) == 0 {
		return nil, fmt.Errorf("no trees to plot")
	}
	projector, err := geo.NewProjector(geo.LatLon{Lat: trees[0].Lat, Lon: trees[0].Lng})
	if err != nil {
		return nil, err
	}

	scene := &Scene{}
	for _, t := range trees {
		pt, err := projector.ToPlanar(geo.LatLon{Lat: t.Lat, Lon: t.Lng})
		if err != nil {
			return nil, err
		}
		scene.Trees = append(scene.Trees, pt)
	}
	for _, v := range boundary {
		pt, err := projector.ToPlanar(v)
		if err != nil {
			return nil, err
		}
		scene.Boundary = append(scene.Boundary, pt)
	}

	detector, err := detect.NewDetector(params)
	if err != nil {
		return nil, err
	}
	result, err := detector.DetectWithStats(survey.Observations(trees), boundary, missingCount, stats)
	switch {
	case errors.Is(err, detect.ErrInsufficientData):
		scene.Note = "(detection skipped: " + err.Error() + ")"
	case err != nil:
		return nil, err
	default:
		scene.Spacing = result.ExpectedSpacingM
		for _, loc := range result.Locations {
			pt, err := projector.ToPlanar(loc)
			if err != nil {
				return nil, err
			}
			scene.Detected = append(scene.Detected, pt)
		}
	}

	shiftToOrigin(scene)
	return scene, nil
}

// shiftToOrigin moves the scene so its minimum corner is (0, 0). UTM eastings
// and northings are otherwise six-digit numbers that drown the axis labels.
func shiftToOrigin(scene *Scene) {
	minX, minY := math.Inf(1), math.Inf(1)
	for _, set := range [][]geo.Point{scene.Trees, scene.Boundary, scene.Detected} {
		for _, pt := range set {
			minX = math.Min(minX, pt.X)
			minY = math.Min(minY, pt.Y)
		}
	}
	for _, set := range [][]geo.Point{scene.Trees, scene.Boundary, scene.Detected} {
		for i := range set {
			set[i].X -= minX
			set[i].Y -= minY
		}
	}
}

// scenePad returns a shared axis maximum with a little headroom, keeping the
// square canvas distance-true.
func scenePad(scene *Scene) float64 {
	maxAbs := 0.0
	for _, set := range [][]geo.Point{scene.Trees, scene.Boundary, scene.Detected} {
		for _, pt := range set {
			maxAbs = math.Max(maxAbs, math.Max(pt.X, pt.Y))
		}
	}
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	return pad
}

func scatterData(points []geo.Point) []opts.ScatterData {
	data := make([]opts.ScatterData, 0, len(points))
	for _, pt := range points {
		data = append(data, opts.ScatterData{Value: []interface{}{pt.X, pt.Y}})
	}
	return data
}

func (ps *PlotServer) writeProviderError(w http.ResponseWriter, err error) {
	if errors.Is(err, survey.ErrNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.InternalServerError(w, err.Error())
}
