package monitor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grove-data/canopy.report/internal/config"
	"github.com/grove-data/canopy.report/internal/detect"
	"github.com/grove-data/canopy.report/internal/survey"
	"github.com/grove-data/canopy.report/internal/testutil"
)

type stubProvider struct {
	survey survey.Survey
	stats  survey.Stats
	trees  []survey.TreeRecord
}

func (p *stubProvider) SurveyByOrchard(_ context.Context, orchardID int64) (survey.Survey, error) {
	if orchardID != p.survey.OrchardID {
		return survey.Survey{}, fmt.Errorf("%w: no surveys for orchard %d", survey.ErrNotFound, orchardID)
	}
	return p.survey, nil
}

func (p *stubProvider) SurveyStats(_ context.Context, surveyID int64) (survey.Stats, error) {
	return p.stats, nil
}

func (p *stubProvider) Trees(_ context.Context, surveyID int64) ([]survey.TreeRecord, error) {
	return p.trees, nil
}

// orchardFixture is a 5x5 planting grid missing its center tree, so detection
// places exactly one location.
func orchardFixture() *stubProvider {
	const (
		baseLat = -32.328
		baseLon = 18.826
		step    = 0.0001
	)
	var trees []survey.TreeRecord
	id := int64(0)
	for r := 0; r < 5; r++ {
		for c := 0; c < 5; c++ {
			id++
			if r == 2 && c == 2 {
				continue
			}
			trees = append(trees, survey.TreeRecord{
				ID:       id,
				Lat:      baseLat + float64(r)*step,
				Lng:      baseLon + float64(c)*step,
				Area:     20.0,
				NDRE:     0.55,
				SurveyID: 101,
			})
		}
	}
	return &stubProvider{
		survey: survey.Survey{
			ID:        101,
			OrchardID: 216269,
			Date:      "2025-10-08",
			Hectares:  1.4,
			Polygon:   "18.8255,-32.3285 18.8270,-32.3285 18.8270,-32.3275 18.8255,-32.3275",
		},
		stats: survey.Stats{
			SurveyID:         101,
			TreeCount:        24,
			MissingTreeCount: 1,
		},
		trees: trees,
	}
}

func newPlotMux(p *stubProvider) *http.ServeMux {
	ps := NewPlotServer(p, config.EmptyTuningConfig())
	mux := http.NewServeMux()
	ps.Register(mux)
	return mux
}

func TestOrchardPlotRendersHTML(t *testing.T) {
	mux := newPlotMux(orchardFixture())

	req := testutil.NewTestRequest(http.MethodGet, "/debug/orchards/216269/plot")
	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type %q", ct)
	}
	body := rec.Body.String()
	for _, series := range []string{"trees", "boundary", "detected"} {
		if !strings.Contains(body, series) {
			t.Errorf("chart missing %q series", series)
		}
	}
}

func TestOrchardPlotUnknownOrchard(t *testing.T) {
	mux := newPlotMux(orchardFixture())

	req := testutil.NewTestRequest(http.MethodGet, "/debug/orchards/999/plot")
	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestOrchardPlotInvalidID(t *testing.T) {
	mux := newPlotMux(orchardFixture())

	req := testutil.NewTestRequest(http.MethodGet, "/debug/orchards/banana/plot")
	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)
}

func TestOrchardPlotMethodNotAllowed(t *testing.T) {
	mux := newPlotMux(orchardFixture())

	req := testutil.NewTestRequest(http.MethodPost, "/debug/orchards/216269/plot")
	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestOrchardPlotSparseOrchardStillRenders(t *testing.T) {
	p := orchardFixture()
	p.trees = p.trees[:2] // too few trees for detection, plot still works

	mux := newPlotMux(p)
	req := testutil.NewTestRequest(http.MethodGet, "/debug/orchards/216269/plot")
	rec := testutil.NewTestRecorder()
	mux.ServeHTTP(rec, req)

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "detection skipped") {
		t.Error("sparse orchard subtitle missing skip note")
	}
}

func TestBuildScene(t *testing.T) {
	p := orchardFixture()
	boundary, err := survey.ParsePolygon(p.survey.Polygon)
	if err != nil {
		t.Fatalf("ParsePolygon: %v", err)
	}

	scene, err := BuildScene(p.trees, boundary, p.stats.MissingTreeCount, nil, detect.DefaultParams())
	if err != nil {
		t.Fatalf("BuildScene: %v", err)
	}
	if len(scene.Trees) != 24 || len(scene.Boundary) != 4 {
		t.Errorf("scene has %d trees, %d boundary vertices", len(scene.Trees), len(scene.Boundary))
	}
	if len(scene.Detected) != 1 {
		t.Fatalf("got %d detected locations, want 1", len(scene.Detected))
	}
	if scene.Spacing < 8 || scene.Spacing > 12 {
		t.Errorf("spacing %.2fm outside plausible range", scene.Spacing)
	}

	// Shifted to the origin: no negative coordinates, minimum at zero.
	minX, minY := scene.Boundary[0].X, scene.Boundary[0].Y
	for _, pt := range scene.Boundary {
		if pt.X < minX {
			minX = pt.X
		}
		if pt.Y < minY {
			minY = pt.Y
		}
	}
	if minX != 0 || minY != 0 {
		t.Errorf("scene not anchored at origin: min (%v, %v)", minX, minY)
	}
}

func TestBuildSceneNoTrees(t *testing.T) {
	if _, err := BuildScene(nil, nil, 1, nil, detect.DefaultParams()); err == nil {
		t.Error("empty tree list accepted")
	}
}

func TestSaveScenePNG(t *testing.T) {
	p := orchardFixture()
	boundary, err := survey.ParsePolygon(p.survey.Polygon)
	if err != nil {
		t.Fatalf("ParsePolygon: %v", err)
	}
	scene, err := BuildScene(p.trees, boundary, 1, nil, detect.DefaultParams())
	if err != nil {
		t.Fatalf("BuildScene: %v", err)
	}

	path := filepath.Join(t.TempDir(), "orchard.png")
	if err := SaveScenePNG(scene, "Orchard 216269", path); err != nil {
		t.Fatalf("SaveScenePNG: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat plot file: %v", err)
	}
	if info.Size() == 0 {
		t.Error("plot file is empty")
	}
}
