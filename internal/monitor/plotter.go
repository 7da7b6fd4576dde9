package monitor

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/grove-data/canopy.report/internal/geo"
)

// SaveScenePNG renders a planar orchard scene to a PNG file: boundary as a
// closed outline, trees as small green markers, detected locations as larger
// red ones. Used by the offline plotting tool; the HTTP debug endpoint
// renders the same scene with go-echarts instead.
func SaveScenePNG(scene *Scene, title, path string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "East (m)"
	p.Y.Label.Text = "North (m)"

	if len(scene.Boundary) > 0 {
		ring := append(plotXYs(scene.Boundary), plotter.XY{X: scene.Boundary[0].X, Y: scene.Boundary[0].Y})
		outline, err := plotter.NewLine(ring)
		if err != nil {
			return fmt.Errorf("boundary outline: %w", err)
		}
		outline.Width = vg.Points(1)
		outline.Color = color.RGBA{R: 0x31, G: 0x68, B: 0x8e, A: 0xff}
		p.Add(outline)
		p.Legend.Add("boundary", outline)
	}

	if len(scene.Trees) > 0 {
		trees, err := plotter.NewScatter(plotXYs(scene.Trees))
		if err != nil {
			return fmt.Errorf("tree scatter: %w", err)
		}
		trees.GlyphStyle.Radius = vg.Points(2)
		trees.GlyphStyle.Color = color.RGBA{R: 0x35, G: 0xb7, B: 0x79, A: 0xff}
		p.Add(trees)
		p.Legend.Add("trees", trees)
	}

	if len(scene.Detected) > 0 {
		detected, err := plotter.NewScatter(plotXYs(scene.Detected))
		if err != nil {
			return fmt.Errorf("detected scatter: %w", err)
		}
		detected.GlyphStyle.Radius = vg.Points(4)
		detected.GlyphStyle.Color = color.RGBA{R: 0xe4, G: 0x45, B: 0x2c, A: 0xff}
		p.Add(detected)
		p.Legend.Add("detected", detected)
	}

	p.Legend.Top = true

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}

func plotXYs(points []geo.Point) plotter.XYs {
	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i] = plotter.XY{X: pt.X, Y: pt.Y}
	}
	return xys
}
