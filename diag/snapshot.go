/*
DESCRIPTION
  snapshot.go renders PNG debug snapshots of the current elevation grid
  (a heatmap) and feature histogram, spec.md §4.9's diagnostics surface
  supplemented with the visual debugging the original system's operator
  tooling provided (see DESIGN.md, diag package). Plotting
  follows internal/lidar/monitor/gridplotter.go's gonum.org/v1/plot
  usage (plot.New, a plotter per axis, Save to a sized canvas) adapted
  from line-series-over-time plots to a single-frame heatmap + bar
  chart.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

package diag

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/arsandbox/engine/elevation"
	"github.com/arsandbox/engine/feature"
)

// gridHeat adapts an elevation.Grid to plotter.GridXYZ so its cells can
// be rendered with plotter.NewHeatMap. Invalid cells render as 0 mm
// (gonum/plot has no native "no data" cell).
type gridHeat struct {
	g *elevation.Grid
}

func (h gridHeat) Dims() (c, r int) { return h.g.Cols, h.g.Rows }

func (h gridHeat) X(c int) float64 { return float64(c) }

func (h gridHeat) Y(r int) float64 { return float64(r) }

func (h gridHeat) Z(c, r int) float64 {
	idx := r*h.g.Cols + c
	if idx < 0 || idx >= len(h.g.Cells) || !h.g.Valid[idx] {
		return 0
	}
	return float64(h.g.Cells[idx])
}

// SaveElevationHeatmap renders g as a heatmap PNG at path, spec.md §4.9
// debug snapshot.
func SaveElevationHeatmap(g *elevation.Grid, path string) error {
	p := plot.New()
	p.Title.Text = "elevation (mm)"

	pal := moreland.ExtendedBlackBody()
	hm := plotter.NewHeatMap(gridHeat{g: g}, pal)
	p.Add(hm)

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.Wrap(err, "diag: save elevation heatmap")
	}
	return nil
}

// SaveHistogram renders a feature.Set's elevation histogram as a bar
// chart PNG at path, spec.md §4.9 debug snapshot.
func SaveHistogram(fs *feature.Set, path string) error {
	p := plot.New()
	p.Title.Text = "elevation histogram"
	p.Y.Label.Text = "count"
	p.X.Label.Text = "bin"

	values := make(plotter.Values, len(fs.Histogram))
	for i, n := range fs.Histogram {
		values[i] = float64(n)
	}

	bars, err := plotter.NewBarChart(values, vg.Points(8))
	if err != nil {
		return errors.Wrap(err, "diag: build histogram bar chart")
	}
	p.Add(bars)

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrap(err, "diag: save histogram")
	}
	return nil
}
