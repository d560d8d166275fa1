/*
DESCRIPTION
  colormap.go implements the Color Mapper (spec.md §4.6): applies the
  calibration's ordered elevation color bands to an elevation.Grid,
  producing a row-major packed-RGB888 buffer, with a configured
  no-data color for invalid cells.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

// Package colormap implements the Color Mapper.
package colormap

import (
	"sort"

	"github.com/arsandbox/engine/calib"
	"github.com/arsandbox/engine/elevation"
)

// Map applies cal's ordered color bands to g, returning a row-major
// packed RGB888 buffer of length g.Cols*g.Rows*3, spec.md §4.6/§6.
// cal.ColorMap must already be validated (strictly increasing
// thresholds; calib.Calibration.Validate enforces this).
func Map(g *elevation.Grid, cal calib.Calibration) []byte {
	out := make([]byte, g.Cols*g.Rows*3)
	for i, v := range g.Cells {
		var r, gr, b uint8
		if g.Valid[i] {
			r, gr, b = lookup(cal.ColorMap, v)
		} else {
			r, gr, b = cal.NoDataRGB[0], cal.NoDataRGB[1], cal.NoDataRGB[2]
		}
		out[3*i] = r
		out[3*i+1] = gr
		out[3*i+2] = b
	}
	return out
}

// lookup finds the band whose threshold is the greatest threshold <=
// elevMM, spec.md §4.6. bands is assumed sorted ascending by
// ThresholdMM (the Calibration invariant); below the first band's
// threshold, the first band's color is used.
func lookup(bands []calib.Band, elevMM float32) (r, g, b uint8) {
	if len(bands) == 0 {
		return 0, 0, 0
	}
	i := sort.Search(len(bands), func(i int) bool {
		return float32(bands[i].ThresholdMM) > elevMM
	})
	i--
	if i < 0 {
		i = 0
	}
	band := bands[i]
	return band.R, band.G, band.B
}
