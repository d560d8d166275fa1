//go:build withcv

/*
DESCRIPTION
  blur_cv.go replaces the default separable Gaussian smoothing with
  gocv.GaussianBlur calls when the engine is built with -tags withcv,
  mirroring filter/motion.go's //go:build withcv split between a
  pure-Go default and a gocv-accelerated path.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

package elevation

import (
	"image"

	"gocv.io/x/gocv"
)

// spatialSmoothImpl runs a Gaussian blur over valid cells via gocv,
// keeping the invalid mask from g unchanged. gocv has no notion of a
// validity mask, so invalid cells are zeroed and a 0/1 weight mask is
// blurred with the same kernel; dividing the two renormalizes each
// valid cell over its valid in-bounds neighbors, as spatial_default.go
// does, so a hole never bleeds into its surroundings.
func spatialSmoothImpl(g *Grid, radius int) *Grid {
	if radius <= 0 {
		return g.Clone()
	}

	mat := gocv.NewMatWithSize(g.Rows, g.Cols, gocv.MatTypeCV32F)
	defer mat.Close()
	weight := gocv.NewMatWithSize(g.Rows, g.Cols, gocv.MatTypeCV32F)
	defer weight.Close()
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			idx := g.idx(col, row)
			if g.Valid[idx] {
				mat.SetFloatAt(row, col, g.Cells[idx])
				weight.SetFloatAt(row, col, 1)
			} else {
				mat.SetFloatAt(row, col, 0)
				weight.SetFloatAt(row, col, 0)
			}
		}
	}

	ksize := 2*radius + 1
	out := gocv.NewMat()
	defer out.Close()
	gocv.GaussianBlur(mat, &out, image.Pt(ksize, ksize), 0, 0, gocv.BorderConstant)
	wout := gocv.NewMat()
	defer wout.Close()
	gocv.GaussianBlur(weight, &wout, image.Pt(ksize, ksize), 0, 0, gocv.BorderConstant)

	result := NewGrid(g.Cols, g.Rows)
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			idx := g.idx(col, row)
			if !g.Valid[idx] {
				continue
			}
			result.Cells[idx] = out.GetFloatAt(row, col) / wout.GetFloatAt(row, col)
			result.Valid[idx] = true
		}
	}
	return result
}
