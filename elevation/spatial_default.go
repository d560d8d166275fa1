//go:build !withcv

/*
DESCRIPTION
  spatial_default.go is the pure-Go spatial smoothing path: a separable
  Gaussian-weighted average over a (2*radius+1) window that skips
  invalid neighbors (re-normalizing over whichever weights remain), so
  a hole never bleeds into its surroundings. This is the default
  build's implementation of spec.md §4.4 step 3; blur_cv.go replaces it
  with a gocv.GaussianBlur call under -tags withcv, the same split
  filter/motion.go uses between its default and hardware-accelerated
  motion estimators. The kernel's sigma follows OpenCV's own default
  derivation for GaussianBlur(ksize, sigma=0) so the two paths agree.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

package elevation

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// gaussianKernel returns a normalized 1-D Gaussian kernel of length
// 2*radius+1, using the same sigma OpenCV's getGaussianKernel derives
// for an unspecified sigma: sigma = 0.3*((ksize-1)*0.5-1)+0.8.
func gaussianKernel(radius int) []float64 {
	ksize := 2*radius + 1
	sigma := 0.3*(float64(ksize-1)*0.5-1) + 0.8
	k := make([]float64, ksize)
	for i := range k {
		d := float64(i - radius)
		k[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
	}
	sum := floats.Sum(k)
	floats.Scale(1/sum, k)
	return k
}

func spatialSmoothImpl(g *Grid, radius int) *Grid {
	if radius <= 0 {
		return g.Clone()
	}
	kernel := gaussianKernel(radius)
	horiz := smoothAxis(g, radius, kernel, true)
	return smoothAxis(horiz, radius, kernel, false)
}

// smoothAxis convolves g with kernel along one axis, restricting the
// dot product to in-bounds, valid neighbors and renormalizing by the
// weight actually used so missing samples don't bias the result
// toward zero.
func smoothAxis(g *Grid, radius int, kernel []float64, alongCols bool) *Grid {
	out := NewGrid(g.Cols, g.Rows)
	window := make([]float64, 0, len(kernel))
	weights := make([]float64, 0, len(kernel))
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			idx := g.idx(col, row)
			if !g.Valid[idx] {
				continue
			}
			window = window[:0]
			weights = weights[:0]
			for d := -radius; d <= radius; d++ {
				var j int
				if alongCols {
					c := col + d
					if c < 0 || c >= g.Cols {
						continue
					}
					j = g.idx(c, row)
				} else {
					r := row + d
					if r < 0 || r >= g.Rows {
						continue
					}
					j = g.idx(col, r)
				}
				if !g.Valid[j] {
					continue
				}
				window = append(window, float64(g.Cells[j]))
				weights = append(weights, kernel[d+radius])
			}
			if len(window) == 0 {
				continue
			}
			weightSum := floats.Sum(weights)
			out.Cells[idx] = float32(floats.Dot(window, weights) / weightSum)
			out.Valid[idx] = true
		}
	}
	return out
}
