/*
DESCRIPTION
  feature.go implements the Feature Extractor (spec.md §4.5): contour
  polylines by marching squares, per-cell gradient/slope, peak/pit
  detection by 8-neighbor prominence, a roughness scalar, and a fixed-bin
  elevation histogram, all derived from one elevation.Grid. Every
  feature is computed in pure Go; this package has no withcv (gocv)
  path. The histogram follows cmd/rv/probe.go's use of
  gonum.org/v1/gonum/stat.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

// Package feature implements the Feature Extractor.
package feature

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/arsandbox/engine/elevation"
)

// Defaults, spec.md §4.5/§4.7.
const (
	DefaultContourStepMM = 10
	DefaultProminenceMM  = 5
	DefaultHistogramBins = 32
)

// Point is one vertex of a contour polyline or a peak/pit location, in
// grid space with its elevation in millimeters.
type Point struct {
	Col, Row int
	ElevMM   float32
}

// Polyline is an ordered sequence of Points at one contour threshold.
type Polyline struct {
	ThresholdMM float32
	Points      []Point
}

// Set is everything the Feature Extractor derives from one grid,
// spec.md §3 FeatureSet. Each field may be left empty if its feature is
// disabled for the caller's subscribers (spec.md §4.5: "all features
// are optional").
type Set struct {
	Contours  []Polyline
	Gradient  []float32 // row-major, same shape as the source grid; NaN where invalid.
	Peaks     []Point
	Pits      []Point
	Roughness float64
	Histogram []int
}

// Options controls which features Extract computes and their
// parameters; a zero Options enables nothing, matching §4.7's
// enable_features(flags) control op.
type Options struct {
	Contours   bool
	Gradient   bool
	PeaksPits  bool
	Roughness  bool
	Histogram  bool

	ContourStepMM int
	ProminenceMM  int
	HistogramBins int
	MinElevMM, MaxElevMM int

	// PeakFloorMM/PitCeilingMM are the minimum-elevation floor a peak
	// must exceed and the maximum-elevation ceiling a pit must fall
	// below, spec.md §4.5: "exceeds a minimum-elevation floor; pits are
	// symmetric". Both default to 0, the flat-sand reference level, so
	// a cell sitting exactly at baseline never registers as either.
	PeakFloorMM, PitCeilingMM int
}

// Extract derives a Set from g according to opts.
func Extract(g *elevation.Grid, opts Options) Set {
	var s Set
	if opts.Contours {
		step := opts.ContourStepMM
		if step <= 0 {
			step = DefaultContourStepMM
		}
		s.Contours = contours(g, opts.MinElevMM, opts.MaxElevMM, step)
	}
	if opts.Gradient {
		s.Gradient = gradient(g)
	}
	if opts.PeaksPits {
		prominence := opts.ProminenceMM
		if prominence <= 0 {
			prominence = DefaultProminenceMM
		}
		s.Peaks, s.Pits = peaksAndPits(g, float32(prominence), float32(opts.PeakFloorMM), float32(opts.PitCeilingMM))
	}
	if opts.Roughness {
		s.Roughness = roughness(g)
	}
	if opts.Histogram {
		bins := opts.HistogramBins
		if bins <= 0 {
			bins = DefaultHistogramBins
		}
		s.Histogram = histogram(g, opts.MinElevMM, opts.MaxElevMM, bins)
	}
	return s
}

// gradient computes per-cell central differences in millimeters per
// cell (one-sided at borders and next to a single invalid neighbor),
// spec.md §4.5. Invalid cells, and cells with no valid neighbor along
// either axis, yield NaN.
func gradient(g *elevation.Grid) []float32 {
	out := make([]float32, len(g.Cells))
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			idx := row*g.Cols + col
			if !g.Valid[idx] {
				out[idx] = float32(math.NaN())
				continue
			}
			gx, okx := centralDiff(g, col, row, 1, 0)
			gy, oky := centralDiff(g, col, row, 0, 1)
			if !okx || !oky {
				out[idx] = float32(math.NaN())
				continue
			}
			out[idx] = float32(math.Hypot(float64(gx), float64(gy)))
		}
	}
	return out
}

// centralDiff computes the one-dimensional central (or one-sided, at a
// border) difference along (dc, dr) at (col, row).
func centralDiff(g *elevation.Grid, col, row, dc, dr int) (float32, bool) {
	prevC, prevR := col-dc, row-dr
	nextC, nextR := col+dc, row+dr
	prevOK := prevC >= 0 && prevC < g.Cols && prevR >= 0 && prevR < g.Rows && g.Valid[prevR*g.Cols+prevC]
	nextOK := nextC >= 0 && nextC < g.Cols && nextR >= 0 && nextR < g.Rows && g.Valid[nextR*g.Cols+nextC]

	switch {
	case prevOK && nextOK:
		return (g.Cells[nextR*g.Cols+nextC] - g.Cells[prevR*g.Cols+prevC]) / 2, true
	case nextOK:
		return g.Cells[nextR*g.Cols+nextC] - g.Cells[row*g.Cols+col], true
	case prevOK:
		return g.Cells[row*g.Cols+col] - g.Cells[prevR*g.Cols+prevC], true
	default:
		return 0, false
	}
}

// peaksAndPits finds cells that strictly exceed (or fall below) every
// valid 8-neighbor by at least prominenceMM, and additionally clear the
// minimum-elevation floor (peaks) or maximum-elevation ceiling (pits),
// spec.md §4.5.
func peaksAndPits(g *elevation.Grid, prominenceMM, floorMM, ceilingMM float32) (peaks, pits []Point) {
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			idx := row*g.Cols + col
			if !g.Valid[idx] {
				continue
			}
			v := g.Cells[idx]
			isPeak := v > floorMM
			isPit := v < ceilingMM
			neighbors := 0
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					if dr == 0 && dc == 0 {
						continue
					}
					nc, nr := col+dc, row+dr
					if nc < 0 || nc >= g.Cols || nr < 0 || nr >= g.Rows {
						continue
					}
					ni := nr*g.Cols + nc
					if !g.Valid[ni] {
						continue
					}
					neighbors++
					nv := g.Cells[ni]
					if v-nv < prominenceMM {
						isPeak = false
					}
					if nv-v < prominenceMM {
						isPit = false
					}
				}
			}
			if neighbors == 0 {
				continue
			}
			if isPeak {
				peaks = append(peaks, Point{Col: col, Row: row, ElevMM: v})
			} else if isPit {
				pits = append(pits, Point{Col: col, Row: row, ElevMM: v})
			}
		}
	}
	return peaks, pits
}

// roughness is the mean of |laplacian(e)| over valid cells, spec.md
// §4.5.
func roughness(g *elevation.Grid) float64 {
	var sum float64
	var count int
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			idx := row*g.Cols + col
			if !g.Valid[idx] {
				continue
			}
			lap, ok := laplacian(g, col, row)
			if !ok {
				continue
			}
			sum += math.Abs(float64(lap))
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// laplacian is the discrete 5-point Laplacian at (col, row) over
// whichever of the four axis-neighbors are in bounds and valid; it
// reports false only when none is.
func laplacian(g *elevation.Grid, col, row int) (float32, bool) {
	idx := row*g.Cols + col
	center := g.Cells[idx]
	var sum float32
	n := 0
	for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		nc, nr := col+d[0], row+d[1]
		if nc < 0 || nc >= g.Cols || nr < 0 || nr >= g.Rows {
			continue
		}
		ni := nr*g.Cols + nc
		if !g.Valid[ni] {
			continue
		}
		sum += g.Cells[ni]
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum - float32(n)*center, true
}

// histogram bins valid elevations over [minElevMM, maxElevMM] into a
// fixed number of bins, grounded on gonum/stat's histogram helper.
func histogram(g *elevation.Grid, minElevMM, maxElevMM, bins int) []int {
	counts := make([]float64, bins)
	var dividers []float64
	lo, hi := float64(minElevMM), float64(maxElevMM)
	width := (hi - lo) / float64(bins)
	dividers = make([]float64, bins+1)
	for i := range dividers {
		dividers[i] = lo + float64(i)*width
	}
	dividers[bins] = hi

	var values []float64
	for i, v := range g.Cells {
		if !g.Valid[i] {
			continue
		}
		fv := float64(v)
		if fv < lo {
			fv = lo
		}
		if fv >= hi {
			fv = math.Nextafter(hi, lo)
		}
		values = append(values, fv)
	}
	sort.Float64s(values) // stat.Histogram requires sorted data.
	if len(values) > 0 {
		stat.Histogram(counts, dividers, values, nil)
	}

	out := make([]int, bins)
	for i, c := range counts {
		out[i] = int(c)
	}
	return out
}
