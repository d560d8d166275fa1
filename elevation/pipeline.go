/*
DESCRIPTION
  pipeline.go implements the Elevation Pipeline (spec.md §4.4): depth to
  height conversion against the calibrated baseline, clipping to the
  configured elevation range, separable spatial smoothing, exponential
  temporal smoothing, small invalid-island fill, and int16 quantization.
  The default numeric path is pure Go via gonum/floats; cmd/rv/probe.go's
  use of gonum.org/v1/gonum for signal statistics is the model for using
  gonum here rather than hand-rolled loops, and filter/motion.go's
  //go:build withcv split is the model for the optional gocv-accelerated
  spatial blur in blur_cv.go.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

package elevation

import (
	"github.com/arsandbox/engine/calib"
	"github.com/arsandbox/engine/device/depth"
	"github.com/arsandbox/engine/sync"
)

// ErrNotCalibrated is returned by Process when cal has no usable grid
// (the zero Calibration), spec.md §4.4: "until a Calibration is
// available the pipeline emits an all-invalid grid".
var ErrNotCalibrated = errorString("elevation: not calibrated")

type errorString string

func (e errorString) Error() string { return string(e) }

// Pipeline converts SyncedTuples into ElevationGrids. It is not
// goroutine-safe; one Pipeline is owned by one Session Coordinator tick
// loop, spec.md §4.4/§4.7.
type Pipeline struct {
	// MinSampleMM/MaxSampleMM bound which raw depth samples are
	// considered valid before conversion, matching the owning depth
	// Adapter's configured window.
	MinSampleMM, MaxSampleMM int

	// MaxDepthGapTicks is how many consecutive depth-absent ticks the
	// pipeline tolerates (reusing the last raw grid) before marking the
	// output grid entirely invalid, spec.md §4.4.
	MaxDepthGapTicks int

	depthGapTicks int

	prevSmoothed *Grid // previous tick's post-temporal-smoothing grid.
	prevRaw      *Grid // previous tick's post-clip, pre-smoothing grid, reused across a depth gap.
}

// ResetHistory discards cached raw/smoothed grids and the depth-gap
// counter, used after a baseline recalibration, spec.md §4.7: "resets
// temporal smoothing history".
func (p *Pipeline) ResetHistory() {
	p.prevSmoothed = nil
	p.prevRaw = nil
	p.depthGapTicks = 0
}

// NewPipeline returns a Pipeline with the given raw-sample validity
// window and depth-gap tolerance (spec.md §3 default device window is
// 500-4000mm; a MaxDepthGapTicks of 0 means "never tolerate a gap").
func NewPipeline(minSampleMM, maxSampleMM, maxDepthGapTicks int) *Pipeline {
	return &Pipeline{MinSampleMM: minSampleMM, MaxSampleMM: maxSampleMM, MaxDepthGapTicks: maxDepthGapTicks}
}

// Process runs one tick of the pipeline, spec.md §4.4 steps 1-5.
func (p *Pipeline) Process(t *sync.Tuple, cal calib.Calibration) (*Grid, error) {
	cols, rows := cal.Grid.Cols, cal.Grid.Rows
	if cols == 0 || rows == 0 {
		return NewGrid(0, 0), ErrNotCalibrated
	}

	var raw *Grid
	if t == nil || t.DepthAbsent || t.Depth == nil {
		p.depthGapTicks++
		if p.prevRaw == nil || p.depthGapTicks > p.MaxDepthGapTicks {
			out := NewGrid(cols, rows)
			out.MarkAllInvalid()
			p.prevSmoothed = out
			return out, nil
		}
		raw = p.prevRaw.Clone()
	} else {
		p.depthGapTicks = 0
		raw = p.resample(t.Depth, cal)
		p.clip(raw, cal.MinElevMM, cal.MaxElevMM)
		p.prevRaw = raw.Clone()
	}

	spatial := p.spatialSmooth(raw, cal.SpatialRadiusCells)
	temporal := p.temporalSmooth(spatial, cal.Alpha)
	p.fillSmallIslands(temporal, 4)

	p.prevSmoothed = temporal
	return temporal, nil
}

// resample converts a raw depth.Frame into the canonical grid's
// coordinate space, subtracting each cell's calibrated floor baseline
// so that positive values mean "higher than the empty tray", spec.md
// §4.4 step 1. Once cal carries a calibrated sandbox Plane, every
// source sample is back-projected through its device's
// Intrinsics/Extrinsics (project.go) so devices with different
// placements land in the same physical cell; until then (the zero
// Calibration, before any geometric calibration has been performed)
// it falls back to a direct nearest-neighbor index rescale.
func (p *Pipeline) resample(df *depth.Frame, cal calib.Calibration) *Grid {
	cols, rows := cal.Grid.Cols, cal.Grid.Rows
	out := NewGrid(cols, rows)

	sw, sh := df.Width, df.Height
	if sw == 0 || sh == 0 {
		out.MarkAllInvalid()
		return out
	}

	proj, ok := newProjector(df.DeviceID, sw, sh, cal)
	if !ok {
		return p.resampleDirect(df, cal, out)
	}

	for srow := 0; srow < sh; srow++ {
		for scol := 0; scol < sw; scol++ {
			mm, valid := df.At(scol, srow, p.MinSampleMM, p.MaxSampleMM)
			if !valid {
				continue
			}
			col, row, heightMM, ok := proj.project(scol, srow, float64(mm))
			if !ok || col < 0 || col >= cols || row < 0 || row >= rows {
				continue
			}
			idx := out.idx(col, row)
			baseline := float32(0)
			if idx < len(cal.Baseline) {
				baseline = cal.Baseline[idx]
			}
			out.Cells[idx] = baseline - float32(heightMM)
			out.Valid[idx] = true
		}
	}
	return out
}

// resampleDirect is the pre-geometric-calibration fallback: a direct
// nearest-neighbor index rescale from source to canonical grid
// coordinates, ignoring device placement.
func (p *Pipeline) resampleDirect(df *depth.Frame, cal calib.Calibration, out *Grid) *Grid {
	cols, rows := out.Cols, out.Rows
	sw, sh := df.Width, df.Height
	for row := 0; row < rows; row++ {
		srow := row * sh / rows
		for col := 0; col < cols; col++ {
			scol := col * sw / cols
			mm, valid := df.At(scol, srow, p.MinSampleMM, p.MaxSampleMM)
			idx := out.idx(col, row)
			if !valid {
				out.Valid[idx] = false
				continue
			}
			baseline := float32(0)
			if idx < len(cal.Baseline) {
				baseline = cal.Baseline[idx]
			}
			out.Cells[idx] = baseline - float32(mm)
			out.Valid[idx] = true
		}
	}
	return out
}

// clip clamps every valid cell to [min, max], spec.md §4.4 step 2.
func (p *Pipeline) clip(g *Grid, min, max int) {
	lo, hi := float32(min), float32(max)
	for i, v := range g.Cells {
		if !g.Valid[i] {
			continue
		}
		if v < lo {
			g.Cells[i] = lo
		} else if v > hi {
			g.Cells[i] = hi
		}
	}
}

// spatialSmooth dispatches to the build's spatial-smoothing
// implementation (pure-Go by default, gocv-accelerated under -tags
// withcv; see spatial_default.go and blur_cv.go), spec.md §4.4 step 3.
// radius 0 is a no-op.
func (p *Pipeline) spatialSmooth(g *Grid, radius int) *Grid {
	return spatialSmoothImpl(g, radius)
}

// temporalSmooth applies the exponential moving average
// e_t = alpha*e_raw + (1-alpha)*e_{t-1}, spec.md §4.4 step 4. A cell
// with no valid previous value just takes the raw value; alpha == 1 is
// a pass-through (no temporal smoothing).
func (p *Pipeline) temporalSmooth(g *Grid, alpha float64) *Grid {
	out := NewGrid(g.Cols, g.Rows)
	for i, v := range g.Cells {
		if !g.Valid[i] {
			continue
		}
		if p.prevSmoothed != nil && i < len(p.prevSmoothed.Valid) && p.prevSmoothed.Valid[i] && alpha < 1 {
			out.Cells[i] = float32(alpha*float64(v) + (1-alpha)*float64(p.prevSmoothed.Cells[i]))
		} else {
			out.Cells[i] = v
		}
		out.Valid[i] = true
	}
	return out
}

// fillSmallIslands fills any connected component of invalid cells whose
// size is at most maxSize with the mean of its valid 8-neighbors,
// spec.md §4.4 step 5; larger holes are left invalid.
func (p *Pipeline) fillSmallIslands(g *Grid, maxSize int) {
	n := len(g.Valid)
	visited := make([]bool, n)
	var stack []int

	for start := 0; start < n; start++ {
		if g.Valid[start] || visited[start] {
			continue
		}
		stack = stack[:0]
		stack = append(stack, start)
		visited[start] = true
		component := []int{start}
		tooBig := false

		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			col, row := cur%g.Cols, cur/g.Cols
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					if dr == 0 && dc == 0 {
						continue
					}
					nc, nr := col+dc, row+dr
					if nc < 0 || nc >= g.Cols || nr < 0 || nr >= g.Rows {
						continue
					}
					ni := g.idx(nc, nr)
					if visited[ni] || g.Valid[ni] {
						continue
					}
					visited[ni] = true
					if len(component) > maxSize {
						tooBig = true
						continue
					}
					component = append(component, ni)
					if len(component) > maxSize {
						tooBig = true
						continue
					}
					stack = append(stack, ni)
				}
			}
		}

		if tooBig || len(component) > maxSize {
			continue
		}

		for _, idx := range component {
			col, row := idx%g.Cols, idx/g.Cols
			var sum float64
			var count int
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					if dr == 0 && dc == 0 {
						continue
					}
					nc, nr := col+dc, row+dr
					if nc < 0 || nc >= g.Cols || nr < 0 || nr >= g.Rows {
						continue
					}
					ni := g.idx(nc, nr)
					if g.Valid[ni] {
						sum += float64(g.Cells[ni])
						count++
					}
				}
			}
			if count > 0 {
				g.Cells[idx] = float32(sum / float64(count))
				g.Valid[idx] = true
			}
		}
	}
}
