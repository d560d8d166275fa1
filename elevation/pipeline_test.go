package elevation

import (
	"testing"
	"time"

	"github.com/arsandbox/engine/calib"
	"github.com/arsandbox/engine/device/depth"
	"github.com/arsandbox/engine/sync"
)

func flatCalibration(cols, rows int) calib.Calibration {
	c := calib.Default()
	c.Grid = calib.Grid{Cols: cols, Rows: rows}
	c.Baseline = make([]float32, cols*rows)
	for i := range c.Baseline {
		c.Baseline[i] = 1000
	}
	c.MinElevMM, c.MaxElevMM = -200, 220
	c.Alpha = 1 // pass-through, easier to reason about deterministically.
	c.SpatialRadiusCells = 0
	return c
}

func flatDepthFrame(w, h int, mm uint16) *depth.Frame {
	samples := make([]uint16, w*h)
	for i := range samples {
		samples[i] = mm
	}
	return &depth.Frame{Width: w, Height: h, Samples: samples, CapturedAt: time.Now(), DeviceID: "d0", Seq: 1}
}

func TestProcessNotCalibrated(t *testing.T) {
	p := NewPipeline(500, 4000, 3)
	_, err := p.Process(&sync.Tuple{}, calib.Calibration{})
	if err != ErrNotCalibrated {
		t.Fatalf("got err %v, want ErrNotCalibrated", err)
	}
}

func TestProcessFlatFrameYieldsZeroElevation(t *testing.T) {
	cal := flatCalibration(8, 6)
	df := flatDepthFrame(8, 6, 1000) // equal to baseline -> elevation 0 everywhere.
	p := NewPipeline(500, 4000, 3)

	g, err := p.Process(&sync.Tuple{Depth: df}, cal)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i, v := range g.Cells {
		if !g.Valid[i] {
			t.Fatalf("cell %d unexpectedly invalid", i)
		}
		if v != 0 {
			t.Fatalf("cell %d = %v, want 0", i, v)
		}
	}
}

func TestProcessClipsToRange(t *testing.T) {
	cal := flatCalibration(4, 4)
	// baseline 1000 - sample 500 = 500mm elevation, clipped to MaxElevMM=220.
	df := flatDepthFrame(4, 4, 500)
	p := NewPipeline(500, 4000, 3)

	g, err := p.Process(&sync.Tuple{Depth: df}, cal)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i, v := range g.Cells {
		if !g.Valid[i] {
			t.Fatalf("cell %d unexpectedly invalid", i)
		}
		if v != 220 {
			t.Fatalf("cell %d = %v, want clipped 220", i, v)
		}
	}
}

func TestProcessDepthAbsentTolerance(t *testing.T) {
	cal := flatCalibration(4, 4)
	df := flatDepthFrame(4, 4, 1000)
	p := NewPipeline(500, 4000, 2)

	if _, err := p.Process(&sync.Tuple{Depth: df}, cal); err != nil {
		t.Fatalf("seed Process: %v", err)
	}

	// First two depth-absent ticks should reuse the cached raw grid.
	for i := 0; i < 2; i++ {
		g, err := p.Process(&sync.Tuple{DepthAbsent: true}, cal)
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if !g.Valid[0] {
			t.Fatalf("tick %d: cell 0 unexpectedly invalid within gap tolerance", i)
		}
	}

	// Exceeding MaxDepthGapTicks marks the grid entirely invalid.
	g, err := p.Process(&sync.Tuple{DepthAbsent: true}, cal)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i, valid := range g.Valid {
		if valid {
			t.Fatalf("cell %d valid after exceeding max depth gap", i)
		}
	}
}

func TestTemporalSmoothingConvergence(t *testing.T) {
	cal := flatCalibration(2, 2)
	cal.Alpha = 0.5
	p := NewPipeline(500, 4000, 1)

	df1 := flatDepthFrame(2, 2, 1000) // elevation 0
	if _, err := p.Process(&sync.Tuple{Depth: df1}, cal); err != nil {
		t.Fatalf("tick1: %v", err)
	}

	df2 := flatDepthFrame(2, 2, 900) // elevation 100
	g, err := p.Process(&sync.Tuple{Depth: df2}, cal)
	if err != nil {
		t.Fatalf("tick2: %v", err)
	}
	// alpha*100 + (1-alpha)*0 = 50.
	if got := g.Cells[0]; got != 50 {
		t.Fatalf("got %v, want 50", got)
	}
}

func TestFillSmallIslandsFillsSingleHole(t *testing.T) {
	g := NewGrid(3, 3)
	for i := range g.Cells {
		g.Cells[i] = 10
		g.Valid[i] = true
	}
	center := g.idx(1, 1)
	g.Cells[center] = 0
	g.Valid[center] = false

	p := &Pipeline{}
	p.fillSmallIslands(g, 4)

	if !g.Valid[center] {
		t.Fatalf("center cell should have been filled")
	}
	if g.Cells[center] != 10 {
		t.Fatalf("filled value = %v, want 10", g.Cells[center])
	}
}

func TestFillSmallIslandsLeavesLargeHoleInvalid(t *testing.T) {
	g := NewGrid(10, 10)
	for i := range g.Cells {
		g.Cells[i] = 10
		g.Valid[i] = true
	}
	for row := 0; row < 6; row++ {
		for col := 0; col < 6; col++ {
			idx := g.idx(col, row)
			g.Cells[idx] = 0
			g.Valid[idx] = false
		}
	}

	p := &Pipeline{}
	p.fillSmallIslands(g, 4)

	if g.Valid[g.idx(0, 0)] {
		t.Fatalf("large hole should remain invalid")
	}
}

// TestResampleUsesCalibratedPlaneWhenPresent exercises the mat.Dense
// projection path in project.go: with an identity extrinsic and a unit
// sandbox plane aligned with the source image, resample should behave
// like a 1:1 copy (scol==col, srow==row) once a calibrated Plane is
// present, rather than the pre-calibration direct-rescale fallback.
func TestResampleUsesCalibratedPlaneWhenPresent(t *testing.T) {
	cal := flatCalibration(4, 4)
	cal.Plane = calib.Plane{
		OriginMM:  [3]float64{0, 0, 0},
		AxisXMM:   [3]float64{1, 0, 0},
		AxisYMM:   [3]float64{0, 1, 0},
		ExtentXMM: 4,
		ExtentYMM: 4,
	}
	cal.Intrinsics = map[string]calib.Intrinsics{
		"d0": {FocalX: 1, FocalY: 1, PrincipalX: 0, PrincipalY: 0},
	}
	cal.Extrinsics = map[string]calib.Extrinsic{"d0": calib.IdentityExtrinsic()}

	df := flatDepthFrame(4, 4, 1) // every sample depth=1mm -> height=1mm after projection.
	p := NewPipeline(0, 10, 0)

	g := p.resample(df, cal)
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			idx := g.idx(col, row)
			if !g.Valid[idx] {
				t.Fatalf("cell (%d,%d) unexpectedly invalid", col, row)
			}
			if got, want := g.Cells[idx], float32(999); got != want {
				t.Fatalf("cell (%d,%d) = %v, want %v (baseline 1000 - height 1mm)", col, row, got, want)
			}
		}
	}
}

// TestResampleFallsBackWithoutCalibratedPlane confirms the
// zero-Calibration (no geometric calibration performed yet) case still
// uses the direct index-rescale path, matching the pre-projection
// behavior the rest of this file's tests depend on.
func TestResampleFallsBackWithoutCalibratedPlane(t *testing.T) {
	cal := flatCalibration(4, 4) // zero-value Plane: no axes set.
	df := flatDepthFrame(4, 4, 1000)
	p := NewPipeline(500, 4000, 0)

	g := p.resample(df, cal)
	for i, v := range g.Cells {
		if !g.Valid[i] {
			t.Fatalf("cell %d unexpectedly invalid", i)
		}
		if v != 0 {
			t.Fatalf("cell %d = %v, want 0 (baseline 1000 - sample 1000)", i, v)
		}
	}
}

func TestQuantizeMapsInvalidToSentinel(t *testing.T) {
	g := NewGrid(2, 1)
	g.Cells[0], g.Valid[0] = 42, true
	g.Cells[1], g.Valid[1] = 0, false

	q := g.Quantize()
	if q[0] != 42 {
		t.Fatalf("q[0] = %v, want 42", q[0])
	}
	if q[1] != Invalid {
		t.Fatalf("q[1] = %v, want Invalid sentinel", q[1])
	}
}
