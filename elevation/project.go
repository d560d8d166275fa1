/*
DESCRIPTION
  project.go back-projects a depth sample through a device's calibrated
  intrinsics and extrinsics into the sandbox's physical reference
  plane, spec.md §4.4 step 1: "projecting the sample into the canonical
  grid via the calibrated transform". The rotation half of the
  extrinsic (x' = R*x + T) is carried as a gonum/mat.Dense 3x3 and
  applied via mat.VecDense.MulVec, the same role cmd/rv/probe.go's gonum
  use plays for signal statistics elsewhere in this tree.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

package elevation

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/arsandbox/engine/calib"
)

// vec3 is a plain 3-element millimetric vector, matching the shape of
// calib.Plane's OriginMM/AxisXMM/AxisYMM fields.
type vec3 = [3]float64

func vecLen(v vec3) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

func scaleVec(v vec3, s float64) vec3 {
	return vec3{v[0] * s, v[1] * s, v[2] * s}
}

func subVec(a, b vec3) vec3 {
	return vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func dotVec(a, b vec3) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func crossVec(a, b vec3) vec3 {
	return vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func normalizeVec(v vec3) vec3 {
	l := vecLen(v)
	if l == 0 {
		return v
	}
	return scaleVec(v, 1/l)
}

// projector maps one device's raw pixel+depth samples into the
// canonical grid's (col, row) coordinates plus height above the
// sandbox plane, using that device's Intrinsics/Extrinsics from the
// active Calibration.
type projector struct {
	fx, fy, cx, cy float64
	rot            *mat.Dense // 3x3 extrinsic rotation.
	trans          vec3

	origin       vec3
	axisX, axisY vec3 // unit in-plane directions.
	normal       vec3 // unit plane normal.
	extentX      float64
	extentY      float64

	cols, rows int
}

// newProjector builds a projector for deviceID against cal, or reports
// ok=false if cal carries no usable sandbox plane yet (the zero
// Calibration's Plane has zero-length axes before any geometric
// calibration has been performed). srcW/srcH seed a generic pinhole
// model for a device with no recorded Intrinsics.
func newProjector(deviceID string, srcW, srcH int, cal calib.Calibration) (*projector, bool) {
	pl := cal.Plane
	axLen, ayLen := vecLen(pl.AxisXMM), vecLen(pl.AxisYMM)
	if axLen == 0 || ayLen == 0 || pl.ExtentXMM <= 0 || pl.ExtentYMM <= 0 {
		return nil, false
	}

	in, ok := cal.Intrinsics[deviceID]
	if !ok {
		f := float64(srcW)
		if srcH > srcW {
			f = float64(srcH)
		}
		in = calib.Intrinsics{FocalX: f, FocalY: f, PrincipalX: float64(srcW) / 2, PrincipalY: float64(srcH) / 2}
	}
	if in.FocalX == 0 || in.FocalY == 0 {
		return nil, false
	}

	ex, ok := cal.Extrinsics[deviceID]
	if !ok {
		ex = calib.IdentityExtrinsic()
	}
	rot := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.Set(i, j, ex.Rotation[i][j])
		}
	}

	uX := normalizeVec(pl.AxisXMM)
	uY := normalizeVec(pl.AxisYMM)
	normal := normalizeVec(crossVec(uX, uY))

	return &projector{
		fx: in.FocalX, fy: in.FocalY, cx: in.PrincipalX, cy: in.PrincipalY,
		rot: rot, trans: ex.Translation,
		origin: pl.OriginMM, axisX: uX, axisY: uY, normal: normal,
		extentX: pl.ExtentXMM, extentY: pl.ExtentYMM,
		cols: cal.Grid.Cols, rows: cal.Grid.Rows,
	}, true
}

// project back-projects one (scol, srow, mm) depth sample into the
// sandbox reference frame and locates it on the calibrated plane,
// returning the canonical grid cell it lands in and its signed height
// in millimeters along the plane normal AxisX x AxisY. ok is always
// true; a degenerate (zero-focal-length) device model is already
// rejected by newProjector.
func (pr *projector) project(scol, srow int, mm float64) (col, row int, heightMM float64, ok bool) {
	camX := (float64(scol) - pr.cx) / pr.fx * mm
	camY := (float64(srow) - pr.cy) / pr.fy * mm
	camZ := mm

	cam := mat.NewVecDense(3, []float64{camX, camY, camZ})
	var worldRot mat.VecDense
	worldRot.MulVec(pr.rot, cam)
	world := vec3{
		worldRot.AtVec(0) + pr.trans[0],
		worldRot.AtVec(1) + pr.trans[1],
		worldRot.AtVec(2) + pr.trans[2],
	}

	rel := subVec(world, pr.origin)
	u := dotVec(rel, pr.axisX)
	v := dotVec(rel, pr.axisY)
	heightMM = dotVec(rel, pr.normal)

	col = int(u / pr.extentX * float64(pr.cols))
	row = int(v / pr.extentY * float64(pr.rows))
	return col, row, heightMM, true
}
