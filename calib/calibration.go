/*
DESCRIPTION
  calibration.go defines the Calibration value type (spec.md §3) and its
  validation rules (spec.md §4.2). A Calibration is immutable once
  constructed; updates always produce a new value with a new revision,
  never mutate fields in place, matching the way revid.Config is wholly
  swapped rather than patched (revid/revid.go Update/reset).

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

// Package calib implements the Calibration Store: an immutable,
// revisioned, persistently-backed record of intrinsics, extrinsics,
// depth baseline, clip planes, and the elevation color map.
package calib

import (
	"math"

	"github.com/pkg/errors"
)

// Revision identifies an immutable Calibration value. Revisions are
// monotonically increasing and never reused.
type Revision uint32

// Grid dimension bounds, spec.md §4.2.
const (
	MinCols, MinRows = 32, 24
	MaxCols, MaxRows = 1024, 768
)

// Defaults, spec.md §3/§4.
const (
	DefaultCols          = 200
	DefaultRows          = 150
	DefaultMinElevMM     = -200
	DefaultMaxElevMM     = 220
	DefaultAlpha         = 0.3
	DefaultSpatialRadius = 1
)

// Intrinsics describes a device's optical parameters.
type Intrinsics struct {
	FocalX, FocalY         float64
	PrincipalX, PrincipalY float64
	Distortion             []float64
}

// Extrinsic is the rigid transform projecting a device's samples into
// the sandbox reference frame: x' = R*x + T.
type Extrinsic struct {
	Rotation    [3][3]float64
	Translation [3]float64
}

// IdentityExtrinsic returns the no-op extrinsic (identity rotation, zero
// translation), used as a safe default for a device with no calibrated
// placement yet.
func IdentityExtrinsic() Extrinsic {
	var e Extrinsic
	e.Rotation[0][0] = 1
	e.Rotation[1][1] = 1
	e.Rotation[2][2] = 1
	return e
}

// Plane describes the physical sandbox's reference plane.
type Plane struct {
	OriginMM  [3]float64
	AxisXMM   [3]float64
	AxisYMM   [3]float64
	ExtentXMM float64
	ExtentYMM float64
}

// Grid is the canonical resampling resolution, spec.md §3.
type Grid struct {
	Cols, Rows int
}

// Band is one (threshold, rgb) entry of the elevation color map,
// spec.md §3/§4.6. Thresholds must be strictly increasing.
type Band struct {
	ThresholdMM int
	R, G, B     uint8
}

// DefaultColorMap is the "Magic Sand" deep-to-high palette named in
// spec.md §4.6: navy, blue, sand-blue, sand, orange, green, red,
// yellow, white.
func DefaultColorMap() []Band {
	return []Band{
		{ThresholdMM: -200, R: 0, G: 0, B: 128},   // navy (deep water)
		{ThresholdMM: -120, R: 0, G: 80, B: 220},  // blue
		{ThresholdMM: -40, R: 80, G: 160, B: 220}, // sand-blue
		{ThresholdMM: 0, R: 225, G: 200, B: 130},  // sand
		{ThresholdMM: 40, R: 230, G: 140, B: 50},  // orange
		{ThresholdMM: 90, R: 60, G: 160, B: 60},   // green
		{ThresholdMM: 140, R: 190, G: 60, B: 60},  // red
		{ThresholdMM: 180, R: 230, G: 210, B: 60}, // yellow
		{ThresholdMM: 210, R: 255, G: 255, B: 255},// white (snow)
	}
}

// Calibration is the complete, immutable sensor-fusion calibration,
// spec.md §3.
type Calibration struct {
	Intrinsics map[string]Intrinsics
	Extrinsics map[string]Extrinsic
	Plane      Plane
	Grid       Grid

	// Baseline is the per-cell reference depth in millimeters,
	// row-major over Grid, captured from an empty tray.
	Baseline []float32

	MinElevMM, MaxElevMM int
	Alpha                float64 // temporal smoothing coefficient, (0,1].
	SpatialRadiusCells    int

	ColorMap []Band

	// NoDataRGB is the color assigned to invalid cells, spec.md §4.6.
	NoDataRGB [3]uint8

	// BaselineFrames is how many consecutive depth frames a baseline
	// recalibration averages, spec.md §4.7 default 30.
	BaselineFrames int
}

// Default returns a Calibration populated with spec.md's stated
// defaults and a flat (zero) baseline, suitable as a starting point
// before any physical calibration has been performed.
func Default() Calibration {
	g := Grid{Cols: DefaultCols, Rows: DefaultRows}
	return Calibration{
		Intrinsics:         map[string]Intrinsics{},
		Extrinsics:         map[string]Extrinsic{},
		Grid:               g,
		Baseline:           make([]float32, g.Cols*g.Rows),
		MinElevMM:          DefaultMinElevMM,
		MaxElevMM:          DefaultMaxElevMM,
		Alpha:              DefaultAlpha,
		SpatialRadiusCells: DefaultSpatialRadius,
		ColorMap:           DefaultColorMap(),
		NoDataRGB:          [3]uint8{20, 20, 20},
		BaselineFrames:     30,
	}
}

// ErrCalibrationInvalid is returned by Validate (and thus Store.Propose)
// when a Calibration fails validation, spec.md §7 CalibrationInvalid.
var ErrCalibrationInvalid = errors.New("calibration invalid")

// Validate enforces spec.md §4.2's rules: finite numbers, non-inverted
// clip planes, strictly increasing color-map thresholds, and grid
// dimensions within bounds.
func (c Calibration) Validate() error {
	if c.Grid.Cols < MinCols || c.Grid.Cols > MaxCols || c.Grid.Rows < MinRows || c.Grid.Rows > MaxRows {
		return errors.Wrapf(ErrCalibrationInvalid, "grid %dx%d out of bounds [%dx%d, %dx%d]",
			c.Grid.Cols, c.Grid.Rows, MinCols, MinRows, MaxCols, MaxRows)
	}
	if len(c.Baseline) != c.Grid.Cols*c.Grid.Rows {
		return errors.Wrapf(ErrCalibrationInvalid, "baseline length %d does not match grid %dx%d", len(c.Baseline), c.Grid.Cols, c.Grid.Rows)
	}
	if c.MinElevMM >= c.MaxElevMM {
		return errors.Wrapf(ErrCalibrationInvalid, "inverted clip planes [%d, %d]", c.MinElevMM, c.MaxElevMM)
	}
	if math.IsNaN(c.Alpha) || math.IsInf(c.Alpha, 0) || c.Alpha <= 0 || c.Alpha > 1 {
		return errors.Wrapf(ErrCalibrationInvalid, "alpha %v out of (0,1]", c.Alpha)
	}
	if c.SpatialRadiusCells < 0 {
		return errors.Wrap(ErrCalibrationInvalid, "negative spatial radius")
	}
	if len(c.ColorMap) == 0 {
		return errors.Wrap(ErrCalibrationInvalid, "empty color map")
	}
	prev := math.MinInt64
	for i, b := range c.ColorMap {
		if int64(b.ThresholdMM) <= int64(prev) {
			return errors.Wrapf(ErrCalibrationInvalid, "color map thresholds not strictly increasing at index %d", i)
		}
		prev = int64(b.ThresholdMM)
	}
	for id, in := range c.Intrinsics {
		if !finite(in.FocalX) || !finite(in.FocalY) || !finite(in.PrincipalX) || !finite(in.PrincipalY) {
			return errors.Wrapf(ErrCalibrationInvalid, "non-finite intrinsics for device %q", id)
		}
		for _, d := range in.Distortion {
			if !finite(d) {
				return errors.Wrapf(ErrCalibrationInvalid, "non-finite distortion coefficient for device %q", id)
			}
		}
	}
	for id, ex := range c.Extrinsics {
		for i := 0; i < 3; i++ {
			if !finite(ex.Translation[i]) {
				return errors.Wrapf(ErrCalibrationInvalid, "non-finite translation for device %q", id)
			}
			for j := 0; j < 3; j++ {
				if !finite(ex.Rotation[i][j]) {
					return errors.Wrapf(ErrCalibrationInvalid, "non-finite rotation for device %q", id)
				}
			}
		}
	}
	for _, v := range [][3]float64{c.Plane.OriginMM, c.Plane.AxisXMM, c.Plane.AxisYMM} {
		for _, f := range v {
			if !finite(f) {
				return errors.Wrap(ErrCalibrationInvalid, "non-finite sandbox plane coordinate")
			}
		}
	}
	if !finite(c.Plane.ExtentXMM) || !finite(c.Plane.ExtentYMM) || c.Plane.ExtentXMM < 0 || c.Plane.ExtentYMM < 0 {
		return errors.Wrap(ErrCalibrationInvalid, "non-finite or negative sandbox plane extent")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
