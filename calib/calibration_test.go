package calib

import "testing"

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() calibration failed validation: %v", err)
	}
}

func TestValidateRejectsGridOutOfBounds(t *testing.T) {
	cal := Default()
	cal.Grid = Grid{Cols: 10, Rows: 10}
	cal.Baseline = make([]float32, 100)
	if err := cal.Validate(); err == nil {
		t.Fatalf("grid below MinCols/MinRows should fail validation")
	}
}

func TestValidateRejectsMismatchedBaselineLength(t *testing.T) {
	cal := Default()
	cal.Baseline = make([]float32, len(cal.Baseline)-1)
	if err := cal.Validate(); err == nil {
		t.Fatalf("baseline length mismatch should fail validation")
	}
}

func TestValidateRejectsInvertedClipPlanes(t *testing.T) {
	cal := Default()
	cal.MinElevMM, cal.MaxElevMM = 200, -200
	if err := cal.Validate(); err == nil {
		t.Fatalf("inverted clip planes should fail validation")
	}
}

func TestValidateRejectsAlphaOutOfRange(t *testing.T) {
	cal := Default()
	cal.Alpha = 0
	if err := cal.Validate(); err == nil {
		t.Fatalf("alpha=0 should fail validation")
	}
	cal.Alpha = 1.5
	if err := cal.Validate(); err == nil {
		t.Fatalf("alpha>1 should fail validation")
	}
}

func TestValidateRejectsNonIncreasingColorMapThresholds(t *testing.T) {
	cal := Default()
	cal.ColorMap = []Band{{ThresholdMM: 0}, {ThresholdMM: 0}}
	if err := cal.Validate(); err == nil {
		t.Fatalf("non-strictly-increasing color map thresholds should fail validation")
	}
}

func TestValidateRejectsNonFiniteIntrinsics(t *testing.T) {
	cal := Default()
	cal.Intrinsics["depth0"] = Intrinsics{FocalX: 1, FocalY: 1, PrincipalX: 1, PrincipalY: 1, Distortion: []float64{1, 2}}
	if err := cal.Validate(); err != nil {
		t.Fatalf("finite intrinsics should validate: %v", err)
	}
	bad := cal.Intrinsics["depth0"]
	bad.FocalX = 1.0 / zero()
	cal.Intrinsics["depth0"] = bad
	if err := cal.Validate(); err == nil {
		t.Fatalf("non-finite intrinsics should fail validation")
	}
}

func zero() float64 { var z float64; return z }

func TestIdentityExtrinsicIsNoOp(t *testing.T) {
	e := IdentityExtrinsic()
	for i := 0; i < 3; i++ {
		if e.Translation[i] != 0 {
			t.Fatalf("identity extrinsic should have zero translation")
		}
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if e.Rotation[i][j] != want {
				t.Fatalf("identity rotation[%d][%d] = %v, want %v", i, j, e.Rotation[i][j], want)
			}
		}
	}
}
