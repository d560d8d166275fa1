package colormap

import (
	"testing"

	"github.com/arsandbox/engine/calib"
	"github.com/arsandbox/engine/elevation"
)

func TestMapSelectsGreatestThresholdBelowOrEqual(t *testing.T) {
	cal := calib.Default()
	cal.NoDataRGB = [3]uint8{1, 2, 3}

	g := elevation.NewGrid(3, 1)
	g.Cells[0], g.Valid[0] = -500, true // below every band -> first band.
	g.Cells[1], g.Valid[1] = 0, true    // exactly the "sand" band threshold.
	g.Cells[2], g.Valid[2] = 0, false   // invalid -> no-data color.

	out := Map(g, cal)

	first := cal.ColorMap[0]
	if out[0] != first.R || out[1] != first.G || out[2] != first.B {
		t.Fatalf("cell 0 = (%d,%d,%d), want first band (%d,%d,%d)", out[0], out[1], out[2], first.R, first.G, first.B)
	}

	var sandBand calib.Band
	for _, b := range cal.ColorMap {
		if b.ThresholdMM == 0 {
			sandBand = b
		}
	}
	if out[3] != sandBand.R || out[4] != sandBand.G || out[5] != sandBand.B {
		t.Fatalf("cell 1 = (%d,%d,%d), want sand band (%d,%d,%d)", out[3], out[4], out[5], sandBand.R, sandBand.G, sandBand.B)
	}

	if out[6] != 1 || out[7] != 2 || out[8] != 3 {
		t.Fatalf("invalid cell = (%d,%d,%d), want no-data (1,2,3)", out[6], out[7], out[8])
	}
}

func TestMapIdempotent(t *testing.T) {
	cal := calib.Default()
	g := elevation.NewGrid(4, 4)
	for i := range g.Cells {
		g.Cells[i] = float32(i * 10)
		g.Valid[i] = true
	}
	r1 := Map(g, cal)
	r2 := Map(g, cal)
	if len(r1) != len(r2) {
		t.Fatalf("length mismatch")
	}
	for i := range r1 {
		if r1[i] != r2[i] {
			t.Fatalf("byte %d differs across identical calls", i)
		}
	}
}
