package depth

import (
	"testing"
	"time"

	"github.com/arsandbox/engine/device"
	"github.com/arsandbox/engine/device/mock"
)

func TestAdapterOpenProducesFrames(t *testing.T) {
	a := New("depth0", &mock.DepthCapture{Width: 4, Height: 3, BaseMM: 1000, PeakMM: 700}, 0, 0, 0, nil)
	if err := a.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	deadline := time.Now().Add(time.Second)
	var f device.Frame
	var err error
	for time.Now().Before(deadline) {
		f, err = a.NextFrame(time.Now().Add(10 * time.Millisecond))
		if err == nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if err != nil {
		t.Fatalf("NextFrame never produced a frame: %v", err)
	}
	df, ok := f.(*Frame)
	if !ok {
		t.Fatalf("frame type = %T, want *depth.Frame", f)
	}
	if df.Width != 4 || df.Height != 3 {
		t.Fatalf("frame dims = %dx%d, want 4x3", df.Width, df.Height)
	}
	if df.Source() != "depth0" {
		t.Fatalf("Source() = %q, want depth0", df.Source())
	}
}

func TestAdapterDefaultsWindowWhenBothZero(t *testing.T) {
	a := New("depth0", &mock.DepthCapture{}, 0, 0, 0, nil)
	minMM, maxMM := a.Window()
	if minMM != DefaultMinMM || maxMM != DefaultMaxMM {
		t.Fatalf("Window() = %d,%d, want defaults %d,%d", minMM, maxMM, DefaultMinMM, DefaultMaxMM)
	}
}

func TestAdapterKindAndID(t *testing.T) {
	a := New("depth0", &mock.DepthCapture{}, 0, 0, 0, nil)
	if a.Kind() != device.KindDepth {
		t.Fatalf("Kind() = %v, want KindDepth", a.Kind())
	}
	if a.ID() != "depth0" {
		t.Fatalf("ID() = %q, want depth0", a.ID())
	}
}

func TestFrameAtValidityWindow(t *testing.T) {
	f := &Frame{Width: 2, Height: 1, Samples: []uint16{0, 3000}}
	if _, valid := f.At(0, 0, 500, 4000); valid {
		t.Fatalf("zero sample should be invalid")
	}
	if mm, valid := f.At(1, 0, 500, 4000); !valid || mm != 3000 {
		t.Fatalf("At(1,0) = %d,%v, want 3000,true", mm, valid)
	}
	if _, valid := f.At(1, 0, 500, 2000); valid {
		t.Fatalf("sample above maxMM should be invalid")
	}
}

func TestAdapterReportsUnavailableStatus(t *testing.T) {
	a := New("depth0", &mock.DepthCapture{Unavailable: true}, 0, 0, 0, nil)
	if err := a.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer a.Close()

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if st := a.Status(); st.LastError != nil {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("adapter never recorded a connection error for an unavailable capture")
}
