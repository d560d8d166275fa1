package color

import (
	"testing"
	"time"

	"github.com/arsandbox/engine/device"
	"github.com/arsandbox/engine/device/mock"
)

func TestAdapterOpenProducesFrames(t *testing.T) {
	a := New("color0", &mock.ColorCapture{Width: 4, Height: 3, R: 200, G: 170, B: 120}, 0, nil)
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
	cf, ok := f.(*Frame)
	if !ok {
		t.Fatalf("frame type = %T, want *color.Frame", f)
	}
	if !cf.Valid() {
		t.Fatalf("frame buffer length mismatch for %dx%d", cf.Width, cf.Height)
	}
}

func TestFrameValid(t *testing.T) {
	f := &Frame{Width: 2, Height: 2, Pixels: make([]byte, 2*2*3)}
	if !f.Valid() {
		t.Fatalf("correctly-sized buffer reported invalid")
	}
	f.Pixels = f.Pixels[:len(f.Pixels)-1]
	if f.Valid() {
		t.Fatalf("truncated buffer reported valid")
	}
}

func TestAdapterKindAndID(t *testing.T) {
	a := New("color-aux", &mock.ColorCapture{}, 0, nil)
	if a.Kind() != device.KindColor {
		t.Fatalf("Kind() = %v, want KindColor", a.Kind())
	}
	if a.ID() != "color-aux" {
		t.Fatalf("ID() = %q, want color-aux", a.ID())
	}
}
