package mock

import "testing"

func TestDepthCaptureConeShape(t *testing.T) {
	d := &DepthCapture{Width: 5, Height: 5, BaseMM: 1000, PeakMM: 700}
	if err := d.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	samples, w, h, err := d.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if w != 5 || h != 5 {
		t.Fatalf("dims = %dx%d, want 5x5", w, h)
	}
	center := samples[2*w+2]
	corner := samples[0]
	if center >= corner {
		t.Fatalf("center sample %d should be closer (smaller mm) than corner %d", center, corner)
	}
	if int(corner) != d.BaseMM {
		t.Fatalf("corner sample = %d, want base %d", corner, d.BaseMM)
	}
}

func TestDepthCaptureUnavailable(t *testing.T) {
	d := &DepthCapture{Unavailable: true}
	if err := d.Open(); err == nil {
		t.Fatalf("Open on an unavailable capture should error")
	}
}

func TestDepthCaptureReadBeforeOpenFails(t *testing.T) {
	d := &DepthCapture{Width: 2, Height: 2}
	if _, _, _, err := d.Read(); err == nil {
		t.Fatalf("Read before Open should error")
	}
}

func TestColorCaptureFlatColor(t *testing.T) {
	c := &ColorCapture{Width: 2, Height: 2, R: 10, G: 20, B: 30}
	if err := c.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	pix, w, h, err := c.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if w != 2 || h != 2 || len(pix) != w*h*3 {
		t.Fatalf("pixel buffer dims wrong: %dx%d len=%d", w, h, len(pix))
	}
	if pix[0] != 10 || pix[1] != 20 || pix[2] != 30 {
		t.Fatalf("pixel = %v, want (10,20,30)", pix[:3])
	}
}

func TestColorCaptureUnavailable(t *testing.T) {
	c := &ColorCapture{Unavailable: true}
	if err := c.Open(); err == nil {
		t.Fatalf("Open on an unavailable capture should error")
	}
}
