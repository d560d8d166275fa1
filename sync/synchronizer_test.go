package sync

import (
	"testing"
	"time"

	"github.com/arsandbox/engine/device"
	"github.com/arsandbox/engine/device/color"
	"github.com/arsandbox/engine/device/depth"
)

// fakeAdapter hands back a fixed frame (or ErrDeviceTimeout) on every
// NextFrame call, letting tests drive the Synchronizer deterministically
// without a real producer goroutine.
type fakeAdapter struct {
	kind  device.Kind
	id    string
	frame device.Frame
	empty bool
}

func (a *fakeAdapter) Kind() device.Kind { return a.kind }
func (a *fakeAdapter) ID() string        { return a.id }
func (a *fakeAdapter) Open() error       { return nil }
func (a *fakeAdapter) Close() error      { return nil }
func (a *fakeAdapter) Status() device.Status { return device.Status{Connected: true} }
func (a *fakeAdapter) NextFrame(time.Time) (device.Frame, error) {
	if a.empty {
		return nil, device.ErrDeviceTimeout
	}
	return a.frame, nil
}

func TestTickAssemblesCoherentTuple(t *testing.T) {
	now := time.Now()
	depthAdapter := &fakeAdapter{kind: device.KindDepth, id: "depth0", frame: &depth.Frame{DeviceID: "depth0", CapturedAt: now, Seq: 1}}
	colorAdapter := &fakeAdapter{kind: device.KindColor, id: "color0", frame: &color.Frame{DeviceID: "color0", CapturedAt: now, Seq: 1}}

	s := New(depthAdapter, colorAdapter, nil)
	tuple, err := s.Tick(now)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if tuple.Depth == nil || tuple.DepthAbsent {
		t.Fatalf("expected depth present in tuple")
	}
	if tuple.ColorPrimary == nil || tuple.ColorPrimaryAbsent {
		t.Fatalf("expected primary color present in tuple")
	}
	if !tuple.ColorAuxAbsent {
		t.Fatalf("expected aux color absent (nil adapter)")
	}
}

func TestTickAllAbsentReturnsErrTupleEmpty(t *testing.T) {
	s := New(&fakeAdapter{empty: true}, &fakeAdapter{empty: true}, &fakeAdapter{empty: true})
	if _, err := s.Tick(time.Now()); err != ErrTupleEmpty {
		t.Fatalf("Tick with all devices absent = %v, want ErrTupleEmpty", err)
	}
}

func TestTickExcludesFrameOutsideSyncWindow(t *testing.T) {
	now := time.Now()
	depthAdapter := &fakeAdapter{kind: device.KindDepth, id: "depth0", frame: &depth.Frame{DeviceID: "depth0", CapturedAt: now, Seq: 1}}
	staleColor := &fakeAdapter{kind: device.KindColor, id: "color0", frame: &color.Frame{DeviceID: "color0", CapturedAt: now.Add(-500 * time.Millisecond), Seq: 1}}

	s := New(depthAdapter, staleColor, nil)
	tuple, err := s.Tick(now)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !tuple.ColorPrimaryAbsent {
		t.Fatalf("a color frame far outside SyncWindow should be marked absent, not included")
	}
}

func TestTickBreaksTiesBySequenceNumber(t *testing.T) {
	now := time.Now()
	var c cached
	c.update(&depth.Frame{Seq: 1, CapturedAt: now})
	c.update(&depth.Frame{Seq: 3, CapturedAt: now})
	c.update(&depth.Frame{Seq: 2, CapturedAt: now})
	if c.frame.Sequence() != 3 {
		t.Fatalf("cached.update should keep the highest sequence among equal timestamps, got seq %d", c.frame.Sequence())
	}
}

func TestReferenceTimestampPrefersDepth(t *testing.T) {
	now := time.Now()
	depthAdapter := &fakeAdapter{kind: device.KindDepth, id: "depth0", frame: &depth.Frame{DeviceID: "depth0", CapturedAt: now, Seq: 1}}
	colorAdapter := &fakeAdapter{kind: device.KindColor, id: "color0", frame: &color.Frame{DeviceID: "color0", CapturedAt: now.Add(time.Millisecond), Seq: 1}}

	s := New(depthAdapter, colorAdapter, nil)
	tuple, err := s.Tick(now.Add(time.Millisecond))
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !tuple.ReferenceTS.Equal(now) {
		t.Fatalf("ReferenceTS = %v, want depth's timestamp %v", tuple.ReferenceTS, now)
	}
}
