package session

import (
	"testing"
	"time"

	"github.com/arsandbox/engine/calib"
	"github.com/arsandbox/engine/device"
	"github.com/arsandbox/engine/device/color"
	"github.com/arsandbox/engine/device/depth"
	"github.com/arsandbox/engine/device/mock"
)

type capturedPublisher struct {
	frames []Frame
}

func (p *capturedPublisher) Publish(f Frame) { p.frames = append(p.frames, f) }

func newTestCoordinator(t *testing.T, depthUnavailable bool) (*Coordinator, *calib.Store, *capturedPublisher) {
	t.Helper()
	dir := t.TempDir()
	cal := calib.Default()
	cal.Grid = calib.Grid{Cols: 8, Rows: 6}
	cal.Baseline = make([]float32, 8*6)
	for i := range cal.Baseline {
		cal.Baseline[i] = 1000
	}
	store := calib.NewStore(dir, "default", cal, nil)

	da := depth.New("depth0", &mock.DepthCapture{Width: 8, Height: 6, BaseMM: 1000, PeakMM: 800, Unavailable: depthUnavailable}, 500, 4000, 0, nil)
	ca := color.New("color0", &mock.ColorCapture{Width: 8, Height: 6, R: 10, G: 10, B: 10}, 0, nil)

	pub := &capturedPublisher{}
	co := New(da, ca, nil, store, pub, Config{TickPeriod: 5 * time.Millisecond, InitTimeout: 200 * time.Millisecond}, nil)
	return co, store, pub
}

func TestCoordinatorFaultedWithNoAdapters(t *testing.T) {
	dir := t.TempDir()
	store := calib.NewStore(dir, "default", calib.Default(), nil)
	co := New(nil, nil, nil, store, nil, Config{}, nil)
	if co.State() != Faulted {
		t.Fatalf("got %v, want Faulted", co.State())
	}
}

func TestCoordinatorReachesRunning(t *testing.T) {
	co, _, pub := newTestCoordinator(t, false)
	if err := co.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer co.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if co.State() == Running && len(pub.frames) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if co.State() != Running {
		t.Fatalf("got state %v, want Running", co.State())
	}
	if len(pub.frames) == 0 {
		t.Fatalf("expected at least one published frame")
	}
}

func TestCoordinatorInitTimeoutFaults(t *testing.T) {
	dir := t.TempDir()
	store := calib.NewStore(dir, "default", calib.Default(), nil)
	da := depth.New("depth0", &mock.DepthCapture{Width: 8, Height: 6, Unavailable: true}, 500, 4000, 0, nil)
	ca := color.New("color0", &mock.ColorCapture{Width: 8, Height: 6, Unavailable: true}, 0, nil)
	co := New(da, ca, nil, store, nil, Config{TickPeriod: 5 * time.Millisecond, InitTimeout: 100 * time.Millisecond}, nil)

	if err := co.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer co.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if co.State() == Faulted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("got state %v, want Faulted after init timeout", co.State())
}

// TestColorOnlyDeploymentDoesNotEnterCalibrating covers spec.md §4.7's
// depth-specific gate: a deployment with no depth adapter configured
// must not leave Initializing on a color adapter connecting, and so
// faults at InitTimeout rather than spuriously reaching Calibrating.
func TestColorOnlyDeploymentDoesNotEnterCalibrating(t *testing.T) {
	dir := t.TempDir()
	store := calib.NewStore(dir, "default", calib.Default(), nil)
	ca := color.New("color0", &mock.ColorCapture{Width: 8, Height: 6, R: 10, G: 10, B: 10}, 0, nil)
	co := New(nil, ca, nil, store, nil, Config{TickPeriod: 5 * time.Millisecond, InitTimeout: 100 * time.Millisecond}, nil)

	if err := co.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	defer co.Close()

	// Give the color adapter time to connect; the state must not become
	// Calibrating on that signal alone.
	time.Sleep(30 * time.Millisecond)
	if co.State() == Calibrating {
		t.Fatalf("color-only deployment entered Calibrating without a depth adapter")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if co.State() == Faulted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("got state %v, want Faulted after init timeout with no depth adapter", co.State())
}

func TestRecentErrorsBounded(t *testing.T) {
	co, _, _ := newTestCoordinator(t, false)
	for i := 0; i < DefaultErrorRingSize+10; i++ {
		co.recordErr(device.ErrDeviceTimeout)
	}
	errs := co.RecentErrors()
	if len(errs) != DefaultErrorRingSize {
		t.Fatalf("got %d errors, want capped at %d", len(errs), DefaultErrorRingSize)
	}
}

func TestSetAlphaUpdatesCalibrationRevision(t *testing.T) {
	co, store, _ := newTestCoordinator(t, false)
	revBefore, _ := store.Current()
	if err := co.SetAlpha(0.7); err != nil {
		t.Fatalf("SetAlpha: %v", err)
	}
	revAfter, cal := store.Current()
	if revAfter <= revBefore {
		t.Fatalf("revision did not advance: before=%v after=%v", revBefore, revAfter)
	}
	if cal.Alpha != 0.7 {
		t.Fatalf("alpha = %v, want 0.7", cal.Alpha)
	}
}
