/*
DESCRIPTION
  depth.go provides an implementation of device.Adapter for a depth
  camera: a sensor producing a fixed-resolution grid of 16-bit
  millimetric samples per capture, with 0 meaning "invalid/no return".

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

// Package depth provides the depth-camera device.Adapter implementation.
package depth

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/arsandbox/engine/device"
)

// Configuration defaults, spec.md §3.
const (
	DefaultMinMM = 500
	DefaultMaxMM = 4000

	// DefaultDeviceTimeout is spec.md §3/§6's device_timeout_ms default.
	DefaultDeviceTimeout = 1000 * time.Millisecond
)

// Frame is a depth camera capture: an owned buffer of 16-bit millimetric
// samples at a fixed width/height, spec.md §3 DepthFrame.
type Frame struct {
	Width, Height int
	Samples       []uint16 // row-major; 0 means invalid/no return.
	CapturedAt    time.Time
	DeviceID      string
	Seq           uint64
}

func (f *Frame) Timestamp() time.Time { return f.CapturedAt }
func (f *Frame) Source() string       { return f.DeviceID }
func (f *Frame) Sequence() uint64     { return f.Seq }

// At returns the sample at (col, row) and whether it is valid (nonzero
// and within [minMM, maxMM]).
func (f *Frame) At(col, row, minMM, maxMM int) (mm uint16, valid bool) {
	mm = f.Samples[row*f.Width+col]
	if mm == 0 {
		return 0, false
	}
	if int(mm) < minMM || int(mm) > maxMM {
		return mm, false
	}
	return mm, true
}

// Capture is the hardware-facing capability a depth camera driver must
// provide; Adapter drives it from a dedicated producer goroutine. This
// mirrors the way device/webcam.Webcam isolates the ffmpeg process
// behind a narrow io.ReadCloser rather than embedding process-handling
// logic inline in the AVDevice implementation.
type Capture interface {
	// Open connects to the physical device. Returns device.ErrDeviceUnavailable
	// if no matching hardware is present.
	Open() error

	// Read blocks until one frame is available or the device errors.
	// It must return promptly (no unbounded internal buffering) so the
	// Adapter's timeout logic stays meaningful.
	Read() (samples []uint16, width, height int, err error)

	// Close releases device resources.
	Close() error
}

// Backoff bounds, spec.md §4.1: "exponential backoff capped at 5s".
const (
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Adapter implements device.Adapter for a depth camera driven by a
// Capture implementation.
type Adapter struct {
	id            string
	minMM         int
	maxMM         int
	deviceTimeout time.Duration
	capture       Capture
	log           Logger

	mbox device.Mailbox

	mu        sync.Mutex
	connected atomic.Bool
	dropped   atomic.Uint64
	lastErr   atomic.Value // error
	lastSeen  atomic.Int64 // unix nanos

	seq    atomic.Uint64
	stop   chan struct{}
	done   chan struct{}
	opened bool
}

// Logger is the subset of github.com/ausocean/utils/logging.Logger the
// adapter needs; declared locally so device/depth does not have to
// import the concrete logging package just to accept an interface,
// matching the style of revid.Logger in revid/revid.go.
type Logger interface {
	Debug(msg string, params ...interface{})
	Info(msg string, params ...interface{})
	Warning(msg string, params ...interface{})
	Error(msg string, params ...interface{})
}

// New returns a depth Adapter for device id over the given Capture,
// with the valid-sample window [minMM, maxMM] (spec.md §3 default
// 500-4000mm) and deviceTimeout bounding each blocking capture.Read
// call (spec.md §3/§6 device_timeout_ms, default 1000ms if zero).
func New(id string, capture Capture, minMM, maxMM int, deviceTimeout time.Duration, log Logger) *Adapter {
	if minMM == 0 && maxMM == 0 {
		minMM, maxMM = DefaultMinMM, DefaultMaxMM
	}
	if deviceTimeout <= 0 {
		deviceTimeout = DefaultDeviceTimeout
	}
	return &Adapter{id: id, minMM: minMM, maxMM: maxMM, deviceTimeout: deviceTimeout, capture: capture, log: log}
}

func (a *Adapter) Kind() device.Kind { return device.KindDepth }
func (a *Adapter) ID() string        { return a.id }

// Open starts the producer goroutine, which itself calls capture.Open
// and retries with exponential backoff on any error other than a clean
// Close.
func (a *Adapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opened {
		return nil
	}
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	a.opened = true
	go a.produce()
	return nil
}

// readResult carries one capture.Read outcome across the readDeadline
// goroutine boundary.
type readResult struct {
	samples []uint16
	w, h    int
	err     error
}

// readDeadline runs capture.Read on its own goroutine and bounds how
// long produce waits for it by a.deviceTimeout, spec.md §5: "Producer
// blocking reads use device_timeout_ms". A Read that never returns
// leaks that one goroutine for the life of the hung call, the
// unavoidable cost of bounding an interface with no native
// cancellation; it reports ErrDeviceTimeout to the caller either way.
func (a *Adapter) readDeadline() (samples []uint16, w, h int, err error) {
	resCh := make(chan readResult, 1)
	go func() {
		s, w, h, err := a.capture.Read()
		resCh <- readResult{s, w, h, err}
	}()
	select {
	case r := <-resCh:
		return r.samples, r.w, r.h, r.err
	case <-time.After(a.deviceTimeout):
		return nil, 0, 0, device.ErrDeviceTimeout
	}
}

// produce runs for the lifetime of the Adapter on its own goroutine,
// pulling frames from capture and writing them into the mailbox.
// Reconnects never block the consumer.
func (a *Adapter) produce() {
	defer close(a.done)
	backoff := initialBackoff
	for {
		select {
		case <-a.stop:
			return
		default:
		}

		err := a.capture.Open()
		if err != nil {
			a.setErr(errors.Wrap(device.ErrDeviceUnavailable, err.Error()))
			if !a.sleepBackoff(&backoff) {
				return
			}
			continue
		}
		a.connected.Store(true)
		backoff = initialBackoff

		for {
			select {
			case <-a.stop:
				a.capture.Close()
				a.connected.Store(false)
				return
			default:
			}

			samples, w, h, err := a.readDeadline()
			if errors.Is(err, device.ErrDeviceTimeout) {
				a.connected.Store(false)
				a.setErr(device.ErrDeviceTimeout)
				a.capture.Close()
				break
			}
			if err != nil {
				a.connected.Store(false)
				a.setErr(errors.Wrap(device.ErrDeviceProtocol, err.Error()))
				a.capture.Close()
				break
			}

			f := &Frame{
				Width: w, Height: h, Samples: samples,
				CapturedAt: time.Now(), DeviceID: a.id,
				Seq: a.seq.Add(1),
			}
			a.mbox.Put(f)
			a.lastSeen.Store(f.CapturedAt.UnixNano())
		}

		if !a.sleepBackoff(&backoff) {
			return
		}
	}
}

// sleepBackoff waits for the current backoff, doubling it (capped),
// and reports whether the adapter is still running.
func (a *Adapter) sleepBackoff(backoff *time.Duration) bool {
	t := time.NewTimer(*backoff)
	defer t.Stop()
	select {
	case <-a.stop:
		return false
	case <-t.C:
	}
	*backoff *= 2
	if *backoff > maxBackoff {
		*backoff = maxBackoff
	}
	return true
}

func (a *Adapter) setErr(err error) {
	a.lastErr.Store(err)
	if a.log != nil {
		a.log.Warning("depth adapter error", "device", a.id, "error", err.Error())
	}
}

// NextFrame returns the latest frame in the mailbox, or
// device.ErrDeviceTimeout at once if the mailbox is empty; an empty
// read after deadline is also counted as a drop.
func (a *Adapter) NextFrame(deadline time.Time) (device.Frame, error) {
	f, err, ok := a.mbox.Get()
	if ok {
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	if time.Now().After(deadline) {
		a.dropped.Add(1)
		return nil, device.ErrDeviceTimeout
	}
	return nil, device.ErrDeviceTimeout
}

// Close stops the producer goroutine and waits for it to exit.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.opened {
		return nil
	}
	close(a.stop)
	<-a.done
	a.opened = false
	return nil
}

func (a *Adapter) Status() device.Status {
	var lastErr error
	if v := a.lastErr.Load(); v != nil {
		lastErr = v.(error)
	}
	var age time.Duration
	if ns := a.lastSeen.Load(); ns != 0 {
		age = time.Since(time.Unix(0, ns))
	}
	return device.Status{
		Connected:    a.connected.Load(),
		LastFrameAge: age,
		DroppedCount: a.dropped.Load(),
		LastError:    lastErr,
	}
}

// Window returns the adapter's configured valid-sample millimetric
// range, used by the elevation pipeline's depth->height conversion.
func (a *Adapter) Window() (minMM, maxMM int) { return a.minMM, a.maxMM }
