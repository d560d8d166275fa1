/*
DESCRIPTION
  color.go provides an implementation of device.Adapter for a color
  camera (primary or auxiliary): a sensor producing a fixed-resolution
  8-bit RGB buffer per capture.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

// Package color provides the color-camera device.Adapter implementation,
// shared by both the primary and auxiliary color sensors (spec.md §4.1).
package color

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/arsandbox/engine/device"
)

// Frame is a color camera capture: an owned buffer of 8-bit RGB
// samples, spec.md §3 ColorFrame. Invariant: len(Pixels) == Width*Height*3.
type Frame struct {
	Width, Height int
	Pixels        []byte // row-major RGB888.
	CapturedAt    time.Time
	DeviceID      string
	Seq           uint64
}

func (f *Frame) Timestamp() time.Time { return f.CapturedAt }
func (f *Frame) Source() string       { return f.DeviceID }
func (f *Frame) Sequence() uint64     { return f.Seq }

// Valid reports whether the frame's buffer length matches its declared
// dimensions, spec.md §3 ColorFrame invariant.
func (f *Frame) Valid() bool { return len(f.Pixels) == f.Width*f.Height*3 }

// Capture is the hardware-facing capability a color camera driver must
// provide, mirroring device/depth.Capture.
type Capture interface {
	Open() error
	Read() (pixels []byte, width, height int, err error)
	Close() error
}

const (
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = 5 * time.Second

	// DefaultDeviceTimeout is spec.md §3/§6's device_timeout_ms default.
	DefaultDeviceTimeout = 1000 * time.Millisecond
)

// Logger is the subset of logging.Logger this package needs.
type Logger interface {
	Debug(msg string, params ...interface{})
	Info(msg string, params ...interface{})
	Warning(msg string, params ...interface{})
	Error(msg string, params ...interface{})
}

// Adapter implements device.Adapter for a color camera driven by a
// Capture implementation. The same type serves both the primary and
// auxiliary color cameras spec.md §4.1 describes; they differ only in
// device id and which Capture they wrap.
type Adapter struct {
	id            string
	deviceTimeout time.Duration
	capture       Capture
	log           Logger

	mbox device.Mailbox

	mu        sync.Mutex
	connected atomic.Bool
	dropped   atomic.Uint64
	lastErr   atomic.Value
	lastSeen  atomic.Int64
	seq       atomic.Uint64

	stop   chan struct{}
	done   chan struct{}
	opened bool
}

// New returns a color Adapter for device id over the given Capture,
// with deviceTimeout bounding each blocking capture.Read call (spec.md
// §3/§6 device_timeout_ms, default 1000ms if zero).
func New(id string, capture Capture, deviceTimeout time.Duration, log Logger) *Adapter {
	if deviceTimeout <= 0 {
		deviceTimeout = DefaultDeviceTimeout
	}
	return &Adapter{id: id, deviceTimeout: deviceTimeout, capture: capture, log: log}
}

func (a *Adapter) Kind() device.Kind { return device.KindColor }
func (a *Adapter) ID() string        { return a.id }

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
	pixels []byte
	w, h   int
	err    error
}

// readDeadline runs capture.Read on its own goroutine and bounds how
// long produce waits for it by a.deviceTimeout, spec.md §5: "Producer
// blocking reads use device_timeout_ms". A Read that never returns
// leaks that one goroutine for the life of the hung call; it reports
// ErrDeviceTimeout to the caller either way.
func (a *Adapter) readDeadline() (pixels []byte, w, h int, err error) {
	resCh := make(chan readResult, 1)
	go func() {
		p, w, h, err := a.capture.Read()
		resCh <- readResult{p, w, h, err}
	}()
	select {
	case r := <-resCh:
		return r.pixels, r.w, r.h, r.err
	case <-time.After(a.deviceTimeout):
		return nil, 0, 0, device.ErrDeviceTimeout
	}
}

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

			pixels, w, h, err := a.readDeadline()
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
				Width: w, Height: h, Pixels: pixels,
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
		a.log.Warning("color adapter error", "device", a.id, "error", err.Error())
	}
}

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
	}
	return nil, device.ErrDeviceTimeout
}

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
