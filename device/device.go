/*
DESCRIPTION
  device.go provides the frame-producer capability that every physical
  sensor (depth or color camera) is abstracted behind, and the
  newest-wins mailbox used to hand frames from a device's producer
  thread to the pipeline thread without blocking either side.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

// Package device provides an interface and newest-wins mailbox for
// frame-producing sensors (depth and color cameras) that the Frame
// Synchronizer reads from.
package device

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Kind distinguishes the two device capability classes spec.md §4.1
// requires: depth (16-bit millimetric) and color (8-bit RGB).
type Kind int

const (
	KindDepth Kind = iota
	KindColor
)

func (k Kind) String() string {
	switch k {
	case KindDepth:
		return "depth"
	case KindColor:
		return "color"
	default:
		return "unknown"
	}
}

// Named error kinds, spec.md §7.
var (
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrDeviceTimeout     = errors.New("device timeout")
	ErrDeviceProtocol    = errors.New("device protocol error")
)

// Frame is the minimal shape a device adapter hands to its mailbox;
// DepthFrame and ColorFrame (declared in the depth/color packages)
// both satisfy it.
type Frame interface {
	// Timestamp returns the frame's monotonically increasing capture
	// time.
	Timestamp() time.Time

	// Source returns the id of the device that produced the frame.
	Source() string

	// Sequence returns the device-local monotonically increasing
	// sequence number, used to break timestamp ties.
	Sequence() uint64
}

// Status reports the health of an Adapter, spec.md §4.1.
type Status struct {
	Connected    bool
	LastFrameAge time.Duration
	DroppedCount uint64
	LastError    error
}

// Adapter abstracts a single physical sensor from which frames can be
// pulled. Implementations run their own producer thread internally;
// NextFrame does not block.
type Adapter interface {
	// Kind reports whether this adapter is a depth or color source.
	Kind() Kind

	// ID is the stable device identifier used as Frame.Source() and in
	// health/calibration lookups.
	ID() string

	// Open starts the adapter's producer thread. A missing physical
	// device does not make Open fail: the producer thread keeps
	// retrying and reports ErrDeviceUnavailable through Status's
	// LastError.
	Open() error

	// NextFrame takes the most recent frame from the mailbox without
	// waiting. If the mailbox is empty it returns ErrDeviceTimeout at
	// once; deadline only decides whether that empty read is counted
	// as a drop (it is once deadline has passed). Read and decode
	// failures of the producer thread are reported through Status, not
	// through NextFrame.
	NextFrame(deadline time.Time) (Frame, error)

	// Close stops the producer thread and releases device resources.
	Close() error

	// Status reports current health without blocking.
	Status() Status
}

// MultiError collects more than one configuration problem, exactly as
// the teacher's device.MultiError does for AVDevice.Set.
type MultiError []error

func (me MultiError) Error() string {
	if len(me) == 0 {
		panic("device: invalid use of MultiError")
	}
	return fmt.Sprintf("%v", []error(me))
}

// Mailbox is a single-slot, newest-wins handoff between a device's
// producer thread and the single pipeline-thread consumer. Writes never
// block; a write simply replaces whatever was unread. Reads never block
// past their deadline. This is the building block spec.md §5 requires
// for the hot path: "no locks on the hot path", "atomic swap".
type Mailbox struct {
	slot atomic.Pointer[mailboxEntry]
}

type mailboxEntry struct {
	frame Frame
	err   error
}

// Put installs f as the latest value in the mailbox, discarding
// whatever was there before (newest-wins). Put never blocks.
func (m *Mailbox) Put(f Frame) {
	m.slot.Store(&mailboxEntry{frame: f})
}

// PutError installs a terminal error in the mailbox so the next Get
// observes it instead of a stale frame.
func (m *Mailbox) PutError(err error) {
	m.slot.Store(&mailboxEntry{err: err})
}

// Get atomically takes whatever is currently in the mailbox, leaving it
// empty. ok is false if nothing has been put since the last Get.
func (m *Mailbox) Get() (f Frame, err error, ok bool) {
	e := m.slot.Swap(nil)
	if e == nil {
		return nil, nil, false
	}
	return e.frame, e.err, true
}

// Peek returns whatever is currently in the mailbox without consuming
// it.
func (m *Mailbox) Peek() (f Frame, err error, ok bool) {
	e := m.slot.Load()
	if e == nil {
		return nil, nil, false
	}
	return e.frame, e.err, true
}
