/*
DESCRIPTION
  synchronizer.go implements the Frame Synchronizer (spec.md §4.3): it
  keeps the latest frame seen from each device and, once per tick,
  assembles the most recent coherent SyncedTuple, tolerating any
  missing sensor.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

// Package sync implements the Frame Synchronizer.
package sync

import (
	"time"

	"github.com/pkg/errors"

	"github.com/arsandbox/engine/device"
	"github.com/arsandbox/engine/device/color"
	"github.com/arsandbox/engine/device/depth"
)

// Defaults, spec.md §4.3.
const (
	DefaultTickPeriod  = 33 * time.Millisecond
	DefaultSyncWindow  = 50 * time.Millisecond
	DefaultStaleness   = 500 * time.Millisecond
)

// ErrTupleEmpty is returned by Tick when every device is absent,
// spec.md §4.3. The Session Coordinator treats this as a degraded tick.
var ErrTupleEmpty = errors.New("sync: all devices absent")

// Tuple is the most recent coherent set of sensor frames for one tick,
// spec.md §3 SyncedTuple.
type Tuple struct {
	ReferenceTS time.Time

	Depth        *depth.Frame
	DepthAbsent  bool

	ColorPrimary       *color.Frame
	ColorPrimaryAbsent bool

	ColorAux       *color.Frame
	ColorAuxAbsent bool
}

// cached is the per-device latest-frame record the synchronizer keeps
// independent of (but fed by) each Adapter's own mailbox.
type cached struct {
	frame device.Frame
	have  bool
}

// update applies spec.md §4.3's tie-break rule: a strictly newer
// timestamp always displaces; equal timestamps are broken by the larger
// sequence number.
func (c *cached) update(f device.Frame) {
	if !c.have {
		c.frame, c.have = f, true
		return
	}
	switch {
	case f.Timestamp().After(c.frame.Timestamp()):
		c.frame = f
	case f.Timestamp().Equal(c.frame.Timestamp()) && f.Sequence() > c.frame.Sequence():
		c.frame = f
	}
}

// Synchronizer reads from whichever adapters are configured (any
// non-empty subset of depth/primary-color/aux-color, spec.md §4.1) and
// assembles one SyncedTuple per Tick call.
type Synchronizer struct {
	depthAdapter        device.Adapter
	colorPrimaryAdapter device.Adapter
	colorAuxAdapter     device.Adapter

	depthCached        cached
	colorPrimaryCached cached
	colorAuxCached     cached

	SyncWindow time.Duration
	Staleness  time.Duration
}

// New returns a Synchronizer over the given adapters; any of them may
// be nil to model that sensor's absence (spec.md §4.1: "the system must
// operate with any non-empty subset").
func New(depthAdapter, colorPrimaryAdapter, colorAuxAdapter device.Adapter) *Synchronizer {
	return &Synchronizer{
		depthAdapter:        depthAdapter,
		colorPrimaryAdapter: colorPrimaryAdapter,
		colorAuxAdapter:     colorAuxAdapter,
		SyncWindow:          DefaultSyncWindow,
		Staleness:           DefaultStaleness,
	}
}

// poll drains one adapter's mailbox (non-blocking: deadline is now, so
// NextFrame returns immediately if nothing new is present) and folds
// the result into c.
func (s *Synchronizer) poll(a device.Adapter, c *cached, now time.Time) {
	if a == nil {
		return
	}
	f, err := a.NextFrame(now)
	if err != nil {
		return
	}
	c.update(f)
}

// Tick assembles one SyncedTuple at time now, per spec.md §4.3.
func (s *Synchronizer) Tick(now time.Time) (*Tuple, error) {
	s.poll(s.depthAdapter, &s.depthCached, now)
	s.poll(s.colorPrimaryAdapter, &s.colorPrimaryCached, now)
	s.poll(s.colorAuxAdapter, &s.colorAuxCached, now)

	referenceTS, haveReference := s.reference()
	if !haveReference {
		return nil, ErrTupleEmpty
	}

	t := &Tuple{ReferenceTS: referenceTS}

	if s.depthCached.have {
		df := s.depthCached.frame.(*depth.Frame)
		if s.included(df.Timestamp(), referenceTS, now) {
			t.Depth = df
		} else {
			t.DepthAbsent = true
		}
	} else {
		t.DepthAbsent = true
	}

	if s.colorPrimaryCached.have {
		cf := s.colorPrimaryCached.frame.(*color.Frame)
		if s.included(cf.Timestamp(), referenceTS, now) {
			t.ColorPrimary = cf
		} else {
			t.ColorPrimaryAbsent = true
		}
	} else {
		t.ColorPrimaryAbsent = true
	}

	if s.colorAuxCached.have {
		cf := s.colorAuxCached.frame.(*color.Frame)
		if s.included(cf.Timestamp(), referenceTS, now) {
			t.ColorAux = cf
		} else {
			t.ColorAuxAbsent = true
		}
	} else {
		t.ColorAuxAbsent = true
	}

	if t.DepthAbsent && t.ColorPrimaryAbsent && t.ColorAuxAbsent {
		return nil, ErrTupleEmpty
	}
	return t, nil
}

// reference picks the reference timestamp: the most recent depth
// frame's, or, if depth is absent, the most recent color frame's,
// spec.md §4.3.
func (s *Synchronizer) reference() (time.Time, bool) {
	if s.depthCached.have {
		return s.depthCached.frame.Timestamp(), true
	}
	var best time.Time
	have := false
	if s.colorPrimaryCached.have {
		best, have = s.colorPrimaryCached.frame.Timestamp(), true
	}
	if s.colorAuxCached.have {
		t := s.colorAuxCached.frame.Timestamp()
		if !have || t.After(best) {
			best, have = t, true
		}
	}
	return best, have
}

// included reports whether a cached frame at ts should be part of the
// tuple: it must be within SyncWindow of the reference, and if it is
// itself the reference, it must not have exceeded Staleness.
func (s *Synchronizer) included(ts, referenceTS, now time.Time) bool {
	diff := ts.Sub(referenceTS)
	if diff < 0 {
		diff = -diff
	}
	if diff > s.SyncWindow {
		return false
	}
	if ts.Equal(referenceTS) && now.Sub(referenceTS) > s.Staleness {
		return false
	}
	return true
}
