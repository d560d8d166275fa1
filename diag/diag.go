/*
DESCRIPTION
  diag.go implements the Control & Diagnostics surface (spec.md §4.9): a
  read-only Status snapshot (session state, per-device health, tick
  cadence, last N errors, subscriber count, calibration revision,
  uptime) plus writable controls that mirror the Session Coordinator's
  §4.7 control inputs. Grounded on revid.Revid's Config()/Bitrate()
  read-only accessor style (revid/revid.go) generalized from a single
  video-bitrate figure to the richer status struct this spec requires.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

// Package diag implements the engine's Control & Diagnostics surface.
package diag

import (
	"time"

	"github.com/arsandbox/engine/calib"
	"github.com/arsandbox/engine/device"
	"github.com/arsandbox/engine/feature"
	"github.com/arsandbox/engine/session"
)

// SubscriberCounter reports how many Broadcast Server subscribers are
// currently connected, satisfied by *broadcast.Server.
type SubscriberCounter interface {
	SubscriberCount() int
}

// Coordinator is the subset of *session.Coordinator diag reads and
// writes. Declared locally so diag doesn't need to construct a
// Coordinator to be tested.
type Coordinator interface {
	State() session.State
	Uptime() time.Duration
	TickPeriod() time.Duration
	CalibrationRevision() calib.Revision
	DeviceHealth() map[string]device.Status
	RecentErrors() []error

	Recalibrate(target session.RecalibrationTarget) error
	ResetBaseline() error
	SetTickPeriod(d time.Duration)
	SetAlpha(alpha float64) error
	SetContourStep(stepMM int)
	EnableFeatures(opts feature.Options)
}

// Status is the read-only diagnostic snapshot, spec.md §4.9.
type Status struct {
	State               session.State
	Uptime               time.Duration
	TickCadence          time.Duration
	SubscriberCount      int
	CalibrationRevision  calib.Revision
	DeviceHealth         map[string]device.Status
	RecentErrors         []string
}

// Reporter composes a Coordinator and an optional SubscriberCounter
// into the Status surface. The Coordinator is required; a nil
// SubscriberCounter reports SubscriberCount 0 (e.g. when the Broadcast Server isn't
// wired up, such as in a headless calibration run).
type Reporter struct {
	coordinator Coordinator
	subscribers SubscriberCounter
}

// NewReporter returns a Reporter backed by coordinator and (optionally)
// a subscriber count source.
func NewReporter(coordinator Coordinator, subscribers SubscriberCounter) *Reporter {
	return &Reporter{coordinator: coordinator, subscribers: subscribers}
}

// Status returns a structured snapshot, spec.md §4.9. It never panics:
// errors are rendered as strings so a misbehaving RecentErrors entry
// can't break the status response.
func (r *Reporter) Status() Status {
	subCount := 0
	if r.subscribers != nil {
		subCount = r.subscribers.SubscriberCount()
	}

	errs := r.coordinator.RecentErrors()
	strs := make([]string, len(errs))
	for i, e := range errs {
		if e == nil {
			strs[i] = ""
			continue
		}
		strs[i] = e.Error()
	}

	return Status{
		State:               r.coordinator.State(),
		Uptime:              r.coordinator.Uptime(),
		TickCadence:         r.coordinator.TickPeriod(),
		SubscriberCount:     subCount,
		CalibrationRevision: r.coordinator.CalibrationRevision(),
		DeviceHealth:        r.coordinator.DeviceHealth(),
		RecentErrors:        strs,
	}
}

// Recalibrate, ResetBaseline, SetTickPeriod, SetAlpha, SetContourStep
// and EnableFeatures mirror spec.md §4.7's control inputs so an
// operator-facing diagnostics surface (CLI, HTTP admin endpoint) can
// drive the Session Coordinator without importing it directly.

func (r *Reporter) Recalibrate(target session.RecalibrationTarget) error {
	return r.coordinator.Recalibrate(target)
}

func (r *Reporter) ResetBaseline() error { return r.coordinator.ResetBaseline() }

func (r *Reporter) SetTickPeriod(d time.Duration) { r.coordinator.SetTickPeriod(d) }

func (r *Reporter) SetAlpha(alpha float64) error { return r.coordinator.SetAlpha(alpha) }

func (r *Reporter) SetContourStep(stepMM int) { r.coordinator.SetContourStep(stepMM) }

func (r *Reporter) EnableFeatures(opts feature.Options) { r.coordinator.EnableFeatures(opts) }
