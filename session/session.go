/*
DESCRIPTION
  session.go implements the Session Coordinator (spec.md §4.7): it owns
  the pipeline lifecycle, the state machine {Initializing, Calibrating,
  Running, Degraded, Faulted}, applies control commands, and supervises
  Device Adapters. It is grounded on revid.Revid's role as the single
  owner that opens inputs, drives a tick loop, and reacts to Update()
  calls (revid/revid.go), generalized from "video pipeline" to "sensor
  fusion tick".

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

// Package session implements the Session Coordinator.
package session

import (
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/arsandbox/engine/calib"
	"github.com/arsandbox/engine/device"
	"github.com/arsandbox/engine/device/depth"
	"github.com/arsandbox/engine/elevation"
	"github.com/arsandbox/engine/feature"
	fsync "github.com/arsandbox/engine/sync"
)

// State is the Session Coordinator's lifecycle state, spec.md §4.7.
type State int

const (
	Initializing State = iota
	Calibrating
	Running
	Degraded
	Faulted
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "Initializing"
	case Calibrating:
		return "Calibrating"
	case Running:
		return "Running"
	case Degraded:
		return "Degraded"
	case Faulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}

// Defaults, spec.md §4.7/§8.
const (
	DefaultInitTimeout      = 10 * time.Second
	DefaultMaxDepthGapTicks = 30
	DefaultBaselineFrames   = 30
	DefaultErrorRingSize    = 64
)

// Logger is the subset of logging.Logger this package needs.
type Logger interface {
	Debug(msg string, params ...interface{})
	Info(msg string, params ...interface{})
	Warning(msg string, params ...interface{})
	Error(msg string, params ...interface{})
}

// Frame is the PublishedFrame data model item, spec.md §3/§6: the
// complete wire artifact for one tick, handed to a Publisher for
// encoding and fan-out.
type Frame struct {
	SchemaVersion  int
	FrameID        uint64
	CaptureTS      time.Time
	CalibrationRev calib.Revision
	Width, Height  int
	Elevation      []int16
	Color          []byte // optional, row-major packed RGB888.
	Features       *feature.Set

	DepthHealthy    bool
	ColorPriHealthy bool
	ColorAuxHealthy bool

	// *AgeMS is each configured device's last-frame age in milliseconds
	// at capture time, spec.md §6 "per-device presence booleans and
	// last-frame ages in milliseconds"; -1 for a device that was never
	// configured (as distinct from one configured but silent).
	DepthAgeMS    int64
	ColorPriAgeMS int64
	ColorAuxAgeMS int64
}

// Publisher hands off a completed Frame for encoding/broadcast. It must
// not block the tick loop; implementations should enqueue and return.
type Publisher interface {
	Publish(Frame)
}

// Config is the set of tunables a Coordinator is constructed with,
// spec.md §4.7/§8; New applies spec-stated defaults to every zero field
// except FeatureOpts, whose zero value (no features enabled) is kept.
type Config struct {
	TickPeriod       time.Duration
	InitTimeout      time.Duration
	MaxDepthGapTicks int
	BaselineFrames   int
	MinSampleMM, MaxSampleMM int
	FeatureOpts      feature.Options
}

// Coordinator owns the pipeline lifecycle, spec.md §4.7.
type Coordinator struct {
	log Logger

	depthAdapter        device.Adapter
	colorPrimaryAdapter device.Adapter
	colorAuxAdapter     device.Adapter

	synchronizer *fsync.Synchronizer
	pipeline     *elevation.Pipeline
	calibStore   *calib.Store
	publisher    Publisher

	mu               stdsync.Mutex
	state            State
	tickPeriod       time.Duration
	featureOpts      feature.Options
	maxDepthGapTicks int
	baselineFrames   int
	minSampleMM      int
	maxSampleMM      int
	initTimeout      time.Duration
	initDeadline     time.Time

	errRing    []error
	errRingCap int
	errNext    int

	frameID atomic.Uint64

	baselining     bool
	baselineTarget int
	baselineSum    []float64
	baselineCount  []int

	stop chan struct{}
	done chan struct{}

	startedAt time.Time
}

// New constructs a Coordinator. Any of the three adapters may be nil,
// spec.md §4.1: "any non-empty subset"; if all three are nil the
// Coordinator starts Faulted.
func New(depthAdapter, colorPrimaryAdapter, colorAuxAdapter device.Adapter, calibStore *calib.Store, publisher Publisher, cfg Config, log Logger) *Coordinator {
	if cfg.TickPeriod <= 0 {
		cfg.TickPeriod = fsync.DefaultTickPeriod
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = DefaultInitTimeout
	}
	if cfg.MaxDepthGapTicks <= 0 {
		cfg.MaxDepthGapTicks = DefaultMaxDepthGapTicks
	}
	if cfg.BaselineFrames <= 0 {
		cfg.BaselineFrames = DefaultBaselineFrames
	}
	if cfg.MinSampleMM == 0 && cfg.MaxSampleMM == 0 {
		cfg.MinSampleMM, cfg.MaxSampleMM = depth.DefaultMinMM, depth.DefaultMaxMM
	}

	c := &Coordinator{
		log:                 log,
		depthAdapter:        depthAdapter,
		colorPrimaryAdapter: colorPrimaryAdapter,
		colorAuxAdapter:     colorAuxAdapter,
		synchronizer:        fsync.New(depthAdapter, colorPrimaryAdapter, colorAuxAdapter),
		pipeline:            elevation.NewPipeline(cfg.MinSampleMM, cfg.MaxSampleMM, cfg.MaxDepthGapTicks),
		calibStore:          calibStore,
		publisher:           publisher,
		tickPeriod:          cfg.TickPeriod,
		featureOpts:         cfg.FeatureOpts,
		maxDepthGapTicks:    cfg.MaxDepthGapTicks,
		baselineFrames:      cfg.BaselineFrames,
		minSampleMM:         cfg.MinSampleMM,
		maxSampleMM:         cfg.MaxSampleMM,
		initTimeout:         cfg.InitTimeout,
		errRingCap:          DefaultErrorRingSize,
	}
	if depthAdapter == nil && colorPrimaryAdapter == nil && colorAuxAdapter == nil {
		c.state = Faulted
	}
	return c
}

// State returns the Coordinator's current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run opens the configured adapters and drives the tick loop until
// Close is called, spec.md §4.7/§5.
func (c *Coordinator) Run() error {
	c.mu.Lock()
	c.initDeadline = time.Now().Add(c.initTimeout)
	c.startedAt = time.Now()
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.mu.Unlock()

	for _, a := range c.adapters() {
		if a == nil {
			continue
		}
		if err := a.Open(); err != nil {
			c.recordErr(errors.Wrap(err, "session: adapter open failed"))
		}
	}

	go c.loop()
	return nil
}

func (c *Coordinator) adapters() [3]device.Adapter {
	return [3]device.Adapter{c.depthAdapter, c.colorPrimaryAdapter, c.colorAuxAdapter}
}

func (c *Coordinator) loop() {
	defer close(c.done)
	ticker := time.NewTicker(c.currentTickPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.tick(now)
		}
	}
}

func (c *Coordinator) currentTickPeriod() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickPeriod
}

// tick runs one Frame Synchronizer -> Elevation -> Feature cycle and
// advances the state machine, spec.md §4.7. It does not run the Color
// Mapper: the published Frame's Color is left empty.
func (c *Coordinator) tick(now time.Time) {
	c.evaluateInitialization()

	tuple, err := c.synchronizer.Tick(now)
	if err != nil {
		c.recordErr(err)
		c.setStateFromHealth(false, false, false)
		return
	}

	_, cal := c.calibStore.Current()

	if c.baselining {
		c.accumulateBaseline(tuple, cal)
	}

	grid, err := c.pipeline.Process(tuple, cal)
	if errors.Is(err, elevation.ErrNotCalibrated) {
		c.setState(Calibrating)
		return
	}
	if err != nil {
		c.recordErr(err)
	}

	// An adapter that was never configured is not "unhealthy": only a
	// configured-but-absent-or-stale sensor should degrade the session,
	// spec.md §4.7 "non-essential adapters absent or stale".
	depthHealthy := c.depthAdapter == nil || !tuple.DepthAbsent
	colorPriHealthy := c.colorPrimaryAdapter == nil || !tuple.ColorPrimaryAbsent
	colorAuxHealthy := c.colorAuxAdapter == nil || !tuple.ColorAuxAbsent
	c.setStateFromHealth(depthHealthy, colorPriHealthy, colorAuxHealthy)

	fs := feature.Extract(grid, c.featureOptsSnapshot(cal))

	rev, _ := c.calibStore.Current()
	frame := Frame{
		SchemaVersion:   1,
		FrameID:         c.frameID.Add(1),
		CaptureTS:       now,
		CalibrationRev:  rev,
		Width:           grid.Cols,
		Height:          grid.Rows,
		Elevation:       grid.Quantize(),
		Features:        &fs,
		DepthHealthy:    depthHealthy,
		ColorPriHealthy: colorPriHealthy,
		ColorAuxHealthy: colorAuxHealthy,
		DepthAgeMS:      adapterAgeMS(c.depthAdapter),
		ColorPriAgeMS:   adapterAgeMS(c.colorPrimaryAdapter),
		ColorAuxAgeMS:   adapterAgeMS(c.colorAuxAdapter),
	}
	if c.publisher != nil {
		c.publisher.Publish(frame)
	}
}

// adapterAgeMS reports a's last-frame age in milliseconds, or -1 if the
// device slot was never configured, spec.md §6.
func adapterAgeMS(a device.Adapter) int64 {
	if a == nil {
		return -1
	}
	return a.Status().LastFrameAge.Milliseconds()
}

func (c *Coordinator) featureOptsSnapshot(cal calib.Calibration) feature.Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	opts := c.featureOpts
	opts.MinElevMM, opts.MaxElevMM = cal.MinElevMM, cal.MaxElevMM
	return opts
}

// evaluateInitialization transitions Initializing -> Calibrating once
// the depth adapter connects, or -> Faulted after InitTimeout with it
// still unconnected, spec.md §4.7: "transitions to Calibrating once at
// least one depth adapter is connected". Color adapters do not gate
// this transition: a color-only deployment has no depth adapter to
// connect and so proceeds straight to Faulted at InitTimeout, matching
// the state description's literal depth-only condition.
func (c *Coordinator) evaluateInitialization() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Initializing {
		return
	}
	if c.depthConnectedLocked() {
		c.state = Calibrating
		return
	}
	if time.Now().After(c.initDeadline) {
		c.state = Faulted
	}
}

func (c *Coordinator) depthConnectedLocked() bool {
	return c.depthAdapter != nil && c.depthAdapter.Status().Connected
}

// setState unconditionally installs a new state (used for Calibrating
// short-circuit, which health evaluation must not immediately override).
func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// setStateFromHealth applies spec.md §4.7's Running/Degraded/Faulted
// rules once calibration exists and initialization has completed.
func (c *Coordinator) setStateFromHealth(depthOK, colorPriOK, colorAuxOK bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Initializing:
		return
	case Faulted:
		// Faulted persists for essential-depth loss until a configured
		// depth adapter recovers.
		if depthOK && c.depthAdapter != nil {
			c.state = Running
		}
		return
	case Calibrating:
		// Calibration exists; leave Calibrating once some adapter has
		// delivered a frame.
		if !depthOK && !colorPriOK && !colorAuxOK {
			return
		}
	}
	switch {
	case !depthOK:
		c.state = Degraded
	case !colorPriOK || !colorAuxOK:
		c.state = Degraded
	default:
		c.state = Running
	}
}

// recordErr appends err to the fixed-size error ring, spec.md §4.9
// "last N errors (default 64)".
func (c *Coordinator) recordErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.log != nil {
		c.log.Warning("session: error", "error", err.Error())
	}
	if len(c.errRing) < c.errRingCap {
		c.errRing = append(c.errRing, err)
		return
	}
	c.errRing[c.errNext] = err
	c.errNext = (c.errNext + 1) % c.errRingCap
}

// RecentErrors returns up to the last N recorded errors, oldest first.
func (c *Coordinator) RecentErrors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errRing) < c.errRingCap {
		out := make([]error, len(c.errRing))
		copy(out, c.errRing)
		return out
	}
	out := make([]error, c.errRingCap)
	for i := 0; i < c.errRingCap; i++ {
		out[i] = c.errRing[(c.errNext+i)%c.errRingCap]
	}
	return out
}

// Uptime returns how long ago Run was called, spec.md §4.9. Zero if Run
// has not yet been called.
func (c *Coordinator) Uptime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startedAt.IsZero() {
		return 0
	}
	return time.Since(c.startedAt)
}

// TickPeriod returns the currently configured tick period, spec.md
// §4.9 "tick cadence".
func (c *Coordinator) TickPeriod() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickPeriod
}

// CalibrationRevision returns the calibration revision currently in
// effect, spec.md §4.9.
func (c *Coordinator) CalibrationRevision() calib.Revision {
	rev, _ := c.calibStore.Current()
	return rev
}

// DeviceHealth reports each configured adapter's Status keyed by its
// ID, spec.md §4.9 "per-device health". Unconfigured adapter slots are
// omitted.
func (c *Coordinator) DeviceHealth() map[string]device.Status {
	out := make(map[string]device.Status, 3)
	for _, a := range c.adapters() {
		if a == nil {
			continue
		}
		out[a.ID()] = a.Status()
	}
	return out
}

// Close stops the tick loop and closes every adapter, spec.md §5
// cooperative shutdown.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	stop := c.stop
	done := c.done
	c.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
	var merr device.MultiError
	for _, a := range c.adapters() {
		if a == nil {
			continue
		}
		if err := a.Close(); err != nil {
			merr = append(merr, err)
		}
	}
	if len(merr) > 0 {
		return merr
	}
	return nil
}
