/*
DESCRIPTION
  control.go implements the Session Coordinator's control inputs
  (spec.md §4.7/§4.8): recalibrate, set_tick_period_ms, set_alpha,
  set_contour_step, enable_features, reset_baseline, and the baseline
  averaging recalibration runs per tick. Baseline averaging is a plain
  per-cell running sum and sample count.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

package session

import (
	"time"

	"github.com/pkg/errors"

	"github.com/arsandbox/engine/calib"
	"github.com/arsandbox/engine/device/depth"
	"github.com/arsandbox/engine/feature"
	fsync "github.com/arsandbox/engine/sync"
)

// RecalibrationTarget selects what a Recalibrate command captures,
// spec.md §4.8.
type RecalibrationTarget int

const (
	TargetBaseline RecalibrationTarget = iota
	TargetGeometry
	TargetBoth
)

// ErrUnknownTarget is returned by Recalibrate for an unrecognized
// target.
var ErrUnknownTarget = errors.New("session: unknown recalibration target")

// Recalibrate starts a recalibration run, spec.md §4.7/§4.8. "baseline"
// and "both" start a baseline capture; "both" does no geometry work
// beyond that. "geometry" only re-validates the current Calibration's
// intrinsics/extrinsics; it does not recompute them from a capture.
func (c *Coordinator) Recalibrate(target RecalibrationTarget) error {
	switch target {
	case TargetBaseline, TargetBoth:
		c.startBaselineCapture()
		return nil
	case TargetGeometry:
		_, cal := c.calibStore.Current()
		return cal.Validate()
	default:
		return ErrUnknownTarget
	}
}

// ResetBaseline is equivalent to Recalibrate(TargetBaseline), spec.md
// §4.7/§4.8 "reset_baseline".
func (c *Coordinator) ResetBaseline() error {
	return c.Recalibrate(TargetBaseline)
}

func (c *Coordinator) startBaselineCapture() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, cal := c.calibStore.Current()
	n := cal.Grid.Cols * cal.Grid.Rows
	c.baselineSum = make([]float64, n)
	c.baselineCount = make([]int, n)
	c.baselineTarget = c.baselineFrames
	c.baselining = true
}

// accumulateBaseline folds one tick's depth samples into the
// in-progress baseline capture, nearest-neighbor resampled onto the
// canonical grid by the same direct index rescale as
// elevation.Pipeline's resampleDirect (the calibrated-plane projection
// the pipeline uses once a Plane is set is not applied here), and
// finalizes the capture once baselineFrames samples have been folded in.
func (c *Coordinator) accumulateBaseline(t *fsync.Tuple, cal calib.Calibration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.baselining {
		return
	}
	if t == nil || t.DepthAbsent || t.Depth == nil {
		return
	}

	cols, rows := cal.Grid.Cols, cal.Grid.Rows
	df := t.Depth
	sw, sh := df.Width, df.Height
	if sw == 0 || sh == 0 {
		return
	}

	minMM, maxMM := c.minSampleMM, c.maxSampleMM
	if minMM == 0 && maxMM == 0 {
		minMM, maxMM = depth.DefaultMinMM, depth.DefaultMaxMM
	}

	for row := 0; row < rows; row++ {
		srow := row * sh / rows
		for col := 0; col < cols; col++ {
			scol := col * sw / cols
			mm, valid := df.At(scol, srow, minMM, maxMM)
			if !valid {
				continue
			}
			idx := row*cols + col
			c.baselineSum[idx] += float64(mm)
			c.baselineCount[idx]++
		}
	}

	c.baselineTarget--
	if c.baselineTarget <= 0 {
		c.finalizeBaselineLocked(cal)
	}
}

// finalizeBaselineLocked averages the accumulated per-cell samples
// (sum / count; a cell with no valid sample keeps its previous
// baseline), installs a new Calibration revision, and resets the
// pipeline's temporal smoothing history, spec.md §4.7. Caller must hold
// c.mu.
func (c *Coordinator) finalizeBaselineLocked(cal calib.Calibration) {
	c.baselining = false

	newBaseline := make([]float32, len(c.baselineSum))
	for i := range newBaseline {
		if c.baselineCount[i] == 0 {
			newBaseline[i] = cal.Baseline[i]
			continue
		}
		newBaseline[i] = float32(c.baselineSum[i] / float64(c.baselineCount[i]))
	}

	next := cal
	next.Baseline = newBaseline
	if _, err := c.calibStore.Propose(next); err != nil {
		c.recordErrLocked(errors.Wrap(err, "session: baseline recalibration rejected"))
		return
	}
	if err := c.calibStore.Persist(); err != nil {
		c.recordErrLocked(errors.Wrap(err, "session: baseline persist failed"))
	}
	c.pipeline.ResetHistory()
}

func (c *Coordinator) recordErrLocked(err error) {
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

// SetTickPeriod implements set_tick_period_ms, spec.md §4.7/§4.8. It
// takes effect on the next tick loop restart boundary (the running
// ticker is not reset mid-flight); callers that need it to apply
// immediately should pair this with a session restart.
func (c *Coordinator) SetTickPeriod(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickPeriod = d
}

// SetAlpha implements set_alpha, spec.md §4.7/§4.8: validated against
// the same (0,1] rule calib.Calibration.Validate enforces.
func (c *Coordinator) SetAlpha(alpha float64) error {
	_, cal := c.calibStore.Current()
	next := cal
	next.Alpha = alpha
	rev, err := c.calibStore.Propose(next)
	if err != nil {
		return err
	}
	if c.log != nil {
		c.log.Info("session: alpha updated", "revision", rev, "alpha", alpha)
	}
	return nil
}

// SetContourStep implements set_contour_step, spec.md §4.7/§4.8.
func (c *Coordinator) SetContourStep(stepMM int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.featureOpts.ContourStepMM = stepMM
}

// EnableFeatures implements enable_features, spec.md §4.7/§4.8: flags
// replace the corresponding boolean fields in the active feature.Options
// wholesale (no partial merge), matching the way revid's Update(vars)
// replaces whole config fields rather than patching them.
func (c *Coordinator) EnableFeatures(opts feature.Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prevStep, prevBins := c.featureOpts.ContourStepMM, c.featureOpts.HistogramBins
	c.featureOpts = opts
	if c.featureOpts.ContourStepMM == 0 {
		c.featureOpts.ContourStepMM = prevStep
	}
	if c.featureOpts.HistogramBins == 0 {
		c.featureOpts.HistogramBins = prevBins
	}
}
