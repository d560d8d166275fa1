/*
DESCRIPTION
  mock.go provides deterministic synthetic depth.Capture and
  color.Capture implementations, grounded on device/file/file.go's role
  as a non-hardware AVDevice source: a way to exercise the rest of the
  pipeline without physical cameras.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

// Package mock provides synthetic depth and color device captures for
// tests and for running the engine without physical hardware.
package mock

import (
	"errors"
	"math"
	"sync"
	"time"
)

// DepthCapture produces a deterministic synthetic depth field: a cone
// centered on the grid, useful for feature-extraction determinism tests
// (spec.md §8 scenario 6).
type DepthCapture struct {
	Width, Height int
	BaseMM        int // flat-floor depth in mm.
	PeakMM        int // minimum depth (closest to camera) at the apex.
	Interval      time.Duration
	Unavailable   bool // simulate DeviceUnavailable on Open.

	mu      sync.Mutex
	open    bool
	lastGen time.Time
}

func (d *DepthCapture) Open() error {
	if d.Unavailable {
		return errors.New("no matching depth device found")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = true
	return nil
}

func (d *DepthCapture) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	return nil
}

func (d *DepthCapture) Read() ([]uint16, int, int, error) {
	d.mu.Lock()
	open := d.open
	d.mu.Unlock()
	if !open {
		return nil, 0, 0, errors.New("capture closed")
	}

	if d.Interval > 0 {
		time.Sleep(d.Interval)
	}

	w, h := d.Width, d.Height
	samples := make([]uint16, w*h)
	cx, cy := float64(w)/2, float64(h)/2
	maxR := math.Hypot(cx, cy)
	drop := d.BaseMM - d.PeakMM
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			r := math.Hypot(float64(col)-cx, float64(row)-cy)
			frac := 1 - r/maxR
			if frac < 0 {
				frac = 0
			}
			mm := d.BaseMM - int(float64(drop)*frac)
			samples[row*w+col] = uint16(mm)
		}
	}
	return samples, w, h, nil
}

// ColorCapture produces a flat synthetic color frame with every pixel
// set to (R, G, B).
type ColorCapture struct {
	Width, Height int
	R, G, B       byte
	Unavailable   bool

	mu   sync.Mutex
	open bool
}

func (c *ColorCapture) Open() error {
	if c.Unavailable {
		return errors.New("no matching color device found")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	return nil
}

func (c *ColorCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

func (c *ColorCapture) Read() ([]byte, int, int, error) {
	c.mu.Lock()
	open := c.open
	c.mu.Unlock()
	if !open {
		return nil, 0, 0, errors.New("capture closed")
	}
	pix := make([]byte, c.Width*c.Height*3)
	for i := 0; i < c.Width*c.Height; i++ {
		pix[3*i] = c.R
		pix[3*i+1] = c.G
		pix[3*i+2] = c.B
	}
	return pix, c.Width, c.Height, nil
}
