/*
DESCRIPTION
  config.go defines the engine's top-level Config struct and the
  CLI/environment variable surface of spec.md §6. It is grounded
  directly, in structure rather than content, on revid/config/config.go
  and revid/config/variables.go: the same {Name, Type, Update, Validate}
  Variables table shape, the same parse* helper functions, adapted to this spec's fields (serve address, profile
  name, tick period, device timeout, canonical grid size, feature/color
  toggles, slow-subscriber limit) instead of revid's video/audio
  pipeline fields.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

// Package config holds the engine's runtime configuration and the
// CLI/environment parsing that produces it, spec.md §6.
package config

import (
	"time"

	"github.com/arsandbox/engine/broadcast"
	"github.com/arsandbox/engine/sync"
)

// Logger is the subset of logging.Logger this package needs.
type Logger interface {
	Debug(msg string, params ...interface{})
	Info(msg string, params ...interface{})
	Warning(msg string, params ...interface{})
	Error(msg string, params ...interface{})
}

// Defaults, spec.md §6/§8.
const (
	DefaultServeAddr           = ":8080"
	DefaultProfile             = "default"
	DefaultCanonicalGridWidth  = 200
	DefaultCanonicalGridHeight = 150

	// DefaultDeviceTimeout is spec.md §3/§6's device_timeout_ms default:
	// how long a Device Adapter's blocking read may run before the
	// adapter reports DeviceTimeout. Distinct from sync.DefaultStaleness,
	// which bounds how old a cached frame may be before the Synchronizer
	// excludes it from a tuple.
	DefaultDeviceTimeout = 1000 * time.Millisecond
)

// Config is the engine's complete runtime configuration, assembled
// from CLI flags and environment variables by ParseArgs.
type Config struct {
	// ServeAddr is the Broadcast Server listen address, --serve.
	ServeAddr string

	// Profile is the named calibration profile to load/persist,
	// --profile.
	Profile string

	// TickPeriod is the pipeline tick period, --tick-ms.
	TickPeriod time.Duration

	// NoColor disables color adapters and color-channel output,
	// --no-color.
	NoColor bool

	// NoFeatures disables feature extraction entirely, --no-features.
	NoFeatures bool

	// DeviceTimeout bounds a Device Adapter's blocking read,
	// --device-timeout-ms.
	DeviceTimeout time.Duration

	// GridCols/GridRows is the canonical elevation grid size,
	// --canonical-grid WxH.
	GridCols, GridRows int

	// SlowSubscriberLimit is the Broadcast Server's consecutive-drop
	// disconnect threshold.
	SlowSubscriberLimit int

	// CalibDir is the directory the Calibration Store persists
	// profiles under.
	CalibDir string

	// LogPath, if non-empty, replaces the default path ("sandboxd.log")
	// of the lumberjack-rotated file structured logs are written to.
	LogPath string

	Logger Logger
}

// Default returns a Config with every spec-stated default applied.
func Default() Config {
	return Config{
		ServeAddr:           DefaultServeAddr,
		Profile:             DefaultProfile,
		TickPeriod:          sync.DefaultTickPeriod,
		DeviceTimeout:       DefaultDeviceTimeout,
		GridCols:            DefaultCanonicalGridWidth,
		GridRows:            DefaultCanonicalGridHeight,
		SlowSubscriberLimit: broadcast.DefaultSlowSubscriberLimit,
		CalibDir:            "./calibration",
	}
}
