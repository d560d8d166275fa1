/*
DESCRIPTION
  variables.go provides the {Name, Type, Update, Validate} table that
  drives both CLI flag and environment variable parsing, following
  revid/config/variables.go's Variables slice and parseUint/parseBool
  helpers almost 1:1 in structure.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config map Keys, spec.md §6 CLI surface plus its environment mirror.
const (
	KeyServeAddr           = "serve"
	KeyProfile             = "profile"
	KeyTickMS              = "tick-ms"
	KeyNoColor             = "no-color"
	KeyNoFeatures          = "no-features"
	KeyDeviceTimeoutMS     = "device-timeout-ms"
	KeyCanonicalGrid       = "canonical-grid"
	KeySlowSubscriberLimit = "slow-subscriber-limit"
	KeyCalibDir            = "calib-dir"
	KeyLogPath             = "log-path"
)

// EnvPrefix is the single prefix namespace spec.md §6 mirrors every CLI
// flag under, e.g. --tick-ms <-> ARSANDBOX_TICK_MS.
const EnvPrefix = "ARSANDBOX_"

const (
	typeString = "string"
	typeUint   = "uint"
	typeBool   = "bool"
	typeGrid   = "WxH"
)

// Variable describes one configuration field: its CLI flag name, a
// type label for documentation/validation tooling, an Update function
// that applies a raw string value, and an optional Validate function
// run once all Updates have been applied.
type Variable struct {
	Name     string
	Type     string
	Update   func(*Config, string)
	Validate func(*Config)
}

// Variables is the full configuration surface, spec.md §6.
var Variables = []Variable{
	{
		Name:   KeyServeAddr,
		Type:   typeString,
		Update: func(c *Config, v string) { c.ServeAddr = v },
	},
	{
		Name:   KeyProfile,
		Type:   typeString,
		Update: func(c *Config, v string) { c.Profile = v },
	},
	{
		Name:   KeyTickMS,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.TickPeriod = time.Duration(parseUint(KeyTickMS, v, c)) * time.Millisecond },
		Validate: func(c *Config) {
			if c.TickPeriod <= 0 {
				logInvalidField(c, KeyTickMS, c.TickPeriod)
				c.TickPeriod = DefaultTickPeriodFallback
			}
		},
	},
	{
		Name:   KeyNoColor,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.NoColor = parseBool(KeyNoColor, v, c) },
	},
	{
		Name:   KeyNoFeatures,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.NoFeatures = parseBool(KeyNoFeatures, v, c) },
	},
	{
		Name:   KeyDeviceTimeoutMS,
		Type:   typeUint,
		Update: func(c *Config, v string) {
			c.DeviceTimeout = time.Duration(parseUint(KeyDeviceTimeoutMS, v, c)) * time.Millisecond
		},
	},
	{
		Name:   KeyCanonicalGrid,
		Type:   typeGrid,
		Update: func(c *Config, v string) {
			cols, rows, err := parseGrid(v)
			if err != nil {
				if c.Logger != nil {
					c.Logger.Warning("invalid canonical-grid value", "value", v, "error", err.Error())
				}
				return
			}
			c.GridCols, c.GridRows = cols, rows
		},
	},
	{
		Name:   KeySlowSubscriberLimit,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.SlowSubscriberLimit = int(parseUint(KeySlowSubscriberLimit, v, c)) },
	},
	{
		Name:   KeyCalibDir,
		Type:   typeString,
		Update: func(c *Config, v string) { c.CalibDir = v },
	},
	{
		Name:   KeyLogPath,
		Type:   typeString,
		Update: func(c *Config, v string) { c.LogPath = v },
	},
}

// DefaultTickPeriodFallback is used by KeyTickMS's Validate when a
// caller supplies an invalid (non-positive) tick period.
const DefaultTickPeriodFallback = 33 * time.Millisecond

func logInvalidField(c *Config, name string, fallback interface{}) {
	if c.Logger != nil {
		c.Logger.Warning(fmt.Sprintf("invalid value for %s, using default", name), "default", fallback)
	}
}

func parseUint(n, v string, c *Config) uint {
	_v, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		if c.Logger != nil {
			c.Logger.Warning(fmt.Sprintf("expected unsigned int for param %s", n), "value", v)
		}
	}
	return uint(_v)
}

func parseBool(n, v string, c *Config) (b bool) {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no", "":
		return false
	default:
		if c.Logger != nil {
			c.Logger.Warning(fmt.Sprintf("expected bool for param %s", n), "value", v)
		}
		return false
	}
}

func parseGrid(v string) (cols, rows int, err error) {
	parts := strings.SplitN(strings.ToLower(v), "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("config: canonical-grid must be WxH, got %q", v)
	}
	c, err1 := strconv.Atoi(parts[0])
	r, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || c <= 0 || r <= 0 {
		return 0, 0, fmt.Errorf("config: canonical-grid must be WxH with positive integers, got %q", v)
	}
	return c, r, nil
}

// ParseArgs builds a Config starting from Default(), applying each
// Variable's environment value (looked up via EnvPrefix +
// upper-cased, hyphen-to-underscore Name) and then its CLI flag value
// from args, with CLI winning on conflict per spec.md §6.
func ParseArgs(args []string, lookupEnv func(string) (string, bool), log Logger) (Config, error) {
	cfg := Default()
	cfg.Logger = log

	for _, v := range Variables {
		envKey := EnvPrefix + strings.ToUpper(strings.ReplaceAll(v.Name, "-", "_"))
		if raw, ok := lookupEnv(envKey); ok {
			v.Update(&cfg, raw)
		}
	}

	fs := flag.NewFlagSet("sandboxd", flag.ContinueOnError)
	strValues := make(map[string]*string, len(Variables))
	boolValues := make(map[string]*bool, len(Variables))
	for _, v := range Variables {
		if v.Type == typeBool {
			boolValues[v.Name] = fs.Bool(v.Name, false, "see spec.md §6")
			continue
		}
		strValues[v.Name] = fs.String(v.Name, "", "see spec.md §6")
	}
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	seen := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { seen[f.Name] = true })

	for _, v := range Variables {
		if !seen[v.Name] {
			continue
		}
		if v.Type == typeBool {
			v.Update(&cfg, strconv.FormatBool(*boolValues[v.Name]))
			continue
		}
		v.Update(&cfg, *strValues[v.Name])
	}

	for _, v := range Variables {
		if v.Validate != nil {
			v.Validate(&cfg)
		}
	}

	return cfg, cfg.validate()
}

// validate checks cross-field invariants Variables' per-field Validate
// hooks can't express alone.
func (c Config) validate() error {
	if c.GridCols <= 0 || c.GridRows <= 0 {
		return fmt.Errorf("config: canonical grid must be positive, got %dx%d", c.GridCols, c.GridRows)
	}
	if c.ServeAddr == "" {
		return fmt.Errorf("config: serve address must not be empty")
	}
	return nil
}
