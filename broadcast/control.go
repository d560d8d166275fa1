/*
DESCRIPTION
  control.go decodes and dispatches the control wire format of spec.md
  §6 against a Controller (satisfied by *session.Coordinator), returning
  a structured {op_id, status, reason} acknowledgment. Invalid messages
  are rejected with a reason code without affecting any other
  subscriber, per spec.md §4.8.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

package broadcast

import (
	"encoding/json"
	"time"

	"github.com/arsandbox/engine/feature"
	"github.com/arsandbox/engine/session"
)

// Controller is the subset of *session.Coordinator the Broadcast
// Server drives control messages against. Declaring it as a local
// interface (rather than importing the concrete type everywhere)
// keeps broadcast's control dispatch independently testable.
type Controller interface {
	Recalibrate(target session.RecalibrationTarget) error
	ResetBaseline() error
	SetTickPeriod(d time.Duration)
	SetAlpha(alpha float64) error
	SetContourStep(stepMM int)
	EnableFeatures(opts feature.Options)
}

// controlMessage is the client->server control wire format, spec.md §6.
// Fields not relevant to a given op are left zero.
type controlMessage struct {
	OpID  string          `json:"op_id"`
	Op    string          `json:"op"`
	Target string         `json:"target"`
	Value float64         `json:"value"`
	Flags json.RawMessage `json:"flags"`
}

// featureFlags mirrors feature.Options' boolean switches for the
// enable_features op.
type featureFlags struct {
	Contours      *bool `json:"contours"`
	Gradient      *bool `json:"gradient"`
	PeaksPits     *bool `json:"peaks_pits"`
	Roughness     *bool `json:"roughness"`
	Histogram     *bool `json:"histogram"`
	ContourStepMM *int  `json:"contour_step_mm"`
	HistogramBins *int  `json:"histogram_bins"`
}

// ControlAck is the server->client acknowledgment, spec.md §6.
type ControlAck struct {
	OpID   string `json:"op_id"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func ackOK(opID string) ControlAck     { return ControlAck{OpID: opID, Status: "ok"} }
func ackError(opID, reason string) ControlAck {
	return ControlAck{OpID: opID, Status: "error", Reason: reason}
}

// dispatchControl decodes raw and applies it to s.controls, never
// panicking on malformed input.
func (s *Server) dispatchControl(raw []byte) ControlAck {
	s.mu.Lock()
	ctl := s.controls
	s.mu.Unlock()
	if ctl == nil {
		return ackError("", "no controller configured")
	}

	var msg controlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ackError("", "malformed control message: "+err.Error())
	}

	switch msg.Op {
	case "recalibrate":
		target, err := parseTarget(msg.Target)
		if err != nil {
			return ackError(msg.OpID, err.Error())
		}
		if err := ctl.Recalibrate(target); err != nil {
			return ackError(msg.OpID, err.Error())
		}
		return ackOK(msg.OpID)

	case "reset_baseline":
		if err := ctl.ResetBaseline(); err != nil {
			return ackError(msg.OpID, err.Error())
		}
		return ackOK(msg.OpID)

	case "set_tick_period_ms":
		if msg.Value <= 0 {
			return ackError(msg.OpID, "value must be positive")
		}
		ctl.SetTickPeriod(time.Duration(msg.Value) * time.Millisecond)
		return ackOK(msg.OpID)

	case "set_alpha":
		if err := ctl.SetAlpha(msg.Value); err != nil {
			return ackError(msg.OpID, err.Error())
		}
		return ackOK(msg.OpID)

	case "set_contour_step":
		ctl.SetContourStep(int(msg.Value))
		return ackOK(msg.OpID)

	case "enable_features":
		opts, err := parseFeatureFlags(msg.Flags)
		if err != nil {
			return ackError(msg.OpID, err.Error())
		}
		ctl.EnableFeatures(opts)
		return ackOK(msg.OpID)

	case "subscribe":
		// Subscriptions are established out-of-band when the transport
		// is accepted (Server.Subscribe); a "subscribe" control message
		// on an already-open connection is acknowledged but does not
		// change per-connection options, since SubscribeOptions are
		// immutable for the lifetime of a Subscriber.
		return ackOK(msg.OpID)

	default:
		return ackError(msg.OpID, "unknown op: "+msg.Op)
	}
}

func parseTarget(s string) (session.RecalibrationTarget, error) {
	switch s {
	case "baseline", "":
		return session.TargetBaseline, nil
	case "geometry":
		return session.TargetGeometry, nil
	case "both":
		return session.TargetBoth, nil
	default:
		return 0, errUnknownTarget(s)
	}
}

type errUnknownTarget string

func (e errUnknownTarget) Error() string { return "unknown recalibration target: " + string(e) }

func parseFeatureFlags(raw json.RawMessage) (feature.Options, error) {
	var opts feature.Options
	if len(raw) == 0 {
		return opts, nil
	}
	var ff featureFlags
	if err := json.Unmarshal(raw, &ff); err != nil {
		return opts, err
	}
	if ff.Contours != nil {
		opts.Contours = *ff.Contours
	}
	if ff.Gradient != nil {
		opts.Gradient = *ff.Gradient
	}
	if ff.PeaksPits != nil {
		opts.PeaksPits = *ff.PeaksPits
	}
	if ff.Roughness != nil {
		opts.Roughness = *ff.Roughness
	}
	if ff.Histogram != nil {
		opts.Histogram = *ff.Histogram
	}
	if ff.ContourStepMM != nil {
		opts.ContourStepMM = *ff.ContourStepMM
	}
	if ff.HistogramBins != nil {
		opts.HistogramBins = *ff.HistogramBins
	}
	return opts, nil
}
