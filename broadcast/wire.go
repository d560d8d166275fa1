/*
DESCRIPTION
  wire.go implements the frame and control wire formats of spec.md §6,
  encoded as JSON for the "textual channel negotiation" path — following
  the teacher's netsender.NewJSONDecoder use in revid/senders.go for a
  self-describing, versioned wire record rather than a hand-rolled
  binary layout.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

package broadcast

import (
	"encoding/json"

	"github.com/arsandbox/engine/feature"
	"github.com/arsandbox/engine/session"
)

// EnvelopeType discriminates the two message kinds a subscriber
// connection carries in either direction, spec.md §4.8 "two logical
// channels".
type EnvelopeType string

const (
	EnvelopeFrame      EnvelopeType = "frame"
	EnvelopeControlAck EnvelopeType = "control_ack"
)

// Envelope is the top-level server->client message.
type Envelope struct {
	Type  EnvelopeType  `json:"type"`
	Frame *WireFrame    `json:"frame,omitempty"`
	Ack   *ControlAck   `json:"ack,omitempty"`
}

func encodeEnvelope(e Envelope) ([]byte, error) { return json.Marshal(e) }

// WireFrame is the frame wire format, spec.md §6.
type WireFrame struct {
	SchemaVersion  int            `json:"schema_version"`
	FrameID        uint64         `json:"frame_id"`
	CaptureTSNs    int64          `json:"capture_ts_ns"`
	CalibrationRev uint32         `json:"calibration_rev"`
	Width          int            `json:"width"`
	Height         int            `json:"height"`
	Elevation      []int16        `json:"elevation"`
	Color          []byte         `json:"color,omitempty"`
	Features       *WireFeatures  `json:"features,omitempty"`
	Health         WireHealth     `json:"health"`
}

// WirePoint is one (col, row, elev) sample, spec.md §6.
type WirePoint struct {
	Col    int     `json:"col"`
	Row    int     `json:"row"`
	ElevMM float32 `json:"elev"`
}

// WireFeatures is the optional features object, spec.md §6.
type WireFeatures struct {
	Contours  [][]WirePoint `json:"contours,omitempty"`
	Peaks     []WirePoint   `json:"peaks,omitempty"`
	Pits      []WirePoint   `json:"pits,omitempty"`
	Roughness float64       `json:"roughness"`
	Histogram []int         `json:"histogram,omitempty"`
}

// WireHealth is the per-device presence and staleness block, spec.md
// §6: "per-device presence booleans and last-frame ages in
// milliseconds". An age of -1 means that device slot was never
// configured.
type WireHealth struct {
	DepthPresent        bool  `json:"depth_present"`
	ColorPrimaryPresent bool  `json:"color_primary_present"`
	ColorAuxPresent     bool  `json:"color_aux_present"`
	DepthAgeMS          int64 `json:"depth_age_ms"`
	ColorPrimaryAgeMS   int64 `json:"color_primary_age_ms"`
	ColorAuxAgeMS       int64 `json:"color_aux_age_ms"`
}

// encodeFrame converts a session.Frame into the wire format, honoring
// the subscriber's want_color/want_features subscription options.
func encodeFrame(f *session.Frame, opts SubscribeOptions) *WireFrame {
	wf := &WireFrame{
		SchemaVersion:  f.SchemaVersion,
		FrameID:        f.FrameID,
		CaptureTSNs:    f.CaptureTS.UnixNano(),
		CalibrationRev: uint32(f.CalibrationRev),
		Width:          f.Width,
		Height:         f.Height,
		Elevation:      f.Elevation,
		Health: WireHealth{
			DepthPresent:        f.DepthHealthy,
			ColorPrimaryPresent: f.ColorPriHealthy,
			ColorAuxPresent:     f.ColorAuxHealthy,
			DepthAgeMS:          f.DepthAgeMS,
			ColorPrimaryAgeMS:   f.ColorPriAgeMS,
			ColorAuxAgeMS:       f.ColorAuxAgeMS,
		},
	}
	if opts.WantColor {
		wf.Color = f.Color
	}
	if opts.WantFeatures && f.Features != nil {
		wf.Features = encodeFeatures(f.Features)
	}
	return wf
}

func encodeFeatures(fs *feature.Set) *WireFeatures {
	wfs := &WireFeatures{
		Roughness: fs.Roughness,
		Histogram: fs.Histogram,
	}
	if len(fs.Contours) > 0 {
		wfs.Contours = make([][]WirePoint, len(fs.Contours))
		for i, c := range fs.Contours {
			pts := make([]WirePoint, len(c.Points))
			for j, p := range c.Points {
				pts[j] = WirePoint{Col: p.Col, Row: p.Row, ElevMM: p.ElevMM}
			}
			wfs.Contours[i] = pts
		}
	}
	wfs.Peaks = toWirePoints(fs.Peaks)
	wfs.Pits = toWirePoints(fs.Pits)
	return wfs
}

func toWirePoints(pts []feature.Point) []WirePoint {
	if len(pts) == 0 {
		return nil
	}
	out := make([]WirePoint, len(pts))
	for i, p := range pts {
		out[i] = WirePoint{Col: p.Col, Row: p.Row, ElevMM: p.ElevMM}
	}
	return out
}
