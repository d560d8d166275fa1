/*
DESCRIPTION
  debug.go keeps the last N published frames for the Control &
  Diagnostics surface (spec.md §4.9 debug snapshots), following the
  same short-held-lock bounded ring buffer shape as
  session.Coordinator's errRing rather than ausocean/utils/pool: that
  package pools reusable byte buffers for high-throughput senders, not
  a fixed-size history of recent values, so it does not fit this need
  (see DESIGN.md).

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

package broadcast

import (
	"sync"

	"github.com/arsandbox/engine/session"
)

type debugRing struct {
	mu   sync.Mutex
	buf  []session.Frame
	cap  int
	next int
}

func newDebugRing(capacity int) *debugRing {
	return &debugRing{cap: capacity}
}

func (r *debugRing) add(f session.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) < r.cap {
		r.buf = append(r.buf, f)
		return
	}
	r.buf[r.next] = f
	r.next = (r.next + 1) % r.cap
}

// Recent returns up to n most-recently-published frames, oldest first.
func (r *debugRing) Recent(n int) []session.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > len(r.buf) {
		n = len(r.buf)
	}
	out := make([]session.Frame, 0, n)
	if len(r.buf) < r.cap {
		start := len(r.buf) - n
		if start < 0 {
			start = 0
		}
		out = append(out, r.buf[start:]...)
		return out
	}
	for i := 0; i < n; i++ {
		idx := (r.next + len(r.buf) - n + i) % r.cap
		out = append(out, r.buf[idx])
	}
	return out
}

// RecentFrames returns up to n of the most recently published frames
// from the debug ring, oldest first.
func (s *Server) RecentFrames(n int) []session.Frame {
	return s.debug.Recent(n)
}
