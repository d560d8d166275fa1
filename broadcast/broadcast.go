/*
DESCRIPTION
  broadcast.go implements the Broadcast Server (spec.md §4.8): a
  subscriber registry guarded by a short-held lock, a single-slot
  newest-wins mailbox per subscriber so a slow client never blocks the
  Session Coordinator's publish call, and slow-subscriber disconnection
  after slow_subscriber_limit consecutive drops. The per-destination
  sender shape (functional-option construction, a report/drop callback,
  an independent write goroutine per destination) follows
  revid/senders.go's httpSender/fileSender; the single-slot mailbox
  reuses device.Mailbox's atomic-swap newest-wins pattern.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

// Package broadcast implements the Broadcast Server: it fans the
// Session Coordinator's published frames out to any number of
// subscriber connections and accepts their control messages.
package broadcast

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arsandbox/engine/session"
)

// DefaultSlowSubscriberLimit is the number of consecutive dropped
// frames after which a subscriber is disconnected, spec.md §4.8.
const DefaultSlowSubscriberLimit = 300

// Logger is the minimal logging surface broadcast depends on, kept
// local so the package doesn't force a concrete logging.Logger on
// callers that embed it differently, matching the convention already
// used in device, calib and session.
type Logger interface {
	Debug(msg string, params ...interface{})
	Info(msg string, params ...interface{})
	Warning(msg string, params ...interface{})
	Error(msg string, params ...interface{})
}

// Transport abstracts one subscriber's persistent bidirectional
// connection. WriteMessage and ReadMessage each carry one JSON-encoded
// message per call.
type Transport interface {
	WriteMessage(ctx context.Context, data []byte) error
	ReadMessage(ctx context.Context) ([]byte, error)
	Close(reason string) error
}

// SubscribeOptions are the per-subscriber options of the "subscribe"
// control message, spec.md §6.
type SubscribeOptions struct {
	WantColor    bool
	WantFeatures bool
}

// frameMailbox is a single-slot, newest-wins handoff of session.Frame
// values from Publish to one subscriber's write loop, with a buffered
// wakeup channel so the write loop can block between frames instead of
// polling. Put never blocks; it reports whether it overwrote an unread
// frame (a drop).
type frameMailbox struct {
	slot   atomic.Pointer[session.Frame]
	notify chan struct{}
}

func newFrameMailbox() *frameMailbox {
	return &frameMailbox{notify: make(chan struct{}, 1)}
}

func (m *frameMailbox) put(f *session.Frame) (dropped bool) {
	old := m.slot.Swap(f)
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return old != nil
}

func (m *frameMailbox) get() *session.Frame { return m.slot.Swap(nil) }

func (m *frameMailbox) wait(ctx context.Context) bool {
	select {
	case <-m.notify:
		return true
	case <-ctx.Done():
		return false
	}
}

// Subscriber is one registered Broadcast Server client.
type Subscriber struct {
	ID   string
	opts SubscribeOptions

	conn    Transport
	mailbox *frameMailbox

	consecutiveDrops atomic.Int64
	lastFrameID      atomic.Uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// LastFrameID reports the frame id most recently written to the wire
// for this subscriber.
func (s *Subscriber) LastFrameID() uint64 { return s.lastFrameID.Load() }

// ConsecutiveDrops reports the subscriber's current run of dropped
// (never-written) frames.
func (s *Subscriber) ConsecutiveDrops() int64 { return s.consecutiveDrops.Load() }

// Server is the Broadcast Server, spec.md §4.8. It satisfies
// session.Publisher so a Session Coordinator can push frames directly
// into it.
type Server struct {
	log       Logger
	slowLimit int
	controls  Controller

	mu   sync.Mutex
	subs map[string]*Subscriber

	debug *debugRing
}

// NewServer returns a Server with the given slow-subscriber drop limit
// (0 uses DefaultSlowSubscriberLimit) dispatching control messages
// against ctl.
func NewServer(slowLimit int, ctl Controller, log Logger) *Server {
	if slowLimit <= 0 {
		slowLimit = DefaultSlowSubscriberLimit
	}
	return &Server{
		log:       log,
		slowLimit: slowLimit,
		controls:  ctl,
		subs:      make(map[string]*Subscriber),
		debug:     newDebugRing(16),
	}
}

// SetController rebinds the Controller control messages dispatch
// against. Callers that need the Server as a session.Publisher before
// the session.Coordinator itself exists (the two are mutually
// dependent at construction time) can pass a nil Controller to
// NewServer and call SetController once the Coordinator is built.
func (s *Server) SetController(ctl Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls = ctl
}

// Subscribe registers a new subscriber over conn and starts its write
// and control-read loops. It replaces any existing subscriber with the
// same id.
func (s *Server) Subscribe(id string, opts SubscribeOptions, conn Transport) *Subscriber {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscriber{
		ID:      id,
		opts:    opts,
		conn:    conn,
		mailbox: newFrameMailbox(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	if old, ok := s.subs[id]; ok {
		old.cancel()
	}
	s.subs[id] = sub
	s.mu.Unlock()

	go s.writeLoop(ctx, sub)
	go s.readLoop(ctx, sub)
	return sub
}

// Unsubscribe removes and disconnects a subscriber.
func (s *Server) Unsubscribe(id string) {
	s.mu.Lock()
	sub, ok := s.subs[id]
	if ok {
		delete(s.subs, id)
	}
	s.mu.Unlock()
	if ok {
		sub.cancel()
		_ = sub.conn.Close("unsubscribed")
	}
}

// SubscriberCount reports the number of currently registered
// subscribers, spec.md §4.9.
func (s *Server) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Publish implements session.Publisher: it fans f out to every
// subscriber's single-slot mailbox without blocking, spec.md §5 "never
// blocks producers".
func (s *Server) Publish(f session.Frame) {
	s.debug.add(f)

	s.mu.Lock()
	subs := make([]*Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		fc := f
		dropped := sub.mailbox.put(&fc)
		if dropped {
			n := sub.consecutiveDrops.Add(1)
			if int(n) >= s.slowLimit {
				s.disconnectSlow(sub)
			}
		} else {
			sub.consecutiveDrops.Store(0)
		}
	}
}

func (s *Server) disconnectSlow(sub *Subscriber) {
	s.mu.Lock()
	if cur, ok := s.subs[sub.ID]; ok && cur == sub {
		delete(s.subs, sub.ID)
	}
	s.mu.Unlock()
	if s.log != nil {
		s.log.Warning("broadcast: disconnecting slow subscriber", "id", sub.ID, "drops", sub.consecutiveDrops.Load())
	}
	sub.cancel()
	_ = sub.conn.Close("slow_subscriber")
}

func (s *Server) writeLoop(ctx context.Context, sub *Subscriber) {
	defer close(sub.done)
	for {
		if !sub.mailbox.wait(ctx) {
			return
		}
		f := sub.mailbox.get()
		if f == nil {
			continue
		}
		wire := Envelope{Type: EnvelopeFrame, Frame: encodeFrame(f, sub.opts)}
		data, err := encodeEnvelope(wire)
		if err != nil {
			if s.log != nil {
				s.log.Error("broadcast: frame encode failed", "error", err.Error())
			}
			continue
		}
		if err := sub.conn.WriteMessage(ctx, data); err != nil {
			if s.log != nil {
				s.log.Debug("broadcast: write failed, dropping subscriber", "id", sub.ID, "error", err.Error())
			}
			s.Unsubscribe(sub.ID)
			return
		}
		sub.lastFrameID.Store(f.FrameID)
	}
}

func (s *Server) readLoop(ctx context.Context, sub *Subscriber) {
	for {
		raw, err := sub.conn.ReadMessage(ctx)
		if err != nil {
			s.Unsubscribe(sub.ID)
			return
		}
		ack := s.dispatchControl(raw)
		data, err := encodeEnvelope(Envelope{Type: EnvelopeControlAck, Ack: &ack})
		if err != nil {
			continue
		}
		if err := sub.conn.WriteMessage(ctx, data); err != nil {
			s.Unsubscribe(sub.ID)
			return
		}
	}
}
