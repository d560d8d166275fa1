/*
DESCRIPTION
  transport.go implements Transport over persistent WebSocket
  connections (spec.md §4.8 "persistent bidirectional push
  connections"), using github.com/coder/websocket — part of this
  corpus's dependency surface (pulled in by banshee-data-velocity.report)
  and a natural fit for a push-style frame/control channel, rather than
  a hand-rolled framed TCP protocol.

LICENSE
  Copyright (C) 2026 the AR Sandbox Engine Authors.
  Licensed under the MIT License.
*/

package broadcast

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
)

// wsTransport adapts a *websocket.Conn to Transport.
type wsTransport struct {
	conn *websocket.Conn
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	conn.SetReadLimit(16 << 20) // 16MiB: bounds a single elevation+color+features frame comfortably.
	return &wsTransport{conn: conn}
}

func (t *wsTransport) WriteMessage(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	return data, err
}

func (t *wsTransport) Close(reason string) error {
	return t.conn.Close(websocket.StatusNormalClosure, reason)
}

// AcceptHandler returns an http.HandlerFunc that upgrades each incoming
// request to a WebSocket, assigns it the given subscriber id and
// options, and registers it with s. The caller is responsible for
// deriving a distinct id per connection (e.g. from a query parameter or
// a generated token).
func (s *Server) AcceptHandler(idFor func(*http.Request) string, optsFor func(*http.Request) SubscribeOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		id := idFor(r)
		opts := optsFor(r)
		s.Subscribe(id, opts, newWSTransport(conn))
	}
}
