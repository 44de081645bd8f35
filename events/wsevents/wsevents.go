// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package wsevents delivers events to websocket clients.
package wsevents

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cosnicolaou/capturelapse/events"
	"github.com/gorilla/websocket"
)

// Conn adapts a websocket connection to events.Subscriber.
type Conn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewConn returns a Subscriber that writes events to conn as JSON.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

func (c *Conn) Send(ctx context.Context, ev events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(events.DefaultSendTimeout)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteJSON(ev)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// Handler upgrades requests to websockets and subscribes them to bus
// until the client disconnects.
type Handler struct {
	Bus      *events.Bus
	Logger   *slog.Logger
	Upgrader websocket.Upgrader
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ws, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	id, err := h.Bus.Subscribe(NewConn(ws))
	if err != nil {
		ws.Close()
		return
	}
	logger.Info("websocket connected", "remote", r.RemoteAddr, "id", id)
	// Clients never send anything meaningful, reading is required to
	// process control frames and to notice that the client has gone.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	if err := h.Bus.Unsubscribe(id); err == nil {
		logger.Info("websocket disconnected", "remote", r.RemoteAddr, "id", id)
	}
}
