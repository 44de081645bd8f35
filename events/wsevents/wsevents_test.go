// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package wsevents_test

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cosnicolaou/capturelapse/events"
	"github.com/cosnicolaou/capturelapse/events/wsevents"
	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 500; i++ {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestWebsocket(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	bus := events.NewBus(events.WithBusLogger(logger))
	defer bus.Close()
	srv := httptest.NewServer(&wsevents.Handler{Bus: bus, Logger: logger})
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return bus.Len() == 1 })

	at := time.Date(2025, 5, 17, 9, 8, 7, 0, time.UTC)
	bus.Publish(events.NewSnapshot("snapshot_20250517_090807.jpg", at, 7))
	bus.Publish(events.NewStatus(events.StatusPaused, at))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev events.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if got, want := ev.Type, events.Snapshot; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := ev.Count, 7; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if got, want := ev.Status, events.StatusPaused; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	conn.Close()
	waitFor(t, func() bool { return bus.Len() == 0 })
}
