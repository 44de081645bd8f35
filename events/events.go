// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package events defines the notifications emitted by the capture
// scheduler and a bus that delivers them to any number of subscribers.
package events

import "time"

// Type identifies the kind of an Event.
type Type string

const (
	Snapshot     Type = "snapshot"
	CameraError  Type = "camera_error"
	CameraHealth Type = "camera_health"
	NextSnapshot Type = "next_snapshot"
	Status       Type = "status"
)

// Values used for Status events.
const (
	StatusPaused         = "paused"
	StatusRunning        = "running"
	StatusWaitingWindow  = "waiting_window"
	StatusConfigReloaded = "config_reloaded"
)

// Event is a single notification. Only the fields relevant to the
// event's Type are set.
type Event struct {
	Type         Type      `json:"type"`
	Filename     string    `json:"filename,omitempty"`
	Timestamp    string    `json:"timestamp,omitempty"`
	TimestampISO string    `json:"timestamp_iso,omitempty"`
	Count        int       `json:"count,omitempty"`
	Code         string    `json:"code,omitempty"`
	Message      string    `json:"message,omitempty"`
	Status       string    `json:"status,omitempty"`
	CheckedAt    string    `json:"checked_at,omitempty"`
	NextISO      *string   `json:"next_snapshot_iso,omitempty"`
	Time         time.Time `json:"-"`
}

const displayFormat = "2006-01-02 15:04:05"

// NewSnapshot returns a snapshot event for a capture made at t.
func NewSnapshot(filename string, t time.Time, count int) Event {
	return Event{
		Type:         Snapshot,
		Filename:     filename,
		Timestamp:    t.Format(displayFormat),
		TimestampISO: t.Format(time.RFC3339),
		Count:        count,
		Time:         t,
	}
}

// NewCameraError returns a camera_error event.
func NewCameraError(code, message string, t time.Time) Event {
	return Event{Type: CameraError, Code: code, Message: message, Time: t}
}

// NewCameraHealth returns a camera_health event.
func NewCameraHealth(status, code, message string, checkedAt time.Time) Event {
	return Event{
		Type:      CameraHealth,
		Status:    status,
		Code:      code,
		Message:   message,
		CheckedAt: checkedAt.Format(displayFormat),
		Time:      checkedAt,
	}
}

// NewNextSnapshot returns a next_snapshot event, NextISO is nil
// when there is no scheduled capture.
func NewNextSnapshot(next time.Time, ok bool, now time.Time) Event {
	ev := Event{Type: NextSnapshot, Time: now}
	if ok {
		iso := next.Format(time.RFC3339)
		ev.NextISO = &iso
	}
	return ev
}

// NewStatus returns a status event.
func NewStatus(status string, t time.Time) Event {
	return Event{Type: Status, Status: status, Time: t}
}

// Publisher accepts events for delivery. Publish must never block.
type Publisher interface {
	Publish(Event)
}

type discard struct{}

func (discard) Publish(Event) {}

// Discard is a Publisher that drops all events.
var Discard Publisher = discard{}
