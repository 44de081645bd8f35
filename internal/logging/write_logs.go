// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package logging

import (
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	LogPending   = "pending"
	LogCompleted = "completed"
	LogFailed    = "failed"
	LogSkipped   = "skipped"
	LogHealth    = "health"
	LogStatus    = "status"
	LogConfig    = "config"
)

// Values for the trigger of a capture.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

var invocationID int64

// WritePending logs a capture that is about to be attempted and returns
// a unique identifier that must be passed to WriteCompletion.
func WritePending(l *slog.Logger, trigger, url string, now, due time.Time) int64 {
	id := atomic.AddInt64(&invocationID, 1)
	l.Info(LogPending,
		"id", id,
		"trigger", trigger,
		"url", url,
		"loc", due.Location().String(),
		"now", now,
		"due", due)
	return id
}

// WriteCompletion logs the outcome of the capture identified by id.
func WriteCompletion(l *slog.Logger, id int64, trigger string, err error, code, filename string, size int64, started, now, due time.Time) {
	msg := LogCompleted
	if err != nil {
		msg = LogFailed
	}
	l.Info(msg,
		"id", id,
		"trigger", trigger,
		"code", code,
		"filename", filename,
		"bytes", size,
		"started", started,
		"loc", due.Location().String(),
		"now", now,
		"due", due,
		"err", err)
}

// WriteSkipped logs a scheduled capture that was not attempted, attrs
// are appended to the log entry.
func WriteSkipped(l *slog.Logger, reason string, now time.Time, attrs ...any) {
	args := append([]any{"reason", reason, "loc", now.Location().String(), "now", now}, attrs...)
	l.Info(LogSkipped, args...)
}

func WriteHealth(l *slog.Logger, status, code, message string, now time.Time) {
	l.Info(LogHealth,
		"status", status,
		"code", code,
		"message", message,
		"loc", now.Location().String(),
		"now", now)
}

func WriteStatus(l *slog.Logger, status string, now time.Time) {
	l.Info(LogStatus, "status", status, "loc", now.Location().String(), "now", now)
}
