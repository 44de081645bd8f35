// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package logging

import (
	"iter"
	"sync"
	"time"

	"cloudeng.io/algo/container/list"
)

// DefaultHistory is the number of completed captures retained by a
// StatusRecorder.
const DefaultHistory = 1000

// StatusRecorder tracks captures that are in progress and a bounded
// history of those that have completed.
type StatusRecorder struct {
	mu      sync.Mutex
	limit   int
	done    []*StatusRecord
	waiting *list.Double[*StatusRecord]
}

// NewStatusRecorder returns a StatusRecorder that retains at most limit
// completed records, limit <= 0 selects DefaultHistory.
func NewStatusRecorder(limit int) *StatusRecorder {
	if limit <= 0 {
		limit = DefaultHistory
	}
	return &StatusRecorder{
		limit:   limit,
		done:    make([]*StatusRecord, 0, min(limit, 64)),
		waiting: list.NewDouble[*StatusRecord](),
	}
}

type StatusRecord struct {
	ID      int64 // Unique identifier for this capture
	Trigger string
	URL     string
	Due     time.Time

	// The following fields are filled in by the status recorder.
	Pending   time.Time // Set by NewPending
	Completed time.Time // Set by PendingDone
	Filename  string
	Bytes     int64
	Code      string
	Error     error

	listID list.DoubleID[*StatusRecord]
}

func (sr *StatusRecord) Status() string {
	switch {
	case sr.Completed.IsZero():
		return "pending"
	case sr.Error != nil:
		return "failed"
	}
	return "completed"
}

func (sr *StatusRecord) ErrorMessage() string {
	if sr.Error == nil {
		return ""
	}
	return sr.Error.Error()
}

// Duration returns the time taken by a completed capture.
func (sr *StatusRecord) Duration() time.Duration {
	if sr.Completed.IsZero() {
		return 0
	}
	return sr.Completed.Sub(sr.Pending)
}

func (s *StatusRecorder) NewPending(sr *StatusRecord, now time.Time) *StatusRecord {
	if sr == nil {
		return sr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sr.listID = s.waiting.Append(sr)
	sr.Pending = now
	return sr
}

func (s *StatusRecorder) PendingDone(sr *StatusRecord, now time.Time, filename string, size int64, code string, err error) {
	if sr == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sr.Completed = now
	sr.Filename = filename
	sr.Bytes = size
	sr.Code = code
	sr.Error = err
	if len(s.done) >= s.limit {
		n := copy(s.done, s.done[1:])
		s.done = s.done[:n]
	}
	s.done = append(s.done, sr)
	s.waiting.RemoveItem(sr.listID)
}

// Completed returns an iterator over the completed records, oldest first.
func (s *StatusRecorder) Completed() iter.Seq[*StatusRecord] {
	return func(yield func(*StatusRecord) bool) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, sr := range s.done {
			if !yield(sr) {
				return
			}
		}
	}
}

// CompletedRecent returns an iterator over the completed records, most
// recent first.
func (s *StatusRecorder) CompletedRecent() iter.Seq[*StatusRecord] {
	return func(yield func(*StatusRecord) bool) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := len(s.done) - 1; i >= 0; i-- {
			if !yield(s.done[i]) {
				return
			}
		}
	}
}

func (s *StatusRecorder) Pending() iter.Seq[*StatusRecord] {
	return func(yield func(*StatusRecord) bool) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for sr := range s.waiting.Forward() {
			if !yield(sr) {
				return
			}
		}
	}
}

func (s *StatusRecorder) ResetCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = s.done[:0]
}
