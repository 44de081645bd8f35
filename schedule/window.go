// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package schedule

import (
	"fmt"
	"time"

	"cloudeng.io/datetime"
)

const oneDay = 24 * time.Hour

// Window is a daily time-of-day window. Equal bounds denote the entire
// day, a start after the end denotes a window that wraps past midnight.
// The end is exclusive.
type Window struct {
	Start, End datetime.TimeOfDay
}

// FullDay returns true if the window covers the entire day.
func (w Window) FullDay() bool {
	return w.Start == w.End
}

// Wraps returns true if the window extends past midnight.
func (w Window) Wraps() bool {
	return w.Start.Duration() > w.End.Duration()
}

// Contains returns true if tod falls within the window.
func (w Window) Contains(tod datetime.TimeOfDay) bool {
	s, e, t := w.Start.Duration(), w.End.Duration(), tod.Duration()
	switch {
	case s == e:
		return true
	case s < e:
		return t >= s && t < e
	default:
		return t >= s || t < e
	}
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start.Hour(), w.Start.Minute(), w.End.Hour(), w.End.Minute())
}

// span is a half-open interval, measured from midnight, within a
// single day; to may be a full day.
type span struct {
	from, to time.Duration
}

// spans returns the non-empty portions of a day that the window covers.
func (w Window) spans() []span {
	s, e := w.Start.Duration(), w.End.Duration()
	switch {
	case s == e:
		return []span{{0, oneDay}}
	case s < e:
		return []span{{s, e}}
	case e == 0:
		return []span{{s, oneDay}}
	default:
		return []span{{0, e}, {s, oneDay}}
	}
}

func (s span) intersect(o span) (span, bool) {
	r := span{max(s.from, o.from), min(s.to, o.to)}
	return r, r.from < r.to
}

// Span is a permitted capture interval, End is exclusive.
type Span struct {
	Start, End time.Time
}

func (s Span) String() string {
	return fmt.Sprintf("%v - %v", s.Start.Format(time.DateTime), s.End.Format(time.DateTime))
}
