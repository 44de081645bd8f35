// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package schedule

import (
	"time"

	"cloudeng.io/datetime"
	"github.com/cosnicolaou/capturelapse/config"
)

// instant returns the time at offset d from the start of cd, an offset
// of a full day is midnight at the start of the following day.
func (e *Evaluator) instant(cd datetime.CalendarDate, d time.Duration) time.Time {
	if d >= oneDay {
		return cd.Tomorrow().Time(0, e.loc)
	}
	return cd.Time(datetime.TimeOfDay(0).Add(d), e.loc)
}

// daySpans returns the permitted portions of the specified day taking
// the date range, weekdays, time window and solar window into account.
func (e *Evaluator) daySpans(cd datetime.CalendarDate) []span {
	if e.windowErr != nil || !e.dayAllowed(cd) {
		return nil
	}
	spans := e.window.spans()
	if !e.astral {
		return spans
	}
	sunrise, sunset, ok := e.provider.SunTimes(cd, e.place)
	if !ok {
		return nil
	}
	daylight := span{sunrise.Duration(), sunset.Duration()}
	var out []span
	for _, s := range spans {
		if r, ok := s.intersect(daylight); ok {
			out = append(out, r)
		}
	}
	return out
}

// Windows returns the intervals on the specified date during which
// captures are permitted.
func (e *Evaluator) Windows(cd datetime.CalendarDate) []Span {
	var out []Span
	for _, s := range e.daySpans(cd) {
		out = append(out, Span{Start: e.instant(cd, s.from), End: e.instant(cd, s.to)})
	}
	return out
}

// searchRange returns the dates that NextRun considers, starting at
// today. The default horizon is extended to include a future start date
// and truncated by an end date.
func (e *Evaluator) searchRange(today datetime.CalendarDate) datetime.CalendarDateRange {
	last := today
	for range e.horizon {
		last = last.Tomorrow()
	}
	if e.hasFrom && e.from > last {
		last = e.from.Tomorrow().Tomorrow()
	}
	if e.hasTo && e.to < last {
		last = max(today, e.to.Tomorrow())
	}
	return datetime.NewCalendarDateRange(today, last)
}

// align returns the first instant on the grid base + k*interval, k >= 0,
// that is not before candidate.
func align(base, candidate time.Time, interval time.Duration) time.Time {
	if !candidate.After(base) {
		return base
	}
	steps := (candidate.Sub(base) + interval - 1) / interval
	return base.Add(steps * interval)
}

// NextRun returns the next instant, at or after now, at which a capture
// should occur given that captures are aligned to base. If the schedule
// is not active at now, the start of the next permitted window is
// returned so that the first capture of a window occurs as it opens.
// Otherwise the first aligned instant within a permitted window is
// returned. ok is false if no such instant exists within the search
// horizon.
func (e *Evaluator) NextRun(now, base time.Time) (next time.Time, ok bool) {
	now, base = now.In(e.loc), base.In(e.loc)
	if e.windowErr != nil {
		if e.policy == config.FailClosed {
			return time.Time{}, false
		}
		return align(base, now, e.interval), true
	}
	active := e.Decide(now).Active
	today := datetime.CalendarDateFromTime(now)
	for day := range e.searchRange(today).Dates() {
		for _, s := range e.daySpans(day) {
			start, end := e.instant(day, s.from), e.instant(day, s.to)
			if !end.After(now) {
				continue
			}
			if !active && !start.Before(now) {
				return start, true
			}
			candidate := start
			if candidate.Before(now) {
				candidate = now
			}
			if aligned := align(base, candidate, e.interval); aligned.Before(end) {
				return aligned, true
			}
		}
	}
	return time.Time{}, false
}

// NextRun is a convenience for New(cfg, opts...).NextRun(now, base).
func NextRun(cfg config.Config, now, base time.Time, opts ...Option) (time.Time, bool) {
	return New(cfg, opts...).NextRun(now, base)
}
