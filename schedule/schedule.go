// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package schedule decides whether a capture is permitted at a given
// instant and computes when the next capture should occur. Both are
// pure functions of the configuration and the supplied times.
package schedule

import (
	"log/slog"
	"time"

	"cloudeng.io/datetime"
	"github.com/cosnicolaou/capturelapse/config"
	"github.com/cosnicolaou/capturelapse/solar"
)

// Reason explains a Decision.
type Reason string

const (
	ReasonActive              Reason = "active"
	ReasonInvalidTimeWindow   Reason = "invalid_time_window"
	ReasonOutsideDateRange    Reason = "outside_date_range"
	ReasonWeekdayDisabled     Reason = "weekday_disabled"
	ReasonOutsideTimeWindow   Reason = "outside_time_window"
	ReasonAstralUnavailable   Reason = "astral_unavailable"
	ReasonOutsideAstralWindow Reason = "outside_astral_window"
)

// DefaultHorizon is the number of days NextRun searches ahead.
const DefaultHorizon = 30

// Decision is the outcome of evaluating the schedule at an instant
// along with the diagnostics used to reach it.
type Decision struct {
	Active      bool
	Reason      Reason
	EvaluatedAt time.Time
	Window      Window
	WindowValid bool
	Weekday     string
	Sunrise     datetime.TimeOfDay
	Sunset      datetime.TimeOfDay
	HasSolar    bool
	DateFrom    string
	DateTo      string
	ActiveDays  []string
	UseAstral   bool
}

// LogValue implements slog.LogValuer.
func (d Decision) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Bool("active", d.Active),
		slog.String("reason", string(d.Reason)),
		slog.Time("at", d.EvaluatedAt),
		slog.String("weekday", d.Weekday),
	}
	if d.WindowValid {
		attrs = append(attrs, slog.String("window", d.Window.String()))
	}
	if d.UseAstral {
		attrs = append(attrs, slog.Bool("solar", d.HasSolar))
		if d.HasSolar {
			attrs = append(attrs, slog.String("sunrise", d.Sunrise.String()), slog.String("sunset", d.Sunset.String()))
		}
	}
	if len(d.DateFrom) > 0 {
		attrs = append(attrs, slog.String("from", d.DateFrom))
	}
	if len(d.DateTo) > 0 {
		attrs = append(attrs, slog.String("to", d.DateTo))
	}
	if len(d.ActiveDays) > 0 {
		attrs = append(attrs, slog.Any("days", d.ActiveDays))
	}
	return slog.GroupValue(attrs...)
}

type Option func(o *options)

type options struct {
	provider solar.Provider
	horizon  int
}

// WithSolarProvider sets the source of sunrise and sunset times, the
// default is solar.Calculator.
func WithSolarProvider(p solar.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithHorizon sets the number of days that NextRun searches ahead.
func WithHorizon(days int) Option {
	return func(o *options) {
		o.horizon = days
	}
}

// Evaluator is an immutable, parsed, representation of the scheduling
// related fields of a configuration.
type Evaluator struct {
	options
	loc        *time.Location
	window     Window
	windowErr  error
	policy     config.InvalidSchedulePolicy
	days       [7]bool
	activeDays []string
	from, to   datetime.CalendarDate
	hasFrom    bool
	hasTo      bool
	dateFrom   string
	dateTo     string
	astral     bool
	place      solar.Place
	interval   time.Duration
}

// New parses the scheduling fields of cfg. It never fails, invalid
// fields are handled as follows: an unparseable time window is
// subject to the configured policy, unparseable dates are ignored and
// unknown weekday names never match.
func New(cfg config.Config, opts ...Option) *Evaluator {
	e := &Evaluator{
		loc:        cfg.Location(),
		policy:     cfg.Policy(),
		days:       cfg.ActiveDays.Set(),
		activeDays: append([]string{}, cfg.ActiveDays...),
		dateFrom:   cfg.ScheduleStartDate,
		dateTo:     cfg.ScheduleEndDate,
		astral:     cfg.UseAstral,
		interval:   cfg.Interval(),
	}
	for _, opt := range opts {
		opt(&e.options)
	}
	if e.provider == nil {
		e.provider = solar.Calculator{}
	}
	if e.horizon <= 0 {
		e.horizon = DefaultHorizon
	}
	e.place = solar.Place{Latitude: cfg.Latitude, Longitude: cfg.Longitude, TZ: e.loc}
	start, serr := config.ParseTimeOfDay(cfg.ActiveStart)
	end, eerr := config.ParseTimeOfDay(cfg.ActiveEnd)
	switch {
	case serr != nil:
		e.windowErr = serr
	case eerr != nil:
		e.windowErr = eerr
	default:
		e.window = Window{Start: start, End: end}
	}
	e.from, e.hasFrom, _ = config.ParseDate(cfg.ScheduleStartDate)
	e.to, e.hasTo, _ = config.ParseDate(cfg.ScheduleEndDate)
	return e
}

// Location returns the location that all evaluation is performed in.
func (e *Evaluator) Location() *time.Location {
	return e.loc
}

// Interval returns the capture interval.
func (e *Evaluator) Interval() time.Duration {
	return e.interval
}

// WindowErr returns the error encountered parsing the time window, if any.
func (e *Evaluator) WindowErr() error {
	return e.windowErr
}

func (e *Evaluator) dateAllowed(cd datetime.CalendarDate) bool {
	if e.hasFrom && cd < e.from {
		return false
	}
	if e.hasTo && cd > e.to {
		return false
	}
	return true
}

func weekdayOf(cd datetime.CalendarDate) time.Weekday {
	return cd.Time(datetime.NewTimeOfDay(12, 0, 0), time.UTC).Weekday()
}

func (e *Evaluator) dayAllowed(cd datetime.CalendarDate) bool {
	return e.dateAllowed(cd) && e.days[weekdayOf(cd)]
}

// Decide determines whether a capture is permitted at now. The checks
// are applied in order and the first failure determines the reason:
// time window validity, date range, weekday, time window and finally
// the solar window.
func (e *Evaluator) Decide(now time.Time) Decision {
	now = now.In(e.loc)
	d := Decision{
		EvaluatedAt: now,
		Window:      e.window,
		WindowValid: e.windowErr == nil,
		Weekday:     config.WeekdayName(now.Weekday()),
		DateFrom:    e.dateFrom,
		DateTo:      e.dateTo,
		ActiveDays:  e.activeDays,
		UseAstral:   e.astral,
	}
	date := datetime.CalendarDateFromTime(now)
	if e.astral {
		d.Sunrise, d.Sunset, d.HasSolar = e.provider.SunTimes(date, e.place)
	}
	if e.windowErr != nil {
		d.Reason = ReasonInvalidTimeWindow
		d.Active = e.policy != config.FailClosed
		return d
	}
	if !e.dateAllowed(date) {
		d.Reason = ReasonOutsideDateRange
		return d
	}
	if !e.days[now.Weekday()] {
		d.Reason = ReasonWeekdayDisabled
		return d
	}
	tod := datetime.TimeOfDayFromTime(now)
	if !e.window.Contains(tod) {
		d.Reason = ReasonOutsideTimeWindow
		return d
	}
	if e.astral {
		if !d.HasSolar {
			d.Reason = ReasonAstralUnavailable
			return d
		}
		if tod < d.Sunrise || tod >= d.Sunset {
			d.Reason = ReasonOutsideAstralWindow
			return d
		}
	}
	d.Active = true
	d.Reason = ReasonActive
	return d
}

// Decide is a convenience for New(cfg, opts...).Decide(now).
func Decide(cfg config.Config, now time.Time, opts ...Option) Decision {
	return New(cfg, opts...).Decide(now)
}
