// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package schedule_test

import (
	"reflect"
	"testing"
	"time"

	"cloudeng.io/datetime"
	"github.com/cosnicolaou/capturelapse/config"
	"github.com/cosnicolaou/capturelapse/schedule"
	"github.com/cosnicolaou/capturelapse/solar"
)

// 2025-01-06 is a Monday.
var monday = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

func at(day time.Time, h, m, s int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, s, 0, day.Location())
}

func newConfig(start, end string) config.Config {
	cfg := config.Default()
	cfg.Timezone = "UTC"
	cfg.ActiveStart = start
	cfg.ActiveEnd = end
	return cfg
}

var fixedSun = solar.Fixed{
	Sunrise: datetime.NewTimeOfDay(7, 12, 0),
	Sunset:  datetime.NewTimeOfDay(19, 45, 0),
}

func TestWindowContains(t *testing.T) {
	tod := datetime.NewTimeOfDay
	for i, tc := range []struct {
		w    schedule.Window
		tod  datetime.TimeOfDay
		want bool
	}{
		{schedule.Window{tod(6, 0, 0), tod(22, 0, 0)}, tod(6, 0, 0), true},
		{schedule.Window{tod(6, 0, 0), tod(22, 0, 0)}, tod(5, 59, 59), false},
		{schedule.Window{tod(6, 0, 0), tod(22, 0, 0)}, tod(21, 59, 59), true},
		{schedule.Window{tod(6, 0, 0), tod(22, 0, 0)}, tod(22, 0, 0), false},
		{schedule.Window{tod(22, 0, 0), tod(6, 0, 0)}, tod(23, 0, 0), true},
		{schedule.Window{tod(22, 0, 0), tod(6, 0, 0)}, tod(2, 0, 0), true},
		{schedule.Window{tod(22, 0, 0), tod(6, 0, 0)}, tod(12, 0, 0), false},
		{schedule.Window{tod(22, 0, 0), tod(6, 0, 0)}, tod(6, 0, 0), false},
		{schedule.Window{tod(0, 0, 0), tod(0, 0, 0)}, tod(12, 0, 0), true},
		{schedule.Window{tod(9, 30, 0), tod(9, 30, 0)}, tod(9, 29, 0), true},
	} {
		if got, want := tc.w.Contains(tc.tod), tc.want; got != want {
			t.Errorf("%v: %v contains %v: got %v, want %v", i, tc.w, tc.tod, got, want)
		}
	}
}

func TestDecide(t *testing.T) {
	for i, tc := range []struct {
		mutate func(*config.Config)
		now    time.Time
		active bool
		reason schedule.Reason
	}{
		{nil, at(monday, 12, 0, 0), true, schedule.ReasonActive},
		{nil, at(monday, 5, 59, 0), false, schedule.ReasonOutsideTimeWindow},
		{nil, at(monday, 22, 0, 0), false, schedule.ReasonOutsideTimeWindow},
		{func(c *config.Config) { c.ActiveStart = "6am" }, at(monday, 3, 0, 0), true, schedule.ReasonInvalidTimeWindow},
		{func(c *config.Config) {
			c.ActiveEnd = "99:00"
			c.OnInvalidSchedule = config.FailClosed
		}, at(monday, 12, 0, 0), false, schedule.ReasonInvalidTimeWindow},
		{func(c *config.Config) { c.ActiveDays = config.Weekdays{"Tue", "Wed"} }, at(monday, 12, 0, 0), false, schedule.ReasonWeekdayDisabled},
		{func(c *config.Config) { c.ActiveDays = config.Weekdays{"Mon"} }, at(monday, 12, 0, 0), true, schedule.ReasonActive},
		{func(c *config.Config) { c.ScheduleStartDate = "2025-01-07" }, at(monday, 12, 0, 0), false, schedule.ReasonOutsideDateRange},
		{func(c *config.Config) { c.ScheduleEndDate = "2025-01-05" }, at(monday, 12, 0, 0), false, schedule.ReasonOutsideDateRange},
		{func(c *config.Config) {
			c.ScheduleStartDate = "2025-01-06"
			c.ScheduleEndDate = "2025-01-06"
		}, at(monday, 12, 0, 0), true, schedule.ReasonActive},
		// Unparseable dates are ignored.
		{func(c *config.Config) { c.ScheduleStartDate = "soon" }, at(monday, 12, 0, 0), true, schedule.ReasonActive},
		// Date range is checked before the weekday.
		{func(c *config.Config) {
			c.ScheduleStartDate = "2025-02-01"
			c.ActiveDays = config.Weekdays{"Sun"}
		}, at(monday, 12, 0, 0), false, schedule.ReasonOutsideDateRange},
		{func(c *config.Config) { c.UseAstral = true }, at(monday, 7, 0, 0), false, schedule.ReasonOutsideAstralWindow},
		{func(c *config.Config) { c.UseAstral = true }, at(monday, 7, 12, 0), true, schedule.ReasonActive},
		{func(c *config.Config) { c.UseAstral = true }, at(monday, 19, 45, 0), false, schedule.ReasonOutsideAstralWindow},
		// The time window is checked before the solar window.
		{func(c *config.Config) { c.UseAstral = true }, at(monday, 23, 0, 0), false, schedule.ReasonOutsideTimeWindow},
		{func(c *config.Config) {
			c.ActiveStart, c.ActiveEnd = "22:00", "06:00"
		}, at(monday, 2, 0, 0), true, schedule.ReasonActive},
		{func(c *config.Config) {
			c.ActiveStart, c.ActiveEnd = "22:00", "06:00"
		}, at(monday, 12, 0, 0), false, schedule.ReasonOutsideTimeWindow},
	} {
		cfg := newConfig("06:00", "22:00")
		if tc.mutate != nil {
			tc.mutate(&cfg)
		}
		d := schedule.Decide(cfg, tc.now, schedule.WithSolarProvider(fixedSun))
		if got, want := d.Active, tc.active; got != want {
			t.Errorf("%v: active: got %v, want %v", i, got, want)
		}
		if got, want := d.Reason, tc.reason; got != want {
			t.Errorf("%v: reason: got %v, want %v", i, got, want)
		}
		if got, want := d.Weekday, "Mon"; got != want {
			t.Errorf("%v: weekday: got %v, want %v", i, got, want)
		}
		if cfg.UseAstral && !d.HasSolar {
			t.Errorf("%v: solar diagnostics missing", i)
		}
	}
}

func TestDecideAstralUnavailable(t *testing.T) {
	cfg := newConfig("06:00", "22:00")
	cfg.UseAstral = true
	d := schedule.Decide(cfg, at(monday, 12, 0, 0), schedule.WithSolarProvider(solar.Fixed{Unavailable: true}))
	if d.Active || d.Reason != schedule.ReasonAstralUnavailable {
		t.Errorf("got %v %v", d.Active, d.Reason)
	}
}

func TestDecideTimezone(t *testing.T) {
	cfg := newConfig("06:00", "22:00")
	cfg.Timezone = "Asia/Tokyo"
	// 2025-01-06 21:30 UTC is 06:30 on the 7th in Tokyo.
	d := schedule.Decide(cfg, at(monday, 21, 30, 0))
	if !d.Active {
		t.Errorf("got %v, want active", d.Reason)
	}
	if got, want := d.Weekday, "Tue"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := d.EvaluatedAt.Location().String(), "Asia/Tokyo"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDecideIdempotent(t *testing.T) {
	cfg := newConfig("22:00", "06:00")
	cfg.UseAstral = true
	cfg.ActiveDays = config.Weekdays{"Mon", "Fri"}
	e := schedule.New(cfg, schedule.WithSolarProvider(fixedSun))
	now := at(monday, 23, 15, 0)
	if got, want := e.Decide(now), e.Decide(now); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestWindows(t *testing.T) {
	cfg := newConfig("22:00", "06:00")
	e := schedule.New(cfg)
	spans := e.Windows(datetime.CalendarDateFromTime(monday))
	if got, want := len(spans), 2; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := spans[0], (schedule.Span{Start: monday, End: at(monday, 6, 0, 0)}); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := spans[1], (schedule.Span{Start: at(monday, 22, 0, 0), End: monday.AddDate(0, 0, 1)}); got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	cfg = newConfig("06:00", "22:00")
	cfg.UseAstral = true
	e = schedule.New(cfg, schedule.WithSolarProvider(fixedSun))
	spans = e.Windows(datetime.CalendarDateFromTime(monday))
	if got, want := spans, []schedule.Span{{Start: at(monday, 7, 12, 0), End: at(monday, 19, 45, 0)}}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
