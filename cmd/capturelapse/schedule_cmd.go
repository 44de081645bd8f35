// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloudeng.io/datetime"
	"github.com/cosnicolaou/capturelapse/schedule"
	"github.com/cosnicolaou/capturelapse/scheduler"
)

type ScheduleFlags struct {
	ConfigFileFlags
	TSV bool `subcmd:"tsv,false,print tab separated values rather than a table"`
}

type ScheduleNextFlags struct {
	ScheduleFlags
	From  string `subcmd:"from,,time to start from, defaults to now"`
	Count int    `subcmd:"n,10,number of captures to print"`
}

type ScheduleWindowsFlags struct {
	ScheduleFlags
	DateRange string `subcmd:"date-range,,date range in <year>-<month>-<day>:<year>-<month>-<day> format, defaults to the next 7 days"`
}

type Schedule struct {
	out io.Writer
	// now is used in place of the current time when set.
	now time.Time
}

func (s *Schedule) evaluator(ctx context.Context, fv *ConfigFileFlags) (*schedule.Evaluator, error) {
	cfg, _, err := fv.load(ctx)
	if err != nil {
		return nil, err
	}
	provider, err := fv.solarProvider()
	if err != nil {
		return nil, err
	}
	return schedule.New(cfg, schedule.WithSolarProvider(provider)), nil
}

func (s *Schedule) currentTime(loc *time.Location) time.Time {
	if !s.now.IsZero() {
		return s.now.In(loc)
	}
	return time.Now().In(loc)
}

// Eval prints the decision reached for each of the specified times.
func (s *Schedule) Eval(ctx context.Context, flags any, args []string) error {
	fv := flags.(*ScheduleFlags)
	eval, err := s.evaluator(ctx, &fv.ConfigFileFlags)
	if err != nil {
		return err
	}
	loc := eval.Location()
	times := []time.Time{s.currentTime(loc)}
	if len(args) > 0 {
		times = times[:0]
		for _, a := range args {
			t, err := parseTime(a, loc)
			if err != nil {
				return err
			}
			times = append(times, t)
		}
	}
	decisions := make([]schedule.Decision, len(times))
	for i, t := range times {
		decisions[i] = eval.Decide(t)
	}
	tm := tableManager{tsv: fv.TSV}
	tm.Render(s.out, tm.Decisions(decisions))
	return nil
}

// Next prints the times at which the next captures will be made by a
// scheduler started at the specified time.
func (s *Schedule) Next(ctx context.Context, flags any, _ []string) error {
	fv := flags.(*ScheduleNextFlags)
	eval, err := s.evaluator(ctx, &fv.ConfigFileFlags)
	if err != nil {
		return err
	}
	loc := eval.Location()
	from := s.currentTime(loc)
	if len(fv.From) > 0 {
		if from, err = parseTime(fv.From, loc); err != nil {
			return err
		}
	}
	upcoming := scheduler.Upcoming(eval, from, fv.Count)
	if len(upcoming) == 0 {
		fmt.Fprintf(s.out, "no captures are scheduled after %v\n", from.Format(time.DateTime))
		return nil
	}
	tm := tableManager{tsv: fv.TSV}
	tm.Render(s.out, tm.Upcoming(from, upcoming))
	return nil
}

// Windows prints the capture windows for each day in a date range.
func (s *Schedule) Windows(ctx context.Context, flags any, _ []string) error {
	fv := flags.(*ScheduleWindowsFlags)
	eval, err := s.evaluator(ctx, &fv.ConfigFileFlags)
	if err != nil {
		return err
	}
	if err := eval.WindowErr(); err != nil {
		fmt.Fprintf(s.out, "warning: %v\n", err)
	}
	now := s.currentTime(eval.Location())
	dr := datetime.NewCalendarDateRange(
		datetime.CalendarDateFromTime(now),
		datetime.CalendarDateFromTime(now.AddDate(0, 0, 6)))
	if len(fv.DateRange) > 0 {
		if dr, err = parseDateRange(fv.DateRange); err != nil {
			return err
		}
	}
	tm := tableManager{tsv: fv.TSV}
	tm.Render(s.out, tm.Windows(eval, dr))
	return nil
}
