// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"cloudeng.io/datetime"
	"github.com/cosnicolaou/capturelapse/internal/capturedb"
	"github.com/cosnicolaou/capturelapse/internal/logging"
	"github.com/cosnicolaou/capturelapse/schedule"
	"github.com/jedib0t/go-pretty/v6/table"
)

type tableManager struct {
	tsv bool
}

func (tm tableManager) Render(out io.Writer, tw table.Writer) {
	if tm.tsv {
		fmt.Fprintln(out, tw.RenderTSV())
		return
	}
	fmt.Fprintln(out, tw.Render())
}

func solarTimes(d schedule.Decision) (string, string) {
	if !d.UseAstral {
		return "", ""
	}
	if !d.HasSolar {
		return "n/a", "n/a"
	}
	return d.Sunrise.String(), d.Sunset.String()
}

func (tm tableManager) Decisions(decisions []schedule.Decision) table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Time", "Day", "Active", "Reason", "Window", "Sunrise", "Sunset"})
	for _, d := range decisions {
		window := "invalid"
		if d.WindowValid {
			window = d.Window.String()
		}
		rise, set := solarTimes(d)
		tw.AppendRow(table.Row{
			d.EvaluatedAt.Format(time.DateTime),
			d.Weekday,
			d.Active,
			d.Reason,
			window,
			rise,
			set,
		})
	}
	return tw
}

func (tm tableManager) Upcoming(from time.Time, upcoming []time.Time) table.Writer {
	tw := table.NewWriter()
	tw.SetTitle(fmt.Sprintf("Captures after %v", from.Format(time.DateTime)))
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
	})
	tw.AppendHeader(table.Row{"Date", "Time", "In"})
	for _, t := range upcoming {
		tw.AppendRow(table.Row{
			t.Format(time.DateOnly),
			t.Format("15:04:05 MST"),
			t.Sub(from).Round(time.Second),
		})
	}
	return tw
}

func (tm tableManager) Windows(eval *schedule.Evaluator, dr datetime.CalendarDateRange) table.Writer {
	tw := table.NewWriter()
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
	})
	tw.AppendHeader(table.Row{"Date", "Start", "End", "Duration"})
	for day := range dr.Dates() {
		spans := eval.Windows(day)
		if len(spans) == 0 {
			tw.AppendRow(table.Row{day, "-", "-", time.Duration(0)})
			continue
		}
		for _, s := range spans {
			tw.AppendRow(table.Row{
				day,
				s.Start.Format("15:04:05"),
				s.End.Format("15:04:05"),
				s.End.Sub(s.Start),
			})
		}
	}
	return tw
}

// Captures tabulates the records held by a StatusRecorder, pending
// captures are listed after completed ones.
func (tm tableManager) Captures(sr *logging.StatusRecorder) table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"ID", "Trigger", "Due", "Started", "Status", "Duration", "Filename", "Bytes", "Error"})
	row := func(rec *logging.StatusRecord) table.Row {
		return table.Row{
			rec.ID,
			rec.Trigger,
			rec.Due.Format(time.DateTime),
			rec.Pending.Format(time.DateTime),
			rec.Status(),
			rec.Duration().Round(time.Millisecond),
			rec.Filename,
			rec.Bytes,
			rec.ErrorMessage(),
		}
	}
	for rec := range sr.Completed() {
		tw.AppendRow(row(rec))
	}
	for rec := range sr.Pending() {
		tw.AppendRow(row(rec))
	}
	return tw
}

func (tm tableManager) History(recs []capturedb.Record) table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Started", "Trigger", "Status", "Duration", "Filename", "Bytes", "Error"})
	for _, r := range recs {
		status, msg := "ok", ""
		if !r.OK() {
			status = r.Code
			msg = strings.TrimSpace(r.Message)
		}
		tw.AppendRow(table.Row{
			r.Started.Format(time.DateTime),
			r.Trigger,
			status,
			r.Finished.Sub(r.Started).Round(time.Millisecond),
			r.Filename,
			r.Bytes,
			msg,
		})
	}
	return tw
}
