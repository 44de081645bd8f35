// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/cosnicolaou/capturelapse/internal/capturedb"
	"github.com/cosnicolaou/capturelapse/internal/logging"
)

type LogFlags struct {
	Trigger string `subcmd:"trigger,,only display captures with this trigger (scheduled or manual)"`
	TSV     bool   `subcmd:"tsv,false,print tab separated values rather than a table"`
}

type LogStatusFlags struct {
	LogFlags
	History     int  `subcmd:"history,0,number of completed captures to display, 0 for the default"`
	SkipInvalid bool `subcmd:"skip-invalid,true,ignore lines that are not valid log entries"`
}

type LogHistoryFlags struct {
	LogFlags
	CaptureDB string `subcmd:"capture-db,,sqlite capture database"`
	Num       int    `subcmd:"n,50,number of captures to display"`
}

type Log struct {
	out io.Writer
}

type logEntryHandler func(logging.Entry) error

func (l *Log) processLog(rd io.Reader, fv *LogStatusFlags, lh logEntryHandler) error {
	sc := logging.NewScanner(rd)
	for le := range sc.Entries(fv.SkipInvalid) {
		if len(fv.Trigger) > 0 && le.Capture() && le.Trigger != fv.Trigger {
			continue
		}
		if err := lh(le); err != nil {
			return err
		}
	}
	return sc.Err()
}

// Status summarizes the captures recorded in the specified log files,
// or stdin if none are specified.
func (l *Log) Status(_ context.Context, flags any, args []string) error {
	fv := flags.(*LogStatusFlags)
	srh := newStatusRecoder(fv.History)
	if len(args) == 0 {
		if err := l.processLog(os.Stdin, fv, srh.process); err != nil {
			return err
		}
	}
	for _, a := range args {
		fi, err := os.Open(a)
		if err != nil {
			return err
		}
		err = l.processLog(fi, fv, srh.process)
		fi.Close()
		if err != nil {
			return fmt.Errorf("%v: %w", a, err)
		}
	}
	tm := tableManager{tsv: fv.TSV}
	tm.Render(l.out, tm.Captures(srh.StatusRecorder))
	srh.summarize(l.out)
	return nil
}

type statusRecoder struct {
	*logging.StatusRecorder
	pending   map[int64]*logging.StatusRecord
	completed int
	failed    int
	skipped   map[string]int
	health    map[string]int
	status    string
}

func newStatusRecoder(history int) *statusRecoder {
	return &statusRecoder{
		StatusRecorder: logging.NewStatusRecorder(history),
		pending:        map[int64]*logging.StatusRecord{},
		skipped:        map[string]int{},
		health:         map[string]int{},
	}
}

func (sr *statusRecoder) process(le logging.Entry) error {
	if le.Mod != "scheduler" {
		return nil
	}
	switch le.Msg {
	case logging.LogPending:
		if !le.Capture() {
			return nil
		}
		sr.pending[le.ID] = sr.NewPending(le.StatusRecord(), le.Now)
	case logging.LogCompleted, logging.LogFailed:
		rec, ok := sr.pending[le.ID]
		if !ok {
			return nil
		}
		delete(sr.pending, le.ID)
		sr.PendingDone(rec, le.Now, le.Filename, le.Bytes, le.Code, le.Err)
		if le.Err != nil {
			sr.failed++
		} else {
			sr.completed++
		}
	case logging.LogSkipped:
		sr.skipped[le.Reason]++
	case logging.LogHealth:
		sr.health[le.Status]++
	case logging.LogStatus:
		sr.status = le.Status
	}
	return nil
}

func counts(m map[string]int) string {
	keys := slices.Sorted(maps.Keys(m))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%v: %v", k, m[k])
	}
	return strings.Join(parts, ", ")
}

func (sr *statusRecoder) summarize(out io.Writer) {
	fmt.Fprintf(out, "completed: %v, failed: %v, pending: %v\n", sr.completed, sr.failed, len(sr.pending))
	if len(sr.skipped) > 0 {
		fmt.Fprintf(out, "skipped: %v\n", counts(sr.skipped))
	}
	if len(sr.health) > 0 {
		fmt.Fprintf(out, "health checks: %v\n", counts(sr.health))
	}
	if len(sr.status) > 0 {
		fmt.Fprintf(out, "last status: %v\n", sr.status)
	}
}

// History displays the most recent captures recorded in the capture
// database.
func (l *Log) History(ctx context.Context, flags any, _ []string) error {
	fv := flags.(*LogHistoryFlags)
	if len(fv.CaptureDB) == 0 {
		return fmt.Errorf("--capture-db must be specified")
	}
	db, err := capturedb.Open(ctx, fv.CaptureDB)
	if err != nil {
		return err
	}
	defer db.Close()
	recs, err := db.Recent(ctx, fv.Num, time.Local)
	if err != nil {
		return err
	}
	if len(fv.Trigger) > 0 {
		recs = slices.DeleteFunc(recs, func(r capturedb.Record) bool {
			return r.Trigger != fv.Trigger
		})
	}
	tm := tableManager{tsv: fv.TSV}
	tm.Render(l.out, tm.History(recs))
	return nil
}
