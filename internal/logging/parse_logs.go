// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package logging

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"time"
)

type logEntry struct {
	Msg      string    `json:"msg"`
	Mod      string    `json:"mod"`
	ID       int64     `json:"id"`
	Trigger  string    `json:"trigger"`
	URL      string    `json:"url"`
	Code     string    `json:"code"`
	Filename string    `json:"filename"`
	Bytes    int64     `json:"bytes"`
	Reason   string    `json:"reason"`
	Status   string    `json:"status"`
	Message  string    `json:"message"`
	Err      string    `json:"err"`
	Now      time.Time `json:"now"`
	Due      time.Time `json:"due"`
	Started  time.Time `json:"started"`
	Location string    `json:"loc"`
}

type Entry struct {
	logEntry

	Now      time.Time
	Due      time.Time
	Started  time.Time
	Err      error
	LogEntry string // Original log line
}

func ParseLogLine(line string) (Entry, error) {
	var le Entry
	le.LogEntry = line
	if err := json.Unmarshal([]byte(line), &le.logEntry); err != nil {
		return le, err
	}
	loc, err := time.LoadLocation(le.Location)
	if err != nil {
		return le, err
	}
	le.Now = le.logEntry.Now.In(loc)
	le.Due = le.logEntry.Due.In(loc)
	le.Started = le.logEntry.Started.In(loc)
	if e := le.logEntry.Err; e != "" {
		le.Err = errors.New(e)
	}
	return le, nil
}

// Capture returns true for entries that record the progress of a capture.
func (le Entry) Capture() bool {
	switch le.Msg {
	case LogPending, LogCompleted, LogFailed:
		return le.ID != 0
	}
	return false
}

func (le Entry) StatusRecord() *StatusRecord {
	return &StatusRecord{
		ID:      le.ID,
		Trigger: le.Trigger,
		URL:     le.URL,
		Due:     le.Due,
	}
}

type Scanner struct {
	sc  *bufio.Scanner
	err error
}

func NewScanner(rd io.Reader) *Scanner {
	return &Scanner{sc: bufio.NewScanner(rd)}
}

// Entries returns an iterator over the Scanner's Entry's. If skipInvalid
// is true, lines that are not valid log entries are ignored, otherwise
// the iterator stops at the first such line. The Scanner's Err method
// should be checked after the iterator has completed.
func (ls *Scanner) Entries(skipInvalid bool) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for {
			if !ls.sc.Scan() {
				ls.err = ls.sc.Err()
				return
			}
			line := ls.sc.Text()
			if len(line) == 0 {
				continue
			}
			le, err := ParseLogLine(line)
			if err != nil {
				if skipInvalid {
					continue
				}
				ls.err = err
				return
			}
			if !yield(le) {
				return
			}
		}
	}
}

func (ls *Scanner) Err() error {
	return ls.err
}
