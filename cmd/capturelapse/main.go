// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"os"

	"cloudeng.io/cmdutil"
	"cloudeng.io/cmdutil/subcmd"
)

const cmdSpec = `name: capturelapse
summary: capturelapse captures images from a network camera according to a daily schedule
commands:
  - name: run
    summary: |
      run the scheduler, optionally serving its status, controls and
      events over http
  - name: capture
    summary: interact with the configured camera directly
    commands:
      - name: now
        summary: capture a single image, regardless of the schedule
      - name: probe
        summary: check that the camera is reachable
  - name: schedule
    summary: evaluate the configured schedule
    commands:
      - name: eval
        summary: |
          decide whether captures are permitted at each of the specified
          times (RFC3339 or YYYY-MM-DDTHH:MM), or now if none are given
        arguments:
          - <time>...
      - name: next
        summary: print the times of the next scheduled captures
      - name: windows
        summary: print the permitted capture windows for a range of dates
  - name: config
    summary: query/inspect the configuration file
    commands:
      - name: display
      - name: validate
  - name: logs
    summary: query/inspect the log files and capture database
    commands:
      - name: status
        arguments:
          - <log-files>...
      - name: history
        summary: display the most recent captures recorded in the capture database
`

func cli() *subcmd.CommandSetYAML {
	cmd := subcmd.MustFromYAML(cmdSpec)

	run := &Run{}
	cmd.Set("run").MustRunner(run.Run, &RunFlags{})

	capture := &Capture{out: os.Stdout}
	cmd.Set("capture", "now").MustRunner(capture.Now, &CaptureFlags{})
	cmd.Set("capture", "probe").MustRunner(capture.Probe, &CaptureFlags{})

	schedule := &Schedule{out: os.Stdout}
	cmd.Set("schedule", "eval").MustRunner(schedule.Eval, &ScheduleFlags{})
	cmd.Set("schedule", "next").MustRunner(schedule.Next, &ScheduleNextFlags{})
	cmd.Set("schedule", "windows").MustRunner(schedule.Windows, &ScheduleWindowsFlags{})

	config := &Config{out: os.Stdout}
	cmd.Set("config", "display").MustRunner(config.Display, &ConfigFlags{})
	cmd.Set("config", "validate").MustRunner(config.Validate, &ConfigFlags{})

	log := &Log{out: os.Stdout}
	cmd.Set("logs", "status").MustRunner(log.Status, &LogStatusFlags{})
	cmd.Set("logs", "history").MustRunner(log.History, &LogHistoryFlags{})
	return cmd
}

var errInterrupt = errors.New("interrupt")

func main() {
	ctx := context.Background()
	ctx, cancel := context.WithCancelCause(ctx)
	cmdutil.HandleSignals(func() { cancel(errInterrupt) }, os.Interrupt)
	err := cli().Dispatch(ctx)
	if context.Cause(ctx) == errInterrupt {
		if err == nil {
			return
		}
		cmdutil.Exit("%v", errInterrupt)
	}
	if err != nil {
		cmdutil.Exit("%v", err)
	}
}
