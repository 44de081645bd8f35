// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/cosnicolaou/capturelapse/internal/capturedb"
	"github.com/cosnicolaou/capturelapse/scheduler"
)

type CaptureFlags struct {
	ConfigFileFlags
	LogFile   string `subcmd:"log-file,,log file for structured log output"`
	CaptureDB string `subcmd:"capture-db,,sqlite database that the capture attempt is recorded in"`
	Preview   string `subcmd:"preview,,path that the captured image is copied to"`
}

type Capture struct {
	out io.Writer
}

func (c *Capture) newScheduler(ctx context.Context, fv *CaptureFlags) (*scheduler.Scheduler, func(), error) {
	cfg, store, err := fv.load(ctx)
	if err != nil {
		return nil, nil, err
	}
	logger, cleanup, err := setupLogging(fv.LogFile, io.Discard)
	if err != nil {
		return nil, nil, err
	}
	opts := []scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithStore(store),
		scheduler.WithConfigDir(fv.configDir()),
		scheduler.WithPreviewPath(fv.Preview),
	}
	if len(fv.CaptureDB) > 0 {
		db, err := capturedb.Open(ctx, fv.CaptureDB)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		opts = append(opts, scheduler.WithCaptureDB(db))
		prev := cleanup
		cleanup = func() {
			db.Close()
			prev()
		}
	}
	return scheduler.New(cfg, opts...), cleanup, nil
}

func (c *Capture) Now(ctx context.Context, flags any, _ []string) error {
	fv := flags.(*CaptureFlags)
	sched, cleanup, err := c.newScheduler(ctx, fv)
	if err != nil {
		return err
	}
	defer cleanup()
	res, err := sched.CaptureNow(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%v: %v bytes, captured at %v after %v attempt(s)\n",
		res.Path, res.Bytes, res.CapturedAt.Format("2006-01-02 15:04:05 MST"), res.Attempts)
	return nil
}

func (c *Capture) Probe(ctx context.Context, flags any, _ []string) error {
	fv := flags.(*CaptureFlags)
	sched, cleanup, err := c.newScheduler(ctx, fv)
	if err != nil {
		return err
	}
	defer cleanup()
	hr := sched.ProbeNow(ctx)
	if !hr.OK {
		return fmt.Errorf("%v: unreachable: %v: %v", sched.Config().CameraURL, hr.Code, hr.Message)
	}
	fmt.Fprintf(c.out, "%v: ok, checked at %v\n", sched.Config().CameraURL, hr.CheckedAt.Format("2006-01-02 15:04:05 MST"))
	return nil
}
