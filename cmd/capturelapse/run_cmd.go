// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"cloudeng.io/sync/errgroup"
	"github.com/cosnicolaou/capturelapse/events"
	"github.com/cosnicolaou/capturelapse/internal/capturedb"
	"github.com/cosnicolaou/capturelapse/internal/logging"
	"github.com/cosnicolaou/capturelapse/internal/webapi"
	"github.com/cosnicolaou/capturelapse/scheduler"
)

type RunFlags struct {
	ConfigFileFlags
	LogFile   string        `subcmd:"log-file,,log file, overrides the log_file configuration setting, stdout is used if neither is set"`
	HTTPAddr  string        `subcmd:"http-addr,127.0.0.1:8080,http address to serve the api on, empty to disable"`
	CaptureDB string        `subcmd:"capture-db,,sqlite database that every capture attempt is recorded in"`
	Preview   string        `subcmd:"preview,,path that the most recent image is copied to"`
	History   int           `subcmd:"history,1000,number of completed captures retained in memory"`
	Shutdown  time.Duration `subcmd:"shutdown-timeout,30s,time allowed for an in-progress capture to complete on exit"`
}

type Run struct{}

func (r *Run) Run(ctx context.Context, flags any, _ []string) error {
	fv := flags.(*RunFlags)
	cfg, store, err := fv.load(ctx)
	if err != nil {
		return err
	}
	provider, err := fv.solarProvider()
	if err != nil {
		return err
	}
	logfile := fv.LogFile
	if len(logfile) == 0 {
		logfile = cfg.LogFile
	}
	logger, cleanup, err := setupLogging(logfile, os.Stdout)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := cfg.Validate(); err != nil {
		logger.Warn(logging.LogConfig, "warnings", err.Error())
	}

	bus := events.NewBus(events.WithBusLogger(logger))
	defer bus.Close()
	sr := logging.NewStatusRecorder(fv.History)

	opts := []scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithPublisher(bus),
		scheduler.WithStore(store),
		scheduler.WithSolarProvider(provider),
		scheduler.WithStatusRecorder(sr),
		scheduler.WithConfigDir(fv.configDir()),
		scheduler.WithPreviewPath(fv.Preview),
	}
	apiOpts := []webapi.Option{
		webapi.WithLogger(logger),
		webapi.WithStatusRecorder(sr),
		webapi.WithEvents(bus),
	}
	if len(fv.CaptureDB) > 0 {
		db, err := capturedb.Open(ctx, fv.CaptureDB)
		if err != nil {
			return err
		}
		defer db.Close()
		opts = append(opts, scheduler.WithCaptureDB(db))
		apiOpts = append(apiOpts, webapi.WithCaptureDB(db))
	}

	sched := scheduler.New(cfg, opts...)
	logger.Info(logging.LogConfig, "config", cfg.String(), "dir", sched.StorageDir())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		return err
	}
	sched.ProbeNow(ctx)

	var g errgroup.T
	if len(fv.HTTPAddr) > 0 {
		mux := http.NewServeMux()
		webapi.NewServer(sched, apiOpts...).AppendEndpoints(ctx, mux)
		server := &http.Server{
			Addr:              fv.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("starting web server", "url", "http://"+fv.HTTPAddr)
			err := server.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			cancel()
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer scancel()
			return server.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), fv.Shutdown)
		defer scancel()
		return sched.Stop(sctx)
	})
	return g.Wait()
}
