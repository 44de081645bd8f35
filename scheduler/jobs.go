// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloudeng.io/sync/errgroup"
	"github.com/cosnicolaou/capturelapse/capture"
	"github.com/cosnicolaou/capturelapse/config"
	"github.com/cosnicolaou/capturelapse/events"
	"github.com/cosnicolaou/capturelapse/internal/capturedb"
	"github.com/cosnicolaou/capturelapse/internal/logging"
	"github.com/cosnicolaou/capturelapse/schedule"
)

// jobSet is a single generation of running jobs. The configuration it
// holds is never modified, Reconfigure creates a new jobSet.
type jobSet struct {
	cfg      config.Config
	eval     *schedule.Evaluator
	interval time.Duration
	parent   context.Context
	g        errgroup.T

	stopOnce sync.Once
	stopCh   chan struct{}

	mu   sync.Mutex
	due  time.Time // next tick of the snapshot job
	base time.Time // the instant that ticks are aligned to
}

func newJobSet(ctx context.Context, cfg config.Config, eval *schedule.Evaluator, now time.Time) *jobSet {
	interval := eval.Interval()
	return &jobSet{
		parent:   ctx,
		cfg:      cfg,
		eval:     eval,
		interval: interval,
		stopCh:   make(chan struct{}),
		due:      now.Add(interval),
		base:     now,
	}
}

func (js *jobSet) stop() {
	js.stopOnce.Do(func() { close(js.stopCh) })
}

// wait waits for d to elapse and returns false if the job set is
// stopped, or ctx is canceled, first.
func (js *jobSet) wait(ctx context.Context, d time.Duration) bool {
	if d < 0 {
		d = 0
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-js.stopCh:
		return false
	}
}

// plan returns the next tick of the snapshot job and the instant it is
// aligned to. Ticks that have been missed are skipped. If the schedule
// opens before the next tick, the tick is moved to the opening of the
// window and subsequent ticks are aligned to it.
func plan(eval *schedule.Evaluator, now, due, base time.Time, interval time.Duration) (time.Time, time.Time) {
	if due.Before(now) {
		missed := (now.Sub(due) + interval - 1) / interval
		due = due.Add(missed * interval)
	}
	if next, ok := eval.NextRun(now, base); ok && next.Before(due) {
		return next, next
	}
	return due, base
}

func (js *jobSet) plan(now time.Time) (due, base time.Time) {
	js.mu.Lock()
	defer js.mu.Unlock()
	return plan(js.eval, now, js.due, js.base, js.interval)
}

func (js *jobSet) fired(due, base time.Time) {
	js.mu.Lock()
	defer js.mu.Unlock()
	js.due = due.Add(js.interval)
	js.base = base
}

// nextCapture returns the first tick at which a capture will be made.
func (js *jobSet) nextCapture(now time.Time) (time.Time, bool) {
	due, base := js.plan(now)
	return js.eval.NextRun(due, base)
}

// Upcoming returns the times of the next n captures that a scheduler
// started at from would make, assuming that it is neither paused nor
// reconfigured and that no ticks are missed.
func Upcoming(eval *schedule.Evaluator, from time.Time, n int) []time.Time {
	interval := eval.Interval()
	now, due, base := from.Add(time.Nanosecond), from.Add(interval), from
	var out []time.Time
	for len(out) < n {
		due, base = plan(eval, now, due, base, interval)
		next, ok := eval.NextRun(due, base)
		if !ok {
			break
		}
		out = append(out, next)
		now, due, base = next.Add(time.Nanosecond), next.Add(interval), next
	}
	return out
}

func (s *Scheduler) snapshotLoop(ctx context.Context, js *jobSet) error {
	loc := js.eval.Location()
	for {
		due, base := js.plan(s.timeSource.NowIn(loc))
		if !js.wait(ctx, due.Sub(s.timeSource.NowIn(loc))) {
			return nil
		}
		js.fired(due, base)
		s.protect("snapshot", func() {
			s.runSnapshot(context.WithoutCancel(ctx), js, due)
		})
	}
}

// periodic runs fn every period until the job set is stopped.
func (s *Scheduler) periodic(ctx context.Context, js *jobSet, name string, period time.Duration, fn func(context.Context, *jobSet)) error {
	if period <= 0 {
		return fmt.Errorf("%v: invalid period: %v", name, period)
	}
	due := time.Now().Add(period)
	for {
		if !js.wait(ctx, time.Until(due)) {
			return nil
		}
		s.protect(name, func() {
			fn(context.WithoutCancel(ctx), js)
		})
		due = due.Add(period)
		if now := time.Now(); due.Before(now) {
			due = now.Add(period)
		}
	}
}

// protect runs fn, converting a panic into a camera error.
func (s *Scheduler) protect(job string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			now := s.now()
			msg := fmt.Sprintf("%v", r)
			s.logger.Error("job panicked", "job", job, "panic", msg)
			s.setError(capture.CodeException, msg, now)
			s.publisher.Publish(events.NewCameraError(capture.CodeException, msg, now))
		}
	}()
	fn()
}

func (s *Scheduler) runSnapshot(ctx context.Context, js *jobSet, due time.Time) {
	now := s.timeSource.NowIn(js.eval.Location())
	if s.Paused() {
		logging.WriteSkipped(s.logger, "paused", now, "due", due)
		return
	}
	if d := js.eval.Decide(now); !d.Active {
		logging.WriteSkipped(s.logger, string(d.Reason), now, "due", due, "decision", d)
		return
	}
	s.capture(ctx, js.cfg, logging.TriggerScheduled, due)
}

// CaptureNow captures an image immediately, regardless of the schedule
// or whether the scheduler is paused or running.
func (s *Scheduler) CaptureNow(ctx context.Context) (capture.Result, error) {
	cfg := s.Config()
	return s.capture(ctx, cfg, logging.TriggerManual, s.now())
}

func (s *Scheduler) capture(ctx context.Context, cfg config.Config, trigger string, due time.Time) (capture.Result, error) {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()

	loc := cfg.Location()
	dir := config.ResolveStorageDir(cfg.SavePath, s.configDir)
	started := s.timeSource.NowIn(loc)
	id := logging.WritePending(s.logger, trigger, cfg.CameraURL, started, due)
	rec := s.recorder.NewPending(&logging.StatusRecord{
		ID:      id,
		Trigger: trigger,
		URL:     cfg.CameraURL,
		Due:     due,
	}, started)

	res, err := s.acquirer.Capture(ctx, capture.Request{
		Camera:   capture.CameraFromConfig(cfg),
		Dir:      dir,
		Location: loc,
	})
	now := s.timeSource.NowIn(loc)
	code, msg := "", ""
	if err != nil {
		code = capture.ErrorCode(err)
		msg = err.Error()
		var ce *capture.Error
		if errors.As(err, &ce) {
			msg = ce.Message
		}
	}
	logging.WriteCompletion(s.logger, id, trigger, err, code, res.Filename, res.Bytes, started, now, due)
	s.recorder.PendingDone(rec, now, res.Filename, res.Bytes, code, err)
	s.record(ctx, capturedb.Record{
		Trigger:  trigger,
		Started:  started,
		Finished: now,
		Filename: res.Filename,
		Bytes:    res.Bytes,
		Code:     code,
		Message:  msg,
	})

	if err != nil {
		s.setError(code, msg, now)
		s.publisher.Publish(events.NewCameraError(code, msg, now))
		return res, err
	}
	s.clearError()
	stats := s.images.record(res.Path, res.CapturedAt)
	s.publisher.Publish(events.NewSnapshot(res.Filename, res.CapturedAt, stats.Count))
	s.publishNext(now)
	return res, nil
}

func (s *Scheduler) record(ctx context.Context, r capturedb.Record) {
	if s.db == nil {
		return
	}
	if _, err := s.db.Insert(ctx, r); err != nil {
		s.logger.Warn("failed to record capture", "err", err)
	}
}

// ProbeNow checks the camera's reachability and publishes the result.
func (s *Scheduler) ProbeNow(ctx context.Context) capture.HealthResult {
	return s.probe(ctx, s.Config())
}

func (s *Scheduler) runHealth(ctx context.Context, js *jobSet) {
	s.probe(ctx, js.cfg)
}

func (s *Scheduler) probe(ctx context.Context, cfg config.Config) capture.HealthResult {
	hr := s.acquirer.Probe(ctx, capture.CameraFromConfig(cfg))
	now := s.timeSource.NowIn(cfg.Location())
	if hr.CheckedAt.IsZero() {
		hr.CheckedAt = now
	}
	hr.CheckedAt = hr.CheckedAt.In(cfg.Location())
	status := "error"
	if hr.OK {
		status = "ok"
		s.clearError()
	}
	s.stateMu.Lock()
	s.health = CameraHealth{
		Status:    status,
		Code:      hr.Code,
		Message:   hr.Message,
		CheckedAt: hr.CheckedAt,
	}
	s.stateMu.Unlock()
	logging.WriteHealth(s.logger, status, hr.Code, hr.Message, hr.CheckedAt)
	s.publisher.Publish(events.NewCameraHealth(status, hr.Code, hr.Message, hr.CheckedAt))
	return hr
}

func (s *Scheduler) runHeartbeat(_ context.Context, js *jobSet) {
	now := s.timeSource.NowIn(js.eval.Location())
	status := stateOf(s.Paused(), js.eval.Decide(now))
	s.stateMu.Lock()
	changed := s.lastStatus != status
	s.lastStatus = status
	s.stateMu.Unlock()
	if changed {
		logging.WriteStatus(s.logger, status, now)
	}
	s.publisher.Publish(events.NewStatus(status, now))
}
