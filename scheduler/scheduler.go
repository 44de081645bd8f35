// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package scheduler runs the periodic capture, health check and status
// jobs for a single camera.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	cerrors "cloudeng.io/errors"
	"github.com/cosnicolaou/capturelapse/capture"
	"github.com/cosnicolaou/capturelapse/config"
	"github.com/cosnicolaou/capturelapse/events"
	"github.com/cosnicolaou/capturelapse/internal/capturedb"
	"github.com/cosnicolaou/capturelapse/internal/logging"
	"github.com/cosnicolaou/capturelapse/schedule"
	"github.com/cosnicolaou/capturelapse/solar"
)

var (
	ErrRunning    = errors.New("scheduler already running")
	ErrNotRunning = errors.New("scheduler not running")
)

const (
	DefaultHealthInterval    = 60 * time.Second
	DefaultHeartbeatInterval = 10 * time.Second
)

// TimeSource is an interface that provides the current time in a specific
// location and is intended for testing purposes. Timers always use the
// system clock.
type TimeSource interface {
	NowIn(in *time.Location) time.Time
}

type SystemTimeSource struct{}

func (SystemTimeSource) NowIn(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// Acquirer captures images and probes the camera, it is implemented
// by *capture.Acquirer.
type Acquirer interface {
	Capture(ctx context.Context, req capture.Request) (capture.Result, error)
	Probe(ctx context.Context, cam capture.Camera) capture.HealthResult
}

type Option func(o *options)

type options struct {
	timeSource        TimeSource
	logger            *slog.Logger
	publisher         events.Publisher
	store             config.Store
	acquirer          Acquirer
	solar             solar.Provider
	db                *capturedb.DB
	recorder          *logging.StatusRecorder
	configDir         string
	previewPath       string
	healthInterval    time.Duration
	heartbeatInterval time.Duration
	statsTTL          time.Duration
}

// WithTimeSource sets the time source to be used by the scheduler and
// is primarily intended for testing purposes.
func WithTimeSource(ts TimeSource) Option {
	return func(o *options) {
		o.timeSource = ts
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithPublisher sets the destination for all events.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithStore sets the store used to persist configuration changes made
// by Pause, Resume and Reconfigure.
func WithStore(s config.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithAcquirer replaces the default capture.Acquirer.
func WithAcquirer(a Acquirer) Option {
	return func(o *options) {
		o.acquirer = a
	}
}

func WithSolarProvider(p solar.Provider) Option {
	return func(o *options) {
		o.solar = p
	}
}

// WithCaptureDB records every capture attempt in db.
func WithCaptureDB(db *capturedb.DB) Option {
	return func(o *options) {
		o.db = db
	}
}

func WithStatusRecorder(sr *logging.StatusRecorder) Option {
	return func(o *options) {
		o.recorder = sr
	}
}

// WithConfigDir sets the directory that a relative save_path is
// resolved against.
func WithConfigDir(dir string) Option {
	return func(o *options) {
		o.configDir = dir
	}
}

// WithPreviewPath sets the path that the most recent image is copied to.
func WithPreviewPath(p string) Option {
	return func(o *options) {
		o.previewPath = p
	}
}

func WithHealthInterval(d time.Duration) Option {
	return func(o *options) {
		o.healthInterval = d
	}
}

func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *options) {
		o.heartbeatInterval = d
	}
}

func WithStatsTTL(d time.Duration) Option {
	return func(o *options) {
		o.statsTTL = d
	}
}

// Scheduler owns the configuration, the set of running jobs and the
// state they share.
type Scheduler struct {
	options

	mu         sync.RWMutex
	cfg        config.Config
	eval       *schedule.Evaluator
	storageDir string
	jobs       *jobSet

	// captureMu serializes captures made by the snapshot job and by
	// CaptureNow.
	captureMu sync.Mutex

	stateMu    sync.Mutex
	health     CameraHealth
	lastErr    *CameraError
	lastStatus string

	images *imageStats
}

// New creates a new scheduler for the supplied configuration. The
// scheduler is not started.
func New(cfg config.Config, opts ...Option) *Scheduler {
	s := &Scheduler{}
	s.healthInterval = DefaultHealthInterval
	s.heartbeatInterval = DefaultHeartbeatInterval
	s.statsTTL = DefaultStatsTTL
	for _, opt := range opts {
		opt(&s.options)
	}
	if s.timeSource == nil {
		s.timeSource = SystemTimeSource{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if s.publisher == nil {
		s.publisher = events.Discard
	}
	if s.store == nil {
		s.store = config.NewMemory(cfg)
	}
	if s.solar == nil {
		s.solar = solar.Calculator{}
	}
	if s.recorder == nil {
		s.recorder = logging.NewStatusRecorder(0)
	}
	if s.acquirer == nil {
		s.acquirer = capture.New(
			capture.WithLogger(s.logger),
			capture.WithClock(s.timeSource),
			capture.WithPreviewPath(s.previewPath))
	}
	s.logger = s.logger.With("mod", "scheduler")
	s.setConfig(cfg)
	s.images = newImageStats(s.storageDir, s.statsTTL)
	return s
}

// setConfig must be called with s.mu held for writing or before the
// scheduler is shared.
func (s *Scheduler) setConfig(cfg config.Config) {
	cfg.ActiveDays = config.NormalizeWeekdays(cfg.ActiveDays)
	s.cfg = cfg.Clone()
	s.eval = schedule.New(s.cfg, schedule.WithSolarProvider(s.solar))
	s.storageDir = config.ResolveStorageDir(cfg.SavePath, s.configDir)
}

func (s *Scheduler) now() time.Time {
	s.mu.RLock()
	loc := s.eval.Location()
	s.mu.RUnlock()
	return s.timeSource.NowIn(loc)
}

// Config returns a copy of the current configuration.
func (s *Scheduler) Config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// StorageDir returns the directory that images are written to.
func (s *Scheduler) StorageDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.storageDir
}

func (s *Scheduler) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Paused
}

func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs != nil
}

// Start starts the snapshot, health check and heartbeat jobs. The jobs
// run until Stop is called or ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *Scheduler) startLocked(ctx context.Context) error {
	if s.jobs != nil {
		return ErrRunning
	}
	now := s.timeSource.NowIn(s.eval.Location())
	s.images.setDir(s.storageDir)
	s.copyLatest(now)
	js := newJobSet(ctx, s.cfg, s.eval, now)
	s.jobs = js
	js.g.Go(func() error { return s.snapshotLoop(ctx, js) })
	js.g.Go(func() error {
		return s.periodic(ctx, js, "health", s.healthInterval, s.runHealth)
	})
	js.g.Go(func() error {
		return s.periodic(ctx, js, "heartbeat", s.heartbeatInterval, s.runHeartbeat)
	})
	s.logger.Info("started", "interval", js.interval.String(), "dir", s.storageDir, "paused", s.cfg.Paused)
	return nil
}

// Stop stops all jobs, any capture that is in progress is allowed to
// complete. It returns when all jobs have finished or ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	js := s.jobs
	s.jobs = nil
	s.mu.Unlock()
	if js == nil {
		return ErrNotRunning
	}
	return s.stopJobs(ctx, js)
}

func (s *Scheduler) stopJobs(ctx context.Context, js *jobSet) error {
	js.stop()
	done := make(chan error, 1)
	go func() {
		done <- js.g.Wait()
	}()
	select {
	case err := <-done:
		s.logger.Info("stopped")
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reconfigure stops the running jobs, replaces and persists the
// configuration and then restarts the jobs if they were running.
// A health probe is run immediately afterwards.
func (s *Scheduler) Reconfigure(ctx context.Context, cfg config.Config) error {
	s.mu.Lock()
	js := s.jobs
	s.jobs = nil
	s.mu.Unlock()
	errs := &cerrors.M{}
	if js != nil {
		errs.Append(s.stopJobs(ctx, js))
	}
	s.mu.Lock()
	s.setConfig(cfg)
	cfg = s.cfg.Clone()
	s.mu.Unlock()
	if err := s.store.Save(ctx, cfg); err != nil {
		errs.Append(fmt.Errorf("failed to save configuration: %w", err))
	}
	if js != nil {
		s.mu.Lock()
		errs.Append(s.startLocked(js.parent))
		s.mu.Unlock()
	}
	if err := cfg.Validate(); err != nil {
		s.logger.Warn(logging.LogConfig, "warnings", err.Error())
	}
	s.logger.Info(logging.LogConfig, "config", cfg.String())
	s.ProbeNow(ctx)
	now := s.now()
	s.publishNext(now)
	s.publisher.Publish(events.NewStatus(events.StatusConfigReloaded, now))
	return errs.Err()
}

// Pause stops scheduled captures, the health check and heartbeat jobs
// continue to run. Pausing a paused scheduler has no further effect.
func (s *Scheduler) Pause(ctx context.Context) error {
	return s.setPaused(ctx, true)
}

// Resume restarts scheduled captures.
func (s *Scheduler) Resume(ctx context.Context) error {
	return s.setPaused(ctx, false)
}

func (s *Scheduler) setPaused(ctx context.Context, paused bool) error {
	s.mu.Lock()
	changed := s.cfg.Paused != paused
	s.cfg.Paused = paused
	cfg := s.cfg.Clone()
	s.mu.Unlock()
	var err error
	if changed {
		if err = s.store.Save(ctx, cfg); err != nil {
			err = fmt.Errorf("failed to save configuration: %w", err)
		}
	}
	now := s.now()
	status := events.StatusRunning
	if paused {
		status = events.StatusPaused
	}
	logging.WriteStatus(s.logger, status, now)
	s.publisher.Publish(events.NewStatus(status, now))
	s.publishNext(now)
	return err
}

// Decision evaluates the schedule at now.
func (s *Scheduler) Decision(now time.Time) schedule.Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eval.Decide(now)
}

// NextRun returns the time of the next scheduled capture. There is none
// if the scheduler is paused or not running.
func (s *Scheduler) NextRun() (time.Time, bool) {
	return s.nextRun(s.now())
}

func (s *Scheduler) nextRun(now time.Time) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.jobs == nil || s.cfg.Paused {
		return time.Time{}, false
	}
	return s.jobs.nextCapture(now)
}

func (s *Scheduler) publishNext(now time.Time) {
	next, ok := s.nextRun(now)
	s.publisher.Publish(events.NewNextSnapshot(next, ok, now))
}

// Health returns the outcome of the most recent health probe.
func (s *Scheduler) Health() CameraHealth {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.health
}

// LastError returns the sticky camera error, if any.
func (s *Scheduler) LastError() (CameraError, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.lastErr == nil {
		return CameraError{}, false
	}
	return *s.lastErr, true
}

func (s *Scheduler) setError(code, message string, at time.Time) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.lastErr = &CameraError{Code: code, Message: message, At: at}
}

func (s *Scheduler) clearError() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.lastErr = nil
}

// Images returns the, possibly cached, statistics for the storage
// directory.
func (s *Scheduler) Images() (ImageStats, error) {
	return s.images.get(s.now())
}

// Status is a snapshot of the scheduler's state.
type Status struct {
	State      string
	Running    bool
	Paused     bool
	Interval   time.Duration
	Decision   schedule.Decision
	NextRun    time.Time
	HasNextRun bool
	Images     ImageStats
	Health     CameraHealth
	LastError  *CameraError
	Today      DailyCounts
}

// DailyCounts are the number of captures recorded since midnight, they
// are only available when a capture database is configured.
type DailyCounts struct {
	Valid     bool
	Succeeded int
	Failed    int
}

func (s *Scheduler) Status(ctx context.Context) Status {
	now := s.now()
	st := Status{
		Running:  s.Running(),
		Paused:   s.Paused(),
		Decision: s.Decision(now),
		Health:   s.Health(),
	}
	st.State = stateOf(st.Paused, st.Decision)
	st.Interval = s.Config().Interval()
	st.NextRun, st.HasNextRun = s.nextRun(now)
	if images, err := s.images.get(now); err == nil {
		st.Images = images
	} else {
		s.logger.Warn("image stats", "err", err)
	}
	if e, ok := s.LastError(); ok {
		st.LastError = &e
	}
	if s.db != nil {
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		ok, failed, err := s.db.Counts(ctx, midnight)
		if err == nil {
			st.Today = DailyCounts{Valid: true, Succeeded: ok, Failed: failed}
		}
	}
	return st
}

func stateOf(paused bool, d schedule.Decision) string {
	switch {
	case paused:
		return events.StatusPaused
	case d.Active:
		return events.StatusRunning
	}
	return events.StatusWaitingWindow
}

// copyLatest copies the most recent image to the preview path.
func (s *Scheduler) copyLatest(now time.Time) {
	st, err := s.images.refresh(now)
	if err != nil {
		s.logger.Warn("image scan failed", "dir", s.storageDir, "err", err)
		return
	}
	if len(s.previewPath) == 0 || len(st.Latest) == 0 {
		return
	}
	if err := capture.CopyFile(st.Latest, s.previewPath); err != nil {
		s.logger.Warn("preview copy failed", "path", s.previewPath, "err", err)
	}
}
