// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/cosnicolaou/capturelapse/capture"
	"github.com/cosnicolaou/capturelapse/config"
	"github.com/cosnicolaou/capturelapse/events"
	"github.com/cosnicolaou/capturelapse/internal/capturedb"
	"github.com/cosnicolaou/capturelapse/internal/logging"
	"github.com/cosnicolaou/capturelapse/internal/testutil"
	"github.com/cosnicolaou/capturelapse/scheduler"
)

type publisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *publisher) Publish(ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *publisher) count(typ events.Type) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (p *publisher) last(typ events.Type) (events.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Type == typ {
			return p.events[i], true
		}
	}
	return events.Event{}, false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func fullDayConfig(t *testing.T, url string) config.Config {
	cfg := config.Default()
	cfg.CameraURL = url
	cfg.ActiveStart = "00:00"
	cfg.ActiveEnd = "00:00"
	cfg.IntervalSeconds = 1
	cfg.SavePath = filepath.Join(t.TempDir(), "pictures")
	return cfg
}

func TestSchedulerRealTime(t *testing.T) {
	ctx := context.Background()
	cam := testutil.NewMockCamera()
	defer cam.Close()

	cfg := fullDayConfig(t, cam.URL)
	if err := os.MkdirAll(cfg.SavePath, 0o755); err != nil {
		t.Fatal(err)
	}
	// An existing image is copied to the preview path on startup.
	if err := os.WriteFile(filepath.Join(cfg.SavePath, "snapshot_20240101_000000.jpg"), []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}
	preview := filepath.Join(t.TempDir(), "static", "last.jpg")

	db, err := capturedb.Open(ctx, filepath.Join(t.TempDir(), "captures.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	pub := &publisher{}
	store := config.NewMemory(cfg)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	sched := scheduler.New(cfg,
		scheduler.WithLogger(logger),
		scheduler.WithPublisher(pub),
		scheduler.WithStore(store),
		scheduler.WithCaptureDB(db),
		scheduler.WithPreviewPath(preview),
		scheduler.WithHealthInterval(100*time.Millisecond),
		scheduler.WithHeartbeatInterval(50*time.Millisecond),
		scheduler.WithStatsTTL(time.Hour),
	)
	if err := sched.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := sched.Start(ctx); !errors.Is(err, scheduler.ErrRunning) {
		t.Errorf("unexpected error: %v", err)
	}
	buf, err := os.ReadFile(preview)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(buf), "old"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	waitFor(t, func() bool { return pub.count(events.Snapshot) >= 2 })
	waitFor(t, func() bool { return pub.count(events.CameraHealth) >= 1 })
	waitFor(t, func() bool { return pub.count(events.Status) >= 1 })

	if _, ok := sched.NextRun(); !ok {
		t.Errorf("expected a next run")
	}
	if err := sched.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if err := sched.Stop(ctx); !errors.Is(err, scheduler.ErrNotRunning) {
		t.Errorf("unexpected error: %v", err)
	}
	if _, ok := sched.NextRun(); ok {
		t.Errorf("unexpected next run for a stopped scheduler")
	}

	health, _ := pub.last(events.CameraHealth)
	if got, want := health.Status, "ok"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	status, _ := pub.last(events.Status)
	if got, want := status.Status, events.StatusRunning; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	snaps := pub.count(events.Snapshot)
	images, err := sched.Images()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := images.Count, snaps+1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	recs, err := db.Recent(ctx, 100, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(recs), snaps; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	for _, r := range recs {
		if !r.OK() || r.Trigger != logging.TriggerScheduled {
			t.Errorf("unexpected record: %+v", r)
		}
		if _, err := os.Stat(filepath.Join(cfg.SavePath, r.Filename)); err != nil {
			t.Errorf("missing image: %v", err)
		}
	}
	st := sched.Status(ctx)
	if !st.Today.Valid || st.Today.Succeeded != snaps {
		t.Errorf("unexpected daily counts: %+v", st.Today)
	}
	if st.Running {
		t.Errorf("scheduler should not be running")
	}
}

func TestPauseResume(t *testing.T) {
	ctx := context.Background()
	cfg := fullDayConfig(t, "http://127.0.0.1:1/snapshot.jpg")
	cfg.IntervalSeconds = 300
	pub := &publisher{}
	store := config.NewMemory(cfg)
	sched := scheduler.New(cfg,
		scheduler.WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))),
		scheduler.WithPublisher(pub),
		scheduler.WithStore(store),
	)
	if err := sched.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = sched.Stop(ctx) }()

	if _, ok := sched.NextRun(); !ok {
		t.Errorf("expected a next run")
	}
	for i := 0; i < 2; i++ {
		if err := sched.Pause(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := store.Saves(), 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	saved, _ := store.Load(ctx)
	if !saved.Paused || !sched.Paused() {
		t.Errorf("scheduler should be paused")
	}
	if _, ok := sched.NextRun(); ok {
		t.Errorf("unexpected next run for a paused scheduler")
	}
	next, _ := pub.last(events.NextSnapshot)
	if next.NextISO != nil {
		t.Errorf("unexpected next snapshot: %v", *next.NextISO)
	}
	if got, want := sched.Status(ctx).State, events.StatusPaused; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	for i := 0; i < 2; i++ {
		if err := sched.Resume(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := store.Saves(), 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, ok := sched.NextRun(); !ok {
		t.Errorf("expected a next run")
	}
	next, _ = pub.last(events.NextSnapshot)
	if next.NextISO == nil {
		t.Errorf("missing next snapshot")
	}
	status, _ := pub.last(events.Status)
	if got, want := status.Status, events.StatusRunning; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestReconfigure(t *testing.T) {
	ctx := context.Background()
	cam := testutil.NewMockCamera()
	defer cam.Close()
	cfg := fullDayConfig(t, "")
	cfg.IntervalSeconds = 300
	pub := &publisher{}
	store := config.NewMemory(cfg)
	sched := scheduler.New(cfg,
		scheduler.WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))),
		scheduler.WithPublisher(pub),
		scheduler.WithStore(store),
	)
	if err := sched.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = sched.Stop(ctx) }()

	// No URL.
	_, err := sched.CaptureNow(ctx)
	if got, want := capture.ErrorCode(err), capture.CodeNoURL; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, ok := sched.LastError(); !ok {
		t.Errorf("missing sticky error")
	}

	cfg.CameraURL = cam.URL
	if err := sched.Reconfigure(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	if !sched.Running() {
		t.Errorf("scheduler should be running")
	}
	saved, _ := store.Load(ctx)
	if got, want := saved.CameraURL, cam.URL; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	status, _ := pub.last(events.Status)
	if got, want := status.Status, events.StatusConfigReloaded; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	health, _ := pub.last(events.CameraHealth)
	if got, want := health.Status, "ok"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// The successful probe clears the sticky error.
	if _, ok := sched.LastError(); ok {
		t.Errorf("sticky error was not cleared")
	}

	res, err := sched.CaptureNow(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Errorf("missing image: %v", err)
	}
	snap, _ := pub.last(events.Snapshot)
	if got, want := snap.Filename, res.Filename; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := snap.Count, 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	cam.Fail(http.StatusServiceUnavailable)
	_, err = sched.CaptureNow(ctx)
	if got, want := capture.ErrorCode(err), capture.HTTPStatusCode(http.StatusServiceUnavailable); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	camErr, _ := pub.last(events.CameraError)
	if got, want := camErr.Code, "http_503"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// savingStore records whether the scheduler was running at each save.
type savingStore struct {
	*config.Memory
	mu      sync.Mutex
	sched   *scheduler.Scheduler
	running []bool
}

func (s *savingStore) Save(ctx context.Context, cfg config.Config) error {
	s.mu.Lock()
	s.running = append(s.running, s.sched.Running())
	s.mu.Unlock()
	return s.Memory.Save(ctx, cfg)
}

func TestReconfigureSavesBeforeRestart(t *testing.T) {
	ctx := context.Background()
	cfg := fullDayConfig(t, "")
	store := &savingStore{Memory: config.NewMemory(cfg)}
	sched := scheduler.New(cfg,
		scheduler.WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))),
		scheduler.WithPublisher(&publisher{}),
		scheduler.WithStore(store),
	)
	store.sched = sched
	if err := sched.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = sched.Stop(ctx) }()
	store.mu.Lock()
	store.running = nil
	store.mu.Unlock()

	cfg.IntervalSeconds = 120
	if err := sched.Reconfigure(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if got, want := store.running, []bool{false}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := sched.Running(), true; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
