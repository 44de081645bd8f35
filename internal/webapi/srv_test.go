// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package webapi_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/cosnicolaou/capturelapse/capture"
	"github.com/cosnicolaou/capturelapse/config"
	"github.com/cosnicolaou/capturelapse/internal/capturedb"
	"github.com/cosnicolaou/capturelapse/internal/logging"
	"github.com/cosnicolaou/capturelapse/internal/testutil"
	"github.com/cosnicolaou/capturelapse/internal/webapi"
	"github.com/cosnicolaou/capturelapse/scheduler"
)

type fixture struct {
	srv   *httptest.Server
	sched *scheduler.Scheduler
	acq   *testutil.MockAcquirer
	store *config.Memory
}

func newFixture(t *testing.T, opts ...webapi.Option) *fixture {
	ctx := context.Background()
	cfg := config.Default()
	cfg.CameraURL = "http://camera.local/snapshot.jpg"
	cfg.SavePath = t.TempDir()
	cfg.ActiveStart, cfg.ActiveEnd = "00:00", "00:00"
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	f := &fixture{
		acq:   &testutil.MockAcquirer{Start: time.Date(2025, 5, 17, 9, 8, 0, 0, time.UTC)},
		store: config.NewMemory(cfg),
	}
	sr := logging.NewStatusRecorder(0)
	f.sched = scheduler.New(cfg,
		scheduler.WithLogger(logger),
		scheduler.WithAcquirer(f.acq),
		scheduler.WithStore(f.store),
		scheduler.WithStatusRecorder(sr),
	)
	opts = append([]webapi.Option{webapi.WithLogger(logger), webapi.WithStatusRecorder(sr)}, opts...)
	mux := http.NewServeMux()
	webapi.NewServer(f.sched, opts...).AppendEndpoints(ctx, mux)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, v any) int {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil && resp.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func TestStatusAndPause(t *testing.T) {
	f := newFixture(t)

	var st webapi.StatusResponse
	if got, want := f.do(t, http.MethodGet, "/api/status", &st), http.StatusOK; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if st.Running || st.Paused || !st.Active {
		t.Errorf("unexpected status: %+v", st)
	}
	if got, want := st.IntervalSeconds, config.DefaultInterval; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if st.NextSnapshotISO != nil {
		t.Errorf("unexpected next snapshot for a stopped scheduler: %v", *st.NextSnapshotISO)
	}

	if got, want := f.do(t, http.MethodGet, "/api/pause", nil), http.StatusMethodNotAllowed; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := f.do(t, http.MethodPost, "/api/pause", &st), http.StatusOK; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := st.State, "paused"; !st.Paused || got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	saved, _ := f.store.Load(context.Background())
	if !saved.Paused {
		t.Errorf("paused state was not saved")
	}
	if got, want := f.do(t, http.MethodPost, "/api/resume", &st), http.StatusOK; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := st.State, "running"; st.Paused || got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)

	var cr webapi.CaptureResponse
	for i := 0; i < 2; i++ {
		if got, want := f.do(t, http.MethodPost, "/api/snapshot", &cr), http.StatusOK; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if got, want := cr.Filename, "snapshot_20250517_090802.jpg"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if captures, _ := f.acq.Counts(); captures != 2 {
		t.Errorf("got %v, want 2", captures)
	}

	f.acq.Fail(&capture.Error{Code: capture.HTTPStatusCode(503), Message: "HTTP 503"})
	var er webapi.ErrorResponse
	if got, want := f.do(t, http.MethodPost, "/api/snapshot", &er), http.StatusBadGateway; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := er.Code, "http_503"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := er.Message, "HTTP 503"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	var st webapi.StatusResponse
	f.do(t, http.MethodGet, "/api/status", &st)
	if st.LastError == nil || st.LastError.Code != "http_503" {
		t.Errorf("missing sticky error: %+v", st.LastError)
	}

	var hist []webapi.CompletionResponse
	if got, want := f.do(t, http.MethodGet, "/api/history?order=recent", &hist), http.StatusOK; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := len(hist), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := hist[0].Status, "failed"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := hist[2].Filename, "snapshot_20250517_090801.jpg"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := hist[2].Trigger, logging.TriggerManual; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := f.do(t, http.MethodGet, "/api/history?num=1", &hist), http.StatusOK; got != want || len(hist) != 1 {
		t.Errorf("got %v, want %v, len %v", got, want, len(hist))
	}
	if got, want := f.do(t, http.MethodGet, "/api/history?num=x", nil), http.StatusBadRequest; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestProbe(t *testing.T) {
	f := newFixture(t)
	var hr webapi.HealthResponse
	if got, want := f.do(t, http.MethodPost, "/api/probe", &hr), http.StatusOK; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := hr.Status, "ok"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	f.acq.Fail(&capture.Error{Code: capture.CodeConnectionError, Message: "refused"})
	f.do(t, http.MethodPost, "/api/probe", &hr)
	if got, want := hr.Status, "error"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	var st webapi.StatusResponse
	f.do(t, http.MethodGet, "/api/status", &st)
	if got, want := st.Health.Status, "error"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCaptures(t *testing.T) {
	ctx := context.Background()
	db, err := capturedb.Open(ctx, filepath.Join(t.TempDir(), "captures.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	plain := newFixture(t)
	if got, want := plain.do(t, http.MethodGet, "/api/captures", nil), http.StatusNotFound; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	f := newFixture(t, webapi.WithCaptureDB(db))
	for _, code := range []string{"", "timeout", ""} {
		if _, err := db.Insert(ctx, capturedb.Record{
			Trigger:  logging.TriggerScheduled,
			Started:  time.Now(),
			Finished: time.Now(),
			Code:     code,
		}); err != nil {
			t.Fatal(err)
		}
	}
	var cr []webapi.CompletionResponse
	if got, want := f.do(t, http.MethodGet, "/api/captures?num=2", &cr), http.StatusOK; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := len(cr), 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
