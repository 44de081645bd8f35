// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package webapi provides the JSON endpoints used to monitor and control
// a running scheduler.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cosnicolaou/capturelapse/capture"
	"github.com/cosnicolaou/capturelapse/events"
	"github.com/cosnicolaou/capturelapse/events/wsevents"
	"github.com/cosnicolaou/capturelapse/internal/capturedb"
	"github.com/cosnicolaou/capturelapse/internal/logging"
	"github.com/cosnicolaou/capturelapse/scheduler"
)

// Scheduler is the subset of *scheduler.Scheduler used by the server.
type Scheduler interface {
	Status(ctx context.Context) scheduler.Status
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	CaptureNow(ctx context.Context) (capture.Result, error)
	ProbeNow(ctx context.Context) capture.HealthResult
}

// Server serves the scheduler's status and actions.
type Server struct {
	sched Scheduler
	sr    *logging.StatusRecorder
	db    *capturedb.DB
	bus   *events.Bus
	l     *slog.Logger
}

// Option configures a Server.
type Option func(s *Server)

// WithStatusRecorder enables /api/history.
func WithStatusRecorder(sr *logging.StatusRecorder) Option {
	return func(s *Server) {
		s.sr = sr
	}
}

// WithCaptureDB enables /api/captures.
func WithCaptureDB(db *capturedb.DB) Option {
	return func(s *Server) {
		s.db = db
	}
}

// WithEvents enables the /api/events websocket stream.
func WithEvents(bus *events.Bus) Option {
	return func(s *Server) {
		s.bus = bus
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.l = l
	}
}

func NewServer(sched Scheduler, opts ...Option) *Server {
	s := &Server{sched: sched}
	for _, fn := range opts {
		fn(s)
	}
	if s.l == nil {
		s.l = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s.l = s.l.With("mod", "webapi")
	return s
}

func (s *Server) httpError(ctx context.Context, w http.ResponseWriter, u *url.URL, msg string, errMsg string, statusCode int) {
	s.l.Log(ctx, slog.LevelInfo, msg, "request", u.String(), "code", statusCode, "error", errMsg)
	http.Error(w, errMsg, statusCode)
}

func (s *Server) writeJSON(ctx context.Context, w http.ResponseWriter, r *http.Request, msg string, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.l.Log(ctx, slog.LevelWarn, msg, "request", r.URL.String(), "error", err.Error())
	}
}

// ErrorResponse describes a failed capture or an unreachable camera.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	At      string `json:"at,omitempty"`
}

type HealthResponse struct {
	Status    string `json:"status,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	CheckedAt string `json:"checked_at,omitempty"`
}

type ImagesResponse struct {
	Count          int    `json:"count"`
	LastSnapshotAt string `json:"last_snapshot_at,omitempty"`
}

type TodayResponse struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type StatusResponse struct {
	State           string         `json:"state"`
	Running         bool           `json:"running"`
	Paused          bool           `json:"paused"`
	Active          bool           `json:"active"`
	Reason          string         `json:"reason"`
	IntervalSeconds int            `json:"interval_seconds"`
	NextSnapshotISO *string        `json:"next_snapshot_iso"`
	Sunrise         string         `json:"sunrise,omitempty"`
	Sunset          string         `json:"sunset,omitempty"`
	Images          ImagesResponse `json:"images"`
	Health          HealthResponse `json:"health"`
	LastError       *ErrorResponse `json:"last_error,omitempty"`
	Today           *TodayResponse `json:"today,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func newStatusResponse(st scheduler.Status) StatusResponse {
	sr := StatusResponse{
		State:           st.State,
		Running:         st.Running,
		Paused:          st.Paused,
		Active:          st.Decision.Active,
		Reason:          string(st.Decision.Reason),
		IntervalSeconds: int(st.Interval / time.Second),
		Images: ImagesResponse{
			Count:          st.Images.Count,
			LastSnapshotAt: formatTime(st.Images.LastSnapshotAt),
		},
		Health: HealthResponse{
			Status:    st.Health.Status,
			Code:      st.Health.Code,
			Message:   st.Health.Message,
			CheckedAt: formatTime(st.Health.CheckedAt),
		},
	}
	if st.HasNextRun {
		next := formatTime(st.NextRun)
		sr.NextSnapshotISO = &next
	}
	if st.Decision.HasSolar {
		sr.Sunrise = st.Decision.Sunrise.String()
		sr.Sunset = st.Decision.Sunset.String()
	}
	if e := st.LastError; e != nil {
		sr.LastError = &ErrorResponse{Code: e.Code, Message: e.Message, At: formatTime(e.At)}
	}
	if st.Today.Valid {
		sr.Today = &TodayResponse{Succeeded: st.Today.Succeeded, Failed: st.Today.Failed}
	}
	return sr
}

func (s *Server) ServeStatus(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	s.writeJSON(ctx, w, r, "status", http.StatusOK, newStatusResponse(s.sched.Status(ctx)))
}

func (s *Server) servePaused(ctx context.Context, w http.ResponseWriter, r *http.Request, pause bool) {
	msg, fn := "resume", s.sched.Resume
	if pause {
		msg, fn = "pause", s.sched.Pause
	}
	if r.Method != http.MethodPost {
		s.httpError(ctx, w, r.URL, msg, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := fn(ctx); err != nil {
		s.httpError(ctx, w, r.URL, msg, err.Error(), http.StatusInternalServerError)
		return
	}
	s.l.Info(msg, "request", r.URL.String())
	s.writeJSON(ctx, w, r, msg, http.StatusOK, newStatusResponse(s.sched.Status(ctx)))
}

// CaptureResponse describes a successful on-demand capture.
type CaptureResponse struct {
	Filename     string `json:"filename"`
	TimestampISO string `json:"timestamp_iso"`
	Bytes        int64  `json:"bytes"`
	Attempts     int    `json:"attempts"`
}

func (s *Server) ServeSnapshot(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.httpError(ctx, w, r.URL, "snapshot", "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	res, err := s.sched.CaptureNow(ctx)
	if err != nil {
		er := ErrorResponse{Code: capture.ErrorCode(err), Message: err.Error()}
		var ce *capture.Error
		if errors.As(err, &ce) {
			er.Message = ce.Message
		}
		s.l.Info("snapshot", "request", r.URL.String(), "code", er.Code, "error", er.Message)
		s.writeJSON(ctx, w, r, "snapshot", http.StatusBadGateway, er)
		return
	}
	s.writeJSON(ctx, w, r, "snapshot", http.StatusOK, CaptureResponse{
		Filename:     res.Filename,
		TimestampISO: formatTime(res.CapturedAt),
		Bytes:        res.Bytes,
		Attempts:     res.Attempts,
	})
}

func (s *Server) ServeProbe(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.httpError(ctx, w, r.URL, "probe", "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hr := s.sched.ProbeNow(ctx)
	resp := HealthResponse{
		Status:    "ok",
		Code:      hr.Code,
		Message:   hr.Message,
		CheckedAt: formatTime(hr.CheckedAt),
	}
	if !hr.OK {
		resp.Status = "error"
	}
	s.writeJSON(ctx, w, r, "probe", http.StatusOK, resp)
}

// CompletionResponse describes a capture attempt.
type CompletionResponse struct {
	ID        int64  `json:"id,omitempty"`
	Trigger   string `json:"trigger"`
	Status    string `json:"status"`
	Due       string `json:"due,omitempty"`
	Started   string `json:"started"`
	Completed string `json:"completed,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Bytes     int64  `json:"bytes,omitempty"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}

func parseNum(r *http.Request) (int, error) {
	v := r.URL.Query().Get("num")
	if len(v) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid num")
	}
	return n, nil
}

func (s *Server) history(num int, recent bool) []CompletionResponse {
	cr := []CompletionResponse{}
	it := s.sr.Completed()
	if recent {
		it = s.sr.CompletedRecent()
	}
	for rec := range it {
		cr = append(cr, CompletionResponse{
			ID:        rec.ID,
			Trigger:   rec.Trigger,
			Status:    rec.Status(),
			Due:       formatTime(rec.Due),
			Started:   formatTime(rec.Pending),
			Completed: formatTime(rec.Completed),
			Filename:  rec.Filename,
			Bytes:     rec.Bytes,
			Code:      rec.Code,
			Error:     rec.ErrorMessage(),
		})
		if num > 0 && len(cr) >= num {
			break
		}
	}
	return cr
}

// ServeHistory returns the captures retained by the status recorder,
// oldest first unless order=recent is specified.
func (s *Server) ServeHistory(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	num, err := parseNum(r)
	if err != nil {
		s.httpError(ctx, w, r.URL, "history", err.Error(), http.StatusBadRequest)
		return
	}
	recent := r.URL.Query().Get("order") == "recent"
	s.writeJSON(ctx, w, r, "history", http.StatusOK, s.history(num, recent))
}

// DefaultCaptures is the number of records returned by /api/captures when
// num is not specified.
const DefaultCaptures = 50

// ServeCaptures returns the most recent records from the capture database.
func (s *Server) ServeCaptures(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	num, err := parseNum(r)
	if err != nil {
		s.httpError(ctx, w, r.URL, "captures", err.Error(), http.StatusBadRequest)
		return
	}
	if num == 0 {
		num = DefaultCaptures
	}
	recs, err := s.db.Recent(ctx, num, nil)
	if err != nil {
		s.httpError(ctx, w, r.URL, "captures", err.Error(), http.StatusInternalServerError)
		return
	}
	cr := make([]CompletionResponse, 0, len(recs))
	for _, rec := range recs {
		status := "completed"
		if !rec.OK() {
			status = "failed"
		}
		cr = append(cr, CompletionResponse{
			Trigger:   rec.Trigger,
			Status:    status,
			Started:   formatTime(rec.Started),
			Completed: formatTime(rec.Finished),
			Filename:  rec.Filename,
			Bytes:     rec.Bytes,
			Code:      rec.Code,
			Error:     rec.Message,
		})
	}
	s.writeJSON(ctx, w, r, "captures", http.StatusOK, cr)
}

// AppendEndpoints registers the server's endpoints with mux. Endpoints
// whose backing store was not configured are not registered.
func (s *Server) AppendEndpoints(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		s.ServeStatus(ctx, w, r)
	})
	mux.HandleFunc("/api/pause", func(w http.ResponseWriter, r *http.Request) {
		s.servePaused(ctx, w, r, true)
	})
	mux.HandleFunc("/api/resume", func(w http.ResponseWriter, r *http.Request) {
		s.servePaused(ctx, w, r, false)
	})
	mux.HandleFunc("/api/snapshot", func(w http.ResponseWriter, r *http.Request) {
		s.ServeSnapshot(ctx, w, r)
	})
	mux.HandleFunc("/api/probe", func(w http.ResponseWriter, r *http.Request) {
		s.ServeProbe(ctx, w, r)
	})
	if s.sr != nil {
		mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
			s.ServeHistory(ctx, w, r)
		})
	}
	if s.db != nil {
		mux.HandleFunc("/api/captures", func(w http.ResponseWriter, r *http.Request) {
			s.ServeCaptures(ctx, w, r)
		})
	}
	if s.bus != nil {
		mux.Handle("/api/events", &wsevents.Handler{Bus: s.bus, Logger: s.l})
	}
}
