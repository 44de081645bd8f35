// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package capture fetches still images from network cameras over HTTP.
package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cosnicolaou/capturelapse/config"
	"github.com/icholy/digest"
)

const (
	DefaultSnapshotTimeout = 10 * time.Second
	DefaultHealthTimeout   = 5 * time.Second
	DefaultRetries         = 3
	DefaultBackoff         = 350 * time.Millisecond
	DefaultThumbnailEdge   = 320
	UserAgent              = "capturelapse/1.0"
)

// Camera identifies a camera and the credentials needed to access it.
type Camera struct {
	URL      string
	Auth     config.AuthType
	Username string
	Password string
}

// CameraFromConfig returns the Camera described by cfg.
func CameraFromConfig(cfg config.Config) Camera {
	return Camera{
		URL:      cfg.CameraURL,
		Auth:     cfg.AuthType,
		Username: cfg.Username,
		Password: cfg.Password,
	}
}

func (c Camera) hasCredentials() bool {
	return len(c.Username) > 0 && len(c.Password) > 0
}

// Request describes a single capture.
type Request struct {
	Camera
	// Dir is the directory that the image is written to.
	Dir string
	// Location is used to name the image file, the local timezone
	// is used if nil.
	Location *time.Location
}

// Result describes a successful capture.
type Result struct {
	Filename   string
	Path       string
	CapturedAt time.Time
	Bytes      int64
	Attempts   int
	Thumbnail  string
}

// Clock is the source of the current time.
type Clock interface {
	NowIn(loc *time.Location) time.Time
}

type systemClock struct{}

func (systemClock) NowIn(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// Sleeper waits between attempts, it must return early if ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

type Option func(o *options)

type options struct {
	client          *http.Client
	clock           Clock
	retries         int
	backoff         time.Duration
	snapshotTimeout time.Duration
	healthTimeout   time.Duration
	logger          *slog.Logger
	previewPath     string
	thumbnailEdge   int
	sleeper         Sleeper
}

// WithHTTPClient sets the client whose transport is used for all
// requests. Its timeout is ignored in favour of WithTimeouts.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithRetries sets the maximum number of attempts made for a request.
func WithRetries(n int) Option {
	return func(o *options) {
		o.retries = n
	}
}

// WithBackoff sets the delay between attempts.
func WithBackoff(d time.Duration) Option {
	return func(o *options) {
		o.backoff = d
	}
}

// WithTimeouts sets the per-attempt timeouts for snapshot and health
// check requests.
func WithTimeouts(snapshot, health time.Duration) Option {
	return func(o *options) {
		o.snapshotTimeout = snapshot
		o.healthTimeout = health
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithPreviewPath sets a path that every captured image is copied to.
func WithPreviewPath(p string) Option {
	return func(o *options) {
		o.previewPath = p
	}
}

// WithThumbnailEdge sets the longest edge of generated thumbnails, zero
// or less disables thumbnails.
func WithThumbnailEdge(px int) Option {
	return func(o *options) {
		o.thumbnailEdge = px
	}
}

// WithSleeper replaces the function used to wait between attempts.
func WithSleeper(s Sleeper) Option {
	return func(o *options) {
		o.sleeper = s
	}
}

// Acquirer fetches images from a camera. An Acquirer may be used
// concurrently, but callers are expected to serialize captures.
type Acquirer struct {
	options
	transport http.RoundTripper
	thumbs    Thumbnailer
}

// New returns a new Acquirer.
func New(opts ...Option) *Acquirer {
	a := &Acquirer{
		options: options{
			retries:         DefaultRetries,
			backoff:         DefaultBackoff,
			snapshotTimeout: DefaultSnapshotTimeout,
			healthTimeout:   DefaultHealthTimeout,
			thumbnailEdge:   DefaultThumbnailEdge,
		},
	}
	for _, opt := range opts {
		opt(&a.options)
	}
	if a.clock == nil {
		a.clock = systemClock{}
	}
	if a.sleeper == nil {
		a.sleeper = sleep
	}
	if a.retries < 1 {
		a.retries = 1
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.logger = a.logger.With("mod", "capture")
	if a.client != nil && a.client.Transport != nil {
		a.transport = a.client.Transport
	} else {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.DisableKeepAlives = true
		a.transport = t
	}
	a.thumbs = Thumbnailer{MaxEdge: a.thumbnailEdge, Quality: DefaultThumbnailQuality}
	return a
}

func (a *Acquirer) clientFor(cam Camera) *http.Client {
	if cam.Auth == config.AuthDigest && cam.hasCredentials() {
		return &http.Client{Transport: &digest.Transport{
			Username:  cam.Username,
			Password:  cam.Password,
			Transport: a.transport,
		}}
	}
	return &http.Client{Transport: a.transport}
}

func (a *Acquirer) newRequest(ctx context.Context, cam Camera, method string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, cam.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "image/*,*/*;q=0.8")
	req.Header.Set("Connection", "close")
	req.Close = true
	if cam.Auth == config.AuthBasic && cam.hasCredentials() {
		req.SetBasicAuth(cam.Username, cam.Password)
	}
	return req, nil
}

// do issues a request, retrying transport failures. The returned
// cancel function must be called once the response body has been
// consumed.
func (a *Acquirer) do(ctx context.Context, cam Camera, method string, timeout time.Duration) (*http.Response, context.CancelFunc, int, error) {
	client := a.clientFor(cam)
	var lastErr error
	attempt := 0
	for attempt < a.retries {
		attempt++
		actx, cancel := context.WithTimeoutCause(ctx, timeout, ErrAttemptTimeout)
		req, err := a.newRequest(actx, cam, method)
		if err != nil {
			cancel()
			return nil, nil, attempt, err
		}
		resp, err := client.Do(req)
		if err == nil {
			return resp, cancel, attempt, nil
		}
		cancel()
		lastErr = err
		a.logger.Warn("attempt failed", "method", method, "url", cam.URL, "attempt", attempt, "of", a.retries, "err", describe(err))
		if ctx.Err() != nil {
			break
		}
		if attempt < a.retries {
			if err := a.sleeper(ctx, a.backoff); err != nil {
				break
			}
		}
	}
	return nil, nil, attempt, lastErr
}

// Filename returns the name used for an image captured at t.
func Filename(t time.Time) string {
	return t.Format("snapshot_20060102_150405.jpg")
}

type readErrorRecorder struct {
	io.Reader
	err error
}

func (r *readErrorRecorder) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	if err != nil && err != io.EOF {
		r.err = err
	}
	return n, err
}

// Capture fetches a single image and writes it to req.Dir. A failed
// capture always returns an *Error.
func (a *Acquirer) Capture(ctx context.Context, req Request) (Result, error) {
	if len(req.URL) == 0 {
		return Result{}, &Error{Code: CodeNoURL, Message: "No camera URL configured"}
	}
	loc := req.Location
	if loc == nil {
		loc = time.Local
	}
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return Result{}, &Error{Code: CodeException, Message: err.Error(), Err: err}
	}
	now := a.clock.NowIn(loc)
	name := Filename(now)
	resp, cancel, attempts, err := a.do(ctx, req.Camera, http.MethodGet, a.snapshotTimeout)
	if err != nil {
		return Result{}, &Error{Code: CodeConnectionError, Message: describe(err), Attempts: attempts, Err: err}
	}
	defer cancel()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, &Error{
			Code:     HTTPStatusCode(resp.StatusCode),
			Message:  fmt.Sprintf("Camera responded with status %d", resp.StatusCode),
			Attempts: attempts,
		}
	}
	path := filepath.Join(req.Dir, name)
	body := &readErrorRecorder{Reader: resp.Body}
	n, err := writeFile(path, body)
	if err != nil {
		if body.err != nil {
			return Result{}, &Error{Code: CodeConnectionError, Message: describe(body.err), Attempts: attempts, Err: body.err}
		}
		return Result{}, &Error{Code: CodeException, Message: err.Error(), Attempts: attempts, Err: err}
	}
	result := Result{
		Filename:   name,
		Path:       path,
		CapturedAt: now,
		Bytes:      n,
		Attempts:   attempts,
	}
	if a.thumbnailEdge > 0 {
		if thumb, err := a.thumbs.Ensure(path); err != nil {
			a.logger.Warn("thumbnail failed", "path", path, "err", err)
		} else {
			result.Thumbnail = thumb
		}
	}
	if len(a.previewPath) > 0 {
		if err := CopyFile(path, a.previewPath); err != nil {
			a.logger.Warn("preview copy failed", "path", a.previewPath, "err", err)
		}
	}
	a.logger.Info("captured", "file", name, "bytes", n, "attempts", attempts)
	return result, nil
}

// writeFile writes the contents of rd to a temporary file that is then
// renamed to path.
func writeFile(path string, rd io.Reader) (int64, error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, rd)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return 0, err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	return n, nil
}

// CopyFile copies src to dst via a temporary file.
func CopyFile(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	_, err = writeFile(dst, f)
	return err
}
