// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package capture

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// HealthResult is the outcome of a reachability check.
type HealthResult struct {
	OK        bool
	Code      string
	Message   string
	CheckedAt time.Time
}

// statusUnreachable is used internally when a HEAD request fails.
const statusUnreachable = 599

// Probe checks that the camera is reachable. A HEAD request is tried
// first since it avoids transferring an image, many cameras do not
// support HEAD so a GET is issued, with retries, if it fails. The
// camera is considered reachable for any status below 400.
func (a *Acquirer) Probe(ctx context.Context, cam Camera) HealthResult {
	hr := HealthResult{CheckedAt: a.clock.NowIn(time.Local)}
	if len(cam.URL) == 0 {
		hr.Code, hr.Message = CodeNoURL, "No camera URL configured"
		return hr
	}
	status := a.head(ctx, cam)
	if status >= 400 {
		resp, cancel, _, err := a.do(ctx, cam, http.MethodGet, a.healthTimeout)
		if err != nil {
			hr.Code, hr.Message = CodeConnectionError, describe(err)
			a.logger.Info("health", "ok", false, "code", hr.Code, "message", hr.Message)
			return hr
		}
		status = resp.StatusCode
		if status < 400 {
			io.CopyN(io.Discard, resp.Body, 1024) //nolint:errcheck
		}
		resp.Body.Close()
		cancel()
	}
	hr.Code = strconv.Itoa(status)
	if status < 400 {
		hr.OK = true
		hr.Message = "Camera reachable"
	} else {
		hr.Message = fmt.Sprintf("HTTP %d", status)
	}
	a.logger.Info("health", "ok", hr.OK, "code", hr.Code, "message", hr.Message)
	return hr
}

func (a *Acquirer) head(ctx context.Context, cam Camera) int {
	ctx, cancel := context.WithTimeoutCause(ctx, a.healthTimeout, ErrAttemptTimeout)
	defer cancel()
	req, err := a.newRequest(ctx, cam, http.MethodHead)
	if err != nil {
		return statusUnreachable
	}
	resp, err := a.clientFor(cam).Do(req)
	if err != nil {
		return statusUnreachable
	}
	resp.Body.Close()
	return resp.StatusCode
}
