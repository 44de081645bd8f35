// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/cosnicolaou/capturelapse/capture"
)

// MockAcquirer records captures without contacting a camera. Each
// capture is timestamped one second after the previous one, starting
// at Start.
type MockAcquirer struct {
	Start time.Time

	mu       sync.Mutex
	captures int
	probes   int
	err      error
}

func (a *MockAcquirer) Capture(_ context.Context, req capture.Request) (capture.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return capture.Result{}, a.err
	}
	a.captures++
	at := a.Start.Add(time.Duration(a.captures) * time.Second)
	name := capture.Filename(at)
	return capture.Result{
		Filename:   name,
		Path:       filepath.Join(req.Dir, name),
		CapturedAt: at,
		Bytes:      100,
		Attempts:   1,
	}, nil
}

func (a *MockAcquirer) Probe(context.Context, capture.Camera) capture.HealthResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.probes++
	if a.err != nil {
		return capture.HealthResult{Code: capture.ErrorCode(a.err), Message: a.err.Error()}
	}
	return capture.HealthResult{OK: true, Code: "200", Message: "Camera reachable"}
}

// Fail makes all subsequent captures and probes fail with err, nil
// restores normal operation.
func (a *MockAcquirer) Fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// Counts returns the number of successful captures and of probes.
func (a *MockAcquirer) Counts() (captures, probes int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.captures, a.probes
}
