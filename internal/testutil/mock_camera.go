// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"sync"
)

// MockCamera is an HTTP server that serves a small JPEG image for
// every request, or fails with a configured status code.
type MockCamera struct {
	*httptest.Server
	image []byte

	mu       sync.Mutex
	requests int
	status   int
	username string
	password string
}

// JPEG returns a w x h grey JPEG image.
func JPEG(w, h int) []byte {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.SetGray(x, h/2, color.Gray{Y: 0xff})
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// NewMockCamera starts a camera serving a 64x48 image.
func NewMockCamera() *MockCamera {
	c := &MockCamera{image: JPEG(64, 48)}
	c.Server = httptest.NewServer(http.HandlerFunc(c.serve))
	return c
}

func (c *MockCamera) serve(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	c.requests++
	status, user, pass := c.status, c.username, c.password
	c.mu.Unlock()
	if len(user) > 0 {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="camera"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	if status != 0 && status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(c.image)
}

// Image returns the image served by the camera.
func (c *MockCamera) Image() []byte {
	return c.image
}

// Fail makes all subsequent requests fail with status, 0 or 200
// restores normal operation.
func (c *MockCamera) Fail(status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

// RequireBasicAuth makes the camera reject requests that do not carry
// the specified credentials.
func (c *MockCamera) RequireBasicAuth(username, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username, c.password = username, password
}

// Requests returns the number of requests received so far.
func (c *MockCamera) Requests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}
