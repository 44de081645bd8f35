// Copyright 2024 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package scheduler

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultStatsTTL is the time for which ImageStats are cached before the
// storage directory is rescanned.
const DefaultStatsTTL = 60 * time.Second

// ImageStats summarizes the images in the storage directory.
type ImageStats struct {
	Count          int
	LastSnapshotAt time.Time
	// Latest is the path of the most recent image, it is only set by a
	// scan of the storage directory.
	Latest string
}

// CameraHealth is the outcome of the most recent health probe.
type CameraHealth struct {
	Status    string // "ok" or "error", empty if no probe has been run.
	Code      string
	Message   string
	CheckedAt time.Time
}

// CameraError is the sticky error set by a failed capture and cleared by
// a subsequent successful capture or health probe.
type CameraError struct {
	Code    string
	Message string
	At      time.Time
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// scanImages counts the images in dir and finds the most recent one.
// A missing directory has no images.
func scanImages(dir string) (ImageStats, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return ImageStats{}, nil
		}
		return ImageStats{}, err
	}
	var st ImageStats
	for _, e := range entries {
		if !e.Type().IsRegular() || !isImage(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		st.Count++
		if fi.ModTime().After(st.LastSnapshotAt) {
			st.LastSnapshotAt = fi.ModTime()
			st.Latest = filepath.Join(dir, e.Name())
		}
	}
	return st, nil
}

// imageStats caches the result of scanning a storage directory.
// Concurrent refreshes share a single scan.
type imageStats struct {
	ttl   time.Duration
	group singleflight.Group

	mu      sync.Mutex
	dir     string
	stats   ImageStats
	fetched time.Time
	scans   int
}

func newImageStats(dir string, ttl time.Duration) *imageStats {
	return &imageStats{dir: dir, ttl: ttl}
}

// setDir changes the directory being summarized and discards the
// cached stats.
func (is *imageStats) setDir(dir string) {
	is.mu.Lock()
	defer is.mu.Unlock()
	is.dir = dir
	is.fetched = time.Time{}
}

// get returns the cached stats, rescanning if they are older than the
// ttl.
func (is *imageStats) get(now time.Time) (ImageStats, error) {
	is.mu.Lock()
	if !is.fetched.IsZero() && now.Sub(is.fetched) < is.ttl {
		st := is.stats
		is.mu.Unlock()
		return st, nil
	}
	is.mu.Unlock()
	return is.refresh(now)
}

// refresh rescans the directory regardless of the age of the cache.
func (is *imageStats) refresh(now time.Time) (ImageStats, error) {
	v, err, _ := is.group.Do("scan", func() (any, error) {
		is.mu.Lock()
		dir := is.dir
		is.scans++
		is.mu.Unlock()
		st, err := scanImages(dir)
		if err != nil {
			return ImageStats{}, err
		}
		is.mu.Lock()
		defer is.mu.Unlock()
		is.stats = st
		is.fetched = now
		return st, nil
	})
	return v.(ImageStats), err
}

// record accounts for a newly captured image without rescanning.
func (is *imageStats) record(path string, at time.Time) ImageStats {
	is.mu.Lock()
	defer is.mu.Unlock()
	is.stats.Count++
	is.stats.LastSnapshotAt = at
	is.stats.Latest = path
	return is.stats
}

func (is *imageStats) numScans() int {
	is.mu.Lock()
	defer is.mu.Unlock()
	return is.scans
}
