// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package capturedb_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cosnicolaou/capturelapse/internal/capturedb"
)

func TestCaptureDB(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "captures.db")
	db, err := capturedb.Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	start := time.Date(2025, 5, 17, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := capturedb.Record{
			Trigger:  "scheduled",
			Started:  start.Add(time.Duration(i) * time.Minute),
			Finished: start.Add(time.Duration(i)*time.Minute + time.Second),
			Filename: "snapshot.jpg",
			Bytes:    int64(100 * i),
		}
		if i%2 == 1 {
			r.Filename, r.Bytes = "", 0
			r.Code, r.Message = "http_503", "Camera responded with status 503"
		}
		id, err := db.Insert(ctx, r)
		if err != nil {
			t.Fatal(err)
		}
		if len(id) == 0 {
			t.Errorf("missing id")
		}
	}

	recs, err := db.Recent(ctx, 3, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(recs), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := recs[0].Started, start.Add(4*time.Minute); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := recs[0].Bytes, int64(400); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := recs[1].OK(), false; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := recs[1].Code, "http_503"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	ok, failed, err := db.Counts(ctx, start.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := ok, 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := failed, 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	if err := db.Close(); err != nil {
		t.Fatal(err)
	}
	db, err = capturedb.Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	recs, err = db.Recent(ctx, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(recs), 5; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
