// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package capture

import (
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register the png decoder.
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

const (
	DefaultThumbnailQuality = 80
	ThumbnailDir            = ".thumbs"
)

// ThumbnailPath returns the path of the thumbnail for src.
func ThumbnailPath(src string) string {
	return filepath.Join(filepath.Dir(src), ThumbnailDir, filepath.Base(src)+".jpg")
}

// Thumbnailer creates reduced size JPEG copies of images.
type Thumbnailer struct {
	MaxEdge int
	Quality int
}

// Ensure creates the thumbnail for src unless one already exists that
// is at least as recent as src.
func (t Thumbnailer) Ensure(src string) (string, error) {
	dst := ThumbnailPath(src)
	si, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	if di, err := os.Stat(dst); err == nil && !di.ModTime().Before(si.ModTime()) {
		return dst, nil
	}
	return dst, t.Create(src, dst)
}

// Create writes a thumbnail of src to dst. Images smaller than the
// maximum edge are not enlarged.
func (t Thumbnailer) Create(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to decode %v: %w", src, err)
	}
	b := img.Bounds()
	w, h := thumbnailSize(b.Dx(), b.Dy(), t.MaxEdge)
	thumb := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(thumb, thumb.Bounds(), img, b, draw.Src, nil)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	quality := t.Quality
	if quality <= 0 {
		quality = DefaultThumbnailQuality
	}
	if err := jpeg.Encode(out, thumb, &jpeg.Options{Quality: quality}); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func thumbnailSize(w, h, edge int) (int, int) {
	if edge <= 0 || (w <= edge && h <= edge) {
		return w, h
	}
	if w >= h {
		return edge, max(1, h*edge/w)
	}
	return max(1, w*edge/h), edge
}
