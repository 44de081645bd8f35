// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	// DataDirEnv names a directory that relative save paths are
	// resolved against.
	DataDirEnv = "CAPTURELAPSE_DATA_DIR"
	// SavePathEnv overrides the configured save path entirely.
	SavePathEnv = "CAPTURELAPSE_SAVE_PATH"
)

// LoadEnv loads environment variables from the supplied dotenv files
// without overriding variables that are already set. Missing files are
// ignored.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if len(f) == 0 {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ResolveStorageDir returns the directory that images are saved to.
// $CAPTURELAPSE_SAVE_PATH takes precedence over savePath; an absolute
// path is used as is and a relative one is joined to
// $CAPTURELAPSE_DATA_DIR, configDir or the current directory, in that
// order of preference.
func ResolveStorageDir(savePath, configDir string) string {
	if v := os.Getenv(SavePathEnv); len(v) > 0 {
		savePath = v
	}
	if len(savePath) == 0 {
		savePath = DefaultSavePath
	}
	if filepath.IsAbs(savePath) {
		return filepath.Clean(savePath)
	}
	base := os.Getenv(DataDirEnv)
	if len(base) == 0 {
		base = configDir
	}
	if len(base) == 0 {
		if wd, err := os.Getwd(); err == nil {
			base = wd
		}
	}
	return filepath.Join(base, savePath)
}
