// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"cloudeng.io/cmdutil/cmdyaml"
	"gopkg.in/yaml.v3"
)

// Store loads and saves a configuration.
type Store interface {
	Load(ctx context.Context) (Config, error)
	Save(ctx context.Context, cfg Config) error
}

// File is a Store backed by a YAML file.
type File struct {
	Path string
}

// Load reads the configuration file. Settings missing from the file take
// their default values and a missing file yields the default configuration.
func (f File) Load(ctx context.Context) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(f.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, err
	}
	if err := cmdyaml.ParseConfigFile(ctx, f.Path, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config from %v: %w", f.Path, err)
	}
	cfg.ActiveDays = NormalizeWeekdays(cfg.ActiveDays)
	return cfg, nil
}

// Save writes the configuration to a temporary file and renames it
// over the original.
func (f File) Save(_ context.Context, cfg Config) error {
	buf, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Memory is a Store that keeps the configuration in memory.
type Memory struct {
	mu    sync.Mutex
	cfg   Config
	saves int
}

// NewMemory returns a Memory store holding cfg.
func NewMemory(cfg Config) *Memory {
	return &Memory{cfg: cfg.Clone()}
}

func (m *Memory) Load(_ context.Context) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Clone(), nil
}

func (m *Memory) Save(_ context.Context, cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg.Clone()
	m.saves++
	return nil
}

// Saves returns the number of times Save has been called.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
