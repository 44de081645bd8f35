// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloudeng.io/datetime"
	"github.com/cosnicolaou/capturelapse/config"
	"github.com/cosnicolaou/capturelapse/solar"
)

type ConfigFileFlags struct {
	ConfigFile string `subcmd:"config,$HOME/.capturelapse.yaml,path to the configuration file"`
	EnvFile    string `subcmd:"env-file,,dotenv file to load before resolving the storage directory, defaults to .env alongside the configuration file"`
	Sunrise    string `subcmd:"sunrise,,use this fixed sunrise time (HH:MM) instead of computing it"`
	Sunset     string `subcmd:"sunset,,use this fixed sunset time (HH:MM) instead of computing it"`
}

func (fv *ConfigFileFlags) configDir() string {
	return filepath.Dir(fv.ConfigFile)
}

// load reads the environment and configuration files, a missing
// configuration file yields the default configuration.
func (fv *ConfigFileFlags) load(ctx context.Context) (config.Config, config.File, error) {
	envFile := fv.EnvFile
	if len(envFile) == 0 {
		envFile = filepath.Join(fv.configDir(), ".env")
	}
	if err := config.LoadEnv(envFile); err != nil {
		return config.Config{}, config.File{}, err
	}
	store := config.File{Path: fv.ConfigFile}
	cfg, err := store.Load(ctx)
	if err != nil {
		return config.Config{}, config.File{}, err
	}
	return cfg, store, nil
}

// solarProvider returns a provider that uses the fixed sunrise and
// sunset times if either is specified.
func (fv *ConfigFileFlags) solarProvider() (solar.Provider, error) {
	if len(fv.Sunrise) == 0 && len(fv.Sunset) == 0 {
		return solar.Calculator{}, nil
	}
	if len(fv.Sunrise) == 0 || len(fv.Sunset) == 0 {
		return nil, fmt.Errorf("both --sunrise and --sunset must be specified")
	}
	rise, err := config.ParseTimeOfDay(fv.Sunrise)
	if err != nil {
		return nil, fmt.Errorf("invalid sunrise: %w", err)
	}
	set, err := config.ParseTimeOfDay(fv.Sunset)
	if err != nil {
		return nil, fmt.Errorf("invalid sunset: %w", err)
	}
	return solar.Fixed{Sunrise: rise, Sunset: set}, nil
}

func newLogfile(name string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func setupLogging(logfile string, stdout io.Writer) (*slog.Logger, func(), error) {
	if len(logfile) == 0 {
		return slog.New(slog.NewJSONHandler(stdout, nil)), func() {}, nil
	}
	f, err := newLogfile(logfile)
	if err != nil {
		return nil, func() {}, err
	}
	l := slog.New(slog.NewJSONHandler(f, nil))
	return l, func() { f.Close() }, nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// parseTime parses v in one of the supported layouts, times without
// a zone offset are interpreted in loc.
func parseTime(v string, loc *time.Location) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time: %q, use RFC3339 or YYYY-MM-DDTHH:MM", v)
}

// parseDateRange parses <from>:<to> where both dates are YYYY-MM-DD.
func parseDateRange(v string) (datetime.CalendarDateRange, error) {
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid date range: %q, use <from>:<to>", v)
	}
	from, fok, err := config.ParseDate(parts[0])
	if err != nil {
		return 0, err
	}
	to, tok, err := config.ParseDate(parts[1])
	if err != nil {
		return 0, err
	}
	if !fok || !tok || to < from {
		return 0, fmt.Errorf("invalid date range: %q", v)
	}
	return datetime.NewCalendarDateRange(from, to), nil
}
