// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package config provides the persisted configuration for a timelapse
// camera: where to fetch images from, when to fetch them and where to
// store them.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloudeng.io/datetime"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// AuthType is the HTTP authentication scheme used for the camera.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBasic  AuthType = "basic"
	AuthDigest AuthType = "digest"
)

// InvalidSchedulePolicy determines whether captures proceed when the
// configured time window cannot be parsed.
type InvalidSchedulePolicy string

const (
	// FailOpen treats an unparseable time window as always active.
	FailOpen InvalidSchedulePolicy = "fail_open"
	// FailClosed treats an unparseable time window as never active.
	FailClosed InvalidSchedulePolicy = "fail_closed"
)

const (
	DefaultInterval    = 300
	DefaultActiveStart = "06:00"
	DefaultActiveEnd   = "22:00"
	DefaultSavePath    = "./pictures"
	DateFormat         = "2006-01-02"
)

// Config is the complete, persisted configuration. It is a value type,
// callers that share it must copy it.
type Config struct {
	InstanceName      string                `yaml:"instance_name,omitempty"`
	CameraURL         string                `yaml:"camera_url"`
	AuthType          AuthType              `yaml:"auth_type"`
	Username          string                `yaml:"username,omitempty"`
	Password          string                `yaml:"password,omitempty"`
	SavePath          string                `yaml:"save_path"`
	IntervalSeconds   int                   `yaml:"interval_seconds"`
	ActiveStart       string                `yaml:"active_start"`
	ActiveEnd         string                `yaml:"active_end"`
	ActiveDays        Weekdays              `yaml:"active_days,flow"`
	ScheduleStartDate string                `yaml:"schedule_start_date,omitempty"`
	ScheduleEndDate   string                `yaml:"schedule_end_date,omitempty"`
	UseAstral         bool                  `yaml:"use_astral"`
	Latitude          float64               `yaml:"latitude"`
	Longitude         float64               `yaml:"longitude"`
	Timezone          string                `yaml:"timezone,omitempty"`
	Paused            bool                  `yaml:"paused"`
	OnInvalidSchedule InvalidSchedulePolicy `yaml:"on_invalid_schedule,omitempty"`
	LogFile           string                `yaml:"log_file,omitempty"`
}

// Default returns the configuration used when no configuration file
// exists yet.
func Default() Config {
	return Config{
		AuthType:          AuthNone,
		SavePath:          DefaultSavePath,
		IntervalSeconds:   DefaultInterval,
		ActiveStart:       DefaultActiveStart,
		ActiveEnd:         DefaultActiveEnd,
		ActiveDays:        Weekdays{},
		OnInvalidSchedule: FailOpen,
	}
}

// Interval returns the capture interval, substituting the default for
// non-positive values.
func (c Config) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return DefaultInterval * time.Second
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Location returns the configured location, falling back to the
// local timezone for empty or invalid names.
func (c Config) Location() *time.Location {
	loc, _ := ResolveLocation(c.Timezone)
	return loc
}

// Policy returns the invalid-schedule policy, FailOpen when unset.
func (c Config) Policy() InvalidSchedulePolicy {
	if c.OnInvalidSchedule == "" {
		return FailOpen
	}
	return c.OnInvalidSchedule
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	c.ActiveDays = append(Weekdays{}, c.ActiveDays...)
	return c
}

// String returns the YAML representation of c with the password
// redacted.
func (c Config) String() string {
	if len(c.Password) > 0 {
		c.Password = "****"
	}
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("failed to marshal config: %v", err)
	}
	return string(out)
}

// ParseTimeOfDay parses an HH:MM (or HH:MM:SS) wall clock time.
func ParseTimeOfDay(v string) (datetime.TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day: %q", v)
	}
	var hms [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time of day: %q", v)
		}
		hms[i] = n
	}
	if hms[0] > 23 || hms[1] > 59 || hms[2] > 59 {
		return 0, fmt.Errorf("invalid time of day: %q: out of range", v)
	}
	return datetime.NewTimeOfDay(hms[0], hms[1], hms[2]), nil
}

// ParseDate parses an optional YYYY-MM-DD date, ok is false for an
// empty string.
func ParseDate(v string) (cd datetime.CalendarDate, ok bool, err error) {
	v = strings.TrimSpace(v)
	if len(v) == 0 {
		return 0, false, nil
	}
	t, err := time.Parse(DateFormat, v)
	if err != nil {
		return 0, false, fmt.Errorf("invalid date: %q: %w", v, err)
	}
	return datetime.CalendarDateFromTime(t), true, nil
}

var weekdayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// WeekdayName returns the three letter, title case, name for d.
func WeekdayName(d time.Weekday) string {
	return weekdayNames[d]
}

func title(s string) string {
	return cases.Title(language.English).String(s)
}

// Weekdays is a list of three letter weekday names, matched case
// insensitively. An empty list allows every day.
type Weekdays []string

// UnmarshalYAML implements yaml.Unmarshaler, names are normalized to
// title case.
func (w *Weekdays) UnmarshalYAML(node *yaml.Node) error {
	var names []string
	if err := node.Decode(&names); err != nil {
		return err
	}
	*w = NormalizeWeekdays(names)
	return nil
}

// NormalizeWeekdays trims and title cases the supplied names.
func NormalizeWeekdays(names []string) Weekdays {
	out := make(Weekdays, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if len(n) == 0 {
			continue
		}
		out = append(out, title(n))
	}
	return out
}

// Unknown returns the entries that are not recognised weekday names.
func (w Weekdays) Unknown() []string {
	var unknown []string
	for _, n := range w {
		if _, ok := weekdayIndex(n); !ok {
			unknown = append(unknown, n)
		}
	}
	return unknown
}

// Set returns the days that are allowed, all days for an empty list.
func (w Weekdays) Set() (days [7]bool) {
	if len(w) == 0 {
		for i := range days {
			days[i] = true
		}
		return
	}
	for _, n := range w {
		if i, ok := weekdayIndex(n); ok {
			days[i] = true
		}
	}
	return
}

func weekdayIndex(name string) (time.Weekday, bool) {
	name = title(strings.TrimSpace(name))
	for i, n := range weekdayNames {
		if n == name {
			return time.Weekday(i), true
		}
	}
	return 0, false
}
