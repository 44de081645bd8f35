// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"strings"

	"cloudeng.io/errors"
)

// Validate reports every problem found in the configuration. None of
// them prevent the configuration from being used, the schedule engine
// and acquirer treat each one according to their documented fallbacks.
func (c Config) Validate() error {
	errs := &errors.M{}
	_, serr := ParseTimeOfDay(c.ActiveStart)
	_, eerr := ParseTimeOfDay(c.ActiveEnd)
	if serr != nil || eerr != nil {
		errs.Append(fmt.Errorf("invalid time window %q - %q: policy %v applies", c.ActiveStart, c.ActiveEnd, c.Policy()))
	}
	if unknown := c.ActiveDays.Unknown(); len(unknown) > 0 {
		errs.Append(fmt.Errorf("unknown weekday names: %v", strings.Join(unknown, ", ")))
	}
	from, hasFrom, err := ParseDate(c.ScheduleStartDate)
	if err != nil {
		errs.Append(fmt.Errorf("schedule_start_date ignored: %w", err))
	}
	to, hasTo, err := ParseDate(c.ScheduleEndDate)
	if err != nil {
		errs.Append(fmt.Errorf("schedule_end_date ignored: %w", err))
	}
	if hasFrom && hasTo && to < from {
		errs.Append(fmt.Errorf("schedule_start_date %v is after schedule_end_date %v", c.ScheduleStartDate, c.ScheduleEndDate))
	}
	if _, err := ResolveLocation(c.Timezone); err != nil {
		errs.Append(fmt.Errorf("invalid timezone %q, using local time: %w", c.Timezone, err))
	}
	if c.UseAstral && c.Latitude == 0 && c.Longitude == 0 {
		errs.Append(fmt.Errorf("use_astral is enabled but latitude and longitude are both 0"))
	}
	if len(c.CameraURL) == 0 {
		errs.Append(fmt.Errorf("camera_url is not set"))
	}
	switch c.AuthType {
	case "", AuthNone, AuthBasic, AuthDigest:
	default:
		errs.Append(fmt.Errorf("unsupported auth_type %q", c.AuthType))
	}
	if c.AuthType == AuthBasic || c.AuthType == AuthDigest {
		if len(c.Username) == 0 || len(c.Password) == 0 {
			errs.Append(fmt.Errorf("auth_type %v requires both username and password, credentials will not be sent", c.AuthType))
		}
	}
	if c.IntervalSeconds <= 0 {
		errs.Append(fmt.Errorf("interval_seconds %v is not positive, using %v", c.IntervalSeconds, DefaultInterval))
	}
	switch c.OnInvalidSchedule {
	case "", FailOpen, FailClosed:
	default:
		errs.Append(fmt.Errorf("unsupported on_invalid_schedule %q", c.OnInvalidSchedule))
	}
	return errs.Err()
}
