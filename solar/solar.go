// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package solar provides sunrise and sunset times for a date and place.
package solar

import (
	"time"

	"cloudeng.io/datetime"
	"github.com/nathan-osman/go-sunrise"
)

// Place is a geographic location and the timezone that sunrise and
// sunset are reported in.
type Place struct {
	Latitude  float64
	Longitude float64
	TZ        *time.Location
}

// Provider returns the local sunrise and sunset for the supplied date
// and place. ok is false when either is undefined (eg. polar day or
// night) or sunrise does not precede sunset.
type Provider interface {
	SunTimes(date datetime.CalendarDate, place Place) (sunrise, sunset datetime.TimeOfDay, ok bool)
}

// Calculator is a Provider that computes times using the NOAA
// algorithm. It is accurate to within a minute or so, which is ample
// for deciding whether to take a photograph.
type Calculator struct{}

func (Calculator) SunTimes(date datetime.CalendarDate, place Place) (sunriseAt, sunsetAt datetime.TimeOfDay, ok bool) {
	rise, set := sunrise.SunriseSunset(place.Latitude, place.Longitude,
		date.Year(), time.Month(date.Month()), date.Day())
	if rise.IsZero() || set.IsZero() {
		return 0, 0, false
	}
	loc := place.TZ
	if loc == nil {
		loc = time.Local
	}
	sr := datetime.TimeOfDayFromTime(rise.In(loc))
	ss := datetime.TimeOfDayFromTime(set.In(loc))
	if sr >= ss {
		return 0, 0, false
	}
	return sr, ss, true
}

// Fixed is a Provider that returns the same times for every date.
type Fixed struct {
	Sunrise, Sunset datetime.TimeOfDay
	Unavailable     bool
}

func (f Fixed) SunTimes(datetime.CalendarDate, Place) (sunrise, sunset datetime.TimeOfDay, ok bool) {
	if f.Unavailable || f.Sunrise >= f.Sunset {
		return 0, 0, false
	}
	return f.Sunrise, f.Sunset, true
}
