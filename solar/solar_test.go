// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package solar_test

import (
	"testing"
	"time"

	"cloudeng.io/datetime"
	"github.com/cosnicolaou/capturelapse/solar"
)

func TestCalculator(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatal(err)
	}
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}
	for i, tc := range []struct {
		place          solar.Place
		date           datetime.CalendarDate
		riseLo, riseHi int // hours
		setLo, setHi   int
	}{
		{solar.Place{Latitude: 51.5, Longitude: -0.12, TZ: london},
			datetime.NewCalendarDate(2025, 6, 21), 4, 5, 21, 22},
		{solar.Place{Latitude: 51.5, Longitude: -0.12, TZ: london},
			datetime.NewCalendarDate(2025, 12, 21), 7, 9, 15, 17},
		// Sunset in Los Angeles is after midnight UTC.
		{solar.Place{Latitude: 34.05, Longitude: -118.24, TZ: la},
			datetime.NewCalendarDate(2025, 7, 1), 5, 6, 20, 21},
	} {
		sr, ss, ok := solar.Calculator{}.SunTimes(tc.date, tc.place)
		if !ok {
			t.Errorf("%v: unexpectedly unavailable", i)
			continue
		}
		if h := sr.Hour(); h < tc.riseLo || h > tc.riseHi {
			t.Errorf("%v: sunrise %v outside [%v, %v]", i, sr, tc.riseLo, tc.riseHi)
		}
		if h := ss.Hour(); h < tc.setLo || h > tc.setHi {
			t.Errorf("%v: sunset %v outside [%v, %v]", i, ss, tc.setLo, tc.setHi)
		}
	}
}

func TestCalculatorPolar(t *testing.T) {
	// Svalbard in midsummer and midwinter.
	for _, date := range []datetime.CalendarDate{
		datetime.NewCalendarDate(2025, 6, 21),
		datetime.NewCalendarDate(2025, 12, 21),
	} {
		_, _, ok := solar.Calculator{}.SunTimes(date, solar.Place{Latitude: 78.2, Longitude: 15.6, TZ: time.UTC})
		if ok {
			t.Errorf("%v: expected no sunrise/sunset", date)
		}
	}
}

func TestFixed(t *testing.T) {
	f := solar.Fixed{Sunrise: datetime.NewTimeOfDay(7, 12, 0), Sunset: datetime.NewTimeOfDay(19, 45, 0)}
	sr, ss, ok := f.SunTimes(datetime.NewCalendarDate(2025, 1, 1), solar.Place{})
	if !ok || sr != f.Sunrise || ss != f.Sunset {
		t.Errorf("got %v %v %v", sr, ss, ok)
	}
	f.Unavailable = true
	if _, _, ok := f.SunTimes(datetime.NewCalendarDate(2025, 1, 1), solar.Place{}); ok {
		t.Errorf("expected unavailable")
	}
	f = solar.Fixed{Sunrise: datetime.NewTimeOfDay(19, 0, 0), Sunset: datetime.NewTimeOfDay(7, 0, 0)}
	if _, _, ok := f.SunTimes(datetime.NewCalendarDate(2025, 1, 1), solar.Place{}); ok {
		t.Errorf("expected sunset before sunrise to be unavailable")
	}
}
