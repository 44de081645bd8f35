// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package config

import "time"

// ResolveLocation returns the named location. An empty name returns the
// local timezone, an invalid name returns the local timezone along with
// the error encountered loading it so that callers may warn.
func ResolveLocation(name string) (*time.Location, error) {
	if len(name) == 0 {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local, err
	}
	return loc, nil
}
