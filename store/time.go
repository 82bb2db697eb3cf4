// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package store

import "time"

// Timestamps are stored as Unix milliseconds. Zero times round-trip as
// 0 so optional columns stay falsy in SQL.

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
