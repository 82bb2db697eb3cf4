// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a fixed-size SQLite connection pool with
// DevPulse-standard pragmas (WAL journaling, normal synchronous mode,
// busy timeout). The store package builds its record tables on top of
// this pool; tests open ":memory:" databases with a pool size of 1.
package sqlitepool
