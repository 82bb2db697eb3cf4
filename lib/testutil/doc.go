// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides channel helpers with timeout safety valves
// so individual tests do not hang forever on a missing send or
// receive.
package testutil
