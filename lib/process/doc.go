// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for the devpulse
// command. Fatal centralizes the one legitimate raw-stderr pattern:
// reporting an error from main() before or after the structured logger
// exists.
package process
