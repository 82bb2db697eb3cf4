// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "errors"

// ErrValidation marks a malformed or incomplete RawEvent. The event is
// rejected without mutating any state; callers surface the error to
// the sender and must not retry.
var ErrValidation = errors.New("invalid event")

// ErrDuplicateTermination marks a second termination event arriving
// for an already-stopped session. The guard trips, the event is logged
// and not re-applied, and the devlog is not regenerated.
var ErrDuplicateTermination = errors.New("session already stopped")
