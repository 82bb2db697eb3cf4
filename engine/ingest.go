// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"time"

	"github.com/DarrenJCoxon/devpulse-sub002/schema"
)

// Normalize validates a raw event and fills in defaults. It is pure:
// no state is read or written beyond the arguments. Returns a
// ErrValidation-wrapped error when source_app, session_id, or
// hook_event_type is missing; validation failures are not recoverable
// and must not be retried.
//
// A nil payload is normalized to an empty map and a zero timestamp
// defaults to now (the engine's clock at the ingest boundary).
func Normalize(raw schema.RawEvent, now time.Time) (schema.RawEvent, error) {
	if raw.SourceApp == "" {
		return schema.RawEvent{}, fmt.Errorf("%w: missing source_app", ErrValidation)
	}
	if raw.SessionID == "" {
		return schema.RawEvent{}, fmt.Errorf("%w: missing session_id", ErrValidation)
	}
	if raw.HookEventType == "" {
		return schema.RawEvent{}, fmt.Errorf("%w: missing hook_event_type", ErrValidation)
	}

	if raw.Payload == nil {
		raw.Payload = map[string]any{}
	}
	if raw.Timestamp.IsZero() {
		raw.Timestamp = now
	}
	return raw, nil
}
