// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction so that
// time-driven behavior (session idle/stop aging, the reconciliation
// cadence) can be tested deterministically.
//
// Production code accepts a Clock parameter instead of calling
// time.Now, time.After, or time.NewTicker directly. Real() provides
// standard library behavior; Fake() provides a clock that advances
// only when Advance is called.
//
// Typical test wiring:
//
//	c := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
//	r := engine.NewReconciler(engine.ReconcilerConfig{Clock: c, ...})
//	go r.Run(ctx)
//	c.WaitForTimers(1)            // reconciler registered its ticker
//	c.Advance(2 * time.Minute)    // fires the tick deterministically
package clock
