// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/DarrenJCoxon/devpulse-sub002/lib/clock"
)

// DefaultReconcileInterval is the aging-pass cadence.
const DefaultReconcileInterval = 30 * time.Second

// Reconciler drives the engine's timer-based session aging. It runs an
// immediate pass on startup, so sessions loaded or created before a
// restart age correctly without waiting a full interval, then ticks at
// a fixed cadence until the context is canceled.
type Reconciler struct {
	engine   *Engine
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration
}

// ReconcilerConfig configures a Reconciler. Zero values take defaults;
// the clock defaults to the engine's clock.
type ReconcilerConfig struct {
	Engine   *Engine
	Clock    clock.Clock
	Logger   *slog.Logger
	Interval time.Duration
}

func NewReconciler(config ReconcilerConfig) *Reconciler {
	if config.Clock == nil {
		config.Clock = config.Engine.clock
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultReconcileInterval
	}
	return &Reconciler{
		engine:   config.Engine,
		clock:    config.Clock,
		logger:   config.Logger,
		interval: config.Interval,
	}
}

// Run blocks until ctx is canceled, reconciling immediately and then
// on every tick.
func (r *Reconciler) Run(ctx context.Context) {
	r.pass(ctx)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Reconciler) pass(ctx context.Context) {
	deltas := r.engine.Reconcile(ctx)
	if len(deltas) > 0 {
		r.logger.Debug("reconcile pass", "deltas", len(deltas))
	}
}
