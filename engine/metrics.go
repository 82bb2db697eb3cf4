// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"sort"
	"time"

	"github.com/DarrenJCoxon/devpulse-sub002/schema"
)

// computeMetrics derives SessionMetrics from a session's recorded
// history. It is a pure function of the state: recomputing from the
// same history yields an identical result, and nothing is cached
// between calls. The caller holds the engine mutex.
func computeMetrics(state *sessionState) schema.SessionMetrics {
	metrics := schema.SessionMetrics{SessionID: state.SessionID}

	metrics.ToolStats, metrics.OverallSuccessRate = computeToolStats(state.toolOutcomes)
	metrics.Turns = computeTurnStats(state.history)
	metrics.EventsPerMinute = computeEventRate(state.EventCount, state.StartedAt, state.LastEventAt)
	metrics.Timeline = computeTimeline(state.history, state.StartedAt)

	return metrics
}

func computeToolStats(outcomes map[string]*outcomeTally) (map[string]schema.ToolStats, float64) {
	if len(outcomes) == 0 {
		return nil, 0
	}

	stats := make(map[string]schema.ToolStats, len(outcomes))
	totalSuccesses, total := 0, 0
	for name, tally := range outcomes {
		n := tally.successes + tally.failures
		stats[name] = schema.ToolStats{
			Successes:   tally.successes,
			Failures:    tally.failures,
			SuccessRate: rate(tally.successes, n),
		}
		totalSuccesses += tally.successes
		total += n
	}
	return stats, rate(totalSuccesses, total)
}

// rate returns successes/total as a 0-100 percentage, 0 for an empty
// total.
func rate(successes, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(successes) / float64(total)
}

// computeTurnStats measures turn durations. A turn opens at a
// UserPromptSubmit and closes at the last event before the next
// prompt; a trailing open turn closes at the session's final event.
// Zero-length turns (a prompt immediately followed by another prompt)
// are skipped.
func computeTurnStats(history []historyEvent) schema.TurnStats {
	var durations []time.Duration

	turnStart := time.Time{}
	turnEnd := time.Time{}
	for _, event := range history {
		if event.eventType == schema.EventUserPromptSubmit {
			if !turnStart.IsZero() && turnEnd.After(turnStart) {
				durations = append(durations, turnEnd.Sub(turnStart))
			}
			turnStart = event.timestamp
			turnEnd = event.timestamp
			continue
		}
		if !turnStart.IsZero() && event.timestamp.After(turnEnd) {
			turnEnd = event.timestamp
		}
	}
	if !turnStart.IsZero() && turnEnd.After(turnStart) {
		durations = append(durations, turnEnd.Sub(turnStart))
	}

	if len(durations) == 0 {
		return schema.TurnStats{}
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var sum time.Duration
	for _, duration := range durations {
		sum += duration
	}

	n := len(durations)
	median := durations[n/2]
	if n%2 == 0 {
		median = (durations[n/2-1] + durations[n/2]) / 2
	}

	return schema.TurnStats{
		Count:  n,
		Mean:   sum / time.Duration(n),
		Median: median,
		Min:    durations[0],
		Max:    durations[n-1],
	}
}

// computeEventRate is the session's event count per minute over the
// started-at to last-event span, with the span floored at one minute so
// a short burst does not report an absurd rate. The count is the
// session's event_count, which excludes the terminating event.
func computeEventRate(eventCount int, startedAt, lastEventAt time.Time) float64 {
	if eventCount == 0 {
		return 0
	}
	span := lastEventAt.Sub(startedAt)
	if span < time.Minute {
		span = time.Minute
	}
	return float64(eventCount) / span.Minutes()
}

// computeTimeline bins events into 1-minute buckets anchored at the
// session's started-at, so the first bucket begins when the session
// does rather than at the preceding wall-clock minute. Empty buckets
// between the first and last event are included so the timeline renders
// gaps.
func computeTimeline(history []historyEvent, startedAt time.Time) []schema.ActivityBucket {
	if len(history) == 0 {
		return nil
	}

	last := history[len(history)-1].timestamp
	buckets := int(last.Sub(startedAt)/time.Minute) + 1
	if buckets < 1 {
		buckets = 1
	}
	timeline := make([]schema.ActivityBucket, buckets)
	for i := range timeline {
		timeline[i].Start = startedAt.Add(time.Duration(i) * time.Minute)
	}

	for _, event := range history {
		index := int(event.timestamp.Sub(startedAt) / time.Minute)
		if index >= 0 && index < buckets {
			timeline[index].EventCount++
		}
	}
	return timeline
}
