// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"log/slog"
	"sync"

	"github.com/DarrenJCoxon/devpulse-sub002/schema"
)

// DefaultSubscriberBuffer is the per-subscriber delta ring capacity.
const DefaultSubscriberBuffer = 256

// Broadcaster fans deltas out to subscribers. Publishing never blocks:
// each subscriber owns a bounded ring and a full ring drops its oldest
// delta to admit the new one. A slow subscriber therefore loses old
// deltas rather than stalling the mutation path.
type Broadcaster struct {
	mu          sync.Mutex
	logger      *slog.Logger
	buffer      int
	subscribers map[*Subscriber]struct{}
	closed      bool
}

// Subscriber is one registered delta consumer. Receive deltas by
// waiting on Ready() and draining with Next().
type Subscriber struct {
	broadcaster *Broadcaster

	mu      sync.Mutex
	ring    []schema.Delta
	start   int
	count   int
	dropped uint64
	ready   chan struct{}
	closed  bool
}

// NewBroadcaster returns a broadcaster whose subscribers buffer up to
// buffer deltas each. A non-positive buffer uses
// DefaultSubscriberBuffer.
func NewBroadcaster(buffer int, logger *slog.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		logger:      logger,
		buffer:      buffer,
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber. Returns nil after Close.
func (b *Broadcaster) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	subscriber := &Subscriber{
		broadcaster: b,
		ring:        make([]schema.Delta, b.buffer),
		ready:       make(chan struct{}, 1),
	}
	b.subscribers[subscriber] = struct{}{}
	return subscriber
}

// Publish delivers deltas to every subscriber. Must be called outside
// the engine mutex.
func (b *Broadcaster) Publish(deltas []schema.Delta) {
	if len(deltas) == 0 {
		return
	}
	b.mu.Lock()
	subscribers := make([]*Subscriber, 0, len(b.subscribers))
	for subscriber := range b.subscribers {
		subscribers = append(subscribers, subscriber)
	}
	b.mu.Unlock()

	for _, subscriber := range subscribers {
		subscriber.push(deltas)
	}
}

// Close shuts down the broadcaster and every subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subscribers := make([]*Subscriber, 0, len(b.subscribers))
	for subscriber := range b.subscribers {
		subscribers = append(subscribers, subscriber)
	}
	b.subscribers = make(map[*Subscriber]struct{})
	b.mu.Unlock()

	for _, subscriber := range subscribers {
		subscriber.shutdown()
	}
}

func (b *Broadcaster) remove(subscriber *Subscriber) {
	b.mu.Lock()
	delete(b.subscribers, subscriber)
	b.mu.Unlock()
}

func (s *Subscriber) push(deltas []schema.Delta) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	for _, delta := range deltas {
		if s.count == len(s.ring) {
			// Full: evict the oldest.
			s.start = (s.start + 1) % len(s.ring)
			s.count--
			s.dropped++
		}
		s.ring[(s.start+s.count)%len(s.ring)] = delta
		s.count++
	}
	s.signal()
	s.mu.Unlock()
}

func (s *Subscriber) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Ready returns a channel that receives a token whenever deltas are
// available. The channel is closed when the subscriber shuts down.
func (s *Subscriber) Ready() <-chan struct{} {
	return s.ready
}

// Next pops the oldest buffered delta. The bool is false when the ring
// is empty.
func (s *Subscriber) Next() (schema.Delta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return schema.Delta{}, false
	}
	delta := s.ring[s.start]
	s.ring[s.start] = schema.Delta{}
	s.start = (s.start + 1) % len(s.ring)
	s.count--
	if s.count > 0 {
		s.signal()
	}
	return delta, true
}

// Dropped reports how many deltas this subscriber has lost to ring
// overflow.
func (s *Subscriber) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close deregisters the subscriber. Buffered deltas are discarded.
func (s *Subscriber) Close() {
	s.broadcaster.remove(s)
	s.shutdown()
}

func (s *Subscriber) shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ready)
	s.mu.Unlock()
}
