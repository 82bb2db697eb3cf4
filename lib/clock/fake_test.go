// Copyright 2026 The DevPulse Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeNowStandsStill(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Fake(start)

	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(90 * time.Second)
	want := start.Add(90 * time.Second)
	if !c.Now().Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", c.Now(), want)
	}
}

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	c := Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	ch := c.After(10 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	c.Advance(9 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	c := Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should receive immediately")
	}
}

func TestFakeTickerReschedules(t *testing.T) {
	c := Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	ticker := c.NewTicker(30 * time.Second)
	defer ticker.Stop()

	c.Advance(30 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("first tick missing")
	}

	c.Advance(30 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("second tick missing")
	}
}

func TestFakeTickerStop(t *testing.T) {
	c := Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	ticker := c.NewTicker(time.Second)
	ticker.Stop()

	c.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}

	if c.PendingCount() != 0 {
		t.Fatalf("PendingCount = %d after Stop, want 0", c.PendingCount())
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	c := Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	registered := make(chan struct{})
	go func() {
		ch := c.After(time.Minute)
		close(registered)
		<-ch
	}()

	c.WaitForTimers(1)
	<-registered
	c.Advance(time.Minute)
}
