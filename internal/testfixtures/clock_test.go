package testfixtures

import (
	"testing"
	"time"
)

func TestClockDefaultsToReferenceTime(t *testing.T) {
	clock := NewClock(time.Time{})
	if !clock.Now().Equal(ReferenceTime()) {
		t.Fatalf("expected ReferenceTime, got %v", clock.Now())
	}
}

func TestClockAdvance(t *testing.T) {
	start := time.Date(2024, time.March, 14, 9, 26, 0, 0, time.UTC)
	clock := NewClock(start)

	updated := clock.Advance(90 * time.Minute)
	if !updated.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("advance returned %v", updated)
	}
	if clock.Stamps() != 0 {
		t.Fatalf("expected Advance not to stamp, got %d", clock.Stamps())
	}
}

func TestClockCountsStamps(t *testing.T) {
	clock := NewClock(ReferenceTime())
	nowFn := clock.NowFunc()

	first := nowFn()
	clock.Advance(time.Minute)
	second := nowFn()

	if !second.Equal(first.Add(time.Minute)) {
		t.Fatalf("expected %v, got %v", first.Add(time.Minute), second)
	}
	if clock.Stamps() != 2 {
		t.Fatalf("expected 2 stamps, got %d", clock.Stamps())
	}

	var nilClock *Clock
	if nilClock.NowFunc() == nil {
		t.Fatal("expected a fallback time source for a nil clock")
	}
}
