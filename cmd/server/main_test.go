package main

import (
	"testing"
	"time"
)

func TestUntilNextHour(t *testing.T) {
	now := time.Date(2025, 3, 10, 7, 30, 0, 0, time.UTC)

	if got := untilNextHour(now, 9); got != 90*time.Minute {
		t.Fatalf("untilNextHour(07:30, 9) = %v, want 1h30m", got)
	}
	// Hour already passed: next occurrence is tomorrow.
	if got := untilNextHour(now, 7); got != 23*time.Hour+30*time.Minute {
		t.Fatalf("untilNextHour(07:30, 7) = %v, want 23h30m", got)
	}
	// Exactly at the hour rolls over to tomorrow, never zero.
	atNine := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	if got := untilNextHour(atNine, 9); got != 24*time.Hour {
		t.Fatalf("untilNextHour(09:00, 9) = %v, want 24h", got)
	}
}
