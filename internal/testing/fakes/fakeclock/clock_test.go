package fakeclock

import (
	"testing"
	"time"
)

func TestClock_Now(t *testing.T) {
	initial := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := New(initial)

	if got := c.Now(); !got.Equal(initial) {
		t.Errorf("Now() = %v, want %v", got, initial)
	}
	if got := c.Now(); !got.Equal(initial) {
		t.Errorf("Now() moved on its own, got %v", got)
	}
}

func TestClock_Advance(t *testing.T) {
	initial := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := New(initial)

	c.Advance(5 * time.Minute)
	c.Advance(30 * time.Second)

	want := initial.Add(5*time.Minute + 30*time.Second)
	if got := c.Now(); !got.Equal(want) {
		t.Errorf("Now() after Advance = %v, want %v", got, want)
	}
}
