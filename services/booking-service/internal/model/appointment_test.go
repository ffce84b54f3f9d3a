package model

import (
	"testing"
	"time"
)

func TestParseSlot(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	cases := []struct {
		clock string
		hour  int
		min   int
	}{
		{"10:00 AM", 10, 0},
		{"3:30 pm", 15, 30},
		{"15:04", 15, 4},
		{"09:15:00", 9, 15},
	}
	for _, tc := range cases {
		got, err := ParseSlot("2025-06-01", tc.clock, loc)
		if err != nil {
			t.Fatalf("ParseSlot(%q): %v", tc.clock, err)
		}
		if got.Hour() != tc.hour || got.Minute() != tc.min || got.Location() != loc {
			t.Fatalf("ParseSlot(%q) = %v", tc.clock, got)
		}
	}
}

func TestParseSlotRejectsGarbage(t *testing.T) {
	if _, err := ParseSlot("06/01/2025", "10:00 AM", nil); err == nil {
		t.Fatal("expected error for non ISO date")
	}
	if _, err := ParseSlot("2025-06-01", "noon", nil); err == nil {
		t.Fatal("expected error for unparseable time")
	}
}

func TestDurationDefault(t *testing.T) {
	if got := (Appointment{}).Duration(); got != 50*time.Minute {
		t.Fatalf("expected default duration, got %s", got)
	}
	if got := (Appointment{DurationMinutes: 30}).Duration(); got != 30*time.Minute {
		t.Fatalf("expected 30m, got %s", got)
	}
}
