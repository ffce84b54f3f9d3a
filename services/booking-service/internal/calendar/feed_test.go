package calendar

import (
	"bytes"
	"testing"
	"time"

	"github.com/emersion/go-ical"

	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/model"
)

func TestFeedEncodesAppointments(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	appts := []model.Appointment{
		{ID: "a1", PractitionerName: "Dr. Rivera", SessionType: "video", Date: "2025-06-01", Time: "10:00 AM", Status: model.StatusConfirmed},
		{ID: "a2", PractitionerName: "Dr. Chen", SessionType: "in-person", Date: "2025-06-02", Time: "14:30", DurationMinutes: 30, Status: model.StatusCancelled},
		{ID: "a3", Date: "someday", Time: "noon"},
	}

	raw, err := Feed(appts, time.UTC, now)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}

	cal, err := ical.NewDecoder(bytes.NewReader(raw)).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	events := cal.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	uid, _ := events[0].Props.Text(ical.PropUID)
	if uid != "a1@wellbook" {
		t.Fatalf("unexpected uid %q", uid)
	}
	start, err := events[0].DateTimeStart(time.UTC)
	if err != nil || !start.Equal(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v (%v)", start, err)
	}
	end, err := events[1].DateTimeEnd(time.UTC)
	if err != nil || !end.Equal(time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %v (%v)", end, err)
	}
	if status, _ := events[1].Props.Text(ical.PropStatus); status != "CANCELLED" {
		t.Fatalf("expected cancelled status, got %q", status)
	}
}
