package notify

import (
	"strings"
	"testing"
)

var sampleFacts = Facts{
	RecipientName:    "Alice",
	PractitionerName: "Dr. X",
	Date:             "2025-06-01",
	Time:             "10:00 AM",
	SessionType:      "therapy",
	MeetingURL:       "https://zoom.us/j/123",
}

func TestComposeIsPure(t *testing.T) {
	for _, kind := range []Kind{KindConfirmation, KindReminder, KindCancellation, KindRescheduling} {
		a := Compose(kind, sampleFacts)
		b := Compose(kind, sampleFacts)
		if a != b {
			t.Fatalf("%s: expected identical output", kind)
		}
		if a.Subject == "" || a.Body == "" {
			t.Fatalf("%s: empty message", kind)
		}
	}
}

func TestComposeContent(t *testing.T) {
	confirm := Compose(KindConfirmation, sampleFacts)
	for _, want := range []string{"Alice", "Dr. X", "Sunday, June 1, 2025", "10:00 AM", "therapy", "https://zoom.us/j/123", "Before your session"} {
		if !strings.Contains(confirm.Body, want) {
			t.Fatalf("confirmation body missing %q:\n%s", want, confirm.Body)
		}
	}

	reminder := Compose(KindReminder, sampleFacts)
	if !strings.Contains(reminder.Body, "Before your session") || !strings.Contains(reminder.Body, sampleFacts.MeetingURL) {
		t.Fatalf("reminder should carry checklist and link:\n%s", reminder.Body)
	}

	cancelled := sampleFacts
	cancelled.Reason = "schedule conflict"
	cancel := Compose(KindCancellation, cancelled)
	if strings.Contains(cancel.Body, sampleFacts.MeetingURL) {
		t.Fatalf("cancellation must not include the meeting link:\n%s", cancel.Body)
	}
	if !strings.Contains(cancel.Body, "schedule conflict") {
		t.Fatalf("cancellation should include the reason:\n%s", cancel.Body)
	}

	moved := sampleFacts
	moved.Date = "2025-06-03"
	moved.Time = "2:00 PM"
	moved.PreviousDate = "2025-06-01"
	moved.PreviousTime = "10:00 AM"
	resched := Compose(KindRescheduling, moved)
	if !strings.HasPrefix(strings.SplitN(resched.Body, "\n\n", 2)[1], "New date and time: Tuesday, June 3, 2025 at 2:00 PM") {
		t.Fatalf("rescheduling should lead with the new slot:\n%s", resched.Body)
	}
	if !strings.Contains(resched.Subject, "Tuesday, June 3, 2025") {
		t.Fatalf("rescheduling subject should carry the new date, got %q", resched.Subject)
	}
	if !strings.Contains(resched.Body, "previously scheduled for Sunday, June 1, 2025") {
		t.Fatalf("rescheduling should mention the old slot:\n%s", resched.Body)
	}
}

func TestComposeUnknownKindPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown kind")
		}
	}()
	Compose(Kind("sms"), sampleFacts)
}

func TestFormatDateLeavesUnknownInput(t *testing.T) {
	if got := FormatDate("next tuesday"); got != "next tuesday" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}
