package notify

import (
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindReminder     Kind = "reminder"
	KindCancellation Kind = "cancellation"
	KindRescheduling Kind = "rescheduling"
)

func (k Kind) Valid() bool {
	switch k {
	case KindConfirmation, KindReminder, KindCancellation, KindRescheduling:
		return true
	}
	return false
}

// Facts is everything a message may mention about an appointment.
type Facts struct {
	RecipientName    string
	PractitionerName string
	Date             string
	Time             string
	SessionType      string
	MeetingURL       string
	Reason           string
	PreviousDate     string
	PreviousTime     string
}

type Message struct {
	Subject string
	Body    string
}

var checklist = []string{
	"Find a quiet, private space where you will not be interrupted",
	"Check your internet connection, camera and microphone",
	"Join a few minutes early",
	"Have water and anything you want to discuss written down",
}

// Compose renders the message for kind. It is pure: the same inputs always
// give the same output. An unknown kind panics.
func Compose(kind Kind, f Facts) Message {
	name := f.RecipientName
	if name == "" {
		name = "there"
	}
	session := f.SessionType
	if session == "" {
		session = "session"
	}
	when := fmt.Sprintf("%s at %s", FormatDate(f.Date), f.Time)

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", name)

	var subject string
	switch kind {
	case KindConfirmation:
		subject = fmt.Sprintf("Your %s with %s is confirmed", session, f.PractitionerName)
		fmt.Fprintf(&b, "Your %s with %s is confirmed for %s.\n", session, f.PractitionerName, when)
		writeDetails(&b, f, true)
		writeChecklist(&b)
	case KindReminder:
		subject = fmt.Sprintf("Reminder: %s with %s on %s", session, f.PractitionerName, when)
		fmt.Fprintf(&b, "This is a reminder of your upcoming %s with %s on %s.\n", session, f.PractitionerName, when)
		writeDetails(&b, f, true)
		writeChecklist(&b)
	case KindCancellation:
		subject = fmt.Sprintf("Your %s with %s has been cancelled", session, f.PractitionerName)
		fmt.Fprintf(&b, "Your %s with %s on %s has been cancelled.\n", session, f.PractitionerName, when)
		if f.Reason != "" {
			fmt.Fprintf(&b, "\nReason: %s\n", f.Reason)
		}
		writeDetails(&b, f, false)
		b.WriteString("\nYou can book a new session at any time.\n")
	case KindRescheduling:
		subject = fmt.Sprintf("New time: %s with %s on %s", session, f.PractitionerName, when)
		fmt.Fprintf(&b, "New date and time: %s.\n\nYour %s with %s has been rescheduled.\n", when, session, f.PractitionerName)
		if f.PreviousDate != "" {
			fmt.Fprintf(&b, "It was previously scheduled for %s at %s.\n", FormatDate(f.PreviousDate), f.PreviousTime)
		}
		writeDetails(&b, f, true)
	default:
		panic(fmt.Sprintf("notify: unknown notification kind %q", kind))
	}

	b.WriteString("\nTake care,\nThe Wellbook team\n")
	return Message{Subject: subject, Body: b.String()}
}

func writeDetails(b *strings.Builder, f Facts, withLink bool) {
	b.WriteString("\nSession details:\n")
	fmt.Fprintf(b, "  Practitioner: %s\n", f.PractitionerName)
	fmt.Fprintf(b, "  Date: %s\n", FormatDate(f.Date))
	fmt.Fprintf(b, "  Time: %s\n", f.Time)
	fmt.Fprintf(b, "  Session type: %s\n", f.SessionType)
	if withLink && f.MeetingURL != "" {
		fmt.Fprintf(b, "  Join link: %s\n", f.MeetingURL)
	}
}

func writeChecklist(b *strings.Builder) {
	b.WriteString("\nBefore your session:\n")
	for _, item := range checklist {
		fmt.Fprintf(b, "  - %s\n", item)
	}
}

// FormatDate renders YYYY-MM-DD as "Monday, January 2, 2006". Other input is
// returned unchanged.
func FormatDate(date string) string {
	d, err := time.Parse(time.DateOnly, strings.TrimSpace(date))
	if err != nil {
		return date
	}
	return d.Format("Monday, January 2, 2006")
}
