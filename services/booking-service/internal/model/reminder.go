package model

import "time"

// Reminder is a pending reminder email. The payload fields are a snapshot
// taken when the reminder was scheduled.
type Reminder struct {
	ID               int64
	AppointmentID    string
	RecipientEmail   string
	RecipientName    string
	PractitionerName string
	AppointmentDate  string
	AppointmentTime  string
	RemindAt         time.Time
	SessionType      string
	MeetingURL       string
	Sent             bool
	Voided           bool
	Attempts         int
	MaxAttempts      int
	LastError        string
	NextAttemptAt    time.Time
}
