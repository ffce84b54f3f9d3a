package model

import "time"

const (
	MeetingActive    = "active"
	MeetingCancelled = "cancelled"
)

// Meeting is the persisted video link of an appointment.
type Meeting struct {
	AppointmentID string
	Platform      string
	URL           string
	MeetingID     string
	Password      string
	HostEmail     string
	GuestEmail    string
	Status        string
	CreatedAt     time.Time
}
