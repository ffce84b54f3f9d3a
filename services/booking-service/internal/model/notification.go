package model

import "time"

const (
	NotificationSent    = "sent"
	NotificationError   = "error"
	NotificationPending = "pending"
)

// NotificationRecord is one row of the append-only email log.
type NotificationRecord struct {
	AppointmentID  string
	RecipientEmail string
	Type           string
	Subject        string
	Status         string
	ErrorMessage   string
	Provider       string
	CreatedAt      time.Time
}
