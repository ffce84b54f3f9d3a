package outbox

import "time"

const (
	EventAppointmentBooked      = "booking.appointment.booked.v1"
	EventAppointmentRescheduled = "booking.appointment.rescheduled.v1"
	EventAppointmentCancelled   = "booking.appointment.cancelled.v1"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// AppointmentPayload is the JSON body of every appointment event.
type AppointmentPayload struct {
	AppointmentID  string    `json:"appointment_id"`
	UserID         string    `json:"user_id"`
	PractitionerID string    `json:"practitioner_id"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	SessionType    string    `json:"session_type"`
	Status         string    `json:"status"`
	MeetingURL     string    `json:"meeting_url,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}
