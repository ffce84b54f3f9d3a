package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	StatusConfirmed   = "confirmed"
	StatusRescheduled = "rescheduled"
	StatusCancelled   = "cancelled"
)

const DefaultDurationMinutes = 50

// Appointment is a booked session. Date and Time are kept as the client sent
// them; Start resolves them to an instant.
type Appointment struct {
	ID               string
	UserID           string
	UserEmail        string
	UserName         string
	PractitionerID   string
	PractitionerName string
	Date             string
	Time             string
	DurationMinutes  int
	SessionType      string
	Status           string
	Notes            string
	CancelReason     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CancelledAt      *time.Time
}

func (a Appointment) Cancelled() bool {
	return a.Status == StatusCancelled
}

func (a Appointment) Start(loc *time.Location) (time.Time, error) {
	return ParseSlot(a.Date, a.Time, loc)
}

func (a Appointment) Duration() time.Duration {
	if a.DurationMinutes <= 0 {
		return DefaultDurationMinutes * time.Minute
	}
	return time.Duration(a.DurationMinutes) * time.Minute
}

var clockLayouts = []string{"3:04 PM", "3:04PM", "03:04 PM", "15:04", "15:04:05"}

// ParseSlot combines a YYYY-MM-DD date and a wall clock time in loc.
func ParseSlot(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", date)
	}
	clock = strings.ToUpper(strings.TrimSpace(clock))
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, clock)
		if err != nil {
			continue
		}
		return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q", clock)
}
