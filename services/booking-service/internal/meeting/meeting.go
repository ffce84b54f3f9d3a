// Package meeting provisions video meeting links for appointments.
package meeting

import (
	"context"
	"errors"
	"strings"
	"time"
)

type Platform string

const (
	Zoom           Platform = "zoom"
	GoogleMeet     Platform = "google-meet"
	MicrosoftTeams Platform = "microsoft-teams"
	Generic        Platform = "generic"
)

// ParsePlatform maps a client supplied platform name onto the closed set,
// falling back to Generic.
func ParsePlatform(raw string) Platform {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "zoom":
		return Zoom
	case "google-meet", "google_meet", "googlemeet", "meet":
		return GoogleMeet
	case "microsoft-teams", "teams", "msteams":
		return MicrosoftTeams
	default:
		return Generic
	}
}

type Request struct {
	AppointmentID string
	Platform      Platform
	HostEmail     string
	GuestEmail    string
	Topic         string
	StartsAt      time.Time
	Duration      time.Duration
}

type Details struct {
	Platform   Platform `json:"platform"`
	URL        string   `json:"meeting_url"`
	MeetingID  string   `json:"meeting_id,omitempty"`
	Password   string   `json:"meeting_password,omitempty"`
	HostEmail  string   `json:"host_email,omitempty"`
	GuestEmail string   `json:"guest_email,omitempty"`
}

// Adapter creates and removes meetings on one provider. It has no side
// effects beyond the provider call; persisting the result is up to the caller.
// Cancel of a meeting the provider no longer knows is not an error.
type Adapter interface {
	Provision(ctx context.Context, req Request) (Details, error)
	Cancel(ctx context.Context, d Details) error
}

var ErrNoMeetingLink = errors.New("provider returned no meeting link")
