package meeting

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

// GoogleMeetAdapter books a calendar event with a Meet conference attached.
// The meeting id it reports is the calendar event id, so Cancel can delete it.
type GoogleMeetAdapter struct {
	svc        *calendar.Service
	calendarID string
}

func NewGoogleMeetAdapter(svc *calendar.Service, calendarID string) *GoogleMeetAdapter {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleMeetAdapter{svc: svc, calendarID: calendarID}
}

func (a *GoogleMeetAdapter) Provision(ctx context.Context, req Request) (Details, error) {
	ev := &calendar.Event{
		Summary: req.Topic,
		Start:   &calendar.EventDateTime{DateTime: req.StartsAt.Format("2006-01-02T15:04:05Z07:00")},
		End:     &calendar.EventDateTime{DateTime: req.StartsAt.Add(req.Duration).Format("2006-01-02T15:04:05Z07:00")},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				// Calendar silently skips conference creation for a request id it
				// has seen before, so every provisioning gets a fresh one.
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}
	if req.GuestEmail != "" {
		ev.Attendees = []*calendar.EventAttendee{{Email: req.GuestEmail}}
	}

	created, err := a.svc.Events.Insert(a.calendarID, ev).ConferenceDataVersion(1).Context(ctx).Do()
	if err != nil {
		return Details{}, fmt.Errorf("google calendar insert: %w", err)
	}

	link := created.HangoutLink
	if created.ConferenceData != nil {
		for _, ep := range created.ConferenceData.EntryPoints {
			if link == "" && ep.EntryPointType == "video" {
				link = ep.Uri
			}
		}
	}
	if link == "" {
		return Details{}, ErrNoMeetingLink
	}
	return Details{
		Platform:   GoogleMeet,
		URL:        link,
		MeetingID:  created.Id,
		HostEmail:  req.HostEmail,
		GuestEmail: req.GuestEmail,
	}, nil
}

func (a *GoogleMeetAdapter) Cancel(ctx context.Context, d Details) error {
	if d.MeetingID == "" {
		return nil
	}
	err := a.svc.Events.Delete(a.calendarID, d.MeetingID).SendUpdates("all").Context(ctx).Do()
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("google calendar delete: %w", err)
	}
	return nil
}
