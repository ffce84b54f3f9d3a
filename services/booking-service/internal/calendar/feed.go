// Package calendar renders a user's appointments as an iCalendar feed.
package calendar

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-ical"

	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/model"
)

const productID = "-//Wellbook//Booking Service//EN"

// Feed encodes appts as VEVENTs. Appointments whose slot cannot be parsed
// are left out.
func Feed(appts []model.Appointment, loc *time.Location, now time.Time) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropCalendarScale, "GREGORIAN")
	cal.Props.SetText(ical.PropMethod, "PUBLISH")

	for _, appt := range appts {
		start, err := appt.Start(loc)
		if err != nil {
			continue
		}
		cal.Children = append(cal.Children, event(appt, start, now).Component)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

func event(appt model.Appointment, start, now time.Time) *ical.Event {
	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, appt.ID+"@wellbook")
	ev.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(appt.Duration()).UTC())
	ev.Props.SetText(ical.PropSummary, fmt.Sprintf("%s with %s", appt.SessionType, appt.PractitionerName))
	if appt.Notes != "" {
		ev.Props.SetText(ical.PropDescription, appt.Notes)
	}
	if !appt.UpdatedAt.IsZero() {
		ev.Props.SetDateTime(ical.PropLastModified, appt.UpdatedAt.UTC())
	}

	status := "CONFIRMED"
	if appt.Cancelled() {
		status = "CANCELLED"
	}
	ev.Props.SetText(ical.PropStatus, status)
	return ev
}
