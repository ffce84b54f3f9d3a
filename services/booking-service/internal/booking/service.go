// Package booking orchestrates the appointment lifecycle: the store write is
// authoritative, everything after it is best effort.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/meeting"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/metrics"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/model"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/notify"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/outbox"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/policy"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/reminders"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/storage"
)

var (
	ErrNotFound         = errors.New("appointment not found")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrNotReschedulable = errors.New("appointment is cancelled")
)

type AppointmentStore interface {
	Create(ctx context.Context, appt *model.Appointment) (string, error)
	GetForUser(ctx context.Context, userID, appointmentID string) (model.Appointment, error)
	Reschedule(ctx context.Context, userID, appointmentID, date, clock string) (time.Time, error)
	Cancel(ctx context.Context, userID, appointmentID, reason string) (time.Time, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Appointment, error)
}

type MeetingStore interface {
	Upsert(ctx context.Context, m model.Meeting) error
	GetByAppointment(ctx context.Context, appointmentID string) (model.Meeting, error)
	Cancel(ctx context.Context, appointmentID string) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, kind notify.Kind, appointmentID string, to notify.Recipient, facts notify.Facts) error
}

type ReminderScheduler interface {
	Schedule(ctx context.Context, appt model.Appointment, meetingURL string, to notify.Recipient, offsets []reminders.Offset) (reminders.Result, error)
	VoidPending(ctx context.Context, appointmentID string) (int64, error)
	Pending(ctx context.Context, appointmentID string) ([]model.Reminder, error)
}

type EventSink interface {
	Insert(ctx context.Context, evt outbox.Event) error
}

type Snapshots interface {
	Put(ctx context.Context, appt model.Appointment) error
	Resolve(ctx context.Context, remote model.Appointment) model.Appointment
}

// Policy holds the behaviour switches read from configuration.
type Policy struct {
	// RegenerateOnReschedule voids and recomputes reminders and replaces the
	// meeting link when an appointment moves.
	RegenerateOnReschedule bool
	// CascadeOnCancel cancels the meeting row and voids pending reminders.
	CascadeOnCancel bool
	StepTimeout     time.Duration
}

type Deps struct {
	Appointments AppointmentStore
	Meetings     MeetingStore
	Notifier     Notifier
	Reminders    ReminderScheduler
	Offsets      policy.Provider
	Meeting      meeting.Adapter
	// Events and Snapshots are optional.
	Events    EventSink
	Snapshots Snapshots
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Location  *time.Location
}

type Service struct {
	appointments AppointmentStore
	meetings     MeetingStore
	notifier     Notifier
	reminders    ReminderScheduler
	offsets      policy.Provider
	meeting      meeting.Adapter
	events       EventSink
	snapshots    Snapshots
	logger       *slog.Logger
	metrics      *metrics.Metrics
	loc          *time.Location
	policy       Policy
	validate     *validator.Validate
}

func NewService(d Deps, p Policy) *Service {
	if p.StepTimeout <= 0 {
		p.StepTimeout = 10 * time.Second
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Meeting == nil {
		d.Meeting = meeting.NewMockAdapter()
	}
	if d.Offsets == nil {
		d.Offsets = policy.NewStaticProvider(nil)
	}
	return &Service{
		appointments: d.Appointments,
		meetings:     d.Meetings,
		notifier:     d.Notifier,
		reminders:    d.Reminders,
		offsets:      d.Offsets,
		meeting:      d.Meeting,
		events:       d.Events,
		snapshots:    d.Snapshots,
		logger:       d.Logger,
		metrics:      d.Metrics,
		loc:          d.Location,
		policy:       p,
		validate:     validator.New(),
	}
}

type MeetingConfig struct {
	Platform  string `json:"platform"`
	HostEmail string `json:"host_email" validate:"omitempty,email"`
}

type CreateRequest struct {
	UserID           string `validate:"required"`
	PractitionerID   string `validate:"required"`
	PractitionerName string `validate:"required"`
	Date             string `validate:"required,datetime=2006-01-02"`
	Time             string `validate:"required"`
	SessionType      string `validate:"required"`
	UserEmail        string `validate:"required,email"`
	UserName         string
	Notes            string `validate:"max=2000"`
	DurationMinutes  int    `validate:"omitempty,min=15,max=240"`
	Meeting          *MeetingConfig
}

type CreateResult struct {
	AppointmentID string
	Meeting       *meeting.Details
}

type CancelResult struct {
	AppointmentID    string
	CancelledAt      time.Time
	AlreadyCancelled bool
}

// View is an appointment with its meeting, when one exists.
type View struct {
	model.Appointment
	Meeting   *model.Meeting
	Reminders []model.Reminder
}

// CreateBooking inserts a confirmed appointment and then, best effort,
// provisions a meeting, sends the confirmation, schedules reminders and
// publishes the booked event. Only the insert can fail the call.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (CreateResult, error) {
	req = normalizeCreate(req)
	if err := s.validate.Struct(req); err != nil {
		s.metrics.Operation("create", "invalid")
		return CreateResult{}, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}
	start, err := model.ParseSlot(req.Date, req.Time, s.loc)
	if err != nil {
		s.metrics.Operation("create", "invalid")
		return CreateResult{}, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}

	appt := model.Appointment{
		UserID:           req.UserID,
		UserEmail:        req.UserEmail,
		UserName:         req.UserName,
		PractitionerID:   req.PractitionerID,
		PractitionerName: req.PractitionerName,
		Date:             req.Date,
		Time:             req.Time,
		DurationMinutes:  req.DurationMinutes,
		SessionType:      req.SessionType,
		Status:           model.StatusConfirmed,
		Notes:            req.Notes,
	}
	if _, err := s.appointments.Create(ctx, &appt); err != nil {
		s.metrics.Operation("create", "error")
		return CreateResult{}, fmt.Errorf("create appointment: %w", err)
	}
	log := s.logger.With("appointment_id", appt.ID, "user_id", appt.UserID)

	res := CreateResult{AppointmentID: appt.ID}
	var meetingURL string
	if req.Meeting != nil {
		host := req.Meeting.HostEmail
		if d, ok := s.provisionMeeting(ctx, appt, start, meeting.ParsePlatform(req.Meeting.Platform), host); ok {
			res.Meeting = &d
			meetingURL = d.URL
		}
	}

	to := recipient(appt)
	_ = s.step(ctx, "notify_confirmation", appt.ID, func(ctx context.Context) error {
		return s.notifier.Notify(ctx, notify.KindConfirmation, appt.ID, to, s.facts(appt, meetingURL))
	})
	s.scheduleReminders(ctx, appt, meetingURL)
	s.publish(ctx, outbox.EventAppointmentBooked, appt, meetingURL, "")
	s.putSnapshot(ctx, appt)

	s.metrics.Operation("create", "success")
	log.Info("appointment booked", "practitioner_id", appt.PractitionerID, "date", appt.Date, "time", appt.Time, "meeting", meetingURL != "")
	return res, nil
}

// RescheduleAppointment moves an owned, non-cancelled appointment. Only the
// store update can fail the call.
func (s *Service) RescheduleAppointment(ctx context.Context, appointmentID, userID, newDate, newTime string) error {
	appointmentID, userID = strings.TrimSpace(appointmentID), strings.TrimSpace(userID)
	newDate, newTime = strings.TrimSpace(newDate), strings.TrimSpace(newTime)
	if appointmentID == "" || userID == "" {
		s.metrics.Operation("reschedule", "invalid")
		return fmt.Errorf("%w: appointment_id and user_id are required", ErrInvalidRequest)
	}
	start, err := model.ParseSlot(newDate, newTime, s.loc)
	if err != nil {
		s.metrics.Operation("reschedule", "invalid")
		return fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}

	appt, err := s.appointments.GetForUser(ctx, userID, appointmentID)
	if err != nil {
		s.metrics.Operation("reschedule", "error")
		if storage.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("load appointment: %w", err)
	}
	if appt.Cancelled() {
		s.metrics.Operation("reschedule", "rejected")
		return ErrNotReschedulable
	}

	updatedAt, err := s.appointments.Reschedule(ctx, userID, appointmentID, newDate, newTime)
	if err != nil {
		s.metrics.Operation("reschedule", "error")
		if storage.IsNotFound(err) {
			// cancelled between the read and the update
			return ErrNotReschedulable
		}
		return fmt.Errorf("reschedule appointment: %w", err)
	}

	prev := appt
	appt.Date, appt.Time = newDate, newTime
	appt.Status = model.StatusRescheduled
	appt.UpdatedAt = updatedAt

	meetingURL := s.activeMeetingURL(ctx, appt.ID)
	if s.policy.RegenerateOnReschedule && meetingURL != "" {
		if old, err := s.meetings.GetByAppointment(ctx, appt.ID); err == nil {
			if d, ok := s.provisionMeeting(ctx, appt, start, meeting.ParsePlatform(old.Platform), old.HostEmail); ok {
				meetingURL = d.URL
				if old.MeetingID != d.MeetingID {
					s.cancelProviderMeeting(ctx, "meeting_cancel_previous", old)
				}
			}
		}
	}

	facts := s.facts(appt, meetingURL)
	facts.PreviousDate, facts.PreviousTime = prev.Date, prev.Time
	_ = s.step(ctx, "notify_rescheduling", appt.ID, func(ctx context.Context) error {
		return s.notifier.Notify(ctx, notify.KindRescheduling, appt.ID, recipient(appt), facts)
	})

	if s.policy.RegenerateOnReschedule {
		_ = s.step(ctx, "reminders_void", appt.ID, func(ctx context.Context) error {
			_, err := s.reminders.VoidPending(ctx, appt.ID)
			return err
		})
		s.scheduleReminders(ctx, appt, meetingURL)
	}

	s.publish(ctx, outbox.EventAppointmentRescheduled, appt, meetingURL, "")
	s.putSnapshot(ctx, appt)

	s.metrics.Operation("reschedule", "success")
	s.logger.Info("appointment rescheduled", "appointment_id", appt.ID, "user_id", userID,
		"from", prev.Date+" "+prev.Time, "to", appt.Date+" "+appt.Time, "regenerated", s.policy.RegenerateOnReschedule)
	return nil
}

// CancelAppointment cancels an owned appointment. Cancelling twice returns
// the original cancellation.
func (s *Service) CancelAppointment(ctx context.Context, appointmentID, userID, reason string) (CancelResult, error) {
	appointmentID, userID = strings.TrimSpace(appointmentID), strings.TrimSpace(userID)
	reason = strings.TrimSpace(reason)
	if appointmentID == "" || userID == "" {
		s.metrics.Operation("cancel", "invalid")
		return CancelResult{}, fmt.Errorf("%w: appointment_id and user_id are required", ErrInvalidRequest)
	}

	appt, err := s.appointments.GetForUser(ctx, userID, appointmentID)
	if err != nil {
		s.metrics.Operation("cancel", "error")
		if storage.IsNotFound(err) {
			return CancelResult{}, ErrNotFound
		}
		return CancelResult{}, fmt.Errorf("load appointment: %w", err)
	}
	if appt.Cancelled() {
		s.metrics.Operation("cancel", "already_cancelled")
		return existingCancellation(appt), nil
	}

	cancelledAt, err := s.appointments.Cancel(ctx, userID, appointmentID, reason)
	if err != nil {
		if storage.IsNotFound(err) {
			// lost a race with another cancel
			if current, getErr := s.appointments.GetForUser(ctx, userID, appointmentID); getErr == nil && current.Cancelled() {
				s.metrics.Operation("cancel", "already_cancelled")
				return existingCancellation(current), nil
			}
		}
		s.metrics.Operation("cancel", "error")
		return CancelResult{}, fmt.Errorf("cancel appointment: %w", err)
	}

	appt.Status = model.StatusCancelled
	appt.CancelReason = reason
	appt.CancelledAt = &cancelledAt
	appt.UpdatedAt = cancelledAt

	facts := s.facts(appt, "")
	facts.Reason = reason
	_ = s.step(ctx, "notify_cancellation", appt.ID, func(ctx context.Context) error {
		return s.notifier.Notify(ctx, notify.KindCancellation, appt.ID, recipient(appt), facts)
	})

	if s.policy.CascadeOnCancel {
		if m, err := s.meetings.GetByAppointment(ctx, appt.ID); err == nil && m.Status != model.MeetingCancelled {
			s.cancelProviderMeeting(ctx, "meeting_cancel_provider", m)
		}
		_ = s.step(ctx, "meeting_cancel", appt.ID, func(ctx context.Context) error {
			_, err := s.meetings.Cancel(ctx, appt.ID)
			return err
		})
		_ = s.step(ctx, "reminders_void", appt.ID, func(ctx context.Context) error {
			_, err := s.reminders.VoidPending(ctx, appt.ID)
			return err
		})
	}

	s.publish(ctx, outbox.EventAppointmentCancelled, appt, "", reason)
	s.putSnapshot(ctx, appt)

	s.metrics.Operation("cancel", "success")
	s.logger.Info("appointment cancelled", "appointment_id", appt.ID, "user_id", userID, "cascade", s.policy.CascadeOnCancel)
	return CancelResult{AppointmentID: appt.ID, CancelledAt: cancelledAt}, nil
}

func (s *Service) ListAppointments(ctx context.Context, userID string, limit int) ([]model.Appointment, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	appts, err := s.appointments.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// GetAppointment returns an owned appointment, reconciled against its cached
// snapshot when a cache is configured.
func (s *Service) GetAppointment(ctx context.Context, userID, appointmentID string) (View, error) {
	appt, err := s.appointments.GetForUser(ctx, userID, appointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			return View{}, ErrNotFound
		}
		return View{}, fmt.Errorf("load appointment: %w", err)
	}
	if s.snapshots != nil {
		appt = s.snapshots.Resolve(ctx, appt)
	}

	v := View{Appointment: appt}
	if m, err := s.meetings.GetByAppointment(ctx, appt.ID); err == nil {
		v.Meeting = &m
	} else if !storage.IsNotFound(err) {
		s.logger.Warn("meeting lookup failed", "appointment_id", appt.ID, "err", err)
	}
	if appt.Status != model.StatusCancelled {
		rems, err := s.reminders.Pending(ctx, appt.ID)
		if err != nil {
			s.logger.Warn("reminder lookup failed", "appointment_id", appt.ID, "err", err)
		}
		v.Reminders = rems
	}
	return v, nil
}

// provisionMeeting creates and stores the meeting. Adapter errors and panics
// are contained; ok is false when no link was obtained.
func (s *Service) provisionMeeting(ctx context.Context, appt model.Appointment, start time.Time, platform meeting.Platform, hostEmail string) (d meeting.Details, ok bool) {
	err := s.step(ctx, "meeting_provision", appt.ID, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("meeting adapter panic: %v", r)
			}
		}()
		d, err = s.meeting.Provision(ctx, meeting.Request{
			AppointmentID: appt.ID,
			Platform:      platform,
			HostEmail:     hostEmail,
			GuestEmail:    appt.UserEmail,
			Topic:         fmt.Sprintf("%s with %s", appt.SessionType, appt.PractitionerName),
			StartsAt:      start,
			Duration:      appt.Duration(),
		})
		if err == nil && d.URL == "" {
			err = meeting.ErrNoMeetingLink
		}
		return err
	})
	if err != nil {
		return meeting.Details{}, false
	}

	_ = s.step(ctx, "meeting_persist", appt.ID, func(ctx context.Context) error {
		return s.meetings.Upsert(ctx, model.Meeting{
			AppointmentID: appt.ID,
			Platform:      string(d.Platform),
			URL:           d.URL,
			MeetingID:     d.MeetingID,
			Password:      d.Password,
			HostEmail:     d.HostEmail,
			GuestEmail:    d.GuestEmail,
		})
	})
	return d, true
}

// cancelProviderMeeting removes m from its provider so no orphan stays booked
// at a slot the appointment no longer holds.
func (s *Service) cancelProviderMeeting(ctx context.Context, step string, m model.Meeting) {
	_ = s.step(ctx, step, m.AppointmentID, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("meeting adapter panic: %v", r)
			}
		}()
		return s.meeting.Cancel(ctx, meeting.Details{
			Platform:  meeting.ParsePlatform(m.Platform),
			URL:       m.URL,
			MeetingID: m.MeetingID,
			HostEmail: m.HostEmail,
		})
	})
}

func (s *Service) activeMeetingURL(ctx context.Context, appointmentID string) string {
	var url string
	_ = s.step(ctx, "meeting_lookup", appointmentID, func(ctx context.Context) error {
		m, err := s.meetings.GetByAppointment(ctx, appointmentID)
		if storage.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if m.Status != model.MeetingCancelled {
			url = m.URL
		}
		return nil
	})
	return url
}

func (s *Service) scheduleReminders(ctx context.Context, appt model.Appointment, meetingURL string) {
	offsets := reminders.DefaultOffsets
	_ = s.step(ctx, "reminder_policy", appt.ID, func(ctx context.Context) error {
		o, err := s.offsets.ReminderOffsets(ctx, appt.PractitionerID)
		if err != nil {
			return err
		}
		if len(o) > 0 {
			offsets = o
		}
		return nil
	})
	_ = s.step(ctx, "reminders_schedule", appt.ID, func(ctx context.Context) error {
		_, err := s.reminders.Schedule(ctx, appt, meetingURL, recipient(appt), offsets)
		return err
	})
}

func (s *Service) publish(ctx context.Context, eventType string, appt model.Appointment, meetingURL, reason string) {
	if s.events == nil {
		return
	}
	_ = s.step(ctx, "outbox", appt.ID, func(ctx context.Context) error {
		payload, err := json.Marshal(outbox.AppointmentPayload{
			AppointmentID:  appt.ID,
			UserID:         appt.UserID,
			PractitionerID: appt.PractitionerID,
			Date:           appt.Date,
			Time:           appt.Time,
			SessionType:    appt.SessionType,
			Status:         appt.Status,
			MeetingURL:     meetingURL,
			Reason:         reason,
			OccurredAt:     time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		return s.events.Insert(ctx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   appt.ID,
			EventType:     eventType,
			Payload:       payload,
		})
	})
}

func (s *Service) putSnapshot(ctx context.Context, appt model.Appointment) {
	if s.snapshots == nil {
		return
	}
	_ = s.step(ctx, "snapshot", appt.ID, func(ctx context.Context) error {
		return s.snapshots.Put(ctx, appt)
	})
}

// step runs one best effort call under the step timeout. Failures are
// logged and counted; callers decide whether to look at the error.
func (s *Service) step(ctx context.Context, name, appointmentID string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.policy.StepTimeout)
	defer cancel()

	started := time.Now()
	err := fn(ctx)
	s.metrics.ObserveStep(name, started)
	if err != nil {
		s.metrics.StepFailed(name)
		s.logger.Warn("best effort step failed", "step", name, "appointment_id", appointmentID, "err", err)
	}
	return err
}

func (s *Service) facts(appt model.Appointment, meetingURL string) notify.Facts {
	return notify.Facts{
		RecipientName:    appt.UserName,
		PractitionerName: appt.PractitionerName,
		Date:             appt.Date,
		Time:             appt.Time,
		SessionType:      appt.SessionType,
		MeetingURL:       meetingURL,
	}
}

func recipient(appt model.Appointment) notify.Recipient {
	return notify.Recipient{Email: appt.UserEmail, Name: appt.UserName}
}

func existingCancellation(appt model.Appointment) CancelResult {
	at := appt.UpdatedAt
	if appt.CancelledAt != nil {
		at = *appt.CancelledAt
	}
	return CancelResult{AppointmentID: appt.ID, CancelledAt: at, AlreadyCancelled: true}
}

func normalizeCreate(req CreateRequest) CreateRequest {
	req.UserID = strings.TrimSpace(req.UserID)
	req.PractitionerID = strings.TrimSpace(req.PractitionerID)
	req.PractitionerName = strings.TrimSpace(req.PractitionerName)
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	req.SessionType = strings.TrimSpace(req.SessionType)
	req.UserEmail = strings.ToLower(strings.TrimSpace(req.UserEmail))
	req.UserName = strings.TrimSpace(req.UserName)
	req.Notes = strings.TrimSpace(req.Notes)
	if req.Meeting != nil {
		m := *req.Meeting
		m.Platform = strings.TrimSpace(m.Platform)
		m.HostEmail = strings.TrimSpace(m.HostEmail)
		req.Meeting = &m
	}
	return req
}
