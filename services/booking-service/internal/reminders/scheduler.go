package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/metrics"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/model"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/notify"
)

type Store interface {
	Insert(ctx context.Context, rem model.Reminder) (bool, error)
	VoidPending(ctx context.Context, appointmentID string) (int64, error)
	ListPending(ctx context.Context, appointmentID string) ([]model.Reminder, error)
}

// Result counts what Schedule did with each offset.
type Result struct {
	Scheduled  int
	Skipped    int
	Duplicates int
}

// Scheduler turns an appointment and a set of offsets into pending reminder
// rows. Delivery is the Worker's job.
type Scheduler struct {
	store   Store
	loc     *time.Location
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type SchedulerOption func(*Scheduler)

func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

func NewScheduler(store Store, loc *time.Location, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{store: store, loc: loc, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule persists one reminder per offset whose fire time is strictly after
// now. Past fire times are skipped, never stored.
func (s *Scheduler) Schedule(ctx context.Context, appt model.Appointment, meetingURL string, to notify.Recipient, offsets []Offset) (Result, error) {
	var res Result
	start, err := appt.Start(s.loc)
	if err != nil {
		return res, fmt.Errorf("schedule reminders: %w", err)
	}
	now := s.now()

	var errs []error
	for _, o := range offsets {
		remindAt := start.Add(-o.Duration())
		if !remindAt.After(now) {
			res.Skipped++
			continue
		}
		inserted, err := s.store.Insert(ctx, model.Reminder{
			AppointmentID:    appt.ID,
			RecipientEmail:   to.Email,
			RecipientName:    to.Name,
			PractitionerName: appt.PractitionerName,
			AppointmentDate:  appt.Date,
			AppointmentTime:  appt.Time,
			RemindAt:         remindAt.UTC(),
			SessionType:      appt.SessionType,
			MeetingURL:       meetingURL,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("offset %s: %w", o, err))
			continue
		}
		if inserted {
			res.Scheduled++
		} else {
			res.Duplicates++
		}
	}

	s.metrics.Reminders("scheduled", res.Scheduled)
	s.metrics.Reminders("skipped", res.Skipped)
	if res.Skipped > 0 {
		s.logger.Info("reminders skipped, fire time already past", "appointment_id", appt.ID, "skipped", res.Skipped)
	}
	return res, errors.Join(errs...)
}

// VoidPending voids the unsent reminders of an appointment.
func (s *Scheduler) VoidPending(ctx context.Context, appointmentID string) (int64, error) {
	n, err := s.store.VoidPending(ctx, appointmentID)
	if err != nil {
		return 0, err
	}
	s.metrics.Reminders("voided", int(n))
	return n, nil
}

// Pending lists the unsent, unvoided reminders of an appointment in fire order.
func (s *Scheduler) Pending(ctx context.Context, appointmentID string) ([]model.Reminder, error) {
	rems, err := s.store.ListPending(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list pending reminders: %w", err)
	}
	return rems, nil
}
