package notify

import (
	"context"
	"log/slog"

	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/metrics"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/model"
)

// Log stores one record per dispatch attempt.
type Log interface {
	Insert(ctx context.Context, rec model.NotificationRecord) error
}

type Recipient struct {
	Email string
	Name  string
}

type Dispatcher struct {
	provider Provider
	log      Log
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewDispatcher(provider Provider, log Log, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{provider: provider, log: log, logger: logger, metrics: m}
}

// Dispatch sends msg and writes exactly one log record for the attempt. The
// send error is returned; a failed log write is only logged.
func (d *Dispatcher) Dispatch(ctx context.Context, kind Kind, appointmentID string, to Recipient, msg Message) error {
	sendErr := d.provider.Send(ctx, Email{To: to.Email, ToName: to.Name, Subject: msg.Subject, Body: msg.Body})

	rec := model.NotificationRecord{
		AppointmentID:  appointmentID,
		RecipientEmail: to.Email,
		Type:           string(kind),
		Subject:        msg.Subject,
		Status:         model.NotificationSent,
		Provider:       d.provider.Name(),
	}
	if sendErr != nil {
		rec.Status = model.NotificationError
		rec.ErrorMessage = sendErr.Error()
		d.logger.Warn("email dispatch failed", "kind", kind, "appointment_id", appointmentID, "provider", rec.Provider, "err", sendErr)
	}
	d.metrics.Notification(string(kind), rec.Status)

	if d.log != nil {
		if err := d.log.Insert(context.WithoutCancel(ctx), rec); err != nil {
			d.logger.Error("notification log write failed", "kind", kind, "appointment_id", appointmentID, "err", err)
		}
	}
	return sendErr
}

// Notify composes the message for kind and dispatches it.
func (d *Dispatcher) Notify(ctx context.Context, kind Kind, appointmentID string, to Recipient, facts Facts) error {
	if facts.RecipientName == "" {
		facts.RecipientName = to.Name
	}
	return d.Dispatch(ctx, kind, appointmentID, to, Compose(kind, facts))
}
