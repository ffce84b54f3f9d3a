package storage

import (
	"context"

	"github.com/kshitijlohbare/wellbook/libs/db"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/model"
)

type NotificationRepository struct {
	q db.Querier
}

func NewNotificationRepository(q db.Querier) *NotificationRepository {
	return &NotificationRepository{q: q}
}

func (r *NotificationRepository) Insert(ctx context.Context, rec model.NotificationRecord) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO email_notifications
			(appointment_id, recipient_email, notification_type, subject, status, error_message, provider)
		VALUES (NULLIF($1, '')::uuid, $2, $3, $4, $5, NULLIF($6, ''), $7)
	`, rec.AppointmentID, rec.RecipientEmail, rec.Type, rec.Subject, rec.Status, rec.ErrorMessage, rec.Provider)
	return err
}

func (r *NotificationRepository) ListByAppointment(ctx context.Context, appointmentID string) ([]model.NotificationRecord, error) {
	rows, err := r.q.Query(ctx, `
		SELECT COALESCE(appointment_id::text, ''), recipient_email, notification_type, subject, status,
			COALESCE(error_message, ''), provider, created_at
		FROM email_notifications
		WHERE appointment_id = $1
		ORDER BY created_at ASC
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.NotificationRecord
	for rows.Next() {
		var rec model.NotificationRecord
		if err := rows.Scan(&rec.AppointmentID, &rec.RecipientEmail, &rec.Type, &rec.Subject, &rec.Status,
			&rec.ErrorMessage, &rec.Provider, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
