package storage

import (
	"context"
	"time"

	"github.com/kshitijlohbare/wellbook/libs/db"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/model"
)

type AppointmentRepository struct {
	q db.Querier
}

func NewAppointmentRepository(q db.Querier) *AppointmentRepository {
	return &AppointmentRepository{q: q}
}

const appointmentColumns = `id::text, user_id, user_email, user_name, practitioner_id, practitioner_name, date::text, time,
	duration_minutes, session_type, status, COALESCE(notes, ''), COALESCE(cancellation_reason, ''),
	created_at, updated_at, cancelled_at`

func (r *AppointmentRepository) Create(ctx context.Context, appt *model.Appointment) (string, error) {
	if appt.DurationMinutes <= 0 {
		appt.DurationMinutes = model.DefaultDurationMinutes
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO appointments
			(user_id, user_email, user_name, practitioner_id, practitioner_name, date, time, duration_minutes,
			 session_type, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, $9, $10, NULLIF($11, ''))
		RETURNING id::text, created_at, updated_at
	`, appt.UserID, appt.UserEmail, appt.UserName, appt.PractitionerID, appt.PractitionerName, appt.Date, appt.Time,
		appt.DurationMinutes, appt.SessionType, appt.Status, appt.Notes).Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		return "", err
	}
	return appt.ID, nil
}

// GetForUser returns the appointment only when userID owns it.
func (r *AppointmentRepository) GetForUser(ctx context.Context, userID, appointmentID string) (model.Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND user_id = $2
	`, appointmentID, userID)
	return scanAppointment(row)
}

// Reschedule moves a non-cancelled appointment and returns the new updated_at.
// Only date, time, status and updated_at are written.
func (r *AppointmentRepository) Reschedule(ctx context.Context, userID, appointmentID, date, clock string) (time.Time, error) {
	var updatedAt time.Time
	err := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET date = $3::date,
			time = $4,
			status = 'rescheduled',
			updated_at = now()
		WHERE id = $1 AND user_id = $2 AND status <> 'cancelled'
		RETURNING updated_at
	`, appointmentID, userID, date, clock).Scan(&updatedAt)
	return updatedAt, err
}

func (r *AppointmentRepository) Cancel(ctx context.Context, userID, appointmentID, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = NULLIF($3, ''),
			updated_at = now()
		WHERE id = $1 AND user_id = $2 AND status <> 'cancelled'
		RETURNING cancelled_at
	`, appointmentID, userID, reason).Scan(&cancelledAt)
	return cancelledAt, err
}

func (r *AppointmentRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE user_id = $1
		ORDER BY date DESC, time DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// ApplySnapshot overwrites the mutable fields with a newer copy. It reports
// false when the stored row is already as new or newer.
func (r *AppointmentRepository) ApplySnapshot(ctx context.Context, appt model.Appointment) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE appointments
		SET date = $3::date,
			time = $4,
			status = $5,
			notes = NULLIF($6, ''),
			cancellation_reason = NULLIF($7, ''),
			cancelled_at = $8,
			updated_at = $9
		WHERE id = $1 AND user_id = $2 AND updated_at < $9
	`, appt.ID, appt.UserID, appt.Date, appt.Time, appt.Status, appt.Notes, appt.CancelReason, appt.CancelledAt, appt.UpdatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanAppointment(row scanner) (model.Appointment, error) {
	var appt model.Appointment
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.UserID,
		&appt.UserEmail,
		&appt.UserName,
		&appt.PractitionerID,
		&appt.PractitionerName,
		&appt.Date,
		&appt.Time,
		&appt.DurationMinutes,
		&appt.SessionType,
		&appt.Status,
		&appt.Notes,
		&appt.CancelReason,
		&appt.CreatedAt,
		&appt.UpdatedAt,
		&cancelledAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CancelledAt = cancelledAt
	return appt, nil
}
