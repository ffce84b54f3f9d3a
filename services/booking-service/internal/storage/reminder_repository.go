package storage

import (
	"context"
	"time"

	"github.com/kshitijlohbare/wellbook/libs/db"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/model"
)

// DueReminder is a reminder ready to fire together with the current status of
// its appointment.
type DueReminder struct {
	model.Reminder
	AppointmentStatus string
}

type ReminderRepository struct {
	q db.Querier
}

func NewReminderRepository(q db.Querier) *ReminderRepository {
	return &ReminderRepository{q: q}
}

// Insert persists a pending reminder. It reports false when a live (not
// voided) reminder for the same appointment and fire time already exists.
func (r *ReminderRepository) Insert(ctx context.Context, rem model.Reminder) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO appointment_reminders
			(appointment_id, recipient_email, recipient_name, practitioner_name, appointment_date, appointment_time,
			 reminder_date, session_type, meeting_url, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, NULLIF($9, ''), $7)
		ON CONFLICT (appointment_id, reminder_date) WHERE voided = false DO NOTHING
	`, rem.AppointmentID, rem.RecipientEmail, rem.RecipientName, rem.PractitionerName, rem.AppointmentDate,
		rem.AppointmentTime, rem.RemindAt, rem.SessionType, rem.MeetingURL)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// VoidPending voids every unsent reminder of an appointment.
func (r *ReminderRepository) VoidPending(ctx context.Context, appointmentID string) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE appointment_reminders
		SET voided = true, updated_at = now()
		WHERE appointment_id = $1 AND sent = false AND voided = false
	`, appointmentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *ReminderRepository) ListPending(ctx context.Context, appointmentID string) ([]model.Reminder, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+reminderColumns+`
		FROM appointment_reminders r
		WHERE r.appointment_id = $1 AND r.sent = false AND r.voided = false
		ORDER BY r.reminder_date
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reminder
	for rows.Next() {
		var rem model.Reminder
		if err := rows.Scan(reminderDest(&rem)...); err != nil {
			return nil, err
		}
		out = append(out, rem)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// FetchDue locks up to limit due reminders. q must be a transaction.
func (r *ReminderRepository) FetchDue(ctx context.Context, q db.Querier, limit int) ([]DueReminder, error) {
	rows, err := q.Query(ctx, `
		SELECT `+reminderColumns+`, a.status
		FROM appointment_reminders r
		JOIN appointments a ON a.id = r.appointment_id
		WHERE r.sent = false AND r.voided = false AND r.next_attempt_at <= now()
		ORDER BY r.next_attempt_at
		LIMIT $1
		FOR UPDATE OF r SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DueReminder
	for rows.Next() {
		var due DueReminder
		dest := append(reminderDest(&due.Reminder), &due.AppointmentStatus)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, due)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Claim hides reminders from other pollers until the given instant.
func (r *ReminderRepository) Claim(ctx context.Context, q db.Querier, ids []int64, until time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `
		UPDATE appointment_reminders
		SET next_attempt_at = $2, updated_at = now()
		WHERE id = ANY($1)
	`, ids, until)
	return err
}

func (r *ReminderRepository) MarkSent(ctx context.Context, q db.Querier, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `
		UPDATE appointment_reminders
		SET sent = true, sent_at = now(), updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

// MarkFailed records a failed attempt. Reaching maxAttempts voids the reminder.
func (r *ReminderRepository) MarkFailed(ctx context.Context, q db.Querier, id int64, attempts, maxAttempts int, nextAttemptAt time.Time, lastError string) error {
	_, err := q.Exec(ctx, `
		UPDATE appointment_reminders
		SET attempts = $2,
			voided = $3,
			next_attempt_at = $4,
			last_error = $5,
			updated_at = now()
		WHERE id = $1
	`, id, attempts, attempts >= maxAttempts, nextAttemptAt, lastError)
	return err
}

func (r *ReminderRepository) MarkVoided(ctx context.Context, q db.Querier, ids []int64, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `
		UPDATE appointment_reminders
		SET voided = true, last_error = $2, updated_at = now()
		WHERE id = ANY($1)
	`, ids, reason)
	return err
}

const reminderColumns = `r.id, r.appointment_id::text, r.recipient_email, r.recipient_name, r.practitioner_name,
	r.appointment_date::text, r.appointment_time, r.reminder_date, r.session_type, COALESCE(r.meeting_url, ''),
	r.sent, r.voided, r.attempts, r.max_attempts, COALESCE(r.last_error, ''), r.next_attempt_at`

func reminderDest(rem *model.Reminder) []any {
	return []any{
		&rem.ID,
		&rem.AppointmentID,
		&rem.RecipientEmail,
		&rem.RecipientName,
		&rem.PractitionerName,
		&rem.AppointmentDate,
		&rem.AppointmentTime,
		&rem.RemindAt,
		&rem.SessionType,
		&rem.MeetingURL,
		&rem.Sent,
		&rem.Voided,
		&rem.Attempts,
		&rem.MaxAttempts,
		&rem.LastError,
		&rem.NextAttemptAt,
	}
}
