package storage

import (
	"context"

	"github.com/kshitijlohbare/wellbook/libs/db"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/model"
)

type MeetingRepository struct {
	q db.Querier
}

func NewMeetingRepository(q db.Querier) *MeetingRepository {
	return &MeetingRepository{q: q}
}

// Upsert stores the meeting of an appointment, replacing any previous link.
func (r *MeetingRepository) Upsert(ctx context.Context, m model.Meeting) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO appointment_meetings
			(appointment_id, platform, meeting_url, meeting_id, meeting_password, host_email, guest_email, status)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, 'active')
		ON CONFLICT (appointment_id) DO UPDATE
		SET platform = EXCLUDED.platform,
			meeting_url = EXCLUDED.meeting_url,
			meeting_id = EXCLUDED.meeting_id,
			meeting_password = EXCLUDED.meeting_password,
			host_email = EXCLUDED.host_email,
			guest_email = EXCLUDED.guest_email,
			status = 'active'
	`, m.AppointmentID, m.Platform, m.URL, m.MeetingID, m.Password, m.HostEmail, m.GuestEmail)
	return err
}

func (r *MeetingRepository) GetByAppointment(ctx context.Context, appointmentID string) (model.Meeting, error) {
	var m model.Meeting
	err := r.q.QueryRow(ctx, `
		SELECT appointment_id::text, platform, meeting_url, COALESCE(meeting_id, ''), COALESCE(meeting_password, ''),
			host_email, guest_email, status, created_at
		FROM appointment_meetings
		WHERE appointment_id = $1
	`, appointmentID).Scan(&m.AppointmentID, &m.Platform, &m.URL, &m.MeetingID, &m.Password,
		&m.HostEmail, &m.GuestEmail, &m.Status, &m.CreatedAt)
	if err != nil {
		return model.Meeting{}, err
	}
	return m, nil
}

// Cancel marks the active meeting of an appointment cancelled.
func (r *MeetingRepository) Cancel(ctx context.Context, appointmentID string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE appointment_meetings
		SET status = 'cancelled'
		WHERE appointment_id = $1 AND status = 'active'
	`, appointmentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
