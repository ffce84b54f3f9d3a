package storage

import (
	"context"

	"github.com/kshitijlohbare/wellbook/libs/db"
)

type PractitionerRepository struct {
	q db.Querier
}

func NewPractitionerRepository(q db.Querier) *PractitionerRepository {
	return &PractitionerRepository{q: q}
}

// ReminderOffsets returns the raw offsets setting of a practitioner, e.g. "1d,1h".
// An empty string means the practitioner uses the service default.
func (r *PractitionerRepository) ReminderOffsets(ctx context.Context, practitionerID string) (string, error) {
	var raw string
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(reminder_offsets, '')
		FROM practitioners
		WHERE id = $1
	`, practitionerID).Scan(&raw)
	return raw, err
}
