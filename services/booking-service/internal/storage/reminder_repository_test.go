package storage

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/model"
)

func TestReminderInsertIgnoresDuplicates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	rem := model.Reminder{
		AppointmentID:    "a1",
		RecipientEmail:   "a@b.com",
		RecipientName:    "Alice",
		PractitionerName: "Dr. X",
		AppointmentDate:  "2025-06-01",
		AppointmentTime:  "10:00 AM",
		RemindAt:         at,
		SessionType:      "therapy",
	}
	mock.ExpectExec("INSERT INTO appointment_reminders").
		WithArgs("a1", "a@b.com", "Alice", "Dr. X", "2025-06-01", "10:00 AM", at, "therapy", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO appointment_reminders").
		WithArgs("a1", "a@b.com", "Alice", "Dr. X", "2025-06-01", "10:00 AM", at, "therapy", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	repo := NewReminderRepository(mock)
	if ok, err := repo.Insert(context.Background(), rem); err != nil || !ok {
		t.Fatalf("first insert: %v %v", ok, err)
	}
	if ok, err := repo.Insert(context.Background(), rem); err != nil || ok {
		t.Fatalf("duplicate insert should be ignored: %v %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReminderFetchDueAndMark(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	now := time.Now().UTC()
	cols := []string{
		"id", "appointment_id", "recipient_email", "recipient_name", "practitioner_name", "appointment_date",
		"appointment_time", "reminder_date", "session_type", "meeting_url", "sent", "voided", "attempts",
		"max_attempts", "last_error", "next_attempt_at", "status",
	}
	mock.ExpectQuery("FOR UPDATE OF r SKIP LOCKED").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(7), "a1", "a@b.com", "Alice", "Dr. X", "2025-06-01", "10:00 AM", now, "therapy",
				"https://zoom.us/j/1", false, false, 0, 5, "", now, model.StatusConfirmed))
	lease := now.Add(5 * time.Minute)
	mock.ExpectExec("SET next_attempt_at = \\$2").
		WithArgs([]int64{7}, lease).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("SET sent = true").
		WithArgs([]int64{7}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("SET attempts").
		WithArgs(int64(8), 5, true, now, "smtp down").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewReminderRepository(mock)
	due, err := repo.FetchDue(context.Background(), mock, 10)
	if err != nil {
		t.Fatalf("fetch due: %v", err)
	}
	if len(due) != 1 || due[0].ID != 7 || due[0].MeetingURL != "https://zoom.us/j/1" || due[0].AppointmentStatus != model.StatusConfirmed {
		t.Fatalf("unexpected due reminders %+v", due)
	}
	if err := repo.Claim(context.Background(), mock, []int64{7}, lease); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := repo.Claim(context.Background(), mock, nil, lease); err != nil {
		t.Fatalf("empty claim should be a no-op: %v", err)
	}
	if err := repo.MarkSent(context.Background(), mock, []int64{7}); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := repo.MarkSent(context.Background(), mock, nil); err != nil {
		t.Fatalf("empty mark sent should be a no-op: %v", err)
	}
	if err := repo.MarkFailed(context.Background(), mock, 8, 5, 5, now, "smtp down"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReminderVoidPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("SET voided = true").
		WithArgs("a1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := NewReminderRepository(mock).VoidPending(context.Background(), "a1")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 voided, got %d (%v)", n, err)
	}
}

func TestReminderListPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	at := time.Date(2025, 5, 31, 10, 0, 0, 0, time.UTC)
	cols := []string{
		"id", "appointment_id", "recipient_email", "recipient_name", "practitioner_name", "appointment_date",
		"appointment_time", "reminder_date", "session_type", "meeting_url", "sent", "voided", "attempts",
		"max_attempts", "last_error", "next_attempt_at",
	}
	mock.ExpectQuery("r.sent = false AND r.voided = false").
		WithArgs("a1").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(1), "a1", "a@b.com", "Alice", "Dr. X", "2025-06-01", "10:00 AM", at, "therapy", "", false, false, 0, 5, "", at).
			AddRow(int64(2), "a1", "a@b.com", "Alice", "Dr. X", "2025-06-01", "10:00 AM", at.Add(23*time.Hour), "therapy", "", false, false, 0, 5, "", at))

	rems, err := NewReminderRepository(mock).ListPending(context.Background(), "a1")
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(rems) != 2 || rems[0].ID != 1 || !rems[1].RemindAt.Equal(at.Add(23*time.Hour)) {
		t.Fatalf("unexpected pending reminders %+v", rems)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
