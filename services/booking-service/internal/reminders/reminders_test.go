package reminders

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/kshitijlohbare/wellbook/libs/db"
	"github.com/kshitijlohbare/wellbook/libs/runtime"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/model"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/notify"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/storage"
)

func TestParseOffsets(t *testing.T) {
	got, err := ParseOffsets("1d, 1h, 1d12h, 30m, 90, 1h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Offset{{Days: 1}, {Hours: 1}, {Days: 1, Hours: 12}, {Minutes: 30}, {Minutes: 90}}
	if len(got) != len(want) {
		t.Fatalf("expected %d offsets, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("offset %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestParseOffsetsDropsInvalid(t *testing.T) {
	got, err := ParseOffsets("2h,soon,-5,0d")
	if err == nil {
		t.Fatal("expected error describing invalid items")
	}
	if len(got) != 1 || got[0] != (Offset{Hours: 2}) {
		t.Fatalf("expected only 2h to survive, got %v", got)
	}

	got, err = ParseOffsets("")
	if err != nil || len(got) != 2 || got[0] != DefaultOffsets[0] || got[1] != DefaultOffsets[1] {
		t.Fatalf("expected defaults for empty input, got %v (%v)", got, err)
	}
}

func TestOffsetString(t *testing.T) {
	if s := (Offset{Days: 1, Hours: 12}).String(); s != "1d12h" {
		t.Fatalf("unexpected %q", s)
	}
	if s := (Offset{}).String(); s != "0m" {
		t.Fatalf("unexpected %q", s)
	}
}

type memStore struct {
	rows    []model.Reminder
	voided  map[string]int
	failErr error
}

func (m *memStore) Insert(_ context.Context, rem model.Reminder) (bool, error) {
	if m.failErr != nil {
		return false, m.failErr
	}
	for _, r := range m.rows {
		if r.AppointmentID == rem.AppointmentID && r.RemindAt.Equal(rem.RemindAt) {
			return false, nil
		}
	}
	m.rows = append(m.rows, rem)
	return true, nil
}

func (m *memStore) VoidPending(_ context.Context, appointmentID string) (int64, error) {
	if m.voided == nil {
		m.voided = map[string]int{}
	}
	var n int64
	for i := range m.rows {
		if m.rows[i].AppointmentID == appointmentID && !m.rows[i].Sent && !m.rows[i].Voided {
			m.rows[i].Voided = true
			n++
		}
	}
	m.voided[appointmentID] += int(n)
	return n, nil
}

func (m *memStore) ListPending(_ context.Context, appointmentID string) ([]model.Reminder, error) {
	if m.failErr != nil {
		return nil, m.failErr
	}
	var out []model.Reminder
	for _, r := range m.rows {
		if r.AppointmentID == appointmentID && !r.Sent && !r.Voided {
			out = append(out, r)
		}
	}
	return out, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestScheduleSkipsPastFireTimes(t *testing.T) {
	now := time.Date(2025, 5, 30, 10, 0, 0, 0, time.UTC)
	store := &memStore{}
	s := NewScheduler(store, time.UTC, runtime.DiscardLogger(), WithClock(fixedClock(now)))

	twoDays := model.Appointment{ID: "a1", Date: "2025-06-01", Time: "10:00 AM", PractitionerName: "Dr. X", SessionType: "therapy"}
	res, err := s.Schedule(context.Background(), twoDays, "https://zoom.us/j/1", notify.Recipient{Email: "a@b.com", Name: "Alice"}, []Offset{{Days: 1}, {Hours: 1}})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if res.Scheduled != 2 || res.Skipped != 0 || len(store.rows) != 2 {
		t.Fatalf("expected two reminders, got %+v rows=%d", res, len(store.rows))
	}
	for _, r := range store.rows {
		if r.Sent || !r.RemindAt.After(now) || r.MeetingURL != "https://zoom.us/j/1" {
			t.Fatalf("unexpected reminder %+v", r)
		}
	}

	soon := model.Appointment{ID: "a2", Date: "2025-05-30", Time: "10:30 AM"}
	res, err = s.Schedule(context.Background(), soon, "", notify.Recipient{Email: "a@b.com"}, []Offset{{Days: 1}})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if res.Scheduled != 0 || res.Skipped != 1 || len(store.rows) != 2 {
		t.Fatalf("expected nothing persisted, got %+v rows=%d", res, len(store.rows))
	}

	exact := model.Appointment{ID: "a3", Date: "2025-05-30", Time: "11:00 AM"}
	res, _ = s.Schedule(context.Background(), exact, "", notify.Recipient{Email: "a@b.com"}, []Offset{{Hours: 1}})
	if res.Skipped != 1 {
		t.Fatalf("fire time equal to now must be skipped, got %+v", res)
	}
}

func TestScheduleUsesTimezone(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{}
	s := NewScheduler(store, loc, runtime.DiscardLogger(), WithClock(fixedClock(now)))

	appt := model.Appointment{ID: "a1", Date: "2025-06-01", Time: "10:00 AM"}
	if _, err := s.Schedule(context.Background(), appt, "", notify.Recipient{Email: "a@b.com"}, []Offset{{Hours: 1}}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	want := time.Date(2025, 6, 1, 3, 30, 0, 0, time.UTC)
	if len(store.rows) != 1 || !store.rows[0].RemindAt.Equal(want) {
		t.Fatalf("expected reminder at %v, got %+v", want, store.rows)
	}
}

func TestScheduleReportsStoreErrors(t *testing.T) {
	store := &memStore{failErr: errors.New("insert failed")}
	s := NewScheduler(store, time.UTC, runtime.DiscardLogger(), WithClock(fixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))))
	_, err := s.Schedule(context.Background(), model.Appointment{ID: "a1", Date: "2025-06-01", Time: "10:00"}, "", notify.Recipient{}, DefaultOffsets)
	if err == nil {
		t.Fatal("expected store error")
	}
	if _, err := s.Schedule(context.Background(), model.Appointment{ID: "a1", Date: "bad", Time: "10:00"}, "", notify.Recipient{}, DefaultOffsets); err == nil {
		t.Fatal("expected parse error")
	}
}

type fakeDueStore struct {
	due        []storage.DueReminder
	sent       []int64
	voided     []int64
	claimed    []int64
	leaseUntil time.Time
	failed     map[int64]int
	failErr    error
}

// FetchDue hands back every row not yet sent or voided, as if each lease had
// already run out.
func (f *fakeDueStore) FetchDue(context.Context, db.Querier, int) ([]storage.DueReminder, error) {
	var out []storage.DueReminder
	for _, d := range f.due {
		if !slices.Contains(f.sent, d.ID) && !slices.Contains(f.voided, d.ID) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDueStore) Claim(_ context.Context, _ db.Querier, ids []int64, until time.Time) error {
	f.claimed = append(f.claimed, ids...)
	f.leaseUntil = until
	return nil
}

func (f *fakeDueStore) MarkSent(_ context.Context, _ db.Querier, ids []int64) error {
	f.sent = append(f.sent, ids...)
	return nil
}

func (f *fakeDueStore) MarkFailed(_ context.Context, _ db.Querier, id int64, attempts, _ int, _ time.Time, _ string) error {
	if f.failErr != nil {
		return f.failErr
	}
	if f.failed == nil {
		f.failed = map[int64]int{}
	}
	f.failed[id] = attempts
	return nil
}

func (f *fakeDueStore) MarkVoided(_ context.Context, _ db.Querier, ids []int64, _ string) error {
	f.voided = append(f.voided, ids...)
	return nil
}

type recordingNotifier struct {
	fail map[string]bool
	got  []notify.Facts
	ids  []string
}

func (r *recordingNotifier) Notify(_ context.Context, kind notify.Kind, appointmentID string, _ notify.Recipient, facts notify.Facts) error {
	if kind != notify.KindReminder {
		return errors.New("unexpected kind")
	}
	r.got = append(r.got, facts)
	r.ids = append(r.ids, appointmentID)
	if r.fail[appointmentID] {
		return errors.New("provider down")
	}
	return nil
}

func TestWorkerProcessBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	store := &fakeDueStore{due: []storage.DueReminder{
		{Reminder: model.Reminder{ID: 1, AppointmentID: "ok", PractitionerName: "Dr. X", MaxAttempts: 5}, AppointmentStatus: model.StatusConfirmed},
		{Reminder: model.Reminder{ID: 2, AppointmentID: "gone", MaxAttempts: 5}, AppointmentStatus: model.StatusCancelled},
		{Reminder: model.Reminder{ID: 3, AppointmentID: "flaky", Attempts: 1, MaxAttempts: 5}, AppointmentStatus: model.StatusRescheduled},
	}}
	notifier := &recordingNotifier{fail: map[string]bool{"flaky": true}}
	w := NewWorker(mock, store, notifier, runtime.DiscardLogger(), nil, WorkerConfig{})

	n, err := w.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 reminders handled, got %d", n)
	}
	if len(notifier.got) != 2 {
		t.Fatalf("cancelled appointment must not be notified, got %d sends", len(notifier.got))
	}
	if len(store.sent) != 1 || store.sent[0] != 1 {
		t.Fatalf("unexpected sent ids %v", store.sent)
	}
	if len(store.voided) != 1 || store.voided[0] != 2 {
		t.Fatalf("unexpected voided ids %v", store.voided)
	}
	if store.failed[3] != 2 {
		t.Fatalf("expected attempts to be bumped to 2, got %v", store.failed)
	}
	if !slices.Equal(store.claimed, []int64{1, 3}) {
		t.Fatalf("expected live reminders to be claimed, got %v", store.claimed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWorkerKeepsDeliveriesWhenRecordingFailureErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	store := &fakeDueStore{
		due: []storage.DueReminder{
			{Reminder: model.Reminder{ID: 1, AppointmentID: "ok", MaxAttempts: 5}, AppointmentStatus: model.StatusConfirmed},
			{Reminder: model.Reminder{ID: 2, AppointmentID: "flaky", MaxAttempts: 5}, AppointmentStatus: model.StatusConfirmed},
		},
		failErr: errors.New("connection reset"),
	}
	notifier := &recordingNotifier{fail: map[string]bool{"flaky": true}}
	w := NewWorker(mock, store, notifier, runtime.DiscardLogger(), nil, WorkerConfig{Lease: time.Minute})
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if _, err := w.ProcessBatch(context.Background()); err != nil {
			t.Fatalf("batch %d: %v", i, err)
		}
	}

	if !slices.Equal(store.sent, []int64{1}) {
		t.Fatalf("expected reminder 1 marked sent once, got %v", store.sent)
	}
	if !slices.Equal(notifier.ids, []string{"ok", "flaky", "flaky"}) {
		t.Fatalf("expected ok delivered once and flaky retried, got %v", notifier.ids)
	}
	if !store.leaseUntil.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected lease to end at %v, got %v", now.Add(time.Minute), store.leaseUntil)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWorkerBackoff(t *testing.T) {
	w := NewWorker(nil, nil, nil, runtime.DiscardLogger(), nil, WorkerConfig{Backoff: time.Minute})
	if got := w.backoff(1); got != time.Minute {
		t.Fatalf("expected 1m, got %s", got)
	}
	if got := w.backoff(3); got != 4*time.Minute {
		t.Fatalf("expected 4m, got %s", got)
	}
	if got := w.backoff(50); got != 64*time.Minute {
		t.Fatalf("expected cap at 64m, got %s", got)
	}
}
