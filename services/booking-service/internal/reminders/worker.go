package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kshitijlohbare/wellbook/libs/db"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/metrics"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/model"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/notify"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/storage"
)

type DueStore interface {
	FetchDue(ctx context.Context, q db.Querier, limit int) ([]storage.DueReminder, error)
	Claim(ctx context.Context, q db.Querier, ids []int64, until time.Time) error
	MarkSent(ctx context.Context, q db.Querier, ids []int64) error
	MarkFailed(ctx context.Context, q db.Querier, id int64, attempts, maxAttempts int, nextAttemptAt time.Time, lastError string) error
	MarkVoided(ctx context.Context, q db.Querier, ids []int64, reason string) error
}

type Notifier interface {
	Notify(ctx context.Context, kind notify.Kind, appointmentID string, to notify.Recipient, facts notify.Facts) error
}

type WorkerConfig struct {
	Interval    time.Duration
	BatchSize   int
	Backoff     time.Duration
	SendTimeout time.Duration
	// Lease is how long a claimed reminder stays invisible to other pollers.
	// A worker that dies mid-send leaves the reminder due again after it.
	Lease time.Duration
}

// Worker polls due reminders and delivers them through the dispatcher.
type Worker struct {
	pool     db.TxQuerier
	repo     DueStore
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	cfg      WorkerConfig
	now      func() time.Time
}

func NewWorker(pool db.TxQuerier, repo DueStore, notifier Notifier, logger *slog.Logger, m *metrics.Metrics, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Minute
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 5 * time.Minute
	}
	return &Worker{
		pool:     pool,
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil {
				w.logger.Error("reminder batch failed", "err", err)
			}
		}
	}
}

// ProcessBatch claims one batch of due reminders and delivers them. Claiming
// commits before any email goes out; each outcome is then recorded on its own
// so one failed write never undoes another reminder's delivery.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	live, total, err := w.claim(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, rem := range live {
		sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
		err := w.notifier.Notify(sendCtx, notify.KindReminder, rem.AppointmentID,
			notify.Recipient{Email: rem.RecipientEmail, Name: rem.RecipientName},
			notify.Facts{
				RecipientName:    rem.RecipientName,
				PractitionerName: rem.PractitionerName,
				Date:             rem.AppointmentDate,
				Time:             rem.AppointmentTime,
				SessionType:      rem.SessionType,
				MeetingURL:       rem.MeetingURL,
			})
		cancel()
		if err == nil {
			sent++
			if err := w.repo.MarkSent(ctx, w.pool, []int64{rem.ID}); err != nil {
				w.logger.Error("reminder delivered but not marked sent", "reminder_id", rem.ID, "appointment_id", rem.AppointmentID, "err", err)
			}
			continue
		}
		w.recordFailure(ctx, rem.Reminder, err)
	}
	w.metrics.Reminders("sent", sent)
	return total, nil
}

// claim locks due rows, voids those whose appointment was cancelled and
// pushes the rest out by the lease. It returns the reminders to deliver.
func (w *Worker) claim(ctx context.Context) ([]storage.DueReminder, int, error) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	due, err := w.repo.FetchDue(ctx, tx, w.cfg.BatchSize)
	if err != nil {
		return nil, 0, err
	}
	if len(due) == 0 {
		return nil, 0, tx.Commit(ctx)
	}

	var live []storage.DueReminder
	var liveIDs, voided []int64
	for _, rem := range due {
		if rem.AppointmentStatus == model.StatusCancelled {
			voided = append(voided, rem.ID)
			continue
		}
		live = append(live, rem)
		liveIDs = append(liveIDs, rem.ID)
	}
	if err := w.repo.MarkVoided(ctx, tx, voided, "appointment cancelled"); err != nil {
		return nil, 0, fmt.Errorf("void reminders: %w", err)
	}
	if err := w.repo.Claim(ctx, tx, liveIDs, w.now().UTC().Add(w.cfg.Lease)); err != nil {
		return nil, 0, fmt.Errorf("claim reminders: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}
	w.metrics.Reminders("voided", len(voided))
	return live, len(due), nil
}

func (w *Worker) recordFailure(ctx context.Context, rem model.Reminder, sendErr error) {
	attempts := rem.Attempts + 1
	maxAttempts := rem.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	w.metrics.Reminders("failed", 1)
	next := w.now().UTC().Add(w.backoff(attempts))
	if err := w.repo.MarkFailed(ctx, w.pool, rem.ID, attempts, maxAttempts, next, sendErr.Error()); err != nil {
		w.logger.Error("record reminder failure", "reminder_id", rem.ID, "appointment_id", rem.AppointmentID, "err", err)
		return
	}
	if attempts >= maxAttempts {
		w.logger.Error("reminder gave up", "reminder_id", rem.ID, "appointment_id", rem.AppointmentID, "attempts", attempts, "err", sendErr)
	}
}

// backoff doubles per attempt, capped at 64x the base delay.
func (w *Worker) backoff(attempts int) time.Duration {
	shift := attempts - 1
	if shift > 6 {
		shift = 6
	}
	if shift < 0 {
		shift = 0
	}
	return w.cfg.Backoff << shift
}
