package policy

import (
	"context"
	"log/slog"

	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/reminders"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/storage"
)

// Provider resolves which reminder offsets apply to a practitioner's sessions.
type Provider interface {
	ReminderOffsets(ctx context.Context, practitionerID string) ([]reminders.Offset, error)
}

type staticProvider struct {
	offsets []reminders.Offset
}

func NewStaticProvider(offsets []reminders.Offset) Provider {
	if len(offsets) == 0 {
		offsets = reminders.DefaultOffsets
	}
	return &staticProvider{offsets: offsets}
}

func (p *staticProvider) ReminderOffsets(_ context.Context, _ string) ([]reminders.Offset, error) {
	return p.offsets, nil
}

type PractitionerSource interface {
	ReminderOffsets(ctx context.Context, practitionerID string) (string, error)
}

type practitionerProvider struct {
	source   PractitionerSource
	fallback []reminders.Offset
	logger   *slog.Logger
}

// NewPractitionerProvider reads per practitioner offsets from the store and
// uses fallback when a practitioner has none or is unknown.
func NewPractitionerProvider(source PractitionerSource, fallback []reminders.Offset, logger *slog.Logger) Provider {
	if len(fallback) == 0 {
		fallback = reminders.DefaultOffsets
	}
	return &practitionerProvider{source: source, fallback: fallback, logger: logger}
}

func (p *practitionerProvider) ReminderOffsets(ctx context.Context, practitionerID string) ([]reminders.Offset, error) {
	raw, err := p.source.ReminderOffsets(ctx, practitionerID)
	if err != nil {
		if storage.IsNotFound(err) {
			return p.fallback, nil
		}
		return nil, err
	}
	if raw == "" {
		return p.fallback, nil
	}
	offsets, err := reminders.ParseOffsets(raw)
	if err != nil {
		p.logger.Warn("ignoring invalid practitioner reminder offsets", "practitioner_id", practitionerID, "err", err)
	}
	return offsets, nil
}
