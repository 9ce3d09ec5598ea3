// Package services – ReminderService
//
// This file implements the payment-reminder sweep: a batch job that finds
// quoted-but-unpaid requests flying today or tomorrow and nudges their
// owners. The sweep never mutates records, runs to completion once per
// invocation, and isolates send failures per record so one unreachable chat
// cannot starve the rest. Scheduling cadence belongs to the caller.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vuelospro/go-flight-desk/internal/domain"
	"github.com/vuelospro/go-flight-desk/internal/metrics"
	"github.com/vuelospro/go-flight-desk/internal/notify"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ReminderRepo defines the repository contract required by ReminderService.
type ReminderRepo interface {
	// ListByStatusInWindow returns requests in the given states with a
	// travel date inside [from, to).
	ListByStatusInWindow(ctx context.Context, db *gorm.DB, statuses []domain.Status, from, to time.Time) ([]domain.FlightRequest, error)
}

// ReminderService sends payment reminders for imminent quoted flights.
type ReminderService struct {
	DB       *gorm.DB
	Repo     ReminderRepo
	Notifier notify.Notifier
	Log      zerolog.Logger
}

// NewReminderService constructs a ReminderService.
func NewReminderService(db *gorm.DB, r ReminderRepo, n notify.Notifier, log zerolog.Logger) *ReminderService {
	return &ReminderService{DB: db, Repo: r, Notifier: n, Log: log}
}

// Run performs one sweep for the given reference date: every quoted request
// with a travel date of today or tomorrow gets a reminder text. It returns
// how many reminders were sent and how many sends failed; a per-record send
// failure is logged and counted, never fatal. The store query error is the
// only condition that aborts the sweep.
func (s *ReminderService) Run(ctx context.Context, today time.Time) (sent, failed int, err error) {
	tr := otel.Tracer("services/ReminderService")
	ctx, span := tr.Start(ctx, "Run",
		trace.WithAttributes(attribute.String("sweep.date", today.Format("2006-01-02"))),
	)
	defer span.End()

	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	due, err := s.Repo.ListByStatusInWindow(ctx, s.DB,
		[]domain.Status{domain.StatusQuoted},
		day, day.AddDate(0, 0, 2)) // today and tomorrow, inclusive
	if err != nil {
		return 0, 0, err
	}

	for _, req := range due {
		if serr := s.Notifier.SendText(ctx, req.OwnerChatID, reminderText(&req)); serr != nil {
			failed++
			metrics.RemindersFailed.Inc()
			s.Log.Warn().Uint("request_id", req.ID).Err(serr).Msg("reminder send failed")
			continue
		}
		sent++
		metrics.RemindersSent.Inc()
	}

	s.Log.Info().Int("due", len(due)).Int("sent", sent).Int("failed", failed).
		Str("date", day.Format("2006-01-02")).Msg("reminder sweep finished")
	return sent, failed, nil
}

// reminderText builds the nudge for one quoted request. Missing travel date
// or amount render as placeholders.
func reminderText(req *domain.FlightRequest) string {
	travel := "unknown"
	if req.TravelDate != nil {
		travel = req.TravelDate.Format("2006-01-02")
	}
	return fmt.Sprintf(
		"Payment reminder\n\nRequest ID: %d\nTravel date: %s\nAmount due: %s\n\nIf you already paid, send your receipt with the \"Send payment\" button in the bot.",
		req.ID, travel, notify.FormatAmount(req.AmountDue, "pending"),
	)
}
