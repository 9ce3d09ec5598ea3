// Package services – DeskService
//
// This file implements the dashboard's read side: work queues per state, the
// upcoming-travel board, paginated history, per-requester history, and the
// overview stats. All methods are queries; mutations live in WorkflowService.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vuelospro/go-flight-desk/internal/domain"
	"github.com/vuelospro/go-flight-desk/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// DeskRepo defines the repository contract required by DeskService.
type DeskRepo interface {
	GetRequest(ctx context.Context, db *gorm.DB, id uint) (*domain.FlightRequest, error)
	ListByStatus(ctx context.Context, db *gorm.DB, status domain.Status) ([]domain.FlightRequest, error)
	ListByStatusInWindow(ctx context.Context, db *gorm.DB, statuses []domain.Status, from, to time.Time) ([]domain.FlightRequest, error)
	CountRequests(ctx context.Context, db *gorm.DB) (int64, error)
	ListHistoryPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.FlightRequest, error)
	ListOwnerHistory(ctx context.Context, db *gorm.DB, ownerHandle string) ([]domain.FlightRequest, error)
	DeskStats(ctx context.Context, db *gorm.DB) (owners int64, collected float64, err error)
	OwnerStats(ctx context.Context, db *gorm.DB, ownerHandle string) (paidCount int64, totalPaid float64, err error)
}

// DeskStats is the dashboard overview aggregate.
type DeskStats struct {
	TotalRequests int64   `json:"total_requests"`
	Requesters    int64   `json:"requesters"`
	Collected     float64 `json:"collected"`
}

// OwnerHistory is one requester's record trail plus their paid totals.
type OwnerHistory struct {
	Requests  []domain.FlightRequest `json:"requests"`
	PaidCount int64                  `json:"paid_count"`
	TotalPaid float64                `json:"total_paid"`
}

// DeskService serves the dashboard's read-only views.
type DeskService struct {
	DB   *gorm.DB
	Repo DeskRepo
	// UpcomingWindowDays bounds the upcoming-travel board; values < 1 are
	// treated as 1 (today only).
	UpcomingWindowDays int
	// HistoryLimit caps how many records a single history page may return;
	// values < 1 default to 300.
	HistoryLimit int
	Log          zerolog.Logger
}

// NewDeskService constructs a DeskService.
func NewDeskService(db *gorm.DB, r DeskRepo, windowDays, historyLimit int, log zerolog.Logger) *DeskService {
	return &DeskService{DB: db, Repo: r, UpcomingWindowDays: windowDays, HistoryLimit: historyLimit, Log: log}
}

// Get fetches one request by id, or ErrRequestNotFound.
func (s *DeskService) Get(ctx context.Context, id uint) (*domain.FlightRequest, error) {
	req, err := s.Repo.GetRequest(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

// Pending lists submissions still waiting for a quote.
func (s *DeskService) Pending(ctx context.Context) ([]domain.FlightRequest, error) {
	return s.queue(ctx, domain.StatusAwaitingReview)
}

// AwaitingValidation lists records whose payment proof needs operator review.
func (s *DeskService) AwaitingValidation(ctx context.Context) ([]domain.FlightRequest, error) {
	return s.queue(ctx, domain.StatusAwaitingPayment)
}

// Deliverable lists paid records whose boarding passes are still owed.
func (s *DeskService) Deliverable(ctx context.Context) ([]domain.FlightRequest, error) {
	return s.queue(ctx, domain.StatusPaymentConfirmed)
}

func (s *DeskService) queue(ctx context.Context, status domain.Status) ([]domain.FlightRequest, error) {
	ctx, span := otel.Tracer("services/DeskService").Start(ctx, "queue")
	span.SetAttributes(attribute.String("queue.status", string(status)))
	defer span.End()
	return s.Repo.ListByStatus(ctx, s.DB, status)
}

// Upcoming lists every record flying within the configured window starting at
// today (midnight UTC), soonest first, regardless of status. A request still
// waiting on a quote the day before departure is exactly what the desk needs
// to see here.
func (s *DeskService) Upcoming(ctx context.Context, today time.Time) ([]domain.FlightRequest, error) {
	days := s.UpcomingWindowDays
	if days < 1 {
		days = 1
	}
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return s.Repo.ListByStatusInWindow(ctx, s.DB, nil, day, day.AddDate(0, 0, days))
}

// History returns one page of all records, newest first, plus the total count.
// Page sizes beyond HistoryLimit are clamped.
func (s *DeskService) History(ctx context.Context, page, pageSize int) ([]domain.FlightRequest, int64, error) {
	limit := s.HistoryLimit
	if limit < 1 {
		limit = 300
	}
	if pageSize > limit {
		pageSize = limit
	}
	total, err := s.Repo.CountRequests(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	items, err := s.Repo.ListHistoryPage(ctx, s.DB, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// OwnerHistory returns one requester's records and their paid totals.
func (s *DeskService) OwnerHistory(ctx context.Context, ownerHandle string) (*OwnerHistory, error) {
	items, err := s.Repo.ListOwnerHistory(ctx, s.DB, ownerHandle)
	if err != nil {
		return nil, err
	}
	paidCount, totalPaid, err := s.Repo.OwnerStats(ctx, s.DB, ownerHandle)
	if err != nil {
		return nil, err
	}
	return &OwnerHistory{Requests: items, PaidCount: paidCount, TotalPaid: totalPaid}, nil
}

// Stats returns the dashboard overview aggregate.
func (s *DeskService) Stats(ctx context.Context) (*DeskStats, error) {
	total, err := s.Repo.CountRequests(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	owners, collected, err := s.Repo.DeskStats(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	return &DeskStats{TotalRequests: total, Requesters: owners, Collected: collected}, nil
}
