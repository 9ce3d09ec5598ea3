package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vuelospro/go-flight-desk/internal/domain"
	"github.com/vuelospro/go-flight-desk/internal/repo"
)

type fakeDeskRepo struct {
	getReq *domain.FlightRequest
	getErr error

	listStatus domain.Status
	listOut    []domain.FlightRequest

	winStatuses []domain.Status
	winFrom     time.Time
	winTo       time.Time
	winOut      []domain.FlightRequest

	total     int64
	offset    int
	limit     int
	pageOut   []domain.FlightRequest
	ownerOut  []domain.FlightRequest
	owners    int64
	collected float64
	paidCount int64
	totalPaid float64
}

func (r *fakeDeskRepo) GetRequest(ctx context.Context, db *gorm.DB, id uint) (*domain.FlightRequest, error) {
	return r.getReq, r.getErr
}

func (r *fakeDeskRepo) ListByStatus(ctx context.Context, db *gorm.DB, status domain.Status) ([]domain.FlightRequest, error) {
	r.listStatus = status
	return r.listOut, nil
}

func (r *fakeDeskRepo) ListByStatusInWindow(ctx context.Context, db *gorm.DB, statuses []domain.Status, from, to time.Time) ([]domain.FlightRequest, error) {
	r.winStatuses, r.winFrom, r.winTo = statuses, from, to
	return r.winOut, nil
}

func (r *fakeDeskRepo) CountRequests(ctx context.Context, db *gorm.DB) (int64, error) {
	return r.total, nil
}

func (r *fakeDeskRepo) ListHistoryPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.FlightRequest, error) {
	r.offset, r.limit = offset, limit
	return r.pageOut, nil
}

func (r *fakeDeskRepo) ListOwnerHistory(ctx context.Context, db *gorm.DB, ownerHandle string) ([]domain.FlightRequest, error) {
	return r.ownerOut, nil
}

func (r *fakeDeskRepo) DeskStats(ctx context.Context, db *gorm.DB) (int64, float64, error) {
	return r.owners, r.collected, nil
}

func (r *fakeDeskRepo) OwnerStats(ctx context.Context, db *gorm.DB, ownerHandle string) (int64, float64, error) {
	return r.paidCount, r.totalPaid, nil
}

func TestDeskGet_NotFoundMapped(t *testing.T) {
	s := NewDeskService(nil, &fakeDeskRepo{getErr: repo.ErrNotFound}, 5, 300, zerolog.Nop())
	if _, err := s.Get(context.Background(), 7); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("err = %v; want ErrRequestNotFound", err)
	}
}

func TestDeskQueues_MapToStatuses(t *testing.T) {
	cases := []struct {
		call func(*DeskService, context.Context) ([]domain.FlightRequest, error)
		want domain.Status
	}{
		{(*DeskService).Pending, domain.StatusAwaitingReview},
		{(*DeskService).AwaitingValidation, domain.StatusAwaitingPayment},
		{(*DeskService).Deliverable, domain.StatusPaymentConfirmed},
	}
	for _, tc := range cases {
		r := &fakeDeskRepo{listOut: []domain.FlightRequest{{ID: 1}}}
		s := NewDeskService(nil, r, 5, 300, zerolog.Nop())
		out, err := tc.call(s, context.Background())
		if err != nil || len(out) != 1 {
			t.Fatalf("%s: out=%v err=%v", tc.want, out, err)
		}
		if r.listStatus != tc.want {
			t.Fatalf("queried status = %q; want %q", r.listStatus, tc.want)
		}
	}
}

func TestDeskUpcoming_WindowCoversAllStatuses(t *testing.T) {
	r := &fakeDeskRepo{}
	s := NewDeskService(nil, r, 5, 300, zerolog.Nop())

	today := time.Date(2025, 3, 10, 14, 3, 0, 0, time.UTC)
	if _, err := s.Upcoming(context.Background(), today); err != nil {
		t.Fatalf("Upcoming: %v", err)
	}
	if want := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC); !r.winFrom.Equal(want) {
		t.Fatalf("from = %v; want %v", r.winFrom, want)
	}
	if want := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC); !r.winTo.Equal(want) {
		t.Fatalf("to = %v; want %v", r.winTo, want)
	}
	// No status filter: a still-unquoted request departing tomorrow belongs
	// on this board.
	if len(r.winStatuses) != 0 {
		t.Fatalf("statuses = %v; want none", r.winStatuses)
	}

	// Window below 1 day is clamped to today only.
	s = NewDeskService(nil, r, 0, 300, zerolog.Nop())
	if _, err := s.Upcoming(context.Background(), today); err != nil {
		t.Fatalf("Upcoming: %v", err)
	}
	if want := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC); !r.winTo.Equal(want) {
		t.Fatalf("clamped to = %v; want %v", r.winTo, want)
	}
}

func TestDeskHistory_PagingMath(t *testing.T) {
	r := &fakeDeskRepo{total: 41, pageOut: []domain.FlightRequest{{ID: 9}}}
	s := NewDeskService(nil, r, 5, 300, zerolog.Nop())

	items, total, err := s.History(context.Background(), 3, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if total != 41 || len(items) != 1 {
		t.Fatalf("total=%d items=%d", total, len(items))
	}
	if r.offset != 20 || r.limit != 10 {
		t.Fatalf("offset=%d limit=%d; want 20/10", r.offset, r.limit)
	}
}

func TestDeskOwnerHistoryAndStats(t *testing.T) {
	r := &fakeDeskRepo{
		ownerOut:  []domain.FlightRequest{{ID: 1}, {ID: 2}},
		paidCount: 1, totalPaid: 500.5,
		total: 12, owners: 4, collected: 2000,
	}
	s := NewDeskService(nil, r, 5, 300, zerolog.Nop())

	oh, err := s.OwnerHistory(context.Background(), "traveler")
	if err != nil {
		t.Fatalf("OwnerHistory: %v", err)
	}
	if len(oh.Requests) != 2 || oh.PaidCount != 1 || oh.TotalPaid != 500.5 {
		t.Fatalf("owner history = %+v", oh)
	}

	st, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalRequests != 12 || st.Requesters != 4 || st.Collected != 2000 {
		t.Fatalf("stats = %+v", st)
	}
}
