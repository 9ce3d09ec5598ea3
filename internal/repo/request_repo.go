// Package repo implements the data persistence layer for flight requests,
// backed by GORM. This file provides repository functions for the
// FlightRequest model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a request is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - Guarded mutations (UpdateStatusFrom, DeleteRequestIfDeletable) return
//     ErrStaleStatus when the row exists but no longer satisfies the status
//     precondition. The caller receives the current row alongside the error
//     so it can report the conflicting state.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// The status guards are enforced in SQL ("UPDATE ... WHERE id = ? AND
// status = ?") so that two concurrent transition attempts on one record can
// never both succeed: the first to commit wins, the second sees zero rows
// affected and gets ErrStaleStatus.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/vuelospro/go-flight-desk/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrStaleStatus is returned by guarded mutations when the record exists
// but its status no longer matches the expected precondition.
var ErrStaleStatus = errors.New("status precondition failed")

// CreateRequest inserts a new FlightRequest in the awaiting-review state.
// The id is assigned by the store and CreatedAt is set to UTC. AmountDue is
// left nil until the quote operation sets it.
func CreateRequest(ctx context.Context, db *gorm.DB, ownerChatID int64, ownerHandle, description string, travelDate *time.Time) (*domain.FlightRequest, error) {
	r := &domain.FlightRequest{
		OwnerChatID: ownerChatID,
		OwnerHandle: ownerHandle,
		Description: description,
		TravelDate:  travelDate,
		Status:      domain.StatusAwaitingReview,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// GetRequest fetches a single request by id, or ErrNotFound if missing.
func GetRequest(ctx context.Context, db *gorm.DB, id uint) (*domain.FlightRequest, error) {
	var r domain.FlightRequest
	if err := db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateStatusFrom performs a compare-and-set transition: the row is updated
// only while its status still equals from. Extra column updates (e.g.
// amount_due) ride along in the same statement.
//
// On success the refreshed row is returned. When the row is missing,
// ErrNotFound is returned. When the row exists but the status guard fails,
// the current row is returned together with ErrStaleStatus.
func UpdateStatusFrom(ctx context.Context, db *gorm.DB, id uint, from, to domain.Status, extra map[string]any) (*domain.FlightRequest, error) {
	values := map[string]any{"status": to}
	for k, v := range extra {
		values[k] = v
	}

	res := db.WithContext(ctx).
		Model(&domain.FlightRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		cur, err := GetRequest(ctx, db, id)
		if err != nil {
			return nil, err // ErrNotFound or a DB failure
		}
		return cur, ErrStaleStatus
	}
	return GetRequest(ctx, db, id)
}

// DeleteRequestIfDeletable removes the row only while its status is one of
// the pre-payment states. The guard runs in SQL so a concurrent payment
// confirmation cannot race the delete.
//
// Returns ErrNotFound when the row does not exist and ErrStaleStatus (with
// the current row) when it exists but may no longer be deleted.
func DeleteRequestIfDeletable(ctx context.Context, db *gorm.DB, id uint) (*domain.FlightRequest, error) {
	deletable := []domain.Status{
		domain.StatusAwaitingReview,
		domain.StatusQuoted,
		domain.StatusAwaitingPayment,
	}
	res := db.WithContext(ctx).
		Where("id = ? AND status IN ?", id, deletable).
		Delete(&domain.FlightRequest{})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		cur, err := GetRequest(ctx, db, id)
		if err != nil {
			return nil, err
		}
		return cur, ErrStaleStatus
	}
	return nil, nil
}

// ListByStatus returns every request in the given state, most recent first.
// This backs the dashboard work queues (pending quotes, payments to
// validate, credentials to deliver).
func ListByStatus(ctx context.Context, db *gorm.DB, status domain.Status) ([]domain.FlightRequest, error) {
	var out []domain.FlightRequest
	err := db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// ListByStatusInWindow returns requests in any of the given states whose
// travel date falls within [from, to). Ordering follows the date-window
// convention: travel_date ascending, then created_at descending.
func ListByStatusInWindow(ctx context.Context, db *gorm.DB, statuses []domain.Status, from, to time.Time) ([]domain.FlightRequest, error) {
	var out []domain.FlightRequest
	q := db.WithContext(ctx).
		Where("travel_date >= ? AND travel_date < ?", from, to)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	err := q.Order("travel_date asc").
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// CountRequests returns the total number of requests, for pagination.
func CountRequests(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.FlightRequest{}).
		Count(&total).Error
	return total, err
}

// ListHistoryPage returns a page of all requests ordered by creation time
// descending. The caller computes offset and limit.
func ListHistoryPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.FlightRequest, error) {
	var out []domain.FlightRequest
	err := db.WithContext(ctx).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListOwnerHistory returns every request submitted under the given handle,
// most recent first.
func ListOwnerHistory(ctx context.Context, db *gorm.DB, ownerHandle string) ([]domain.FlightRequest, error) {
	var out []domain.FlightRequest
	err := db.WithContext(ctx).
		Where("owner_handle = ?", ownerHandle).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}
