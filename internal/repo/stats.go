// Package repo implements the data persistence layer for flight requests,
// backed by GORM. This file provides small aggregate/statistics queries used
// by the dashboard overview and the per-owner history view. Each function is
// context-aware and safe to call from services or handlers.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/vuelospro/go-flight-desk/internal/domain"
)

// paidStatuses are the states in which a record's amount counts as revenue.
var paidStatuses = []domain.Status{
	domain.StatusPaymentConfirmed,
	domain.StatusCredentialsDelivered,
}

// DeskStats returns aggregate metadata for the dashboard overview: the number
// of distinct requesters seen and the sum of amounts across records whose
// payment has been confirmed or whose credentials were already delivered.
//
// Return values:
//   - owners:    count of distinct owner chat ids
//   - collected: total confirmed revenue (0 when none)
//   - err:       database error, if any
func DeskStats(ctx context.Context, db *gorm.DB) (owners int64, collected float64, err error) {
	if err = db.WithContext(ctx).
		Model(&domain.FlightRequest{}).
		Distinct("owner_chat_id").
		Count(&owners).Error; err != nil {
		return 0, 0, err
	}

	var row struct {
		Total float64
	}
	err = db.WithContext(ctx).
		Model(&domain.FlightRequest{}).
		Select("COALESCE(SUM(amount_due), 0) AS total").
		Where("status IN ?", paidStatuses).
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return owners, row.Total, nil
}

// OwnerStats returns aggregate metadata for one requester's history: how many
// of their records reached a paid state and the total they have paid.
func OwnerStats(ctx context.Context, db *gorm.DB, ownerHandle string) (paidCount int64, totalPaid float64, err error) {
	q := db.WithContext(ctx).
		Model(&domain.FlightRequest{}).
		Where("owner_handle = ? AND status IN ?", ownerHandle, paidStatuses)

	if err = q.Count(&paidCount).Error; err != nil {
		return 0, 0, err
	}
	if paidCount == 0 {
		return 0, 0, nil
	}

	var row struct {
		Total float64
	}
	if err = q.Select("COALESCE(SUM(amount_due), 0) AS total").Scan(&row).Error; err != nil {
		return 0, 0, err
	}
	return paidCount, row.Total, nil
}
