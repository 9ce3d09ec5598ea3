// Package domain defines the persistence model for flight requests, the
// single entity tracked by the booking workflow.
package domain

import "time"

// Idempotency records a previously processed dashboard action, keyed by
// (operator_id, request_id, key). It lets operators retry quote and
// confirm-payment form submissions (double clicks, flaky connections)
// without re-running side effects such as user notifications.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	OperatorID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_op_request_key,priority:1"`
	RequestID  string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_op_request_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_op_request_key,priority:3"`
	Action     string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
