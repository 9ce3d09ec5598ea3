// Package domain defines the persistence model for flight requests, the
// single entity tracked by the booking workflow. The type is mapped with
// GORM and shared across the repository and service layers.
package domain

import "time"

// Status is the lifecycle state of a FlightRequest. The workflow is a
// linear chain: each record moves forward one state at a time and never
// backwards.
type Status string

// Lifecycle states, in order.
const (
	// StatusAwaitingReview is the initial state: the requester has sent a
	// description and reference photo, and no price has been set yet.
	StatusAwaitingReview Status = "awaiting_review"

	// StatusQuoted means an operator has set the amount due.
	StatusQuoted Status = "quoted"

	// StatusAwaitingPayment means the requester has uploaded a payment
	// proof and an operator must validate it.
	StatusAwaitingPayment Status = "awaiting_payment_confirmation"

	// StatusPaymentConfirmed means an operator validated the payment.
	// From here on the record can no longer be deleted.
	StatusPaymentConfirmed Status = "payment_confirmed"

	// StatusCredentialsDelivered is terminal: the boarding passes were
	// sent to the requester.
	StatusCredentialsDelivered Status = "credentials_delivered"
)

// statusOrder gives each state its position on the chain. Used to validate
// values coming back from the store.
var statusOrder = map[Status]int{
	StatusAwaitingReview:       0,
	StatusQuoted:               1,
	StatusAwaitingPayment:      2,
	StatusPaymentConfirmed:     3,
	StatusCredentialsDelivered: 4,
}

// Valid reports whether s is one of the five lifecycle states.
func (s Status) Valid() bool {
	_, ok := statusOrder[s]
	return ok
}

// Deletable reports whether a record in state s may still be removed.
// Once a payment is confirmed the record is kept forever.
func (s Status) Deletable() bool {
	switch s {
	case StatusAwaitingReview, StatusQuoted, StatusAwaitingPayment:
		return true
	}
	return false
}

// Terminal reports whether s is the final state of the chain.
func (s Status) Terminal() bool { return s == StatusCredentialsDelivered }

// FlightRequest represents one travel booking request moving through the
// workflow. It is created by the requester over chat and advanced by
// operators until the boarding passes are delivered.
//
// Fields:
//   - ID: store-assigned integer primary key; the only identifier
//     requesters quote back to staff.
//   - OwnerChatID: Telegram chat id of the requester; set at creation,
//     never changed, and the target of every outward notification.
//   - OwnerHandle: display username, informational only.
//   - Description: free-text origin/destination/date narrative.
//   - TravelDate: date parsed from the description; nil if unparseable.
//   - AmountDue: price set by the quote operation; nil while the record
//     is still awaiting review.
//   - Status: lifecycle state, drives every guard in the workflow.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type FlightRequest struct {
	ID          uint       `json:"id"            gorm:"primaryKey;autoIncrement"`
	OwnerChatID int64      `json:"owner_chat_id" gorm:"not null;index:idx_owner_requests"`
	OwnerHandle string     `json:"owner_handle"  gorm:"type:varchar(64)"`
	Description string     `json:"description"   gorm:"type:text;not null"`
	TravelDate  *time.Time `json:"travel_date,omitempty" gorm:"type:date;index"`
	AmountDue   *float64   `json:"amount_due,omitempty"  gorm:"type:decimal(10,2)"`
	Status      Status     `json:"status"        gorm:"type:varchar(32);not null;index"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for FlightRequest.
func (FlightRequest) TableName() string { return "flight_requests" }
