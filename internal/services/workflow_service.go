// Package services – WorkflowService
//
// This file implements the flight-request state machine: one method per
// lifecycle transition, each validating its preconditions, mutating the
// record store, and triggering the outward notification the transition owes.
//
// Commit-ordering rules:
//   - Validation and status guards run before any store mutation; a rejected
//     operation never touches the store.
//   - For every transition except credential delivery the order is
//     persist-then-notify: a failed notification never unwinds a committed
//     mutation and surfaces as a degraded success (TransitionResult.NotifyErr).
//   - Credential delivery is notify-then-persist: the status only flips to
//     delivered after the instruction message and every attachment went out,
//     so a crash mid-sequence leaves the record confirmed and re-runnable.
//
// Status guards are compare-and-set in the repository, so concurrent
// transition attempts on one record resolve to exactly one winner; the loser
// sees a conflict error, never a silent overwrite.
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/vuelospro/go-flight-desk/internal/domain"
	"github.com/vuelospro/go-flight-desk/internal/metrics"
	"github.com/vuelospro/go-flight-desk/internal/notify"
	"github.com/vuelospro/go-flight-desk/internal/repo"
	"github.com/vuelospro/go-flight-desk/internal/textparse"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RequestRepo defines the repository contract required by WorkflowService.
// Implementations are responsible for persistence of flight requests and for
// enforcing the status guards atomically.
type RequestRepo interface {
	// CreateRequest inserts a new awaiting-review record.
	CreateRequest(ctx context.Context, db *gorm.DB, ownerChatID int64, ownerHandle, description string, travelDate *time.Time) (*domain.FlightRequest, error)

	// GetRequest fetches a record by id.
	GetRequest(ctx context.Context, db *gorm.DB, id uint) (*domain.FlightRequest, error)

	// UpdateStatusFrom performs a compare-and-set status transition.
	UpdateStatusFrom(ctx context.Context, db *gorm.DB, id uint, from, to domain.Status, extra map[string]any) (*domain.FlightRequest, error)

	// DeleteRequestIfDeletable removes a record still in a pre-payment state.
	DeleteRequestIfDeletable(ctx context.Context, db *gorm.DB, id uint) (*domain.FlightRequest, error)
}

// TransitionResult is the outcome of a committed workflow operation.
// NotifyErr, when non-nil, marks a degraded success: the store mutation is
// durable but the outward notification failed and was not retried.
type TransitionResult struct {
	Request   *domain.FlightRequest
	NotifyErr error
}

// Warned reports whether the operation committed but left its owner or the
// operator channel unnotified.
func (r *TransitionResult) Warned() bool { return r != nil && r.NotifyErr != nil }

// WorkflowService advances flight requests through their lifecycle.
type WorkflowService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the request repository used by this service.
	Repo RequestRepo
	// Notifier delivers outward messages; its failures never roll back
	// committed store mutations.
	Notifier notify.Notifier
	// OperatorChatID receives submission and payment-proof notices.
	OperatorChatID int64
	// Log is the service logger.
	Log zerolog.Logger
}

// NewWorkflowService constructs a WorkflowService bound to the given store,
// repository, and notifier.
func NewWorkflowService(db *gorm.DB, r RequestRepo, n notify.Notifier, operatorChatID int64, log zerolog.Logger) *WorkflowService {
	return &WorkflowService{
		DB:             db,
		Repo:           r,
		Notifier:       n,
		OperatorChatID: operatorChatID,
		Log:            log,
	}
}

// ConfirmCallbackData encodes the operator-side confirm-payment shortcut
// attached to payment-proof notifications. The chat surface decodes it with
// ParseConfirmCallback.
func ConfirmCallbackData(id uint) string {
	return fmt.Sprintf("confirm_payment:%d", id)
}

// ParseConfirmCallback decodes a confirm-payment callback payload. The
// second return value is false for any other payload.
func ParseConfirmCallback(data string) (uint, bool) {
	rest, ok := strings.CutPrefix(data, "confirm_payment:")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Submit creates a new flight request from a requester's description and
// reference photo. The travel date is extracted from the description when
// present. The operator channel is notified with the submission; that notice
// is informational, so its failure degrades the result instead of failing it.
func (s *WorkflowService) Submit(ctx context.Context, ownerChatID int64, ownerHandle, description, referencePhotoID string) (*TransitionResult, error) {
	ctx, span := s.startSpan(ctx, "Submit", attribute.Int64("owner.chat_id", ownerChatID))
	defer span.End()

	description = strings.TrimSpace(description)
	if description == "" {
		metrics.Transitions.WithLabelValues("submit", "rejected").Inc()
		return nil, ErrEmptyDescription
	}

	var travelDate *time.Time
	if d, ok := textparse.TravelDate(description); ok {
		travelDate = &d
	}

	req, err := s.Repo.CreateRequest(ctx, s.DB, ownerChatID, ownerHandle, description, travelDate)
	if err != nil {
		metrics.Transitions.WithLabelValues("submit", "error").Inc()
		return nil, err
	}

	caption := fmt.Sprintf(
		"New flight request\nID: %d\nFrom: @%s\nInfo: %s",
		req.ID, handleOrFallback(ownerHandle), description,
	)
	var notifyErr error
	if referencePhotoID != "" {
		notifyErr = s.Notifier.SendPhoto(ctx, s.OperatorChatID, notify.Photo{
			FileID:  referencePhotoID,
			Caption: caption,
		})
	} else {
		notifyErr = s.Notifier.SendText(ctx, s.OperatorChatID, caption)
	}
	s.finish(ctx, "submit", req, notifyErr)

	return &TransitionResult{Request: req, NotifyErr: notifyErr}, nil
}

// Quote prices a request: amount due = round-half-up(total × pct / 100, 2).
// Only awaiting-review records can be quoted; re-quoting is rejected with
// ErrAlreadyQuoted. On success the owner is told the amount and percentage.
func (s *WorkflowService) Quote(ctx context.Context, id uint, totalAmount, percentage float64) (*TransitionResult, error) {
	ctx, span := s.startSpan(ctx, "Quote", attribute.Int("request.id", int(id)))
	defer span.End()

	if totalAmount <= 0 {
		metrics.Transitions.WithLabelValues("quote", "rejected").Inc()
		return nil, ErrInvalidAmount
	}
	if percentage <= 0 || percentage > 100 {
		metrics.Transitions.WithLabelValues("quote", "rejected").Inc()
		return nil, ErrInvalidPercentage
	}

	amount := quoteAmount(totalAmount, percentage)
	req, err := s.Repo.UpdateStatusFrom(ctx, s.DB, id,
		domain.StatusAwaitingReview, domain.StatusQuoted,
		map[string]any{"amount_due": amount})
	if err != nil {
		return nil, s.guardErr("quote", err, ErrAlreadyQuoted)
	}

	text := fmt.Sprintf(
		"Your flight request %d has been quoted.\nAmount due: %s\n(%s%% of the total fare)\n\nWhen you have your payment receipt, use the \"Send payment\" button in the bot.",
		req.ID, notify.FormatAmount(req.AmountDue, "pending"), trimFloat(percentage),
	)
	notifyErr := s.Notifier.SendText(ctx, req.OwnerChatID, text)
	s.finish(ctx, "quote", req, notifyErr)

	return &TransitionResult{Request: req, NotifyErr: notifyErr}, nil
}

// SubmitPaymentProof records that the owner uploaded a payment receipt for a
// quoted request and forwards the proof to the operator channel with a
// confirm shortcut bound to this record.
func (s *WorkflowService) SubmitPaymentProof(ctx context.Context, id uint, proofPhotoID string) (*TransitionResult, error) {
	ctx, span := s.startSpan(ctx, "SubmitPaymentProof", attribute.Int("request.id", int(id)))
	defer span.End()

	req, err := s.Repo.UpdateStatusFrom(ctx, s.DB, id,
		domain.StatusQuoted, domain.StatusAwaitingPayment, nil)
	if err != nil {
		return nil, s.guardErr("submit_payment_proof", err, ErrWrongState)
	}

	notifyErr := s.Notifier.SendPhoto(ctx, s.OperatorChatID, notify.Photo{
		FileID: proofPhotoID,
		Caption: fmt.Sprintf(
			"Payment proof received\nRequest ID: %d\nFrom: @%s",
			req.ID, handleOrFallback(req.OwnerHandle),
		),
		Button: &notify.Button{
			Label: fmt.Sprintf("Confirm payment %d", req.ID),
			Data:  ConfirmCallbackData(req.ID),
		},
	})
	s.finish(ctx, "submit_payment_proof", req, notifyErr)

	return &TransitionResult{Request: req, NotifyErr: notifyErr}, nil
}

// ConfirmPayment marks an announced payment as validated. The guard is
// strict: only awaiting-payment records qualify, from the dashboard and from
// the chat shortcut alike. On success the owner is notified.
func (s *WorkflowService) ConfirmPayment(ctx context.Context, id uint) (*TransitionResult, error) {
	ctx, span := s.startSpan(ctx, "ConfirmPayment", attribute.Int("request.id", int(id)))
	defer span.End()

	req, err := s.Repo.UpdateStatusFrom(ctx, s.DB, id,
		domain.StatusAwaitingPayment, domain.StatusPaymentConfirmed, nil)
	if err != nil {
		return nil, s.guardErr("confirm_payment", err, ErrWrongState)
	}

	text := fmt.Sprintf(
		"Your payment for flight request %d has been confirmed.\nYour boarding passes will arrive shortly.",
		req.ID,
	)
	notifyErr := s.Notifier.SendText(ctx, req.OwnerChatID, text)
	s.finish(ctx, "confirm_payment", req, notifyErr)

	return &TransitionResult{Request: req, NotifyErr: notifyErr}, nil
}

// DeliverCredentials sends the boarding passes to the owner and closes the
// record. Attachments go out in the exact order supplied, preceded by an
// instruction message and followed by a closing note. The status only
// persists as delivered after every send succeeded; a failed send aborts
// with the record still payment-confirmed so the operator can retry
// (duplicate sends on retry are accepted).
func (s *WorkflowService) DeliverCredentials(ctx context.Context, id uint, attachments []notify.Photo) (*TransitionResult, error) {
	ctx, span := s.startSpan(ctx, "DeliverCredentials",
		attribute.Int("request.id", int(id)),
		attribute.Int("attachments", len(attachments)),
	)
	defer span.End()

	if len(attachments) == 0 {
		metrics.Transitions.WithLabelValues("deliver_credentials", "rejected").Inc()
		return nil, ErrNoAttachments
	}

	req, err := s.Repo.GetRequest(ctx, s.DB, id)
	if err != nil {
		return nil, s.guardErr("deliver_credentials", err, ErrWrongState)
	}
	if req.Status != domain.StatusPaymentConfirmed {
		metrics.Transitions.WithLabelValues("deliver_credentials", "rejected").Inc()
		return nil, ErrWrongState
	}

	if err := s.sendCredentials(ctx, req, attachments); err != nil {
		metrics.Transitions.WithLabelValues("deliver_credentials", "error").Inc()
		metrics.NotifyFailures.WithLabelValues("deliver_credentials").Inc()
		s.Log.Error().Uint("request_id", req.ID).Err(err).
			Msg("credential delivery aborted before status change")
		return nil, err
	}

	req, err = s.Repo.UpdateStatusFrom(ctx, s.DB, id,
		domain.StatusPaymentConfirmed, domain.StatusCredentialsDelivered, nil)
	if err != nil {
		// Everything was sent; a lost race or store failure here leaves the
		// record confirmed. Logged loudly because the user already has the
		// passes.
		s.Log.Error().Uint("request_id", id).Err(err).
			Msg("credentials sent but status not persisted")
		return nil, s.guardErr("deliver_credentials", err, ErrWrongState)
	}

	s.finish(ctx, "deliver_credentials", req, nil)
	return &TransitionResult{Request: req}, nil
}

// sendCredentials runs the fixed delivery sequence: instructions, each
// attachment in order (first one captioned), closing note.
func (s *WorkflowService) sendCredentials(ctx context.Context, req *domain.FlightRequest, attachments []notify.Photo) error {
	instructions := fmt.Sprintf(
		"BOARDING PASSES — request %d\n\n"+
			"To avoid itinerary drops:\n"+
			"- Do not add the pass to the airline app.\n"+
			"- Do not look up the flight; if needed it is confirmed 2 hours before boarding.\n"+
			"- If the flight is dropped, a seat on the next departure is rebooked for you.\n"+
			"- Keep the pass photo in your gallery and scan it directly at the airport.",
		req.ID,
	)
	if err := s.Notifier.SendText(ctx, req.OwnerChatID, instructions); err != nil {
		return err
	}
	for i, att := range attachments {
		if i == 0 && att.Caption == "" {
			att.Caption = fmt.Sprintf("Boarding passes for request %d", req.ID)
		}
		if err := s.Notifier.SendPhoto(ctx, req.OwnerChatID, att); err != nil {
			return err
		}
	}
	return s.Notifier.SendText(ctx, req.OwnerChatID, "Enjoy your flight!")
}

// Delete removes a record still in a pre-payment state. Paid records are
// permanent. No notification is sent.
func (s *WorkflowService) Delete(ctx context.Context, id uint) error {
	ctx, span := s.startSpan(ctx, "Delete", attribute.Int("request.id", int(id)))
	defer span.End()

	if _, err := s.Repo.DeleteRequestIfDeletable(ctx, s.DB, id); err != nil {
		return s.guardErr("delete", err, ErrNotDeletable)
	}
	metrics.Transitions.WithLabelValues("delete", "ok").Inc()
	s.Log.Info().Uint("request_id", id).Msg("request deleted")
	return nil
}

// guardErr translates repository errors into service sentinels: not-found
// stays not-found, a failed status guard becomes the operation's conflict
// sentinel, anything else is a store failure passed through.
func (s *WorkflowService) guardErr(op string, err error, conflict error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		metrics.Transitions.WithLabelValues(op, "rejected").Inc()
		return ErrRequestNotFound
	case errors.Is(err, repo.ErrStaleStatus):
		metrics.Transitions.WithLabelValues(op, "rejected").Inc()
		return conflict
	default:
		metrics.Transitions.WithLabelValues(op, "error").Inc()
		return err
	}
}

// finish records the outcome of a committed transition.
func (s *WorkflowService) finish(ctx context.Context, op string, req *domain.FlightRequest, notifyErr error) {
	if notifyErr != nil {
		metrics.Transitions.WithLabelValues(op, "warning").Inc()
		metrics.NotifyFailures.WithLabelValues(op).Inc()
		s.Log.Warn().Uint("request_id", req.ID).Str("operation", op).Err(notifyErr).
			Msg("record updated but notification failed")
		return
	}
	metrics.Transitions.WithLabelValues(op, "ok").Inc()
	s.Log.Info().Uint("request_id", req.ID).Str("operation", op).
		Str("status", string(req.Status)).Msg("transition committed")
}

func (s *WorkflowService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tr := otel.Tracer("services/WorkflowService")
	return tr.Start(ctx, name, trace.WithAttributes(attrs...))
}

// quoteAmount computes round-half-up(total × pct / 100, 2) with decimal
// arithmetic so boundary values like 999.995 round exactly.
func quoteAmount(total, pct float64) float64 {
	amount := decimal.NewFromFloat(total).
		Mul(decimal.NewFromFloat(pct)).
		Div(decimal.NewFromInt(100)).
		Round(2)
	f, _ := amount.Float64()
	return f
}

// trimFloat renders a float without trailing zeros ("30", "12.5").
func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// handleOrFallback substitutes a placeholder for requesters without a
// public username.
func handleOrFallback(handle string) string {
	if strings.TrimSpace(handle) == "" {
		return "no_username"
	}
	return handle
}
