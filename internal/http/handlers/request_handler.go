// Flight-request mutation handlers.
//
// This file exposes the dashboard's write endpoints:
//   - POST   /requests/{id}/quote            (price a submission)
//   - POST   /requests/{id}/confirm-payment  (validate an announced payment)
//   - POST   /requests/{id}/deliver          (send boarding passes, multipart)
//   - DELETE /requests/{id}                  (remove a pre-payment record)
//
// Handlers are transport-thin: they validate input, call WorkflowService,
// and translate results into HTTP responses. A committed transition whose
// notification failed still returns 200, with a `warning` field, so the
// operator knows to reach the requester another way.
//
// Idempotency:
// Dashboard forms send an Idempotency-Key per rendered form. When a previous
// successful action exists for (operator, request, key), the handler returns
// the current record and sets `Idempotency-Replayed: true` instead of
// re-running the transition.
package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/vuelospro/go-flight-desk/internal/domain"
	"github.com/vuelospro/go-flight-desk/internal/http/middleware"
	"github.com/vuelospro/go-flight-desk/internal/notify"
	"github.com/vuelospro/go-flight-desk/internal/repo"
	"github.com/vuelospro/go-flight-desk/internal/services"
)

//
// Service contracts (context-aware)
//

// Workflow defines the lifecycle transitions consumed by the write endpoints.
//
// Implementations must be safe for concurrent use; conflicting transitions on
// one record must resolve to a single winner.
type Workflow interface {
	// Quote prices an awaiting-review request.
	Quote(ctx context.Context, id uint, totalAmount, percentage float64) (*services.TransitionResult, error)
	// ConfirmPayment validates an announced payment.
	ConfirmPayment(ctx context.Context, id uint) (*services.TransitionResult, error)
	// DeliverCredentials sends the boarding passes and closes the record.
	DeliverCredentials(ctx context.Context, id uint, attachments []notify.Photo) (*services.TransitionResult, error)
	// Delete removes a record still in a pre-payment state.
	Delete(ctx context.Context, id uint) error
}

// Desk defines the read-only views consumed by the list endpoints.
type Desk interface {
	Get(ctx context.Context, id uint) (*domain.FlightRequest, error)
	Pending(ctx context.Context) ([]domain.FlightRequest, error)
	AwaitingValidation(ctx context.Context) ([]domain.FlightRequest, error)
	Deliverable(ctx context.Context) ([]domain.FlightRequest, error)
	Upcoming(ctx context.Context, today time.Time) ([]domain.FlightRequest, error)
	History(ctx context.Context, page, pageSize int) ([]domain.FlightRequest, int64, error)
	OwnerHistory(ctx context.Context, ownerHandle string) (*services.OwnerHistory, error)
	Stats(ctx context.Context) (*services.DeskStats, error)
}

//
// Handler wiring
//

// Handlers groups the dashboard API endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic; the DB
// handle is used only for idempotency bookkeeping.
type Handlers struct {
	workflow Workflow
	desk     Desk
	db       *gorm.DB
	idemTTL  time.Duration
}

// New constructs a Handlers instance bound to the given services.
func New(workflow Workflow, desk Desk, db *gorm.DB, idemTTL time.Duration) *Handlers {
	return &Handlers{workflow: workflow, desk: desk, db: db, idemTTL: idemTTL}
}

//
// DTOs
//

// QuoteRequest is the JSON payload for pricing a submission.
type QuoteRequest struct {
	// TotalAmount is the full fare the operator found.
	TotalAmount float64 `json:"total_amount" binding:"required"`
	// Percentage is the share of the fare charged to the requester, in (0, 100].
	Percentage float64 `json:"percentage" binding:"required"`
}

// TransitionResponse is the JSON envelope for a committed transition.
type TransitionResponse struct {
	Request *domain.FlightRequest `json:"request"`
	// Warning is set when the record was updated but the requester (or the
	// operator channel) could not be notified.
	Warning string `json:"warning,omitempty"`
}

//
// Helpers
//

// pathID parses the :id path parameter. On failure it writes a 400 and
// returns ok=false.
func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request id must be a positive integer")
		return 0, false
	}
	return uint(id), true
}

// transitionFail maps service sentinels onto the HTTP error taxonomy.
func transitionFail(c *gin.Context, err error) {
	switch err {
	case services.ErrRequestNotFound:
		fail(c, http.StatusNotFound, ErrCodeNotFound, "request not found")
	case services.ErrAlreadyQuoted:
		fail(c, http.StatusConflict, ErrCodeConflict, "request is already quoted")
	case services.ErrWrongState:
		fail(c, http.StatusConflict, ErrCodeConflict, "request is not in the required state")
	case services.ErrNotDeletable:
		fail(c, http.StatusConflict, ErrCodeConflict, "request can no longer be deleted")
	case services.ErrInvalidAmount:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "total_amount must be positive")
	case services.ErrInvalidPercentage:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "percentage must be in (0, 100]")
	case services.ErrNoAttachments:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "at least one boarding pass file is required")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeTransitionFailed, err.Error())
	}
}

// replay serves an idempotent re-submit: the transition already ran, so the
// handler answers with the record's current state and a replay marker.
func (h *Handlers) replay(c *gin.Context, id uint) bool {
	if !middleware.IsReplay(c) {
		return false
	}
	req, err := h.desk.Get(c.Request.Context(), id)
	if err != nil {
		return false // fall through to normal processing
	}
	c.Header("Idempotency-Replayed", "true")
	ok(c, http.StatusOK, TransitionResponse{Request: req})
	return true
}

// remember records a completed action for replay detection, best effort.
func (h *Handlers) remember(c *gin.Context, id uint, action string, status int) {
	key, okKey := middleware.GetIdempotencyKey(c)
	if !okKey || h.db == nil {
		return
	}
	_, _ = repo.CreateIdempotency(c.Request.Context(), h.db,
		middleware.OperatorID(c), strconv.FormatUint(uint64(id), 10), key,
		action, status, h.idemTTL)
}

// respondTransition writes the committed-transition envelope, surfacing a
// degraded success as a warning.
func respondTransition(c *gin.Context, res *services.TransitionResult) {
	body := TransitionResponse{Request: res.Request}
	if res.Warned() {
		body.Warning = "record updated but the notification failed; contact the requester directly"
	}
	ok(c, http.StatusOK, body)
}

//
// Handlers
//

// QuoteRequestHandler prices an awaiting-review submission and notifies the
// requester of the amount due.
func (h *Handlers) QuoteRequestHandler(c *gin.Context) {
	id, okID := pathID(c)
	if !okID {
		return
	}
	if h.replay(c, id) {
		return
	}

	var body QuoteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "total_amount and percentage required")
		return
	}

	res, err := h.workflow.Quote(c.Request.Context(), id, body.TotalAmount, body.Percentage)
	if err != nil {
		transitionFail(c, err)
		return
	}
	h.remember(c, id, "quote", http.StatusOK)
	respondTransition(c, res)
}

// ConfirmPaymentHandler validates an announced payment and notifies the
// requester.
func (h *Handlers) ConfirmPaymentHandler(c *gin.Context) {
	id, okID := pathID(c)
	if !okID {
		return
	}
	if h.replay(c, id) {
		return
	}

	res, err := h.workflow.ConfirmPayment(c.Request.Context(), id)
	if err != nil {
		transitionFail(c, err)
		return
	}
	h.remember(c, id, "confirm_payment", http.StatusOK)
	respondTransition(c, res)
}

// maxPassFiles bounds a single delivery; the global body limit bounds bytes.
const maxPassFiles = 10

// DeliverHandler accepts a multipart form with one or more files under the
// "passes" field, sends them to the requester, and closes the record. The
// files go out in form order.
func (h *Handlers) DeliverHandler(c *gin.Context) {
	id, okID := pathID(c)
	if !okID {
		return
	}
	if h.replay(c, id) {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart form with boarding pass files required")
		return
	}
	files := form.File["passes"]
	if len(files) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "at least one boarding pass file is required")
		return
	}
	if len(files) > maxPassFiles {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "too many files in one delivery")
		return
	}

	attachments := make([]notify.Photo, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable upload: "+fh.Filename)
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable upload: "+fh.Filename)
			return
		}
		attachments = append(attachments, notify.Photo{Bytes: data, Name: fh.Filename})
	}

	res, err := h.workflow.DeliverCredentials(c.Request.Context(), id, attachments)
	if err != nil {
		switch err {
		case services.ErrRequestNotFound, services.ErrWrongState, services.ErrNoAttachments:
			transitionFail(c, err)
		default:
			// Sends failed before the status changed; the record stays
			// payment-confirmed and the operator can retry.
			fail(c, http.StatusBadGateway, ErrCodeDeliveryFailed, "sending boarding passes failed; record unchanged, retry the delivery")
		}
		return
	}
	h.remember(c, id, "deliver", http.StatusOK)
	respondTransition(c, res)
}

// DeleteHandler removes a record still in a pre-payment state.
func (h *Handlers) DeleteHandler(c *gin.Context) {
	id, okID := pathID(c)
	if !okID {
		return
	}

	if err := h.workflow.Delete(c.Request.Context(), id); err != nil {
		transitionFail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
