// Flight-desk read handlers.
//
// This file exposes the dashboard's read-only views:
//   - GET /queues/pending              (submissions waiting for a quote)
//   - GET /queues/awaiting-validation  (payment proofs to review)
//   - GET /queues/deliverable          (paid records owing boarding passes)
//   - GET /queues/upcoming             (records flying soon, any status)
//   - GET /requests                    (full history, paginated)
//   - GET /requests/{id}               (single record)
//   - GET /owners/{handle}/requests    (one requester's history and totals)
//   - GET /stats                       (desk overview aggregate)
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vuelospro/go-flight-desk/internal/domain"
	"github.com/vuelospro/go-flight-desk/internal/services"
	"github.com/vuelospro/go-flight-desk/internal/utils"
)

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// QueueResponse wraps a work-queue listing.
type QueueResponse struct {
	Requests []domain.FlightRequest `json:"requests"`
}

// HistoryResponse wraps a page of the full request history.
type HistoryResponse struct {
	Requests   []domain.FlightRequest `json:"requests"`
	Pagination Pagination             `json:"pagination"`
}

// clampPagination reads the page/page_size query parameters with defaults
// and caps applied.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ParsePage(c.Query("page"), c.Query("page_size"))
}

// queue serves one work-queue listing.
func (h *Handlers) queue(c *gin.Context, list func() ([]domain.FlightRequest, error)) {
	items, err := list()
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, QueueResponse{Requests: items})
}

// PendingHandler lists submissions still waiting for a quote.
func (h *Handlers) PendingHandler(c *gin.Context) {
	h.queue(c, func() ([]domain.FlightRequest, error) { return h.desk.Pending(c.Request.Context()) })
}

// AwaitingValidationHandler lists payment proofs needing review.
func (h *Handlers) AwaitingValidationHandler(c *gin.Context) {
	h.queue(c, func() ([]domain.FlightRequest, error) { return h.desk.AwaitingValidation(c.Request.Context()) })
}

// DeliverableHandler lists paid records whose passes are still owed.
func (h *Handlers) DeliverableHandler(c *gin.Context) {
	h.queue(c, func() ([]domain.FlightRequest, error) { return h.desk.Deliverable(c.Request.Context()) })
}

// UpcomingHandler lists records flying within the desk's window, whatever
// their status.
func (h *Handlers) UpcomingHandler(c *gin.Context) {
	h.queue(c, func() ([]domain.FlightRequest, error) {
		return h.desk.Upcoming(c.Request.Context(), time.Now().UTC())
	})
}

// GetRequestHandler returns a single record.
func (h *Handlers) GetRequestHandler(c *gin.Context) {
	id, okID := pathID(c)
	if !okID {
		return
	}
	req, err := h.desk.Get(c.Request.Context(), id)
	if err != nil {
		if err == services.ErrRequestNotFound {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "request not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, req)
}

// HistoryHandler returns one page of all records, newest first.
func (h *Handlers) HistoryHandler(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.desk.History(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, HistoryResponse{
		Requests: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// OwnerHistoryHandler returns one requester's records and paid totals.
func (h *Handlers) OwnerHistoryHandler(c *gin.Context) {
	handle := strings.TrimSpace(strings.TrimPrefix(c.Param("handle"), "@"))
	if handle == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "owner handle required")
		return
	}

	hist, err := h.desk.OwnerHistory(c.Request.Context(), handle)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, hist)
}

// StatsHandler returns the desk overview aggregate.
func (h *Handlers) StatsHandler(c *gin.Context) {
	st, err := h.desk.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, st)
}
