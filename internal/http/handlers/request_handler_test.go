package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vuelospro/go-flight-desk/internal/domain"
	"github.com/vuelospro/go-flight-desk/internal/notify"
	"github.com/vuelospro/go-flight-desk/internal/services"
)

//
// Fakes
//

type fakeWorkflow struct {
	quoteID    uint
	quoteTotal float64
	quotePct   float64

	deliverID    uint
	deliverFiles []notify.Photo

	confirmID uint
	deleteID  uint

	res *services.TransitionResult
	err error
}

func (f *fakeWorkflow) Quote(ctx context.Context, id uint, total, pct float64) (*services.TransitionResult, error) {
	f.quoteID, f.quoteTotal, f.quotePct = id, total, pct
	return f.res, f.err
}

func (f *fakeWorkflow) ConfirmPayment(ctx context.Context, id uint) (*services.TransitionResult, error) {
	f.confirmID = id
	return f.res, f.err
}

func (f *fakeWorkflow) DeliverCredentials(ctx context.Context, id uint, attachments []notify.Photo) (*services.TransitionResult, error) {
	f.deliverID, f.deliverFiles = id, attachments
	return f.res, f.err
}

func (f *fakeWorkflow) Delete(ctx context.Context, id uint) error {
	f.deleteID = id
	return f.err
}

type fakeDesk struct {
	req     *domain.FlightRequest
	getErr  error
	list    []domain.FlightRequest
	total   int64
	page    int
	size    int
	owner   *services.OwnerHistory
	stats   *services.DeskStats
	listErr error
}

func (f *fakeDesk) Get(ctx context.Context, id uint) (*domain.FlightRequest, error) {
	return f.req, f.getErr
}
func (f *fakeDesk) Pending(ctx context.Context) ([]domain.FlightRequest, error) {
	return f.list, f.listErr
}
func (f *fakeDesk) AwaitingValidation(ctx context.Context) ([]domain.FlightRequest, error) {
	return f.list, f.listErr
}
func (f *fakeDesk) Deliverable(ctx context.Context) ([]domain.FlightRequest, error) {
	return f.list, f.listErr
}
func (f *fakeDesk) Upcoming(ctx context.Context, today time.Time) ([]domain.FlightRequest, error) {
	return f.list, f.listErr
}
func (f *fakeDesk) History(ctx context.Context, page, pageSize int) ([]domain.FlightRequest, int64, error) {
	f.page, f.size = page, pageSize
	return f.list, f.total, f.listErr
}
func (f *fakeDesk) OwnerHistory(ctx context.Context, ownerHandle string) (*services.OwnerHistory, error) {
	return f.owner, f.listErr
}
func (f *fakeDesk) Stats(ctx context.Context) (*services.DeskStats, error) {
	return f.stats, f.listErr
}

func newTestRouter(wf *fakeWorkflow, desk *fakeDesk) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(wf, desk, nil, time.Hour)
	r := gin.New()
	r.POST("/requests/:id/quote", h.QuoteRequestHandler)
	r.POST("/requests/:id/confirm-payment", h.ConfirmPaymentHandler)
	r.POST("/requests/:id/deliver", h.DeliverHandler)
	r.DELETE("/requests/:id", h.DeleteHandler)
	r.GET("/requests/:id", h.GetRequestHandler)
	r.GET("/requests", h.HistoryHandler)
	r.GET("/queues/pending", h.PendingHandler)
	r.GET("/queues/upcoming", h.UpcomingHandler)
	r.GET("/owners/:handle/requests", h.OwnerHistoryHandler)
	r.GET("/stats", h.StatsHandler)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

//
// Quote
//

func TestQuoteHandler_OK(t *testing.T) {
	amount := 300.0
	wf := &fakeWorkflow{res: &services.TransitionResult{
		Request: &domain.FlightRequest{ID: 7, Status: domain.StatusQuoted, AmountDue: &amount},
	}}
	r := newTestRouter(wf, &fakeDesk{})

	w := doJSON(t, r, http.MethodPost, "/requests/7/quote",
		gin.H{"total_amount": 1000, "percentage": 30})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if wf.quoteID != 7 || wf.quoteTotal != 1000 || wf.quotePct != 30 {
		t.Fatalf("workflow args = %d %v %v", wf.quoteID, wf.quoteTotal, wf.quotePct)
	}
	var resp TransitionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Request.ID != 7 || resp.Request.Status != domain.StatusQuoted || resp.Warning != "" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestQuoteHandler_DegradedSuccessHasWarning(t *testing.T) {
	wf := &fakeWorkflow{res: &services.TransitionResult{
		Request:   &domain.FlightRequest{ID: 7, Status: domain.StatusQuoted},
		NotifyErr: errors.New("chat unreachable"),
	}}
	r := newTestRouter(wf, &fakeDesk{})

	w := doJSON(t, r, http.MethodPost, "/requests/7/quote",
		gin.H{"total_amount": 1000, "percentage": 30})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp TransitionResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Warning == "" {
		t.Fatalf("expected warning in body: %s", w.Body.String())
	}
}

func TestQuoteHandler_Errors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		wantCode string
	}{
		{"conflict", services.ErrAlreadyQuoted, http.StatusConflict, ErrCodeConflict},
		{"missing", services.ErrRequestNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"bad amount", services.ErrInvalidAmount, http.StatusBadRequest, ErrCodeBadRequest},
		{"bad pct", services.ErrInvalidPercentage, http.StatusBadRequest, ErrCodeBadRequest},
		{"store", errors.New("db down"), http.StatusInternalServerError, ErrCodeTransitionFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wf := &fakeWorkflow{err: tc.err}
			r := newTestRouter(wf, &fakeDesk{})
			w := doJSON(t, r, http.MethodPost, "/requests/7/quote",
				gin.H{"total_amount": 1000, "percentage": 30})
			if w.Code != tc.status {
				t.Fatalf("status = %d; want %d", w.Code, tc.status)
			}
			var er ErrorResponse
			_ = json.Unmarshal(w.Body.Bytes(), &er)
			if er.Code != tc.wantCode {
				t.Fatalf("code = %q; want %q", er.Code, tc.wantCode)
			}
		})
	}
}

func TestQuoteHandler_BadID_And_BadBody(t *testing.T) {
	r := newTestRouter(&fakeWorkflow{}, &fakeDesk{})

	if w := doJSON(t, r, http.MethodPost, "/requests/zero/quote", gin.H{"total_amount": 1, "percentage": 1}); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPost, "/requests/7/quote", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("empty body status = %d", w.Code)
	}
}

//
// Confirm payment
//

func TestConfirmPaymentHandler(t *testing.T) {
	wf := &fakeWorkflow{res: &services.TransitionResult{
		Request: &domain.FlightRequest{ID: 9, Status: domain.StatusPaymentConfirmed},
	}}
	r := newTestRouter(wf, &fakeDesk{})

	w := doJSON(t, r, http.MethodPost, "/requests/9/confirm-payment", nil)
	if w.Code != http.StatusOK || wf.confirmID != 9 {
		t.Fatalf("status=%d confirmID=%d", w.Code, wf.confirmID)
	}

	wf = &fakeWorkflow{err: services.ErrWrongState}
	r = newTestRouter(wf, &fakeDesk{})
	if w := doJSON(t, r, http.MethodPost, "/requests/9/confirm-payment", nil); w.Code != http.StatusConflict {
		t.Fatalf("wrong-state status = %d", w.Code)
	}
}

//
// Deliver
//

func multipartBody(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := mw.CreateFormFile("passes", name)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestDeliverHandler_OK(t *testing.T) {
	wf := &fakeWorkflow{res: &services.TransitionResult{
		Request: &domain.FlightRequest{ID: 9, Status: domain.StatusCredentialsDelivered},
	}}
	r := newTestRouter(wf, &fakeDesk{})

	body, ctype := multipartBody(t, map[string][]byte{"qr.png": []byte("img-bytes")})
	req := httptest.NewRequest(http.MethodPost, "/requests/9/deliver", body)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if wf.deliverID != 9 || len(wf.deliverFiles) != 1 {
		t.Fatalf("deliver args: id=%d files=%d", wf.deliverID, len(wf.deliverFiles))
	}
	if wf.deliverFiles[0].Name != "qr.png" || string(wf.deliverFiles[0].Bytes) != "img-bytes" {
		t.Fatalf("file = %+v", wf.deliverFiles[0])
	}
}

func TestDeliverHandler_NoFiles(t *testing.T) {
	r := newTestRouter(&fakeWorkflow{}, &fakeDesk{})

	body, ctype := multipartBody(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/requests/9/deliver", body)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestDeliverHandler_SendFailureIs502(t *testing.T) {
	wf := &fakeWorkflow{err: errors.New("telegram: timeout")}
	r := newTestRouter(wf, &fakeDesk{})

	body, ctype := multipartBody(t, map[string][]byte{"qr.png": []byte("x")})
	req := httptest.NewRequest(http.MethodPost, "/requests/9/deliver", body)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d; want 502", w.Code)
	}
	var er ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &er)
	if er.Code != ErrCodeDeliveryFailed {
		t.Fatalf("code = %q", er.Code)
	}
}

func TestDeliverHandler_WrongState(t *testing.T) {
	wf := &fakeWorkflow{err: services.ErrWrongState}
	r := newTestRouter(wf, &fakeDesk{})

	body, ctype := multipartBody(t, map[string][]byte{"qr.png": []byte("x")})
	req := httptest.NewRequest(http.MethodPost, "/requests/9/deliver", body)
	req.Header.Set("Content-Type", ctype)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d; want 409", w.Code)
	}
}

//
// Delete
//

func TestDeleteHandler(t *testing.T) {
	wf := &fakeWorkflow{}
	r := newTestRouter(wf, &fakeDesk{})

	req := httptest.NewRequest(http.MethodDelete, "/requests/5", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || wf.deleteID != 5 {
		t.Fatalf("status=%d deleteID=%d", w.Code, wf.deleteID)
	}

	wf = &fakeWorkflow{err: services.ErrNotDeletable}
	r = newTestRouter(wf, &fakeDesk{})
	req = httptest.NewRequest(http.MethodDelete, "/requests/5", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("guarded delete status = %d", w.Code)
	}
}

//
// Reads
//

func TestGetRequestHandler(t *testing.T) {
	desk := &fakeDesk{req: &domain.FlightRequest{ID: 3, Status: domain.StatusQuoted}}
	r := newTestRouter(&fakeWorkflow{}, desk)

	w := doJSON(t, r, http.MethodGet, "/requests/3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got domain.FlightRequest
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.ID != 3 || got.Status != domain.StatusQuoted {
		t.Fatalf("body = %+v", got)
	}

	desk = &fakeDesk{getErr: services.ErrRequestNotFound}
	r = newTestRouter(&fakeWorkflow{}, desk)
	if w := doJSON(t, r, http.MethodGet, "/requests/3", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d", w.Code)
	}
}

func TestQueueHandlers(t *testing.T) {
	desk := &fakeDesk{list: []domain.FlightRequest{{ID: 1}, {ID: 2}}}
	r := newTestRouter(&fakeWorkflow{}, desk)

	for _, path := range []string{"/queues/pending", "/queues/upcoming"} {
		w := doJSON(t, r, http.MethodGet, path, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, w.Code)
		}
		var resp QueueResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if len(resp.Requests) != 2 {
			t.Fatalf("%s items = %d", path, len(resp.Requests))
		}
	}
}

func TestHistoryHandler_PaginationClamps(t *testing.T) {
	desk := &fakeDesk{list: []domain.FlightRequest{{ID: 1}}, total: 45}
	r := newTestRouter(&fakeWorkflow{}, desk)

	w := doJSON(t, r, http.MethodGet, "/requests?page=2&page_size=999", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if desk.page != 2 || desk.size != 100 {
		t.Fatalf("page=%d size=%d; want 2/100 (capped)", desk.page, desk.size)
	}

	var resp HistoryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Pagination.Total != 45 || resp.Pagination.TotalPages != 1 || resp.Pagination.HasNext {
		t.Fatalf("pagination = %+v", resp.Pagination)
	}
}

func TestOwnerHistoryHandler_TrimsAtSign(t *testing.T) {
	desk := &fakeDesk{owner: &services.OwnerHistory{
		Requests:  []domain.FlightRequest{{ID: 1}},
		PaidCount: 1,
		TotalPaid: 500,
	}}
	r := newTestRouter(&fakeWorkflow{}, desk)

	w := doJSON(t, r, http.MethodGet, "/owners/@traveler/requests", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"total_paid":500`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestStatsHandler(t *testing.T) {
	desk := &fakeDesk{stats: &services.DeskStats{TotalRequests: 10, Requesters: 4, Collected: 1234.5}}
	r := newTestRouter(&fakeWorkflow{}, desk)

	w := doJSON(t, r, http.MethodGet, "/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var st services.DeskStats
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.TotalRequests != 10 || st.Requesters != 4 || st.Collected != 1234.5 {
		t.Fatalf("stats = %+v", st)
	}
}
