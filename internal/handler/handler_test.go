package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/classcredit-system/internal/model"
	"github.com/mmeshcher/classcredit-system/internal/repository"
)

type stubService struct {
	createSlotResp *model.ClassSlot
	createSlotErr  error

	editSlotResp *model.ClassSlot
	editSlotErr  error

	deleteSlotErr error

	bookResp *model.ClassSlot
	bookErr  error

	finishResp *model.ClassSlot
	finishErr  error

	cancelResp *model.ClassSlot
	cancelErr  error

	topUpResp *model.CreditTransaction
	topUpErr  error

	redeemResp *model.CreditTransaction
	redeemErr  error

	balanceResp *model.Balance
	balanceErr  error

	slotsByDate []model.ClassSlot
	slotsErr    error

	historyResp []model.CreditTransaction
	historyErr  error

	summaryResp []model.MonthlyTotal
	summaryErr  error

	dashboardResp *model.Dashboard
	dashboardErr  error
}

func (s *stubService) CreateSlot(ctx context.Context, creatorID int64, instructorName string, start, end time.Time, creditCost int64) (*model.ClassSlot, error) {
	return s.createSlotResp, s.createSlotErr
}

func (s *stubService) EditSlot(ctx context.Context, slotID string, requester int64, patch model.SlotPatch) (*model.ClassSlot, error) {
	return s.editSlotResp, s.editSlotErr
}

func (s *stubService) DeleteSlot(ctx context.Context, slotID string, requester int64) error {
	return s.deleteSlotErr
}

func (s *stubService) BookSlot(ctx context.Context, slotID string, studentID int64) (*model.ClassSlot, error) {
	return s.bookResp, s.bookErr
}

func (s *stubService) FinishSlot(ctx context.Context, slotID string, requester int64) (*model.ClassSlot, error) {
	return s.finishResp, s.finishErr
}

func (s *stubService) CancelBooking(ctx context.Context, slotID string, requester int64) (*model.ClassSlot, error) {
	return s.cancelResp, s.cancelErr
}

func (s *stubService) TopUp(ctx context.Context, userID, amount int64) (*model.CreditTransaction, error) {
	return s.topUpResp, s.topUpErr
}

func (s *stubService) RedeemPayment(ctx context.Context, userID int64, paymentID string) (*model.CreditTransaction, error) {
	return s.redeemResp, s.redeemErr
}

func (s *stubService) GetBalance(ctx context.Context, userID int64) (*model.Balance, error) {
	return s.balanceResp, s.balanceErr
}

func (s *stubService) GetSlotsByDate(ctx context.Context, date time.Time) ([]model.ClassSlot, error) {
	return s.slotsByDate, s.slotsErr
}

func (s *stubService) GetSlotsByCoach(ctx context.Context, coachID int64) ([]model.ClassSlot, error) {
	return s.slotsByDate, s.slotsErr
}

func (s *stubService) GetHistory(ctx context.Context, userID int64, from, to *time.Time) ([]model.CreditTransaction, error) {
	return s.historyResp, s.historyErr
}

func (s *stubService) GetMonthlySummary(ctx context.Context, userID int64, year int) ([]model.MonthlyTotal, error) {
	return s.summaryResp, s.summaryErr
}

func (s *stubService) GetDashboard(ctx context.Context, coachID int64, date time.Time) (*model.Dashboard, error) {
	return s.dashboardResp, s.dashboardErr
}

func newTestServer(t *testing.T, svc Service) *httptest.Server {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	h := NewHandler(svc, logger)

	return httptest.NewServer(h.SetupRouter())
}

func doRequest(t *testing.T, ts *httptest.Server, method, path, userID string, body []byte) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, ts.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}

	return resp
}

func availableSlot() *model.ClassSlot {
	return &model.ClassSlot{
		ID:             "slot-1",
		CreatorID:      1,
		InstructorName: "Anna",
		StartTime:      time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC),
		TimeLabel:      "09:00-10:00",
		CreditCost:     30,
		ClassDate:      time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
		State:          model.SlotStateAvailable,
	}
}

func TestCreateSlot_RequiresRequester(t *testing.T) {
	ts := newTestServer(t, &stubService{})
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodPost, "/api/slots", "", []byte(`{}`))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestCreateSlot_OK(t *testing.T) {
	ts := newTestServer(t, &stubService{createSlotResp: availableSlot()})
	defer ts.Close()

	body := []byte(`{"instructor_name":"Anna","start_time":"2026-03-10T09:00:00Z","end_time":"2026-03-10T10:00:00Z","credit_cost":30}`)
	resp := doRequest(t, ts, http.MethodPost, "/api/slots", "1", body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var got slotResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "slot-1" || got.State != "available" || got.CreditCost != 30 {
		t.Fatalf("unexpected response: %+v", got)
	}
	if got.Date != "2026-03-10" {
		t.Fatalf("Date = %q, want 2026-03-10", got.Date)
	}
}

func TestCreateSlot_BadTime(t *testing.T) {
	ts := newTestServer(t, &stubService{})
	defer ts.Close()

	body := []byte(`{"instructor_name":"Anna","start_time":"not-a-time","end_time":"2026-03-10T10:00:00Z"}`)
	resp := doRequest(t, ts, http.MethodPost, "/api/slots", "1", body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestBookSlot_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"insufficient credits", repository.ErrInsufficientCredits, http.StatusPaymentRequired},
		{"already booked", repository.ErrSlotNotAvailable, http.StatusConflict},
		{"not found", repository.ErrSlotNotFound, http.StatusNotFound},
		{"unavailable", repository.ErrUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &stubService{bookErr: tt.err})
			defer ts.Close()

			resp := doRequest(t, ts, http.MethodPost, "/api/slots/slot-1/book", "5", nil)
			defer resp.Body.Close()

			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestBookSlot_OK(t *testing.T) {
	slot := availableSlot()
	studentID := int64(5)
	charged := int64(30)
	slot.State = model.SlotStateBooked
	slot.StudentID = &studentID
	slot.ChargedCredits = &charged

	ts := newTestServer(t, &stubService{bookResp: slot})
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodPost, "/api/slots/slot-1/book", "5", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got slotResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.State != "booked" || got.StudentID == nil || *got.StudentID != 5 {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestEditSlot_InvalidIntervalAfterMerge(t *testing.T) {
	ts := newTestServer(t, &stubService{editSlotErr: repository.ErrInvalidInterval})
	defer ts.Close()

	body := []byte(`{"end_time":"2026-03-10T08:00:00Z"}`)
	resp := doRequest(t, ts, http.MethodPatch, "/api/slots/slot-1", "1", body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestFinishSlot_Forbidden(t *testing.T) {
	ts := newTestServer(t, &stubService{finishErr: repository.ErrForbidden})
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodPost, "/api/slots/slot-1/finish", "2", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func TestFinishSlot_NotBooked(t *testing.T) {
	ts := newTestServer(t, &stubService{finishErr: repository.ErrSlotNotBooked})
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodPost, "/api/slots/slot-1/finish", "1", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestDeleteSlot_Finished(t *testing.T) {
	ts := newTestServer(t, &stubService{deleteSlotErr: repository.ErrSlotFinished})
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodDelete, "/api/slots/slot-1", "1", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestDeleteSlot_OK(t *testing.T) {
	ts := newTestServer(t, &stubService{})
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodDelete, "/api/slots/slot-1", "1", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
}

func TestTopUp_Direct(t *testing.T) {
	ts := newTestServer(t, &stubService{
		topUpResp: &model.CreditTransaction{ID: "t-1", UserID: 1, Amount: 50, Category: model.TransactionTopUp, CreatedAt: time.Now()},
	})
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodPost, "/api/balance/topup", "1", []byte(`{"amount":50}`))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got transactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Amount != 50 || got.Category != "topup" {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestTopUp_PaymentAlreadyRedeemed(t *testing.T) {
	ts := newTestServer(t, &stubService{redeemErr: repository.ErrPaymentAlreadyRedeemed})
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodPost, "/api/balance/topup", "1", []byte(`{"payment_id":"pay-1"}`))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestGetBalance_OK(t *testing.T) {
	ts := newTestServer(t, &stubService{balanceResp: &model.Balance{Current: 70}})
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodGet, "/api/balance", "1", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got model.Balance
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Current != 70 {
		t.Fatalf("Current = %d, want 70", got.Current)
	}
}

func TestGetHistory_Empty(t *testing.T) {
	ts := newTestServer(t, &stubService{})
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodGet, "/api/transactions", "1", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
}

func TestListSlotsByDate_BadDate(t *testing.T) {
	ts := newTestServer(t, &stubService{})
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodGet, "/api/slots?date=tomorrow", "", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestListSlotsByDate_OK(t *testing.T) {
	ts := newTestServer(t, &stubService{slotsByDate: []model.ClassSlot{*availableSlot()}})
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodGet, "/api/slots?date=2026-03-10", "", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got []slotResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "slot-1" {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestGetDashboard_OK(t *testing.T) {
	ts := newTestServer(t, &stubService{
		dashboardResp: &model.Dashboard{
			Slots:   []model.ClassSlot{*availableSlot()},
			Balance: 90,
		},
	})
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodGet, "/api/coaches/1/dashboard?date=2026-03-10", "", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got dashboardResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Balance != 90 || len(got.Slots) != 1 {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestGetMonthlySummary_BadYear(t *testing.T) {
	ts := newTestServer(t, &stubService{})
	defer ts.Close()

	resp := doRequest(t, ts, http.MethodGet, "/api/transactions/summary?year=abc", "1", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}
